// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth resolves the account credential token. Resolution order is
// the CONCORD_TOKEN environment variable, then the token file under the
// config directory, then an interactive hidden prompt.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/morganforge/concord/internal/consts"
)

// EnvVar is the environment variable consulted first.
const EnvVar = "CONCORD_TOKEN"

// ErrNoToken is returned when no credential could be resolved.
var ErrNoToken = errors.New("no credential token available")

// TokenPath returns the path of the token file, creating the config
// directory if needed.
func TokenPath() (string, error) {
	dir, err := consts.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "token"), nil
}

// Token resolves the credential without prompting. It returns ErrNoToken
// when neither the environment nor the token file provides one.
func Token() (string, error) {
	if tok := strings.TrimSpace(os.Getenv(EnvVar)); tok != "" {
		return tok, nil
	}

	path, err := TokenPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Prompt reads the token from the terminal without echo.
func Prompt() (string, error) {
	fmt.Fprint(os.Stderr, "Token: ")
	data, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Save writes the token file with owner-only permissions.
func Save(token string) error {
	path, err := TokenPath()
	if err != nil {
		return fmt.Errorf("failed to resolve token path: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
