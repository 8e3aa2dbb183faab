// concord - a terminal client for Discord-style chat.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/morganforge/concord/internal/api"
	"github.com/morganforge/concord/internal/auth"
	"github.com/morganforge/concord/internal/config"
	"github.com/morganforge/concord/internal/consts"
	"github.com/morganforge/concord/internal/gateway"
	"github.com/morganforge/concord/internal/logging"
	"github.com/morganforge/concord/internal/store"
	"github.com/morganforge/concord/internal/ui/chat"
	"github.com/morganforge/concord/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the config file")
	tokenFlag := flag.String("token", "", "credential token (overrides env and token file)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (%s)\n", consts.Name, Version, GitCommit)
		return nil
	}

	// ==========================================================================
	// CONFIGURATION AND LOGGING
	// ==========================================================================

	path := *configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Info("starting", zap.String("version", Version))

	// ==========================================================================
	// CREDENTIAL AND LOCAL CACHE
	// ==========================================================================

	token := *tokenFlag
	if token == "" {
		token, err = auth.Token()
		if err == auth.ErrNoToken {
			token, err = auth.Prompt()
		}
		if err != nil {
			return err
		}
	}

	dbPath, err := store.DefaultPath()
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath, log.Logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// ==========================================================================
	// IDENTITY CHECK AND GATEWAY SESSION
	// ==========================================================================

	client := api.NewClient(token, nil, log.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	me, err := client.Me(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("credential check failed: %w", err)
	}
	log.Info("authenticated", zap.String("username", me.Username))
	st.SaveUser(*me)

	// Verified credential; remember it for the next launch.
	if tok, terr := auth.Token(); terr == auth.ErrNoToken || tok != token {
		if serr := auth.Save(token); serr != nil {
			log.Warn("failed to persist token", zap.Error(serr))
		}
	}

	opts := gateway.DefaultOptions(token)
	opts.Logger = log.Logger
	session := gateway.NewSession(opts)

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("gateway connect failed: %w", err)
	}
	defer session.Close()

	// ==========================================================================
	// TUI
	// ==========================================================================

	m := chat.New(chat.Deps{
		Config:  cfg,
		Theme:   styles.New(cfg.Theme),
		Session: session,
		Client:  client,
		Store:   st,
		Logger:  log.Logger,
	})

	progOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.Mouse {
		progOpts = append(progOpts, tea.WithMouseCellMotion())
	}

	p := tea.NewProgram(m, progOpts...)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running %s: %w", consts.Name, err)
	}

	if err := session.Err(); err != nil {
		return fmt.Errorf("session ended: %w", err)
	}
	return nil
}
