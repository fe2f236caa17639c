// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command auditor runs the vulnerability-assessment agent service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAudit/pkg/logging"
	"github.com/AleutianAI/AleutianAudit/services/auditor"
)

var rootCmd = &cobra.Command{
	Use:   "auditor",
	Short: "AleutianAudit vulnerability-assessment agent service",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// serve assembles the service from the environment and runs it until
// SIGINT or SIGTERM.
func serve() error {
	logger, err := logging.NewLogger(logging.Config{
		Level:   envOr("AUDITOR_LOG_LEVEL", "info"),
		Service: "auditor",
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger.Slog())

	cfg := auditor.Config{
		ListenAddr:    envOr("AUDITOR_LISTEN_ADDR", ":8086"),
		DataDir:       envOr("AUDITOR_DATA_DIR", "/var/lib/aleutian/auditor"),
		LLMBaseURL:    envOr("AUDITOR_LLM_BASE_URL", "http://localhost:11434/v1"),
		LLMAPIKey:     os.Getenv("AUDITOR_LLM_API_KEY"),
		Model:         envOr("AUDITOR_MODEL", "qwen2.5-coder:32b"),
		IndexBaseURL:  os.Getenv("AUDITOR_INDEX_BASE_URL"),
		OSVEndpoint:   os.Getenv("AUDITOR_OSV_ENDPOINT"),
		MaxIterations: envInt("AUDITOR_MAX_ITERATIONS", 0),
		ShutdownGrace: 10 * time.Second,
	}

	service, err := auditor.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting audit service",
		"listen_addr", cfg.ListenAddr,
		"model", cfg.Model,
		"llm_base_url", cfg.LLMBaseURL,
	)
	return service.Run(ctx)
}

// envOr returns the environment value or a default.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt returns the environment value as an int, or a default.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-numeric environment value", "key", key, "value", v)
		return def
	}
	return n
}
