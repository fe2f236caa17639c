// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auditor wires the audit service: findings store, tool catalog,
// language-model provider, agent core, and HTTP surface.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianAudit/services/auditor/agent"
	"github.com/AleutianAI/AleutianAudit/services/auditor/findings"
	"github.com/AleutianAI/AleutianAudit/services/auditor/handlers"
	"github.com/AleutianAI/AleutianAudit/services/auditor/llm"
	"github.com/AleutianAI/AleutianAudit/services/auditor/routes"
	"github.com/AleutianAI/AleutianAudit/services/auditor/tools"
)

// Config holds the service configuration, typically populated from the
// environment in cmd/auditor.
type Config struct {
	// ListenAddr is the HTTP bind address, e.g. ":8086".
	ListenAddr string

	// DataDir is the findings store directory.
	DataDir string

	// LLMBaseURL is the OpenAI-compatible endpoint.
	LLMBaseURL string

	// LLMAPIKey authenticates model calls (may be empty for local
	// servers).
	LLMAPIKey string

	// Model is the model name.
	Model string

	// IndexBaseURL is the semantic index service (empty disables the
	// index tools).
	IndexBaseURL string

	// OSVEndpoint overrides the vulnerability database endpoint.
	OSVEndpoint string

	// MaxIterations bounds the reasoning loop (default 100).
	MaxIterations int

	// ShutdownGrace bounds graceful HTTP shutdown.
	ShutdownGrace time.Duration
}

// Service is the assembled audit service.
type Service struct {
	config  Config
	store   *findings.Store
	manager *agent.ConversationManager
	router  *gin.Engine
	logger  *slog.Logger
}

// New assembles the service from configuration.
//
// Outputs:
//
//	*Service - The assembled service. Call Run to serve.
//	error - Non-nil if a collaborator cannot be constructed.
func New(cfg Config) (*Service, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8086"
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}

	store, err := findings.Open(findings.Config{Path: cfg.DataDir})
	if err != nil {
		return nil, fmt.Errorf("open findings store: %w", err)
	}

	registry := tools.NewRegistry()
	tools.RegisterCatalog(registry, tools.CatalogConfig{
		Store:        store,
		IndexBaseURL: cfg.IndexBaseURL,
		OSVEndpoint:  cfg.OSVEndpoint,
	})
	dispatcher := tools.NewDispatcher(registry, nil)

	provider, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create llm provider: %w", err)
	}

	agentCfg := agent.DefaultConfig()
	if cfg.MaxIterations > 0 {
		agentCfg.MaxIterations = cfg.MaxIterations
	}
	executor, err := agent.NewExecutor(provider, registry, dispatcher, agentCfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create executor: %w", err)
	}
	manager, err := agent.NewConversationManager(executor, agentCfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create conversation manager: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, handlers.NewConversationHandler(manager))

	return &Service{
		config:  cfg,
		store:   store,
		manager: manager,
		router:  router,
		logger:  slog.Default(),
	}, nil
}

// Manager exposes the conversation manager (tests and embedding).
func (s *Service) Manager() *agent.ConversationManager {
	return s.manager
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// closes the findings store.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Audit service listening", "addr", s.config.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close findings store: %w", cerr)
	}
	return err
}
