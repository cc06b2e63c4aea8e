package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/coopsched/internal/config"
	"github.com/me/coopsched/internal/logging"
	"github.com/me/coopsched/internal/server"
	"github.com/me/coopsched/internal/sim"
	"github.com/me/coopsched/internal/trace"
)

func main() {
	cfg := config.DefaultServerConfig()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.BoardPath, "board", cfg.BoardPath, "Board file describing the task table (required)")
	flag.StringVar(&cfg.TracePath, "trace", cfg.TracePath, "SQLite trace database (empty disables tracing)")
	flag.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Tick interval (overrides the board)")
	flag.DurationVar(&cfg.ScriptBudget, "script-budget", cfg.ScriptBudget, "Per-run time limit for script tasks (0 disables)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}
	if cfg.BoardPath == "" {
		fmt.Fprintln(os.Stderr, "-board is required")
		flag.Usage()
		os.Exit(2)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	board, err := config.LoadBoard(cfg.BoardPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load board: %v\n", err)
		os.Exit(1)
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := sim.Options{
		Logger:       logger,
		TickInterval: cfg.TickInterval,
		ScriptBudget: cfg.ScriptBudget,
	}
	serverOpts := []server.Option{server.WithBoardName(board.Name)}

	// Open the trace store and run migrations.
	if cfg.TracePath != "" {
		st, err := trace.NewSQLiteStore(cfg.TracePath, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open trace database: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "migrate trace database: %v\n", err)
			os.Exit(1)
		}
		logger.Info("trace database ready", "path", cfg.TracePath)
		opts.Trace = st
		serverOpts = append(serverOpts, server.WithTraceStore(st))
	}

	s, err := sim.New(ctx, board, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build simulator: %v\n", err)
		os.Exit(1)
	}
	logger.Info("board loaded", "board", board.Name, "tasks", s.Registry.Len(), "run_id", s.RunID())

	serverOpts = append(serverOpts, server.WithLoop(s.Loop))
	srv := server.New(cfg, s.Registry, logger, serverOpts...)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Start the simulator in background.
	simDone := make(chan error, 1)
	go func() { simDone <- s.Run(ctx) }()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop the simulator before the HTTP server so the trace run is closed.
	if err := <-simDone; err != nil {
		logger.Error("simulator stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
