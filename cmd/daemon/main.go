// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/truetrack/truetrack/internal/api"
	"github.com/truetrack/truetrack/internal/config"
	ttlog "github.com/truetrack/truetrack/internal/log"
	"github.com/truetrack/truetrack/internal/media/ffmpeg"
	"github.com/truetrack/truetrack/internal/media/itunes"
	"github.com/truetrack/truetrack/internal/media/tagging"
	"github.com/truetrack/truetrack/internal/media/ytdlp"
	"github.com/truetrack/truetrack/internal/pipeline"
	"github.com/truetrack/truetrack/internal/pipeline/worker"
	"github.com/truetrack/truetrack/internal/settings"
	"github.com/truetrack/truetrack/internal/store"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("truetrack %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "truetrack: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "truetrack: %v\n", err)
		os.Exit(1)
	}

	ttlog.Configure(ttlog.Config{
		Level:   cfg.LogLevel,
		Service: "truetrack",
	})
	logger := ttlog.WithComponent("daemon")

	st, err := store.NewSqliteStore(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("failed to open job store")
	}
	st.LockTTL = cfg.LockTTL
	defer func() { _ = st.Close() }()

	resolver := &settings.Resolver{KV: st, Env: cfg.MusicLibraryRoot}

	source := &ytdlp.Client{ToolsDir: cfg.ToolsDir}
	meta := &itunes.Client{}
	pipe := pipeline.NewDefault(pipeline.Deps{
		Identity:   source,
		Downloader: source,
		Transcoder: &ffmpeg.Transcoder{ToolsDir: cfg.ToolsDir},
		Metadata:   meta,
		Tagger:     &tagging.Tagger{Art: meta},
		Library:    resolver,
		TempRoot:   filepath.Join(os.TempDir(), "truetrack"),
	})

	rt := &worker.Runtime{
		Store:        st,
		Pipe:         pipe,
		Workers:      1,
		PollInterval: cfg.PollInterval,
		LockTTL:      cfg.LockTTL,
		Log:          ttlog.WithComponent("worker"),
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.New(st, resolver, cfg.AllowedOrigins).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.Run(ctx)
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr()).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Msg("daemon stopped")
}
