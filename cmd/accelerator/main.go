package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/learning-accelerator/internal/config"
	"github.com/conorfennell/learning-accelerator/internal/content"
	"github.com/conorfennell/learning-accelerator/internal/logger"
	"github.com/conorfennell/learning-accelerator/internal/progress"
	"github.com/conorfennell/learning-accelerator/internal/review"
	"github.com/conorfennell/learning-accelerator/internal/storage"
	"github.com/conorfennell/learning-accelerator/internal/sync"
	"github.com/conorfennell/learning-accelerator/internal/web"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := config.Flags()
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	if cfg.Storage.Driver == storage.DriverSQLite {
		if dir := filepath.Dir(cfg.Storage.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	store, err := storage.OpenDriver(cfg.Storage.Driver, cfg.Storage.DSN, cfg.Storage.RuntimeDir)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("store opened", zap.String("driver", cfg.Storage.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncer := sync.New(store, cfg.Sources.ReposDir, cfg.Sources.Prune, time.Now, log)

	// One-shot commands.
	if path, _ := flags.GetString("add-source"); path != "" {
		source, err := syncer.AddSource(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to add source: %w", err)
		}
		fmt.Printf("Added source %d (%s): %s\n", source.ID, source.Type, source.Path)
		return nil
	}
	if doSync, _ := flags.GetBool("sync"); doSync {
		report, err := syncer.Run(ctx)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Printf("Synced %d sources: %d cards parsed, %d new, %d pruned, %d errors.\n",
			report.Sources, report.Parsed, report.Inserted, report.Pruned, report.Errors)
		return nil
	}

	library, err := content.Load(cfg.Content.StaticDir)
	if err != nil {
		return fmt.Errorf("failed to load content: %w", err)
	}
	log.Info("content loaded",
		zap.String("dir", library.Dir()),
		zap.Int("lessons", len(library.Lessons())),
		zap.Int("challenges", len(library.Challenges())),
	)

	prog := progress.NewService(store, store, library, time.Now, log)
	reviews := review.NewService(store, store, prog, time.Now, log)

	// A missing or broken seed file leaves an empty deck.
	if seed, err := library.SeedCards(); err != nil {
		log.Warn("failed to read seed cards", zap.Error(err))
	} else if _, err := reviews.Seed(ctx, seed); err != nil {
		log.Warn("failed to seed cards", zap.Error(err))
	}

	_, port, err := net.SplitHostPort(cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("invalid server address %q: %w", cfg.Server.Addr, err)
	}
	srv := web.NewServer(web.Options{
		Env:        cfg.Env,
		Production: cfg.IsProduction(),
		Port:       port,
		PublicDir:  cfg.Server.PublicDir,
	}, reviews, prog, library, syncer, log)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", cfg.Server.Addr), zap.String("env", cfg.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	log.Info("server closed")
	return nil
}
