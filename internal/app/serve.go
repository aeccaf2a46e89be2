package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eternaltwin/etwin/internal/config"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// runServe はAPIサーバーモードで起動する。
// withWorker が true の場合は同じプロセスでセッション更新ワーカーも動かす。
// memoryバックエンドのストアはプロセス内にしかないため、ワーカーはこの形でしか動かせない。
// ctx がキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, withWorker bool) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	router, limiter := a.Router()
	defer limiter.Stop()

	server := &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	if withWorker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Scheduler().Start(ctx, cfg.Worker.Interval)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("APIサーバーを起動します",
			slog.String("addr", server.Addr),
			slog.String("external_uri", cfg.ExternalURI),
			slog.String("backend", cfg.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("APIサーバーを停止しています")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	wg.Wait()

	slog.Info("APIサーバーを停止しました")
	return nil
}

// runWorker はワーカーモードで起動する。
// 保存済みのリモートセッションを一定間隔でアーカイブし、ctx がキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("ワーカーを起動します",
		slog.Duration("interval", cfg.Worker.Interval),
		slog.Int("max_concurrent", cfg.Worker.MaxConcurrent),
	)

	a.Scheduler().Start(ctx, cfg.Worker.Interval)

	slog.Info("ワーカーを停止しました")
	return nil
}
