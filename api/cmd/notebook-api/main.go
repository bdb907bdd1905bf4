package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"errbook/api/internal/app"
	"errbook/api/internal/config"
	"errbook/api/internal/handle"
	"errbook/api/internal/httpserver"
	"errbook/api/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	flush, err := logging.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		zap.L().Error("notebook-api stopped", zap.Error(err))
		flush()
		os.Exit(1)
	}
	flush()
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return eris.Wrap(err, "config")
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return eris.Wrap(err, "init")
	}
	defer a.Close()

	mux := http.NewServeMux()
	mux.Handle("/healthz", httpserver.Healthz(a.Pinger()))
	handle.New(a.Engines, a.Items, a.Validator, cfg.RequestTimeout).Routes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	zap.L().Info("notebook-api listening", zap.String("addr", srv.Addr), zap.Strings("engines", a.Engines.Names()))
	return httpserver.Serve(ctx, srv)
}
