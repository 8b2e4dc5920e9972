// Command apiserver runs the control-plane HTTP entry point (C10): accepts
// report-creation requests and fans them out onto the message bus.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ytreport/internal/bootstrap"
	"ytreport/internal/bus"
	"ytreport/internal/config"
	"ytreport/internal/controlplane"
	"ytreport/internal/logging"
	"ytreport/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		logging.Log.Fatalf("apiserver: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		logging.Log.Warnf("otel init failed, continuing without tracing: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer shutdownTracing(context.Background())

	res, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	ctxAdmin, cancelAdmin := context.WithTimeout(ctx, 5*time.Second)
	defer cancelAdmin()
	if err := bus.CheckBrokers(ctxAdmin, res.Brokers, 5*time.Second); err != nil {
		return err
	}
	if err := bus.EnsureTopics(ctxAdmin, res.Brokers, bus.AllTopics()); err != nil {
		return err
	}

	srv := controlplane.NewServer(res.Deps.Reports, res.Deps.Tasks, res.Producer, res.Deps.RunIdeaStepOnV2)
	mux := http.NewServeMux()
	srv.Routes(mux)

	addr := hostPort(cfg.Host, cfg.Port)
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logging.Log.Infof("apiserver listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Log.Errorf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.Log.Errorf("apiserver shutdown: %v", err)
	} else {
		logging.Log.Infof("apiserver stopped")
	}
	return nil
}

func hostPort(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	if port == 0 {
		port = 8080
	}
	return host + ":" + strconv.Itoa(port)
}
