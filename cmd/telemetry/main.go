// Command telemetry consumes OBD readings from NATS and publishes threshold
// alerts for values above their limits.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/wessley-mechanic/engine/telemetry"
	"github.com/WessleyAI/wessley-mechanic/pkg/config"
	"github.com/WessleyAI/wessley-mechanic/pkg/metrics"
	"github.com/WessleyAI/wessley-mechanic/pkg/natsutil"
)

// errNoNATS is returned when no NATS server is configured.
var errNoNATS = errors.New("NATS_URL is not set")

type consumer struct {
	proc    *telemetry.Processor
	pub     natsutil.MsgPublisher
	metrics *metrics.Metrics
	log     *slog.Logger
}

func (c *consumer) handle(ctx context.Context, r telemetry.Reading) {
	if r.VehicleID == "" {
		c.log.Warn("dropping reading without vehicle id")
		return
	}
	for _, a := range c.proc.Process(r) {
		if err := natsutil.Publish(ctx, c.pub, telemetry.SubjectAlert, a); err != nil {
			c.log.Error("publish alert failed", "vehicle_id", a.VehicleID, "metric", a.Metric, "err", err)
			continue
		}
		c.metrics.Alerts.WithLabelValues(a.Metric).Inc()
		c.log.Info("alert raised", "vehicle_id", a.VehicleID, "metric", a.Metric, "value", a.Value, "severity", a.Severity)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	config.LoadEnv(".env", logger)
	v := config.NewViper()
	v.SetDefault("telemetry_cooldown", telemetry.DefaultCooldown.String())
	v.SetDefault("metrics_port", "9091")
	cfg, err := config.Load(v, os.Getenv("MECHANIC_CONFIG"))
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, v.GetDuration("telemetry_cooldown"), v.GetString("metrics_port"), logger); err != nil {
		logger.Error("telemetry consumer exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, cooldown time.Duration, metricsPort string, logger *slog.Logger) error {
	if cfg.NATSURL == "" {
		return errNoNATS
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("mechanic-telemetry"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	m := metrics.New()
	c := &consumer{
		proc:    telemetry.NewProcessor(telemetry.DefaultThresholds, cooldown, logger),
		pub:     nc,
		metrics: m,
		log:     logger,
	}
	sub, err := natsutil.Subscribe(nc, telemetry.SubjectReading, logger, c.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", telemetry.SubjectReading, err)
	}
	defer sub.Unsubscribe()

	srv := &http.Server{Addr: ":" + metricsPort, Handler: m.Handler(), ReadTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("telemetry consumer started", "subject", telemetry.SubjectReading, "metrics_port", metricsPort, "cooldown", cooldown)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := nc.Drain(); err != nil {
		logger.Warn("nats drain failed", "err", err)
	}
	return srv.Shutdown(shutCtx)
}
