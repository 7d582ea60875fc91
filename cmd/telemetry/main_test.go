package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-mechanic/engine/telemetry"
	"github.com/WessleyAI/wessley-mechanic/pkg/config"
	"github.com/WessleyAI/wessley-mechanic/pkg/metrics"
)

type fakeConn struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	f.msgs = append(f.msgs, m)
	return f.err
}

func newConsumer(pub *fakeConn) *consumer {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &consumer{
		proc:    telemetry.NewProcessor(nil, time.Minute, log),
		pub:     pub,
		metrics: metrics.New(),
		log:     log,
	}
}

func TestConsumerPublishesAlerts(t *testing.T) {
	pub := &fakeConn{}
	c := newConsumer(pub)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	c.handle(context.Background(), telemetry.Reading{
		VehicleID: "v1",
		Values:    map[string]any{telemetry.PIDSpeed: 150.0, telemetry.PIDRPM: "2500", telemetry.PIDCoolantTemp: 110},
		At:        at,
	})

	require.Len(t, pub.msgs, 2)
	var first telemetry.Alert
	require.NoError(t, json.Unmarshal(pub.msgs[0].Data, &first))
	assert.Equal(t, telemetry.SubjectAlert, pub.msgs[0].Subject)
	assert.Equal(t, telemetry.MetricCoolantTemp, first.Metric)
	assert.Equal(t, telemetry.AlertThresholdBreach, first.Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.Alerts.WithLabelValues(telemetry.MetricSpeed)))

	// Same reading inside the cooldown stays quiet.
	c.handle(context.Background(), telemetry.Reading{VehicleID: "v1", Values: map[string]any{telemetry.PIDSpeed: 160.0}, At: at.Add(time.Second)})
	assert.Len(t, pub.msgs, 2)
}

func TestConsumerDropsReadingWithoutVehicle(t *testing.T) {
	pub := &fakeConn{}
	newConsumer(pub).handle(context.Background(), telemetry.Reading{Values: map[string]any{telemetry.PIDSpeed: 200.0}})
	assert.Empty(t, pub.msgs)
}

func TestConsumerPublishFailureNotCounted(t *testing.T) {
	pub := &fakeConn{err: errors.New("closed")}
	c := newConsumer(pub)
	c.handle(context.Background(), telemetry.Reading{VehicleID: "v1", Values: map[string]any{telemetry.PIDRPM: 5000}})
	assert.Len(t, pub.msgs, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.Alerts.WithLabelValues(telemetry.MetricRPM)))
}

func TestRunRequiresNATS(t *testing.T) {
	err := run(config.Config{}, time.Minute, "0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, errNoNATS)
}
