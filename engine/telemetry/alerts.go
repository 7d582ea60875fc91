package telemetry

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// NATS subjects.
const (
	SubjectReading = "telemetry.reading"
	SubjectAlert   = "telemetry.alert"
)

// AlertThresholdBreach is the only alert type.
const AlertThresholdBreach = "THRESHOLD_BREACH"

// DefaultCooldown suppresses repeats of the same alert.
const DefaultCooldown = 5 * time.Minute

// DefaultThresholds are upper limits per metric.
var DefaultThresholds = map[string]float64{
	MetricSpeed:       120,
	MetricRPM:         4000,
	MetricCoolantTemp: 105,
	MetricEngineLoad:  85,
	MetricThrottle:    90,
}

// Reading is one OBD frame from a vehicle: raw values keyed by PID.
type Reading struct {
	VehicleID string         `json:"vehicle_id"`
	Values    map[string]any `json:"values"`
	At        time.Time      `json:"at"`
}

// Alert reports a metric above its limit.
type Alert struct {
	Type      string    `json:"type"`
	VehicleID string    `json:"vehicle_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Limit     float64   `json:"limit"`
	Severity  float64   `json:"severity"`
	At        time.Time `json:"at"`
}

// Severity grows by 0.02 per percent over the limit and saturates at 1.
func Severity(value, limit float64) float64 {
	s := math.Round((value/limit-1)*2*100) / 100
	return math.Min(s, 1)
}

// Cooldown rate limits keys to one event per window.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// NewCooldown creates a Cooldown.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window, last: map[string]time.Time{}}
}

// Allow reports whether key may fire at now and records it when it may.
func (c *Cooldown) Allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.last[key]; ok && now.Sub(last) < c.window {
		return false
	}
	c.last[key] = now
	return true
}

// Processor turns readings into alerts.
type Processor struct {
	thresholds map[string]float64
	cooldown   *Cooldown
	log        *slog.Logger
	now        func() time.Time
}

// NewProcessor creates a Processor. Nil thresholds select the defaults and a
// zero window selects DefaultCooldown.
func NewProcessor(thresholds map[string]float64, window time.Duration, log *slog.Logger) *Processor {
	if thresholds == nil {
		thresholds = DefaultThresholds
	}
	if window <= 0 {
		window = DefaultCooldown
	}
	if log == nil {
		log = slog.Default()
	}
	return &Processor{thresholds: thresholds, cooldown: NewCooldown(window), log: log, now: time.Now}
}

// Process decodes r and returns the alerts it raises, ordered by metric.
// Undecodable values are logged and skipped.
func (p *Processor) Process(r Reading) []Alert {
	at := r.At
	if at.IsZero() {
		at = p.now()
	}
	var alerts []Alert
	for pid, raw := range r.Values {
		m, err := Decode(pid, raw)
		if err != nil {
			p.log.Debug("skipping obd value", "vehicle_id", r.VehicleID, "pid", pid, "err", err)
			continue
		}
		limit, ok := p.thresholds[m.Name]
		if !ok || m.Value <= limit {
			continue
		}
		if !p.cooldown.Allow(r.VehicleID+"/"+m.Name, at) {
			continue
		}
		alerts = append(alerts, Alert{
			Type:      AlertThresholdBreach,
			VehicleID: r.VehicleID,
			Metric:    m.Name,
			Value:     m.Value,
			Limit:     limit,
			Severity:  Severity(m.Value, limit),
			At:        at,
		})
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Metric < alerts[j].Metric })
	return alerts
}
