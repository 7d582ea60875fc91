// Package telemetry decodes OBD-II readings and raises threshold alerts.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PIDs understood by Decode.
const (
	PIDSpeed          = "SPEED"
	PIDRPM            = "RPM"
	PIDCoolantTemp    = "COOLANT_TEMP"
	PIDEngineLoad     = "ENGINE_LOAD"
	PIDThrottlePos    = "THROTTLE_POS"
	PIDDistanceDTCClr = "DISTANCE_SINCE_DTC_CLEAR"
)

// Metric names produced by Decode.
const (
	MetricSpeed        = "speed_kmph"
	MetricRPM          = "rpm"
	MetricCoolantTemp  = "coolant_temp_c"
	MetricEngineLoad   = "engine_load_pct"
	MetricThrottle     = "throttle_pct"
	MetricDistanceDTCs = "distance_since_dtc_clear_km"
)

var (
	ErrUnknownPID = errors.New("unknown pid")
	ErrBadValue   = errors.New("undecodable pid value")
)

var pidMetrics = map[string]string{
	PIDSpeed:          MetricSpeed,
	PIDRPM:            MetricRPM,
	PIDCoolantTemp:    MetricCoolantTemp,
	PIDEngineLoad:     MetricEngineLoad,
	PIDThrottlePos:    MetricThrottle,
	PIDDistanceDTCClr: MetricDistanceDTCs,
}

// Metric is one decoded value.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Decode converts a raw PID value into a named metric. RPM is truncated to
// a whole number.
func Decode(pid string, value any) (Metric, error) {
	name, ok := pidMetrics[strings.ToUpper(strings.TrimSpace(pid))]
	if !ok {
		return Metric{}, fmt.Errorf("%w: %s", ErrUnknownPID, pid)
	}
	v, err := toFloat(value)
	if err != nil {
		return Metric{}, fmt.Errorf("%w: %s=%v", ErrBadValue, pid, value)
	}
	if name == MetricRPM {
		v = math.Trunc(v)
	}
	return Metric{Name: name, Value: v}, nil
}

func toFloat(value any) (float64, error) {
	var v float64
	switch tv := value.(type) {
	case float64:
		v = tv
	case float32:
		v = float64(tv)
	case int:
		v = float64(tv)
	case int64:
		v = float64(tv)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(tv), 64)
		if err != nil {
			return 0, err
		}
		v = f
	default:
		return 0, ErrBadValue
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrBadValue
	}
	return v, nil
}
