package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// codePattern matches OBD-II trouble codes such as P0171 or U0100.
var codePattern = regexp.MustCompile(`(?i)\b[PBCU]\d{4}\b`)

// CodeInfo is the static metadata for a diagnostic trouble code.
type CodeInfo struct {
	Meaning     string   `yaml:"meaning"`
	Description string   `yaml:"description"`
	DIYPossible bool     `yaml:"diy_possible"`
	MultiCause  bool     `yaml:"multi_cause"`
	Questions   []string `yaml:"questions,omitempty"`
}

// FindCode returns the first trouble code in text, upper-cased, or "".
func FindCode(text string) string {
	return strings.ToUpper(codePattern.FindString(text))
}

// DefaultCodes is the built-in code table.
var DefaultCodes = map[string]CodeInfo{
	"P0171": {
		Meaning:     "System Too Lean (Bank 1)",
		Description: "The engine computer sees more air than fuel on bank 1. Common causes are vacuum leaks, a dirty mass airflow sensor, a weak fuel pump or a clogged fuel filter.",
		DIYPossible: true,
		MultiCause:  true,
		Questions: []string{
			"Do you notice a rough idle or hesitation when accelerating?",
			"Can you hear a hissing sound from the engine bay with the engine running?",
			"When was the air filter last replaced, and has the MAF sensor ever been cleaned?",
		},
	},
	"P0174": {
		Meaning:     "System Too Lean (Bank 2)",
		Description: "Bank 2 is running lean. Causes overlap with P0171: vacuum leaks, MAF sensor contamination or low fuel pressure.",
		DIYPossible: true,
		MultiCause:  true,
		Questions: []string{
			"Is P0171 also stored, or only P0174?",
			"Do you hear a hiss from the intake area at idle?",
			"Has the car been hard to start or slow to accelerate?",
		},
	},
	"P0300": {
		Meaning:     "Random/Multiple Cylinder Misfire Detected",
		Description: "Misfires are occurring on more than one cylinder. Worn spark plugs, failing coils, vacuum leaks or fuel delivery problems are typical causes.",
		DIYPossible: true,
		MultiCause:  true,
		Questions: []string{
			"Is the check engine light steady or flashing?",
			"Does the engine shake at idle, under load, or both?",
			"When were the spark plugs last replaced?",
		},
	},
	"P0301": {
		Meaning:     "Cylinder 1 Misfire Detected",
		Description: "Cylinder 1 is misfiring. The spark plug, ignition coil or injector for that cylinder are the usual suspects.",
		DIYPossible: true,
		MultiCause:  true,
		Questions: []string{
			"Have you swapped the cylinder 1 coil with another cylinder to see if the misfire moves?",
			"When were the spark plugs last replaced?",
		},
	},
	"P0420": {
		Meaning:     "Catalyst System Efficiency Below Threshold (Bank 1)",
		Description: "The catalytic converter is not cleaning the exhaust as well as it should. Confirming this needs exhaust and sensor testing before replacing expensive parts.",
		DIYPossible: false,
	},
	"P0442": {
		Meaning:     "Evaporative Emission System Leak Detected (Small Leak)",
		Description: "A small leak was found in the fuel vapour system. A worn fuel cap seal is the most common cause.",
		DIYPossible: true,
	},
	"P0455": {
		Meaning:     "Evaporative Emission System Leak Detected (Large Leak)",
		Description: "A large fuel vapour leak was detected. A missing or loose fuel cap is by far the most common cause.",
		DIYPossible: true,
	},
	"P0128": {
		Meaning:     "Coolant Thermostat Below Regulating Temperature",
		Description: "The engine takes too long to reach operating temperature, usually because the thermostat is stuck open.",
		DIYPossible: true,
	},
	"P0113": {
		Meaning:     "Intake Air Temperature Sensor Circuit High",
		Description: "The intake air temperature sensor reads out of range, often from a disconnected plug or a failed sensor.",
		DIYPossible: true,
	},
	"P0506": {
		Meaning:     "Idle Control System RPM Lower Than Expected",
		Description: "Idle speed is below target. A dirty throttle body, vacuum leak or failing idle control valve can cause it.",
		DIYPossible: true,
		MultiCause:  true,
		Questions: []string{
			"Does the idle drop further when the A/C is switched on?",
			"Has the throttle body ever been cleaned?",
		},
	},
	"P0562": {
		Meaning:     "System Voltage Low",
		Description: "The engine computer sees low supply voltage. A weak battery, corroded terminals or a failing alternator are the usual causes.",
		DIYPossible: true,
		MultiCause:  true,
		Questions: []string{
			"Is the battery older than four years?",
			"Do the headlights dim at idle or when accessories are on?",
			"Are the battery terminals clean and tight?",
		},
	},
	"P0335": {
		Meaning:     "Crankshaft Position Sensor A Circuit Malfunction",
		Description: "The engine computer lost the crankshaft position signal, which can cause stalling or a no-start.",
		DIYPossible: false,
	},
	"P0500": {
		Meaning:     "Vehicle Speed Sensor Malfunction",
		Description: "The vehicle speed signal is missing or implausible. It affects shifting, ABS and the speedometer.",
		DIYPossible: false,
	},
	"P0700": {
		Meaning:     "Transmission Control System Malfunction",
		Description: "The transmission controller has stored its own fault. It needs a transmission-capable scan tool to read the underlying code.",
		DIYPossible: false,
	},
	"C0035": {
		Meaning:     "Left Front Wheel Speed Sensor Circuit",
		Description: "The ABS module sees a fault in the left front wheel speed sensor circuit. ABS and traction control may be disabled.",
		DIYPossible: false,
	},
	"B0001": {
		Meaning:     "Driver Frontal Stage 1 Deployment Control",
		Description: "A fault in the driver airbag deployment circuit. Airbag systems must only be serviced by a qualified technician.",
		DIYPossible: false,
	},
	"U0100": {
		Meaning:     "Lost Communication With ECM/PCM A",
		Description: "Modules on the vehicle network cannot talk to the engine computer. Wiring, power supply or the module itself may be at fault.",
		DIYPossible: false,
	},
}

// LoadCodes reads a YAML code table from path and merges it over base.
// Entries in the file replace entries with the same code.
func LoadCodes(path string, base map[string]CodeInfo) (map[string]CodeInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return ParseCodes(data, base)
}

// ParseCodes decodes a YAML mapping of code to CodeInfo and merges it over base.
func ParseCodes(data []byte, base map[string]CodeInfo) (map[string]CodeInfo, error) {
	var file map[string]CodeInfo
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("rules: parse code table: %w", err)
	}
	out := make(map[string]CodeInfo, len(base)+len(file))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range file {
		code := strings.ToUpper(strings.TrimSpace(k))
		if !codePattern.MatchString(code) || len(code) != 5 {
			return nil, fmt.Errorf("rules: %q is not a trouble code", k)
		}
		out[code] = v
	}
	return out, nil
}
