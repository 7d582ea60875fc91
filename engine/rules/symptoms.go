package rules

// SymptomGuard is a keyword-triggered category with a canned diagnosis and
// clarifying questions.
type SymptomGuard struct {
	Name        string
	Keywords    []string
	Diagnosis   string
	Explanation string
	Questions   []string
	Floor       float64
}

// DefaultGuards is ordered by priority: the first matching category wins.
// Gear comes before brakes so that "grinding when I change gears" is read as
// a gearbox symptom rather than a brake one.
var DefaultGuards = []SymptomGuard{
	{
		Name:        "gear_issue",
		Keywords:    []string{"change gear", "changing gear", "shift gear", "shifting", "gearbox", "clutch", "into gear", "gears"},
		Diagnosis:   "Difficulty changing gears",
		Explanation: "Trouble selecting gears usually comes from the clutch not fully disengaging, low clutch hydraulic fluid, worn synchros or linkage problems.",
		Questions: []string{
			"Does the car creep forward when the clutch pedal is fully pressed?",
			"Does pumping the clutch pedal a few times make it easier to select a gear?",
			"Can you select gears normally with the engine switched off?",
			"Did this start suddenly or get worse gradually?",
		},
		Floor: 0.75,
	},
	{
		Name:        "brake_issue",
		Keywords:    []string{"brake", "braking", "squeaking", "grinding", "spongy pedal", "soft pedal"},
		Diagnosis:   "Braking issue detected",
		Explanation: "Brake noises or changes in pedal feel usually indicate pad wear or a hydraulic system problem.",
		Questions: []string{
			"Do you hear the noise only while braking or all the time?",
			"Does the brake pedal feel soft, spongy or unusually hard?",
			"Is any brake or ABS warning light on?",
		},
		Floor: 0.8,
	},
	{
		Name:        "starting_issue",
		Keywords:    []string{"won't start", "wont start", "not starting", "hard start", "long crank", "no start", "starting problem", "stalls", "stalling"},
		Diagnosis:   "Starting difficulty detected",
		Explanation: "Starting issues are commonly related to the battery, fuel delivery or the ignition system.",
		Questions: []string{
			"Does the engine crank normally, slowly, or not at all?",
			"Do the dashboard lights come on when you turn the key?",
			"Does it start better when the engine is cold or warm?",
		},
		Floor: 0.7,
	},
	{
		Name:        "smoke_issue",
		Keywords:    []string{"smoke", "smoking", "steam"},
		Diagnosis:   "Smoke or steam observed",
		Explanation: "Smoke colour and timing help tell whether fuel, oil or coolant is burning.",
		Questions: []string{
			"What colour is the smoke: white, blue or black?",
			"Does it happen at startup or while driving?",
			"Is the temperature gauge or any warning light higher than usual?",
		},
		Floor: 0.75,
	},
	{
		Name:        "smell_issue",
		Keywords:    []string{"burning smell", "fuel smell", "petrol smell", "gas smell", "diesel smell", "rubber smell", "plastic smell", "smells"},
		Diagnosis:   "Unusual smell detected",
		Explanation: "Unusual smells may indicate a fuel leak, an overheating component or an electrical fault.",
		Questions: []string{
			"Does the smell come from inside or outside the car?",
			"Is it stronger after driving or while idling?",
			"Do you notice any smoke along with the smell?",
		},
		Floor: 0.75,
	},
	{
		Name:        "warning_lights",
		Keywords:    []string{"check engine", "warning light", "engine light", "dashboard light", "abs light", "battery light", "oil light"},
		Diagnosis:   "Dashboard warning light detected",
		Explanation: "Warning lights mean a control module has detected an abnormal condition and usually stored a trouble code.",
		Questions: []string{
			"Which warning light is on?",
			"Is it steady or blinking?",
			"Can you read the stored trouble code with an OBD-II scanner?",
		},
		Floor: 0.7,
	},
	{
		Name:        "power_loss",
		Keywords:    []string{"loss of power", "losing power", "sluggish", "slow pickup", "not accelerating", "no power", "hesitation", "limp mode"},
		Diagnosis:   "Reduced engine performance",
		Explanation: "Loss of power can be caused by fuel delivery, air intake, ignition or exhaust restrictions.",
		Questions: []string{
			"Does the car feel weak only during acceleration?",
			"Does it improve at higher speeds?",
			"Are any warning lights on the dashboard?",
		},
		Floor: 0.6,
	},
	{
		Name:        "engine_vibration",
		Keywords:    []string{"vibration", "vibrating", "shaking", "judder", "trembling", "rough idle"},
		Diagnosis:   "Engine vibration or rough running",
		Explanation: "Vibration usually indicates uneven combustion, worn engine mounts or a drivetrain imbalance.",
		Questions: []string{
			"Does the vibration happen at idle or while driving?",
			"Does it get worse when accelerating?",
			"Do you feel it more in the steering wheel or the seat?",
		},
		Floor: 0.6,
	},
	{
		Name:        "engine_noise",
		Keywords:    []string{"engine noise", "engine sound", "knocking", "rattling", "rumbling", "ticking", "whining", "noise"},
		Diagnosis:   "Unusual engine noise",
		Explanation: "A change in engine sound often points to the exhaust, air intake, valvetrain or accessory drive.",
		Questions: []string{
			"Is the sound louder when you accelerate?",
			"Does it change with engine RPM or with road speed?",
			"Does it come from the front, middle or rear of the car?",
		},
		Floor: 0.6,
	},
}
