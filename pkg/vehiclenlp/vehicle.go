// Package vehiclenlp picks a vehicle make, model and year out of free text
// so prompts and stored turns can be tagged with the car being discussed.
package vehiclenlp

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Vehicle is a vehicle mention. Empty fields were not found.
type Vehicle struct {
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Year  int    `json:"year,omitempty"`
}

// String renders the mention as "2019 Honda Civic", skipping missing parts.
func (v Vehicle) String() string {
	var parts []string
	if v.Year > 0 {
		parts = append(parts, strconv.Itoa(v.Year))
	}
	for _, s := range []string{v.Make, v.Model} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

var aliases = map[string]string{
	"chevy": "Chevrolet", "chevrolet": "Chevrolet", "vw": "Volkswagen", "volkswagen": "Volkswagen",
	"merc": "Mercedes-Benz", "benz": "Mercedes-Benz", "mercedes": "Mercedes-Benz", "mercedes-benz": "Mercedes-Benz",
	"toyota": "Toyota", "honda": "Honda", "ford": "Ford", "bmw": "BMW", "audi": "Audi", "nissan": "Nissan",
	"hyundai": "Hyundai", "kia": "Kia", "subaru": "Subaru", "mazda": "Mazda", "jeep": "Jeep", "gmc": "GMC",
	"dodge": "Dodge", "lexus": "Lexus", "tesla": "Tesla", "volvo": "Volvo", "porsche": "Porsche",
	"mitsubishi": "Mitsubishi", "land rover": "Land Rover", "peugeot": "Peugeot", "renault": "Renault",
	"skoda": "Skoda", "suzuki": "Suzuki",
}

var models = map[string][]string{
	"Toyota":        {"Camry", "Corolla", "RAV4", "Highlander", "Tacoma", "Tundra", "Prius", "4Runner", "Yaris", "Hilux", "Land Cruiser"},
	"Honda":         {"Civic", "Accord", "CR-V", "HR-V", "Pilot", "Odyssey", "Jazz"},
	"Ford":          {"F-150", "F-250", "Mustang", "Explorer", "Escape", "Ranger", "Bronco", "Focus", "Fiesta", "Transit"},
	"Chevrolet":     {"Silverado", "Equinox", "Malibu", "Tahoe", "Camaro", "Colorado", "Cruze", "Spark"},
	"BMW":           {"3 Series", "5 Series", "X1", "X3", "X5", "M3"},
	"Mercedes-Benz": {"A-Class", "C-Class", "E-Class", "S-Class", "GLC", "GLE", "Sprinter"},
	"Audi":          {"A3", "A4", "A6", "Q3", "Q5", "Q7"},
	"Nissan":        {"Altima", "Sentra", "Rogue", "Qashqai", "Micra", "Navara", "Leaf"},
	"Hyundai":       {"Elantra", "Sonata", "Tucson", "Santa Fe", "Kona", "i10", "i20"},
	"Kia":           {"Sportage", "Sorento", "Telluride", "Picanto", "Rio", "Ceed"},
	"Volkswagen":    {"Golf", "Jetta", "Polo", "Passat", "Tiguan", "Beetle"},
	"Subaru":        {"Outback", "Forester", "Impreza", "WRX"},
	"Mazda":         {"Mazda3", "CX-5", "CX-30", "MX-5"},
	"Jeep":          {"Wrangler", "Grand Cherokee", "Cherokee", "Compass"},
	"GMC":           {"Sierra", "Yukon"},
	"Dodge":         {"Charger", "Challenger", "Durango"},
	"Lexus":         {"RX", "ES", "NX", "IS"},
	"Tesla":         {"Model 3", "Model Y", "Model S", "Model X"},
	"Volvo":         {"XC90", "XC60", "XC40", "S60"},
	"Porsche":       {"911", "Cayenne", "Macan"},
	"Mitsubishi":    {"Outlander", "Lancer", "Pajero"},
	"Land Rover":    {"Range Rover", "Defender", "Discovery"},
	"Suzuki":        {"Swift", "Vitara", "Alto"},
	"Skoda":         {"Octavia", "Fabia", "Superb"},
	"Renault":       {"Clio", "Megane", "Duster"},
	"Peugeot":       {"208", "308", "3008"},
}

var (
	makeRe      *regexp.Regexp
	yearRe      = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	shortYearRe = regexp.MustCompile(`'(\d{2})\b`)
	// standalone maps a lower-cased model name to its make, for models
	// that identify the make without it being mentioned.
	standalone = map[string]string{}
	// everyday words that are also model names; these only count after a make.
	commonWords = map[string]bool{
		"spark": true, "escape": true, "focus": true, "charger": true, "compass": true, "leaf": true,
		"swift": true, "superb": true, "discovery": true, "defender": true, "ranger": true, "pilot": true,
		"transit": true, "alto": true, "golf": true, "beetle": true, "jazz": true, "model 3": true,
		"model y": true, "model s": true, "model x": true,
	}
)

func init() {
	names := make([]string, 0, len(aliases))
	for a := range aliases {
		names = append(names, regexp.QuoteMeta(a))
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	makeRe = regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)(?:'s)?\b`)

	for mk, ms := range models {
		sortLongestFirst(ms)
		for _, m := range ms {
			lm := strings.ToLower(m)
			if _, err := strconv.Atoi(m); err == nil || len(m) < 4 || commonWords[lm] {
				continue
			}
			standalone[lm] = mk
		}
	}
}

func sortLongestFirst(s []string) {
	sort.SliceStable(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
}

// Extract returns the first vehicle mentioned in text.
func Extract(text string) (Vehicle, bool) {
	var v Vehicle
	lower := strings.ToLower(text)
	if loc := makeRe.FindStringSubmatchIndex(lower); loc != nil {
		v.Make = aliases[lower[loc[2]:loc[3]]]
		v.Model = findModel(lower[loc[1]:], models[v.Make])
	} else {
		v.Make, v.Model = findStandalone(lower)
	}
	v.Year = findYear(lower)
	return v, v.Make != "" || v.Model != ""
}

func findModel(s string, candidates []string) string {
	best, at := "", -1
	for _, m := range candidates {
		i := wordIndex(s, strings.ToLower(m))
		if i >= 0 && (at < 0 || i < at) {
			best, at = m, i
		}
	}
	return best
}

func findStandalone(s string) (mk, model string) {
	at := -1
	for m, owner := range standalone {
		i := wordIndex(s, m)
		if i < 0 || (at >= 0 && (i > at || (i == at && len(m) <= len(model)))) {
			continue
		}
		at, mk = i, owner
		model = canonical(owner, m)
	}
	return mk, model
}

func canonical(mk, lower string) string {
	for _, m := range models[mk] {
		if strings.ToLower(m) == lower {
			return m
		}
	}
	return lower
}

// wordIndex finds w in s where it is not part of a longer alphanumeric word.
func wordIndex(s, w string) int {
	for off := 0; off <= len(s)-len(w); {
		i := strings.Index(s[off:], w)
		if i < 0 {
			return -1
		}
		i += off
		end := i + len(w)
		if (i == 0 || !alnum(s[i-1])) && (end == len(s) || !alnum(s[end])) {
			return i
		}
		off = i + 1
	}
	return -1
}

func alnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

func findYear(s string) int {
	if m := yearRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	if m := shortYearRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		if y <= 40 {
			return 2000 + y
		}
		return 1900 + y
	}
	return 0
}
