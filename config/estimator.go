package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Matching thresholds and estimating defaults. Shops differ on all of these,
// so everything here is env-tunable with working defaults.
//
// Env overrides (optional):
// - AUTO_MATCH_THRESHOLD (default 85)
// - REVIEW_THRESHOLD (default 70)
// - DEFAULT_LABOR_RATE (default 80.00, per hour)
// - DEFAULT_MARKUP_PCT (default 15.00)

func AutoMatchThreshold() int {
	return intFromEnv("AUTO_MATCH_THRESHOLD", 85)
}

func ReviewThreshold() int {
	return intFromEnv("REVIEW_THRESHOLD", 70)
}

func DefaultLaborRate() decimal.Decimal {
	return decimalFromEnv("DEFAULT_LABOR_RATE", decimal.NewFromFloat(80.00))
}

func DefaultMarkupPct() decimal.Decimal {
	return decimalFromEnv("DEFAULT_MARKUP_PCT", decimal.NewFromFloat(15.00))
}

func decimalFromEnv(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}

// ComponentClasses is the closed set of classification tags the detection
// pipeline emits. Unknown tags fall back to OTHER.
var ComponentClasses = []string{
	"MCB", "MCCB", "ACB", "RCD", "RCBO",
	"CONTACTOR", "RELAY", "TIMER",
	"SWITCH", "ISOLATOR", "PUSHBUTTON",
	"BUSBAR", "TERMINAL",
	"METER", "AMMETER", "VOLTMETER",
	"PANEL", "ENCLOSURE",
	"OTHER",
}

// laborEstimates is hours per single installed component, by class.
var laborEstimates = map[string]float64{
	"MCB":       0.25,
	"MCCB":      0.5,
	"ACB":       1.5,
	"CONTACTOR": 1.0,
	"RELAY":     0.5,
	"BUSBAR":    2.0,
	"METER":     0.75,
	"TERMINAL":  0.1,
	"SWITCH":    0.5,
	"PANEL":     4.0,
	"OTHER":     0.5,
}

// LaborEstimateForClass returns the per-unit labor hours for a component class.
func LaborEstimateForClass(itClass string) decimal.Decimal {
	h, ok := laborEstimates[strings.ToUpper(strings.TrimSpace(itClass))]
	if !ok {
		h = laborEstimates["OTHER"]
	}
	return decimal.NewFromFloat(h)
}

func IsKnownComponentClass(itClass string) bool {
	up := strings.ToUpper(strings.TrimSpace(itClass))
	for _, c := range ComponentClasses {
		if c == up {
			return true
		}
	}
	return false
}
