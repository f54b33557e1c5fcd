// Package risk holds the risk register and the impact × likelihood scoring
// used to bucket inherent and residual risk.
package risk

// Level is the qualitative risk bucket.
type Level string

const (
	LevelLow       Level = "Rendah"
	LevelMedium    Level = "Menengah"
	LevelHigh      Level = "Tinggi"
	LevelCritical  Level = "Sangat Tinggi"
	LevelUndefined Level = "-"
)

// Levels lists the defined buckets from lowest to highest.
var Levels = []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical}

// Score factor bounds.
const (
	MinFactor = 1
	MaxFactor = 5
)

// Assessment is a derived besaran and its level. Besaran is nil when either
// factor is missing or out of range.
type Assessment struct {
	Besaran *int  `json:"besaran"`
	Level   Level `json:"level"`
}

// Score multiplies impact and likelihood and buckets the product.
func Score(impact, likelihood *int) Assessment {
	if !validFactor(impact) || !validFactor(likelihood) {
		return Assessment{Level: LevelUndefined}
	}
	b := *impact * *likelihood
	return Assessment{Besaran: &b, Level: LevelFor(b)}
}

// LevelFor maps a besaran to its bucket.
func LevelFor(besaran int) Level {
	switch {
	case besaran >= 20:
		return LevelCritical
	case besaran >= 12:
		return LevelHigh
	case besaran >= 5:
		return LevelMedium
	case besaran > 0:
		return LevelLow
	default:
		return LevelUndefined
	}
}

// ValidLevel reports whether s names a defined bucket.
func ValidLevel(s string) bool {
	for _, l := range Levels {
		if string(l) == s {
			return true
		}
	}
	return s == string(LevelUndefined)
}

func validFactor(v *int) bool {
	return v != nil && *v >= MinFactor && *v <= MaxFactor
}
