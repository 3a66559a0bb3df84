package scoring

// Band is a coarse risk label derived from the final score.
type Band string

const (
	BandVeryHighRisk Band = "very_high_risk"
	BandHighRisk     Band = "high_risk"
	BandModerateRisk Band = "moderate_risk"
	BandLowModerate  Band = "low_moderate_risk"
	BandLowRisk      Band = "low_risk"
	BandVeryLowRisk  Band = "very_low_risk"
	BandExcellent    Band = "excellent"
	BandOutstanding  Band = "outstanding"
)

// Bands lists every band from worst to best.
var Bands = []Band{
	BandVeryHighRisk,
	BandHighRisk,
	BandModerateRisk,
	BandLowModerate,
	BandLowRisk,
	BandVeryLowRisk,
	BandExcellent,
	BandOutstanding,
}

// BandFor maps a final score to its risk band. Lower bounds are inclusive.
func BandFor(score int) Band {
	switch {
	case score >= 900:
		return BandOutstanding
	case score >= 800:
		return BandExcellent
	case score >= 700:
		return BandVeryLowRisk
	case score >= 600:
		return BandLowRisk
	case score >= 500:
		return BandLowModerate
	case score >= 300:
		return BandModerateRisk
	case score >= 100:
		return BandHighRisk
	default:
		return BandVeryHighRisk
	}
}
