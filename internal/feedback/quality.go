package feedback

// Quality defaults.
const (
	DefaultMinSamples    = 3
	DefaultMinMultiplier = 0.5
	DefaultMaxMultiplier = 1.5

	// signalGain scales the mean signal into the multiplier range.
	signalGain = 0.5
)

// Bounds are the quality parameters.
type Bounds struct {
	MinSamples    int
	MinMultiplier float64
	MaxMultiplier float64
}

// DefaultBounds returns the built-in parameters.
func DefaultBounds() Bounds {
	return Bounds{
		MinSamples:    DefaultMinSamples,
		MinMultiplier: DefaultMinMultiplier,
		MaxMultiplier: DefaultMaxMultiplier,
	}
}

func (b Bounds) withDefaults() Bounds {
	def := DefaultBounds()
	if b.MinSamples <= 0 {
		b.MinSamples = def.MinSamples
	}
	if b.MinMultiplier <= 0 {
		b.MinMultiplier = def.MinMultiplier
	}
	if b.MaxMultiplier <= 0 || b.MaxMultiplier < b.MinMultiplier {
		b.MaxMultiplier = def.MaxMultiplier
	}
	return b
}

// Multiplier maps a history summary to a quality multiplier. Below the
// minimum sample count the result is neutral.
func (b Bounds) Multiplier(s Summary) float64 {
	if s.Samples < b.MinSamples {
		return 1.0
	}
	return b.Clamp(1 + signalGain*s.Mean)
}

// Clamp bounds m to [MinMultiplier, MaxMultiplier].
func (b Bounds) Clamp(m float64) float64 {
	return min(max(m, b.MinMultiplier), b.MaxMultiplier)
}
