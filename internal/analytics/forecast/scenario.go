package forecast

// DefaultBand is the fixed scenario spread around the base forecast.
const DefaultBand = 0.10

// Scenario is a base forecast with optimistic and pessimistic bands. The
// bands are a fixed percentage heuristic, not a statistical interval.
type Scenario struct {
	Base        []float64 `json:"base"`
	Optimistic  []float64 `json:"optimistic"`
	Pessimistic []float64 `json:"pessimistic"`
}

// BuildScenario moves each base value up by the fraction up and down by the
// fraction down.
func BuildScenario(base []float64, up, down float64) Scenario {
	s := Scenario{
		Base:        append([]float64(nil), base...),
		Optimistic:  make([]float64, len(base)),
		Pessimistic: make([]float64, len(base)),
	}
	for i, v := range base {
		s.Optimistic[i] = v + v*up
		s.Pessimistic[i] = v - v*down
	}
	return s
}

// DefaultScenario applies the ±10% band.
func DefaultScenario(base []float64) Scenario {
	return BuildScenario(base, DefaultBand, DefaultBand)
}
