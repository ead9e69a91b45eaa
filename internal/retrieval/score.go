package retrieval

import (
	"fmt"

	"articlereview/internal/store"
)

// ScoreMode selects how raw index values become relevance scores.
type ScoreMode string

const (
	// ScoreAuto follows the metric the index reports.
	ScoreAuto ScoreMode = "auto"
	// ScoreIdentity uses the raw value unchanged.
	ScoreIdentity ScoreMode = "identity"
	// ScoreInvert uses 1 - value.
	ScoreInvert ScoreMode = "invert"
)

// ScoreFunc converts one raw neighbor value into a score, higher is better.
type ScoreFunc func(raw float64) float64

// ScoreConverter resolves a mode against the index metric.
func ScoreConverter(mode ScoreMode, metric store.Metric) (ScoreFunc, error) {
	switch mode {
	case ScoreIdentity:
		return identity, nil
	case ScoreInvert:
		return invert, nil
	case ScoreAuto, "":
		if metric == store.MetricDistance {
			return invert, nil
		}
		return identity, nil
	default:
		return nil, fmt.Errorf("unknown score mode %q", mode)
	}
}

func identity(raw float64) float64 { return raw }

func invert(raw float64) float64 { return 1 - raw }
