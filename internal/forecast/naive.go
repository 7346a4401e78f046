package forecast

import (
	"fmt"

	"github.com/redispatch/curtailcast/internal/models"
)

// NaivePredict returns the observation lag steps before the end of history.
func NaivePredict(history []float64, lag int) (float64, error) {
	if lag < 1 {
		return 0, fmt.Errorf("%w: lag must be at least 1, got %d", models.ErrConfiguration, lag)
	}
	if len(history) < lag {
		return 0, fmt.Errorf("%w: naive lag %d needs at least %d prior observations, have %d",
			models.ErrConfiguration, lag, lag, len(history))
	}
	return history[len(history)-lag], nil
}
