package cycle

import (
	"fmt"
	"math/rand"

	"github.com/example/evoloop/internal/models"
)

// Sample draws n instances uniformly with replacement, so a batch may hold
// the same instance more than once. The caller owns rng.
func Sample(rng *rand.Rand, pool []models.TaskInstance, n int) ([]models.TaskInstance, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("benchmark corpus is empty")
	}
	if n < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", n)
	}
	out := make([]models.TaskInstance, n)
	for i := range out {
		out[i] = pool[rng.Intn(len(pool))]
	}
	return out, nil
}
