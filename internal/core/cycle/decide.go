package cycle

import "fmt"

// Reason explains a DECIDE outcome.
type Reason string

const (
	ReasonThreshold Reason = "threshold"
	ReasonBudget    Reason = "budget"
	ReasonContinue  Reason = "continue"
)

// DecideInput is everything DECIDE looks at. Iteration is the number of
// completed iterations including the one being decided.
type DecideInput struct {
	MaxScore  float64
	Iteration int
	Budget    int
	Threshold float64
}

// Decision is the outcome of DECIDE.
type Decision struct {
	Iteration int
	MaxScore  float64
	Terminate bool
	Reason    Reason
}

func (d Decision) String() string {
	return fmt.Sprintf("iteration %d: max score %.3f -> %s", d.Iteration, d.MaxScore, d.Reason)
}

// Decide terminates once the best score reaches the threshold or the
// iteration budget is used up. The threshold wins when both hold.
func Decide(in DecideInput) Decision {
	d := Decision{Iteration: in.Iteration, MaxScore: in.MaxScore}
	switch {
	case in.MaxScore >= in.Threshold:
		d.Terminate = true
		d.Reason = ReasonThreshold
	case in.Iteration >= in.Budget:
		d.Terminate = true
		d.Reason = ReasonBudget
	default:
		d.Reason = ReasonContinue
	}
	return d
}

// MaxScore returns the highest score, or 0 for no scores.
func MaxScore(scores []float64) float64 {
	best := 0.0
	for _, s := range scores {
		if s > best {
			best = s
		}
	}
	return best
}
