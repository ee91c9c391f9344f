// Package classifier turns calibrated feature vectors into posture labels.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"posturewatch/internal/calibration"
	"posturewatch/internal/features"
)

// ErrModelInference wraps every failure of the inference backend.
var ErrModelInference = errors.New("classifier: model inference failed")

// Label is the model output class.
type Label int

// Class indices produced by the posture model.
const (
	Sitting Label = iota
	Lying
	Standing
)

// NumClasses is the number of model outputs.
const NumClasses = 3

func (l Label) String() string {
	switch l {
	case Sitting:
		return "sitting"
	case Lying:
		return "lying"
	case Standing:
		return "standing"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

// Model is an opaque pre-trained function from features to logits.
type Model interface {
	Infer(ctx context.Context, input []float64) ([]float64, error)
}

// FeatureMeaner is implemented by models that carry the training set means.
type FeatureMeaner interface {
	FeatureMeans() features.Vector
}

// Result holds the arg-max label and the softmax distribution.
type Result struct {
	Label         Label
	Probabilities []float64
}

// Confidence is the probability of the chosen label.
func (r Result) Confidence() float64 {
	if int(r.Label) < len(r.Probabilities) {
		return r.Probabilities[r.Label]
	}
	return 0
}

const sumFloor = 1e-12

// Classifier applies calibration, runs the model and normalises logits.
// Calibration is fixed at construction.
type Classifier struct {
	model   Model
	profile calibration.Profile
	global  features.Vector
	logger  zerolog.Logger
}

// New builds a classifier. When the model exposes training means they are
// used as the global reference for calibration scaling.
func New(model Model, profile calibration.Profile, logger zerolog.Logger) *Classifier {
	c := &Classifier{
		model:   model,
		profile: profile,
		logger:  logger.With().Str("component", "classifier").Logger(),
	}
	if fm, ok := model.(FeatureMeaner); ok {
		c.global = fm.FeatureMeans()
	}
	return c
}

// Profile returns the calibration in use.
func (c *Classifier) Profile() calibration.Profile { return c.profile }

// Classify scales v, infers and returns the most likely posture.
func (c *Classifier) Classify(ctx context.Context, v features.Vector) (Result, error) {
	input := c.profile.Apply(v, c.global)

	logits, err := c.model.Infer(ctx, input.Slice())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrModelInference, err)
	}
	if len(logits) != NumClasses {
		return Result{}, fmt.Errorf("%w: got %d logits, want %d", ErrModelInference, len(logits), NumClasses)
	}

	probs := Softmax(logits)
	res := Result{Label: Label(Argmax(probs)), Probabilities: probs}
	c.logger.Debug().
		Stringer("label", res.Label).
		Floats64("probs", probs).
		Int("missing_features", v.Missing()).
		Msg("window classified")
	return res, nil
}

// Softmax normalises logits with the max subtracted; the denominator is
// floored so degenerate input never divides by zero.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	m := math.Inf(-1)
	for _, l := range logits {
		if l > m {
			m = l
		}
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - m)
		sum += out[i]
	}
	sum = math.Max(sum, sumFloor)
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Argmax returns the index of the largest value; ties go to the lowest index.
func Argmax(x []float64) int {
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}
