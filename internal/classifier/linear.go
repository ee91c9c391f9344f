package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"posturewatch/internal/features"
)

// LinearModel is a softmax-regression model: logits = W·x + b.
type LinearModel struct {
	id     string
	w      *mat.Dense
	b      *mat.VecDense
	means  features.Vector
	labels []string
}

type linearFile struct {
	ID           string      `json:"id"`
	Labels       []string    `json:"labels"`
	FeatureMeans []float64   `json:"feature_means"`
	Weights      [][]float64 `json:"weights"`
	Bias         []float64   `json:"bias"`
}

// LoadLinearModel reads weights from a JSON file.
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return ParseLinearModel(data)
}

// ParseLinearModel decodes and validates model weights.
func ParseLinearModel(data []byte) (*LinearModel, error) {
	var f linearFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if len(f.Weights) != NumClasses || len(f.Bias) != NumClasses {
		return nil, fmt.Errorf("model %s: want %d weight rows and biases", f.ID, NumClasses)
	}
	raw := make([]float64, 0, NumClasses*features.Count)
	for i, row := range f.Weights {
		if len(row) != features.Count {
			return nil, fmt.Errorf("model %s: weight row %d has %d columns, want %d", f.ID, i, len(row), features.Count)
		}
		raw = append(raw, row...)
	}

	m := &LinearModel{
		id:     f.ID,
		w:      mat.NewDense(NumClasses, features.Count, raw),
		b:      mat.NewVecDense(NumClasses, f.Bias),
		labels: f.Labels,
	}
	if len(f.FeatureMeans) == features.Count {
		copy(m.means[:], f.FeatureMeans)
	}
	return m, nil
}

// ID returns the model identifier from the weights file.
func (m *LinearModel) ID() string { return m.id }

// FeatureMeans returns the training set feature means.
func (m *LinearModel) FeatureMeans() features.Vector { return m.means }

// Infer computes logits. NaN inputs contribute nothing.
func (m *LinearModel) Infer(_ context.Context, input []float64) ([]float64, error) {
	if len(input) != features.Count {
		return nil, fmt.Errorf("linear model: input has %d features, want %d", len(input), features.Count)
	}
	x := make([]float64, len(input))
	for i, v := range input {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			x[i] = v
		}
	}
	var out mat.VecDense
	out.MulVec(m.w, mat.NewVecDense(len(x), x))
	out.AddVec(&out, m.b)
	return out.RawVector().Data, nil
}

var (
	_ Model         = (*LinearModel)(nil)
	_ FeatureMeaner = (*LinearModel)(nil)
)
