package ml

import (
	"fmt"
	"math"
)

// Family identifies the estimator implementation of an artifact
type Family string

const (
	FamilyLinear  Family = "linear"
	FamilyForest  Family = "forest"
	FamilyBoosted Family = "boosted"
	FamilyMLP     Family = "mlp"
)

// Task is the prediction task of an artifact
type Task string

const (
	TaskRegression     Task = "regression"
	TaskClassification Task = "classification"
)

type estimator interface {
	predict(x []float64) (float64, error)
	// predictProba returns one probability per label
	predictProba(x []float64, labels int) ([]float64, error)
	validate(features int) error
}

// LinearParams holds one weight row per output. Regression and binary
// logistic models have a single row; multinomial models one per label.
type LinearParams struct {
	Weights    [][]float64 `json:"weights"`
	Intercepts []float64   `json:"intercepts"`
}

func (l *LinearParams) raw(x []float64) []float64 {
	out := make([]float64, len(l.Weights))
	for i, row := range l.Weights {
		sum := l.Intercepts[i]
		for j, w := range row {
			sum += w * x[j]
		}
		out[i] = sum
	}
	return out
}

func (l *LinearParams) predict(x []float64) (float64, error) {
	return l.raw(x)[0], nil
}

func (l *LinearParams) predictProba(x []float64, labels int) ([]float64, error) {
	return toDistribution(l.raw(x), labels)
}

func (l *LinearParams) validate(features int) error {
	if len(l.Weights) == 0 {
		return fmt.Errorf("linear model has no weights")
	}
	if len(l.Intercepts) != len(l.Weights) {
		return fmt.Errorf("linear model has %d intercepts for %d rows", len(l.Intercepts), len(l.Weights))
	}
	for i, row := range l.Weights {
		if len(row) != features {
			return fmt.Errorf("linear row %d has %d weights, want %d", i, len(row), features)
		}
	}
	return nil
}

// TreeNode is a node of a binary regression tree. A negative Feature marks a leaf.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a flattened tree rooted at node 0. Samples with x[feature] <= threshold go left.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

func (t *Tree) eval(x []float64) (float64, error) {
	i := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value, nil
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return 0, fmt.Errorf("tree walk did not reach a leaf")
}

func (t *Tree) validate(features int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= features {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, features)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// EnsembleParams covers both random forests (mean of trees) and gradient
// boosted trees (base score plus learning rate times the sum of trees).
type EnsembleParams struct {
	Trees        []Tree  `json:"trees"`
	BaseScore    float64 `json:"base_score,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`

	boosted bool
}

func (e *EnsembleParams) sum(x []float64) (float64, error) {
	var total float64
	for i := range e.Trees {
		v, err := e.Trees[i].eval(x)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		total += v
	}
	return total, nil
}

func (e *EnsembleParams) predict(x []float64) (float64, error) {
	total, err := e.sum(x)
	if err != nil {
		return 0, err
	}
	if e.boosted {
		return e.BaseScore + e.LearningRate*total, nil
	}
	return total / float64(len(e.Trees)), nil
}

func (e *EnsembleParams) predictProba(x []float64, labels int) ([]float64, error) {
	if labels != 2 {
		return nil, fmt.Errorf("tree ensembles support binary classification only, got %d labels", labels)
	}
	v, err := e.predict(x)
	if err != nil {
		return nil, err
	}
	p := v
	if e.boosted {
		p = sigmoid(v)
	}
	p = math.Min(math.Max(p, 0), 1)
	return []float64{1 - p, p}, nil
}

func (e *EnsembleParams) validate(features int) error {
	if len(e.Trees) == 0 {
		return fmt.Errorf("ensemble has no trees")
	}
	if e.boosted && e.LearningRate == 0 {
		return fmt.Errorf("boosted ensemble needs a learning rate")
	}
	for i := range e.Trees {
		if err := e.Trees[i].validate(features); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// Activation functions for MLP layers
const (
	ActivationIdentity = "identity"
	ActivationReLU     = "relu"
	ActivationTanh     = "tanh"
	ActivationSigmoid  = "sigmoid"
	ActivationSoftmax  = "softmax"
)

// Layer is a dense layer with Weights shaped outputs x inputs
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Biases     []float64   `json:"biases"`
	Activation string      `json:"activation"`
}

// MLPParams is a feed-forward network
type MLPParams struct {
	Layers []Layer `json:"layers"`
}

func (m *MLPParams) forward(x []float64) []float64 {
	act := x
	for _, layer := range m.Layers {
		next := make([]float64, len(layer.Weights))
		for i, row := range layer.Weights {
			sum := layer.Biases[i]
			for j, w := range row {
				sum += w * act[j]
			}
			next[i] = sum
		}
		applyActivation(layer.Activation, next)
		act = next
	}
	return act
}

func (m *MLPParams) predict(x []float64) (float64, error) {
	return m.forward(x)[0], nil
}

func (m *MLPParams) predictProba(x []float64, labels int) ([]float64, error) {
	out := m.forward(x)
	last := m.Layers[len(m.Layers)-1].Activation
	switch {
	case last == ActivationSoftmax && len(out) == labels:
		return out, nil
	case last == ActivationSigmoid && len(out) == 1 && labels == 2:
		return []float64{1 - out[0], out[0]}, nil
	}
	return toDistribution(out, labels)
}

func (m *MLPParams) validate(features int) error {
	if len(m.Layers) == 0 {
		return fmt.Errorf("network has no layers")
	}
	in := features
	for i, layer := range m.Layers {
		if len(layer.Weights) == 0 || len(layer.Biases) != len(layer.Weights) {
			return fmt.Errorf("layer %d has %d biases for %d units", i, len(layer.Biases), len(layer.Weights))
		}
		for _, row := range layer.Weights {
			if len(row) != in {
				return fmt.Errorf("layer %d expects %d inputs, row has %d", i, in, len(row))
			}
		}
		switch layer.Activation {
		case "", ActivationIdentity, ActivationReLU, ActivationTanh, ActivationSigmoid, ActivationSoftmax:
		default:
			return fmt.Errorf("layer %d: unknown activation %q", i, layer.Activation)
		}
		in = len(layer.Weights)
	}
	return nil
}

func applyActivation(name string, v []float64) {
	switch name {
	case ActivationReLU:
		for i := range v {
			if v[i] < 0 {
				v[i] = 0
			}
		}
	case ActivationTanh:
		for i := range v {
			v[i] = math.Tanh(v[i])
		}
	case ActivationSigmoid:
		for i := range v {
			v[i] = sigmoid(v[i])
		}
	case ActivationSoftmax:
		copy(v, softmax(v))
	}
}

// toDistribution turns raw scores into probabilities: a single score is a
// logit for the second of two labels, several scores go through softmax.
func toDistribution(raw []float64, labels int) ([]float64, error) {
	if len(raw) == 1 && labels == 2 {
		p := sigmoid(raw[0])
		return []float64{1 - p, p}, nil
	}
	if len(raw) != labels {
		return nil, fmt.Errorf("estimator produced %d scores for %d labels", len(raw), labels)
	}
	return softmax(raw), nil
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func softmax(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	hi := v[0]
	for _, x := range v[1:] {
		if x > hi {
			hi = x
		}
	}
	var sum float64
	for i, x := range v {
		out[i] = math.Exp(x - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
