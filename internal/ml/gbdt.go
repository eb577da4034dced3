package ml

import (
	"errors"
	"fmt"
	"math"
)

// TreeNode is one node of a regression tree, stored in a flat slice. A node with a
// Leaf value is terminal; otherwise x[Feature] <= Threshold goes to Left and larger
// values go to Right. Missing (NaN) inputs follow DefaultLeft.
type TreeNode struct {
	Feature     int      `json:"feature,omitempty"`
	Threshold   float64  `json:"threshold,omitempty"`
	Left        int      `json:"left,omitempty"`
	Right       int      `json:"right,omitempty"`
	DefaultLeft bool     `json:"default_left,omitempty"`
	Leaf        *float64 `json:"leaf,omitempty"`
}

// Tree is a single boosted tree. Nodes[0] is the root.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// GBDTClassifier is a binary-logistic gradient-boosted tree ensemble exported to
// JSON. The positive-class probability is sigmoid(BaseScore + sum of leaf values).
type GBDTClassifier struct {
	Objective   string  `json:"objective"`
	NumFeature  int     `json:"num_features"`
	BaseScore   float64 `json:"base_score"`
	Trees       []Tree  `json:"trees"`
	DecisionCut float64 `json:"decision_threshold,omitempty"`
}

const objectiveBinary = "binary"

func (m *GBDTClassifier) validate() error {
	if m.Objective != "" && m.Objective != objectiveBinary {
		return fmt.Errorf("unsupported objective %q", m.Objective)
	}
	if m.NumFeature <= 0 {
		return errors.New("model declares no features")
	}
	if len(m.Trees) == 0 {
		return errors.New("model has no trees")
	}
	if m.DecisionCut < 0 || m.DecisionCut >= 1 {
		return fmt.Errorf("decision threshold %v out of range", m.DecisionCut)
	}
	for t, tree := range m.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", t)
		}
		for i, n := range tree.Nodes {
			if n.Leaf != nil {
				continue
			}
			if n.Feature < 0 || n.Feature >= m.NumFeature {
				return fmt.Errorf("tree %d node %d: feature %d out of range", t, i, n.Feature)
			}
			// Children always come after their parent, which also rules out cycles.
			if n.Left <= i || n.Left >= len(tree.Nodes) || n.Right <= i || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: invalid children %d/%d", t, i, n.Left, n.Right)
			}
		}
	}
	return nil
}

// NumFeatures implements Classifier.
func (m *GBDTClassifier) NumFeatures() int { return m.NumFeature }

// Predict implements Classifier.
func (m *GBDTClassifier) Predict(x []float64) (int, []float64, error) {
	if len(x) != m.NumFeature {
		return 0, nil, fmt.Errorf("expected %d features, got %d", m.NumFeature, len(x))
	}
	margin := m.BaseScore
	for i := range m.Trees {
		margin += m.Trees[i].eval(x)
	}
	if math.IsNaN(margin) || math.IsInf(margin, 0) {
		return 0, nil, fmt.Errorf("model produced non-finite margin %v", margin)
	}

	p := sigmoid(margin)
	cut := m.DecisionCut
	if cut == 0 {
		cut = 0.5
	}
	class := 0
	if p > cut {
		class = 1
	}
	return class, []float64{1 - p, p}, nil
}

func (t *Tree) eval(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf != nil {
			return *n.Leaf
		}
		v := x[n.Feature]
		switch {
		case math.IsNaN(v):
			if n.DefaultLeft {
				i = n.Left
			} else {
				i = n.Right
			}
		case v <= n.Threshold:
			i = n.Left
		default:
			i = n.Right
		}
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
