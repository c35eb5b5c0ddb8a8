package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/insurekit/core"
)

// TreeEnsemble 是梯度提升树模型（XGBoost dump_model JSON 格式）的本地实现。
//
// 文件格式：
//
//	{
//	  "kind": "xgboost",
//	  "objective": "reg:squarederror",
//	  "base_score": 0.5,
//	  "feature_names": ["age", "sex", ...],
//	  "trees": [ {"nodeid": 0, "split": "age", "split_condition": 40, "yes": 1, "no": 2, "missing": 1,
//	              "children": [{"nodeid": 1, "leaf": 0.1}, {"nodeid": 2, "leaf": 0.3}]} ]
//	}
//
// 预测：margin = base_margin + sum(leaf)，logistic 目标再做 sigmoid。
// 分裂规则：x < split_condition 走 yes，否则走 no，缺失值（NaN）走 missing。
type TreeEnsemble struct {
	Objective  string
	BaseScore  float64
	NumFeature int
	trees      []*tree
}

type treeNode struct {
	NodeID         int         `json:"nodeid"`
	Split          string      `json:"split"`
	SplitCondition float64     `json:"split_condition"`
	Yes            int         `json:"yes"`
	No             int         `json:"no"`
	Missing        int         `json:"missing"`
	Leaf           *float64    `json:"leaf"`
	Children       []*treeNode `json:"children"`
}

// tree 是扁平化后的树，nodes 以 nodeid 为下标
type tree struct {
	nodes []flatNode
}

type flatNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	yes       int
	no        int
	missing   int
}

const (
	objectiveSquaredError = "reg:squarederror"
	objectiveLogistic     = "reg:logistic"
	objectiveBinaryLogit  = "binary:logistic"
)

func init() {
	Register(KindXGBoost, buildTreeEnsemble)
}

func buildTreeEnsemble(raw json.RawMessage, opts BuildOptions) (Regressor, error) {
	var m struct {
		Objective    string      `json:"objective"`
		BaseScore    *float64    `json:"base_score"`
		FeatureNames []string    `json:"feature_names"`
		Trees        []*treeNode `json:"trees"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, core.WrapError(core.ModuleModel, core.ErrorCodeInvalidInput, "model: parse xgboost model", err)
	}
	if len(m.Trees) == 0 {
		return nil, invalidModel("xgboost model has no trees")
	}

	names := m.FeatureNames
	if len(names) == 0 {
		names = opts.FeatureNames
	}
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	e := &TreeEnsemble{Objective: m.Objective, BaseScore: 0.5, NumFeature: len(names)}
	if e.Objective == "" {
		e.Objective = objectiveSquaredError
	}
	switch e.Objective {
	case objectiveSquaredError, objectiveLogistic, objectiveBinaryLogit:
	default:
		return nil, invalidModel(fmt.Sprintf("unsupported xgboost objective %q", e.Objective))
	}
	if m.BaseScore != nil {
		e.BaseScore = *m.BaseScore
	}

	for i, root := range m.Trees {
		t, maxFeature, err := flatten(root, index)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		if maxFeature+1 > e.NumFeature {
			e.NumFeature = maxFeature + 1
		}
		e.trees = append(e.trees, t)
	}
	return e, nil
}

// flatten 把嵌套的 dump 结构展开为按 nodeid 寻址的数组
func flatten(root *treeNode, index map[string]int) (*tree, int, error) {
	var all []*treeNode
	stack := []*treeNode{root}
	maxID := 0
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			return nil, 0, invalidModel("null tree node")
		}
		all = append(all, n)
		if n.NodeID > maxID {
			maxID = n.NodeID
		}
		stack = append(stack, n.Children...)
	}

	t := &tree{nodes: make([]flatNode, maxID+1)}
	seen := make([]bool, maxID+1)
	maxFeature := -1
	for _, n := range all {
		if n.NodeID < 0 || seen[n.NodeID] {
			return nil, 0, invalidModel(fmt.Sprintf("duplicate or negative nodeid %d", n.NodeID))
		}
		seen[n.NodeID] = true
		if n.Leaf != nil {
			t.nodes[n.NodeID] = flatNode{leaf: true, value: *n.Leaf}
			continue
		}
		feature, err := resolveFeature(n.Split, index)
		if err != nil {
			return nil, 0, err
		}
		if feature > maxFeature {
			maxFeature = feature
		}
		t.nodes[n.NodeID] = flatNode{
			feature:   feature,
			threshold: n.SplitCondition,
			yes:       n.Yes,
			no:        n.No,
			missing:   n.Missing,
		}
	}
	for id, n := range t.nodes {
		if !seen[id] {
			return nil, 0, invalidModel(fmt.Sprintf("nodeid %d is not defined", id))
		}
		if n.leaf {
			continue
		}
		for _, child := range []int{n.yes, n.no, n.missing} {
			if child <= id || child > maxID {
				return nil, 0, invalidModel(fmt.Sprintf("node %d points to unknown child %d", id, child))
			}
		}
	}
	return t, maxFeature, nil
}

// resolveFeature 支持按名称引用（训练时带列名）和 f<idx> 形式
func resolveFeature(split string, index map[string]int) (int, error) {
	if i, ok := index[split]; ok {
		return i, nil
	}
	if strings.HasPrefix(split, "f") {
		if i, err := strconv.Atoi(split[1:]); err == nil && i >= 0 {
			return i, nil
		}
	}
	return 0, invalidModel(fmt.Sprintf("unknown split feature %q", split))
}

func (t *tree) leafValue(row []float64) float64 {
	id := 0
	for {
		n := &t.nodes[id]
		if n.leaf {
			return n.value
		}
		v := row[n.feature]
		switch {
		case math.IsNaN(v):
			id = n.missing
		case v < n.threshold:
			id = n.yes
		default:
			id = n.no
		}
	}
}

func (e *TreeEnsemble) Name() string { return KindXGBoost }

func (e *TreeEnsemble) Predict(ctx context.Context, x mat.Matrix) ([]float64, error) {
	rows, cols := x.Dims()
	if cols < e.NumFeature {
		return nil, invalidModel(fmt.Sprintf("xgboost model expects %d features, got %d", e.NumFeature, cols))
	}

	logistic := e.Objective != objectiveSquaredError
	base := e.BaseScore
	if logistic {
		base = math.Log(e.BaseScore / (1 - e.BaseScore))
	}

	preds := make([]float64, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		mat.Row(row, i, x)
		margin := base
		for _, t := range e.trees {
			margin += t.leafValue(row)
		}
		if logistic {
			margin = 1 / (1 + math.Exp(-margin))
		}
		preds[i] = margin
	}
	return preds, nil
}
