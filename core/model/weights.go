package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ModelWeights は線形モデルの重みを表す構造体（レポート出力用）
type ModelWeights struct {
	// ModelType はモデルの種類（LogisticRegression等）
	ModelType string `json:"model_type"`

	// Coefficients は重み係数。Features と同じ順序
	Coefficients []float64 `json:"coefficients"`

	// Intercept は切片
	Intercept float64 `json:"intercept"`

	// Features はエンコード後の特徴量名
	Features []string `json:"features,omitempty"`

	// Hyperparameters はモデルのハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`
}

// FeatureWeight pairs a feature name with its coefficient.
type FeatureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(mw, "", "  ")
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	return json.Unmarshal(data, mw)
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return fmt.Errorf("model_type is required")
	}
	if len(mw.Coefficients) == 0 {
		return fmt.Errorf("fitted model must have coefficients")
	}
	if len(mw.Features) > 0 && len(mw.Features) != len(mw.Coefficients) {
		return fmt.Errorf("features (%d) and coefficients (%d) differ in length", len(mw.Features), len(mw.Coefficients))
	}
	return nil
}

// Top returns the n features with the largest absolute coefficient,
// strongest first. Ties keep feature order.
func (mw *ModelWeights) Top(n int) []FeatureWeight {
	out := make([]FeatureWeight, len(mw.Coefficients))
	for i, w := range mw.Coefficients {
		name := fmt.Sprintf("x%d", i)
		if i < len(mw.Features) {
			name = mw.Features[i]
		}
		out[i] = FeatureWeight{Feature: name, Weight: w}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].Weight) > abs(out[j].Weight)
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
