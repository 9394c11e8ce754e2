package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter は教師ありで学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は (n, 1) の列ベクトル
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// ProbabilisticClassifier は確率を出力する分類器のインターフェース
type ProbabilisticClassifier interface {
	Fitter
	Predictor

	// PredictProba returns an (n, nClasses) matrix of class probabilities.
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// OutlierDetector は教師なし異常検知器のインターフェース
type OutlierDetector interface {
	// Fit learns the notion of normality from X.
	Fit(X mat.Matrix) error

	// ScoreSamples returns a raw score per row; lower means more anomalous.
	ScoreSamples(X mat.Matrix) (*mat.VecDense, error)

	// DecisionFunction returns ScoreSamples shifted by the fitted offset;
	// negative values are anomalies.
	DecisionFunction(X mat.Matrix) (*mat.VecDense, error)
}

// Resampler rebalances a training set before a classifier is fitted.
// Implementations must leave X and y untouched and return new matrices.
type Resampler interface {
	Resample(X, y mat.Matrix) (*mat.Dense, *mat.Dense, error)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}
