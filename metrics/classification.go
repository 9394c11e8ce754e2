// Package metrics は二値分類の評価指標を提供する
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// checkPair は2つのベクトルが非nil・非空・同じ長さであることを確認する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// checkBinary はラベルが0か1のみであることを確認する
func checkBinary(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, fmt.Sprintf("labels must be 0 or 1, got %v at index %d", v, i))
		}
	}
	return nil
}

// AUC はROC曲線下面積を計算する (Mann-Whitney U統計量、同順位は平均順位)
//
// 陽性または陰性のみの場合は定義できないため0.5を返す。
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}

	type pair struct{ score, label float64 }
	pairs := make([]pair, n)
	nPos := 0
	for i := 0; i < n; i++ {
		pairs[i] = pair{yPred.AtVec(i), yTrue.AtVec(i)}
		if pairs[i].label == 1 {
			nPos++
		}
	}
	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}

	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].score < pairs[b].score })

	// 同順位グループに平均順位を与え、陽性の順位和を求める
	rankSumPos := 0.0
	for i := 0; i < n; {
		j := i
		for j < n && pairs[j].score == pairs[i].score {
			j++
		}
		avgRank := float64(i+j+1) / 2.0 // 1-based ranks i+1..j
		for k := i; k < j; k++ {
			if pairs[k].label == 1 {
				rankSumPos += avgRank
			}
		}
		i = j
	}

	u := rankSumPos - float64(nPos)*float64(nPos+1)/2.0
	return u / (float64(nPos) * float64(nNeg)), nil
}

// BinaryLogLoss は二値交差エントロピーを計算する
// log(0) は errors.StabilizeLog により log(1e-15) に置き換えられる。
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		p, y := yPred.AtVec(i), yTrue.AtVec(i)
		sum -= y*errors.StabilizeLog(p) + (1-y)*errors.StabilizeLog(1-p)
	}
	return sum / float64(n), nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ConfusionMatrix は二値の混同行列 [[TN, FP], [FN, TP]] を返す
// 行は正解ラベル、列は予測ラベル (0, 1 の順)。
func ConfusionMatrix(yTrue, yPred *mat.VecDense) ([][]int, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if err := checkBinary("ConfusionMatrix", yTrue); err != nil {
		return nil, err
	}
	if err := checkBinary("ConfusionMatrix", yPred); err != nil {
		return nil, err
	}
	cm := [][]int{{0, 0}, {0, 0}}
	for i := 0; i < n; i++ {
		cm[int(yTrue.AtVec(i))][int(yPred.AtVec(i))]++
	}
	return cm, nil
}

// PrecisionScore は posLabel に対する適合率を計算する
// 予測陽性が0件の場合は0を返し、UndefinedMetricWarning を発生させる。
func PrecisionScore(yTrue, yPred *mat.VecDense, posLabel float64) (float64, error) {
	tp, fp, _, err := counts("PrecisionScore", yTrue, yPred, posLabel)
	if err != nil {
		return 0, err
	}
	return ratio("precision", tp, tp+fp, "no predicted samples"), nil
}

// RecallScore は posLabel に対する再現率を計算する
// 正解陽性が0件の場合は0を返し、UndefinedMetricWarning を発生させる。
func RecallScore(yTrue, yPred *mat.VecDense, posLabel float64) (float64, error) {
	tp, _, fn, err := counts("RecallScore", yTrue, yPred, posLabel)
	if err != nil {
		return 0, err
	}
	return ratio("recall", tp, tp+fn, "no true samples"), nil
}

// F1Score は posLabel に対するF1スコアを計算する
func F1Score(yTrue, yPred *mat.VecDense, posLabel float64) (float64, error) {
	tp, fp, fn, err := counts("F1Score", yTrue, yPred, posLabel)
	if err != nil {
		return 0, err
	}
	return ratio("f1", 2*tp, 2*tp+fp+fn, "no true nor predicted samples"), nil
}

func counts(op string, yTrue, yPred *mat.VecDense, posLabel float64) (tp, fp, fn int, err error) {
	n, err := checkPair(op, yTrue, yPred)
	if err != nil {
		return 0, 0, 0, err
	}
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i) == posLabel, yPred.AtVec(i) == posLabel
		switch {
		case t && p:
			tp++
		case !t && p:
			fp++
		case t && !p:
			fn++
		}
	}
	return tp, fp, fn, nil
}

func ratio(metric string, num, den int, condition string) float64 {
	if den == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(metric, condition, 0))
		return 0
	}
	return float64(num) / float64(den)
}

// ClassScores はクラスごとの適合率・再現率・F1・サポート
type ClassScores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// ClassificationReport はscikit-learnのclassification_report相当
type ClassificationReport struct {
	Labels      []string      `json:"labels"`
	Classes     []ClassScores `json:"classes"`
	Accuracy    float64       `json:"accuracy"`
	MacroAvg    ClassScores   `json:"macro avg"`
	WeightedAvg ClassScores   `json:"weighted avg"`
}

// NewClassificationReport は二値ラベル (0, 1) のレポートを作成する。
// names はクラス0とクラス1の表示名。
func NewClassificationReport(yTrue, yPred *mat.VecDense, names [2]string) (*ClassificationReport, error) {
	if _, err := checkPair("ClassificationReport", yTrue, yPred); err != nil {
		return nil, err
	}

	rep := &ClassificationReport{Labels: []string{names[0], names[1]}}
	total := 0
	for _, label := range []float64{0, 1} {
		tp, fp, fn, _ := counts("ClassificationReport", yTrue, yPred, label)
		cs := ClassScores{
			Precision: ratio("precision", tp, tp+fp, "no predicted samples"),
			Recall:    ratio("recall", tp, tp+fn, "no true samples"),
			F1:        ratio("f1", 2*tp, 2*tp+fp+fn, "no true nor predicted samples"),
			Support:   tp + fn,
		}
		rep.Classes = append(rep.Classes, cs)
		total += cs.Support

		rep.MacroAvg.Precision += cs.Precision / 2
		rep.MacroAvg.Recall += cs.Recall / 2
		rep.MacroAvg.F1 += cs.F1 / 2
	}
	for _, cs := range rep.Classes {
		w := float64(cs.Support) / float64(total)
		rep.WeightedAvg.Precision += w * cs.Precision
		rep.WeightedAvg.Recall += w * cs.Recall
		rep.WeightedAvg.F1 += w * cs.F1
	}
	rep.MacroAvg.Support = total
	rep.WeightedAvg.Support = total
	rep.Accuracy, _ = Accuracy(yTrue, yPred)
	return rep, nil
}

// Text renders the report as a fixed-width table with the given number of
// decimal digits, laid out like scikit-learn's text report.
func (r *ClassificationReport) Text(digits int) string {
	width := len("weighted avg")
	for _, l := range r.Labels {
		width = max(width, len(l))
	}
	colW := max(digits+3, 9)

	var b strings.Builder
	fmt.Fprintf(&b, "%*s %*s %*s %*s %*s\n\n", width, "", colW, "precision", colW, "recall", colW, "f1-score", colW, "support")
	row := func(name string, cs ClassScores) {
		fmt.Fprintf(&b, "%*s %*.*f %*.*f %*.*f %*d\n", width, name,
			colW, digits, cs.Precision, colW, digits, cs.Recall, colW, digits, cs.F1, colW, cs.Support)
	}
	for i, cs := range r.Classes {
		row(r.Labels[i], cs)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %*s %*s %*.*f %*d\n", width, "accuracy", colW, "", colW, "",
		colW, digits, r.Accuracy, colW, r.MacroAvg.Support)
	row("macro avg", r.MacroAvg)
	row("weighted avg", r.WeightedAvg)
	return b.String()
}

// ROCCurve returns false-positive rates, true-positive rates and the
// descending score thresholds at which they are reached. The first point is
// (0, 0) at threshold +Inf. Labels of a single class are a ValueError.
func ROCCurve(yTrue, scores *mat.VecDense) (fpr, tpr, thresholds []float64, err error) {
	n, err := checkPair("ROCCurve", yTrue, scores)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := checkBinary("ROCCurve", yTrue); err != nil {
		return nil, nil, nil, err
	}

	idx := make([]int, n)
	nPos := 0
	for i := range idx {
		idx[i] = i
		if yTrue.AtVec(i) == 1 {
			nPos++
		}
	}
	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		return nil, nil, nil, errors.NewValueError("ROCCurve", "only one class present in y_true")
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores.AtVec(idx[a]) > scores.AtVec(idx[b]) })

	fpr = []float64{0}
	tpr = []float64{0}
	thresholds = []float64{math.Inf(1)}
	tp, fp := 0, 0
	for k := 0; k < n; {
		s := scores.AtVec(idx[k])
		for k < n && scores.AtVec(idx[k]) == s {
			if yTrue.AtVec(idx[k]) == 1 {
				tp++
			} else {
				fp++
			}
			k++
		}
		fpr = append(fpr, errors.SafeDivide(float64(fp), float64(nNeg)))
		tpr = append(tpr, errors.SafeDivide(float64(tp), float64(nPos)))
		thresholds = append(thresholds, s)
	}
	return fpr, tpr, thresholds, nil
}
