package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/creditrisk/evaluation"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// HistogramBins is the number of bins in the score histogram.
const HistogramBins = 30

const plotSize = 5 * vg.Inch

// PlotROC draws the ROC curve with the chance diagonal and saves it to path.
// The image format follows the file extension.
func PlotROC(path string, curve *evaluation.Curve, auc float64) error {
	if curve == nil || len(curve.FPR) == 0 || len(curve.FPR) != len(curve.TPR) {
		return errors.NewValueError("PlotROC", "empty or inconsistent ROC curve")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("ROC curve (AUC = %.4f)", auc)
	p.X.Label.Text = "False positive rate"
	p.Y.Label.Text = "True positive rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(curve.FPR))
	for i := range curve.FPR {
		pts[i].X = curve.FPR[i]
		pts[i].Y = curve.TPR[i]
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "failed to build ROC line")
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(2)

	chance := plotter.NewFunction(func(x float64) float64 { return x })
	chance.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	chance.Color = color.Gray{Y: 128}

	p.Add(line, chance)
	p.Legend.Add("model", line)
	p.Legend.Add("chance", chance)
	p.Legend.Top = false
	p.Legend.Left = false

	if err := p.Save(plotSize, plotSize, path); err != nil {
		return errors.Wrapf(err, "failed to save plot %s", path)
	}
	return nil
}

// PlotScoreHistogram draws the distribution of anomaly scores and saves it to
// path.
func PlotScoreHistogram(path string, scores []float64) error {
	if len(scores) == 0 {
		return errors.NewValueError("PlotScoreHistogram", "no scores")
	}

	p := plot.New()
	p.Title.Text = "Anomaly score distribution"
	p.X.Label.Text = "decision function (negative = anomalous)"
	p.Y.Label.Text = "applicants"

	h, err := plotter.NewHist(plotter.Values(scores), HistogramBins)
	if err != nil {
		return errors.Wrap(err, "failed to build histogram")
	}
	h.FillColor = color.RGBA{R: 31, G: 119, B: 180, A: 200}
	p.Add(h)

	if err := p.Save(plotSize*1.6, plotSize, path); err != nil {
		return errors.Wrapf(err, "failed to save plot %s", path)
	}
	return nil
}
