// Package report writes evaluation reports: the metrics.json document, a
// Markdown/HTML summary and a diagnostic plot.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/evaluation"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
)

// File names written next to the JSON document by WriteAll.
const (
	MarkdownFile  = "report.md"
	HTMLFile      = "report.html"
	ROCFile       = "roc.png"
	HistogramFile = "score_hist.png"
)

// Files lists what WriteAll produced. Plot is empty when no plot applies.
type Files struct {
	JSON     string `json:"json"`
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
	Plot     string `json:"plot,omitempty"`
}

// EncodeJSON writes rep as indented JSON.
func EncodeJSON(w io.Writer, rep *evaluation.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	return nil
}

// WriteJSON writes rep to path, replacing any previous report atomically.
func WriteJSON(path string, rep *evaluation.Report) error {
	return model.WriteFileAtomic(path, func(w io.Writer) error {
		return EncodeJSON(w, rep)
	})
}

// Markdown renders a human-readable summary of rep.
func Markdown(rep *evaluation.Report) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Credit risk evaluation\n\n")
	fmt.Fprintf(&b, "| Field | Value |\n|---|---|\n")
	if rep.ArtifactID != "" {
		fmt.Fprintf(&b, "| artifact | `%s` |\n", rep.ArtifactID)
	}
	if rep.Model != "" {
		fmt.Fprintf(&b, "| model | %s |\n", rep.Model)
	}
	fmt.Fprintf(&b, "| mode | %s |\n", rep.Mode)
	fmt.Fprintf(&b, "| rows | %d |\n", rep.NTest)
	fmt.Fprintf(&b, "| evaluated at | %s |\n\n", rep.EvaluatedAt.Format("2006-01-02 15:04:05 MST"))

	if s := rep.Supervised; s != nil {
		fmt.Fprintf(&b, "## Metrics at threshold %.2f\n\n", s.Threshold)
		fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
		for _, m := range []struct {
			name string
			v    float64
		}{
			{"ROC AUC", s.ROCAUC},
			{"F1", s.F1},
			{"Precision", s.Precision},
			{"Recall", s.Recall},
			{"Accuracy", s.Accuracy},
			{"Log loss", s.LogLoss},
		} {
			fmt.Fprintf(&b, "| %s | %.4f |\n", m.name, m.v)
		}

		if len(s.ConfusionMatrix) == 2 {
			cm := s.ConfusionMatrix
			fmt.Fprintf(&b, "\n## Confusion matrix\n\n")
			fmt.Fprintf(&b, "| | predicted %s | predicted %s |\n|---|---|---|\n", evaluation.ClassNames[0], evaluation.ClassNames[1])
			for i, name := range evaluation.ClassNames {
				fmt.Fprintf(&b, "| actual %s | %d | %d |\n", name, cm[i][0], cm[i][1])
			}
		}
		fmt.Fprintf(&b, "\n## Classification report\n\n```\n%s```\n", s.Report)
	}

	if u := rep.Unsupervised; u != nil {
		fmt.Fprintf(&b, "## Anomaly scores\n\n")
		fmt.Fprintf(&b, "Anomaly rate: **%.2f%%**\n\n", 100*u.AnomalyRate)
		fmt.Fprintf(&b, "| Statistic | Score |\n|---|---|\n")
		for _, m := range []struct {
			name string
			v    float64
		}{
			{"mean", u.ScoreMean},
			{"std", u.ScoreStd},
			{"min", u.ScoreMin},
			{"p10", u.ScoreP10},
			{"p50", u.ScoreP50},
			{"p90", u.ScoreP90},
			{"max", u.ScoreMax},
		} {
			fmt.Fprintf(&b, "| %s | %.4f |\n", m.name, m.v)
		}
		fmt.Fprintf(&b, "\nNegative scores are flagged as anomalous (high risk).\n")
	}
	return []byte(b.String())
}

// RenderHTML converts Markdown to a complete HTML page.
func RenderHTML(md []byte, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: title,
	})
	return markdown.ToHTML(md, p, r)
}

// WriteAll writes the JSON report to jsonPath and the Markdown, HTML and plot
// files into the same directory.
func WriteAll(jsonPath string, rep *evaluation.Report) (*Files, error) {
	dir := filepath.Dir(jsonPath)
	files := &Files{
		JSON:     jsonPath,
		Markdown: filepath.Join(dir, MarkdownFile),
		HTML:     filepath.Join(dir, HTMLFile),
	}

	if err := WriteJSON(files.JSON, rep); err != nil {
		return nil, err
	}

	md := Markdown(rep)
	if err := writeBytes(files.Markdown, md); err != nil {
		return nil, err
	}
	if err := writeBytes(files.HTML, RenderHTML(md, "Credit risk evaluation")); err != nil {
		return nil, err
	}

	switch {
	case rep.Supervised != nil && rep.ROC != nil:
		files.Plot = filepath.Join(dir, ROCFile)
		if err := PlotROC(files.Plot, rep.ROC, rep.ROCAUC); err != nil {
			return nil, err
		}
	case rep.Unsupervised != nil:
		files.Plot = filepath.Join(dir, HistogramFile)
		if err := PlotScoreHistogram(files.Plot, rep.Scores); err != nil {
			return nil, err
		}
	}

	log.GetLoggerWithName("report").Info("wrote evaluation report",
		log.PathKey, files.JSON,
		log.ArtifactIDKey, rep.ArtifactID,
	)
	return files, nil
}

func writeBytes(path string, b []byte) error {
	return model.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	})
}
