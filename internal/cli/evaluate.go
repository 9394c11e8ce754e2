package cli

import (
	"context"
	"os"
	"path/filepath"

	urfave "github.com/urfave/cli/v3"

	"github.com/YuminosukeSato/creditrisk/dataset"
	"github.com/YuminosukeSato/creditrisk/evaluation"
	"github.com/YuminosukeSato/creditrisk/pipeline"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
	"github.com/YuminosukeSato/creditrisk/report"
)

var noReportFlag = &urfave.BoolFlag{
	Name:  "json-only",
	Usage: "Write only metrics.json, without the Markdown/HTML report and plot",
}

func (a *app) evaluateCmd() *urfave.Command {
	return &urfave.Command{
		Name:   "evaluate",
		Usage:  "Evaluate the saved artifact on the held-out split",
		Flags:  []urfave.Flag{noReportFlag},
		Action: a.cmdEvaluate,
	}
}

func (a *app) cmdEvaluate(ctx context.Context, cmd *urfave.Command) error {
	cfg := a.cfg

	artifact, err := pipeline.LoadFile(cfg.ModelPath())
	if err != nil {
		return err
	}
	X, err := dataset.ReadCSVFile(filepath.Join(cfg.Data.ProcessedDir, XTestFile))
	if err != nil {
		return err
	}
	labels, err := readLabels(filepath.Join(cfg.Data.ProcessedDir, YTestFile))
	if err != nil {
		return err
	}

	rep, err := evaluation.EvaluateArtifact(artifact, X, labels)
	if err != nil {
		return err
	}

	metricsPath := cfg.MetricsPath()
	if cmd.Bool(noReportFlag.Name) {
		err = report.WriteJSON(metricsPath, rep)
	} else {
		_, err = report.WriteAll(metricsPath, rep)
	}
	if err != nil {
		return err
	}

	reg, err := a.openRegistry(ctx)
	if err != nil {
		return err
	}
	if reg != nil {
		defer reg.Close()
		if _, err := reg.RecordEvaluation(ctx, rep); err != nil {
			return err
		}
	}

	log.GetLoggerWithName("cli").Info("saved metrics", log.PathKey, metricsPath)
	return a.printJSON(rep)
}

// readLabels returns nil when the label file does not exist, which is the
// case for unlabelled data.
func readLabels(path string) ([]float64, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	t, err := dataset.ReadCSVFile(path)
	if err != nil {
		return nil, err
	}
	cols := t.Columns()
	if len(cols) == 0 {
		return nil, nil
	}
	col, _ := t.Column(cols[0])
	return dataset.ParseLabels(col)
}
