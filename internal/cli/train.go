package cli

import (
	"context"
	"path/filepath"
	"strconv"

	urfave "github.com/urfave/cli/v3"

	"github.com/YuminosukeSato/creditrisk/dataset"
	"github.com/YuminosukeSato/creditrisk/pipeline"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
	"github.com/YuminosukeSato/creditrisk/scoring"
)

// Split file names in the processed directory.
const (
	XTrainFile = "X_train.csv"
	XTestFile  = "X_test.csv"
	YTrainFile = "y_train.csv"
	YTestFile  = "y_test.csv"
)

var (
	dataFlag = &urfave.StringFlag{
		Name:  "data",
		Usage: "Input CSV or XLSX file (default: data.raw_data from config)",
	}

	syntheticFlag = &urfave.IntFlag{
		Name:  "synthetic",
		Usage: "Train on N generated German-credit-shaped rows instead of a file",
	}
)

func (a *app) trainCmd() *urfave.Command {
	return &urfave.Command{
		Name:   "train",
		Usage:  "Split the data, fit the pipeline and save the artifact",
		Flags:  []urfave.Flag{dataFlag, syntheticFlag},
		Action: a.cmdTrain,
	}
}

func (a *app) cmdTrain(ctx context.Context, cmd *urfave.Command) error {
	cfg := a.cfg
	logger := log.GetLoggerWithName("cli")

	var (
		table *dataset.Table
		err   error
	)
	if n := cmd.Int(syntheticFlag.Name); n > 0 {
		table = dataset.Synthetic(int(n), 0.3, cfg.Pipeline.RandomState)
	} else {
		path := cmd.String(dataFlag.Name)
		if path == "" {
			path = cfg.Data.RawData
		}
		if table, err = dataset.LoadFile(path, cfg.Data.IDColumn); err != nil {
			return err
		}
	}

	schema := cfg.Schema()
	var labels []float64
	if schema.HasTarget() {
		if col, ok := table.Column(schema.TargetColumn()); ok {
			if labels, err = dataset.ParseLabels(col); err != nil {
				return err
			}
		} else if cfg.Pipeline.Mode == scoring.ModeSupervised {
			return errors.NewSchemaError("train", []string{schema.TargetColumn()})
		}
	}

	split, err := dataset.SplitTable(table, labels, cfg.Pipeline.TestSize, cfg.Pipeline.RandomState)
	if err != nil {
		return err
	}
	if err := writeSplit(cfg.Data.ProcessedDir, schema, split); err != nil {
		return err
	}

	artifact, err := pipeline.Fit(ctx, split.Train, schema, cfg.Pipeline)
	if err != nil {
		return err
	}
	modelPath := cfg.ModelPath()
	if err := pipeline.SaveFile(modelPath, artifact); err != nil {
		return err
	}

	reg, err := a.openRegistry(ctx)
	if err != nil {
		return err
	}
	if reg != nil {
		defer reg.Close()
		if err := reg.RecordArtifact(ctx, artifact, modelPath); err != nil {
			return err
		}
	}

	logger.Info("trained and saved",
		log.ArtifactIDKey, artifact.ID,
		log.PathKey, modelPath,
		log.SamplesKey, artifact.NTrainSamples,
	)
	return a.printJSON(artifact.Metadata())
}

// writeSplit stores the feature tables and, when labels exist, one-column
// label tables named after the target.
func writeSplit(dir string, schema *dataset.Schema, split *dataset.Split) error {
	features := func(t *dataset.Table) *dataset.Table {
		if schema.HasTarget() {
			return t.Drop(schema.TargetColumn())
		}
		return t
	}
	if err := dataset.WriteCSVFile(filepath.Join(dir, XTrainFile), features(split.Train)); err != nil {
		return err
	}
	if err := dataset.WriteCSVFile(filepath.Join(dir, XTestFile), features(split.Test)); err != nil {
		return err
	}
	if split.TrainLabels == nil {
		return nil
	}
	for name, labels := range map[string][]float64{YTrainFile: split.TrainLabels, YTestFile: split.TestLabels} {
		t, err := labelTable(schema.TargetColumn(), labels)
		if err != nil {
			return err
		}
		if err := dataset.WriteCSVFile(filepath.Join(dir, name), t); err != nil {
			return err
		}
	}
	return nil
}

func labelTable(column string, labels []float64) (*dataset.Table, error) {
	rows := make([][]string, len(labels))
	for i, v := range labels {
		rows[i] = []string{strconv.FormatFloat(v, 'f', -1, 64)}
	}
	return dataset.NewTable([]string{column}, rows)
}
