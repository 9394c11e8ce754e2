package cli

import (
	"context"
	"strings"

	urfave "github.com/urfave/cli/v3"

	"github.com/YuminosukeSato/creditrisk/dataset"
	"github.com/YuminosukeSato/creditrisk/pipeline"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

var (
	setFlag = &urfave.StringSliceFlag{
		Name:  "set",
		Usage: `Applicant field as column=value, e.g. --set Age=35 --set "Credit amount=2500"`,
	}

	inputFlag = &urfave.StringFlag{
		Name:  "input",
		Usage: "Score every row of a CSV or XLSX file instead of a single applicant",
	}
)

func (a *app) predictCmd() *urfave.Command {
	return &urfave.Command{
		Name:   "predict",
		Usage:  "Score one applicant (missing fields use form defaults) or a file",
		Flags:  []urfave.Flag{setFlag, inputFlag},
		Action: a.cmdPredict,
	}
}

func (a *app) cmdPredict(ctx context.Context, cmd *urfave.Command) error {
	artifact, err := pipeline.LoadFile(a.cfg.ModelPath())
	if err != nil {
		return err
	}

	if path := cmd.String(inputFlag.Name); path != "" {
		t, err := dataset.LoadFile(path, a.cfg.Data.IDColumn)
		if err != nil {
			return err
		}
		preds, err := pipeline.Predict(artifact, t)
		if err != nil {
			return err
		}
		return a.printJSON(preds)
	}

	record, err := parseAssignments(cmd.StringSlice(setFlag.Name))
	if err != nil {
		return err
	}
	p, err := pipeline.PredictRecord(artifact, record)
	if err != nil {
		return err
	}
	return a.printJSON(p)
}

// parseAssignments turns ["Age=35", "Purpose=car"] into a record. Only the
// first '=' separates the column from the value.
func parseAssignments(pairs []string) (map[string]string, error) {
	record := make(map[string]string, len(pairs))
	for _, p := range pairs {
		col, val, ok := strings.Cut(p, "=")
		col = strings.TrimSpace(col)
		if !ok || col == "" {
			return nil, errors.NewValueError("predict", "expected column=value, got "+p)
		}
		record[col] = strings.TrimSpace(val)
	}
	return record, nil
}
