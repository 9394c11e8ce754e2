// Package cli implements the creditrisk command line: train, evaluate,
// predict and serve.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	urfave "github.com/urfave/cli/v3"

	"github.com/YuminosukeSato/creditrisk/config"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
	"github.com/YuminosukeSato/creditrisk/registry"
)

var (
	version = "v0.0.1-default"
	commit  = ""

	configFlag = &urfave.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a YAML config file (optional)",
		Sources: urfave.EnvVars(config.EnvPrefix + "CONFIG"),
	}

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}
)

// app carries state shared by the commands of one invocation.
type app struct {
	cfg *config.Config
	out io.Writer
}

// Execute runs the CLI with the process arguments and exits non-zero on error.
func Execute() {
	if err := NewApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		slog.Error("creditrisk failed", log.ErrAttr(err))
		os.Exit(1)
	}
}

// NewApp builds the root command. Command output (JSON documents) goes to out;
// logs go to stderr through pkg/log.
func NewApp(out io.Writer) *urfave.Command {
	a := &app{out: out}
	return &urfave.Command{
		Name:                      "creditrisk",
		Usage:                     "Credit risk scoring: train, evaluate and serve applicant risk models",
		Version:                   fmt.Sprintf("%s (%s)", version, commit),
		Writer:                    out,
		HideHelpCommand:           true,
		DisableSliceFlagSeparator: true,
		Flags: []urfave.Flag{
			configFlag,
			debugFlag,
		},
		Commands: []*urfave.Command{
			a.trainCmd(),
			a.evaluateCmd(),
			a.predictCmd(),
			a.serveCmd(),
		},
		Before: a.before,
	}
}

func (a *app) before(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String(configFlag.Name))
	if err != nil {
		return ctx, err
	}
	if cmd.Bool(debugFlag.Name) {
		cfg.Log.Level = "debug"
	}
	if err := log.SetupLoggerWithWriter(os.Stderr, cfg.Log.Level); err != nil {
		return ctx, err
	}
	a.cfg = cfg
	return ctx, nil
}

// openRegistry returns nil when no registry DSN is configured.
func (a *app) openRegistry(ctx context.Context) (*registry.Registry, error) {
	if a.cfg.Registry.DSN == "" {
		return nil, nil
	}
	return registry.Open(ctx, a.cfg.Registry.Driver, a.cfg.Registry.DSN)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
