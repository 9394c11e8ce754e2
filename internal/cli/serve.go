package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	urfave "github.com/urfave/cli/v3"

	"github.com/YuminosukeSato/creditrisk/internal/server"
	"github.com/YuminosukeSato/creditrisk/pipeline"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
)

var addrFlag = &urfave.StringFlag{
	Name:  "addr",
	Usage: "Listen address (default: server.addr from config)",
}

func (a *app) serveCmd() *urfave.Command {
	return &urfave.Command{
		Name:    "serve",
		Aliases: []string{"server"},
		Usage:   "Serve predictions over HTTP",
		Flags:   []urfave.Flag{addrFlag},
		Action:  a.cmdServe,
	}
}

func (a *app) cmdServe(ctx context.Context, cmd *urfave.Command) error {
	logger := log.GetLoggerWithName("cli")
	modelPath := a.cfg.ModelPath()

	// モデルが無くても起動し、/v1/reload で後から読み込める
	slot := pipeline.NewSlot(nil)
	if artifact, err := pipeline.LoadFile(modelPath); err != nil {
		logger.Warn("serving without a model", log.PathKey, modelPath, "error", err)
	} else {
		slot.Publish(artifact)
	}

	srv := server.New(slot, server.WithReloader(func(context.Context) (*pipeline.Artifact, error) {
		return pipeline.LoadFile(modelPath)
	}))

	addr := cmd.String(addrFlag.Name)
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, addr)
}
