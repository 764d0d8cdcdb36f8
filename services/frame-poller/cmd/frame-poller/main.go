// services/frame-poller/cmd/frame-poller/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/common/shutdown"
	"github.com/YaganovValera/detector-stream/services/frame-poller/internal/app"
	"github.com/YaganovValera/detector-stream/services/frame-poller/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile   string
		printOnly bool
	)

	root := &cobra.Command{
		Use:           "frame-poller",
		Short:         "Sharded frame poller",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if printOnly {
				cfg.Print()
				return nil
			}

			log, err := logger.New(logger.Config{Level: cfg.Logging.Level, DevMode: cfg.Logging.DevMode})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()
			log = log.With(zap.String("service", cfg.ServiceName), zap.String("version", cfg.ServiceVersion))
			if cfg.Logging.DevMode {
				cfg.Print()
			}

			ctx, cancel := shutdown.WithSignals(context.Background(), log)
			defer cancel()

			if err := app.Run(ctx, cfg, log); err != nil {
				log.Error("frame-poller exited with error", zap.Error(err))
				return err
			}
			log.Info("frame-poller stopped")
			return nil
		},
	}

	f := root.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "path to YAML config (optional)")
	f.BoolVar(&printOnly, "print-config", false, "print the effective config and exit")
	f.Int("workers", 1, "number of pollers in this process, each with assignment (i, workers)")
	f.Int("worker-id", 0, "worker id of this process when running one worker per process")
	f.Int("num-workers", 1, "total number of workers reading the stream")
	f.String("reader", "", "reader kind: synthetic, kafka, redis, amqp, websocket")
	f.String("log-level", "", "log level: debug, info, warn, error")
	return root
}
