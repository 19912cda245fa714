package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/afcore/dsp-audio-framework"
	"github.com/afcore/dsp-audio-framework/internal/logging"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

func main() {
	var (
		graphPath = pflag.StringP("graph", "g", "", "Path to a component-graph YAML file")
		verbose   = pflag.BoolP("verbose", "v", false, "Verbose output")
		cycles    = pflag.IntP("cycles", "c", 8, "Number of comp_process/comp_get_status cycles to drive per component")
	)
	pflag.Parse()

	if *graphPath == "" {
		fmt.Fprintln(os.Stderr, "afcore-play: --graph is required")
		pflag.Usage()
		os.Exit(2)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	f, err := os.Open(*graphPath)
	if err != nil {
		logger.Error("failed to open graph file", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	graph, err := afcore.LoadGraphConfig(f)
	if err != nil {
		logger.Error("failed to parse graph file", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	device, components, err := afcore.BuildDevice(ctx, graph)
	if err != nil {
		logger.Error("failed to build device graph", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing device")
		if err := device.Close(ctx, afcore.CloseForce); err != nil {
			logger.Error("error closing device", "error", err)
		}
	}()

	logger.Info("device opened", "version", device.GetVersionInfo().String(), "components", len(components))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt, shutting down")
		cancel()
	}()

	for name, c := range components {
		if err := c.Process(ctx, wire.FlagStart, nil); err != nil {
			logger.Warn("START failed", "component", name, "error", err)
			continue
		}
		driveComponent(ctx, logger, name, c, *cycles)
	}

	stats, err := device.GetMemStats()
	if err != nil {
		logger.Warn("GetMemStats failed", "error", err)
		return
	}
	fmt.Printf("live clients: %d/%d\n", stats.LiveClients, stats.MaxClients)
}

func driveComponent(ctx context.Context, logger *logging.Logger, name string, c *afcore.Component, cycles int) {
	for i := 0; i < cycles; i++ {
		statusCtx, statusCancel := context.WithTimeout(ctx, time.Second)
		status, info, err := c.GetStatus(statusCtx)
		statusCancel()
		if err != nil {
			logger.Warn("GET_STATUS failed", "component", name, "error", err)
			return
		}

		logger.Debug("status", "component", name, "status", status.String())

		switch status {
		case wire.StatusInitDone:
			logger.Info("init done", "component", name, "sample_rate", info.SampleRate, "channels", info.Channels)
		case wire.StatusExecDone:
			logger.Info("exec done", "component", name)
			return
		case wire.StatusOutputReady:
			if err := c.Process(ctx, wire.FlagNeedOutput, nil); err != nil {
				logger.Warn("NEED_OUTPUT failed", "component", name, "error", err)
				return
			}
		}
	}
}
