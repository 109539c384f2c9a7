package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/NavarchProject/memtrack/pkg/config"
	"github.com/NavarchProject/memtrack/pkg/device"
	"github.com/NavarchProject/memtrack/pkg/memmon"
)

func watchCmd() *cobra.Command {
	var (
		deviceFlag string
		pollRate   float64
		duration   time.Duration
		listen     string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor device memory for a window and report aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("device") {
				cfg.Device = deviceFlag
			}
			if cmd.Flags().Changed("poll-rate") {
				cfg.PollRate = pollRate
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}

			dev, err := device.Parse(cfg.Device)
			if err != nil {
				return err
			}

			querier, cleanup, err := newQuerier(dev)
			if err != nil {
				return err
			}
			defer cleanup()

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			monitor := memmon.New(dev, querier, memmon.Config{PollRate: cfg.PollRate}, logger)
			defer monitor.Close()

			if cfg.Listen != "" {
				serveMetrics(cfg.Listen, monitor, logger)
			}

			monitor.Monitor()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			if duration > 0 {
				select {
				case <-time.After(duration):
				case <-sigCh:
				}
			} else {
				<-sigCh
			}

			data, err := monitor.Stop()
			if err != nil {
				return fmt.Errorf("stop monitor: %w", err)
			}

			if debug {
				monitor.DumpDebug(os.Stderr)
			}

			switch outputFormat {
			case "json":
				return renderJSON(os.Stdout, data)
			case "table":
				return renderTable(os.Stdout, dev, data)
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}

	cmd.Flags().StringVar(&deviceFlag, "device", "cuda", "Device to monitor (e.g. cuda:0, amdgpu)")
	cmd.Flags().Float64Var(&pollRate, "poll-rate", 8, "Samples per second (<= 0 takes a single baseline sample)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Monitoring window (0 runs until interrupted)")
	cmd.Flags().StringVar(&listen, "listen", "", "Address for the Prometheus /metrics endpoint (empty disables)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Print the diagnostic memory dump after stopping")

	return cmd
}

// newQuerier selects the device-query backend for the device family.
// Backend selection lives here so the monitor itself never probes the
// environment for installed drivers.
func newQuerier(dev device.Device) (device.Querier, func(), error) {
	switch dev.Type {
	case device.TypeCUDA:
		querier := device.NewNVML()
		if err := querier.Init(); err != nil {
			return nil, nil, fmt.Errorf("initialize NVML: %w", err)
		}
		return querier, func() { _ = querier.Shutdown() }, nil
	case device.TypeAMDGPU:
		return device.NewAMDGPU(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported device type %q", dev.Type)
	}
}

func serveMetrics(addr string, monitor *memmon.Monitor, logger *slog.Logger) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(memmon.NewPrometheusExporter(monitor, logger))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
}
