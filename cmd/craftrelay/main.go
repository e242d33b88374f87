package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stewlg/craftrelay/internal/config"
	"github.com/stewlg/craftrelay/internal/craft"
	"github.com/stewlg/craftrelay/internal/link"
	"github.com/stewlg/craftrelay/internal/logging"
	"github.com/stewlg/craftrelay/internal/relay"
	"github.com/stewlg/craftrelay/internal/serialport"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "craftrelay: %v\n", err)
		os.Exit(1)
	}

	ports := cfg.Ports
	if cfg.PortsAuto {
		discovered, err := serialport.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "craftrelay: %v\n", err)
			os.Exit(1)
		}
		ports = discovered
	}
	if len(ports) == 0 {
		fmt.Fprintln(os.Stderr, "craftrelay: no ports to service")
		os.Exit(1)
	}

	logs, err := logging.New(logging.Options{
		Dir:             cfg.LogDir,
		Level:           cfg.LogLevel,
		OmitGpsPosition: cfg.OmitGpsPosition,
		Console:         os.Stdout,
	}, ports)
	if err != nil {
		fmt.Fprintf(os.Stderr, "craftrelay: failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	logs.All.Info().Strs("ports", ports).Int("baud", cfg.BaudRate).
		Int("refreshMs", cfg.RefreshIntervalMillis).Int("staleMs", cfg.StaleIntervalMillis).
		Msg("starting craft relay")

	scheduler := relay.NewScheduler(time.Duration(cfg.RefreshIntervalMillis)*time.Millisecond, logs.All)
	scheduler.SetPositionRedactor(logs.RedactedLatLon)

	for _, name := range ports {
		name := name
		scheduler.AddLink(name, cfg.StaleIntervalMillis, cfg.ExitOnGpsLoss, func() (link.Port, error) {
			return serialport.Open(name, cfg.BaudRate)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	scheduler.SetExitHandler(func(linkName string) {
		logs.Link(linkName).Fatal().Msg("exiting process: identity watchdog tripped with exitgpsloss set")
	})

	for _, spec := range cfg.PhantomWingmen {
		wingman := craft.NewWingman(fmt.Sprintf("wingman-%s", spec.TargetPort), spec.TargetPort,
			spec.BearingOffsetDeg, spec.DistanceMeters, spec.RelativeAltMeters)
		scheduler.AddPhantom(wingman)
		logs.All.Info().Msg(wingman.Describe())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logs.All.Info().Msg("received shutdown signal, stopping relay")
		scheduler.Shutdown()
		cancel()
	}()

	if err := scheduler.Run(ctx); err != nil && err != context.Canceled {
		logs.All.Error().Err(err).Msg("relay stopped with error")
		os.Exit(1)
	}
}
