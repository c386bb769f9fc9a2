// Command kartsim runs the race kart's state machines and motor control
// against a simulated drive. Race events come from single keys typed on
// stdin or on a serial console.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/comalice/racekart"
	"github.com/comalice/racekart/internal/config"
	"github.com/comalice/racekart/internal/dispatch"
	"github.com/comalice/racekart/internal/keymap"
	"github.com/comalice/racekart/internal/production"
	"github.com/comalice/racekart/internal/sim"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML file overriding the default tuning")
		level      = flag.String("log-level", "info", "trace, debug, info, warn or error")
		duration   = flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
		port       = flag.String("port", "", "read keys from this serial port instead of stdin")
		baud       = flag.Int("baud", 115200, "serial baud rate")
		dotPath    = flag.String("dot", "", "write the final state configuration as Graphviz DOT")
		snapDir    = flag.String("snapshot", "", "directory for a YAML snapshot of the final race state")
		trace      = flag.Bool("trace", false, "log every dispatched event")
		drsEvents  = flag.Bool("drs", false, "post DRSUpdated on every simulated pose refresh")
		x          = flag.Float64("x", 180, "starting x (DRS units)")
		y          = flag.Float64("y", 10, "starting y (DRS units)")
		heading    = flag.Float64("heading", 180, "starting heading (degrees)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: kartsim [flags]\n\nkeys: %s\n\n", strings.Join(keymap.Bindings(), " "))
		flag.PrintDefaults()
	}
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kartsim: %v\n", err)
		os.Exit(2)
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).With().Timestamp().Logger()

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal().Err(err).Msg("Could not load config")
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	var opts []sim.KartOption
	if *drsEvents {
		opts = append(opts, sim.WithDRSEvents())
	}
	var pub *production.ChannelPublisher
	if *trace {
		ch := make(chan production.Dispatched, 256)
		pub = production.NewChannelPublisher(ch)
		go logTrace(ch)
		opts = append(opts, sim.WithServiceWrapper(func(name string, svc dispatch.Service) dispatch.Service {
			return production.Tap(name, svc, pub)
		}))
	}

	kart, err := sim.NewKart(cfg, log.Logger, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not assemble kart")
	}
	kart.Plant.Place(*x, *y, *heading)

	keys, closeKeys, err := openKeys(*port, *baud)
	if err != nil {
		log.Fatal().Err(err).Str("port", *port).Msg("Could not open key input")
	}
	go func() {
		if err := keymap.Pump(ctx, keys, postOrWarn(kart), log.Logger); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("Key input ended")
		}
	}()

	if err := kart.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Could not start periodic tasks")
	}
	log.Info().Strs("keys", keymap.Bindings()).Msg("Starting kart simulator")

	if err := kart.Dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Error().Err(err).Msg("Dispatcher stopped")
	}
	kart.Stop()
	_ = closeKeys()
	if pub != nil {
		if n := pub.Dropped(); n > 0 {
			log.Warn().Uint64("dropped", n).Msg("Trace events dropped")
		}
	}

	if err := report(kart, *dotPath, *snapDir); err != nil {
		log.Error().Err(err).Msg("Could not write report")
		os.Exit(1)
	}
	log.Info().Msg("Terminating simulator")
}

// openKeys returns stdin, or the serial port when one is named.
func openKeys(port string, baud int) (io.Reader, func() error, error) {
	if port == "" {
		return os.Stdin, func() error { return nil }, nil
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, nil, fmt.Errorf("serial open: %w", err)
	}
	log.Info().Str("port", port).Int("baud", baud).Msg("Serial opened")
	return p, p.Close, nil
}

func postOrWarn(kart *sim.Kart) func(evt racekart.Event) {
	return func(evt racekart.Event) {
		if err := kart.Post(evt); err != nil {
			log.Warn().Err(err).Stringer("event", evt).Msg("Could not post key event")
		}
	}
}

func logTrace(ch <-chan production.Dispatched) {
	for d := range ch {
		log.Info().Str("service", d.Service).Stringer("event", d.Event).Msg("dispatched")
	}
}

func report(kart *sim.Kart, dotPath, snapDir string) error {
	machines := kart.Master.Machines()
	if dotPath != "" {
		dot := (&production.Visualizer{}).ExportDOT(machines)
		if err := os.WriteFile(dotPath, []byte(dot), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dotPath, err)
		}
		log.Info().Str("path", dotPath).Msg("DOT written")
	}
	if snapDir != "" {
		p, err := production.NewYAMLPersister(snapDir)
		if err != nil {
			return err
		}
		snap := production.Capture("kartsim", kart.Master, kart.Store.Kart(), kart.Launcher.Launched())
		if err := p.Save(context.Background(), snap); err != nil {
			return err
		}
		log.Info().Str("dir", snapDir).Int("straight", snap.Straight).Msg("Snapshot written")
	}
	return nil
}
