// Command ace-controller drives Anycubic ACE filament units over USB
// serial from the host side.
//
// It discovers units by USB topology, connects to each one, and exposes
// feed, retract, feed assist and dryer control as one-shot subcommands
// or through an interactive console.
//
// Usage:
//
//	ace-controller [flags] <command> [args]
//	ace-controller [flags] -interactive
//
// Commands:
//
//	discover                               List units on the bus
//	info <unit>                            Show model, firmware and limits
//	status [unit]                          Show channel and dryer state
//	feed <unit> <channel> <mm> [speed]     Feed filament toward the printer
//	retract <unit> <channel> <mm> [speed]  Pull filament back
//	assist <unit> <channel> on|off         Toggle feed assist
//	dryer <unit> start <temp> [minutes]    Start the drying cycle
//	dryer <unit> stop                      Stop the drying cycle
//	watch [unit]                           Poll status until interrupted
//
// Units are addressed by ordinal, topology key or configured name.
//
// Flags:
//
//	-config string        YAML configuration file
//	-baud int             serial baud rate (default 115200)
//	-timeout duration     request timeout per exchange (default 2s)
//	-feed-speed int       default feed speed in mm/s
//	-retract-speed int    default retract speed in mm/s
//	-trace string         write a CBOR protocol trace to this file
//	-verbose              debug logging to stderr
//	-interactive          start the interactive console
//	-version              print the library version and exit
//
// Examples:
//
//	# List every ACE on the bus
//	ace-controller discover
//
//	# Feed 150 mm into channel 1 of the first unit
//	ace-controller feed 0 1 150
//
//	# Dry at 55 degrees for four hours, tracing the exchange
//	ace-controller -trace session.alog dryer 0 start 55 240
//
//	# Interactive console with pinned ordinals from a config file
//	ace-controller -config ace.yaml -interactive
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/topeysoft/ace-go/cmd/ace-controller/commands"
	"github.com/topeysoft/ace-go/cmd/ace-controller/interactive"
	"github.com/topeysoft/ace-go/pkg/discovery"
	acelog "github.com/topeysoft/ace-go/pkg/log"
	"github.com/topeysoft/ace-go/pkg/transport"
	"github.com/topeysoft/ace-go/pkg/unit"
	"github.com/topeysoft/ace-go/pkg/version"
)

// Config holds the controller settings after flags and the optional
// configuration file are merged.
type Config struct {
	ConfigFile   string
	Baud         int
	Timeout      time.Duration
	FeedSpeed    int
	RetractSpeed int
	Trace        string
	Verbose      bool
	Interactive  bool
	Version      bool
}

// fileConfig is the YAML configuration file shape:
//
//	baud: 115200
//	timeout: 2s
//	trace: /var/log/ace/trace.alog
//	feed_speed: 50
//	retract_speed: 50
//	units:
//	  "1-2":
//	    index: 0
//	    name: left
//	    feed_speed: 40
//	    retract_speed: 30
//
// Unit blocks are keyed by topology key. An index pins the unit's
// ordinal across discovery passes.
type fileConfig struct {
	Baud         int                  `yaml:"baud"`
	Timeout      string               `yaml:"timeout"`
	Trace        string               `yaml:"trace"`
	FeedSpeed    int                  `yaml:"feed_speed"`
	RetractSpeed int                  `yaml:"retract_speed"`
	Units        map[string]unitBlock `yaml:"units"`
}

type unitBlock struct {
	Index        *int   `yaml:"index"`
	Name         string `yaml:"name"`
	FeedSpeed    int    `yaml:"feed_speed"`
	RetractSpeed int    `yaml:"retract_speed"`
}

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "YAML configuration file")
	flag.IntVar(&config.Baud, "baud", transport.DefaultBaudRate, "serial baud rate")
	flag.DurationVar(&config.Timeout, "timeout", transport.DefaultRequestTimeout, "request timeout per exchange")
	flag.IntVar(&config.FeedSpeed, "feed-speed", 0, "default feed speed in mm/s")
	flag.IntVar(&config.RetractSpeed, "retract-speed", 0, "default retract speed in mm/s")
	flag.StringVar(&config.Trace, "trace", "", "write a CBOR protocol trace to this file")
	flag.BoolVar(&config.Verbose, "verbose", false, "debug logging to stderr")
	flag.BoolVar(&config.Interactive, "interactive", false, "start the interactive console")
	flag.BoolVar(&config.Version, "version", false, "print the library version and exit")

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
}

const usage = `ace-controller - host-side control for Anycubic ACE filament units

Usage:
  ace-controller [flags] <command> [args]
  ace-controller [flags] -interactive

Commands:
  discover                               List units on the bus
  info <unit>                            Show model, firmware and limits
  status [unit]                          Show channel and dryer state
  feed <unit> <channel> <mm> [speed]     Feed filament toward the printer
  retract <unit> <channel> <mm> [speed]  Pull filament back
  assist <unit> <channel> on|off         Toggle feed assist
  dryer <unit> start <temp> [minutes]    Start the drying cycle
  dryer <unit> stop                      Stop the drying cycle
  watch [unit]                           Poll status until interrupted

Units are addressed by ordinal, topology key or configured name.

Flags:
`

func main() {
	flag.Parse()

	if config.Version {
		fmt.Printf("ace-controller %s\n", version.Library)
		return
	}

	setupLogging(config.Verbose)

	fileCfg, err := loadConfigFile(config.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := applyConfigFile(fileCfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, closeTrace, err := buildLogger()
	if err != nil {
		log.Fatalf("Failed to open trace file: %v", err)
	}
	defer closeTrace()

	svc := discovery.NewService(discovery.Config{
		BaudRate:     config.Baud,
		ProbeTimeout: config.Timeout,
		Pins:         pins(fileCfg),
		Logger:       logger,
	})
	reg := unit.NewRegistry()
	defer reg.Close()

	sess := &commands.Session{
		Service:    svc,
		Registry:   reg,
		UnitConfig: unitConfigFor(fileCfg, logger),
		Names:      names(fileCfg),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if config.Interactive {
		ic, err := interactive.New(sess, interactive.Options{
			HistoryFile: historyFile(),
		})
		if err != nil {
			log.Fatalf("Failed to start console: %v", err)
		}
		// Route log output through readline so asynchronous prints do
		// not mangle the prompt.
		log.SetOutput(ic.Stdout())
		go ic.Run(ctx, cancel)

		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		log.Println("Shutting down...")
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := dispatch(ctx, sess, args); err != nil {
		fmt.Fprintf(os.Stderr, "ace-controller: %v\n", err)
		os.Exit(1)
	}
}

// dispatch runs one subcommand. Everything except discover connects to
// the bus first.
func dispatch(ctx context.Context, sess *commands.Session, args []string) error {
	cmd, rest := args[0], args[1:]
	w := os.Stdout

	if cmd == "discover" {
		return sess.Discover(w)
	}

	if _, err := sess.Connect(); err != nil {
		return err
	}

	switch cmd {
	case "info":
		if len(rest) != 1 {
			return usageError("info <unit>")
		}
		return sess.Info(w, rest[0])

	case "status":
		return sess.Status(w, optional(rest, 0))

	case "feed":
		if len(rest) < 3 || len(rest) > 4 {
			return usageError("feed <unit> <channel> <mm> [speed]")
		}
		return sess.Feed(w, rest[0], rest[1], rest[2], optional(rest, 3))

	case "retract":
		if len(rest) < 3 || len(rest) > 4 {
			return usageError("retract <unit> <channel> <mm> [speed]")
		}
		return sess.Retract(w, rest[0], rest[1], rest[2], optional(rest, 3))

	case "assist":
		if len(rest) != 3 {
			return usageError("assist <unit> <channel> on|off")
		}
		return sess.Assist(w, rest[0], rest[1], rest[2])

	case "dryer":
		if len(rest) < 2 {
			return usageError("dryer <unit> start <temp> [minutes] | dryer <unit> stop")
		}
		return sess.Dryer(w, rest[0], rest[1], rest[2:])

	case "watch":
		return sess.Watch(ctx, w, optional(rest, 0), commands.DefaultWatchInterval)

	default:
		return fmt.Errorf("unknown command %q (run with no arguments for usage)", cmd)
	}
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func usageError(u string) error {
	return fmt.Errorf("usage: ace-controller %s", u)
}

func setupLogging(verbose bool) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	if verbose {
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	}
}

// buildLogger assembles the protocol event sink: a CBOR trace file when
// -trace is set, slog output when -verbose is set, both when both are.
func buildLogger() (acelog.Logger, func(), error) {
	var sinks []acelog.Logger
	closeFn := func() {}

	if config.Trace != "" {
		fl, err := acelog.NewFileLogger(config.Trace)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fl)
		closeFn = func() { fl.Close() }
	}
	if config.Verbose {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		sinks = append(sinks, acelog.NewSlogAdapter(slog.New(handler)))
	}

	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return acelog.NewMultiLogger(sinks...), closeFn, nil
	}
}

func loadConfigFile(path string) (*fileConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &fc, nil
}

// applyConfigFile overlays file values onto the parsed flags.
// Explicitly set flags win over the file.
func applyConfigFile(fc *fileConfig) error {
	if fc == nil {
		return nil
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["baud"] && fc.Baud > 0 {
		config.Baud = fc.Baud
	}
	if !set["timeout"] && fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		config.Timeout = d
	}
	if !set["trace"] && fc.Trace != "" {
		config.Trace = fc.Trace
	}
	if !set["feed-speed"] && fc.FeedSpeed > 0 {
		config.FeedSpeed = fc.FeedSpeed
	}
	if !set["retract-speed"] && fc.RetractSpeed > 0 {
		config.RetractSpeed = fc.RetractSpeed
	}
	return nil
}

// pins builds the discovery pin map from unit blocks carrying an index.
func pins(fc *fileConfig) map[string]int {
	if fc == nil {
		return nil
	}
	m := make(map[string]int)
	for key, u := range fc.Units {
		if u.Index != nil {
			m[key] = *u.Index
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func names(fc *fileConfig) map[string]string {
	if fc == nil {
		return nil
	}
	m := make(map[string]string)
	for key, u := range fc.Units {
		if u.Name != "" {
			m[key] = u.Name
		}
	}
	return m
}

// unitConfigFor resolves per-unit driver settings: the unit block's
// speeds when one names this topology key, the global defaults
// otherwise.
func unitConfigFor(fc *fileConfig, logger acelog.Logger) func(string) unit.Config {
	return func(topologyKey string) unit.Config {
		cfg := unit.Config{
			FeedSpeed:    config.FeedSpeed,
			RetractSpeed: config.RetractSpeed,
			Logger:       logger,
		}
		if fc == nil {
			return cfg
		}
		if ub, ok := fc.Units[topologyKey]; ok {
			if ub.FeedSpeed > 0 {
				cfg.FeedSpeed = ub.FeedSpeed
			}
			if ub.RetractSpeed > 0 {
				cfg.RetractSpeed = ub.RetractSpeed
			}
		}
		return cfg
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ace-controller_history")
}
