// Package interactive provides the interactive console for
// ace-controller.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/topeysoft/ace-go/cmd/ace-controller/commands"
)

// Options configures the console.
type Options struct {
	// HistoryFile is the readline history path. Empty disables
	// persistent history.
	HistoryFile string
}

// Console handles interactive mode for ace-controller.
type Console struct {
	sess *commands.Session
	rl   *readline.Instance

	// Poll loop control
	pollCtx     context.Context
	pollCancel  context.CancelFunc
	pollRunning bool
}

// New creates a new interactive console.
func New(sess *commands.Session, opts Options) (*Console, error) {
	completer := readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("discover"),
		readline.PcItem("connect"),
		readline.PcItem("units"),
		readline.PcItem("info"),
		readline.PcItem("status"),
		readline.PcItem("feed"),
		readline.PcItem("retract"),
		readline.PcItem("assist"),
		readline.PcItem("dryer"),
		readline.PcItem("material"),
		readline.PcItem("reconnect"),
		readline.PcItem("poll", readline.PcItem("start"), readline.PcItem("stop")),
		readline.PcItem("quit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ace> ",
		HistoryFile:     opts.HistoryFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{sess: sess, rl: rl}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use this for log output to avoid mangling the input line.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline prompt.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	defer c.stopPoll()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "discover", "d":
			c.report(c.sess.Discover(c.rl.Stdout()))

		case "connect", "c":
			c.cmdConnect()

		case "units", "ls":
			c.report(c.sess.Units(c.rl.Stdout()))

		case "info", "i":
			c.cmdInfo(args)

		case "status", "s":
			c.cmdStatus(args)

		case "feed", "f":
			c.cmdFeed(args)

		case "retract", "r":
			c.cmdRetract(args)

		case "assist", "a":
			c.cmdAssist(args)

		case "dryer":
			c.cmdDryer(args)

		case "material", "m":
			c.cmdMaterial(args)

		case "reconnect":
			c.cmdReconnect(args)

		case "poll":
			c.cmdPoll(args)

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
ACE Controller Commands:
  Bus:
    discover                      - List units on the bus
    connect                       - Connect to every discovered unit
    units                         - List connected units
    reconnect <unit>              - Rebuild one unit's connection

  Filament:
    feed <unit> <ch> <mm> [speed]    - Feed filament toward the printer
    retract <unit> <ch> <mm> [speed] - Pull filament back
    assist <unit> <ch> on|off        - Toggle feed assist
    material <unit> <ch> <name>      - Record the filament on a channel

  Dryer:
    dryer <unit> start <temp> [min]  - Start the drying cycle
    dryer <unit> stop                - Stop the drying cycle

  Status:
    info <unit>                   - Show model, firmware and limits
    status [unit]                 - Show channel and dryer state
    poll start|stop               - Background status polling

  General:
    help                          - Show this help
    quit                          - Exit

  Units are addressed by ordinal, topology key or configured name.`)
}

// report prints a command error, if any.
func (c *Console) report(err error) {
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
	}
}

func (c *Console) cmdConnect() {
	n, err := c.sess.Connect()
	if err != nil {
		c.report(err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Connected %d unit(s), %d registered\n", n, c.sess.Registry.Len())
}

func (c *Console) cmdInfo(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: info <unit>")
		return
	}
	c.report(c.sess.Info(c.rl.Stdout(), args[0]))
}

func (c *Console) cmdStatus(args []string) {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	c.report(c.sess.Status(c.rl.Stdout(), arg))
}

func (c *Console) cmdFeed(args []string) {
	if len(args) < 3 || len(args) > 4 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: feed <unit> <channel> <mm> [speed]")
		return
	}
	speed := ""
	if len(args) == 4 {
		speed = args[3]
	}
	c.report(c.sess.Feed(c.rl.Stdout(), args[0], args[1], args[2], speed))
}

func (c *Console) cmdRetract(args []string) {
	if len(args) < 3 || len(args) > 4 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: retract <unit> <channel> <mm> [speed]")
		return
	}
	speed := ""
	if len(args) == 4 {
		speed = args[3]
	}
	c.report(c.sess.Retract(c.rl.Stdout(), args[0], args[1], args[2], speed))
}

func (c *Console) cmdAssist(args []string) {
	if len(args) != 3 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: assist <unit> <channel> on|off")
		return
	}
	c.report(c.sess.Assist(c.rl.Stdout(), args[0], args[1], args[2]))
}

func (c *Console) cmdDryer(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: dryer <unit> start <temp> [minutes]")
		fmt.Fprintln(c.rl.Stdout(), "       dryer <unit> stop")
		return
	}
	c.report(c.sess.Dryer(c.rl.Stdout(), args[0], args[1], args[2:]))
}

func (c *Console) cmdMaterial(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: material <unit> <channel> <name>")
		return
	}
	name := strings.Join(args[2:], " ")
	c.report(c.sess.Material(c.rl.Stdout(), args[0], args[1], name))
}

func (c *Console) cmdReconnect(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: reconnect <unit>")
		return
	}
	c.report(c.sess.Reconnect(c.rl.Stdout(), args[0]))
}

func (c *Console) cmdPoll(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: poll start|stop")
		return
	}
	switch strings.ToLower(args[0]) {
	case "start":
		if c.pollRunning {
			fmt.Fprintln(c.rl.Stdout(), "Polling already running")
			return
		}
		c.startPoll()
		fmt.Fprintln(c.rl.Stdout(), "Polling started")
	case "stop":
		if !c.pollRunning {
			fmt.Fprintln(c.rl.Stdout(), "Polling not running")
			return
		}
		c.stopPoll()
		fmt.Fprintln(c.rl.Stdout(), "Polling stopped")
	default:
		fmt.Fprintln(c.rl.Stdout(), "Usage: poll start|stop")
	}
}

// startPoll runs the watch loop in the background, writing through the
// readline prompt.
func (c *Console) startPoll() {
	if c.pollRunning {
		return
	}
	c.pollCtx, c.pollCancel = context.WithCancel(context.Background())
	c.pollRunning = true
	go func(ctx context.Context) {
		err := c.sess.Watch(ctx, refreshWriter{c.rl}, "", commands.DefaultWatchInterval)
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Polling stopped: %v\n", err)
			c.rl.Refresh()
		}
	}(c.pollCtx)
}

func (c *Console) stopPoll() {
	if !c.pollRunning {
		return
	}
	if c.pollCancel != nil {
		c.pollCancel()
	}
	c.pollRunning = false
}

// refreshWriter redraws the prompt after each asynchronous write.
type refreshWriter struct {
	rl *readline.Instance
}

func (w refreshWriter) Write(p []byte) (int, error) {
	n, err := w.rl.Stdout().Write(p)
	w.rl.Refresh()
	return n, err
}
