// Command blinkenbox toggles GPIO outputs in response to button presses on
// GPIO inputs, handing each edge from the interrupt handler to the output
// task over a small bounded channel.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/blinkenbox/internal/clock"
	"github.com/sweeney/blinkenbox/internal/gpio"
	"github.com/sweeney/blinkenbox/internal/logging"
	"github.com/sweeney/blinkenbox/internal/metrics"
	"github.com/sweeney/blinkenbox/internal/mqtt"
	"github.com/sweeney/blinkenbox/internal/pipeline"
	"github.com/sweeney/blinkenbox/internal/rt"
	"github.com/sweeney/blinkenbox/internal/status"
	"github.com/sweeney/blinkenbox/internal/web"
)

// options holds the raw flag values.
type options struct {
	level       string
	chip        string
	inputs      string
	outputs     string
	routes      string
	capacity    int
	noTimestamp bool
	heartbeat   time.Duration
	httpAddr    string
	broker      string
	printState  bool
}

// config is options after parsing and validation.
type config struct {
	options
	inputPins  []gpio.PinID
	outputPins []gpio.PinID
	routeTable []pipeline.Route
}

func newFlagSet(o *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("blinkenbox", pflag.ContinueOnError)
	fs.StringVarP(&o.level, "level", "l", "info", "Set log level")
	fs.StringVar(&o.chip, "chip", gpio.DefaultChip, "GPIO character device")
	fs.StringVar(&o.inputs, "inputs", gpio.FormatPins(gpio.DefaultInputs), "Input line offsets (pulled up, falling edge)")
	fs.StringVar(&o.outputs, "outputs", gpio.FormatPins(gpio.DefaultOutputs), "Output line offsets (driven low at start)")
	fs.StringVar(&o.routes, "routes", pipeline.FormatRoutes(pipeline.DefaultRoutes), "Selector bit to output offset, as bit:pin pairs")
	fs.IntVar(&o.capacity, "capacity", pipeline.DefaultCapacity, "Event channel capacity")
	fs.BoolVar(&o.noTimestamp, "no-timestamp", false, "Run without the monotonic clock")
	fs.DurationVar(&o.heartbeat, "heartbeat", 0, "Heartbeat interval (0 to disable)")
	fs.StringVar(&o.httpAddr, "http", "", "HTTP status and metrics address (empty to disable)")
	fs.StringVar(&o.broker, "broker", "", "MQTT broker for log mirroring (empty to disable)")
	fs.BoolVar(&o.printState, "print-state", false, "Print current line levels and exit")
	return fs
}

// parseConfig parses command line arguments. Cross-checks between inputs,
// outputs and routes happen later in pipeline.Split.
func parseConfig(args []string) (config, error) {
	var cfg config
	fs := newFlagSet(&cfg.options)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, errors.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	var err error
	if _, err = logging.ParseLevel(cfg.level); err != nil {
		return cfg, err
	}
	if cfg.inputPins, err = gpio.ParsePins(cfg.inputs); err != nil {
		return cfg, errors.Wrap(err, "--inputs")
	}
	if cfg.outputPins, err = gpio.ParsePins(cfg.outputs); err != nil {
		return cfg, errors.Wrap(err, "--outputs")
	}
	if cfg.routeTable, err = pipeline.ParseRoutes(cfg.routes); err != nil {
		return cfg, errors.Wrap(err, "--routes")
	}
	if len(cfg.inputPins) == 0 {
		return cfg, errors.New("--inputs: at least one input is required")
	}
	if len(cfg.outputPins) == 0 {
		return cfg, errors.New("--outputs: at least one output is required")
	}
	if cfg.capacity < 1 {
		return cfg, errors.Errorf("--capacity: must be at least 1, got %d", cfg.capacity)
	}
	if cfg.heartbeat < 0 {
		return cfg, errors.Errorf("--heartbeat: must not be negative, got %v", cfg.heartbeat)
	}
	return cfg, nil
}

func (c config) statusConfig() status.Config {
	return status.Config{
		Chip:        c.chip,
		Inputs:      gpio.FormatPins(c.inputPins),
		Outputs:     gpio.FormatPins(c.outputPins),
		Routes:      pipeline.FormatRoutes(c.routeTable),
		Capacity:    c.capacity,
		Timestamps:  !c.noTimestamp,
		HeartbeatMs: c.heartbeat.Milliseconds(),
		Broker:      c.broker,
		HTTPAddr:    c.httpAddr,
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		Exitf("%v\n", err)
	}

	consoleLog, err := logging.New(cfg.level, os.Stderr)
	if err != nil {
		Exitf("%v\n", err)
	}

	if cfg.printState {
		if err := printState(cfg, os.Stdout, gpio.ReadLevels); err != nil {
			consoleLog.Fatal().Err(err).Msg("print state")
		}
		return
	}

	newPublisher := func(broker string, log zerolog.Logger) brokerPublisher {
		return mqtt.NewRealPublisher(broker, log)
	}
	if err := serve(cfg, os.Stderr, newPublisher); err != nil {
		os.Exit(1)
	}
}

// brokerPublisher is what the daemon needs from an MQTT connection.
type brokerPublisher interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

// serve runs the daemon until shutdown. Failures are logged at fatal level
// here and returned, so the caller exits only after the broker connection
// has been closed cleanly.
func serve(cfg config, console io.Writer, newPublisher func(broker string, log zerolog.Logger) brokerPublisher) error {
	consoleLog, err := logging.New(cfg.level, console)
	if err != nil {
		return err
	}

	d := &daemon{cfg: cfg, log: consoleLog}
	if cfg.broker != "" {
		pub := newPublisher(cfg.broker, consoleLog)
		defer pub.Close()
		d.publisher = pub
		d.mqttStatus = pub
		d.logSink = mqtt.NewLogWriter(pub)
		if d.log, err = logging.New(cfg.level, console, d.logSink); err != nil {
			return err
		}
	}
	d.tracker = status.NewTracker(time.Now(), cfg.statusConfig())

	if err := run(d); err != nil {
		d.log.WithLevel(zerolog.FatalLevel).Err(err).Msg("blinkenbox failed")
		return err
	}
	return nil
}

// run opens the hardware and hands it to the daemon.
func run(d *daemon) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := rt.NewExecutor(ctx)
	bank, err := gpio.OpenBank(d.cfg.chip, d.cfg.inputPins, d.cfg.outputPins, func() {
		ex.Pend(rt.VectorGPIO)
	})
	if err != nil {
		return errors.Wrap(err, "open gpio")
	}
	defer func() {
		if err := bank.Close(); err != nil {
			d.log.Error().Err(err).Msg("releasing gpio lines")
		}
	}()

	var clk clock.Monotonic
	if !d.cfg.noTimestamp {
		clk = clock.NewSystem()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return d.run(ctx, cancel, ex, bank, clk, sigCh)
}

// daemon owns the pipeline and the optional side services.
type daemon struct {
	cfg     config
	log     zerolog.Logger
	tracker *status.Tracker

	// Nil when no broker is configured.
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	logSink    *mqtt.LogWriter
}

// run boots the pipeline on ex and blocks until a signal arrives or a
// side service fails. cancel must stop the context ex was created with.
func (d *daemon) run(ctx context.Context, cancel context.CancelFunc, ex *rt.Executor, bank gpio.Bank, clk clock.Monotonic, sig <-chan os.Signal) error {
	hr, tr, err := pipeline.Split(d.cfg.capacity, bank.Inputs(), bank.Outputs(), d.cfg.routeTable, clk)
	if err != nil {
		return errors.Wrap(err, "invalid pin configuration")
	}
	d.tracker.SetOutputs(d.cfg.outputPins, gpio.Low)

	handler := pipeline.NewHandler(hr, d.log, d.tracker)
	task := pipeline.NewTask(tr, d.log, d.tracker)
	if err := pipeline.Boot(ex, handler, task); err != nil {
		return err
	}
	if err := ex.Start(); err != nil {
		return errors.Wrap(err, "start executor")
	}

	d.publishSystem("STARTUP", "")
	d.log.Info().
		Str("chip", d.cfg.chip).
		Str("inputs", gpio.FormatPins(d.cfg.inputPins)).
		Str("outputs", gpio.FormatPins(d.cfg.outputPins)).
		Str("routes", pipeline.FormatRoutes(d.cfg.routeTable)).
		Int("capacity", d.cfg.capacity).
		Msg("started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(ex.Wait)
	if d.logSink != nil {
		g.Go(func() error { return d.logSink.Run(gctx) })
	}
	if d.cfg.httpAddr != "" {
		srv := web.New(d.cfg.httpAddr, d.tracker, metrics.Registry)
		g.Go(func() error { return srv.Run(gctx) })
		d.log.Info().Str("addr", d.cfg.httpAddr).Msg("http status server listening")
	}
	if d.cfg.heartbeat > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(d.cfg.heartbeat)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					d.heartbeat()
				case <-gctx.Done():
					return nil
				}
			}
		})
	}

	reason := "ERROR"
	select {
	case s := <-sig:
		reason = signalName(s)
		d.log.Info().Str("signal", reason).Msg("shutting down")
	case <-gctx.Done():
	}
	d.publishSystem("SHUTDOWN", reason)
	cancel()

	return g.Wait()
}

func (d *daemon) heartbeat() {
	c := d.tracker.Counts()
	d.log.Info().
		Uint64("interrupts", c.Interrupts).
		Uint64("enqueued", c.Enqueued).
		Uint64("dropped", c.Dropped).
		Uint64("received", c.Received).
		Uint64("toggles", c.Toggles).
		Msg("heartbeat")
	d.publishSystem("HEARTBEAT", "")
}

// publishSystem sends a lifecycle event carrying a full status snapshot.
// SHUTDOWN and STARTUP are retained.
func (d *daemon) publishSystem(event, reason string) {
	if d.publisher == nil {
		return
	}
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		d.log.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// levelReader samples pins on a chip without reconfiguring them.
type levelReader func(chip string, pins []gpio.PinID) ([]gpio.PinLevel, error)

// printState samples the configured lines once and prints their levels.
// Nothing is reconfigured, so outputs keep whatever they are driving.
func printState(cfg config, w io.Writer, read levelReader) error {
	ins, err := read(cfg.chip, cfg.inputPins)
	if err != nil {
		return errors.Wrap(err, "read inputs")
	}
	outs, err := read(cfg.chip, cfg.outputPins)
	if err != nil {
		return errors.Wrap(err, "read outputs")
	}
	return writeState(w, ins, outs)
}

func writeState(w io.Writer, ins, outs []gpio.PinLevel) error {
	_, err := fmt.Fprintf(w, "inputs: %s\noutputs: %s\n", formatLevels(ins), formatLevels(outs))
	return err
}

func formatLevels(levels []gpio.PinLevel) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = fmt.Sprintf("%d=%s", l.Pin, l.Level)
	}
	return strings.Join(parts, " ")
}

// Exitf prints the given error message and exits with code 1.
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
