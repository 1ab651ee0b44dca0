// Command sk-sensor samples analog, digital, pulse and environmental inputs
// and publishes them as telemetry paths to MQTT, Signal K and a serial console.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/sk-sensor/internal/analog"
	"github.com/sweeney/sk-sensor/internal/config"
	"github.com/sweeney/sk-sensor/internal/envsensor"
	"github.com/sweeney/sk-sensor/internal/gpio"
	"github.com/sweeney/sk-sensor/internal/i2c"
	"github.com/sweeney/sk-sensor/internal/mqtt"
	"github.com/sweeney/sk-sensor/internal/scheduler"
	"github.com/sweeney/sk-sensor/internal/serialout"
	"github.com/sweeney/sk-sensor/internal/signalk"
	"github.com/sweeney/sk-sensor/internal/status"
	"github.com/sweeney/sk-sensor/internal/telemetry"
	"github.com/sweeney/sk-sensor/internal/web"
	"github.com/urfave/cli"
)

var (
	configPath  string
	broker      string
	httpAddr    string
	signalkURL  string
	serialPort  string
	printState  bool
	printConfig bool
)

var flags = []cli.Flag{
	cli.StringFlag{
		Name:        "config, c",
		Usage:       "path to the YAML configuration file",
		EnvVar:      "SK_SENSOR_CONFIG",
		Value:       "/etc/sk-sensor/config.yaml",
		Destination: &configPath,
	},
	cli.StringFlag{
		Name:        "broker",
		Usage:       "MQTT broker address, overrides mqtt.broker (\"off\" disables)",
		Destination: &broker,
	},
	cli.StringFlag{
		Name:        "http",
		Usage:       "HTTP status address, overrides http.addr (\"off\" disables)",
		Destination: &httpAddr,
	},
	cli.StringFlag{
		Name:        "signalk",
		Usage:       "Signal K stream URL, overrides signalk.url (\"off\" disables)",
		Destination: &signalkURL,
	},
	cli.StringFlag{
		Name:        "serial",
		Usage:       "serial console port, overrides serial.port (\"off\" disables)",
		Destination: &serialPort,
	},
	cli.BoolFlag{
		Name:        "print-state",
		Usage:       "read every input once, print it and exit",
		Destination: &printState,
	},
	cli.BoolFlag{
		Name:        "print-config",
		Usage:       "print the effective configuration and exit",
		Destination: &printConfig,
	},
}

func main() {
	app := cli.App{
		Name:     "sk-sensor",
		HelpName: "sk-sensor",
		Usage:    "publish sensor readings to MQTT and Signal K",
		Version:  "v0.1.0",
		Flags:    flags,
		Action:   action,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func action(ctx *cli.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, overrides{
		broker:  broker,
		http:    httpAddr,
		signalk: signalkURL,
		serial:  serialPort,
	})

	if printConfig {
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}
	return run(cfg, printState)
}

type overrides struct {
	broker, http, signalk, serial string
}

// applyOverrides copies set flags over the file configuration. "off" clears
// the field, disabling that component.
func applyOverrides(cfg *config.Config, o overrides) {
	set := func(dst *string, v string) {
		switch v {
		case "":
		case "off":
			*dst = ""
		default:
			*dst = v
		}
	}
	set(&cfg.MQTT.Broker, o.broker)
	set(&cfg.HTTP.Addr, o.http)
	set(&cfg.SignalK.URL, o.signalk)
	set(&cfg.Serial.Port, o.serial)
}

// openHardware brings up the devices named in cfg. GPIO failures are fatal;
// a missing ADC or BME280 is logged and that input is left out.
func openHardware(cfg *config.Config) (hardware, []io.Closer, error) {
	var hw hardware
	var closers []io.Closer

	chip, err := gpio.NewRealChip(cfg.GPIO.Chip)
	if err != nil {
		return hw, nil, fmt.Errorf("init gpio: %w", err)
	}
	hw.chip = chip
	closers = append(closers, chip)

	if cfg.Analog.Enabled {
		in, err := analog.NewOsInput(cfg.Analog.Device, cfg.Analog.Channel, cfg.Analog.MaxRaw, cfg.Analog.Scale)
		switch {
		case err != nil:
			log.Printf("analog input disabled: %v", err)
		case !in.Available():
			log.Printf("analog input disabled: %s not found", in.Path())
		default:
			hw.analog = in.Read
		}
	}

	if cfg.BME280.Enabled {
		bus, err := i2c.Open(cfg.BME280.Bus)
		if err != nil {
			log.Printf("bme280 disabled: %v", err)
		} else {
			dev, err := envsensor.NewBME280(bus, uint16(cfg.BME280.Address))
			if err != nil {
				log.Printf("bme280 disabled: %v", err)
				bus.Close()
			} else {
				hw.env = envsensor.NewReader(dev, cfg.BME280.SeaLevelHPa)
				closers = append(closers, bus)
			}
		}
	}
	return hw, closers, nil
}

func run(cfg *config.Config, printState bool) error {
	hw, closers, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}()

	if printState {
		return printInputs(os.Stdout, hw, cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      cfg.Tick.Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		SignalK:     cfg.SignalK.URL,
		HTTPAddr:    cfg.HTTP.Addr,
	})

	// Transports. The tracker sees every value; network and serial sinks
	// sit behind queues so the loop never waits on I/O.
	sinks := telemetry.Multi{tracker}
	var links []linkStatus

	var publisher mqtt.Publisher = noopPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Prefix:   cfg.MQTT.Prefix,
			Backlog:  cfg.MQTT.Backlog,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		q := mqtt.NewAsync(p, cfg.MQTT.Backlog)
		q.Start(ctx)
		defer func() {
			cancel()
			q.Wait()
			q.Close()
		}()
		publisher = q
		sinks = append(sinks, q)
		links = append(links, linkStatus{set: tracker.SetMQTTConnected, conn: p})
	}

	var sk *signalk.Client
	if cfg.SignalK.URL != "" {
		sk = signalk.New(signalk.Options{
			URL:   cfg.SignalK.URL,
			Token: cfg.SignalK.Token,
			Label: cfg.SignalK.Label,
			Queue: cfg.SignalK.Queue,
		})
		sinks = append(sinks, sk)
		links = append(links, linkStatus{set: tracker.SetSignalKConnected, conn: sk})
	}

	if cfg.Serial.Port != "" {
		console, err := serialout.Open(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			ports, _ := serialout.Ports()
			log.Printf("serial console disabled: %v (available: %v)", err, ports)
		} else {
			defer console.Close()
			q := telemetry.NewAsync("serial", console, 64)
			q.Start(ctx)
			defer func() {
				cancel()
				q.Wait()
			}()
			sinks = append(sinks, q)
		}
	}

	loop := scheduler.New(time.Now)
	pl, err := buildPipelines(loop, hw, sinks, cfg)
	if err != nil {
		return fmt.Errorf("build pipelines: %w", err)
	}
	defer pl.Close()

	metas := pl.registry.Items()
	tracker.Declare(metas...)
	if sk != nil {
		if err := sk.SetMeta(metas); err != nil {
			log.Printf("signalk meta: %v", err)
		}
		go sk.Run(ctx)
	}

	mon := &monitor{loop: loop, tracker: tracker, links: links, pipelines: pl}
	scheduleHousekeeping(mon, publisher, cfg.MQTT.Heartbeat)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: tick=%v outputs=%d tasks=%d broker=%q signalk=%q",
		cfg.Tick, pl.registry.Len(), loop.Len(), cfg.MQTT.Broker, cfg.SignalK.URL)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctx, mon, publisher, time.Now, ticker.C, sigCh)
}

// linkStatus mirrors a transport's connection state into the tracker.
type linkStatus struct {
	set  func(bool)
	conn mqtt.ConnectionStatus
}

// monitor mirrors loop, pipeline and link state into the tracker.
type monitor struct {
	loop      *scheduler.Loop
	tracker   *status.Tracker
	links     []linkStatus
	pipelines *pipelines
}

func (m *monitor) refresh() {
	if m.tracker == nil {
		return
	}
	for _, l := range m.links {
		l.set(l.conn.IsConnected())
	}
	stats := status.LoopStats{Tasks: m.loop.Len(), Panics: m.loop.Panics()}
	if m.pipelines != nil {
		m.pipelines.stats(&stats)
	}
	m.tracker.SetLoop(stats)
}

// scheduleHousekeeping registers the status refresh and, when enabled, the
// MQTT heartbeat on the loop. The heartbeat only queues its event; publisher
// must not block.
func scheduleHousekeeping(m *monitor, publisher mqtt.Publisher, heartbeat time.Duration) {
	m.loop.OnRepeat(time.Second, m.refresh)

	if heartbeat <= 0 {
		return
	}
	m.loop.OnRepeat(heartbeat, func() {
		m.refresh()
		snap := m.tracker.Snapshot()
		log.Printf("heartbeat: uptime=%v outputs=%d panics=%d",
			snap.Uptime().Truncate(time.Second), len(snap.Readings), snap.Loop.Panics)

		event := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "HEARTBEAT",
			RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
		}
		if err := publisher.PublishSystem(event); err != nil {
			log.Printf("heartbeat publish error: %v", err)
		}
	})
}

// runLoop ticks the scheduler until a signal arrives, then publishes SHUTDOWN.
func runLoop(ctx context.Context, m *monitor, publisher mqtt.Publisher, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reason := make(chan string, 1)
	go func() {
		name := "UNKNOWN"
		defer func() { reason <- name }()
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			if s == syscall.SIGINT {
				name = "SIGINT"
			} else if s == syscall.SIGTERM {
				name = "SIGTERM"
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	err := m.loop.Run(ctx, tick, now)
	cancel()
	signalName := <-reason
	if err != nil && err != context.Canceled {
		return err
	}

	event := mqtt.SystemEvent{
		Timestamp: now(),
		Event:     "SHUTDOWN",
		Reason:    signalName,
		Retained:  true,
		Wait:      true,
	}
	if m.tracker != nil {
		m.refresh()
		event.RawPayload = status.FormatStatusEvent(m.tracker.Snapshot(), "SHUTDOWN", signalName)
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
	return nil
}

// noopPublisher stands in when MQTT is disabled.
type noopPublisher struct{}

func (noopPublisher) Publish(string, telemetry.Value) error { return nil }
func (noopPublisher) PublishSystem(mqtt.SystemEvent) error  { return nil }
func (noopPublisher) Close() error                          { return nil }

// printInputs reads every configured input once and writes "path: value"
// lines to w. Read errors are printed in place of the value.
func printInputs(w io.Writer, hw hardware, cfg *config.Config) error {
	line := func(path string, v telemetry.Value, err error) {
		if err != nil {
			fmt.Fprintf(w, "%s: error: %v\n", path, err)
			return
		}
		fmt.Fprintf(w, "%s: %s\n", path, v)
	}

	if hw.analog != nil {
		v, err := hw.analog()
		line(cfg.Analog.Output.Path, telemetry.Float(v*cfg.Analog.Multiplier+cfg.Analog.Offset), err)
	}

	if hw.chip != nil {
		pins := []struct {
			name string
			dc   config.DigitalInputConfig
		}{
			{"digital_input1", cfg.DigitalInput1},
			{"digital_input2", cfg.DigitalInput2},
		}
		for _, p := range pins {
			if p.dc.Pin < 0 {
				continue
			}
			path := p.dc.Output.Path
			if path == "" {
				path = "sensors." + p.name + ".value"
			}
			pull, err := gpio.ParsePull(p.dc.Pull)
			if err != nil {
				return fmt.Errorf("%s: %w", p.name, err)
			}
			in, err := hw.chip.Input(p.dc.Pin, pull)
			if err != nil {
				line(path, telemetry.Value{}, err)
				continue
			}
			level, err := in.Read()
			in.Close()
			line(path, telemetry.Bool(level), err)
		}
	}

	if hw.env != nil {
		ec := cfg.BME280
		reads := []struct {
			path string
			read func() (float64, error)
		}{
			{ec.Temperature.Path, hw.env.Temperature},
			{ec.Pressure.Path, hw.env.Pressure},
			{ec.Humidity.Path, hw.env.Humidity},
			{ec.Altitude.Path, hw.env.Altitude},
		}
		for _, r := range reads {
			v, err := r.read()
			line(r.path, telemetry.Float(v), err)
		}
	}
	return nil
}
