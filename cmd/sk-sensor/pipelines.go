package main

import (
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"github.com/sweeney/sk-sensor/internal/config"
	"github.com/sweeney/sk-sensor/internal/envsensor"
	"github.com/sweeney/sk-sensor/internal/flow"
	"github.com/sweeney/sk-sensor/internal/gpio"
	"github.com/sweeney/sk-sensor/internal/logic"
	"github.com/sweeney/sk-sensor/internal/scheduler"
	"github.com/sweeney/sk-sensor/internal/sensor"
	"github.com/sweeney/sk-sensor/internal/status"
	"github.com/sweeney/sk-sensor/internal/telemetry"
	"github.com/sweeney/sk-sensor/internal/transform"
)

// hardware is what the pipelines read from. Nil fields are absent devices.
type hardware struct {
	chip   gpio.Chip
	analog func() (float64, error)
	env    *envsensor.Reader
}

// publishCounter is an output whose publish errors are counted.
type publishCounter interface {
	telemetry.Configurable
	Failures() uint64
	Drops() uint64
}

// panicCounter is a stage that counts recovered subscriber panics.
type panicCounter interface {
	Failures() uint64
}

// pipelines owns everything registered on the loop for the configured inputs.
type pipelines struct {
	registry  telemetry.Registry
	closers   []io.Closer
	outputs   []publishCounter
	producers []panicCounter

	digitalInput1 *sensor.EdgeSensor[bool]
	flowCounter   *sensor.CounterSensor
	flowRate      *transform.Frequency
}

func (p *pipelines) addOutput(o publishCounter) {
	p.registry.Add(o)
	p.outputs = append(p.outputs, o)
}

func (p *pipelines) track(stages ...panicCounter) {
	p.producers = append(p.producers, stages...)
}

// stats adds the pipelines' failure and collapse counters to s.
func (p *pipelines) stats(s *status.LoopStats) {
	for _, o := range p.outputs {
		s.PublishFailures += o.Failures()
		s.PublishDrops += o.Drops()
	}
	for _, st := range p.producers {
		s.SubscriberPanics += st.Failures()
	}
	if p.digitalInput1 != nil {
		s.CollapsedEvents += p.digitalInput1.Collapsed()
	}
}

// Close releases every GPIO line the pipelines requested.
func (p *pipelines) Close() error {
	var first error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

// buildPipelines wires every enabled input to pub. On error, lines already
// requested are released.
func buildPipelines(loop *scheduler.Loop, hw hardware, pub telemetry.Publisher, cfg *config.Config) (*pipelines, error) {
	p := &pipelines{}
	if err := p.build(loop, hw, pub, cfg); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *pipelines) build(loop *scheduler.Loop, hw hardware, pub telemetry.Publisher, cfg *config.Config) error {
	if hw.analog != nil {
		p.analogInput(loop, hw.analog, pub, cfg)
	}
	if hw.chip != nil {
		if err := p.blinker(loop, hw.chip, "digital output", cfg.DigitalOutput); err != nil {
			return err
		}
		if err := p.blinker(loop, hw.chip, "heartbeat led", cfg.HeartbeatLED); err != nil {
			return err
		}
		if err := p.digitalInputChange(loop, hw.chip, cfg); err != nil {
			return err
		}
		if err := p.digitalInputRepeat(loop, hw.chip, pub, cfg); err != nil {
			return err
		}
		if err := p.flowMeter(loop, hw.chip, pub, cfg); err != nil {
			return err
		}
	}
	if hw.env != nil {
		p.environment(loop, hw.env, pub, cfg)
	}
	return nil
}

// analogInput: poll -> calibration -> output, with changes logged when
// log_values is set.
func (p *pipelines) analogInput(loop *scheduler.Loop, read func() (float64, error), pub telemetry.Publisher, cfg *config.Config) {
	ac := cfg.Analog
	s := sensor.NewRepeatSensor(loop, ac.Interval, sensor.Fallible("analog input", read, math.NaN()))
	s.SetName("analog_input")

	cal := transform.NewLinear(ac.Multiplier, ac.Offset)
	cal.SetName("analog_input.calibration")

	out := telemetry.NewOutput[float64](pub, ac.Output.Meta())
	p.addOutput(out)
	p.track(s, cal)

	tail := flow.Pipe[float64, float64](s, cal)
	flow.Connect[float64](tail, out)
	if cfg.LogValues {
		changes := transform.NewChangeFilter[float64]()
		changes.SetName("analog_input.changes")
		p.track(changes)
		flow.Connect[float64](flow.Pipe[float64, float64](tail, changes), flow.Consumer(func(v float64) {
			log.Printf("analog input value: %f", v)
		}))
	}
}

// blinker toggles an output pin every interval. Pin < 0 disables it.
func (p *pipelines) blinker(loop *scheduler.Loop, chip gpio.Chip, name string, bc config.BlinkConfig) error {
	if bc.Pin < 0 {
		return nil
	}
	out, err := chip.Output(bc.Pin, false)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	p.closers = append(p.closers, out)

	tg := gpio.NewToggler(out, false)
	loop.OnRepeat(bc.Interval, func() {
		if _, err := tg.Toggle(); err != nil {
			log.Printf("%s: %v", name, err)
		}
	})
	return nil
}

// digitalInputChange reports level changes seen by the kernel, optionally
// debounced, to a log consumer.
func (p *pipelines) digitalInputChange(loop *scheduler.Loop, chip gpio.Chip, cfg *config.Config) error {
	dc := cfg.DigitalInput1
	if dc.Pin < 0 {
		return nil
	}
	pull, err := gpio.ParsePull(dc.Pull)
	if err != nil {
		return fmt.Errorf("digital input 1: %w", err)
	}
	edge, err := logic.ParseEdge(dc.Edge)
	if err != nil {
		return fmt.Errorf("digital input 1: %w", err)
	}

	es := sensor.NewEdgeSensor[bool](loop)
	es.SetName("digital_input1")
	w, err := chip.Watch(dc.Pin, edge, pull, func(_ logic.Edge, level bool, _ time.Duration) {
		es.OnEvent(level)
	})
	if err != nil {
		es.Stop()
		return fmt.Errorf("digital input 1: %w", err)
	}
	p.closers = append(p.closers, w)
	p.digitalInput1 = es
	p.track(es)

	var src flow.Source[bool] = es
	if dc.Debounce > 0 {
		db := transform.NewDebounce[bool](loop, dc.Debounce)
		db.SetName("digital_input1.debounce")
		p.track(db)
		src = flow.Pipe[bool, bool](es, db)
	}
	flow.Connect[bool](src, flow.Consumer(func(v bool) {
		log.Printf("digital input 1 value changed: %v", v)
	}))
	return nil
}

// digitalInputRepeat polls a pin every interval and publishes its level.
func (p *pipelines) digitalInputRepeat(loop *scheduler.Loop, chip gpio.Chip, pub telemetry.Publisher, cfg *config.Config) error {
	dc := cfg.DigitalInput2
	if dc.Pin < 0 {
		return nil
	}
	pull, err := gpio.ParsePull(dc.Pull)
	if err != nil {
		return fmt.Errorf("digital input 2: %w", err)
	}
	in, err := chip.Input(dc.Pin, pull)
	if err != nil {
		return fmt.Errorf("digital input 2: %w", err)
	}
	p.closers = append(p.closers, in)

	s := sensor.NewRepeatSensor(loop, dc.Interval, sensor.Fallible("digital input 2", in.Read, false))
	s.SetName("digital_input2")

	out := telemetry.NewOutput[bool](pub, dc.Output.Meta())
	p.addOutput(out)
	p.track(s)
	flow.Connect[bool](s, out)
	return nil
}

// flowMeter counts pulses and converts them to a flow rate.
func (p *pipelines) flowMeter(loop *scheduler.Loop, chip gpio.Chip, pub telemetry.Publisher, cfg *config.Config) error {
	fc := cfg.FlowMeter
	if fc.Pin < 0 {
		return nil
	}
	pull, err := gpio.ParsePull(fc.Pull)
	if err != nil {
		return fmt.Errorf("flow meter: %w", err)
	}
	edge, err := logic.ParseEdge(fc.Edge)
	if err != nil {
		return fmt.Errorf("flow meter: %w", err)
	}
	if edge == logic.EdgeNone {
		return fmt.Errorf("flow meter: edge must be rising, falling or both")
	}

	counter := logic.NewEdgeCounter(edge, fc.Debounce)
	cs := sensor.NewCounterSensor(loop, counter, fc.Interval)
	cs.SetName("flow_meter.counter")

	w, err := chip.Watch(fc.Pin, edge, pull, func(e logic.Edge, _ bool, ts time.Duration) {
		cs.OnEdge(e, ts)
	})
	if err != nil {
		cs.Stop()
		return fmt.Errorf("flow meter: %w", err)
	}
	p.closers = append(p.closers, w)

	freq := transform.NewFrequency(fc.Multiplier)
	freq.SetName("flow_meter.frequency")

	out := telemetry.NewOutput[float64](pub, fc.Output.Meta())
	p.addOutput(out)
	p.track(cs, freq)
	flow.Connect[float64](flow.Pipe[logic.Count, float64](cs, freq), out)

	p.flowCounter = cs
	p.flowRate = freq
	return nil
}

// environment polls the four BME280 quantities.
func (p *pipelines) environment(loop *scheduler.Loop, env *envsensor.Reader, pub telemetry.Publisher, cfg *config.Config) {
	ec := cfg.BME280
	readings := []struct {
		name string
		read func() (float64, error)
		oc   config.OutputConfig
	}{
		{"temperature", env.Temperature, ec.Temperature},
		{"pressure", env.Pressure, ec.Pressure},
		{"humidity", env.Humidity, ec.Humidity},
		{"altitude", env.Altitude, ec.Altitude},
	}
	for _, r := range readings {
		s := sensor.NewRepeatSensor(loop, ec.Interval, sensor.Fallible("bme280 "+r.name, r.read, math.NaN()))
		s.SetName("bme280." + r.name)

		out := telemetry.NewOutput[float64](pub, r.oc.Meta())
		p.addOutput(out)
		p.track(s)

		name := r.name
		flow.Connect[float64](s, out, flow.Consumer(func(v float64) {
			if cfg.LogValues {
				log.Printf("bme280 %s: %.2f", name, v)
			}
		}))
	}
}
