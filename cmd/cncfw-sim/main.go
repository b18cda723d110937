// Command cncfw-sim is the host-mode motion-core simulator: it reads
// G-code from a serial device or stdin, drives the full core (planner,
// runtime, DDA) to completion after every line, and prints a status
// report. It has no firmware counterpart to run against; its role is
// exactly host/cmd/gopper-host's in the donor build - a development
// and bring-up console, not a production binary.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"cncfw/axis"
	"cncfw/block"
	"cncfw/canonical"
	"cncfw/config"
	"cncfw/core"
	"cncfw/dda"
	"cncfw/gcode"
	"cncfw/host/bridge"
	"cncfw/host/serial"
	"cncfw/planner"
	"cncfw/runtime"
	"cncfw/statcode"
	"cncfw/status"
	"cncfw/targets/relay"
)

var (
	device        = flag.String("device", "", "serial device to read G-code from (blank reads stdin)")
	baud          = flag.Int("baud", 250000, "baud rate (ignored for USB CDC)")
	statusTokens  = flag.String("status-tokens", "xvm,yvm,zvm,ja", "comma-separated config tokens to print after each line")
)

func main() {
	flag.Parse()

	m, q, rt, engine := buildMachine()

	registry := config.NewRegistry()
	config.BindAxisMachine(registry, m.Axes)
	config.BindCanonicalMachine(registry, m)

	reporter := status.NewReporter(registry)
	if err := reporter.SetTokens(strings.Split(*statusTokens, ",")); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	queueReport := status.NewQueueReport(planner.DefaultSize, planner.DefaultSize-4, 4)

	// The config/status side-channel runs over the same binary
	// transport a real build would use between host and MCU, just
	// carried over an in-process net.Pipe() instead of a serial port:
	// this console's "$token" / "$token=value" commands and its status
	// line both go through the wire protocol, not a direct function call.
	mcuConn, hostConn := net.Pipe()
	bridgeServer := bridge.NewServer(registry, reporter, mcuConn)
	go bridgeServer.Serve()
	bridgeClient := bridge.NewClient(hostConn)
	defer bridgeClient.Close()

	core.SetGPIODriver(newConsoleGPIO())

	// A single normally-open hardware limit switch closing to ground
	// (pulled up, active-low), wired to the same
	// hard-stop path as a DDA pulse-timing fault: tripping it means the
	// machine has physically reached a travel limit, independent of
	// (and faster than) anything the planner's own travel-max check
	// could catch in software.
	estop, err := core.ConfigureEndstop(0, 20, true, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure e-stop endstop: %v\n", err)
		os.Exit(1)
	}
	estop.TriggerSync = core.NewTriggerSync(1)
	estop.TriggerReason = uint8(statcode.StepperAssertionFailure)
	core.TriggerSyncAddSignal(estop.TriggerSync, func(reason uint8) {
		rt.HardStop(statcode.Code(reason), "hardware limit switch tripped")
	})

	relayBank, err := relay.NewBank(relay.Pins{
		SpindleEnable: 10, SpindleDir: 11, HasSpindleDir: true,
		CoolantFlood: 12, CoolantMist: 13,
	}, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure spindle/coolant relays: %v\n", err)
		os.Exit(1)
	}
	interp := gcode.NewInterpreter(m, relayBank.Hooks())
	parser := gcode.NewParser()

	var usec uint64
	engine.PowerControl = func(motorID int, enabled bool) {
		state := "off"
		if enabled {
			state = "on"
		}
		fmt.Printf("motor %d: power %s\n", motorID, state)
	}

	// A DDA pulse overrun is an assertion failure: wire it straight into
	// a hard stop rather than letting the simulator limp on with a
	// runtime that no longer matches the step generator's actual state.
	engine.OnFault(func(reason uint8) {
		rt.HardStop(statcode.Code(reason), "DDA reported a pulse-timing overrun")
	})
	go func() {
		for report := range core.ExceptionChannel {
			fmt.Fprintf(os.Stderr, "!! exception code=%d: %s\n", report.Code, report.Message)
		}
	}()

	reader, closeFn := openInput()
	defer closeFn()

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "$") {
			if err := handleConfigCommand(bridgeClient, line[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", line, err)
			}
			continue
		}
		cmd, err := parser.ParseLine(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
			continue
		}

		code, err := interp.Execute(cmd)
		for code == statcode.EAGAIN {
			if err := drainMotion(rt, engine, estop, queueReport, q, &usec); err != nil {
				fmt.Fprintf(os.Stderr, "motion error: %v\n", err)
				break
			}
			code, err = interp.Execute(cmd)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", line, err)
			continue
		}

		if err := drainMotion(rt, engine, estop, queueReport, q, &usec); err != nil {
			fmt.Fprintf(os.Stderr, "motion error: %v\n", err)
			continue
		}

		fmt.Printf("ok %s\n", formatReport(bridgeClient))
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read error: %v\n", err)
		os.Exit(1)
	}
}

// drainMotion pumps the runtime/DDA pipeline until the planner queue is
// empty, exactly the low/high priority split the design notes describe
// collapsed onto one goroutine for host-mode simulation. The limit
// switch is polled once per segment, the same cadence a real build
// would poll it from the low-priority scan rather than the step ISR.
func drainMotion(rt *runtime.Runtime, engine *dda.Engine, estop *core.Endstop, qr *status.QueueReport, q *planner.Queue, usec *uint64) error {
	for {
		if estop.Poll() {
			return nil
		}
		seg, code, err := rt.PrepareSegment()
		if err != nil {
			return err
		}
		if code == statcode.NOOP {
			return nil
		}
		if err := engine.LoadSegment(seg); err != nil {
			return err
		}
		ticks := seg.SegmentUsec / dda.TickUsec
		if ticks == 0 && seg.SegmentUsec > 0 {
			ticks = 1
		}
		for i := uint32(0); i < ticks; i++ {
			engine.Tick()
		}
		*usec += uint64(ticks) * dda.TickUsec
		engine.PollIdleTimeouts(*usec)
		if free, crossed := qr.Sample(q.Len()); crossed {
			fmt.Printf("queue: %d free\n", free)
		}
	}
}

// buildMachine assembles a representative three-axis mill: X/Y/Z, one
// motor per axis, 1.8 degree/step at 16 microsteps on a 40mm/rev
// ballscrew. It exists so the simulator has something to drive without
// requiring a config file format, which is out of this core's scope.
func buildMachine() (*canonical.Machine, *planner.Queue, *runtime.Runtime, *dda.Engine) {
	am := axis.NewMachine()
	var bindings []dda.MotorBinding

	for i := 0; i < 3; i++ {
		a := &am.Axes[i]
		a.Mode = axis.Standard
		a.VelocityMax = 8000
		a.FeedMax = 6000
		a.JerkMax = 1e7
		a.JunctionDeviation = 0.05

		// 1.8deg/step at 16 microsteps on a 40mm/rev ballscrew gives 80
		// steps/mm, keeping worst-case steps-per-tick comfortably under
		// the DDA's one-step-per-tick ceiling at FeedMax.
		motor := &axis.Motor{
			ID: i + 1, Axis: axis.Name(i),
			StepAngleDeg: 1.8, TravelPerRev: 40, Microsteps: 16,
			Power: axis.IdleOffAfterTimeout, IdleTimeoutSec: 30,
		}
		motor.Recompute()
		am.Motors = append(am.Motors, motor)

		stepper, err := core.NewStepper(uint8(i), uint8(i*2), uint8(i*2+1), false, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create stepper %d: %v\n", i, err)
			os.Exit(1)
		}
		bindings = append(bindings, dda.MotorBinding{Motor: motor, Stepper: stepper, Axis: axis.Name(i)})
	}

	q := planner.NewQueue(block.Vec{})
	cm := canonical.NewMachine(am, q)
	rt := runtime.New(q)
	engine := dda.NewEngine(bindings)
	if err := engine.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "dda engine misconfigured: %v\n", err)
		os.Exit(1)
	}
	return cm, q, rt, engine
}

// formatReport requests a status sample over the config/status bridge
// - the same VLQ/CRC16-framed round trip a real host/MCU pair would
// make - and renders it as sorted "name=value" pairs for the console.
func formatReport(client *bridge.Client) string {
	report, err := client.RequestStatus()
	if err != nil {
		return fmt.Sprintf("<status error: %v>", err)
	}
	names := make([]string, 0, len(report))
	for name := range report {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%g", name, report[name]))
	}
	return strings.Join(parts, " ")
}

// handleConfigCommand implements the console's "$name" (read) and
// "$name=value" (write) syntax, driving it through the same bridge
// round trip formatReport uses rather than calling registry.Get/Set
// directly - this is the operator-facing front end §6 describes for
// the configuration surface.
func handleConfigCommand(client *bridge.Client, rest string) error {
	if name, value, ok := strings.Cut(rest, "="); ok {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", value, err)
		}
		if err := client.SetToken(name, v); err != nil {
			return err
		}
		fmt.Printf("%s = %v\n", name, v)
		return nil
	}
	v, err := client.GetToken(rest)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %v\n", rest, v)
	return nil
}

func openInput() (io.Reader, func()) {
	if *device == "" {
		return os.Stdin, func() {}
	}
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	port, err := serial.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *device, err)
		os.Exit(1)
	}
	return port, func() { port.Close() }
}

// consoleGPIO is a core.GPIODriver that prints pin transitions instead
// of touching real hardware, the GPIO analogue of core.Stepper's
// nil-backend no-op, so targets/relay's spindle/coolant bank has
// somewhere to write without any board present.
type consoleGPIO struct {
	pins map[core.GPIOPin]bool
}

func newConsoleGPIO() *consoleGPIO {
	return &consoleGPIO{pins: make(map[core.GPIOPin]bool)}
}

func (c *consoleGPIO) ConfigureOutput(pin core.GPIOPin) error {
	c.pins[pin] = false
	return nil
}

func (c *consoleGPIO) ConfigureInputPullUp(pin core.GPIOPin) error {
	c.pins[pin] = true // an unconnected pulled-up input reads high
	return nil
}

func (c *consoleGPIO) ConfigureInputPullDown(pin core.GPIOPin) error { return nil }

func (c *consoleGPIO) SetPin(pin core.GPIOPin, value bool) error {
	if c.pins[pin] != value {
		fmt.Printf("gpio %d: %v\n", pin, value)
	}
	c.pins[pin] = value
	return nil
}

func (c *consoleGPIO) GetPin(pin core.GPIOPin) (bool, error) { return c.pins[pin], nil }
func (c *consoleGPIO) ReadPin(pin core.GPIOPin) bool         { return c.pins[pin] }
