package relay

import (
	"testing"

	"cncfw/core"
)

type fakeGPIO struct {
	pins map[core.GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO { return &fakeGPIO{pins: make(map[core.GPIOPin]bool)} }

func (f *fakeGPIO) ConfigureOutput(pin core.GPIOPin) error         { f.pins[pin] = false; return nil }
func (f *fakeGPIO) ConfigureInputPullUp(pin core.GPIOPin) error    { return nil }
func (f *fakeGPIO) ConfigureInputPullDown(pin core.GPIOPin) error  { return nil }
func (f *fakeGPIO) SetPin(pin core.GPIOPin, value bool) error      { f.pins[pin] = value; return nil }
func (f *fakeGPIO) GetPin(pin core.GPIOPin) (bool, error)          { return f.pins[pin], nil }
func (f *fakeGPIO) ReadPin(pin core.GPIOPin) bool                  { return f.pins[pin] }

func TestSpindleHookDrivesEnableAndDirection(t *testing.T) {
	driver := newFakeGPIO()
	core.SetGPIODriver(driver)

	bank, err := NewBank(Pins{
		SpindleEnable: 10, SpindleDir: 11, HasSpindleDir: true,
		CoolantFlood: 12, CoolantMist: 13,
	}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hooks := bank.Hooks()

	hooks.Spindle(true, false, 12000)
	if !driver.pins[10] {
		t.Error("expected the spindle enable pin driven high")
	}
	if !driver.pins[11] {
		t.Error("expected the direction pin high for counterclockwise")
	}

	hooks.Spindle(false, true, 0)
	if driver.pins[10] {
		t.Error("expected the spindle enable pin driven low on stop")
	}
}

func TestCoolantHookDrivesFloodAndMist(t *testing.T) {
	driver := newFakeGPIO()
	core.SetGPIODriver(driver)

	bank, err := NewBank(Pins{SpindleEnable: 20, CoolantFlood: 21, CoolantMist: 22}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hooks := bank.Hooks()

	hooks.Coolant(true, false)
	if !driver.pins[21] {
		t.Error("expected flood relay driven high")
	}
	if driver.pins[22] {
		t.Error("expected mist relay to stay low")
	}

	hooks.Coolant(false, false)
	if driver.pins[21] {
		t.Error("expected flood relay driven low once turned off")
	}
}
