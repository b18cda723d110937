package encoder

import (
	"testing"

	"cncfw/core"
)

// fakeI2C is a minimal core.I2CDriver stub that returns a queued
// sequence of raw big-endian 2-byte readings.
type fakeI2C struct {
	readings [][2]byte
	idx      int
}

func (f *fakeI2C) ConfigureBus(bus core.I2CBusID, frequencyHz uint32) error { return nil }
func (f *fakeI2C) Write(bus core.I2CBusID, addr core.I2CAddress, data []byte) error {
	return nil
}
func (f *fakeI2C) Read(bus core.I2CBusID, addr core.I2CAddress, regData []byte, readLen uint8) ([]byte, error) {
	r := f.readings[f.idx]
	if f.idx < len(f.readings)-1 {
		f.idx++
	}
	return []byte{r[0], r[1]}, nil
}
func (f *fakeI2C) GetMachineBus(bus core.I2CBusID) (interface{}, error) { return nil, nil }

func TestSampleAccumulatesMonotonicIncrease(t *testing.T) {
	fake := &fakeI2C{readings: [][2]byte{{0x00, 0x64}, {0x00, 0xC8}}} // 100, 200 raw counts
	e, err := New(fake, 0, 0x36, []byte{0x0C}, 4096, 100)             // 100 counts per mm
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := e.Sample(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos, err := e.Sample()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != 2.0 {
		t.Errorf("expected 2.0mm at 200 unwrapped counts (first reading 100, then a 100-count advance) at 100 counts/mm, got %v", pos)
	}
}

func TestSampleUnwrapsAcrossResolutionBoundary(t *testing.T) {
	// resolution 4096; raw goes 4090 -> 10, a forward wrap of 16 counts
	fake := &fakeI2C{readings: [][2]byte{{0x0F, 0xFA}, {0x00, 0x0A}}}
	e, err := New(fake, 0, 0x36, []byte{0x0C}, 4096, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := e.Sample(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Sample(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.unwrapped != 4090+16 {
		t.Errorf("expected unwrapped accumulator to advance by 16 across the wrap, got %v", e.unwrapped)
	}
}

func TestResetRebasesPosition(t *testing.T) {
	fake := &fakeI2C{readings: [][2]byte{{0x00, 0x64}}}
	e, err := New(fake, 0, 0x36, []byte{0x0C}, 4096, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Sample(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e.Reset(50)
	if e.Position() != 50 {
		t.Errorf("expected Reset to rebase Position to 50, got %v", e.Position())
	}
}

func TestNewRejectsZeroResolutionOrScale(t *testing.T) {
	fake := &fakeI2C{}
	if _, err := New(fake, 0, 0x36, nil, 0, 100); err == nil {
		t.Error("expected an error for zero resolution")
	}
	if _, err := New(fake, 0, 0x36, nil, 4096, 0); err == nil {
		t.Error("expected an error for zero counts_per_unit")
	}
}
