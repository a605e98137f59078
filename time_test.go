package pulsar

import "testing"

func TestClock_FixedDelta(t *testing.T) {
	c := NewClock()
	c.SetFixedDelta(1.0 / 60)

	for i := 0; i < 3; i++ {
		_, delta := c.Update()
		if delta != 1.0/60 {
			t.Errorf("update %d: delta = %v, want 1/60", i, delta)
		}
	}
	if c.Frame() != 3 {
		t.Errorf("Frame = %d, want 3", c.Frame())
	}
}

func TestClock_Pause(t *testing.T) {
	c := NewClock()
	c.SetFixedDelta(0.1)
	c.Update()
	frame := c.Frame()
	elapsed := c.Elapsed()

	c.Pause()
	if !c.Paused() {
		t.Fatal("Paused() = false after Pause")
	}
	got, delta := c.Update()
	if delta != 0 {
		t.Errorf("paused delta = %v, want 0", delta)
	}
	if got != elapsed {
		t.Errorf("paused elapsed = %v, want frozen at %v", got, elapsed)
	}
	if c.Frame() != frame {
		t.Errorf("paused frame advanced to %d", c.Frame())
	}

	c.Resume()
	if _, delta := c.Update(); delta != 0.1 {
		t.Errorf("resumed delta = %v, want 0.1", delta)
	}
}

func TestClock_TogglePause(t *testing.T) {
	c := NewClock()
	c.TogglePause()
	if !c.Paused() {
		t.Error("first toggle should pause")
	}
	c.TogglePause()
	if c.Paused() {
		t.Error("second toggle should resume")
	}
}

func TestClock_TimeScale(t *testing.T) {
	c := NewClock()
	c.SetFixedDelta(0.1)
	c.SetTimeScale(2)
	if _, delta := c.Update(); delta != 0.2 {
		t.Errorf("scaled delta = %v, want 0.2", delta)
	}

	c.SetTimeScale(-5)
	if c.TimeScale() != 0 {
		t.Errorf("TimeScale = %v, negative scale should clamp to 0", c.TimeScale())
	}
	if _, delta := c.Update(); delta != 0 {
		t.Errorf("zero-scale delta = %v, want 0", delta)
	}
}

func TestClock_Reset(t *testing.T) {
	c := NewClock()
	c.SetFixedDelta(0.1)
	c.SetTimeScale(2)
	c.Update()
	c.Update()

	c.Reset()
	if c.Frame() != 0 {
		t.Errorf("Frame after reset = %d", c.Frame())
	}
	if c.Elapsed() != 0 {
		t.Errorf("Elapsed after reset = %v", c.Elapsed())
	}
	if c.TimeScale() != 2 {
		t.Errorf("Reset should keep the time scale, got %v", c.TimeScale())
	}
}
