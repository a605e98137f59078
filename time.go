package pulsar

import "time"

// Clock is the single source of simulation time: elapsed seconds,
// per-frame delta, frame counter and a periodically refreshed FPS
// estimate. Supports pausing, time scaling and a fixed timestep for
// deterministic runs.
type Clock struct {
	start     time.Time
	lastFrame time.Time

	elapsed float32
	delta   float32
	frame   uint64

	fps            float32
	fpsFrameCount  uint64
	fpsUpdateTime  time.Time
	fpsInterval    time.Duration
	paused         bool
	pausedDuration time.Duration

	fixedDelta float32
	hasFixed   bool
	timeScale  float32
}

// NewClock returns a clock starting from now at normal speed.
func NewClock() *Clock {
	now := time.Now()
	return &Clock{
		start:         now,
		lastFrame:     now,
		fpsUpdateTime: now,
		fpsInterval:   500 * time.Millisecond,
		timeScale:     1,
	}
}

// Update advances the clock; call once per frame. Returns the elapsed
// and delta times in seconds.
func (c *Clock) Update() (elapsed, delta float32) {
	now := time.Now()

	if c.paused {
		c.delta = 0
		return c.elapsed, 0
	}

	rawDelta := float32(now.Sub(c.lastFrame).Seconds())
	if c.hasFixed {
		rawDelta = c.fixedDelta
	}
	c.delta = rawDelta * c.timeScale
	c.lastFrame = now

	c.elapsed = float32((now.Sub(c.start) - c.pausedDuration).Seconds()) * c.timeScale
	c.frame++

	if sinceFPS := now.Sub(c.fpsUpdateTime); sinceFPS >= c.fpsInterval {
		frames := c.frame - c.fpsFrameCount
		c.fps = float32(frames) / float32(sinceFPS.Seconds())
		c.fpsFrameCount = c.frame
		c.fpsUpdateTime = now
	}

	return c.elapsed, c.delta
}

// Elapsed is the total simulated seconds since start.
func (c *Clock) Elapsed() float32 { return c.elapsed }

// Delta is the last frame's simulated seconds.
func (c *Clock) Delta() float32 { return c.delta }

// Frame is the number of Update calls so far.
func (c *Clock) Frame() uint64 { return c.frame }

// FPS is the most recent frames-per-second estimate.
func (c *Clock) FPS() float32 { return c.fps }

// Paused reports whether the clock is paused.
func (c *Clock) Paused() bool { return c.paused }

// TimeScale is the current speed multiplier.
func (c *Clock) TimeScale() float32 { return c.timeScale }

// Pause freezes the clock: Delta reports 0 and Elapsed stops.
func (c *Clock) Pause() { c.paused = true }

// Resume continues from where Pause left off.
func (c *Clock) Resume() {
	if !c.paused {
		return
	}
	now := time.Now()
	c.pausedDuration += now.Sub(c.lastFrame)
	c.lastFrame = now
	c.paused = false
}

// TogglePause flips between paused and running.
func (c *Clock) TogglePause() {
	if c.paused {
		c.Resume()
	} else {
		c.Pause()
	}
}

// SetFixedDelta forces a constant timestep; pass 0 to return to wall
// clock timing.
func (c *Clock) SetFixedDelta(delta float32) {
	c.fixedDelta = delta
	c.hasFixed = delta > 0
}

// SetTimeScale sets the speed multiplier, clamped at 0.
func (c *Clock) SetTimeScale(scale float32) {
	if scale < 0 {
		scale = 0
	}
	c.timeScale = scale
}

// Reset returns the clock to its initial state.
func (c *Clock) Reset() {
	now := time.Now()
	*c = Clock{
		start:         now,
		lastFrame:     now,
		fpsUpdateTime: now,
		fpsInterval:   c.fpsInterval,
		timeScale:     c.timeScale,
	}
}
