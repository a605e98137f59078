package pulsar

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Hidden lifecycle fields injected into every layout:
//
//	age   f32  seconds since spawn/respawn
//	alive u32  0 = dead (skipped by rules), 1 = alive
//	scale f32  visual size multiplier
//
// Custom WGSL can read them as p.age, p.alive, p.scale.

// Age exists so rule lists can state their intent explicitly; the
// integrator always advances p.age for live particles, so the rule
// itself emits nothing.
type Age struct{}

func (Age) Name() string                  { return "age" }
func (Age) RequiresNeighbors() bool       { return false }
func (Age) DynamicParams() []DynamicParam { return nil }
func (Age) MainWGSL(c RuleContext) string { return "" }

// Lifetime kills particles older than Seconds.
type Lifetime struct {
	Seconds float32
}

func (Lifetime) Name() string            { return "lifetime" }
func (Lifetime) RequiresNeighbors() bool { return false }
func (r Lifetime) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "seconds", Value: r.Seconds}}
}
func (r Lifetime) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Lifetime
    if p.age > %s {
        kill_particle(&p);
    }`, c.Param("seconds"))
}

// FadeOut dims color to black over a lifetime of Seconds. The fade is
// applied multiplicatively per frame so no base color needs storing:
// scaling by (remaining - dt) / remaining each frame traces a linear
// ramp from the spawn color down to zero at age == Seconds.
type FadeOut struct {
	Seconds float32
}

func (FadeOut) Name() string            { return "fade_out" }
func (FadeOut) RequiresNeighbors() bool { return false }
func (r FadeOut) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "seconds", Value: r.Seconds}}
}
func (r FadeOut) Validate(c RuleContext) error {
	if c.Layout != nil && !c.Layout.Has("color", Vec3) {
		return fmt.Errorf("fade_out: layout has no vec3 color field")
	}
	return nil
}
func (r FadeOut) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Fade out over lifetime
    {
        let remaining = max(%s - p.age, 0.0001);
        p.color *= max((remaining - uniforms.delta_time) / remaining, 0.0);
    }`, c.Param("seconds"))
}

// ShrinkOut shrinks scale to zero over a lifetime of Seconds, using
// the same per-frame ramp as FadeOut.
type ShrinkOut struct {
	Seconds float32
}

func (ShrinkOut) Name() string            { return "shrink_out" }
func (ShrinkOut) RequiresNeighbors() bool { return false }
func (r ShrinkOut) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "seconds", Value: r.Seconds}}
}
func (r ShrinkOut) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Shrink out over lifetime
    {
        let remaining = max(%s - p.age, 0.0001);
        p.scale *= max((remaining - uniforms.delta_time) / remaining, 0.0);
    }`, c.Param("seconds"))
}

// ColorOverLife blends color from Start to End across a lifetime of
// Seconds. Unlike FadeOut this writes an absolute color each frame.
type ColorOverLife struct {
	Start   mgl32.Vec3
	End     mgl32.Vec3
	Seconds float32
}

func (ColorOverLife) Name() string            { return "color_over_life" }
func (ColorOverLife) RequiresNeighbors() bool { return false }
func (r ColorOverLife) DynamicParams() []DynamicParam {
	return []DynamicParam{
		{Name: "start", Value: r.Start},
		{Name: "end", Value: r.End},
		{Name: "seconds", Value: r.Seconds},
	}
}
func (r ColorOverLife) Validate(c RuleContext) error {
	if c.Layout != nil && !c.Layout.Has("color", Vec3) {
		return fmt.Errorf("color_over_life: layout has no vec3 color field")
	}
	return nil
}
func (r ColorOverLife) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Color over lifetime
    {
        let life_t = clamp(p.age / %s, 0.0, 1.0);
        p.color = mix(%s, %s, life_t);
    }`, c.Param("seconds"), c.Param("start"), c.Param("end"))
}

// RespawnBelow teleports particles that fall below Threshold back to
// Top, keeping their velocity and x/z position. Useful for endless
// rain or snow without emitters.
type RespawnBelow struct {
	Threshold float32
	Top       float32
}

func (RespawnBelow) Name() string            { return "respawn_below" }
func (RespawnBelow) RequiresNeighbors() bool { return false }
func (r RespawnBelow) DynamicParams() []DynamicParam {
	return []DynamicParam{
		{Name: "threshold", Value: r.Threshold},
		{Name: "top", Value: r.Top},
	}
}
func (r RespawnBelow) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Respawn below threshold
    if p.position.y < %s {
        p.position.y = %s;
        p.age = 0.0;
    }`, c.Param("threshold"), c.Param("top"))
}

// ---------------------------------------------------------------------------
// Lifecycle builder

// Lifecycle collects common aging, death and respawn settings and
// expands them into rules and emitters.
type Lifecycle struct {
	lifetime     float32
	hasLifetime  bool
	fadeOut      bool
	shrinkOut    bool
	colorStart   mgl32.Vec3
	colorEnd     mgl32.Vec3
	hasColorRamp bool
	emitters     []Emitter
	startDead    bool
}

func NewLifecycle() *Lifecycle { return &Lifecycle{} }

// Lifetime sets a fixed lifetime in seconds.
func (l *Lifecycle) Lifetime(seconds float32) *Lifecycle {
	l.lifetime = seconds
	l.hasLifetime = true
	return l
}

// LifetimeRange picks the midpoint of the range as the shared
// lifetime. Per-particle randomness would need a dedicated field.
func (l *Lifecycle) LifetimeRange(min, max float32) *Lifecycle {
	return l.Lifetime((min + max) / 2)
}

// FadeOut dims particles to black as they approach death.
func (l *Lifecycle) FadeOut() *Lifecycle {
	l.fadeOut = true
	return l
}

// ShrinkOut shrinks particles to nothing as they approach death.
func (l *Lifecycle) ShrinkOut() *Lifecycle {
	l.shrinkOut = true
	return l
}

// ColorOverLife ramps color from start at birth to end at death.
func (l *Lifecycle) ColorOverLife(start, end mgl32.Vec3) *Lifecycle {
	l.colorStart = start
	l.colorEnd = end
	l.hasColorRamp = true
	return l
}

// Emitter adds a respawn emitter.
func (l *Lifecycle) Emitter(e Emitter) *Lifecycle {
	l.emitters = append(l.emitters, e)
	return l
}

// StartDead makes the initial population spawn dead so emitters own
// all spawning.
func (l *Lifecycle) StartDead() *Lifecycle {
	l.startDead = true
	return l
}

// GetLifetime reports the configured lifetime, if any.
func (l *Lifecycle) GetLifetime() (float32, bool) {
	return l.lifetime, l.hasLifetime
}

// Build expands the configuration into rules, emitters and the
// start-dead flag.
func (l *Lifecycle) Build() (rules []Rule, emitters []Emitter, startDead bool) {
	hasAny := l.hasLifetime || l.fadeOut || l.shrinkOut || l.hasColorRamp
	if hasAny {
		rules = append(rules, Age{})
	}
	if l.hasLifetime {
		rules = append(rules, Lifetime{Seconds: l.lifetime})
		if l.fadeOut {
			rules = append(rules, FadeOut{Seconds: l.lifetime})
		}
		if l.shrinkOut {
			rules = append(rules, ShrinkOut{Seconds: l.lifetime})
		}
		if l.hasColorRamp {
			rules = append(rules, ColorOverLife{Start: l.colorStart, End: l.colorEnd, Seconds: l.lifetime})
		}
	}
	return rules, l.emitters, l.startDead
}

// ---------------------------------------------------------------------------
// Presets

// Fire is rising embers that fade and shrink.
func Fire(position mgl32.Vec3, rate float32) *Lifecycle {
	return NewLifecycle().
		Lifetime(1.5).
		FadeOut().
		ShrinkOut().
		ColorOverLife(mgl32.Vec3{1.0, 0.9, 0.3}, mgl32.Vec3{0.8, 0.2, 0.0}).
		Emitter(ConeEmitter{
			Position:  position,
			Direction: mgl32.Vec3{0, 1, 0},
			Speed:     0.8,
			Spread:    0.4,
			Rate:      rate,
		}).
		StartDead()
}

// Fountain arcs particles up and lets them fall.
func Fountain(position mgl32.Vec3, rate float32) *Lifecycle {
	return NewLifecycle().
		Lifetime(3.0).
		FadeOut().
		ColorOverLife(mgl32.Vec3{0.7, 0.85, 1.0}, mgl32.Vec3{0.2, 0.4, 0.8}).
		Emitter(ConeEmitter{
			Position:  position,
			Direction: mgl32.Vec3{0, 1, 0},
			Speed:     2.5,
			Spread:    0.2,
			Rate:      rate,
		}).
		StartDead()
}

// Explosion is a one-time radial burst.
func Explosion(position mgl32.Vec3, count uint32) *Lifecycle {
	return NewLifecycle().
		Lifetime(1.2).
		FadeOut().
		ShrinkOut().
		ColorOverLife(mgl32.Vec3{1.0, 1.0, 0.8}, mgl32.Vec3{1.0, 0.3, 0.0}).
		Emitter(BurstEmitter{
			Position: position,
			Count:    count,
			Speed:    3.0,
		}).
		StartDead()
}

// Smoke is slow-rising particles that fade without shrinking.
func Smoke(position mgl32.Vec3, rate float32) *Lifecycle {
	return NewLifecycle().
		Lifetime(4.0).
		FadeOut().
		ColorOverLife(mgl32.Vec3{0.4, 0.4, 0.4}, mgl32.Vec3{0.15, 0.15, 0.15}).
		Emitter(ConeEmitter{
			Position:  position,
			Direction: mgl32.Vec3{0, 1, 0},
			Speed:     0.3,
			Spread:    0.6,
			Rate:      rate,
		}).
		StartDead()
}

// Sparkler sprays fast, short-lived sparks in all directions.
func Sparkler(position mgl32.Vec3, rate float32) *Lifecycle {
	return NewLifecycle().
		Lifetime(0.5).
		FadeOut().
		ShrinkOut().
		ColorOverLife(mgl32.Vec3{1.0, 1.0, 1.0}, mgl32.Vec3{1.0, 0.6, 0.1}).
		Emitter(SphereEmitter{
			Center: position,
			Radius: 0.02,
			Speed:  2.0,
			Rate:   rate,
		}).
		StartDead()
}

// Rain drops particles from a ceiling volume.
func Rain(rate float32) *Lifecycle {
	return NewLifecycle().
		Lifetime(2.0).
		ColorOverLife(mgl32.Vec3{0.6, 0.7, 0.9}, mgl32.Vec3{0.4, 0.5, 0.7}).
		Emitter(BoxEmitter{
			Min:      mgl32.Vec3{-1.0, 0.9, -1.0},
			Max:      mgl32.Vec3{1.0, 1.0, 1.0},
			Velocity: mgl32.Vec3{0.0, -2.0, 0.0},
			Rate:     rate,
		}).
		StartDead()
}
