package pulsar

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// DynamicParam is a rule-owned value backed by the uniform buffer, so
// it can be edited at runtime without a shader rebuild.
type DynamicParam struct {
	Name  string
	Value any
}

// RuleContext is what a rule sees while lowering to WGSL.
type RuleContext struct {
	// Bounds is the half-extent of the simulation cube.
	Bounds float32
	// Index is the rule's position in the rule list; dynamic
	// parameters are addressed as rule<Index>_<name>.
	Index int
	// Fields resolves named spatial fields for field-coupled rules.
	Fields *FieldRegistry
	// Layout resolves named particle fields for rules that read or
	// write user-declared fields.
	Layout *Layout
}

// Param returns the WGSL expression for one of the rule's dynamic
// parameters.
func (c RuleContext) Param(name string) string {
	return "uniforms." + ruleParamName(c.Index, name)
}

// Rule is one step of the per-particle update. Rules lower to WGSL
// snippets that mutate the local `p` in declaration order.
type Rule interface {
	// Name is the stable identifier used by the persisted config.
	Name() string
	// RequiresNeighbors reports whether the rule reads the spatial
	// grid. Only then does the synthesizer emit a neighbor loop.
	RequiresNeighbors() bool
	// DynamicParams lists the uniform-backed parameters.
	DynamicParams() []DynamicParam
	// MainWGSL emits the rule's main-scope code block.
	MainWGSL(c RuleContext) string
}

// NeighborRule is the three-phase surface of a neighbor-reading rule:
// accumulator declarations before the loop, per-neighbor body, and the
// post-loop application.
type NeighborRule interface {
	Rule
	QueryRadius() float32
	NeighborInit(c RuleContext) string
	NeighborBody(c RuleContext) string
	NeighborPost(c RuleContext) string
}

// fieldValidator lets rules that reference named particle or spatial
// fields fail at build time instead of inside the WGSL validator.
type fieldValidator interface {
	Validate(c RuleContext) error
}

// typedRule marks rules whose WGSL reads or writes p.particle_type.
// The builder injects the discriminator field when any is present.
type typedRule interface {
	UsesParticleType() bool
}

func anyUsesParticleType(rules []Rule) bool {
	for _, r := range rules {
		if t, ok := r.(typedRule); ok && t.UsesParticleType() {
			return true
		}
	}
	return false
}

// maxQueryRadius is the largest neighbor radius any rule in the list
// declares; the grid cell size must cover it.
func maxQueryRadius(rules []Rule) float32 {
	var max float32
	for _, r := range rules {
		if nr, ok := r.(NeighborRule); ok && nr.QueryRadius() > max {
			max = nr.QueryRadius()
		}
	}
	return max
}

func anyRequiresNeighbors(rules []Rule) bool {
	for _, r := range rules {
		if r.RequiresNeighbors() {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Forces and motion

// Gravity pulls velocity.y down by g per second.
type Gravity struct {
	G float32
}

func (Gravity) Name() string            { return "gravity" }
func (Gravity) RequiresNeighbors() bool { return false }
func (r Gravity) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "g", Value: r.G}}
}
func (r Gravity) MainWGSL(c RuleContext) string {
	return fmt.Sprintf("    // Gravity\n    p.velocity.y -= %s * uniforms.delta_time;", c.Param("g"))
}

// Acceleration applies a constant acceleration vector.
type Acceleration struct {
	A mgl32.Vec3
}

func (Acceleration) Name() string            { return "acceleration" }
func (Acceleration) RequiresNeighbors() bool { return false }
func (r Acceleration) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "a", Value: r.A}}
}
func (r Acceleration) MainWGSL(c RuleContext) string {
	return fmt.Sprintf("    // Acceleration\n    p.velocity += %s * uniforms.delta_time;", c.Param("a"))
}

// Drag damps velocity; k=0 leaves it alone, large k stops the particle
// within a frame (clamped so it never reverses).
type Drag struct {
	K float32
}

func (Drag) Name() string            { return "drag" }
func (Drag) RequiresNeighbors() bool { return false }
func (r Drag) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "k", Value: r.K}}
}
func (r Drag) MainWGSL(c RuleContext) string {
	return fmt.Sprintf("    // Drag\n    p.velocity *= max(0.0, 1.0 - %s * uniforms.delta_time);", c.Param("k"))
}

// BounceWalls clamps the particle into the bounds cube and reflects
// the crossing velocity component.
type BounceWalls struct{}

func (BounceWalls) Name() string                  { return "bounce_walls" }
func (BounceWalls) RequiresNeighbors() bool       { return false }
func (BounceWalls) DynamicParams() []DynamicParam { return nil }
func (BounceWalls) MainWGSL(c RuleContext) string {
	b := wgslFloat(c.Bounds)
	return fmt.Sprintf(`    // Bounce off walls
    if p.position.x < -%[1]s {
        p.position.x = -%[1]s;
        p.velocity.x = abs(p.velocity.x);
    } else if p.position.x > %[1]s {
        p.position.x = %[1]s;
        p.velocity.x = -abs(p.velocity.x);
    }
    if p.position.y < -%[1]s {
        p.position.y = -%[1]s;
        p.velocity.y = abs(p.velocity.y);
    } else if p.position.y > %[1]s {
        p.position.y = %[1]s;
        p.velocity.y = -abs(p.velocity.y);
    }
    if p.position.z < -%[1]s {
        p.position.z = -%[1]s;
        p.velocity.z = abs(p.velocity.z);
    } else if p.position.z > %[1]s {
        p.position.z = %[1]s;
        p.velocity.z = -abs(p.velocity.z);
    }`, b)
}

// WrapWalls wraps positions modularly around [-bounds, bounds].
type WrapWalls struct{}

func (WrapWalls) Name() string                  { return "wrap_walls" }
func (WrapWalls) RequiresNeighbors() bool       { return false }
func (WrapWalls) DynamicParams() []DynamicParam { return nil }
func (WrapWalls) MainWGSL(c RuleContext) string {
	b := wgslFloat(c.Bounds)
	size := wgslFloat(c.Bounds * 2)
	return fmt.Sprintf(`    // Wrap around walls
    if p.position.x < -%[1]s { p.position.x += %[2]s; } else if p.position.x > %[1]s { p.position.x -= %[2]s; }
    if p.position.y < -%[1]s { p.position.y += %[2]s; } else if p.position.y > %[1]s { p.position.y -= %[2]s; }
    if p.position.z < -%[1]s { p.position.z += %[2]s; } else if p.position.z > %[1]s { p.position.z -= %[2]s; }`, b, size)
}

// SpeedLimit clamps the velocity magnitude into [Min, Max]. Particles
// at rest stay at rest even with Min > 0.
type SpeedLimit struct {
	Min float32
	Max float32
}

func (SpeedLimit) Name() string            { return "speed_limit" }
func (SpeedLimit) RequiresNeighbors() bool { return false }
func (r SpeedLimit) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "min", Value: r.Min}, {Name: "max", Value: r.Max}}
}
func (r SpeedLimit) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Speed limit
    {
        let speed = length(p.velocity);
        if speed > 0.0001 {
            let clamped = clamp(speed, %s, %s);
            p.velocity *= clamped / speed;
        }
    }`, c.Param("min"), c.Param("max"))
}

// PointGravity attracts toward a fixed point with softened inverse
// square falloff.
type PointGravity struct {
	Point     mgl32.Vec3
	Strength  float32
	Softening float32
}

func (PointGravity) Name() string            { return "point_gravity" }
func (PointGravity) RequiresNeighbors() bool { return false }
func (r PointGravity) DynamicParams() []DynamicParam {
	return []DynamicParam{
		{Name: "point", Value: r.Point},
		{Name: "strength", Value: r.Strength},
		{Name: "softening", Value: r.Softening},
	}
}
func (r PointGravity) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Point gravity
    {
        let to_point = %s - p.position;
        let dist_sq = dot(to_point, to_point);
        let soft = %s;
        let dist = sqrt(dist_sq);
        if dist > 0.0001 {
            let accel = %s / (dist_sq + soft * soft);
            p.velocity += (to_point / dist) * accel * uniforms.delta_time;
        }
    }`, c.Param("point"), c.Param("softening"), c.Param("strength"))
}

// AttractTo pulls toward a point at constant strength.
type AttractTo struct {
	Point    mgl32.Vec3
	Strength float32
}

func (AttractTo) Name() string            { return "attract_to" }
func (AttractTo) RequiresNeighbors() bool { return false }
func (r AttractTo) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "point", Value: r.Point}, {Name: "strength", Value: r.Strength}}
}
func (r AttractTo) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Attract to point
    {
        let attract_dir = %s - p.position;
        let dist = length(attract_dir);
        if dist > 0.001 {
            p.velocity += normalize(attract_dir) * %s * uniforms.delta_time;
        }
    }`, c.Param("point"), c.Param("strength"))
}

// RepelFrom pushes away from a point inside a radius with linear
// falloff. The radius is structural (it sizes nothing, but stays
// consistent with neighbor radii being fixed at build).
type RepelFrom struct {
	Point    mgl32.Vec3
	Strength float32
	Radius   float32
}

func (RepelFrom) Name() string            { return "repel_from" }
func (RepelFrom) RequiresNeighbors() bool { return false }
func (r RepelFrom) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "point", Value: r.Point}, {Name: "strength", Value: r.Strength}}
}
func (r RepelFrom) MainWGSL(c RuleContext) string {
	rad := wgslFloat(r.Radius)
	return fmt.Sprintf(`    // Repel from point
    {
        let repel_dir = p.position - %s;
        let dist = length(repel_dir);
        if dist < %s && dist > 0.001 {
            let force = (%s - dist) / %s * %s;
            p.velocity += normalize(repel_dir) * force * uniforms.delta_time;
        }
    }`, c.Param("point"), rad, rad, rad, c.Param("strength"))
}

// Curl applies an approximately divergence-free noise force by taking
// the curl of a simplex potential numerically.
type Curl struct {
	Scale    float32
	Strength float32
}

func (Curl) Name() string            { return "curl" }
func (Curl) RequiresNeighbors() bool { return false }
func (r Curl) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "scale", Value: r.Scale}, {Name: "strength", Value: r.Strength}}
}
func (r Curl) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Curl noise force
    {
        let cs = %s;
        let eps = 0.01;
        let q = p.position * cs + vec3<f32>(0.0, 0.0, uniforms.time * 0.1);
        let dy = noise3(q + vec3<f32>(0.0, eps, 0.0)) - noise3(q - vec3<f32>(0.0, eps, 0.0));
        let dz = noise3(q + vec3<f32>(0.0, 0.0, eps)) - noise3(q - vec3<f32>(0.0, 0.0, eps));
        let dx = noise3(q + vec3<f32>(eps, 0.0, 0.0)) - noise3(q - vec3<f32>(eps, 0.0, 0.0));
        let q2 = q + vec3<f32>(31.341, 17.923, 5.117);
        let dy2 = noise3(q2 + vec3<f32>(0.0, eps, 0.0)) - noise3(q2 - vec3<f32>(0.0, eps, 0.0));
        let dz2 = noise3(q2 + vec3<f32>(0.0, 0.0, eps)) - noise3(q2 - vec3<f32>(0.0, 0.0, eps));
        let dx2 = noise3(q2 + vec3<f32>(eps, 0.0, 0.0)) - noise3(q2 - vec3<f32>(eps, 0.0, 0.0));
        let curl = vec3<f32>(dy * dz2 - dz * dy2, dz * dx2 - dx * dz2, dx * dy2 - dy * dx2) / (2.0 * eps);
        p.velocity += curl * %s * uniforms.delta_time;
    }`, c.Param("scale"), c.Param("strength"))
}

// Turbulence applies plain (not divergence-free) noise force.
type Turbulence struct {
	Scale    float32
	Strength float32
}

func (Turbulence) Name() string            { return "turbulence" }
func (Turbulence) RequiresNeighbors() bool { return false }
func (r Turbulence) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "scale", Value: r.Scale}, {Name: "strength", Value: r.Strength}}
}
func (r Turbulence) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Turbulence
    {
        let ts = %s;
        let q = p.position * ts;
        let force = vec3<f32>(
            noise3(q),
            noise3(q + vec3<f32>(100.0, 0.0, 0.0)),
            noise3(q + vec3<f32>(0.0, 100.0, 0.0))
        );
        p.velocity += force * %s * uniforms.delta_time;
    }`, c.Param("scale"), c.Param("strength"))
}

// Wander random-walks the heading with time-varying noise.
type Wander struct {
	Strength  float32
	Frequency float32
}

func (Wander) Name() string            { return "wander" }
func (Wander) RequiresNeighbors() bool { return false }
func (r Wander) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "strength", Value: r.Strength}, {Name: "frequency", Value: r.Frequency}}
}
func (r Wander) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Wander
    {
        let t = uniforms.time * %s;
        let fi = f32(index) * 0.371;
        let force = vec3<f32>(
            noise3(vec3<f32>(fi, 0.0, t)),
            noise3(vec3<f32>(fi, 47.0, t)),
            noise3(vec3<f32>(fi, 93.0, t))
        );
        p.velocity += force * %s * uniforms.delta_time;
    }`, c.Param("frequency"), c.Param("strength"))
}

// Vortex applies a tangential force around an axis through a center.
type Vortex struct {
	Center   mgl32.Vec3
	Axis     mgl32.Vec3
	Strength float32
}

func (Vortex) Name() string            { return "vortex" }
func (Vortex) RequiresNeighbors() bool { return false }
func (r Vortex) DynamicParams() []DynamicParam {
	return []DynamicParam{
		{Name: "center", Value: r.Center},
		{Name: "axis", Value: r.Axis},
		{Name: "strength", Value: r.Strength},
	}
}
func (r Vortex) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Vortex
    {
        let arm = p.position - %s;
        let tangent = cross(normalize(%s), arm);
        let tlen = length(tangent);
        if tlen > 0.0001 {
            p.velocity += (tangent / tlen) * %s * uniforms.delta_time;
        }
    }`, c.Param("center"), c.Param("axis"), c.Param("strength"))
}

// Spring is Hooke's law toward a fixed anchor with velocity damping.
type Spring struct {
	Anchor  mgl32.Vec3
	K       float32
	Damping float32
}

func (Spring) Name() string            { return "spring" }
func (Spring) RequiresNeighbors() bool { return false }
func (r Spring) DynamicParams() []DynamicParam {
	return []DynamicParam{
		{Name: "anchor", Value: r.Anchor},
		{Name: "k", Value: r.K},
		{Name: "damping", Value: r.Damping},
	}
}
func (r Spring) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Spring to anchor
    {
        let stretch = p.position - %s;
        p.velocity += (-%s * stretch - %s * p.velocity) * uniforms.delta_time;
    }`, c.Param("anchor"), c.Param("k"), c.Param("damping"))
}

// Orbit pulls toward a center while preserving the current speed, so
// trajectories settle into roughly circular motion.
type Orbit struct {
	Center   mgl32.Vec3
	Strength float32
}

func (Orbit) Name() string            { return "orbit" }
func (Orbit) RequiresNeighbors() bool { return false }
func (r Orbit) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "center", Value: r.Center}, {Name: "strength", Value: r.Strength}}
}
func (r Orbit) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Orbit
    {
        let to_center = %s - p.position;
        let dist = length(to_center);
        if dist > 0.0001 {
            let speed_before = length(p.velocity);
            p.velocity += (to_center / dist) * %s * uniforms.delta_time;
            let speed_after = length(p.velocity);
            if speed_after > 0.0001 && speed_before > 0.0001 {
                p.velocity *= speed_before / speed_after;
            }
        }
    }`, c.Param("center"), c.Param("strength"))
}

// Custom is the escape hatch: raw WGSL mutating p and reading
// uniforms.
type Custom struct {
	Code string
}

func (Custom) Name() string                  { return "custom" }
func (Custom) RequiresNeighbors() bool       { return false }
func (Custom) DynamicParams() []DynamicParam { return nil }
func (r Custom) MainWGSL(c RuleContext) string {
	return "    // Custom rule\n" + r.Code
}

// Refractory couples a charge field to a trigger field: while the
// trigger exceeds the threshold the charge depletes, otherwise it
// regenerates toward 1.
type Refractory struct {
	TriggerField string
	ChargeField  string
	Threshold    float32
	Deplete      float32
	Regen        float32
}

func (Refractory) Name() string            { return "refractory" }
func (Refractory) RequiresNeighbors() bool { return false }
func (r Refractory) DynamicParams() []DynamicParam {
	return []DynamicParam{
		{Name: "threshold", Value: r.Threshold},
		{Name: "deplete", Value: r.Deplete},
		{Name: "regen", Value: r.Regen},
	}
}
func (r Refractory) Validate(c RuleContext) error {
	if c.Layout != nil {
		if !c.Layout.Has(r.TriggerField, F32) {
			return fmt.Errorf("refractory: no f32 field %q", r.TriggerField)
		}
		if !c.Layout.Has(r.ChargeField, F32) {
			return fmt.Errorf("refractory: no f32 field %q", r.ChargeField)
		}
	}
	return nil
}
func (r Refractory) MainWGSL(c RuleContext) string {
	return fmt.Sprintf(`    // Refractory charge
    if p.%[1]s > %[3]s {
        p.%[2]s = max(p.%[2]s - %[4]s * uniforms.delta_time, 0.0);
    } else {
        p.%[2]s = min(p.%[2]s + %[5]s * uniforms.delta_time, 1.0);
    }`, r.TriggerField, r.ChargeField, c.Param("threshold"), c.Param("deplete"), c.Param("regen"))
}
