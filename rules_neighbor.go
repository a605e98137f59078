package pulsar

import (
	"fmt"
)

// acc returns a loop-accumulator variable name scoped to this rule, so
// several neighbor rules can share one merged loop without colliding.
func (c RuleContext) acc(name string) string {
	return fmt.Sprintf("r%d_%s", c.Index, name)
}

// ---------------------------------------------------------------------------
// Flocking

// Separate steers away from neighbors inside Radius, weighted by
// inverse distance.
type Separate struct {
	Radius   float32
	Strength float32
}

func (Separate) Name() string            { return "separate" }
func (Separate) RequiresNeighbors() bool { return true }
func (r Separate) QueryRadius() float32  { return r.Radius }
func (r Separate) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "strength", Value: r.Strength}}
}
func (r Separate) NeighborInit(c RuleContext) string {
	return fmt.Sprintf("    var %s = vec3<f32>(0.0);", c.acc("sep"))
}
func (r Separate) NeighborBody(c RuleContext) string {
	return fmt.Sprintf(`            if neighbor_dist < %s && neighbor_dist > 0.0001 {
                %s += neighbor_dir / neighbor_dist;
            }`, wgslFloat(r.Radius), c.acc("sep"))
}
func (r Separate) NeighborPost(c RuleContext) string {
	return fmt.Sprintf("    p.velocity += %s * %s * uniforms.delta_time;", c.acc("sep"), c.Param("strength"))
}
func (r Separate) MainWGSL(c RuleContext) string { return "" }

// Cohere steers toward the mean position of neighbors inside Radius.
type Cohere struct {
	Radius   float32
	Strength float32
}

func (Cohere) Name() string            { return "cohere" }
func (Cohere) RequiresNeighbors() bool { return true }
func (r Cohere) QueryRadius() float32  { return r.Radius }
func (r Cohere) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "strength", Value: r.Strength}}
}
func (r Cohere) NeighborInit(c RuleContext) string {
	return fmt.Sprintf(`    var %s = vec3<f32>(0.0);
    var %s = 0u;`, c.acc("coh_sum"), c.acc("coh_n"))
}
func (r Cohere) NeighborBody(c RuleContext) string {
	return fmt.Sprintf(`            if neighbor_dist < %s {
                %s += neighbor_pos;
                %s += 1u;
            }`, wgslFloat(r.Radius), c.acc("coh_sum"), c.acc("coh_n"))
}
func (r Cohere) NeighborPost(c RuleContext) string {
	return fmt.Sprintf(`    if %[1]s > 0u {
        let center = %[2]s / f32(%[1]s);
        p.velocity += (center - p.position) * %[3]s * uniforms.delta_time;
    }`, c.acc("coh_n"), c.acc("coh_sum"), c.Param("strength"))
}
func (r Cohere) MainWGSL(c RuleContext) string { return "" }

// Align steers toward the mean velocity of neighbors inside Radius.
type Align struct {
	Radius   float32
	Strength float32
}

func (Align) Name() string            { return "align" }
func (Align) RequiresNeighbors() bool { return true }
func (r Align) QueryRadius() float32  { return r.Radius }
func (r Align) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "strength", Value: r.Strength}}
}
func (r Align) NeighborInit(c RuleContext) string {
	return fmt.Sprintf(`    var %s = vec3<f32>(0.0);
    var %s = 0u;`, c.acc("ali_sum"), c.acc("ali_n"))
}
func (r Align) NeighborBody(c RuleContext) string {
	return fmt.Sprintf(`            if neighbor_dist < %s {
                %s += neighbor_vel;
                %s += 1u;
            }`, wgslFloat(r.Radius), c.acc("ali_sum"), c.acc("ali_n"))
}
func (r Align) NeighborPost(c RuleContext) string {
	return fmt.Sprintf(`    if %[1]s > 0u {
        let mean_vel = %[2]s / f32(%[1]s);
        p.velocity += (mean_vel - p.velocity) * %[3]s * uniforms.delta_time;
    }`, c.acc("ali_n"), c.acc("ali_sum"), c.Param("strength"))
}
func (r Align) MainWGSL(c RuleContext) string { return "" }

// ---------------------------------------------------------------------------
// Pairwise physics

// Collide pushes overlapping particles apart. Radius is the contact
// distance; the push is proportional to penetration depth.
type Collide struct {
	Radius   float32
	Strength float32
}

func (Collide) Name() string            { return "collide" }
func (Collide) RequiresNeighbors() bool { return true }
func (r Collide) QueryRadius() float32  { return r.Radius }
func (r Collide) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "strength", Value: r.Strength}}
}
func (r Collide) NeighborInit(c RuleContext) string {
	return fmt.Sprintf("    var %s = vec3<f32>(0.0);", c.acc("push"))
}
func (r Collide) NeighborBody(c RuleContext) string {
	rad := wgslFloat(r.Radius)
	return fmt.Sprintf(`            if neighbor_dist < %s && neighbor_dist > 0.0001 {
                let overlap = %s - neighbor_dist;
                %s += neighbor_dir * overlap;
            }`, rad, rad, c.acc("push"))
}
func (r Collide) NeighborPost(c RuleContext) string {
	return fmt.Sprintf("    p.velocity += %s * %s * uniforms.delta_time;", c.acc("push"), c.Param("strength"))
}
func (r Collide) MainWGSL(c RuleContext) string { return "" }

// NBodyGravity is softened pairwise inverse-square attraction within
// Radius.
type NBodyGravity struct {
	Strength  float32
	Softening float32
	Radius    float32
}

func (NBodyGravity) Name() string            { return "nbody_gravity" }
func (NBodyGravity) RequiresNeighbors() bool { return true }
func (r NBodyGravity) QueryRadius() float32  { return r.Radius }
func (r NBodyGravity) DynamicParams() []DynamicParam {
	return []DynamicParam{
		{Name: "strength", Value: r.Strength},
		{Name: "softening", Value: r.Softening},
	}
}
func (r NBodyGravity) NeighborInit(c RuleContext) string {
	return fmt.Sprintf("    var %s = vec3<f32>(0.0);", c.acc("grav"))
}
func (r NBodyGravity) NeighborBody(c RuleContext) string {
	return fmt.Sprintf(`            if neighbor_dist < %s && neighbor_dist > 0.0001 {
                let soft = %s;
                %s -= neighbor_dir / (neighbor_dist * neighbor_dist + soft * soft);
            }`, wgslFloat(r.Radius), c.Param("softening"), c.acc("grav"))
}
func (r NBodyGravity) NeighborPost(c RuleContext) string {
	return fmt.Sprintf("    p.velocity += %s * %s * uniforms.delta_time;", c.acc("grav"), c.Param("strength"))
}
func (r NBodyGravity) MainWGSL(c RuleContext) string { return "" }

// LennardJones applies the 12-6 potential force inside Cutoff. The
// force is clamped to keep close contacts from exploding the
// integrator.
type LennardJones struct {
	Epsilon float32
	Sigma   float32
	Cutoff  float32
}

func (LennardJones) Name() string            { return "lennard_jones" }
func (LennardJones) RequiresNeighbors() bool { return true }
func (r LennardJones) QueryRadius() float32  { return r.Cutoff }
func (r LennardJones) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "epsilon", Value: r.Epsilon}, {Name: "sigma", Value: r.Sigma}}
}
func (r LennardJones) NeighborInit(c RuleContext) string {
	return fmt.Sprintf("    var %s = vec3<f32>(0.0);", c.acc("lj"))
}
func (r LennardJones) NeighborBody(c RuleContext) string {
	return fmt.Sprintf(`            if neighbor_dist < %s && neighbor_dist > 0.0001 {
                let sr = %s / neighbor_dist;
                let sr6 = sr * sr * sr * sr * sr * sr;
                let sr12 = sr6 * sr6;
                let mag = clamp(24.0 * %s * (2.0 * sr12 - sr6) / neighbor_dist, -1000.0, 1000.0);
                %s += neighbor_dir * mag;
            }`, wgslFloat(r.Cutoff), c.Param("sigma"), c.Param("epsilon"), c.acc("lj"))
}
func (r LennardJones) NeighborPost(c RuleContext) string {
	return fmt.Sprintf("    p.velocity += %s * uniforms.delta_time;", c.acc("lj"))
}
func (r LennardJones) MainWGSL(c RuleContext) string { return "" }

// Pressure is a cheap SPH-style repulsion: local density over the
// kernel radius, pushing down the density gradient toward
// TargetDensity.
type Pressure struct {
	Radius        float32
	Strength      float32
	TargetDensity float32
}

func (Pressure) Name() string            { return "pressure" }
func (Pressure) RequiresNeighbors() bool { return true }
func (r Pressure) QueryRadius() float32  { return r.Radius }
func (r Pressure) DynamicParams() []DynamicParam {
	return []DynamicParam{
		{Name: "strength", Value: r.Strength},
		{Name: "target_density", Value: r.TargetDensity},
	}
}
func (r Pressure) NeighborInit(c RuleContext) string {
	return fmt.Sprintf(`    var %s = 0.0;
    var %s = vec3<f32>(0.0);`, c.acc("density"), c.acc("grad"))
}
func (r Pressure) NeighborBody(c RuleContext) string {
	rad := wgslFloat(r.Radius)
	return fmt.Sprintf(`            if neighbor_dist < %s {
                let w = 1.0 - neighbor_dist / %s;
                %s += w * w;
                if neighbor_dist > 0.0001 {
                    %s += neighbor_dir * w;
                }
            }`, rad, rad, c.acc("density"), c.acc("grad"))
}
func (r Pressure) NeighborPost(c RuleContext) string {
	return fmt.Sprintf(`    {
        let excess = %s - %s;
        if excess > 0.0 {
            p.velocity += %s * excess * %s * uniforms.delta_time;
        }
    }`, c.acc("density"), c.Param("target_density"), c.acc("grad"), c.Param("strength"))
}
func (r Pressure) MainWGSL(c RuleContext) string { return "" }

// Viscosity relaxes velocity toward the kernel-weighted neighborhood
// mean.
type Viscosity struct {
	Radius   float32
	Strength float32
}

func (Viscosity) Name() string            { return "viscosity" }
func (Viscosity) RequiresNeighbors() bool { return true }
func (r Viscosity) QueryRadius() float32  { return r.Radius }
func (r Viscosity) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "strength", Value: r.Strength}}
}
func (r Viscosity) NeighborInit(c RuleContext) string {
	return fmt.Sprintf(`    var %s = vec3<f32>(0.0);
    var %s = 0.0;`, c.acc("visc_sum"), c.acc("visc_w"))
}
func (r Viscosity) NeighborBody(c RuleContext) string {
	rad := wgslFloat(r.Radius)
	return fmt.Sprintf(`            if neighbor_dist < %s {
                let w = 1.0 - neighbor_dist / %s;
                %s += neighbor_vel * w;
                %s += w;
            }`, rad, rad, c.acc("visc_sum"), c.acc("visc_w"))
}
func (r Viscosity) NeighborPost(c RuleContext) string {
	return fmt.Sprintf(`    if %[1]s > 0.0001 {
        let mean_vel = %[2]s / %[1]s;
        p.velocity += (mean_vel - p.velocity) * %[3]s * uniforms.delta_time;
    }`, c.acc("visc_w"), c.acc("visc_sum"), c.Param("strength"))
}
func (r Viscosity) MainWGSL(c RuleContext) string { return "" }

// ---------------------------------------------------------------------------
// Typed pursuit

// Chase steers particles of SelfType toward the nearest particle of
// OtherType within Radius.
type Chase struct {
	SelfType  uint32
	OtherType uint32
	Radius    float32
	Strength  float32
}

func (Chase) Name() string            { return "chase" }
func (Chase) UsesParticleType() bool  { return true }
func (Chase) RequiresNeighbors() bool { return true }
func (r Chase) QueryRadius() float32  { return r.Radius }
func (r Chase) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "strength", Value: r.Strength}}
}
func (r Chase) Validate(c RuleContext) error {
	if c.Layout != nil && !c.Layout.Has("particle_type", U32) {
		return fmt.Errorf("chase: layout has no particle_type field (typed schema required)")
	}
	return nil
}
func (r Chase) NeighborInit(c RuleContext) string {
	return fmt.Sprintf(`    var %s = 1e30;
    var %s = vec3<f32>(0.0);`, c.acc("chase_best"), c.acc("chase_dir"))
}
func (r Chase) NeighborBody(c RuleContext) string {
	return fmt.Sprintf(`            if p.particle_type == %du && other.particle_type == %du && neighbor_dist < %s && neighbor_dist < %s {
                %s = neighbor_dist;
                %s = neighbor_dir;
            }`, r.SelfType, r.OtherType, wgslFloat(r.Radius), c.acc("chase_best"), c.acc("chase_best"), c.acc("chase_dir"))
}
func (r Chase) NeighborPost(c RuleContext) string {
	return fmt.Sprintf(`    if %s < 1e29 {
        p.velocity -= %s * %s * uniforms.delta_time;
    }`, c.acc("chase_best"), c.acc("chase_dir"), c.Param("strength"))
}
func (r Chase) MainWGSL(c RuleContext) string { return "" }

// Evade steers particles of SelfType away from the nearest particle of
// OtherType within Radius.
type Evade struct {
	SelfType  uint32
	OtherType uint32
	Radius    float32
	Strength  float32
}

func (Evade) Name() string            { return "evade" }
func (Evade) UsesParticleType() bool  { return true }
func (Evade) RequiresNeighbors() bool { return true }
func (r Evade) QueryRadius() float32  { return r.Radius }
func (r Evade) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "strength", Value: r.Strength}}
}
func (r Evade) Validate(c RuleContext) error {
	if c.Layout != nil && !c.Layout.Has("particle_type", U32) {
		return fmt.Errorf("evade: layout has no particle_type field (typed schema required)")
	}
	return nil
}
func (r Evade) NeighborInit(c RuleContext) string {
	return fmt.Sprintf(`    var %s = 1e30;
    var %s = vec3<f32>(0.0);`, c.acc("evade_best"), c.acc("evade_dir"))
}
func (r Evade) NeighborBody(c RuleContext) string {
	return fmt.Sprintf(`            if p.particle_type == %du && other.particle_type == %du && neighbor_dist < %s && neighbor_dist < %s {
                %s = neighbor_dist;
                %s = neighbor_dir;
            }`, r.SelfType, r.OtherType, wgslFloat(r.Radius), c.acc("evade_best"), c.acc("evade_best"), c.acc("evade_dir"))
}
func (r Evade) NeighborPost(c RuleContext) string {
	return fmt.Sprintf(`    if %s < 1e29 {
        p.velocity += %s * %s * uniforms.delta_time;
    }`, c.acc("evade_best"), c.acc("evade_dir"), c.Param("strength"))
}
func (r Evade) MainWGSL(c RuleContext) string { return "" }

// Convert flips a particle's type from From to To when a Trigger-typed
// neighbor is within Radius, gated per frame by Probability.
type Convert struct {
	From        uint32
	Trigger     uint32
	To          uint32
	Radius      float32
	Probability float32
}

func (Convert) Name() string            { return "convert" }
func (Convert) UsesParticleType() bool  { return true }
func (Convert) RequiresNeighbors() bool { return true }
func (r Convert) QueryRadius() float32  { return r.Radius }
func (r Convert) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "probability", Value: r.Probability}}
}
func (r Convert) Validate(c RuleContext) error {
	if c.Layout != nil && !c.Layout.Has("particle_type", U32) {
		return fmt.Errorf("convert: layout has no particle_type field (typed schema required)")
	}
	return nil
}
func (r Convert) NeighborInit(c RuleContext) string {
	return fmt.Sprintf("    var %s = false;", c.acc("conv_hit"))
}
func (r Convert) NeighborBody(c RuleContext) string {
	return fmt.Sprintf(`            if p.particle_type == %du && other.particle_type == %du && neighbor_dist < %s {
                %s = true;
            }`, r.From, r.Trigger, wgslFloat(r.Radius), c.acc("conv_hit"))
}
func (r Convert) NeighborPost(c RuleContext) string {
	return fmt.Sprintf(`    if %s {
        let roll = rand(hash2(vec2<u32>(index, u32(uniforms.time * 1000.0))) + %du);
        if roll < %s {
            p.particle_type = %du;
        }
    }`, c.acc("conv_hit"), c.Index*7919, c.Param("probability"), r.To)
}
func (r Convert) MainWGSL(c RuleContext) string { return "" }

// ---------------------------------------------------------------------------
// Field-coupled neighbor rule

// Diffuse relaxes a per-particle scalar field toward the neighborhood
// mean at Rate per second.
type Diffuse struct {
	Field  string
	Radius float32
	Rate   float32
}

func (Diffuse) Name() string            { return "diffuse" }
func (Diffuse) RequiresNeighbors() bool { return true }
func (r Diffuse) QueryRadius() float32  { return r.Radius }
func (r Diffuse) DynamicParams() []DynamicParam {
	return []DynamicParam{{Name: "rate", Value: r.Rate}}
}
func (r Diffuse) Validate(c RuleContext) error {
	if c.Layout != nil && !c.Layout.Has(r.Field, F32) {
		return fmt.Errorf("diffuse: no f32 field %q in layout", r.Field)
	}
	return nil
}
func (r Diffuse) NeighborInit(c RuleContext) string {
	return fmt.Sprintf(`    var %s = 0.0;
    var %s = 0u;`, c.acc("diff_sum"), c.acc("diff_n"))
}
func (r Diffuse) NeighborBody(c RuleContext) string {
	return fmt.Sprintf(`            if neighbor_dist < %s {
                %s += other.%s;
                %s += 1u;
            }`, wgslFloat(r.Radius), c.acc("diff_sum"), r.Field, c.acc("diff_n"))
}
func (r Diffuse) NeighborPost(c RuleContext) string {
	return fmt.Sprintf(`    if %[1]s > 0u {
        let mean = %[2]s / f32(%[1]s);
        p.%[3]s += (mean - p.%[3]s) * %[4]s * uniforms.delta_time;
    }`, c.acc("diff_n"), c.acc("diff_sum"), r.Field, c.Param("rate"))
}
func (r Diffuse) MainWGSL(c RuleContext) string { return "" }

// NeighborCustom is raw WGSL spliced into the merged neighbor loop,
// with other, other_idx, neighbor_dir and neighbor_dist in scope.
type NeighborCustom struct {
	Radius float32
	Init   string
	Body   string
	Post   string
}

func (NeighborCustom) Name() string                        { return "neighbor_custom" }
func (NeighborCustom) RequiresNeighbors() bool             { return true }
func (r NeighborCustom) QueryRadius() float32              { return r.Radius }
func (NeighborCustom) DynamicParams() []DynamicParam       { return nil }
func (r NeighborCustom) NeighborInit(c RuleContext) string { return r.Init }
func (r NeighborCustom) NeighborBody(c RuleContext) string { return r.Body }
func (r NeighborCustom) NeighborPost(c RuleContext) string { return r.Post }
func (r NeighborCustom) MainWGSL(c RuleContext) string     { return "" }
