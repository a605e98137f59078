package pulsar

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

const simulateWorkgroupSize = 64

// shaderBuilder synthesizes the compute and render programs for one
// build. Any structural change (schema, rule list, field set, uniform
// schema) makes a new builder; parameter value changes never do.
type shaderBuilder struct {
	layout   *Layout
	uniforms *UniformLayout
	fields   *FieldRegistry
	rules    []Rule
	emitters []Emitter
	spatial  SpatialConfig

	bounds       float32
	numParticles uint32
	particleSize float32
	recordDeaths bool
	inbox        bool

	// Optional full replacements for the generated render stages.
	customRender string
}

func (b *shaderBuilder) ruleContext(i int) RuleContext {
	return RuleContext{Bounds: b.bounds, Index: i, Fields: b.fields, Layout: b.layout}
}

// validate runs every rule's field checks and the grid coverage check
// before any WGSL is generated, so errors name the rule instead of a
// shader line.
func (b *shaderBuilder) validate() error {
	for i, r := range b.rules {
		if v, ok := r.(fieldValidator); ok {
			if err := v.Validate(b.ruleContext(i)); err != nil {
				return fmt.Errorf("rule %d (%s): %w", i, r.Name(), err)
			}
		}
	}
	if anyRequiresNeighbors(b.rules) {
		if err := b.spatial.Validate(b.bounds, maxQueryRadius(b.rules)); err != nil {
			return err
		}
	}
	return nil
}

// validateWGSL runs the generated source through the WGSL compiler so
// bad custom snippets surface as build errors with line and column
// instead of driver crashes.
func validateWGSL(label, src string) error {
	if _, err := naga.Compile(src); err != nil {
		return fmt.Errorf("%s shader validation: %w", label, err)
	}
	return nil
}

// Compute assembles the simulate program: structs, bindings, helper
// library, optional grid and field machinery, then the entry point
// with emitters and rule snippets inlined in declaration order.
func (b *shaderBuilder) Compute() string {
	var sb strings.Builder

	needsGrid := anyRequiresNeighbors(b.rules)
	withType := b.layout.Has("particle_type", U32)

	fmt.Fprintf(&sb, "const num_particles: u32 = %du;\n\n", b.numParticles)
	sb.WriteString(b.layout.WGSLStruct())
	sb.WriteString("\n")
	sb.WriteString(b.uniforms.WGSLStruct())
	sb.WriteString(`
@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(0) @binding(1) var<storage, read> particles_read: array<Particle>;
@group(0) @binding(2) var<storage, read_write> particles_write: array<Particle>;
`)
	if b.inbox {
		sb.WriteString(inboxWGSL)
	}

	if needsGrid {
		sb.WriteString(gridParamsWGSL)
		sb.WriteString(`
@group(1) @binding(0) var<storage, read> sorted_indices: array<u32>;
@group(1) @binding(1) var<storage, read> cell_offsets: array<u32>;
@group(1) @binding(2) var<storage, read> cell_counts: array<u32>;
@group(1) @binding(3) var<uniform> grid_params: GridParams;
`)
		sb.WriteString(gridWGSL)
	}

	if !b.fields.Empty() {
		sb.WriteString(b.fields.WGSLDeclarations())
	}

	sb.WriteString(allUtilsWGSL())
	// Spawn and respawn paths raise this so a fresh particle does not
	// drift velocity*dt on its first frame.
	sb.WriteString("\nvar<private> skip_integrate: bool = false;\n")
	if b.recordDeaths {
		sb.WriteString(deathBindingsWGSL)
		sb.WriteString(lifecycleRecordingWGSL(b.layout))
	} else {
		sb.WriteString(lifecycleHelpersWGSL)
	}

	fmt.Fprintf(&sb, `
@compute @workgroup_size(%d)
fn simulate(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let index = global_id.x;
    if index >= num_particles {
        return;
    }

    var p = particles_read[index];

`, simulateWorkgroupSize)

	for i, e := range b.emitters {
		sb.WriteString(e.WGSL(i, withType))
		sb.WriteString("\n\n")
	}

	sb.WriteString(`    if p.alive == 0u {
        particles_write[index] = p;
        return;
    }

`)

	b.writeRules(&sb)

	sb.WriteString(`    if !skip_integrate {
        p.position += p.velocity * uniforms.delta_time;
    }
    p.age += uniforms.delta_time;

    particles_write[index] = p;
}
`)
	return sb.String()
}

// writeRules emits the rule snippets in declaration order. Contiguous
// neighbor rules share one 27-cell loop so the grid is walked once per
// run, with each rule's accumulators, body and post kept in order.
func (b *shaderBuilder) writeRules(sb *strings.Builder) {
	i := 0
	for i < len(b.rules) {
		r := b.rules[i]
		nr, isNeighbor := r.(NeighborRule)
		if !isNeighbor || !r.RequiresNeighbors() {
			if code := r.MainWGSL(b.ruleContext(i)); code != "" {
				sb.WriteString(code)
				sb.WriteString("\n\n")
			}
			i++
			continue
		}

		run := []NeighborRule{nr}
		runStart := i
		for i+len(run) < len(b.rules) {
			next, ok := b.rules[i+len(run)].(NeighborRule)
			if !ok || !b.rules[i+len(run)].RequiresNeighbors() {
				break
			}
			run = append(run, next)
		}
		b.writeNeighborRun(sb, run, runStart)
		i += len(run)
	}
}

func (b *shaderBuilder) writeNeighborRun(sb *strings.Builder, run []NeighborRule, start int) {
	for k, r := range run {
		if init := r.NeighborInit(b.ruleContext(start + k)); init != "" {
			sb.WriteString(init)
			sb.WriteString("\n")
		}
	}

	sb.WriteString(`    {
        let my_pos = p.position;
        let center_cell = pos_to_cell(my_pos, grid_params.cell_size, grid_params.grid_resolution);
        var neighbor_count = 0u;

        for (var ci = 0u; ci < 27u; ci++) {
            let cell = neighbor_cell_index(center_cell, ci, grid_params.grid_resolution);
            if cell == 0xFFFFFFFFu {
                continue;
            }

            let start = cell_offsets[cell];
            let end = start + cell_counts[cell];
            for (var j = start; j < end; j++) {
                if grid_params.max_neighbors > 0u && neighbor_count >= grid_params.max_neighbors {
                    break;
                }

                let other_idx = sorted_indices[j];
                if other_idx == index {
                    continue;
                }

                let other = particles_read[other_idx];
                if other.alive == 0u {
                    continue;
                }

                let neighbor_pos = other.position;
                let neighbor_vel = other.velocity;
                let diff = my_pos - neighbor_pos;
                let neighbor_dist = length(diff);
                let neighbor_dir = select(vec3<f32>(0.0), diff / neighbor_dist, neighbor_dist > 0.0001);

                neighbor_count += 1u;

`)
	for k, r := range run {
		if body := r.NeighborBody(b.ruleContext(start + k)); body != "" {
			sb.WriteString(indentWGSL(body, "    "))
			sb.WriteString("\n")
		}
	}
	sb.WriteString(`            }
        }
    }
`)

	for k, r := range run {
		if post := r.NeighborPost(b.ruleContext(start + k)); post != "" {
			sb.WriteString(post)
			sb.WriteString("\n")
		}
		if code := r.MainWGSL(b.ruleContext(start + k)); code != "" {
			sb.WriteString(code)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
}

// Render assembles the billboard render program: the same Particle
// field offsets feed the instance vertex attributes, so positions,
// scale and liveness come straight off the write buffer of the frame.
func (b *shaderBuilder) Render() string {
	if b.customRender != "" {
		return b.uniforms.WGSLStruct() + `
@group(0) @binding(0) var<uniform> uniforms: Uniforms;
` + b.customRender
	}

	useColor := b.layout.Has("color", Vec3)
	colorAttr := ""
	colorExpr := "normalize(particle_pos) * 0.5 + 0.5"
	if useColor {
		colorAttr = "    @location(3) particle_color: vec3<f32>,\n"
		colorExpr = "particle_color"
	}

	size := b.particleSize
	if size <= 0 {
		size = 0.015
	}

	return fmt.Sprintf(`%s
@group(0) @binding(0) var<uniform> uniforms: Uniforms;

struct VertexOutput {
    @builtin(position) clip_position: vec4<f32>,
    @location(0) color: vec3<f32>,
    @location(1) uv: vec2<f32>,
};

@vertex
fn vs_main(
    @builtin(vertex_index) vertex_index: u32,
    @location(0) particle_pos: vec3<f32>,
    @location(1) particle_scale: f32,
    @location(2) particle_alive: u32,
%s) -> VertexOutput {
    var quad_vertices = array<vec2<f32>, 6>(
        vec2<f32>(-1.0, -1.0),
        vec2<f32>( 1.0, -1.0),
        vec2<f32>(-1.0,  1.0),
        vec2<f32>(-1.0,  1.0),
        vec2<f32>( 1.0, -1.0),
        vec2<f32>( 1.0,  1.0),
    );

    let quad_pos = quad_vertices[vertex_index];
    let particle_size = %s * particle_scale * f32(particle_alive);

    let world_pos = vec4<f32>(particle_pos, 1.0);
    var clip_pos = uniforms.view_proj * world_pos;

    clip_pos.x += quad_pos.x * particle_size * clip_pos.w;
    clip_pos.y += quad_pos.y * particle_size * clip_pos.w;

    var out: VertexOutput;
    out.clip_position = clip_pos;
    out.color = %s;
    out.uv = quad_pos;

    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    let dist = length(in.uv);
    if dist > 1.0 {
        discard;
    }
    let alpha = 1.0 - smoothstep(0.5, 1.0, dist);
    return vec4<f32>(in.color, alpha);
}
`, b.uniforms.WGSLStruct(), colorAttr, wgslFloat(size), colorExpr)
}

// Build validates the configuration, generates both programs and runs
// them through the WGSL validator.
func (b *shaderBuilder) Build() (compute, render string, err error) {
	if err := b.validate(); err != nil {
		return "", "", err
	}
	compute = b.Compute()
	if err := validateWGSL("compute", compute); err != nil {
		return "", "", err
	}
	render = b.Render()
	if err := validateWGSL("render", render); err != nil {
		return "", "", err
	}
	return compute, render, nil
}
