package pulsar

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func testBuilder(t *testing.T, rules []Rule) *shaderBuilder {
	t.Helper()
	l, err := BuildLayout(DefaultSchema(), anyUsesParticleType(rules))
	if err != nil {
		t.Fatalf("BuildLayout: %v", err)
	}
	ul, err := buildUniformLayout(NewCustomUniforms(), rules)
	if err != nil {
		t.Fatalf("buildUniformLayout: %v", err)
	}
	return &shaderBuilder{
		layout:       l,
		uniforms:     ul,
		fields:       NewFieldRegistry(),
		rules:        rules,
		spatial:      AutoSpatialConfig(1.0, maxQueryRadius(rules)),
		bounds:       1.0,
		numParticles: 100,
		particleSize: 0.015,
	}
}

func TestComputeShader_Basic(t *testing.T) {
	b := testBuilder(t, []Rule{Gravity{G: 9.8}})
	src := b.Compute()

	for _, want := range []string{
		"const num_particles: u32 = 100u",
		"fn simulate(",
		"var p = particles_read[index];",
		"p.position += p.velocity * uniforms.delta_time;",
		"particles_write[index] = p;",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("compute shader missing %q", want)
		}
	}
	if strings.Contains(src, "sorted_indices") {
		t.Error("grid bindings emitted without neighbor rules")
	}
	if strings.Contains(src, "record_death") {
		t.Error("death recording emitted without sub-emitters")
	}
	if strings.Contains(src, "inbox") {
		t.Error("inbox bindings emitted without WithInbox")
	}
}

func TestShaderBuilder_ProgramsValidate(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T) *shaderBuilder
	}{
		{"plain forces", func(t *testing.T) *shaderBuilder {
			return testBuilder(t, []Rule{Gravity{G: 9.8}, Drag{K: 0.1}, BounceWalls{}})
		}},
		{"neighbors and lifecycle", func(t *testing.T) *shaderBuilder {
			return testBuilder(t, []Rule{
				Separate{Radius: 0.05, Strength: 5},
				Cohere{Radius: 0.15, Strength: 1},
				Align{Radius: 0.1, Strength: 2},
				Age{},
				Lifetime{Seconds: 3},
			})
		}},
		{"spatial field", func(t *testing.T) *shaderBuilder {
			b := testBuilder(t, []Rule{Custom{Code: `    field_deposit_trail(p.position, 1.0);
    let trail = field_read_trail(p.position);
    p.velocity *= 1.0 - trail * 0.001;`}})
			if err := b.fields.Add("trail", NewFieldConfig(32)); err != nil {
				t.Fatal(err)
			}
			return b
		}},
		{"emitters deaths inbox", func(t *testing.T) *shaderBuilder {
			b := testBuilder(t, []Rule{
				Lifetime{Seconds: 1},
				Custom{Code: `    inbox_send(index, 0u, 0.25);
    p.scale = 1.0 + inbox_receive_at(index, 0u);`},
			})
			b.emitters = []Emitter{
				PointEmitter{Rate: 200, Speed: 1},
				BurstEmitter{Count: 50, Speed: 2},
			}
			b.recordDeaths = true
			b.inbox = true
			return b
		}},
	}

	// Build runs both generated programs through the WGSL compiler, so
	// a pass here means the driver will accept them verbatim.
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.setup(t)
			if _, _, err := b.Build(); err != nil {
				t.Fatalf("Build: %v", err)
			}
		})
	}
}

func TestComputeShader_SpawnSkipsIntegration(t *testing.T) {
	b := testBuilder(t, []Rule{Age{}, Lifetime{Seconds: 2}})
	b.emitters = []Emitter{PointEmitter{Rate: 100, Speed: 1}}
	src := b.Compute()

	if !strings.Contains(src, "var<private> skip_integrate: bool = false;") {
		t.Error("integration flag must be declared at module scope")
	}
	// Raised twice: once in respawn_at, once in the emitter's spawn
	// block, so a fresh particle keeps its spawn position this frame.
	if strings.Count(src, "skip_integrate = true;") < 2 {
		t.Errorf("spawn paths never raise skip_integrate:\n%s", src)
	}
	set := strings.Index(src, "fn simulate(")
	gate := strings.Index(src, "if !skip_integrate {")
	if gate < set {
		t.Error("integration gate must sit inside the entry point")
	}
}

func TestComputeShader_Inbox(t *testing.T) {
	b := testBuilder(t, []Rule{Gravity{G: 1}})
	b.inbox = true
	src := b.Compute()

	for _, want := range []string{
		"@group(0) @binding(3) var<storage, read_write> inbox: array<atomic<i32>>;",
		"fn inbox_send(target: u32, channel: u32, value: f32)",
		"fn inbox_receive_at(index: u32, channel: u32) -> f32",
		"atomicAdd(&inbox[target * INBOX_CHANNELS + channel]",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("inbox build missing %q", want)
		}
	}
}

func TestComputeShader_NeighborGrid(t *testing.T) {
	b := testBuilder(t, []Rule{Separate{Radius: 0.1, Strength: 1}})
	src := b.Compute()

	for _, want := range []string{
		"sorted_indices",
		"cell_offsets",
		"cell_counts",
		"grid_params",
		"neighbor_cell_index",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("neighbor build missing %q", want)
		}
	}
}

func TestComputeShader_MergesNeighborRun(t *testing.T) {
	b := testBuilder(t, []Rule{
		Separate{Radius: 0.08, Strength: 1},
		Cohere{Radius: 0.1, Strength: 1},
		Align{Radius: 0.1, Strength: 1},
	})
	src := b.Compute()

	// Contiguous neighbor rules share one grid walk.
	if n := strings.Count(src, "let center_cell = pos_to_cell"); n != 1 {
		t.Errorf("expected one merged neighbor loop, found %d", n)
	}
}

func TestComputeShader_SplitNeighborRuns(t *testing.T) {
	b := testBuilder(t, []Rule{
		Separate{Radius: 0.1, Strength: 1},
		Gravity{G: 1},
		Cohere{Radius: 0.1, Strength: 1},
	})
	src := b.Compute()

	// A non-neighbor rule between two neighbor rules forces two loops.
	if n := strings.Count(src, "let center_cell = pos_to_cell"); n != 2 {
		t.Errorf("expected two neighbor loops, found %d", n)
	}
}

func TestComputeShader_EmittersInlined(t *testing.T) {
	b := testBuilder(t, []Rule{Gravity{G: 1}})
	b.emitters = []Emitter{
		PointEmitter{Position: mgl32.Vec3{0, 0.5, 0}, Rate: 100, Speed: 1},
		SphereEmitter{Center: mgl32.Vec3{}, Radius: 0.1, Speed: 1, Rate: 50},
	}
	src := b.Compute()

	if !strings.Contains(src, "// Point emitter 0") {
		t.Error("first emitter block missing")
	}
	if !strings.Contains(src, "// Sphere emitter 1") {
		t.Error("second emitter block missing")
	}
	// Emitters run before the dead-particle early-out.
	emitterAt := strings.Index(src, "// Point emitter 0")
	earlyOut := strings.Index(src, "if p.alive == 0u {\n        particles_write[index] = p;")
	if emitterAt < 0 || earlyOut < 0 || emitterAt > earlyOut {
		t.Error("emitters must precede the dead-particle early-out")
	}
}

func TestComputeShader_DeathRecording(t *testing.T) {
	b := testBuilder(t, []Rule{Lifetime{Seconds: 1}})
	b.recordDeaths = true
	src := b.Compute()

	for _, want := range []string{
		"@group(3) @binding(0)",
		"death_buffer",
		"record_death(",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("death recording build missing %q", want)
		}
	}
}

func TestComputeShader_Fields(t *testing.T) {
	b := testBuilder(t, []Rule{Gravity{G: 1}})
	if err := b.fields.Add("pheromone", NewFieldConfig(32)); err != nil {
		t.Fatal(err)
	}
	src := b.Compute()

	for _, want := range []string{
		"@group(2) @binding(0)",
		"field_read_pheromone",
		"field_deposit_pheromone",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("field build missing %q", want)
		}
	}
}

func TestRenderShader_Default(t *testing.T) {
	b := testBuilder(t, []Rule{Gravity{G: 1}})
	src := b.Render()

	if !strings.Contains(src, "@location(0) particle_pos: vec3<f32>") {
		t.Error("render shader missing position attribute")
	}
	if strings.Contains(src, "@location(3) particle_color") {
		t.Error("color attribute emitted without a color field")
	}
	// Positional fallback color.
	if !strings.Contains(src, "normalize(particle_pos)") {
		t.Error("default build should derive color from position")
	}
}

func TestRenderShader_ColorSchema(t *testing.T) {
	b := testBuilder(t, []Rule{Gravity{G: 1}})
	l, err := BuildLayout(ColorSchema(), false)
	if err != nil {
		t.Fatal(err)
	}
	b.layout = l
	src := b.Render()

	if !strings.Contains(src, "@location(3) particle_color: vec3<f32>") {
		t.Error("color schema must add the color vertex attribute")
	}
}

func TestRenderShader_Custom(t *testing.T) {
	b := testBuilder(t, nil)
	b.customRender = "@vertex\nfn vs_main() {}\n"
	src := b.Render()

	if !strings.Contains(src, "@group(0) @binding(0) var<uniform> uniforms") {
		t.Error("custom render must still receive the uniform binding")
	}
	if !strings.Contains(src, "view_proj: mat4x4<f32>") {
		t.Error("custom render must be prefixed with the Uniforms struct")
	}
	if !strings.HasSuffix(src, b.customRender) {
		t.Error("custom render body must follow the preamble verbatim")
	}
}

func TestShaderBuilder_ValidateGrid(t *testing.T) {
	b := testBuilder(t, []Rule{Separate{Radius: 0.2, Strength: 1}})
	b.spatial = SpatialConfig{CellSize: 0.1, Resolution: 32}

	if err := b.validate(); err == nil {
		t.Error("cell size below the query radius must fail validation")
	}
}

func TestShaderBuilder_ValidateNamesRule(t *testing.T) {
	b := testBuilder(t, []Rule{
		Gravity{G: 1},
		Diffuse{Field: "missing", Radius: 0.05, Rate: 1},
	})
	err := b.validate()
	if err == nil {
		t.Fatal("rule validation failure expected")
	}
	if !strings.Contains(err.Error(), "rule 1 (diffuse)") {
		t.Errorf("error should name the failing rule: %v", err)
	}
}
