package pulsar

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")

	cfg := DefaultConfig()
	cfg.ParticleCount = 5000
	cfg.Seed = 7
	cfg.StartDead = true
	cfg.Rules = []RuleSpec{
		{Type: "gravity", Params: map[string]any{"g": 4.5}},
		{Type: "bounce_walls"},
	}
	cfg.Uniforms = map[string]any{"gain": 1.5}
	require.NoError(t, cfg.Save(path))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(5000), got.ParticleCount)
	assert.Equal(t, int64(7), got.Seed)
	assert.True(t, got.StartDead)
	require.Len(t, got.Rules, 2)
	assert.Equal(t, "gravity", got.Rules[0].Type)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules: [unclosed"), 0o644))
	_, err = LoadConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoadConfig_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("particle_count: 200\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(200), cfg.ParticleCount)
	// Everything unspecified keeps the stock values.
	assert.Equal(t, float32(1.0), cfg.Bounds)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 1280, cfg.Window.Width)
}

func TestConfig_Build(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParticleCount = 1000
	cfg.Inbox = true
	cfg.Schema = SchemaSpec{
		Fields: []SchemaFieldSpec{
			{Name: "position", Type: "vec3"},
			{Name: "velocity", Type: "vec3"},
			{Name: "color", Type: "vec3"},
		},
		UseColor: true,
	}
	cfg.Spatial = &SpatialSpec{CellSize: 0.1, Resolution: 32}
	cfg.Rules = []RuleSpec{
		{Type: "gravity", Params: map[string]any{"g": 2.0}},
		{Type: "separate", Params: map[string]any{"radius": 0.08, "strength": 1.5}},
	}
	cfg.Emitters = []EmitterSpec{
		{Type: "cone", Params: map[string]any{"position": []any{0.0, -0.5, 0.0}, "rate": 300}},
	}
	cfg.Fields = []FieldSpec{
		{Name: "trail", Resolution: 32, Decay: 0.95},
		{Name: "flow", Kind: "vector", Resolution: 16},
	}
	cfg.Uniforms = map[string]any{
		"gain":   2,
		"target": []any{0.0, 1.0, 0.0},
	}

	sim, err := cfg.Build()
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), sim.count)
	assert.True(t, sim.inbox)
	require.Len(t, sim.rules, 2)
	assert.Equal(t, Gravity{G: 2}, sim.rules[0])
	assert.Equal(t, Separate{Radius: 0.08, Strength: 1.5}, sim.rules[1])
	require.Len(t, sim.emitters, 1)

	cone, ok := sim.emitters[0].(ConeEmitter)
	require.True(t, ok)
	assert.Equal(t, float32(300), cone.Rate)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, cone.Direction, "unset direction keeps its default")

	assert.Equal(t, 2, sim.fields.Len())
	flow, _ := sim.fields.Lookup("flow")
	assert.Equal(t, VectorField, flow.Kind())

	v, ok := sim.uniforms.Get("target")
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, v)
}

func TestConfig_BuildErrors(t *testing.T) {
	unknownRule := DefaultConfig()
	unknownRule.Rules = []RuleSpec{{Type: "antigravity"}}
	_, err := unknownRule.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown rule type")

	unknownEmitter := DefaultConfig()
	unknownEmitter.Emitters = []EmitterSpec{{Type: "portal"}}
	_, err = unknownEmitter.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown emitter type")

	badType := DefaultConfig()
	badType.Schema = SchemaSpec{Fields: []SchemaFieldSpec{{Name: "position", Type: "mat4"}}}
	_, err = badType.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field type")

	badKind := DefaultConfig()
	badKind.Fields = []FieldSpec{{Name: "trail", Kind: "tensor", Resolution: 32}}
	_, err = badKind.Build()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown kind"))

	badUniform := DefaultConfig()
	badUniform.Uniforms = map[string]any{"gain": "loud"}
	_, err = badUniform.Build()
	require.Error(t, err)
}

func TestFieldTypeFromName_Covers(t *testing.T) {
	// Every layout type must be reachable from a saved schema.
	for name, want := range map[string]FieldType{
		"f32": F32, "u32": U32, "i32": I32, "vec2": Vec2, "vec3": Vec3, "vec4": Vec4,
	} {
		got, err := fieldTypeFromName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := fieldTypeFromName("mat4")
	assert.Error(t, err)
}

func TestYamlValue(t *testing.T) {
	v, err := yamlValue(3)
	require.NoError(t, err)
	assert.Equal(t, float32(3), v)

	v, err = yamlValue(1.5)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), v)

	v, err = yamlValue([]any{1, 2.5})
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec2{1, 2.5}, v)

	v, err = yamlValue([]any{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec4{1, 2, 3, 4}, v)

	_, err = yamlValue([]any{1})
	assert.Error(t, err, "one-element lists are not vectors")

	_, err = yamlValue("red")
	assert.Error(t, err)
}

func TestParams_Defaults(t *testing.T) {
	p := params{"strength": 2.5, "count": 7, "name": "trail", "axis": []any{1, 0, 0}}

	assert.Equal(t, float32(2.5), p.f("strength", 1))
	assert.Equal(t, float32(9), p.f("missing", 9))
	assert.Equal(t, uint32(7), p.u("count", 1))
	assert.Equal(t, "trail", p.s("name", "x"))
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, p.vec3("axis", mgl32.Vec3{}))
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, p.vec3("missing", mgl32.Vec3{0, 1, 0}))
}

func TestBuildRule_CoversCatalogue(t *testing.T) {
	for name := range ruleFactories {
		r, err := buildRule(RuleSpec{Type: name})
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if r.Name() == "" {
			t.Errorf("%s: empty rule name", name)
		}
	}
}
