package pulsar

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// Config is the persisted description of a simulation: everything the
// builder accepts, as one YAML document. Loading a config and calling
// Build walks the same builder path as hand-written Go, so a saved
// document and a program produce identical simulations.
type Config struct {
	ParticleCount uint32  `yaml:"particle_count"`
	Bounds        float32 `yaml:"bounds"`
	ParticleSize  float32 `yaml:"particle_size"`
	Seed          int64   `yaml:"seed"`
	StartDead     bool    `yaml:"start_dead,omitempty"`
	Inbox         bool    `yaml:"inbox,omitempty"`

	Window   WindowSpec    `yaml:"window"`
	Schema   SchemaSpec    `yaml:"schema,omitempty"`
	Spatial  *SpatialSpec  `yaml:"spatial,omitempty"`
	Rules    []RuleSpec    `yaml:"rules,omitempty"`
	Emitters []EmitterSpec `yaml:"emitters,omitempty"`
	Fields   []FieldSpec   `yaml:"fields,omitempty"`
	// Uniforms maps custom uniform names to their initial values:
	// scalars as numbers, vectors as 2-4 element lists.
	Uniforms map[string]any `yaml:"uniforms,omitempty"`
}

// WindowSpec holds display settings.
type WindowSpec struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
}

// SchemaSpec declares the particle fields. An empty spec means the
// stock position + velocity schema.
type SchemaSpec struct {
	Fields   []SchemaFieldSpec `yaml:"fields,omitempty"`
	UseColor bool              `yaml:"use_color,omitempty"`
}

// SchemaFieldSpec is one particle field; type is one of f32, u32,
// vec2, vec3, vec4.
type SchemaFieldSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// SpatialSpec overrides the derived neighbor grid.
type SpatialSpec struct {
	CellSize     float32 `yaml:"cell_size"`
	Resolution   uint32  `yaml:"resolution"`
	MaxNeighbors uint32  `yaml:"max_neighbors,omitempty"`
}

// RuleSpec names a rule from the stock catalogue with its parameters.
type RuleSpec struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params,omitempty"`
}

// EmitterSpec names an emitter type with its parameters.
type EmitterSpec struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params,omitempty"`
}

// FieldSpec declares one spatial field.
type FieldSpec struct {
	Name           string  `yaml:"name"`
	Kind           string  `yaml:"kind,omitempty"` // scalar or vector
	Resolution     uint32  `yaml:"resolution"`
	Extent         float32 `yaml:"extent,omitempty"`
	Decay          float32 `yaml:"decay,omitempty"`
	Blur           float32 `yaml:"blur,omitempty"`
	BlurIterations uint32  `yaml:"blur_iterations,omitempty"`
}

// DefaultConfig mirrors NewSim's defaults.
func DefaultConfig() *Config {
	return &Config{
		ParticleCount: 10000,
		Bounds:        1.0,
		ParticleSize:  0.015,
		Seed:          42,
		Window:        WindowSpec{Width: 1280, Height: 720, Title: "pulsar"},
	}
}

// LoadConfig reads a simulation document. A missing or unreadable file
// is an error; so is malformed YAML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes the document to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Build interprets the document through the builder. Unknown rule or
// emitter types and malformed field declarations are errors; nothing
// touches the GPU until Run.
func (c *Config) Build() (*Sim, error) {
	s := NewSim()
	if c.ParticleCount > 0 {
		s.WithParticleCount(c.ParticleCount)
	}
	if c.Bounds > 0 {
		s.WithBounds(c.Bounds)
	}
	if c.ParticleSize > 0 {
		s.WithParticleSize(c.ParticleSize)
	}
	s.WithSeed(c.Seed)
	if c.StartDead {
		s.WithStartDead()
	}
	if c.Inbox {
		s.WithInbox()
	}
	if c.Window.Width > 0 && c.Window.Height > 0 {
		title := c.Window.Title
		if title == "" {
			title = "pulsar"
		}
		s.WithWindow(c.Window.Width, c.Window.Height, title)
	}

	if len(c.Schema.Fields) > 0 {
		schema, err := c.Schema.toSchema()
		if err != nil {
			return nil, err
		}
		s.WithSchema(schema)
	}
	if c.Spatial != nil {
		s.WithSpatial(SpatialConfig{
			CellSize:     c.Spatial.CellSize,
			Resolution:   c.Spatial.Resolution,
			MaxNeighbors: c.Spatial.MaxNeighbors,
		})
	}

	for name, raw := range c.Uniforms {
		v, err := yamlValue(raw)
		if err != nil {
			return nil, fmt.Errorf("uniform %q: %w", name, err)
		}
		if err := s.uniforms.Declare(name, v); err != nil {
			return nil, err
		}
	}

	for i, spec := range c.Rules {
		r, err := buildRule(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		s.WithRule(r)
	}
	for i, spec := range c.Emitters {
		e, err := buildEmitter(spec)
		if err != nil {
			return nil, fmt.Errorf("emitter %d: %w", i, err)
		}
		s.WithEmitter(e)
	}
	for _, spec := range c.Fields {
		cfg, err := spec.toFieldConfig()
		if err != nil {
			return nil, err
		}
		if err := s.fields.Add(spec.Name, cfg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (sc SchemaSpec) toSchema() (Schema, error) {
	schema := Schema{UseColor: sc.UseColor}
	for _, f := range sc.Fields {
		t, err := fieldTypeFromName(f.Type)
		if err != nil {
			return Schema{}, fmt.Errorf("schema field %q: %w", f.Name, err)
		}
		schema.Fields = append(schema.Fields, SchemaField{Name: f.Name, Type: t})
	}
	return schema, nil
}

func fieldTypeFromName(name string) (FieldType, error) {
	switch name {
	case "f32":
		return F32, nil
	case "u32":
		return U32, nil
	case "i32":
		return I32, nil
	case "vec2":
		return Vec2, nil
	case "vec3":
		return Vec3, nil
	case "vec4":
		return Vec4, nil
	}
	return F32, fmt.Errorf("unknown field type %q", name)
}

func (fs FieldSpec) toFieldConfig() (FieldConfig, error) {
	cfg := NewFieldConfig(fs.Resolution)
	switch fs.Kind {
	case "", "scalar":
	case "vector":
		cfg.Kind = VectorField
	default:
		return cfg, fmt.Errorf("field %q: unknown kind %q", fs.Name, fs.Kind)
	}
	if fs.Extent > 0 {
		cfg.Extent = fs.Extent
	}
	if fs.Decay > 0 {
		cfg.Decay = fs.Decay
	}
	if fs.Blur > 0 {
		cfg.Blur = fs.Blur
	}
	if fs.BlurIterations > 0 {
		cfg.BlurIterations = fs.BlurIterations
	}
	return cfg, nil
}

// yamlValue normalizes a decoded YAML value into a uniform value:
// numbers become f32, 2-4 element lists become vectors.
func yamlValue(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return float32(v), nil
	case float64:
		return float32(v), nil
	case []any:
		parts := make([]float32, len(v))
		for i, e := range v {
			f, err := yamlFloat(e)
			if err != nil {
				return nil, err
			}
			parts[i] = f
		}
		switch len(parts) {
		case 2:
			return mgl32.Vec2{parts[0], parts[1]}, nil
		case 3:
			return mgl32.Vec3{parts[0], parts[1], parts[2]}, nil
		case 4:
			return mgl32.Vec4{parts[0], parts[1], parts[2], parts[3]}, nil
		}
		return nil, fmt.Errorf("vector must have 2-4 components, got %d", len(parts))
	}
	return nil, fmt.Errorf("unsupported value %v (%T)", raw, raw)
}

func yamlFloat(raw any) (float32, error) {
	switch v := raw.(type) {
	case int:
		return float32(v), nil
	case float64:
		return float32(v), nil
	}
	return 0, fmt.Errorf("expected number, got %v (%T)", raw, raw)
}

// params wraps a decoded parameter map with typed, defaulted access.
type params map[string]any

func (p params) f(name string, def float32) float32 {
	raw, ok := p[name]
	if !ok {
		return def
	}
	f, err := yamlFloat(raw)
	if err != nil {
		return def
	}
	return f
}

func (p params) u(name string, def uint32) uint32 {
	raw, ok := p[name]
	if !ok {
		return def
	}
	if v, ok := raw.(int); ok && v >= 0 {
		return uint32(v)
	}
	return def
}

func (p params) s(name, def string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return def
}

func (p params) vec3(name string, def mgl32.Vec3) mgl32.Vec3 {
	raw, ok := p[name]
	if !ok {
		return def
	}
	list, ok := raw.([]any)
	if !ok || len(list) != 3 {
		return def
	}
	var out mgl32.Vec3
	for i, e := range list {
		f, err := yamlFloat(e)
		if err != nil {
			return def
		}
		out[i] = f
	}
	return out
}

func (p params) strings(name string) []string {
	list, ok := p[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ruleFactories maps document rule types to constructors. Composite
// rules (typed wrappers, agents, interaction matrices) have no
// document form and stay Go-only.
var ruleFactories = map[string]func(p params) Rule{
	"gravity":      func(p params) Rule { return Gravity{G: p.f("g", 9.8)} },
	"acceleration": func(p params) Rule { return Acceleration{A: p.vec3("a", mgl32.Vec3{})} },
	"drag":         func(p params) Rule { return Drag{K: p.f("k", 0.1)} },
	"bounce_walls": func(p params) Rule { return BounceWalls{} },
	"wrap_walls":   func(p params) Rule { return WrapWalls{} },
	"speed_limit":  func(p params) Rule { return SpeedLimit{Min: p.f("min", 0), Max: p.f("max", 1)} },
	"point_gravity": func(p params) Rule {
		return PointGravity{Point: p.vec3("point", mgl32.Vec3{}), Strength: p.f("strength", 1), Softening: p.f("softening", 0.01)}
	},
	"attract_to": func(p params) Rule {
		return AttractTo{Point: p.vec3("point", mgl32.Vec3{}), Strength: p.f("strength", 1)}
	},
	"repel_from": func(p params) Rule {
		return RepelFrom{Point: p.vec3("point", mgl32.Vec3{}), Strength: p.f("strength", 1), Radius: p.f("radius", 0.5)}
	},
	"curl":       func(p params) Rule { return Curl{Scale: p.f("scale", 2), Strength: p.f("strength", 1)} },
	"turbulence": func(p params) Rule { return Turbulence{Scale: p.f("scale", 2), Strength: p.f("strength", 1)} },
	"wander":     func(p params) Rule { return Wander{Strength: p.f("strength", 1), Frequency: p.f("frequency", 1)} },
	"vortex": func(p params) Rule {
		return Vortex{Center: p.vec3("center", mgl32.Vec3{}), Axis: p.vec3("axis", mgl32.Vec3{0, 1, 0}), Strength: p.f("strength", 1)}
	},
	"spring": func(p params) Rule {
		return Spring{Anchor: p.vec3("anchor", mgl32.Vec3{}), K: p.f("k", 1), Damping: p.f("damping", 0.1)}
	},
	"orbit": func(p params) Rule {
		return Orbit{Center: p.vec3("center", mgl32.Vec3{}), Strength: p.f("strength", 1)}
	},
	"custom": func(p params) Rule { return Custom{Code: p.s("code", "")} },
	"refractory": func(p params) Rule {
		return Refractory{
			TriggerField: p.s("trigger_field", ""),
			ChargeField:  p.s("charge_field", ""),
			Threshold:    p.f("threshold", 0.5),
			Deplete:      p.f("deplete", 1),
			Regen:        p.f("regen", 0.1),
		}
	},
	"separate": func(p params) Rule { return Separate{Radius: p.f("radius", 0.05), Strength: p.f("strength", 1)} },
	"cohere":   func(p params) Rule { return Cohere{Radius: p.f("radius", 0.1), Strength: p.f("strength", 1)} },
	"align":    func(p params) Rule { return Align{Radius: p.f("radius", 0.1), Strength: p.f("strength", 1)} },
	"collide":  func(p params) Rule { return Collide{Radius: p.f("radius", 0.02), Strength: p.f("strength", 1)} },
	"nbody_gravity": func(p params) Rule {
		return NBodyGravity{Strength: p.f("strength", 1), Softening: p.f("softening", 0.01), Radius: p.f("radius", 0.5)}
	},
	"lennard_jones": func(p params) Rule {
		return LennardJones{Epsilon: p.f("epsilon", 1), Sigma: p.f("sigma", 0.02), Cutoff: p.f("cutoff", 0.06)}
	},
	"pressure": func(p params) Rule {
		return Pressure{Radius: p.f("radius", 0.05), Strength: p.f("strength", 1), TargetDensity: p.f("target_density", 1)}
	},
	"viscosity": func(p params) Rule { return Viscosity{Radius: p.f("radius", 0.05), Strength: p.f("strength", 1)} },
	"chase": func(p params) Rule {
		return Chase{SelfType: p.u("self_type", 0), OtherType: p.u("other_type", 1), Radius: p.f("radius", 0.2), Strength: p.f("strength", 1)}
	},
	"evade": func(p params) Rule {
		return Evade{SelfType: p.u("self_type", 0), OtherType: p.u("other_type", 1), Radius: p.f("radius", 0.2), Strength: p.f("strength", 1)}
	},
	"convert": func(p params) Rule {
		return Convert{From: p.u("from", 0), Trigger: p.u("trigger", 1), To: p.u("to", 1), Radius: p.f("radius", 0.05), Probability: p.f("probability", 1)}
	},
	"diffuse": func(p params) Rule {
		return Diffuse{Field: p.s("field", ""), Radius: p.f("radius", 0.05), Rate: p.f("rate", 1)}
	},
	"neighbor_custom": func(p params) Rule {
		return NeighborCustom{Radius: p.f("radius", 0.1), Init: p.s("init", ""), Body: p.s("body", ""), Post: p.s("post", "")}
	},
	"bond_springs": func(p params) Rule {
		return BondSprings{
			BondFields: p.strings("bond_fields"),
			K:          p.f("k", 1),
			Damping:    p.f("damping", 0.1),
			Rest:       p.f("rest", 0.05),
			MaxStretch: p.f("max_stretch", 0),
		}
	},
	"sync": func(p params) Rule {
		return Sync{
			PhaseField:         p.s("phase_field", "phase"),
			Freq:               p.f("freq", 1),
			FreqField:          p.s("freq_field", ""),
			Field:              p.s("field", ""),
			Emit:               p.f("emit", 1),
			Coupling:           p.f("coupling", 1),
			DetectionThreshold: p.f("detection_threshold", 0),
		}
	},
}

func buildRule(spec RuleSpec) (Rule, error) {
	factory, ok := ruleFactories[spec.Type]
	if !ok {
		return nil, fmt.Errorf("unknown rule type %q", spec.Type)
	}
	return factory(params(spec.Params)), nil
}

var emitterFactories = map[string]func(p params) Emitter{
	"point": func(p params) Emitter {
		return PointEmitter{Position: p.vec3("position", mgl32.Vec3{}), Rate: p.f("rate", 100), Speed: p.f("speed", 0.5)}
	},
	"burst": func(p params) Emitter {
		return BurstEmitter{Position: p.vec3("position", mgl32.Vec3{}), Count: p.u("count", 100), Speed: p.f("speed", 0.5)}
	},
	"cone": func(p params) Emitter {
		return ConeEmitter{
			Position:  p.vec3("position", mgl32.Vec3{}),
			Direction: p.vec3("direction", mgl32.Vec3{0, 1, 0}),
			Speed:     p.f("speed", 0.5),
			Spread:    p.f("spread", 0.3),
			Rate:      p.f("rate", 100),
		}
	},
	"sphere": func(p params) Emitter {
		return SphereEmitter{Center: p.vec3("center", mgl32.Vec3{}), Radius: p.f("radius", 0.5), Speed: p.f("speed", 0.1), Rate: p.f("rate", 100)}
	},
	"box": func(p params) Emitter {
		return BoxEmitter{
			Min:      p.vec3("min", mgl32.Vec3{-0.5, -0.5, -0.5}),
			Max:      p.vec3("max", mgl32.Vec3{0.5, 0.5, 0.5}),
			Velocity: p.vec3("velocity", mgl32.Vec3{}),
			Rate:     p.f("rate", 100),
		}
	},
}

func buildEmitter(spec EmitterSpec) (Emitter, error) {
	factory, ok := emitterFactories[spec.Type]
	if !ok {
		return nil, fmt.Errorf("unknown emitter type %q", spec.Type)
	}
	return factory(params(spec.Params)), nil
}
