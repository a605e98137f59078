package pulsar

import (
	"fmt"
	"strings"
)

// Interaction is one cell of the type interaction matrix. Positive
// Strength attracts, negative repels; the force fades quadratically to
// zero at Radius.
type Interaction struct {
	Strength float32
	Radius   float32
}

// InteractionMatrix drives particle-life style dynamics: a T x T
// matrix where entry [self][other] describes how particles of type
// self respond to neighbors of type other. The matrix is baked into
// the shader as a lookup table indexed by the particle type pair.
type InteractionMatrix struct {
	Entries [][]Interaction
}

// NewInteractionMatrix returns a zeroed T x T matrix.
func NewInteractionMatrix(types int) *InteractionMatrix {
	e := make([][]Interaction, types)
	for i := range e {
		e[i] = make([]Interaction, types)
	}
	return &InteractionMatrix{Entries: e}
}

// Set fills one cell. Out-of-range indices are ignored.
func (m *InteractionMatrix) Set(self, other int, strength, radius float32) *InteractionMatrix {
	if self >= 0 && self < len(m.Entries) && other >= 0 && other < len(m.Entries[self]) {
		m.Entries[self][other] = Interaction{Strength: strength, Radius: radius}
	}
	return m
}

func (m *InteractionMatrix) Name() string            { return "interaction_matrix" }
func (m *InteractionMatrix) UsesParticleType() bool  { return true }
func (m *InteractionMatrix) RequiresNeighbors() bool { return true }

func (m *InteractionMatrix) DynamicParams() []DynamicParam { return nil }

func (m *InteractionMatrix) QueryRadius() float32 {
	var max float32
	for _, row := range m.Entries {
		for _, e := range row {
			if e.Radius > max {
				max = e.Radius
			}
		}
	}
	return max
}

func (m *InteractionMatrix) Validate(c RuleContext) error {
	t := len(m.Entries)
	if t == 0 {
		return fmt.Errorf("interaction_matrix: empty matrix")
	}
	for i, row := range m.Entries {
		if len(row) != t {
			return fmt.Errorf("interaction_matrix: row %d has %d entries, want %d", i, len(row), t)
		}
	}
	if c.Layout != nil && !c.Layout.Has("particle_type", U32) {
		return fmt.Errorf("interaction_matrix: layout has no particle_type field (typed schema required)")
	}
	return nil
}

func (m *InteractionMatrix) NeighborInit(c RuleContext) string {
	t := len(m.Entries)
	var sb strings.Builder
	fmt.Fprintf(&sb, "    var %s = array<vec2<f32>, %d>(\n", c.acc("table"), t*t)
	for i, row := range m.Entries {
		sb.WriteString("        ")
		for j, e := range row {
			fmt.Fprintf(&sb, "vec2<f32>(%s, %s)", wgslFloat(e.Strength), wgslFloat(e.Radius))
			if i != t-1 || j != t-1 {
				sb.WriteString(", ")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("    );\n")
	fmt.Fprintf(&sb, "    var %s = vec3<f32>(0.0);", c.acc("force"))
	return sb.String()
}

func (m *InteractionMatrix) NeighborBody(c RuleContext) string {
	t := len(m.Entries)
	return fmt.Sprintf(`            {
                let entry = %s[p.particle_type * %du + other.particle_type];
                if neighbor_dist < entry.y && neighbor_dist > 0.0001 {
                    let falloff = 1.0 - neighbor_dist / entry.y;
                    %s += neighbor_dir * entry.x * falloff * falloff;
                }
            }`, c.acc("table"), t, c.acc("force"))
}

func (m *InteractionMatrix) NeighborPost(c RuleContext) string {
	return fmt.Sprintf("    p.velocity += %s * uniforms.delta_time;", c.acc("force"))
}

func (m *InteractionMatrix) MainWGSL(c RuleContext) string { return "" }
