package pulsar

import (
	"fmt"
	"strings"
)

// BondNone is the sentinel bond index meaning "no bond".
const BondNone = 0xFFFFFFFF

// Typed gates an inner rule so it only runs for particles of SelfType.
// If the inner rule reads neighbors, the loop body is additionally
// gated on the neighbor's type.
type Typed struct {
	SelfType  uint32
	OtherType uint32
	Inner     Rule
}

func (Typed) Name() string           { return "typed" }
func (Typed) UsesParticleType() bool { return true }

func (r Typed) RequiresNeighbors() bool { return r.Inner.RequiresNeighbors() }

func (r Typed) DynamicParams() []DynamicParam { return r.Inner.DynamicParams() }

func (r Typed) QueryRadius() float32 {
	if nr, ok := r.Inner.(NeighborRule); ok {
		return nr.QueryRadius()
	}
	return 0
}

func (r Typed) Validate(c RuleContext) error {
	if c.Layout != nil && !c.Layout.Has("particle_type", U32) {
		return fmt.Errorf("typed: layout has no particle_type field (typed schema required)")
	}
	if v, ok := r.Inner.(fieldValidator); ok {
		return v.Validate(c)
	}
	return nil
}

func (r Typed) MainWGSL(c RuleContext) string {
	body := r.Inner.MainWGSL(c)
	if body == "" {
		return ""
	}
	return fmt.Sprintf("    if p.particle_type == %du {\n%s\n    }", r.SelfType, body)
}

func (r Typed) NeighborInit(c RuleContext) string {
	if nr, ok := r.Inner.(NeighborRule); ok {
		return nr.NeighborInit(c)
	}
	return ""
}

func (r Typed) NeighborBody(c RuleContext) string {
	nr, ok := r.Inner.(NeighborRule)
	if !ok {
		return ""
	}
	body := nr.NeighborBody(c)
	if body == "" {
		return ""
	}
	return fmt.Sprintf(`            if p.particle_type == %du && other.particle_type == %du {
%s
            }`, r.SelfType, r.OtherType, body)
}

func (r Typed) NeighborPost(c RuleContext) string {
	nr, ok := r.Inner.(NeighborRule)
	if !ok {
		return ""
	}
	post := nr.NeighborPost(c)
	if post == "" {
		return ""
	}
	return fmt.Sprintf("    if p.particle_type == %du {\n%s\n    }", r.SelfType, post)
}

// ---------------------------------------------------------------------------
// Kuramoto synchronization

// Sync advances a per-particle phase oscillator coupled to a spatial
// scalar field. Each oscillator deposits Emit*sin(phase) into Field and
// reads the local mean back, so coupling is mediated by the medium
// rather than a direct pairwise sum. OnFire runs on the frame the
// phase wraps past tau.
type Sync struct {
	PhaseField string
	Freq       float32
	// FreqField names an f32 particle field holding each oscillator's
	// natural frequency; when set it overrides the shared Freq uniform.
	FreqField string
	Field     string
	Emit      float32
	Coupling  float32
	// DetectionThreshold gates the coupling term: below it the local
	// signal is treated as noise and ignored.
	DetectionThreshold float32
	OnFire             string
}

func (Sync) Name() string            { return "sync" }
func (Sync) RequiresNeighbors() bool { return false }
func (r Sync) DynamicParams() []DynamicParam {
	params := []DynamicParam{
		{Name: "emit", Value: r.Emit},
		{Name: "coupling", Value: r.Coupling},
		{Name: "detection_threshold", Value: r.DetectionThreshold},
	}
	if r.FreqField == "" {
		params = append([]DynamicParam{{Name: "freq", Value: r.Freq}}, params...)
	}
	return params
}
func (r Sync) Validate(c RuleContext) error {
	if c.Layout != nil && !c.Layout.Has(r.PhaseField, F32) {
		return fmt.Errorf("sync: no f32 field %q in layout", r.PhaseField)
	}
	if r.FreqField != "" && c.Layout != nil && !c.Layout.Has(r.FreqField, F32) {
		return fmt.Errorf("sync: no f32 field %q in layout", r.FreqField)
	}
	if c.Fields != nil {
		f, ok := c.Fields.Lookup(r.Field)
		if !ok {
			return fmt.Errorf("sync: no spatial field %q", r.Field)
		}
		if f.Config.Kind != ScalarField {
			return fmt.Errorf("sync: spatial field %q is not scalar", r.Field)
		}
	}
	return nil
}
func (r Sync) MainWGSL(c RuleContext) string {
	freq := c.Param("freq")
	if r.FreqField != "" {
		freq = "p." + r.FreqField
	}
	return fmt.Sprintf(`    // Phase oscillator coupled through field %[1]s
    {
        let signal = field_read_%[1]s(p.position);
        var dphase = %[3]s;
        if signal > %[5]s {
            dphase += %[4]s * signal * cos(p.%[2]s);
        }
        p.%[2]s += dphase * uniforms.delta_time;
        field_deposit_%[1]s(p.position, %[6]s * sin(p.%[2]s) * uniforms.delta_time);
        if p.%[2]s >= 6.28318530718 {
            p.%[2]s -= 6.28318530718;
%[7]s
        }
    }`, r.Field, r.PhaseField, freq, c.Param("coupling"), c.Param("detection_threshold"), c.Param("emit"), indentWGSL(r.OnFire, "            "))
}

func indentWGSL(code, prefix string) string {
	if strings.TrimSpace(code) == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = prefix + strings.TrimSpace(l)
		}
	}
	return strings.Join(lines, "\n")
}

// ---------------------------------------------------------------------------
// Bond springs

// BondSprings connects particles by explicit index. Each name in
// BondFields is a u32 particle field holding a partner index, or
// BondNone for an empty slot. Bonds to dead partners are dropped, and
// with MaxStretch > 0 a bond breaks once the distance exceeds
// Rest*MaxStretch.
type BondSprings struct {
	BondFields []string
	K          float32
	Damping    float32
	Rest       float32
	MaxStretch float32
}

func (BondSprings) Name() string            { return "bond_springs" }
func (BondSprings) RequiresNeighbors() bool { return false }
func (r BondSprings) DynamicParams() []DynamicParam {
	return []DynamicParam{
		{Name: "k", Value: r.K},
		{Name: "damping", Value: r.Damping},
		{Name: "rest", Value: r.Rest},
	}
}
func (r BondSprings) Validate(c RuleContext) error {
	if len(r.BondFields) == 0 {
		return fmt.Errorf("bond_springs: no bond fields given")
	}
	if c.Layout == nil {
		return nil
	}
	for _, f := range r.BondFields {
		if !c.Layout.Has(f, U32) {
			return fmt.Errorf("bond_springs: no u32 field %q in layout", f)
		}
	}
	return nil
}
func (r BondSprings) MainWGSL(c RuleContext) string {
	var sb strings.Builder
	sb.WriteString("    // Bond springs\n")
	pull := fmt.Sprintf(`                let stretch = bond_dist - %s;
                let rel_vel = bond_other.velocity - p.velocity;
                p.velocity += ((bond_diff / bond_dist) * stretch * %s + rel_vel * %s) * uniforms.delta_time;`,
		c.Param("rest"), c.Param("k"), c.Param("damping"))
	for _, f := range r.BondFields {
		var inner string
		if r.MaxStretch > 0 {
			inner = fmt.Sprintf(`            if bond_dist > %s * %s {
                p.%s = 0xffffffffu;
            } else {
%s
            }`, c.Param("rest"), wgslFloat(r.MaxStretch), f, pull)
		} else {
			inner = "            {\n" + pull + "\n            }"
		}
		fmt.Fprintf(&sb, `    if p.%[1]s != 0xffffffffu && p.%[1]s < arrayLength(&particles_read) {
        let bond_other = particles_read[p.%[1]s];
        if bond_other.alive == 1u {
            let bond_diff = bond_other.position - p.position;
            let bond_dist = max(length(bond_diff), 0.0001);
%[2]s
        } else {
            p.%[1]s = 0xffffffffu;
        }
    }
`, f, inner)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ---------------------------------------------------------------------------
// Agent state machines

// AgentTransition moves the machine to state To when Condition (a WGSL
// boolean expression over p and uniforms) holds. Transitions are
// checked in order and the first match wins.
type AgentTransition struct {
	Condition string
	To        string
}

// AgentState is one named state with optional entry/update/exit code.
type AgentState struct {
	Name        string
	OnEnter     string
	OnUpdate    string
	OnExit      string
	Transitions []AgentTransition
}

// Agent is a per-particle finite state machine. State and the
// previous state live in u32 particle fields, the per-state timer in an
// f32 field. State indices follow the order of States.
type Agent struct {
	StateField     string
	PrevStateField string
	TimerField     string
	States         []AgentState
}

func (Agent) Name() string                  { return "agent" }
func (Agent) RequiresNeighbors() bool       { return false }
func (Agent) DynamicParams() []DynamicParam { return nil }

func (r Agent) stateIndex(name string) (int, bool) {
	for i, s := range r.States {
		if s.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (r Agent) Validate(c RuleContext) error {
	if len(r.States) == 0 {
		return fmt.Errorf("agent: no states")
	}
	seen := map[string]bool{}
	for _, s := range r.States {
		if seen[s.Name] {
			return fmt.Errorf("agent: duplicate state %q", s.Name)
		}
		seen[s.Name] = true
	}
	for _, s := range r.States {
		for _, t := range s.Transitions {
			if _, ok := r.stateIndex(t.To); !ok {
				return fmt.Errorf("agent: state %q transitions to unknown state %q", s.Name, t.To)
			}
		}
	}
	if c.Layout == nil {
		return nil
	}
	if !c.Layout.Has(r.StateField, U32) {
		return fmt.Errorf("agent: no u32 field %q in layout", r.StateField)
	}
	if !c.Layout.Has(r.PrevStateField, U32) {
		return fmt.Errorf("agent: no u32 field %q in layout", r.PrevStateField)
	}
	if !c.Layout.Has(r.TimerField, F32) {
		return fmt.Errorf("agent: no f32 field %q in layout", r.TimerField)
	}
	return nil
}

func (r Agent) MainWGSL(c RuleContext) string {
	var sb strings.Builder
	sb.WriteString("    // Agent state machine\n")

	// Entry actions run on the first frame in a new state.
	sb.WriteString(fmt.Sprintf("    if p.%s != p.%s {\n", r.StateField, r.PrevStateField))
	sb.WriteString(fmt.Sprintf("        switch p.%s {\n", r.StateField))
	for i, s := range r.States {
		sb.WriteString(fmt.Sprintf("        case %du: { // enter %s\n", i, s.Name))
		if code := indentWGSL(s.OnEnter, "            "); code != "" {
			sb.WriteString(code + "\n")
		}
		sb.WriteString("        }\n")
	}
	sb.WriteString("        default: {}\n        }\n")
	sb.WriteString(fmt.Sprintf("        p.%s = p.%s;\n", r.PrevStateField, r.StateField))
	sb.WriteString("    }\n")

	sb.WriteString(fmt.Sprintf("    p.%s += uniforms.delta_time;\n", r.TimerField))

	sb.WriteString(fmt.Sprintf("    switch p.%s {\n", r.StateField))
	for i, s := range r.States {
		sb.WriteString(fmt.Sprintf("    case %du: { // %s\n", i, s.Name))
		if code := indentWGSL(s.OnUpdate, "        "); code != "" {
			sb.WriteString(code + "\n")
		}
		for ti, t := range s.Transitions {
			to, _ := r.stateIndex(t.To)
			if ti > 0 {
				sb.WriteString(fmt.Sprintf("        } else if %s {\n", t.Condition))
			} else {
				sb.WriteString(fmt.Sprintf("        if %s {\n", t.Condition))
			}
			if code := indentWGSL(s.OnExit, "            "); code != "" {
				sb.WriteString(code + "\n")
			}
			sb.WriteString(fmt.Sprintf("            p.%s = %du;\n", r.StateField, to))
			sb.WriteString(fmt.Sprintf("            p.%s = 0.0;\n", r.TimerField))
		}
		if len(s.Transitions) > 0 {
			sb.WriteString("        }\n")
		}
		sb.WriteString("    }\n")
	}
	sb.WriteString("    default: {}\n    }")
	return sb.String()
}
