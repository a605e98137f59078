package pulsar

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestNewSim_Defaults(t *testing.T) {
	s := NewSim()
	if s.count != 10000 {
		t.Errorf("count = %d, want 10000", s.count)
	}
	if s.bounds != 1.0 {
		t.Errorf("bounds = %v, want 1.0", s.bounds)
	}
	if s.particleSize != 0.015 {
		t.Errorf("particleSize = %v, want 0.015", s.particleSize)
	}
	if s.seed != 42 {
		t.Errorf("seed = %d, want 42", s.seed)
	}
	if s.windowWidth != 1280 || s.windowHeight != 720 || s.title != "pulsar" {
		t.Errorf("window = %dx%d %q", s.windowWidth, s.windowHeight, s.title)
	}
}

func TestSim_BuilderAccumulates(t *testing.T) {
	s := NewSim().
		WithRule(Gravity{G: 9.8}).
		WithRules(Drag{K: 0.1}, BounceWalls{}).
		WithEmitter(PointEmitter{Rate: 100}).
		WithSubEmitter(NewSubEmitter(0, 1))

	if len(s.rules) != 3 {
		t.Errorf("got %d rules, want 3", len(s.rules))
	}
	if len(s.emitters) != 1 || len(s.subEmitters) != 1 {
		t.Errorf("got %d emitters, %d sub-emitters", len(s.emitters), len(s.subEmitters))
	}
}

func TestSim_WithLifecycle(t *testing.T) {
	s := NewSim().WithLifecycle(Fire(mgl32.Vec3{}, 200))
	if len(s.rules) == 0 {
		t.Error("lifecycle rules not merged")
	}
	if len(s.emitters) != 1 {
		t.Errorf("got %d emitters, want 1", len(s.emitters))
	}
	if !s.startDead {
		t.Error("fire preset must start dead")
	}
}

func TestSim_WithType(t *testing.T) {
	if NewSim().WithRule(Gravity{}).withType() {
		t.Error("untyped rules must not request the discriminator")
	}
	if !NewSim().WithRule(Chase{SelfType: 0, OtherType: 1, Radius: 0.2}).withType() {
		t.Error("chase requires particle_type")
	}
	if !NewSim().WithSubEmitter(NewSubEmitter(0, 1)).withType() {
		t.Error("sub-emitters match on parent type and need the discriminator")
	}
}

func TestSim_WithInbox(t *testing.T) {
	if NewSim().inbox {
		t.Error("message buffer must be off by default")
	}
	if !NewSim().WithInbox().inbox {
		t.Error("WithInbox must enable the message buffer")
	}
}

func TestSim_ResolvedSpatial(t *testing.T) {
	auto := NewSim().WithRule(Separate{Radius: 0.2, Strength: 1}).resolvedSpatial()
	if auto.CellSize != 0.2 {
		t.Errorf("derived cell size = %v, want the query radius 0.2", auto.CellSize)
	}

	explicit := SpatialConfig{CellSize: 0.25, Resolution: 16, MaxNeighbors: 64}
	got := NewSim().WithSpatial(explicit).resolvedSpatial()
	if got != explicit {
		t.Errorf("explicit config = %+v, want %+v", got, explicit)
	}
}

func TestSim_RefreshParamValues(t *testing.T) {
	s := NewSim().WithRules(Gravity{G: 9.8}, Drag{K: 0.2})
	s.refreshParamValues()

	if v := s.paramValues[ruleParamName(0, "g")]; v != float32(9.8) {
		t.Errorf("rule0_g = %v, want seeded 9.8", v)
	}
	if v := s.paramValues[ruleParamName(1, "k")]; v != float32(0.2) {
		t.Errorf("rule1_k = %v, want seeded 0.2", v)
	}

	// Runtime edits survive a refresh; stale keys do not.
	s.paramValues[ruleParamName(0, "g")] = float32(1.5)
	s.rules = s.rules[:1]
	s.refreshParamValues()
	if v := s.paramValues[ruleParamName(0, "g")]; v != float32(1.5) {
		t.Errorf("edited value lost: %v", v)
	}
	if _, ok := s.paramValues[ruleParamName(1, "k")]; ok {
		t.Error("removed rule's parameter must be dropped")
	}
}

func TestSim_SetParamBeforeRun(t *testing.T) {
	s := NewSim().WithRule(Gravity{G: 9.8})

	if err := s.SetParam(0, "g", float32(3)); err != nil {
		t.Fatalf("SetParam before Run: %v", err)
	}
	if v := s.paramValues[ruleParamName(0, "g")]; v != float32(3) {
		t.Errorf("stored value = %v, want 3", v)
	}

	if err := s.SetParam(5, "g", float32(1)); err == nil {
		t.Error("out-of-range rule index must fail")
	}
	if err := s.SetParam(-1, "g", float32(1)); err == nil {
		t.Error("negative rule index must fail")
	}
}

func TestSim_SetUniformBeforeRun(t *testing.T) {
	s := NewSim().WithUniform("gain", float32(1))

	if err := s.SetUniform("gain", float32(2)); err != nil {
		t.Fatalf("SetUniform before Run: %v", err)
	}
	v, _ := s.uniforms.Get("gain")
	if v != float32(2) {
		t.Errorf("uniform value = %v, want 2", v)
	}

	if err := s.SetUniform("nope", float32(1)); err == nil {
		t.Error("undeclared uniform must fail")
	}
}

func TestSim_ReplaceRulesBeforeRun(t *testing.T) {
	s := NewSim().WithRule(Gravity{G: 9.8})
	if err := s.ReplaceRules(Drag{K: 0.5}); err != nil {
		t.Fatalf("ReplaceRules before Run: %v", err)
	}
	if len(s.rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(s.rules))
	}
	if s.rules[0].Name() != "drag" {
		t.Errorf("rule = %s, want drag", s.rules[0].Name())
	}
}

func TestSim_WithFieldPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate field registration must panic in the builder")
		}
	}()
	NewSim().
		WithField("trail", NewFieldConfig(32)).
		WithField("trail", NewFieldConfig(32))
}

func TestSim_EncodePopulationStartDead(t *testing.T) {
	s := NewSim().WithParticleCount(16).WithStartDead()
	layout, err := BuildLayout(s.schema, s.withType())
	if err != nil {
		t.Fatal(err)
	}

	data := s.encodePopulation(layout)
	for i := 0; i < 16; i++ {
		r, err := layout.Decode(data[i*layout.Stride : (i+1)*layout.Stride])
		if err != nil {
			t.Fatal(err)
		}
		if alive, _ := r.U32("alive"); alive != 0 {
			t.Fatalf("particle %d spawned alive despite start-dead", i)
		}
	}
}
