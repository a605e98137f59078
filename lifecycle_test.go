package pulsar

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestLifecycle_Build(t *testing.T) {
	lc := NewLifecycle().
		Lifetime(2).
		FadeOut().
		ShrinkOut().
		ColorOverLife(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{1, 0, 0}).
		Emitter(PointEmitter{Rate: 100}).
		StartDead()

	rules, emitters, startDead := lc.Build()

	wantOrder := []string{"age", "lifetime", "fade_out", "shrink_out", "color_over_life"}
	if len(rules) != len(wantOrder) {
		t.Fatalf("got %d rules, want %d", len(rules), len(wantOrder))
	}
	for i, name := range wantOrder {
		if rules[i].Name() != name {
			t.Errorf("rule %d = %s, want %s", i, rules[i].Name(), name)
		}
	}
	if len(emitters) != 1 {
		t.Errorf("got %d emitters, want 1", len(emitters))
	}
	if !startDead {
		t.Error("StartDead must propagate")
	}
}

func TestLifecycle_FadeNeedsLifetime(t *testing.T) {
	rules, _, _ := NewLifecycle().FadeOut().Build()
	// Without a lifetime there is nothing to fade against; only aging
	// remains.
	if len(rules) != 1 || rules[0].Name() != "age" {
		t.Errorf("got %d rules, want just age", len(rules))
	}
}

func TestLifecycle_LifetimeRange(t *testing.T) {
	lc := NewLifecycle().LifetimeRange(1, 3)
	if got, ok := lc.GetLifetime(); !ok || got != 2 {
		t.Errorf("GetLifetime = %v, %v, want midpoint 2", got, ok)
	}
}

func TestLifetime_KillsOldParticles(t *testing.T) {
	code := Lifetime{Seconds: 1.5}.MainWGSL(RuleContext{Index: 0})
	if !strings.Contains(code, "kill_particle(&p)") {
		t.Errorf("lifetime must kill through the helper:\n%s", code)
	}
	if !strings.Contains(code, "p.age > uniforms.rule0_seconds") {
		t.Errorf("lifetime must compare age against its parameter:\n%s", code)
	}
}

func TestFadeOut_RequiresColor(t *testing.T) {
	bare, _ := BuildLayout(DefaultSchema(), false)
	if err := (FadeOut{Seconds: 1}).Validate(RuleContext{Layout: bare}); err == nil {
		t.Error("fade_out without a color field must fail")
	}

	colored, _ := BuildLayout(ColorSchema(), false)
	if err := (FadeOut{Seconds: 1}).Validate(RuleContext{Layout: colored}); err != nil {
		t.Errorf("fade_out with color rejected: %v", err)
	}
	if err := (ColorOverLife{Seconds: 1}).Validate(RuleContext{Layout: bare}); err == nil {
		t.Error("color_over_life without a color field must fail")
	}
}

func TestRespawnBelow_WGSL(t *testing.T) {
	code := RespawnBelow{Threshold: -1, Top: 1}.MainWGSL(RuleContext{Index: 2})
	if !strings.Contains(code, "p.position.y < uniforms.rule2_threshold") {
		t.Errorf("respawn must test against its threshold parameter:\n%s", code)
	}
	if !strings.Contains(code, "p.age = 0.0;") {
		t.Errorf("respawn must reset age:\n%s", code)
	}
}

func TestPresets(t *testing.T) {
	cases := []struct {
		name     string
		lc       *Lifecycle
		lifetime float32
	}{
		{"fire", Fire(mgl32.Vec3{}, 200), 1.5},
		{"fountain", Fountain(mgl32.Vec3{}, 300), 3.0},
		{"explosion", Explosion(mgl32.Vec3{}, 1000), 1.2},
		{"smoke", Smoke(mgl32.Vec3{}, 50), 4.0},
		{"sparkler", Sparkler(mgl32.Vec3{}, 400), 0.5},
		{"rain", Rain(500), 2.0},
	}
	for _, tc := range cases {
		got, ok := tc.lc.GetLifetime()
		if !ok || got != tc.lifetime {
			t.Errorf("%s: lifetime = %v, %v, want %v", tc.name, got, ok, tc.lifetime)
		}
		rules, emitters, startDead := tc.lc.Build()
		if len(rules) == 0 || len(emitters) != 1 {
			t.Errorf("%s: %d rules, %d emitters", tc.name, len(rules), len(emitters))
		}
		if !startDead {
			t.Errorf("%s: presets must start dead", tc.name)
		}
	}
}

func TestExplosion_UsesBurst(t *testing.T) {
	_, emitters, _ := Explosion(mgl32.Vec3{}, 1000).Build()
	burst, ok := emitters[0].(BurstEmitter)
	if !ok {
		t.Fatalf("explosion emitter is %T, want BurstEmitter", emitters[0])
	}
	if burst.Count != 1000 {
		t.Errorf("burst count = %d, want 1000", burst.Count)
	}
}
