package pulsar

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/stat"
)

func TestEmitter_SpawnRates(t *testing.T) {
	cases := []struct {
		e    Emitter
		want float32
	}{
		{PointEmitter{Rate: 100}, 100},
		{BurstEmitter{Count: 500}, 500},
		{ConeEmitter{Rate: 30}, 30},
		{SphereEmitter{Rate: 10}, 10},
		{BoxEmitter{Rate: 25}, 25},
	}
	for _, tc := range cases {
		if got := tc.e.SpawnRate(); got != tc.want {
			t.Errorf("%T.SpawnRate() = %v, want %v", tc.e, got, tc.want)
		}
	}
}

func TestPointEmitter_WGSL(t *testing.T) {
	e := PointEmitter{Position: mgl32.Vec3{0, 0.5, 0}, Rate: 100, Speed: 2}
	src := e.WGSL(0, false)

	for _, want := range []string{
		"if p.alive == 0u",
		"p.alive = 1u;",
		"p.age = 0.0;",
		"vec3<f32>(0.0, 0.5, 0.0)",
		"normalize(vec3<f32>(vx, vy, vz))",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("point emitter missing %q", want)
		}
	}

	// Speed 0 keeps the scaled raw velocity instead of normalizing.
	raw := PointEmitter{Position: mgl32.Vec3{}, Rate: 100}.WGSL(0, false)
	if strings.Contains(raw, "normalize(vec3<f32>(vx, vy, vz))") {
		t.Error("zero-speed point emitter should not normalize velocity")
	}
}

func TestBurstEmitter_WGSL(t *testing.T) {
	e := BurstEmitter{Position: mgl32.Vec3{}, Count: 500, Speed: 3}
	src := e.WGSL(0, false)

	if !strings.Contains(src, "index < 500u") {
		t.Error("burst must fill exactly its count of slots")
	}
	if !strings.Contains(src, "uniforms.time < 0.1") {
		t.Error("burst must only fire near startup")
	}
}

func TestConeEmitter_NormalizesDirection(t *testing.T) {
	e := ConeEmitter{
		Position:  mgl32.Vec3{},
		Direction: mgl32.Vec3{0, 2, 0},
		Speed:     1,
		Spread:    0.4,
		Rate:      50,
	}
	src := e.WGSL(0, false)

	if !strings.Contains(src, "let base_dir = vec3<f32>(0.0, 1.0, 0.0);") {
		t.Errorf("cone direction must be normalized before lowering:\n%s", src)
	}
}

func TestBoxEmitter_WGSL(t *testing.T) {
	e := BoxEmitter{
		Min:      mgl32.Vec3{-1, 0.9, -1},
		Max:      mgl32.Vec3{1, 1, 1},
		Velocity: mgl32.Vec3{0, -2, 0},
		Rate:     200,
	}
	src := e.WGSL(0, false)

	if !strings.Contains(src, "mix(-1.0, 1.0, rx)") {
		t.Errorf("box x range missing:\n%s", src)
	}
	if !strings.Contains(src, "p.velocity = vec3<f32>(0.0, -2.0, 0.0);") {
		t.Errorf("box velocity missing:\n%s", src)
	}
}

func TestSpawnReset_ParticleType(t *testing.T) {
	e := SphereEmitter{Center: mgl32.Vec3{}, Radius: 0.1, Speed: 1, Rate: 10}

	typed := e.WGSL(0, true)
	if !strings.Contains(typed, "p.particle_type = 0u;") {
		t.Error("typed layouts must reset particle_type on respawn")
	}
	untyped := e.WGSL(0, false)
	if strings.Contains(untyped, "particle_type") {
		t.Error("untyped layouts must not reference particle_type")
	}
}

// TestSpawnGate_RateExpectation replays the spawn lottery on the CPU:
// same hash, same chance threshold, every slot dead each frame. Over
// ten simulated seconds the spawn count must track rate within 5%.
func TestSpawnGate_RateExpectation(t *testing.T) {
	const (
		n       = 4096
		rate    = float32(200)
		frames  = 600
		emitter = 0
	)
	dt := float32(1.0) / 60.0
	spawnRate := rate * dt / float32(n)

	perFrame := make([]float64, frames)
	total := 0
	for f := 0; f < frames; f++ {
		time := float32(f) * dt
		tq := uint32(time * 10000.0)
		c := 0
		for i := uint32(0); i < n; i++ {
			h := (i*1103515245 + tq + emitter*7919) ^ (i >> 3)
			if float32(h&0xFFFF)/65535.0 < spawnRate {
				c++
			}
		}
		perFrame[f] = float64(c)
		total += c
	}

	want := float64(rate) * float64(frames) * float64(dt)
	if got := float64(total); got < 0.95*want || got > 1.05*want {
		t.Errorf("spawned %v over %v seconds, want %v within 5%%",
			got, float64(frames)*float64(dt), want)
	}
	perFrameWant := float64(rate) * float64(dt)
	if mean := stat.Mean(perFrame, nil); mean < 0.95*perFrameWant || mean > 1.05*perFrameWant {
		t.Errorf("per-frame spawn mean %v, want %v within 5%%", mean, perFrameWant)
	}
}

func TestEmitter_IndexDisambiguatesHash(t *testing.T) {
	a := PointEmitter{Position: mgl32.Vec3{}, Rate: 10}.WGSL(0, false)
	b := PointEmitter{Position: mgl32.Vec3{}, Rate: 10}.WGSL(1, false)
	if a == b {
		t.Error("emitter index must perturb the spawn hash")
	}
}
