package pulsar

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func approx(a, b, eps float32) bool {
	return float32(math.Abs(float64(a-b))) <= eps
}

// settle runs enough large-dt updates that the eased values reach
// their targets.
func settle(c *OrbitCamera) {
	for i := 0; i < 8; i++ {
		c.Update(10)
	}
}

func TestOrbitCamera_PitchClamp(t *testing.T) {
	c := NewOrbitCamera()
	c.Orbit(0, 1e6)
	settle(c)
	if !approx(c.Pitch, c.PitchMax, 1e-3) {
		t.Errorf("Pitch = %v, want clamped to %v", c.Pitch, c.PitchMax)
	}

	c.Orbit(0, -1e7)
	settle(c)
	if !approx(c.Pitch, c.PitchMin, 1e-3) {
		t.Errorf("Pitch = %v, want clamped to %v", c.Pitch, c.PitchMin)
	}
}

func TestOrbitCamera_ZoomClamp(t *testing.T) {
	c := NewOrbitCamera()
	for i := 0; i < 100; i++ {
		c.Zoom(1)
	}
	settle(c)
	if !approx(c.Distance, c.DistanceMin, 1e-3) {
		t.Errorf("Distance = %v, want clamped to %v", c.Distance, c.DistanceMin)
	}

	for i := 0; i < 100; i++ {
		c.Zoom(-1)
	}
	settle(c)
	if !approx(c.Distance, c.DistanceMax, 1e-2) {
		t.Errorf("Distance = %v, want clamped to %v", c.Distance, c.DistanceMax)
	}
}

func TestOrbitCamera_Reset(t *testing.T) {
	c := NewOrbitCamera()
	c.Orbit(500, 200)
	c.Zoom(3)
	c.Pan(100, 100)
	settle(c)

	c.Reset()
	settle(c)
	if !approx(c.Yaw, 0, 1e-3) || !approx(c.Pitch, 0.3, 1e-3) || !approx(c.Distance, 3, 1e-2) {
		t.Errorf("after reset: yaw %v pitch %v distance %v", c.Yaw, c.Pitch, c.Distance)
	}
	if c.Target.Len() > 1e-2 {
		t.Errorf("after reset: target %v, want origin", c.Target)
	}
}

func TestOrbitCamera_Position(t *testing.T) {
	c := NewOrbitCamera()
	c.Yaw = 0
	c.Pitch = 0
	c.Distance = 3
	c.Target = mgl32.Vec3{}

	pos := c.Position()
	if !approx(pos.X(), 0, 1e-5) || !approx(pos.Y(), 0, 1e-5) || !approx(pos.Z(), 3, 1e-5) {
		t.Errorf("Position = %v, want {0 0 3}", pos)
	}

	f := c.Forward()
	if !approx(f.Z(), -1, 1e-5) {
		t.Errorf("Forward = %v, want -z", f)
	}
}

func TestOrbitCamera_ViewProjFinite(t *testing.T) {
	c := NewOrbitCamera()
	m := c.ViewProj(16.0 / 9.0)
	for i, v := range m {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("ViewProj[%d] = %v", i, v)
		}
	}
}

func TestOrbitCamera_PanScalesWithDistance(t *testing.T) {
	near := NewOrbitCamera()
	near.Pan(100, 0)
	settle(near)

	far := NewOrbitCamera()
	far.Zoom(-10)
	settle(far)
	far.Pan(100, 0)
	settle(far)

	if far.Target.Len() <= near.Target.Len() {
		t.Errorf("pan at distance %v moved %v, pan at %v moved %v; far pans should move more",
			far.Distance, far.Target.Len(), near.Distance, near.Target.Len())
	}
}
