package pulsar

import "testing"

func TestInput_Latch(t *testing.T) {
	var in Input

	in.latch(KeySpace, true)
	if !in.Pressed[KeySpace] || !in.JustPressed[KeySpace] {
		t.Error("first press must set Pressed and JustPressed")
	}

	in.latch(KeySpace, true)
	if in.JustPressed[KeySpace] {
		t.Error("held key must clear JustPressed")
	}

	in.latch(KeySpace, false)
	if in.Pressed[KeySpace] || !in.JustReleased[KeySpace] {
		t.Error("release must clear Pressed and set JustReleased")
	}

	in.latch(KeySpace, false)
	if in.JustReleased[KeySpace] {
		t.Error("idle key must clear JustReleased")
	}
}

func TestInput_MouseNDC(t *testing.T) {
	in := Input{MouseX: 320, MouseY: 120, WindowWidth: 640, WindowHeight: 480}
	ndc := in.MouseNDC()
	if ndc.X() != 0 {
		t.Errorf("center x maps to %v, want 0", ndc.X())
	}
	if ndc.Y() != 0.5 {
		t.Errorf("quarter-height y maps to %v, want 0.5", ndc.Y())
	}

	var empty Input
	if ndc := empty.MouseNDC(); ndc.X() != 0 || ndc.Y() != 0 {
		t.Error("zero-size window must map to the origin")
	}
}

func TestInput_MouseWorld(t *testing.T) {
	cam := NewOrbitCamera()
	cam.Pitch = 0
	cam.Yaw = 0

	// Cursor dead center unprojects onto the orbit target.
	in := Input{MouseX: 400, MouseY: 300, WindowWidth: 800, WindowHeight: 600}
	p := in.MouseWorld(cam)
	if p.Sub(cam.Target).Len() > 1e-3 {
		t.Errorf("centered cursor unprojects to %v, want %v", p, cam.Target)
	}
}
