package pulsar

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// OrbitCamera orbits a target point with smooth interpolation toward
// its control targets, so mouse input never snaps the view.
type OrbitCamera struct {
	Yaw      float32
	Pitch    float32
	Distance float32
	Target   mgl32.Vec3

	yawTarget      float32
	pitchTarget    float32
	distanceTarget float32
	targetTarget   mgl32.Vec3

	// RotateSpeed is radians per pixel of mouse motion.
	RotateSpeed float32
	ZoomSpeed   float32
	PanSpeed    float32
	// Smoothing of 0 is instant; 10-20 feels right.
	Smoothing float32

	PitchMin    float32
	PitchMax    float32
	DistanceMin float32
	DistanceMax float32

	// Projection parameters.
	FovY float32
	Near float32
	Far  float32

	defaultYaw      float32
	defaultPitch    float32
	defaultDistance float32
	defaultTarget   mgl32.Vec3
}

// NewOrbitCamera returns a camera at the stock orbit position.
func NewOrbitCamera() *OrbitCamera {
	c := &OrbitCamera{
		Yaw:      0,
		Pitch:    0.3,
		Distance: 3,

		RotateSpeed: 0.005,
		ZoomSpeed:   0.15,
		PanSpeed:    0.003,
		Smoothing:   15,

		PitchMin:    -1.5,
		PitchMax:    1.5,
		DistanceMin: 0.5,
		DistanceMax: 50,

		FovY: mgl32.DegToRad(45),
		Near: 0.1,
		Far:  100,
	}
	c.defaultYaw = c.Yaw
	c.defaultPitch = c.Pitch
	c.defaultDistance = c.Distance
	c.yawTarget = c.Yaw
	c.pitchTarget = c.Pitch
	c.distanceTarget = c.Distance
	return c
}

// Update eases the camera toward its control targets.
func (c *OrbitCamera) Update(dt float32) {
	t := 1 - float32(math.Exp(float64(-c.Smoothing*dt)))
	c.Yaw = lerp(c.Yaw, c.yawTarget, t)
	c.Pitch = lerp(c.Pitch, c.pitchTarget, t)
	c.Distance = lerp(c.Distance, c.distanceTarget, t)
	c.Target = lerpVec3(c.Target, c.targetTarget, t)
}

// Orbit rotates around the target by a mouse delta in pixels.
func (c *OrbitCamera) Orbit(dx, dy float32) {
	c.yawTarget -= dx * c.RotateSpeed
	c.pitchTarget = clamp(c.pitchTarget+dy*c.RotateSpeed, c.PitchMin, c.PitchMax)
}

// Pan moves the target perpendicular to the view direction, scaled by
// distance so the gesture feels the same at any zoom.
func (c *OrbitCamera) Pan(dx, dy float32) {
	scale := c.distanceTarget * c.PanSpeed
	c.targetTarget = c.targetTarget.Sub(c.Right().Mul(dx * scale))
	c.targetTarget = c.targetTarget.Add(c.Up().Mul(dy * scale))
}

// Zoom moves toward or away from the target; positive zooms in.
func (c *OrbitCamera) Zoom(amount float32) {
	c.distanceTarget -= amount * c.ZoomSpeed * c.distanceTarget
	c.distanceTarget = clamp(c.distanceTarget, c.DistanceMin, c.DistanceMax)
}

// MoveForward shifts the target along the camera's XZ forward.
func (c *OrbitCamera) MoveForward(amount float32) {
	c.targetTarget = c.targetTarget.Add(c.ForwardXZ().Mul(amount))
}

// MoveRight shifts the target along the camera's right vector.
func (c *OrbitCamera) MoveRight(amount float32) {
	c.targetTarget = c.targetTarget.Add(c.Right().Mul(amount))
}

// MoveUp shifts the target along world up.
func (c *OrbitCamera) MoveUp(amount float32) {
	c.targetTarget[1] += amount
}

// Reset eases back to the default orbit.
func (c *OrbitCamera) Reset() {
	c.yawTarget = c.defaultYaw
	c.pitchTarget = c.defaultPitch
	c.distanceTarget = c.defaultDistance
	c.targetTarget = c.defaultTarget
}

// Position is the camera's world position on the orbit sphere.
func (c *OrbitCamera) Position() mgl32.Vec3 {
	cosPitch := float32(math.Cos(float64(c.Pitch)))
	x := c.Distance * cosPitch * float32(math.Sin(float64(c.Yaw)))
	y := c.Distance * float32(math.Sin(float64(c.Pitch)))
	z := c.Distance * cosPitch * float32(math.Cos(float64(c.Yaw)))
	return c.Target.Add(mgl32.Vec3{x, y, z})
}

// Forward is the unit vector from camera toward target.
func (c *OrbitCamera) Forward() mgl32.Vec3 {
	return normalizeOrZero(c.Target.Sub(c.Position()))
}

// ForwardXZ is Forward flattened onto the ground plane.
func (c *OrbitCamera) ForwardXZ() mgl32.Vec3 {
	f := c.Forward()
	return normalizeOrZero(mgl32.Vec3{f.X(), 0, f.Z()})
}

// Right is the camera's right direction.
func (c *OrbitCamera) Right() mgl32.Vec3 {
	return normalizeOrZero(c.Forward().Cross(mgl32.Vec3{0, 1, 0}))
}

// Up is the camera-space up, perpendicular to the view.
func (c *OrbitCamera) Up() mgl32.Vec3 {
	return normalizeOrZero(c.Right().Cross(c.Forward()))
}

// ViewMatrix is the right-handed look-at toward the target.
func (c *OrbitCamera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position(), c.Target, mgl32.Vec3{0, 1, 0})
}

// ViewProj is the combined projection * view matrix uploaded each
// frame.
func (c *OrbitCamera) ViewProj(aspect float32) mgl32.Mat4 {
	proj := mgl32.Perspective(c.FovY, aspect, c.Near, c.Far)
	return proj.Mul4(c.ViewMatrix())
}

func lerp(a, b, t float32) float32 { return a + (b-a)*t }

func lerpVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalizeOrZero(v mgl32.Vec3) mgl32.Vec3 {
	if v.LenSqr() < 1e-8 {
		return mgl32.Vec3{}
	}
	return v.Normalize()
}
