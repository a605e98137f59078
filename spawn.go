package pulsar

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	opensimplex "github.com/ojrac/opensimplex-go"
)

const tau = 2 * math.Pi

// SpawnContext is handed to spawner callbacks with helpers for the
// common spawn patterns, so initial populations stay one-liners.
// The RNG is reseeded per particle index, making spawns reproducible
// for a given simulation seed and independent of evaluation order.
type SpawnContext struct {
	// Index of the particle being spawned (0 to Count-1).
	Index uint32
	// Count is the total population size.
	Count uint32
	// Bounds is the half-extent of the simulation cube.
	Bounds float32

	seed  int64
	rng   *rand.Rand
	noise opensimplex.Noise
}

func newSpawnContext(count uint32, bounds float32, seed int64) *SpawnContext {
	c := &SpawnContext{
		Count:  count,
		Bounds: bounds,
		seed:   seed,
		noise:  opensimplex.NewNormalized(seed),
	}
	c.reset(0)
	return c
}

func (c *SpawnContext) reset(index uint32) {
	c.Index = index
	c.rng = rand.New(rand.NewSource(c.seed ^ (int64(index)+1)*0x9e3779b9))
}

// Progress is the normalized position in the spawn, 0.0 to 1.0.
func (c *SpawnContext) Progress() float32 {
	return float32(c.Index) / float32(c.Count)
}

// Random returns a float in [0, 1).
func (c *SpawnContext) Random() float32 {
	return c.rng.Float32()
}

// RandomRange returns a float in [min, max).
func (c *SpawnContext) RandomRange(min, max float32) float32 {
	return min + c.rng.Float32()*(max-min)
}

// RandomInt returns an int in [min, max).
func (c *SpawnContext) RandomInt(min, max int32) int32 {
	return min + c.rng.Int31n(max-min)
}

// RandomUint returns a uint in [min, max).
func (c *SpawnContext) RandomUint(min, max uint32) uint32 {
	return min + uint32(c.rng.Int31n(int32(max-min)))
}

// Noise2 samples normalized simplex noise in [0, 1].
func (c *SpawnContext) Noise2(x, y float32) float32 {
	return float32(c.noise.Eval2(float64(x), float64(y)))
}

// Noise3 samples normalized 3D simplex noise in [0, 1].
func (c *SpawnContext) Noise3(x, y, z float32) float32 {
	return float32(c.noise.Eval3(float64(x), float64(y), float64(z)))
}

// RandomInSphere returns a point uniformly distributed inside a sphere
// of the given radius.
func (c *SpawnContext) RandomInSphere(radius float32) mgl32.Vec3 {
	theta := c.RandomRange(0, tau)
	phi := c.RandomRange(0, math.Pi)
	r := radius * float32(math.Cbrt(float64(c.Random())))
	sinPhi := float32(math.Sin(float64(phi)))
	return mgl32.Vec3{
		r * sinPhi * float32(math.Cos(float64(theta))),
		r * sinPhi * float32(math.Sin(float64(theta))),
		r * float32(math.Cos(float64(phi))),
	}
}

// RandomOnSphere returns a point on the sphere surface.
func (c *SpawnContext) RandomOnSphere(radius float32) mgl32.Vec3 {
	theta := c.RandomRange(0, tau)
	phi := c.RandomRange(0, math.Pi)
	sinPhi := float32(math.Sin(float64(phi)))
	return mgl32.Vec3{
		radius * sinPhi * float32(math.Cos(float64(theta))),
		radius * sinPhi * float32(math.Sin(float64(theta))),
		radius * float32(math.Cos(float64(phi))),
	}
}

// RandomInCube returns a point inside a cube of the given half-size.
func (c *SpawnContext) RandomInCube(halfSize float32) mgl32.Vec3 {
	return mgl32.Vec3{
		c.RandomRange(-halfSize, halfSize),
		c.RandomRange(-halfSize, halfSize),
		c.RandomRange(-halfSize, halfSize),
	}
}

// RandomInBounds returns a point inside the simulation bounds.
func (c *SpawnContext) RandomInBounds() mgl32.Vec3 {
	return c.RandomInCube(c.Bounds)
}

// RandomInCylinder returns a point inside a Y-axis cylinder.
func (c *SpawnContext) RandomInCylinder(radius, halfHeight float32) mgl32.Vec3 {
	theta := c.RandomRange(0, tau)
	r := radius * float32(math.Sqrt(float64(c.Random())))
	return mgl32.Vec3{
		r * float32(math.Cos(float64(theta))),
		c.RandomRange(-halfHeight, halfHeight),
		r * float32(math.Sin(float64(theta))),
	}
}

// RandomInDisk returns a point in the XZ disk at y=0.
func (c *SpawnContext) RandomInDisk(radius float32) mgl32.Vec3 {
	theta := c.RandomRange(0, tau)
	r := radius * float32(math.Sqrt(float64(c.Random())))
	return mgl32.Vec3{r * float32(math.Cos(float64(theta))), 0, r * float32(math.Sin(float64(theta)))}
}

// RandomOnRing returns a point on the XZ circle at y=0.
func (c *SpawnContext) RandomOnRing(radius float32) mgl32.Vec3 {
	theta := c.RandomRange(0, tau)
	return mgl32.Vec3{radius * float32(math.Cos(float64(theta))), 0, radius * float32(math.Sin(float64(theta)))}
}

// RandomDirection returns a uniformly distributed unit vector.
func (c *SpawnContext) RandomDirection() mgl32.Vec3 {
	return c.RandomOnSphere(1).Normalize()
}

// TangentVelocity returns a velocity perpendicular to position in the
// XZ plane, for orbital setups.
func (c *SpawnContext) TangentVelocity(position mgl32.Vec3, speed float32) mgl32.Vec3 {
	tangent := mgl32.Vec3{-position.Z(), 0, position.X()}
	if tangent.LenSqr() > 0.0001 {
		return tangent.Normalize().Mul(speed)
	}
	return mgl32.Vec3{speed, 0, 0}
}

// OutwardVelocity returns a velocity pointing away from the origin.
func (c *SpawnContext) OutwardVelocity(position mgl32.Vec3, speed float32) mgl32.Vec3 {
	if position.LenSqr() > 0.0001 {
		return position.Normalize().Mul(speed)
	}
	return c.RandomDirection().Mul(speed)
}

// RandomColor returns an RGB color with independent random channels.
func (c *SpawnContext) RandomColor() mgl32.Vec3 {
	return mgl32.Vec3{c.Random(), c.Random(), c.Random()}
}

// RandomHue returns a color with random hue at fixed saturation and
// value.
func (c *SpawnContext) RandomHue(saturation, value float32) mgl32.Vec3 {
	return hsvToRGB(c.Random(), saturation, value)
}

// HSV converts hue/saturation/value to RGB.
func (c *SpawnContext) HSV(hue, saturation, value float32) mgl32.Vec3 {
	return hsvToRGB(hue, saturation, value)
}

// Rainbow maps spawn progress onto the hue circle.
func (c *SpawnContext) Rainbow(saturation, value float32) mgl32.Vec3 {
	return hsvToRGB(c.Progress(), saturation, value)
}

// GridPosition distributes particles on a 3D grid within bounds.
func (c *SpawnContext) GridPosition(cols, rows, layers uint32) mgl32.Vec3 {
	idx := c.Index % (cols * rows * layers)
	x := idx % cols
	y := (idx / cols) % rows
	z := idx / (cols * rows)
	return mgl32.Vec3{
		gridAxis(x, cols) * c.Bounds,
		gridAxis(y, rows) * c.Bounds,
		gridAxis(z, layers) * c.Bounds,
	}
}

// GridPosition2D distributes particles on an XZ grid at y=0.
func (c *SpawnContext) GridPosition2D(cols, rows uint32) mgl32.Vec3 {
	idx := c.Index % (cols * rows)
	x := idx % cols
	z := idx / cols
	return mgl32.Vec3{gridAxis(x, cols) * c.Bounds, 0, gridAxis(z, rows) * c.Bounds}
}

func gridAxis(i, n uint32) float32 {
	if n <= 1 {
		return 0
	}
	return float32(i)/float32(n-1)*2 - 1
}

// LinePosition distributes particles evenly from start to end.
func (c *SpawnContext) LinePosition(start, end mgl32.Vec3) mgl32.Vec3 {
	return start.Add(end.Sub(start).Mul(c.Progress()))
}

// CirclePosition distributes particles evenly around an XZ circle.
func (c *SpawnContext) CirclePosition(radius float32) mgl32.Vec3 {
	angle := float64(c.Progress() * tau)
	return mgl32.Vec3{radius * float32(math.Cos(angle)), 0, radius * float32(math.Sin(angle))}
}

// HelixPosition distributes particles along a spiral of the given
// radius, total height and turn count.
func (c *SpawnContext) HelixPosition(radius, height, turns float32) mgl32.Vec3 {
	t := c.Progress()
	angle := float64(t * tau * turns)
	return mgl32.Vec3{
		radius * float32(math.Cos(angle)),
		(t - 0.5) * height,
		radius * float32(math.Sin(angle)),
	}
}

func hsvToRGB(h, s, v float32) mgl32.Vec3 {
	c := v * s
	hp := float64(h * 6)
	x := c * float32(1-math.Abs(math.Mod(hp, 2)-1))
	m := v - c

	var r, g, b float32
	switch int(hp) % 6 {
	case 0:
		r, g, b = c, x, 0
	case 1:
		r, g, b = x, c, 0
	case 2:
		r, g, b = 0, c, x
	case 3:
		r, g, b = 0, x, c
	case 4:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return mgl32.Vec3{r + m, g + m, b + m}
}
