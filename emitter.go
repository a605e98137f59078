package pulsar

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Emitter respawns dead particles directly in the compute shader.
// Each emitter lowers to a code block that runs before the rules, on
// dead particles only, so emitters never fight live simulation state.
type Emitter interface {
	// SpawnRate is particles per second; bursts report their count.
	SpawnRate() float32
	// WGSL emits the spawn block. index disambiguates the spawn hash
	// when several emitters share the pool; withType controls whether
	// the particle_type reset is emitted.
	WGSL(index int, withType bool) string
}

// spawnGate is the shared respawn lottery: a per-slot hash gives each
// dead particle a spawn chance proportional to rate*dt/pool size, so
// the expected respawn count per frame matches the configured rate.
func spawnGate(index int, rate float32) string {
	return fmt.Sprintf(`        let spawn_hash = (index * 1103515245u + u32(uniforms.time * 10000.0) + %du * 7919u) ^ (index >> 3u);
        let spawn_chance = f32(spawn_hash & 0xFFFFu) / 65535.0;
        let spawn_rate = %s * uniforms.delta_time / f32(num_particles);

        if spawn_chance < spawn_rate {`, index, wgslFloat(rate))
}

func spawnReset(withType bool) string {
	s := `            p.alive = 1u;
            p.age = 0.0;
            p.scale = 1.0;
            skip_integrate = true;
`
	if withType {
		s += "            p.particle_type = 0u;\n"
	}
	return s
}

// PointEmitter emits from a single point in random directions.
// Speed 0 keeps the raw random velocity scaled to at most 0.5.
type PointEmitter struct {
	Position mgl32.Vec3
	Rate     float32
	Speed    float32
}

func (e PointEmitter) SpawnRate() float32 { return e.Rate }

func (e PointEmitter) WGSL(index int, withType bool) string {
	speedCode := "p.velocity = vec3<f32>(vx, vy, vz) * 0.5;"
	if e.Speed > 0 {
		speedCode = fmt.Sprintf(`let vel_dir = normalize(vec3<f32>(vx, vy, vz));
            p.velocity = vel_dir * %s;`, wgslFloat(e.Speed))
	}
	return fmt.Sprintf(`    // Point emitter %d
    if p.alive == 0u {
%s
%s            p.position = %s;

            let vhash = spawn_hash * 0x45d9f3bu;
            let vx = f32((vhash >> 0u) & 0xFFu) / 128.0 - 1.0;
            let vy = f32((vhash >> 8u) & 0xFFu) / 128.0 - 1.0;
            let vz = f32((vhash >> 16u) & 0xFFu) / 128.0 - 1.0;
            %s
        }
    }`, index, spawnGate(index, e.Rate), spawnReset(withType), wgslVec3(e.Position), speedCode)
}

// BurstEmitter fires once near t=0, filling the first Count slots
// with particles flying outward uniformly on the sphere.
type BurstEmitter struct {
	Position mgl32.Vec3
	Count    uint32
	Speed    float32
}

func (e BurstEmitter) SpawnRate() float32 { return float32(e.Count) }

func (e BurstEmitter) WGSL(index int, withType bool) string {
	return fmt.Sprintf(`    // Burst emitter %d, fires once at startup
    if index < %du && uniforms.time < 0.1 {
%s
        p.position = %s;

        let vhash = index * 2654435761u;
        let theta = f32((vhash >> 0u) & 0xFFFFu) / 65535.0 * 6.28318;
        let phi = acos(f32((vhash >> 16u) & 0xFFFFu) / 65535.0 * 2.0 - 1.0);
        let dir = vec3<f32>(
            sin(phi) * cos(theta),
            sin(phi) * sin(theta),
            cos(phi)
        );
        p.velocity = dir * %s;
    }`, index, e.Count, indentWGSL(spawnReset(withType), "        "), wgslVec3(e.Position), wgslFloat(e.Speed))
}

// ConeEmitter emits inside a cone around Direction. Spread is the
// half-angle in radians: 0 is a laser, pi/2 a hemisphere.
type ConeEmitter struct {
	Position  mgl32.Vec3
	Direction mgl32.Vec3
	Speed     float32
	Spread    float32
	Rate      float32
}

func (e ConeEmitter) SpawnRate() float32 { return e.Rate }

func (e ConeEmitter) WGSL(index int, withType bool) string {
	dir := e.Direction.Normalize()
	return fmt.Sprintf(`    // Cone emitter %d
    if p.alive == 0u {
%s
%s            p.position = %s;

            let base_dir = %s;
            let vhash = spawn_hash * 0x45d9f3bu;

            let rand_angle = f32((vhash >> 0u) & 0xFFFFu) / 65535.0 * 6.28318;
            let rand_spread = f32((vhash >> 16u) & 0xFFFFu) / 65535.0 * %s;

            let up = select(vec3<f32>(0.0, 1.0, 0.0), vec3<f32>(1.0, 0.0, 0.0), abs(base_dir.y) > 0.9);
            let right = normalize(cross(up, base_dir));
            let forward = cross(base_dir, right);

            let spread_x = sin(rand_spread) * cos(rand_angle);
            let spread_y = sin(rand_spread) * sin(rand_angle);
            let spread_z = cos(rand_spread);
            let dir = normalize(right * spread_x + forward * spread_y + base_dir * spread_z);

            p.velocity = dir * %s;
        }
    }`, index, spawnGate(index, e.Rate), spawnReset(withType), wgslVec3(e.Position), wgslVec3(dir), wgslFloat(e.Spread), wgslFloat(e.Speed))
}

// SphereEmitter spawns on a sphere surface moving outward, or inward
// with negative speed.
type SphereEmitter struct {
	Center mgl32.Vec3
	Radius float32
	Speed  float32
	Rate   float32
}

func (e SphereEmitter) SpawnRate() float32 { return e.Rate }

func (e SphereEmitter) WGSL(index int, withType bool) string {
	return fmt.Sprintf(`    // Sphere emitter %d
    if p.alive == 0u {
%s
%s
            let vhash = spawn_hash * 0x45d9f3bu;
            let theta = f32((vhash >> 0u) & 0xFFFFu) / 65535.0 * 6.28318;
            let phi = acos(f32((vhash >> 16u) & 0xFFFFu) / 65535.0 * 2.0 - 1.0);
            let dir = vec3<f32>(
                sin(phi) * cos(theta),
                sin(phi) * sin(theta),
                cos(phi)
            );

            p.position = %s + dir * %s;
            p.velocity = dir * %s;
        }
    }`, index, spawnGate(index, e.Rate), spawnReset(withType), wgslVec3(e.Center), wgslFloat(e.Radius), wgslFloat(e.Speed))
}

// BoxEmitter spawns uniformly inside an axis-aligned box with a fixed
// initial velocity.
type BoxEmitter struct {
	Min      mgl32.Vec3
	Max      mgl32.Vec3
	Velocity mgl32.Vec3
	Rate     float32
}

func (e BoxEmitter) SpawnRate() float32 { return e.Rate }

func (e BoxEmitter) WGSL(index int, withType bool) string {
	return fmt.Sprintf(`    // Box emitter %d
    if p.alive == 0u {
%s
%s
            let vhash = spawn_hash * 0x45d9f3bu;
            let rx = f32((vhash >> 0u) & 0xFFu) / 255.0;
            let ry = f32((vhash >> 8u) & 0xFFu) / 255.0;
            let rz = f32((vhash >> 16u) & 0xFFu) / 255.0;

            p.position = vec3<f32>(
                mix(%s, %s, rx),
                mix(%s, %s, ry),
                mix(%s, %s, rz)
            );
            p.velocity = %s;
        }
    }`, index, spawnGate(index, e.Rate), spawnReset(withType),
		wgslFloat(e.Min[0]), wgslFloat(e.Max[0]),
		wgslFloat(e.Min[1]), wgslFloat(e.Max[1]),
		wgslFloat(e.Min[2]), wgslFloat(e.Max[2]),
		wgslVec3(e.Velocity))
}
