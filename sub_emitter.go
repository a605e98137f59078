package pulsar

import (
	"fmt"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxDeathEvents caps the death events recorded per frame; later
// deaths simply spawn no children that frame.
const MaxDeathEvents = 4096

// deathEventStride is the GPU size of one DeathEvent record.
const deathEventStride = 48

// SubEmitter spawns child particles when a parent of ParentType dies.
// Chain several for staged effects (rockets to sparks to embers).
type SubEmitter struct {
	ParentType      uint32
	ChildType       uint32
	Count           uint32
	SpeedMin        float32
	SpeedMax        float32
	Spread          float32
	InheritVelocity float32
	SpawnRadius     float32
	ChildColor      *mgl32.Vec3
}

// NewSubEmitter returns a sub-emitter with the stock defaults: ten
// hemisphere children at moderate speed, inheriting 30% of the parent
// velocity.
func NewSubEmitter(parentType, childType uint32) SubEmitter {
	return SubEmitter{
		ParentType:      parentType,
		ChildType:       childType,
		Count:           10,
		SpeedMin:        0.5,
		SpeedMax:        1.5,
		Spread:          3.14159265,
		InheritVelocity: 0.3,
	}
}

// WithCount sets the number of children per parent death.
func (s SubEmitter) WithCount(n uint32) SubEmitter {
	s.Count = n
	return s
}

// WithSpeed sets the random child speed range.
func (s SubEmitter) WithSpeed(min, max float32) SubEmitter {
	s.SpeedMin, s.SpeedMax = min, max
	return s
}

// WithSpread sets the emission cone half-angle in radians; 0 is a
// laser, pi a hemisphere, tau the full sphere.
func (s SubEmitter) WithSpread(radians float32) SubEmitter {
	s.Spread = radians
	return s
}

// WithInheritVelocity sets the fraction of parent velocity children
// keep, clamped to [0, 1].
func (s SubEmitter) WithInheritVelocity(f float32) SubEmitter {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	s.InheritVelocity = f
	return s
}

// WithSpawnRadius scatters children within radius of the parent.
func (s SubEmitter) WithSpawnRadius(radius float32) SubEmitter {
	s.SpawnRadius = radius
	return s
}

// WithChildColor gives children a fixed color instead of inheriting
// the parent's.
func (s SubEmitter) WithChildColor(color mgl32.Vec3) SubEmitter {
	s.ChildColor = &color
	return s
}

// deathEventWGSL must match deathEventStride and the host packing.
const deathEventWGSL = `
struct DeathEvent {
    position: vec3<f32>,
    parent_type: u32,
    velocity: vec3<f32>,
    _pad0: u32,
    color: vec3<f32>,
    _pad1: u32,
};
`

// deathBindingsWGSL is spliced into the simulate program when any
// sub-emitter is registered; kill_particle then records the death.
const deathBindingsWGSL = deathEventWGSL + `
@group(3) @binding(0) var<storage, read_write> death_buffer: array<DeathEvent>;
@group(3) @binding(1) var<storage, read_write> death_count: atomic<u32>;

fn record_death(pos: vec3<f32>, vel: vec3<f32>, col: vec3<f32>, ptype: u32) {
    let idx = atomicAdd(&death_count, 1u);
    if idx < arrayLength(&death_buffer) {
        death_buffer[idx].position = pos;
        death_buffer[idx].velocity = vel;
        death_buffer[idx].color = col;
        death_buffer[idx].parent_type = ptype;
    }
}
`

// lifecycleRecordingWGSL is the death-recording variant of the
// lifecycle helpers. Color and type default to zero when the schema
// does not carry them.
func lifecycleRecordingWGSL(l *Layout) string {
	color := "vec3<f32>(0.0)"
	if l.Has("color", Vec3) {
		color = "(*p).color"
	}
	ptype := "0u"
	if l.Has("particle_type", U32) {
		ptype = "(*p).particle_type"
	}
	return fmt.Sprintf(`
fn is_alive(p: Particle) -> bool {
    return p.alive == 1u;
}

fn kill_particle(p: ptr<function, Particle>) {
    if (*p).alive == 1u {
        record_death((*p).position, (*p).velocity, %s, %s);
    }
    (*p).alive = 0u;
}

fn respawn_at(p: ptr<function, Particle>, pos: vec3<f32>, vel: vec3<f32>) {
    (*p).alive = 1u;
    (*p).age = 0.0;
    (*p).scale = 1.0;
    (*p).position = pos;
    (*p).velocity = vel;
    skip_integrate = true;
}
`, color, ptype)
}

// childSpawnWGSL is one sub-emitter's block inside the spawn kernel,
// with `death` and `death_idx` in scope.
func (s SubEmitter) childSpawnWGSL(index int, l *Layout) string {
	var extras strings.Builder
	if l.Has("particle_type", U32) {
		fmt.Fprintf(&extras, "            child.particle_type = %du;\n", s.ChildType)
	}
	if l.Has("color", Vec3) {
		if s.ChildColor != nil {
			fmt.Fprintf(&extras, "            child.color = %s;\n", wgslVec3(*s.ChildColor))
		} else {
			extras.WriteString("            child.color = death.color;\n")
		}
	}

	return fmt.Sprintf(`    // Sub-emitter %[1]d: children for parent type %[2]d
    if death.parent_type == %[2]du {
        for (var child_i = 0u; child_i < %[3]du; child_i++) {
            let slot = atomicAdd(&next_child_slot, 1u);
            if slot >= arrayLength(&particles) {
                break;
            }

            var actual_slot = slot %% arrayLength(&particles);
            var found = false;
            for (var search = 0u; search < 100u; search++) {
                let check_slot = (slot + search) %% arrayLength(&particles);
                if particles[check_slot].alive == 0u {
                    actual_slot = check_slot;
                    found = true;
                    break;
                }
            }
            if !found {
                continue;
            }

            var child = particles[actual_slot];

            let seed = death_idx * 1000u + child_i * 7u + %[1]du;
            let theta = rand(seed) * 6.28318;
            let phi = rand(seed + 1u) * %[4]s;
            let dir = vec3<f32>(
                sin(phi) * cos(theta),
                cos(phi),
                sin(phi) * sin(theta)
            );
            let speed = %[5]s + rand(seed + 2u) * (%[6]s - %[5]s);
            let offset = rand_sphere(seed + 3u) * %[7]s;

            child.position = death.position + offset;
            child.velocity = death.velocity * %[8]s + dir * speed;
            child.age = 0.0;
            child.alive = 1u;
            child.scale = 1.0;
%[9]s
            particles[actual_slot] = child;
        }
    }
`, index, s.ParentType, s.Count,
		wgslFloat(s.Spread), wgslFloat(s.SpeedMin), wgslFloat(s.SpeedMax),
		wgslFloat(s.SpawnRadius), wgslFloat(s.InheritVelocity), extras.String())
}

// spawnShaderWGSL generates the secondary compute pass that turns the
// frame's death events into child particles.
func spawnShaderWGSL(l *Layout, subEmitters []SubEmitter) string {
	var spawnCode strings.Builder
	for i, se := range subEmitters {
		spawnCode.WriteString(se.childSpawnWGSL(i, l))
		spawnCode.WriteString("\n")
	}

	return fmt.Sprintf(`// Sub-emitter child spawning
%s
%s
struct CountBuffer {
    count: u32,
};

@group(0) @binding(0) var<storage, read_write> particles: array<Particle>;
@group(0) @binding(1) var<storage, read> death_buffer: array<DeathEvent>;
@group(0) @binding(2) var<storage, read> death_count_buf: CountBuffer;
@group(0) @binding(3) var<storage, read_write> next_child_slot: atomic<u32>;
%s
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let death_idx = global_id.x;
    if death_idx >= death_count_buf.count {
        return;
    }

    let death = death_buffer[death_idx];

%s}
`, l.WGSLStruct(), deathEventWGSL, randomWGSL, spawnCode.String())
}

// SubEmitterGPU owns the death buffers and the child-spawn pipeline.
// The simulate pass records deaths through group(3); the spawn pass
// consumes them against whichever particle buffer simulate just wrote.
type SubEmitterGPU struct {
	deathBuffer *wgpu.Buffer
	countBuffer *wgpu.Buffer
	slotBuffer  *wgpu.Buffer

	spawnPipeline *wgpu.ComputePipeline
	// One spawn bind group per particle buffer of the ping-pong pair.
	spawnBG [2]*wgpu.BindGroup

	log Logger
}

// NewSubEmitterGPU builds the death buffers and spawn pipeline against
// both halves of the particle ping-pong.
func NewSubEmitterGPU(device *wgpu.Device, particleBuffers [2]*wgpu.Buffer, l *Layout, subEmitters []SubEmitter, log Logger) (*SubEmitterGPU, error) {
	if log == nil {
		log = NewNopLogger()
	}
	se := &SubEmitterGPU{log: log}

	var err error
	se.deathBuffer, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "death events",
		Size:  MaxDeathEvents * deathEventStride,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("sub-emitter: death buffer: %w", err)
	}
	se.countBuffer, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "death count",
		Size:  4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		se.Release()
		return nil, fmt.Errorf("sub-emitter: count buffer: %w", err)
	}
	se.slotBuffer, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "child slot cursor",
		Size:  4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		se.Release()
		return nil, fmt.Errorf("sub-emitter: slot buffer: %w", err)
	}

	src := spawnShaderWGSL(l, subEmitters)
	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "sub-emitter spawn",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src},
	})
	if err != nil {
		se.Release()
		return nil, fmt.Errorf("sub-emitter: spawn shader: %w", err)
	}
	defer module.Release()

	se.spawnPipeline, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "sub-emitter spawn",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		se.Release()
		return nil, fmt.Errorf("sub-emitter: spawn pipeline: %w", err)
	}

	layout := se.spawnPipeline.GetBindGroupLayout(0)
	defer layout.Release()
	for i, pb := range particleBuffers {
		se.spawnBG[i], err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("sub-emitter spawn %d", i),
			Layout: layout,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: pb, Size: wgpu.WholeSize},
				{Binding: 1, Buffer: se.deathBuffer, Size: wgpu.WholeSize},
				{Binding: 2, Buffer: se.countBuffer, Size: wgpu.WholeSize},
				{Binding: 3, Buffer: se.slotBuffer, Size: wgpu.WholeSize},
			},
		})
		if err != nil {
			se.Release()
			return nil, fmt.Errorf("sub-emitter: spawn bind group %d: %w", i, err)
		}
	}

	log.Debugf("sub-emitters: %d configured", len(subEmitters))
	return se, nil
}

// DeathBuffer is bound at group(3) binding(0) of the simulate pass.
func (se *SubEmitterGPU) DeathBuffer() *wgpu.Buffer { return se.deathBuffer }

// CountBuffer is bound at group(3) binding(1) of the simulate pass.
func (se *SubEmitterGPU) CountBuffer() *wgpu.Buffer { return se.countBuffer }

// ClearCounters zeroes the death and slot counters; call before the
// simulate pass each frame.
func (se *SubEmitterGPU) ClearCounters(queue *wgpu.Queue) {
	var zero [4]byte
	queue.WriteBuffer(se.countBuffer, 0, zero[:])
	queue.WriteBuffer(se.slotBuffer, 0, zero[:])
}

// EncodeSpawn appends the child-spawn pass against particle buffer
// half `write` (the one simulate just wrote).
func (se *SubEmitterGPU) EncodeSpawn(encoder *wgpu.CommandEncoder, write int) {
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(se.spawnPipeline)
	pass.SetBindGroup(0, se.spawnBG[write], nil)
	pass.DispatchWorkgroups(divCeil(MaxDeathEvents, 256), 1, 1)
	pass.End()
	pass.Release()
}

// Release frees all GPU resources.
func (se *SubEmitterGPU) Release() {
	for _, b := range []*wgpu.Buffer{se.deathBuffer, se.countBuffer, se.slotBuffer} {
		if b != nil {
			b.Release()
		}
	}
	for _, bg := range se.spawnBG {
		if bg != nil {
			bg.Release()
		}
	}
	if se.spawnPipeline != nil {
		se.spawnPipeline.Release()
	}
}
