package pulsar

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
)

// fieldProcessWGSL declares the uniform block shared by the merge and
// blur kernels. Must match the packing in packProcessParams.
const fieldProcessWGSL = `
struct ProcessParams {
    resolution: u32,
    components: u32,
    axis: u32,
    total: u32,
    decay: f32,
    blur: f32,
    _pad1: f32,
    _pad2: f32,
};
`

// fieldMergeWGSL folds the fixed-point deposits into the float volume
// and applies decay, clearing the deposit buffer as it goes.
const fieldMergeWGSL = fieldProcessWGSL + `
@group(0) @binding(0) var<storage, read_write> deposit: array<atomic<i32>>;
@group(0) @binding(1) var<storage, read_write> volume: array<f32>;
@group(0) @binding(2) var<uniform> params: ProcessParams;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if idx >= params.total {
        return;
    }
    let deposited = f32(atomicExchange(&deposit[idx], 0)) / 65536.0;
    volume[idx] = volume[idx] * params.decay + deposited;
}
`

// fieldBlurWGSL is one axis pass of the separable 3-tap blur.
const fieldBlurWGSL = fieldProcessWGSL + `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<f32>;
@group(0) @binding(2) var<uniform> params: ProcessParams;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if idx >= params.total {
        return;
    }

    let comps = params.components;
    let res = params.resolution;
    let comp = idx % comps;
    let cell = idx / comps;

    let x = cell % res;
    let y = (cell / res) % res;
    let z = cell / (res * res);

    var lo = vec3<u32>(x, y, z);
    var hi = lo;
    switch params.axis {
        case 0u: {
            lo.x = select(x - 1u, 0u, x == 0u);
            hi.x = min(x + 1u, res - 1u);
        }
        case 1u: {
            lo.y = select(y - 1u, 0u, y == 0u);
            hi.y = min(y + 1u, res - 1u);
        }
        default: {
            lo.z = select(z - 1u, 0u, z == 0u);
            hi.z = min(z + 1u, res - 1u);
        }
    }

    let lo_idx = (lo.x + lo.y * res + lo.z * res * res) * comps + comp;
    let hi_idx = (hi.x + hi.y * res + hi.z * res * res) * comps + comp;

    let center = src[idx];
    let side = (src[lo_idx] + src[hi_idx]) * 0.5;
    dst[idx] = mix(center, side, params.blur);
}
`

func packProcessParams(cfg FieldConfig, axis uint32) []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint32(b[0:], cfg.Resolution)
	binary.LittleEndian.PutUint32(b[4:], cfg.Kind.Components())
	binary.LittleEndian.PutUint32(b[8:], axis)
	binary.LittleEndian.PutUint32(b[12:], cfg.Elements())
	binary.LittleEndian.PutUint32(b[16:], math.Float32bits(cfg.Decay))
	binary.LittleEndian.PutUint32(b[20:], math.Float32bits(cfg.Blur))
	return b
}

// packFieldParams serializes the FieldParams array read by the
// simulate shader.
func packFieldParams(fields []Field) []byte {
	b := make([]byte, 32*len(fields))
	for i, f := range fields {
		off := i * 32
		cfg := f.Config
		binary.LittleEndian.PutUint32(b[off+0:], cfg.Resolution)
		binary.LittleEndian.PutUint32(b[off+4:], cfg.TotalCells())
		binary.LittleEndian.PutUint32(b[off+8:], math.Float32bits(cfg.Extent))
		binary.LittleEndian.PutUint32(b[off+12:], math.Float32bits(cfg.Decay))
		binary.LittleEndian.PutUint32(b[off+16:], math.Float32bits(cfg.Blur))
		var kind uint32
		if cfg.Kind == VectorField {
			kind = 1
		}
		binary.LittleEndian.PutUint32(b[off+20:], kind)
	}
	return b
}

// fieldBuffers are the GPU volumes of one field. volumeA is the
// canonical volume the simulate pass binds; volumeB is the blur
// scratch.
type fieldBuffers struct {
	cfg     FieldConfig
	deposit *wgpu.Buffer
	volumeA *wgpu.Buffer
	volumeB *wgpu.Buffer

	axisParams [3]*wgpu.Buffer

	mergeBG *wgpu.BindGroup
	// blurBG[axis][0] reads A writes B, [axis][1] reads B writes A.
	blurBG [3][2]*wgpu.BindGroup
}

// FieldEngine owns the decay/diffusion machinery for every registered
// field.
type FieldEngine struct {
	fields    []fieldBuffers
	paramsBuf *wgpu.Buffer

	mergePipeline *wgpu.ComputePipeline
	blurPipeline  *wgpu.ComputePipeline

	log Logger
}

// NewFieldEngine allocates volumes, deposit buffers and process
// pipelines for all fields in the registry.
func NewFieldEngine(device *wgpu.Device, registry *FieldRegistry, log Logger) (*FieldEngine, error) {
	if log == nil {
		log = NewNopLogger()
	}
	fe := &FieldEngine{log: log}

	mkPipeline := func(label, src string) (*wgpu.ComputePipeline, error) {
		module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          label,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src},
		})
		if err != nil {
			return nil, fmt.Errorf("field: %s shader: %w", label, err)
		}
		defer module.Release()
		p, err := device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label: label,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			return nil, fmt.Errorf("field: %s pipeline: %w", label, err)
		}
		return p, nil
	}

	var err error
	if fe.mergePipeline, err = mkPipeline("field merge decay", fieldMergeWGSL); err != nil {
		return nil, err
	}
	if fe.blurPipeline, err = mkPipeline("field blur", fieldBlurWGSL); err != nil {
		fe.Release()
		return nil, err
	}

	fe.paramsBuf, err = device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "field params",
		Contents: packFieldParams(registry.Fields()),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		fe.Release()
		return nil, fmt.Errorf("field: params buffer: %w", err)
	}

	mergeLayout := fe.mergePipeline.GetBindGroupLayout(0)
	defer mergeLayout.Release()
	blurLayout := fe.blurPipeline.GetBindGroupLayout(0)
	defer blurLayout.Release()

	for _, f := range registry.Fields() {
		fb := fieldBuffers{cfg: f.Config}
		byteSize := uint64(f.Config.Elements()) * 4

		mk := func(label string) (*wgpu.Buffer, error) {
			return device.CreateBuffer(&wgpu.BufferDescriptor{
				Label: fmt.Sprintf("field %s %s", f.Name, label),
				Size:  byteSize,
				Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
			})
		}
		if fb.deposit, err = mk("deposit"); err != nil {
			fe.Release()
			return nil, fmt.Errorf("field %s: deposit: %w", f.Name, err)
		}
		if fb.volumeA, err = mk("volume a"); err != nil {
			fe.Release()
			return nil, fmt.Errorf("field %s: volume a: %w", f.Name, err)
		}
		if fb.volumeB, err = mk("volume b"); err != nil {
			fe.Release()
			return nil, fmt.Errorf("field %s: volume b: %w", f.Name, err)
		}

		for axis := uint32(0); axis < 3; axis++ {
			fb.axisParams[axis], err = device.CreateBufferInit(&wgpu.BufferInitDescriptor{
				Label:    fmt.Sprintf("field %s axis %d params", f.Name, axis),
				Contents: packProcessParams(f.Config, axis),
				Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
			})
			if err != nil {
				fe.Release()
				return nil, fmt.Errorf("field %s: axis params: %w", f.Name, err)
			}
		}

		fb.mergeBG, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("field %s merge", f.Name),
			Layout: mergeLayout,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: fb.deposit, Size: wgpu.WholeSize},
				{Binding: 1, Buffer: fb.volumeA, Size: wgpu.WholeSize},
				{Binding: 2, Buffer: fb.axisParams[0], Size: wgpu.WholeSize},
			},
		})
		if err != nil {
			fe.Release()
			return nil, fmt.Errorf("field %s: merge bind group: %w", f.Name, err)
		}

		for axis := 0; axis < 3; axis++ {
			pair := [2][2]*wgpu.Buffer{
				{fb.volumeA, fb.volumeB},
				{fb.volumeB, fb.volumeA},
			}
			for dir := 0; dir < 2; dir++ {
				fb.blurBG[axis][dir], err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
					Label:  fmt.Sprintf("field %s blur axis %d dir %d", f.Name, axis, dir),
					Layout: blurLayout,
					Entries: []wgpu.BindGroupEntry{
						{Binding: 0, Buffer: pair[dir][0], Size: wgpu.WholeSize},
						{Binding: 1, Buffer: pair[dir][1], Size: wgpu.WholeSize},
						{Binding: 2, Buffer: fb.axisParams[axis], Size: wgpu.WholeSize},
					},
				})
				if err != nil {
					fe.Release()
					return nil, fmt.Errorf("field %s: blur bind group: %w", f.Name, err)
				}
			}
		}

		fe.fields = append(fe.fields, fb)
	}

	log.Debugf("field engine: %d fields", len(fe.fields))
	return fe, nil
}

// ParamsBuffer is the FieldParams array bound by the simulate pass.
func (fe *FieldEngine) ParamsBuffer() *wgpu.Buffer { return fe.paramsBuf }

// DepositBuffer returns field i's atomic deposit buffer.
func (fe *FieldEngine) DepositBuffer(i int) *wgpu.Buffer { return fe.fields[i].deposit }

// VolumeBuffer returns field i's canonical float volume.
func (fe *FieldEngine) VolumeBuffer(i int) *wgpu.Buffer { return fe.fields[i].volumeA }

// Encode appends the per-frame field processing: merge deposits with
// decay, then the separable blur. The blur bounces between the two
// volumes; when a chain ends in the scratch volume it is copied back
// so the canonical volume always holds the result.
func (fe *FieldEngine) Encode(encoder *wgpu.CommandEncoder) {
	for i := range fe.fields {
		fb := &fe.fields[i]
		groups := divCeil(fb.cfg.Elements(), 256)

		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(fe.mergePipeline)
		pass.SetBindGroup(0, fb.mergeBG, nil)
		pass.DispatchWorkgroups(groups, 1, 1)
		pass.End()
		pass.Release()

		if fb.cfg.Blur <= 0 {
			continue
		}
		dir := 0
		for iter := uint32(0); iter < fb.cfg.BlurIterations; iter++ {
			for axis := 0; axis < 3; axis++ {
				blur := encoder.BeginComputePass(nil)
				blur.SetPipeline(fe.blurPipeline)
				blur.SetBindGroup(0, fb.blurBG[axis][dir], nil)
				blur.DispatchWorkgroups(groups, 1, 1)
				blur.End()
				blur.Release()
				dir = 1 - dir
			}
		}
		if dir == 1 {
			// Odd pass count: result sits in the scratch volume.
			encoder.CopyBufferToBuffer(fb.volumeB, 0, fb.volumeA, 0, uint64(fb.cfg.Elements())*4)
		}
	}
}

// Release frees all GPU resources. Safe on a partially constructed
// engine.
func (fe *FieldEngine) Release() {
	for _, fb := range fe.fields {
		for _, b := range []*wgpu.Buffer{fb.deposit, fb.volumeA, fb.volumeB, fb.axisParams[0], fb.axisParams[1], fb.axisParams[2]} {
			if b != nil {
				b.Release()
			}
		}
	}
	if fe.paramsBuf != nil {
		fe.paramsBuf.Release()
	}
	if fe.mergePipeline != nil {
		fe.mergePipeline.Release()
	}
	if fe.blurPipeline != nil {
		fe.blurPipeline.Release()
	}
}
