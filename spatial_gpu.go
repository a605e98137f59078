package pulsar

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
)

const gridWorkgroupSize = 256

// gridClearWGSL zeroes a u32 buffer.
const gridClearWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if idx < arrayLength(&data) {
        data[idx] = 0u;
    }
}
`

// gridScanWGSL is one level of the blocked exclusive scan: each
// 256-wide workgroup scans its block and writes the block total for
// the next level.
const gridScanWGSL = `
@group(0) @binding(0) var<storage, read> input: array<u32>;
@group(0) @binding(1) var<storage, read_write> output: array<u32>;
@group(0) @binding(2) var<storage, read_write> block_sums: array<u32>;

var<workgroup> temp: array<u32, 256>;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>,
        @builtin(local_invocation_id) local_id: vec3<u32>,
        @builtin(workgroup_id) group_id: vec3<u32>) {
    let n = arrayLength(&input);
    let tid = local_id.x;

    var v = 0u;
    if global_id.x < n {
        v = input[global_id.x];
    }
    temp[tid] = v;
    workgroupBarrier();

    for (var stride = 1u; stride < 256u; stride *= 2u) {
        var add = 0u;
        if tid >= stride {
            add = temp[tid - stride];
        }
        workgroupBarrier();
        temp[tid] += add;
        workgroupBarrier();
    }

    if global_id.x < n {
        if tid == 0u {
            output[global_id.x] = 0u;
        } else {
            output[global_id.x] = temp[tid - 1u];
        }
    }
    if tid == 255u {
        block_sums[group_id.x] = temp[255u];
    }
}
`

// gridAddWGSL adds the scanned block totals back onto each block.
const gridAddWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;
@group(0) @binding(1) var<storage, read> block_offsets: array<u32>;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>,
        @builtin(workgroup_id) group_id: vec3<u32>) {
    if global_id.x < arrayLength(&data) {
        data[global_id.x] += block_offsets[group_id.x];
    }
}
`

const gridParamsWGSL = `
struct GridParams {
    cell_size: f32,
    grid_resolution: u32,
    num_particles: u32,
    max_neighbors: u32,
};
`

func gridCountWGSL(particleStruct string) string {
	return fmt.Sprintf(`%s
%s
%s
@group(0) @binding(0) var<storage, read> particles: array<Particle>;
@group(0) @binding(1) var<storage, read_write> cell_counts: array<atomic<u32>>;
@group(0) @binding(2) var<uniform> params: GridParams;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if idx >= params.num_particles {
        return;
    }

    let cell = pos_to_cell(particles[idx].position, params.cell_size, params.grid_resolution);
    atomicAdd(&cell_counts[cell_index(cell, params.grid_resolution)], 1u);
}
`, particleStruct, gridWGSL, gridParamsWGSL)
}

func gridScatterWGSL(particleStruct string) string {
	return fmt.Sprintf(`%s
%s
%s
@group(0) @binding(0) var<storage, read> particles: array<Particle>;
@group(0) @binding(1) var<storage, read> cell_offsets: array<u32>;
@group(0) @binding(2) var<storage, read_write> cell_cursor: array<atomic<u32>>;
@group(0) @binding(3) var<storage, read_write> sorted_indices: array<u32>;
@group(0) @binding(4) var<uniform> params: GridParams;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if idx >= params.num_particles {
        return;
    }

    let cell = pos_to_cell(particles[idx].position, params.cell_size, params.grid_resolution);
    let c = cell_index(cell, params.grid_resolution);
    let slot = cell_offsets[c] + atomicAdd(&cell_cursor[c], 1u);
    sorted_indices[slot] = idx;
}
`, particleStruct, gridWGSL, gridParamsWGSL)
}

// scanLevel is one tier of the hierarchical prefix sum. raw holds the
// unscanned values, scanned the exclusive scan, sums the per-block
// totals feeding the next level.
type scanLevel struct {
	n       uint32
	blocks  uint32
	raw     *wgpu.Buffer
	scanned *wgpu.Buffer
	sums    *wgpu.Buffer
	scanBG  *wgpu.BindGroup
	addBG   *wgpu.BindGroup // adds next level's scanned sums; nil on the last level
}

// SpatialGrid owns the GPU resources for the uniform neighbor grid:
// per-cell counts, exclusive offsets, a scatter cursor and the sorted
// particle index list.
type SpatialGrid struct {
	cfg          SpatialConfig
	numParticles uint32

	cellCounts    *wgpu.Buffer
	cellOffsets   *wgpu.Buffer
	cellCursor    *wgpu.Buffer
	sortedIndices *wgpu.Buffer
	paramsBuf     *wgpu.Buffer

	clearPipeline   *wgpu.ComputePipeline
	countPipeline   *wgpu.ComputePipeline
	scanPipeline    *wgpu.ComputePipeline
	addPipeline     *wgpu.ComputePipeline
	scatterPipeline *wgpu.ComputePipeline

	clearCountsBG *wgpu.BindGroup
	clearCursorBG *wgpu.BindGroup
	// One count and scatter bind group per half of the particle
	// ping-pong; the grid reads the same snapshot simulate reads.
	countBG   [2]*wgpu.BindGroup
	scatterBG [2]*wgpu.BindGroup
	levels    []scanLevel

	log Logger
}

// NewSpatialGrid builds the grid pipelines against both halves of the
// particle ping-pong. particleStruct is the WGSL Particle declaration
// so the count and scatter shaders agree on the stride.
func NewSpatialGrid(device *wgpu.Device, particleBuffers [2]*wgpu.Buffer, numParticles uint32, cfg SpatialConfig, particleStruct string, log Logger) (*SpatialGrid, error) {
	if log == nil {
		log = NewNopLogger()
	}
	g := &SpatialGrid{cfg: cfg, numParticles: numParticles, log: log}

	totalCells := cfg.TotalCells()
	cellBytes := uint64(totalCells) * 4

	var err error
	mk := func(label string, size uint64) *wgpu.Buffer {
		if err != nil {
			return nil
		}
		var b *wgpu.Buffer
		b, err = device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label,
			Size:  size,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
		return b
	}

	g.cellCounts = mk("grid cell counts", cellBytes)
	g.cellOffsets = mk("grid cell offsets", cellBytes)
	g.cellCursor = mk("grid cell cursor", cellBytes)
	g.sortedIndices = mk("grid sorted indices", uint64(numParticles)*4)
	if err != nil {
		g.Release()
		return nil, fmt.Errorf("spatial: create buffers: %w", err)
	}

	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:], math.Float32bits(cfg.CellSize))
	binary.LittleEndian.PutUint32(params[4:], cfg.Resolution)
	binary.LittleEndian.PutUint32(params[8:], numParticles)
	binary.LittleEndian.PutUint32(params[12:], cfg.MaxNeighbors)
	g.paramsBuf, err = device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "grid params",
		Contents: params,
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		g.Release()
		return nil, fmt.Errorf("spatial: create params: %w", err)
	}

	if err := g.createPipelines(device, particleStruct); err != nil {
		g.Release()
		return nil, err
	}
	if err := g.createScanLevels(device, totalCells); err != nil {
		g.Release()
		return nil, err
	}
	if err := g.createBindGroups(device, particleBuffers); err != nil {
		g.Release()
		return nil, err
	}

	log.Debugf("spatial grid: %d^3 cells, cell size %v, %d scan levels",
		cfg.Resolution, cfg.CellSize, len(g.levels))
	return g, nil
}

func (g *SpatialGrid) createPipelines(device *wgpu.Device, particleStruct string) error {
	mkPipeline := func(label, src string) (*wgpu.ComputePipeline, error) {
		module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          label,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src},
		})
		if err != nil {
			return nil, fmt.Errorf("spatial: %s shader: %w", label, err)
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
			return nil, fmt.Errorf("spatial: %s pipeline: %w", label, err)
		}
		return p, nil
	}

	var err error
	if g.clearPipeline, err = mkPipeline("grid clear", gridClearWGSL); err != nil {
		return err
	}
	if g.countPipeline, err = mkPipeline("grid count", gridCountWGSL(particleStruct)); err != nil {
		return err
	}
	if g.scanPipeline, err = mkPipeline("grid scan", gridScanWGSL); err != nil {
		return err
	}
	if g.addPipeline, err = mkPipeline("grid scan add", gridAddWGSL); err != nil {
		return err
	}
	if g.scatterPipeline, err = mkPipeline("grid scatter", gridScatterWGSL(particleStruct)); err != nil {
		return err
	}
	return nil
}

func divCeil(a, b uint32) uint32 { return (a + b - 1) / b }

func (g *SpatialGrid) createScanLevels(device *wgpu.Device, totalCells uint32) error {
	n := totalCells
	raw := g.cellCounts
	scanned := g.cellOffsets
	for {
		blocks := divCeil(n, gridWorkgroupSize)
		sums, err := device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: fmt.Sprintf("grid scan sums L%d", len(g.levels)),
			Size:  uint64(blocks) * 4,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("spatial: scan level %d sums: %w", len(g.levels), err)
		}
		g.levels = append(g.levels, scanLevel{n: n, blocks: blocks, raw: raw, scanned: scanned, sums: sums})
		if blocks == 1 {
			break
		}

		// Next level scans this level's block sums in place: the raw
		// values live in sums, the scan overwrites them.
		scannedSums, err := device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: fmt.Sprintf("grid scan scanned L%d", len(g.levels)),
			Size:  uint64(blocks) * 4,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("spatial: scan level %d scanned: %w", len(g.levels), err)
		}
		n = blocks
		raw = sums
		scanned = scannedSums
	}
	return nil
}

func (g *SpatialGrid) createBindGroups(device *wgpu.Device, particleBuffers [2]*wgpu.Buffer) error {
	clearLayout := g.clearPipeline.GetBindGroupLayout(0)
	defer clearLayout.Release()
	var err error
	g.clearCountsBG, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "grid clear counts",
		Layout: clearLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: g.cellCounts, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("spatial: clear counts bind group: %w", err)
	}
	g.clearCursorBG, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "grid clear cursor",
		Layout: clearLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: g.cellCursor, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("spatial: clear cursor bind group: %w", err)
	}

	countLayout := g.countPipeline.GetBindGroupLayout(0)
	defer countLayout.Release()
	for i, pb := range particleBuffers {
		g.countBG[i], err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("grid count %d", i),
			Layout: countLayout,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: pb, Size: wgpu.WholeSize},
				{Binding: 1, Buffer: g.cellCounts, Size: wgpu.WholeSize},
				{Binding: 2, Buffer: g.paramsBuf, Size: wgpu.WholeSize},
			},
		})
		if err != nil {
			return fmt.Errorf("spatial: count bind group %d: %w", i, err)
		}
	}

	scanLayout := g.scanPipeline.GetBindGroupLayout(0)
	defer scanLayout.Release()
	addLayout := g.addPipeline.GetBindGroupLayout(0)
	defer addLayout.Release()
	for i := range g.levels {
		lvl := &g.levels[i]
		lvl.scanBG, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("grid scan L%d", i),
			Layout: scanLayout,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: lvl.raw, Size: wgpu.WholeSize},
				{Binding: 1, Buffer: lvl.scanned, Size: wgpu.WholeSize},
				{Binding: 2, Buffer: lvl.sums, Size: wgpu.WholeSize},
			},
		})
		if err != nil {
			return fmt.Errorf("spatial: scan bind group L%d: %w", i, err)
		}
		if i+1 < len(g.levels) {
			lvl.addBG, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
				Label:  fmt.Sprintf("grid scan add L%d", i),
				Layout: addLayout,
				Entries: []wgpu.BindGroupEntry{
					{Binding: 0, Buffer: lvl.scanned, Size: wgpu.WholeSize},
					{Binding: 1, Buffer: g.levels[i+1].scanned, Size: wgpu.WholeSize},
				},
			})
			if err != nil {
				return fmt.Errorf("spatial: add bind group L%d: %w", i, err)
			}
		}
	}

	scatterLayout := g.scatterPipeline.GetBindGroupLayout(0)
	defer scatterLayout.Release()
	for i, pb := range particleBuffers {
		g.scatterBG[i], err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("grid scatter %d", i),
			Layout: scatterLayout,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: pb, Size: wgpu.WholeSize},
				{Binding: 1, Buffer: g.cellOffsets, Size: wgpu.WholeSize},
				{Binding: 2, Buffer: g.cellCursor, Size: wgpu.WholeSize},
				{Binding: 3, Buffer: g.sortedIndices, Size: wgpu.WholeSize},
				{Binding: 4, Buffer: g.paramsBuf, Size: wgpu.WholeSize},
			},
		})
		if err != nil {
			return fmt.Errorf("spatial: scatter bind group %d: %w", i, err)
		}
	}
	return nil
}

// Encode appends the per-frame grid build: clear, count, hierarchical
// exclusive scan, scatter. read selects which half of the particle
// ping-pong to hash, matching the simulate pass's read buffer.
func (g *SpatialGrid) Encode(encoder *wgpu.CommandEncoder, read int) {
	cellGroups := divCeil(g.cfg.TotalCells(), gridWorkgroupSize)
	particleGroups := divCeil(g.numParticles, gridWorkgroupSize)

	dispatch := func(pipeline *wgpu.ComputePipeline, bg *wgpu.BindGroup, groups uint32) {
		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.DispatchWorkgroups(groups, 1, 1)
		pass.End()
		pass.Release()
	}

	dispatch(g.clearPipeline, g.clearCountsBG, cellGroups)
	dispatch(g.clearPipeline, g.clearCursorBG, cellGroups)
	dispatch(g.countPipeline, g.countBG[read], particleGroups)

	for i := range g.levels {
		dispatch(g.scanPipeline, g.levels[i].scanBG, g.levels[i].blocks)
	}
	for i := len(g.levels) - 2; i >= 0; i-- {
		dispatch(g.addPipeline, g.levels[i].addBG, g.levels[i].blocks)
	}

	dispatch(g.scatterPipeline, g.scatterBG[read], particleGroups)
}

// Buffers consumed by the simulate pass.
func (g *SpatialGrid) SortedIndices() *wgpu.Buffer { return g.sortedIndices }
func (g *SpatialGrid) CellOffsets() *wgpu.Buffer   { return g.cellOffsets }
func (g *SpatialGrid) CellCounts() *wgpu.Buffer    { return g.cellCounts }
func (g *SpatialGrid) ParamsBuffer() *wgpu.Buffer  { return g.paramsBuf }

func (g *SpatialGrid) Config() SpatialConfig { return g.cfg }

// Release frees all GPU resources. Safe to call on a partially
// constructed grid.
func (g *SpatialGrid) Release() {
	buffers := []*wgpu.Buffer{g.cellCounts, g.cellOffsets, g.cellCursor, g.sortedIndices, g.paramsBuf}
	for _, lvl := range g.levels {
		// raw beyond level 0 aliases the previous level's sums
		buffers = append(buffers, lvl.sums)
		if lvl.scanned != g.cellOffsets {
			buffers = append(buffers, lvl.scanned)
		}
	}
	seen := map[*wgpu.Buffer]bool{}
	for _, b := range buffers {
		if b != nil && !seen[b] {
			seen[b] = true
			b.Release()
		}
	}
	for _, p := range []*wgpu.ComputePipeline{g.clearPipeline, g.countPipeline, g.scanPipeline, g.addPipeline, g.scatterPipeline} {
		if p != nil {
			p.Release()
		}
	}
}
