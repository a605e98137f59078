package pulsar

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// SpatialConfig sizes the uniform grid used for neighbor queries.
// The grid spans [-bounds, bounds] per axis with Resolution cells per
// dimension, so it covers Resolution*CellSize world units.
type SpatialConfig struct {
	// CellSize is the edge length of one cell in world units. It must
	// cover the largest neighbor query radius so the 27-cell stencil
	// sees every candidate.
	CellSize float32
	// Resolution is the cell count per dimension.
	Resolution uint32
	// MaxNeighbors caps neighbors processed per particle; 0 means
	// unlimited.
	MaxNeighbors uint32
}

// DefaultSpatialConfig covers bounds of 1.0 at radius 0.1.
func DefaultSpatialConfig() SpatialConfig {
	return SpatialConfig{CellSize: 0.1, Resolution: 32}
}

// AutoSpatialConfig derives a grid from the world bounds and the
// largest query radius: cells exactly the query radius, resolution
// rounded up to cover the bounds.
func AutoSpatialConfig(bounds, maxRadius float32) SpatialConfig {
	h := maxRadius
	if h <= 0 {
		h = 0.1
	}
	res := uint32(1)
	for float32(res)*h < 2*bounds {
		res *= 2
	}
	return SpatialConfig{CellSize: h, Resolution: res}
}

// TotalCells is Resolution cubed.
func (c SpatialConfig) TotalCells() uint32 {
	return c.Resolution * c.Resolution * c.Resolution
}

// Validate checks the grid against the world bounds and the largest
// neighbor query radius of the active rules.
func (c SpatialConfig) Validate(bounds, maxRadius float32) error {
	if c.CellSize <= 0 {
		return fmt.Errorf("spatial: cell size must be positive, got %v", c.CellSize)
	}
	if c.Resolution == 0 || c.Resolution > 1024 {
		return fmt.Errorf("spatial: resolution must be in 1..1024, got %d", c.Resolution)
	}
	if maxRadius > c.CellSize {
		return fmt.Errorf("spatial: cell size %v is smaller than the largest query radius %v", c.CellSize, maxRadius)
	}
	if 2*bounds > float32(c.Resolution)*c.CellSize {
		return fmt.Errorf("spatial: grid covers %v world units but bounds need %v",
			float32(c.Resolution)*c.CellSize, 2*bounds)
	}
	return nil
}

// gridWGSL is the cell addressing helper library shared by the count,
// scatter and simulate shaders. Cells are addressed linearly as
// x + y*R + z*R*R.
const gridWGSL = `
// Convert world position to cell coordinates, clamping outside
// positions into the boundary cell.
fn pos_to_cell(pos: vec3<f32>, cell_size: f32, grid_res: u32) -> vec3<u32> {
    let half_grid = f32(grid_res) * cell_size * 0.5;
    let normalized = (pos + vec3<f32>(half_grid)) / cell_size;
    let clamped = clamp(normalized, vec3<f32>(0.0), vec3<f32>(f32(grid_res - 1u)));
    return vec3<u32>(clamped);
}

fn cell_index(cell: vec3<u32>, grid_res: u32) -> u32 {
    return cell.x + cell.y * grid_res + cell.z * grid_res * grid_res;
}

// Offsets for the 27-cell neighborhood stencil (including self)
const NEIGHBOR_OFFSETS: array<vec3<i32>, 27> = array<vec3<i32>, 27>(
    vec3<i32>(-1, -1, -1), vec3<i32>(0, -1, -1), vec3<i32>(1, -1, -1),
    vec3<i32>(-1,  0, -1), vec3<i32>(0,  0, -1), vec3<i32>(1,  0, -1),
    vec3<i32>(-1,  1, -1), vec3<i32>(0,  1, -1), vec3<i32>(1,  1, -1),
    vec3<i32>(-1, -1,  0), vec3<i32>(0, -1,  0), vec3<i32>(1, -1,  0),
    vec3<i32>(-1,  0,  0), vec3<i32>(0,  0,  0), vec3<i32>(1,  0,  0),
    vec3<i32>(-1,  1,  0), vec3<i32>(0,  1,  0), vec3<i32>(1,  1,  0),
    vec3<i32>(-1, -1,  1), vec3<i32>(0, -1,  1), vec3<i32>(1, -1,  1),
    vec3<i32>(-1,  0,  1), vec3<i32>(0,  0,  1), vec3<i32>(1,  0,  1),
    vec3<i32>(-1,  1,  1), vec3<i32>(0,  1,  1), vec3<i32>(1,  1,  1),
);

// Linear index of a neighboring cell, or 0xFFFFFFFF when the offset
// leaves the grid.
fn neighbor_cell_index(cell: vec3<u32>, offset_idx: u32, grid_res: u32) -> u32 {
    let offset = NEIGHBOR_OFFSETS[offset_idx];
    let neighbor = vec3<i32>(cell) + offset;

    if neighbor.x < 0 || neighbor.y < 0 || neighbor.z < 0 ||
       neighbor.x >= i32(grid_res) || neighbor.y >= i32(grid_res) || neighbor.z >= i32(grid_res) {
        return 0xFFFFFFFFu;
    }

    return cell_index(vec3<u32>(neighbor), grid_res);
}
`

// cellIndexCPU mirrors pos_to_cell + cell_index for host-side checks.
func cellIndexCPU(pos mgl32.Vec3, cfg SpatialConfig) uint32 {
	halfGrid := float32(cfg.Resolution) * cfg.CellSize * 0.5
	cell := [3]uint32{}
	for i := 0; i < 3; i++ {
		n := (pos[i] + halfGrid) / cfg.CellSize
		if n < 0 {
			n = 0
		}
		max := float32(cfg.Resolution - 1)
		if n > max {
			n = max
		}
		cell[i] = uint32(n)
	}
	return cell[0] + cell[1]*cfg.Resolution + cell[2]*cfg.Resolution*cfg.Resolution
}

// exclusiveScan is the host reference for the GPU prefix sum.
func exclusiveScan(counts []uint32) []uint32 {
	out := make([]uint32, len(counts))
	var sum uint32
	for i, c := range counts {
		out[i] = sum
		sum += c
	}
	return out
}
