package pulsar

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// The grid hashes whichever half of the particle ping-pong simulate
// reads, so construction and bind-group setup take both buffers.
var (
	_ func(*wgpu.Device, [2]*wgpu.Buffer, uint32, SpatialConfig, string, Logger) (*SpatialGrid, error) = NewSpatialGrid
	_ func(*wgpu.Device, [2]*wgpu.Buffer) error                                                        = (*SpatialGrid)(nil).createBindGroups
)

func TestAutoSpatialConfig(t *testing.T) {
	cfg := AutoSpatialConfig(1.0, 0.1)
	if cfg.CellSize != 0.1 {
		t.Errorf("CellSize = %v, want the query radius 0.1", cfg.CellSize)
	}
	if cfg.Resolution != 32 {
		t.Errorf("Resolution = %d, want 32", cfg.Resolution)
	}
	if err := cfg.Validate(1.0, 0.1); err != nil {
		t.Errorf("auto config must validate against its own inputs: %v", err)
	}

	coarse := AutoSpatialConfig(1.0, 0.25)
	if coarse.Resolution != 8 {
		t.Errorf("Resolution = %d, want 8", coarse.Resolution)
	}

	// Zero radius falls back to a sane cell size.
	fallback := AutoSpatialConfig(1.0, 0)
	if fallback.CellSize != 0.1 {
		t.Errorf("fallback CellSize = %v, want 0.1", fallback.CellSize)
	}
}

func TestSpatialConfig_Validate(t *testing.T) {
	ok := DefaultSpatialConfig()
	if err := ok.Validate(1.0, 0.1); err != nil {
		t.Errorf("default config should cover bounds 1.0: %v", err)
	}

	cases := []struct {
		name      string
		cfg       SpatialConfig
		bounds    float32
		maxRadius float32
	}{
		{"zero cell size", SpatialConfig{CellSize: 0, Resolution: 32}, 1, 0.1},
		{"zero resolution", SpatialConfig{CellSize: 0.1, Resolution: 0}, 1, 0.1},
		{"huge resolution", SpatialConfig{CellSize: 0.1, Resolution: 2048}, 1, 0.1},
		{"radius exceeds cell", SpatialConfig{CellSize: 0.05, Resolution: 64}, 1, 0.1},
		{"grid too small", SpatialConfig{CellSize: 0.1, Resolution: 8}, 1, 0.1},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(tc.bounds, tc.maxRadius); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestSpatialConfig_TotalCells(t *testing.T) {
	cfg := SpatialConfig{CellSize: 0.1, Resolution: 16}
	if cfg.TotalCells() != 4096 {
		t.Errorf("TotalCells = %d, want 4096", cfg.TotalCells())
	}
}

func TestCellIndexCPU(t *testing.T) {
	cfg := SpatialConfig{CellSize: 1, Resolution: 4}

	// Grid spans [-2, 2]; the minimum corner maps to cell 0.
	if idx := cellIndexCPU(mgl32.Vec3{-2, -2, -2}, cfg); idx != 0 {
		t.Errorf("min corner index = %d, want 0", idx)
	}
	// Origin lands in cell (2,2,2) = 2 + 2*4 + 2*16.
	if idx := cellIndexCPU(mgl32.Vec3{0, 0, 0}, cfg); idx != 42 {
		t.Errorf("origin index = %d, want 42", idx)
	}
	// Out-of-bounds positions clamp into the boundary cell.
	if idx := cellIndexCPU(mgl32.Vec3{10, 10, 10}, cfg); idx != 63 {
		t.Errorf("clamped index = %d, want 63", idx)
	}
	if idx := cellIndexCPU(mgl32.Vec3{-10, -10, -10}, cfg); idx != 0 {
		t.Errorf("clamped index = %d, want 0", idx)
	}
}

func TestCellIndexCPU_LinearOrder(t *testing.T) {
	cfg := SpatialConfig{CellSize: 1, Resolution: 4}
	base := cellIndexCPU(mgl32.Vec3{-1.5, -1.5, -1.5}, cfg)

	if got := cellIndexCPU(mgl32.Vec3{-0.5, -1.5, -1.5}, cfg); got != base+1 {
		t.Errorf("+x neighbor = %d, want %d", got, base+1)
	}
	if got := cellIndexCPU(mgl32.Vec3{-1.5, -0.5, -1.5}, cfg); got != base+4 {
		t.Errorf("+y neighbor = %d, want %d", got, base+4)
	}
	if got := cellIndexCPU(mgl32.Vec3{-1.5, -1.5, -0.5}, cfg); got != base+16 {
		t.Errorf("+z neighbor = %d, want %d", got, base+16)
	}
}

func TestExclusiveScan(t *testing.T) {
	got := exclusiveScan([]uint32{3, 1, 0, 2})
	want := []uint32{0, 3, 4, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("scan[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if out := exclusiveScan(nil); len(out) != 0 {
		t.Errorf("scan of empty input has length %d", len(out))
	}
}
