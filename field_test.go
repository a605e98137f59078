package pulsar

import (
	"strings"
	"testing"
)

func TestFieldRegistry_Add(t *testing.T) {
	r := NewFieldRegistry()
	if err := r.Add("pheromone", NewFieldConfig(32)); err != nil {
		t.Fatalf("valid field rejected: %v", err)
	}

	cases := []struct {
		name string
		id   string
		cfg  FieldConfig
	}{
		{"uppercase name", "Pheromone", NewFieldConfig(32)},
		{"leading digit", "2trails", NewFieldConfig(32)},
		{"duplicate", "pheromone", NewFieldConfig(32)},
		{"resolution too low", "tiny", NewFieldConfig(4)},
		{"resolution too high", "huge", NewFieldConfig(512)},
		{"zero extent", "flat", NewFieldConfig(32).WithExtent(0)},
	}
	for _, tc := range cases {
		if err := r.Add(tc.id, tc.cfg); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}

	if r.Len() != 1 {
		t.Errorf("registry length %d after rejected adds, want 1", r.Len())
	}
}

func TestFieldConfig_Clamps(t *testing.T) {
	c := NewFieldConfig(32)
	if got := c.WithDecay(2).Decay; got != 1 {
		t.Errorf("WithDecay(2) = %v, want 1", got)
	}
	if got := c.WithDecay(-1).Decay; got != 0 {
		t.Errorf("WithDecay(-1) = %v, want 0", got)
	}
	if got := c.WithBlur(1.5).Blur; got != 1 {
		t.Errorf("WithBlur(1.5) = %v, want 1", got)
	}
	if got := c.WithBlurIterations(0).BlurIterations; got != 1 {
		t.Errorf("WithBlurIterations(0) = %v, want 1", got)
	}
}

func TestFieldConfig_Sizes(t *testing.T) {
	scalar := NewFieldConfig(32)
	if scalar.TotalCells() != 32768 {
		t.Errorf("TotalCells = %d, want 32768", scalar.TotalCells())
	}
	if scalar.Elements() != scalar.TotalCells() {
		t.Errorf("scalar Elements = %d, want one per cell", scalar.Elements())
	}

	vector := NewVectorFieldConfig(16)
	if vector.Elements() != vector.TotalCells()*4 {
		t.Errorf("vector Elements = %d, want 4 per cell", vector.Elements())
	}
}

func TestFieldRegistry_Lookup(t *testing.T) {
	r := NewFieldRegistry()
	r.Add("density", NewFieldConfig(32))
	r.Add("flow", NewVectorFieldConfig(16))

	f, ok := r.Lookup("flow")
	if !ok || f.Kind() != VectorField {
		t.Errorf("Lookup(flow) = %+v, %v", f, ok)
	}
	if _, ok := r.Lookup("nope"); ok {
		t.Error("Lookup of unknown field must fail")
	}

	if i, ok := r.IndexOf("density"); !ok || i != 0 {
		t.Errorf("IndexOf(density) = %d, %v", i, ok)
	}
	if i, ok := r.IndexOf("flow"); !ok || i != 1 {
		t.Errorf("IndexOf(flow) = %d, %v", i, ok)
	}

	var nilReg *FieldRegistry
	if !nilReg.Empty() {
		t.Error("nil registry must report empty")
	}
}

func TestFieldRegistry_WGSLDeclarations(t *testing.T) {
	r := NewFieldRegistry()
	r.Add("pheromone", NewFieldConfig(32))
	r.Add("flow", NewVectorFieldConfig(16))

	src := r.WGSLDeclarations()
	for _, want := range []string{
		"@group(2) @binding(0)",
		"field_0_write: array<atomic<i32>>",
		"field_0_read: array<f32>",
		// Two buffers per field, params last.
		"@group(2) @binding(4)\nvar<storage, read> field_params",
		"fn field_read_pheromone(pos: vec3<f32>) -> f32",
		"fn field_deposit_pheromone(pos: vec3<f32>, value: f32)",
		"fn field_read_flow(pos: vec3<f32>) -> vec4<f32>",
		"fn field_gradient(",
		"fn field_write_vec(",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("declarations missing %q", want)
		}
	}

	if NewFieldRegistry().WGSLDeclarations() != "" {
		t.Error("empty registry must emit no declarations")
	}
}
