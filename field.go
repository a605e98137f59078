package pulsar

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldKind selects the per-cell storage of a spatial field.
type FieldKind int

const (
	// ScalarField stores one f32 per cell: density, pheromone, heat.
	ScalarField FieldKind = iota
	// VectorField stores a vec4<f32> per cell (xyz plus a free
	// component): velocity, force, flow.
	VectorField
)

// Components is the number of f32 elements per cell.
func (k FieldKind) Components() uint32 {
	if k == VectorField {
		return 4
	}
	return 1
}

func (k FieldKind) String() string {
	if k == VectorField {
		return "vector"
	}
	return "scalar"
}

// FieldConfig describes one 3D spatial field. Fields persist between
// frames: particles deposit into them atomically, and each frame the
// volume decays and diffuses.
type FieldConfig struct {
	// Resolution is cells per axis; the field is Resolution cubed.
	Resolution uint32
	// Extent is the half-size of the covered cube in world units.
	Extent float32
	// Decay multiplies the volume each frame; 1 keeps it forever.
	Decay float32
	// Blur is the diffusion strength per iteration in [0, 1].
	Blur float32
	// BlurIterations is how many separable blur rounds run per frame.
	BlurIterations uint32
	// Kind selects scalar or vector cells.
	Kind FieldKind
}

// NewFieldConfig returns a scalar field with light decay and blur.
func NewFieldConfig(resolution uint32) FieldConfig {
	return FieldConfig{
		Resolution:     resolution,
		Extent:         1.0,
		Decay:          0.99,
		Blur:           0.1,
		BlurIterations: 1,
		Kind:           ScalarField,
	}
}

// NewVectorFieldConfig returns a vector field.
func NewVectorFieldConfig(resolution uint32) FieldConfig {
	c := NewFieldConfig(resolution)
	c.Kind = VectorField
	return c
}

func (c FieldConfig) WithExtent(extent float32) FieldConfig {
	c.Extent = extent
	return c
}

func (c FieldConfig) WithDecay(decay float32) FieldConfig {
	if decay < 0 {
		decay = 0
	}
	if decay > 1 {
		decay = 1
	}
	c.Decay = decay
	return c
}

func (c FieldConfig) WithBlur(blur float32) FieldConfig {
	if blur < 0 {
		blur = 0
	}
	if blur > 1 {
		blur = 1
	}
	c.Blur = blur
	return c
}

func (c FieldConfig) WithBlurIterations(n uint32) FieldConfig {
	if n < 1 {
		n = 1
	}
	c.BlurIterations = n
	return c
}

// TotalCells is Resolution cubed.
func (c FieldConfig) TotalCells() uint32 {
	return c.Resolution * c.Resolution * c.Resolution
}

// Elements is cells times components, the length of the flat buffer.
func (c FieldConfig) Elements() uint32 {
	return c.TotalCells() * c.Kind.Components()
}

func (c FieldConfig) validate(name string) error {
	if c.Resolution < 8 || c.Resolution > 256 {
		return fmt.Errorf("field %q: resolution must be in 8..256, got %d", name, c.Resolution)
	}
	if c.Extent <= 0 {
		return fmt.Errorf("field %q: extent must be positive, got %v", name, c.Extent)
	}
	return nil
}

// Field is a named entry in the registry.
type Field struct {
	Name   string
	Config FieldConfig
}

// Kind of the field; convenience for rule validation.
func (f Field) Kind() FieldKind { return f.Config.Kind }

var fieldNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// FieldRegistry holds all spatial fields of a simulation in
// registration order. Order determines the field index used in WGSL.
type FieldRegistry struct {
	fields []Field
}

func NewFieldRegistry() *FieldRegistry { return &FieldRegistry{} }

// Add registers a field. Names must be lower_snake identifiers since
// they become WGSL function suffixes.
func (r *FieldRegistry) Add(name string, cfg FieldConfig) error {
	if !fieldNameRe.MatchString(name) {
		return fmt.Errorf("field name %q is not a lower_snake identifier", name)
	}
	if _, ok := r.Lookup(name); ok {
		return fmt.Errorf("field %q already registered", name)
	}
	if err := cfg.validate(name); err != nil {
		return err
	}
	r.fields = append(r.fields, Field{Name: name, Config: cfg})
	return nil
}

func (r *FieldRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

func (r *FieldRegistry) Empty() bool { return r.Len() == 0 }

// Fields returns the registration-ordered slice.
func (r *FieldRegistry) Fields() []Field {
	if r == nil {
		return nil
	}
	return r.fields
}

// Lookup finds a field and reports whether it exists.
func (r *FieldRegistry) Lookup(name string) (Field, bool) {
	if r == nil {
		return Field{}, false
	}
	for _, f := range r.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// IndexOf returns the field index used in shader code.
func (r *FieldRegistry) IndexOf(name string) (int, bool) {
	if r == nil {
		return 0, false
	}
	for i, f := range r.fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

// fieldParamsWGSL must match the host-side packing in field_gpu.go.
const fieldParamsWGSL = `struct FieldParams {
    resolution: u32,
    total_cells: u32,
    extent: f32,
    decay: f32,
    blur: f32,
    field_type: u32,
    _pad1: f32,
    _pad2: f32,
};
`

// fieldCommonWGSL holds the shared sampling machinery: the 16.16
// fixed-point scale for atomic deposits and the 8-corner trilinear
// coordinate helper used by both reads and writes.
const fieldCommonWGSL = `
// Fixed-point scale for field deposits (16.16 format)
const FIELD_SCALE: f32 = 65536.0;

const FIELD_TYPE_SCALAR: u32 = 0u;
const FIELD_TYPE_VECTOR: u32 = 1u;

struct FieldCorners {
    c: array<u32, 8>,
    w: array<f32, 8>,
};

// The 8 enclosing voxels of a world position with their trilinear
// weights. Out-of-extent positions clamp to the boundary voxel.
fn field_corners(resolution: u32, extent: f32, pos: vec3<f32>) -> FieldCorners {
    let normalized = (pos + vec3<f32>(extent)) / (2.0 * extent);
    let float_cell = clamp(normalized, vec3<f32>(0.0), vec3<f32>(0.999)) * f32(resolution);

    let cell = vec3<u32>(floor(float_cell));
    let frac = fract(float_cell);

    let res = resolution;
    let x0 = cell.x;
    let x1 = min(cell.x + 1u, res - 1u);
    let y0 = cell.y;
    let y1 = min(cell.y + 1u, res - 1u);
    let z0 = cell.z;
    let z1 = min(cell.z + 1u, res - 1u);

    var out: FieldCorners;
    out.c[0] = x0 + y0 * res + z0 * res * res;
    out.c[1] = x1 + y0 * res + z0 * res * res;
    out.c[2] = x0 + y1 * res + z0 * res * res;
    out.c[3] = x1 + y1 * res + z0 * res * res;
    out.c[4] = x0 + y0 * res + z1 * res * res;
    out.c[5] = x1 + y0 * res + z1 * res * res;
    out.c[6] = x0 + y1 * res + z1 * res * res;
    out.c[7] = x1 + y1 * res + z1 * res * res;

    let fx0 = 1.0 - frac.x;
    let fy0 = 1.0 - frac.y;
    let fz0 = 1.0 - frac.z;
    out.w[0] = fx0 * fy0 * fz0;
    out.w[1] = frac.x * fy0 * fz0;
    out.w[2] = fx0 * frac.y * fz0;
    out.w[3] = frac.x * frac.y * fz0;
    out.w[4] = fx0 * fy0 * frac.z;
    out.w[5] = frac.x * fy0 * frac.z;
    out.w[6] = fx0 * frac.y * frac.z;
    out.w[7] = frac.x * frac.y * frac.z;
    return out;
}
`

// WGSLDeclarations emits the group(2) bindings and access helpers for
// the simulate shader: per field a deposit buffer (atomic i32) and a
// read volume (f32), then the params array, then index-dispatched
// field_write/field_read plus per-name wrappers.
func (r *FieldRegistry) WGSLDeclarations() string {
	if r.Empty() {
		return ""
	}

	var sb strings.Builder

	binding := 0
	for i, f := range r.fields {
		fmt.Fprintf(&sb, "// Field %d: '%s' (%s, %d^3 cells, %d buffer elements)\n",
			i, f.Name, f.Config.Kind, f.Config.Resolution, f.Config.Elements())
		fmt.Fprintf(&sb, "@group(2) @binding(%d)\nvar<storage, read_write> field_%d_write: array<atomic<i32>>;\n", binding, i)
		binding++
		fmt.Fprintf(&sb, "@group(2) @binding(%d)\nvar<storage, read> field_%d_read: array<f32>;\n\n", binding, i)
		binding++
	}

	sb.WriteString(fieldParamsWGSL)
	fmt.Fprintf(&sb, "\n@group(2) @binding(%d)\nvar<storage, read> field_params: array<FieldParams>;\n", binding)
	sb.WriteString(fieldCommonWGSL)

	// Per-field sample and deposit implementations.
	for i, f := range r.fields {
		cfg := f.Config
		if cfg.Kind == ScalarField {
			fmt.Fprintf(&sb, `
fn field_sample_%[1]d(pos: vec3<f32>) -> f32 {
    var sc = field_corners(%[2]du, field_params[%[1]du].extent, pos);
    var v = 0.0;
    for (var k = 0u; k < 8u; k++) {
        v += field_%[1]d_read[sc.c[k]] * sc.w[k];
    }
    return v;
}

fn field_deposit_scalar_%[1]d(pos: vec3<f32>, value: f32) {
    var sc = field_corners(%[2]du, field_params[%[1]du].extent, pos);
    let scaled = clamp(value, -32768.0, 32767.0) * FIELD_SCALE;
    for (var k = 0u; k < 8u; k++) {
        atomicAdd(&field_%[1]d_write[sc.c[k]], i32(scaled * sc.w[k]));
    }
}
`, i, cfg.Resolution)
		} else {
			fmt.Fprintf(&sb, `
fn field_sample_vec_%[1]d(pos: vec3<f32>) -> vec4<f32> {
    var sc = field_corners(%[2]du, field_params[%[1]du].extent, pos);
    var v = vec4<f32>(0.0);
    for (var k = 0u; k < 8u; k++) {
        let base = sc.c[k] * 4u;
        v += vec4<f32>(
            field_%[1]d_read[base],
            field_%[1]d_read[base + 1u],
            field_%[1]d_read[base + 2u],
            field_%[1]d_read[base + 3u]
        ) * sc.w[k];
    }
    return v;
}

fn field_deposit_vec_%[1]d(pos: vec3<f32>, value: vec4<f32>) {
    var sc = field_corners(%[2]du, field_params[%[1]du].extent, pos);
    let scaled = clamp(value, vec4<f32>(-32768.0), vec4<f32>(32767.0)) * FIELD_SCALE;
    for (var k = 0u; k < 8u; k++) {
        let base = sc.c[k] * 4u;
        atomicAdd(&field_%[1]d_write[base], i32(scaled.x * sc.w[k]));
        atomicAdd(&field_%[1]d_write[base + 1u], i32(scaled.y * sc.w[k]));
        atomicAdd(&field_%[1]d_write[base + 2u], i32(scaled.z * sc.w[k]));
        atomicAdd(&field_%[1]d_write[base + 3u], i32(scaled.w * sc.w[k]));
    }
}
`, i, cfg.Resolution)
		}
	}

	// Index-dispatched entry points, matching the documented custom
	// rule API.
	sb.WriteString(`
// Deposit a scalar value at a world position (atomic accumulate,
// trilinearly distributed). Vector fields receive the value on all
// four components.
fn field_write(field_idx: u32, pos: vec3<f32>, value: f32) {
    switch field_idx {
`)
	for i, f := range r.fields {
		if f.Config.Kind == ScalarField {
			fmt.Fprintf(&sb, "        case %du: { field_deposit_scalar_%d(pos, value); }\n", i, i)
		} else {
			fmt.Fprintf(&sb, "        case %du: { field_deposit_vec_%d(pos, vec4<f32>(value)); }\n", i, i)
		}
	}
	sb.WriteString(`        default: {}
    }
}

// Deposit a vec4 into a vector field.
fn field_write_vec(field_idx: u32, pos: vec3<f32>, value: vec4<f32>) {
    switch field_idx {
`)
	for i, f := range r.fields {
		if f.Config.Kind == VectorField {
			fmt.Fprintf(&sb, "        case %du: { field_deposit_vec_%d(pos, value); }\n", i, i)
		}
	}
	sb.WriteString(`        default: {}
    }
}

// Trilinearly sample a field. Vector fields return their magnitude.
fn field_read(field_idx: u32, pos: vec3<f32>) -> f32 {
    switch field_idx {
`)
	for i, f := range r.fields {
		if f.Config.Kind == ScalarField {
			fmt.Fprintf(&sb, "        case %du: { return field_sample_%d(pos); }\n", i, i)
		} else {
			fmt.Fprintf(&sb, "        case %du: { return length(field_sample_vec_%d(pos).xyz); }\n", i, i)
		}
	}
	sb.WriteString(`        default: { return 0.0; }
    }
}

// Trilinearly sample a vector field.
fn field_read_vec(field_idx: u32, pos: vec3<f32>) -> vec4<f32> {
    switch field_idx {
`)
	for i, f := range r.fields {
		if f.Config.Kind == VectorField {
			fmt.Fprintf(&sb, "        case %du: { return field_sample_vec_%d(pos); }\n", i, i)
		}
	}
	sb.WriteString(`        default: { return vec4<f32>(0.0); }
    }
}

// Central-difference gradient of a field's scalar reading.
fn field_gradient(field_idx: u32, pos: vec3<f32>, epsilon: f32) -> vec3<f32> {
    let dx = field_read(field_idx, pos + vec3<f32>(epsilon, 0.0, 0.0))
           - field_read(field_idx, pos - vec3<f32>(epsilon, 0.0, 0.0));
    let dy = field_read(field_idx, pos + vec3<f32>(0.0, epsilon, 0.0))
           - field_read(field_idx, pos - vec3<f32>(0.0, epsilon, 0.0));
    let dz = field_read(field_idx, pos + vec3<f32>(0.0, 0.0, epsilon))
           - field_read(field_idx, pos - vec3<f32>(0.0, 0.0, epsilon));
    return vec3<f32>(dx, dy, dz) / (2.0 * epsilon);
}
`)

	// Named wrappers so rules and custom snippets can address fields
	// without tracking indices.
	for i, f := range r.fields {
		if f.Config.Kind == ScalarField {
			fmt.Fprintf(&sb, `
fn field_read_%[1]s(pos: vec3<f32>) -> f32 { return field_sample_%[2]d(pos); }
fn field_deposit_%[1]s(pos: vec3<f32>, value: f32) { field_deposit_scalar_%[2]d(pos, value); }
`, f.Name, i)
		} else {
			fmt.Fprintf(&sb, `
fn field_read_%[1]s(pos: vec3<f32>) -> vec4<f32> { return field_sample_vec_%[2]d(pos); }
fn field_deposit_%[1]s(pos: vec3<f32>, value: vec4<f32>) { field_deposit_vec_%[2]d(pos, value); }
`, f.Name, i)
		}
	}

	return sb.String()
}
