package pulsar

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// FieldType enumerates the GPU-representable base types a particle or
// uniform field may have.
type FieldType int

const (
	F32 FieldType = iota
	U32
	I32
	Vec2
	Vec3
	Vec4
)

var ErrUnknownFieldType = errors.New("unknown field type")

func (t FieldType) String() string {
	switch t {
	case F32:
		return "f32"
	case U32:
		return "u32"
	case I32:
		return "i32"
	case Vec2:
		return "vec2"
	case Vec3:
		return "vec3"
	case Vec4:
		return "vec4"
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// WGSL returns the WGSL type name.
func (t FieldType) WGSL() string {
	switch t {
	case F32:
		return "f32"
	case U32:
		return "u32"
	case I32:
		return "i32"
	case Vec2:
		return "vec2<f32>"
	case Vec3:
		return "vec3<f32>"
	case Vec4:
		return "vec4<f32>"
	}
	return "f32"
}

// Size is the byte size without trailing padding (vec3 is 12).
func (t FieldType) Size() int {
	switch t {
	case Vec2:
		return 8
	case Vec3:
		return 12
	case Vec4:
		return 16
	default:
		return 4
	}
}

// Align is the required byte alignment in storage and uniform buffers.
func (t FieldType) Align() int {
	switch t {
	case Vec2:
		return 8
	case Vec3, Vec4:
		return 16
	default:
		return 4
	}
}

func validFieldType(t FieldType) bool {
	return t >= F32 && t <= Vec4
}

// SchemaField is one user-declared particle field.
type SchemaField struct {
	Name string
	Type FieldType
}

// Schema describes the user-declared particle fields in order. The
// engine requires position and velocity (vec3) and injects the
// lifecycle tail (age, alive, scale) plus particle_type when typed
// rules are in play.
type Schema struct {
	Fields []SchemaField
	// UseColor marks the color field as the render color source. The
	// schema must then contain a vec3 field named "color".
	UseColor bool
}

// DefaultSchema is position + velocity only.
func DefaultSchema() Schema {
	return Schema{Fields: []SchemaField{
		{Name: "position", Type: Vec3},
		{Name: "velocity", Type: Vec3},
	}}
}

// ColorSchema is position + velocity + color with the color annotation set.
func ColorSchema() Schema {
	return Schema{
		Fields: []SchemaField{
			{Name: "position", Type: Vec3},
			{Name: "velocity", Type: Vec3},
			{Name: "color", Type: Vec3},
		},
		UseColor: true,
	}
}

// WithField appends a field and returns the schema for chaining.
func (s Schema) WithField(name string, t FieldType) Schema {
	s.Fields = append(append([]SchemaField{}, s.Fields...), SchemaField{Name: name, Type: t})
	return s
}

func (s Schema) field(name string) (SchemaField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return SchemaField{}, false
}

// LayoutField is a resolved field with its byte offset in the GPU record.
type LayoutField struct {
	Name   string
	Type   FieldType
	Offset int
}

// Layout is the derived GPU layout of one particle record: per-field
// offsets, total stride and the WGSL struct text. Host writes and WGSL
// accessors share these offsets byte for byte.
type Layout struct {
	Fields []LayoutField
	Stride int

	wgsl    string
	indices map[string]int
}

// Lifecycle tail injected after the user fields.
var lifecycleTail = []SchemaField{
	{Name: "age", Type: F32},
	{Name: "alive", Type: U32},
	{Name: "scale", Type: F32},
}

// BuildLayout resolves a schema into offsets, stride and WGSL text.
// When withType is set a particle_type: u32 discriminator is injected
// after the lifecycle tail.
func BuildLayout(s Schema, withType bool) (*Layout, error) {
	if f, ok := s.field("position"); !ok || f.Type != Vec3 {
		return nil, errors.New("schema requires a vec3 field named position")
	}
	if f, ok := s.field("velocity"); !ok || f.Type != Vec3 {
		return nil, errors.New("schema requires a vec3 field named velocity")
	}
	if s.UseColor {
		if f, ok := s.field("color"); !ok || f.Type != Vec3 {
			return nil, errors.New("color annotation requires a vec3 field named color")
		}
	}

	all := append([]SchemaField{}, s.Fields...)
	all = append(all, lifecycleTail...)
	if withType {
		all = append(all, SchemaField{Name: "particle_type", Type: U32})
	}

	seen := map[string]bool{}
	l := &Layout{indices: map[string]int{}}
	var sb strings.Builder
	sb.WriteString("struct Particle {\n")

	offset := 0
	padIdx := 0
	for _, f := range all {
		if !validFieldType(f.Type) {
			return nil, fmt.Errorf("field %q: %w", f.Name, ErrUnknownFieldType)
		}
		if f.Name == "" {
			return nil, errors.New("schema field with empty name")
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = true

		align := f.Type.Align()
		for offset%align != 0 {
			fmt.Fprintf(&sb, "    _pad%d: f32,\n", padIdx)
			padIdx++
			offset += 4
		}
		l.indices[f.Name] = len(l.Fields)
		l.Fields = append(l.Fields, LayoutField{Name: f.Name, Type: f.Type, Offset: offset})
		fmt.Fprintf(&sb, "    %s: %s,\n", f.Name, f.Type.WGSL())
		offset += f.Type.Size()
	}
	for offset%16 != 0 {
		fmt.Fprintf(&sb, "    _pad%d: f32,\n", padIdx)
		padIdx++
		offset += 4
	}
	sb.WriteString("};\n")

	l.Stride = offset
	l.wgsl = sb.String()

	if l.Stride%16 != 0 {
		return nil, fmt.Errorf("internal: stride %d not a multiple of 16", l.Stride)
	}
	return l, nil
}

// WGSLStruct returns the Particle struct declaration.
func (l *Layout) WGSLStruct() string { return l.wgsl }

// Offset returns the byte offset and type of a named field.
func (l *Layout) Offset(name string) (int, FieldType, bool) {
	i, ok := l.indices[name]
	if !ok {
		return 0, 0, false
	}
	return l.Fields[i].Offset, l.Fields[i].Type, true
}

// Has reports whether the layout carries a field with this name and type.
func (l *Layout) Has(name string, t FieldType) bool {
	i, ok := l.indices[name]
	return ok && l.Fields[i].Type == t
}

// NewRecord allocates a zeroed record for this layout. Padding bytes
// stay zero through every setter.
func (l *Layout) NewRecord() *Record {
	return &Record{layout: l, data: make([]byte, l.Stride)}
}

// Decode wraps a GPU-side byte image of one particle in a Record.
func (l *Layout) Decode(b []byte) (*Record, error) {
	if len(b) != l.Stride {
		return nil, fmt.Errorf("record size %d does not match stride %d", len(b), l.Stride)
	}
	data := make([]byte, l.Stride)
	copy(data, b)
	return &Record{layout: l, data: data}, nil
}

// Record is a host-side particle value laid out exactly as on GPU.
type Record struct {
	layout *Layout
	data   []byte
}

// Bytes returns the padded GPU image of the record.
func (r *Record) Bytes() []byte { return r.data }

func (r *Record) fieldFor(name string, want FieldType) (LayoutField, error) {
	i, ok := r.layout.indices[name]
	if !ok {
		return LayoutField{}, fmt.Errorf("no field %q in layout", name)
	}
	f := r.layout.Fields[i]
	if f.Type != want {
		return LayoutField{}, fmt.Errorf("field %q is %s, not %s", name, f.Type, want)
	}
	return f, nil
}

func (r *Record) putF32(off int, v float32) {
	binary.LittleEndian.PutUint32(r.data[off:], math.Float32bits(v))
}

func (r *Record) getF32(off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(r.data[off:]))
}

func (r *Record) SetF32(name string, v float32) error {
	f, err := r.fieldFor(name, F32)
	if err != nil {
		return err
	}
	r.putF32(f.Offset, v)
	return nil
}

func (r *Record) SetU32(name string, v uint32) error {
	f, err := r.fieldFor(name, U32)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(r.data[f.Offset:], v)
	return nil
}

func (r *Record) SetI32(name string, v int32) error {
	f, err := r.fieldFor(name, I32)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(r.data[f.Offset:], uint32(v))
	return nil
}

func (r *Record) SetVec2(name string, v mgl32.Vec2) error {
	f, err := r.fieldFor(name, Vec2)
	if err != nil {
		return err
	}
	r.putF32(f.Offset, v[0])
	r.putF32(f.Offset+4, v[1])
	return nil
}

func (r *Record) SetVec3(name string, v mgl32.Vec3) error {
	f, err := r.fieldFor(name, Vec3)
	if err != nil {
		return err
	}
	r.putF32(f.Offset, v[0])
	r.putF32(f.Offset+4, v[1])
	r.putF32(f.Offset+8, v[2])
	return nil
}

func (r *Record) SetVec4(name string, v mgl32.Vec4) error {
	f, err := r.fieldFor(name, Vec4)
	if err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		r.putF32(f.Offset+i*4, v[i])
	}
	return nil
}

func (r *Record) F32(name string) (float32, error) {
	f, err := r.fieldFor(name, F32)
	if err != nil {
		return 0, err
	}
	return r.getF32(f.Offset), nil
}

func (r *Record) U32(name string) (uint32, error) {
	f, err := r.fieldFor(name, U32)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.data[f.Offset:]), nil
}

func (r *Record) I32(name string) (int32, error) {
	f, err := r.fieldFor(name, I32)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(r.data[f.Offset:])), nil
}

func (r *Record) Vec2(name string) (mgl32.Vec2, error) {
	f, err := r.fieldFor(name, Vec2)
	if err != nil {
		return mgl32.Vec2{}, err
	}
	return mgl32.Vec2{r.getF32(f.Offset), r.getF32(f.Offset + 4)}, nil
}

func (r *Record) Vec3(name string) (mgl32.Vec3, error) {
	f, err := r.fieldFor(name, Vec3)
	if err != nil {
		return mgl32.Vec3{}, err
	}
	return mgl32.Vec3{r.getF32(f.Offset), r.getF32(f.Offset + 4), r.getF32(f.Offset + 8)}, nil
}

func (r *Record) Vec4(name string) (mgl32.Vec4, error) {
	f, err := r.fieldFor(name, Vec4)
	if err != nil {
		return mgl32.Vec4{}, err
	}
	return mgl32.Vec4{
		r.getF32(f.Offset), r.getF32(f.Offset + 4),
		r.getF32(f.Offset + 8), r.getF32(f.Offset + 12),
	}, nil
}

// Set assigns any supported value by name. Convenience for the config
// loader; typed setters are preferred in spawners.
func (r *Record) Set(name string, value any) error {
	switch v := value.(type) {
	case float32:
		return r.SetF32(name, v)
	case float64:
		return r.SetF32(name, float32(v))
	case uint32:
		return r.SetU32(name, v)
	case int32:
		return r.SetI32(name, v)
	case int:
		return r.SetI32(name, int32(v))
	case mgl32.Vec2:
		return r.SetVec2(name, v)
	case mgl32.Vec3:
		return r.SetVec3(name, v)
	case mgl32.Vec4:
		return r.SetVec4(name, v)
	}
	return fmt.Errorf("unsupported value type %T for field %q", value, name)
}

// encodePopulation serializes n records produced by spawn into one
// contiguous buffer image, little endian.
func encodePopulation(l *Layout, n uint32, bounds float32, seed int64, spawn func(ctx *SpawnContext, r *Record)) []byte {
	var buf bytes.Buffer
	buf.Grow(int(n) * l.Stride)
	ctx := newSpawnContext(n, bounds, seed)
	for i := uint32(0); i < n; i++ {
		r := l.NewRecord()
		r.putF32(mustOffset(l, "scale"), 1.0)
		if off, _, ok := l.Offset("alive"); ok {
			binary.LittleEndian.PutUint32(r.data[off:], 1)
		}
		if spawn != nil {
			ctx.reset(i)
			spawn(ctx, r)
		}
		buf.Write(r.data)
	}
	return buf.Bytes()
}

func mustOffset(l *Layout, name string) int {
	off, _, ok := l.Offset(name)
	if !ok {
		panic("missing layout field: " + name)
	}
	return off
}
