package pulsar

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Uniform values accepted by Set and the builder: float32, uint32,
// int32, mgl32.Vec2, mgl32.Vec3, mgl32.Vec4.

func uniformTypeOf(v any) (FieldType, error) {
	switch v.(type) {
	case float32:
		return F32, nil
	case uint32:
		return U32, nil
	case int32:
		return I32, nil
	case mgl32.Vec2:
		return Vec2, nil
	case mgl32.Vec3:
		return Vec3, nil
	case mgl32.Vec4:
		return Vec4, nil
	}
	return 0, fmt.Errorf("unsupported uniform type %T", v)
}

func writeUniformValue(dst []byte, v any) {
	switch x := v.(type) {
	case float32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(x))
	case uint32:
		binary.LittleEndian.PutUint32(dst, x)
	case int32:
		binary.LittleEndian.PutUint32(dst, uint32(x))
	case mgl32.Vec2:
		for i := 0; i < 2; i++ {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(x[i]))
		}
	case mgl32.Vec3:
		for i := 0; i < 3; i++ {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(x[i]))
		}
	case mgl32.Vec4:
		for i := 0; i < 4; i++ {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(x[i]))
		}
	default:
		panic(fmt.Sprintf("unsupported uniform type %T", v))
	}
}

// CustomUniforms is the ordered set of user-declared globals.
// Declaration order is the WGSL struct order, so it is stable across
// frames and rebuilds.
type CustomUniforms struct {
	names  []string
	values map[string]any
	types  map[string]FieldType
}

func NewCustomUniforms() *CustomUniforms {
	return &CustomUniforms{
		values: map[string]any{},
		types:  map[string]FieldType{},
	}
}

// Declare registers a uniform with its initial value. Redeclaring an
// existing name just updates the value; the type must match.
func (cu *CustomUniforms) Declare(name string, value any) error {
	t, err := uniformTypeOf(value)
	if err != nil {
		return fmt.Errorf("uniform %q: %w", name, err)
	}
	if prev, ok := cu.types[name]; ok {
		if prev != t {
			return fmt.Errorf("uniform %q: declared %s, got %s", name, prev, t)
		}
		cu.values[name] = value
		return nil
	}
	cu.names = append(cu.names, name)
	cu.types[name] = t
	cu.values[name] = value
	return nil
}

// Set updates a declared uniform. Unknown names and type mismatches
// fail without touching anything.
func (cu *CustomUniforms) Set(name string, value any) error {
	want, ok := cu.types[name]
	if !ok {
		return fmt.Errorf("unknown uniform %q", name)
	}
	t, err := uniformTypeOf(value)
	if err != nil {
		return fmt.Errorf("uniform %q: %w", name, err)
	}
	if t != want {
		return fmt.Errorf("uniform %q is %s, got %s", name, want, t)
	}
	cu.values[name] = value
	return nil
}

func (cu *CustomUniforms) Get(name string) (any, bool) {
	v, ok := cu.values[name]
	return v, ok
}

func (cu *CustomUniforms) Len() int { return len(cu.names) }

// uniformEntry is one resolved member of the Uniforms block.
type uniformEntry struct {
	name   string
	typ    FieldType
	offset int
}

// UniformLayout is the resolved Uniforms block: view_proj + time +
// delta_time, then custom uniforms in declaration order, then per-rule
// dynamic parameters as rule<i>_<name>. Offsets are shared between the
// WGSL struct text and the host packer.
type UniformLayout struct {
	entries []uniformEntry
	indices map[string]int
	size    int
	wgsl    string
}

const uniformHeaderSize = 72 // mat4x4 + time + delta_time

// ruleParamName builds the uniform member name for a rule's dynamic
// parameter.
func ruleParamName(ruleIndex int, param string) string {
	return fmt.Sprintf("rule%d_%s", ruleIndex, param)
}

// buildUniformLayout lays out the Uniforms struct for a rule list and
// custom uniform set.
func buildUniformLayout(custom *CustomUniforms, rules []Rule) (*UniformLayout, error) {
	ul := &UniformLayout{indices: map[string]int{}}

	var sb strings.Builder
	sb.WriteString("struct Uniforms {\n")
	sb.WriteString("    view_proj: mat4x4<f32>,\n")
	sb.WriteString("    time: f32,\n")
	sb.WriteString("    delta_time: f32,\n")

	offset := uniformHeaderSize
	padIdx := 0

	add := func(name string, t FieldType) error {
		if _, dup := ul.indices[name]; dup {
			return fmt.Errorf("duplicate uniform %q", name)
		}
		align := t.Align()
		for offset%align != 0 {
			fmt.Fprintf(&sb, "    _pad%d: f32,\n", padIdx)
			padIdx++
			offset += 4
		}
		ul.indices[name] = len(ul.entries)
		ul.entries = append(ul.entries, uniformEntry{name: name, typ: t, offset: offset})
		fmt.Fprintf(&sb, "    %s: %s,\n", name, t.WGSL())
		offset += t.Size()
		return nil
	}

	if custom != nil {
		for _, name := range custom.names {
			if err := add(name, custom.types[name]); err != nil {
				return nil, err
			}
		}
	}
	for i, r := range rules {
		for _, p := range r.DynamicParams() {
			t, err := uniformTypeOf(p.Value)
			if err != nil {
				return nil, fmt.Errorf("rule %d param %q: %w", i, p.Name, err)
			}
			if err := add(ruleParamName(i, p.Name), t); err != nil {
				return nil, err
			}
		}
	}

	for offset%16 != 0 {
		fmt.Fprintf(&sb, "    _pad%d: f32,\n", padIdx)
		padIdx++
		offset += 4
	}
	sb.WriteString("};\n")

	ul.size = offset
	ul.wgsl = sb.String()
	return ul, nil
}

// WGSLStruct returns the Uniforms block declaration.
func (ul *UniformLayout) WGSLStruct() string { return ul.wgsl }

// Size is the byte size of the uniform buffer.
func (ul *UniformLayout) Size() int { return ul.size }

// Offset returns the byte offset and type of a named member past the
// fixed header.
func (ul *UniformLayout) Offset(name string) (int, FieldType, bool) {
	i, ok := ul.indices[name]
	if !ok {
		return 0, 0, false
	}
	return ul.entries[i].offset, ul.entries[i].typ, true
}

// Pack serializes the full uniform buffer image for one frame.
// paramValues carries the current dynamic rule parameters keyed by
// their rule<i>_<name> member name.
func (ul *UniformLayout) Pack(viewProj mgl32.Mat4, time, deltaTime float32, custom *CustomUniforms, paramValues map[string]any) []byte {
	buf := make([]byte, ul.size)
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(viewProj[i]))
	}
	binary.LittleEndian.PutUint32(buf[64:], math.Float32bits(time))
	binary.LittleEndian.PutUint32(buf[68:], math.Float32bits(deltaTime))

	for _, e := range ul.entries {
		var v any
		var ok bool
		if custom != nil {
			v, ok = custom.Get(e.name)
		}
		if !ok && paramValues != nil {
			v, ok = paramValues[e.name]
		}
		if !ok {
			continue
		}
		writeUniformValue(buf[e.offset:], v)
	}
	return buf
}

// PackValue serializes one member for a byte-range upload at its
// offset. Used by the parametric hot-swap path.
func (ul *UniformLayout) PackValue(name string, value any) (offset int, data []byte, err error) {
	off, want, ok := ul.Offset(name)
	if !ok {
		return 0, nil, fmt.Errorf("unknown uniform member %q", name)
	}
	t, err := uniformTypeOf(value)
	if err != nil {
		return 0, nil, err
	}
	if t != want {
		return 0, nil, fmt.Errorf("uniform member %q is %s, got %s", name, want, t)
	}
	data = make([]byte, t.Size())
	writeUniformValue(data, value)
	return off, data, nil
}
