package pulsar

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestBuildLayout_DefaultSchema(t *testing.T) {
	l, err := BuildLayout(DefaultSchema(), false)
	if err != nil {
		t.Fatalf("BuildLayout failed: %v", err)
	}

	if l.Stride%16 != 0 {
		t.Errorf("stride %d is not 16-byte aligned", l.Stride)
	}
	for _, name := range []string{"position", "velocity", "age", "alive", "scale"} {
		if _, _, ok := l.Offset(name); !ok {
			t.Errorf("layout is missing field %q", name)
		}
	}
	if l.Has("particle_type", U32) {
		t.Error("particle_type should not be injected without withType")
	}

	off, typ, _ := l.Offset("position")
	if off != 0 || typ != Vec3 {
		t.Errorf("position at offset %d type %s, want 0 vec3", off, typ)
	}
}

func TestBuildLayout_WithType(t *testing.T) {
	l, err := BuildLayout(DefaultSchema(), true)
	if err != nil {
		t.Fatalf("BuildLayout failed: %v", err)
	}
	if !l.Has("particle_type", U32) {
		t.Error("expected particle_type u32 in typed layout")
	}
}

func TestBuildLayout_Alignment(t *testing.T) {
	schema := Schema{Fields: []SchemaField{
		{Name: "position", Type: Vec3},
		{Name: "energy", Type: F32},
		{Name: "velocity", Type: Vec3},
		{Name: "heading", Type: Vec2},
	}}
	l, err := BuildLayout(schema, false)
	if err != nil {
		t.Fatalf("BuildLayout failed: %v", err)
	}
	for _, f := range l.Fields {
		if f.Offset%f.Type.Align() != 0 {
			t.Errorf("field %q at offset %d violates %d-byte alignment", f.Name, f.Offset, f.Type.Align())
		}
	}
}

func TestBuildLayout_Errors(t *testing.T) {
	cases := []struct {
		name   string
		schema Schema
	}{
		{"missing position", Schema{Fields: []SchemaField{{Name: "velocity", Type: Vec3}}}},
		{"missing velocity", Schema{Fields: []SchemaField{{Name: "position", Type: Vec3}}}},
		{"position wrong type", Schema{Fields: []SchemaField{
			{Name: "position", Type: Vec2}, {Name: "velocity", Type: Vec3},
		}}},
		{"duplicate field", Schema{Fields: []SchemaField{
			{Name: "position", Type: Vec3}, {Name: "velocity", Type: Vec3}, {Name: "velocity", Type: Vec3},
		}}},
		{"use_color without color", Schema{
			Fields:   []SchemaField{{Name: "position", Type: Vec3}, {Name: "velocity", Type: Vec3}},
			UseColor: true,
		}},
	}
	for _, tc := range cases {
		if _, err := BuildLayout(tc.schema, false); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	schema := ColorSchema().WithField("energy", F32).WithField("state", U32)
	l, err := BuildLayout(schema, false)
	if err != nil {
		t.Fatalf("BuildLayout failed: %v", err)
	}

	r := l.NewRecord()
	if err := r.SetVec3("position", mgl32.Vec3{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetF32("energy", 0.5); err != nil {
		t.Fatal(err)
	}
	if err := r.SetU32("state", 7); err != nil {
		t.Fatal(err)
	}

	pos, err := r.Vec3("position")
	if err != nil || pos != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("position round trip: got %v, err %v", pos, err)
	}
	e, _ := r.F32("energy")
	if e != 0.5 {
		t.Errorf("energy round trip: got %v", e)
	}
	s, _ := r.U32("state")
	if s != 7 {
		t.Errorf("state round trip: got %v", s)
	}

	if err := r.SetF32("state", 1); err == nil {
		t.Error("SetF32 on u32 field should fail")
	}
	if err := r.SetF32("nope", 1); err == nil {
		t.Error("SetF32 on unknown field should fail")
	}
}

func TestRecord_Decode(t *testing.T) {
	l, _ := BuildLayout(DefaultSchema(), false)

	src := l.NewRecord()
	src.SetVec3("velocity", mgl32.Vec3{0, -1, 0})

	r, err := l.Decode(src.Bytes())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	v, _ := r.Vec3("velocity")
	if v != (mgl32.Vec3{0, -1, 0}) {
		t.Errorf("decoded velocity %v", v)
	}

	if _, err := l.Decode(make([]byte, l.Stride-4)); err == nil {
		t.Error("Decode with wrong size should fail")
	}
}

func TestEncodePopulation_Defaults(t *testing.T) {
	l, _ := BuildLayout(DefaultSchema(), false)
	const n = 8

	data := encodePopulation(l, n, 1.0, 42, nil)
	if len(data) != n*l.Stride {
		t.Fatalf("population size %d, want %d", len(data), n*l.Stride)
	}

	for i := 0; i < n; i++ {
		r, err := l.Decode(data[i*l.Stride : (i+1)*l.Stride])
		if err != nil {
			t.Fatal(err)
		}
		if alive, _ := r.U32("alive"); alive != 1 {
			t.Errorf("particle %d: alive = %d, want 1", i, alive)
		}
		if scale, _ := r.F32("scale"); scale != 1 {
			t.Errorf("particle %d: scale = %v, want 1", i, scale)
		}
	}
}

func TestEncodePopulation_Deterministic(t *testing.T) {
	l, _ := BuildLayout(DefaultSchema(), false)
	spawn := func(ctx *SpawnContext, r *Record) {
		r.SetVec3("position", ctx.RandomInBounds())
	}

	a := encodePopulation(l, 16, 1.0, 7, spawn)
	b := encodePopulation(l, 16, 1.0, 7, spawn)
	if string(a) != string(b) {
		t.Error("same seed must produce identical populations")
	}

	c := encodePopulation(l, 16, 1.0, 8, spawn)
	if string(a) == string(c) {
		t.Error("different seeds should produce different populations")
	}
}
