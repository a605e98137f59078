package pulsar

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomUniforms_DeclareAndSet(t *testing.T) {
	cu := NewCustomUniforms()
	require.NoError(t, cu.Declare("strength", float32(1.5)))
	require.NoError(t, cu.Declare("target", mgl32.Vec3{0, 1, 0}))

	assert.Error(t, cu.Set("unknown", float32(1)), "unknown name must fail")
	assert.Error(t, cu.Set("strength", mgl32.Vec3{}), "type mismatch must fail")

	require.NoError(t, cu.Set("strength", float32(2)))
	v, ok := cu.Get("strength")
	require.True(t, ok)
	assert.Equal(t, float32(2), v)

	// Redeclaring with another type is rejected, value unchanged.
	assert.Error(t, cu.Declare("strength", uint32(3)))
	v, _ = cu.Get("strength")
	assert.Equal(t, float32(2), v)
}

func TestBuildUniformLayout_Offsets(t *testing.T) {
	cu := NewCustomUniforms()
	require.NoError(t, cu.Declare("gain", float32(1)))
	require.NoError(t, cu.Declare("center", mgl32.Vec3{}))

	rules := []Rule{Gravity{G: 9.8}, Drag{K: 0.2}}
	ul, err := buildUniformLayout(cu, rules)
	require.NoError(t, err)

	off, typ, ok := ul.Offset("gain")
	require.True(t, ok)
	assert.Equal(t, uniformHeaderSize, off, "first custom member sits right after the header")
	assert.Equal(t, F32, typ)

	off, typ, ok = ul.Offset("center")
	require.True(t, ok)
	assert.Equal(t, Vec3, typ)
	assert.Zero(t, off%16, "vec3 members need 16-byte alignment")

	if _, _, ok := ul.Offset(ruleParamName(0, "g")); !ok {
		t.Error("rule0_g missing from layout")
	}
	if _, _, ok := ul.Offset(ruleParamName(1, "k")); !ok {
		t.Error("rule1_k missing from layout")
	}

	assert.Zero(t, ul.Size()%16, "uniform buffer size must be 16-byte aligned")
	assert.Contains(t, ul.WGSLStruct(), "view_proj: mat4x4<f32>")
	assert.Contains(t, ul.WGSLStruct(), "rule0_g: f32")
}

func TestUniformLayout_Pack(t *testing.T) {
	cu := NewCustomUniforms()
	require.NoError(t, cu.Declare("gain", float32(3)))

	ul, err := buildUniformLayout(cu, []Rule{Gravity{G: 9.8}})
	require.NoError(t, err)

	packed := ul.Pack(mgl32.Ident4(), 1.25, 0.016, cu, map[string]any{
		ruleParamName(0, "g"): float32(4.5),
	})
	require.Len(t, packed, ul.Size())

	readF32 := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(packed[off:]))
	}
	assert.Equal(t, float32(1), readF32(0), "view_proj[0][0] of identity")
	assert.Equal(t, float32(1.25), readF32(64), "time")
	assert.Equal(t, float32(0.016), readF32(68), "delta_time")

	off, _, _ := ul.Offset("gain")
	assert.Equal(t, float32(3), readF32(off))
	off, _, _ = ul.Offset(ruleParamName(0, "g"))
	assert.Equal(t, float32(4.5), readF32(off))
}

func TestUniformLayout_PackValue(t *testing.T) {
	cu := NewCustomUniforms()
	require.NoError(t, cu.Declare("gain", float32(3)))
	ul, err := buildUniformLayout(cu, nil)
	require.NoError(t, err)

	off, data, err := ul.PackValue("gain", float32(7))
	require.NoError(t, err)
	assert.Equal(t, uniformHeaderSize, off)
	require.Len(t, data, 4)
	assert.Equal(t, float32(7), math.Float32frombits(binary.LittleEndian.Uint32(data)))

	_, _, err = ul.PackValue("nope", float32(1))
	assert.Error(t, err, "unknown member must fail")

	_, _, err = ul.PackValue("gain", uint32(1))
	assert.Error(t, err, "wrong type must fail")
}

func TestBuildUniformLayout_DuplicateName(t *testing.T) {
	cu := NewCustomUniforms()
	require.NoError(t, cu.Declare("rule0_g", float32(1)))

	// Collides with the first rule's g parameter.
	_, err := buildUniformLayout(cu, []Rule{Gravity{G: 1}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "duplicate"))
}
