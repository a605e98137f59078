package pulsar

import (
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

// Key and mouse button identifiers for the input snapshot.
const (
	KeyA int = iota
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
	KeyG
	KeyH
	KeyI
	KeyJ
	KeyK
	KeyL
	KeyM
	KeyN
	KeyO
	KeyP
	KeyQ
	KeyR
	KeyS
	KeyT
	KeyU
	KeyV
	KeyW
	KeyX
	KeyY
	KeyZ
	Key0
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeySpace
	KeyEnter
	KeyEscape
	KeyTab
	KeyBackspace
	KeyRight
	KeyLeft
	KeyDown
	KeyUp
	KeyMinus
	KeyEqual
	KeyShift
	KeyControl
	MouseButtonLeft
	MouseButtonRight
	MouseButtonMiddle
)

var keyToGlfw = map[int]glfw.Key{
	KeyA:         glfw.KeyA,
	KeyB:         glfw.KeyB,
	KeyC:         glfw.KeyC,
	KeyD:         glfw.KeyD,
	KeyE:         glfw.KeyE,
	KeyF:         glfw.KeyF,
	KeyG:         glfw.KeyG,
	KeyH:         glfw.KeyH,
	KeyI:         glfw.KeyI,
	KeyJ:         glfw.KeyJ,
	KeyK:         glfw.KeyK,
	KeyL:         glfw.KeyL,
	KeyM:         glfw.KeyM,
	KeyN:         glfw.KeyN,
	KeyO:         glfw.KeyO,
	KeyP:         glfw.KeyP,
	KeyQ:         glfw.KeyQ,
	KeyR:         glfw.KeyR,
	KeyS:         glfw.KeyS,
	KeyT:         glfw.KeyT,
	KeyU:         glfw.KeyU,
	KeyV:         glfw.KeyV,
	KeyW:         glfw.KeyW,
	KeyX:         glfw.KeyX,
	KeyY:         glfw.KeyY,
	KeyZ:         glfw.KeyZ,
	Key0:         glfw.Key0,
	Key1:         glfw.Key1,
	Key2:         glfw.Key2,
	Key3:         glfw.Key3,
	Key4:         glfw.Key4,
	Key5:         glfw.Key5,
	Key6:         glfw.Key6,
	Key7:         glfw.Key7,
	Key8:         glfw.Key8,
	Key9:         glfw.Key9,
	KeySpace:     glfw.KeySpace,
	KeyEnter:     glfw.KeyEnter,
	KeyEscape:    glfw.KeyEscape,
	KeyTab:       glfw.KeyTab,
	KeyBackspace: glfw.KeyBackspace,
	KeyRight:     glfw.KeyRight,
	KeyLeft:      glfw.KeyLeft,
	KeyDown:      glfw.KeyDown,
	KeyUp:        glfw.KeyUp,
	KeyMinus:     glfw.KeyMinus,
	KeyEqual:     glfw.KeyEqual,
	KeyShift:     glfw.KeyLeftShift,
	KeyControl:   glfw.KeyLeftControl,
}

// Input is the per-frame input snapshot handed to the update callback.
// JustPressed and JustReleased are rising/falling edge latches, valid
// for one frame.
type Input struct {
	Pressed      [64]bool
	JustPressed  [64]bool
	JustReleased [64]bool

	MouseX, MouseY           float64
	MouseDeltaX, MouseDeltaY float64

	WindowWidth, WindowHeight int
}

// Poll refreshes the snapshot from the window. Call once per frame
// before the update callback.
func (in *Input) Poll(window *glfw.Window) {
	glfw.PollEvents()

	for key, glfwKey := range keyToGlfw {
		in.latch(key, window.GetKey(glfwKey) == glfw.Press)
	}

	in.latch(MouseButtonLeft, window.GetMouseButton(glfw.MouseButtonLeft) == glfw.Press)
	in.latch(MouseButtonRight, window.GetMouseButton(glfw.MouseButtonRight) == glfw.Press)
	in.latch(MouseButtonMiddle, window.GetMouseButton(glfw.MouseButtonMiddle) == glfw.Press)

	mx, my := window.GetCursorPos()
	in.MouseDeltaX = mx - in.MouseX
	in.MouseDeltaY = my - in.MouseY
	in.MouseX = mx
	in.MouseY = my

	in.WindowWidth, in.WindowHeight = window.GetSize()
}

func (in *Input) latch(key int, down bool) {
	in.JustPressed[key] = down && !in.Pressed[key]
	in.JustReleased[key] = !down && in.Pressed[key]
	in.Pressed[key] = down
}

// MouseNDC is the cursor position in normalized device coordinates,
// x and y in [-1, 1] with y up.
func (in *Input) MouseNDC() mgl32.Vec2 {
	if in.WindowWidth == 0 || in.WindowHeight == 0 {
		return mgl32.Vec2{}
	}
	x := float32(in.MouseX)/float32(in.WindowWidth)*2 - 1
	y := 1 - float32(in.MouseY)/float32(in.WindowHeight)*2
	return mgl32.Vec2{x, y}
}

// MouseWorld unprojects the cursor onto the camera's target plane:
// the plane through the orbit target facing the camera. This is the
// "mouse in world" point rules like AttractTo are usually fed.
func (in *Input) MouseWorld(cam *OrbitCamera) mgl32.Vec3 {
	ndc := in.MouseNDC()
	aspect := float32(1)
	if in.WindowHeight > 0 {
		aspect = float32(in.WindowWidth) / float32(in.WindowHeight)
	}

	inv := cam.ViewProj(aspect).Inv()
	near := inv.Mul4x1(mgl32.Vec4{ndc.X(), ndc.Y(), -1, 1})
	far := inv.Mul4x1(mgl32.Vec4{ndc.X(), ndc.Y(), 1, 1})
	if near.W() == 0 || far.W() == 0 {
		return cam.Target
	}
	origin := near.Vec3().Mul(1 / near.W())
	dir := far.Vec3().Mul(1 / far.W()).Sub(origin)
	if dir.LenSqr() < 1e-12 {
		return cam.Target
	}
	dir = dir.Normalize()

	// Intersect with the plane through the target, normal to the view.
	normal := cam.Forward().Mul(-1)
	denom := normal.Dot(dir)
	if denom > -1e-6 && denom < 1e-6 {
		return cam.Target
	}
	t := normal.Dot(cam.Target.Sub(origin)) / denom
	return origin.Add(dir.Mul(t))
}
