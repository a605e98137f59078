package pulsar

import (
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// gpuState owns the window-facing GPU objects: surface, adapter,
// device, queue and the swapchain configuration. Acquisition failures
// panic; there is nothing to fall back to without a device.
type gpuState struct {
	window        *glfw.Window
	surface       *wgpu.Surface
	adapter       *wgpu.Adapter
	device        *wgpu.Device
	queue         *wgpu.Queue
	surfaceConfig *wgpu.SurfaceConfiguration
}

func createWindow(width, height int, title string) *glfw.Window {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		panic(err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Important: tell GLFW we don't want OpenGL
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		panic(err)
	}
	return win
}

func createGpuState(window *glfw.Window) *gpuState {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		panic(err)
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
	})
	if err != nil {
		panic(err)
	}
	queue := device.GetQueue()

	width, height := window.GetSize()
	caps := surface.GetCapabilities(adapter)
	surfaceConfig := wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo, // vsync
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, device, &surfaceConfig)

	return &gpuState{
		window:        window,
		surface:       surface,
		adapter:       adapter,
		device:        device,
		queue:         queue,
		surfaceConfig: &surfaceConfig,
	}
}

func (g *gpuState) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	g.surfaceConfig.Width = uint32(width)
	g.surfaceConfig.Height = uint32(height)
	g.surface.Configure(g.adapter, g.device, g.surfaceConfig)
}

// reconfigure re-applies the current surface configuration. Used when
// the surface reports lost or outdated; the next frame retries.
func (g *gpuState) reconfigure() {
	g.surface.Configure(g.adapter, g.device, g.surfaceConfig)
}

func (g *gpuState) aspect() float32 {
	if g.surfaceConfig.Height == 0 {
		return 1
	}
	return float32(g.surfaceConfig.Width) / float32(g.surfaceConfig.Height)
}

func (g *gpuState) release() {
	if g.queue != nil {
		g.queue.Release()
	}
	if g.device != nil {
		g.device.Release()
	}
	if g.surface != nil {
		g.surface.Release()
	}
	if g.adapter != nil {
		g.adapter.Release()
	}
}

// particleVertexLayout maps the Particle record onto instanced vertex
// attributes: position, scale, alive, and color when the schema
// carries it. Offsets come from the same layout table the compute side
// uses, so the two views of the buffer can never drift apart.
func particleVertexLayout(l *Layout) wgpu.VertexBufferLayout {
	attrs := []wgpu.VertexAttribute{
		{Format: wgpu.VertexFormatFloat32x3, Offset: uint64(mustOffset(l, "position")), ShaderLocation: 0},
		{Format: wgpu.VertexFormatFloat32, Offset: uint64(mustOffset(l, "scale")), ShaderLocation: 1},
		{Format: wgpu.VertexFormatUint32, Offset: uint64(mustOffset(l, "alive")), ShaderLocation: 2},
	}
	if l.Has("color", Vec3) {
		attrs = append(attrs, wgpu.VertexAttribute{
			Format: wgpu.VertexFormatFloat32x3, Offset: uint64(mustOffset(l, "color")), ShaderLocation: 3,
		})
	}
	return wgpu.VertexBufferLayout{
		ArrayStride: uint64(l.Stride),
		StepMode:    wgpu.VertexStepModeInstance,
		Attributes:  attrs,
	}
}

// createParticleRenderPipeline builds the billboard pipeline: six
// vertices per instance, alpha blended, no culling since the quads
// always face the camera.
func createParticleRenderPipeline(g *gpuState, shaderCode string, l *Layout) (*wgpu.RenderPipeline, error) {
	shader, err := g.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "particle render",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaderCode},
	})
	if err != nil {
		return nil, err
	}
	defer shader.Release()

	return g.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "particle render",
		Vertex: wgpu.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
			Buffers:    []wgpu.VertexBufferLayout{particleVertexLayout(l)},
		},
		Fragment: &wgpu.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format: g.surfaceConfig.Format,
					Blend: &wgpu.BlendState{
						Color: wgpu.BlendComponent{
							SrcFactor: wgpu.BlendFactorSrcAlpha,
							DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
							Operation: wgpu.BlendOperationAdd,
						},
						Alpha: wgpu.BlendComponent{
							SrcFactor: wgpu.BlendFactorOne,
							DstFactor: wgpu.BlendFactorOne,
							Operation: wgpu.BlendOperationAdd,
						},
					},
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count:                  1,
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: false,
		},
	})
}
