package pulsar

import (
	"fmt"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/google/uuid"
)

// Update is handed to the per-frame callback before uniforms upload,
// so uniform edits made here land in the same frame.
type Update struct {
	Elapsed float32
	Delta   float32
	Input   *Input
	Sim     *Sim
}

// UpdateFunc runs once per frame on the host thread.
type UpdateFunc func(u *Update)

// Spawner produces the initial state of one particle.
type Spawner func(ctx *SpawnContext, r *Record)

// Sim is the declarative simulation: configure it through the With*
// builder methods, then Run. All configuration is structural except
// uniform and rule parameter values, which hot-swap through the
// uniform buffer without a rebuild.
type Sim struct {
	count        uint32
	bounds       float32
	particleSize float32
	schema       Schema
	spatial      SpatialConfig
	spatialSet   bool
	spawner      Spawner
	rules        []Rule
	emitters     []Emitter
	subEmitters  []SubEmitter
	fields       *FieldRegistry
	uniforms     *CustomUniforms
	customRender string
	seed         int64
	startDead    bool
	inbox        bool
	fixedDelta   float32

	windowWidth  int
	windowHeight int
	title        string

	update UpdateFunc
	log    Logger

	// Runtime state, live between Run and window close.
	gpu      *gpuState
	clock    *Clock
	camera   *OrbitCamera
	input    Input
	build    *simBuild
	read     int
	rebuilds uint64

	paramValues map[string]any

	selection *selectionReader
}

// NewSim returns a simulation with the stock defaults: ten thousand
// particles in a unit cube.
func NewSim() *Sim {
	return &Sim{
		count:        10000,
		bounds:       1.0,
		particleSize: 0.015,
		schema:       DefaultSchema(),
		fields:       NewFieldRegistry(),
		uniforms:     NewCustomUniforms(),
		seed:         42,
		windowWidth:  1280,
		windowHeight: 720,
		title:        "pulsar",
		log:          NewDefaultLogger("pulsar", false),
		paramValues:  map[string]any{},
	}
}

func (s *Sim) WithParticleCount(n uint32) *Sim {
	s.count = n
	return s
}

// WithBounds sets the half-extent of the simulation cube.
func (s *Sim) WithBounds(b float32) *Sim {
	s.bounds = b
	return s
}

func (s *Sim) WithParticleSize(size float32) *Sim {
	s.particleSize = size
	return s
}

func (s *Sim) WithSchema(schema Schema) *Sim {
	s.schema = schema
	return s
}

// WithSpatial overrides the derived neighbor grid configuration.
func (s *Sim) WithSpatial(cfg SpatialConfig) *Sim {
	s.spatial = cfg
	s.spatialSet = true
	return s
}

// WithSpawner sets the initial population callback.
func (s *Sim) WithSpawner(fn Spawner) *Sim {
	s.spawner = fn
	return s
}

// WithRule appends one rule; rules run in declaration order.
func (s *Sim) WithRule(r Rule) *Sim {
	s.rules = append(s.rules, r)
	return s
}

func (s *Sim) WithRules(rules ...Rule) *Sim {
	s.rules = append(s.rules, rules...)
	return s
}

func (s *Sim) WithEmitter(e Emitter) *Sim {
	s.emitters = append(s.emitters, e)
	return s
}

func (s *Sim) WithSubEmitter(se SubEmitter) *Sim {
	s.subEmitters = append(s.subEmitters, se)
	return s
}

// WithField registers a named spatial field. Registration order is
// the shader-side field index.
func (s *Sim) WithField(name string, cfg FieldConfig) *Sim {
	if err := s.fields.Add(name, cfg); err != nil {
		panic(err)
	}
	return s
}

// WithUniform declares a custom uniform with its initial value.
func (s *Sim) WithUniform(name string, value any) *Sim {
	if err := s.uniforms.Declare(name, value); err != nil {
		panic(err)
	}
	return s
}

// WithLifecycle expands a lifecycle builder into its rules, emitters
// and start-dead flag.
func (s *Sim) WithLifecycle(lc *Lifecycle) *Sim {
	rules, emitters, startDead := lc.Build()
	s.rules = append(s.rules, rules...)
	s.emitters = append(s.emitters, emitters...)
	if startDead {
		s.startDead = true
	}
	return s
}

// WithInbox enables the particle message buffer: four accumulator
// channels per particle, written with inbox_send and read back with
// inbox_receive_at in rule code. Channels reset to zero every frame.
func (s *Sim) WithInbox() *Sim {
	s.inbox = true
	return s
}

// WithStartDead spawns the whole population dead; emitters bring
// particles to life.
func (s *Sim) WithStartDead() *Sim {
	s.startDead = true
	return s
}

// WithRenderShader replaces the generated render program. The snippet
// must declare vs_main and fs_main; the Uniforms block is prepended.
func (s *Sim) WithRenderShader(wgsl string) *Sim {
	s.customRender = wgsl
	return s
}

// WithSeed fixes the spawn RNG seed.
func (s *Sim) WithSeed(seed int64) *Sim {
	s.seed = seed
	return s
}

// WithFixedDelta forces a constant timestep for deterministic runs.
func (s *Sim) WithFixedDelta(dt float32) *Sim {
	s.fixedDelta = dt
	return s
}

func (s *Sim) WithWindow(width, height int, title string) *Sim {
	s.windowWidth = width
	s.windowHeight = height
	s.title = title
	return s
}

func (s *Sim) WithLogger(log Logger) *Sim {
	s.log = log
	return s
}

// WithUpdate sets the per-frame callback.
func (s *Sim) WithUpdate(fn UpdateFunc) *Sim {
	s.update = fn
	return s
}

// Camera is the active orbit camera; nil before Run.
func (s *Sim) Camera() *OrbitCamera { return s.camera }

// Clock is the simulation clock; nil before Run.
func (s *Sim) Clock() *Clock { return s.clock }

// RebuildCount is the number of successful structural rebuilds since
// the first build.
func (s *Sim) RebuildCount() uint64 { return s.rebuilds }

// withType reports whether the layout needs the particle_type
// discriminator: any typed rule, or sub-emitters matching on parent
// type.
func (s *Sim) withType() bool {
	return anyUsesParticleType(s.rules) || len(s.subEmitters) > 0
}

// resolvedSpatial is the neighbor grid configuration in effect:
// explicit when set, otherwise derived from bounds and the largest
// query radius.
func (s *Sim) resolvedSpatial() SpatialConfig {
	if s.spatialSet {
		return s.spatial
	}
	return AutoSpatialConfig(s.bounds, maxQueryRadius(s.rules))
}

// simBuild is one structural generation: everything derived from the
// schema, rule list, field set and uniform schema. Parameter edits
// never touch it; structural edits replace it wholesale after the new
// generation validates.
type simBuild struct {
	id            uuid.UUID
	layout        *Layout
	uniformLayout *UniformLayout
	computeSrc    string
	renderSrc     string
	needsGrid     bool

	particles  [2]*wgpu.Buffer
	uniformBuf *wgpu.Buffer
	inboxBuf   *wgpu.Buffer
	inboxZeros []byte

	computePipeline *wgpu.ComputePipeline
	renderPipeline  *wgpu.RenderPipeline

	// frameBGs[read] binds uniforms + particles[read] + particles[1-read].
	frameBGs [2]*wgpu.BindGroup
	gridBG   *wgpu.BindGroup
	fieldBG  *wgpu.BindGroup
	deathBG  *wgpu.BindGroup
	renderBG *wgpu.BindGroup

	grid        *SpatialGrid
	fieldEngine *FieldEngine
	subEmitters *SubEmitterGPU
}

func (b *simBuild) release() {
	if b == nil {
		return
	}
	if b.grid != nil {
		b.grid.Release()
	}
	if b.fieldEngine != nil {
		b.fieldEngine.Release()
	}
	if b.subEmitters != nil {
		b.subEmitters.Release()
	}
	for _, bg := range []*wgpu.BindGroup{b.frameBGs[0], b.frameBGs[1], b.gridBG, b.fieldBG, b.deathBG, b.renderBG} {
		if bg != nil {
			bg.Release()
		}
	}
	if b.computePipeline != nil {
		b.computePipeline.Release()
	}
	if b.renderPipeline != nil {
		b.renderPipeline.Release()
	}
	if b.uniformBuf != nil {
		b.uniformBuf.Release()
	}
	if b.inboxBuf != nil {
		b.inboxBuf.Release()
	}
	for _, pb := range b.particles {
		if pb != nil {
			pb.Release()
		}
	}
}

// newBuild assembles one structural generation. reuse carries the
// previous generation's particle buffers; they are kept when the
// record stride is unchanged so live particle state survives rule
// edits.
func (s *Sim) newBuild(reuse [2]*wgpu.Buffer, reuseStride int) (*simBuild, error) {
	layout, err := BuildLayout(s.schema, s.withType())
	if err != nil {
		return nil, err
	}
	uniformLayout, err := buildUniformLayout(s.uniforms, s.rules)
	if err != nil {
		return nil, err
	}

	sb := &shaderBuilder{
		layout:       layout,
		uniforms:     uniformLayout,
		fields:       s.fields,
		rules:        s.rules,
		emitters:     s.emitters,
		spatial:      s.resolvedSpatial(),
		bounds:       s.bounds,
		numParticles: s.count,
		particleSize: s.particleSize,
		recordDeaths: len(s.subEmitters) > 0,
		inbox:        s.inbox,
		customRender: s.customRender,
	}
	computeSrc, renderSrc, err := sb.Build()
	if err != nil {
		return nil, err
	}

	b := &simBuild{
		id:            uuid.New(),
		layout:        layout,
		uniformLayout: uniformLayout,
		computeSrc:    computeSrc,
		renderSrc:     renderSrc,
		needsGrid:     anyRequiresNeighbors(s.rules),
	}

	device := s.gpu.device
	if reuse[0] != nil && reuseStride == layout.Stride {
		b.particles = reuse
	} else {
		population := s.encodePopulation(layout)
		for i := 0; i < 2; i++ {
			b.particles[i], err = device.CreateBufferInit(&wgpu.BufferInitDescriptor{
				Label:    fmt.Sprintf("particles %d", i),
				Contents: population,
				Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageStorage |
					wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
			})
			if err != nil {
				b.release()
				return nil, fmt.Errorf("particle buffer %d: %w", i, err)
			}
		}
	}

	b.uniformBuf, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "uniforms",
		Size:  uint64(uniformLayout.Size()),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		b.release()
		return nil, fmt.Errorf("uniform buffer: %w", err)
	}

	// The auto pipeline layout keeps only bindings reachable from the
	// entry point, so the buffer exists only when some snippet calls
	// the inbox accessors.
	if s.inbox && strings.Contains(computeSrc[strings.Index(computeSrc, "fn simulate("):], "inbox") {
		// Four i32 accumulator channels per particle.
		size := int(s.count) * 16
		b.inboxZeros = make([]byte, size)
		b.inboxBuf, err = device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "inbox",
			Size:  uint64(size),
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			b.release()
			return nil, fmt.Errorf("inbox buffer: %w", err)
		}
	}

	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "simulate",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: computeSrc},
	})
	if err != nil {
		b.release()
		return nil, fmt.Errorf("simulate shader: %w", err)
	}
	b.computePipeline, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "simulate",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "simulate",
		},
	})
	module.Release()
	if err != nil {
		b.release()
		return nil, fmt.Errorf("simulate pipeline: %w", err)
	}

	b.renderPipeline, err = createParticleRenderPipeline(s.gpu, renderSrc, layout)
	if err != nil {
		b.release()
		return nil, fmt.Errorf("render pipeline: %w", err)
	}

	if b.needsGrid {
		b.grid, err = NewSpatialGrid(device, b.particles, s.count, s.resolvedSpatial(), layout.WGSLStruct(), s.log)
		if err != nil {
			b.release()
			return nil, err
		}
	}
	if !s.fields.Empty() {
		b.fieldEngine, err = NewFieldEngine(device, s.fields, s.log)
		if err != nil {
			b.release()
			return nil, err
		}
	}
	if len(s.subEmitters) > 0 {
		b.subEmitters, err = NewSubEmitterGPU(device, b.particles, layout, s.subEmitters, s.log)
		if err != nil {
			b.release()
			return nil, err
		}
	}

	if err := s.createBindGroups(b); err != nil {
		b.release()
		return nil, err
	}
	return b, nil
}

func (s *Sim) encodePopulation(layout *Layout) []byte {
	spawn := s.spawner
	if s.startDead {
		inner := spawn
		spawn = func(ctx *SpawnContext, r *Record) {
			if inner != nil {
				inner(ctx, r)
			}
			_ = r.SetU32("alive", 0)
		}
	}
	return encodePopulation(layout, s.count, s.bounds, s.seed, spawn)
}

func (s *Sim) createBindGroups(b *simBuild) error {
	device := s.gpu.device

	layout0 := b.computePipeline.GetBindGroupLayout(0)
	defer layout0.Release()
	for read := 0; read < 2; read++ {
		entries := []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: b.uniformBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: b.particles[read], Size: wgpu.WholeSize},
			{Binding: 2, Buffer: b.particles[1-read], Size: wgpu.WholeSize},
		}
		if b.inboxBuf != nil {
			entries = append(entries, wgpu.BindGroupEntry{Binding: 3, Buffer: b.inboxBuf, Size: wgpu.WholeSize})
		}
		bg, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   fmt.Sprintf("simulate frame %d", read),
			Layout:  layout0,
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("frame bind group %d: %w", read, err)
		}
		b.frameBGs[read] = bg
	}

	hasFields := !s.fields.Empty()
	hasDeaths := b.subEmitters != nil

	// Group indices are fixed in the generated WGSL; gaps in the
	// sequence still occupy a slot in the pipeline layout, so they get
	// an empty bind group.
	maxGroup := 0
	if b.needsGrid {
		maxGroup = 1
	}
	if hasFields {
		maxGroup = 2
	}
	if hasDeaths {
		maxGroup = 3
	}

	for group := 1; group <= maxGroup; group++ {
		layout := b.computePipeline.GetBindGroupLayout(uint32(group))
		var entries []wgpu.BindGroupEntry
		label := fmt.Sprintf("simulate group %d", group)

		switch {
		case group == 1 && b.needsGrid:
			entries = []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: b.grid.SortedIndices(), Size: wgpu.WholeSize},
				{Binding: 1, Buffer: b.grid.CellOffsets(), Size: wgpu.WholeSize},
				{Binding: 2, Buffer: b.grid.CellCounts(), Size: wgpu.WholeSize},
				{Binding: 3, Buffer: b.grid.ParamsBuffer(), Size: wgpu.WholeSize},
			}
		case group == 2 && hasFields:
			binding := uint32(0)
			for i := range s.fields.Fields() {
				entries = append(entries,
					wgpu.BindGroupEntry{Binding: binding, Buffer: b.fieldEngine.DepositBuffer(i), Size: wgpu.WholeSize},
					wgpu.BindGroupEntry{Binding: binding + 1, Buffer: b.fieldEngine.VolumeBuffer(i), Size: wgpu.WholeSize},
				)
				binding += 2
			}
			entries = append(entries, wgpu.BindGroupEntry{Binding: binding, Buffer: b.fieldEngine.ParamsBuffer(), Size: wgpu.WholeSize})
		case group == 3 && hasDeaths:
			entries = []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: b.subEmitters.DeathBuffer(), Size: wgpu.WholeSize},
				{Binding: 1, Buffer: b.subEmitters.CountBuffer(), Size: wgpu.WholeSize},
			}
		}

		bg, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   label,
			Layout:  layout,
			Entries: entries,
		})
		layout.Release()
		if err != nil {
			return fmt.Errorf("bind group %d: %w", group, err)
		}
		switch group {
		case 1:
			b.gridBG = bg
		case 2:
			b.fieldBG = bg
		case 3:
			b.deathBG = bg
		}
	}

	renderLayout := b.renderPipeline.GetBindGroupLayout(0)
	defer renderLayout.Release()
	var err error
	b.renderBG, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "render uniforms",
		Layout: renderLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: b.uniformBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("render bind group: %w", err)
	}
	return nil
}

// compile performs the first build. Runtime must exist already.
func (s *Sim) compile() error {
	build, err := s.newBuild([2]*wgpu.Buffer{}, 0)
	if err != nil {
		return err
	}
	s.build = build
	s.read = 0
	s.refreshParamValues()
	s.log.Infof("build %s: %d particles, stride %d, %d rules, %d emitters",
		build.id, s.count, build.layout.Stride, len(s.rules), len(s.emitters))
	return nil
}

// rebuild swaps in a new structural generation; on any failure the
// running build stays untouched.
func (s *Sim) rebuild() error {
	old := s.build
	reuse := [2]*wgpu.Buffer{}
	reuseStride := 0
	if old != nil {
		reuse = old.particles
		reuseStride = old.layout.Stride
	}
	build, err := s.newBuild(reuse, reuseStride)
	if err != nil {
		return err
	}
	if old != nil {
		if build.particles == old.particles {
			old.particles = [2]*wgpu.Buffer{}
		}
		old.release()
	}
	s.build = build
	s.rebuilds++
	s.refreshParamValues()
	s.log.Infof("rebuild %d: build %s", s.rebuilds, build.id)
	return nil
}

// refreshParamValues seeds the dynamic parameter map from the rule
// structs, keeping values already edited at runtime.
func (s *Sim) refreshParamValues() {
	next := map[string]any{}
	for i, r := range s.rules {
		for _, p := range r.DynamicParams() {
			key := ruleParamName(i, p.Name)
			if v, ok := s.paramValues[key]; ok {
				next[key] = v
			} else {
				next[key] = p.Value
			}
		}
	}
	s.paramValues = next
}

// SetUniform updates a declared custom uniform by name. When running,
// the value is written straight into the uniform buffer.
func (s *Sim) SetUniform(name string, value any) error {
	if err := s.uniforms.Set(name, value); err != nil {
		return err
	}
	if s.build == nil {
		return nil
	}
	off, data, err := s.build.uniformLayout.PackValue(name, value)
	if err != nil {
		return err
	}
	return s.gpu.queue.WriteBuffer(s.build.uniformBuf, uint64(off), data)
}

// SetParam updates one rule's dynamic parameter by rule index and
// parameter name, without a rebuild.
func (s *Sim) SetParam(ruleIndex int, name string, value any) error {
	if ruleIndex < 0 || ruleIndex >= len(s.rules) {
		return fmt.Errorf("rule index %d out of range", ruleIndex)
	}
	key := ruleParamName(ruleIndex, name)
	if s.build == nil {
		s.paramValues[key] = value
		return nil
	}
	off, data, err := s.build.uniformLayout.PackValue(key, value)
	if err != nil {
		return err
	}
	if err := s.gpu.queue.WriteBuffer(s.build.uniformBuf, uint64(off), data); err != nil {
		return err
	}
	s.paramValues[key] = value
	return nil
}

// ReplaceRules swaps the rule list. While running this is a structural
// change: the new build is validated first and the old one is retained
// on failure.
func (s *Sim) ReplaceRules(rules ...Rule) error {
	old := s.rules
	s.rules = rules
	if s.build == nil {
		return nil
	}
	if err := s.rebuild(); err != nil {
		s.rules = old
		return err
	}
	return nil
}

// Run opens the window, builds the simulation and drives the frame
// loop until the window closes.
func (s *Sim) Run() error {
	window := createWindow(s.windowWidth, s.windowHeight, s.title)
	defer window.Destroy()

	s.gpu = createGpuState(window)
	defer s.gpu.release()

	window.SetSizeCallback(func(w *glfw.Window, width, height int) {
		s.gpu.resize(width, height)
	})

	if err := s.compile(); err != nil {
		return err
	}
	defer func() {
		s.build.release()
		s.build = nil
	}()

	s.clock = NewClock()
	if s.fixedDelta > 0 {
		s.clock.SetFixedDelta(s.fixedDelta)
	}
	s.camera = NewOrbitCamera()
	s.camera.Distance = 3 * s.bounds
	s.camera.distanceTarget = s.camera.Distance
	s.camera.defaultDistance = s.camera.Distance
	s.selection = newSelectionReader(s.gpu.device)
	defer s.selection.release()

	for !window.ShouldClose() {
		if err := s.frame(window); err != nil {
			errstr := err.Error()
			switch {
			case strings.Contains(errstr, "Surface timed out"):
				// skip the frame
			case strings.Contains(errstr, "Surface is outdated"),
				strings.Contains(errstr, "Surface was lost"):
				s.log.Warnf("frame: %v; reconfiguring surface", err)
				s.gpu.reconfigure()
			default:
				return err
			}
		}
	}
	return nil
}

// applyCameraControls maps the stock input bindings onto the orbit
// camera: left drag orbits, middle drag pans, minus/equal zoom, R
// resets, space pauses.
func (s *Sim) applyCameraControls(dt float32) {
	in := &s.input
	if in.Pressed[MouseButtonLeft] {
		s.camera.Orbit(float32(in.MouseDeltaX), float32(in.MouseDeltaY))
	}
	if in.Pressed[MouseButtonMiddle] || in.Pressed[MouseButtonRight] {
		s.camera.Pan(float32(in.MouseDeltaX), float32(in.MouseDeltaY))
	}
	if in.Pressed[KeyEqual] {
		s.camera.Zoom(dt * 10)
	}
	if in.Pressed[KeyMinus] {
		s.camera.Zoom(-dt * 10)
	}
	if in.JustPressed[KeyR] {
		s.camera.Reset()
	}
	if in.JustPressed[KeySpace] {
		s.clock.TogglePause()
	}
	s.camera.Update(dt)
}

func (s *Sim) frame(window *glfw.Window) error {
	s.input.Poll(window)
	elapsed, delta := s.clock.Update()

	// The camera keeps easing while paused.
	cameraDt := delta
	if s.clock.Paused() {
		cameraDt = 1.0 / 60.0
	}
	s.applyCameraControls(cameraDt)

	if s.update != nil {
		s.update(&Update{Elapsed: elapsed, Delta: delta, Input: &s.input, Sim: s})
	}

	b := s.build
	viewProj := s.camera.ViewProj(s.gpu.aspect())
	packed := b.uniformLayout.Pack(viewProj, elapsed, delta, s.uniforms, s.paramValues)
	if err := s.gpu.queue.WriteBuffer(b.uniformBuf, 0, packed); err != nil {
		return fmt.Errorf("uniform upload: %w", err)
	}

	if b.subEmitters != nil && !s.clock.Paused() {
		b.subEmitters.ClearCounters(s.gpu.queue)
	}
	if b.inboxBuf != nil && !s.clock.Paused() {
		if err := s.gpu.queue.WriteBuffer(b.inboxBuf, 0, b.inboxZeros); err != nil {
			return fmt.Errorf("inbox clear: %w", err)
		}
	}

	texture, err := s.gpu.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("surface: %w", err)
	}
	view, err := texture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("surface view: %w", err)
	}
	defer view.Release()

	encoder, err := s.gpu.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("command encoder: %w", err)
	}
	defer encoder.Release()

	write := 1 - s.read
	if !s.clock.Paused() {
		if b.grid != nil {
			b.grid.Encode(encoder, s.read)
		}

		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(b.computePipeline)
		pass.SetBindGroup(0, b.frameBGs[s.read], nil)
		if b.gridBG != nil {
			pass.SetBindGroup(1, b.gridBG, nil)
		}
		if b.fieldBG != nil {
			pass.SetBindGroup(2, b.fieldBG, nil)
		}
		if b.deathBG != nil {
			pass.SetBindGroup(3, b.deathBG, nil)
		}
		pass.DispatchWorkgroups(divCeil(s.count, simulateWorkgroupSize), 1, 1)
		pass.End()
		pass.Release()

		if b.subEmitters != nil {
			b.subEmitters.EncodeSpawn(encoder, write)
		}
		if b.fieldEngine != nil {
			b.fieldEngine.Encode(encoder)
		}
	}

	renderSource := write
	if s.clock.Paused() {
		renderSource = s.read
	}

	renderPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0.01, G: 0.01, B: 0.02, A: 1.0},
			},
		},
	})
	renderPass.SetPipeline(b.renderPipeline)
	renderPass.SetBindGroup(0, b.renderBG, nil)
	renderPass.SetVertexBuffer(0, b.particles[renderSource], 0, wgpu.WholeSize)
	renderPass.Draw(6, s.count, 0, 0)
	renderPass.End()
	renderPass.Release()

	s.selection.encode(encoder, b.particles[renderSource], b.layout)

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("encoder finish: %w", err)
	}
	defer cmd.Release()

	s.gpu.queue.Submit(cmd)
	s.gpu.surface.Present()

	s.selection.resolve(s.gpu.device)

	if !s.clock.Paused() {
		s.read = write
	}
	return nil
}
