// Package engine drives the renderer: it owns the frame ring, the offscreen
// draw targets, per-frame and global descriptor allocation, deferred resource
// teardown, and the per-frame record/submit/present cycle.
package engine

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/corydouthat/acid-vulkan/descriptors"
	"github.com/corydouthat/acid-vulkan/gpu"
	"github.com/corydouthat/acid-vulkan/pipelines"
	"github.com/corydouthat/acid-vulkan/swapchain"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	vkngmath "github.com/vkngwrapper/math"
	"golang.org/x/exp/slog"
)

// FrameOverlap is the number of frames the CPU may record ahead of the GPU.
const FrameOverlap = 2

const (
	drawImageFormat  = core1_0.FormatR16G16B16A16SignedFloat
	depthImageFormat = core1_0.FormatD32SignedFloat
)

// presenter is the slice of the swapchain the render loop needs.
type presenter interface {
	AcquireNextImage(timeout time.Duration, semaphore core1_0.Semaphore) (int, common.VkResult, error)
	Present(queue core1_0.Queue, imageIndex int, waitSemaphore core1_0.Semaphore) (common.VkResult, error)
	Image(index int) core1_0.Image
	Extent() core1_0.Extent2D
	Resize(width, height int) error
	Destroy()
}

// GPUSceneData is the per-frame uniform block handed to the geometry pass.
type GPUSceneData struct {
	View              vkngmath.Mat4x4[float32]
	Proj              vkngmath.Mat4x4[float32]
	ViewProj          vkngmath.Mat4x4[float32]
	AmbientColor      vkngmath.Vec4[float32]
	SunlightDirection vkngmath.Vec4[float32]
	SunlightColor     vkngmath.Vec4[float32]
}

// ComputePushConstants is the push-constant block for background compute
// effects. The meaning of each vector is up to the bound shader.
type ComputePushConstants struct {
	Data1 vkngmath.Vec4[float32]
	Data2 vkngmath.Vec4[float32]
	Data3 vkngmath.Vec4[float32]
	Data4 vkngmath.Vec4[float32]
}

const (
	// 4 16-byte vectors
	computePushConstantsSize = 64
	// a single mat4 world transform
	drawPushConstantsSize = 64
)

// DrawContext is passed to the geometry draw callback while the engine's
// render pass is open. SceneDescriptors holds the bound GPUSceneData uniform.
type DrawContext struct {
	Cmd              core1_0.CommandBuffer
	Layout           core1_0.PipelineLayout
	SceneDescriptors core1_0.DescriptorSet
	Extent           core1_0.Extent2D

	// Stats lets the callback report triangle and drawcall counts.
	Stats *Stats
}

// CreateOptions configures Engine construction. Instance, PhysicalDevice,
// Device, Surface and the graphics queue are owned by the caller and outlive
// the engine.
type CreateOptions struct {
	Logger *slog.Logger

	Instance       core1_0.Instance
	PhysicalDevice core1_0.PhysicalDevice
	Device         core1_0.Device
	Surface        khr_surface.Surface

	GraphicsQueue       core1_0.Queue
	GraphicsQueueFamily int
	PresentQueueFamily  int

	Width  int
	Height int

	PresentMode khr_surface.PresentMode

	// DrawImageExtent sizes the fixed offscreen render target the engine
	// draws into before blitting to the swapchain. Defaults to 2560x1440.
	DrawImageExtent core1_0.Extent2D

	// RenderScale scales the region of the draw image actually rendered
	// each frame, in (0, 1]. Defaults to 1.
	RenderScale float32
}

// Engine owns the renderer state. Construct with New, then InitPipelines,
// then drive it with Run or DrawTick.
type Engine struct {
	logger *slog.Logger

	instance       core1_0.Instance
	physicalDevice core1_0.PhysicalDevice
	device         core1_0.Device
	surface        khr_surface.Surface

	graphicsQueue       core1_0.Queue
	graphicsQueueFamily int

	allocator *vam.Allocator
	swapchain presenter

	frames      [FrameOverlap]FrameData
	frameNumber int

	resizeRequested bool
	stopRendering   bool
	pendingWidth    int
	pendingHeight   int

	drawImage   *gpu.Image
	depthImage  *gpu.Image
	drawExtent  core1_0.Extent2D
	renderScale float32

	globalDescriptors    *descriptors.Allocator
	drawImageLayout      core1_0.DescriptorSetLayout
	drawImageDescriptors core1_0.DescriptorSet
	sceneDataLayout      core1_0.DescriptorSetLayout

	backgroundPipeline      *pipelines.Pipeline
	backgroundPushConstants ComputePushConstants
	meshPipeline            *pipelines.Pipeline
	framebuffer             core1_0.Framebuffer

	sceneData    GPUSceneData
	drawCallback func(ctx DrawContext) error

	immFence         core1_0.Fence
	immCommandPool   core1_0.CommandPool
	immCommandBuffer core1_0.CommandBuffer

	deleteQueue DeleteQueue
	stats       Stats
}

// New builds an engine over caller-owned Vulkan objects: it creates the
// device memory allocator, the presentation swapchain, the frame ring, the
// offscreen draw targets, and the descriptor infrastructure. Pipelines are
// created separately with InitPipelines.
func New(options CreateOptions) (*Engine, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if options.RenderScale <= 0 || options.RenderScale > 1 {
		options.RenderScale = 1
	}
	if options.DrawImageExtent.Width == 0 || options.DrawImageExtent.Height == 0 {
		options.DrawImageExtent = core1_0.Extent2D{Width: 2560, Height: 1440}
	}

	e := &Engine{
		logger:              logger,
		instance:            options.Instance,
		physicalDevice:      options.PhysicalDevice,
		device:              options.Device,
		surface:             options.Surface,
		graphicsQueue:       options.GraphicsQueue,
		graphicsQueueFamily: options.GraphicsQueueFamily,
		renderScale:         options.RenderScale,
	}

	var err error
	e.allocator, err = vam.New(logger, options.Instance, options.PhysicalDevice, options.Device, vam.CreateOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create the device memory allocator")
	}

	e.swapchain, err = swapchain.New(logger, options.Device, options.PhysicalDevice, options.Surface, swapchain.CreateOptions{
		Width:               options.Width,
		Height:              options.Height,
		PresentMode:         options.PresentMode,
		GraphicsQueueFamily: options.GraphicsQueueFamily,
		PresentQueueFamily:  options.PresentQueueFamily,
	})
	if err != nil {
		e.Destroy()
		return nil, err
	}

	if err = e.initDrawImages(options.DrawImageExtent); err != nil {
		e.Destroy()
		return nil, err
	}
	if err = e.initCommands(); err != nil {
		e.Destroy()
		return nil, err
	}
	if err = e.initSync(); err != nil {
		e.Destroy()
		return nil, err
	}
	if err = e.initDescriptors(); err != nil {
		e.Destroy()
		return nil, err
	}

	return e, nil
}

func (e *Engine) initDrawImages(extent core1_0.Extent2D) error {
	var err error
	e.drawImage, err = e.CreateImage(
		core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		drawImageFormat,
		core1_0.ImageUsageTransferSrc|core1_0.ImageUsageTransferDst|
			core1_0.ImageUsageStorage|core1_0.ImageUsageColorAttachment,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create the draw image")
	}

	e.depthImage, err = e.CreateImage(
		core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		depthImageFormat,
		core1_0.ImageUsageDepthStencilAttachment,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create the depth image")
	}

	return nil
}

func (e *Engine) initCommands() error {
	for i := 0; i < FrameOverlap; i++ {
		if err := e.frames[i].initCommands(e.device, e.graphicsQueueFamily); err != nil {
			return err
		}
	}

	pool, _, err := e.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: e.graphicsQueueFamily,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create the immediate-submit command pool")
	}
	e.immCommandPool = pool

	buffers, _, err := e.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return errors.Wrap(err, "failed to allocate the immediate-submit command buffer")
	}
	e.immCommandBuffer = buffers[0]

	return nil
}

func (e *Engine) initSync() error {
	for i := 0; i < FrameOverlap; i++ {
		if err := e.frames[i].initSync(e.device); err != nil {
			return err
		}
	}

	fence, _, err := e.device.CreateFence(nil, core1_0.FenceCreateInfo{
		Flags: core1_0.FenceCreateSignaled,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create the immediate-submit fence")
	}
	e.immFence = fence

	return nil
}

func (e *Engine) initDescriptors() error {
	e.globalDescriptors = descriptors.NewAllocator(e.logger)
	err := e.globalDescriptors.Init(e.device, 10, []descriptors.PoolSizeRatio{
		{Type: core1_0.DescriptorTypeCombinedImageSampler, Ratio: 3},
		{Type: core1_0.DescriptorTypeUniformBuffer, Ratio: 3},
		{Type: core1_0.DescriptorTypeStorageBuffer, Ratio: 3},
	})
	if err != nil {
		return err
	}

	var layoutBuilder descriptors.LayoutBuilder
	layoutBuilder.AddBinding(0, core1_0.DescriptorTypeStorageImage)
	e.drawImageLayout, err = layoutBuilder.Build(e.device, core1_0.StageCompute)
	if err != nil {
		return err
	}

	e.drawImageDescriptors, err = e.globalDescriptors.Allocate(e.device, e.drawImageLayout)
	if err != nil {
		return err
	}

	var writer descriptors.Writer
	writer.WriteImage(0, e.drawImage.View, nil, core1_0.ImageLayoutGeneral, core1_0.DescriptorTypeStorageImage)
	if err = writer.UpdateSet(e.device, e.drawImageDescriptors); err != nil {
		return err
	}

	layoutBuilder.Clear()
	layoutBuilder.AddBinding(0, core1_0.DescriptorTypeUniformBuffer)
	e.sceneDataLayout, err = layoutBuilder.Build(e.device, core1_0.StageVertex|core1_0.StageFragment)
	if err != nil {
		return err
	}

	for i := 0; i < FrameOverlap; i++ {
		if err = e.frames[i].initDescriptors(e.logger, e.device); err != nil {
			return err
		}
	}

	return nil
}

// PipelineShaderPaths names the SPIR-V files InitPipelines loads.
type PipelineShaderPaths struct {
	BackgroundCompute string
	MeshVertex        string
	MeshFragment      string
}

// InitPipelines builds the background compute pipeline and the geometry
// pipeline from compiled shaders, plus the framebuffer for the offscreen
// pass. Kept separate from New so the engine can be constructed without
// shader files on disk.
func (e *Engine) InitPipelines(paths PipelineShaderPaths) error {
	if err := e.initBackgroundPipeline(paths.BackgroundCompute); err != nil {
		return err
	}
	if err := e.initMeshPipeline(paths.MeshVertex, paths.MeshFragment); err != nil {
		return err
	}
	return e.initFramebuffer()
}

func (e *Engine) initBackgroundPipeline(shaderPath string) error {
	shader, err := pipelines.LoadShaderModule(e.device, shaderPath)
	if err != nil {
		return err
	}

	pipeline := pipelines.NewPipeline(e.logger)
	pipeline.SetComputeShader(shader)
	pipeline.AddDescriptorSetLayout(e.drawImageLayout)
	pipeline.AddPushConstantRange(core1_0.PushConstantRange{
		StageFlags: core1_0.StageCompute,
		Offset:     0,
		Size:       computePushConstantsSize,
	})
	if _, err = pipeline.CreateLayout(e.device); err != nil {
		pipeline.Destroy()
		return err
	}
	if _, err = pipeline.CreatePipeline(e.device); err != nil {
		pipeline.Destroy()
		return err
	}

	e.backgroundPipeline = pipeline
	return nil
}

func (e *Engine) initMeshPipeline(vertexPath, fragmentPath string) error {
	vertShader, err := pipelines.LoadShaderModule(e.device, vertexPath)
	if err != nil {
		return err
	}
	fragShader, err := pipelines.LoadShaderModule(e.device, fragmentPath)
	if err != nil {
		vertShader.Destroy(nil)
		return err
	}

	pipeline := pipelines.NewPipeline(e.logger)
	pipeline.SetShaders(vertShader, fragShader)
	pipeline.AddDescriptorSetLayout(e.sceneDataLayout)
	pipeline.AddPushConstantRange(core1_0.PushConstantRange{
		StageFlags: core1_0.StageVertex,
		Offset:     0,
		Size:       drawPushConstantsSize,
	})
	pipeline.SetVertexInput(gpu.VertexBindingDescriptions(), gpu.VertexAttributeDescriptions())
	pipeline.SetInputTopology(core1_0.PrimitiveTopologyTriangleList)
	pipeline.SetPolygonMode(core1_0.PolygonModeFill)
	pipeline.SetCullMode(core1_0.CullModeFlags(0), core1_0.FrontFaceClockwise)
	pipeline.SetMultisamplingNone()
	pipeline.DisableBlending()
	pipeline.SetColorAttachmentFormat(e.drawImage.Format)
	pipeline.SetDepthFormat(e.depthImage.Format)
	pipeline.EnableDepthTest(true, core1_0.CompareOpGreaterOrEqual)

	if _, err = pipeline.CreateLayout(e.device); err != nil {
		pipeline.Destroy()
		return err
	}
	if _, err = pipeline.CreatePipeline(e.device); err != nil {
		pipeline.Destroy()
		return err
	}

	e.meshPipeline = pipeline
	return nil
}

func (e *Engine) initFramebuffer() error {
	framebuffer, _, err := e.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass: e.meshPipeline.RenderPass(),
		Attachments: []core1_0.ImageView{
			e.drawImage.View,
			e.depthImage.View,
		},
		Width:  e.drawImage.Extent.Width,
		Height: e.drawImage.Extent.Height,
		Layers: 1,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create the offscreen framebuffer")
	}
	e.framebuffer = framebuffer
	return nil
}

// SetSceneData replaces the uniform block uploaded for the next geometry
// pass.
func (e *Engine) SetSceneData(data GPUSceneData) {
	e.sceneData = data
}

// SetBackgroundPushConstants replaces the push-constant block handed to the
// background compute shader.
func (e *Engine) SetBackgroundPushConstants(constants ComputePushConstants) {
	e.backgroundPushConstants = constants
}

// SetDrawCallback installs the geometry callback invoked inside the render
// pass each frame.
func (e *Engine) SetDrawCallback(callback func(ctx DrawContext) error) {
	e.drawCallback = callback
}

// SetRenderScale clamps scale to (0, 1] and applies it to subsequent frames.
func (e *Engine) SetRenderScale(scale float32) {
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	e.renderScale = scale
}

// RequestResize asks the engine to rebuild the swapchain at the new size
// before the next frame is drawn.
func (e *Engine) RequestResize(width, height int) {
	e.resizeRequested = true
	e.pendingWidth = width
	e.pendingHeight = height
}

// SetMinimized pauses or resumes rendering while the window is minimized.
func (e *Engine) SetMinimized(minimized bool) {
	e.stopRendering = minimized
}

// Stats returns the rolling frame timing statistics.
func (e *Engine) Stats() *Stats {
	return &e.stats
}

// FrameNumber returns the count of frames successfully submitted so far.
func (e *Engine) FrameNumber() int {
	return e.frameNumber
}

func (e *Engine) currentFrame() *FrameData {
	return &e.frames[e.frameNumber%FrameOverlap]
}

// Destroy waits for the device to go idle and tears down everything the
// engine owns, in reverse creation order. The caller-owned device, surface,
// and instance are untouched.
func (e *Engine) Destroy() {
	e.logger.Debug("Engine::Destroy")

	if e.device != nil {
		_, _ = e.device.WaitIdle()
	}

	for i := 0; i < FrameOverlap; i++ {
		e.frames[i].destroy(e.device)
	}

	if e.immCommandPool != nil {
		e.immCommandPool.Destroy(nil)
		e.immCommandPool = nil
		e.immCommandBuffer = nil
	}
	if e.immFence != nil {
		e.immFence.Destroy(nil)
		e.immFence = nil
	}

	if e.framebuffer != nil {
		e.framebuffer.Destroy(nil)
		e.framebuffer = nil
	}
	if e.meshPipeline != nil {
		e.meshPipeline.Destroy()
		e.meshPipeline = nil
	}
	if e.backgroundPipeline != nil {
		e.backgroundPipeline.Destroy()
		e.backgroundPipeline = nil
	}

	if e.sceneDataLayout != nil {
		e.sceneDataLayout.Destroy(nil)
		e.sceneDataLayout = nil
	}
	if e.drawImageLayout != nil {
		e.drawImageLayout.Destroy(nil)
		e.drawImageLayout = nil
	}
	if e.globalDescriptors != nil {
		e.globalDescriptors.DestroyPools()
		e.globalDescriptors = nil
	}

	e.deleteQueue.Flush()

	if e.depthImage != nil {
		e.DestroyImage(e.depthImage)
		e.depthImage = nil
	}
	if e.drawImage != nil {
		e.DestroyImage(e.drawImage)
		e.drawImage = nil
	}

	if e.swapchain != nil {
		e.swapchain.Destroy()
		e.swapchain = nil
	}
}
