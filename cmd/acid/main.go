package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/corydouthat/acid-vulkan/engine"
	"github.com/corydouthat/acid-vulkan/gpu"
	"github.com/corydouthat/acid-vulkan/scene"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v2"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v2/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v2/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v2"
	vkngmath "github.com/vkngwrapper/math"
	"golang.org/x/exp/slog"
)

const (
	windowWidth  = 1700
	windowHeight = 900
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type queueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i *queueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

type app struct {
	logger *slog.Logger

	enableValidation bool
	shaderDir        string

	window *sdl.Window
	loader core.Loader

	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surface        khr_surface.Surface
	physicalDevice core1_0.PhysicalDevice
	device         core1_0.Device

	graphicsQueue core1_0.Queue
	families      queueFamilyIndices

	engine *engine.Engine
	graph  *scene.Graph
	camera *scene.Camera
	mesh   *gpu.MeshBuffers

	spinAngle float32
}

func (a *app) run() error {
	err := a.initWindow()
	if err != nil {
		return err
	}
	defer a.cleanup()

	if err = a.initVulkan(); err != nil {
		return err
	}
	if err = a.initEngine(); err != nil {
		return err
	}
	if err = a.initScene(); err != nil {
		return err
	}

	return a.engine.Run(a.pumpEvents, a.update)
}

func (a *app) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "failed to initialize sdl")
	}

	window, err := sdl.CreateWindow("Acid", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		windowWidth, windowHeight, sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return errors.Wrap(err, "failed to create the sdl window")
	}
	a.window = window

	a.loader, err = core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "failed to create the vulkan loader")
	}

	return nil
}

func (a *app) initVulkan() error {
	err := a.createInstance()
	if err != nil {
		return err
	}
	if err = a.setupDebugMessenger(); err != nil {
		return err
	}
	if err = a.createSurface(); err != nil {
		return err
	}
	if err = a.pickPhysicalDevice(); err != nil {
		return err
	}
	return a.createLogicalDevice()
}

func (a *app) createInstance() error {
	createInfo := core1_0.InstanceCreateInfo{
		ApplicationName:    "acid",
		ApplicationVersion: common.CreateVersion(0, 1, 0),
		EngineName:         "acid",
		EngineVersion:      common.CreateVersion(0, 1, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := a.window.VulkanGetInstanceExtensions()
	extensions, _, err := a.loader.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "failed to enumerate instance extensions")
	}

	for _, ext := range sdlExtensions {
		if _, hasExt := extensions[ext]; !hasExt {
			return errors.Newf("the window system requires the missing instance extension %s", ext)
		}
		createInfo.EnabledExtensionNames = append(createInfo.EnabledExtensionNames, ext)
	}

	if a.enableValidation {
		createInfo.EnabledExtensionNames = append(createInfo.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if _, supported := extensions[khr_portability_enumeration.ExtensionName]; supported {
		createInfo.EnabledExtensionNames = append(createInfo.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		createInfo.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if a.enableValidation {
		layers, _, err := a.loader.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "failed to enumerate instance layers")
		}
		for _, layer := range validationLayers {
			if _, hasLayer := layers[layer]; !hasLayer {
				return errors.Newf("validation layer %s is not available", layer)
			}
			createInfo.EnabledLayerNames = append(createInfo.EnabledLayerNames, layer)
		}
		createInfo.Next = a.debugMessengerOptions()
	}

	a.instance, _, err = a.loader.CreateInstance(nil, createInfo)
	if err != nil {
		return errors.Wrap(err, "failed to create the vulkan instance")
	}
	return nil
}

func (a *app) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    a.logValidation,
	}
}

func (a *app) logValidation(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	a.logger.Warn("validation", "type", msgType.String(), "severity", severity.String(), "message", data.Message)
	return false
}

func (a *app) setupDebugMessenger() error {
	if !a.enableValidation {
		return nil
	}

	debugLoader := ext_debug_utils.CreateExtensionFromInstance(a.instance)
	var err error
	a.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(a.instance, nil, a.debugMessengerOptions())
	if err != nil {
		return errors.Wrap(err, "failed to create the debug messenger")
	}
	return nil
}

func (a *app) createSurface() error {
	surfaceLoader := khr_surface.CreateExtensionFromInstance(a.instance)

	surface, err := vkng_sdl2.CreateSurface(a.instance, surfaceLoader, a.window)
	if err != nil {
		return errors.Wrap(err, "failed to create the window surface")
	}
	a.surface = surface
	return nil
}

func (a *app) pickPhysicalDevice() error {
	physicalDevices, _, err := a.instance.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "failed to enumerate physical devices")
	}

	for _, device := range physicalDevices {
		if a.isDeviceSuitable(device) {
			a.physicalDevice = device
			break
		}
	}
	if a.physicalDevice == nil {
		return errors.New("no physical device supports the required queues and extensions")
	}

	a.families, err = a.findQueueFamilies(a.physicalDevice)
	return err
}

func (a *app) isDeviceSuitable(device core1_0.PhysicalDevice) bool {
	indices, err := a.findQueueFamilies(device)
	if err != nil || !indices.IsComplete() {
		return false
	}
	return a.checkDeviceExtensionSupport(device)
}

func (a *app) checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := device.EnumerateDeviceExtensionProperties()
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		if _, hasExtension := extensions[extension]; !hasExtension {
			return false
		}
	}
	return true
}

func (a *app) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilyIndices, error) {
	indices := queueFamilyIndices{}
	queueFamilies := device.QueueFamilyProperties()

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0 {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = queueFamilyIdx
		}

		supported, _, err := a.surface.PhysicalDeviceSurfaceSupport(device, queueFamilyIdx)
		if err != nil {
			return indices, err
		}
		if supported {
			indices.PresentFamily = new(int)
			*indices.PresentFamily = queueFamilyIdx
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices, nil
}

func (a *app) createLogicalDevice() error {
	uniqueQueueFamilies := []int{*a.families.GraphicsFamily}
	if uniqueQueueFamilies[0] != *a.families.PresentFamily {
		uniqueQueueFamilies = append(uniqueQueueFamilies, *a.families.PresentFamily)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{1},
		})
	}

	extensionNames := append([]string{}, deviceExtensions...)

	extensions, _, err := a.physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return errors.Wrap(err, "failed to enumerate device extensions")
	}
	if _, supported := extensions[khr_portability_subset.ExtensionName]; supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	a.device, _, err = a.physicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueFamilyOptions,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create the logical device")
	}

	a.graphicsQueue = a.device.GetQueue(*a.families.GraphicsFamily, 0)
	return nil
}

func (a *app) initEngine() error {
	width, height := a.window.VulkanGetDrawableSize()

	var err error
	a.engine, err = engine.New(engine.CreateOptions{
		Logger:              a.logger,
		Instance:            a.instance,
		PhysicalDevice:      a.physicalDevice,
		Device:              a.device,
		Surface:             a.surface,
		GraphicsQueue:       a.graphicsQueue,
		GraphicsQueueFamily: *a.families.GraphicsFamily,
		PresentQueueFamily:  *a.families.PresentFamily,
		Width:               int(width),
		Height:              int(height),
		PresentMode:         khr_surface.PresentModeFIFO,
	})
	if err != nil {
		return err
	}

	err = a.engine.InitPipelines(engine.PipelineShaderPaths{
		BackgroundCompute: filepath.Join(a.shaderDir, "gradient.comp.spv"),
		MeshVertex:        filepath.Join(a.shaderDir, "mesh.vert.spv"),
		MeshFragment:      filepath.Join(a.shaderDir, "mesh.frag.spv"),
	})
	if err != nil {
		// The engine still clears and presents without pipelines.
		a.logger.Warn("pipelines unavailable, rendering background only", "error", err)
	}

	a.engine.SetBackgroundPushConstants(engine.ComputePushConstants{
		Data1: vkngmath.Vec4[float32]{X: 0.1, Y: 0.2, Z: 0.6, W: 1},
		Data2: vkngmath.Vec4[float32]{X: 0, Y: 0, Z: 0.2, W: 1},
	})
	a.engine.SetDrawCallback(a.drawScene)
	return nil
}

func (a *app) initScene() error {
	a.graph = scene.NewGraph(a.logger)
	a.camera = scene.NewCamera()
	a.camera.Position = vkngmath.Vec3[float32]{Z: -5}

	mesh, err := gpu.UploadMesh(a.engine, demoIndices(), demoVertices())
	if err != nil {
		return err
	}
	a.mesh = mesh

	root, err := a.graph.Add("root", scene.NoNode)
	if err != nil {
		return err
	}
	spinner, err := a.graph.Add("spinner", root)
	if err != nil {
		return err
	}
	a.graph.SetMesh(spinner, mesh)
	return nil
}

func demoVertices() []gpu.Vertex {
	return []gpu.Vertex{
		{Position: vkngmath.Vec3[float32]{X: -1, Y: -1}, Color: vkngmath.Vec4[float32]{X: 1, W: 1}},
		{Position: vkngmath.Vec3[float32]{X: 1, Y: -1}, Color: vkngmath.Vec4[float32]{Y: 1, W: 1}},
		{Position: vkngmath.Vec3[float32]{X: 1, Y: 1}, Color: vkngmath.Vec4[float32]{Z: 1, W: 1}},
		{Position: vkngmath.Vec3[float32]{X: -1, Y: 1}, Color: vkngmath.Vec4[float32]{X: 1, Y: 1, W: 1}},
	}
}

func demoIndices() []uint32 {
	return []uint32{0, 1, 2, 2, 3, 0}
}

func (a *app) pumpEvents() (bool, error) {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			return true, nil
		case *sdl.WindowEvent:
			switch e.Event {
			case sdl.WINDOWEVENT_MINIMIZED:
				a.engine.SetMinimized(true)
			case sdl.WINDOWEVENT_RESTORED:
				a.engine.SetMinimized(false)
			case sdl.WINDOWEVENT_RESIZED:
				width, height := a.window.VulkanGetDrawableSize()
				if width > 0 && height > 0 {
					a.engine.SetMinimized(false)
					a.engine.RequestResize(int(width), int(height))
				} else {
					a.engine.SetMinimized(true)
				}
			}
		}
	}
	return false, nil
}

func (a *app) update(deltaSeconds float32) error {
	a.camera.Update(deltaSeconds)

	a.spinAngle += deltaSeconds
	if spinner, ok := a.graph.Lookup("spinner"); ok {
		var local vkngmath.Mat4x4[float32]
		local.SetRotationZ(float64(a.spinAngle))
		a.graph.SetLocalTransform(spinner, local)
	}
	a.graph.UpdateTransforms()

	width, height := a.window.VulkanGetDrawableSize()
	aspect := float32(width) / float32(height)

	view := a.camera.ViewMatrix()
	proj := a.camera.ProjectionMatrix(aspect)
	viewProj := proj
	viewProj.MultMat4x4(&view)

	a.engine.SetSceneData(engine.GPUSceneData{
		View:              view,
		Proj:              proj,
		ViewProj:          viewProj,
		AmbientColor:      vkngmath.Vec4[float32]{X: 0.1, Y: 0.1, Z: 0.1, W: 1},
		SunlightDirection: vkngmath.Vec4[float32]{X: 0.3, Y: 1, Z: 0.3, W: 1},
		SunlightColor:     vkngmath.Vec4[float32]{X: 1, Y: 1, Z: 1, W: 1},
	})
	return nil
}

func (a *app) drawScene(ctx engine.DrawContext) error {
	for _, renderable := range a.graph.Renderables() {
		constants, err := gpu.Bytes(renderable.World)
		if err != nil {
			return err
		}

		ctx.Cmd.CmdPushConstants(ctx.Layout, core1_0.StageVertex, 0, constants)
		ctx.Cmd.CmdBindVertexBuffers(0, []core1_0.Buffer{renderable.Mesh.VertexBuffer.Buffer}, []int{0})
		ctx.Cmd.CmdBindIndexBuffer(renderable.Mesh.IndexBuffer.Buffer, 0, core1_0.IndexTypeUInt32)
		ctx.Cmd.CmdDrawIndexed(renderable.Mesh.IndexCount, 1, 0, 0, 0)

		ctx.Stats.DrawcallCount++
		ctx.Stats.TriangleCount += renderable.Mesh.IndexCount / 3
	}
	return nil
}

func (a *app) cleanup() {
	if a.engine != nil {
		if a.mesh != nil {
			a.mesh.Destroy(a.engine)
		}
		a.engine.Destroy()
	}
	if a.device != nil {
		a.device.Destroy(nil)
	}
	if a.debugMessenger != nil {
		a.debugMessenger.Destroy(nil)
	}
	if a.surface != nil {
		a.surface.Destroy(nil)
	}
	if a.instance != nil {
		a.instance.Destroy(nil)
	}
	if a.window != nil {
		_ = a.window.Destroy()
	}
	sdl.Quit()
}

func main() {
	validation := flag.Bool("validation", false, "enable the vulkan validation layer")
	shaderDir := flag.String("shaders", "shaders", "directory holding compiled SPIR-V shaders")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	a := &app{
		logger:           logger,
		enableValidation: *validation,
		shaderDir:        *shaderDir,
	}
	if err := a.run(); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}
