package pipelines

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// Type discriminates the kind of pipeline a Pipeline object will build.
type Type int

const (
	TypeNone Type = iota
	TypeCompute
	TypeGraphics
)

// Pipeline accumulates shader stages and fixed-function state through
// independent setters, then assembles them into a pipeline layout and a
// pipeline object. CreateLayout and CreatePipeline are one-shot: a second
// call reports false without touching the existing handles.
//
// Graphics pipelines own a single-subpass render pass built from the
// attachment formats set on the builder. The color attachment loads the
// existing image contents so an earlier pass can write beneath the geometry,
// and the depth attachment clears at the start of the pass.
//
// Shader modules are consumed inputs: CreatePipeline destroys them once the
// pipeline exists.
type Pipeline struct {
	logger *slog.Logger

	pipelineType Type

	layout     core1_0.PipelineLayout
	pipeline   core1_0.Pipeline
	renderPass core1_0.RenderPass

	setLayouts         []core1_0.DescriptorSetLayout
	pushConstantRanges []core1_0.PushConstantRange
	shaderStages       []core1_0.PipelineShaderStageCreateInfo
	shaderModules      []core1_0.ShaderModule

	colorAttachmentFormat core1_0.Format
	depthFormat           core1_0.Format

	vertexInput   core1_0.PipelineVertexInputStateCreateInfo
	inputAssembly core1_0.PipelineInputAssemblyStateCreateInfo
	rasterizer    core1_0.PipelineRasterizationStateCreateInfo
	multisampling core1_0.PipelineMultisampleStateCreateInfo
	depthStencil  core1_0.PipelineDepthStencilStateCreateInfo
	colorBlend    core1_0.PipelineColorBlendAttachmentState
}

// NewPipeline returns a builder with all fixed-function state at defaults.
func NewPipeline(logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		logger: logger,
	}
	p.ClearToDefaults()
	return p
}

// ClearToDefaults resets all accumulated state. It does not touch created
// handles - misuse after creation still trips the one-shot guards.
func (p *Pipeline) ClearToDefaults() {
	p.pipelineType = TypeNone
	p.setLayouts = nil
	p.pushConstantRanges = nil
	p.shaderStages = nil
	p.shaderModules = nil
	p.colorAttachmentFormat = core1_0.FormatUndefined
	p.depthFormat = core1_0.FormatUndefined
	p.vertexInput = core1_0.PipelineVertexInputStateCreateInfo{}
	p.inputAssembly = core1_0.PipelineInputAssemblyStateCreateInfo{}
	p.rasterizer = core1_0.PipelineRasterizationStateCreateInfo{}
	p.multisampling = core1_0.PipelineMultisampleStateCreateInfo{}
	p.depthStencil = core1_0.PipelineDepthStencilStateCreateInfo{}
	p.colorBlend = core1_0.PipelineColorBlendAttachmentState{}
}

// SetComputeShader makes this builder produce a compute pipeline running
// module's "main" entrypoint.
func (p *Pipeline) SetComputeShader(module core1_0.ShaderModule) {
	p.pipelineType = TypeCompute
	p.shaderStages = []core1_0.PipelineShaderStageCreateInfo{
		{
			Stage:  core1_0.StageCompute,
			Module: module,
			Name:   "main",
		},
	}
	p.shaderModules = []core1_0.ShaderModule{module}
}

// SetShaders makes this builder produce a graphics pipeline with the provided
// vertex and fragment stages.
func (p *Pipeline) SetShaders(vertex, fragment core1_0.ShaderModule) {
	p.pipelineType = TypeGraphics
	p.shaderStages = []core1_0.PipelineShaderStageCreateInfo{
		{
			Stage:  core1_0.StageVertex,
			Module: vertex,
			Name:   "main",
		},
		{
			Stage:  core1_0.StageFragment,
			Module: fragment,
			Name:   "main",
		},
	}
	p.shaderModules = []core1_0.ShaderModule{vertex, fragment}
}

// AddDescriptorSetLayout appends a set layout to the pipeline layout inputs.
func (p *Pipeline) AddDescriptorSetLayout(layout core1_0.DescriptorSetLayout) {
	p.setLayouts = append(p.setLayouts, layout)
}

// AddPushConstantRange appends a push constant range to the pipeline layout
// inputs.
func (p *Pipeline) AddPushConstantRange(r core1_0.PushConstantRange) {
	p.pushConstantRanges = append(p.pushConstantRanges, r)
}

// SetVertexInput describes the vertex buffer layout the pipeline consumes.
// Pipelines that pull geometry some other way leave this unset for an empty
// vertex input state.
func (p *Pipeline) SetVertexInput(bindings []core1_0.VertexInputBindingDescription, attributes []core1_0.VertexInputAttributeDescription) {
	p.vertexInput = core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   bindings,
		VertexAttributeDescriptions: attributes,
	}
}

func (p *Pipeline) SetInputTopology(topology core1_0.PrimitiveTopology) {
	p.inputAssembly.Topology = topology
	p.inputAssembly.PrimitiveRestartEnable = false
}

func (p *Pipeline) SetPolygonMode(mode core1_0.PolygonMode) {
	p.rasterizer.PolygonMode = mode
	p.rasterizer.LineWidth = 1
}

func (p *Pipeline) SetCullMode(cullMode core1_0.CullModeFlags, frontFace core1_0.FrontFace) {
	p.rasterizer.CullMode = cullMode
	p.rasterizer.FrontFace = frontFace
}

func (p *Pipeline) SetMultisamplingNone() {
	p.multisampling = core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1,
	}
}

func (p *Pipeline) DisableBlending() {
	p.colorBlend = core1_0.PipelineColorBlendAttachmentState{
		BlendEnabled:   false,
		ColorWriteMask: allColorComponents,
	}
}

// EnableBlendingAdditive blends source color scaled by source alpha on top of
// the unscaled destination.
func (p *Pipeline) EnableBlendingAdditive() {
	p.colorBlend = core1_0.PipelineColorBlendAttachmentState{
		BlendEnabled:        true,
		SrcColorBlendFactor: core1_0.BlendFactorSrcAlpha,
		DstColorBlendFactor: core1_0.BlendFactorOne,
		ColorBlendOp:        core1_0.BlendOpAdd,
		SrcAlphaBlendFactor: core1_0.BlendFactorOne,
		DstAlphaBlendFactor: core1_0.BlendFactorZero,
		AlphaBlendOp:        core1_0.BlendOpAdd,
		ColorWriteMask:      allColorComponents,
	}
}

// EnableBlendingAlphaBlend performs conventional transparency blending.
func (p *Pipeline) EnableBlendingAlphaBlend() {
	p.colorBlend = core1_0.PipelineColorBlendAttachmentState{
		BlendEnabled:        true,
		SrcColorBlendFactor: core1_0.BlendFactorSrcAlpha,
		DstColorBlendFactor: core1_0.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        core1_0.BlendOpAdd,
		SrcAlphaBlendFactor: core1_0.BlendFactorOne,
		DstAlphaBlendFactor: core1_0.BlendFactorZero,
		AlphaBlendOp:        core1_0.BlendOpAdd,
		ColorWriteMask:      allColorComponents,
	}
}

func (p *Pipeline) SetColorAttachmentFormat(format core1_0.Format) {
	p.colorAttachmentFormat = format
}

func (p *Pipeline) SetDepthFormat(format core1_0.Format) {
	p.depthFormat = format
}

// EnableDepthTest turns on depth testing with the provided write mask and
// comparison. Reversed-depth rendering passes CompareOpGreaterOrEqual here;
// the builder does not bake a comparison sense in.
func (p *Pipeline) EnableDepthTest(depthWriteEnable bool, op core1_0.CompareOp) {
	p.depthStencil.DepthTestEnable = true
	p.depthStencil.DepthWriteEnable = depthWriteEnable
	p.depthStencil.DepthCompareOp = op
	p.depthStencil.DepthBoundsTestEnable = false
	p.depthStencil.StencilTestEnable = false
	p.depthStencil.MinDepthBounds = 0
	p.depthStencil.MaxDepthBounds = 1
}

func (p *Pipeline) DisableDepthTest() {
	p.depthStencil = core1_0.PipelineDepthStencilStateCreateInfo{
		MinDepthBounds: 0,
		MaxDepthBounds: 1,
	}
}

// CreateLayout builds the pipeline layout from the accumulated set layouts
// and push constant ranges. Returns false with no error when the layout
// already exists.
func (p *Pipeline) CreateLayout(device core1_0.Device) (bool, error) {
	p.logger.Debug("Pipeline::CreateLayout")

	if p.layout != nil {
		return false, nil
	}

	layout, _, err := device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts:         p.setLayouts,
		PushConstantRanges: p.pushConstantRanges,
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to create a pipeline layout")
	}

	p.layout = layout
	return true, nil
}

// CreatePipeline builds the pipeline object from the accumulated state.
// CreateLayout must have succeeded first. Returns false with no error when
// the pipeline already exists. On success the shader modules handed to
// SetShaders or SetComputeShader are destroyed.
func (p *Pipeline) CreatePipeline(device core1_0.Device) (bool, error) {
	p.logger.Debug("Pipeline::CreatePipeline")

	if p.pipeline != nil {
		return false, nil
	}
	if p.layout == nil {
		return false, errors.New("attempted to create a pipeline before its layout")
	}

	var err error
	switch p.pipelineType {
	case TypeCompute:
		err = p.createComputePipeline(device)
	case TypeGraphics:
		err = p.createGraphicsPipeline(device)
	default:
		return false, errors.New("attempted to create a pipeline with no shaders set")
	}
	if err != nil {
		return false, err
	}

	p.DestroyShaderModules()
	return true, nil
}

func (p *Pipeline) createComputePipeline(device core1_0.Device) error {
	computePipelines, _, err := device.CreateComputePipelines(nil, nil, []core1_0.ComputePipelineCreateInfo{
		{
			Stage:             p.shaderStages[0],
			Layout:            p.layout,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create a compute pipeline")
	}

	p.pipeline = computePipelines[0]
	return nil
}

func (p *Pipeline) createGraphicsPipeline(device core1_0.Device) error {
	renderPass, err := p.createRenderPass(device)
	if err != nil {
		return err
	}

	// Viewport and scissor are dynamic so a window resize never rebuilds the
	// pipeline, matching how the draw loop sets them per frame.
	graphicsPipelines, _, err := device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages:           p.shaderStages,
			VertexInputState: &p.vertexInput,
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology:               p.inputAssembly.Topology,
				PrimitiveRestartEnable: p.inputAssembly.PrimitiveRestartEnable,
			},
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: make([]core1_0.Viewport, 1),
				Scissors:  make([]core1_0.Rect2D, 1),
			},
			RasterizationState: &p.rasterizer,
			MultisampleState:   &p.multisampling,
			DepthStencilState:  &p.depthStencil,
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOpEnabled: false,
				LogicOp:        core1_0.LogicOpCopy,
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					p.colorBlend,
				},
			},
			DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
				DynamicStates: []core1_0.DynamicState{
					core1_0.DynamicStateViewport,
					core1_0.DynamicStateScissor,
				},
			},
			Layout:            p.layout,
			RenderPass:        renderPass,
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		renderPass.Destroy(nil)
		return errors.Wrap(err, "failed to create a graphics pipeline")
	}

	p.renderPass = renderPass
	p.pipeline = graphicsPipelines[0]
	return nil
}

func (p *Pipeline) createRenderPass(device core1_0.Device) (core1_0.RenderPass, error) {
	if p.colorAttachmentFormat == core1_0.FormatUndefined {
		return nil, errors.New("attempted to create a graphics pipeline with no color attachment format")
	}

	attachments := []core1_0.AttachmentDescription{
		{
			Format:         p.colorAttachmentFormat,
			Samples:        core1_0.Samples1,
			LoadOp:         core1_0.AttachmentLoadOpLoad,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutGeneral,
			FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
		},
	}

	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
		ColorAttachments: []core1_0.AttachmentReference{
			{
				Attachment: 0,
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			},
		},
	}

	if p.depthFormat != core1_0.FormatUndefined {
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         p.depthFormat,
			Samples:        core1_0.Samples1,
			LoadOp:         core1_0.AttachmentLoadOpClear,
			StoreOp:        core1_0.AttachmentStoreOpDontCare,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: 1,
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	renderPass, _, err := device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: attachments,
		Subpasses:   []core1_0.SubpassDescription{subpass},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create a render pass for the pipeline")
	}

	return renderPass, nil
}

// DestroyShaderModules destroys any shader modules still held by the builder.
// CreatePipeline calls this on success; it is safe to call again.
func (p *Pipeline) DestroyShaderModules() {
	for _, module := range p.shaderModules {
		module.Destroy(nil)
	}
	p.shaderModules = nil
	p.shaderStages = nil
}

// Layout exposes the pipeline layout for descriptor binding and push
// constants.
func (p *Pipeline) Layout() core1_0.PipelineLayout {
	return p.layout
}

// Handle exposes the pipeline object for command buffer binding.
func (p *Pipeline) Handle() core1_0.Pipeline {
	return p.pipeline
}

// RenderPass exposes the render pass a graphics pipeline was built against,
// for framebuffer creation. Nil for compute pipelines.
func (p *Pipeline) RenderPass() core1_0.RenderPass {
	return p.renderPass
}

// Destroy releases the pipeline, layout, render pass, and any shader modules
// that never made it into a pipeline.
func (p *Pipeline) Destroy() {
	p.DestroyShaderModules()
	if p.pipeline != nil {
		p.pipeline.Destroy(nil)
		p.pipeline = nil
	}
	if p.renderPass != nil {
		p.renderPass.Destroy(nil)
		p.renderPass = nil
	}
	if p.layout != nil {
		p.layout.Destroy(nil)
		p.layout = nil
	}
}

const allColorComponents = core1_0.ColorComponentRed | core1_0.ColorComponentGreen |
	core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha
