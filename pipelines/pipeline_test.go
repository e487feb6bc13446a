package pipelines

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestCreateLayoutIsOneShot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	setLayout := mocks.EasyMockDescriptorSetLayout(ctrl)
	layout := mocks.EasyMockPipelineLayout(ctrl)
	device.EXPECT().CreatePipelineLayout(gomock.Any(), core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{setLayout},
		PushConstantRanges: []core1_0.PushConstantRange{
			{
				StageFlags: core1_0.StageCompute,
				Offset:     0,
				Size:       16,
			},
		},
	}).Return(layout, core1_0.VKSuccess, nil)

	pipeline := NewPipeline(testLogger())
	pipeline.AddDescriptorSetLayout(setLayout)
	pipeline.AddPushConstantRange(core1_0.PushConstantRange{
		StageFlags: core1_0.StageCompute,
		Offset:     0,
		Size:       16,
	})

	created, err := pipeline.CreateLayout(device)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, layout, pipeline.Layout())

	// A second call reports false and creates nothing
	created, err = pipeline.CreateLayout(device)
	require.NoError(t, err)
	require.False(t, created)
}

func TestCreatePipelineRequiresLayout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	pipeline := NewPipeline(testLogger())
	_, err := pipeline.CreatePipeline(device)
	require.Error(t, err)
}

func TestCreateComputePipelineDestroysShaderModule(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	layout := mocks.EasyMockPipelineLayout(ctrl)
	device.EXPECT().CreatePipelineLayout(gomock.Any(), gomock.Any()).Return(layout, core1_0.VKSuccess, nil)

	shader := mocks.EasyMockShaderModule(ctrl)
	handle := mocks.EasyMockPipeline(ctrl)
	device.EXPECT().CreateComputePipelines(gomock.Any(), gomock.Any(), []core1_0.ComputePipelineCreateInfo{
		{
			Stage: core1_0.PipelineShaderStageCreateInfo{
				Stage:  core1_0.StageCompute,
				Module: shader,
				Name:   "main",
			},
			Layout:            layout,
			BasePipelineIndex: -1,
		},
	}).Return([]core1_0.Pipeline{handle}, core1_0.VKSuccess, nil)
	shader.EXPECT().Destroy(gomock.Any())

	pipeline := NewPipeline(testLogger())
	pipeline.SetComputeShader(shader)

	created, err := pipeline.CreateLayout(device)
	require.NoError(t, err)
	require.True(t, created)

	created, err = pipeline.CreatePipeline(device)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, handle, pipeline.Handle())

	// One-shot: nothing new is created on a second call
	created, err = pipeline.CreatePipeline(device)
	require.NoError(t, err)
	require.False(t, created)
}

func TestCreateGraphicsPipelineBuildsRenderPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	layout := mocks.EasyMockPipelineLayout(ctrl)
	device.EXPECT().CreatePipelineLayout(gomock.Any(), gomock.Any()).Return(layout, core1_0.VKSuccess, nil)

	vertex := mocks.EasyMockShaderModule(ctrl)
	fragment := mocks.EasyMockShaderModule(ctrl)
	renderPass := mocks.EasyMockRenderPass(ctrl)
	handle := mocks.EasyMockPipeline(ctrl)

	device.EXPECT().CreateRenderPass(gomock.Any(), gomock.Any()).Return(renderPass, core1_0.VKSuccess, nil)
	device.EXPECT().CreateGraphicsPipelines(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]core1_0.Pipeline{handle}, core1_0.VKSuccess, nil)
	vertex.EXPECT().Destroy(gomock.Any())
	fragment.EXPECT().Destroy(gomock.Any())

	pipeline := NewPipeline(testLogger())
	pipeline.SetShaders(vertex, fragment)
	pipeline.SetInputTopology(core1_0.PrimitiveTopologyTriangleList)
	pipeline.SetPolygonMode(core1_0.PolygonModeFill)
	pipeline.SetCullMode(core1_0.CullModeBack, core1_0.FrontFaceCounterClockwise)
	pipeline.SetMultisamplingNone()
	pipeline.DisableBlending()
	pipeline.SetColorAttachmentFormat(core1_0.FormatR16G16B16A16SignedFloat)
	pipeline.SetDepthFormat(core1_0.FormatD32SignedFloat)
	pipeline.EnableDepthTest(true, core1_0.CompareOpGreaterOrEqual)

	created, err := pipeline.CreateLayout(device)
	require.NoError(t, err)
	require.True(t, created)

	created, err = pipeline.CreatePipeline(device)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, handle, pipeline.Handle())
	require.Equal(t, renderPass, pipeline.RenderPass())
}

func TestGraphicsPipelineRequiresColorFormat(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	layout := mocks.EasyMockPipelineLayout(ctrl)
	device.EXPECT().CreatePipelineLayout(gomock.Any(), gomock.Any()).Return(layout, core1_0.VKSuccess, nil)

	vertex := mocks.EasyMockShaderModule(ctrl)
	fragment := mocks.EasyMockShaderModule(ctrl)

	pipeline := NewPipeline(testLogger())
	pipeline.SetShaders(vertex, fragment)

	_, err := pipeline.CreateLayout(device)
	require.NoError(t, err)

	_, err = pipeline.CreatePipeline(device)
	require.Error(t, err)
}

func TestDestroyReleasesHandles(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	layout := mocks.EasyMockPipelineLayout(ctrl)
	device.EXPECT().CreatePipelineLayout(gomock.Any(), gomock.Any()).Return(layout, core1_0.VKSuccess, nil)

	shader := mocks.EasyMockShaderModule(ctrl)
	handle := mocks.EasyMockPipeline(ctrl)
	device.EXPECT().CreateComputePipelines(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]core1_0.Pipeline{handle}, core1_0.VKSuccess, nil)
	shader.EXPECT().Destroy(gomock.Any())

	pipeline := NewPipeline(testLogger())
	pipeline.SetComputeShader(shader)

	_, err := pipeline.CreateLayout(device)
	require.NoError(t, err)
	_, err = pipeline.CreatePipeline(device)
	require.NoError(t, err)

	handle.EXPECT().Destroy(gomock.Any())
	layout.EXPECT().Destroy(gomock.Any())

	pipeline.Destroy()
	require.Nil(t, pipeline.Handle())
	require.Nil(t, pipeline.Layout())
}

func TestBytesToBytecode(t *testing.T) {
	code, err := bytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	require.Equal(t, []uint32{0x07230203, 0x00010000}, code)

	_, err = bytesToBytecode([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)

	_, err = bytesToBytecode(nil)
	require.Error(t, err)
}
