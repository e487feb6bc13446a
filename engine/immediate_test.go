package engine

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"go.uber.org/mock/gomock"
)

type immediateRig struct {
	engine *Engine
	device *mocks.MockDevice
	queue  *mocks.MockQueue
	cmd    *mocks.MockCommandBuffer
	fence  *mocks.MockFence
}

func newImmediateRig(t *testing.T, ctrl *gomock.Controller) *immediateRig {
	t.Helper()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})
	queue := mocks.NewMockQueue(ctrl)
	cmd := mocks.NewMockCommandBuffer(ctrl)
	fence := mocks.NewMockFence(ctrl)

	return &immediateRig{
		engine: &Engine{
			logger:           testLogger(),
			device:           device,
			graphicsQueue:    queue,
			immFence:         fence,
			immCommandBuffer: cmd,
		},
		device: device,
		queue:  queue,
		cmd:    cmd,
		fence:  fence,
	}
}

func TestImmediateSubmitUsesDedicatedObjects(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rig := newImmediateRig(t, ctrl)

	rig.device.EXPECT().ResetFences([]core1_0.Fence{rig.fence}).Return(core1_0.VKSuccess, nil)
	rig.cmd.EXPECT().Reset(core1_0.CommandBufferResetFlags(0)).Return(core1_0.VKSuccess, nil)
	rig.cmd.EXPECT().Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	}).Return(core1_0.VKSuccess, nil)
	rig.cmd.EXPECT().End().Return(core1_0.VKSuccess, nil)
	rig.queue.EXPECT().Submit(rig.fence, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{rig.cmd},
		},
	}).Return(core1_0.VKSuccess, nil)
	rig.device.EXPECT().WaitForFences(true, immediateSubmitTimeout, []core1_0.Fence{rig.fence}).
		Return(core1_0.VKSuccess, nil)

	var recorded core1_0.CommandBuffer
	err := rig.engine.ImmediateSubmit(func(cmd core1_0.CommandBuffer) error {
		recorded = cmd
		return nil
	})
	require.NoError(t, err)
	require.Same(t, rig.cmd, recorded)
}

func TestImmediateSubmitPropagatesRecordErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rig := newImmediateRig(t, ctrl)

	rig.device.EXPECT().ResetFences([]core1_0.Fence{rig.fence}).Return(core1_0.VKSuccess, nil)
	rig.cmd.EXPECT().Reset(core1_0.CommandBufferResetFlags(0)).Return(core1_0.VKSuccess, nil)
	rig.cmd.EXPECT().Begin(gomock.Any()).Return(core1_0.VKSuccess, nil)

	recordErr := errors.New("a transfer went wrong")
	err := rig.engine.ImmediateSubmit(func(cmd core1_0.CommandBuffer) error {
		return recordErr
	})
	require.ErrorIs(t, err, recordErr)
}
