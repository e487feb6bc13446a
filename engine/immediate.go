package engine

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
)

const immediateSubmitTimeout = 10 * time.Second

// ImmediateSubmit records commands through the dedicated immediate command
// buffer, submits them to the graphics queue, and blocks until the GPU
// finishes. It uses its own fence and command pool, so it can run between
// frames without disturbing the frame ring.
func (e *Engine) ImmediateSubmit(record func(cmd core1_0.CommandBuffer) error) error {
	e.logger.Debug("Engine::ImmediateSubmit")

	_, err := e.device.ResetFences([]core1_0.Fence{e.immFence})
	if err != nil {
		return errors.Wrap(err, "failed to reset the immediate-submit fence")
	}

	_, err = e.immCommandBuffer.Reset(0)
	if err != nil {
		return errors.Wrap(err, "failed to reset the immediate-submit command buffer")
	}

	_, err = e.immCommandBuffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "failed to begin the immediate-submit command buffer")
	}

	err = record(e.immCommandBuffer)
	if err != nil {
		return err
	}

	_, err = e.immCommandBuffer.End()
	if err != nil {
		return errors.Wrap(err, "failed to end the immediate-submit command buffer")
	}

	_, err = e.graphicsQueue.Submit(e.immFence, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{e.immCommandBuffer},
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to submit the immediate-submit command buffer")
	}

	_, err = e.device.WaitForFences(true, immediateSubmitTimeout, []core1_0.Fence{e.immFence})
	if err != nil {
		return errors.Wrap(err, "timed out waiting for an immediate submission")
	}

	return nil
}
