package engine

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/corydouthat/acid-vulkan/descriptors"
	"github.com/corydouthat/acid-vulkan/gpu"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
)

const frameTimeout = time.Second

// DrawTick renders and presents a single frame. A stale swapchain reported
// during acquire or present latches a resize request and skips the frame;
// the caller services the request before the next tick.
func (e *Engine) DrawTick() error {
	frame := e.currentFrame()

	_, err := e.device.WaitForFences(true, frameTimeout, []core1_0.Fence{frame.renderFence})
	if err != nil {
		return errors.Wrap(err, "timed out waiting for the frame fence")
	}

	// The GPU is done with this slot, so resources deferred from its last
	// use can go, and its descriptor pools can be recycled wholesale.
	frame.deleteQueue.Flush()
	if err = frame.descriptors.ClearPools(); err != nil {
		return err
	}

	imageIndex, res, err := e.swapchain.AcquireNextImage(frameTimeout, frame.swapchainSemaphore)
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		e.resizeRequested = true
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to acquire a swapchain image")
	}

	if _, err = e.device.ResetFences([]core1_0.Fence{frame.renderFence}); err != nil {
		return errors.Wrap(err, "failed to reset the frame fence")
	}

	swapExtent := e.swapchain.Extent()
	e.drawExtent = core1_0.Extent2D{
		Width:  int(float32(min(swapExtent.Width, e.drawImage.Extent.Width)) * e.renderScale),
		Height: int(float32(min(swapExtent.Height, e.drawImage.Extent.Height)) * e.renderScale),
	}

	cmd := frame.commandBuffer
	if _, err = cmd.Reset(0); err != nil {
		return errors.Wrap(err, "failed to reset the frame command buffer")
	}
	if _, err = cmd.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	}); err != nil {
		return errors.Wrap(err, "failed to begin the frame command buffer")
	}

	transitionImage(cmd, e.drawImage.Image, core1_0.ImageAspectColor,
		core1_0.ImageLayoutUndefined, core1_0.ImageLayoutGeneral)

	if err = e.drawBackground(cmd); err != nil {
		return err
	}

	drawImageLayout := core1_0.ImageLayoutGeneral
	if e.meshPipeline != nil {
		if err = e.drawGeometry(cmd, frame); err != nil {
			return err
		}
		// The geometry render pass leaves the draw image in color
		// attachment layout.
		drawImageLayout = core1_0.ImageLayoutColorAttachmentOptimal
	}

	transitionImage(cmd, e.drawImage.Image, core1_0.ImageAspectColor,
		drawImageLayout, core1_0.ImageLayoutTransferSrcOptimal)

	swapImage := e.swapchain.Image(imageIndex)
	transitionImage(cmd, swapImage, core1_0.ImageAspectColor,
		core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)

	copyImageToImage(cmd, e.drawImage.Image, swapImage, e.drawExtent, swapExtent)

	transitionImage(cmd, swapImage, core1_0.ImageAspectColor,
		core1_0.ImageLayoutTransferDstOptimal, khr_swapchain.ImageLayoutPresentSrc)

	if _, err = cmd.End(); err != nil {
		return errors.Wrap(err, "failed to end the frame command buffer")
	}

	_, err = e.graphicsQueue.Submit(frame.renderFence, []core1_0.SubmitInfo{
		{
			WaitSemaphores:   []core1_0.Semaphore{frame.swapchainSemaphore},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{cmd},
			SignalSemaphores: []core1_0.Semaphore{frame.renderSemaphore},
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to submit the frame command buffer")
	}

	res, err = e.swapchain.Present(e.graphicsQueue, imageIndex, frame.renderSemaphore)
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		e.resizeRequested = true
	} else if err != nil {
		return errors.Wrap(err, "failed to present a swapchain image")
	}

	e.frameNumber++
	return nil
}

func (e *Engine) drawBackground(cmd core1_0.CommandBuffer) error {
	if e.backgroundPipeline == nil {
		cmd.CmdClearColorImage(e.drawImage.Image, core1_0.ImageLayoutGeneral,
			core1_0.ClearValueFloat{0, 0, 0.2, 1},
			[]core1_0.ImageSubresourceRange{
				{
					AspectMask: core1_0.ImageAspectColor,
					LevelCount: 1,
					LayerCount: 1,
				},
			})
		return nil
	}

	cmd.CmdBindPipeline(core1_0.PipelineBindPointCompute, e.backgroundPipeline.Handle())
	cmd.CmdBindDescriptorSets(core1_0.PipelineBindPointCompute, e.backgroundPipeline.Layout(),
		0, []core1_0.DescriptorSet{e.drawImageDescriptors}, nil)

	constants, err := gpu.Bytes(e.backgroundPushConstants)
	if err != nil {
		return err
	}
	cmd.CmdPushConstants(e.backgroundPipeline.Layout(), core1_0.StageCompute, 0, constants)

	cmd.CmdDispatch(
		(e.drawExtent.Width+15)/16,
		(e.drawExtent.Height+15)/16,
		1)
	return nil
}

func (e *Engine) drawGeometry(cmd core1_0.CommandBuffer, frame *FrameData) error {
	sceneBuffer, err := e.CreateBuffer(binary.Size(e.sceneData),
		core1_0.BufferUsageUniformBuffer,
		vam.MemoryUsageAuto,
		vam.AllocationCreateMapped|vam.AllocationCreateHostAccessSequentialWrite)
	if err != nil {
		return errors.Wrap(err, "failed to create the frame scene data buffer")
	}
	frame.deleteQueue.Push(func() {
		e.DestroyBuffer(sceneBuffer)
	})

	if err = gpu.WriteMapped(sceneBuffer.Mapped, 0, e.sceneData); err != nil {
		return err
	}

	sceneSet, err := frame.descriptors.Allocate(e.device, e.sceneDataLayout)
	if err != nil {
		return err
	}

	var writer descriptors.Writer
	writer.WriteBuffer(0, sceneBuffer.Buffer, binary.Size(e.sceneData), 0, core1_0.DescriptorTypeUniformBuffer)
	if err = writer.UpdateSet(e.device, sceneSet); err != nil {
		return err
	}

	err = cmd.CmdBeginRenderPass(core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  e.meshPipeline.RenderPass(),
		Framebuffer: e.framebuffer,
		RenderArea: core1_0.Rect2D{
			Extent: e.drawExtent,
		},
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat{0, 0, 0, 0},
			// Reversed depth clears to the far plane at 0.
			core1_0.ClearValueDepthStencil{Depth: 0},
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to begin the geometry render pass")
	}

	cmd.CmdBindPipeline(core1_0.PipelineBindPointGraphics, e.meshPipeline.Handle())
	cmd.CmdSetViewport([]core1_0.Viewport{
		{
			Width:    float32(e.drawExtent.Width),
			Height:   float32(e.drawExtent.Height),
			MinDepth: 0,
			MaxDepth: 1,
		},
	})
	cmd.CmdSetScissor([]core1_0.Rect2D{
		{Extent: e.drawExtent},
	})
	cmd.CmdBindDescriptorSets(core1_0.PipelineBindPointGraphics, e.meshPipeline.Layout(),
		0, []core1_0.DescriptorSet{sceneSet}, nil)

	e.stats.TriangleCount = 0
	e.stats.DrawcallCount = 0
	if e.drawCallback != nil {
		drawStart := hrtime.Now()
		err = e.drawCallback(DrawContext{
			Cmd:              cmd,
			Layout:           e.meshPipeline.Layout(),
			SceneDescriptors: sceneSet,
			Extent:           e.drawExtent,
			Stats:            &e.stats,
		})
		if err != nil {
			return err
		}
		e.stats.MeshDrawTime = float32(hrtime.Since(drawStart).Seconds() * 1000)
	}

	cmd.CmdEndRenderPass()
	return nil
}

// transitionImage records a full-subresource layout transition. The barrier
// is deliberately heavyweight, blocking all commands on both sides.
func transitionImage(cmd core1_0.CommandBuffer, image core1_0.Image, aspect core1_0.ImageAspectFlags, oldLayout, newLayout core1_0.ImageLayout) {
	cmd.CmdPipelineBarrier(
		core1_0.PipelineStageAllCommands, core1_0.PipelineStageAllCommands,
		0, nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				SrcAccessMask:       core1_0.AccessMemoryWrite,
				DstAccessMask:       core1_0.AccessMemoryWrite | core1_0.AccessMemoryRead,
				OldLayout:           oldLayout,
				NewLayout:           newLayout,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Image:               image,
				SubresourceRange: core1_0.ImageSubresourceRange{
					AspectMask: aspect,
					LevelCount: 1,
					LayerCount: 1,
				},
			},
		})
}

// copyImageToImage blits the source region onto the full destination,
// rescaling as needed.
func copyImageToImage(cmd core1_0.CommandBuffer, source, dest core1_0.Image, srcExtent, dstExtent core1_0.Extent2D) {
	cmd.CmdBlitImage(source, core1_0.ImageLayoutTransferSrcOptimal,
		dest, core1_0.ImageLayoutTransferDstOptimal,
		[]core1_0.ImageBlit{
			{
				SrcSubresource: core1_0.ImageSubresourceLayers{
					AspectMask: core1_0.ImageAspectColor,
					LayerCount: 1,
				},
				SrcOffsets: [2]core1_0.Offset3D{
					{},
					{X: srcExtent.Width, Y: srcExtent.Height, Z: 1},
				},
				DstSubresource: core1_0.ImageSubresourceLayers{
					AspectMask: core1_0.ImageAspectColor,
					LayerCount: 1,
				},
				DstOffsets: [2]core1_0.Offset3D{
					{},
					{X: dstExtent.Width, Y: dstExtent.Height, Z: 1},
				},
			},
		},
		core1_0.FilterLinear)
}
