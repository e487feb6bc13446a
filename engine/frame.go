package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/corydouthat/acid-vulkan/descriptors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// FrameData is one slot of the frame ring: the command allocation, the
// synchronization objects, and the per-frame descriptor and deletion state
// for a single in-flight frame.
type FrameData struct {
	commandPool   core1_0.CommandPool
	commandBuffer core1_0.CommandBuffer

	swapchainSemaphore core1_0.Semaphore
	renderSemaphore    core1_0.Semaphore
	renderFence        core1_0.Fence

	descriptors *descriptors.Allocator
	deleteQueue DeleteQueue
}

// CommandBuffer exposes the frame's primary command buffer.
func (f *FrameData) CommandBuffer() core1_0.CommandBuffer {
	return f.commandBuffer
}

// DeleteQueue exposes the frame's deferred deletion queue. Deleters pushed
// here run once the GPU has finished with this frame slot.
func (f *FrameData) DeleteQueue() *DeleteQueue {
	return &f.deleteQueue
}

// Descriptors exposes the frame's descriptor allocator. Sets allocated from
// it are valid until this frame slot comes around again.
func (f *FrameData) Descriptors() *descriptors.Allocator {
	return f.descriptors
}

func (f *FrameData) initCommands(device core1_0.Device, queueFamily int) error {
	pool, _, err := device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: queueFamily,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create a frame command pool")
	}
	f.commandPool = pool

	buffers, _, err := device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return errors.Wrap(err, "failed to allocate a frame command buffer")
	}
	f.commandBuffer = buffers[0]

	return nil
}

func (f *FrameData) initSync(device core1_0.Device) error {
	// The render fence starts signaled so the first wait on this slot
	// passes immediately.
	fence, _, err := device.CreateFence(nil, core1_0.FenceCreateInfo{
		Flags: core1_0.FenceCreateSignaled,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create a frame render fence")
	}
	f.renderFence = fence

	f.swapchainSemaphore, _, err = device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return errors.Wrap(err, "failed to create a frame swapchain semaphore")
	}

	f.renderSemaphore, _, err = device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return errors.Wrap(err, "failed to create a frame render semaphore")
	}

	return nil
}

func (f *FrameData) initDescriptors(logger *slog.Logger, device core1_0.Device) error {
	f.descriptors = descriptors.NewAllocator(logger)
	return f.descriptors.Init(device, 1000, []descriptors.PoolSizeRatio{
		{Type: core1_0.DescriptorTypeStorageImage, Ratio: 3},
		{Type: core1_0.DescriptorTypeStorageBuffer, Ratio: 3},
		{Type: core1_0.DescriptorTypeUniformBuffer, Ratio: 3},
		{Type: core1_0.DescriptorTypeCombinedImageSampler, Ratio: 4},
	})
}

func (f *FrameData) destroy(device core1_0.Device) {
	f.deleteQueue.Flush()

	if f.descriptors != nil {
		f.descriptors.DestroyPools()
		f.descriptors = nil
	}
	if f.renderSemaphore != nil {
		f.renderSemaphore.Destroy(nil)
		f.renderSemaphore = nil
	}
	if f.swapchainSemaphore != nil {
		f.swapchainSemaphore.Destroy(nil)
		f.swapchainSemaphore = nil
	}
	if f.renderFence != nil {
		f.renderFence.Destroy(nil)
		f.renderFence = nil
	}
	if f.commandPool != nil {
		f.commandPool.Destroy(nil)
		f.commandPool = nil
		f.commandBuffer = nil
	}
}
