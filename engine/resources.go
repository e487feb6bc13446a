package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/corydouthat/acid-vulkan/gpu"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// CreateBuffer creates a buffer and binds vam-managed memory to it. When
// flags includes vam.AllocationCreateMapped the returned buffer carries a
// persistent host mapping.
func (e *Engine) CreateBuffer(size int, usage core1_0.BufferUsageFlags, memoryUsage vam.MemoryUsage, flags vam.AllocationCreateFlags) (*gpu.Buffer, error) {
	buffer, _, err := e.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create a buffer")
	}

	out := &gpu.Buffer{Buffer: buffer}
	_, err = e.allocator.AllocateMemoryForBuffer(buffer, vam.AllocationCreateInfo{
		Flags: flags,
		Usage: memoryUsage,
	}, &out.Allocation)
	if err != nil {
		buffer.Destroy(nil)
		return nil, errors.Wrap(err, "failed to allocate memory for a buffer")
	}

	_, err = out.Allocation.BindBufferMemory(buffer)
	if err != nil {
		_ = out.Allocation.Free()
		buffer.Destroy(nil)
		return nil, errors.Wrap(err, "failed to bind memory to a buffer")
	}

	if flags&vam.AllocationCreateMapped != 0 {
		out.Mapped, _, err = out.Allocation.Map()
		if err != nil {
			_ = out.Allocation.Free()
			buffer.Destroy(nil)
			return nil, errors.Wrap(err, "failed to map a buffer allocation")
		}
	}

	return out, nil
}

// DestroyBuffer unmaps the buffer if needed and releases the buffer together
// with its allocation.
func (e *Engine) DestroyBuffer(buffer *gpu.Buffer) {
	if buffer == nil || buffer.Buffer == nil {
		return
	}

	if buffer.Mapped != nil {
		_ = buffer.Allocation.Unmap()
		buffer.Mapped = nil
	}

	err := buffer.Allocation.DestroyBuffer(buffer.Buffer)
	if err != nil {
		e.logger.Error("failed to destroy a buffer", slog.Any("error", err))
	}
	buffer.Buffer = nil
}

// CreateImage creates a 2D optimal-tiling image in device-local memory along
// with a default view covering its full subresource range. The view aspect is
// inferred from the format.
func (e *Engine) CreateImage(extent core1_0.Extent3D, format core1_0.Format, usage core1_0.ImageUsageFlags) (*gpu.Image, error) {
	image, _, err := e.device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType:     core1_0.ImageType2D,
		Format:        format,
		Extent:        extent,
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       core1_0.Samples1,
		Tiling:        core1_0.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		InitialLayout: core1_0.ImageLayoutUndefined,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create an image")
	}

	out := &gpu.Image{
		Image:  image,
		Extent: extent,
		Format: format,
	}
	_, err = e.allocator.AllocateMemoryForImage(image, vam.AllocationCreateInfo{
		Usage:         vam.MemoryUsageAutoPreferDevice,
		RequiredFlags: core1_0.MemoryPropertyDeviceLocal,
	}, &out.Allocation)
	if err != nil {
		image.Destroy(nil)
		return nil, errors.Wrap(err, "failed to allocate memory for an image")
	}

	_, err = out.Allocation.BindImageMemory(image)
	if err != nil {
		_ = out.Allocation.Free()
		image.Destroy(nil)
		return nil, errors.Wrap(err, "failed to bind memory to an image")
	}

	aspect := core1_0.ImageAspectColor
	if format == core1_0.FormatD32SignedFloat {
		aspect = core1_0.ImageAspectDepth
	}

	out.View, _, err = e.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		_ = out.Allocation.DestroyImage(image)
		return nil, errors.Wrap(err, "failed to create an image view")
	}

	return out, nil
}

// DestroyImage releases the image's view, the image, and its allocation.
func (e *Engine) DestroyImage(image *gpu.Image) {
	if image == nil || image.Image == nil {
		return
	}

	if image.View != nil {
		image.View.Destroy(nil)
		image.View = nil
	}

	err := image.Allocation.DestroyImage(image.Image)
	if err != nil {
		e.logger.Error("failed to destroy an image", slog.Any("error", err))
	}
	image.Image = nil
}
