// Package gpu holds the allocated-resource types and the narrow provider
// interface shared between the engine and scene-level code. Scene, mesh,
// and material code depends on ResourceProvider rather than on the engine
// type itself.
package gpu

import (
	"unsafe"

	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Buffer is a GPU buffer together with its backing allocation. Mapped is
// non-nil for host-visible buffers requested with vam.AllocationCreateMapped.
// The creator owns the buffer and must release it through the provider's
// DestroyBuffer.
type Buffer struct {
	Buffer     core1_0.Buffer
	Allocation vam.Allocation
	Mapped     unsafe.Pointer
}

// Image is a GPU image, its default view, and its backing allocation. The
// creator owns the image and must release it through the provider's
// DestroyImage.
type Image struct {
	Image      core1_0.Image
	View       core1_0.ImageView
	Allocation vam.Allocation
	Extent     core1_0.Extent3D
	Format     core1_0.Format
}

// BufferProvider is the minimal capability surface for staged buffer
// uploads: buffer allocation plus synchronous one-off command submission.
type BufferProvider interface {
	CreateBuffer(size int, usage core1_0.BufferUsageFlags, memoryUsage vam.MemoryUsage, flags vam.AllocationCreateFlags) (*Buffer, error)
	DestroyBuffer(buffer *Buffer)
	ImmediateSubmit(record func(cmd core1_0.CommandBuffer) error) error
}

// ResourceProvider adds image allocation on top of BufferProvider. The
// engine implements it; consumers should depend on the narrowest interface
// that serves them.
type ResourceProvider interface {
	BufferProvider
	CreateImage(extent core1_0.Extent3D, format core1_0.Format, usage core1_0.ImageUsageFlags) (*Image, error)
	DestroyImage(image *Image)
}
