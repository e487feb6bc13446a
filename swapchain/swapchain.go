package swapchain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	"golang.org/x/exp/slog"
)

// CreateOptions configures presentation negotiation. The zero value requests
// a FIFO (strict vsync) chain of color-attachment/transfer-destination images
// shared by a single queue family.
type CreateOptions struct {
	Width  int
	Height int

	// PreferredFormat and PreferredColorSpace are used when the surface
	// offers them, otherwise the surface's first advertised format wins.
	PreferredFormat     core1_0.Format
	PreferredColorSpace khr_surface.ColorSpace

	// PresentMode is used when the surface offers it. FIFO is the fallback
	// since every conformant surface supports it.
	PresentMode khr_surface.PresentMode

	ImageUsage core1_0.ImageUsageFlags

	// GraphicsQueueFamily and PresentQueueFamily select concurrent sharing
	// when they differ.
	GraphicsQueueFamily int
	PresentQueueFamily  int
}

// Swapchain owns the presentable image chain: the swapchain object, its
// images, and one view per image. Resize and Destroy are stop-the-world
// operations and must not run while any frame that references the old images
// is still in flight.
type Swapchain struct {
	logger         *slog.Logger
	device         core1_0.Device
	physicalDevice core1_0.PhysicalDevice
	surface        khr_surface.Surface
	extension      khr_swapchain.Extension
	options        CreateOptions

	swapchain  khr_swapchain.Swapchain
	images     []core1_0.Image
	imageViews []core1_0.ImageView
	format     core1_0.Format
	extent     core1_0.Extent2D
}

// New negotiates a swapchain against the surface and creates the image chain
// at the requested extent (clamped to what the surface allows).
func New(logger *slog.Logger, device core1_0.Device, physicalDevice core1_0.PhysicalDevice, surface khr_surface.Surface, options CreateOptions) (*Swapchain, error) {
	return newWithExtension(logger, device, physicalDevice, surface, khr_swapchain.CreateExtensionFromDevice(device), options)
}

func newWithExtension(logger *slog.Logger, device core1_0.Device, physicalDevice core1_0.PhysicalDevice, surface khr_surface.Surface, extension khr_swapchain.Extension, options CreateOptions) (*Swapchain, error) {
	s := &Swapchain{
		logger:         logger,
		device:         device,
		physicalDevice: physicalDevice,
		surface:        surface,
		extension:      extension,
		options:        options,
	}

	if options.PreferredFormat == core1_0.FormatUndefined {
		s.options.PreferredFormat = core1_0.FormatB8G8R8A8UnsignedNormalized
		s.options.PreferredColorSpace = khr_surface.ColorSpaceSRGBNonlinear
	}
	if options.ImageUsage == 0 {
		s.options.ImageUsage = core1_0.ImageUsageColorAttachment | core1_0.ImageUsageTransferDst
	}

	err := s.create(options.Width, options.Height)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Swapchain) create(width, height int) error {
	s.logger.Debug("Swapchain::create")

	capabilities, _, err := s.surface.PhysicalDeviceSurfaceCapabilities(s.physicalDevice)
	if err != nil {
		return errors.Wrap(err, "failed to query surface capabilities")
	}

	formats, _, err := s.surface.PhysicalDeviceSurfaceFormats(s.physicalDevice)
	if err != nil {
		return errors.Wrap(err, "failed to query surface formats")
	}

	presentModes, _, err := s.surface.PhysicalDeviceSurfacePresentModes(s.physicalDevice)
	if err != nil {
		return errors.Wrap(err, "failed to query surface present modes")
	}

	surfaceFormat := s.chooseFormat(formats)
	presentMode := s.choosePresentMode(presentModes)
	extent := s.chooseExtent(capabilities, width, height)

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if s.options.GraphicsQueueFamily != s.options.PresentQueueFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = []int{s.options.GraphicsQueueFamily, s.options.PresentQueueFamily}
	}

	swapchain, _, err := s.extension.CreateSwapchain(s.device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: s.surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       s.options.ImageUsage,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create a swapchain")
	}

	images, _, err := swapchain.SwapchainImages()
	if err != nil {
		swapchain.Destroy(nil)
		return errors.Wrap(err, "failed to retrieve swapchain images")
	}

	imageViews := make([]core1_0.ImageView, 0, len(images))
	for _, image := range images {
		view, _, err := s.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			ViewType: core1_0.ImageViewType2D,
			Image:    image,
			Format:   surfaceFormat.Format,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask: core1_0.ImageAspectColor,
				LevelCount: 1,
				LayerCount: 1,
			},
		})
		if err != nil {
			for _, created := range imageViews {
				created.Destroy(nil)
			}
			swapchain.Destroy(nil)
			return errors.Wrap(err, "failed to create a swapchain image view")
		}
		imageViews = append(imageViews, view)
	}

	s.swapchain = swapchain
	s.images = images
	s.imageViews = imageViews
	s.format = surfaceFormat.Format
	s.extent = extent

	s.logger.Debug("Swapchain::create complete",
		slog.Int("imageCount", len(images)),
		slog.Int("width", extent.Width),
		slog.Int("height", extent.Height),
	)
	return nil
}

func (s *Swapchain) chooseFormat(formats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range formats {
		if format.Format == s.options.PreferredFormat && format.ColorSpace == s.options.PreferredColorSpace {
			return format
		}
	}

	return formats[0]
}

func (s *Swapchain) choosePresentMode(modes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, mode := range modes {
		if mode == s.options.PresentMode {
			return mode
		}
	}

	return khr_surface.PresentModeFIFO
}

func (s *Swapchain) chooseExtent(capabilities *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	if width < capabilities.MinImageExtent.Width {
		width = capabilities.MinImageExtent.Width
	}
	if width > capabilities.MaxImageExtent.Width {
		width = capabilities.MaxImageExtent.Width
	}
	if height < capabilities.MinImageExtent.Height {
		height = capabilities.MinImageExtent.Height
	}
	if height > capabilities.MaxImageExtent.Height {
		height = capabilities.MaxImageExtent.Height
	}

	return core1_0.Extent2D{Width: width, Height: height}
}

// AcquireNextImage hands back the index of the next presentable image,
// signaling semaphore once the image is actually ready for rendering. The
// VkResult is surfaced so callers can latch a rebuild on out-of-date or
// suboptimal chains.
func (s *Swapchain) AcquireNextImage(timeout time.Duration, semaphore core1_0.Semaphore) (int, common.VkResult, error) {
	return s.swapchain.AcquireNextImage(timeout, semaphore, nil)
}

// Present queues imageIndex for presentation after waitSemaphore signals.
func (s *Swapchain) Present(queue core1_0.Queue, imageIndex int, waitSemaphore core1_0.Semaphore) (common.VkResult, error) {
	return s.extension.QueuePresent(queue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{waitSemaphore},
		Swapchains:     []khr_swapchain.Swapchain{s.swapchain},
		ImageIndices:   []int{imageIndex},
	})
}

// Resize tears the chain down and rebuilds it at the provided extent. It
// waits for the device to go idle first, so every frame referencing the old
// images has retired before they are destroyed.
func (s *Swapchain) Resize(width, height int) error {
	s.logger.Debug("Swapchain::Resize", slog.Int("width", width), slog.Int("height", height))

	_, err := s.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "failed to wait for device idle before a swapchain rebuild")
	}

	s.destroyChain()
	return s.create(width, height)
}

// Destroy releases the image views and the swapchain. The images belong to
// the presentation engine and are not destroyed individually.
func (s *Swapchain) Destroy() {
	s.logger.Debug("Swapchain::Destroy")
	s.destroyChain()
}

func (s *Swapchain) destroyChain() {
	for _, view := range s.imageViews {
		view.Destroy(nil)
	}
	s.imageViews = nil
	s.images = nil

	if s.swapchain != nil {
		s.swapchain.Destroy(nil)
		s.swapchain = nil
	}
}

// Image returns the presentable image at index.
func (s *Swapchain) Image(index int) core1_0.Image {
	return s.images[index]
}

// ImageCount returns the number of images in the chain.
func (s *Swapchain) ImageCount() int {
	return len(s.images)
}

// ImageView returns the view for the presentable image at index.
func (s *Swapchain) ImageView(index int) core1_0.ImageView {
	return s.imageViews[index]
}

// Format returns the negotiated image format.
func (s *Swapchain) Format() core1_0.Format {
	return s.format
}

// Extent returns the negotiated image extent.
func (s *Swapchain) Extent() core1_0.Extent2D {
	return s.extent
}
