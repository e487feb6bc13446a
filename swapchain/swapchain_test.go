package swapchain

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	mock_surface "github.com/vkngwrapper/extensions/v2/khr_surface/mocks"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	mock_swapchain "github.com/vkngwrapper/extensions/v2/khr_swapchain/mocks"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type surfaceSetup struct {
	Capabilities khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

func mockSurface(ctrl *gomock.Controller, physicalDevice core1_0.PhysicalDevice, setup surfaceSetup) *mock_surface.MockSurface {
	surface := mock_surface.NewMockSurface(ctrl)
	capabilities := setup.Capabilities
	surface.EXPECT().PhysicalDeviceSurfaceCapabilities(physicalDevice).
		Return(&capabilities, core1_0.VKSuccess, nil).AnyTimes()
	surface.EXPECT().PhysicalDeviceSurfaceFormats(physicalDevice).
		Return(setup.Formats, core1_0.VKSuccess, nil).AnyTimes()
	surface.EXPECT().PhysicalDeviceSurfacePresentModes(physicalDevice).
		Return(setup.PresentModes, core1_0.VKSuccess, nil).AnyTimes()
	return surface
}

func expectImageChain(ctrl *gomock.Controller, device *mocks.MockDevice, swapchain *mock_swapchain.MockSwapchain, imageCount int) {
	images := make([]core1_0.Image, 0, imageCount)
	for i := 0; i < imageCount; i++ {
		images = append(images, mocks.EasyMockImage(ctrl))
	}
	swapchain.EXPECT().SwapchainImages().Return(images, core1_0.VKSuccess, nil)

	for range images {
		view := mocks.EasyMockImageView(ctrl)
		device.EXPECT().CreateImageView(gomock.Any(), gomock.Any()).Return(view, core1_0.VKSuccess, nil)
	}
}

func TestNegotiationPrefersRequestedFormatAndMode(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, physicalDevice, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	surface := mockSurface(ctrl, physicalDevice, surfaceSetup{
		Capabilities: khr_surface.SurfaceCapabilities{
			MinImageCount: 2,
			MaxImageCount: 8,
			CurrentExtent: core1_0.Extent2D{Width: 1700, Height: 900},
		},
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{
			khr_surface.PresentModeFIFO,
			khr_surface.PresentModeMailbox,
		},
	})

	extension := mock_swapchain.NewMockExtension(ctrl)
	chain := mock_swapchain.NewMockSwapchain(ctrl)
	extension.EXPECT().CreateSwapchain(device, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ core1_0.Device, _ interface{}, o khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, common.VkResult, error) {
			require.Equal(t, core1_0.FormatB8G8R8A8UnsignedNormalized, o.ImageFormat)
			require.Equal(t, khr_surface.PresentModeMailbox, o.PresentMode)
			require.Equal(t, core1_0.Extent2D{Width: 1700, Height: 900}, o.ImageExtent)
			require.Equal(t, 3, o.MinImageCount)
			require.Equal(t, core1_0.SharingModeExclusive, o.ImageSharingMode)
			return chain, core1_0.VKSuccess, nil
		})
	expectImageChain(ctrl, device, chain, 3)

	s, err := newWithExtension(testLogger(), device, physicalDevice, surface, extension, CreateOptions{
		Width:       1700,
		Height:      900,
		PresentMode: khr_surface.PresentModeMailbox,
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.FormatB8G8R8A8UnsignedNormalized, s.Format())
	require.Equal(t, core1_0.Extent2D{Width: 1700, Height: 900}, s.Extent())
	require.Equal(t, 3, s.ImageCount())
}

func TestNegotiationFallsBackToFIFOAndFirstFormat(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, physicalDevice, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	surface := mockSurface(ctrl, physicalDevice, surfaceSetup{
		Capabilities: khr_surface.SurfaceCapabilities{
			MinImageCount: 2,
			CurrentExtent: core1_0.Extent2D{Width: 640, Height: 480},
		},
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{
			khr_surface.PresentModeFIFO,
		},
	})

	extension := mock_swapchain.NewMockExtension(ctrl)
	chain := mock_swapchain.NewMockSwapchain(ctrl)
	extension.EXPECT().CreateSwapchain(device, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ core1_0.Device, _ interface{}, o khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, common.VkResult, error) {
			require.Equal(t, core1_0.FormatR8G8B8A8SRGB, o.ImageFormat)
			require.Equal(t, khr_surface.PresentModeFIFO, o.PresentMode)
			return chain, core1_0.VKSuccess, nil
		})
	expectImageChain(ctrl, device, chain, 3)

	s, err := newWithExtension(testLogger(), device, physicalDevice, surface, extension, CreateOptions{
		Width:       640,
		Height:      480,
		PresentMode: khr_surface.PresentModeMailbox,
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.FormatR8G8B8A8SRGB, s.Format())
}

func TestNegotiationClampsExtentWhenUnbounded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, physicalDevice, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	surface := mockSurface(ctrl, physicalDevice, surfaceSetup{
		Capabilities: khr_surface.SurfaceCapabilities{
			MinImageCount:  2,
			CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
			MinImageExtent: core1_0.Extent2D{Width: 200, Height: 200},
			MaxImageExtent: core1_0.Extent2D{Width: 1920, Height: 1080},
		},
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{
			khr_surface.PresentModeFIFO,
		},
	})

	extension := mock_swapchain.NewMockExtension(ctrl)
	chain := mock_swapchain.NewMockSwapchain(ctrl)
	extension.EXPECT().CreateSwapchain(device, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ core1_0.Device, _ interface{}, o khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, common.VkResult, error) {
			require.Equal(t, core1_0.Extent2D{Width: 1920, Height: 1080}, o.ImageExtent)
			return chain, core1_0.VKSuccess, nil
		})
	expectImageChain(ctrl, device, chain, 3)

	s, err := newWithExtension(testLogger(), device, physicalDevice, surface, extension, CreateOptions{
		Width:  4000,
		Height: 3000,
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.Extent2D{Width: 1920, Height: 1080}, s.Extent())
}

func TestResizeWaitsIdleAndRebuildsAtNewExtent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, physicalDevice, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	surface := mock_surface.NewMockSurface(ctrl)
	firstCapabilities := khr_surface.SurfaceCapabilities{
		MinImageCount: 2,
		CurrentExtent: core1_0.Extent2D{Width: 800, Height: 600},
	}
	secondCapabilities := khr_surface.SurfaceCapabilities{
		MinImageCount: 2,
		CurrentExtent: core1_0.Extent2D{Width: 1024, Height: 768},
	}
	surface.EXPECT().PhysicalDeviceSurfaceCapabilities(physicalDevice).Return(&firstCapabilities, core1_0.VKSuccess, nil)
	surface.EXPECT().PhysicalDeviceSurfaceCapabilities(physicalDevice).Return(&secondCapabilities, core1_0.VKSuccess, nil)
	surface.EXPECT().PhysicalDeviceSurfaceFormats(physicalDevice).Return([]khr_surface.SurfaceFormat{
		{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}, core1_0.VKSuccess, nil).Times(2)
	surface.EXPECT().PhysicalDeviceSurfacePresentModes(physicalDevice).Return([]khr_surface.PresentMode{
		khr_surface.PresentModeFIFO,
	}, core1_0.VKSuccess, nil).Times(2)

	extension := mock_swapchain.NewMockExtension(ctrl)

	firstChain := mock_swapchain.NewMockSwapchain(ctrl)
	extension.EXPECT().CreateSwapchain(device, gomock.Any(), gomock.Any()).Return(firstChain, core1_0.VKSuccess, nil)
	firstImage := mocks.EasyMockImage(ctrl)
	firstChain.EXPECT().SwapchainImages().Return([]core1_0.Image{firstImage}, core1_0.VKSuccess, nil)
	firstView := mocks.EasyMockImageView(ctrl)
	device.EXPECT().CreateImageView(gomock.Any(), gomock.Any()).Return(firstView, core1_0.VKSuccess, nil)

	s, err := newWithExtension(testLogger(), device, physicalDevice, surface, extension, CreateOptions{
		Width:  800,
		Height: 600,
	})
	require.NoError(t, err)

	// The rebuild must wait for the device, release the old views and chain,
	// then create a replacement at the new extent
	device.EXPECT().WaitIdle().Return(core1_0.VKSuccess, nil)
	firstView.EXPECT().Destroy(gomock.Any())
	firstChain.EXPECT().Destroy(gomock.Any())

	secondChain := mock_swapchain.NewMockSwapchain(ctrl)
	extension.EXPECT().CreateSwapchain(device, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ core1_0.Device, _ interface{}, o khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, common.VkResult, error) {
			require.Equal(t, core1_0.Extent2D{Width: 1024, Height: 768}, o.ImageExtent)
			return secondChain, core1_0.VKSuccess, nil
		})
	secondChain.EXPECT().SwapchainImages().Return([]core1_0.Image{mocks.EasyMockImage(ctrl)}, core1_0.VKSuccess, nil)
	device.EXPECT().CreateImageView(gomock.Any(), gomock.Any()).Return(mocks.EasyMockImageView(ctrl), core1_0.VKSuccess, nil)

	err = s.Resize(1024, 768)
	require.NoError(t, err)
	require.Equal(t, core1_0.Extent2D{Width: 1024, Height: 768}, s.Extent())
}

func TestDestroyReleasesViewsAndChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, physicalDevice, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	surface := mockSurface(ctrl, physicalDevice, surfaceSetup{
		Capabilities: khr_surface.SurfaceCapabilities{
			MinImageCount: 2,
			CurrentExtent: core1_0.Extent2D{Width: 800, Height: 600},
		},
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO},
	})

	extension := mock_swapchain.NewMockExtension(ctrl)
	chain := mock_swapchain.NewMockSwapchain(ctrl)
	extension.EXPECT().CreateSwapchain(device, gomock.Any(), gomock.Any()).Return(chain, core1_0.VKSuccess, nil)

	chain.EXPECT().SwapchainImages().Return([]core1_0.Image{mocks.EasyMockImage(ctrl)}, core1_0.VKSuccess, nil)
	view := mocks.EasyMockImageView(ctrl)
	device.EXPECT().CreateImageView(gomock.Any(), gomock.Any()).Return(view, core1_0.VKSuccess, nil)

	s, err := newWithExtension(testLogger(), device, physicalDevice, surface, extension, CreateOptions{
		Width:  800,
		Height: 600,
	})
	require.NoError(t, err)

	view.EXPECT().Destroy(gomock.Any())
	chain.EXPECT().Destroy(gomock.Any())
	s.Destroy()
	require.Equal(t, 0, s.ImageCount())
}
