package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func TestApplyResizeUsesRequestedSize(t *testing.T) {
	presenter := &fakePresenter{
		extent: core1_0.Extent2D{Width: 1920, Height: 1080},
	}
	e := &Engine{
		logger:          testLogger(),
		swapchain:       presenter,
		resizeRequested: true,
		pendingWidth:    800,
		pendingHeight:   600,
	}

	err := e.applyResize()
	require.NoError(t, err)

	require.Equal(t, []core1_0.Extent2D{{Width: 800, Height: 600}}, presenter.resizedTo)
	require.False(t, e.resizeRequested)
	require.Zero(t, e.pendingWidth)
	require.Zero(t, e.pendingHeight)
}

func TestApplyResizeFallsBackToSurfaceExtent(t *testing.T) {
	presenter := &fakePresenter{
		extent: core1_0.Extent2D{Width: 1280, Height: 720},
	}
	e := &Engine{
		logger:          testLogger(),
		swapchain:       presenter,
		resizeRequested: true,
	}

	err := e.applyResize()
	require.NoError(t, err)

	require.Equal(t, []core1_0.Extent2D{{Width: 1280, Height: 720}}, presenter.resizedTo)
	require.False(t, e.resizeRequested)
}

func TestRunStopsWhenPumpQuits(t *testing.T) {
	e := &Engine{
		logger:        testLogger(),
		stopRendering: true,
	}

	calls := 0
	err := e.Run(func() (bool, error) {
		calls++
		return calls >= 2, nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestSetRenderScaleClampsToUnit(t *testing.T) {
	e := &Engine{renderScale: 1}

	e.SetRenderScale(0.25)
	require.InDelta(t, 0.25, e.renderScale, 0.0001)

	e.SetRenderScale(3)
	require.InDelta(t, 1, e.renderScale, 0.0001)

	e.SetRenderScale(-1)
	require.InDelta(t, 1, e.renderScale, 0.0001)
}
