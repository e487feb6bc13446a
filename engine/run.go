package engine

import (
	"time"

	"github.com/loov/hrtime"
)

const minimizedPollInterval = 100 * time.Millisecond

// Run drives the render loop until pump reports quit or an error occurs.
// pump is called once per iteration to service windowing events; update, when
// non-nil, runs before each frame with the elapsed time in seconds. Pending
// resize requests are serviced between frames, and rendering idles while the
// window is minimized.
func (e *Engine) Run(pump func() (quit bool, err error), update func(deltaSeconds float32) error) error {
	previous := hrtime.Now()

	for {
		start := hrtime.Now()

		quit, err := pump()
		if err != nil {
			return err
		}
		if quit {
			return nil
		}

		if e.stopRendering {
			time.Sleep(minimizedPollInterval)
			continue
		}

		if e.resizeRequested {
			if err = e.applyResize(); err != nil {
				return err
			}
		}

		if update != nil {
			updateStart := hrtime.Now()
			if err = update(float32((start - previous).Seconds())); err != nil {
				return err
			}
			e.stats.SceneUpdateTime = float32(hrtime.Since(updateStart).Seconds() * 1000)
		}
		previous = start

		if err = e.DrawTick(); err != nil {
			return err
		}

		e.stats.FrameTime = float32(hrtime.Since(start).Seconds() * 1000)
	}
}

func (e *Engine) applyResize() error {
	width := e.pendingWidth
	height := e.pendingHeight
	if width <= 0 || height <= 0 {
		// Latched from a stale swapchain rather than an explicit request.
		// The surface reports its own extent during recreation.
		extent := e.swapchain.Extent()
		width = extent.Width
		height = extent.Height
	}

	e.logger.Debug("Engine::applyResize", "width", width, "height", height)

	err := e.swapchain.Resize(width, height)
	if err != nil {
		return err
	}

	e.resizeRequested = false
	e.pendingWidth = 0
	e.pendingHeight = 0
	return nil
}
