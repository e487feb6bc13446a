package scene

import (
	"math"

	vkngmath "github.com/vkngwrapper/math"
)

// DefaultFov is roughly a 70 degree vertical field of view, in radians.
const DefaultFov float32 = 1.22173

// Camera is a free-flying first person camera. The projection uses reversed
// depth: the near plane value is numerically larger than the far plane, so
// depth precision concentrates close to the viewer and the depth buffer
// clears to 0.
type Camera struct {
	Position vkngmath.Vec3[float32]
	Velocity vkngmath.Vec3[float32]

	// Yaw and Pitch are in radians. Pitch is clamped during Update to keep
	// the view from flipping over the poles.
	Yaw   float32
	Pitch float32

	Fov  float32
	Near float32
	Far  float32
}

// NewCamera returns a camera at the origin with reversed-depth defaults.
func NewCamera() *Camera {
	return &Camera{
		Fov:  DefaultFov,
		Near: 10000,
		Far:  0.1,
	}
}

const maxPitch = float32(math.Pi/2) - 0.01

// Update integrates velocity over the elapsed time and clamps pitch.
func (c *Camera) Update(deltaSeconds float32) {
	c.Position.X += c.Velocity.X * deltaSeconds
	c.Position.Y += c.Velocity.Y * deltaSeconds
	c.Position.Z += c.Velocity.Z * deltaSeconds

	if c.Pitch > maxPitch {
		c.Pitch = maxPitch
	}
	if c.Pitch < -maxPitch {
		c.Pitch = -maxPitch
	}
}

// Forward returns the unit view direction derived from yaw and pitch.
func (c *Camera) Forward() vkngmath.Vec3[float32] {
	cosPitch := float32(math.Cos(float64(c.Pitch)))
	return vkngmath.Vec3[float32]{
		X: float32(math.Sin(float64(c.Yaw))) * cosPitch,
		Y: float32(math.Sin(float64(c.Pitch))),
		Z: float32(math.Cos(float64(c.Yaw))) * cosPitch,
	}
}

// ViewMatrix builds the world-to-view transform.
func (c *Camera) ViewMatrix() vkngmath.Mat4x4[float32] {
	forward := c.Forward()
	center := vkngmath.Vec3[float32]{
		X: c.Position.X + forward.X,
		Y: c.Position.Y + forward.Y,
		Z: c.Position.Z + forward.Z,
	}
	up := vkngmath.Vec3[float32]{Y: 1}

	var view vkngmath.Mat4x4[float32]
	view.SetLookAt(&c.Position, &center, &up)
	return view
}

// ProjectionMatrix builds the reversed-depth perspective projection for the
// given aspect ratio.
func (c *Camera) ProjectionMatrix(aspect float32) vkngmath.Mat4x4[float32] {
	var proj vkngmath.Mat4x4[float32]
	proj.SetPerspective(float64(c.Fov), aspect, c.Near, c.Far)
	return proj
}
