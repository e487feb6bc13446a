package gpu

import (
	"unsafe"

	"github.com/vkngwrapper/core/v2/core1_0"
	vkngmath "github.com/vkngwrapper/math"
)

// Vertex is the interleaved vertex layout consumed by the geometry pipeline.
// UV coordinates are split around Position and Normal to keep the struct
// 16-byte aligned without padding.
type Vertex struct {
	Position vkngmath.Vec3[float32]
	UVX      float32
	Normal   vkngmath.Vec3[float32]
	UVY      float32
	Color    vkngmath.Vec4[float32]
}

// VertexBindingDescriptions describes the single interleaved vertex binding.
func VertexBindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

// VertexAttributeDescriptions describes the attribute locations of Vertex.
func VertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.UVX)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Normal)),
		},
		{
			Binding:  0,
			Location: 3,
			Format:   core1_0.FormatR32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.UVY)),
		},
		{
			Binding:  0,
			Location: 4,
			Format:   core1_0.FormatR32G32B32A32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
	}
}
