package gpu

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// MeshBuffers holds the device-local geometry for a single uploaded mesh.
type MeshBuffers struct {
	VertexBuffer *Buffer
	IndexBuffer  *Buffer
	IndexCount   int
}

// Destroy releases both buffers through the provider that created them.
func (m *MeshBuffers) Destroy(provider BufferProvider) {
	if m.IndexBuffer != nil {
		provider.DestroyBuffer(m.IndexBuffer)
		m.IndexBuffer = nil
	}
	if m.VertexBuffer != nil {
		provider.DestroyBuffer(m.VertexBuffer)
		m.VertexBuffer = nil
	}
}

// UploadMesh copies vertex and index data into device-local buffers through
// a mapped staging buffer and a synchronous transfer submission. It blocks
// until the copy completes.
func UploadMesh(provider BufferProvider, indices []uint32, vertices []Vertex) (*MeshBuffers, error) {
	if len(indices) == 0 || len(vertices) == 0 {
		return nil, errors.New("attempted to upload a mesh with no geometry")
	}

	vertexSize := binary.Size(vertices)
	indexSize := binary.Size(indices)

	vertexBuffer, err := provider.CreateBuffer(vertexSize,
		core1_0.BufferUsageVertexBuffer|core1_0.BufferUsageTransferDst,
		vam.MemoryUsageAutoPreferDevice, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create a mesh vertex buffer")
	}

	indexBuffer, err := provider.CreateBuffer(indexSize,
		core1_0.BufferUsageIndexBuffer|core1_0.BufferUsageTransferDst,
		vam.MemoryUsageAutoPreferDevice, 0)
	if err != nil {
		provider.DestroyBuffer(vertexBuffer)
		return nil, errors.Wrap(err, "failed to create a mesh index buffer")
	}

	staging, err := provider.CreateBuffer(vertexSize+indexSize,
		core1_0.BufferUsageTransferSrc,
		vam.MemoryUsageAutoPreferHost,
		vam.AllocationCreateMapped|vam.AllocationCreateHostAccessSequentialWrite)
	if err != nil {
		provider.DestroyBuffer(indexBuffer)
		provider.DestroyBuffer(vertexBuffer)
		return nil, errors.Wrap(err, "failed to create a mesh staging buffer")
	}
	defer provider.DestroyBuffer(staging)

	err = WriteMapped(staging.Mapped, 0, vertices)
	if err == nil {
		err = WriteMapped(staging.Mapped, vertexSize, indices)
	}
	if err == nil {
		err = provider.ImmediateSubmit(func(cmd core1_0.CommandBuffer) error {
			cmd.CmdCopyBuffer(staging.Buffer, vertexBuffer.Buffer, []core1_0.BufferCopy{
				{SrcOffset: 0, DstOffset: 0, Size: vertexSize},
			})
			cmd.CmdCopyBuffer(staging.Buffer, indexBuffer.Buffer, []core1_0.BufferCopy{
				{SrcOffset: vertexSize, DstOffset: 0, Size: indexSize},
			})
			return nil
		})
	}
	if err != nil {
		provider.DestroyBuffer(indexBuffer)
		provider.DestroyBuffer(vertexBuffer)
		return nil, err
	}

	return &MeshBuffers{
		VertexBuffer: vertexBuffer,
		IndexBuffer:  indexBuffer,
		IndexCount:   len(indices),
	}, nil
}

// Bytes serializes data to the GPU byte order for push constants and mapped
// writes. Data must be a fixed-size value per encoding/binary rules.
func Bytes(data interface{}) ([]byte, error) {
	if binary.Size(data) < 0 {
		return nil, errors.Newf("data of type %T cannot be serialized for the GPU", data)
	}

	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize data for the GPU")
	}
	return buf.Bytes(), nil
}

// WriteMapped serializes data and copies it into mapped memory at offset.
func WriteMapped(mapped unsafe.Pointer, offset int, data interface{}) error {
	raw, err := Bytes(data)
	if err != nil {
		return err
	}

	dst := unsafe.Slice((*byte)(mapped), offset+len(raw))
	copy(dst[offset:], raw)
	return nil
}
