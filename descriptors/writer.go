package descriptors

import (
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Writer buffers descriptor writes so a set can be populated with a single
// UpdateDescriptorSets call. The zero value is ready to use.
type Writer struct {
	writes []core1_0.WriteDescriptorSet
}

// WriteBuffer queues a buffer descriptor write against binding.
func (w *Writer) WriteBuffer(binding int, buffer core1_0.Buffer, size, offset int, descriptorType core1_0.DescriptorType) {
	w.writes = append(w.writes, core1_0.WriteDescriptorSet{
		DstBinding:     binding,
		DescriptorType: descriptorType,
		BufferInfo: []core1_0.DescriptorBufferInfo{
			{
				Buffer: buffer,
				Offset: offset,
				Range:  size,
			},
		},
	})
}

// WriteImage queues an image descriptor write against binding. Sampler may be
// nil for non-sampler descriptor types.
func (w *Writer) WriteImage(binding int, view core1_0.ImageView, sampler core1_0.Sampler, layout core1_0.ImageLayout, descriptorType core1_0.DescriptorType) {
	w.writes = append(w.writes, core1_0.WriteDescriptorSet{
		DstBinding:     binding,
		DescriptorType: descriptorType,
		ImageInfo: []core1_0.DescriptorImageInfo{
			{
				ImageView:   view,
				Sampler:     sampler,
				ImageLayout: layout,
			},
		},
	})
}

// Clear drops all queued writes.
func (w *Writer) Clear() {
	w.writes = w.writes[:0]
}

// UpdateSet points every queued write at set and flushes them to the device.
// The queued writes are retained - call Clear to reuse the writer for another
// set with different contents.
func (w *Writer) UpdateSet(device core1_0.Device, set core1_0.DescriptorSet) error {
	for i := range w.writes {
		w.writes[i].DstSet = set
	}

	return device.UpdateDescriptorSets(w.writes, nil)
}
