package descriptors

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// LayoutBuilder accumulates descriptor bindings and turns them into a
// DescriptorSetLayout. The zero value is ready to use.
type LayoutBuilder struct {
	bindings []core1_0.DescriptorSetLayoutBinding
}

// AddBinding records a single-descriptor binding. Stage flags are applied
// uniformly at Build time.
func (b *LayoutBuilder) AddBinding(binding int, descriptorType core1_0.DescriptorType) {
	b.bindings = append(b.bindings, core1_0.DescriptorSetLayoutBinding{
		Binding:         binding,
		DescriptorType:  descriptorType,
		DescriptorCount: 1,
	})
}

// Clear drops all recorded bindings so the builder can be reused.
func (b *LayoutBuilder) Clear() {
	b.bindings = b.bindings[:0]
}

// Build creates a layout from the recorded bindings, stamping stages onto
// every binding. The builder remains usable afterwards.
func (b *LayoutBuilder) Build(device core1_0.Device, stages core1_0.ShaderStageFlags) (core1_0.DescriptorSetLayout, error) {
	if len(b.bindings) == 0 {
		return nil, errors.New("attempted to build a descriptor set layout with no bindings")
	}

	bindings := make([]core1_0.DescriptorSetLayoutBinding, len(b.bindings))
	copy(bindings, b.bindings)
	for i := range bindings {
		bindings[i].StageFlags |= stages
	}

	layout, _, err := device.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: bindings,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create a descriptor set layout")
	}

	return layout, nil
}
