package vulkan

import (
	vk "github.com/goki/vulkan"
)

type DescriptorSetLayoutBuilder struct {
	flags     vk.DescriptorSetLayoutCreateFlags
	bindings  []vk.DescriptorSetLayoutBinding
	debugName string
}

func NewDescriptorSetLayoutBuilder() *DescriptorSetLayoutBuilder {
	return &DescriptorSetLayoutBuilder{}
}

func (b *DescriptorSetLayoutBuilder) Flags(flags vk.DescriptorSetLayoutCreateFlags) *DescriptorSetLayoutBuilder {
	b.flags = flags
	return b
}

func (b *DescriptorSetLayoutBuilder) AddBinding(binding uint32, descriptorType vk.DescriptorType, count uint32, stages vk.ShaderStageFlags) *DescriptorSetLayoutBuilder {
	b.bindings = append(b.bindings, vk.DescriptorSetLayoutBinding{
		Binding:         binding,
		DescriptorType:  descriptorType,
		DescriptorCount: count,
		StageFlags:      stages,
	})
	return b
}

func (b *DescriptorSetLayoutBuilder) DebugName(name string) *DescriptorSetLayoutBuilder {
	b.debugName = name
	return b
}

func (b *DescriptorSetLayoutBuilder) Create(dev Device) (*DescriptorSetLayout, error) {
	flags, bindings, name := b.flags, b.bindings, b.debugName
	b.flags, b.bindings, b.debugName = 0, nil, ""

	seen := make(map[uint32]bool, len(bindings))
	for _, binding := range bindings {
		if seen[binding.Binding] {
			return nil, invalidDescriptor("descriptor set layout %q binds %d twice", name, binding.Binding)
		}
		if binding.DescriptorCount == 0 {
			return nil, invalidDescriptor("descriptor set layout %q binding %d has no descriptors", name, binding.Binding)
		}
		seen[binding.Binding] = true
	}

	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		Flags:        flags,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	handle, err := dev.CreateDescriptorSetLayout(&info)
	if err != nil {
		return nil, createError("descriptor set layout", name, err)
	}
	setDebugName(dev, handle, name)
	return &DescriptorSetLayout{Handle: handle, Bindings: bindings, dev: dev}, nil
}

type DescriptorPoolBuilder struct {
	flags     vk.DescriptorPoolCreateFlags
	maxSets   uint32
	sizes     []vk.DescriptorPoolSize
	debugName string
}

func NewDescriptorPoolBuilder() *DescriptorPoolBuilder {
	return &DescriptorPoolBuilder{}
}

func (b *DescriptorPoolBuilder) Flags(flags vk.DescriptorPoolCreateFlags) *DescriptorPoolBuilder {
	b.flags = flags
	return b
}

func (b *DescriptorPoolBuilder) MaxSets(count uint32) *DescriptorPoolBuilder {
	b.maxSets = count
	return b
}

func (b *DescriptorPoolBuilder) AddPoolSize(descriptorType vk.DescriptorType, count uint32) *DescriptorPoolBuilder {
	b.sizes = append(b.sizes, vk.DescriptorPoolSize{
		Type:            descriptorType,
		DescriptorCount: count,
	})
	return b
}

func (b *DescriptorPoolBuilder) DebugName(name string) *DescriptorPoolBuilder {
	b.debugName = name
	return b
}

func (b *DescriptorPoolBuilder) Create(dev Device) (*DescriptorPool, error) {
	flags, maxSets, sizes, name := b.flags, b.maxSets, b.sizes, b.debugName
	b.flags, b.maxSets, b.sizes, b.debugName = 0, 0, nil, ""

	if maxSets == 0 {
		return nil, invalidDescriptor("descriptor pool %q has no sets", name)
	}
	if len(sizes) == 0 {
		return nil, invalidDescriptor("descriptor pool %q has no pool sizes", name)
	}

	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         flags,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	handle, err := dev.CreateDescriptorPool(&info)
	if err != nil {
		return nil, createError("descriptor pool", name, err)
	}
	setDebugName(dev, handle, name)
	return &DescriptorPool{Handle: handle, MaxSets: maxSets, dev: dev}, nil
}
