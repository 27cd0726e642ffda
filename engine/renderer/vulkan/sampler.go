package vulkan

import (
	vk "github.com/goki/vulkan"
)

type SamplerBuilder struct {
	info      vk.SamplerCreateInfo
	debugName string
}

func NewSamplerBuilder() *SamplerBuilder {
	b := &SamplerBuilder{}
	b.reset()
	return b
}

func (b *SamplerBuilder) reset() {
	b.info = vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        vk.FilterLinear,
		MinFilter:        vk.FilterLinear,
		MipmapMode:       vk.SamplerMipmapModeLinear,
		AddressModeU:     vk.SamplerAddressModeRepeat,
		AddressModeV:     vk.SamplerAddressModeRepeat,
		AddressModeW:     vk.SamplerAddressModeRepeat,
		AnisotropyEnable: vk.False,
		MaxAnisotropy:    1.0,
		CompareOp:        vk.CompareOpAlways,
		MinLod:           0.0,
		MaxLod:           100.0,
		BorderColor:      vk.BorderColorFloatTransparentBlack,
	}
	b.debugName = ""
}

func (b *SamplerBuilder) AddressMode(mode vk.SamplerAddressMode) *SamplerBuilder {
	return b.AddressModes(mode, mode, mode)
}

func (b *SamplerBuilder) AddressModes(u, v, w vk.SamplerAddressMode) *SamplerBuilder {
	b.info.AddressModeU = u
	b.info.AddressModeV = v
	b.info.AddressModeW = w
	return b
}

func (b *SamplerBuilder) MinFilter(filter vk.Filter) *SamplerBuilder {
	b.info.MinFilter = filter
	return b
}

func (b *SamplerBuilder) MagFilter(filter vk.Filter) *SamplerBuilder {
	b.info.MagFilter = filter
	return b
}

func (b *SamplerBuilder) MipmapMode(mode vk.SamplerMipmapMode) *SamplerBuilder {
	b.info.MipmapMode = mode
	return b
}

// Anisotropy enables anisotropic filtering for values above 1.
func (b *SamplerBuilder) Anisotropy(maxAnisotropy float32) *SamplerBuilder {
	if maxAnisotropy > 1.0 {
		b.info.AnisotropyEnable = vk.True
		b.info.MaxAnisotropy = maxAnisotropy
	} else {
		b.info.AnisotropyEnable = vk.False
		b.info.MaxAnisotropy = 1.0
	}
	return b
}

func (b *SamplerBuilder) MipLodBias(bias float32) *SamplerBuilder {
	b.info.MipLodBias = bias
	return b
}

func (b *SamplerBuilder) MaxLod(lod float32) *SamplerBuilder {
	b.info.MaxLod = lod
	return b
}

func (b *SamplerBuilder) DebugName(name string) *SamplerBuilder {
	b.debugName = name
	return b
}

func (b *SamplerBuilder) Create(dev Device) (*Sampler, error) {
	defer b.reset()

	info := b.info
	handle, err := dev.CreateSampler(&info)
	if err != nil {
		return nil, createError("sampler", b.debugName, err)
	}
	setDebugName(dev, handle, b.debugName)
	return &Sampler{Handle: handle, dev: dev}, nil
}
