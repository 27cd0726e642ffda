package vulkan

import (
	vk "github.com/goki/vulkan"
)

type ImageBuilder struct {
	info      vk.ImageCreateInfo
	mem       MemoryRequest
	debugName string
}

func NewImageBuilder() *ImageBuilder {
	b := &ImageBuilder{}
	b.reset()
	return b
}

func (b *ImageBuilder) reset() {
	b.info = vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Extent:        vk.Extent3D{Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	b.mem = MemoryRequest{Usage: MemoryGPUOnly}
	b.debugName = ""
}

func (b *ImageBuilder) Type(imageType vk.ImageType) *ImageBuilder {
	b.info.ImageType = imageType
	return b
}

func (b *ImageBuilder) Flags(flags vk.ImageCreateFlags) *ImageBuilder {
	b.info.Flags = flags
	return b
}

// Size sets the extent. The optional values are the mip level count and the array layer count.
func (b *ImageBuilder) Size(width, height uint32, mipsAndLayers ...uint32) *ImageBuilder {
	b.info.Extent.Width = width
	b.info.Extent.Height = height
	if len(mipsAndLayers) > 0 {
		b.info.MipLevels = mipsAndLayers[0]
	}
	if len(mipsAndLayers) > 1 {
		b.info.ArrayLayers = mipsAndLayers[1]
	}
	return b
}

func (b *ImageBuilder) Samples(samples vk.SampleCountFlagBits) *ImageBuilder {
	b.info.Samples = samples
	return b
}

func (b *ImageBuilder) Format(format vk.Format) *ImageBuilder {
	b.info.Format = format
	return b
}

func (b *ImageBuilder) Usage(usage vk.ImageUsageFlags, memoryUsage ...MemoryUsage) *ImageBuilder {
	b.info.Usage = usage
	if len(memoryUsage) > 0 {
		b.mem.Usage = memoryUsage[0]
	}
	return b
}

func (b *ImageBuilder) MemoryType(required, preferred vk.MemoryPropertyFlags, typeBits ...uint32) *ImageBuilder {
	b.mem.Required = required
	b.mem.Preferred = preferred
	if len(typeBits) > 0 {
		b.mem.TypeBits = typeBits[0]
	}
	return b
}

func (b *ImageBuilder) LinearTiling() *ImageBuilder {
	b.info.Tiling = vk.ImageTilingLinear
	return b
}

func (b *ImageBuilder) DebugName(name string) *ImageBuilder {
	b.debugName = name
	return b
}

// IsFormatSupported checks the format features for the tiling currently selected.
func (b *ImageBuilder) IsFormatSupported(dev Device, features vk.FormatFeatureFlags) bool {
	props := dev.FormatProperties(b.info.Format)
	if b.info.Tiling == vk.ImageTilingLinear {
		return props.LinearTilingFeatures&features == features
	}
	return props.OptimalTilingFeatures&features == features
}

func (b *ImageBuilder) validate() error {
	switch {
	case b.info.Format == vk.FormatUndefined:
		return invalidDescriptor("image %q has no format", b.debugName)
	case b.info.Extent.Width == 0 || b.info.Extent.Height == 0:
		return invalidDescriptor("image %q has zero size", b.debugName)
	case b.info.MipLevels == 0 || b.info.ArrayLayers == 0:
		return invalidDescriptor("image %q needs at least one mip level and layer", b.debugName)
	case b.info.Usage == 0:
		return invalidDescriptor("image %q has no usage", b.debugName)
	}
	return nil
}

func (b *ImageBuilder) Create(dev Device) (*Image, error) {
	defer b.reset()

	if err := b.validate(); err != nil {
		return nil, err
	}

	info := b.info
	handle, mem, err := dev.CreateImage(&info, b.mem)
	if err != nil {
		return nil, createError("image", b.debugName, err)
	}
	setDebugName(dev, handle, b.debugName)

	return &Image{
		Handle:      handle,
		Memory:      mem,
		Width:       info.Extent.Width,
		Height:      info.Extent.Height,
		MipLevels:   info.MipLevels,
		ArrayLayers: info.ArrayLayers,
		Format:      info.Format,
		Samples:     info.Samples,
		Usage:       info.Usage,
		dev:         dev,
	}, nil
}

// TryCreate is Create for optional images, failures return nil.
func (b *ImageBuilder) TryCreate(dev Device) *Image {
	img, err := b.Create(dev)
	if err != nil {
		return nil
	}
	return img
}

type ImageViewBuilder struct {
	info      vk.ImageViewCreateInfo
	image     *Image
	debugName string
}

func NewImageViewBuilder() *ImageViewBuilder {
	b := &ImageViewBuilder{}
	b.reset()
	return b
}

func (b *ImageViewBuilder) reset() {
	b.info = vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		ViewType: vk.ImageViewType2d,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		},
	}
	b.image = nil
	b.debugName = ""
}

func (b *ImageViewBuilder) Type(viewType vk.ImageViewType) *ImageViewBuilder {
	b.info.ViewType = viewType
	return b
}

func (b *ImageViewBuilder) Image(img *Image, format vk.Format) *ImageViewBuilder {
	b.image = img
	b.info.Format = format
	return b
}

// Subresource narrows the view. Counts of 0 cover the remaining levels or layers of the image.
func (b *ImageViewBuilder) Subresource(aspect vk.ImageAspectFlags, baseMip, baseLayer, levelCount, layerCount uint32) *ImageViewBuilder {
	b.info.SubresourceRange = vk.ImageSubresourceRange{
		AspectMask:     aspect,
		BaseMipLevel:   baseMip,
		LevelCount:     levelCount,
		BaseArrayLayer: baseLayer,
		LayerCount:     layerCount,
	}
	return b
}

func (b *ImageViewBuilder) DebugName(name string) *ImageViewBuilder {
	b.debugName = name
	return b
}

func (b *ImageViewBuilder) Create(dev Device) (*ImageView, error) {
	defer b.reset()

	img := b.image
	if img == nil || img.Handle == nil {
		return nil, invalidDescriptor("image view %q has no image", b.debugName)
	}
	if b.info.Format == vk.FormatUndefined {
		return nil, invalidDescriptor("image view %q has no format", b.debugName)
	}

	r := &b.info.SubresourceRange
	if r.BaseMipLevel >= img.MipLevels || r.BaseArrayLayer >= img.ArrayLayers {
		return nil, invalidDescriptor("image view %q starts outside of the image", b.debugName)
	}
	if r.LevelCount == 0 {
		r.LevelCount = img.MipLevels - r.BaseMipLevel
	}
	if r.LayerCount == 0 {
		r.LayerCount = img.ArrayLayers - r.BaseArrayLayer
	}

	info := b.info
	info.Image = img.Handle
	handle, err := dev.CreateImageView(&info)
	if err != nil {
		return nil, createError("image view", b.debugName, err)
	}
	setDebugName(dev, handle, b.debugName)

	return &ImageView{
		Handle:     handle,
		Image:      img,
		Format:     info.Format,
		Aspect:     r.AspectMask,
		BaseMip:    r.BaseMipLevel,
		LevelCount: r.LevelCount,
		BaseLayer:  r.BaseArrayLayer,
		LayerCount: r.LayerCount,
		dev:        dev,
	}, nil
}
