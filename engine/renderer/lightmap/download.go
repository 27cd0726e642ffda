package lightmap

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// DownloadLightmap reads back the lighting image of an atlas page. Channels are
// clamped to [0, 1]. It waits for all recorded commands to finish.
func (lm *Lightmapper) DownloadLightmap(page int) (*image.RGBA64, error) {
	pages := lm.textures.Lightmaps()
	if page < 0 || page >= len(pages) {
		return nil, fmt.Errorf("%w: lightmap page %d of %d", core.ErrInvalidDescriptor, page, len(pages))
	}
	img := pages[page].Light.Image
	width, height := img.Width, img.Height
	texelSize := uint64(8)

	staging, err := vulkan.NewBufferBuilder().
		Usage(vk.BufferUsageFlags(vk.BufferUsageTransferDstBit), vulkan.MemoryGPUToCPU).
		Size(uint64(width) * uint64(height) * texelSize).
		Mapped().
		DebugName(fmt.Sprintf("LightmapDownload%d", page)).
		Create(lm.dev)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	cb, err := lm.ctx.Queue.DrawCommands()
	if err != nil {
		return nil, err
	}
	colorAspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	vulkan.NewPipelineBarrier().
		AddImageRange(img, vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferSrcOptimal,
			vk.AccessFlags(vk.AccessShaderReadBit), vk.AccessFlags(vk.AccessTransferReadBit), colorAspect, 0, 1, 0, 1).
		Execute(cb, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit))

	cb.CopyImageToBuffer(img, vk.ImageLayoutTransferSrcOptimal, staging, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{AspectMask: colorAspect, LayerCount: 1},
		ImageExtent:      vk.Extent3D{Width: width, Height: height, Depth: 1},
	}})

	vulkan.NewPipelineBarrier().
		AddImageRange(img, vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessTransferReadBit), vk.AccessFlags(vk.AccessShaderReadBit), colorAspect, 0, 1, 0, 1).
		Execute(cb, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit))

	if err := lm.ctx.Queue.WaitForCommands(false); err != nil {
		return nil, err
	}

	data := staging.Mapped()
	out := image.NewRGBA64(image.Rect(0, 0, int(width), int(height)))
	for y := 0; y < int(height); y++ {
		for x := 0; x < int(width); x++ {
			offset := (y*int(width) + x) * int(texelSize)
			out.SetRGBA64(x, y, color.RGBA64{
				R: unorm16(binary.LittleEndian.Uint16(data[offset:])),
				G: unorm16(binary.LittleEndian.Uint16(data[offset+2:])),
				B: unorm16(binary.LittleEndian.Uint16(data[offset+4:])),
				A: 0xffff,
			})
		}
	}
	return out, nil
}

func unorm16(half uint16) uint16 {
	return uint16(math.Clamp(math.HalfToFloat32(half), 0, 1)*65535 + 0.5)
}
