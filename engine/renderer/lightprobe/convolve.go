package lightprobe

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// GenerateIrradianceMap convolves the environment cube into the diffuse irradiance map of probe.
func (p *Prober) GenerateIrradianceMap(probe int) error {
	return p.convolve(&p.irradiance, probe, 1, irradianceSize, "lightprobe.irradiance", func(i int) []byte {
		face := CubeFace(i, p.env.size)
		pc := IrradiancePC{Dir: face.Dir, Side: face.Side, Up: face.Up}
		return asBytes(&pc)
	})
}

// GeneratePrefilterMap convolves the environment cube into one mip per roughness level of probe.
func (p *Prober) GeneratePrefilterMap(probe int) error {
	levels := p.levels
	return p.convolve(&p.prefilter, probe, levels, prefilterSize, "lightprobe.prefilter", func(i int) []byte {
		face := CubeFace(i/levels, p.env.size)
		pc := PrefilterPC{
			Dir:       face.Dir,
			Side:      face.Side,
			Up:        face.Up,
			Roughness: float32(i%levels) / float32(levels-1),
		}
		return asBytes(&pc)
	})
}

// EndLightProbePass hands every generated probe to the texture manager.
func (p *Prober) EndLightProbePass() {
	if p.textures == nil {
		return
	}
	p.textures.CopyIrradianceMaps(p.irradiance.probes)
	p.textures.CopyPrefilterMaps(p.prefilter.probes)
}

// convolve runs one dispatch per (face, mip) image of c and gathers the results into the
// 6 layer probe image. Image i is face i/mips at mip i%mips.
func (p *Prober) convolve(c *convolution, probe, mips int, size uint32, group string, push func(i int) []byte) error {
	if probe < 0 {
		return fmt.Errorf("%w: probe index %d", core.ErrInvalidDescriptor, probe)
	}
	target, err := p.probeImage(c, probe, mips, size)
	if err != nil {
		return err
	}

	writes := vulkan.NewWriteDescriptors()
	for i, set := range c.sets {
		writes.AddStorageImage(set, 0, c.views[i], vk.ImageLayoutGeneral)
		writes.AddCombinedImageSampler(set, 1, p.env.cubeView, c.sampler, vk.ImageLayoutShaderReadOnlyOptimal)
	}
	if err := writes.Execute(p.dev); err != nil {
		return err
	}

	cb, err := p.ctx.Queue.DrawCommands()
	if err != nil {
		return err
	}
	cb.PushGroup(group)
	defer cb.PopGroup()

	compute := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	transfer := vk.PipelineStageFlags(vk.PipelineStageTransferBit)

	barrier := vulkan.NewPipelineBarrier()
	for _, img := range c.images {
		barrier.AddImage(img, vk.ImageLayoutUndefined, vk.ImageLayoutGeneral, 0, vk.AccessFlags(vk.AccessShaderWriteBit))
	}
	barrier.Execute(cb, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), compute)

	cb.BindPipeline(c.pipeline)
	for i, set := range c.sets {
		dim := size >> (i % mips)
		cb.BindDescriptorSets(vk.PipelineBindPointCompute, c.pipelineLayout, 0, set)
		cb.PushConstants(c.pipelineLayout, vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, push(i))
		cb.Dispatch(dim, dim, 1)
	}

	barrier = vulkan.NewPipelineBarrier()
	for _, img := range c.images {
		barrier.AddImage(img, vk.ImageLayoutGeneral, vk.ImageLayoutTransferSrcOptimal,
			vk.AccessFlags(vk.AccessShaderWriteBit), vk.AccessFlags(vk.AccessTransferReadBit))
	}
	barrier.AddImageRange(target, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
		0, vk.AccessFlags(vk.AccessTransferWriteBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit), 0, uint32(mips), 0, faceCount)
	barrier.Execute(cb, compute, transfer)

	for i, img := range c.images {
		cb.CopyImage(img, vk.ImageLayoutTransferSrcOptimal, target, vk.ImageLayoutTransferDstOptimal,
			[]vk.ImageCopy{faceCopy(img, uint32(i%mips), uint32(i/mips))})
	}

	vulkan.NewPipelineBarrier().
		AddImageRange(target, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal,
			vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessTransferReadBit),
			vk.ImageAspectFlags(vk.ImageAspectColorBit), 0, uint32(mips), 0, faceCount).
		Execute(cb, transfer, transfer)
	return nil
}

// probeImage returns the image of probe, creating it on first use. The probe slice only
// grows once the image exists.
func (p *Prober) probeImage(c *convolution, probe, mips int, size uint32) (*vulkan.Image, error) {
	if probe < len(c.probes) && c.probes[probe] != nil {
		return c.probes[probe], nil
	}
	img, err := vulkan.NewImageBuilder().
		Size(size, size, uint32(mips), faceCount).
		Format(probeFormat).
		Usage(vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit)).
		DebugName(fmt.Sprintf("Prober.probes[%d]", probe)).
		Create(p.dev)
	if err != nil {
		return nil, err
	}
	if probe >= len(c.probes) {
		c.probes = append(c.probes, make([]*vulkan.Image, probe+1-len(c.probes))...)
	}
	c.probes[probe] = img
	return img, nil
}

func faceCopy(src *vulkan.Image, mip, layer uint32) vk.ImageCopy {
	return vk.ImageCopy{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       mip,
			BaseArrayLayer: layer,
			LayerCount:     1,
		},
		Extent: vk.Extent3D{Width: src.Width, Height: src.Height, Depth: 1},
	}
}
