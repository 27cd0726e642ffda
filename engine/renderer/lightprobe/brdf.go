package lightprobe

import (
	_ "embed"
	"fmt"
	"io"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

const (
	brdfLutSize   = 512
	brdfLutFormat = vk.FormatR16g16Sfloat
	brdfWorkgroup = 8
	brdfTexelSize = 4
)

//go:embed brdf.wgsl
var brdfSource string

type brdfLut struct {
	owned          []releaser
	setLayout      *vulkan.DescriptorSetLayout
	pipelineLayout *vulkan.PipelineLayout
	pipeline       *vulkan.Pipeline
	pool           *vulkan.DescriptorPool
	set            *vulkan.DescriptorSet
	storage        *vulkan.Buffer
	image          *vulkan.Image
}

func (b *brdfLut) own(r releaser) {
	b.owned = append(b.owned, r)
}

func (b *brdfLut) release() {
	for i := len(b.owned) - 1; i >= 0; i-- {
		b.owned[i].Release()
	}
	b.owned = nil
}

// BrdfLut is the split sum lookup image in SHADER_READ_ONLY, nil before GenerateBrdfLut ran.
func (p *Prober) BrdfLut() *vulkan.Image {
	if p.brdf == nil {
		return nil
	}
	return p.brdf.image
}

// GenerateBrdfLut integrates the split sum BRDF into a 512x512 R16G16_SFLOAT image and
// writes its texels to w as little endian half float pairs, row by row.
func (p *Prober) GenerateBrdfLut(w io.Writer) error {
	if p.brdf == nil {
		lut, err := p.createBrdfLut()
		if err != nil {
			return err
		}
		p.brdf = lut
	}
	lut := p.brdf
	size := uint64(brdfLutSize * brdfLutSize * brdfTexelSize)

	staging, err := vulkan.NewBufferBuilder().
		Usage(vk.BufferUsageFlags(vk.BufferUsageTransferDstBit), vulkan.MemoryGPUToCPU).
		Size(size).
		Mapped().
		DebugName("Prober.brdfLut.staging").
		Create(p.dev)
	if err != nil {
		return err
	}
	defer staging.Release()

	cb, err := p.ctx.Queue.DrawCommands()
	if err != nil {
		return err
	}
	cb.PushGroup("lightprobe.brdf")
	cb.BindPipeline(lut.pipeline)
	cb.BindDescriptorSets(vk.PipelineBindPointCompute, lut.pipelineLayout, 0, lut.set)
	cb.Dispatch(brdfLutSize/brdfWorkgroup, brdfLutSize/brdfWorkgroup, 1)

	transfer := vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	vulkan.NewPipelineBarrier().
		AddBuffer(lut.storage, vk.AccessFlags(vk.AccessShaderWriteBit), vk.AccessFlags(vk.AccessTransferReadBit)).
		AddImage(lut.image, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, 0, vk.AccessFlags(vk.AccessTransferWriteBit)).
		Execute(cb, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), transfer)

	cb.CopyBufferToImage(lut.storage, lut.image, vk.ImageLayoutTransferDstOptimal, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), LayerCount: 1},
		ImageExtent:      vk.Extent3D{Width: brdfLutSize, Height: brdfLutSize, Depth: 1},
	}})
	cb.CopyBuffer(lut.storage, staging, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})

	vulkan.NewPipelineBarrier().
		AddImage(lut.image, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit)).
		Execute(cb, transfer, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit|vk.PipelineStageComputeShaderBit))
	cb.PopGroup()

	if err := p.ctx.Queue.WaitForCommands(false); err != nil {
		return err
	}
	if _, err := w.Write(staging.Mapped()[:size]); err != nil {
		return fmt.Errorf("writing brdf lut: %w", err)
	}
	return nil
}

func (p *Prober) createBrdfLut() (*brdfLut, error) {
	lut := &brdfLut{}
	fail := func(err error) (*brdfLut, error) {
		lut.release()
		return nil, err
	}

	code, err := shader.NewGLSLCompiler().
		Type(shader.StageWGSL).
		AddSource("lightprobe/brdf.wgsl", brdfSource).
		Compile(p.ctx.Shaders.Backend)
	if err != nil {
		return fail(err)
	}

	compute := vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	if lut.setLayout, err = vulkan.NewDescriptorSetLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeStorageBuffer, 1, compute).
		DebugName("Prober.brdfLut.descriptorSetLayout").
		Create(p.dev); err != nil {
		return fail(err)
	}
	lut.own(lut.setLayout)

	if lut.pipelineLayout, err = vulkan.NewPipelineLayoutBuilder().
		AddSetLayout(lut.setLayout).
		DebugName("Prober.brdfLut.pipelineLayout").
		Create(p.dev); err != nil {
		return fail(err)
	}
	lut.own(lut.pipelineLayout)

	if lut.pipeline, err = vulkan.NewComputePipelineBuilder().
		Cache(p.ctx.Cache).
		Layout(lut.pipelineLayout).
		ComputeShader(code).
		DebugName("Prober.brdfLut.pipeline").
		Create(p.dev); err != nil {
		return fail(err)
	}
	lut.own(lut.pipeline)

	if lut.pool, err = vulkan.NewDescriptorPoolBuilder().
		AddPoolSize(vk.DescriptorTypeStorageBuffer, 1).
		MaxSets(1).
		DebugName("Prober.brdfLut.descriptorPool").
		Create(p.dev); err != nil {
		return fail(err)
	}
	lut.own(lut.pool)

	if lut.set, err = lut.pool.Allocate(lut.setLayout); err != nil {
		return fail(err)
	}

	if lut.storage, err = vulkan.NewBufferBuilder().
		Usage(vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit|vk.BufferUsageTransferSrcBit), vulkan.MemoryGPUOnly).
		Size(brdfLutSize * brdfLutSize * brdfTexelSize).
		DebugName("Prober.brdfLut.storage").
		Create(p.dev); err != nil {
		return fail(err)
	}
	lut.own(lut.storage)

	if lut.image, err = vulkan.NewImageBuilder().
		Size(brdfLutSize, brdfLutSize).
		Format(brdfLutFormat).
		Usage(vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit)).
		DebugName("Prober.brdfLut.image").
		Create(p.dev); err != nil {
		return fail(err)
	}
	lut.own(lut.image)

	if err = vulkan.NewWriteDescriptors().
		AddBuffer(lut.set, 0, vk.DescriptorTypeStorageBuffer, lut.storage).
		Execute(p.dev); err != nil {
		return fail(fmt.Errorf("%w: brdf lut descriptors: %w", core.ErrCreateFailed, err))
	}
	return lut, nil
}
