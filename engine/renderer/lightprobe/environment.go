package lightprobe

import (
	"image"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// Face is one side of the environment cube while it is being rendered.
type Face struct {
	Index  int
	Bounds image.Rectangle
	Dir    math.Vec3
	Up     math.Vec3
	Side   math.Vec3
}

var (
	faceDirs = [faceCount]math.Vec3{
		math.NewVec3(1, 0, 0),
		math.NewVec3(-1, 0, 0),
		math.NewVec3(0, -1, 0),
		math.NewVec3(0, 1, 0),
		math.NewVec3(0, 0, 1),
		math.NewVec3(0, 0, -1),
	}
	faceUps = [faceCount]math.Vec3{
		math.NewVec3(0, 1, 0),
		math.NewVec3(0, 1, 0),
		math.NewVec3(0, 0, 1),
		math.NewVec3(0, 0, -1),
		math.NewVec3(0, 1, 0),
		math.NewVec3(0, 1, 0),
	}
)

// CubeFace returns the orientation of cube face i.
func CubeFace(i int, size uint32) Face {
	dir, up := faceDirs[i], faceUps[i]
	return Face{
		Index:  i,
		Bounds: image.Rect(0, 0, int(size), int(size)),
		Dir:    dir,
		Up:     up,
		Side:   dir.Cross(up).Negate(),
	}
}

// ViewProjection is the 90 degree camera of the face for a probe at origin,
// in the row vector convention of math.Vec3.Transform.
func (f Face) ViewProjection(origin math.Vec3, near, far float32) math.Mat4 {
	view := math.NewMat4LookAt(origin, origin.Add(f.Dir), f.Up)
	return view.Mul(math.NewMat4Perspective(math.DegToRad(90), 1, near, far))
}

// RenderFunc draws the scene for one cube face inside the environment render pass.
type RenderFunc func(cb vulkan.CommandBuffer, face Face) error

// RenderEnvironmentMap captures the six faces of the environment cube. The cube ends up
// in SHADER_READ_ONLY for the convolution passes.
func (p *Prober) RenderEnvironmentMap(render RenderFunc) error {
	cb, err := p.ctx.Queue.DrawCommands()
	if err != nil {
		return err
	}
	env := &p.env
	cb.PushGroup("lightprobe.environment")
	defer cb.PopGroup()

	vulkan.NewPipelineBarrier().
		AddImageRange(env.cube, vk.ImageLayoutUndefined, vk.ImageLayoutColorAttachmentOptimal,
			vk.AccessFlags(vk.AccessShaderReadBit),
			vk.AccessFlags(vk.AccessColorAttachmentReadBit|vk.AccessColorAttachmentWriteBit),
			vk.ImageAspectFlags(vk.ImageAspectColorBit), 0, 1, 0, faceCount).
		Execute(cb, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))

	fragmentTests := vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	for i := 0; i < faceCount; i++ {
		vulkan.NewPipelineBarrier().
			AddImageRange(env.depth, vk.ImageLayoutUndefined, vk.ImageLayoutDepthStencilAttachmentOptimal,
				vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
				vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit|vk.AccessDepthStencilAttachmentWriteBit),
				env.depthAspect, 0, 1, 0, 1).
			Execute(cb, fragmentTests, fragmentTests)

		err := vulkan.NewRenderPassBegin().
			RenderPass(env.renderPass).
			Framebuffer(env.framebuffers[i]).
			RenderArea(0, 0, env.size, env.size).
			AddClearColor(0, 0, 0, 1).
			AddClearDepthStencil(1, 0).
			Execute(cb)
		if err != nil {
			return err
		}
		err = render(cb, CubeFace(i, env.size))
		cb.EndRenderPass()
		if err != nil {
			return err
		}
	}

	vulkan.NewPipelineBarrier().
		AddImageRange(env.cube, vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessShaderReadBit),
			vk.ImageAspectFlags(vk.ImageAspectColorBit), 0, 1, 0, faceCount).
		Execute(cb, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit))
	return nil
}
