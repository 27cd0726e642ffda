package lightmap

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// Raytrace bakes the dirty tiles among tiles. Tiles that do not fit the bake image
// or the ring buffers stay dirty and are picked up by the next iteration, so the
// call only returns once every dirty tile was processed.
func (lm *Lightmapper) Raytrace(tiles []*Tile) error {
	if lm.mesh == nil || CountDirty(tiles) == 0 {
		return nil
	}

	lm.clock.ResetAndClock()
	cb, err := lm.ctx.Queue.DrawCommands()
	if err != nil {
		return err
	}
	cb.PushGroup("lightmap.total")
	lm.uploadUniforms(cb)

	for {
		lm.selectTiles(tiles)
		if len(lm.selected) == 0 {
			break
		}

		if err := lm.render(cb); err != nil {
			cb.PopGroup()
			return err
		}
		if err := lm.resolveTiles(cb); err != nil {
			cb.PopGroup()
			return err
		}
		if lm.cfg.Blur {
			if err := lm.blurTiles(cb); err != nil {
				cb.PopGroup()
				return err
			}
		}
		if err := lm.copyResult(cb); err != nil {
			cb.PopGroup()
			return err
		}

		if lm.drawCommands.IsFull || lm.copyTiles.IsFull || lm.copyTiles.Pos == lm.drawCommands.BufferSize {
			// The GPU still reads both buffers; they can only be rewound after it finished.
			cb.PopGroup()
			lm.clock.Unclock()
			if err := lm.ctx.Queue.WaitForCommands(false); err != nil {
				return err
			}
			lm.clock.Clock()
			lm.drawCommands.Reset()
			lm.copyTiles.Reset()

			if cb, err = lm.ctx.Queue.DrawCommands(); err != nil {
				return err
			}
			cb.PushGroup("lightmap.total")
		}
	}

	cb.PopGroup()
	lm.clock.Unclock()
	core.StatsRecordBake(lm.clock.TimeMS())
	return nil
}

// SelectUpdateTiles picks the tiles the next Raytrace should bake. Visible tiles come
// first and the rest of the budget goes to background updates. With dynamic lighting
// off only tiles that never had a bake are considered. A nil visible treats every
// tile as visible.
func (lm *Lightmapper) SelectUpdateTiles(tiles []*Tile, visible func(*Tile) bool) []*Tile {
	maxUpdates := max(1, int(float32(lm.cfg.MaxUpdates)*lm.cfg.Scale))
	background := max(1, int(float32(lm.cfg.BackgroundUpdates)*lm.cfg.Scale))

	candidate := func(t *Tile) bool {
		if !t.ReceivedNewLight {
			return false
		}
		return lm.cfg.Dynamic || t.NeedsInitialBake
	}
	isVisible := func(t *Tile) bool {
		return visible == nil || visible(t)
	}

	out := make([]*Tile, 0, maxUpdates)
	for _, t := range tiles {
		if len(out) == maxUpdates {
			return out
		}
		if candidate(t) && isVisible(t) {
			out = append(out, t)
		}
	}

	budget := min(background, maxUpdates-len(out))
	for _, t := range tiles {
		if budget == 0 {
			break
		}
		if candidate(t) && !isVisible(t) {
			out = append(out, t)
			budget--
		}
	}
	return out
}

func (lm *Lightmapper) uploadUniforms(cb vulkan.CommandBuffer) {
	values := Uniforms{
		SunDir:       lm.mesh.SunDirection().SwapYZ(),
		SunColor:     lm.mesh.SunColor(),
		SunIntensity: lm.mesh.SunIntensity(),
	}
	copy(lm.uniformTransfer.Mapped(), asBytes(&values))

	cb.CopyBuffer(lm.uniformTransfer, lm.uniformBuffer, []vk.BufferCopy{{Size: vk.DeviceSize(lm.uniformStride)}})
	vulkan.NewPipelineBarrier().
		AddBuffer(lm.uniformBuffer, vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit)).
		Execute(cb, vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit|vk.PipelineStageFragmentShaderBit))
}

// selectTiles packs dirty tiles into the bake image. Tiles that spill onto a second
// packer page wait for the next iteration.
func (lm *Lightmapper) selectTiles(tiles []*Tile) {
	lm.bake.maxX, lm.bake.maxY = 0, 0
	lm.selected = lm.selected[:0]

	if lm.packer == nil {
		lm.packer = NewRectPacker(lm.bakeSize, lm.bakeSize, TilePadding)
	} else {
		lm.packer.Clear()
	}

	for _, tile := range tiles {
		if !tile.ReceivedNewLight {
			continue
		}
		loc := tile.AtlasLocation
		item := lm.packer.Alloc(loc.Width, loc.Height)
		if item.PageIndex != 0 {
			continue
		}

		lm.selected = append(lm.selected, SelectedTile{Tile: tile, X: item.X, Y: item.Y})
		lm.bake.maxX = max(lm.bake.maxX, item.X+loc.Width+TilePadding)
		lm.bake.maxY = max(lm.bake.maxY, item.Y+loc.Height+TilePadding)

		tile.ReceivedNewLight = false
		tile.NeedsInitialBake = false
		tile.GeometryUpdate = false
	}
}

func (lm *Lightmapper) render(cb vulkan.CommandBuffer) error {
	cb.PushGroup("lightmap.raytrace")
	defer cb.PopGroup()

	rt := &lm.raytrace
	vulkan.NewPipelineBarrier().
		AddImage(lm.bake.raytrace.image, vk.ImageLayoutUndefined, vk.ImageLayoutColorAttachmentOptimal,
			vk.AccessFlags(vk.AccessShaderReadBit), vk.AccessFlags(vk.AccessColorAttachmentWriteBit)).
		Execute(cb, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))

	err := vulkan.NewRenderPassBegin().
		RenderPass(rt.renderPass).
		RenderArea(0, 0, uint32(lm.bake.maxX), uint32(lm.bake.maxY)).
		Framebuffer(lm.bake.raytrace.framebuffer).
		AddClearColor(0, 0, 0, -1).
		Execute(cb)
	if err != nil {
		return err
	}

	cb.BindVertexBuffer(lm.mesh.VertexBuffer(), 0)
	cb.BindIndexBuffer(lm.mesh.IndexBuffer(), 0, vk.IndexTypeUint32)
	cb.BindPipeline(rt.pipelines[SelectPermutation(lm.cfg, lm.useRayQuery, lm.mesh)])
	cb.BindDescriptorSets(vk.PipelineBindPointGraphics, rt.pipelineLayout, 0, rt.set0, rt.set1)
	cb.SetViewport(0, 0, float32(lm.bakeSize), float32(lm.bakeSize))

	start := lm.drawCommands.Pos
	for i := range lm.selected {
		selected := &lm.selected[i]
		tile := selected.Tile

		lm.visible = lm.mesh.VisibleSurfaces(tile, lm.visible[:0])
		if len(lm.visible) > lm.drawCommands.BufferSize {
			core.LogWarn("lightmap tile sees %d surfaces, more than the %d draws a bake can hold; skipping it",
				len(lm.visible), lm.drawCommands.BufferSize)
			continue
		}
		first, ok := lm.drawCommands.Reserve(len(lm.visible))
		if !ok {
			for j := i; j < len(lm.selected); j++ {
				lm.selected[j].Tile.MarkDirty()
			}
			break
		}

		pc := RaytracePC{
			TileX:        float32(selected.X),
			TileY:        float32(selected.Y),
			TextureSize:  float32(lm.bakeSize),
			TileWidth:    float32(tile.AtlasLocation.Width),
			TileHeight:   float32(tile.AtlasLocation.Height),
			WorldToLocal: tile.Transform.TranslateWorldToLocal.SwapYZ(),
			ProjLocalToU: tile.Transform.ProjLocalToU.SwapYZ(),
			ProjLocalToV: tile.Transform.ProjLocalToV.SwapYZ(),
		}
		for k, surfaceIndex := range lm.visible {
			surface := lm.mesh.Surface(surfaceIndex)
			pos := first + k
			pc.SurfaceIndex = int32(surfaceIndex)
			lm.drawConstants[pos] = pc
			lm.drawCommands.Data[pos] = DrawIndexedCommand{
				IndexCount:    surface.NumElements,
				InstanceCount: 1,
				FirstIndex:    surface.StartElementIndex,
				FirstInstance: uint32(pos),
			}
		}
		selected.Rendered = true
	}

	if count := lm.drawCommands.Pos - start; count > 0 {
		cb.DrawIndexedIndirect(lm.drawCommandsBuffer, uint64(start)*drawCommandSize, uint32(count), uint32(drawCommandSize))
	}
	cb.EndRenderPass()
	return nil
}

// screenQuad draws a full screen triangle over the used part of the bake image.
func (lm *Lightmapper) screenQuad(cb vulkan.CommandBuffer, p *screenPass, pipeline int, fb *vulkan.Framebuffer, set *vulkan.DescriptorSet) error {
	err := vulkan.NewRenderPassBegin().
		RenderPass(p.renderPass).
		RenderArea(0, 0, uint32(lm.bake.maxX), uint32(lm.bake.maxY)).
		Framebuffer(fb).
		Execute(cb)
	if err != nil {
		return err
	}
	cb.BindPipeline(p.pipelines[pipeline])
	cb.BindDescriptorSets(vk.PipelineBindPointGraphics, p.pipelineLayout, 0, set)
	cb.SetViewport(0, 0, float32(lm.bake.maxX), float32(lm.bake.maxY))
	cb.Draw(3, 1, 0, 0)
	cb.EndRenderPass()
	return nil
}

func (lm *Lightmapper) resolveTiles(cb vulkan.CommandBuffer) error {
	cb.PushGroup("lightmap.resolve")
	defer cb.PopGroup()

	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageFragmentShaderBit)
	vulkan.NewPipelineBarrier().
		AddImage(lm.bake.raytrace.image, vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessShaderReadBit)).
		AddImage(lm.bake.resolve.image, vk.ImageLayoutUndefined, vk.ImageLayoutColorAttachmentOptimal,
			vk.AccessFlags(vk.AccessShaderReadBit), vk.AccessFlags(vk.AccessColorAttachmentWriteBit)).
		Execute(cb, stages, stages)

	return lm.screenQuad(cb, &lm.resolve, 0, lm.bake.resolve.framebuffer, lm.bake.resolveSet)
}

// blurTiles runs the two blur directions, ending with the result back in the resolve image.
func (lm *Lightmapper) blurTiles(cb vulkan.CommandBuffer) error {
	cb.PushGroup("lightmap.blur")
	defer cb.PopGroup()

	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageFragmentShaderBit)
	vulkan.NewPipelineBarrier().
		AddImage(lm.bake.resolve.image, vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessShaderReadBit)).
		AddImage(lm.bake.blur.image, vk.ImageLayoutUndefined, vk.ImageLayoutColorAttachmentOptimal,
			vk.AccessFlags(vk.AccessShaderReadBit), vk.AccessFlags(vk.AccessColorAttachmentWriteBit)).
		Execute(cb, stages, stages)
	if err := lm.screenQuad(cb, &lm.blur, 0, lm.bake.blur.framebuffer, lm.bake.blurSets[0]); err != nil {
		return err
	}

	vulkan.NewPipelineBarrier().
		AddImage(lm.bake.blur.image, vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessShaderReadBit)).
		AddImage(lm.bake.resolve.image, vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutColorAttachmentOptimal,
			vk.AccessFlags(vk.AccessShaderReadBit), vk.AccessFlags(vk.AccessColorAttachmentWriteBit)).
		Execute(cb, stages, stages)
	return lm.screenQuad(cb, &lm.blur, 1, lm.bake.resolve.framebuffer, lm.bake.blurSets[1])
}

// copyResult writes every rendered tile from the bake image into its atlas page.
func (lm *Lightmapper) copyResult(cb vulkan.CommandBuffer) error {
	pages := lm.textures.Lightmaps()
	for i := range lm.copylists {
		lm.copylists[i] = lm.copylists[i][:0]
	}

	capacity := lm.copyTiles.Remaining()
	overflow := false
	surfaces := 0
	pixels := uint32(0)
	for i := range lm.selected {
		selected := &lm.selected[i]
		if !selected.Rendered {
			continue
		}
		if capacity == 0 {
			selected.Tile.MarkDirty()
			selected.Rendered = false
			overflow = true
			continue
		}

		page := selected.Tile.AtlasLocation.ArrayIndex
		if page < 0 || page >= len(pages) {
			return fmt.Errorf("%w: tile targets lightmap page %d of %d", core.ErrInvalidDescriptor, page, len(pages))
		}
		for len(lm.copylists) <= page {
			lm.copylists = append(lm.copylists, nil)
		}
		lm.copylists[page] = append(lm.copylists[page], selected)

		capacity--
		surfaces++
		pixels += selected.Tile.AtlasLocation.Area()
	}
	// Reserve below clears IsFull on success, so the overflow is flagged on the way out.
	defer func() {
		if overflow {
			lm.copyTiles.IsFull = true
		}
	}()

	core.StatsBegin(surfaces, pixels)
	if pixels == 0 {
		return nil
	}

	cb.PushGroup("lightmap.copy")
	defer cb.PopGroup()

	colorAspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageFragmentShaderBit)

	barrier := vulkan.NewPipelineBarrier().
		AddImage(lm.bake.resolve.image, vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessShaderReadBit))
	for i, list := range lm.copylists {
		if len(list) == 0 {
			continue
		}
		for _, img := range []*vulkan.Image{pages[i].Light.Image, pages[i].Probe.Image} {
			barrier.AddImageRange(img, vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutColorAttachmentOptimal,
				vk.AccessFlags(vk.AccessShaderReadBit), vk.AccessFlags(vk.AccessColorAttachmentReadBit),
				colorAspect, 0, 1, 0, 1)
		}
	}
	barrier.Execute(cb, stages, stages)

	for i, list := range lm.copylists {
		if len(list) == 0 {
			continue
		}
		page := pages[i]
		if err := lm.preparePage(page, i); err != nil {
			return err
		}
		destSize := page.Light.Image.Width

		start, ok := lm.copyTiles.Reserve(len(list))
		if !ok {
			return fmt.Errorf("%w: copy buffer overflow", core.ErrInvalidDescriptor)
		}
		for k, selected := range list {
			tile := selected.Tile
			lm.copyTiles.Data[start+k] = CopyTileInfo{
				SrcPosX:     int32(selected.X),
				SrcPosY:     int32(selected.Y),
				DestPosX:    int32(tile.AtlasLocation.X),
				DestPosY:    int32(tile.AtlasLocation.Y),
				TileWidth:   int32(tile.AtlasLocation.Width),
				TileHeight:  int32(tile.AtlasLocation.Height),
				WorldOrigin: tile.InverseTransform.WorldOrigin,
				WorldU:      tile.InverseTransform.WorldU,
				WorldV:      tile.InverseTransform.WorldV,
			}
		}

		err := vulkan.NewRenderPassBegin().
			RenderPass(lm.copy.renderPass).
			RenderArea(0, 0, destSize, destSize).
			Framebuffer(page.Light.LMFramebuffer).
			Execute(cb)
		if err != nil {
			return err
		}
		cb.BindPipeline(lm.copy.pipelines[0])
		cb.BindDescriptorSets(vk.PipelineBindPointGraphics, lm.copy.pipelineLayout, 0, lm.bake.copySet)
		cb.SetViewport(0, 0, float32(destSize), float32(destSize))

		pc := CopyPC{SrcTexSize: int32(lm.bakeSize), DestTexSize: int32(destSize)}
		cb.PushConstants(lm.copy.pipelineLayout, vk.ShaderStageFlags(vk.ShaderStageVertexBit), 0, asBytes(&pc))
		cb.Draw(4, uint32(len(list)), 0, uint32(start))
		cb.EndRenderPass()
	}

	barrier = vulkan.NewPipelineBarrier()
	for i, list := range lm.copylists {
		if len(list) == 0 {
			continue
		}
		for _, img := range []*vulkan.Image{pages[i].Light.Image, pages[i].Probe.Image} {
			barrier.AddImageRange(img, vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
				vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessShaderReadBit),
				colorAspect, 0, 1, 0, 1)
		}
	}
	barrier.Execute(cb, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit))
	return nil
}

// preparePage creates the views and framebuffer the copy pass renders a page through.
func (lm *Lightmapper) preparePage(page *LightmapPage, index int) error {
	colorAspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if page.Light.LMView == nil {
		view, err := vulkan.NewImageViewBuilder().
			Image(page.Light.Image, bakeFormat).
			Subresource(colorAspect, 0, 0, 1, 1).
			DebugName("LMLightView").
			Create(lm.dev)
		if err != nil {
			return err
		}
		page.Light.LMView = view
	}
	if page.Probe.LMView == nil {
		view, err := vulkan.NewImageViewBuilder().
			Image(page.Probe.Image, probeFormat).
			Subresource(colorAspect, 0, 0, 1, 1).
			DebugName("LMProbeView").
			Create(lm.dev)
		if err != nil {
			return err
		}
		page.Probe.LMView = view
	}
	if page.Light.LMFramebuffer == nil {
		size := page.Light.Image.Width
		fb, err := vulkan.NewFramebufferBuilder().
			RenderPass(lm.copy.renderPass).
			AddAttachment(page.Light.LMView).
			AddAttachment(page.Probe.LMView).
			Size(size, size).
			DebugName(fmt.Sprintf("LMFramebuffer%d", index)).
			Create(lm.dev)
		if err != nil {
			return err
		}
		page.Light.LMFramebuffer = fb
	}
	return nil
}
