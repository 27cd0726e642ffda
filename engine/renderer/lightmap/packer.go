package lightmap

// RectPackerItem is the position handed out by RectPacker.Alloc.
type RectPackerItem struct {
	PageIndex     int
	X, Y          int
	Width, Height int
}

type shelf struct {
	y      int
	height int
	nextX  int
}

type packerPage struct {
	shelves []shelf
	nextY   int
}

// RectPacker places rectangles first fit on shelves. Every rectangle is followed by
// padding texels on the right and at the bottom, and the first row and column start
// after padding texels too, so neighbours never share a texel within the padding distance.
type RectPacker struct {
	width   int
	height  int
	padding int
	pages   []*packerPage
}

func NewRectPacker(width, height, padding int) *RectPacker {
	p := &RectPacker{width: width, height: height, padding: padding}
	p.Clear()
	return p
}

// Clear forgets every allocation. Page 0 is always present afterwards.
func (p *RectPacker) Clear() {
	p.pages = []*packerPage{{nextY: p.padding}}
}

func (p *RectPacker) PageCount() int {
	return len(p.pages)
}

// Alloc places a width x height rectangle on the first page with room for it.
// Rectangles that cannot fit an empty page get a page of their own.
func (p *RectPacker) Alloc(width, height int) RectPackerItem {
	if width+2*p.padding > p.width || height+2*p.padding > p.height {
		p.pages = append(p.pages, &packerPage{nextY: p.height})
		return RectPackerItem{PageIndex: len(p.pages) - 1, X: p.padding, Y: p.padding, Width: width, Height: height}
	}

	for index, page := range p.pages {
		if x, y, ok := p.place(page, width, height); ok {
			return RectPackerItem{PageIndex: index, X: x, Y: y, Width: width, Height: height}
		}
	}

	page := &packerPage{nextY: p.padding}
	p.pages = append(p.pages, page)
	x, y, _ := p.place(page, width, height)
	return RectPackerItem{PageIndex: len(p.pages) - 1, X: x, Y: y, Width: width, Height: height}
}

func (p *RectPacker) place(page *packerPage, width, height int) (int, int, bool) {
	for i := range page.shelves {
		s := &page.shelves[i]
		if height <= s.height && s.nextX+width+p.padding <= p.width {
			x := s.nextX
			s.nextX += width + p.padding
			return x, s.y, true
		}
	}

	if page.nextY+height+p.padding > p.height {
		return 0, 0, false
	}
	s := shelf{y: page.nextY, height: height, nextX: p.padding + width + p.padding}
	page.shelves = append(page.shelves, s)
	page.nextY += height + p.padding
	return p.padding, s.y, true
}
