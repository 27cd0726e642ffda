package lightmap

import (
	"math/rand/v2"
	"testing"
)

func overlaps(a, b RectPackerItem, padding int) bool {
	return a.X < b.X+b.Width+padding && b.X < a.X+a.Width+padding &&
		a.Y < b.Y+b.Height+padding && b.Y < a.Y+a.Height+padding
}

func TestPackerPlacesSmallTilesOnFirstPage(t *testing.T) {
	p := NewRectPacker(1024, 1024, TilePadding)
	var items []RectPackerItem
	for i := 0; i < 3; i++ {
		item := p.Alloc(10, 10)
		if item.PageIndex != 0 {
			t.Fatalf("tile %d went to page %d", i, item.PageIndex)
		}
		if item.X < TilePadding || item.Y < TilePadding {
			t.Errorf("tile %d at (%d,%d) ignores the border padding", i, item.X, item.Y)
		}
		items = append(items, item)
	}
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if overlaps(items[i], items[j], TilePadding) {
				t.Errorf("tiles %d and %d are closer than the padding: %+v %+v", i, j, items[i], items[j])
			}
		}
	}
}

func TestPackerSpillsWhenFull(t *testing.T) {
	// 13 texels per tile including padding plus the leading 3: 4 per row, 4 rows
	p := NewRectPacker(56, 56, TilePadding)
	accepted := 0
	for i := 0; i < 20; i++ {
		if p.Alloc(10, 10).PageIndex == 0 {
			accepted++
		}
	}
	if accepted != 16 {
		t.Errorf("accepted %d tiles on page 0, want 16", accepted)
	}
	if p.PageCount() != 2 {
		t.Errorf("page count = %d, want 2", p.PageCount())
	}
}

func TestPackerOversizedGetsOwnPage(t *testing.T) {
	p := NewRectPacker(64, 64, TilePadding)
	item := p.Alloc(60, 10)
	if item.PageIndex == 0 {
		t.Fatalf("oversized tile placed on page 0")
	}
	if small := p.Alloc(8, 8); small.PageIndex != 0 {
		t.Errorf("small tile after oversized went to page %d", small.PageIndex)
	}
}

func TestPackerClearKeepsFirstPage(t *testing.T) {
	p := NewRectPacker(32, 32, TilePadding)
	for i := 0; i < 10; i++ {
		p.Alloc(20, 20)
	}
	p.Clear()
	if p.PageCount() != 1 {
		t.Fatalf("page count after Clear = %d", p.PageCount())
	}
	if item := p.Alloc(20, 20); item.PageIndex != 0 || item.X != TilePadding || item.Y != TilePadding {
		t.Errorf("first alloc after Clear = %+v", item)
	}
}

func TestPackerMixedSizesStayApartAndInBounds(t *testing.T) {
	const width, height = 256, 256
	rng := rand.New(rand.NewPCG(7, 11))
	p := NewRectPacker(width, height, TilePadding)

	pages := map[int][]RectPackerItem{}
	for i := 0; i < 400; i++ {
		w, h := 1+rng.IntN(48), 1+rng.IntN(48)
		item := p.Alloc(w, h)
		if item.Width != w || item.Height != h {
			t.Fatalf("alloc %d resized %dx%d to %+v", i, w, h, item)
		}
		pages[item.PageIndex] = append(pages[item.PageIndex], item)
	}
	if len(pages[0]) == 0 {
		t.Fatal("nothing placed on page 0")
	}

	for page, items := range pages {
		for i, a := range items {
			if a.X < TilePadding || a.Y < TilePadding ||
				a.X+a.Width+TilePadding > width || a.Y+a.Height+TilePadding > height {
				t.Errorf("page %d item %d out of bounds: %+v", page, i, a)
			}
			for j := i + 1; j < len(items); j++ {
				if overlaps(a, items[j], TilePadding) {
					t.Errorf("page %d items %d and %d are closer than the padding: %+v %+v", page, i, j, a, items[j])
				}
			}
		}
	}
}
