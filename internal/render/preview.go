// Package render turns a voxel world into artefacts an external viewer can
// display: an isometric PNG preview and a glTF binary scene.
package render

import (
	"cmp"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"iter"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"voxelterrain/internal/world"
)

// Source is the read-only view of a world the renderers consume.
type Source interface {
	All() iter.Seq[world.Voxel]
	Get(p world.Position) (world.Voxel, bool)
}

const (
	previewTileWidth    = 32
	previewTileHeight   = 16
	previewBlockHeight  = 16
	previewAmbientLight = 0.2
)

var previewBackground = color.NRGBA{R: 10, G: 10, B: 18, A: 255}

type voxelPreview struct {
	local   world.Position
	kind    world.Kind
	screenX int
	screenY int
}

// SavePreview renders src and writes the PNG to path, creating parent
// directories as needed.
func SavePreview(src Source, path string) error {
	if path == "" {
		return fmt.Errorf("preview path is empty")
	}
	img, err := RenderPreview(src)
	if err != nil {
		return err
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

// RenderPreview draws an isometric view of src. World x runs down-right, z
// down-left and y up. Voxels whose three visible faces are covered by
// neighbours are skipped.
func RenderPreview(src Source) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("render preview: source is nil")
	}

	voxels := collect(src)
	if len(voxels) == 0 {
		img := image.NewNRGBA(image.Rect(0, 0, previewTileWidth, previewTileHeight))
		draw.Draw(img, img.Bounds(), &image.Uniform{previewBackground}, image.Point{}, draw.Src)
		return img, nil
	}

	bounds := boundsOf(voxels)
	spanX := bounds.Max.X - bounds.Min.X
	spanY := bounds.Max.Y - bounds.Min.Y
	spanZ := bounds.Max.Z - bounds.Min.Z

	width := (spanX+spanZ)*previewTileWidth/2 + previewTileWidth + 1
	offsetY := (spanY + 1) * previewBlockHeight
	height := offsetY + (spanX+spanZ)*previewTileHeight/2 + previewTileHeight + 1
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{previewBackground}, image.Point{}, draw.Src)

	visible := make([]voxelPreview, 0, len(voxels)/4+1)
	for _, v := range voxels {
		if hidden(src, v.Position) {
			continue
		}
		local := world.Position{
			X: v.Position.X - bounds.Min.X,
			Y: v.Position.Y - bounds.Min.Y,
			Z: v.Position.Z - bounds.Min.Z,
		}
		visible = append(visible, voxelPreview{
			local:   local,
			kind:    v.Kind,
			screenX: (local.X - local.Z) * previewTileWidth / 2,
			screenY: (local.X+local.Z)*previewTileHeight/2 - local.Y*previewBlockHeight,
		})
	}

	// Painter's order: back rows first, then bottom to top.
	slices.SortFunc(visible, func(a, b voxelPreview) int {
		if c := cmp.Compare(a.local.X+a.local.Z, b.local.X+b.local.Z); c != 0 {
			return c
		}
		if c := cmp.Compare(a.local.Y, b.local.Y); c != 0 {
			return c
		}
		return cmp.Compare(a.local.X, b.local.X)
	})

	offsetX := spanZ*previewTileWidth/2 + previewTileWidth/2
	for _, info := range visible {
		renderVoxelPreview(img, offsetX+info.screenX, offsetY+info.screenY, info.kind)
	}
	return img, nil
}

func hidden(src Source, p world.Position) bool {
	for _, n := range []world.Position{{Y: 1}, {X: 1}, {Z: 1}} {
		if _, ok := src.Get(p.Add(n)); !ok {
			return false
		}
	}
	return true
}

func renderVoxelPreview(img *image.NRGBA, baseX, baseY int, kind world.Kind) {
	baseColor := resolveKindColor(kind)

	topColor := applyLighting(baseColor, previewAmbientLight+0.8)
	leftColor := applyLighting(baseColor, previewAmbientLight+0.45)
	rightColor := applyLighting(baseColor, previewAmbientLight+0.3)

	top := []image.Point{
		{X: baseX, Y: baseY - previewBlockHeight},
		{X: baseX + previewTileWidth/2, Y: baseY - previewBlockHeight + previewTileHeight/2},
		{X: baseX, Y: baseY - previewBlockHeight + previewTileHeight},
		{X: baseX - previewTileWidth/2, Y: baseY - previewBlockHeight + previewTileHeight/2},
	}
	left := []image.Point{
		{X: baseX - previewTileWidth/2, Y: baseY - previewBlockHeight + previewTileHeight/2},
		{X: baseX, Y: baseY - previewBlockHeight + previewTileHeight},
		{X: baseX, Y: baseY + previewTileHeight},
		{X: baseX - previewTileWidth/2, Y: baseY + previewTileHeight/2},
	}
	right := []image.Point{
		{X: baseX + previewTileWidth/2, Y: baseY - previewBlockHeight + previewTileHeight/2},
		{X: baseX, Y: baseY - previewBlockHeight + previewTileHeight},
		{X: baseX, Y: baseY + previewTileHeight},
		{X: baseX + previewTileWidth/2, Y: baseY + previewTileHeight/2},
	}

	fillPolygon(img, left, leftColor)
	fillPolygon(img, right, rightColor)
	fillPolygon(img, top, topColor)
}

func resolveKindColor(kind world.Kind) color.NRGBA {
	if col, ok := parseHexColor(world.AppearanceOf(kind).Color); ok {
		return col
	}
	return color.NRGBA{R: 128, G: 128, B: 128, A: 255}
}

func parseHexColor(value string) (color.NRGBA, bool) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(trimmed) != 6 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
}

func applyLighting(base color.NRGBA, factor float64) color.NRGBA {
	factor = math.Max(0, math.Min(1, factor))
	return color.NRGBA{
		R: uint8(math.Round(float64(base.R) * factor)),
		G: uint8(math.Round(float64(base.G) * factor)),
		B: uint8(math.Round(float64(base.B) * factor)),
		A: 255,
	}
}

func fillPolygon(img *image.NRGBA, pts []image.Point, col color.NRGBA) {
	if len(pts) < 3 {
		return
	}
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	bounds := img.Bounds()
	minY = max(minY, bounds.Min.Y)
	maxY = min(maxY, bounds.Max.Y-1)

	xs := make([]int, 0, len(pts))
	for y := minY; y <= maxY; y++ {
		xs = xs[:0]
		for i := range pts {
			j := (i + 1) % len(pts)
			x1, y1 := pts[i].X, pts[i].Y
			x2, y2 := pts[j].X, pts[j].Y
			if y1 == y2 || y < min(y1, y2) || y >= max(y1, y2) {
				continue
			}
			xs = append(xs, x1+(y-y1)*(x2-x1)/(y2-y1))
		}
		if len(xs) < 2 {
			continue
		}
		slices.Sort(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			xStart := max(xs[i], bounds.Min.X)
			xEnd := min(xs[i+1], bounds.Max.X-1)
			for x := xStart; x <= xEnd; x++ {
				img.SetNRGBA(x, y, col)
			}
		}
	}
}

// collect drains src into a slice ordered by position.
func collect(src Source) []world.Voxel {
	var out []world.Voxel
	for v := range src.All() {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b world.Voxel) int {
		if c := cmp.Compare(a.Position.X, b.Position.X); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Position.Z, b.Position.Z); c != 0 {
			return c
		}
		return cmp.Compare(a.Position.Y, b.Position.Y)
	})
	return out
}

func boundsOf(voxels []world.Voxel) world.Bounds {
	b := world.Bounds{Min: voxels[0].Position, Max: voxels[0].Position}
	for _, v := range voxels[1:] {
		p := v.Position
		b.Min = world.Position{X: min(b.Min.X, p.X), Y: min(b.Min.Y, p.Y), Z: min(b.Min.Z, p.Z)}
		b.Max = world.Position{X: max(b.Max.X, p.X), Y: max(b.Max.Y, p.Y), Z: max(b.Max.Z, p.Z)}
	}
	return b
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
