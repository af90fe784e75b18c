// Package boardimg renders a room's board as a PNG snapshot. The grid is
// built as SVG and rasterized, so the output stays crisp at any size.
package boardimg

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/xfactor-puzzles/triviatoe/internal/room"
)

const (
	DefaultSize = 360

	gridColor = "#2b2b2b"
	xColor    = "#d64541"
	oColor    = "#2e86c1"
)

// Render rasterizes the board to a square image of size pixels.
func Render(r *room.Room, size int) (image.Image, error) {
	if size <= 0 {
		size = DefaultSize
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(boardSVG(r)))
	if err != nil {
		return nil, fmt.Errorf("parse board svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}

// WritePNG renders the board and encodes it as PNG.
func WritePNG(w io.Writer, r *room.Room, size int) error {
	img, err := Render(r, size)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// boardSVG lays the 3x3 grid out on a 300x300 canvas and draws each solved
// cell's mark.
func boardSVG(r *room.Room) string {
	var b bytes.Buffer
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 300 300">`)

	// Grid lines.
	for _, at := range []int{100, 200} {
		fmt.Fprintf(&b, `<path d="M %d 10 L %d 290" stroke="%s" stroke-width="4" stroke-linecap="round" fill="none"/>`, at, at, gridColor)
		fmt.Fprintf(&b, `<path d="M 10 %d L 290 %d" stroke="%s" stroke-width="4" stroke-linecap="round" fill="none"/>`, at, at, gridColor)
	}

	for i, cell := range r.Board {
		if !cell.Solved {
			continue
		}
		cx := (i%3)*100 + 50
		cy := (i/3)*100 + 50
		switch cell.SolvedBy {
		case room.SymbolX:
			fmt.Fprintf(&b, `<path d="M %d %d L %d %d M %d %d L %d %d" stroke="%s" stroke-width="8" stroke-linecap="round" fill="none"/>`,
				cx-25, cy-25, cx+25, cy+25, cx+25, cy-25, cx-25, cy+25, xColor)
		case room.SymbolO:
			fmt.Fprintf(&b, `<circle cx="%d" cy="%d" r="28" stroke="%s" stroke-width="8" fill="none"/>`, cx, cy, oColor)
		}
	}

	b.WriteString(`</svg>`)
	return b.String()
}
