package boardimg

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/xfactor-puzzles/triviatoe/internal/room"
)

func testRoom() *room.Room {
	r := &room.Room{Code: "ABCDEF", Board: make([]room.Cell, room.BoardSize)}
	r.Board[0] = room.Cell{Solved: true, SolvedBy: room.SymbolX}
	r.Board[4] = room.Cell{Solved: true, SolvedBy: room.SymbolO}
	return r
}

func TestRenderProducesOpaqueImage(t *testing.T) {
	img, err := Render(testRoom(), 120)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := img.Bounds().Dx(); got != 120 {
		t.Fatalf("width = %d", got)
	}

	// The grid must have put something darker than the background on the
	// canvas.
	white := color.RGBAModel.Convert(color.White)
	marked := false
	for y := 0; y < 120 && !marked; y++ {
		for x := 0; x < 120; x++ {
			if img.At(x, y) != white {
				marked = true
				break
			}
		}
	}
	if !marked {
		t.Fatalf("rendered board is blank")
	}
}

func TestWritePNGEncodes(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, testRoom(), 0); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != DefaultSize {
		t.Fatalf("default size = %d", img.Bounds().Dx())
	}
}
