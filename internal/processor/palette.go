package processor

import "image/color"

// Palette indices in the order the 7-color ACeP controller expects
const (
	IndexBlack uint8 = iota
	IndexWhite
	IndexGreen
	IndexBlue
	IndexRed
	IndexYellow
	IndexOrange
)

// Palette holds the inks of the 7-color panels. Every RenderedFrame is drawn with it.
var Palette = color.Palette{
	color.RGBA{R: 0, G: 0, B: 0, A: 255},
	color.RGBA{R: 255, G: 255, B: 255, A: 255},
	color.RGBA{R: 0, G: 255, B: 0, A: 255},
	color.RGBA{R: 0, G: 0, B: 255, A: 255},
	color.RGBA{R: 255, G: 0, B: 0, A: 255},
	color.RGBA{R: 255, G: 255, B: 0, A: 255},
	color.RGBA{R: 255, G: 128, B: 0, A: 255},
}

// DitherMode selects how colors are reduced to the palette
type DitherMode string

const (
	// DitherFloydSteinberg diffuses quantization error to neighbouring pixels
	DitherFloydSteinberg DitherMode = "floyd-steinberg"
	// DitherNone maps each pixel to its nearest ink
	DitherNone DitherMode = "none"
)
