package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"  // GIF format support
	_ "image/jpeg" // JPEG format support
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/inkframe/internal/domain"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"  // BMP format support
	_ "golang.org/x/image/webp" // WebP format support
)

// FitProcessor turns arbitrary image bytes into a paletted frame that fills
// the target panel: flatten alpha, apply EXIF orientation, rotate when that
// fits better, letterbox on white and quantize to Palette.
type FitProcessor struct {
	logger *zap.Logger
	dither DitherMode
}

// NewFitProcessor creates a new fit processor. Unknown dither modes fall back to Floyd-Steinberg.
func NewFitProcessor(logger *zap.Logger, dither DitherMode) *FitProcessor {
	if dither != DitherNone {
		dither = DitherFloydSteinberg
	}
	return &FitProcessor{
		logger: logger,
		dither: dither,
	}
}

// Transform implements domain.Transformer
func (p *FitProcessor) Transform(ctx context.Context, data []byte, profile domain.DisplayProfile) (*domain.RenderedFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if profile.Width <= 0 || profile.Height <= 0 {
		return nil, fmt.Errorf("invalid display profile %s: %dx%d", profile.ModelID, profile.Width, profile.Height)
	}

	// 1. Decode, honouring EXIF orientation
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &domain.ImageDecodeError{Err: err}
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, &domain.ImageDecodeError{Err: fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())}
	}

	// 2. Drop transparency
	src := flatten(img)

	// 3. Rotate when the turned image covers more of the canvas
	rotated := shouldRotate(src.Bounds().Size(), profile)
	if rotated {
		src = imaging.Rotate90(src)
	}

	// 4. Letterbox
	size := fitSize(src.Bounds().Size(), profile)
	p.logger.Debug("Fitting image",
		zap.String("model", profile.ModelID),
		zap.Int("srcW", bounds.Dx()),
		zap.Int("srcH", bounds.Dy()),
		zap.Bool("rotated", rotated),
		zap.Int("w", size.X),
		zap.Int("h", size.Y))

	resized := imaging.Resize(src, size.X, size.Y, imaging.CatmullRom)
	canvas := imaging.New(profile.Width, profile.Height, color.White)
	canvas = imaging.Paste(canvas, resized, letterboxOffset(size, profile))

	// 5. Quantize
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame := &domain.RenderedFrame{
		Image:   p.quantize(canvas),
		Profile: profile,
		Rotated: rotated,
		Scaled:  size,
	}

	p.logger.Debug("Image transformed", zap.String("model", profile.ModelID), zap.String("dither", string(p.dither)))
	return frame, nil
}

func (p *FitProcessor) quantize(img image.Image) *image.Paletted {
	dst := image.NewPaletted(img.Bounds(), Palette)
	var drawer draw.Drawer = draw.Src
	if p.dither == DitherFloydSteinberg {
		drawer = draw.FloydSteinberg
	}
	drawer.Draw(dst, dst.Bounds(), img, img.Bounds().Min)
	return dst
}

// flatten composites images that carry any transparency over white.
// Paletted images report their tRNS entries through Opaque as well.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	background := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}

// shouldRotate compares the fit scale of both orientations. Ties keep the
// original orientation.
func shouldRotate(src image.Point, profile domain.DisplayProfile) bool {
	tw, th := float64(profile.Width), float64(profile.Height)
	sw, sh := float64(src.X), float64(src.Y)
	scaleNormal := math.Min(tw/sw, th/sh)
	scaleRotated := math.Min(tw/sh, th/sw)
	return scaleRotated > scaleNormal
}

// fitSize returns the largest size with the source aspect that fits the profile.
// The constrained axis takes the full target length and the other is rounded.
func fitSize(src image.Point, profile domain.DisplayProfile) image.Point {
	srcRatio := float64(src.X) / float64(src.Y)
	dstRatio := float64(profile.Width) / float64(profile.Height)

	switch {
	case srcRatio > dstRatio:
		h := int(math.Round(float64(src.Y) / float64(src.X) * float64(profile.Width)))
		return image.Pt(profile.Width, clampDim(h, profile.Height))
	case srcRatio < dstRatio:
		w := int(math.Round(float64(src.X) / float64(src.Y) * float64(profile.Height)))
		return image.Pt(clampDim(w, profile.Width), profile.Height)
	default:
		return image.Pt(profile.Width, profile.Height)
	}
}

// letterboxOffset centers size on the canvas. An odd leftover puts the
// extra pixel on the bottom or right border.
func letterboxOffset(size image.Point, profile domain.DisplayProfile) image.Point {
	return image.Pt((profile.Width-size.X)/2, (profile.Height-size.Y)/2)
}

func clampDim(v, limit int) int {
	return max(1, min(v, limit))
}

// EncodePNG encodes a frame as a paletted PNG
func EncodePNG(frame *domain.RenderedFrame) ([]byte, error) {
	if frame == nil || frame.Image == nil {
		return nil, errors.New("empty frame")
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, frame.Image); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
