package media

import (
	"image"
	"image/color"
)

// Frame is a sampled picture paired with its presentation time in seconds.
// Pixels are packed RGB24 at the source resolution. The detector retains at
// most one Frame across iterations; everything else is transient.
type Frame struct {
	// Timestamp is the presentation time in seconds, monotonically
	// non-decreasing across the stream.
	Timestamp float64

	Width  int
	Height int

	// Pix is the packed RGB24 plane, len = Width*Height*3.
	Pix []byte
}

// Luma converts the frame to a single-channel 8-bit luminance plane using
// the BT.601 integer weights.
func (f *Frame) Luma() []uint8 {
	n := f.Width * f.Height
	luma := make([]uint8, n)
	for i := 0; i < n; i++ {
		r := uint32(f.Pix[i*3])
		g := uint32(f.Pix[i*3+1])
		b := uint32(f.Pix[i*3+2])
		luma[i] = uint8((299*r + 587*g + 114*b) / 1000)
	}
	return luma
}

// Image returns the frame as an image.Image for encoding. The returned image
// shares no storage with the frame.
func (f *Frame) Image() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := (y*f.Width + x) * 3
			img.SetRGBA(x, y, color.RGBA{R: f.Pix[i], G: f.Pix[i+1], B: f.Pix[i+2], A: 255})
		}
	}
	return img
}
