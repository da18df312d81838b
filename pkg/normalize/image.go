package normalize

import (
	"image"
)

// Gray wraps display values of one plane as an image without copying
func Gray(pix []uint8, width, height int) *image.Gray {
	return &image.Gray{
		Pix:    pix,
		Stride: width,
		Rect:   image.Rect(0, 0, width, height),
	}
}

// Composite builds an opaque RGB image from three display planes
func Composite(r, g, b []uint8, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4] = r[i]
		img.Pix[i*4+1] = g[i]
		img.Pix[i*4+2] = b[i]
		img.Pix[i*4+3] = 0xff
	}
	return img
}
