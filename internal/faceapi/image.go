package faceapi

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 95

// PrepareImage decodes any supported raster format and re-encodes it as an
// 8-bit RGB JPEG, which is what both face backends consume. Transparent
// pixels are flattened onto white. Images whose longest edge exceeds maxSize
// are scaled down; maxSize <= 0 keeps the original size.
func PrepareImage(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	rgb := toRGB(resizeToFit(img, maxSize))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return buf.Bytes(), nil
}

// resizeToFit resizes an image to fit within maxSize while maintaining aspect ratio
func resizeToFit(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(1, height*maxSize/width)
	} else {
		newHeight = maxSize
		newWidth = max(1, width*maxSize/height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// toRGB draws img over an opaque white canvas anchored at the origin.
func toRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}
