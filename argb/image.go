// Package argb converts between ICNS pixel encodings and an in-memory
// RGBA raster.
//
// The raster is held as four separate channel planes because every legacy
// ICNS pixel encoding is channel-major: packed-channel run-length data
// (is32, il32, ih32, ic04, ic05, icsb), planar RGB with a separate alpha
// mask (it32 plus the *8mk mask entries), and 1-bit monochrome icons.
// Standard compressed raster images (PNG, JPEG 2000) convert losslessly
// into and out of the same representation.
package argb

import (
	"errors"
	"image"

	"github.com/mrjoshuak/go-icns/compression"
)

// Pixel codec errors
var (
	// ErrSizeMismatch is returned when a byte stream does not match the
	// length implied by the image dimensions.
	ErrSizeMismatch = errors.New("argb: data length does not match dimensions")

	// ErrBadMagic is returned when an ARGB payload does not start with
	// the "ARGB" marker.
	ErrBadMagic = errors.New("argb: missing ARGB magic")
)

// argbMagic prefixes PackBytes-coded ARGB payloads (ic04, ic05, icsb).
var argbMagic = []byte("ARGB")

// Image is an in-memory RGBA raster with 8 bits per channel, stored as
// separate channel planes of Width*Height bytes each.
type Image struct {
	Width  int
	Height int
	A      []uint8
	R      []uint8
	G      []uint8
	B      []uint8
}

// New creates a fully transparent black image.
func New(width, height int) *Image {
	n := width * height
	return &Image{
		Width:  width,
		Height: height,
		A:      make([]uint8, n),
		R:      make([]uint8, n),
		G:      make([]uint8, n),
		B:      make([]uint8, n),
	}
}

// FromImage converts any image.Image into channel planes.
// The conversion is a direct channel mapping; no resizing or color-space
// conversion is performed.
func FromImage(src image.Image) *Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	im := New(w, h)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := src.At(x, y).RGBA()
			im.R[i] = uint8(r >> 8)
			im.G[i] = uint8(g >> 8)
			im.B[i] = uint8(b >> 8)
			im.A[i] = uint8(a >> 8)
			i++
		}
	}
	return im
}

// NRGBA returns the image as a stdlib NRGBA raster.
func (im *Image) NRGBA() *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, im.Width, im.Height))
	n := im.Width * im.Height
	for i := 0; i < n; i++ {
		dst.Pix[i*4+0] = im.R[i]
		dst.Pix[i*4+1] = im.G[i]
		dst.Pix[i*4+2] = im.B[i]
		dst.Pix[i*4+3] = im.A[i]
	}
	return dst
}

// SetMask replaces the alpha plane with a raw 8-bit mask stream.
// The mask must hold exactly one byte per pixel.
func (im *Image) SetMask(mask []byte) error {
	if len(mask) != im.Width*im.Height {
		return ErrSizeMismatch
	}
	im.A = append([]uint8(nil), mask...)
	return nil
}

// Mask returns a copy of the alpha plane as a raw 8-bit mask stream.
func (im *Image) Mask() []byte {
	return append([]byte(nil), im.A...)
}

// FromMono expands 1-bit icon data into an image. Each bit becomes a
// black-or-white pixel, most significant bit first. When hasMask is true
// the data carries two planes, icon first, 1-bit mask second; otherwise
// the image is fully opaque.
func FromMono(data []byte, width, height int, hasMask bool) (*Image, error) {
	planes := 1
	if hasMask {
		planes = 2
	}
	if len(data)*8 != width*height*planes {
		return nil, ErrSizeMismatch
	}

	bits := make([]uint8, 0, len(data)*8)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			if b&(1<<uint(i)) != 0 {
				bits = append(bits, 255)
			} else {
				bits = append(bits, 0)
			}
		}
	}

	im := &Image{Width: width, Height: height}
	n := width * height
	// Separate planes, like New: callers may mutate one channel alone
	im.R = bits[:n:n]
	im.G = append([]uint8(nil), bits[:n]...)
	im.B = append([]uint8(nil), bits[:n]...)
	if hasMask {
		im.A = bits[n:]
	} else {
		im.A = make([]uint8, n)
		for i := range im.A {
			im.A[i] = 255
		}
	}
	return im, nil
}

// EncodeRGB encodes the color planes as packed-channel run-length data:
// the PackBytes streams for R, G and B concatenated in channel order.
// The alpha plane is not part of the stream; it travels as a separate
// mask entry (see Mask).
func (im *Image) EncodeRGB() []byte {
	out := compression.Pack(im.R)
	out = append(out, compression.Pack(im.G)...)
	return append(out, compression.Pack(im.B)...)
}

// DecodeRGB decodes packed-channel run-length RGB data of the given
// dimensions. The alpha plane is set fully opaque; callers holding a
// matching mask entry apply it with SetMask.
func DecodeRGB(data []byte, width, height int) (*Image, error) {
	n := width * height
	raw, err := compression.Unpack(data, n*3)
	if err != nil {
		return nil, err
	}
	im := &Image{Width: width, Height: height}
	im.R = raw[:n]
	im.G = raw[n : n*2]
	im.B = raw[n*2:]
	im.A = make([]uint8, n)
	for i := range im.A {
		im.A[i] = 255
	}
	return im, nil
}

// EncodeARGB encodes all four planes as an ARGB payload: the "ARGB"
// marker followed by the PackBytes streams for A, R, G and B.
func (im *Image) EncodeARGB() []byte {
	out := append([]byte(nil), argbMagic...)
	out = append(out, compression.Pack(im.A)...)
	out = append(out, compression.Pack(im.R)...)
	out = append(out, compression.Pack(im.G)...)
	return append(out, compression.Pack(im.B)...)
}

// DecodeARGB decodes an ARGB payload of the given dimensions.
func DecodeARGB(data []byte, width, height int) (*Image, error) {
	if len(data) < len(argbMagic) || string(data[:4]) != string(argbMagic) {
		return nil, ErrBadMagic
	}
	n := width * height
	raw, err := compression.Unpack(data[4:], n*4)
	if err != nil {
		return nil, err
	}
	im := &Image{Width: width, Height: height}
	im.A = raw[:n]
	im.R = raw[n : n*2]
	im.G = raw[n*2 : n*3]
	im.B = raw[n*3:]
	return im, nil
}
