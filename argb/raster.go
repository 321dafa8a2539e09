package argb

import (
	"bytes"
	"errors"
	"image/png"

	"github.com/mrjoshuak/go-jpeg2000"
)

// ErrUnsupportedRaster is returned when raster data is neither PNG nor
// JPEG 2000.
var ErrUnsupportedRaster = errors.New("argb: unsupported raster format")

// Raster magic numbers. JPEG 2000 appears either as a boxed JP2 file or
// as a raw codestream.
var (
	pngMagic    = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	jp2BoxMagic = []byte{0x00, 0x00, 0x00, 0x0C, 'j', 'P', ' ', ' '}
	j2kMagic    = []byte{0xFF, 0x4F, 0xFF, 0x51}
)

// DecodeRaster decodes PNG or JPEG 2000 data into an Image. Dimensions
// are read from the image itself, never asserted by the caller.
func DecodeRaster(data []byte) (*Image, error) {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return FromImage(img), nil
	case bytes.HasPrefix(data, jp2BoxMagic), bytes.HasPrefix(data, j2kMagic):
		img, err := jpeg2000.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return FromImage(img), nil
	}
	return nil, ErrUnsupportedRaster
}

// EncodePNG encodes the image as PNG. The mapping is lossless: no
// resizing, color-space conversion, or compression-level negotiation.
func (im *Image) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, im.NRGBA()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeJP2 encodes the image as a lossless boxed JPEG 2000 file.
func (im *Image) EncodeJP2() ([]byte, error) {
	var buf bytes.Buffer
	opts := &jpeg2000.Options{
		Format:   jpeg2000.FormatJP2,
		Lossless: true,
	}
	if err := jpeg2000.Encode(&buf, im.NRGBA(), opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
