package argb

// The planar codec serves the 128x128 legacy type (it32) and its mask
// (t8mk). The RGB stream is interleaved R,G,B triples in row-major order;
// the alpha mask is a separate stream of one byte per pixel. Historical
// encoders prefix the 128x128 RGB stream with four zero bytes; the raw
// variant omits the prefix.

// planarPrefixSize is the length of the all-zero prefix historical
// encoders emit before 128x128 RGB streams.
const planarPrefixSize = 4

// hasPlanarPrefix reports whether the RGB stream for the given dimensions
// carries the historical zero prefix.
func hasPlanarPrefix(width, height int, raw bool) bool {
	return width == 128 && height == 128 && !raw
}

// PackPlanar packs the image into an interleaved RGB stream and a
// separate alpha mask stream. For 128x128 images the RGB stream starts
// with four zero bytes unless raw is set.
func (im *Image) PackPlanar(raw bool) (rgb, mask []byte) {
	n := im.Width * im.Height
	size := n * 3
	if hasPlanarPrefix(im.Width, im.Height, raw) {
		size += planarPrefixSize
	}
	rgb = make([]byte, size)
	pos := size - n*3 // zero prefix, if any, is already in place
	for i := 0; i < n; i++ {
		rgb[pos+0] = im.R[i]
		rgb[pos+1] = im.G[i]
		rgb[pos+2] = im.B[i]
		pos += 3
	}
	return rgb, im.Mask()
}

// UnpackPlanar is the exact inverse of PackPlanar. It fails with
// ErrSizeMismatch if either stream does not match the dimensions,
// accounting for the conditional 128x128 prefix. A nil mask yields a
// fully opaque image.
func UnpackPlanar(rgb, mask []byte, width, height int, raw bool) (*Image, error) {
	n := width * height
	expected := n * 3
	if hasPlanarPrefix(width, height, raw) {
		expected += planarPrefixSize
	}
	if len(rgb) != expected {
		return nil, ErrSizeMismatch
	}
	if mask != nil && len(mask) != n {
		return nil, ErrSizeMismatch
	}

	im := New(width, height)
	pos := len(rgb) - n*3
	for i := 0; i < n; i++ {
		im.R[i] = rgb[pos+0]
		im.G[i] = rgb[pos+1]
		im.B[i] = rgb[pos+2]
		pos += 3
	}
	if mask != nil {
		copy(im.A, mask)
	} else {
		for i := range im.A {
			im.A[i] = 255
		}
	}
	return im, nil
}
