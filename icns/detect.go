package icns

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mrjoshuak/go-icns/compression"
	"github.com/mrjoshuak/go-icns/internal/xdr"
)

// Payload magic numbers.
var (
	pngMagic    = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	argbMagic   = []byte("ARGB")
	plistMagic  = []byte("bplist")
	jp2BoxMagic = []byte{0x00, 0x00, 0x00, 0x0C, 'j', 'P', ' ', ' '}
	j2kMagic    = []byte{0xFF, 0x4F, 0xFF, 0x51, 0x00, 0x2F, 0x00, 0x00}
)

// DetectFormat sniffs the payload format from its leading bytes. It
// returns one of FormatPNG, FormatARGB, FormatPlist, FormatJP2,
// FormatICNS, or "" when nothing matches (packed RGB and raw bitmap data
// have no magic).
func DetectFormat(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG
	case bytes.HasPrefix(data, argbMagic):
		return FormatARGB
	case bytes.HasPrefix(data, plistMagic):
		return FormatPlist
	case bytes.HasPrefix(data, jp2BoxMagic), bytes.HasPrefix(data, j2kMagic):
		return FormatJP2
	}
	// Nested archives may be stored without the outer header, so this
	// check walks entry headers and comes last.
	if bytes.HasPrefix(data, TypeICNS[:]) || isHeaderlessArchive(data) {
		return FormatICNS
	}
	return ""
}

// DetectImageSize reads pixel dimensions from PNG, JPEG 2000, ARGB, or
// packed RGB payload data. ARGB and RGB sizes are inferred from the
// decoded length via the registry since the streams themselves carry no
// dimensions.
func DetectImageSize(data []byte, format string) (width, height int, ok bool) {
	if format == "" {
		format = DetectFormat(data)
	}
	r := xdr.NewReader(data)
	switch format {
	case FormatPNG:
		// IHDR width and height at offsets 16 and 20
		if r.SetPos(16) != nil {
			return 0, 0, false
		}
		w, err := r.ReadUint32()
		if err != nil {
			return 0, 0, false
		}
		h, err := r.ReadUint32()
		if err != nil {
			return 0, 0, false
		}
		return int(w), int(h), true
	case FormatARGB:
		if len(data) < 4 {
			return 0, 0, false
		}
		total := compression.UnpackedSize(data[4:])
		if m := matchMaxSize(total, FormatARGB); m != nil {
			return m.Width, m.Height, true
		}
		return 0, 0, false
	case FormatRGB:
		total := compression.UnpackedSize(data)
		if m := matchMaxSize(total, FormatRGB); m != nil {
			return m.Width, m.Height, true
		}
		return 0, 0, false
	case FormatJP2:
		if bytes.HasPrefix(data, j2kMagic[:4]) {
			// Raw codestream: SIZ grid dimensions at offset 8
			if r.SetPos(8) != nil {
				return 0, 0, false
			}
			w, err := r.ReadUint32()
			if err != nil {
				return 0, 0, false
			}
			h, err := r.ReadUint32()
			if err != nil {
				return 0, 0, false
			}
			return int(w), int(h), true
		}
		// Boxed JP2: signature box, type box, then the image header box
		// nested in the header super box
		if r.SetPos(12) != nil {
			return 0, 0, false
		}
		ftypLen, err := r.ReadUint32()
		if err != nil {
			return 0, 0, false
		}
		if r.SetPos(12+int(ftypLen)+16) != nil {
			return 0, 0, false
		}
		h, err := r.ReadUint32()
		if err != nil {
			return 0, 0, false
		}
		w, err := r.ReadUint32()
		if err != nil {
			return 0, 0, false
		}
		return int(w), int(h), true
	}
	return 0, 0, false
}

// isHeaderlessArchive reports whether data looks like archive content
// stored without the outer 8-byte header, as the variant entries (dark,
// selected, template) commonly are. It walks up to two entry headers and
// requires registered tags with consistent lengths.
func isHeaderlessArchive(data []byte) bool {
	offset := 0
	for i := 0; i < 2; i++ {
		if offset+headerSize > len(data) {
			return false
		}
		var tag OSType
		copy(tag[:], data[offset:])
		if _, ok := Lookup(tag); !ok {
			return false
		}
		size := int(xdr.ByteOrder.Uint32(data[offset+4:]))
		if size == 0 {
			return false
		}
		offset += size
		if offset > len(data) {
			return false
		}
		if offset == len(data) {
			return true
		}
	}
	return true
}

// extCertain reports whether every accepted format of m is sniffable, in
// which case a payload with no recognizable magic cannot belong to m.
func extCertain(m *Media) bool {
	for _, f := range m.Formats {
		switch f {
		case FormatPNG, FormatARGB, FormatPlist, FormatJP2, FormatICNS:
		default:
			return false
		}
	}
	return true
}

// variantNames are the filename suffixes selecting nested-archive tags.
var variantNames = []string{"template", "selected", "dark"}

// GuessMedia determines the media type for a payload by inspecting its
// bytes and, when given, the source filename. Naming conventions:
//
//   - name the file after the tag itself ("ic04.png")
//   - use an "@2x" suffix for retina images
//   - use a "dark", "selected", or "template" suffix for nested archives
//
// It fails with ErrAmbiguousKey when no unique type can be resolved.
func GuessMedia(data []byte, filename string) (*Media, error) {
	base := ""
	if filename != "" {
		base = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		if t, err := ParseType(base); err == nil {
			if m, ok := Lookup(t); ok {
				return m, nil
			}
		}
	}

	format := DetectFormat(data)
	if format == "" && strings.HasSuffix(filename, ".rgb") {
		format = FormatRGB
	}

	width, height := 0, 0
	if format != "" {
		width, height, _ = DetectImageSize(data, format)
	}
	retina := strings.HasSuffix(strings.ToLower(base), "@2x")

	variant := ""
	if format == FormatICNS && filename != "" {
		for _, v := range variantNames {
			if strings.HasSuffix(filename, v+".icns") {
				variant = v
			}
		}
	}

	var choices []*Media
	for i := range mediaTypes {
		m := &mediaTypes[i]
		if retina != m.Retina() {
			continue
		}
		if format != "" {
			if width != m.Width || height != m.Height || !m.IsType(format) {
				continue
			}
			if variant != "" && variant != m.Desc {
				continue
			}
		} else if extCertain(m) {
			continue
		}
		choices = append(choices, m)
	}

	if len(choices) == 1 {
		return choices[0], nil
	}
	// Prefer the type that lists the sniffed format earliest
	if format != "" {
		bestIdx := len(mediaTypes)
		var best []*Media
		for _, m := range choices {
			for i, f := range m.Formats {
				if f != format {
					continue
				}
				if i < bestIdx {
					bestIdx = i
					best = []*Media{m}
				} else if i == bestIdx {
					best = append(best, m)
				}
				break
			}
		}
		if len(best) == 1 {
			return best[0], nil
		}
	}

	tags := make([]string, len(choices))
	for i, m := range choices {
		tags[i] = m.Type.String()
	}
	return nil, fmt.Errorf("%w: %q matches [%s]",
		ErrAmbiguousKey, filename, strings.Join(tags, " "))
}
