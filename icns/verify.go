package icns

import (
	"bytes"
	"fmt"
	"iter"

	"github.com/mrjoshuak/go-icns/compression"
	"github.com/mrjoshuak/go-icns/internal/xdr"
)

// Severity classifies a verification finding.
type Severity int

const (
	// SeverityWarning marks advisory findings: the archive is readable
	// but unusual (unknown tags, missing mask pairs, redundant entries).
	SeverityWarning Severity = iota
	// SeverityError marks structural or content defects.
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Issue is one problem found by Verify.
type Issue struct {
	Severity Severity
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Severity, i.Message)
}

// Verify scans an archive for structural and content problems. It never
// fails; every detectable anomaly becomes an Issue and scanning
// continues as far as the data allows. An empty sequence means the
// archive is structurally sound. The sequence is lazy and restartable:
// ranging over it twice performs two independent scans of the same bytes
// with identical results.
func Verify(data []byte) iter.Seq[Issue] {
	return func(yield func(Issue) bool) {
		verifyScan(data, yield)
	}
}

// errf yields an error-level issue.
func errf(yield func(Issue) bool, format string, args ...any) bool {
	return yield(Issue{SeverityError, fmt.Sprintf(format, args...)})
}

// warnf yields a warning-level issue.
func warnf(yield func(Issue) bool, format string, args ...any) bool {
	return yield(Issue{SeverityWarning, fmt.Sprintf(format, args...)})
}

func verifyScan(data []byte, yield func(Issue) bool) {
	if len(data) < headerSize {
		errf(yield, "truncated header: %d bytes", len(data))
		return
	}
	var magic OSType
	copy(magic[:], data)
	if magic != TypeICNS {
		errf(yield, "not an ICNS archive, missing %q header", TypeICNS)
		return
	}
	total := int(xdr.ByteOrder.Uint32(data[4:]))
	if total != len(data) {
		if !errf(yield, "header file-size != actual size: %d != %d", total, len(data)) {
			return
		}
	}

	var entries []tocRecord
	var tocPayload []byte
	seen := map[OSType]bool{}
	var binTags []OSType

	offset := headerSize
	for offset < len(data) {
		if offset+headerSize > len(data) {
			errf(yield, "truncated entry header at offset %d", offset)
			return
		}
		var tag OSType
		copy(tag[:], data[offset:])
		size := int(xdr.ByteOrder.Uint32(data[offset+4:]))
		if size < headerSize || offset+size > len(data) {
			errf(yield, "entry %s declares %d bytes at offset %d, %d remain",
				tag, size, offset, len(data)-offset)
			return
		}
		payload := data[offset+headerSize : offset+size]
		offset += size

		if seen[tag] {
			if !errf(yield, "duplicate entry: %s", tag) {
				return
			}
		}
		seen[tag] = true

		if tag == TypeTOC {
			tocPayload = payload
			continue
		}
		entries = append(entries, tocRecord{tag, size})

		m, ok := Lookup(tag)
		if !ok {
			if !warnf(yield, "unsupported icns type: %s", tag) {
				return
			}
			continue
		}

		format := DetectFormat(payload)
		if format == "" {
			binTags = append(binTags, tag)
		}
		expected := m.IsType(format)
		if format == "" {
			expected = m.IsBinary()
		}
		if !expected {
			got := format
			if got == "" {
				got = FormatBinary
			}
			if !errf(yield, "unexpected type for key %s: %s != %v", tag, got, m.Formats) {
				return
			}
		}
		switch format {
		case FormatPNG, FormatJP2, FormatICNS, FormatPlist:
			continue
		}

		if !verifyPixelSize(yield, m, payload, format) {
			return
		}
	}

	if tocPayload != nil && !verifyTOC(yield, tocPayload, entries) {
		return
	}
	if !verifyPairings(yield, binTags, seen) {
		return
	}
}

// verifyPixelSize checks that a pixel payload decodes to the registered
// dimensions. Reports whether scanning should continue.
func verifyPixelSize(yield func(Issue) bool, m *Media, payload []byte, format string) bool {
	maxSize := m.MaxSize()
	if maxSize == 0 {
		return true
	}

	switch {
	case isPlanarType(m):
		if len(payload) >= 4 && len(payload) != m.Width*m.Height*3 &&
			!bytes.Equal(payload[:4], []byte{0, 0, 0, 0}) {
			if !warnf(yield, "unexpected %s data header: % x", m.Type, payload[:4]) {
				return false
			}
		}
		want := m.Width * m.Height * 3
		if len(payload) != want && len(payload) != want+4 {
			return errf(yield, "invalid data length for %s: %d != %d",
				m.Type, len(payload), want+4)
		}
	case m.IsType(FormatRGB):
		if got := compression.UnpackedSize(payload); got != maxSize {
			return errf(yield, "invalid data length for %s: %d != %d",
				m.Type, got, maxSize)
		}
	case format == FormatARGB:
		if got := compression.UnpackedSize(payload[4:]); got != maxSize {
			return errf(yield, "invalid data length for %s: %d != %d",
				m.Type, got, maxSize)
		}
	default:
		if len(payload) != maxSize {
			return errf(yield, "invalid data length for %s: %d != %d",
				m.Type, len(payload), maxSize)
		}
	}
	return true
}

// tocRecord is one table-of-contents record: a tag and the full size of
// its entry including the 8-byte entry header.
type tocRecord struct {
	tag  OSType
	size int
}

// verifyTOC checks the table of contents against the actual entries.
// Reports whether scanning should continue.
func verifyTOC(yield func(Issue) bool, toc []byte, entries []tocRecord) bool {
	if len(toc)%headerSize != 0 {
		return errf(yield, "table of contents length %d is not a multiple of 8", len(toc))
	}
	records := len(toc) / headerSize
	if records != len(entries) {
		if !errf(yield, "table of contents lists %d entries, archive has %d",
			records, len(entries)) {
			return false
		}
	}
	for i := 0; i < records && i < len(entries); i++ {
		var tag OSType
		copy(tag[:], toc[i*headerSize:])
		size := int(xdr.ByteOrder.Uint32(toc[i*headerSize+4:]))
		if tag != entries[i].tag || size != entries[i].size {
			if !errf(yield, "table of contents mismatch at %d: %s(%d) != %s(%d)",
				i, tag, size, entries[i].tag, entries[i].size) {
				return false
			}
		}
	}
	return true
}

// verifyPairings warns about legacy binary entries missing their mask or
// image counterpart, and about tag pairs with identical dimensions.
// Reports whether scanning should continue.
func verifyPairings(yield func(Issue) bool, binTags []OSType, seen map[OSType]bool) bool {
	bin := map[OSType]bool{}
	for _, t := range binTags {
		bin[t] = true
	}

	for _, group := range imgMaskPairs {
		maskTag := TypeOf(group.mask)
		hasMask := bin[maskTag]
		anyImg := false
		for _, img := range group.imgs {
			imgTag := TypeOf(img)
			if !bin[imgTag] {
				continue
			}
			anyImg = true
			if !hasMask {
				if !warnf(yield, "missing key pair: %s found, %s missing", imgTag, maskTag) {
					return false
				}
			}
		}
		if hasMask && !anyImg {
			if !warnf(yield, "missing key pair: %s found, images missing", maskTag) {
				return false
			}
		}
	}

	for _, pair := range redundantPairs {
		a, b := TypeOf(pair[0]), TypeOf(pair[1])
		if seen[a] && seen[b] {
			if !warnf(yield, "redundant keys: %s and %s have identical size", a, b) {
				return false
			}
		}
	}
	return true
}
