// Package icns reads, writes, and validates Apple Icon Image (ICNS) files.
//
// An ICNS file is a chunked binary archive: an 8-byte header (the "icns"
// magic and a big-endian total length) followed by tagged, length-prefixed
// entries, one per icon representation, plus an optional table of contents.
// The package parses and builds the archive, resolves human-readable media
// selectors to binary type tags, and converts legacy pixel payloads through
// the argb and compression packages.
package icns

import (
	"fmt"
	"strings"
)

// OSType is a 4-byte entry type tag. Most tags are printable ASCII; the
// dark-mode variant tag is not.
type OSType [4]byte

// TypeOf builds an OSType from a 4-character string.
// It panics if the string is not exactly 4 bytes; use ParseType for
// untrusted input.
func TypeOf(s string) OSType {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseType builds an OSType from a 4-character string.
func ParseType(s string) (OSType, error) {
	if len(s) != 4 {
		return OSType{}, fmt.Errorf("icns: type tag must be 4 bytes, got %q", s)
	}
	var t OSType
	copy(t[:], s)
	return t, nil
}

// String returns the tag as text, hex-escaping non-printable bytes.
func (t OSType) String() string {
	for _, b := range t {
		if b < 0x20 || b > 0x7E {
			return fmt.Sprintf("%#02x%02x%02x%02x", t[0], t[1], t[2], t[3])
		}
	}
	return string(t[:])
}

// Well-known tags.
var (
	// TypeICNS is the outer container magic.
	TypeICNS = TypeOf("icns")
	// TypeTOC tags the optional table-of-contents entry.
	TypeTOC = TypeOf("TOC ")
	// TypeDark tags the dark-mode variant archive (macOS 10.14+).
	TypeDark = OSType{0xFD, 0xD9, 0x2F, 0xA8}
)

// Payload formats an entry may carry, in sniffing vocabulary.
const (
	FormatPNG    = "png"
	FormatJP2    = "jp2"
	FormatARGB   = "argb"
	FormatRGB    = "rgb"
	FormatPlist  = "plist"
	FormatICNS   = "icns"
	FormatBinary = "bin"
)

// Media describes one registered entry type: its pixel dimensions, the
// payload formats it may carry (in preference order), channel layout, and
// human-readable naming. The table is compiled-in and immutable.
type Media struct {
	Type     OSType
	Width    int
	Height   int
	Channels int
	Bits     int
	Formats  []string // accepted payload formats, most preferred first
	Desc     string   // category or variant: icon, mask, iconmask, dark, 16x16@2x, ...
	OS       string   // first macOS version supporting the tag
}

// IsType reports whether format is an accepted payload format.
func (m *Media) IsType(format string) bool {
	for _, f := range m.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// IsBinary reports whether the entry carries headerless binary data
// (packed RGB or raw bitmap/mask planes).
func (m *Media) IsBinary() bool {
	return m.IsType(FormatRGB) || m.IsType(FormatBinary)
}

// Compressable reports whether the payload is PackBytes run-length coded.
func (m *Media) Compressable() bool {
	return m.IsType(FormatRGB) || m.IsType(FormatARGB)
}

// Retina reports whether the tag is a @2x variant.
func (m *Media) Retina() bool {
	return strings.Contains(m.Desc, "@2x")
}

// MaxSize returns the decoded pixel data size in bytes, or 0 when the
// type has no fixed pixel dimensions.
func (m *Media) MaxSize() int {
	if m.Width == 0 || m.Channels == 0 || m.Bits == 0 {
		return 0
	}
	return m.Width * m.Height * m.Channels * m.Bits / 8
}

// FallbackExt returns the export extension used when the payload format
// cannot be sniffed: the least preferred accepted format.
func (m *Media) FallbackExt() string {
	return m.Formats[len(m.Formats)-1]
}

// FileName returns the conventional export name: the pixel size with a
// retina suffix ("16x16@2x"), or the variant name for nested archives.
// With keyOnly the tag itself is used. sizeOnly drops the bit-depth
// decoration except for the "-mono" marker on 1-bit icons.
func (m *Media) FileName(keyOnly, sizeOnly bool) string {
	if keyOnly {
		return m.Type.String()
	}
	if m.IsType(FormatICNS) {
		return m.Desc
	}
	if m.Width == 0 {
		return m.Type.String()
	}
	w, h := m.Width, m.Height
	suffix := ""
	if m.Retina() {
		w /= 2
		h /= 2
		suffix = "@2x"
	}
	if sizeOnly {
		if m.Bits == 1 {
			suffix += "-mono"
		}
	} else {
		if m.Desc == "icon" || m.Desc == "iconmask" {
			suffix += fmt.Sprintf("-icon%db", m.Bits)
		}
		if m.Desc == "mask" || m.Desc == "iconmask" {
			suffix += fmt.Sprintf("-mask%db", m.Bits)
		}
	}
	return fmt.Sprintf("%dx%d%s", w, h, suffix)
}

// media is a table constructor shorthand.
func media(tag string, formats []string, w, h, ch, bits int, os, desc string) Media {
	return Media{
		Type: TypeOf(tag), Width: w, Height: h,
		Channels: ch, Bits: bits, Formats: formats,
		Desc: desc, OS: os,
	}
}

func bin(tag string, w, h, ch, bits int, os, desc string) Media {
	return media(tag, []string{FormatBinary}, w, h, ch, bits, os, desc)
}

func rgb(tag string, size int, os string) Media {
	return media(tag, []string{FormatRGB}, size, size, 3, 8, os, "")
}

// mediaTypes is the compiled-in registry, in historical order.
var mediaTypes = []Media{
	bin("ICON", 32, 32, 1, 1, "1.0", "icon"),
	bin("ICN#", 32, 32, 2, 1, "6.0", "iconmask"),
	bin("icm#", 16, 12, 2, 1, "6.0", "iconmask"),
	bin("icm4", 16, 12, 1, 4, "7.0", "icon"),
	bin("icm8", 16, 12, 1, 8, "7.0", "icon"),
	bin("ics#", 16, 16, 2, 1, "6.0", "iconmask"),
	bin("ics4", 16, 16, 1, 4, "7.0", "icon"),
	bin("ics8", 16, 16, 1, 8, "7.0", "icon"),
	rgb("is32", 16, "8.5"),
	bin("s8mk", 16, 16, 1, 8, "8.5", "mask"),
	bin("icl4", 32, 32, 1, 4, "7.0", "icon"),
	bin("icl8", 32, 32, 1, 8, "7.0", "icon"),
	rgb("il32", 32, "8.5"),
	bin("l8mk", 32, 32, 1, 8, "8.5", "mask"),
	bin("ich#", 48, 48, 2, 1, "8.5", "iconmask"),
	bin("ich4", 48, 48, 1, 4, "8.5", "icon"),
	bin("ich8", 48, 48, 1, 8, "8.5", "icon"),
	rgb("ih32", 48, "8.5"),
	bin("h8mk", 48, 48, 1, 8, "8.5", "mask"),
	rgb("it32", 128, "10.0"),
	bin("t8mk", 128, 128, 1, 8, "10.0", "mask"),
	media("icp4", []string{FormatPNG, FormatJP2, FormatRGB}, 16, 16, 3, 8, "10.7", ""),
	media("icp5", []string{FormatPNG, FormatJP2, FormatRGB}, 32, 32, 3, 8, "10.7", ""),
	media("icp6", []string{FormatPNG}, 64, 64, 0, 0, "10.7", ""),
	media("ic07", []string{FormatPNG, FormatJP2}, 128, 128, 0, 0, "10.7", ""),
	media("ic08", []string{FormatPNG, FormatJP2}, 256, 256, 0, 0, "10.5", ""),
	media("ic09", []string{FormatPNG, FormatJP2}, 512, 512, 0, 0, "10.5", ""),
	media("ic10", []string{FormatPNG, FormatJP2}, 1024, 1024, 0, 0, "10.7", "or 512x512@2x (10.8)"),
	media("ic11", []string{FormatPNG, FormatJP2}, 32, 32, 0, 0, "10.8", "16x16@2x"),
	media("ic12", []string{FormatPNG, FormatJP2}, 64, 64, 0, 0, "10.8", "32x32@2x"),
	media("ic13", []string{FormatPNG, FormatJP2}, 256, 256, 0, 0, "10.8", "128x128@2x"),
	media("ic14", []string{FormatPNG, FormatJP2}, 512, 512, 0, 0, "10.8", "256x256@2x"),
	media("ic04", []string{FormatARGB, FormatPNG, FormatJP2}, 16, 16, 4, 8, "11.0", ""),
	media("ic05", []string{FormatARGB, FormatPNG, FormatJP2}, 32, 32, 4, 8, "11.0", ""),
	media("icsb", []string{FormatARGB, FormatPNG, FormatJP2}, 18, 18, 4, 8, "11.0", ""),
	media("icsB", []string{FormatPNG, FormatJP2}, 36, 36, 0, 0, "", "18x18@2x"),
	media("sb24", []string{FormatPNG, FormatJP2}, 24, 24, 0, 0, "", ""),
	media("SB24", []string{FormatPNG, FormatJP2}, 48, 48, 0, 0, "", "24x24@2x"),
	// Nested archives
	media("sbtp", []string{FormatICNS}, 0, 0, 0, 0, "", "template"),
	media("slct", []string{FormatICNS}, 0, 0, 0, 0, "", "selected"),
	{Type: TypeDark, Formats: []string{FormatICNS}, Desc: "dark", OS: "10.14"},
	// Meta types
	media("TOC ", []string{FormatBinary}, 0, 0, 0, 0, "10.7", "Table of Contents"),
	media("icnV", []string{FormatBinary}, 0, 0, 0, 0, "", "4-byte Icon Composer.app bundle version"),
	media("name", []string{FormatBinary}, 0, 0, 0, 0, "", "Unknown"),
	media("info", []string{FormatPlist}, 0, 0, 0, 0, "", "Info binary plist"),
}

// byType indexes the registry by tag. Built once, read-only afterwards.
var byType = func() map[OSType]*Media {
	m := make(map[OSType]*Media, len(mediaTypes))
	for i := range mediaTypes {
		m[mediaTypes[i].Type] = &mediaTypes[i]
	}
	return m
}()

// Lookup returns the registered media descriptor for a tag.
func Lookup(t OSType) (*Media, bool) {
	m, ok := byType[t]
	return m, ok
}

// readableKeys maps variant selector names to their tags.
var readableKeys = map[string]OSType{
	"template": TypeOf("sbtp"),
	"selected": TypeOf("slct"),
	"dark":     TypeDark,
}

// ResolveKey resolves a readable key ("dark", "selected", "template") or a
// bare 4-character tag to a registered type tag. It fails with
// ErrUnknownType for 4-character tags absent from the registry and for
// any other unrecognized key.
func ResolveKey(key string) (OSType, error) {
	if t, ok := readableKeys[key]; ok {
		return t, nil
	}
	if len(key) == 4 {
		t := TypeOf(key)
		if _, ok := byType[t]; ok {
			return t, nil
		}
	}
	return OSType{}, fmt.Errorf("%w: %q", ErrUnknownType, key)
}

// matchMaxSize returns the media type whose decoded pixel size equals
// total for the given payload format, or nil.
func matchMaxSize(total int, format string) *Media {
	for i := range mediaTypes {
		m := &mediaTypes[i]
		if m.IsType(format) && m.MaxSize() == total {
			return m
		}
	}
	return nil
}

// maskFor returns the 8-bit mask type matching the dimensions of img,
// or nil when none exists.
func maskFor(img *Media) *Media {
	for i := range mediaTypes {
		m := &mediaTypes[i]
		if m.Desc == "mask" && m.Width == img.Width && m.Height == img.Height {
			return m
		}
	}
	return nil
}

// imgMaskPairs lists the historical image/mask tag pairings used by the
// verifier: each 8-bit mask serves several same-size image tags.
var imgMaskPairs = []struct {
	mask string
	imgs []string
}{
	{"s8mk", []string{"is32", "ics8", "ics4", "icp4"}},
	{"l8mk", []string{"il32", "icl8", "icl4", "icp5"}},
	{"h8mk", []string{"ih32", "ich8", "ich4"}},
	{"t8mk", []string{"it32"}},
}

// redundantPairs lists tag pairs with identical pixel dimensions where
// storing both is wasteful.
var redundantPairs = [][2]string{
	{"is32", "icp4"},
	{"il32", "icp5"},
	{"it32", "ic07"},
	{"ic04", "icp4"},
	{"ic05", "icp5"},
}
