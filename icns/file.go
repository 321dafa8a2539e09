package icns

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/mrjoshuak/go-icns/argb"
	"github.com/mrjoshuak/go-icns/internal/xdr"
)

// Container codec errors
var (
	// ErrFormat is returned when an archive is malformed or truncated.
	ErrFormat = errors.New("icns: malformed archive")

	// ErrUnknownType is returned when a key or tag cannot be resolved
	// against the media type registry.
	ErrUnknownType = errors.New("icns: unknown media type")

	// ErrAmbiguousKey is returned when a readable key matches more than
	// one media type and no dimension data can disambiguate.
	ErrAmbiguousKey = errors.New("icns: ambiguous media key")

	// ErrDuplicateEntry is returned when adding a tag that already exists
	// without the force flag.
	ErrDuplicateEntry = errors.New("icns: duplicate entry")
)

// headerSize is the length of the outer header and of every entry header:
// a 4-byte type tag plus a 4-byte big-endian length that includes the
// header itself.
const headerSize = 8

// Entry is one tagged record of an archive. Data is the raw payload,
// without the 8-byte entry header.
type Entry struct {
	Type OSType
	Data []byte
}

// File is an in-memory ICNS archive: an ordered list of entries and a
// flag recording whether the source carried a table of contents. A File
// is exclusively owned by its caller; no operation shares state between
// instances.
type File struct {
	Entries []Entry

	hasTOC bool
	source string
}

// Parse reads an archive from raw bytes. It validates the outer magic
// and the declared total length, and walks entries using each entry's own
// length field. A table-of-contents entry is consumed separately and not
// listed among the media entries.
func Parse(data []byte) (*File, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: truncated header", ErrFormat)
	}
	var magic OSType
	copy(magic[:], data)
	if magic != TypeICNS {
		return nil, fmt.Errorf("%w: missing %q magic", ErrFormat, TypeICNS)
	}
	total := int(xdr.ByteOrder.Uint32(data[4:]))
	if total != len(data) {
		return nil, fmt.Errorf("%w: declared length %d, have %d bytes",
			ErrFormat, total, len(data))
	}

	f := &File{}
	offset := headerSize
	for offset < len(data) {
		if offset+headerSize > len(data) {
			return nil, fmt.Errorf("%w: truncated entry header at offset %d",
				ErrFormat, offset)
		}
		var tag OSType
		copy(tag[:], data[offset:])
		size := int(xdr.ByteOrder.Uint32(data[offset+4:]))
		if size < headerSize || offset+size > len(data) {
			return nil, fmt.Errorf("%w: entry %s declares %d bytes at offset %d",
				ErrFormat, tag, size, offset)
		}
		payload := append([]byte(nil), data[offset+headerSize:offset+size]...)
		if tag == TypeTOC {
			f.hasTOC = true
		} else {
			f.Entries = append(f.Entries, Entry{Type: tag, Data: payload})
		}
		offset += size
	}
	return f, nil
}

// ParseFile reads an archive from the filesystem.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f.source = path
	return f, nil
}

// ProbeArchive reports whether data parses as a nested archive, which may
// be stored with or without the outer header. It never returns an error;
// a false result simply means the payload is not an archive.
func ProbeArchive(data []byte) (*File, bool) {
	if bytes.HasPrefix(data, TypeICNS[:]) {
		f, err := Parse(data)
		return f, err == nil
	}
	if isHeaderlessArchive(data) {
		w := xdr.NewBufferWriter(headerSize + len(data))
		w.WriteBytes(TypeICNS[:])
		w.WriteUint32(uint32(headerSize + len(data)))
		w.WriteBytes(data)
		f, err := Parse(w.Bytes())
		return f, err == nil
	}
	return nil, false
}

// Source returns the path the archive was read from, or "" for archives
// built in memory.
func (f *File) Source() string {
	return f.source
}

// HasTOC reports whether the archive was read or written with a table of
// contents.
func (f *File) HasTOC() bool {
	return f.hasTOC
}

// Get returns the payload of the entry with the given tag.
func (f *File) Get(t OSType) ([]byte, bool) {
	for i := range f.Entries {
		if f.Entries[i].Type == t {
			return f.Entries[i].Data, true
		}
	}
	return nil, false
}

// index returns the position of the entry with the given tag, or -1.
func (f *File) index(t OSType) int {
	for i := range f.Entries {
		if f.Entries[i].Type == t {
			return i
		}
	}
	return -1
}

// resolveTag turns a readable key or bare tag into a type tag. Unlike
// ResolveKey it admits unregistered 4-character tags, since the container
// stores payloads for unknown tags verbatim.
func resolveTag(key string) (OSType, error) {
	if t, ok := readableKeys[key]; ok {
		return t, nil
	}
	if t, err := ParseType(key); err == nil {
		return t, nil
	}
	return OSType{}, fmt.Errorf("%w: %q", ErrUnknownType, key)
}

// put inserts or, with force, replaces an entry. Replacement happens in
// place to keep the archive order deterministic.
func (f *File) put(t OSType, data []byte, force bool) error {
	if i := f.index(t); i >= 0 {
		if !force {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, t)
		}
		f.Entries[i].Data = data
		return nil
	}
	f.Entries = append(f.Entries, Entry{Type: t, Data: data})
	return nil
}

// AddMedia stores a payload verbatim under the given key, which may be a
// readable selector ("dark", "selected", "template") or a 4-character
// tag; unregistered tags are allowed for lossless passthrough. An empty
// key resolves the type by inspecting the payload. Without force an
// existing tag fails with ErrDuplicateEntry; with force the old entry is
// replaced in place.
func (f *File) AddMedia(key string, data []byte, force bool) error {
	var t OSType
	if key == "" {
		m, err := GuessMedia(data, "")
		if err != nil {
			return err
		}
		t = m.Type
	} else {
		var err error
		t, err = resolveTag(key)
		if err != nil {
			return err
		}
	}
	return f.put(t, data, force)
}

// AddImage composes a pixel source into the archive. The key and the
// optional source filename (used for "@2x" and variant suffix hints)
// select the media type; the payload is stored verbatim when its format
// is already acceptable for that type, and otherwise decoded through the
// raster adapter and re-encoded with the type's pixel codec. Legacy RGB
// types also update their paired 8-bit mask entry.
func (f *File) AddImage(key, filename string, data []byte, force bool) error {
	var m *Media
	if key == "" {
		var err error
		m, err = GuessMedia(data, filename)
		if err != nil {
			return err
		}
	} else {
		t, err := resolveTag(key)
		if err != nil {
			return err
		}
		reg, ok := Lookup(t)
		if !ok {
			// Unregistered tags bypass codec selection entirely
			return f.put(t, data, force)
		}
		m = reg
	}

	format := DetectFormat(data)
	if format == "" && len(filename) > 4 && filename[len(filename)-4:] == ".rgb" {
		format = FormatRGB
	}
	if m.IsType(format) || (format == "" && m.IsBinary()) {
		return f.put(m.Type, data, force)
	}
	if format != FormatPNG && format != FormatJP2 {
		return fmt.Errorf("%w: cannot store %s data as %s",
			ErrFormat, format, m.Type)
	}

	im, err := argb.DecodeRaster(data)
	if err != nil {
		return err
	}
	if im.Width != m.Width || im.Height != m.Height {
		return fmt.Errorf("icns: %s wants %dx%d pixels, image is %dx%d",
			m.Type, m.Width, m.Height, im.Width, im.Height)
	}

	switch {
	case m.IsType(FormatARGB):
		return f.put(m.Type, im.EncodeARGB(), force)
	case m.IsType(FormatRGB):
		var payload, mask []byte
		if isPlanarType(m) {
			payload, mask = im.PackPlanar(false)
		} else {
			payload = im.EncodeRGB()
			mask = im.Mask()
		}
		if err := f.put(m.Type, payload, force); err != nil {
			return err
		}
		if mk := maskFor(m); mk != nil {
			// The mask derives from the same source image, so an
			// existing mask entry is always replaced
			return f.put(mk.Type, mask, true)
		}
		return nil
	}
	return fmt.Errorf("%w: no pixel codec for %s", ErrFormat, m.Type)
}

// isPlanarType reports whether the tag stores the planar interleaved RGB
// stream (the 128x128 legacy type) rather than packed channels.
func isPlanarType(m *Media) bool {
	return m.IsType(FormatRGB) && m.Width == 128 && m.Height == 128
}

// Remove deletes at most one entry. It reports whether a removal
// occurred and never fails on a missing tag.
func (f *File) Remove(t OSType) bool {
	if i := f.index(t); i >= 0 {
		f.Entries = append(f.Entries[:i], f.Entries[i+1:]...)
		return true
	}
	return false
}

// RemoveMedia resolves a readable key or tag and removes its entry. The
// bool reports whether a removal occurred; the error is only for keys
// that cannot be resolved at all.
func (f *File) RemoveMedia(key string) (bool, error) {
	t, err := resolveTag(key)
	if err != nil {
		return false, err
	}
	return f.Remove(t), nil
}

// DecodeImage decodes a pixel entry into an RGBA raster. Legacy RGB
// entries pick up their alpha plane from the paired mask entry when the
// archive has one. Palette-indexed icons (4- and 8-bit) have no codec and
// fail with ErrFormat.
func (f *File) DecodeImage(t OSType) (*argb.Image, error) {
	data, ok := f.Get(t)
	if !ok {
		return nil, fmt.Errorf("%w: no %s entry", ErrFormat, t)
	}
	m, ok := Lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}

	switch format := DetectFormat(data); {
	case format == FormatPNG || format == FormatJP2:
		return argb.DecodeRaster(data)
	case format == FormatARGB:
		return argb.DecodeARGB(data, m.Width, m.Height)
	case m.Bits == 1:
		return argb.FromMono(data, m.Width, m.Height, m.Channels == 2)
	case m.IsType(FormatRGB):
		mask := f.pairedMask(m)
		if isPlanarType(m) {
			raw := len(data) == m.Width*m.Height*3
			return argb.UnpackPlanar(data, mask, m.Width, m.Height, raw)
		}
		im, err := argb.DecodeRGB(data, m.Width, m.Height)
		if err != nil {
			return nil, err
		}
		if mask != nil {
			if err := im.SetMask(mask); err != nil {
				return nil, err
			}
		}
		return im, nil
	}
	return nil, fmt.Errorf("%w: no pixel codec for %s", ErrFormat, t)
}

// pairedMask returns the payload of the 8-bit mask entry matching the
// dimensions of img, or nil.
func (f *File) pairedMask(img *Media) []byte {
	mk := maskFor(img)
	if mk == nil {
		return nil
	}
	data, ok := f.Get(mk.Type)
	if !ok || len(data) != mk.MaxSize() {
		return nil
	}
	return data
}

// Bytes serializes the archive. Entries keep their current order; with
// withTOC a fresh table of contents reflecting them is emitted as the
// first entry. The outer total-length field is recomputed. The full
// output buffer is built before any persistence, so a failed write never
// leaves a partial archive behind.
func (f *File) Bytes(withTOC bool) []byte {
	total := headerSize
	for i := range f.Entries {
		total += headerSize + len(f.Entries[i].Data)
	}
	if withTOC {
		total += headerSize + len(f.Entries)*headerSize
	}

	w := xdr.NewBufferWriter(total)
	w.WriteBytes(TypeICNS[:])
	w.WriteUint32(uint32(total))
	if withTOC {
		w.WriteBytes(TypeTOC[:])
		w.WriteUint32(uint32(headerSize + len(f.Entries)*headerSize))
		for i := range f.Entries {
			w.WriteBytes(f.Entries[i].Type[:])
			w.WriteUint32(uint32(headerSize + len(f.Entries[i].Data)))
		}
	}
	for i := range f.Entries {
		w.WriteBytes(f.Entries[i].Type[:])
		w.WriteUint32(uint32(headerSize + len(f.Entries[i].Data)))
		w.WriteBytes(f.Entries[i].Data)
	}
	f.hasTOC = withTOC
	return w.Bytes()
}

// WriteFile serializes the archive and writes it to the filesystem.
func (f *File) WriteFile(path string, withTOC bool) error {
	return os.WriteFile(path, f.Bytes(withTOC), 0o644)
}
