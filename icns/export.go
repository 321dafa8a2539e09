package icns

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/mrjoshuak/go-icns/internal/xdr"
)

// ExportOptions controls Export.
type ExportOptions struct {
	// Ext exports only files with the given extension; "" or "*" exports
	// everything.
	Ext string
	// Recursive descends into nested archives, emitting their files
	// under a subdirectory named after the nested entry.
	Recursive bool
	// Convert decodes legacy pixel entries (packed RGB, ARGB, 1-bit
	// mono) to PNG instead of dumping their raw payloads. Mask entries
	// are folded into the alpha channel of their image.
	Convert bool
	// KeyNames names files after the type tag instead of the pixel size.
	KeyNames bool
}

// ExportFile is one file produced by Export. Nested archive content uses
// "/"-separated names, one directory level per nesting.
type ExportFile struct {
	Name string
	Data []byte
}

// match reports whether an extension passes the filter.
func (o ExportOptions) match(ext string) bool {
	return o.Ext == "" || o.Ext == "*" || o.Ext == ext
}

// Export converts the archive entries to named files. Pixel entries are
// decoded only when Convert requires it; everything else is a verbatim
// payload dump. Nested archives are emitted as distinct groups, never
// flattened into the parent's namespace.
func (f *File) Export(opts ExportOptions) ([]ExportFile, error) {
	var out []ExportFile
	consumed := map[OSType]bool{}
	used := map[string]bool{}

	if opts.Convert {
		converted, err := f.exportConverted(opts, consumed, used)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
	}

	for i := range f.Entries {
		e := &f.Entries[i]
		if consumed[e.Type] {
			continue
		}
		name, ext, data := exportName(e, opts.KeyNames)
		isArchive := ext == FormatICNS
		if !opts.match(ext) && !(opts.Recursive && isArchive) {
			continue
		}
		if opts.Recursive && isArchive {
			if nested, ok := ProbeArchive(e.Data); ok {
				nestedFiles, err := nested.Export(opts)
				if err != nil {
					return nil, err
				}
				dir := name + ".icns"
				for _, nf := range nestedFiles {
					out = append(out, ExportFile{
						Name: dir + "/" + nf.Name,
						Data: nf.Data,
					})
				}
				if !opts.match(ext) {
					continue
				}
			}
		}
		out = append(out, ExportFile{
			Name: claimName(used, name, ext, e.Type),
			Data: data,
		})
	}
	return out, nil
}

// claimName reserves a file name. Entries with identical pixel sizes
// (say a converted legacy entry next to a same-size raster entry) would
// otherwise produce colliding names; the later one gets tag-qualified.
func claimName(used map[string]bool, name, ext string, tag OSType) string {
	full := fmt.Sprintf("%s.%s", name, ext)
	if used[full] {
		full = fmt.Sprintf("%s-%s.%s", name, tag, ext)
	}
	used[full] = true
	return full
}

// exportConverted emits PNG files for every convertible pixel entry and
// marks the entries (and their consumed masks) as handled.
func (f *File) exportConverted(opts ExportOptions, consumed map[OSType]bool, used map[string]bool) ([]ExportFile, error) {
	var out []ExportFile
	for i := range f.Entries {
		e := &f.Entries[i]
		m, ok := Lookup(e.Type)
		if !ok || !convertible(m) {
			continue
		}
		// icp4/icp5 and the ARGB-capable tags may hold PNG or JP2 data;
		// those payloads are exported verbatim, not re-encoded
		if format := DetectFormat(e.Data); format != "" && format != FormatARGB {
			continue
		}
		im, err := f.DecodeImage(e.Type)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", e.Type, err)
		}
		png, err := im.EncodePNG()
		if err != nil {
			return nil, err
		}
		out = append(out, ExportFile{
			Name: claimName(used, m.FileName(opts.KeyNames, true), "png", e.Type),
			Data: png,
		})
		consumed[e.Type] = true
		if m.IsType(FormatRGB) {
			if mk := maskFor(m); mk != nil {
				consumed[mk.Type] = true
			}
		}
	}
	return out, nil
}

// convertible reports whether the entry type has a PNG conversion path:
// ARGB-coded, 1-bit mono, or packed RGB. Palette-indexed icons do not.
func convertible(m *Media) bool {
	return m.IsType(FormatARGB) || m.Bits == 1 || m.IsType(FormatRGB)
}

// exportName resolves the file name, extension and payload for a raw
// entry dump. Nested archive payloads stored without the outer header
// get one prepended so the exported file stands alone.
func exportName(e *Entry, keyNames bool) (name, ext string, data []byte) {
	data = e.Data
	ext = DetectFormat(data)
	if ext == FormatICNS && !bytes.HasPrefix(data, TypeICNS[:]) {
		w := xdr.NewBufferWriter(headerSize + len(data))
		w.WriteBytes(TypeICNS[:])
		w.WriteUint32(uint32(headerSize + len(data)))
		w.WriteBytes(data)
		data = w.Bytes()
	}

	m, ok := Lookup(e.Type)
	if !ok {
		if ext == "" {
			ext = "unknown"
		}
		return e.Type.String(), ext, data
	}
	if ext == "" {
		if m.Compressable() {
			ext = FormatRGB
		} else {
			ext = FormatBinary
		}
	}
	return m.FileName(keyNames, false), ext, data
}

// ExportZip writes the export result as a zip archive, preserving the
// nested-directory grouping of recursive exports.
func (f *File) ExportZip(w io.Writer, opts ExportOptions) error {
	files, err := f.Export(opts)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(w)
	for _, ef := range files {
		fw, err := zw.Create(ef.Name)
		if err != nil {
			return err
		}
		if _, err := fw.Write(ef.Data); err != nil {
			return err
		}
	}
	return zw.Close()
}
