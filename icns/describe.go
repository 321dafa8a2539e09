package icns

import (
	"fmt"
	"os"
	"strings"

	"github.com/mrjoshuak/go-icns/internal/xdr"
)

// EntryInfo is one line of a structured archive report.
type EntryInfo struct {
	Type   OSType
	Size   int    // payload size in bytes
	Offset int    // absolute offset of the entry header
	Format string // sniffed payload format, or the registry fallback
	Desc   string // human-readable size name, or "" for unknown tags
	Value  string // decoded payload for name and icnV entries
}

func (e EntryInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d bytes", e.Type, e.Size)
	if e.Offset > 0 {
		fmt.Fprintf(&sb, ", offset: %d", e.Offset)
	}
	if e.Value != "" {
		fmt.Fprintf(&sb, ", value: %s", e.Value)
		return sb.String()
	}
	if e.Desc == "" {
		fmt.Fprintf(&sb, ": UNKNOWN TYPE: %s", e.Format)
		return sb.String()
	}
	fmt.Fprintf(&sb, ", %s: %s", e.Format, e.Desc)
	return sb.String()
}

// Describe walks an archive and reports every entry, the table of
// contents included. Offsets are absolute file positions.
func Describe(data []byte, verbose bool) ([]EntryInfo, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: truncated header", ErrFormat)
	}
	var magic OSType
	copy(magic[:], data)
	if magic != TypeICNS {
		return nil, fmt.Errorf("%w: missing %q magic", ErrFormat, TypeICNS)
	}

	var infos []EntryInfo
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
		payload := data[offset+headerSize : offset+size]
		info := describeEntry(tag, payload)
		if verbose {
			info.Offset = offset
		}
		infos = append(infos, info)
		offset += size
	}
	return infos, nil
}

// DescribeFile reads an archive from the filesystem and reports its
// entries.
func DescribeFile(path string, verbose bool) ([]EntryInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Describe(data, verbose)
}

func describeEntry(tag OSType, payload []byte) EntryInfo {
	info := EntryInfo{Type: tag, Size: len(payload)}

	switch tag {
	case TypeOf("name"):
		info.Value = fmt.Sprintf("%q", payload)
		return info
	case TypeOf("icnV"):
		if v, err := xdr.NewReader(payload).ReadFloat32(); err == nil {
			info.Value = fmt.Sprintf("%g", v)
			return info
		}
	}

	info.Format = DetectFormat(payload)
	m, ok := Lookup(tag)
	if !ok {
		if info.Format == "" {
			n := len(payload)
			if n > 6 {
				n = 6
			}
			info.Format = fmt.Sprintf("% x", payload[:n])
		}
		return info
	}
	if info.Format == "" {
		info.Format = m.FallbackExt()
	}
	info.Desc = m.FileName(false, true)
	return info
}
