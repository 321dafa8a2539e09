package icns

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mrjoshuak/go-icns/internal/xdr"
)

// buildArchive serializes raw (tag, payload) pairs with a correct outer
// header and no table of contents.
func buildArchive(entries ...Entry) []byte {
	total := headerSize
	for _, e := range entries {
		total += headerSize + len(e.Data)
	}
	w := xdr.NewBufferWriter(total)
	w.WriteBytes(TypeICNS[:])
	w.WriteUint32(uint32(total))
	for _, e := range entries {
		w.WriteBytes(e.Type[:])
		w.WriteUint32(uint32(headerSize + len(e.Data)))
		w.WriteBytes(e.Data)
	}
	return w.Bytes()
}

// uniformRGB packs three uniform channels for a 16x16 RGB entry.
func uniformRGB(r, g, b byte) []byte {
	return []byte{
		0xFF, r, 0xFB, r,
		0xFF, g, 0xFB, g,
		0xFF, b, 0xFB, b,
	}
}

func TestParseRoundTrip(t *testing.T) {
	entries := []Entry{
		{TypeOf("name"), []byte("hello")},
		{TypeOf("is32"), uniformRGB(1, 2, 3)},
		{TypeOf("s8mk"), bytes.Repeat([]byte{0xEE}, 256)},
	}
	data := buildArchive(entries...)

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(f.Entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(f.Entries))
	}
	for i, e := range f.Entries {
		if e.Type != entries[i].Type || !bytes.Equal(e.Data, entries[i].Data) {
			t.Errorf("entry %d: got %s/%d bytes, want %s/%d bytes",
				i, e.Type, len(e.Data), entries[i].Type, len(entries[i].Data))
		}
	}
	if f.HasTOC() {
		t.Error("HasTOC: got true, want false")
	}

	if got := f.Bytes(false); !bytes.Equal(got, data) {
		t.Error("Bytes(false) should reproduce the source archive")
	}
}

func TestWriteRoundTripWithTOC(t *testing.T) {
	f := &File{Entries: []Entry{
		{TypeOf("is32"), uniformRGB(9, 9, 9)},
		{TypeOf("name"), []byte("x")},
	}}

	for _, withTOC := range []bool{false, true} {
		data := f.Bytes(withTOC)
		got, err := Parse(data)
		if err != nil {
			t.Fatalf("Parse(Bytes(%v)) error: %v", withTOC, err)
		}
		if got.HasTOC() != withTOC {
			t.Errorf("HasTOC: got %v, want %v", got.HasTOC(), withTOC)
		}
		if len(got.Entries) != len(f.Entries) {
			t.Fatalf("entries: got %d, want %d", len(got.Entries), len(f.Entries))
		}
		for i := range f.Entries {
			if got.Entries[i].Type != f.Entries[i].Type ||
				!bytes.Equal(got.Entries[i].Data, f.Entries[i].Data) {
				t.Errorf("toc=%v entry %d mismatch", withTOC, i)
			}
		}
		// Idempotence: a second write of the reparsed archive is identical
		if again := got.Bytes(withTOC); !bytes.Equal(again, data) {
			t.Errorf("toc=%v: write(parse(write)) not byte-identical", withTOC)
		}
	}
}

func TestTOCLayout(t *testing.T) {
	f := &File{Entries: []Entry{
		{TypeOf("is32"), make([]byte, 10)},
		{TypeOf("s8mk"), make([]byte, 256)},
	}}
	data := f.Bytes(true)

	// TOC must be the first entry: 8-byte header plus one record per entry
	if !bytes.Equal(data[8:12], TypeTOC[:]) {
		t.Fatalf("first entry: got %q, want TOC", data[8:12])
	}
	tocLen := int(xdr.ByteOrder.Uint32(data[12:]))
	if tocLen != 8+2*8 {
		t.Errorf("TOC length: got %d, want 24", tocLen)
	}
	if !bytes.Equal(data[16:20], []byte("is32")) {
		t.Errorf("first record tag: got %q, want is32", data[16:20])
	}
	if got := xdr.ByteOrder.Uint32(data[20:]); got != 18 {
		t.Errorf("first record size: got %d, want 18", got)
	}
}

func TestParseErrors(t *testing.T) {
	valid := buildArchive(Entry{TypeOf("name"), []byte("x")})

	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte("icns")},
		{"bad magic", append([]byte("ICNS"), valid[4:]...)},
		{"truncated", valid[:len(valid)-1]},
		{"trailing garbage", append(append([]byte(nil), valid...), 0)},
	}
	for _, tc := range cases {
		if _, err := Parse(tc.data); !errors.Is(err, ErrFormat) {
			t.Errorf("%s: got %v, want ErrFormat", tc.name, err)
		}
	}

	// Entry length pointing past the end of the archive
	bad := append([]byte(nil), valid...)
	xdr.ByteOrder.PutUint32(bad[12:], 1000)
	if _, err := Parse(bad); !errors.Is(err, ErrFormat) {
		t.Errorf("oversized entry: got %v, want ErrFormat", err)
	}
}

func TestParseSkipsTOCEntry(t *testing.T) {
	f := &File{Entries: []Entry{{TypeOf("name"), []byte("x")}}}
	got, err := Parse(f.Bytes(true))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Type != TypeOf("name") {
		t.Error("TOC entry must not appear among media entries")
	}
	if !got.HasTOC() {
		t.Error("HasTOC: got false, want true")
	}
}

func TestAddMediaDuplicate(t *testing.T) {
	f := &File{}
	if err := f.AddMedia("is32", []byte{1}, false); err != nil {
		t.Fatalf("first add error: %v", err)
	}
	if err := f.AddMedia("name", []byte{2}, false); err != nil {
		t.Fatalf("second add error: %v", err)
	}
	before := f.Bytes(false)

	err := f.AddMedia("is32", []byte{9}, false)
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("duplicate add: got %v, want ErrDuplicateEntry", err)
	}
	if !bytes.Equal(f.Bytes(false), before) {
		t.Error("failed add must leave the archive unchanged")
	}

	// force replaces in place, preserving entry order
	if err := f.AddMedia("is32", []byte{9}, true); err != nil {
		t.Fatalf("forced add error: %v", err)
	}
	if f.Entries[0].Type != TypeOf("is32") || f.Entries[0].Data[0] != 9 {
		t.Error("forced add must replace the entry in place")
	}
	if f.Entries[1].Type != TypeOf("name") {
		t.Error("forced add must not reorder other entries")
	}
}

func TestAddMediaReadableKeys(t *testing.T) {
	f := &File{}
	nested := buildArchive(Entry{TypeOf("name"), []byte("x")})
	if err := f.AddMedia("dark", nested, false); err != nil {
		t.Fatalf("add dark error: %v", err)
	}
	if f.Entries[0].Type != TypeDark {
		t.Errorf("dark key: got %s, want %s", f.Entries[0].Type, TypeDark)
	}

	if err := f.AddMedia("selected", nested, false); err != nil {
		t.Fatalf("add selected error: %v", err)
	}
	if f.Entries[1].Type != TypeOf("slct") {
		t.Errorf("selected key: got %s, want slct", f.Entries[1].Type)
	}

	if err := f.AddMedia("nonsense", nil, false); !errors.Is(err, ErrUnknownType) {
		t.Errorf("bad key: got %v, want ErrUnknownType", err)
	}
}

func TestAddMediaUnregisteredTagPassthrough(t *testing.T) {
	f := &File{}
	if err := f.AddMedia("Xyz0", []byte{1, 2, 3}, false); err != nil {
		t.Fatalf("passthrough add error: %v", err)
	}
	data, ok := f.Get(TypeOf("Xyz0"))
	if !ok || !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Error("unregistered tags must be stored verbatim")
	}
}

func TestRemove(t *testing.T) {
	f := &File{Entries: []Entry{
		{TypeOf("is32"), []byte{1}},
		{TypeOf("s8mk"), []byte{2}},
		{TypeOf("name"), []byte{3}},
	}}
	before := f.Bytes(false)

	if f.Remove(TypeOf("it32")) {
		t.Error("removing an absent tag must return false")
	}
	if len(f.Entries) != 3 || !bytes.Equal(f.Bytes(false), before) {
		t.Error("no-op removal must leave the archive bytes unchanged")
	}

	if !f.Remove(TypeOf("s8mk")) {
		t.Error("removing a present tag must return true")
	}
	if len(f.Entries) != 2 {
		t.Errorf("entries after removal: got %d, want 2", len(f.Entries))
	}
	if _, ok := f.Get(TypeOf("s8mk")); ok {
		t.Error("removed entry still present")
	}
}

func TestRemoveMediaByReadableKey(t *testing.T) {
	f := &File{Entries: []Entry{{TypeDark, []byte{1}}}}
	removed, err := f.RemoveMedia("dark")
	if err != nil || !removed {
		t.Errorf("RemoveMedia(dark): got (%v, %v), want (true, nil)", removed, err)
	}
	if _, err := f.RemoveMedia("not-a-key"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("bad key: got %v, want ErrUnknownType", err)
	}
}

func TestAddImageStoresAcceptableFormatVerbatim(t *testing.T) {
	im := newTestImage(16, 16)
	data, err := im.EncodePNG()
	if err != nil {
		t.Fatalf("EncodePNG error: %v", err)
	}

	f := &File{}
	// icp4 accepts PNG directly
	if err := f.AddImage("icp4", "", data, false); err != nil {
		t.Fatalf("AddImage error: %v", err)
	}
	got, ok := f.Get(TypeOf("icp4"))
	if !ok || !bytes.Equal(got, data) {
		t.Error("acceptable payloads must be stored verbatim")
	}

	// An empty key guesses the type from the payload
	f = &File{}
	if err := f.AddImage("", "", data, false); err != nil {
		t.Fatalf("AddImage error: %v", err)
	}
	if _, ok := f.Get(TypeOf("icp4")); !ok {
		t.Error("empty key must resolve a 16x16 PNG to icp4")
	}
}

func TestAddImageConvertsToRLE(t *testing.T) {
	im := newTestImage(16, 16)
	data, err := im.EncodePNG()
	if err != nil {
		t.Fatalf("EncodePNG error: %v", err)
	}

	f := &File{}
	if err := f.AddImage("is32", "", data, false); err != nil {
		t.Fatalf("AddImage error: %v", err)
	}
	payload, ok := f.Get(TypeOf("is32"))
	if !ok {
		t.Fatal("no is32 entry")
	}
	if DetectFormat(payload) != "" {
		t.Error("is32 payload must be packed channel data, not a raster format")
	}
	// The alpha plane lands in the paired mask entry
	mask, ok := f.Get(TypeOf("s8mk"))
	if !ok {
		t.Fatal("composing is32 must add the paired s8mk mask")
	}
	if len(mask) != 256 {
		t.Errorf("mask length: got %d, want 256", len(mask))
	}

	back, err := f.DecodeImage(TypeOf("is32"))
	if err != nil {
		t.Fatalf("DecodeImage error: %v", err)
	}
	if !bytes.Equal(back.R, im.R) || !bytes.Equal(back.G, im.G) ||
		!bytes.Equal(back.B, im.B) || !bytes.Equal(back.A, im.A) {
		t.Error("is32 round trip lost pixel data")
	}
}

func TestAddImagePlanar(t *testing.T) {
	im := newTestImage(128, 128)
	data, err := im.EncodePNG()
	if err != nil {
		t.Fatalf("EncodePNG error: %v", err)
	}

	f := &File{}
	if err := f.AddImage("it32", "", data, false); err != nil {
		t.Fatalf("AddImage error: %v", err)
	}
	payload, ok := f.Get(TypeOf("it32"))
	if !ok {
		t.Fatal("no it32 entry")
	}
	if want := 128*128*3 + 4; len(payload) != want {
		t.Fatalf("it32 stream length: got %d, want %d", len(payload), want)
	}
	if !bytes.Equal(payload[:4], []byte{0, 0, 0, 0}) {
		t.Errorf("it32 stream must start with a four-zero-byte prefix, got % x", payload[:4])
	}
	if _, ok := f.Get(TypeOf("t8mk")); !ok {
		t.Error("composing it32 must add the paired t8mk mask")
	}

	back, err := f.DecodeImage(TypeOf("it32"))
	if err != nil {
		t.Fatalf("DecodeImage error: %v", err)
	}
	if !bytes.Equal(back.R, im.R) || !bytes.Equal(back.A, im.A) {
		t.Error("it32 round trip lost pixel data")
	}
}

func TestAddImageDimensionMismatch(t *testing.T) {
	data, err := newTestImage(16, 16).EncodePNG()
	if err != nil {
		t.Fatalf("EncodePNG error: %v", err)
	}
	f := &File{}
	if err := f.AddImage("il32", "", data, false); err == nil {
		t.Error("storing a 16x16 image as il32 must fail")
	}
	if len(f.Entries) != 0 {
		t.Error("failed compose must not add entries")
	}
}

func TestDecodeImageMono(t *testing.T) {
	f := &File{Entries: []Entry{{TypeOf("ICN#"), make([]byte, 256)}}}
	im, err := f.DecodeImage(TypeOf("ICN#"))
	if err != nil {
		t.Fatalf("DecodeImage error: %v", err)
	}
	if im.Width != 32 || im.Height != 32 {
		t.Errorf("size: got %dx%d, want 32x32", im.Width, im.Height)
	}
}

func TestProbeArchive(t *testing.T) {
	full := buildArchive(Entry{TypeOf("name"), []byte("x")})
	if _, ok := ProbeArchive(full); !ok {
		t.Error("full archive bytes must probe as archive")
	}

	// Variant entries commonly drop the outer header
	headerless := full[headerSize:]
	nested, ok := ProbeArchive(headerless)
	if !ok {
		t.Fatal("headerless archive content must probe as archive")
	}
	if len(nested.Entries) != 1 || nested.Entries[0].Type != TypeOf("name") {
		t.Error("headerless probe lost the entry")
	}

	if _, ok := ProbeArchive([]byte("definitely not an archive")); ok {
		t.Error("arbitrary bytes must not probe as archive")
	}
	if _, ok := ProbeArchive(nil); ok {
		t.Error("nil must not probe as archive")
	}
}
