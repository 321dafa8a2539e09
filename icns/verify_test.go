package icns

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/mrjoshuak/go-icns/internal/xdr"
)

func collectIssues(data []byte) []Issue {
	var out []Issue
	for i := range Verify(data) {
		out = append(out, i)
	}
	return out
}

func countBySeverity(issues []Issue) (warnings, errors int) {
	for _, i := range issues {
		if i.Severity == SeverityError {
			errors++
		} else {
			warnings++
		}
	}
	return
}

func TestVerifyCleanArchive(t *testing.T) {
	data := buildArchive(
		Entry{TypeOf("is32"), uniformRGB(1, 2, 3)},
		Entry{TypeOf("s8mk"), bytes.Repeat([]byte{0xEE}, 256)},
	)
	if issues := collectIssues(data); len(issues) != 0 {
		t.Errorf("clean archive: got %d issues: %v", len(issues), issues)
	}
}

func TestVerifyRestartable(t *testing.T) {
	data := buildArchive(
		Entry{TypeOf("XxXx"), []byte{1}},
		Entry{TypeOf("is32"), uniformRGB(1, 2, 3)},
	)
	seq := Verify(data)

	var first, second []Issue
	for i := range seq {
		first = append(first, i)
	}
	for i := range seq {
		second = append(second, i)
	}
	if len(first) == 0 {
		t.Fatal("expected issues")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second pass differs: %v != %v", second, first)
	}

	// Early termination must not panic and must stop after one issue
	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Errorf("early break: visited %d issues, want 1", n)
	}
}

// misdeclaredTotal returns a well-formed archive whose outer length
// field overstates the actual size by one.
func misdeclaredTotal() []byte {
	data := buildArchive(Entry{TypeOf("name"), []byte("x")})
	xdr.ByteOrder.PutUint32(data[4:], uint32(len(data)+1))
	return data
}

func TestVerifyStructuralErrors(t *testing.T) {
	cases := []struct {
		name     string
		data     []byte
		warnings int
		errors   int
	}{
		{"empty", nil, 0, 1},
		{"short header", []byte("icn"), 0, 1},
		{"bad magic", []byte("ICNS\x00\x00\x00\x08"), 0, 1},
		{"size mismatch", misdeclaredTotal(), 0, 1},
		{"unknown tag",
			buildArchive(Entry{TypeOf("XxXx"), []byte{1}}), 1, 0},
		{"duplicate tag",
			buildArchive(
				Entry{TypeOf("name"), []byte("a")},
				Entry{TypeOf("name"), []byte("b")}), 0, 1},
		{"wrong payload format",
			buildArchive(Entry{TypeOf("s8mk"), pngMagic}), 0, 1},
		{"missing mask",
			buildArchive(Entry{TypeOf("is32"), uniformRGB(1, 2, 3)}), 1, 0},
		{"mask without image",
			buildArchive(Entry{TypeOf("s8mk"), make([]byte, 256)}), 1, 0},
	}
	for _, tc := range cases {
		issues := collectIssues(tc.data)
		w, e := countBySeverity(issues)
		if w != tc.warnings || e != tc.errors {
			t.Errorf("%s: got %d warnings/%d errors, want %d/%d: %v",
				tc.name, w, e, tc.warnings, tc.errors, issues)
		}
	}
}

func TestVerifyPixelSizes(t *testing.T) {
	// Mask payload of the wrong raw length: one length error, plus the
	// mask-without-image pairing warning
	data := buildArchive(Entry{TypeOf("s8mk"), make([]byte, 10)})
	w, e := countBySeverity(collectIssues(data))
	if w != 1 || e != 1 {
		t.Errorf("short mask: got %d warnings/%d errors, want 1/1", w, e)
	}

	// RLE stream decoding to the wrong pixel count
	data = buildArchive(
		Entry{TypeOf("is32"), []byte{0x00, 0xAA}}, // single literal byte
		Entry{TypeOf("s8mk"), make([]byte, 256)},
	)
	w, e = countBySeverity(collectIssues(data))
	if w != 0 || e != 1 {
		t.Errorf("short rle: got %d warnings/%d errors, want 0/1", w, e)
	}
}

func TestVerifyPlanarPrefix(t *testing.T) {
	raw := make([]byte, 128*128*3)

	// Prefixed stream with a zero prefix is the canonical layout
	prefixed := append([]byte{0, 0, 0, 0}, raw...)
	data := buildArchive(
		Entry{TypeOf("it32"), prefixed},
		Entry{TypeOf("t8mk"), make([]byte, 128*128)},
	)
	if issues := collectIssues(data); len(issues) != 0 {
		t.Errorf("canonical planar entry: got %v", issues)
	}

	// Unexpected bytes where the prefix should be draw a warning
	odd := append([]byte{1, 2, 3, 4}, raw...)
	data = buildArchive(
		Entry{TypeOf("it32"), odd},
		Entry{TypeOf("t8mk"), make([]byte, 128*128)},
	)
	w, e := countBySeverity(collectIssues(data))
	if w != 1 || e != 0 {
		t.Errorf("odd prefix: got %d warnings/%d errors, want 1/0", w, e)
	}
}

func TestVerifyRedundantPair(t *testing.T) {
	data := buildArchive(
		Entry{TypeOf("is32"), uniformRGB(1, 2, 3)},
		Entry{TypeOf("s8mk"), make([]byte, 256)},
		Entry{TypeOf("icp4"), pngMagic},
	)
	w, e := countBySeverity(collectIssues(data))
	if w != 1 || e != 0 {
		t.Errorf("redundant is32+icp4: got %d warnings/%d errors, want 1/0", w, e)
	}
}

func TestVerifyTOCMismatch(t *testing.T) {
	// TOC claims one entry with the wrong tag and size
	entry := Entry{TypeOf("name"), []byte("x")}
	toc := xdr.NewBufferWriter(headerSize)
	toc.WriteBytes([]byte("is32"))
	toc.WriteUint32(999)
	data := buildArchive(Entry{TypeTOC, toc.Bytes()}, entry)

	w, e := countBySeverity(collectIssues(data))
	if w != 0 || e != 1 {
		t.Errorf("toc mismatch: got %d warnings/%d errors, want 0/1", w, e)
	}

	// TOC count disagrees with the archive
	data = buildArchive(Entry{TypeTOC, nil}, entry)
	w, e = countBySeverity(collectIssues(data))
	if w != 0 || e != 1 {
		t.Errorf("toc count: got %d warnings/%d errors, want 0/1", w, e)
	}

	// A written TOC verifies cleanly
	f := &File{Entries: []Entry{entry}}
	if issues := collectIssues(f.Bytes(true)); len(issues) != 0 {
		t.Errorf("generated toc: got %v", issues)
	}
}

func TestVerifyNeverFails(t *testing.T) {
	// Verification must terminate without panicking on arbitrary
	// truncations of a valid archive
	data := buildArchive(
		Entry{TypeOf("is32"), uniformRGB(1, 2, 3)},
		Entry{TypeOf("s8mk"), make([]byte, 256)},
	)
	for n := 0; n <= len(data); n++ {
		collectIssues(data[:n])
	}
}
