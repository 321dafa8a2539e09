// Package compression provides the PackBytes run-length codec used by
// legacy ICNS pixel data.
//
// The codec operates on one 8-bit channel at a time. A control byte in
// [0x00, 0x7F] starts a literal run: the next (control + 1) bytes are copied
// verbatim. A control byte in [0x80, 0xFF] starts a repeat run: the next
// byte is repeated (control - 0x7D) times, so repeat runs cover 3 to 130
// copies. There is no header; the decoded length is implied by the target
// channel size.
package compression

import (
	"errors"
)

// PackBytes codec errors
var (
	// ErrTruncated is returned when the control stream ends before the
	// expected number of bytes has been produced.
	ErrTruncated = errors.New("compression: truncated PackBytes stream")

	// ErrOverrun is returned when a run would produce more bytes than the
	// expected decoded size.
	ErrOverrun = errors.New("compression: PackBytes run exceeds expected size")
)

// PackBytes constants
const (
	// maxLiteralRun is the longest literal run a single control byte can carry.
	maxLiteralRun = 128
	// minRepeatRun is the shortest sequence worth encoding as a repeat run.
	minRepeatRun = 3
	// maxRepeatRun is the most copies a single repeat control byte can encode.
	maxRepeatRun = 130
	// repeatBias maps a repeat count to its control byte (count + repeatBias).
	repeatBias = 0x7D
)

// Pack compresses one channel using PackBytes run-length encoding.
//
// The encoder is greedy: any sequence of three or more identical bytes
// becomes a repeat run, everything else accumulates into literal runs.
// Runs longer than 130 copies are split, shortening the next-to-last
// chunk when needed so the tail never falls below three copies and every
// control byte stays decodable.
func Pack(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}

	// Worst case: a lone literal control byte per 128 source bytes,
	// plus one for a short tail.
	dst := make([]byte, 0, len(src)+len(src)/maxLiteralRun+1)

	litStart := 0 // start of pending literal bytes, litStart == i means none
	flush := func(end int) {
		for litStart < end {
			n := end - litStart
			if n > maxLiteralRun {
				n = maxLiteralRun
			}
			dst = append(dst, byte(n-1))
			dst = append(dst, src[litStart:litStart+n]...)
			litStart += n
		}
	}

	i := 0
	for i < len(src) {
		val := src[i]
		if i+minRepeatRun <= len(src) && src[i+1] == val && src[i+2] == val {
			flush(i)
			runEnd := i + minRepeatRun
			for runEnd < len(src) && src[runEnd] == val {
				runEnd++
			}
			n := runEnd - i
			for n > maxRepeatRun {
				chunk := maxRepeatRun
				if n-chunk > 0 && n-chunk < minRepeatRun {
					// A 1- or 2-copy tail has no repeat control byte;
					// leave a full 3-copy run instead
					chunk = n - minRepeatRun
				}
				dst = append(dst, byte(chunk+repeatBias), val)
				n -= chunk
			}
			dst = append(dst, byte(n+repeatBias), val)
			i = runEnd
			litStart = i
			continue
		}
		i++
	}
	flush(len(src))

	return dst
}

// Unpack decompresses a PackBytes stream into a new buffer of exactly
// expectedSize bytes.
//
// It returns ErrTruncated if the stream ends before expectedSize bytes have
// been produced, and ErrOverrun if a run would produce more than
// expectedSize bytes.
func Unpack(src []byte, expectedSize int) ([]byte, error) {
	if len(src) == 0 {
		if expectedSize != 0 {
			return nil, ErrTruncated
		}
		return nil, nil
	}

	dst := make([]byte, expectedSize)
	dstPos := 0

	i := 0
	for i < len(src) {
		ctrl := src[i]
		i++

		if ctrl < 0x80 {
			// Literal run: copy the next (ctrl + 1) bytes
			n := int(ctrl) + 1
			if i+n > len(src) {
				return nil, ErrTruncated
			}
			if dstPos+n > expectedSize {
				return nil, ErrOverrun
			}
			copy(dst[dstPos:], src[i:i+n])
			dstPos += n
			i += n
		} else {
			// Repeat run: repeat the next byte (ctrl - 0x7D) times
			n := int(ctrl) - repeatBias
			if i >= len(src) {
				return nil, ErrTruncated
			}
			if dstPos+n > expectedSize {
				return nil, ErrOverrun
			}
			val := src[i]
			i++
			for end := dstPos + n; dstPos < end; dstPos++ {
				dst[dstPos] = val
			}
		}
	}

	if dstPos != expectedSize {
		return nil, ErrTruncated
	}

	return dst, nil
}

// UnpackedSize returns the number of bytes the stream decodes to, walking
// control bytes without expanding any data. Malformed trailing bytes count
// the same way a decoder would before failing, so the result is only exact
// for well-formed streams.
func UnpackedSize(src []byte) int {
	count := 0
	i := 0
	for i < len(src) {
		ctrl := src[i]
		if ctrl < 0x80 {
			count += int(ctrl) + 1
			i += int(ctrl) + 2
		} else {
			count += int(ctrl) - repeatBias
			i += 2
		}
	}
	return count
}
