// Package outputs implements the output validators (C10): structural
// checks on script, audio, image, and final video artifacts produced by
// each pipeline stage.
//
// Grounded on the teacher's internal/services/openai.go plan-validation
// block (required-field checks on LLM JSON output before it is accepted),
// generalized from "is this a well-formed plan" to all four artifact
// kinds, including the raw container/image signature sniffing the teacher
// never needed (it trusts provider SDKs for that).
package outputs

import (
	"fmt"
	"os"
	"strings"
)

// Result is Valid when ok, or carries Reason when not.
type Result struct {
	Valid  bool
	Reason string
}

func invalid(format string, args ...any) Result {
	return Result{Valid: false, Reason: fmt.Sprintf(format, args...)}
}

var valid = Result{Valid: true}

// Script checks that generated script text is non-empty, printable, and
// contains at least one scene marker consistent with style.
func Script(text, style string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return invalid("script is empty")
	}
	for _, r := range trimmed {
		if r < 0x09 || (r > 0x0D && r < 0x20) {
			return invalid("script contains non-printable characters")
		}
	}
	marker := sceneMarkerFor(style)
	if !strings.Contains(strings.ToLower(trimmed), marker) {
		return invalid("script does not contain a scene marker (%q) for style %q", marker, style)
	}
	return valid
}

func sceneMarkerFor(style string) string {
	switch strings.ToLower(style) {
	case "screenplay":
		return "int."
	default:
		return "scene"
	}
}

const minAudioBytes = 256

var wavHeader = []byte("RIFF")
var oggHeader = []byte("OggS")
var mp3Header = []byte{0xFF}

// Audio checks that the narration file exists, is above a minimum size,
// and its header bytes match a recognized audio container.
func Audio(path, format string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return invalid("audio file %s: %v", path, err)
	}
	if info.Size() < minAudioBytes {
		return invalid("audio file %s is only %d bytes", path, info.Size())
	}
	header, err := readHeader(path, 4)
	if err != nil {
		return invalid("audio file %s: %v", path, err)
	}
	switch strings.ToLower(format) {
	case "wav":
		if !hasPrefix(header, wavHeader) {
			return invalid("audio file %s does not have a RIFF/WAV header", path)
		}
	case "ogg":
		if !hasPrefix(header, oggHeader) {
			return invalid("audio file %s does not have an OggS header", path)
		}
	case "mp3":
		if len(header) == 0 || (header[0] != mp3Header[0] && !hasPrefix(header, []byte("ID3"))) {
			return invalid("audio file %s does not have a recognizable MP3 header", path)
		}
	default:
		// Unknown declared format: existence and size are still checked;
		// header sniffing only applies to formats the engine knows about.
	}
	return valid
}

const minImageBytes = 128

var jpegHeader = []byte{0xFF, 0xD8, 0xFF}
var pngHeader = []byte{0x89, 'P', 'N', 'G'}
var webpRIFF = []byte("RIFF")
var webpTag = []byte("WEBP")

// Image checks that a visual asset exists, is above a minimum size, and
// its first bytes match a JPEG/PNG/WebP signature.
func Image(path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return invalid("image file %s: %v", path, err)
	}
	if info.Size() < minImageBytes {
		return invalid("image file %s is only %d bytes", path, info.Size())
	}
	header, err := readHeader(path, 12)
	if err != nil {
		return invalid("image file %s: %v", path, err)
	}
	switch {
	case hasPrefix(header, jpegHeader):
	case hasPrefix(header, pngHeader):
	case len(header) >= 12 && hasPrefix(header, webpRIFF) && string(header[8:12]) == string(webpTag):
	default:
		return invalid("image file %s does not match a JPEG/PNG/WebP signature", path)
	}
	return valid
}

var mp4Ftyp = []byte("ftyp")
var mkvHeader = []byte{0x1A, 0x45, 0xDF, 0xA3}
var webmHeader = mkvHeader // WebM is a Matroska profile, same EBML header.

// Video checks that the final render exists, is above a duration/bitrate
// proportional threshold, and its header matches the declared container.
func Video(path string, container string, expectedDurationSec float64, totalKbps int) Result {
	info, err := os.Stat(path)
	if err != nil {
		return invalid("video file %s: %v", path, err)
	}
	minBytes := int64(expectedDurationSec * float64(totalKbps) * 1000 / 8 * 0.5)
	if minBytes > 0 && info.Size() < minBytes {
		return invalid("video file %s is %d bytes, below expected minimum %d", path, info.Size(), minBytes)
	}
	header, err := readHeader(path, 12)
	if err != nil {
		return invalid("video file %s: %v", path, err)
	}
	switch strings.ToLower(container) {
	case "mp4":
		if len(header) < 8 || string(header[4:8]) != string(mp4Ftyp) {
			return invalid("video file %s does not have an ftyp box for mp4", path)
		}
	case "mkv", "webm":
		if !hasPrefix(header, mkvHeader) {
			return invalid("video file %s does not have a Matroska/EBML header", path)
		}
	default:
		return invalid("video file %s: unrecognized container %q", path, container)
	}
	return valid
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func readHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return nil, err
	}
	return buf[:read], nil
}
