package audio_utils

import (
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrUnknownContainer is returned by Duration for formats we cannot measure.
var ErrUnknownContainer = errors.New("no duration probe for this container")

// Sniffed is what content sniffing made of the first bytes of an upload.
type Sniffed struct {
	MIME string
	// Extension is the one Whisper understands, empty if the type is not something it accepts.
	Extension string
	IsAudio   bool
}

// Order matters, more specific types first.
var providerExtensions = []struct {
	mime      string
	extension string
}{
	{"audio/wav", "wav"},
	{"audio/mpeg", "mp3"},
	{"audio/flac", "flac"},
	{"audio/ogg", "ogg"},
	{"application/ogg", "ogg"},
	{"audio/x-m4a", "m4a"},
	{"audio/mp4", "m4a"},
	{"video/mp4", "mp4"},
	{"video/webm", "webm"},
	{"audio/webm", "webm"},
	{"video/mpeg", "mpeg"},
}

// Sniff detects the content type of the reader (it consumes up to mimetype's read limit).
func Sniff(r io.Reader) (result Sniffed, err error) {
	detected, err := mimetype.DetectReader(r)
	if err != nil {
		err = errors.Wrap(err, "cannot detect content type")
		return
	}
	result.MIME = detected.String()
	for _, candidate := range providerExtensions {
		if detected.Is(candidate.mime) {
			result.Extension = candidate.extension
			result.IsAudio = true
			return
		}
	}
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			result.IsAudio = true
			break
		}
	}
	return
}

// ExtensionFromFilename is the fallback when sniffing was inconclusive, "" if the client name has no extension.
func ExtensionFromFilename(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	ext := strings.ToLower(filename[idx+1:])
	if strings.ContainsAny(ext, `/\ `) {
		return ""
	}
	return ext
}

// Duration measures the playback length for the containers we have decoders for.
// The reader position is undefined afterwards.
func Duration(rs io.ReadSeeker, extension string) (time.Duration, error) {
	switch extension {
	case "wav":
		decoder := wav.NewDecoder(rs)
		if !decoder.IsValidFile() {
			return 0, errors.New("invalid wav header")
		}
		d, err := decoder.Duration()
		if err != nil {
			return 0, errors.Wrap(err, "cannot read wav duration")
		}
		return d, nil
	case "mp3":
		decoder, err := mp3.NewDecoder(rs)
		if err != nil {
			return 0, errors.Wrap(err, "cannot decode mp3")
		}
		// Length is in bytes of decoded 16bit stereo, i.e. 4 bytes per sample frame.
		if decoder.Length() <= 0 || decoder.SampleRate() <= 0 {
			return 0, errors.New("mp3 length unknown")
		}
		frames := decoder.Length() / 4
		return time.Duration(frames) * time.Second / time.Duration(decoder.SampleRate()), nil
	case "flac":
		stream, err := flac.New(rs)
		if err != nil {
			return 0, errors.Wrap(err, "cannot parse flac stream info")
		}
		if stream.Info == nil || stream.Info.SampleRate == 0 {
			return 0, errors.New("flac stream info incomplete")
		}
		return time.Duration(stream.Info.NSamples) * time.Second / time.Duration(stream.Info.SampleRate), nil
	default:
		log.Trace().Str("extension", extension).Msg("no duration probe")
		return 0, ErrUnknownContainer
	}
}
