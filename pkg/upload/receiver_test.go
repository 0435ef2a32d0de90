package upload

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/petrzlen/whisper-relay/internal/testutil"
	"github.com/petrzlen/whisper-relay/pkg/models"
	"github.com/spf13/afero"
)

func newTestReceiver(t *testing.T, config Config) (*Receiver, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if config.Dir == "" {
		config.Dir = "uploads"
	}
	receiver, err := NewReceiver(fs, config)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	return receiver, fs
}

func assertKind(t *testing.T, err error, want models.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := models.KindOf(err); got != want {
		t.Fatalf("kind = %s, want %s (err: %v)", got, want, err)
	}
}

func assertEmptyDir(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	if names := testutil.ListDir(t, fs, dir); len(names) != 0 {
		t.Fatalf("upload dir not empty: %v", names)
	}
}

func TestReceiveWav(t *testing.T) {
	receiver, fs := newTestReceiver(t, Config{})
	wavBytes := testutil.TwoKilobyteWav(t)
	req := testutil.AudioRequest(t, "/api/stt", "voice memo.wav", wavBytes)

	audio, err := receiver.Receive(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	defer audio.Release()

	if audio.Size != int64(len(wavBytes)) {
		t.Errorf("size = %d, want %d", audio.Size, len(wavBytes))
	}
	if audio.Filename != "voice memo.wav" {
		t.Errorf("filename = %q", audio.Filename)
	}
	if audio.Extension != "wav" {
		t.Errorf("extension = %q, want wav", audio.Extension)
	}
	if audio.ContentType != "application/octet-stream" {
		t.Errorf("declared content type = %q", audio.ContentType)
	}
	if audio.Duration <= 0 {
		t.Errorf("duration not probed: %s", audio.Duration)
	}

	staged, err := afero.ReadFile(fs, audio.Path())
	if err != nil {
		t.Fatalf("cannot read staged file: %v", err)
	}
	if !bytes.Equal(staged, wavBytes) {
		t.Error("staged bytes differ from upload")
	}
	if names := testutil.ListDir(t, fs, "uploads"); len(names) != 1 || !strings.HasPrefix(names[0], stagedFilePrefix) {
		t.Errorf("unexpected staged files: %v", names)
	}

	if err := audio.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	assertEmptyDir(t, fs, "uploads")
}

func TestReceiveIgnoresPlainFields(t *testing.T) {
	receiver, _ := newTestReceiver(t, Config{})
	req := testutil.MultipartRequest(t, "/api/stt",
		[]testutil.FilePart{{Field: "file", Filename: "a.mp3", Data: []byte("not really mp3")}},
		map[string]string{"language": "en", "note": "hello"})

	audio, err := receiver.Receive(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	defer audio.Release()
	// Sniffing is inconclusive, so the client's extension wins.
	if audio.Extension != "mp3" {
		t.Errorf("extension = %q, want mp3 from filename", audio.Extension)
	}
}

func TestReceiveNoFile(t *testing.T) {
	cases := map[string]*http.Request{
		"only fields": testutil.MultipartRequest(t, "/api/stt", nil, map[string]string{"file": "just text"}),
		"other file field": testutil.MultipartRequest(t, "/api/stt",
			[]testutil.FilePart{{Field: "audio", Filename: "a.wav", Data: []byte("x")}}, nil),
		"json body": func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/api/stt", strings.NewReader(`{"file":"x"}`))
			req.Header.Set("Content-Type", "application/json")
			return req
		}(),
		"no body": httptest.NewRequest(http.MethodPost, "/api/stt", nil),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			receiver, fs := newTestReceiver(t, Config{})
			audio, err := receiver.Receive(httptest.NewRecorder(), req)
			if audio != nil {
				t.Fatalf("got audio %+v", audio)
			}
			assertKind(t, err, models.KindNoFileProvided)
			assertEmptyDir(t, fs, "uploads")
		})
	}
}

func TestReceiveTooLarge(t *testing.T) {
	receiver, fs := newTestReceiver(t, Config{MaxBytes: 1024})
	req := testutil.AudioRequest(t, "/api/stt", "big.wav", bytes.Repeat([]byte{1}, 1025))

	_, err := receiver.Receive(httptest.NewRecorder(), req)
	assertKind(t, err, models.KindPayloadTooLarge)
	assertEmptyDir(t, fs, "uploads")
}

func TestReceiveExactlyAtLimit(t *testing.T) {
	receiver, _ := newTestReceiver(t, Config{MaxBytes: 1024})
	req := testutil.AudioRequest(t, "/api/stt", "ok.wav", bytes.Repeat([]byte{1}, 1024))

	audio, err := receiver.Receive(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	audio.Release()
}

func TestReceiveRejectsDeclaredContentLength(t *testing.T) {
	receiver, fs := newTestReceiver(t, Config{MaxBytes: 1024})
	req := testutil.AudioRequest(t, "/api/stt", "a.wav", []byte("small"))
	req.ContentLength = 1024 + multipartAllowance + 1

	_, err := receiver.Receive(httptest.NewRecorder(), req)
	assertKind(t, err, models.KindPayloadTooLarge)
	assertEmptyDir(t, fs, "uploads")
}

func TestReceiveBodyLimitOnFields(t *testing.T) {
	receiver, fs := newTestReceiver(t, Config{MaxBytes: 16})
	req := testutil.MultipartRequest(t, "/api/stt",
		[]testutil.FilePart{{Field: "file", Filename: "a.wav", Data: []byte("tiny")}},
		map[string]string{"padding": strings.Repeat("p", int(multipartAllowance)+64)})
	req.ContentLength = -1

	_, err := receiver.Receive(httptest.NewRecorder(), req)
	assertKind(t, err, models.KindPayloadTooLarge)
	assertEmptyDir(t, fs, "uploads")
}

func TestReceiveMultipleFiles(t *testing.T) {
	receiver, fs := newTestReceiver(t, Config{})
	req := testutil.MultipartRequest(t, "/api/stt", []testutil.FilePart{
		{Field: "file", Filename: "one.wav", Data: []byte("1")},
		{Field: "file", Filename: "two.wav", Data: []byte("2")},
	}, nil)

	_, err := receiver.Receive(httptest.NewRecorder(), req)
	assertKind(t, err, models.KindMultipleFiles)
	assertEmptyDir(t, fs, "uploads")
}

func TestReceiveTruncatedBody(t *testing.T) {
	receiver, fs := newTestReceiver(t, Config{})
	full := testutil.AudioRequest(t, "/api/stt", "a.wav", bytes.Repeat([]byte{7}, 4096))
	body, _ := io.ReadAll(full.Body)

	req := httptest.NewRequest(http.MethodPost, "/api/stt", bytes.NewReader(body[:len(body)/2]))
	req.Header.Set("Content-Type", full.Header.Get("Content-Type"))

	_, err := receiver.Receive(httptest.NewRecorder(), req)
	assertKind(t, err, models.KindMalformedUpload)
	assertEmptyDir(t, fs, "uploads")
}

func TestReceiveStrictMode(t *testing.T) {
	receiver, fs := newTestReceiver(t, Config{RequireAudio: true})

	req := testutil.AudioRequest(t, "/api/stt", "notes.txt", []byte("these are meeting notes, not audio\n"))
	_, err := receiver.Receive(httptest.NewRecorder(), req)
	assertKind(t, err, models.KindUnsupportedMedia)
	assertEmptyDir(t, fs, "uploads")

	req = testutil.AudioRequest(t, "/api/stt", "clip.wav", testutil.TwoKilobyteWav(t))
	audio, err := receiver.Receive(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("strict mode rejected a wav: %v", err)
	}
	audio.Release()
}

func TestPurge(t *testing.T) {
	receiver, fs := newTestReceiver(t, Config{})
	for _, name := range []string{"upload-123", "upload-456", "keep.txt"} {
		if err := afero.WriteFile(fs, "uploads/"+name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := receiver.Purge()
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if names := testutil.ListDir(t, fs, "uploads"); len(names) != 1 || names[0] != "keep.txt" {
		t.Errorf("left over: %v", names)
	}
}
