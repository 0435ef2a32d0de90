package models

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/spf13/afero"
)

func stagedAudio(t *testing.T, fs afero.Fs, content string) *UploadedAudio {
	t.Helper()
	if err := afero.WriteFile(fs, "uploads/upload-1", []byte(content), 0o644); err != nil {
		t.Fatalf("cannot stage: %v", err)
	}
	return NewUploadedAudio(fs, "uploads/upload-1")
}

func TestUploadedAudioOpenAndRelease(t *testing.T) {
	fs := afero.NewMemMapFs()
	audio := stagedAudio(t, fs, "RIFF....")

	f, err := audio.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil || string(data) != "RIFF...." {
		t.Fatalf("read %q, %v", data, err)
	}

	if err := audio.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !audio.Released() {
		t.Error("Released() = false after Release")
	}
	if exists, _ := afero.Exists(fs, audio.Path()); exists {
		t.Error("staged file still exists after Release")
	}
	if _, err := audio.Open(); !errors.Is(err, ErrReleased) {
		t.Errorf("Open after Release: err = %v, want ErrReleased", err)
	}
}

func TestUploadedAudioReleaseIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	audio := stagedAudio(t, fs, "x")

	for i := 0; i < 3; i++ {
		if err := audio.Release(); err != nil {
			t.Fatalf("Release #%d: %v", i, err)
		}
	}
}

func TestUploadedAudioReleaseAlreadyGone(t *testing.T) {
	fs := afero.NewMemMapFs()
	audio := stagedAudio(t, fs, "x")
	if err := fs.Remove(audio.Path()); err != nil {
		t.Fatal(err)
	}
	if err := audio.Release(); err != nil {
		t.Errorf("Release of a missing file should be quiet, got %v", err)
	}
}

// removeCounter counts Remove calls so we can assert the file is removed exactly once.
type removeCounter struct {
	afero.Fs
	removes int
}

func (rc *removeCounter) Remove(name string) error {
	rc.removes++
	return rc.Fs.Remove(name)
}

func TestUploadedAudioRemovesExactlyOnce(t *testing.T) {
	fs := &removeCounter{Fs: afero.NewMemMapFs()}
	audio := stagedAudio(t, fs, "x")

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = audio.Release()
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if fs.removes != 1 {
		t.Errorf("removes = %d, want 1", fs.removes)
	}
}

func TestUploadName(t *testing.T) {
	audio := NewUploadedAudio(afero.NewMemMapFs(), "x")
	if got := audio.UploadName(); got != "audio.bin" {
		t.Errorf("UploadName() = %q, want audio.bin", got)
	}
	audio.Extension = "wav"
	if got := audio.UploadName(); got != "audio.wav" {
		t.Errorf("UploadName() = %q, want audio.wav", got)
	}
}

func TestKindOf(t *testing.T) {
	base := &TranscriptionError{Kind: KindUpstreamError, StatusCode: 401, Message: "Incorrect API key"}
	wrapped := fmt.Errorf("relay: %w", base)

	if got := KindOf(wrapped); got != KindUpstreamError {
		t.Errorf("KindOf(wrapped) = %s, want upstream_error", got)
	}
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("KindOf(plain) = %s, want internal", got)
	}
	if got := KindOf(nil); got != KindInternal {
		t.Errorf("KindOf(nil) = %s, want internal", got)
	}
}

func TestTranscriptionErrorMessage(t *testing.T) {
	err := &TranscriptionError{Kind: KindUpstreamError, StatusCode: 401, Message: "bad key", Err: errors.New("cause")}
	want := "upstream_error (status 401): bad key: cause"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, err.Err) {
		t.Error("Unwrap does not expose the cause")
	}
}

func TestErrorKindClientFault(t *testing.T) {
	for _, kind := range []ErrorKind{KindNoFileProvided, KindPayloadTooLarge, KindMultipleFiles} {
		if !kind.IsClientFault() {
			t.Errorf("%s should be a client fault", kind)
		}
	}
	for _, kind := range []ErrorKind{KindUpstreamTimeout, KindUpstreamError, KindInternal, KindCanceled} {
		if kind.IsClientFault() {
			t.Errorf("%s should not be a client fault", kind)
		}
	}
}
