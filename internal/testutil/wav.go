// Package testutil builds fixtures shared by the package tests.
package testutil

import (
	"io"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// WavBytes encodes numSamples of a mono 16bit sawtooth at sampleRate as a complete .wav file.
// The encoder needs an io.WriteSeeker to finalize the headers, so it goes through an in-memory afero file.
func WavBytes(t testing.TB, sampleRate int, numSamples int) []byte {
	t.Helper()

	data := make([]int, numSamples)
	for i := range data {
		data[i] = (i % 200) * 100
	}
	inputBuffer := &audio.IntBuffer{
		Data: data,
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: 1,
		},
		SourceBitDepth: 16,
	}

	fs := afero.NewMemMapFs()
	inMemoryFilename := "fixture.wav"
	inMemoryFile, err := fs.Create(inMemoryFilename)
	if err != nil {
		t.Fatalf("cannot create in-memory wav: %v", err)
	}

	encoder := wav.NewEncoder(inMemoryFile, sampleRate, 16, 1, 1)
	if err := encoder.Write(inputBuffer); err != nil {
		t.Fatalf("cannot encode wav: %v", err)
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("cannot finish wav encoding: %v", err)
	}
	if err := inMemoryFile.Close(); err != nil {
		t.Fatalf("cannot close in-memory wav: %v", err)
	}

	reopened, err := fs.Open(inMemoryFilename)
	if err != nil {
		t.Fatalf("cannot reopen in-memory wav: %v", err)
	}
	defer reopened.Close()
	result, err := io.ReadAll(reopened)
	if err != nil {
		t.Fatalf("cannot read in-memory wav: %v", err)
	}
	return result
}

// TwoKilobyteWav is a ~2 KB mono 8kHz clip (44 byte header + 1000 samples).
func TwoKilobyteWav(t testing.TB) []byte {
	return WavBytes(t, 8000, 1000)
}
