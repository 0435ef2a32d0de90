package testutil

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
)

// FilePart is one file in a multipart form.
type FilePart struct {
	Field    string
	Filename string
	Data     []byte
}

// MultipartRequest builds a POST with the given files and plain fields.
func MultipartRequest(t testing.TB, target string, files []FilePart, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("cannot write field %s: %v", name, err)
		}
	}
	for _, file := range files {
		part, err := writer.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			t.Fatalf("cannot create form file: %v", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			t.Fatalf("cannot write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("cannot close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// AudioRequest is the common case: one "file" part.
func AudioRequest(t testing.TB, target string, filename string, data []byte) *http.Request {
	return MultipartRequest(t, target, []FilePart{{Field: "file", Filename: filename, Data: data}}, nil)
}

// ListDir returns the names in dir, failing the test if it cannot be read.
func ListDir(t testing.TB, fs afero.Fs, dir string) []string {
	t.Helper()
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		t.Fatalf("cannot read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}
