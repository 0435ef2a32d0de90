package models

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNoFileProvided
	KindMultipleFiles
	KindMalformedUpload
	KindPayloadTooLarge
	KindUnsupportedMedia
	KindUpstreamTimeout
	KindUpstreamUnreachable
	KindUpstreamError
	KindUpstreamMalformedResponse
	KindCanceled
)

var kindNames = map[ErrorKind]string{
	KindInternal:                  "internal",
	KindNoFileProvided:            "no_file_provided",
	KindMultipleFiles:             "multiple_files",
	KindMalformedUpload:           "malformed_upload",
	KindPayloadTooLarge:           "payload_too_large",
	KindUnsupportedMedia:          "unsupported_media",
	KindUpstreamTimeout:           "upstream_timeout",
	KindUpstreamUnreachable:       "upstream_unreachable",
	KindUpstreamError:             "upstream_error",
	KindUpstreamMalformedResponse: "upstream_malformed_response",
	KindCanceled:                  "canceled",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsClientFault tells whether the caller sent something we refuse, as opposed to us or the provider failing.
func (k ErrorKind) IsClientFault() bool {
	switch k {
	case KindNoFileProvided, KindMultipleFiles, KindMalformedUpload, KindPayloadTooLarge, KindUnsupportedMedia:
		return true
	default:
		return false
	}
}

// TranscriptionError classifies why a request did not produce a transcript.
// It never carries provider SDK types, only the kind, the provider status (if any) and a diagnostic message.
type TranscriptionError struct {
	Kind ErrorKind
	// StatusCode is the provider HTTP status for KindUpstreamError, otherwise zero.
	StatusCode int
	Message    string
	Err        error
}

func NewError(kind ErrorKind, message string, cause error) *TranscriptionError {
	return &TranscriptionError{Kind: kind, Message: message, Err: cause}
}

func (e *TranscriptionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// KindOf digs the kind out of a (possibly wrapped) error, anything unclassified is KindInternal.
func KindOf(err error) ErrorKind {
	var te *TranscriptionError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}
