package transfer

import (
	"bytes"
	"fmt"
)

// Request is a decoded file request.
type Request struct {
	Name string
}

// EncodeRequest builds the request line for the provided file name.
func EncodeRequest(name string) ([]byte, error) {
	if len(name) == 0 || bytes.ContainsAny([]byte(name), "\r\n") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	size := len(requestPrefix) + len(name) + len(terminator)
	if size > BufferSize {
		return nil, fmt.Errorf("%w: request of %d bytes exceeds %d", ErrNameTooLong, size, BufferSize)
	}
	b := make([]byte, 0, size)
	b = append(b, requestPrefix...)
	b = append(b, name...)
	b = append(b, terminator...)
	return b, nil
}

// RequestComplete reports whether b holds a terminated request line.
func RequestComplete(b []byte) bool {
	return bytes.Contains(b, terminator)
}

// DecodeRequest decodes exactly one request line. Bytes following the
// terminator are rejected, requests are never pipelined.
func DecodeRequest(b []byte) (Request, error) {
	if !bytes.HasPrefix(b, requestPrefix) {
		return Request{}, Error{Stage: StageRequest, Expected: "GET <name>\\r\\n", Got: head(b)}
	}
	rest := b[len(requestPrefix):]
	end := bytes.Index(rest, terminator)
	switch {
	case end < 0:
		return Request{}, Error{Stage: StageRequest, Expected: "terminated request", Got: head(b)}
	case end+len(terminator) != len(rest):
		return Request{}, Error{Stage: StageRequest, Expected: "single request", Got: head(rest[end+len(terminator):])}
	}
	name := rest[:end]
	switch {
	case len(name) == 0:
		return Request{}, Error{Stage: StageRequest, Expected: "file name", Got: head(b)}
	case len(name) > MaxNameLength:
		return Request{}, Error{Stage: StageRequest, Expected: fmt.Sprintf("name of at most %d bytes", MaxNameLength), Got: head(name)}
	case bytes.ContainsAny(name, "\r\n"):
		return Request{}, Error{Stage: StageRequest, Expected: "name without line breaks", Got: head(name)}
	}
	return Request{Name: string(name)}, nil
}

// head copies at most the first 32 bytes of b for error messages.
func head(b []byte) []byte {
	const limit = 32
	if len(b) > limit {
		b = b[:limit]
	}
	return bytes.Clone(b)
}
