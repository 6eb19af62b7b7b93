package transfer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/SpatiumPortae/xfer/internal/conn"
)

// Receiver fills p completely or fails.
type Receiver interface {
	RecvExact(p []byte) error
}

// Response is a decoded server response. Size and ModTime are only set when Found is true.
type Response struct {
	Found   bool
	Size    uint32
	ModTime uint32
}

// EncodeFound builds the header preceding a payload of the provided size.
func EncodeFound(size uint32) []byte {
	b := make([]byte, HeaderSize)
	copy(b, foundStatus)
	binary.BigEndian.PutUint32(b[len(foundStatus):], size)
	return b
}

// EncodeNotFound builds the negative response.
func EncodeNotFound() []byte {
	return bytes.Clone(notFoundStatus)
}

// EncodeTimestamp builds the trailer following a payload.
func EncodeTimestamp(modTime uint32) []byte {
	return binary.BigEndian.AppendUint32(make([]byte, 0, TimestampSize), modTime)
}

// ReadStatus decodes the response header. found is false for a -ERR response.
func ReadStatus(r Receiver) (found bool, size uint32, err error) {
	status := make([]byte, 1)
	if err := r.RecvExact(status); err != nil {
		return false, 0, fmt.Errorf("reading response status: %w", err)
	}
	switch status[0] {
	case notFoundStatus[0]:
		rest := make([]byte, len(notFoundStatus)-1)
		if err := r.RecvExact(rest); err != nil {
			return false, 0, fmt.Errorf("reading negative response: %w", err)
		}
		if !bytes.Equal(rest, notFoundStatus[1:]) {
			return false, 0, Error{Stage: StageNotFound, Expected: "ERR\\r\\n", Got: rest}
		}
		return false, 0, nil
	case foundStatus[0]:
		rest := make([]byte, HeaderSize-1)
		if err := r.RecvExact(rest); err != nil {
			return false, 0, fmt.Errorf("reading response header: %w", err)
		}
		if !bytes.Equal(rest[:len(foundStatus)-1], foundStatus[1:]) {
			return false, 0, Error{Stage: StageFound, Expected: "OK\\r\\n", Got: rest[:len(foundStatus)-1]}
		}
		return true, binary.BigEndian.Uint32(rest[len(foundStatus)-1:]), nil
	default:
		return false, 0, Error{Stage: StageStatus, Expected: "+ or -", Got: status}
	}
}

// ReadPayload copies exactly size bytes from r to w in chunks of at most len(buf) bytes.
// A nil buf is replaced with one of BufferSize bytes.
func ReadPayload(r Receiver, w io.Writer, size uint32, buf []byte) error {
	if len(buf) == 0 {
		buf = make([]byte, BufferSize)
	}
	remaining := int64(size)
	for remaining > 0 {
		chunk := buf
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		if err := r.RecvExact(chunk); err != nil {
			return fmt.Errorf("reading payload, %d of %d bytes missing: %w", remaining, size, err)
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("writing payload: %w", err)
		}
		remaining -= int64(len(chunk))
	}
	return nil
}

// ReadTimestamp decodes the trailer following a payload.
func ReadTimestamp(r Receiver) (uint32, error) {
	b := make([]byte, TimestampSize)
	if err := r.RecvExact(b); err != nil {
		return 0, fmt.Errorf("reading modification time: %w", err)
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadResponse decodes a complete response, streaming the payload into w.
func ReadResponse(r Receiver, w io.Writer) (Response, error) {
	found, size, err := ReadStatus(r)
	if err != nil || !found {
		return Response{}, err
	}
	if err := ReadPayload(r, w, size, nil); err != nil {
		return Response{}, err
	}
	modTime, err := ReadTimestamp(r)
	if err != nil {
		return Response{}, err
	}
	return Response{Found: true, Size: size, ModTime: modTime}, nil
}

// Classify maps the error of a request to its outcome. A nil error is a Success.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrProtocolViolation), errors.Is(err, ErrNameTooLong), errors.Is(err, ErrInvalidName):
		return ProtocolViolation
	case errors.Is(err, conn.ErrTimeout):
		return TimeoutExpired
	default:
		return TransportError
	}
}
