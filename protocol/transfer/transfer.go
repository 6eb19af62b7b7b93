// transfer.go specifies the messages of the file transfer protocol.
//
//	request:   GET <name>\r\n
//	found:     +OK\r\n <size:uint32> <payload:size bytes> <modTime:uint32>
//	not found: -ERR\r\n
//
// All integers are big-endian.
package transfer

import (
	"errors"
	"fmt"
)

const (
	BufferSize    = 4096 // upper bound of a single request message and of a payload chunk
	MaxNameLength = 199  // longest file name a server accepts
	HeaderSize    = 9    // +OK\r\n followed by the payload size
	TimestampSize = 4
)

var (
	requestPrefix  = []byte("GET ")
	terminator     = []byte("\r\n")
	foundStatus    = []byte("+OK\r\n")
	notFoundStatus = []byte("-ERR\r\n")
)

var (
	ErrProtocolViolation = errors.New("protocol violation")
	ErrNameTooLong       = errors.New("file name too long")
	ErrInvalidName       = errors.New("invalid file name")
)

// Outcome is the result of a single file request.
type Outcome int

const (
	Success          Outcome = iota // The payload and timestamp were received in full
	NotFoundOnServer                // The server answered -ERR
	TransportError                  // The connection failed or was closed mid message
	TimeoutExpired                  // No data arrived within the idle timeout
	ProtocolViolation               // The peer sent bytes that do not follow the protocol
)

func (o Outcome) Name() string {
	switch o {
	case Success:
		return "Success"
	case NotFoundOnServer:
		return "NotFoundOnServer"
	case TransportError:
		return "TransportError"
	case TimeoutExpired:
		return "TimeoutExpired"
	case ProtocolViolation:
		return "ProtocolViolation"
	default:
		return ""
	}
}

func (o Outcome) String() string {
	return o.Name()
}

// Stage names the part of a message a decoder was looking at.
type Stage int

const (
	StageRequest  Stage = iota
	StageStatus         // first byte of a response
	StageNotFound       // remainder of -ERR\r\n
	StageFound          // remainder of +OK\r\n
)

func (s Stage) Name() string {
	switch s {
	case StageRequest:
		return "Request"
	case StageStatus:
		return "Status"
	case StageNotFound:
		return "NotFound"
	case StageFound:
		return "Found"
	default:
		return ""
	}
}

// Error describes a malformed message. It matches ErrProtocolViolation.
type Error struct {
	Stage    Stage
	Expected string
	Got      []byte
}

func (e Error) Error() string {
	return fmt.Sprintf("malformed %s message, expected: (%s), got: (%q)", e.Stage.Name(), e.Expected, e.Got)
}

func (e Error) Is(target error) bool {
	return target == ErrProtocolViolation
}
