package ftpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// Kind classifies a failure independently of its cause.
type Kind int

const (
	// KindInvalidParameter reports a missing or out-of-range argument.
	KindInvalidParameter Kind = iota + 1
	// KindInitialization reports that Init has not been called.
	KindInitialization
	// KindConnection reports a TCP or TLS establishment failure, or a
	// client that has no live control connection.
	KindConnection
	// KindAuthentication reports that USER/PASS was rejected.
	KindAuthentication
	// KindTimeout reports that the connect or operation deadline passed.
	KindTimeout
	// KindRemoteNotFound reports that the server says the target does not exist.
	KindRemoteNotFound
	// KindTransfer reports a data-channel or reply failure not covered above.
	KindTransfer
	// KindLocalIO reports that a local file could not be opened, created or written.
	KindLocalIO
	// KindOutOfMemory reports that a listing outgrew its configured cap.
	KindOutOfMemory
	// KindProtocol reports a malformed server reply.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameter:
		return "invalid parameter"
	case KindInitialization:
		return "initialization failure"
	case KindConnection:
		return "connection failure"
	case KindAuthentication:
		return "authentication failure"
	case KindTimeout:
		return "timeout"
	case KindRemoteNotFound:
		return "remote not found"
	case KindTransfer:
		return "transfer failure"
	case KindLocalIO:
		return "local i/o failure"
	case KindOutOfMemory:
		return "out of memory"
	case KindProtocol:
		return "protocol violation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	// ErrNotInitialized is returned by Connect before Init has been called.
	ErrNotInitialized = errors.New("ftp: library not initialized")

	// ErrNotConnected is returned by operations on a client without a
	// live control connection.
	ErrNotConnected = errors.New("ftp: not connected")

	// ErrBusy is returned when an operation is started while another one
	// is still running on the same client.
	ErrBusy = errors.New("ftp: another operation is in progress")

	// ErrAborted is returned when the progress callback asked to stop.
	ErrAborted = errors.New("ftp: transfer aborted by progress callback")

	// ErrSizeUnavailable is returned when SIZE did not yield a number.
	ErrSizeUnavailable = errors.New("ftp: file size unavailable")

	// ErrMalformedReply is returned when the server sent something that is
	// not a well-formed FTP reply.
	ErrMalformedReply = errors.New("ftp: malformed reply")

	// ErrListingTooLarge is returned when a LIST response exceeds MaxListSize.
	ErrListingTooLarge = errors.New("ftp: listing exceeds size limit")

	// ErrPartialWrite matches (via errors.Is) download failures that left
	// bytes in a caller-supplied writer. The caller owns the cleanup.
	ErrPartialWrite = errors.New("ftp: partial data written to sink")
)

// ProtocolError represents an FTP protocol error with full context of the
// command/response conversation.
type ProtocolError struct {
	// Command is the FTP command that was sent (e.g., "STOR")
	Command string

	// Response is the message received from the server (e.g., "Permission denied")
	Response string

	// Code is the numeric FTP response code (e.g., 550)
	Code int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// IsTemporary returns true if the error is a temporary failure (4xx).
func (e *ProtocolError) IsTemporary() bool {
	return e.Code >= 400 && e.Code < 500
}

// IsPermanent returns true if the error is a permanent failure (5xx).
func (e *ProtocolError) IsPermanent() bool {
	return e.Code >= 500 && e.Code < 600
}

func replyError(command string, r *Reply) *ProtocolError {
	return &ProtocolError{Command: command, Response: r.Message, Code: r.Code}
}

// Error is the error type returned by every public Client operation.
type Error struct {
	// Op is the public operation that failed (e.g., "download")
	Op string

	// Kind classifies the failure
	Kind Kind

	// Path is the remote path involved, if any
	Path string

	// Err is the underlying cause
	Err error

	// partial is set when a caller-supplied sink received bytes
	partial bool
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports ErrPartialWrite for downloads that left data in the sink.
func (e *Error) Is(target error) bool {
	return target == ErrPartialWrite && e.partial
}

// KindOf returns the Kind of err, or 0 if err is nil or not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// kindError attaches a Kind to an internal failure so the public
// boundary does not have to guess it.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

func withKind(k Kind, err error) error {
	return &kindError{kind: k, err: err}
}

// notFoundCommands are the commands whose 550 reply means the target
// does not exist.
var notFoundCommands = map[string]bool{
	"RETR": true,
	"SIZE": true,
	"DELE": true,
	"RMD":  true,
	"RNFR": true,
}

// localError marks a failure of the local source or sink so it classifies
// as KindLocalIO rather than as a network failure.
type localError struct{ err error }

func (e *localError) Error() string { return "local: " + e.err.Error() }
func (e *localError) Unwrap() error { return e.err }

// classify picks the Kind for a failure of op. fallback is used when
// nothing more specific is recognised.
func classify(ctx context.Context, err error, fallback Kind) Kind {
	var (
		e    *Error
		ke   *kindError
		le   *localError
		pe   *ProtocolError
		nerr net.Error
	)
	switch {
	case errors.As(err, &e):
		return e.Kind
	case errors.As(err, &ke):
		return ke.kind
	case errors.Is(err, ErrAborted):
		return KindTransfer
	case errors.Is(err, ErrMalformedReply):
		return KindProtocol
	case errors.Is(err, ErrListingTooLarge):
		return KindOutOfMemory
	case errors.As(err, &le):
		return KindLocalIO
	case ctx != nil && errors.Is(ctx.Err(), context.Canceled):
		return KindTransfer
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout
	case errors.As(err, &nerr) && nerr.Timeout():
		return KindTimeout
	case ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &pe) && pe.Code == 550 && notFoundCommands[pe.Command]:
		return KindRemoteNotFound
	}
	return fallback
}
