package ftpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gonzalop/ftpclient/internal/ratelimit"
)

// transferOptions are the settings of a single transfer, read from the
// client configuration when the operation starts.
type transferOptions struct {
	mode       Mode
	activeAddr string
	bufSize    int
	progress   ProgressFunc
	limiter    *ratelimit.Limiter
}

// sizeRegex matches the size announced in a 150 reply, e.g.
// "150 Opening BINARY mode data connection for file.bin (4096 bytes)".
var sizeRegex = regexp.MustCompile(`\((\d+) bytes\)`)

// parseTransferSize returns the size announced in a preliminary reply, or
// 0 if there is none.
func parseTransferSize(msg string) int64 {
	m := sizeRegex.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// streamFunc moves the payload over an established data connection.
type streamFunc func(conn net.Conn, prelim *Reply) error

// transfer runs one data transfer: TYPE, data channel negotiation, the
// transfer command, the payload and the completion reply.
//
// If streaming fails or is aborted the data channel is closed and the
// completion reply is left unread; it is drained before the next command.
func (cc *controlConn) transfer(ctx context.Context, w *watchdog, op, typ, verb, arg string, opts transferOptions, stream streamFunc) (err error) {
	log := cc.logger.With("transfer", uuid.NewString(), "op", op)
	start := time.Now()
	defer func() {
		cc.metrics.ObserveTransfer(op, err == nil, time.Since(start))
	}()

	if err := cc.setType(typ); err != nil {
		return err
	}

	dc, err := cc.openDataChannel(ctx, w, opts.mode, opts.activeAddr)
	if err != nil {
		return err
	}
	defer dc.Close()

	log.Debug("starting transfer", "cmd", verb, "path", arg, "mode", opts.mode)
	resp, err := cc.command(verb, arg)
	if err != nil {
		return err
	}
	switch {
	case resp.Is1xx():
	case resp.Is2xx():
		log.Debug("transfer completed without data phase", "code", resp.Code)
		return nil
	default:
		return replyError(verb, resp)
	}

	if err := dc.establish(ctx); err != nil {
		cc.owed++
		return err
	}

	if err := stream(dc.conn, resp); err != nil {
		_ = dc.Close()
		cc.owed++
		if errors.Is(err, ErrAborted) {
			log.Debug("transfer aborted", "elapsed", time.Since(start))
		}
		return err
	}

	closeErr := dc.Close()

	final, err := cc.readReply()
	if err != nil {
		return fmt.Errorf("failed to read completion response: %w", err)
	}
	if !final.Is2xx() {
		return replyError(verb, final)
	}
	if closeErr != nil {
		log.Debug("closing data connection failed", "error", closeErr)
	}

	log.Debug("transfer complete", "code", final.Code, "elapsed", time.Since(start))
	return nil
}

// upload sends src to remotePath with STOR. size is reported as the
// upload total and may be 0 when unknown.
func (cc *controlConn) upload(ctx context.Context, w *watchdog, opts transferOptions, src io.Reader, size int64, remotePath string) (int64, error) {
	var sent int64
	err := cc.transfer(ctx, w, "upload", "I", "STOR", remotePath, opts, func(conn net.Conn, _ *Reply) error {
		dst := ratelimit.NewWriter(ctx, conn, opts.limiter)
		n, err := copyChunks(dst, src, opts.bufSize, dirSend, size, opts.progress)
		sent = n
		cc.metrics.AddBytes("upload", n)
		return err
	})
	return sent, err
}

// download retrieves remotePath with RETR into sink and returns the
// number of bytes written to it.
func (cc *controlConn) download(ctx context.Context, w *watchdog, opts transferOptions, remotePath string, sink io.Writer) (int64, error) {
	var received int64
	err := cc.transfer(ctx, w, "download", "I", "RETR", remotePath, opts, func(conn net.Conn, prelim *Reply) error {
		src := ratelimit.NewReader(ctx, conn, opts.limiter)
		n, err := copyChunks(sink, src, opts.bufSize, dirReceive, parseTransferSize(prelim.Message), opts.progress)
		received = n
		cc.metrics.AddBytes("download", n)
		return err
	})
	return received, err
}

// cappedBuffer is a bytes.Buffer that refuses to grow beyond max bytes.
type cappedBuffer struct {
	buf bytes.Buffer
	max int64
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if int64(b.buf.Len())+int64(len(p)) > b.max {
		return 0, ErrListingTooLarge
	}
	return b.buf.Write(p)
}

// list returns the raw LIST output for the directory at path. Progress is
// reported with a download total of 0.
func (cc *controlConn) list(ctx context.Context, w *watchdog, opts transferOptions, path string, maxSize int64) ([]byte, error) {
	out := &cappedBuffer{max: maxSize}
	err := cc.transfer(ctx, w, "list", "A", "LIST", dirPath(path), opts, func(conn net.Conn, _ *Reply) error {
		src := ratelimit.NewReader(ctx, conn, opts.limiter)
		n, err := copyChunks(out, src, opts.bufSize, dirReceive, 0, opts.progress)
		cc.metrics.AddBytes("download", n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.buf.Bytes(), nil
}
