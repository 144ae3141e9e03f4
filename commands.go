package ftpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Upload sends the local file at localPath to remotePath. The progress
// callback sees UploadTotal set to the local file size.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	if localPath == "" || remotePath == "" {
		return c.invalid("upload", errors.New("local and remote paths are required"))
	}
	remotePath = absPath(remotePath)

	op, err := c.begin(ctx, "upload", remotePath, true)
	if err != nil {
		return err
	}

	f, err := c.fs.Open(localPath)
	if err != nil {
		return c.finish(op, &localError{err}, KindLocalIO)
	}
	defer f.Close()

	var size int64
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}

	_, err = op.cc.upload(op.ctx, op.w, op.transferOptions(), f, size, remotePath)
	return c.finish(op, err, KindTransfer)
}

// UploadFrom sends the content of r to remotePath. size is reported as
// UploadTotal and may be 0 when unknown.
func (c *Client) UploadFrom(ctx context.Context, r io.Reader, size int64, remotePath string) error {
	if r == nil || remotePath == "" {
		return c.invalid("upload", errors.New("reader and remote path are required"))
	}
	remotePath = absPath(remotePath)

	op, err := c.begin(ctx, "upload", remotePath, true)
	if err != nil {
		return err
	}
	_, err = op.cc.upload(op.ctx, op.w, op.transferOptions(), r, max(size, 0), remotePath)
	return c.finish(op, err, KindTransfer)
}

// Download retrieves remotePath into the local file at localPath. On
// failure the local file is removed.
func (c *Client) Download(ctx context.Context, remotePath, localPath string) error {
	if localPath == "" || remotePath == "" {
		return c.invalid("download", errors.New("local and remote paths are required"))
	}
	remotePath = absPath(remotePath)

	op, err := c.begin(ctx, "download", remotePath, true)
	if err != nil {
		return err
	}

	f, err := c.fs.Create(localPath)
	if err != nil {
		return c.finish(op, &localError{err}, KindLocalIO)
	}

	_, err = op.cc.download(op.ctx, op.w, op.transferOptions(), remotePath, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = &localError{cerr}
	}
	if err != nil {
		if rerr := c.fs.Remove(localPath); rerr != nil {
			op.logger.Debug("failed to remove partial download", "path", localPath, "error", rerr)
		}
	}
	return c.finish(op, err, KindTransfer)
}

// DownloadTo retrieves remotePath into w. If the transfer fails after
// bytes were written to w, errors.Is(err, ErrPartialWrite) reports true
// and discarding the partial data is up to the caller.
func (c *Client) DownloadTo(ctx context.Context, remotePath string, w io.Writer) error {
	if w == nil || remotePath == "" {
		return c.invalid("download", errors.New("writer and remote path are required"))
	}
	remotePath = absPath(remotePath)

	op, err := c.begin(ctx, "download", remotePath, true)
	if err != nil {
		return err
	}

	n, err := op.cc.download(op.ctx, op.w, op.transferOptions(), remotePath, w)
	if err == nil {
		return c.finish(op, nil, KindTransfer)
	}
	e := &Error{Op: op.name, Kind: classify(op.ctx, err, KindTransfer), Path: remotePath, Err: err, partial: n > 0}
	return c.finish(op, e, KindTransfer)
}

// ListDir returns the raw LIST output for the directory at path. The
// format is whatever the server produces.
func (c *Client) ListDir(ctx context.Context, path string) ([]byte, error) {
	path = dirPath(path)
	op, err := c.begin(ctx, "list", path, true)
	if err != nil {
		return nil, err
	}
	data, err := op.cc.list(op.ctx, op.w, op.transferOptions(), path, op.cfg.MaxListSize)
	return data, c.finish(op, err, KindTransfer)
}

// MakeDir creates a remote directory.
func (c *Client) MakeDir(ctx context.Context, path string) error {
	return c.simple(ctx, "mkdir", "MKD", path)
}

// RemoveDir removes an empty remote directory.
func (c *Client) RemoveDir(ctx context.Context, path string) error {
	return c.simple(ctx, "rmdir", "RMD", path)
}

// Delete removes a remote file.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.simple(ctx, "delete", "DELE", path)
}

// simple runs a single-command operation that expects a 2xx reply.
func (c *Client) simple(ctx context.Context, name, verb, path string) error {
	if path == "" {
		return c.invalid(name, errors.New("path is required"))
	}
	path = absPath(path)

	op, err := c.begin(ctx, name, path, true)
	if err != nil {
		return err
	}
	_, err = op.cc.expect2xx(verb, path)
	return c.finish(op, err, KindTransfer)
}

// Rename renames a remote file or directory. RNTO is only sent once the
// server accepted RNFR.
func (c *Client) Rename(ctx context.Context, from, to string) error {
	if from == "" || to == "" {
		return c.invalid("rename", errors.New("source and destination are required"))
	}
	from, to = absPath(from), absPath(to)

	op, err := c.begin(ctx, "rename", from, true)
	if err != nil {
		return err
	}
	return c.finish(op, rename(op.cc, from, to), KindTransfer)
}

func rename(cc *controlConn, from, to string) error {
	resp, err := cc.command("RNFR", from)
	if err != nil {
		return err
	}
	if !resp.Is3xx() {
		return replyError("RNFR", resp)
	}
	_, err = cc.expect2xx("RNTO", to)
	return err
}

// FileSize returns the size in bytes of a remote file, as reported by SIZE.
func (c *Client) FileSize(ctx context.Context, path string) (int64, error) {
	if path == "" {
		return 0, c.invalid("size", errors.New("path is required"))
	}
	path = absPath(path)

	op, err := c.begin(ctx, "size", path, true)
	if err != nil {
		return 0, err
	}
	size, err := fileSize(op.cc, path)
	return size, c.finish(op, err, KindTransfer)
}

func fileSize(cc *controlConn, path string) (int64, error) {
	// SIZE is only meaningful in binary mode.
	if err := cc.setType("I"); err != nil {
		return 0, err
	}

	resp, err := cc.command("SIZE", path)
	if err != nil {
		return 0, err
	}
	switch {
	case resp.Code == 550:
		return 0, replyError("SIZE", resp)
	case resp.Code != 213:
		return 0, fmt.Errorf("%w: %w", ErrSizeUnavailable, replyError("SIZE", resp))
	}

	size, err := strconv.ParseInt(strings.TrimSpace(resp.Message), 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: invalid SIZE response: %q", ErrSizeUnavailable, resp.Message)
	}
	return size, nil
}

// Execute sends a raw command and returns the server's reply. A 4xx or
// 5xx reply is returned together with a KindTransfer error. Commands that
// open a data connection are not supported.
//
// Example:
//
//	reply, err := client.Execute(ctx, "SITE CHMOD 644 /pub/file.txt")
func (c *Client) Execute(ctx context.Context, command string) (*Reply, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, c.invalid("execute", errors.New("command is required"))
	}

	op, err := c.begin(ctx, "execute", "", true)
	if err != nil {
		return nil, err
	}

	verb, args, _ := strings.Cut(command, " ")
	verb = strings.ToUpper(verb)
	var resp *Reply
	if args != "" {
		resp, err = op.cc.command(verb, args)
	} else {
		resp, err = op.cc.command(verb)
	}
	switch verb {
	case "TYPE", "MODE", "STRU", "REIN":
		// The server's transfer parameters are no longer known.
		op.cc.currentType = ""
	}
	if err == nil && (resp.Is4xx() || resp.Is5xx()) {
		err = withKind(KindTransfer, replyError(verb, resp))
	}
	return resp, c.finish(op, err, KindTransfer)
}
