package ftpclient

import "io"

// Progress reports how far a transfer has come. Totals are zero when
// unknown; the Now values never decrease within one transfer.
type Progress struct {
	DownloadTotal int64
	DownloadNow   int64
	UploadTotal   int64
	UploadNow     int64
}

// ProgressFunc is called after every chunk of a transfer. Returning true
// aborts the transfer.
type ProgressFunc func(p Progress) (abort bool)

// direction of a data transfer
type direction int

const (
	dirReceive direction = iota
	dirSend
)

// copyChunks copies src to dst in chunks of bufSize bytes and reports each
// chunk to fn. It stops with ErrAborted as soon as fn asks to. Failures
// on the local side of the copy are wrapped in *localError.
func copyChunks(dst io.Writer, src io.Reader, bufSize int, dir direction, total int64, fn ProgressFunc) (int64, error) {
	buf := make([]byte, bufSize)
	var done int64

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			done += int64(w)
			if werr == nil && w != n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				if dir == dirReceive {
					werr = &localError{werr}
				}
				return done, werr
			}
			if fn != nil && fn(progressFor(dir, done, total)) {
				return done, ErrAborted
			}
		}
		if rerr == io.EOF {
			return done, nil
		}
		if rerr != nil {
			if dir == dirSend {
				rerr = &localError{rerr}
			}
			return done, rerr
		}
	}
}

func progressFor(dir direction, now, total int64) Progress {
	if dir == dirSend {
		return Progress{UploadNow: now, UploadTotal: total}
	}
	return Progress{DownloadNow: now, DownloadTotal: total}
}
