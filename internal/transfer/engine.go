// Package transfer moves file bytes, locally and across the network.
//
// The local engine (CopyWithChecksum) copies chunk-by-chunk with optional
// resume, bandwidth throttling and retry. The network channel (Sender /
// ReceiveFile) speaks a minimal framed TCP protocol and applies the
// session's conflict rule at the receiving end. Both report progress via
// callback and finish with a SHA-256 checksum.
package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hyperdesk/hyperdesk/internal/logger"
)

// DefaultChunkSize is used when the caller does not specify one.
const DefaultChunkSize = 1 << 20 // 1 MiB

// ProgressFunc receives (bytesCopied, totalSize) after every chunk.
type ProgressFunc func(bytesCopied, totalSize int64)

// CopyOptions tune a local copy.
type CopyOptions struct {
	ChunkSize    int64
	Resume       bool
	OnProgress   ProgressFunc
	MaxBandwidth int64 // bytes per second, 0 = unlimited
	RetryPolicy  string
	MaxRetries   int
}

// Result is the outcome of a completed copy or send.
type Result struct {
	BytesCopied int64
	Checksum    string // lowercase hex SHA-256 of the destination bytes
}

// CopyWithChecksum copies source to dest per opts and returns the byte count
// and the checksum of the finalized destination file. On error the whole
// attempt is retried per the retry policy; resume offsets are re-evaluated at
// each attempt so a partially written destination is continued, not redone.
func CopyWithChecksum(source, dest string, opts CopyOptions) (Result, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	attempt := 0
	for {
		result, err := copyOnce(source, dest, opts)
		if err == nil {
			return result, nil
		}

		attempt++
		if opts.RetryPolicy == RetryNone || opts.RetryPolicy == "" || attempt > opts.MaxRetries {
			return Result{}, err
		}
		delay := RetryDelay(opts.RetryPolicy, attempt)
		logger.Warn("copy attempt failed, retrying",
			logger.Path(source),
			logger.Attempt(attempt),
			logger.Err(err))
		time.Sleep(delay)
	}
}

func copyOnce(source, dest string, opts CopyOptions) (Result, error) {
	info, err := os.Stat(source)
	if err != nil {
		return Result{}, fmt.Errorf("failed to stat source: %w", err)
	}
	totalSize := info.Size()

	var offset int64
	if opts.Resume {
		if destInfo, err := os.Stat(dest); err == nil {
			offset = destInfo.Size()
			if offset > totalSize {
				offset = 0
			}
		}
	}

	in, err := os.Open(source)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	if offset > 0 {
		if _, err := in.Seek(offset, io.SeekStart); err != nil {
			return Result{}, fmt.Errorf("failed to seek source: %w", err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(dest, flags, 0644)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open destination: %w", err)
	}

	limiter := newRateLimiter(opts.MaxBandwidth)
	buf := make([]byte, opts.ChunkSize)
	copied := offset
	var attemptBytes int64

	for copied < totalSize {
		n, err := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return Result{}, fmt.Errorf("failed to write destination: %w", werr)
			}
			copied += int64(n)
			attemptBytes += int64(n)
			if opts.OnProgress != nil {
				opts.OnProgress(copied, totalSize)
			}
			limiter.pace(attemptBytes)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			out.Close()
			return Result{}, fmt.Errorf("failed to read source: %w", err)
		}
	}

	if err := out.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to finalize destination: %w", err)
	}

	checksum, err := FileChecksum(dest)
	if err != nil {
		return Result{}, err
	}
	return Result{BytesCopied: copied, Checksum: checksum}, nil
}

// FileChecksum returns the lowercase hex SHA-256 of the file's bytes.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ErrStreamTruncated reports a network peer closing before delivering the
// advertised byte count.
var ErrStreamTruncated = errors.New("transfer: stream closed before all bytes were delivered")
