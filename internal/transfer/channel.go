package transfer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperdesk/hyperdesk/internal/logger"
	"github.com/hyperdesk/hyperdesk/internal/model"
)

// Wire format, after the TCP connect:
//
//	[4 bytes, big-endian uint32]  name_length
//	[name_length bytes]           UTF-8 filename
//	[8 bytes, big-endian uint64]  total_size (plaintext bytes)
//	[total_size bytes]            raw file bytes
//
// With encryption enabled the header stays clear and each chunk is framed as
// a 4-byte big-endian ciphertext length followed by the sealed chunk.

// SenderOptions tune an outbound channel.
type SenderOptions struct {
	ChunkSize int64
	Cipher    *Cipher // nil = cleartext
}

// Sender serves exactly one file to exactly one connection. It binds an
// ephemeral port at construction so the port can be advertised in a
// TRANSFER_OFFER before the peer connects.
type Sender struct {
	listener  net.Listener
	chunkSize int64
	cipher    *Cipher
}

// NewSender binds a TCP listener on an ephemeral local port.
func NewSender(opts SenderOptions) (*Sender, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to bind transfer port: %w", err)
	}
	return &Sender{
		listener:  listener,
		chunkSize: opts.ChunkSize,
		cipher:    opts.Cipher,
	}, nil
}

// Port returns the bound port.
func (s *Sender) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close releases the listener. Safe to call after SendFile.
func (s *Sender) Close() error {
	return s.listener.Close()
}

// SendFile accepts one connection, streams the file, and closes the
// listener. The checksum covers the plaintext bytes sent.
func (s *Sender) SendFile(path string, onProgress ProgressFunc, maxBandwidth int64) (Result, error) {
	defer s.listener.Close()

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to stat file: %w", err)
	}
	totalSize := info.Size()

	conn, err := s.listener.Accept()
	if err != nil {
		return Result{}, fmt.Errorf("failed to accept transfer connection: %w", err)
	}
	defer conn.Close()

	logger.Debug("transfer connection accepted",
		logger.Peer(conn.RemoteAddr().String()),
		logger.Path(path),
		logger.Size(totalSize))

	name := filepath.Base(path)
	if err := writeHeader(conn, name, totalSize); err != nil {
		return Result{}, err
	}

	in, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer in.Close()

	limiter := newRateLimiter(maxBandwidth)
	hash := sha256.New()
	buf := make([]byte, s.chunkSize)
	var sent int64

	for sent < totalSize {
		n, rerr := in.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			hash.Write(chunk)
			if s.cipher != nil {
				sealed := s.cipher.Seal(chunk)
				var frame [4]byte
				binary.BigEndian.PutUint32(frame[:], uint32(len(sealed)))
				if _, err := conn.Write(frame[:]); err != nil {
					return Result{}, fmt.Errorf("failed to write chunk frame: %w", err)
				}
				chunk = sealed
			}
			if _, err := conn.Write(chunk); err != nil {
				return Result{}, fmt.Errorf("failed to write chunk: %w", err)
			}
			sent += int64(n)
			if onProgress != nil {
				onProgress(sent, totalSize)
			}
			limiter.pace(sent)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return Result{}, fmt.Errorf("failed to read file: %w", rerr)
		}
	}

	return Result{BytesCopied: sent, Checksum: hex.EncodeToString(hash.Sum(nil))}, nil
}

func writeHeader(conn net.Conn, name string, totalSize int64) error {
	nameBytes := []byte(name)
	header := make([]byte, 4+len(nameBytes)+8)
	binary.BigEndian.PutUint32(header[:4], uint32(len(nameBytes)))
	copy(header[4:], nameBytes)
	binary.BigEndian.PutUint64(header[4+len(nameBytes):], uint64(totalSize))
	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("failed to write transfer header: %w", err)
	}
	return nil
}

// ReceiveOptions tune an inbound channel.
type ReceiveOptions struct {
	OnProgress   ProgressFunc
	ConflictRule model.ConflictRule
	Cipher       *Cipher // nil = cleartext
	DialTimeout  time.Duration
}

// ReceiveResult is the outcome of an inbound transfer.
type ReceiveResult struct {
	Path          string
	BytesReceived int64
	Checksum      string // empty when skipped
	Skipped       bool
}

// ReceiveFile connects to a Sender and writes the advertised file into
// destDir, applying the conflict rule when the target already exists.
func ReceiveFile(host string, port int, destDir string, opts ReceiveOptions) (ReceiveResult, error) {
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("failed to connect to sender: %w", err)
	}
	defer conn.Close()

	name, totalSize, err := readHeader(conn)
	if err != nil {
		return ReceiveResult{}, err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return ReceiveResult{}, fmt.Errorf("failed to create destination directory: %w", err)
	}

	target := filepath.Join(destDir, filepath.Base(name))
	skipped := false
	if _, err := os.Stat(target); err == nil {
		switch opts.ConflictRule {
		case model.PreferHost:
			// Overwrite in place.
		case model.PreferPeer:
			// Local copy wins: drain the stream into a throwaway file.
			skipped = true
		default: // keep_both
			target = conflictName(target)
		}
	}

	writeTarget := target
	if skipped {
		tmp, err := os.CreateTemp(destDir, ".hyperdesk-discard-*")
		if err != nil {
			return ReceiveResult{}, fmt.Errorf("failed to create scratch file: %w", err)
		}
		writeTarget = tmp.Name()
		tmp.Close()
		defer os.Remove(writeTarget)
	}

	out, err := os.Create(writeTarget)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("failed to create destination: %w", err)
	}

	hash := sha256.New()
	var received int64
	buf := make([]byte, DefaultChunkSize)

	for received < totalSize {
		chunk, err := readChunk(conn, buf, totalSize-received, opts.Cipher)
		if err != nil {
			out.Close()
			return ReceiveResult{}, err
		}
		hash.Write(chunk)
		if _, err := out.Write(chunk); err != nil {
			out.Close()
			return ReceiveResult{}, fmt.Errorf("failed to write destination: %w", err)
		}
		received += int64(len(chunk))
		if opts.OnProgress != nil {
			opts.OnProgress(received, totalSize)
		}
	}

	if err := out.Close(); err != nil {
		return ReceiveResult{}, fmt.Errorf("failed to finalize destination: %w", err)
	}

	if skipped {
		return ReceiveResult{Path: target, BytesReceived: received, Checksum: "", Skipped: true}, nil
	}
	return ReceiveResult{
		Path:          target,
		BytesReceived: received,
		Checksum:      hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

func readHeader(conn net.Conn) (string, int64, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return "", 0, fmt.Errorf("failed to read header: %w", streamErr(err))
	}
	nameLen := binary.BigEndian.Uint32(lenBuf[:])
	if nameLen == 0 || nameLen > 4096 {
		return "", 0, fmt.Errorf("transfer: invalid filename length %d", nameLen)
	}
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(conn, nameBuf); err != nil {
		return "", 0, fmt.Errorf("failed to read filename: %w", streamErr(err))
	}
	var sizeBuf [8]byte
	if _, err := io.ReadFull(conn, sizeBuf[:]); err != nil {
		return "", 0, fmt.Errorf("failed to read size: %w", streamErr(err))
	}
	return string(nameBuf), int64(binary.BigEndian.Uint64(sizeBuf[:])), nil
}

// readChunk returns the next plaintext chunk, at most remaining bytes in
// cleartext mode.
func readChunk(conn net.Conn, buf []byte, remaining int64, cipher *Cipher) ([]byte, error) {
	if cipher == nil {
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}
		n, err := conn.Read(buf[:want])
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil {
			return nil, streamErr(err)
		}
		return nil, ErrStreamTruncated
	}

	var frame [4]byte
	if _, err := io.ReadFull(conn, frame[:]); err != nil {
		return nil, streamErr(err)
	}
	sealedLen := binary.BigEndian.Uint32(frame[:])
	sealed := make([]byte, sealedLen)
	if _, err := io.ReadFull(conn, sealed); err != nil {
		return nil, streamErr(err)
	}
	return cipher.Open(sealed)
}

func streamErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrStreamTruncated
	}
	return err
}

// conflictName derives the keep-both sibling name, e.g.
// report.pdf -> report_conflict_20260824-153000.pdf
func conflictName(target string) string {
	dir := filepath.Dir(target)
	base := filepath.Base(target)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stamp := time.Now().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("%s_conflict_%s%s", stem, stamp, ext))
}
