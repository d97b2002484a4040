package transfer

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRandomFile(t *testing.T, path string, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return data
}

func hexSum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestCopyWithChecksum(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "src.bin")
	dest := filepath.Join(dir, "dst.bin")
	data := writeRandomFile(t, source, 300*1024)

	var calls int
	var last int64
	result, err := CopyWithChecksum(source, dest, CopyOptions{
		ChunkSize: 64 * 1024,
		OnProgress: func(copied, total int64) {
			calls++
			last = copied
			assert.Equal(t, int64(len(data)), total)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), result.BytesCopied)
	assert.Equal(t, hexSum(data), result.Checksum)
	assert.Equal(t, int64(len(data)), last)
	assert.GreaterOrEqual(t, calls, 5)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCopyResume(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "src.bin")
	dest := filepath.Join(dir, "dst.bin")
	data := writeRandomFile(t, source, 200*1024)

	// Simulate an interrupted copy: first half already present.
	require.NoError(t, os.WriteFile(dest, data[:100*1024], 0644))

	var firstReported int64 = -1
	result, err := CopyWithChecksum(source, dest, CopyOptions{
		ChunkSize: 32 * 1024,
		Resume:    true,
		OnProgress: func(copied, total int64) {
			if firstReported < 0 {
				firstReported = copied
			}
		},
	})
	require.NoError(t, err)

	// Progress resumes past the existing bytes instead of restarting.
	assert.Greater(t, firstReported, int64(100*1024))
	assert.Equal(t, int64(len(data)), result.BytesCopied)
	assert.Equal(t, hexSum(data), result.Checksum)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCopyResumeOversizedDestinationRestarts(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "src.bin")
	dest := filepath.Join(dir, "dst.bin")
	data := writeRandomFile(t, source, 64*1024)

	// Destination larger than source: offset clips to zero, full rewrite.
	writeRandomFile(t, dest, 128*1024)

	result, err := CopyWithChecksum(source, dest, CopyOptions{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, hexSum(data), result.Checksum)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size())
}

func TestCopyWithoutResumeTruncates(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "src.bin")
	dest := filepath.Join(dir, "dst.bin")
	data := writeRandomFile(t, source, 10*1024)
	writeRandomFile(t, dest, 50*1024)

	result, err := CopyWithChecksum(source, dest, CopyOptions{})
	require.NoError(t, err)
	assert.Equal(t, hexSum(data), result.Checksum)
}

func TestCopyMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := CopyWithChecksum(filepath.Join(dir, "nope"), filepath.Join(dir, "out"), CopyOptions{})
	require.Error(t, err)
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		policy  string
		attempt int
		want    time.Duration
	}{
		{RetryExponential, 1, time.Second},
		{RetryExponential, 2, 2 * time.Second},
		{RetryExponential, 3, 4 * time.Second},
		{RetryExponential, 10, 10 * time.Second},
		{RetryLinear, 1, time.Second},
		{RetryLinear, 4, 4 * time.Second},
		{RetryLinear, 25, 10 * time.Second},
		{RetryNone, 3, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(tt.policy, tt.attempt), "%s attempt %d", tt.policy, tt.attempt)
	}
}

func TestRateLimiterSleepsWhenAhead(t *testing.T) {
	var slept time.Duration
	r := newRateLimiter(1024) // 1 KiB/s
	r.sleep = func(d time.Duration) { slept += d }
	r.start = time.Now().Add(-time.Second)

	// 4 KiB in ~1s against a 1 KiB/s budget: expect ~3s of pacing.
	r.pace(4 * 1024)
	assert.InDelta(t, 3.0, slept.Seconds(), 0.25)
}

func TestRateLimiterUnlimited(t *testing.T) {
	r := newRateLimiter(0)
	r.sleep = func(time.Duration) { t.Fatal("unlimited limiter must not sleep") }
	r.pace(1 << 30)
}
