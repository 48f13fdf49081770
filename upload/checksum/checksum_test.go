package checksum

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.New(rand.NewSource(42)).Read(b)
	require.NoError(t, err)
	return b
}

func blobOf(b []byte) Blob {
	return io.NewSectionReader(bytes.NewReader(b), 0, int64(len(b)))
}

func onePass(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestCalculator_Sum_Deterministic(t *testing.T) {
	data := randomBytes(t, 4096)
	c := NewCalculator(1000)

	first, err := c.Sum(context.Background(), blobOf(data))
	require.NoError(t, err)
	second, err := c.Sum(context.Background(), blobOf(append([]byte{}, data...)))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestCalculator_Sum_SingleByteDifference(t *testing.T) {
	data := randomBytes(t, 4096)
	changed := append([]byte{}, data...)
	changed[2048] ^= 0x01
	c := NewCalculator(1000)

	original, err := c.Sum(context.Background(), blobOf(data))
	require.NoError(t, err)
	modified, err := c.Sum(context.Background(), blobOf(changed))
	require.NoError(t, err)

	assert.NotEqual(t, original, modified)
}

func TestCalculator_Sum_MatchesOnePass(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		blockSize int64
	}{
		{name: "empty", size: 0, blockSize: 16},
		{name: "smaller than block", size: 10, blockSize: 16},
		{name: "exact block", size: 16, blockSize: 16},
		{name: "many blocks with remainder", size: 1000, blockSize: 7},
		{name: "default block size", size: 3 * 1024 * 1024, blockSize: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := randomBytes(t, tt.size)

			got, err := NewCalculator(tt.blockSize).Sum(context.Background(), blobOf(data))
			require.NoError(t, err)
			assert.Equal(t, onePass(data), got)
		})
	}
}

type failingBlob struct {
	data     []byte
	failFrom int64
}

func (b failingBlob) Size() int64 { return int64(len(b.data)) }

func (b failingBlob) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > b.failFrom {
		return 0, errors.New("source vanished")
	}
	return copy(p, b.data[off:]), nil
}

func TestCalculator_Sum_ReadFailure(t *testing.T) {
	blob := failingBlob{data: randomBytes(t, 100), failFrom: 50}

	sum, err := NewCalculator(10).Sum(context.Background(), blob)

	assert.Empty(t, sum)
	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, int64(50), readErr.Offset)
}

type shortBlob struct{ size int64 }

func (b shortBlob) Size() int64 { return b.size }

func (b shortBlob) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return len(p) / 2, io.EOF
}

func TestCalculator_Sum_ShortRead(t *testing.T) {
	_, err := NewCalculator(8).Sum(context.Background(), shortBlob{size: 32})

	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCalculator_Sum_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCalculator(8).Sum(ctx, blobOf(randomBytes(t, 32)))
	assert.ErrorIs(t, err, context.Canceled)
}
