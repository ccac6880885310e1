package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/stash/internal/entry"
	"goflare.io/stash/pkg/compress"
	"goflare.io/stash/pkg/serialization"
)

type testValue struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func newTestCodec(t *testing.T, threshold int64) *Codec {
	t.Helper()
	compressor, err := compress.ByName(compress.Zstd)
	require.NoError(t, err)
	return New(serialization.JSON{}, compressor, true, threshold, time.Hour, zap.NewNop())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := newTestCodec(t, 1024)

	e, err := c.Encode("k", testValue{Name: "alpha", Score: 42}, Options{Priority: entry.PriorityMedium})
	require.NoError(t, err)
	assert.False(t, e.Compressed)
	assert.Equal(t, time.Hour, e.TTL)

	var out testValue
	require.NoError(t, c.Decode(e, &out))
	assert.Equal(t, "alpha", out.Name)
	assert.Equal(t, 42, out.Score)
}

func TestEncodeCompressesAboveThreshold(t *testing.T) {
	c := newTestCodec(t, 64)
	value := strings.Repeat("compressible ", 200)

	e, err := c.Encode("k", value, Options{})
	require.NoError(t, err)
	assert.True(t, e.Compressed)
	assert.Less(t, e.Size, e.RawSize)

	var out string
	require.NoError(t, c.Decode(e, &out))
	assert.Equal(t, value, out)
}

func TestEncodeForcedCompression(t *testing.T) {
	c := newTestCodec(t, 1<<20)
	force := true
	value := strings.Repeat("tiny but forced ", 20)

	e, err := c.Encode("k", value, Options{Compress: &force})
	require.NoError(t, err)
	assert.True(t, e.Compressed)

	var out string
	require.NoError(t, c.Decode(e, &out))
	assert.Equal(t, value, out)
}

func TestEncodeForcedOff(t *testing.T) {
	c := newTestCodec(t, 64)
	off := false

	e, err := c.Encode("k", strings.Repeat("x", 4096), Options{Compress: &off})
	require.NoError(t, err)
	assert.False(t, e.Compressed)
}

func TestEncodeNoCompressorSkipsCompression(t *testing.T) {
	c := New(serialization.JSON{}, nil, true, 0, time.Hour, zap.NewNop())

	e, err := c.Encode("k", strings.Repeat("x", 4096), Options{})
	require.NoError(t, err)
	assert.False(t, e.Compressed)
	assert.Equal(t, e.RawSize, e.Size)
}

func TestEncodeUnserializableValue(t *testing.T) {
	c := newTestCodec(t, 1024)

	_, err := c.Encode("k", make(chan int), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestDecodeCorruptPayload(t *testing.T) {
	c := newTestCodec(t, 1024)

	e := entry.New("k", []byte("not json at all {"), 17, time.Hour, entry.PriorityMedium, false)
	var out testValue
	err := c.Decode(e, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeserialization)
}

func TestDecodeCorruptCompressedPayload(t *testing.T) {
	c := newTestCodec(t, 1024)

	e := entry.New("k", []byte("not a zstd frame"), 16, time.Hour, entry.PriorityMedium, true)
	var out testValue
	err := c.Decode(e, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeserialization)
}

func TestRecompressHonorsMinimumGain(t *testing.T) {
	c := newTestCodec(t, 1024)

	// Highly repetitive data compresses far better than 20 percent.
	out, ok := c.Recompress([]byte(strings.Repeat("a", 4096)), 0.20)
	require.True(t, ok)
	assert.Less(t, len(out), 4096)

	// Short random-ish data cannot clear the bar.
	_, ok = c.Recompress([]byte("q9z!"), 0.20)
	assert.False(t, ok)
}

func TestGobRoundTrip(t *testing.T) {
	c := New(serialization.Gob{}, nil, false, 0, time.Hour, zap.NewNop())

	e, err := c.Encode("k", testValue{Name: "beta", Score: 7}, Options{})
	require.NoError(t, err)

	var out testValue
	require.NoError(t, c.Decode(e, &out))
	assert.Equal(t, "beta", out.Name)
	assert.Equal(t, 7, out.Score)
}
