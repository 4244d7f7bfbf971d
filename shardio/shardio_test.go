package shardio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardfeed/shardfeed/blob"
)

func mustBlob(t *testing.T, data []float32, dims ...int) *blob.Blob {
	t.Helper()
	b, err := blob.FromFlat(data, dims...)
	require.NoError(t, err)
	return b
}

func TestWriteLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.st")

	data := mustBlob(t, []float32{0, 1, 2, 3, 4, 5}, 3, 2)
	label := mustBlob(t, []float32{7, 8, 9}, 3)
	err := Write(path, []Entry{{"data", data}, {"label", label}})
	assert.NoError(t, err)

	blobs, err := Load(path, []string{"label", "data"})
	assert.NoError(t, err)
	assert.Len(t, blobs, 2)
	assert.Equal(t, []int{3}, blobs[0].Dims())
	assert.Equal(t, []float32{7, 8, 9}, blobs[0].Data())
	assert.Equal(t, []int{3, 2}, blobs[1].Dims())
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5}, blobs[1].Data())
}

func TestList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.st")
	err := Write(path, []Entry{
		{"label", mustBlob(t, []float32{1}, 1)},
		{"data", mustBlob(t, []float32{2}, 1)},
	})
	assert.NoError(t, err)

	names, err := List(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"data", "label"}, names)
}

func TestLoadMissingArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.st")
	err := Write(path, []Entry{{"data", mustBlob(t, []float32{1, 2}, 2)}})
	assert.NoError(t, err)

	_, err = Load(path, []string{"label"})
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.st"), []string{"data"})
	assert.Error(t, err)
}

func TestWriteDuplicateName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.st")
	b := mustBlob(t, []float32{1}, 1)
	err := Write(path, []Entry{{"data", b}, {"data", b}})
	assert.Error(t, err)
}

func TestLoadTruncatedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.st")

	// Header length field claims more bytes than the file holds.
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 1<<20)
	assert.NoError(t, os.WriteFile(path, lenBuf[:], 0o644))

	_, err := Load(path, []string{"data"})
	assert.Error(t, err)
}

func TestLoadOverflowingShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.st")

	// The claimed shape's element count overflows int; the product wraps to
	// zero, which would slip past the offset check and allocate garbage.
	header := []byte(`{"data":{"dtype":"F32","shape":[4611686018427387904,4],"data_offsets":[0,0]}}`)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(header)))
	raw := append(lenBuf[:], header...)
	assert.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err := Load(path, []string{"data"})
	assert.Error(t, err)
}

func TestZeroExtentShapeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.st")
	err := Write(path, []Entry{{"data", mustBlob(t, nil, 2, 0)}})
	assert.NoError(t, err)

	blobs, err := Load(path, []string{"data"})
	assert.NoError(t, err)
	assert.Equal(t, []int{2, 0}, blobs[0].Dims())
	assert.Equal(t, 0, blobs[0].Len())
}

func TestLoadOffsetShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.st")

	header := []byte(`{"data":{"dtype":"F32","shape":[2],"data_offsets":[0,4]}}`)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(header)))
	raw := append(lenBuf[:], header...)
	raw = append(raw, 0, 0, 0, 0)
	assert.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err := Load(path, []string{"data"})
	assert.Error(t, err)
}
