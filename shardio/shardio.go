// Package shardio reads and writes shard files: the structured binary
// container holding the named arrays of one dataset shard.
//
// The format is safetensors-compatible: an 8-byte little-endian header
// length, a JSON table mapping array names to dtype, shape and byte offsets,
// then the raw array payload. Only the F32 dtype is used; values are
// little-endian and row-major ('C' ordering).
//
// A shard is opened, fully decoded and closed within a single call; no file
// handle outlives a Load. Reads go through a read-only memory map and the
// decoded arrays are copied out, so the mapping is released before Load
// returns.
package shardio

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/shardfeed/shardfeed/blob"
)

const dtypeF32 = "F32"

// tensorInfo is one entry of the header table. Offsets are relative to the
// start of the payload section (the byte after the header).
type tensorInfo struct {
	DType       string    `json:"dtype"`
	Shape       []int     `json:"shape"`
	DataOffsets [2]uint64 `json:"data_offsets"`
}

// Entry pairs an array name with its data, preserving write order.
type Entry struct {
	Name string
	Blob *blob.Blob
}

// Load opens the shard at path, decodes the arrays with the given names and
// closes the file. The returned blobs are ordered like names. Any missing
// name, malformed header or unsupported dtype is an error; callers treat
// shard errors as fatal for the run.
func Load(path string, names []string) ([]*blob.Blob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening shard %s", path)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mapping shard %s", path)
	}

	blobs, err := decode(m, names)
	unmapErr := m.Unmap()
	closeErr := f.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "shard %s", path)
	}
	if unmapErr != nil {
		return nil, errors.Wrapf(unmapErr, "unmapping shard %s", path)
	}
	if closeErr != nil {
		return nil, errors.Wrapf(closeErr, "closing shard %s", path)
	}
	return blobs, nil
}

// List returns the sorted array names present in the shard at path.
func List(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening shard %s", path)
	}
	table, _, err := parseHeader(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "shard %s", path)
	}
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func parseHeader(raw []byte) (map[string]tensorInfo, []byte, error) {
	if len(raw) < 8 {
		return nil, nil, errors.New("file too short for header length")
	}
	headerLen := binary.LittleEndian.Uint64(raw)
	if headerLen > uint64(len(raw)-8) {
		return nil, nil, errors.Errorf("header length %d exceeds file size %d", headerLen, len(raw))
	}
	table := make(map[string]tensorInfo)
	if err := json.Unmarshal(raw[8:8+headerLen], &table); err != nil {
		return nil, nil, errors.Wrap(err, "decoding header table")
	}
	delete(table, "__metadata__")
	return table, raw[8+headerLen:], nil
}

func decode(raw []byte, names []string) ([]*blob.Blob, error) {
	table, payload, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}
	blobs := make([]*blob.Blob, len(names))
	for i, name := range names {
		info, ok := table[name]
		if !ok {
			return nil, errors.Errorf("array %q not found", name)
		}
		b, err := decodeArray(payload, info)
		if err != nil {
			return nil, errors.Wrapf(err, "array %q", name)
		}
		blobs[i] = b
	}
	return blobs, nil
}

func decodeArray(payload []byte, info tensorInfo) (*blob.Blob, error) {
	if info.DType != dtypeF32 {
		return nil, errors.Errorf("unsupported dtype %q", info.DType)
	}
	begin, end := info.DataOffsets[0], info.DataOffsets[1]
	if begin > end || end > uint64(len(payload)) {
		return nil, errors.Errorf("data offsets [%d, %d) out of payload bounds %d", begin, end, len(payload))
	}
	n := 1
	for _, d := range info.Shape {
		if d < 0 {
			return nil, errors.Errorf("negative extent in shape %v", info.Shape)
		}
		if d == 0 {
			n = 0
		}
	}
	if n != 0 {
		// Bound the element count as the product accumulates: a header can
		// claim any shape, and letting n overflow int would defeat the size
		// check below.
		maxElems := len(payload) / 4
		for _, d := range info.Shape {
			if n > maxElems/d {
				return nil, errors.Errorf("shape %v exceeds payload of %d bytes", info.Shape, len(payload))
			}
			n *= d
		}
	}
	if end-begin != uint64(n*4) {
		return nil, errors.Errorf("shape %v needs %d bytes, offsets span %d", info.Shape, n*4, end-begin)
	}
	flat := make([]float32, n)
	src := payload[begin:end]
	for i := range flat {
		flat[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return blob.FromFlat(flat, info.Shape...)
}

// Write creates (or truncates) the shard at path with the given entries,
// laid out in order. A close failure is reported: a shard that was not
// durably written must not be treated as usable.
func Write(path string, entries []Entry) error {
	table := make(map[string]tensorInfo, len(entries))
	var offset uint64
	for _, e := range entries {
		if _, dup := table[e.Name]; dup {
			return errors.Errorf("duplicate array name %q", e.Name)
		}
		size := uint64(e.Blob.Len() * 4)
		table[e.Name] = tensorInfo{
			DType:       dtypeF32,
			Shape:       e.Blob.Dims(),
			DataOffsets: [2]uint64{offset, offset + size},
		}
		offset += size
	}
	header, err := json.Marshal(table)
	if err != nil {
		return errors.Wrap(err, "encoding header table")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating shard %s", path)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(header)))
	if _, err := f.Write(lenBuf[:]); err == nil {
		_, err = f.Write(header)
	}
	if err == nil {
		buf := make([]byte, 0, 4096)
		for _, e := range entries {
			buf = buf[:0]
			for _, v := range e.Blob.Data() {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
			}
			if _, err = f.Write(buf); err != nil {
				break
			}
		}
	}
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "writing shard %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "closing shard %s", path)
	}
	return nil
}
