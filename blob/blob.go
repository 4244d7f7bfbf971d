// Package blob provides the n-dimensional array container used throughout
// shardfeed: a contiguous float32 buffer plus shape metadata, with the
// leading axis indexing rows (training examples).
//
// Keeping data as flat buffers with shape attached avoids a hard dependency
// on any particular tensor API in the hot path; conversion to gomlx tensors
// is a single call at the training-loop boundary (see Blob.Tensor).
package blob

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Blob is an n-dimensional float32 array with row-major flat storage.
// The first axis is the row axis. A Blob always has rank >= 1.
type Blob struct {
	dims []int
	data []float32
}

// New allocates a zero-filled Blob with the given dimensions.
func New(dims ...int) (*Blob, error) {
	n, err := checkDims(dims)
	if err != nil {
		return nil, err
	}
	return &Blob{dims: append([]int(nil), dims...), data: make([]float32, n)}, nil
}

// FromFlat wraps an existing flat buffer as a Blob with the given dimensions.
// The buffer is not copied; it must have exactly the product of dims elements.
func FromFlat(data []float32, dims ...int) (*Blob, error) {
	n, err := checkDims(dims)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, errors.Errorf("flat buffer has %d elements, shape %v needs %d", len(data), dims, n)
	}
	return &Blob{dims: append([]int(nil), dims...), data: data}, nil
}

func checkDims(dims []int) (int, error) {
	if len(dims) == 0 {
		return 0, errors.New("blob must have at least 1 axis")
	}
	n := 1
	for _, d := range dims {
		if d < 0 {
			return 0, errors.Errorf("negative dimension in shape %v", dims)
		}
		n *= d
	}
	return n, nil
}

// Dims returns a copy of the blob's shape.
func (b *Blob) Dims() []int {
	return append([]int(nil), b.dims...)
}

// Rank returns the number of axes.
func (b *Blob) Rank() int { return len(b.dims) }

// Rows returns the extent of the leading (row) axis.
func (b *Blob) Rows() int { return b.dims[0] }

// RowLen returns the number of elements in one row: the product of all
// non-leading axis extents.
func (b *Blob) RowLen() int {
	n := 1
	for _, d := range b.dims[1:] {
		n *= d
	}
	return n
}

// Len returns the total number of elements.
func (b *Blob) Len() int { return len(b.data) }

// Data returns the flat row-major storage. The slice aliases the blob.
func (b *Blob) Data() []float32 { return b.data }

// Row returns the i-th row as a slice view into the flat storage.
func (b *Blob) Row(i int) []float32 {
	rl := b.RowLen()
	return b.data[i*rl : (i+1)*rl]
}

// SetRow copies vals into the i-th row. vals must have exactly RowLen
// elements.
func (b *Blob) SetRow(i int, vals []float32) error {
	rl := b.RowLen()
	if len(vals) != rl {
		return errors.Errorf("row has %d elements, blob rows have %d", len(vals), rl)
	}
	copy(b.data[i*rl:], vals)
	return nil
}

// Tensor converts the blob into a gomlx tensor of the same shape. The data
// is copied, so the blob remains usable (and reusable) afterwards.
func (b *Blob) Tensor() *tensors.Tensor {
	flat := make([]float32, len(b.data))
	copy(flat, b.data)
	return tensors.FromFlatDataAndDimensions(flat, b.dims...)
}
