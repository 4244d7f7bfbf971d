// Package feed streams labeled training examples from a sequence of shard
// files into fixed-size batches.
//
// A Dataset is an infinite cyclic iterator: it holds at most one shard
// resident in memory, visits its rows through a row permutation, advances to
// the next shard (per the file permutation) when the rows are exhausted, and
// reshuffles both permutations at their respective wraparound boundaries
// when shuffling is enabled. Shard loading is synchronous and happens inline
// within the batch fill; there is no prefetching.
//
// A Dataset is stateful and must be driven by a single caller; it is not
// safe for concurrent use.
package feed

import (
	"math/rand"
	"path/filepath"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/shardfeed/shardfeed/blob"
	"github.com/shardfeed/shardfeed/shardio"
)

// Dataset is the batch emitter. Construct with NewDataset; the first shard
// is loaded during construction and batch shapes are fixed from it.
type Dataset struct {
	cfg  Config
	log  logrus.FieldLogger
	rng  *rand.Rand
	name string

	shards   []string // manifest order, immutable
	filePerm permutation
	rowPerm  permutation

	currentFile int // cursor into filePerm
	currentRow  int // cursor into rowPerm

	resident []*blob.Blob // one per output, the single resident shard

	// transform is nil unless image mode is on; imgH/imgW are the resident
	// shard's image dims, set per load.
	transform  Transform
	imgH, imgW int

	// Batch-row dims and element counts per output, fixed at setup.
	outRowDims [][]int
	outRowLens []int

	// errored marks the feed unusable after a shard error.
	errored bool
}

// NewDataset builds a feed from cfg: reads the manifest, seeds the RNG,
// builds the file permutation (shuffled once if configured) and loads the
// first shard. Errors here are configuration or shard errors and are not
// recoverable.
func NewDataset(cfg Config) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	shards, err := ReadManifest(cfg.Source)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	ds := &Dataset{
		cfg:    cfg,
		log:    logrus.StandardLogger(),
		rng:    rand.New(rand.NewSource(seed)),
		name:   filepath.Base(cfg.Source),
		shards: shards,
	}
	if cfg.Image.Enabled {
		ds.transform = NewCropMirrorNormalize(cfg.Image, ds.rng)
	}
	ds.log.WithFields(logrus.Fields{"manifest": cfg.Source, "shards": len(shards)}).
		Info("loaded shard manifest")

	ds.filePerm = newPermutation(len(shards))
	if cfg.Shuffle {
		ds.filePerm.reshuffle(ds.rng)
	}
	ds.currentFile = 0
	if err := ds.loadShard(); err != nil {
		return nil, err
	}
	ds.currentRow = 0

	if err := ds.fixOutputDims(); err != nil {
		return nil, err
	}
	return ds, nil
}

// SetLogger replaces the logger (default: logrus standard logger).
func (ds *Dataset) SetLogger(log logrus.FieldLogger) { ds.log = log }

// Name identifies the feed; it satisfies the gomlx train.Dataset interface.
func (ds *Dataset) Name() string { return ds.name }

// loadShard replaces the resident shard with the one the file cursor points
// at, rebuilding the row permutation over its rows (reshuffled immediately
// when shuffling is on). The previous shard's arrays are dropped wholesale.
func (ds *Dataset) loadShard() error {
	path := ds.shards[ds.filePerm[ds.currentFile]]
	ds.log.WithField("shard", path).Debug("loading shard")

	blobs, err := shardio.Load(path, ds.cfg.Outputs)
	if err != nil {
		ds.errored = true
		return err
	}
	rows := blobs[0].Rows()
	if rows == 0 {
		ds.errored = true
		return errors.Errorf("shard %s has no rows", path)
	}
	for j := 1; j < len(blobs); j++ {
		if blobs[j].Rows() != rows {
			ds.errored = true
			return errors.Errorf("shard %s: array %q has %d rows, %q has %d",
				path, ds.cfg.Outputs[j], blobs[j].Rows(), ds.cfg.Outputs[0], rows)
		}
	}
	ds.resident = blobs
	if ds.transform != nil {
		dims := blobs[0].Dims()
		if len(dims) == 4 {
			ds.imgH, ds.imgW = dims[2], dims[3]
		}
	}

	ds.rowPerm = newPermutation(rows)
	if ds.cfg.Shuffle {
		ds.rowPerm.reshuffle(ds.rng)
		ds.log.WithFields(logrus.Fields{"shard": path, "rows": rows}).
			Debug("loaded shard rows (shuffled)")
	} else {
		ds.log.WithFields(logrus.Fields{"shard": path, "rows": rows}).
			Debug("loaded shard rows")
	}
	return nil
}

// fixOutputDims pins the per-output batch-row dims from the first resident
// shard. Later shards are assumed to match on non-row axes; only the row
// count is re-validated per load.
func (ds *Dataset) fixOutputDims() error {
	ds.outRowDims = make([][]int, len(ds.resident))
	ds.outRowLens = make([]int, len(ds.resident))
	for j, b := range ds.resident {
		dims := b.Dims()[1:]
		if j == 0 && ds.transform != nil {
			out, err := ds.transform.OutputDims(dims)
			if err != nil {
				return errors.Wrapf(err, "output %q", ds.cfg.Outputs[0])
			}
			dims = out
		}
		ds.outRowDims[j] = dims
		n := 1
		for _, d := range dims {
			n *= d
		}
		ds.outRowLens[j] = n
	}
	return nil
}

// OutputShapes returns the shape of each output batch, [batch_size] followed
// by the per-row dims fixed at setup. The order matches the configured
// output names.
func (ds *Dataset) OutputShapes() [][]int {
	shapes := make([][]int, len(ds.outRowDims))
	for j, dims := range ds.outRowDims {
		shapes[j] = append([]int{ds.cfg.BatchSize}, dims...)
	}
	return shapes
}

// NewBatch allocates one zeroed batch blob per output, shaped per
// OutputShapes. The blobs can be reused across FillBatch calls.
func (ds *Dataset) NewBatch() ([]*blob.Blob, error) {
	out := make([]*blob.Blob, len(ds.outRowDims))
	for j, shape := range ds.OutputShapes() {
		b, err := blob.New(shape...)
		if err != nil {
			return nil, err
		}
		out[j] = b
	}
	return out, nil
}

// reshuffleRowsOnWrap reports whether the row permutation needs a fresh
// shuffle after the row cursor wrapped. A shard load already reshuffled it,
// so the wrap itself only has to when no load happened (single-shard
// manifests). Net effect: with shuffling on, the row permutation is freshly
// shuffled at every shard boundary, exactly once.
func reshuffleRowsOnWrap(shuffle, reloaded bool) bool {
	return shuffle && !reloaded
}

// FillBatch populates out, one batch blob per configured output, with the
// next BatchSize rows of the feed. Shard boundaries may be crossed mid-batch;
// cursors and the resident shard persist across calls, so consecutive calls
// stream the dataset cyclically without end.
//
// Shard errors surfaced here are not recoverable: a missing or corrupt shard
// aborts the run rather than being skipped, since it usually means the data
// pipeline itself is broken.
func (ds *Dataset) FillBatch(out []*blob.Blob) error {
	if ds.errored {
		return errors.New("feed is unusable after a shard error")
	}
	if len(out) != len(ds.resident) {
		return errors.Errorf("got %d batch blobs, feed has %d outputs", len(out), len(ds.resident))
	}
	for j, b := range out {
		if b.Rows() != ds.cfg.BatchSize || b.RowLen() != ds.outRowLens[j] {
			return errors.Errorf("batch blob %d shaped %v, want %v",
				j, b.Dims(), append([]int{ds.cfg.BatchSize}, ds.outRowDims[j]...))
		}
	}

	for i := 0; i < ds.cfg.BatchSize; i++ {
		if ds.currentRow == ds.resident[0].Rows() {
			reloaded := false
			if len(ds.shards) > 1 {
				ds.currentFile++
				if ds.currentFile == len(ds.shards) {
					ds.currentFile = 0
					if ds.cfg.Shuffle {
						ds.filePerm.reshuffle(ds.rng)
					}
					ds.log.Debug("looping around to first shard")
				}
				if err := ds.loadShard(); err != nil {
					return err
				}
				reloaded = true
			}
			ds.currentRow = 0
			if reshuffleRowsOnWrap(ds.cfg.Shuffle, reloaded) {
				ds.rowPerm.reshuffle(ds.rng)
			}
		}

		src := ds.rowPerm[ds.currentRow]
		for j, b := range ds.resident {
			if j == 0 && ds.transform != nil {
				img := DecodeRow(b.Row(src), ds.imgH, ds.imgW)
				if err := ds.transform.Apply(img, out[0].Row(i)); err != nil {
					return errors.Wrap(err, "transforming image row")
				}
			} else {
				copy(out[j].Row(i), b.Row(src))
			}
		}
		ds.currentRow++
	}
	return nil
}

// NextBatch allocates a fresh batch and fills it.
func (ds *Dataset) NextBatch() ([]*blob.Blob, error) {
	out, err := ds.NewBatch()
	if err != nil {
		return nil, err
	}
	if err := ds.FillBatch(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Yield produces the next batch as gomlx tensors, satisfying the gomlx
// train.Dataset interface: Outputs[0] is the input, remaining outputs are
// labels. The spec is always nil; shapes never change after setup.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	batch, err := ds.NextBatch()
	if err != nil {
		return nil, nil, nil, err
	}
	inputs = []*tensors.Tensor{batch[0].Tensor()}
	labels = make([]*tensors.Tensor, 0, len(batch)-1)
	for _, b := range batch[1:] {
		labels = append(labels, b.Tensor())
	}
	return nil, inputs, labels, nil
}

// Reset satisfies the gomlx train.Dataset interface. The feed is an infinite
// cyclic stream, so there is no epoch boundary to rewind to; Reset is a
// no-op.
func (ds *Dataset) Reset() {}
