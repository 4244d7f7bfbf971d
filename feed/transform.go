package feed

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/pkg/errors"
)

// Transform materializes one image row into a batch slot. Implementations
// receive the decoded image and write float32 values channel-major into dst,
// whose length matches the dims reported by OutputDims.
type Transform interface {
	// OutputDims returns the per-row output dims for a source row of the
	// given dims, or an error if the source shape is not transformable.
	// Called once at setup; source dims of later shards are assumed equal.
	OutputDims(rowDims []int) ([]int, error)

	// Apply writes the transformed image into dst.
	Apply(img *image.NRGBA, dst []float32) error
}

// DecodeRow reinterprets a channel-major row buffer (values 0..255 stored as
// float32, laid out [3][height][width]) as an 8-bit RGB image.
func DecodeRow(row []float32, height, width int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	plane := height * width
	for h := 0; h < height; h++ {
		for w := 0; w < width; w++ {
			img.SetNRGBA(w, h, color.NRGBA{
				R: uint8(row[h*width+w]),
				G: uint8(row[plane+h*width+w]),
				B: uint8(row[2*plane+h*width+w]),
				A: 255,
			})
		}
	}
	return img
}

// CropMirrorNormalize is the stock transform: optional random crop, optional
// random horizontal mirror, optional per-channel mean subtraction. Output is
// channel-major float32, shaped [3, crop, crop] when cropping, otherwise
// [3, height, width].
type CropMirrorNormalize struct {
	cropSize int
	mirror   bool
	mean     []float32 // nil disables subtraction
	rng      *rand.Rand
}

// NewCropMirrorNormalize builds the transform from an ImageConfig. The RNG
// drives crop placement and mirror decisions; pass the feed's RNG so a
// seeded feed is fully deterministic.
func NewCropMirrorNormalize(cfg ImageConfig, rng *rand.Rand) *CropMirrorNormalize {
	var mean []float32
	if len(cfg.Mean) == 3 {
		mean = append([]float32(nil), cfg.Mean...)
	}
	return &CropMirrorNormalize{
		cropSize: cfg.CropSize,
		mirror:   cfg.Mirror,
		mean:     mean,
		rng:      rng,
	}
}

func (c *CropMirrorNormalize) OutputDims(rowDims []int) ([]int, error) {
	if len(rowDims) != 3 || rowDims[0] != 3 {
		return nil, errors.Errorf("image rows must be shaped [3, height, width], got %v", rowDims)
	}
	height, width := rowDims[1], rowDims[2]
	if c.cropSize > 0 {
		if c.cropSize > height || c.cropSize > width {
			return nil, errors.Errorf("crop size %d exceeds image size %dx%d", c.cropSize, height, width)
		}
		return []int{3, c.cropSize, c.cropSize}, nil
	}
	return []int{3, height, width}, nil
}

func (c *CropMirrorNormalize) Apply(img *image.NRGBA, dst []float32) error {
	bounds := img.Bounds()
	height, width := bounds.Dy(), bounds.Dx()

	outH, outW := height, width
	hOff, wOff := 0, 0
	if c.cropSize > 0 {
		if c.cropSize > height || c.cropSize > width {
			return errors.Errorf("crop size %d exceeds image size %dx%d", c.cropSize, height, width)
		}
		outH, outW = c.cropSize, c.cropSize
		hOff = c.rng.Intn(height - c.cropSize + 1)
		wOff = c.rng.Intn(width - c.cropSize + 1)
	}
	if len(dst) != 3*outH*outW {
		return errors.Errorf("destination has %d elements, transform emits %d", len(dst), 3*outH*outW)
	}
	mirror := c.mirror && c.rng.Intn(2) == 1

	plane := outH * outW
	for h := 0; h < outH; h++ {
		for w := 0; w < outW; w++ {
			srcW := w
			if mirror {
				srcW = outW - 1 - w
			}
			px := img.NRGBAAt(wOff+srcW, hOff+h)
			r, g, b := float32(px.R), float32(px.G), float32(px.B)
			if c.mean != nil {
				r -= c.mean[0]
				g -= c.mean[1]
				b -= c.mean[2]
			}
			dst[h*outW+w] = r
			dst[plane+h*outW+w] = g
			dst[2*plane+h*outW+w] = b
		}
	}
	return nil
}
