// Package imagex normalizes entity images for storage: downscale to a
// bounded dimension, then recompress as JPEG down a quality ladder until the
// result fits the target size.
package imagex

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/tastebase/tastebase/internal/common"
)

// qualityLadder is walked top to bottom until the encoded size fits.
var qualityLadder = []int{85, 75, 65, 55, 45, 35}

// ceilingFactor bounds the final size: even at the lowest quality, an image
// larger than ceilingFactor*targetBytes is rejected rather than stored as an
// asset that can never sync under quota.
const ceilingFactor = 3

// Process decodes data (JPEG or PNG), scales it down so neither dimension
// exceeds maxDim, and returns a JPEG no larger than targetBytes when the
// ladder allows it. Undecodable input and images that stay oversized past
// the absolute ceiling fail with common.ErrInvalidData.
func Process(data []byte, maxDim, targetBytes int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", common.ErrInvalidData, err)
	}

	src = scaleDown(src, maxDim)

	var out []byte
	for _, q := range qualityLadder {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		out = buf.Bytes()
		if len(out) <= targetBytes {
			return out, nil
		}
	}

	if len(out) > ceilingFactor*targetBytes {
		return nil, fmt.Errorf("%w: image %d bytes exceeds ceiling", common.ErrInvalidData, len(out))
	}
	return out, nil
}

// scaleDown returns src resized so max(width, height) <= maxDim, preserving
// aspect ratio. Images already within bounds are returned unchanged.
func scaleDown(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = h * maxDim / w
	} else {
		nh = maxDim
		nw = w * maxDim / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
