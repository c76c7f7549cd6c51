// Package imaging implements the Image Resize component (§4.8): given an
// oversized image, produce the smallest encoding that satisfies a byte
// budget and a maximum long-edge dimension.
//
// Grounded on llm2/image_input.go's PrepareImageDataURLForLimits, which
// implements a single-ladder (JPEG-only, qualities
// [95,85,75,60,40,20,10]) version of this strategy; this package
// generalizes it to the PNG-vs-JPEG comparison and two-dimensional
// quality/scale ladder spec.md §4.8 names. draw.BiLinear is swapped for
// draw.CatmullRom, a closer Lanczos-equivalent resampling filter.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
)

// jpegQualities is the quality ladder tried at each scale factor, highest
// first, per spec.md §4.8.
var jpegQualities = []int{85, 70, 55, 40}

// scaleFactors is the ladder of long-edge scale-downs tried when even the
// lowest JPEG quality at full resolution doesn't fit, per spec.md §4.8.
var scaleFactors = []float64{1.0, 0.75, 0.5, 0.35, 0.25}

// Result is the smallest encoding PrepareForLimits could produce.
type Result struct {
	MimeType string
	Data     []byte
	Width    int
	Height   int
}

// DataURL renders the result as a data: URL.
func (r Result) DataURL() string {
	return "data:" + r.MimeType + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

// ParseDataURL splits a data: URL into its mime type and decoded bytes.
func ParseDataURL(dataURL string) (mimeType string, raw []byte, err error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return "", nil, fmt.Errorf("imaging: not a data URL")
	}
	rest := dataURL[len("data:"):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", nil, fmt.Errorf("imaging: invalid data URL, missing comma")
	}
	meta, payload := rest[:comma], rest[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("imaging: invalid data URL, expected ;base64")
	}
	mimeType = strings.TrimSuffix(meta, ";base64")
	raw, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("imaging: base64 decode: %w", err)
	}
	return mimeType, raw, nil
}

// PrepareForLimits implements the 5-step strategy:
//  1. decode, and scale to fit maxLongEdgePx preserving aspect ratio
//  2. if within maxBytes already (as the original format), return as-is
//  3. compare a PNG re-encode against a JPEG re-encode at the resized
//     dimensions and keep whichever is smaller, if either fits
//  4. otherwise walk the JPEG quality ladder at the current scale
//  5. if nothing at the current scale fits, step down scaleFactors and
//     repeat from (3); return the smallest encoding ever produced if
//     every rung overflows maxBytes
func PrepareForLimits(raw []byte, maxBytes int, maxLongEdgePx int) (Result, error) {
	if maxBytes <= 0 {
		maxBytes = 1 << 62
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("imaging: decode: %w", err)
	}

	origMime := "image/" + format
	if len(raw) <= maxBytes && !exceedsLongEdge(img, maxLongEdgePx) {
		b := img.Bounds()
		return Result{MimeType: origMime, Data: raw, Width: b.Dx(), Height: b.Dy()}, nil
	}

	base := img
	if maxLongEdgePx > 0 {
		base = scaleToFit(base, maxLongEdgePx)
	}

	var best *Result
	for _, factor := range scaleFactors {
		candidate := base
		if factor != 1.0 {
			b := base.Bounds()
			w := max1(int(float64(b.Dx()) * factor))
			h := max1(int(float64(b.Dy()) * factor))
			candidate = scaleTo(base, w, h)
		}

		if r, ok := tryPNGThenJPEG(candidate, maxBytes); ok {
			return r, nil
		} else if best == nil || len(r.Data) < len(best.Data) {
			cp := r
			best = &cp
		}
	}

	if best != nil {
		return *best, fmt.Errorf("imaging: could not fit image under %d bytes, returning smallest achieved (%d bytes): %w", maxBytes, len(best.Data), errOverBudget)
	}
	return Result{}, fmt.Errorf("imaging: could not encode image at all")
}

var errOverBudget = fmt.Errorf("image exceeds byte budget even at minimum quality/scale")

// tryPNGThenJPEG encodes candidate as PNG and as JPEG at quality 80 and
// returns the smaller of the two if it fits maxBytes (ok=true). Otherwise
// it walks the JPEG quality ladder from the highest quality down and
// returns the first rung that fits (ok=true), or else the smallest
// encoding produced overall (ok=false) so the caller can track a
// best-effort fallback across scale steps.
func tryPNGThenJPEG(img image.Image, maxBytes int) (Result, bool) {
	b := img.Bounds()
	var smallest *Result

	if pngData, err := encodePNG(img); err == nil {
		r := Result{MimeType: "image/png", Data: pngData, Width: b.Dx(), Height: b.Dy()}
		smallest = &r
	}
	if jpegData, err := encodeJPEG(img, 80); err == nil && (smallest == nil || len(jpegData) < len(smallest.Data)) {
		smallest = &Result{MimeType: "image/jpeg", Data: jpegData, Width: b.Dx(), Height: b.Dy()}
	}
	if smallest != nil && len(smallest.Data) <= maxBytes {
		return *smallest, true
	}

	for _, q := range jpegQualities {
		jpegData, err := encodeJPEG(img, q)
		if err != nil {
			continue
		}
		r := Result{MimeType: "image/jpeg", Data: jpegData, Width: b.Dx(), Height: b.Dy()}
		if len(jpegData) <= maxBytes {
			return r, true
		}
		if smallest == nil || len(jpegData) < len(smallest.Data) {
			smallest = &r
		}
	}

	if smallest == nil {
		return Result{}, false
	}
	return *smallest, false
}

func exceedsLongEdge(img image.Image, maxLongEdgePx int) bool {
	if maxLongEdgePx <= 0 {
		return false
	}
	b := img.Bounds()
	longEdge := b.Dx()
	if b.Dy() > longEdge {
		longEdge = b.Dy()
	}
	return longEdge > maxLongEdgePx
}

func scaleToFit(img image.Image, maxLongEdgePx int) image.Image {
	b := img.Bounds()
	longEdge := b.Dx()
	if b.Dy() > longEdge {
		longEdge = b.Dy()
	}
	if longEdge <= maxLongEdgePx {
		return img
	}
	scale := float64(maxLongEdgePx) / float64(longEdge)
	return scaleTo(img, max1(int(float64(b.Dx())*scale)), max1(int(float64(b.Dy())*scale)))
}

func scaleTo(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := (&png.Encoder{CompressionLevel: png.BestCompression}).Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
