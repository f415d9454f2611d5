package transform

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"image-pipeline/internal/models"
)

// Extension is the single fixed output format's file extension.
const Extension = "jpg"

const jpegQuality = 85

// Apply decodes raw image bytes, resizes to the exact requested dimensions
// when both are present, converts to grayscale when flagged, and re-encodes
// as JPEG. Absent both options the image is only re-encoded.
func Apply(src []byte, spec models.TransformSpec) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if spec.ShouldResize() {
		dst := image.NewRGBA(image.Rect(0, 0, *spec.ResizeWidth, *spec.ResizeHeight))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
		img = dst
	}

	if spec.Grayscale {
		img = imaging.Grayscale(img)
	}

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
