package validate

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	// MaxPhotoBytes caps the decoded size of an uploaded persona photo.
	MaxPhotoBytes = 5 << 20 // 5MB
	// maxPhotoDim is the bounding box photos are downscaled into before
	// storage.
	maxPhotoDim = 512

	jpegQuality = 85
)

// NormalizePhoto validates a persona photo supplied as a data URL and
// downscales it to fit maxPhotoDim on its longest side. Images already
// within bounds are returned unchanged to avoid recompression loss.
// Allowed MIME types: image/jpeg, image/png, image/webp.
func NormalizePhoto(dataURL string) (string, error) {
	mime, payload, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ";base64,")
	if !strings.HasPrefix(dataURL, "data:") || !ok {
		return "", &FieldError{Field: "photo", Reason: "must be a base64 data URL"}
	}

	switch mime {
	case "image/jpeg", "image/png", "image/webp":
	default:
		return "", &FieldError{Field: "photo", Reason: fmt.Sprintf("unsupported image type %q", mime)}
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", &FieldError{Field: "photo", Reason: "invalid base64 payload"}
	}
	if len(raw) > MaxPhotoBytes {
		return "", &FieldError{Field: "photo", Reason: fmt.Sprintf("exceeds %dMB", MaxPhotoBytes>>20)}
	}

	var img image.Image
	switch mime {
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(raw))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(raw))
	case "image/webp":
		img, err = webp.Decode(bytes.NewReader(raw))
	}
	if err != nil {
		return "", &FieldError{Field: "photo", Reason: "image data is corrupt or mislabeled"}
	}

	b := img.Bounds()
	if b.Dx() <= maxPhotoDim && b.Dy() <= maxPhotoDim {
		return dataURL, nil
	}

	w, h := fitWithin(b.Dx(), b.Dy(), maxPhotoDim)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("re-encoding photo: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// fitWithin scales (w, h) down proportionally so the longest side equals limit.
func fitWithin(w, h, limit int) (int, int) {
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
