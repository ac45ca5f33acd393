// Package avatar turns an uploaded picture into the square PNG and WebP
// variants shown on the profile page.
package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/rwcarlsen/goexif/exif"
)

const (
	Size          = 128
	MaxUploadSize = 1 << 20
	webpQuality   = 85
)

var (
	ErrTooLarge = errors.New("avatar must be at most 1 MB")
	ErrNotImage = errors.New("avatar must be a PNG, JPEG or GIF image")
)

// Uploader stores a variant and returns its public URL.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type Result struct {
	PNGURL  string
	WebPURL string
}

// Variants decodes data, applies the EXIF orientation and returns a 128x128
// PNG and WebP.
func Variants(data []byte) (pngData, webpData []byte, err error) {
	if len(data) > MaxUploadSize {
		return nil, nil, ErrTooLarge
	}
	switch http.DetectContentType(data) {
	case "image/png", "image/jpeg", "image/gif":
	default:
		return nil, nil, ErrNotImage
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	img = orient(img, orientation(data))
	thumb := imaging.Fill(img, Size, Size, imaging.Center, imaging.Lanczos)

	var pngBuf bytes.Buffer
	if err := imaging.Encode(&pngBuf, thumb, imaging.PNG); err != nil {
		return nil, nil, fmt.Errorf("error encoding PNG: %w", err)
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, webpQuality)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating encoder options: %w", err)
	}
	var webpBuf bytes.Buffer
	if err := webp.Encode(&webpBuf, thumb, options); err != nil {
		return nil, nil, fmt.Errorf("error encoding WebP image: %w", err)
	}
	return pngBuf.Bytes(), webpBuf.Bytes(), nil
}

// Upload stores both variants under avatars/<userID>/.
func Upload(ctx context.Context, store Uploader, userID uint, data []byte) (*Result, error) {
	pngData, webpData, err := Variants(data)
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("avatars/%d/%s", userID, uuid.NewString())

	pngURL, err := store.Put(ctx, base+".png", pngData, "image/png")
	if err != nil {
		return nil, err
	}
	webpURL, err := store.Put(ctx, base+".webp", webpData, "image/webp")
	if err != nil {
		return nil, err
	}
	return &Result{PNGURL: pngURL, WebPURL: webpURL}, nil
}

// orientation reads the EXIF orientation tag, 1 when absent.
func orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

func orient(img image.Image, o int) image.Image {
	switch o {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
