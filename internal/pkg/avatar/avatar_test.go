package avatar

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type memStore struct {
	keys  []string
	types []string
}

func (m *memStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	m.keys = append(m.keys, key)
	m.types = append(m.types, contentType)
	return "https://cdn.test/" + key, nil
}

func TestVariants(t *testing.T) {
	pngData, webpData, err := Variants(samplePNG(t, 640, 320))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(pngData))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, Size, Size), img.Bounds())
	assert.True(t, bytes.HasPrefix(webpData, []byte("RIFF")))
}

func TestVariantsRejects(t *testing.T) {
	_, _, err := Variants([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrNotImage)

	_, _, err = Variants(make([]byte, MaxUploadSize+1))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestUpload(t *testing.T) {
	store := &memStore{}
	res, err := Upload(context.Background(), store, 7, samplePNG(t, 64, 64))
	require.NoError(t, err)

	require.Len(t, store.keys, 2)
	assert.True(t, strings.HasPrefix(store.keys[0], "avatars/7/"))
	assert.Equal(t, []string{"image/png", "image/webp"}, store.types)
	assert.True(t, strings.HasSuffix(res.PNGURL, ".png"))
	assert.True(t, strings.HasSuffix(res.WebPURL, ".webp"))
}

func TestOrient(t *testing.T) {
	img := imaging.New(4, 2, color.White)
	assert.Equal(t, 2, orient(img, 6).Bounds().Dx())
	assert.Equal(t, 4, orient(img, 3).Bounds().Dx())
	assert.Equal(t, 1, orientation([]byte("no exif here")))
}

func TestGravatarFallback(t *testing.T) {
	got := URLFor("", "  Ann@Example.com ")
	assert.Equal(t, GravatarURL("ann@example.com", 0), got)
	assert.Contains(t, got, "https://www.gravatar.com/avatar/")
	assert.Contains(t, got, "?s=128&d=mp")
	assert.Equal(t, "https://cdn.example.com/a.png", URLFor("https://cdn.example.com/a.png", "ann@example.com"))
}
