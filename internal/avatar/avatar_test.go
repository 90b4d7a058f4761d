package avatar

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedImage(t *testing.T, w, h int, asJPEG bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if asJPEG {
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	} else {
		require.NoError(t, png.Encode(&buf, img))
	}
	return buf.Bytes()
}

func TestNormalize_ResizesToPNG(t *testing.T) {
	for name, data := range map[string][]byte{
		"png":  encodedImage(t, 40, 20, false),
		"jpeg": encodedImage(t, 600, 400, true),
	} {
		t.Run(name, func(t *testing.T) {
			out, err := Normalize(data)
			require.NoError(t, err)

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, "png", format)
			assert.Equal(t, Width, cfg.Width)
			assert.Equal(t, Height, cfg.Height)
		})
	}
}

func TestNormalize_RejectsNonImages(t *testing.T) {
	_, err := Normalize([]byte("%PDF-1.4 not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	// PNG signature without a body sniffs as png but cannot be decoded.
	_, err = Normalize([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name string
		file multipart.FileHeader
		want error
	}{
		{"png", multipart.FileHeader{Filename: "me.png", Size: 10}, nil},
		{"upper jpg", multipart.FileHeader{Filename: "ME.JPG", Size: 10}, nil},
		{"pdf", multipart.FileHeader{Filename: "cv.pdf", Size: 10}, ErrUnsupportedType},
		{"no ext", multipart.FileHeader{Filename: "avatar", Size: 10}, ErrUnsupportedType},
		{"too large", multipart.FileHeader{Filename: "me.png", Size: 1000001}, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFile(&tt.file, 1000000)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
