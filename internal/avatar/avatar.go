// Package avatar validates uploaded profile pictures and normalizes them to
// a fixed-size PNG.
package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
)

const (
	Width  = 250
	Height = 250
)

var (
	ErrTooLarge        = errors.New("avatar exceeds the size limit")
	ErrUnsupportedType = errors.New("avatar must be a jpg, jpeg or png image")
	ErrUnreadable      = errors.New("avatar image is unreadable")
)

var allowedExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

var allowedMIME = []string{"image/jpeg", "image/png"}

// ValidateFile checks the declared size and the file extension of an upload
// before anything is read.
func ValidateFile(file *multipart.FileHeader, maxBytes int64) error {
	if file.Size > maxBytes {
		return ErrTooLarge
	}
	if !allowedExts[strings.ToLower(filepath.Ext(file.Filename))] {
		return ErrUnsupportedType
	}
	return nil
}

// Normalize sniffs the content, decodes it and returns a Width x Height PNG.
func Normalize(data []byte) ([]byte, error) {
	if !mimetype.EqualsAny(mimetype.Detect(data).String(), allowedMIME...) {
		return nil, ErrUnsupportedType
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}
