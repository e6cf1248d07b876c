package handlers

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// memFile адаптирует bytes.Reader под multipart.File.
type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func TestSniffImageType_PNG(t *testing.T) {
	contentType, err := sniffImageType(memFile{bytes.NewReader(pngHeader)}, "avatar.png")

	assert.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
}

func TestSniffImageType_JPEGExtensionNormalized(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}

	contentType, err := sniffImageType(memFile{bytes.NewReader(jpeg)}, "photo.jpeg")

	assert.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
}

func TestSniffImageType_ExtensionMismatch(t *testing.T) {
	_, err := sniffImageType(memFile{bytes.NewReader(pngHeader)}, "avatar.jpg")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "не соответствует")
}

func TestSniffImageType_NotAnImage(t *testing.T) {
	_, err := sniffImageType(memFile{bytes.NewReader([]byte("plain text, not an image"))}, "notes.txt")

	assert.Error(t, err)
}

func TestSniffImageType_ExecutableDisguisedAsImage(t *testing.T) {
	elf := []byte{0x7F, 'E', 'L', 'F', 2, 1, 1, 0}

	_, err := sniffImageType(memFile{bytes.NewReader(elf)}, "avatar.png")

	assert.Error(t, err)
}
