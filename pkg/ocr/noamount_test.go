package ocr

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBlankImageYieldsNothing(t *testing.T) {
	img := imaging.New(400, 200, color.NRGBA{255, 255, 255, 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))

	got, err := NewExtractor().Extract(context.Background(), buf.Bytes())
	if errors.Is(err, ErrEngine) {
		t.Skipf("tesseract unavailable: %v", err)
	}
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractRejectsGarbage(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), []byte("not an image"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestExtractHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractor().Extract(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
