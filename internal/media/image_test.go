package media

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestImage(t *testing.T, w, h int, format imaging.Format) string {
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeResult(t *testing.T, dataURL string) image.Image {
	require.True(t, strings.HasPrefix(dataURL, "data:image/png;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, "data:image/png;base64,"))
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestNormalizeImage(t *testing.T) {
	tests := []struct {
		name       string
		input      func(t *testing.T) string
		maxDim     int
		wantWidth  int
		wantHeight int
	}{
		{
			name:       "large jpeg is scaled down keeping aspect",
			input:      func(t *testing.T) string { return encodeTestImage(t, 400, 200, imaging.JPEG) },
			maxDim:     100,
			wantWidth:  100,
			wantHeight: 50,
		},
		{
			name: "small png data url is kept",
			input: func(t *testing.T) string {
				return "data:image/png;base64," + encodeTestImage(t, 40, 30, imaging.PNG)
			},
			maxDim:     100,
			wantWidth:  40,
			wantHeight: 30,
		},
		{
			name:       "zero max dimension disables scaling",
			input:      func(t *testing.T) string { return encodeTestImage(t, 300, 10, imaging.PNG) },
			maxDim:     0,
			wantWidth:  300,
			wantHeight: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NormalizeImage(tt.input(t), tt.maxDim)
			require.NoError(t, err)

			img := decodeResult(t, out)
			assert.Equal(t, tt.wantWidth, img.Bounds().Dx())
			assert.Equal(t, tt.wantHeight, img.Bounds().Dy())
		})
	}
}

func TestNormalizeImage_Empty(t *testing.T) {
	out, err := NormalizeImage("  ", 100)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestNormalizeImage_Invalid(t *testing.T) {
	tests := []string{
		"!!!not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("plain text, not an image")),
		"data:image/png,rawbytes",
		"data:image/png;base64",
	}

	for _, input := range tests {
		_, err := NormalizeImage(input, 100)
		assert.ErrorIs(t, err, ErrInvalidImage, input)
	}
}
