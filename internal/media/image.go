// Package media prepares job input images for the page adapter.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrInvalidImage is returned when a job image cannot be decoded
var ErrInvalidImage = errors.New("invalid job image")

// NormalizeImage decodes a base64 image or data URL, scales it down to fit
// within maxDimension on both sides and returns it as a PNG data URL. An
// empty input yields an empty result.
func NormalizeImage(encoded string, maxDimension int) (string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return "", nil
	}

	raw, err := decodePayload(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if maxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > maxDimension || b.Dy() > maxDimension {
			img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodePayload(encoded string) ([]byte, error) {
	if strings.HasPrefix(encoded, "data:") {
		comma := strings.IndexByte(encoded, ',')
		if comma < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		if !strings.HasSuffix(encoded[:comma], ";base64") {
			return nil, fmt.Errorf("data URL is not base64 encoded")
		}
		encoded = encoded[comma+1:]
	}

	if b, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
}
