package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/png"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Provider-facing image types. Every Asset handed to a pipeline has one of them.
const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

var mimeAliases = map[string]string{
	"image/jpg":   MIMEJPEG,
	"image/pjpeg": MIMEJPEG,
	"image/x-png": MIMEPNG,
}

// Raster formats that are re-encoded as PNG instead of being rejected.
var convertible = map[string]bool{
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// Supported reports whether mimeType can be sent to the provider as is.
func Supported(mimeType string) bool {
	return mimeType == MIMEPNG || mimeType == MIMEJPEG
}

// ensureSupported returns a with a PNG or JPEG MIME type. GIF, WebP and BMP
// are decoded and re-encoded as PNG; any other type is an ImageFetchError.
func ensureSupported(a *Asset) (*Asset, error) {
	if alias, ok := mimeAliases[a.MIMEType]; ok {
		a.MIMEType = alias
	}
	if Supported(a.MIMEType) {
		return a, nil
	}
	if !convertible[a.MIMEType] {
		return nil, &ImageFetchError{Locator: a.Locator, ContentType: a.MIMEType, Cause: fmt.Errorf("unsupported image type, use PNG or JPEG")}
	}

	img, _, err := image.Decode(bytes.NewReader(a.Data))
	if err != nil {
		return nil, &ImageFetchError{Locator: a.Locator, ContentType: a.MIMEType, Cause: fmt.Errorf("decode %s: %w", a.MIMEType, err)}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode converted image: %w", err)
	}
	log.Debug().Str("locator", a.Locator).Str("from", a.MIMEType).Int("bytes", buf.Len()).Msg("Converted image to PNG")
	return &Asset{Data: buf.Bytes(), MIMEType: MIMEPNG, Locator: a.Locator}, nil
}
