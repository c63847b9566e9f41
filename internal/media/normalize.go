package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// Normalize downscales PNG and JPEG assets so that neither side exceeds
// maxDimension, preserving aspect ratio and format. Other formats, images
// already within bounds, and maxDimension <= 0 return a unchanged.
func Normalize(a *Asset, maxDimension int) (*Asset, error) {
	if maxDimension <= 0 || (a.MIMEType != "image/png" && a.MIMEType != "image/jpeg") {
		return a, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(a.Data))
	if err != nil {
		return nil, &ImageFetchError{Locator: a.Locator, ContentType: a.MIMEType, Cause: fmt.Errorf("decode image header: %w", err)}
	}
	if cfg.Width <= maxDimension && cfg.Height <= maxDimension {
		return a, nil
	}

	src, _, err := image.Decode(bytes.NewReader(a.Data))
	if err != nil {
		return nil, &ImageFetchError{Locator: a.Locator, ContentType: a.MIMEType, Cause: fmt.Errorf("decode image: %w", err)}
	}

	newW, newH := fitWithin(cfg.Width, cfg.Height, maxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if a.MIMEType == "image/png" {
		err = png.Encode(&buf, dst)
	} else {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return nil, fmt.Errorf("encode resized image: %w", err)
	}

	log.Debug().
		Str("locator", a.Locator).
		Int("fromWidth", cfg.Width).
		Int("fromHeight", cfg.Height).
		Int("toWidth", newW).
		Int("toHeight", newH).
		Msg("Downscaled image")

	return &Asset{Data: buf.Bytes(), MIMEType: a.MIMEType, Locator: a.Locator}, nil
}

// fitWithin scales w x h so the longer side equals max.
func fitWithin(w, h, max int) (int, int) {
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
