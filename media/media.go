// Package media downscales inbound photos before a ChatHandler embeds them
// in a reply, supplementing spec.md's otherwise-opaque media payload
// (messages carry raw bytes; no persistence is introduced here).
package media

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// MaxPhotoSizeMB bounds the input this package will attempt to decode,
// mirroring the size ceiling telegram.Client.DownloadFile's callers already
// respect for Telegram's own upload limits.
const MaxPhotoSizeMB = 20

// Thumbnail decodes data as an image and returns a JPEG-encoded downscaled
// copy whose longest edge is at most maxEdge pixels. Images already smaller
// than maxEdge are returned unchanged (re-encoded, not upscaled).
func Thumbnail(data []byte, maxEdge int) ([]byte, error) {
	if len(data) > MaxPhotoSizeMB*1024*1024 {
		return nil, errors.Errorf("media: input exceeds %dMB limit", MaxPhotoSizeMB)
	}
	if maxEdge <= 0 {
		return nil, errors.New("media: maxEdge must be positive")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "media: decode image")
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var resized image.Image = img
	if width > maxEdge || height > maxEdge {
		if width >= height {
			resized = imaging.Resize(img, maxEdge, 0, imaging.Lanczos)
		} else {
			resized = imaging.Resize(img, 0, maxEdge, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, errors.Wrap(err, "media: encode thumbnail")
	}
	return buf.Bytes(), nil
}
