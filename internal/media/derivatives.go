package media

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

const (
	thumbnailSize = 150
	jpegQuality   = 85

	// A transcode is only worth keeping when it beats the original by
	// at least this fraction; a marginal or negative win keeps the
	// original bytes.
	transcodeMinWin = 0.10
)

// Thumbnail renders the fixed-size cover-fit preview used by the
// gallery grid.
func Thumbnail(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	thumb := imaging.Fill(img, thumbnailSize, thumbnailSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Transcode re-encodes an image to JPEG and returns the result only if
// it is noticeably smaller than the original. The bool reports whether
// the transcode was accepted; when false the caller keeps the original
// bytes and extension.
func Transcode(raw []byte) ([]byte, string, bool) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", false
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, "", false
	}

	out := buf.Bytes()
	if float64(len(out)) > float64(len(raw))*(1-transcodeMinWin) {
		return nil, "", false
	}
	return out, ".jpg", true
}

// Dimensions probes width and height without decoding the full image.
func Dimensions(raw []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, fmt.Errorf("decode config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
