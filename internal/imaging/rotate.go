package imaging

import (
	"bytes"
	"fmt"
	"image"

	dimg "github.com/disintegration/imaging"

	"camkit/internal/camera"
)

// DefaultJPEGQuality は再エンコード時のJPEG品質
const DefaultJPEGQuality = 95

// JPEGRotator はJPEGを時計回りに回転する
type JPEGRotator struct {
	Quality int
}

// NewJPEGRotator は既定の品質の JPEGRotator を返す
func NewJPEGRotator() JPEGRotator {
	return JPEGRotator{Quality: DefaultJPEGQuality}
}

// Rotate は jpeg を degrees 度（90の倍数）時計回りに回転する
// 0 度ならそのまま返す
func (r JPEGRotator) Rotate(jpeg []byte, degrees int) ([]byte, error) {
	degrees = ((degrees % 360) + 360) % 360
	if degrees == 0 {
		return jpeg, nil
	}
	if degrees%90 != 0 {
		return nil, fmt.Errorf("90度単位でない回転には対応していません: %d", degrees)
	}

	src, err := dimg.Decode(bytes.NewReader(jpeg))
	if err != nil {
		return nil, fmt.Errorf("JPEGのデコードに失敗しました: %w", err)
	}

	var dst image.Image
	switch degrees {
	case 90:
		dst = dimg.Rotate270(src)
	case 180:
		dst = dimg.Rotate180(src)
	case 270:
		dst = dimg.Rotate90(src)
	}

	return encodeJPEG(dst, r.quality())
}

func (r JPEGRotator) quality() int {
	if r.Quality <= 0 || r.Quality > 100 {
		return DefaultJPEGQuality
	}
	return r.Quality
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := dimg.Encode(&buf, img, dimg.JPEG, dimg.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("JPEGのエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

var _ camera.ImageTransform = JPEGRotator{}
