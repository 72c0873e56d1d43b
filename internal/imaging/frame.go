package imaging

import (
	"bytes"
	"fmt"
	"image"

	"camkit/internal/camera"
)

// IsJPEG はJPEGのSOIマーカーで始まるかを返す
func IsJPEG(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xff && data[1] == 0xd8
}

// FrameToJPEG はフレームタップのフレームをJPEGにする
// JPEGはそのまま返し、NV21 は size の画像としてエンコードする
func FrameToJPEG(frame []byte, size camera.Size, quality int) ([]byte, error) {
	if IsJPEG(frame) {
		return frame, nil
	}
	img, err := DecodeNV21(frame, size)
	if err != nil {
		return nil, err
	}
	return encodeJPEG(img, quality)
}

// DecodeNV21 は Y プレーンに VU インターリーブが続く NV21 を画像にする
func DecodeNV21(frame []byte, size camera.Size) (*image.YCbCr, error) {
	w, h := size.Width, size.Height
	ySize := w * h
	cw, ch := (w+1)/2, (h+1)/2
	if w <= 0 || h <= 0 || len(frame) < ySize+2*cw*ch-1 {
		return nil, fmt.Errorf("NV21 フレームの長さが不正です: %d (%s)", len(frame), size)
	}

	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	for y := 0; y < h; y++ {
		copy(img.Y[y*img.YStride:y*img.YStride+w], frame[y*w:(y+1)*w])
	}
	vu := frame[ySize:]
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			i := (y*cw + x) * 2
			ci := y*img.CStride + x
			img.Cr[ci] = vu[i]
			if i+1 < len(vu) {
				img.Cb[ci] = vu[i+1]
			}
		}
	}
	return img, nil
}

// Bounds はJPEGの画像サイズを返す
func Bounds(jpeg []byte) (camera.Size, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(jpeg))
	if err != nil {
		return camera.Size{}, err
	}
	return camera.Size{Width: cfg.Width, Height: cfg.Height}, nil
}
