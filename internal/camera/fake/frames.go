package fake

import (
	"bytes"
	"image"
	"image/jpeg"

	"camkit/internal/camera"
)

// SyntheticJPEG は size の大きさのグラデーション画像をJPEGで返す
// seq ごとに模様をずらす
func SyntheticJPEG(size camera.Size, seq int) []byte {
	if size.Area() == 0 {
		size = camera.Size{Width: 64, Height: 48}
	}
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	for y := 0; y < size.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < size.Width; x++ {
			px := row[x*4 : x*4+4]
			px[0] = uint8((x + seq*8) % 256)
			px[1] = uint8((y + seq*4) % 256)
			px[2] = uint8((x + y) % 256)
			px[3] = 255
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil
	}
	return buf.Bytes()
}

// SyntheticYUV は YUV_420_888 の3プレーンを返す
// プレーン1と2はピクセルストライド2のインターリーブ形式
func SyntheticYUV(size camera.Size, seq int) [][]byte {
	ySize := size.Area()
	y := make([]byte, ySize)
	for i := range y {
		y[i] = byte((i%size.Width + seq) % 256)
	}
	chroma := ySize / 2
	u := make([]byte, chroma)
	v := make([]byte, chroma)
	for i := 0; i < chroma; i++ {
		u[i] = 128
		v[i] = 128
	}
	return [][]byte{y, u, v}
}
