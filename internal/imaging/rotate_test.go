package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"testing"

	dimg "github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camkit/internal/camera"
)

// markedJPEG は左上だけ赤い横長のJPEGを作る
func markedJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{A: 255}
			if x < w/4 && y < h/4 {
				c.R = 255
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, dimg.Encode(&buf, img, dimg.JPEG, dimg.JPEGQuality(100)))
	return buf.Bytes()
}

// redCorner は赤い領域がある角を返す
func redCorner(t *testing.T, data []byte) string {
	t.Helper()
	img, err := dimg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	b := img.Bounds()
	corners := map[string]image.Point{
		"top-left":     {b.Min.X + 2, b.Min.Y + 2},
		"top-right":    {b.Max.X - 3, b.Min.Y + 2},
		"bottom-left":  {b.Min.X + 2, b.Max.Y - 3},
		"bottom-right": {b.Max.X - 3, b.Max.Y - 3},
	}
	for name, p := range corners {
		r, g, _, _ := img.At(p.X, p.Y).RGBA()
		if r>>8 > 200 && g>>8 < 60 {
			return name
		}
	}
	return ""
}

func TestJPEGRotator_Rotate(t *testing.T) {
	src := markedJPEG(t, 64, 32)

	tests := []struct {
		degrees  int
		wantSize camera.Size
		corner   string
	}{
		{degrees: 90, wantSize: camera.Size{Width: 32, Height: 64}, corner: "top-right"},
		{degrees: 180, wantSize: camera.Size{Width: 64, Height: 32}, corner: "bottom-right"},
		{degrees: 270, wantSize: camera.Size{Width: 32, Height: 64}, corner: "bottom-left"},
		{degrees: -90, wantSize: camera.Size{Width: 32, Height: 64}, corner: "bottom-left"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.degrees), func(t *testing.T) {
			out, err := NewJPEGRotator().Rotate(src, tt.degrees)
			require.NoError(t, err)

			size, err := Bounds(out)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, size)
			assert.Equal(t, tt.corner, redCorner(t, out))
		})
	}
}

func TestJPEGRotator_ZeroIsPassthrough(t *testing.T) {
	src := markedJPEG(t, 16, 8)
	out, err := NewJPEGRotator().Rotate(src, 360)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestJPEGRotator_Errors(t *testing.T) {
	_, err := NewJPEGRotator().Rotate([]byte("not a jpeg"), 90)
	assert.Error(t, err)

	_, err = NewJPEGRotator().Rotate(markedJPEG(t, 8, 8), 45)
	assert.Error(t, err)
}

func TestJPEGRotator_QualityFallback(t *testing.T) {
	assert.Equal(t, DefaultJPEGQuality, JPEGRotator{}.quality())
	assert.Equal(t, DefaultJPEGQuality, JPEGRotator{Quality: 101}.quality())
	assert.Equal(t, 70, JPEGRotator{Quality: 70}.quality())
}
