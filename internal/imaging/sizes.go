// Package imaging はカメラコントローラーが使うサイズ選択と画像変換を提供する
package imaging

import "camkit/internal/camera"

// SizeSelector は target を内包するサイズのうち最も小さいものを選ぶ
type SizeSelector struct{}

// ClosestContaining は target を内包する最小面積のサイズを返す
// 内包するサイズがなければ最大面積のサイズ、候補が空なら target を返す
func (SizeSelector) ClosestContaining(sizes []camera.Size, target camera.Size) camera.Size {
	var best, largest camera.Size
	found := false
	for _, s := range sizes {
		if s.Area() > largest.Area() {
			largest = s
		}
		if !s.Contains(target) {
			continue
		}
		if !found || s.Area() < best.Area() {
			best = s
			found = true
		}
	}

	switch {
	case found:
		return best
	case largest.Area() > 0:
		return largest
	default:
		return target
	}
}

var _ camera.SizeSelector = SizeSelector{}
