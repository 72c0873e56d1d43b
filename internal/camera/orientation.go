package camera

// PreviewOrientation はプレビューの回転角を計算する
// 前面カメラは鏡像を補正する
func PreviewOrientation(sensor, display int, facing Facing) int {
	if facing == FacingFront {
		result := (sensor + display) % 360
		return (360 - result) % 360
	}
	return (sensor - display + 360) % 360
}

// CaptureOrientation は撮影画像の回転角を計算する
// 前面カメラでも鏡像補正はしないため、プレビューの回転角とは異なる
func CaptureOrientation(sensor, display int, facing Facing) int {
	if facing == FacingFront {
		return (sensor + display + 360) % 360
	}
	return (sensor - display + 360) % 360
}

// isSideways は回転角が横向き（90度または270度）かを返す
func isSideways(orientation int) bool {
	return orientation%180 != 0
}

// PreviewTarget はプレビューサイズ選択の目標ボックスを返す
// 横向きの回転では幅と高さを入れ替える
func PreviewTarget(view Size, previewOrientation int) Size {
	if isSideways(previewOrientation) {
		return view.Swap()
	}
	return view
}

// photoSizePolicy は撮影サイズの固定ポリシー
var photoSizePolicy = Size{Width: 3264, Height: 1840}

// PhotoSizeFor は撮影サイズを返す
// サポートサイズからは計算せず、固定値を回転に合わせて返す
func PhotoSizeFor(previewOrientation int) Size {
	if isSideways(previewOrientation) {
		return photoSizePolicy.Swap()
	}
	return photoSizePolicy
}
