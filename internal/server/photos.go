package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"camkit/internal/metrics"
)

// photoStore は撮影画像をディレクトリに保存する
type photoStore struct {
	dir string
}

// Save は jpeg を一時ファイル経由で原子的に書き込み、保存先のパスを返す
func (p *photoStore) Save(jpeg []byte, at time.Time) (path string, err error) {
	defer func() { metrics.ObservePhotoSaved(err) }()

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("保存先ディレクトリを作成できません: %w", err)
	}

	name := fmt.Sprintf("photo-%s-%s.jpg", at.Format("20060102-150405.000"), uuid.NewString()[:8])
	path = filepath.Join(p.dir, name)
	if err := renameio.WriteFile(path, jpeg, 0o644); err != nil {
		return "", fmt.Errorf("撮影画像を保存できません: %w", err)
	}
	return path, nil
}
