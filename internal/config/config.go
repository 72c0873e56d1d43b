package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"camkit/internal/camera"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host" validate:"required"` // リッスンするホスト
	Port int    `yaml:"port" validate:"min=1,max=65535"`

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"` // 0 はストリーミング用に無効
	PhotoTimeout time.Duration `yaml:"photo_timeout" validate:"gt=0"`  // 撮影の待ち時間
	StartTimeout time.Duration `yaml:"start_timeout" validate:"gt=0"`  // カメラを開く待ち時間

	StreamFPS int `yaml:"stream_fps" validate:"min=1,max=60"` // MJPEG配信の上限
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Backend        string `yaml:"backend" validate:"oneof=v4l2 simulated"`
	ForceLegacyAPI bool   `yaml:"force_legacy_api"`
	Precapture     bool   `yaml:"precapture"` // 撮影前にAE precaptureを行う
	Hotplug        bool   `yaml:"hotplug"`    // デバイスファイルの削除を切断として扱う

	Facing          string `yaml:"facing" validate:"oneof=back front"`
	Flash           string `yaml:"flash" validate:"oneof=off on auto torch"`
	DisplayRotation int    `yaml:"display_rotation" validate:"oneof=0 90 180 270"`
	ViewWidth       int    `yaml:"view_width" validate:"min=1"`
	ViewHeight      int    `yaml:"view_height" validate:"min=1"`
	FPS             int    `yaml:"fps" validate:"min=1,max=120"`

	PhotoDir string         `yaml:"photo_dir"` // 空なら保存しない
	Devices  []CameraDevice `yaml:"devices" validate:"dive"`
}

// CameraDevice はV4L2デバイスとカメラの向きの対応
type CameraDevice struct {
	Device      string `yaml:"device" validate:"required"` // デバイスパス (例: /dev/video0)
	Facing      string `yaml:"facing" validate:"oneof=back front"`
	Orientation int    `yaml:"orientation" validate:"oneof=0 90 180 270"` // センサーの回転
}

// LogConfig はログの設定
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0,
			PhotoTimeout: 15 * time.Second,
			StartTimeout: 10 * time.Second,
			StreamFPS:    10,
		},
		Camera: CameraConfig{
			Backend:         "v4l2",
			Hotplug:         true,
			Facing:          string(camera.FacingBack),
			Flash:           string(camera.FlashOff),
			DisplayRotation: 0,
			ViewWidth:       1280,
			ViewHeight:      720,
			FPS:             15,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load は設定を読み込む
// CAMKIT_CONFIG があればYAMLを読み、環境変数で上書きしてから検証する
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CAMKIT_CONFIG"))
}

// LoadFile は path のYAMLを読み込む。path が空ならデフォルト値から始める
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Backend = getEnvOrDefault("CAMKIT_BACKEND", c.Camera.Backend)
	c.Camera.Facing = getEnvOrDefault("CAMKIT_FACING", c.Camera.Facing)
	c.Camera.Flash = getEnvOrDefault("CAMKIT_FLASH", c.Camera.Flash)
	c.Camera.PhotoDir = getEnvOrDefault("CAMKIT_PHOTO_DIR", c.Camera.PhotoDir)
	c.Camera.ForceLegacyAPI = getEnvAsBoolOrDefault("CAMKIT_FORCE_LEGACY_API", c.Camera.ForceLegacyAPI)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("無効な設定値 %s=%v (%s)", fe.Namespace(), fe.Value(), fe.Tag())
		}
		return err
	}

	seen := make(map[string]bool)
	for _, d := range c.Camera.Devices {
		if seen[d.Facing] {
			return fmt.Errorf("向き %s のデバイスが重複しています", d.Facing)
		}
		seen[d.Facing] = true
	}
	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// FacingValue はカメラの向きを返す
func (c *CameraConfig) FacingValue() camera.Facing {
	return camera.Facing(c.Facing)
}

// FlashValue はフラッシュモードを返す
func (c *CameraConfig) FlashValue() camera.Flash {
	return camera.Flash(c.Flash)
}

// ViewSize はプレビューを表示する領域の大きさを返す
func (c *CameraConfig) ViewSize() camera.Size {
	return camera.Size{Width: c.ViewWidth, Height: c.ViewHeight}
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
