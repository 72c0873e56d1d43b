package v4l2

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"camkit/internal/camera"
)

// Discovery はカメラデバイスの検出を行う
type Discovery interface {
	ScanDevices(ctx context.Context) ([]string, error)
	IsDeviceAvailable(ctx context.Context, device string) bool
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はデバイスの詳細情報
type DeviceInfo struct {
	Device      string
	Name        string
	Driver      string
	Resolutions []camera.Size
	Formats     []string
}

// 解像度が取得できなかったときの候補
var defaultResolutions = []camera.Size{
	{Width: 640, Height: 480},
	{Width: 1280, Height: 720},
	{Width: 1920, Height: 1080},
}

var (
	deviceNumberPattern = regexp.MustCompile(`video(\d+)`)
	formatPattern       = regexp.MustCompile(`\[\d+\]:\s+'(\w+)'`)
	sizePattern         = regexp.MustCompile(`Size: Discrete (\d+)x(\d+)`)
)

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct {
	cmd     Commander
	pattern string
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery(cmd Commander) *LinuxDiscovery {
	return &LinuxDiscovery{cmd: cmd, pattern: "/dev/video*"}
}

// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []string
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if d.IsDeviceAvailable(ctx, match) && d.IsMainCamera(ctx, match) {
			devices = append(devices, match)
		}
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if !deviceNumberPattern.MatchString(device) {
		return false
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// GetDeviceInfo はデバイスの詳細情報を取得する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !d.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("デバイスが利用できません: %s", device)
	}

	info := &DeviceInfo{
		Device: device,
		Name:   fmt.Sprintf("カメラ %d", extractDeviceNumber(device)),
	}

	if out, err := d.cmd.Output(ctx, "v4l2-ctl", "--device", device, "--info"); err == nil {
		fields := parseInfo(string(out))
		if name := fields["Card type"]; name != "" {
			info.Name = name
		}
		info.Driver = fields["Driver name"]
	}

	if out, err := d.cmd.Output(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext"); err == nil {
		info.Formats, info.Resolutions = parseFormats(string(out))
	}
	if len(info.Resolutions) == 0 {
		info.Resolutions = append([]camera.Size(nil), defaultResolutions...)
	}

	return info, nil
}

// IsMainCamera はデバイスがメインカメラ（カラー）かどうかを判定する
// 同じカメラの複数チャンネルは最も小さい番号だけを残す
func (d *LinuxDiscovery) IsMainCamera(ctx context.Context, device string) bool {
	if !d.hasColorFormat(ctx, device) {
		return false
	}

	name := d.cardName(ctx, device)
	for i := 0; i < extractDeviceNumber(device); i++ {
		sibling := filepath.Join(filepath.Dir(device), fmt.Sprintf("video%d", i))
		if !d.IsDeviceAvailable(ctx, sibling) || !d.hasColorFormat(ctx, sibling) {
			continue
		}
		if name != "" && name == d.cardName(ctx, sibling) {
			return false
		}
	}
	return true
}

func (d *LinuxDiscovery) hasColorFormat(ctx context.Context, device string) bool {
	out, err := d.cmd.Output(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext")
	if err != nil {
		return false
	}
	formats, _ := parseFormats(string(out))
	for _, f := range formats {
		if f == "YUYV" || f == "MJPG" {
			return true
		}
	}
	return false
}

func (d *LinuxDiscovery) cardName(ctx context.Context, device string) string {
	out, err := d.cmd.Output(ctx, "v4l2-ctl", "--device", device, "--info")
	if err != nil {
		return ""
	}
	return parseInfo(string(out))["Card type"]
}

// parseInfo は v4l2-ctl --info の "key : value" 行を読む
func parseInfo(output string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := fields[key]; seen {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

// parseFormats は v4l2-ctl --list-formats-ext からフォーマットと解像度を読む
// 解像度は面積の昇順で重複を除く
func parseFormats(output string) ([]string, []camera.Size) {
	var formats []string
	seenFormat := make(map[string]bool)
	for _, m := range formatPattern.FindAllStringSubmatch(output, -1) {
		if !seenFormat[m[1]] {
			seenFormat[m[1]] = true
			formats = append(formats, m[1])
		}
	}

	var sizes []camera.Size
	seenSize := make(map[camera.Size]bool)
	for _, m := range sizePattern.FindAllStringSubmatch(output, -1) {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		size := camera.Size{Width: w, Height: h}
		if size.Area() == 0 || seenSize[size] {
			continue
		}
		seenSize[size] = true
		sizes = append(sizes, size)
	}
	sort.SliceStable(sizes, func(i, j int) bool {
		return sizes[i].Area() < sizes[j].Area()
	})

	return formats, sizes
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberPattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}
	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	mu          sync.Mutex
	devices     []string
	deviceInfos map[string]*DeviceInfo
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices ...string) *MockDiscovery {
	m := &MockDiscovery{deviceInfos: make(map[string]*DeviceInfo)}
	for _, device := range devices {
		m.AddDevice(device)
	}
	return m
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.devices...), nil
}

// IsDeviceAvailable はモックデバイスが利用可能かチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.deviceInfos[device]
	return ok
}

// GetDeviceInfo はモックデバイス情報のコピーを返す
func (m *MockDiscovery) GetDeviceInfo(_ context.Context, device string) (*DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, exists := m.deviceInfos[device]
	if !exists {
		return nil, fmt.Errorf("デバイスが見つかりません: %s", device)
	}

	result := *info
	result.Resolutions = append([]camera.Size(nil), info.Resolutions...)
	result.Formats = append([]string(nil), info.Formats...)
	return &result, nil
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deviceInfos[device]; ok {
		return
	}

	m.devices = append(m.devices, device)
	m.deviceInfos[device] = &DeviceInfo{
		Device: device,
		Name:   fmt.Sprintf("テストカメラ %d", len(m.devices)),
		Driver: "mock",
		Resolutions: []camera.Size{
			{Width: 640, Height: 480},
			{Width: 1280, Height: 720},
		},
		Formats: []string{"MJPG"},
	}
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.devices {
		if d == device {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	delete(m.deviceInfos, device)
}
