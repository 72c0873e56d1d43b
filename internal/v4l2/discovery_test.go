package v4l2

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camkit/internal/camera"
)

// fakeDevDir は video0, video1 を含むディレクトリを作る
func fakeDevDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	return dir
}

func TestParseFormats(t *testing.T) {
	formats, sizes := parseFormats(listFormats)
	assert.Equal(t, []string{"MJPG", "YUYV"}, formats)
	assert.Equal(t, []camera.Size{{Width: 640, Height: 480}, {Width: 1280, Height: 720}}, sizes)
}

func TestParseInfo(t *testing.T) {
	fields := parseInfo(deviceInfo)
	assert.Equal(t, "uvcvideo", fields["Driver name"])
	assert.Equal(t, "HD Webcam: HD Webcam", fields["Card type"])
}

func TestExtractDeviceNumber(t *testing.T) {
	assert.Equal(t, 12, extractDeviceNumber("/dev/video12"))
	assert.Equal(t, 0, extractDeviceNumber("/dev/null"))
}

func TestLinuxDiscovery_IsDeviceAvailable(t *testing.T) {
	ctx := context.Background()
	dir := fakeDevDir(t, "video0", "media0")
	discovery := &LinuxDiscovery{cmd: &fakeCommander{}, pattern: filepath.Join(dir, "video*")}

	assert.True(t, discovery.IsDeviceAvailable(ctx, filepath.Join(dir, "video0")))
	assert.False(t, discovery.IsDeviceAvailable(ctx, filepath.Join(dir, "video999")))
	assert.False(t, discovery.IsDeviceAvailable(ctx, filepath.Join(dir, "media0")))
}

func TestLinuxDiscovery_ScanSkipsSiblingChannels(t *testing.T) {
	ctx := context.Background()
	dir := fakeDevDir(t, "video1", "video0")
	discovery := &LinuxDiscovery{cmd: &fakeCommander{}, pattern: filepath.Join(dir, "video*")}

	devices, err := discovery.ScanDevices(ctx)
	require.NoError(t, err)
	// 同じカード名の video1 は video0 のチャンネルとして除外される
	assert.Equal(t, []string{filepath.Join(dir, "video0")}, devices)
}

func TestLinuxDiscovery_GetDeviceInfo(t *testing.T) {
	ctx := context.Background()
	dir := fakeDevDir(t, "video0")
	discovery := &LinuxDiscovery{cmd: &fakeCommander{}, pattern: filepath.Join(dir, "video*")}

	info, err := discovery.GetDeviceInfo(ctx, filepath.Join(dir, "video0"))
	require.NoError(t, err)
	assert.Equal(t, "HD Webcam: HD Webcam", info.Name)
	assert.Equal(t, "uvcvideo", info.Driver)
	assert.Equal(t, []string{"MJPG", "YUYV"}, info.Formats)
	assert.Equal(t, []camera.Size{{Width: 640, Height: 480}, {Width: 1280, Height: 720}}, info.Resolutions)

	_, err = discovery.GetDeviceInfo(ctx, filepath.Join(dir, "video5"))
	assert.Error(t, err)
}

func TestMockDiscovery(t *testing.T) {
	ctx := context.Background()
	discovery := NewMockDiscovery("/dev/video0", "/dev/video1")

	devices, err := discovery.ScanDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/video0", "/dev/video1"}, devices)

	assert.True(t, discovery.IsDeviceAvailable(ctx, "/dev/video0"))
	assert.False(t, discovery.IsDeviceAvailable(ctx, "/dev/video2"))

	info, err := discovery.GetDeviceInfo(ctx, "/dev/video0")
	require.NoError(t, err)
	assert.Equal(t, "/dev/video0", info.Device)
	assert.NotEmpty(t, info.Name)

	// コピーを返す
	info.Resolutions[0] = camera.Size{}
	again, err := discovery.GetDeviceInfo(ctx, "/dev/video0")
	require.NoError(t, err)
	assert.Equal(t, camera.Size{Width: 640, Height: 480}, again.Resolutions[0])

	discovery.AddDevice("/dev/video2")
	discovery.AddDevice("/dev/video2")
	devices, _ = discovery.ScanDevices(ctx)
	assert.Len(t, devices, 3)

	discovery.RemoveDevice("/dev/video1")
	assert.False(t, discovery.IsDeviceAvailable(ctx, "/dev/video1"))
	_, err = discovery.GetDeviceInfo(ctx, "/dev/video1")
	assert.Error(t, err)
}
