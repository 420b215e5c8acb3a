package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	info, err := Static{Name: "Android", Release: "14"}.PlatformInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Android 14", info.String())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Android", DisplayName("android"))
	assert.Equal(t, "Linux", DisplayName("linux"))
	assert.Equal(t, "macOS", DisplayName("darwin"))
	assert.Equal(t, "plan9", DisplayName("plan9"))
}

func TestHostAccessorTrimsRelease(t *testing.T) {
	h := &HostAccessor{goos: "android", release: func(context.Context) (string, error) {
		return "14\n", nil
	}}
	info, err := h.PlatformInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Info{Name: "Android", Release: "14"}, info)
}

func TestHostAccessorEmptyRelease(t *testing.T) {
	h := &HostAccessor{goos: "android", release: func(context.Context) (string, error) {
		return "  ", nil
	}}
	_, err := h.PlatformInfo(context.Background())
	assert.ErrorIs(t, err, ErrUnknownRelease)
}

func TestHostAccessorPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	h := &HostAccessor{goos: "linux", release: func(context.Context) (string, error) {
		return "", boom
	}}
	_, err := h.PlatformInfo(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestHostAccessorRunningSystem(t *testing.T) {
	info, err := NewHostAccessor().PlatformInfo(context.Background())
	if err != nil {
		t.Skipf("host release unavailable: %v", err)
	}
	assert.NotEmpty(t, info.Name)
	assert.NotEmpty(t, info.Release)
}
