// Package platform reports the operating system name and release of the host.
package platform

import (
	"context"
	"errors"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

var ErrUnknownRelease = errors.New("platform: release unknown")

// Info is a display name plus release identifier, e.g. {"Android", "14"}.
type Info struct {
	Name    string
	Release string
}

func (i Info) String() string {
	return i.Name + " " + i.Release
}

// Accessor reads platform information.
type Accessor interface {
	PlatformInfo(ctx context.Context) (Info, error)
}

// Static always reports the same Info. Used for configuration overrides.
type Static Info

func (s Static) PlatformInfo(ctx context.Context) (Info, error) {
	return Info(s), nil
}

var displayNames = map[string]string{
	"android": "Android",
	"darwin":  "macOS",
	"ios":     "iOS",
	"linux":   "Linux",
	"windows": "Windows",
	"freebsd": "FreeBSD",
}

// DisplayName maps a GOOS value to the name shown to callers.
func DisplayName(goos string) string {
	if name, ok := displayNames[goos]; ok {
		return name
	}
	return goos
}

// HostAccessor reads the running system through gopsutil.
type HostAccessor struct {
	goos    string
	release func(ctx context.Context) (string, error)
}

func NewHostAccessor() *HostAccessor {
	return &HostAccessor{goos: runtime.GOOS, release: hostRelease}
}

func (h *HostAccessor) PlatformInfo(ctx context.Context) (Info, error) {
	info := Info{Name: DisplayName(h.goos)}
	release, err := h.release(ctx)
	if err != nil {
		return info, err
	}
	info.Release = strings.TrimSpace(release)
	if info.Release == "" {
		return info, ErrUnknownRelease
	}
	return info, nil
}

// gopsutilRelease prefers the distribution version and falls back to the kernel version.
func gopsutilRelease(ctx context.Context) (string, error) {
	_, _, version, err := host.PlatformInformationWithContext(ctx)
	if err == nil && strings.TrimSpace(version) != "" {
		return version, nil
	}
	kernel, kerr := host.KernelVersionWithContext(ctx)
	if kerr != nil {
		if err != nil {
			return "", err
		}
		return "", kerr
	}
	return kernel, nil
}
