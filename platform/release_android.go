//go:build android

package platform

import (
	"context"
	"os/exec"
	"strings"
)

// Android keeps the user-visible release in a system property; gopsutil only sees the kernel.
func hostRelease(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "getprop", "ro.build.version.release").Output()
	if err == nil && strings.TrimSpace(string(out)) != "" {
		return string(out), nil
	}
	return gopsutilRelease(ctx)
}
