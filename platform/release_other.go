//go:build !android

package platform

import "context"

func hostRelease(ctx context.Context) (string, error) {
	return gopsutilRelease(ctx)
}
