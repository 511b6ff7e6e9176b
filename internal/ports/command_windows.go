//go:build windows

package ports

import (
	"context"
	"os/exec"
)

func listeningPIDs(ctx context.Context, port int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-ano", "-p", "tcp").Output()
	if err != nil {
		return nil, err
	}
	return parseNetstat(string(out), port), nil
}
