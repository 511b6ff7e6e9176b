//go:build !windows

package ports

import (
	"context"
	"os/exec"
	"strconv"
)

func listeningPIDs(ctx context.Context, port int) ([]int, error) {
	// lsof exits 1 when nothing matches, which is reported as an error here
	out, err := exec.CommandContext(ctx, "lsof", "-t", "-i", "TCP:"+strconv.Itoa(port), "-s", "TCP:LISTEN").Output()
	if err != nil {
		return nil, err
	}
	return parsePIDList(string(out)), nil
}
