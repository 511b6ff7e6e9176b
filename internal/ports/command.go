package ports

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	ps "github.com/mitchellh/go-ps"
)

// CommandProber asks the operating system's socket listing tool which
// process owns a port (lsof on unix, netstat on windows). Parsing that
// tool's text output depends on its column layout and locale; prefer
// BindProber unless the listing tool is known to behave.
type CommandProber struct {
	Log logr.Logger
}

// InUse reports a port as taken only when the tool names an owning process.
// A tool failure or empty output counts as free.
func (c CommandProber) InUse(ctx context.Context, port int) bool {
	owner, ok := c.Owner(ctx, port)
	if !ok {
		return false
	}
	c.Log.V(1).Info("port owned by another process", "port", port, "pid", owner.PID, "executable", owner.Executable)
	return true
}

// Owner describes the process listening on a port
type Owner struct {
	PID        int    `json:"pid"`
	Executable string `json:"executable,omitempty"`
}

// Owner returns the first process listening on port
func (c CommandProber) Owner(ctx context.Context, port int) (Owner, bool) {
	pids, err := listeningPIDs(ctx, port)
	if err != nil {
		c.Log.V(1).Info("port owner lookup failed, assuming free", "port", port, "error", err.Error())
		return Owner{}, false
	}
	if len(pids) == 0 {
		return Owner{}, false
	}

	owner := Owner{PID: pids[0]}
	if p, err := ps.FindProcess(owner.PID); err == nil && p != nil {
		owner.Executable = p.Executable()
	}
	return owner, true
}

// parsePIDList parses one pid per line, as printed by `lsof -t`
func parsePIDList(out string) []int {
	var pids []int
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if pid, err := strconv.Atoi(line); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}

// parseNetstat extracts the pids of LISTENING TCP sockets bound to port from
// `netstat -ano` output. Columns: Proto, Local Address, Foreign Address,
// State, PID.
func parseNetstat(out string, port int) []int {
	suffix := ":" + strconv.Itoa(port)

	var pids []int
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || !strings.EqualFold(fields[0], "TCP") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) || fields[3] != "LISTENING" {
			continue
		}
		if pid, err := strconv.Atoi(fields[4]); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}
