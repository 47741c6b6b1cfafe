//go:build darwin

package orchestrator

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// netstatSampler counts established TCP connections to the local listener
// ports by parsing netstat output. Exec-based on purpose: the counts feed
// a throughput heuristic, so a cheap point-in-time sample is enough.
type netstatSampler struct {
	run func(ctx context.Context) (string, error)
}

func newAccounting() Accounting {
	return &netstatSampler{run: runNetstat}
}

func runNetstat(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-an", "-p", "tcp").Output()
	return string(out), err
}

func (s *netstatSampler) ActiveConnections(socksPort, httpPort uint16) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := s.run(ctx)
	if err != nil {
		return 0, fmt.Errorf("netstat: %w", err)
	}
	return countEstablished(out, socksPort, httpPort), nil
}

// countEstablished counts ESTABLISHED rows whose local address is one of
// the listener ports. netstat on darwin prints addresses as
// 127.0.0.1.10808 (dot-separated port).
func countEstablished(out string, socksPort, httpPort uint16) int {
	socksSuffix := fmt.Sprintf(".%d", socksPort)
	httpSuffix := fmt.Sprintf(".%d", httpPort)

	count := 0
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "ESTABLISHED") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		local := fields[3]
		if strings.HasSuffix(local, socksSuffix) || strings.HasSuffix(local, httpSuffix) {
			count++
		}
	}
	return count
}
