package infra

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/block_policy/internal/domain"
)

// GopsutilProbe implements domain.ProcessProbe using gopsutil.
// It only reads the process table; the engine decides, a client
// enforces.
type GopsutilProbe struct{}

// NewProcessProbe creates a process probe.
func NewProcessProbe() *GopsutilProbe {
	return &GopsutilProbe{}
}

// FindByName returns PIDs of processes matching the pattern (case-insensitive).
func (p *GopsutilProbe) FindByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []int
	patternLower := strings.ToLower(pattern)

	for _, proc := range procs {
		name, err := proc.Name()
		if err != nil {
			continue // Process may have exited
		}
		if strings.EqualFold(name, pattern) || strings.Contains(strings.ToLower(name), patternLower) {
			found = append(found, int(proc.Pid))
		}
	}

	return found, nil
}

// PresenceFor reports which of a rule's target apps currently have a
// matching running process. Status decoration only: the blocking
// decision itself never consults the process table.
func PresenceFor(probe domain.ProcessProbe, rule domain.BlockRule) []domain.AppPresence {
	var out []domain.AppPresence
	for _, app := range rule.TargetApps {
		pids, err := probe.FindByName(app)
		if err != nil || len(pids) == 0 {
			continue
		}
		out = append(out, domain.AppPresence{App: app, PIDs: pids})
	}
	return out
}

var _ domain.ProcessProbe = (*GopsutilProbe)(nil)
