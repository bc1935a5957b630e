// Package procinfo describes processes for diagnostics: the started child
// and the signals it may die from.
package procinfo

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Info is a snapshot of a running process.
type Info struct {
	PID        int32
	PPID       int32
	Name       string
	Cmdline    string
	Status     string
	CreateTime time.Time
}

// Describe takes a snapshot of pid. Fields that cannot be read (the process
// may already be gone) stay empty; only a missing process is an error.
func Describe(pid int32) (*Info, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("process not found: %w", err)
	}

	info := &Info{PID: pid}

	// Get name (may fail for short-lived processes)
	if name, err := p.Name(); err == nil {
		info.Name = name
	}
	if cmdline, err := p.Cmdline(); err == nil {
		info.Cmdline = cmdline
	}
	if ppid, err := p.Ppid(); err == nil {
		info.PPID = ppid
	}
	if status, err := p.Status(); err == nil && len(status) > 0 {
		info.Status = status[0]
	}
	if createTime, err := p.CreateTime(); err == nil {
		info.CreateTime = time.Unix(0, createTime*int64(time.Millisecond))
	}

	return info, nil
}

func (i *Info) String() string {
	if i.Cmdline != "" {
		return fmt.Sprintf("%d (%s)", i.PID, i.Cmdline)
	}
	if i.Name != "" {
		return fmt.Sprintf("%d (%s)", i.PID, i.Name)
	}
	return fmt.Sprintf("%d", i.PID)
}
