package memory

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrProcessNotFound is returned when no running process matches the name.
var ErrProcessNotFound = errors.New("process not found")

type Process struct {
	Name string
	Exe  string
	PID  int32
}

// FindProcess returns the first running process whose name or executable
// base name matches name, case-insensitively.
func FindProcess(name string) (Process, error) {
	procs, err := FindProcesses(name)
	if err != nil {
		return Process{}, err
	}
	if len(procs) == 0 {
		return Process{}, fmt.Errorf("%w: %s", ErrProcessNotFound, name)
	}
	return procs[0], nil
}

// FindProcesses lists every running process matching name.
func FindProcesses(name string) ([]Process, error) {
	all, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var processes []Process
	for _, p := range all {
		procName, err := p.Name()
		if err != nil {
			continue
		}
		exe, _ := p.Exe()
		if matchesProcessName(name, procName, exe) {
			processes = append(processes, Process{Name: procName, Exe: exe, PID: p.Pid})
		}
	}
	return processes, nil
}

// matchesProcessName compares against the short name as well as the exe
// path, since the kernel truncates comm to 15 bytes.
func matchesProcessName(want, procName, exe string) bool {
	if want == "" {
		return false
	}
	if strings.EqualFold(procName, want) {
		return true
	}
	return exe != "" && strings.EqualFold(filepath.Base(exe), want)
}
