//go:build linux

package utils

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/fkie-cad/yapscan/procIO"
	"golang.org/x/sys/unix"
)

// ErrProcessGone is returned once the target process no longer exists.
var ErrProcessGone = errors.New("process no longer exists")

// ProcessMemory reads another process's memory with process_vm_readv and
// lists its mappings through procIO. It never writes to the target.
type ProcessMemory struct {
	PID         int
	ProcessName string

	proc procIO.Process
}

func NewProcessMemory(pid int, name string) (*ProcessMemory, error) {
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, syscall.EPERM) {
		return nil, fmt.Errorf("process %d (%s): %w", pid, name, ErrProcessGone)
	}
	proc, err := procIO.OpenProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("open process %d (%s): %w", pid, name, err)
	}
	return &ProcessMemory{PID: pid, ProcessName: name, proc: proc}, nil
}

// ReadRaw copies size bytes starting at address. A short read is an error.
func (pm *ProcessMemory) ReadRaw(address uint64, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid read size %d", size)
	}
	buf := make([]byte, size)
	localIov := []unix.Iovec{{Base: &buf[0]}}
	localIov[0].SetLen(size)
	remoteIov := []unix.RemoteIovec{{Base: uintptr(address), Len: size}}

	n, err := unix.ProcessVMReadv(pm.PID, localIov, remoteIov, 0)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil, ErrProcessGone
		}
		return nil, fmt.Errorf("failed to read process memory at address 0x%X: %w", address, err)
	}
	if n != size {
		return nil, fmt.Errorf("short read at address 0x%X: %d of %d bytes", address, n, size)
	}
	return buf, nil
}

// Regions returns the current memory map of the process.
func (pm *ProcessMemory) Regions() ([]MemoryRegion, error) {
	segments, err := pm.proc.MemorySegments()
	if err != nil {
		if !pm.Alive() {
			return nil, ErrProcessGone
		}
		return nil, fmt.Errorf("list segments of process %d: %w", pm.PID, err)
	}
	return RegionsFromSegments(segments), nil
}

// Alive reports whether the process still exists.
func (pm *ProcessMemory) Alive() bool {
	err := unix.Kill(pm.PID, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (pm *ProcessMemory) Close() error {
	return pm.proc.Close()
}
