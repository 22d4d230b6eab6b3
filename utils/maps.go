package utils

import (
	"fmt"

	"github.com/fkie-cad/yapscan/procIO"
)

// MemoryRegion is one mapping of a process.
type MemoryRegion struct {
	Start  uint64
	End    uint64
	Perms  string
	Offset uint64
	Path   string
}

func (r MemoryRegion) Size() uint64     { return r.End - r.Start }
func (r MemoryRegion) Readable() bool   { return len(r.Perms) > 0 && r.Perms[0] == 'r' }
func (r MemoryRegion) Writable() bool   { return len(r.Perms) > 1 && r.Perms[1] == 'w' }
func (r MemoryRegion) Executable() bool { return len(r.Perms) > 2 && r.Perms[2] == 'x' }

// FileBacked reports whether the mapping has any pathname, including
// pseudo paths such as [heap] or [vdso].
func (r MemoryRegion) FileBacked() bool { return r.Path != "" }

func (r MemoryRegion) String() string {
	return fmt.Sprintf("%012x-%012x %s %q", r.Start, r.End, r.Perms, r.Path)
}

// RegionsFromSegments flattens the segments reported for a process into
// regions, one per innermost segment.
func RegionsFromSegments(segments []*procIO.MemorySegmentInfo) []MemoryRegion {
	regions := make([]MemoryRegion, 0, len(segments))
	for _, seg := range segments {
		if seg == nil {
			continue
		}
		if len(seg.SubSegments) > 0 {
			regions = append(regions, RegionsFromSegments(seg.SubSegments)...)
			continue
		}
		regions = append(regions, RegionFromSegment(seg))
	}
	return regions
}

func RegionFromSegment(seg *procIO.MemorySegmentInfo) MemoryRegion {
	start := uint64(seg.BaseAddress)
	return MemoryRegion{
		Start: start,
		End:   start + uint64(seg.Size),
		Perms: permString(seg.CurrentPermissions),
		Path:  seg.FilePath,
	}
}

// permString renders permissions the way /proc/<pid>/maps does, e.g. "r-xp".
func permString(p procIO.Permissions) string {
	perms := []byte("---p")
	if p.Read {
		perms[0] = 'r'
	}
	if p.Write || p.COW {
		perms[1] = 'w'
	}
	if p.Execute {
		perms[2] = 'x'
	}
	return string(perms)
}
