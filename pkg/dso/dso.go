// Package dso enumerates the dynamic shared objects mapped into a process
// address space, the information the tracer bootstrap needs to load their
// symbol tables at the right base.
package dso

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Segment is one mapped region of an object, addressed relative to the
// object's lowest mapping.
type Segment struct {
	// Vaddr is the segment virtual address relative to the object mapping.
	Vaddr uintptr

	// Offset is the file offset the segment was mapped from.
	Offset uintptr

	// Perms holds the permission column of the mapping (e.g. "r-xp").
	Perms string
}

func (s Segment) Executable() bool {
	return strings.Contains(s.Perms, "x")
}

// Object describes one shared object linked into the process.
type Object struct {
	// Path is the absolute path of the object file.
	Path string

	// Addr is the address of the object's lowest mapping.
	Addr uintptr

	// Segments lists the object's mappings in address order.
	Segments []Segment
}

// LoadBase returns the address the module was mapped at, the object address
// plus the virtual address of its first segment.
func (o Object) LoadBase() uintptr {
	if len(o.Segments) == 0 {
		return o.Addr
	}

	return o.Addr + o.Segments[0].Vaddr
}

// Iterator yields the objects loaded in an address space. The default
// implementation walks the proc filesystem; bootstrap accepts alternatives
// for processes that expose their link map differently.
type Iterator func() ([]Object, error)

// Maps entry format: address perms offset dev inode pathname.
var mapsLine = regexp.MustCompile(`^([0-9a-f]+)-([0-9a-f]+)\s+(\S+)\s+([0-9a-f]+)\s+\S+\s+\d+\s*(.*)$`)

// Self enumerates the shared objects of the calling process.
func Self() ([]Object, error) {
	return LoadedObjects(os.Getpid())
}

// LoadedObjects parses /proc/<pid>/maps and groups the file-backed mappings
// of each shared object. Pseudo entries (anonymous mappings, [vdso], [heap])
// are skipped.
func LoadedObjects(pid int) ([]Object, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	var (
		order   []string
		objects = make(map[string]*Object)
	)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		m := mapsLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}

		objPath := strings.TrimSpace(m[5])
		if objPath == "" || strings.HasPrefix(objPath, "[") {
			continue
		}

		start, err := strconv.ParseUint(m[1], 16, 64)
		if err != nil {
			continue
		}
		offset, _ := strconv.ParseUint(m[4], 16, 64)

		obj, ok := objects[objPath]
		if !ok {
			obj = &Object{Path: objPath, Addr: uintptr(start)}
			objects[objPath] = obj
			order = append(order, objPath)
		}

		obj.Segments = append(obj.Segments, Segment{
			Vaddr:  uintptr(start) - obj.Addr,
			Offset: uintptr(offset),
			Perms:  m[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	out := make([]Object, 0, len(order))
	for _, p := range order {
		out = append(out, *objects[p])
	}

	return out, nil
}
