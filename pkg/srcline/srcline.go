// Package srcline translates a code address within a module into a
// "file:line" string using the module's DWARF line program, the native
// equivalent of piping addresses through addr2line.
package srcline

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Resolver maps a module path and a module-relative address to a source
// location. An empty string means the location is unknown; callers treat it
// like the addr2line "??:0" placeholder and omit the annotation.
type Resolver interface {
	Resolve(path string, addr uintptr) (string, error)
}

type lineEntry struct {
	addr uintptr
	file string
	line int
	end  bool
}

// DwarfResolver resolves source locations from on-disk DWARF line tables.
// Line data is parsed once per module and cached; the cache is safe for
// concurrent use.
type DwarfResolver struct {
	mu      sync.Mutex
	modules map[string][]lineEntry
	*DwarfResolverOptions
}

func NewDwarfResolver(opts ...DwarfResolverOption) *DwarfResolver {
	r := &DwarfResolver{
		modules:              make(map[string][]lineEntry),
		DwarfResolverOptions: &DwarfResolverOptions{},
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the "file:line" location of the module-relative address,
// or "" when the line table does not cover it.
func (r *DwarfResolver) Resolve(path string, addr uintptr) (string, error) {
	if path == "" {
		return "", ErrPathEmpty
	}

	entries, err := r.lines(path)
	if err != nil {
		return "", err
	}

	// Find the last row at or below addr; end-of-sequence rows mark holes.
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].addr > addr
	})
	if i == 0 {
		return "", nil
	}

	entry := entries[i-1]
	if entry.end {
		return "", nil
	}

	return fmt.Sprintf("%s:%d", filepath.Base(entry.file), entry.line), nil
}

func (r *DwarfResolver) lines(path string) ([]lineEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entries, ok := r.modules[path]; ok {
		return entries, nil
	}

	entries, err := loadLines(path)
	if err != nil {
		return nil, err
	}
	r.modules[path] = entries

	if r.logger != nil {
		r.logger.Debug().
			Str("path", path).
			Int("rows", len(entries)).
			Msg("loaded module line table")
	}

	return entries, nil
}

func loadLines(path string) ([]lineEntry, error) {
	file, err := elf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open object file %s", path)
	}
	defer file.Close()

	dw, err := file.DWARF()
	if err != nil {
		return nil, errors.Wrapf(ErrNoDebug, "%s: %v", path, err)
	}

	var entries []lineEntry

	reader := dw.Reader()
	for {
		cu, err := reader.Next()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to walk DWARF of %s", path)
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			reader.SkipChildren()
			continue
		}

		reader.SkipChildren()

		lr, err := dw.LineReader(cu)
		if err != nil || lr == nil {
			continue
		}

		var row dwarf.LineEntry
		for {
			err = lr.Next(&row)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read the line program of %s", path)
			}

			entry := lineEntry{
				addr: uintptr(row.Address),
				line: row.Line,
				end:  row.EndSequence,
			}
			if row.File != nil {
				entry.file = row.File.Name
			}

			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].addr < entries[j].addr
	})

	return entries, nil
}
