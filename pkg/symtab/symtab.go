package symtab

import (
	"debug/elf"
	"sort"

	"github.com/pkg/errors"
)

// SymTab holds the function symbols of one loaded module (the executable or
// a shared library), shifted to the module load base. The table is read-only
// once constructed; lookups are served with a binary search over the
// address-sorted symbol slice.
type SymTab struct {
	path string
	base uintptr
	syms []Symbol
	*SymTabOptions
}

// NewSymTab loads all function symbols of the object file at path, mapped at
// the given load base. Only entries that live in an executable section and
// carry the function symbol type are kept. Names are demangled when the
// demangler succeeds, otherwise the decorated name is retained.
func NewSymTab(path string, base uintptr, opts ...SymTabOption) (*SymTab, error) {
	if path == "" {
		return nil, ErrPathEmpty
	}

	tab := &SymTab{
		path:          path,
		base:          base,
		SymTabOptions: &SymTabOptions{},
	}
	for _, opt := range opts {
		opt(tab)
	}

	file, err := elf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open object file %s", path)
	}
	defer file.Close()

	if file.Type != elf.ET_EXEC && file.Type != elf.ET_DYN {
		return nil, errors.Wrapf(ErrNotObjectCode, "%s", path)
	}

	syms, err := file.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, errors.Wrapf(ErrStripped, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to read the symbol table of %s", path)
	}
	if len(syms) == 0 {
		return nil, errors.Wrapf(ErrStripped, "%s", path)
	}

	for _, sym := range syms {
		// Keep function symbols defined in executable sections.
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		if int(sym.Section) >= len(file.Sections) {
			continue
		}
		if file.Sections[sym.Section].Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}

		tab.syms = append(tab.syms, NewSymbol(base+uintptr(sym.Value), sym.Name))
	}
	if len(tab.syms) == 0 {
		return nil, errors.Wrapf(ErrNoFunctionSymbols, "%s", path)
	}

	sort.Slice(tab.syms, func(i, j int) bool {
		return tab.syms[i].Addr < tab.syms[j].Addr
	})

	if tab.logger != nil {
		tab.logger.Debug().
			Str("path", path).
			Uint64("base", uint64(base)).
			Int("symbols", len(syms)).
			Int("function_symbols", len(tab.syms)).
			Msg("loaded module symbol table")
	}

	return tab, nil
}

// NewFromSymbols builds a table from pre-resolved symbols. It serves backends
// other than the ELF loader and test fixtures; the input is sorted by address.
func NewFromSymbols(path string, base uintptr, syms []Symbol) *SymTab {
	tab := &SymTab{
		path:          path,
		base:          base,
		syms:          append([]Symbol(nil), syms...),
		SymTabOptions: &SymTabOptions{},
	}
	sort.Slice(tab.syms, func(i, j int) bool {
		return tab.syms[i].Addr < tab.syms[j].Addr
	})

	return tab
}

func (t *SymTab) Path() string {
	return t.path
}

func (t *SymTab) Base() uintptr {
	return t.base
}

// Size returns the number of function symbols in the table.
func (t *SymTab) Size() int {
	return len(t.syms)
}

// Symbols returns the address-ordered symbol slice. Callers must not mutate it.
func (t *SymTab) Symbols() []Symbol {
	return t.syms
}

// Lookup resolves an address to its symbol, matching the exact function
// entry point.
func (t *SymTab) Lookup(addr uintptr) (*Symbol, error) {
	i := sort.Search(len(t.syms), func(i int) bool {
		return t.syms[i].Addr >= addr
	})
	if i < len(t.syms) && t.syms[i].Addr == addr {
		return &t.syms[i], nil
	}

	return nil, ErrSymNotFound
}

// LookupName resolves a demangled name to its symbol, exact string match.
func (t *SymTab) LookupName(name string) (*Symbol, error) {
	for i := range t.syms {
		if t.syms[i].Name == name {
			return &t.syms[i], nil
		}
	}

	return nil, ErrSymNotFound
}

func (t *SymTab) AddrToName(addr uintptr) (string, error) {
	sym, err := t.Lookup(addr)
	if err != nil {
		return "", err
	}

	return sym.Name, nil
}

func (t *SymTab) NameToAddr(name string) (uintptr, error) {
	sym, err := t.LookupName(name)
	if err != nil {
		return 0, err
	}

	return sym.Addr, nil
}

// Exists reports whether addr is the entry point of a function in this table.
func (t *SymTab) Exists(addr uintptr) bool {
	_, err := t.Lookup(addr)
	return err == nil
}
