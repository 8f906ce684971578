package universal

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"slices"
)

// Returns the external symbols an object file defines.
type symbolFunc func(object []byte) []string

// Mach-O nlist type bits.
const (
	machoExternal = 0x01
	machoTypeMask = 0x0e
	machoStab     = 0xe0
)

// Returns the external symbols defined by a Mach-O or ELF object.
//
// Objects in any other format define nothing.
func objectSymbols(object []byte) []string {
	if f, err := macho.NewFile(bytes.NewReader(object)); err == nil {
		defer f.Close()
		if f.Symtab == nil {
			return nil
		}
		var out []string
		for _, s := range f.Symtab.Syms {
			if s.Type&machoStab != 0 || s.Type&machoExternal == 0 {
				continue
			}
			if s.Type&machoTypeMask != 0 && s.Sect != 0 {
				out = append(out, s.Name)
			}
		}
		return out
	}

	if f, err := elf.NewFile(bytes.NewReader(object)); err == nil {
		defer f.Close()
		syms, err := f.Symbols()
		if err != nil {
			return nil
		}
		var out []string
		for _, s := range syms {
			if elf.ST_BIND(s.Info) == elf.STB_GLOBAL && s.Section != elf.SHN_UNDEF && s.Name != "" {
				out = append(out, s.Name)
			}
		}
		return out
	}

	return nil
}

// Returns the symbols defined by more than one object, in lexical order.
func findDuplicateSymbols(contribs []contribution, symbols symbolFunc) []string {
	defined := make(map[string]int)
	for _, c := range contribs {
		for _, sym := range symbols(c.data) {
			defined[sym]++
		}
	}

	var dups []string
	for sym, n := range defined {
		if n > 1 {
			dups = append(dups, sym)
		}
	}
	slices.Sort(dups)
	return dups
}
