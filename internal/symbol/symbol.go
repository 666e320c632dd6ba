// Package symbol implements process-wide string interning.
//
// Interning is naive: it requires O(n) heap space to hold every distinct
// string seen so far, in exchange for O(1) equality checks and hashing on
// the returned Symbol. Interned strings are never freed; the backing
// memory is intentionally leaked for the process lifetime, matching the
// compiler's own working assumption that a compilation runs once and
// exits.
package symbol

import (
	deadlock "github.com/sasha-s/go-deadlock"
)

// Symbol is a dense integer handle for an interned string. Two symbols
// are equal if and only if the strings they were interned from are equal.
// Only the Interner that produced a Symbol can resolve it back to text.
type Symbol int

// Interner deduplicates strings into Symbols.
type Interner struct {
	mu    deadlock.Mutex
	index map[string]Symbol
	store []string
}

// NewInterner returns an empty Interner.
func NewInterner() *Interner {
	return &Interner{index: make(map[string]Symbol)}
}

// Intern stores s if not already cached and returns its Symbol.
func (in *Interner) Intern(s string) Symbol {
	in.mu.Lock()
	defer in.mu.Unlock()

	if id, ok := in.index[s]; ok {
		return id
	}

	id := Symbol(len(in.store))
	in.store = append(in.store, s)
	in.index[s] = id
	return id
}

// Resolve returns the string a Symbol was interned from.
// Panics if s is out of range for this Interner.
func (in *Interner) Resolve(s Symbol) string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.store[s]
}

// global is the process-wide interner used by every compiler pass. It is
// initialized once at package load and never torn down.
var global = NewInterner()

// Intern interns s in the global interner.
func Intern(s string) Symbol { return global.Intern(s) }

// Resolve resolves a Symbol produced by Intern.
func Resolve(s Symbol) string { return global.Resolve(s) }

// String implements fmt.Stringer by resolving against the global interner.
// Symbols produced by a private Interner should not be formatted this way.
func (s Symbol) String() string { return Resolve(s) }
