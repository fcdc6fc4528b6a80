// Package vars holds the substitution variables of a campaign and the engine
// that resolves them inside template files.
//
// A variable is a (name, value) pair whose name starts with Prefix. Template
// files reference variables by writing the bare name; the substitution engine
// replaces every reference and refuses to touch a file whose references are
// not all resolvable.
package vars

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/accsubmit/internal/errs"
)

// Prefix is the mandated start of every variable name and template token.
const Prefix = "VAR_"

// canonical upper-cases a name. Casers keep state, so one is made per call.
func canonical(name string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(name))
}

// Store is an ordered name→value mapping.
//
// Iteration order is first-definition order. Redefining a name keeps its
// position and replaces the value.
type Store struct {
	names  []string
	values map[string]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Define sets name to value. The name is upper-cased first and must then
// start with Prefix.
func (s *Store) Define(name, value string) error {
	key := canonical(name)
	if !strings.HasPrefix(key, Prefix) || len(key) == len(Prefix) {
		return errs.New(errs.InvalidName, "variable name %q should start with %s", name, Prefix)
	}
	if _, ok := s.values[key]; !ok {
		s.names = append(s.names, key)
	}
	s.values[key] = value
	return nil
}

// MustDefine is Define for names known to be valid at compile time.
func (s *Store) MustDefine(name, value string) {
	if err := s.Define(name, value); err != nil {
		panic(err)
	}
}

// Lookup returns the value stored under name.
func (s *Store) Lookup(name string) (string, bool) {
	v, ok := s.values[canonical(name)]
	return v, ok
}

// Names returns the variable names in iteration order.
func (s *Store) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of variables.
func (s *Store) Len() int {
	return len(s.names)
}

// Each calls fn for every variable in iteration order.
func (s *Store) Each(fn func(name, value string)) {
	for _, n := range s.names {
		fn(n, s.values[n])
	}
}

// Clone returns an independent copy of the store.
func (s *Store) Clone() *Store {
	c := NewStore()
	for _, n := range s.names {
		c.names = append(c.names, n)
		c.values[n] = s.values[n]
	}
	return c
}

// match resolves a token against the store: an exact name wins, otherwise
// the first name (in iteration order) contained in the token. It returns the
// token with the matched name replaced by its value.
//
// The exact lookup comes first on purpose: with VAR_A defined before VAR_AB,
// the token VAR_AB resolves to the value of VAR_AB, not to VAR_A's value
// followed by "B".
func (s *Store) match(token string) (string, bool) {
	if v, ok := s.values[token]; ok {
		return v, true
	}
	for _, n := range s.names {
		if strings.Contains(token, n) {
			return strings.ReplaceAll(token, n, s.values[n]), true
		}
	}
	return "", false
}
