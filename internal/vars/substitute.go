package vars

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/accsubmit/internal/errs"
)

// Stats counts token occurrences seen during a substitution.
type Stats struct {
	// Vars is the number of token occurrences encountered (nvars).
	Vars int

	// Replaced is the number of occurrences resolved against the store (nreplaced).
	Replaced int

	// Unresolved lists the distinct tokens that had no match, in first-seen order.
	Unresolved []string
}

// Complete reports whether every occurrence was resolved.
func (st Stats) Complete() bool {
	return st.Vars == st.Replaced
}

// isComment reports whether a line is a comment line. Comment lines are
// neither scanned nor rewritten.
func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), "//")
}

func isTokenByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// tokenEnd returns the end of the maximal token run starting at start.
func tokenEnd(line string, start int) int {
	i := start
	for i < len(line) && isTokenByte(line[i]) {
		i++
	}
	return i
}

// scanTokens calls fn with the start and end offsets of every token in line.
func scanTokens(line string, fn func(start, end int)) {
	i := 0
	for {
		j := strings.Index(line[i:], Prefix)
		if j < 0 {
			return
		}
		start := i + j
		end := tokenEnd(line, start)
		fn(start, end)
		i = end
	}
}

// HasVarsText reports whether any non-comment line of text contains Prefix.
func HasVarsText(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if !isComment(line) && strings.Contains(line, Prefix) {
			return true
		}
	}
	return false
}

// HasVars reports whether the file at path contains variable tokens.
func HasVars(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return HasVarsText(string(data)), nil
}

// Tokens returns the distinct tokens of text in first-seen order.
func Tokens(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if isComment(line) {
			continue
		}
		scanTokens(line, func(start, end int) {
			tok := line[start:end]
			if !seen[tok] {
				seen[tok] = true
				out = append(out, tok)
			}
		})
	}
	return out
}

// Missing returns the tokens of text that are not defined in the store.
func (s *Store) Missing(text string) []string {
	var out []string
	for _, tok := range Tokens(text) {
		if _, ok := s.values[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}

// SubstituteText replaces every resolvable token of text. Unresolvable tokens
// are left in place and reported in the returned Stats.
func (s *Store) SubstituteText(text string) (string, Stats) {
	var st Stats
	unresolved := make(map[string]bool)

	lines := strings.Split(text, "\n")
	for n, line := range lines {
		if isComment(line) || !strings.Contains(line, Prefix) {
			continue
		}
		var b strings.Builder
		last := 0
		scanTokens(line, func(start, end int) {
			tok := line[start:end]
			st.Vars++
			b.WriteString(line[last:start])
			if v, ok := s.match(tok); ok {
				st.Replaced++
				b.WriteString(v)
			} else {
				b.WriteString(tok)
				if !unresolved[tok] {
					unresolved[tok] = true
					st.Unresolved = append(st.Unresolved, tok)
				}
			}
			last = end
		})
		b.WriteString(line[last:])
		lines[n] = b.String()
	}

	return strings.Join(lines, "\n"), st
}

// SubstituteFile resolves the tokens of the file at path in place.
//
// The file is rewritten only when every occurrence was resolved; otherwise
// it is left untouched and an UnresolvedVariable error is returned.
func (s *Store) SubstituteFile(path string) (Stats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Stats{}, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, fmt.Errorf("read %s: %w", path, err)
	}

	out, st := s.SubstituteText(string(data))
	if st.Vars == 0 {
		return st, nil
	}
	if !st.Complete() {
		return st, errs.New(errs.UnresolvedVariable,
			"nvars=%d nreplaced=%d, unresolved %s",
			st.Vars, st.Replaced, strings.Join(st.Unresolved, ",")).WithPath(path)
	}

	if err := writeAtomic(path, []byte(out), info.Mode().Perm()); err != nil {
		return st, err
	}
	return st, nil
}

// writeAtomic replaces path through a temporary file in the same directory.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	name := tmp.Name()
	defer os.Remove(name) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
