package vars

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/accsubmit/internal/errs"
)

const configMacro = `// VAR_GENERATOR selects the generator below
void Config()
{
  AliCDBManager::Instance()->SetDefaultStorage(VAR_OCDB_PATH);
  gener = VAR_GENERATOR();
  if ( VAR_OCDB_SNAPSHOT ) { LoadSnapshot(VAR_OCDB_SNAPSHOT); }
}
`

func newConfigStore() *Store {
	s := NewStore()
	s.MustDefine("VAR_OCDB_PATH", `"raw://"`)
	s.MustDefine("VAR_GENERATOR", "GenParamCustom")
	s.MustDefine("VAR_OCDB_SNAPSHOT", "kTRUE")
	return s
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSubstituteText_Complete(t *testing.T) {
	out, st := newConfigStore().SubstituteText(configMacro)

	assert.Equal(t, 4, st.Vars)
	assert.Equal(t, 4, st.Replaced)
	assert.True(t, st.Complete())
	assert.Empty(t, st.Unresolved)

	assert.Contains(t, out, `SetDefaultStorage("raw://")`)
	assert.Contains(t, out, "gener = GenParamCustom();")
	assert.Contains(t, out, "if ( kTRUE ) { LoadSnapshot(kTRUE); }")
	// comment lines are not rewritten
	assert.True(t, strings.HasPrefix(out, "// VAR_GENERATOR selects"))
}

func TestSubstituteText_PreservesTrailingNewline(t *testing.T) {
	out, _ := newConfigStore().SubstituteText("x = VAR_GENERATOR;\n")
	assert.Equal(t, "x = GenParamCustom;\n", out)
}

func TestSubstituteText_Unresolved(t *testing.T) {
	s := newConfigStore()
	out, st := s.SubstituteText("a = VAR_GENERATOR; b = VAR_MISSING; c = VAR_MISSING;")

	assert.Equal(t, 3, st.Vars)
	assert.Equal(t, 1, st.Replaced)
	assert.False(t, st.Complete())
	assert.Equal(t, []string{"VAR_MISSING"}, st.Unresolved)
	assert.Equal(t, "a = GenParamCustom; b = VAR_MISSING; c = VAR_MISSING;", out)
}

func TestSubstituteText_SubstringContainment(t *testing.T) {
	s := NewStore()
	s.MustDefine("VAR_PT", "1.0")

	// No exact match for VAR_PT_P0: the first stored name contained in the
	// token is replaced inside it.
	out, st := s.SubstituteText("f(VAR_PT_P0)")
	assert.Equal(t, 1, st.Vars)
	assert.Equal(t, 1, st.Replaced)
	assert.Equal(t, "f(1.0_P0)", out)
}

func TestSubstituteText_ExactMatchWinsOverContainment(t *testing.T) {
	s := NewStore()
	s.MustDefine("VAR_PT", "short")
	s.MustDefine("VAR_PT_P0", "exact")

	out, _ := s.SubstituteText("VAR_PT_P0 VAR_PT")
	assert.Equal(t, "exact short", out)
}

func TestSubstituteFile_Complete(t *testing.T) {
	path := writeFile(t, "Config.C", configMacro)

	st, err := newConfigStore().SubstituteFile(path)
	require.NoError(t, err)
	assert.Equal(t, st.Vars, st.Replaced)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, Tokens(string(data)), "no token may survive a successful substitution")
}

func TestSubstituteFile_FailureIsAtomic(t *testing.T) {
	content := configMacro + "  Int_t n = VAR_UNDEFINED;\n"
	path := writeFile(t, "Config.C", content)

	st, err := newConfigStore().SubstituteFile(path)
	require.Error(t, err)
	assert.True(t, errs.IsUnresolved(err))
	assert.Contains(t, err.Error(), "VAR_UNDEFINED")
	assert.Equal(t, 5, st.Vars)
	assert.Equal(t, 4, st.Replaced)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data), "file must be unchanged after a failed substitution")

	// no stray temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSubstituteFile_NoTokensNoWrite(t *testing.T) {
	path := writeFile(t, "validation.sh", "#!/bin/sh\nexit 0\n")
	before, err := os.Stat(path)
	require.NoError(t, err)

	st, err := NewStore().SubstituteFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Vars)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestSubstituteFile_KeepsMode(t *testing.T) {
	path := writeFile(t, "run.sh", "echo VAR_GENERATOR\n")
	require.NoError(t, os.Chmod(path, 0755))

	_, err := newConfigStore().SubstituteFile(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestHasVars(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"token", "x = VAR_A;", true},
		{"comment only", "// uses VAR_A\nx = 1;", false},
		{"indented comment", "   // VAR_A", false},
		{"none", "x = 1;", false},
		{"second line", "x = 1;\ny = VAR_B;", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasVarsText(tt.text))
		})
	}

	path := writeFile(t, "sim.C", "gener = VAR_GENERATOR;\n")
	has, err := HasVars(path)
	require.NoError(t, err)
	assert.True(t, has)

	_, err = HasVars(filepath.Join(t.TempDir(), "missing.C"))
	assert.Error(t, err)
}

func TestTokensAndMissing(t *testing.T) {
	text := "a(VAR_B, VAR_A);\n// VAR_C\nb(VAR_A2, VAR_B);"

	assert.Equal(t, []string{"VAR_B", "VAR_A", "VAR_A2"}, Tokens(text))

	s := NewStore()
	s.MustDefine("VAR_A", "1")
	assert.Equal(t, []string{"VAR_B", "VAR_A2"}, s.Missing(text))
}
