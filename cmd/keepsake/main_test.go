package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return cliResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

var fragmentLine = regexp.MustCompile(`Fragment ([AB]): (.+)`)

func fragments(t *testing.T, stderr string) (string, string) {
	t.Helper()
	found := map[string]string{}
	for _, m := range fragmentLine.FindAllStringSubmatch(stderr, -1) {
		found[m[1]] = strings.TrimSpace(m[2])
	}
	require.Len(t, found, 2, "recovery kit not printed: %s", stderr)
	return found["A"], found["B"]
}

func TestSealOpenRecover(t *testing.T) {
	dir := t.TempDir()
	secretFile := filepath.Join(dir, "assets.txt")
	vaultFile := filepath.Join(dir, "vault.json")
	require.NoError(t, os.WriteFile(secretFile, []byte("bank: 1234\nbroker: 5678\n"), 0o600))

	sealed := runCLI(t, "correct horse battery staple\n",
		"seal", "--in", secretFile, "--out", vaultFile, "--plan", "premium", "--password-stdin")
	require.NoError(t, sealed.err, sealed.stderr)
	a, b := fragments(t, sealed.stderr)
	assert.Len(t, strings.Fields(a), 12)
	assert.Len(t, strings.Fields(b), 12)

	vaultJSON, err := os.ReadFile(vaultFile)
	require.NoError(t, err)
	assert.NotContains(t, string(vaultJSON), "bank: 1234")
	assert.Contains(t, string(vaultJSON), `"plan": "premium"`)

	t.Run("open with the master password", func(t *testing.T) {
		res := runCLI(t, "correct horse battery staple\n", "open", "--in", vaultFile, "--password-stdin")
		require.NoError(t, res.err)
		assert.Equal(t, "bank: 1234\nbroker: 5678\n", res.stdout)
	})

	t.Run("open with a wrong password", func(t *testing.T) {
		res := runCLI(t, "wrong\n", "open", "--in", vaultFile, "--password-stdin")
		require.Error(t, res.err)
		assert.Empty(t, res.stdout)
	})

	t.Run("merge restores the mnemonic", func(t *testing.T) {
		res := runCLI(t, "", "merge", "--a", a, "--b", b)
		require.NoError(t, res.err)
		assert.Equal(t, a+" "+b, strings.TrimSpace(res.stdout))
	})

	t.Run("merge rejects swapped fragments", func(t *testing.T) {
		res := runCLI(t, "", "merge", "--a", b, "--b", a)
		require.Error(t, res.err)
		assert.Empty(t, res.stdout)
	})

	t.Run("recover returns the master password", func(t *testing.T) {
		res := runCLI(t, "", "recover", "--in", vaultFile, "--a", a, "--b", b)
		require.NoError(t, res.err)
		assert.Equal(t, "correct horse battery staple", strings.TrimSpace(res.stdout))
	})
}

func TestSeal_EmptyPassword(t *testing.T) {
	dir := t.TempDir()
	secretFile := filepath.Join(dir, "assets.txt")
	require.NoError(t, os.WriteFile(secretFile, []byte("x"), 0o600))

	res := runCLI(t, "\n", "seal", "--in", secretFile, "--password-stdin")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "master password must not be empty")
}

func TestOperatorCommands_RequireDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KEEPSAKE_CONFIG", "")

	res := runCLI(t, "", "sweep")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "DATABASE_URL")

	res = runCLI(t, "", "trigger", "not-a-uuid", "--operator", "x")
	require.Error(t, res.err)
}
