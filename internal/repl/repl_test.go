package repl

import (
	"bytes"
	"io"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/partyield/internal/compute"
	"github.com/obsidianstack/partyield/internal/config"
	"github.com/obsidianstack/partyield/pkg/types"
)

func newSession(t *testing.T) (*Session, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	var buf bytes.Buffer
	return New(*config.Default(), &buf), &buf
}

func TestNew_StartsFromDefaults(t *testing.T) {
	s, _ := newSession(t)
	p, n := s.Params()
	assert.Equal(t, types.Params{EI: 0.006, ES: 0.055, NX: 0.026, O: 0.012}, p)
	assert.Equal(t, compute.DefaultResolution, n)
}

func TestSet_UpdatesAndRecomputes(t *testing.T) {
	s, out := newSession(t)

	require.NoError(t, s.Exec("set nx 0.03"))
	p, _ := s.Params()
	assert.Equal(t, 0.03, p.NX)
	assert.Contains(t, out.String(), "nx=0.03")
	assert.Contains(t, out.String(), "suitable")
}

func TestSet_ClampsToSliderRange(t *testing.T) {
	s, out := newSession(t)

	require.NoError(t, s.Exec("set o 5"))
	p, _ := s.Params()
	assert.Equal(t, 0.06, p.O)
	assert.Contains(t, out.String(), "o clamped to 0.06")

	require.NoError(t, s.Exec("SET EI -1"))
	p, _ = s.Params()
	assert.Equal(t, 0.001, p.EI)
}

func TestSet_Errors(t *testing.T) {
	s, _ := newSession(t)
	for _, line := range []string{"set", "set nx", "set mu 1", "set nx abc", "set nx 1 2"} {
		assert.Error(t, s.Exec(line), line)
	}
}

func TestSet_RejectsNonFinite(t *testing.T) {
	s, out := newSession(t)
	for _, line := range []string{"set o NaN", "set es Inf", "set ei -inf", "set nx 1e400"} {
		assert.Error(t, s.Exec(line), line)
	}
	p, _ := s.Params()
	assert.Equal(t, config.Default().Defaults.Params(), p)
	assert.NotContains(t, out.String(), "NaN")
	assert.ErrorIs(t, s.Exec("set o nan"), types.ErrNotFinite)
}

func TestResolution(t *testing.T) {
	s, _ := newSession(t)

	require.NoError(t, s.Exec("n 500"))
	_, n := s.Params()
	assert.Equal(t, 500, n)

	assert.Error(t, s.Exec("n 0"))
	assert.Error(t, s.Exec("n -3"))
	assert.Error(t, s.Exec("n many"))
	assert.Error(t, s.Exec("n 2000000"))
	_, n = s.Params()
	assert.Equal(t, 500, n, "failed commands must not change state")
}

func TestReset(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.Exec("set es 0.07"))
	require.NoError(t, s.Exec("n 100"))
	require.NoError(t, s.Exec("reset"))

	p, n := s.Params()
	assert.Equal(t, config.DefaultES, p.ES)
	assert.Equal(t, compute.DefaultResolution, n)
}

func TestShow_KnownScenario(t *testing.T) {
	s, out := newSession(t)
	require.NoError(t, s.Exec("show"))

	text := out.String()
	assert.Contains(t, text, "94.44 %")
	assert.Contains(t, text, "4.65 %")
	assert.Contains(t, text, "0.65 %")
	assert.Contains(t, text, compute.StateIncapable)
	assert.Contains(t, text, "envelope [")
}

func TestHelpAndExit(t *testing.T) {
	s, out := newSession(t)

	require.NoError(t, s.Exec("help"))
	assert.Contains(t, out.String(), "set <param> <value>")
	assert.Contains(t, out.String(), "o 0.001..0.06")

	assert.ErrorIs(t, s.Exec("exit"), io.EOF)
	assert.ErrorIs(t, s.Exec("quit"), io.EOF)
}

func TestExec_BlankAndUnknown(t *testing.T) {
	s, _ := newSession(t)
	assert.NoError(t, s.Exec("   "))
	assert.Error(t, s.Exec("frobnicate"))
}

func TestPrintAnalysis_Invalid(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	PrintAnalysis(&buf, compute.Analyze(types.Params{O: 0}, 100), 2)
	assert.Contains(t, buf.String(), "invalid:")
}
