package svmconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	opts := cfg.MachineOptions()
	require.True(t, opts.JIT)
	require.Equal(t, 10, opts.HotThreshold)
	require.Nil(t, opts.Scramble.Secret)
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "shroud.toml")
	require.NoError(t, os.WriteFile(p, []byte(`
[vm]
jit = false
hot_threshold = 3
trace = 16

[cache]
members = 8

[encoding]
secret = "s3cret"

[store]
db = "progs.db"
seal_secret = "x"

[log]
level = "debug"
`), 0o644))
	cfg, err := Load(p)
	require.NoError(t, err)

	opts := cfg.MachineOptions()
	require.False(t, opts.JIT)
	require.Equal(t, 3, opts.HotThreshold)
	require.Equal(t, 16, opts.TraceSize)
	require.Equal(t, 8, opts.MemberCacheSize)
	// unset keys keep their defaults
	require.Equal(t, 1024, opts.ClassCacheSize)
	require.Equal(t, []byte("s3cret"), opts.Scramble.Secret)
	require.Equal(t, "progs.db", cfg.Store.DB)
	require.Equal(t, "x", cfg.Store.SealSecret)

	l, err := cfg.NewLogger()
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zap.DebugLevel))
}

func TestInvalid(t *testing.T) {
	type testCase struct {
		Name string
		Doc  string
	}
	tcs := []testCase{
		{Name: "Syntax", Doc: "[vm\n"},
		{Name: "HotThreshold", Doc: "[vm]\nhot_threshold = 0\n"},
		{Name: "NegativeTrace", Doc: "[vm]\ntrace = -1\n"},
		{Name: "CacheSize", Doc: "[cache]\nclasses = 0\n"},
		{Name: "LogLevel", Doc: "[log]\nlevel = \"loud\"\n"},
		{Name: "WrongType", Doc: "[vm]\njit = 3\n"},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := Parse([]byte(tc.Doc))
			require.Error(t, err)
		})
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
