package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetrpay/streampay/internal/payroll"
)

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig("testdata/streampay.cue")
	require.NoError(t, err)

	assert.Equal(t, "payroll.db", cfg.DB)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, payroll.Policy{
		InitialCustody: payroll.CustodyEmployee,
		Overflow:       payroll.OverflowReject,
		EmitExhausted:  true,
	}, cfg.Policy)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrCodeNotFound, cfgErr.Code)
}

func TestParseConfig_Partial(t *testing.T) {
	cfg, err := ParseConfig("partial.cue", []byte(`policy: overflow: "reject"`))
	require.NoError(t, err)

	assert.Empty(t, cfg.DB)
	assert.Equal(t, payroll.OverflowReject, cfg.Policy.Overflow)
	assert.Empty(t, cfg.Policy.InitialCustody)
	assert.False(t, cfg.Policy.EmitExhausted)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"unknown overflow", `policy: overflow: "wrap"`},
		{"unknown custody", `policy: initial_custody: "bank"`},
		{"unknown field", `database: "x.db"`},
		{"unknown log level", `log: level: "trace"`},
		{"wrong type", `policy: emit_exhausted: "yes"`},
		{"empty db", `db: ""`},
		{"syntax error", `db: "x.db`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig("bad.cue", []byte(tt.source))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %T: %v", err, err)
			assert.Equal(t, ErrCodeConfig, cfgErr.Code)
			assert.Equal(t, "bad.cue", cfgErr.Path)
		})
	}
}

func TestRootAppliesConfig(t *testing.T) {
	dir := t.TempDir()
	configuredDB := filepath.Join(dir, "configured.db")
	configPath := filepath.Join(dir, "streampay.cue")
	source := "db: \"" + filepath.ToSlash(configuredDB) + "\"\npolicy: initial_custody: \"employee\"\n"
	require.NoError(t, os.WriteFile(configPath, []byte(source), 0644))

	out, err := execute(t, "--config", configPath, "--format", "json",
		"create-stream", "--caller", "acme", "--employee", "bob", "--rate", "1", "--max-amount", "10")
	require.NoError(t, err)

	_, statErr := os.Stat(configuredDB)
	require.NoError(t, statErr, "config db should be used when --db is not set")

	rec := decodeRecord(t, out)
	assert.Equal(t, "bob", string(rec.Owner), "employee custody from config")
}

func TestRootFlagOverridesConfigDB(t *testing.T) {
	dir := t.TempDir()
	configuredDB := filepath.Join(dir, "configured.db")
	flagDB := filepath.Join(dir, "flag.db")
	configPath := filepath.Join(dir, "streampay.cue")
	require.NoError(t, os.WriteFile(configPath, []byte("db: \""+filepath.ToSlash(configuredDB)+"\"\n"), 0644))

	_, err := execute(t, "--config", configPath, "--db", flagDB, "height")
	require.NoError(t, err)

	_, statErr := os.Stat(flagDB)
	require.NoError(t, statErr)
	_, statErr = os.Stat(configuredDB)
	assert.True(t, os.IsNotExist(statErr))
}
