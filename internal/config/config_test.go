package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "graphorm.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const sample = `
databases:
  - name: reports
    dialect: postgres
    dsn: postgres://localhost/reports
    order: 2
    update: false
    audit: true
  - name: main
    dialect: sqlite
    dsn: "file::memory:"
    order: 1
log:
  level: debug
`

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)
	require.Len(t, cfg.Databases, 2)

	rep := cfg.Databases[0]
	assert.True(t, rep.Readable)
	assert.True(t, rep.Writable)
	assert.False(t, rep.Update)
	assert.True(t, rep.Audit)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "default kept when the file is silent")

	ordered := cfg.Ordered()
	assert.Equal(t, "main", ordered[0].Name)
	assert.Equal(t, "reports", ordered[1].Name)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GRAPHORM_LOG_LEVEL", "WARN")
	t.Setenv("GRAPHORM_LOG_FORMAT", "json")
	t.Setenv("GRAPHORM_DSN", "reports:postgres://u:p@db:5432/reports?sslmode=disable")

	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "postgres://u:p@db:5432/reports?sslmode=disable", cfg.Databases[0].DSN)
	assert.Equal(t, "file::memory:", cfg.Databases[1].DSN)

	assert.Equal(t, hclog.Warn, cfg.Log.NewLogger("graphorm").GetLevel())
}

func TestLoadRejectsUnknownDSNTarget(t *testing.T) {
	t.Setenv("GRAPHORM_DSN", "nowhere:sqlite://x")
	_, err := Load(writeFile(t, sample))
	require.ErrorContains(t, err, `unknown database "nowhere"`)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"duplicate names": `
databases:
  - {name: a, dialect: sqlite, dsn: x}
  - {name: a, dialect: sqlite, dsn: y}
`,
		"unknown dialect": `
databases:
  - {name: a, dialect: oracle, dsn: x}
`,
		"missing dsn": `
databases:
  - {name: a, dialect: sqlite}
`,
		"no databases": `
log: {level: info}
`,
		"bad driver": `
databases:
  - {name: a, dialect: postgres, dsn: x, driver: odbc}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			require.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read config")
}
