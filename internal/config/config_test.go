package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/classlens/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.MaxContainers)
	assert.Equal(t, "outline", cfg.Decompiler.Backend)
	assert.Equal(t, time.Minute, time.Duration(cfg.Decompiler.Timeout))
}

// TestMergeFile_JSONC verifies comments and trailing commas are accepted
// and unspecified fields keep their defaults.
func TestMergeFile_JSONC(t *testing.T) {
	p := writeFile(t, "classlens.jsonc", `{
		// keep a few more archives around
		"maxContainers": 25,
		"decompiler": {
			"backend": "exec",
			"command": ["java", "-jar", "cfr.jar", "{}"], /* CFR */
			"timeout": "90s",
		},
	}`)

	cfg := Default()
	require.NoError(t, cfg.MergeFile(p))

	assert.Equal(t, 25, cfg.MaxContainers)
	assert.Equal(t, "exec", cfg.Decompiler.Backend)
	assert.Equal(t, []string{"java", "-jar", "cfr.jar", "{}"}, cfg.Decompiler.Command)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.Decompiler.Timeout))
	assert.Equal(t, "monokai", cfg.Highlight.Style, "unset fields keep defaults")
	assert.NoError(t, cfg.Validate())
}

func TestMergeFile_YAML(t *testing.T) {
	p := writeFile(t, "classlens.yaml", `
decompiler:
  backend: docker
  image: eclipse-temurin:21-jre
  command: [java, -jar, /opt/cfr.jar, "{}"]
  timeout: 2m
log:
  level: debug
server:
  addr: 127.0.0.1:9000
  archiveRoot: /srv/jars
`)

	cfg := Default()
	require.NoError(t, cfg.MergeFile(p))

	assert.Equal(t, "docker", cfg.Decompiler.Backend)
	assert.Equal(t, "eclipse-temurin:21-jre", cfg.Decompiler.Image)
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.Decompiler.Timeout))
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "/srv/jars", cfg.Server.ArchiveRoot)
	assert.NoError(t, cfg.Validate())
}

func TestMergeFile_Errors(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.MergeFile(filepath.Join(t.TempDir(), "missing.jsonc")))
	assert.Error(t, cfg.MergeFile(writeFile(t, "bad.json", `{"maxContainers": "many"}`)))
	assert.Error(t, cfg.MergeFile(writeFile(t, "bad.yaml", "decompiler: [")))
	assert.Error(t, cfg.MergeFile(writeFile(t, "bad.yml", "decompiler:\n  timeout: soon\n")))
}

// TestMergeEnv verifies CLASSLENS_* variables override file values and
// unset variables change nothing.
func TestMergeEnv(t *testing.T) {
	t.Setenv("CLASSLENS_MAX_CONTAINERS", "3")
	t.Setenv("CLASSLENS_DECOMPILER_BACKEND", "exec")
	t.Setenv("CLASSLENS_DECOMPILER_COMMAND", "javap,-c")
	t.Setenv("CLASSLENS_DECOMPILER_TIMEOUT", "5s")
	t.Setenv("CLASSLENS_LOG_LEVEL", "info")
	t.Setenv("CLASSLENS_SERVER_ARCHIVE_ROOT", "/srv/jars")

	cfg := Default()
	require.NoError(t, cfg.MergeEnv())

	assert.Equal(t, 3, cfg.MaxContainers)
	assert.Equal(t, "exec", cfg.Decompiler.Backend)
	assert.Equal(t, []string{"javap", "-c"}, cfg.Decompiler.Command)
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Decompiler.Timeout))
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/srv/jars", cfg.Server.ArchiveRoot)
	assert.True(t, cfg.Log.Development)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.MaxContainers = 0 }},
		{"unknown backend", func(c *Config) { c.Decompiler.Backend = "jadx" }},
		{"exec without command", func(c *Config) { c.Decompiler.Backend = "exec" }},
		{"docker without image", func(c *Config) {
			c.Decompiler.Backend = "docker"
			c.Decompiler.Command = []string{"cfr"}
		}},
		{"negative timeout", func(c *Config) { c.Decompiler.Timeout = Duration(-time.Second) }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad style", func(c *Config) { c.Highlight.Style = "no-such-style" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestLoad_Precedence verifies file < environment and the CLIError code.
func TestLoad_Precedence(t *testing.T) {
	p := writeFile(t, "classlens.json", `{"maxContainers": 20, "log": {"level": "error"}}`)
	t.Setenv("CLASSLENS_MAX_CONTAINERS", "4")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxContainers)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoad_InvalidConfig(t *testing.T) {
	bad := writeFile(t, "classlens.json", `{"maxContainers": -1}`)

	_, err := Load(bad)
	require.Error(t, err)
	assert.Equal(t, model.ExitInvalidConfig, model.ExitCodeFor(err))
}

func TestFindFile(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", FindFile(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "classlens.yaml"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classlens.jsonc"), nil, 0o644))
	assert.Equal(t, filepath.Join(dir, "classlens.jsonc"), FindFile(dir))
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Decompiler.Backend = "exec"
	cfg.Decompiler.Command = []string{"javap"}
	cfg.Log.Level = "debug"

	opts := cfg.DecompilerOptions()
	assert.Equal(t, "exec", opts.Backend)
	assert.Equal(t, []string{"javap"}, opts.Command)
	assert.Equal(t, time.Minute, opts.Timeout)

	logCfg := cfg.LoggingConfig()
	assert.Equal(t, "debug", logCfg.Level)
	assert.Equal(t, []string{"stderr"}, logCfg.OutputPaths)
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1m30s ")))
	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
