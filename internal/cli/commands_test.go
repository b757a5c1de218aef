package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/classlens/internal/browser"
	"github.com/shinji-kodama/classlens/internal/model"
	"github.com/shinji-kodama/classlens/internal/nstree"
	"github.com/shinji-kodama/classlens/internal/testutil"
)

// execute runs the root command with args and captures its output.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// fixtureJars writes app.jar (with a manifest) and lib.jar.
func fixtureJars(t *testing.T) (app, lib string) {
	t.Helper()
	dir := t.TempDir()
	app = testutil.ClassJar(t, dir, "app.jar", "com.acme.Main",
		"com/acme/Main.class", "com/acme/util/Strings.class")
	lib = testutil.ClassJar(t, dir, "lib.jar", "", "org/lib/Util.class", "Top.class")
	return app, lib
}

func TestTreeCommand_Text(t *testing.T) {
	app, lib := fixtureJars(t)

	out, _, err := execute(t, "tree", app, lib)
	require.NoError(t, err)

	for _, want := range []string{"Classes", "app-jar", "lib-jar", "acme", "util", "Main.class", "Strings.class", "Top.class"} {
		assert.Contains(t, out, want)
	}
}

func TestTreeCommand_JSON(t *testing.T) {
	app, _ := fixtureJars(t)

	out, _, err := execute(t, "tree", "--json", app)
	require.NoError(t, err)

	var root nstree.Node
	require.NoError(t, json.Unmarshal([]byte(out), &root))
	assert.Equal(t, nstree.RootName, root.Name)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "app-jar", root.Children[0].Name)
	assert.Equal(t, 2, nstree.CountClasses(&root))
}

func TestTreeCommand_YAMLWithFilter(t *testing.T) {
	app, lib := fixtureJars(t)

	out, _, err := execute(t, "tree", "--format", "yaml", "--filter", "org/**", app, lib)
	require.NoError(t, err)

	assert.Contains(t, out, "name: Util")
	assert.Contains(t, out, "kind: class")
	assert.NotContains(t, out, "Main")
}

func TestTreeCommand_InvalidFormat(t *testing.T) {
	app, _ := fixtureJars(t)

	_, _, err := execute(t, "tree", "--format", "xml", app)
	require.Error(t, err)
	assert.Equal(t, model.ExitGeneralError, model.ExitCodeFor(err))
}

// TestTreeCommand_PartialFailure verifies that an unreadable archive is
// reported on stderr while the others are still shown.
func TestTreeCommand_PartialFailure(t *testing.T) {
	app, _ := fixtureJars(t)
	missing := t.TempDir() + "/missing.jar"

	out, stderr, err := execute(t, "tree", missing, app)
	require.NoError(t, err)
	assert.Contains(t, out, "app-jar")
	assert.Contains(t, stderr, "Warning: skipping")
	assert.Contains(t, stderr, "missing.jar")
}

func TestTreeCommand_AllFail(t *testing.T) {
	_, _, err := execute(t, "tree", t.TempDir()+"/missing.jar")
	require.Error(t, err)
	assert.Equal(t, model.ExitContainerOpenFailed, model.ExitCodeFor(err))
}

func TestListCommand(t *testing.T) {
	app, lib := fixtureJars(t)

	out, _, err := execute(t, "list", app, lib)
	require.NoError(t, err)
	assert.Contains(t, out, "app.jar")
	assert.Contains(t, out, "com/acme/Main.class")
	assert.Contains(t, out, "lib.jar")

	out, _, err = execute(t, "list", "--json", app)
	require.NoError(t, err)
	assert.JSONEq(t, `{"containers":[{"name":"app.jar","source":"`+jsonEscape(t, app)+`","classes":2,"packages":2,"mainClass":"com/acme/Main.class"}]}`, out)
}

// TestListCommand_Duplicate verifies the second copy of an archive is
// skipped and reported.
func TestListCommand_Duplicate(t *testing.T) {
	app, _ := fixtureJars(t)

	out, stderr, err := execute(t, "list", app, app)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("app.jar")))
	assert.Contains(t, stderr, "already registered")
}

func TestDecompileCommand(t *testing.T) {
	app, lib := fixtureJars(t)

	t.Run("binary name in first archive", func(t *testing.T) {
		out, _, err := execute(t, "decompile", app, lib, "--class", "com.acme.Main")
		require.NoError(t, err)
		assert.Contains(t, out, "package com.acme;")
		assert.Contains(t, out, "public class Main")
	})

	t.Run("explicit container", func(t *testing.T) {
		out, _, err := execute(t, "decompile", app, lib, "--container", "lib.jar", "--class", "org/lib/Util.class")
		require.NoError(t, err)
		assert.Contains(t, out, "public class Util")
	})

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "decompile", "--json", app, "--class", "com/acme/Main.class")
		require.NoError(t, err)

		var got decompileResultJSON
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "app.jar", got.Container)
		assert.Equal(t, "com/acme/Main.class", got.Path)
		assert.Contains(t, got.Source, "class Main")
		assert.Empty(t, got.Error)
	})

	t.Run("highlight", func(t *testing.T) {
		out, _, err := execute(t, "decompile", app, "--class", "com.acme.Main", "--highlight", "--style", "github")
		require.NoError(t, err)
		assert.Contains(t, out, "\x1b[")
		assert.Contains(t, out, "Main")
	})

	t.Run("class not found", func(t *testing.T) {
		_, _, err := execute(t, "decompile", app, "--class", "com.acme.Missing")
		require.Error(t, err)
		assert.Equal(t, model.ExitNotFound, model.ExitCodeFor(err))
	})

	t.Run("container not found", func(t *testing.T) {
		_, _, err := execute(t, "decompile", app, "--container", "other.jar", "--class", "com.acme.Main")
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrContainerNotFound))
	})

	t.Run("missing class flag", func(t *testing.T) {
		_, _, err := execute(t, "decompile", app)
		require.Error(t, err)
	})
}

// TestDecompileCommand_Failure verifies the placeholder is printed for a
// class the backend cannot process.
func TestDecompileCommand_Failure(t *testing.T) {
	bad := testutil.WriteJar(t, t.TempDir(), "bad.jar", map[string][]byte{
		"Broken.class": []byte("not a class file"),
	})

	out, _, err := execute(t, "decompile", bad, "--class", "Broken.class")
	require.Error(t, err)
	assert.Equal(t, model.ExitDecompileFailed, model.ExitCodeFor(err))
	assert.Equal(t, browser.ErrorPlaceholder+"\n", out)
}

func TestDecompileCommand_UnknownBackend(t *testing.T) {
	app, _ := fixtureJars(t)

	_, _, err := execute(t, "decompile", app, "--class", "com.acme.Main", "--backend", "magic")
	require.Error(t, err)
	assert.Equal(t, model.ExitInvalidConfig, model.ExitCodeFor(err))
}

func TestConfigFlag_Invalid(t *testing.T) {
	app, _ := fixtureJars(t)

	_, _, err := execute(t, "list", "--config", t.TempDir()+"/nope.yaml", app)
	require.Error(t, err)
	assert.Equal(t, model.ExitInvalidConfig, model.ExitCodeFor(err))
}

func TestPrintError(t *testing.T) {
	t.Cleanup(func() { jsonOutput = false })

	t.Run("text", func(t *testing.T) {
		jsonOutput = false
		var buf bytes.Buffer
		printError(&buf, model.WrapCLIError(model.ExitInvalidConfig, "invalid configuration", errors.New("bad level")))
		assert.Equal(t, "Error: invalid configuration: bad level\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		jsonOutput = true
		var buf bytes.Buffer
		printError(&buf, model.ErrClassNotFound)
		assert.JSONEq(t, `{"error":{"message":"`+model.ErrClassNotFound.Error()+`","code":4}}`, buf.String())
	})
}

func jsonEscape(t *testing.T, s string) string {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return string(data[1 : len(data)-1])
}
