// Package testutil provides fixtures shared by the package tests: JAR
// archives built in memory and minimal but valid class files.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// JarBytes builds a ZIP archive from entry name → content. Entries are
// written in sorted name order unless order lists them explicitly, so
// fixtures are reproducible.
func JarBytes(t testing.TB, entries map[string][]byte, order ...string) []byte {
	t.Helper()

	if len(order) == 0 {
		for name := range entries {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range order {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// WriteJar writes a JAR built by JarBytes into dir and returns its path.
func WriteJar(t testing.TB, dir, name string, entries map[string][]byte, order ...string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, JarBytes(t, entries, order...), 0o644))
	return p
}

// ClassJar writes a JAR whose entries are class files generated by
// ClassFile for every given archive path, plus a manifest naming mainClass
// when it is not empty.
func ClassJar(t testing.TB, dir, name, mainClass string, paths ...string) string {
	t.Helper()

	entries := make(map[string][]byte, len(paths)+1)
	order := make([]string, 0, len(paths)+1)
	if mainClass != "" {
		entries["META-INF/MANIFEST.MF"] = []byte("Manifest-Version: 1.0\r\nMain-Class: " + mainClass + "\r\n\r\n")
		order = append(order, "META-INF/MANIFEST.MF")
	}
	for _, p := range paths {
		entries[p] = ClassFile(p)
		order = append(order, p)
	}
	return WriteJar(t, dir, name, entries, order...)
}
