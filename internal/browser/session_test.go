package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/classlens/internal/decompiler"
	"github.com/shinji-kodama/classlens/internal/metrics"
	"github.com/shinji-kodama/classlens/internal/model"
	"github.com/shinji-kodama/classlens/internal/nstree"
	"github.com/shinji-kodama/classlens/internal/testutil"
)

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestOnContainersLoaded_Scenario loads a JAR from disk and checks the
// tree and a decompilation.
func TestOnContainersLoaded_Scenario(t *testing.T) {
	dir := t.TempDir()
	jar := testutil.ClassJar(t, dir, "lib.jar", "com.acme.A",
		"com/acme/A.class", "com/acme/sub/B.class", "Top.class")

	s := newSession(t, Options{})
	report := s.OnContainersLoaded(context.Background(), []string{jar})

	require.NoError(t, report.Err())
	assert.Equal(t, []string{"lib.jar"}, report.Loaded)
	assert.False(t, s.IsEmpty())

	root := s.NamespaceTree()
	require.Len(t, root.Children, 1)
	assert.Equal(t, "lib-jar", root.Children[0].Name)
	require.NotNil(t, s.FindNode("lib-jar", "com", "acme", "sub", "B.class"))
	require.NotNil(t, s.FindNode("lib-jar", "Top.class"))

	c, err := s.Container("lib.jar")
	require.NoError(t, err)
	assert.Equal(t, "com/acme/A.class", c.MainClass)
	assert.Equal(t, jar, c.Source)

	text, err := s.OnClassSelected(context.Background(), "lib.jar", "com/acme/sub/B.class")
	require.NoError(t, err)
	assert.Contains(t, text, "package com.acme.sub;")
	assert.Contains(t, text, "public class B {")
}

// TestOnContainersLoaded_PartialFailure verifies one bad archive does not
// affect the others.
func TestOnContainersLoaded_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	good := testutil.ClassJar(t, dir, "good.jar", "", "A.class")
	missing := filepath.Join(dir, "missing.jar")

	s := newSession(t, Options{})
	report := s.OnContainersLoaded(context.Background(), []string{missing, good, good})

	assert.Equal(t, []string{"good.jar"}, report.Loaded)
	require.Len(t, report.Failures, 2)
	assert.ErrorIs(t, report.Failures[0].Err, model.ErrContainerOpen)
	assert.Equal(t, missing, report.Failures[0].Source)
	assert.ErrorIs(t, report.Failures[1].Err, model.ErrDuplicateContainer)
	assert.NotEmpty(t, report.Failures[1].Message)
	assert.ErrorIs(t, report.Err(), model.ErrContainerOpen)

	assert.Len(t, s.Containers(), 1)
}

// TestOnContainersLoaded_SamePathAcrossContainers verifies classes with
// identical paths stay distinct in both the tree and the cache.
func TestOnContainersLoaded_SamePathAcrossContainers(t *testing.T) {
	dir := t.TempDir()
	one := testutil.WriteJar(t, dir, "one.jar", map[string][]byte{
		"a/b/Foo.class": (&testutil.ClassBuilder{Name: "a/b/Foo", Access: testutil.AccPublic}).Bytes(),
	})
	two := testutil.WriteJar(t, dir, "two.jar", map[string][]byte{
		"a/b/Foo.class": (&testutil.ClassBuilder{Name: "a/b/Foo", Access: testutil.AccPublic | testutil.AccFinal}).Bytes(),
	})

	s := newSession(t, Options{})
	require.NoError(t, s.OnContainersLoaded(context.Background(), []string{one, two}).Err())

	n1 := s.FindNode("one-jar", "a", "b", "Foo.class")
	n2 := s.FindNode("two-jar", "a", "b", "Foo.class")
	require.NotNil(t, n1)
	require.NotNil(t, n2)
	assert.NotSame(t, n1, n2)

	src1, err := s.DecompiledText(context.Background(), n1.Container, n1.Path)
	require.NoError(t, err)
	src2, err := s.DecompiledText(context.Background(), n2.Container, n2.Path)
	require.NoError(t, err)
	assert.Contains(t, src1, "public class Foo")
	assert.Contains(t, src2, "public final class Foo")
}

// TestEviction_ForgetsCache verifies an evicted container disappears from
// the tree and its cache entries are dropped.
func TestEviction_ForgetsCache(t *testing.T) {
	dir := t.TempDir()
	a := testutil.ClassJar(t, dir, "a.jar", "", "A.class")
	b := testutil.ClassJar(t, dir, "b.jar", "", "B.class")

	m := metrics.New()
	s := newSession(t, Options{Capacity: 1, Metrics: m})

	require.NoError(t, s.OnContainersLoaded(context.Background(), []string{a}).Err())
	_, err := s.DecompiledText(context.Background(), "a.jar", "A.class")
	require.NoError(t, err)
	assert.Equal(t, 1, s.CacheStats().Entries)

	report := s.OnContainersLoaded(context.Background(), []string{b})
	assert.Equal(t, []string{"a.jar"}, report.Evicted)
	assert.Equal(t, 0, s.CacheStats().Entries)
	assert.Nil(t, s.FindNode("a-jar"))
	assert.NotNil(t, s.FindNode("b-jar"))

	_, err = s.DecompiledText(context.Background(), "a.jar", "A.class")
	assert.ErrorIs(t, err, model.ErrContainerNotFound)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.ContainersEvicted))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ContainersLoaded))
}

// TestReset verifies a full reset leaves an empty registry and a root
// without container children.
func TestReset(t *testing.T) {
	dir := t.TempDir()
	jar := testutil.ClassJar(t, dir, "lib.jar", "", "com/acme/A.class")

	s := newSession(t, Options{})
	require.NoError(t, s.OnContainersLoaded(context.Background(), []string{jar}).Err())
	_, err := s.DecompiledText(context.Background(), "lib.jar", "com/acme/A.class")
	require.NoError(t, err)

	s.Reset()

	assert.True(t, s.IsEmpty())
	root := s.NamespaceTree()
	assert.Equal(t, "Classes", root.Name)
	assert.Empty(t, root.Children)
	assert.Equal(t, 0, s.CacheStats().Entries)

	// The same archive can be loaded again afterwards.
	require.NoError(t, s.OnContainersLoaded(context.Background(), []string{jar}).Err())
}

// TestDecompileFailure_Placeholder verifies failures are cached and
// rendered as the placeholder text.
func TestDecompileFailure_Placeholder(t *testing.T) {
	dir := t.TempDir()
	jar := testutil.WriteJar(t, dir, "lib.jar", map[string][]byte{
		"Broken.class": []byte("not a class file"),
	})

	var calls atomic.Int32
	failing := decompiler.Func(func(ctx context.Context, p string, b []byte) (string, error) {
		calls.Add(1)
		return decompiler.NewOutline().Decompile(ctx, p, b)
	})

	s := newSession(t, Options{Decompiler: failing})
	require.NoError(t, s.OnContainersLoaded(context.Background(), []string{jar}).Err())

	_, err1 := s.OnClassSelected(context.Background(), "lib.jar", "Broken.class")
	_, err2 := s.OnClassSelected(context.Background(), "lib.jar", "Broken.class")
	require.ErrorIs(t, err1, model.ErrDecompile)
	assert.ErrorIs(t, err1, model.ErrInvalidClassFile)
	assert.Equal(t, err1, err2)
	assert.Equal(t, int32(1), calls.Load())

	text, err := Render("", err1)
	require.NoError(t, err)
	assert.Equal(t, ErrorPlaceholder, text)
}

func TestRender(t *testing.T) {
	text, err := Render("class A {}", nil)
	require.NoError(t, err)
	assert.Equal(t, "class A {}", text)

	_, err = Render("", model.ErrClassNotFound)
	assert.ErrorIs(t, err, model.ErrClassNotFound)
}

func TestLoadArchive(t *testing.T) {
	s := newSession(t, Options{})

	raw := testutil.JarBytes(t, map[string][]byte{"p/Q.class": testutil.ClassFile("p/Q.class")})
	report := s.LoadArchive("upload.jar", raw)
	require.NoError(t, report.Err())
	assert.NotNil(t, s.FindNode("upload-jar", "p", "Q.class"))

	report = s.LoadArchive("junk.jar", []byte("plain text"))
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, model.ErrContainerOpen)
}

func TestFilteredTree(t *testing.T) {
	dir := t.TempDir()
	jar := testutil.ClassJar(t, dir, "lib.jar", "", "com/acme/A.class", "org/x/X.class")

	s := newSession(t, Options{})
	require.NoError(t, s.OnContainersLoaded(context.Background(), []string{jar}).Err())

	root, err := s.FilteredTree("org/**")
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	require.Len(t, root.Children[0].Children, 1)
	assert.Equal(t, "org", root.Children[0].Children[0].Name)
}

func TestOnContainersLoaded_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	jar := testutil.ClassJar(t, dir, "lib.jar", "", "A.class")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newSession(t, Options{})
	report := s.OnContainersLoaded(ctx, []string{jar})
	require.Len(t, report.Failures, 1)
	assert.True(t, errors.Is(report.Err(), context.Canceled))
	assert.True(t, s.IsEmpty())
}

func TestNew_RejectsNegativeCapacity(t *testing.T) {
	_, err := New(Options{Capacity: -1})
	assert.Error(t, err)
}

// TestReset_ConcurrentWithSelectsAndLoads runs resets alongside selects,
// loads and tree reads. Every observation must match either a loaded or a
// cleared session: text is complete or the container is unknown, and a
// container node in the tree always carries all of its classes.
func TestReset_ConcurrentWithSelectsAndLoads(t *testing.T) {
	dir := t.TempDir()
	lib := testutil.ClassJar(t, dir, "lib.jar", "", "com/acme/A.class", "com/acme/sub/B.class")
	other := testutil.ClassJar(t, dir, "other.jar", "", "Top.class")
	wantClasses := map[string]int{"lib-jar": 2, "other-jar": 1}

	s := newSession(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.OnContainersLoaded(ctx, []string{lib, other}).Err())
	wantText, err := s.OnClassSelected(ctx, "lib.jar", "com/acme/A.class")
	require.NoError(t, err)

	const rounds = 200
	var (
		wg       sync.WaitGroup
		stop     atomic.Bool
		errMu    sync.Mutex
		failures []string
	)
	report := func(format string, args ...any) {
		errMu.Lock()
		defer errMu.Unlock()
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop.Store(true)
		for i := 0; i < rounds; i++ {
			s.Reset()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			r := s.OnContainersLoaded(ctx, []string{lib, other})
			for _, f := range r.Failures {
				if !errors.Is(f.Err, model.ErrDuplicateContainer) {
					report("load %s: %v", f.Source, f.Err)
				}
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				text, err := s.DecompiledText(ctx, "lib.jar", "com/acme/A.class")
				switch {
				case err == nil && text != wantText:
					report("partial text %q", text)
				case err != nil && !errors.Is(err, model.ErrContainerNotFound):
					report("select: %v", err)
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			root := s.NamespaceTree()
			for _, c := range root.Children {
				if got := nstree.CountClasses(c); got != wantClasses[c.Name] {
					report("container %s has %d classes, want %d", c.Name, got, wantClasses[c.Name])
				}
			}
		}
	}()

	wg.Wait()
	assert.Empty(t, failures)

	s.Reset()
	assert.True(t, s.IsEmpty())
	assert.Empty(t, s.NamespaceTree().Children)
	assert.Equal(t, 0, s.CacheStats().Entries)
}
