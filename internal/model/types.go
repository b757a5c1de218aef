// Package model defines the domain types for the classlens CLI.
//
// The types in this package describe loaded archives (Container) and the
// class artifacts they hold (ClassEntry). They are shared by the registry,
// the namespace tree builder, the decompilation cache and the presentation
// layers, so they carry no behavior beyond naming helpers.
package model

import (
	"fmt"
	"path"
	"strings"
)

const (
	// ClassSuffix is the file suffix every class artifact path ends with.
	ClassSuffix = ".class"

	// PathSeparator separates segments of an archive-internal path.
	// ZIP entry names always use forward slashes regardless of platform.
	PathSeparator = "/"
)

// ClassReader resolves the raw bytes of a class artifact inside one
// container. The archive package provides the production implementation;
// tests use in-memory maps.
type ClassReader interface {
	// ReadClass returns the bytes stored at the archive-relative path.
	// It fails with ErrEntryNotFound when the path is not an entry.
	ReadClass(path string) ([]byte, error)
}

// ClassReaderFunc adapts a plain function to the ClassReader interface.
type ClassReaderFunc func(path string) ([]byte, error)

// ReadClass calls f(path).
func (f ClassReaderFunc) ReadClass(path string) ([]byte, error) {
	return f(path)
}

// Container identifies one loaded archive.
//
// A Container is created when an archive is opened and becomes owned by the
// registry once registered. After registration it is treated as immutable:
// the registry, the tree builder and the cache only read from it.
type Container struct {
	// Name is the unique registry key, derived from the source file name
	// (e.g. "lib.jar").
	Name string `json:"name" yaml:"name"`

	// Source is the filesystem path the archive was opened from.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// MainClass is the manifest Main-Class attribute converted to an
	// archive path (e.g. "com/acme/Main.class"). Empty when absent.
	MainClass string `json:"mainClass,omitempty" yaml:"mainClass,omitempty"`

	// Classes lists the class artifacts in archive enumeration order.
	Classes []ClassEntry `json:"classes" yaml:"classes"`

	// Reader fetches raw class bytes. It is nil for containers built
	// without byte data, in which case every read fails.
	Reader ClassReader `json:"-" yaml:"-"`
}

// NewContainer builds a Container from a name and a list of raw archive
// paths. Paths that do not end with ClassSuffix are skipped, so callers can
// pass a full entry listing.
func NewContainer(name string, paths []string, reader ClassReader) *Container {
	c := &Container{Name: name, Reader: reader}
	for _, p := range paths {
		if !IsClassPath(p) {
			continue
		}
		c.Classes = append(c.Classes, ClassEntry{Path: p, Container: name})
	}
	return c
}

// ReadClass reads the bytes of a class through the container's reader.
func (c *Container) ReadClass(path string) ([]byte, error) {
	if c.Reader == nil {
		return nil, fmt.Errorf("%w: %s in %s (container has no data)", ErrEntryNotFound, path, c.Name)
	}
	return c.Reader.ReadClass(path)
}

// DisplayName returns the name used for the container's node in the
// namespace tree. Dots are replaced with hyphens so "lib.jar" renders as
// "lib-jar" and cannot be mistaken for a package separator.
func (c *Container) DisplayName() string {
	return DisplayName(c.Name)
}

// DisplayName converts a container name into its tree display form.
func DisplayName(containerName string) string {
	return strings.ReplaceAll(containerName, ".", "-")
}

// ContainerNameFromPath derives the registry name of an archive from its
// filesystem path: the base file name, extension included.
func ContainerNameFromPath(sourcePath string) string {
	// filepath.Base would treat backslashes as separators only on Windows;
	// normalizing first gives the same answer everywhere.
	return path.Base(strings.ReplaceAll(sourcePath, "\\", "/"))
}

// ClassEntry is one class artifact inside a specific container.
//
// The path is unique within its container but not across containers: two
// containers may both hold "a/b/Foo.class". The pair (Container, Path) is
// the identity used by the tree and the decompilation cache.
type ClassEntry struct {
	// Path is the archive-relative path, always ending with ClassSuffix.
	Path string `json:"path" yaml:"path"`

	// Container is the name of the owning container.
	Container string `json:"container" yaml:"container"`
}

// SimpleName returns the class name without package and suffix
// ("com/acme/Foo.class" → "Foo").
func (e ClassEntry) SimpleName() string {
	return SimpleName(e.Path)
}

// PackagePath returns the slash-separated package of the class, or "" for
// a class at the archive root.
func (e ClassEntry) PackagePath() string {
	trimmed := strings.TrimSuffix(e.Path, ClassSuffix)
	idx := strings.LastIndex(trimmed, PathSeparator)
	if idx == -1 {
		return ""
	}
	return trimmed[:idx]
}

// BinaryName returns the dotted JVM name ("com/acme/Foo.class" → "com.acme.Foo").
func (e ClassEntry) BinaryName() string {
	return BinaryName(e.Path)
}

// String formats the entry as "container!path", the notation JAR URLs use.
func (e ClassEntry) String() string {
	return e.Container + "!" + e.Path
}

// IsClassPath reports whether an archive path names a class artifact.
// Directory entries ("com/acme/") and the bare suffix are rejected.
func IsClassPath(p string) bool {
	if strings.HasSuffix(p, PathSeparator) {
		return false
	}
	return strings.HasSuffix(p, ClassSuffix) && len(SimpleName(p)) > 0
}

// SimpleName strips package segments and the class suffix from a path.
func SimpleName(p string) string {
	trimmed := strings.TrimSuffix(p, ClassSuffix)
	if idx := strings.LastIndex(trimmed, PathSeparator); idx != -1 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// BinaryName converts an archive path to a dotted class name.
func BinaryName(p string) string {
	return strings.ReplaceAll(strings.TrimSuffix(p, ClassSuffix), PathSeparator, ".")
}

// ClassPathFromName converts a dotted or slashed class name to an archive
// path with the class suffix ("com.acme.Foo" → "com/acme/Foo.class").
// Names already ending with the suffix keep it.
func ClassPathFromName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasSuffix(name, ClassSuffix) {
		return name
	}
	return strings.ReplaceAll(name, ".", PathSeparator) + ClassSuffix
}
