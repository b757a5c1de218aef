// Package archive opens JAR (ZIP) archives and exposes the class artifacts
// they contain.
//
// Opening an archive reads every entry into memory and closes the file, so
// a Handle never holds an OS resource and can be shared freely between
// goroutines once returned. Content is sniffed with
// github.com/gabriel-vasile/mimetype before parsing, and entries are read
// with github.com/klauspost/compress/zip, a drop-in replacement for
// archive/zip with a faster inflater.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"

	"github.com/shinji-kodama/classlens/internal/model"
)

const (
	// maxEntrySize caps how many bytes are read from a single entry.
	// Class files are rarely larger than a few hundred KiB; the cap
	// protects against decompression bombs.
	maxEntrySize = 64 << 20

	// zipMIME is the MIME type every accepted archive must descend from.
	// mimetype reports JARs as "application/jar", a child of ZIP.
	zipMIME = "application/zip"
)

// Handle is an opened archive. It is immutable after Open returns.
type Handle struct {
	name     string
	source   string
	entries  []string
	data     map[string][]byte
	manifest Manifest
}

// Open reads the archive at sourcePath.
//
// It fails with model.ErrContainerOpen when the file cannot be read, is not
// a ZIP-family archive, or is corrupt. Failures never leave partial state
// behind: either a complete Handle is returned or nothing.
func Open(sourcePath string) (*Handle, error) {
	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrContainerOpen, sourcePath, err)
	}

	h, err := FromBytes(model.ContainerNameFromPath(sourcePath), raw)
	if err != nil {
		return nil, err
	}
	h.source = sourcePath
	return h, nil
}

// FromBytes parses an in-memory archive registered under name. It is used
// by Open and by the HTTP server for uploaded archives.
func FromBytes(name string, raw []byte) (*Handle, error) {
	if !isZip(raw) {
		return nil, fmt.Errorf("%w: %s: not a zip/jar archive (detected %s)",
			model.ErrContainerOpen, name, mimetype.Detect(raw).String())
	}

	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrContainerOpen, name, err)
	}

	h := &Handle{
		name: name,
		data: make(map[string][]byte, len(reader.File)),
	}

	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if _, dup := h.data[f.Name]; dup {
			// Duplicate entry names are legal in ZIP files; the JVM
			// class loader uses the first one, so do the same.
			continue
		}
		content, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: entry %s: %v", model.ErrContainerOpen, name, f.Name, err)
		}
		h.entries = append(h.entries, f.Name)
		h.data[f.Name] = content
	}

	if mf, ok := h.data[ManifestPath]; ok {
		h.manifest = ParseManifest(mf)
	}

	return h, nil
}

// isZip reports whether raw is a ZIP or one of its descendants (JAR, WAR,
// APK ...) according to mimetype's detection tree.
func isZip(raw []byte) bool {
	for m := mimetype.Detect(raw); m != nil; m = m.Parent() {
		if m.Is(zipMIME) {
			return true
		}
	}
	return false
}

// readEntry reads a single entry fully, enforcing maxEntrySize.
func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(content) > maxEntrySize {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxEntrySize)
	}
	return content, nil
}

// Name returns the container name derived from the source file name.
func (h *Handle) Name() string {
	return h.name
}

// Source returns the filesystem path the archive was opened from, or ""
// for archives parsed from memory.
func (h *Handle) Source() string {
	return h.source
}

// Entries returns every non-directory entry name in archive order.
func (h *Handle) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Classes returns the class-file entries in archive order.
func (h *Handle) Classes() []string {
	var out []string
	for _, e := range h.entries {
		if model.IsClassPath(e) {
			out = append(out, e)
		}
	}
	return out
}

// ReadClass returns the bytes stored at path. It fails with
// model.ErrEntryNotFound when the archive has no such entry.
func (h *Handle) ReadClass(path string) ([]byte, error) {
	content, ok := h.data[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", model.ErrEntryNotFound, path, h.name)
	}
	return content, nil
}

// Manifest returns the parsed META-INF/MANIFEST.MF main section. It is
// empty when the archive has no manifest.
func (h *Handle) Manifest() Manifest {
	return h.manifest
}

// MainClass returns the archive path of the manifest Main-Class, or ""
// when the attribute is missing.
func (h *Handle) MainClass() string {
	mainClass := h.manifest.Get(AttrMainClass)
	if mainClass == "" {
		return ""
	}
	return model.ClassPathFromName(mainClass)
}

// Container converts the handle into the domain model. The handle itself
// serves as the container's ClassReader.
func (h *Handle) Container() *model.Container {
	c := model.NewContainer(h.name, h.entries, h)
	c.Source = h.source
	c.MainClass = h.MainClass()
	return c
}

// Packages returns the distinct package paths of the archive's classes,
// sorted. Root-level classes contribute no package.
func (h *Handle) Packages() []string {
	seen := make(map[string]struct{})
	for _, p := range h.Classes() {
		idx := strings.LastIndex(p, model.PathSeparator)
		if idx == -1 {
			continue
		}
		seen[p[:idx]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
