package archive

import (
	"bufio"
	"bytes"
	"strings"
)

const (
	// ManifestPath is the location of the JAR manifest inside the archive.
	ManifestPath = "META-INF/MANIFEST.MF"

	// AttrMainClass names the entry-point class of an executable JAR.
	AttrMainClass = "Main-Class"
)

// Manifest holds the main-section attributes of a JAR manifest.
// Attribute names are case-insensitive per the JAR specification, so keys
// are stored lower-cased and looked up through Get.
type Manifest map[string]string

// Get returns the value of an attribute, or "" when absent.
func (m Manifest) Get(name string) string {
	if m == nil {
		return ""
	}
	return m[strings.ToLower(name)]
}

// ParseManifest parses the main section of a manifest.
//
// The format is "Name: value" lines; a line starting with a single space
// continues the previous value, and the first blank line ends the main
// section. Malformed lines are skipped rather than failing the whole
// archive.
func ParseManifest(data []byte) Manifest {
	m := Manifest{}
	scanner := bufio.NewScanner(bytes.NewReader(data))

	var lastKey string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, " ") {
			if lastKey != "" {
				m[lastKey] += line[1:]
			}
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			lastKey = ""
			continue
		}
		lastKey = strings.ToLower(strings.TrimSpace(name))
		m[lastKey] = strings.TrimPrefix(value, " ")
	}
	return m
}
