package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/skooran/nitest/pkg/descriptor"
	"github.com/skooran/nitest/pkg/stage"
)

var (
	ErrDescriptorNotFound = fmt.Errorf("descriptor not found")
	ErrSuiteNotFound      = fmt.Errorf("suite not found")
)

// Loader resolves descriptor and suite references. A reference containing a
// path separator or an extension is read from disk; a bare name is looked up
// in the embedded catalog.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

func isPathRef(name string) bool {
	return strings.ContainsRune(name, os.PathSeparator) ||
		strings.HasSuffix(name, ".json") ||
		strings.HasSuffix(name, ".yaml") ||
		strings.HasSuffix(name, ".yml")
}

// Load resolves a descriptor reference.
func (l *Loader) Load(name string) (*descriptor.Descriptor, error) {
	if isPathRef(name) {
		return descriptor.ParseFile(name)
	}

	d, err := descriptor.ParseFS(FS, "descriptors/"+name+".json")
	if err != nil {
		if _, statErr := fs.Stat(FS, "descriptors/"+name+".json"); statErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrDescriptorNotFound, name)
		}
		return nil, err
	}
	return d, nil
}

// LoadSuite resolves a suite reference.
func (l *Loader) LoadSuite(name string) (*stage.Suite, error) {
	if isPathRef(name) {
		return stage.ParseFile(name)
	}

	s, err := stage.ParseFS(FS, "suites/"+name+".yaml")
	if err != nil {
		if _, statErr := fs.Stat(FS, "suites/"+name+".yaml"); statErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrSuiteNotFound, name)
		}
		return nil, err
	}
	return s, nil
}

// Descriptors lists the embedded descriptor names.
func (l *Loader) Descriptors() []string {
	return embeddedNames("descriptors", ".json")
}

// Suites lists the embedded suite names.
func (l *Loader) Suites() []string {
	return embeddedNames("suites", ".yaml")
}

func embeddedNames(dir, ext string) []string {
	entries, err := fs.ReadDir(FS, dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if name, ok := strings.CutSuffix(entry.Name(), ext); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Images collects the distinct container images referenced by the embedded
// descriptors, for preflight pulls.
func (l *Loader) Images() []string {
	seen := make(map[string]bool)
	var images []string

	for _, name := range l.Descriptors() {
		d, err := l.Load(name)
		if err != nil || d.ContainerImg == nil || d.ContainerImg.Image == "" {
			continue
		}
		if !seen[d.ContainerImg.Image] {
			seen[d.ContainerImg.Image] = true
			images = append(images, d.ContainerImg.Image)
		}
	}
	sort.Strings(images)
	return images
}
