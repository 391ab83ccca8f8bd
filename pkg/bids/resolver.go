package bids

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skooran/nitest/pkg/infra/logger"
)

var (
	ErrDatasetNotFound = errors.New("dataset directory not found")
	ErrNoMatches       = errors.New("selection matched no files")
)

// FileRef is a typed file reference in resolved job inputs.
type FileRef struct {
	Class string `yaml:"class" json:"class"`
	Path  string `yaml:"path" json:"path"`
}

// Match is one dataset file that passed a selection.
type Match struct {
	Path        string
	Entities    map[string]string
	Suffix      string
	SidecarPath string
}

// Resolved holds job inputs in insertion order, so the emitted YAML is
// stable across runs.
type Resolved struct {
	keys   []string
	values map[string]any
}

func (r *Resolved) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

func (r *Resolved) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

func (r *Resolved) Keys() []string { return r.keys }

// FileCount totals the file references across all list-valued inputs.
func (r *Resolved) FileCount() int {
	n := 0
	for _, v := range r.values {
		if refs, ok := v.([]FileRef); ok {
			n += len(refs)
		}
	}
	return n
}

// Resolver resolves selection queries against one dataset root.
type Resolver struct {
	root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

// CheckDataset verifies the dataset root exists and returns a warning when
// the dataset descriptor file is absent.
func (r *Resolver) CheckDataset() (string, error) {
	info, err := os.Stat(r.root)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrDatasetNotFound, r.root)
	}

	descPath := filepath.Join(r.root, "dataset_description.json")
	if _, err := os.Stat(descPath); err != nil {
		return fmt.Sprintf("no dataset_description.json at %s, dataset may not be valid", r.root), nil
	}
	return "", nil
}

// Resolve evaluates every selection and assembles job inputs: file lists
// per selection key, paired events files, and lifted sidecar parameters.
// Selections are processed in sorted key order.
func (r *Resolver) Resolve(q *Query) (*Resolved, []string, error) {
	resolved := &Resolved{}
	var warnings []string

	keys := make([]string, 0, len(q.Selections))
	for key := range q.Selections {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		sel := q.Selections[key]

		matches, err := r.findMatches(sel)
		if err != nil {
			return nil, warnings, fmt.Errorf("selection %q: %w", key, err)
		}
		if len(matches) == 0 {
			return nil, warnings, fmt.Errorf(
				"%w: selection %q (datatype=%s suffix=%s) under %s",
				ErrNoMatches, key, sel.Datatype, sel.Suffix, r.root)
		}

		refs := make([]FileRef, len(matches))
		for i, m := range matches {
			refs[i] = FileRef{Class: "File", Path: m.Path}
		}
		resolved.Set(key, refs)

		if sel.IncludeEvents {
			var events []FileRef
			for _, m := range matches {
				if path, ok := EventsPath(m.Path); ok {
					events = append(events, FileRef{Class: "File", Path: path})
				} else {
					warnings = append(warnings, fmt.Sprintf("no events TSV paired with %s", filepath.Base(m.Path)))
				}
			}
			if len(events) > 0 {
				resolved.Set(key+"_events", events)
			}
		}

		if len(sel.ExtractSidecarParams) > 0 {
			// The first match's sidecar is taken as representative.
			params := readSidecarParams(matches[0].SidecarPath, sel.ExtractSidecarParams)
			for _, name := range sel.ExtractSidecarParams {
				if value, ok := params[name]; ok {
					resolved.Set(snakeCase(name), value)
				}
			}
		}
	}

	logger.Debug("dataset queries resolved", "inputs", len(resolved.Keys()), "files", resolved.FileCount())
	return resolved, warnings, nil
}

// findMatches walks the dataset for files passing one selection.
func (r *Resolver) findMatches(sel Selection) ([]Match, error) {
	if sel.Datatype == "" {
		return nil, fmt.Errorf("selection is missing the required datatype field")
	}

	subjectDirs, err := r.subjectDirs(sel.Subjects)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, subDir := range subjectDirs {
		for _, sesDir := range sessionDirs(subDir, sel.Sessions) {
			dtDir := filepath.Join(sesDir, sel.Datatype)
			entries, err := os.ReadDir(dtDir)
			if err != nil {
				continue
			}

			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				parsed, ok := ParseFilename(entry.Name())
				if !ok || !matchesSelection(parsed, sel) {
					continue
				}

				m := Match{
					Path:     filepath.Join(dtDir, entry.Name()),
					Entities: parsed.Entities,
					Suffix:   parsed.Suffix,
				}
				if sidecar, ok := SidecarPath(m.Path); ok {
					m.SidecarPath = sidecar
				}
				matches = append(matches, m)
			}
		}
	}
	return matches, nil
}

func (r *Resolver) subjectDirs(subjects Filter) ([]string, error) {
	if subjects.All || subjects.IsZero() {
		entries, err := os.ReadDir(r.root)
		if err != nil {
			return nil, fmt.Errorf("read dataset root: %w", err)
		}
		var dirs []string
		for _, entry := range entries {
			if entry.IsDir() && strings.HasPrefix(entry.Name(), "sub-") {
				dirs = append(dirs, filepath.Join(r.root, entry.Name()))
			}
		}
		sort.Strings(dirs)
		return dirs, nil
	}

	dirs := make([]string, 0, len(subjects.Values))
	for _, subID := range subjects.Values {
		dir := filepath.Join(r.root, subID)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("subject directory not found: %s", subID)
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

// sessionDirs returns the session directories to scan under a subject. A
// subject without session subdirectories keeps its datatype directories
// directly under the subject root.
func sessionDirs(subDir string, sessions Filter) []string {
	if sessions.All || sessions.IsZero() {
		entries, err := os.ReadDir(subDir)
		if err != nil {
			return nil
		}
		var dirs []string
		for _, entry := range entries {
			if entry.IsDir() && strings.HasPrefix(entry.Name(), "ses-") {
				dirs = append(dirs, filepath.Join(subDir, entry.Name()))
			}
		}
		if len(dirs) == 0 {
			return []string{subDir}
		}
		sort.Strings(dirs)
		return dirs
	}

	var dirs []string
	for _, sesID := range sessions.Values {
		dir := filepath.Join(subDir, sesID)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func matchesSelection(parsed *ParsedName, sel Selection) bool {
	if sel.Suffix != "" && parsed.Suffix != sel.Suffix {
		return false
	}
	if !sel.Task.IsZero() && !sel.Task.Matches(parsed.Entities["task"]) {
		return false
	}
	if !sel.Run.IsZero() && !sel.Run.Matches(parsed.Entities["run"]) {
		return false
	}
	if !sel.Acq.IsZero() && !sel.Acq.Matches(parsed.Entities["acq"]) {
		return false
	}
	return true
}

// WriteJobYAML serializes resolved inputs as a job YAML file, preserving
// insertion order.
func (r *Resolved) WriteJobYAML(path string) error {
	data, err := r.EncodeYAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// MarshalYAML renders the resolved inputs through an explicit mapping node
// so key order survives encoding.
func (r *Resolved) EncodeYAML() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range r.keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
		var valueNode yaml.Node
		if err := valueNode.Encode(r.values[key]); err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		root.Content = append(root.Content, keyNode, &valueNode)
	}
	return yaml.Marshal(root)
}
