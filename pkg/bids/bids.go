// Package bids resolves selection queries against BIDS-organized imaging
// datasets into concrete file references for job inputs.
package bids

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
)

// entityKeys lists BIDS filename entity keys in specification order.
var entityKeys = []string{
	"sub", "ses", "task", "acq", "ce", "rec", "dir", "run",
	"mod", "echo", "flip", "inv", "mt", "part", "proc",
	"space", "split", "recording", "chunk",
}

var (
	entityPattern = regexp.MustCompile(`(?:^|_)(` + strings.Join(entityKeys, "|") + `)-([a-zA-Z0-9]+)`)
	niftiPattern  = regexp.MustCompile(`\.(nii\.gz|nii)$`)
	suffixPattern = regexp.MustCompile(`(?:^|_)([a-zA-Z0-9]+)$`)
	boldPattern   = regexp.MustCompile(`_bold\.(nii\.gz|nii)$`)
)

// ParsedName is a decomposed BIDS filename.
type ParsedName struct {
	Entities  map[string]string
	Suffix    string
	Extension string
}

// ParseFilename decomposes a NIfTI filename into entities, suffix and
// extension. Non-imaging or malformed names yield false.
func ParseFilename(filename string) (*ParsedName, bool) {
	m := niftiPattern.FindStringSubmatchIndex(filename)
	if m == nil {
		return nil, false
	}

	extension := filename[m[0]:]
	stem := filename[:m[0]]

	entities := make(map[string]string)
	lastEnd := 0
	for _, loc := range entityPattern.FindAllStringSubmatchIndex(stem, -1) {
		entities[stem[loc[2]:loc[3]]] = stem[loc[4]:loc[5]]
		lastEnd = loc[1]
	}

	suffixMatch := suffixPattern.FindStringSubmatch(stem[lastEnd:])
	if suffixMatch == nil {
		return nil, false
	}

	return &ParsedName{
		Entities:  entities,
		Suffix:    suffixMatch[1],
		Extension: extension,
	}, true
}

// SidecarPath returns the JSON sidecar path of a NIfTI file, if present.
func SidecarPath(niftiPath string) (string, bool) {
	jsonPath := niftiPattern.ReplaceAllString(niftiPath, ".json")
	if info, err := os.Stat(jsonPath); err == nil && !info.IsDir() {
		return jsonPath, true
	}
	return "", false
}

// EventsPath returns the events TSV paired with a BOLD NIfTI file, if
// present.
func EventsPath(niftiPath string) (string, bool) {
	if !boldPattern.MatchString(niftiPath) {
		return "", false
	}
	eventsPath := boldPattern.ReplaceAllString(niftiPath, "_events.tsv")
	if info, err := os.Stat(eventsPath); err == nil && !info.IsDir() {
		return eventsPath, true
	}
	return "", false
}

// readSidecarParams reads the named keys from a sidecar JSON file. Missing
// or unreadable sidecars yield nothing rather than failing resolution.
func readSidecarParams(path string, names []string) map[string]any {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil
	}

	params := make(map[string]any, len(names))
	for _, name := range names {
		if value, ok := all[name]; ok {
			params[name] = value
		}
	}
	return params
}

// snakeCase converts a camelCase sidecar key (RepetitionTime) to the
// snake_case form job inputs use (repetition_time).
func snakeCase(name string) string {
	var sb strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
