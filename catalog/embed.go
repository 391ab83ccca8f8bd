// Package catalog ships the built-in tool descriptors and test suites and
// resolves descriptor or suite references to parsed definitions.
package catalog

import "embed"

// FS contains the embedded descriptor JSON and suite YAML files.
//
//go:embed descriptors/*.json suites/*.yaml
var FS embed.FS
