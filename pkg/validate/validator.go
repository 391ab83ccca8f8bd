// Package validate inspects the artifacts a stage produced against its
// declared output contract. Every check is an independent outcome carried as
// data; rendering for humans happens at the CLI boundary.
package validate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/skooran/nitest/pkg/infra/logger"
	"github.com/skooran/nitest/pkg/nifti"
	"github.com/skooran/nitest/pkg/stage"
)

// Check kinds.
const (
	CheckExists   = "exists"
	CheckNonEmpty = "non_empty"
	CheckHeader   = "header"
)

// Outcome is one check result for one declared artifact.
type Outcome struct {
	Artifact string `json:"artifact"`
	Check    string `json:"check"`
	Pass     bool   `json:"pass"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message,omitempty"`
}

// AllPass reports whether every outcome passed.
func AllPass(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.Pass {
			return false
		}
	}
	return true
}

// Validator checks declared outputs under a stage's output directory.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate evaluates each declared output independently. A missing artifact
// fails its existence check and short-circuits only that artifact's
// dependent checks; sibling artifacts are still evaluated.
func (v *Validator) Validate(ctx context.Context, outputDir string, decls []stage.OutputDecl) []Outcome {
	var outcomes []Outcome

	for _, decl := range decls {
		outcomes = append(outcomes, v.validateOne(ctx, outputDir, decl)...)
	}
	return outcomes
}

func (v *Validator) validateOne(ctx context.Context, outputDir string, decl stage.OutputDecl) []Outcome {
	log := logger.WithContext(ctx)

	path, found := locate(outputDir, decl)
	if !found {
		if decl.Optional {
			return []Outcome{{
				Artifact: decl.ID,
				Check:    CheckExists,
				Pass:     true,
				Message:  "optional artifact absent",
			}}
		}
		log.Debug("artifact missing", "artifact", decl.ID, "declared", decl.Path)
		return []Outcome{{
			Artifact: decl.ID,
			Check:    CheckExists,
			Pass:     false,
			Message:  fmt.Sprintf("not found at %s (or flattened fallback)", filepath.Join(outputDir, decl.Path)),
		}}
	}

	outcomes := []Outcome{{
		Artifact: decl.ID,
		Check:    CheckExists,
		Pass:     true,
		Path:     path,
	}}

	if decl.NonEmpty {
		outcomes = append(outcomes, checkNonEmpty(decl, path))
	}
	if decl.HeaderCheck {
		outcomes = append(outcomes, checkHeader(decl, path))
	}
	return outcomes
}

// locate probes the declared location first, then the flattened fallback
// directly under the output directory. The artifact's file-vs-directory
// kind must match the declaration.
func locate(outputDir string, decl stage.OutputDecl) (string, bool) {
	candidates := []string{filepath.Join(outputDir, decl.Path)}
	if flat := filepath.Join(outputDir, filepath.Base(decl.Path)); flat != candidates[0] {
		candidates = append(candidates, flat)
	}

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil {
			continue
		}
		if info.IsDir() == decl.Dir {
			return c, true
		}
	}
	return "", false
}

func checkNonEmpty(decl stage.OutputDecl, path string) Outcome {
	size, err := artifactSize(path, decl.Dir)
	if err != nil {
		return Outcome{Artifact: decl.ID, Check: CheckNonEmpty, Pass: false, Path: path, Message: err.Error()}
	}
	if size == 0 {
		kind := "file"
		if decl.Dir {
			kind = "directory"
		}
		return Outcome{
			Artifact: decl.ID,
			Check:    CheckNonEmpty,
			Pass:     false,
			Path:     path,
			Message:  fmt.Sprintf("%s is empty", kind),
		}
	}
	return Outcome{Artifact: decl.ID, Check: CheckNonEmpty, Pass: true, Path: path}
}

// artifactSize is the file size, or for directories the total size of
// contained files.
func artifactSize(path string, dir bool) (int64, error) {
	if !dir {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}

	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// checkHeader parses the artifact's image header for structural validity.
// Content correctness is out of scope; a readable dimension block and a
// recognized datatype are enough.
func checkHeader(decl stage.OutputDecl, path string) Outcome {
	if !nifti.IsVolumePath(path) {
		return Outcome{
			Artifact: decl.ID,
			Check:    CheckHeader,
			Pass:     false,
			Path:     path,
			Message:  "header check declared on a non-volume artifact",
		}
	}

	hdr, err := nifti.ReadHeader(path)
	if err != nil {
		return Outcome{Artifact: decl.ID, Check: CheckHeader, Pass: false, Path: path, Message: err.Error()}
	}
	return Outcome{
		Artifact: decl.ID,
		Check:    CheckHeader,
		Pass:     true,
		Path:     path,
		Message:  fmt.Sprintf("%dD volume, datatype %d", hdr.NDim(), hdr.Datatype),
	}
}
