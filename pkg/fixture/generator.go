// Package fixture materializes synthetic test input datasets.
//
// A fixture is keyed by its kind, which names a directory under the derived
// data root. Presence of the expected files is the cache key: once the files
// exist they are treated as immutable and reused across runs, content
// unchecked. Cleanup is external; the generator never deletes anything.
package fixture

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/skooran/nitest/pkg/config"
	"github.com/skooran/nitest/pkg/infra/logger"
	"github.com/skooran/nitest/pkg/nifti"
)

// Artifact names within a fixture.
const (
	ArtifactDWI  = "dwi"
	ArtifactMask = "mask"
	ArtifactBVal = "bval"
	ArtifactBVec = "bvec"
)

var ErrUnknownArtifact = fmt.Errorf("unknown fixture artifact")

// Paths locates the files of one materialized fixture.
type Paths struct {
	Kind string
	Dir  string
	DWI  string
	Mask string
	BVal string
	BVec string
}

// Artifact maps an artifact name to its path.
func (p Paths) Artifact(name string) (string, error) {
	switch name {
	case ArtifactDWI:
		return p.DWI, nil
	case ArtifactMask:
		return p.Mask, nil
	case ArtifactBVal:
		return p.BVal, nil
	case ArtifactBVec:
		return p.BVec, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownArtifact, name)
	}
}

func (p Paths) files() []string {
	return []string{p.DWI, p.Mask, p.BVal, p.BVec}
}

// Generator synthesizes multi-shell diffusion datasets on first reference.
type Generator struct {
	root string
	cfg  config.FixtureConfig
}

// NewGenerator creates a generator writing under root (the derived-data
// directory).
func NewGenerator(root string, cfg config.FixtureConfig) *Generator {
	return &Generator{root: root, cfg: cfg}
}

// pathsFor derives the fixed file set for a fixture kind.
func (g *Generator) pathsFor(kind string) Paths {
	dir := filepath.Join(g.root, kind)
	return Paths{
		Kind: kind,
		Dir:  dir,
		DWI:  filepath.Join(dir, "dwi.nii.gz"),
		Mask: filepath.Join(dir, "mask.nii.gz"),
		BVal: filepath.Join(dir, "dwi.bval"),
		BVec: filepath.Join(dir, "dwi.bvec"),
	}
}

// Ensure returns the paths for the fixture of the given kind, synthesizing
// the dataset when any expected file is absent. When all files are present
// it returns immediately without touching them (idempotent).
func (g *Generator) Ensure(ctx context.Context, kind string) (Paths, error) {
	if kind == "" {
		return Paths{}, fmt.Errorf("fixture kind is empty")
	}

	p := g.pathsFor(kind)

	if allPresent(p.files()) {
		logger.WithContext(ctx).Debug("fixture cache hit", "kind", kind, "dir", p.Dir)
		return p, nil
	}

	logger.WithContext(ctx).Info("synthesizing fixture", "kind", kind, "dir", p.Dir)

	// A failure to create the fixture directory or serialize the volumes is
	// a setup precondition failure, not a per-stage outcome.
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create fixture dir: %w", err)
	}

	if err := g.synthesize(p); err != nil {
		return Paths{}, fmt.Errorf("synthesize fixture %s: %w", kind, err)
	}
	return p, nil
}

func allPresent(paths []string) bool {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// gradientScheme is the acquisition layout: B0Count zero gradients followed
// by one block of unit-norm directions per shell.
type gradientScheme struct {
	bvals []float64
	dirs  [][3]float64
}

func (g *Generator) scheme(rng *rand.Rand) gradientScheme {
	n := g.cfg.B0Count + len(g.cfg.Shells)*g.cfg.DirsPerShell
	s := gradientScheme{
		bvals: make([]float64, 0, n),
		dirs:  make([][3]float64, 0, n),
	}

	for i := 0; i < g.cfg.B0Count; i++ {
		s.bvals = append(s.bvals, 0)
		s.dirs = append(s.dirs, [3]float64{0, 0, 0})
	}

	for _, b := range g.cfg.Shells {
		for i := 0; i < g.cfg.DirsPerShell; i++ {
			s.bvals = append(s.bvals, b)
			s.dirs = append(s.dirs, randomUnitVector(rng))
		}
	}
	return s
}

func randomUnitVector(rng *rand.Rand) [3]float64 {
	for {
		v := [3]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		norm := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
		if norm < 1e-8 {
			continue
		}
		return [3]float64{v[0] / norm, v[1] / norm, v[2] / norm}
	}
}

const (
	baselineSignal = 1000.0
	// Mean diffusivity of the decay model, in mm^2/s.
	diffusivity = 0.7e-3
	// Noise standard deviation as a fraction of local signal.
	noiseFraction = 0.05
)

func (g *Generator) synthesize(p Paths) error {
	rng := rand.New(rand.NewSource(g.cfg.Seed))
	scheme := g.scheme(rng)

	nx, ny, nz := g.cfg.Shape[0], g.cfg.Shape[1], g.cfg.Shape[2]
	nvol := len(scheme.bvals)
	nvox := nx * ny * nz

	// Monotonic decay over b plus signal-proportional noise, clipped at zero.
	signal := make([]float64, nvox*nvol)
	for v := 0; v < nvol; v++ {
		mean := baselineSignal * math.Exp(-scheme.bvals[v]*diffusivity)
		for i := 0; i < nvox; i++ {
			val := mean + rng.NormFloat64()*noiseFraction*mean
			if val < 0 {
				val = 0
			}
			signal[v*nvox+i] = val
		}
	}

	hdr := nifti.Header{
		Dim:      [8]int16{4, int16(nx), int16(ny), int16(nz), int16(nvol)},
		Datatype: nifti.DTFloat32,
		PixDim:   [8]float32{1, 2, 2, 2, 1},
	}
	if err := nifti.WriteVolume(p.DWI, hdr, signal); err != nil {
		return err
	}

	mask := make([]float64, nvox)
	for i := range mask {
		mask[i] = 1
	}
	maskHdr := nifti.Header{
		Dim:      [8]int16{3, int16(nx), int16(ny), int16(nz)},
		Datatype: nifti.DTUint8,
		PixDim:   [8]float32{1, 2, 2, 2},
	}
	if err := nifti.WriteVolume(p.Mask, maskHdr, mask); err != nil {
		return err
	}

	if err := writeBVal(p.BVal, scheme.bvals); err != nil {
		return err
	}
	return writeBVec(p.BVec, scheme.dirs)
}

// writeBVal writes one whitespace-delimited scalar per acquisition on a
// single row (FSL convention).
func writeBVal(path string, bvals []float64) error {
	fields := make([]string, len(bvals))
	for i, b := range bvals {
		fields[i] = strconv.FormatFloat(b, 'f', -1, 64)
	}
	return os.WriteFile(path, []byte(strings.Join(fields, " ")+"\n"), 0o644)
}

// writeBVec writes three rows (x, y, z components), one column per
// acquisition.
func writeBVec(path string, dirs [][3]float64) error {
	var sb strings.Builder
	for axis := 0; axis < 3; axis++ {
		for i, d := range dirs {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.FormatFloat(d[axis], 'f', 6, 64))
		}
		sb.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
