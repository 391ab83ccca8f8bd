package validate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skooran/nitest/pkg/nifti"
	"github.com/skooran/nitest/pkg/stage"
)

func writeVolume(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	hdr := nifti.Header{Dim: [8]int16{3, 2, 2, 2}, Datatype: nifti.DTFloat32}
	require.NoError(t, nifti.WriteVolume(path, hdr, make([]float64, 8)))
}

func outcomeFor(outcomes []Outcome, artifact, check string) *Outcome {
	for i := range outcomes {
		if outcomes[i].Artifact == artifact && outcomes[i].Check == check {
			return &outcomes[i]
		}
	}
	return nil
}

func TestValidate_AllChecksPass(t *testing.T) {
	dir := t.TempDir()
	writeVolume(t, filepath.Join(dir, "fa.nii.gz"))

	v := NewValidator()
	outcomes := v.Validate(context.Background(), dir, []stage.OutputDecl{
		{ID: "fa", Path: "fa.nii.gz", NonEmpty: true, HeaderCheck: true},
	})

	require.Len(t, outcomes, 3)
	assert.True(t, AllPass(outcomes))
}

func TestValidate_MissingArtifactShortCircuitsOnlyItself(t *testing.T) {
	dir := t.TempDir()
	writeVolume(t, filepath.Join(dir, "present.nii.gz"))

	v := NewValidator()
	outcomes := v.Validate(context.Background(), dir, []stage.OutputDecl{
		{ID: "gone", Path: "gone.nii.gz", NonEmpty: true, HeaderCheck: true},
		{ID: "present", Path: "present.nii.gz", NonEmpty: true},
	})

	// Missing artifact yields a single failed existence check, no dependent
	// checks; the sibling is evaluated independently.
	gone := outcomeFor(outcomes, "gone", CheckExists)
	require.NotNil(t, gone)
	assert.False(t, gone.Pass)
	assert.Nil(t, outcomeFor(outcomes, "gone", CheckNonEmpty))
	assert.Nil(t, outcomeFor(outcomes, "gone", CheckHeader))

	present := outcomeFor(outcomes, "present", CheckNonEmpty)
	require.NotNil(t, present)
	assert.True(t, present.Pass)
	assert.False(t, AllPass(outcomes))
}

func TestValidate_EmptyFileFailsNonEmptyOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), nil, 0o644))

	v := NewValidator()
	outcomes := v.Validate(context.Background(), dir, []stage.OutputDecl{
		{ID: "empty", Path: "empty.txt", NonEmpty: true},
	})

	assert.True(t, outcomeFor(outcomes, "empty", CheckExists).Pass)
	ne := outcomeFor(outcomes, "empty", CheckNonEmpty)
	require.NotNil(t, ne)
	assert.False(t, ne.Pass)
	assert.Contains(t, ne.Message, "empty")
}

func TestValidate_FlattenedFallback(t *testing.T) {
	dir := t.TempDir()
	// Declared at FA/fa.nii.gz but the runner flattened it into the root.
	writeVolume(t, filepath.Join(dir, "fa.nii.gz"))

	v := NewValidator()
	outcomes := v.Validate(context.Background(), dir, []stage.OutputDecl{
		{ID: "fa", Path: "FA/fa.nii.gz", HeaderCheck: true},
	})

	exists := outcomeFor(outcomes, "fa", CheckExists)
	require.NotNil(t, exists)
	assert.True(t, exists.Pass)
	assert.Equal(t, filepath.Join(dir, "fa.nii.gz"), exists.Path)
	assert.True(t, outcomeFor(outcomes, "fa", CheckHeader).Pass)
}

func TestValidate_DirectoryArtifact(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "FA")
	writeVolume(t, filepath.Join(sub, "subject1_FA.nii.gz"))

	v := NewValidator()

	t.Run("non-empty directory passes", func(t *testing.T) {
		outcomes := v.Validate(context.Background(), dir, []stage.OutputDecl{
			{ID: "fa_dir", Path: "FA", Dir: true, NonEmpty: true},
		})
		assert.True(t, AllPass(outcomes))
	})

	t.Run("empty directory fails non-empty", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "MD"), 0o755))
		outcomes := v.Validate(context.Background(), dir, []stage.OutputDecl{
			{ID: "md_dir", Path: "MD", Dir: true, NonEmpty: true},
		})
		ne := outcomeFor(outcomes, "md_dir", CheckNonEmpty)
		require.NotNil(t, ne)
		assert.False(t, ne.Pass)
	})

	t.Run("file where directory declared is a miss", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notadir"), []byte("x"), 0o644))
		outcomes := v.Validate(context.Background(), dir, []stage.OutputDecl{
			{ID: "d", Path: "notadir", Dir: true},
		})
		assert.False(t, outcomeFor(outcomes, "d", CheckExists).Pass)
	})
}

func TestValidate_CorruptHeader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.nii"), []byte("not a nifti header"), 0o644))

	v := NewValidator()
	outcomes := v.Validate(context.Background(), dir, []stage.OutputDecl{
		{ID: "bad", Path: "bad.nii", HeaderCheck: true},
	})

	assert.True(t, outcomeFor(outcomes, "bad", CheckExists).Pass)
	hdr := outcomeFor(outcomes, "bad", CheckHeader)
	require.NotNil(t, hdr)
	assert.False(t, hdr.Pass)
}

func TestValidate_OptionalMissingPasses(t *testing.T) {
	v := NewValidator()
	outcomes := v.Validate(context.Background(), t.TempDir(), []stage.OutputDecl{
		{ID: "maybe", Path: "maybe.nii.gz", Optional: true, NonEmpty: true},
	})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Pass)
	assert.Contains(t, outcomes[0].Message, "optional")
}
