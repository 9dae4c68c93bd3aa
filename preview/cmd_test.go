package preview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgxform/transform"
)

func TestCLICmdValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(path, samplePNG(t, 4, 4), 0o644))

	valid := func() *CLICmd {
		return &CLICmd{MaxUpload: 1 << 20, MaxPixels: 1 << 20, ColorBits: 24, Res: 100}
	}

	cmd := valid()
	assert.NoError(t, cmd.Validate(nil))
	assert.Empty(t, cmd.Open)

	t.Chdir(dir)
	cmd = valid()
	cmd.Open = "pic.png"
	require.NoError(t, cmd.Validate(nil))
	assert.True(t, filepath.IsAbs(cmd.Open))
	assert.Equal(t, "pic.png", filepath.Base(cmd.Open))

	cmd = valid()
	cmd.Open = dir
	assert.ErrorContains(t, cmd.Validate(nil), "is a directory")

	cmd = valid()
	cmd.MaxUpload = 0
	assert.ErrorContains(t, cmd.Validate(nil), "invalid upload limit")

	cmd = valid()
	cmd.MaxPixels = -1
	assert.ErrorContains(t, cmd.Validate(nil), "invalid pixel limit")

	cmd = valid()
	cmd.ColorBits = 4
	assert.ErrorIs(t, cmd.Validate(nil), transform.ErrInvalidColorBits)

	cmd = valid()
	cmd.Res = 0
	assert.ErrorIs(t, cmd.Validate(nil), transform.ErrInvalidRatio)
}
