package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("a/b/photo.JPG"))
	assert.True(t, IsImageFile("x.webp"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.False(t, IsImageFile("noext"))
}

func TestGenerateOutputFilename(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "bin_0_can.png"),
		GenerateOutputFilename("/tmp/bin.jpg", "out", "", "_0_can", "png"))
	assert.Equal(t, filepath.Join("out", "x_photo.jpg"),
		GenerateOutputFilename("photo.jpg", "out", "x_", "", ""))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	for _, name := range []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(sub, "c.png"),
	} {
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	}

	flat, err := ListImageFiles(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.jpg")}, flat)

	all, err := ListImageFiles(dir, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.jpg"), filepath.Join(sub, "c.png")}, all)

	_, err = ListImageFiles(filepath.Join(dir, "missing"), true)
	assert.Error(t, err)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(f, nil, 0o644))

	assert.True(t, FileExists(f))
	assert.False(t, FileExists(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(f))
	assert.False(t, FileExists(filepath.Join(dir, "nope")))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "aluminum_can", SanitizeFilename("Aluminum Can"))
	assert.Equal(t, "bag_of_chips", SanitizeFilename(" Bag/of chips. "))
	assert.Equal(t, "item", SanitizeFilename("  ??  "))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", FormatFileSize(2<<20))
}

func TestMirrorDir(t *testing.T) {
	root := filepath.Join("photos")
	tests := []struct {
		file string
		want string
	}{
		{filepath.Join("photos", "x.jpg"), "out"},
		{filepath.Join("photos", "a", "x.jpg"), filepath.Join("out", "a")},
		{filepath.Join("photos", "b", "c", "x.jpg"), filepath.Join("out", "b", "c")},
		{filepath.Join("elsewhere", "x.jpg"), "out"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MirrorDir(root, "out", tt.file), tt.file)
	}

	a := GenerateOutputFilename(filepath.Join("photos", "a", "x.jpg"), MirrorDir(root, "out", filepath.Join("photos", "a", "x.jpg")), "", "", "json")
	b := GenerateOutputFilename(filepath.Join("photos", "b", "x.jpg"), MirrorDir(root, "out", filepath.Join("photos", "b", "x.jpg")), "", "", "json")
	assert.NotEqual(t, a, b)
}
