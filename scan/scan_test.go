package scan

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayvan/automix/tracks"
	"github.com/stretchr/testify/assert"
)

func tempMusicDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "automix-scan")
	assert.NoError(t, err)

	for _, name := range []string{"one.mp3", "two.mp3", "notes.txt", "cover.jpg"} {
		assert.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	assert.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	assert.NoError(t, ioutil.WriteFile(filepath.Join(dir, "sub", "three.mp3"), []byte("x"), 0644))

	return dir
}

func TestFindAudioFilesRecursive(t *testing.T) {
	dir := tempMusicDir(t)
	defer os.RemoveAll(dir)

	files, err := findAudioFiles(dir, true)
	assert.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestFindAudioFilesFlat(t *testing.T) {
	dir := tempMusicDir(t)
	defer os.RemoveAll(dir)

	files, err := findAudioFiles(dir, false)
	assert.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestReadTagsFallsBackToFileName(t *testing.T) {
	dir, err := ioutil.TempDir("", "automix-tags")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "My Great Song.mp3")
	assert.NoError(t, ioutil.WriteFile(path, []byte("not really audio"), 0644))

	track := &tracks.Track{}
	readTags(path, track)
	assert.Equal(t, "My Great Song", track.Title)
}

func TestScanRejectsNonDirectory(t *testing.T) {
	dir, err := ioutil.TempDir("", "automix-file")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "file.mp3")
	assert.NoError(t, ioutil.WriteFile(file, []byte("x"), 0644))

	s := NewScanner(nil)
	_, err = s.Scan(file, true, nil)
	assert.Error(t, err)

	_, err = s.Scan(filepath.Join(dir, "missing"), true, nil)
	assert.Error(t, err)
}
