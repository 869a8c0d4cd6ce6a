package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayvan/automix/analyze"
	"github.com/ayvan/automix/decoder"
	"github.com/ayvan/automix/helpers"
	"github.com/ayvan/automix/tracks"
	"github.com/bogem/id3v2"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
)

// ProgressCallback reports scan progress per file.
type ProgressCallback func(path string, index, total int)

// Scanner walks a music directory, analyzes new or changed files and upserts
// the records. Control plane only.
type Scanner struct {
	db *tracks.DB
}

func NewScanner(db *tracks.DB) *Scanner {
	return &Scanner{db: db}
}

// Scan analyzes every supported audio file under dir. Unsupported or broken
// files are logged and skipped. Returns the number of tracks with an
// up-to-date record after the run.
func (s *Scanner) Scan(dir string, recursive bool, callback ProgressCallback) (analyzed int, err error) {
	info, err := os.Stat(dir)
	if err != nil {
		err = fmt.Errorf("scan stat error: %s", err)
		return
	}
	if !info.IsDir() {
		err = fmt.Errorf("not a directory: %s", dir)
		return
	}

	files, err := findAudioFiles(dir, recursive)
	if err != nil {
		return
	}

	for i, path := range files {
		if callback != nil {
			callback(path, i, len(files))
		}

		fileInfo, statErr := os.Stat(path)
		if statErr != nil {
			logrus.Errorf("scan stat %s: %s", path, statErr)
			continue
		}
		mtime := fileInfo.ModTime().Unix()

		if !s.db.NeedsAnalysis(path, mtime) {
			analyzed++
			continue
		}

		track, procErr := s.ProcessTrack(path)
		if procErr != nil {
			logrus.Errorf("scan skip %s: %s", path, procErr)
			continue
		}

		track.FileModifiedAt = mtime
		if dbErr := s.db.UpsertTrack(track); dbErr != nil {
			logrus.Errorf("scan upsert %s: %s", path, dbErr)
			continue
		}
		analyzed++
	}

	if _, cleanupErr := s.db.CleanupMissing(helpers.FileExists); cleanupErr != nil {
		logrus.Errorf("scan cleanup: %s", cleanupErr)
	}

	return
}

// ProcessTrack decodes and analyzes one file into a track record.
func (s *Scanner) ProcessTrack(path string) (track *tracks.Track, err error) {
	buf, err := decoder.Decode(path)
	if err != nil {
		err = fmt.Errorf("decode error: %s", err)
		return
	}

	res, err := analyze.Analyze(buf)
	if err != nil {
		err = fmt.Errorf("analyze error: %s", err)
		return
	}

	track = &tracks.Track{
		FilePath:   path,
		AnalyzedAt: time.Now().Unix(),
	}
	res.Apply(track)
	readTags(path, track)
	track.SearchSlug = slug.Make(track.Artist + " " + track.Title)

	if err = track.Validate(); err != nil {
		track = nil
		return
	}

	return
}

// readTags fills title/artist/album from ID3 tags, falling back to the file
// name for the title.
func readTags(path string, track *tracks.Track) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err == nil {
		defer tag.Close()
		track.Title = strings.Trim(tag.Title(), "\x00 \n")
		track.Artist = strings.Trim(tag.Artist(), "\x00 \n")
		track.Album = strings.Trim(tag.Album(), "\x00 \n")
	} else {
		logrus.Debugf("no id3 tags in %s: %s", path, err)
	}

	if track.Title == "" {
		base := filepath.Base(path)
		track.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
}

func findAudioFiles(dir string, recursive bool) (files []string, err error) {
	if recursive {
		err = filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				logrus.Errorf("scan walk %s: %s", path, walkErr)
				return nil
			}
			if !info.IsDir() && helpers.IsAudioFile(info.Name()) {
				files = append(files, path)
			}
			return nil
		})
		return
	}

	entries, err := os.Open(dir)
	if err != nil {
		return
	}
	defer entries.Close()

	names, err := entries.Readdirnames(-1)
	if err != nil {
		return
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, statErr := os.Stat(path)
		if statErr != nil || info.IsDir() {
			continue
		}
		if helpers.IsAudioFile(name) {
			files = append(files, path)
		}
	}
	return
}
