package tracks

import (
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

var ErrorNotFound = fmt.Errorf("not found")

// TrackStore is the read surface the matcher and mixer consume.
type TrackStore interface {
	Track(id int64) (*Track, error)
	Tracks() ([]*Track, error)
	Search(pattern string) ([]*Track, error)
}

var _ TrackStore = &DB{} // check interface implementation

type DB struct {
	db *gorm.DB
}

func NewDB(file string) (trackDB *DB, err error) {
	var db *gorm.DB
	db, err = gorm.Open("sqlite3", file)
	if err != nil {
		err = fmt.Errorf("failed to connect database: %s", err)
		return
	}

	if err = db.AutoMigrate(&Track{}, &Playlist{}).Error; err != nil {
		err = fmt.Errorf("failed to migrate database: %s", err)
		return
	}

	trackDB = &DB{
		db: db,
	}

	return
}

func (tdb *DB) DBClose() {
	tdb.db.Close()
}

func (tdb *DB) DB() *gorm.DB {
	return tdb.db
}

func (tdb *DB) Track(id int64) (res *Track, err error) {
	track := &Track{}
	dbRes := tdb.db.First(track, "id = ?", id)
	if dbRes.RecordNotFound() {
		err = ErrorNotFound
		return
	}
	if dbRes.Error != nil {
		err = dbRes.Error
		return
	}

	res = track

	return
}

func (tdb *DB) TrackByPath(path string) (res *Track, err error) {
	track := &Track{}
	dbRes := tdb.db.First(track, "file_path = ?", path)
	if dbRes.RecordNotFound() {
		err = ErrorNotFound
		return
	}
	if dbRes.Error != nil {
		err = dbRes.Error
		return
	}

	res = track

	return
}

func (tdb *DB) Tracks() (res []*Track, err error) {
	res = []*Track{}
	err = tdb.db.Find(&res).Error
	return
}

func (tdb *DB) CountTracks() (count int64, err error) {
	err = tdb.db.Model(&Track{}).Count(&count).Error
	return
}

// Search matches the pattern against title, artist, path and the slugified
// search key.
func (tdb *DB) Search(pattern string) (res []*Track, err error) {
	res = []*Track{}
	like := "%" + pattern + "%"
	err = tdb.db.
		Where("title LIKE ? OR artist LIKE ? OR file_path LIKE ? OR search_slug LIKE ?", like, like, like, like).
		Find(&res).Error
	return
}

// UpsertTrack inserts the record, or updates the row with the same file path.
func (tdb *DB) UpsertTrack(track *Track) (err error) {
	existing := &Track{}
	dbRes := tdb.db.First(existing, "file_path = ?", track.FilePath)
	if dbRes.RecordNotFound() {
		err = tdb.db.Create(track).Error
		return
	}
	if dbRes.Error != nil {
		err = dbRes.Error
		return
	}

	track.Model = existing.Model
	err = tdb.db.Save(track).Error
	return
}

// NeedsAnalysis reports whether the file has no up-to-date record.
func (tdb *DB) NeedsAnalysis(path string, fileModifiedAt int64) bool {
	track, err := tdb.TrackByPath(path)
	if err != nil {
		return true
	}
	return track.FileModifiedAt < fileModifiedAt
}

// CleanupMissing removes records whose files no longer exist, as reported by
// the exists callback.
func (tdb *DB) CleanupMissing(exists func(path string) bool) (removed int, err error) {
	all, err := tdb.Tracks()
	if err != nil {
		return
	}
	for _, track := range all {
		if exists(track.FilePath) {
			continue
		}
		if err = tdb.db.Delete(track).Error; err != nil {
			return
		}
		removed++
	}
	return
}

func (tdb *DB) SavePlaylist(playlist *Playlist) (err error) {
	if playlist.ID == 0 {
		err = tdb.db.Create(playlist).Error
	} else {
		err = tdb.db.Save(playlist).Error
	}
	return
}

func (tdb *DB) Playlist(id int64) (res *Playlist, err error) {
	playlist := &Playlist{}
	dbRes := tdb.db.First(playlist, "id = ?", id)
	if dbRes.RecordNotFound() {
		err = ErrorNotFound
		return
	}
	if dbRes.Error != nil {
		err = dbRes.Error
		return
	}

	res = playlist

	return
}

func (tdb *DB) Playlists() (res []*Playlist, err error) {
	res = []*Playlist{}
	err = tdb.db.Find(&res).Error
	return
}
