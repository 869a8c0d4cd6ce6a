package api

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strconv"

	"github.com/ayvan/automix/config"
	"github.com/ayvan/automix/helpers"
	"github.com/ayvan/automix/match"
	"github.com/labstack/echo"
	"github.com/sirupsen/logrus"
)

type ErrorResp struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func newError(code int, message ...string) ErrorResp {
	resp := ErrorResp{Code: code}
	if len(message) > 0 {
		resp.Error = message[0]
	} else {
		resp.Error = http.StatusText(code)
	}
	return resp
}

// Auth POST /auth
func Auth(ctx echo.Context) error {
	if jwtAuth == nil {
		return ctx.JSON(http.StatusNotImplemented, newError(http.StatusNotImplemented, "auth not configured"))
	}

	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{}
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	token, err := jwtAuth.Authenticate(req.Username, req.Password)
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, newError(http.StatusUnauthorized))
	}

	return ctx.JSON(http.StatusOK, token)
}

// Tracks GET /tracks
func Tracks(ctx echo.Context) error {
	if pattern := ctx.QueryParam("q"); pattern != "" {
		t, err := db.Search(pattern)
		if err != nil {
			return ctx.JSON(http.StatusInternalServerError, newError(http.StatusInternalServerError, err.Error()))
		}
		return ctx.JSON(http.StatusOK, t)
	}

	t, err := db.Tracks()
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, newError(http.StatusInternalServerError, err.Error()))
	}

	return ctx.JSON(http.StatusOK, t)
}

// TrackByID GET /tracks/:id
func TrackByID(ctx echo.Context) error {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	track, err := db.Track(id)
	if err != nil {
		return ctx.JSON(http.StatusNotFound, newError(http.StatusNotFound))
	}

	return ctx.JSON(http.StatusOK, track)
}

// PostTrack POST /tracks — upload an MP3 into the library and analyze it.
func PostTrack(ctx echo.Context) error {
	file, err := ctx.FormFile("file")
	if err != nil {
		return err
	}

	if !helpers.IsAudioFile(file.Filename) {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, "bad file type, must be MP3 file"))
	}

	filePath, err := saveUpload(file, config.Get().TracksDir)
	if err != nil {
		logrus.Errorf("upload %s: %s", file.Filename, err)
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	track, err := scanner.ProcessTrack(filePath)
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, newError(http.StatusInternalServerError, err.Error()))
	}

	if err := db.UpsertTrack(track); err != nil {
		return ctx.JSON(http.StatusInternalServerError, newError(http.StatusInternalServerError, err.Error()))
	}

	return ctx.JSON(http.StatusCreated, track)
}

// saveUpload writes the uploaded file into the library directory, numbering
// the name when it collides with an existing track.
func saveUpload(file *multipart.FileHeader, dir string) (filePath string, err error) {
	src, err := file.Open()
	if err != nil {
		return
	}
	defer src.Close()

	name := path.Base(file.Filename)
	for attempt := 0; attempt < 100; attempt++ {
		filePath = path.Join(dir, name)
		if !helpers.FileExists(filePath) {
			break
		}
		if name, err = helpers.NewFileName(name); err != nil {
			return
		}
	}

	dst, err := os.Create(filePath)
	if err != nil {
		return
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return
}

// Playlists GET /playlists
func Playlists(ctx echo.Context) error {
	p, err := db.Playlists()
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, newError(http.StatusInternalServerError, err.Error()))
	}

	return ctx.JSON(http.StatusOK, p)
}

// PlaylistByID GET /playlists/:id
func PlaylistByID(ctx echo.Context) error {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	playlist, err := db.Playlist(id)
	if err != nil {
		return ctx.JSON(http.StatusNotFound, newError(http.StatusNotFound))
	}

	return ctx.JSON(http.StatusOK, playlist)
}

type generateRequest struct {
	SeedTrackID int64       `json:"seed_track_id"`
	Count       int         `json:"count"`
	Name        string      `json:"name"`
	Rules       match.Rules `json:"rules"`
	EnergyArc   string      `json:"energy_arc"`
}

// GeneratePlaylist POST /playlists/generate
func GeneratePlaylist(ctx echo.Context) error {
	req := generateRequest{}
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	if req.Rules.Weights == (match.SimilarityWeights{}) {
		req.Rules.Weights = match.DefaultWeights()
	}
	if req.EnergyArc != "" {
		arc, err := match.ParseEnergyArc(req.EnergyArc)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
		}
		req.Rules.EnergyArc = arc
	}

	playlist, err := engine.GeneratePlaylist(req.SeedTrackID, req.Count, req.Rules)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	playlist.Name = req.Name
	if err := db.SavePlaylist(playlist); err != nil {
		logrus.Errorf("save playlist: %s", err)
	}

	return ctx.JSON(http.StatusCreated, playlist)
}

// CreatePlaylist POST /playlists
func CreatePlaylist(ctx echo.Context) error {
	req := struct {
		Name     string  `json:"name"`
		TrackIDs []int64 `json:"track_ids"`
	}{}
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	playlist, err := engine.CreatePlaylist(req.TrackIDs)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	playlist.Name = req.Name
	if err := db.SavePlaylist(playlist); err != nil {
		logrus.Errorf("save playlist: %s", err)
	}

	return ctx.JSON(http.StatusCreated, playlist)
}

// PlayerStatus GET /player/status
func PlayerStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"state":            engine.PlaybackState().String(),
		"current_track_id": engine.CurrentTrackID(),
		"position":         engine.Position(),
		"next_track_id":    engine.NextTrackID(),
		"last_error":       engine.LastError(),
	})
}

// PlayerPlay POST /player/play
func PlayerPlay(ctx echo.Context) error {
	req := struct {
		PlaylistID int64 `json:"playlist_id"`
	}{}
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	playlist, err := db.Playlist(req.PlaylistID)
	if err != nil {
		return ctx.JSON(http.StatusNotFound, newError(http.StatusNotFound))
	}

	if err := engine.Play(playlist); err != nil {
		return ctx.JSON(http.StatusInternalServerError, newError(http.StatusInternalServerError, err.Error()))
	}

	return ctx.JSON(http.StatusOK, map[string]string{"status": "playing"})
}

func PlayerPause(ctx echo.Context) error {
	engine.Pause()
	return ctx.JSON(http.StatusOK, map[string]string{"status": "paused"})
}

func PlayerResume(ctx echo.Context) error {
	engine.Resume()
	return ctx.JSON(http.StatusOK, map[string]string{"status": "resumed"})
}

func PlayerStop(ctx echo.Context) error {
	engine.Stop()
	return ctx.JSON(http.StatusOK, map[string]string{"status": "stopped"})
}

func PlayerSkip(ctx echo.Context) error {
	engine.Skip()
	return ctx.JSON(http.StatusOK, map[string]string{"status": "skipping"})
}

// PlayerSeek POST /player/seek
func PlayerSeek(ctx echo.Context) error {
	req := struct {
		Position float64 `json:"position"`
	}{}
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	if err := engine.Seek(req.Position); err != nil {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Scan POST /scan
func Scan(ctx echo.Context) error {
	req := struct {
		Dir       string `json:"dir"`
		Recursive bool   `json:"recursive"`
	}{}
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, newError(http.StatusBadRequest, err.Error()))
	}

	if req.Dir == "" {
		req.Dir = config.Get().TracksDir
	}

	go func() {
		count, err := scanner.Scan(req.Dir, req.Recursive, func(path string, index, total int) {
			logrus.Infof("scanning %d/%d: %s", index+1, total, path)
		})
		if err != nil {
			logrus.Errorf("scan failed: %s", err)
			return
		}
		logrus.Infof("scan finished, %d tracks up to date", count)
	}()

	return ctx.JSON(http.StatusAccepted, map[string]string{"status": "scan started"})
}
