package api

import (
	"net/http"

	"github.com/ayvan/automix/auth"
	"github.com/ayvan/automix/mixer"
	"github.com/ayvan/automix/scan"
	"github.com/ayvan/automix/tracks"
	"github.com/labstack/echo"
)

// Echo is echo instance
var Echo *echo.Echo

var (
	db      *tracks.DB
	engine  *mixer.Engine
	scanner *scan.Scanner
	jwtAuth *auth.JWTAuth
)

func init() {
	Echo = echo.New()
	Echo.HideBanner = true
	Echo.HidePort = true
}

// Init wires the API against the running engine.
func Init(trackDB *tracks.DB, eng *mixer.Engine, sc *scan.Scanner, a *auth.JWTAuth) {
	db = trackDB
	engine = eng
	scanner = sc
	jwtAuth = a
}

// authRequired rejects requests without a valid bearer token. With no auth
// database configured the API runs open, which matches a local setup; with
// one but no public key loaded, every guarded request is rejected.
func authRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if jwtAuth == nil {
			return next(ctx)
		}
		if ok, _ := jwtAuth.Validate(ctx.Request()); !ok {
			return ctx.JSON(http.StatusUnauthorized, newError(http.StatusUnauthorized, "invalid token"))
		}
		return next(ctx)
	}
}

// Run app
// Run("0.0.0.0:8080")
func Run(hostAndPort string) {
	routes := Echo.Group("/v1")

	routes.POST("/auth", Auth)

	routes.GET("/tracks", Tracks)
	routes.GET("/tracks/:id", TrackByID)
	routes.POST("/tracks", PostTrack, authRequired)

	routes.GET("/playlists", Playlists)
	routes.GET("/playlists/:id", PlaylistByID)
	routes.POST("/playlists", CreatePlaylist, authRequired)
	routes.POST("/playlists/generate", GeneratePlaylist, authRequired)

	routes.GET("/player/status", PlayerStatus)
	routes.POST("/player/play", PlayerPlay, authRequired)
	routes.POST("/player/pause", PlayerPause, authRequired)
	routes.POST("/player/resume", PlayerResume, authRequired)
	routes.POST("/player/stop", PlayerStop, authRequired)
	routes.POST("/player/skip", PlayerSkip, authRequired)
	routes.POST("/player/seek", PlayerSeek, authRequired)

	routes.POST("/scan", Scan, authRequired)

	routes.GET("/test", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "ok"})
	})

	if err := Echo.Start(hostAndPort); err != nil {
		panic(err)
	}
}
