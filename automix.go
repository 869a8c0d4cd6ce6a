package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VividCortex/godaemon"
	"github.com/ayvan/automix/api"
	"github.com/ayvan/automix/auth"
	"github.com/ayvan/automix/config"
	"github.com/ayvan/automix/mixer"
	"github.com/ayvan/automix/scan"
	"github.com/ayvan/automix/tracks"
	"github.com/sirupsen/logrus"
)

func main() {
	if config.Get().DaemonMode {
		godaemon.MakeDaemon(&godaemon.DaemonAttr{})
	}

	trackDB, err := tracks.NewDB(config.Get().DBFile)
	if err != nil {
		logrus.Fatal(err)
	}
	defer trackDB.DBClose()

	pidFile := config.Get().AppPidPath

	if pidFile != "" {
		pid := fmt.Sprintf("%d", os.Getpid())

		err := ioutil.WriteFile(pidFile, []byte(pid), 0644)
		if err != nil {
			logrus.Fatal("Error when writing pidfile:", err)
		}

		defer func() {
			os.Remove(pidFile)
		}()
	}

	engine, err := mixer.NewEngine(trackDB, 4096)
	if err != nil {
		logrus.Fatal(err)
	}
	defer engine.Close()

	if err := engine.SetTransitionConfig(config.Get().Transition); err != nil {
		logrus.Fatal(err)
	}

	engine.SetStatusCallback(func(state mixer.PlaybackState, currentTrackID int64, position float64, nextTrackID int64) {
		logrus.Infof("player: %s track %d at %.1fs, next %d", state, currentTrackID, position, nextTrackID)
	})

	scanner := scan.NewScanner(trackDB)

	var jwtAuth *auth.JWTAuth
	if config.Get().AuthDBFile != "" {
		authDB, err := auth.NewDB(config.Get().AuthDBFile)
		if err != nil {
			logrus.Fatal(err)
		}
		defer authDB.DBClose()

		jwtAuth, err = auth.NewAuth(auth.Config{
			PublicKeyPath:        config.Get().PublicKeyPath,
			PrivateKeyPath:       config.Get().PrivateKeyPath,
			DefaultAdminPassword: config.Get().DefaultAdminPassword,
		}, authDB)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	api.Init(trackDB, engine, scanner, jwtAuth)
	go api.Run("0.0.0.0:" + config.Get().HTTPPort)

	sChan := make(chan os.Signal, 1)
	signal.Notify(sChan,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	logrus.Info("Application ", config.Get().AppName, " started")

	// Control loop: service the scheduler until the OS asks us to finish.
	// The platform audio host drives engine.Render from its own thread.
	pollInterval := time.Duration(config.Get().PollMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 20 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			engine.Poll()
		case s := <-sChan:
			logrus.Info("os.Signal ", s, " received, finishing application...")
			engine.Stop()
			return
		}
	}
}
