package config

import (
	"flag"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ayvan/automix/helpers"
	"github.com/ayvan/automix/tracks"
	"github.com/luci/go-render/render"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"
)

var Language language.Tag

type AppConfig struct {
	AppPath       string
	AppConfigPath string
	AppPidPath    string

	Lang                 string `yaml:"lang"`
	HTTPPort             string `yaml:"http_port"`
	TracksDir            string `yaml:"tracks_dir"`
	DBFile               string `yaml:"db_file"`
	AuthDBFile           string `yaml:"auth_db_file"`
	PublicKeyPath        string `yaml:"public_key_path"`
	PrivateKeyPath       string `yaml:"private_key_path"`
	DefaultAdminPassword string `yaml:"default_admin_password"`
	DaemonMode           bool   `yaml:"daemon"`
	AppName              string `yaml:"app_name"`
	LogFile              string `yaml:"log_file"`
	LogLevel             string `yaml:"log_level"`

	// Mixing defaults, applied to the engine at startup; the HTTP API has no
	// route that changes them
	Transition tracks.TransitionConfig `yaml:"transition"`
	PollMs     int                     `yaml:"poll_ms"`
}

var appConfig *AppConfig

func init() {
	appConfig = &AppConfig{}

	workPath, _ := os.Getwd()
	workPath, _ = filepath.Abs(workPath)
	// initialize default configurations
	appConfig.AppPath, _ = filepath.Abs(filepath.Dir(os.Args[0]))

	strPtr := flag.String("c", "config.yaml", "config path")
	strPtrPid := flag.String("p", "", "pid path")

	flag.Parse()

	appConfig.AppPidPath = *strPtrPid
	appConfig.AppConfigPath = *strPtr

	if workPath != appConfig.AppPath {
		if helpers.FileExists(appConfig.AppConfigPath) {
			os.Chdir(appConfig.AppPath)
		} else {
			appConfig.AppConfigPath = filepath.Join(workPath, "config.yaml")
		}
	}

	appConfig.HTTPPort = "8080"
	appConfig.DaemonMode = false
	appConfig.AppName = "automix"
	appConfig.LogFile = "stdout"
	appConfig.LogLevel = "info"
	appConfig.DBFile = "automix.db"
	appConfig.Transition = tracks.DefaultTransitionConfig()
	appConfig.PollMs = 20

	content, err := ioutil.ReadFile(appConfig.AppConfigPath)
	if err != nil {
		logrus.Errorf("Can`t read config file (%s): %v\n", appConfig.AppConfigPath, err)
		return
	}

	err = yaml.Unmarshal(content, appConfig)
	if err != nil {
		logrus.Errorf("Yaml file %s parsing error: %v", appConfig.AppConfigPath, err)
		return
	}

	if err := appConfig.Transition.Validate(); err != nil {
		logrus.Errorf("Bad transition config, falling back to defaults: %s", err)
		appConfig.Transition = tracks.DefaultTransitionConfig()
	}

	if len(appConfig.Lang) != 0 {
		t, err := language.Parse(appConfig.Lang)
		if err != nil {
			logrus.Errorf("Language name \"%s\" parsing error: %s", appConfig.Lang, err)
			return
		}

		Language = t
	} else {
		Language = language.English
	}

	setLogger(appConfig.LogLevel, appConfig.LogFile)
	if !appConfig.DaemonMode {
		logrus.Info("Config loaded:", render.Render(appConfig))
	}

	runtime.GOMAXPROCS(runtime.NumCPU())
}

func setLogger(level, dest string) {
	lvl, err := logrus.ParseLevel(level)

	if err != nil {
		logrus.Fatalf("Unable to parse '%v' as a log level", level)
	}

	logrus.SetLevel(lvl)

	if dest != "stdout" {
		absDest, err := filepath.Abs(dest)
		if err != nil {
			logrus.Fatalf("Unable to get absolute file path %s: err: %s", dest, err)
		}

		out, err := os.OpenFile(absDest, os.O_CREATE|os.O_WRONLY, 0777)
		if err != nil {
			logrus.Fatalf("Unable to open file %s: err: %s", dest, err)
		}

		logrus.SetOutput(out)
	}

	return
}

func Get() *AppConfig {
	return appConfig
}
