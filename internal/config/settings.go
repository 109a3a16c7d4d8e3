package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultApplicationID is passed to the package manager as the installer
// package for attribution
const DefaultApplicationID = "org.apkdock.client"

// DefaultNotificationTimeout is how long finished download notifications stay
// visible
const DefaultNotificationTimeout = 5 * time.Second

type InstallerSettings struct {
	RootSession   bool   `mapstructure:"root_session" json:"root_session"`
	ApplicationID string `mapstructure:"application_id" json:"application_id"`
	SDKLevel      int    `mapstructure:"sdk_level" json:"sdk_level"`
	SuBinary      string `mapstructure:"su_binary" json:"su_binary"`
	Workers       int    `mapstructure:"workers" json:"workers"`
}

type NotificationSettings struct {
	Enabled     bool          `mapstructure:"enabled" json:"enabled"`
	KeepInstall bool          `mapstructure:"keep_install" json:"keep_install"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
}

type PipelineSettings struct {
	EventBuffer int `mapstructure:"event_buffer" json:"event_buffer"`
}

type ServerSettings struct {
	Port int `mapstructure:"port" json:"port"`
}

// Settings is the user configuration read from settings.json
type Settings struct {
	Installer     InstallerSettings    `mapstructure:"installer" json:"installer"`
	Notifications NotificationSettings `mapstructure:"notifications" json:"notifications"`
	Pipeline      PipelineSettings     `mapstructure:"pipeline" json:"pipeline"`
	Server        ServerSettings       `mapstructure:"server" json:"server"`
	LogLevel      string               `mapstructure:"log_level" json:"log_level"`
}

// DefaultSettings returns the settings used when no file is present
func DefaultSettings() *Settings {
	return &Settings{
		Installer: InstallerSettings{
			RootSession:   false,
			ApplicationID: DefaultApplicationID,
			SDKLevel:      0,
			SuBinary:      "su",
			Workers:       1,
		},
		Notifications: NotificationSettings{
			Enabled:     true,
			KeepInstall: false,
			Timeout:     DefaultNotificationTimeout,
		},
		Pipeline: PipelineSettings{
			EventBuffer: 64,
		},
		Server: ServerSettings{
			Port: 0,
		},
		LogLevel: "debug",
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("installer.root_session", d.Installer.RootSession)
	v.SetDefault("installer.application_id", d.Installer.ApplicationID)
	v.SetDefault("installer.sdk_level", d.Installer.SDKLevel)
	v.SetDefault("installer.su_binary", d.Installer.SuBinary)
	v.SetDefault("installer.workers", d.Installer.Workers)
	v.SetDefault("notifications.enabled", d.Notifications.Enabled)
	v.SetDefault("notifications.keep_install", d.Notifications.KeepInstall)
	v.SetDefault("notifications.timeout", d.Notifications.Timeout)
	v.SetDefault("pipeline.event_buffer", d.Pipeline.EventBuffer)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("log_level", d.LogLevel)
}

// GetSettingsPath returns the path of settings.json
func GetSettingsPath() string {
	return filepath.Join(GetAppDir(), "settings.json")
}

// LoadSettings reads settings.json from the app dir. A missing file yields the
// defaults; APKDOCK_* environment variables override both
// (e.g. APKDOCK_INSTALLER_ROOT_SESSION=true).
func LoadSettings() (*Settings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

// LoadSettingsFrom is LoadSettings for an explicit file
func LoadSettingsFrom(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("APKDOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.normalize()
	return s, nil
}

func (s *Settings) normalize() {
	d := DefaultSettings()
	if s.Installer.ApplicationID == "" {
		s.Installer.ApplicationID = d.Installer.ApplicationID
	}
	if s.Installer.SuBinary == "" {
		s.Installer.SuBinary = d.Installer.SuBinary
	}
	if s.Installer.Workers < 1 {
		s.Installer.Workers = d.Installer.Workers
	}
	if s.Notifications.Timeout <= 0 {
		s.Notifications.Timeout = d.Notifications.Timeout
	}
	if s.Pipeline.EventBuffer < 1 {
		s.Pipeline.EventBuffer = d.Pipeline.EventBuffer
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
