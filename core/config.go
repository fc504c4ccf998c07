package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (default), TEST, QA, PROD
		Build    string

		AppName          string
		SecretKey        []byte
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string
		FrontendBaseURL  string

		SessionTTL           time.Duration
		PasswordResetTimeout time.Duration

		SessionCachePath string
		PrefsPath        string

		Database DatabaseConfig
		Feeds    FeedsConfig
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	FeedsConfig struct {
		HolidayBaseURL string
		QuoteBaseURL   string
		CountryCode    string
		HolidayLimit   int
	}
)

func (dc DatabaseConfig) Address() string {
	return dc.Host + ":" + dc.Port
}

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "UniTrack")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("sessionTTL", 7*24*time.Hour)
	v.SetDefault("passwordResetTimeout", 3*24*time.Hour)
	v.SetDefault("sessionCachePath", filepath.Join(userHome(), ".unitrack", "session"))
	v.SetDefault("prefsPath", filepath.Join(userHome(), ".unitrack", "prefs.toml"))

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseName", "unitrack")
	v.SetDefault("databaseUser", "unitrack")
	v.SetDefault("databasePassword", "")
	v.SetDefault("databaseAdminUser", "")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", "5432")
	v.SetDefault("databaseDisableTLS", true)

	v.SetDefault("holidayFeedBaseURL", "https://date.nager.at")
	v.SetDefault("quoteFeedBaseURL", "https://zenquotes.io")
	v.SetDefault("holidayCountryCode", "CA")
	v.SetDefault("holidayLimit", 3)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:    v.GetBool("debug"),
		TestMode: env == "TEST",
		Env:      env,
		Build:    v.GetString("build"),

		AppName:          v.GetString("appName"),
		SecretKey:        []byte(v.GetString("secretKey")),
		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),

		SessionTTL:           v.GetDuration("sessionTTL"),
		PasswordResetTimeout: v.GetDuration("passwordResetTimeout"),

		SessionCachePath: v.GetString("sessionCachePath"),
		PrefsPath:        v.GetString("prefsPath"),

		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Name:          v.GetString("databaseName"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetString("databasePort"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
		Feeds: FeedsConfig{
			HolidayBaseURL: v.GetString("holidayFeedBaseURL"),
			QuoteBaseURL:   v.GetString("quoteFeedBaseURL"),
			CountryCode:    v.GetString("holidayCountryCode"),
			HolidayLimit:   v.GetInt("holidayLimit"),
		},
	}
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
