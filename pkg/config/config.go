package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "METAPHOTOR"

	EnvPort      = "METAPHOTOR_APP_PORT"
	EnvLogLevel  = "METAPHOTOR_LOG_LEVEL"
	EnvLogFormat = "METAPHOTOR_LOG_FORMAT"

	EnvMediaFolder       = "METAPHOTOR_MEDIA_FOLDER"
	EnvWatchFolder       = "METAPHOTOR_WATCH_FOLDER"
	EnvAllowedExtensions = "METAPHOTOR_ALLOWED_EXTENSIONS"
	EnvMinFileSize       = "METAPHOTOR_MIN_FILE_SIZE"
	EnvMaxFileSize       = "METAPHOTOR_MAX_FILE_SIZE"

	EnvFFmpegPath       = "METAPHOTOR_FFMPEG_PATH"
	EnvFFprobePath      = "METAPHOTOR_FFPROBE_PATH"
	EnvToolTimeout      = "METAPHOTOR_TOOL_TIMEOUT"
	EnvTranscodeOptions = "METAPHOTOR_TRANSCODE_OPTIONS"

	EnvScanWorkers  = "METAPHOTOR_SCAN_WORKERS"
	EnvProgressFile = "METAPHOTOR_SCAN_PROGRESS_FILE"
	EnvScanErrorLog = "METAPHOTOR_SCAN_ERROR_LOG"

	EnvDBDriver          = "METAPHOTOR_DB_DRIVER"
	EnvDBDSN             = "METAPHOTOR_DB_DSN"
	EnvDBMaxOpenConns    = "METAPHOTOR_DB_MAX_OPEN_CONNS"
	EnvDBMaxIdleConns    = "METAPHOTOR_DB_MAX_IDLE_CONNS"
	EnvDBConnMaxLifetime = "METAPHOTOR_DB_CONN_MAX_LIFETIME"

	EnvGeocoderBaseURL   = "METAPHOTOR_GEOCODER_BASE_URL"
	EnvGeocoderUserAgent = "METAPHOTOR_GEOCODER_USER_AGENT"
	EnvGeocoderTimeout   = "METAPHOTOR_GEOCODER_TIMEOUT"
	EnvGeocoderRate      = "METAPHOTOR_GEOCODER_RATE"
	EnvGeocoderCacheTTL  = "METAPHOTOR_GEOCODER_CACHE_TTL"
)

const (
	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"

	minWorkers = 1
	maxWorkers = 32
)

type Config struct {
	App      AppConfig
	Media    MediaConfig
	Tools    ToolsConfig
	Scan     ScanConfig
	DB       DBConfig
	Geocoder GeocoderConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Media.normalize(); err != nil {
		return nil, err
	}
	cfg.Scan.Workers = clampWorkers(cfg.Scan.Workers)
	return &cfg, nil
}

type AppConfig struct {
	Port      string `envconfig:"METAPHOTOR_APP_PORT" default:"8080"`
	LogLevel  string `envconfig:"METAPHOTOR_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"METAPHOTOR_LOG_FORMAT" default:"json"`
}

// MediaConfig describes the catalogued library and its drop folder.
type MediaConfig struct {
	Folder      string `envconfig:"METAPHOTOR_MEDIA_FOLDER"`
	WatchFolder string `envconfig:"METAPHOTOR_WATCH_FOLDER"`

	AllowedExtensions []string `envconfig:"METAPHOTOR_ALLOWED_EXTENSIONS" default:"jpg,jpeg,mov,mp4,mpg,mpeg,3gp,avi"`
	MinFileSize       int64    `envconfig:"METAPHOTOR_MIN_FILE_SIZE" default:"524288"`
	MaxFileSize       int64    `envconfig:"METAPHOTOR_MAX_FILE_SIZE" default:"1073741824"`
}

func (m *MediaConfig) normalize() error {
	exts := make([]string, 0, len(m.AllowedExtensions))
	for _, ext := range m.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	m.AllowedExtensions = exts

	if m.MinFileSize < 0 || m.MaxFileSize < 0 {
		return fmt.Errorf("%s and %s must not be negative", EnvMinFileSize, EnvMaxFileSize)
	}
	if m.MaxFileSize > 0 && m.MinFileSize > m.MaxFileSize {
		return fmt.Errorf("%s (%d) exceeds %s (%d)", EnvMinFileSize, m.MinFileSize, EnvMaxFileSize, m.MaxFileSize)
	}
	return nil
}

type ToolsConfig struct {
	FFmpegPath       string        `envconfig:"METAPHOTOR_FFMPEG_PATH" default:"/usr/bin/ffmpeg"`
	FFprobePath      string        `envconfig:"METAPHOTOR_FFPROBE_PATH" default:"/usr/bin/ffprobe"`
	Timeout          time.Duration `envconfig:"METAPHOTOR_TOOL_TIMEOUT" default:"10m"`
	TranscodeOptions string        `envconfig:"METAPHOTOR_TRANSCODE_OPTIONS" default:"-vcodec h264 -acodec aac -strict -2 -b:a 384k"`
}

type ScanConfig struct {
	Workers      int    `envconfig:"METAPHOTOR_SCAN_WORKERS" default:"2"`
	ProgressFile string `envconfig:"METAPHOTOR_SCAN_PROGRESS_FILE" default:"scan.json"`
	ErrorLog     string `envconfig:"METAPHOTOR_SCAN_ERROR_LOG" default:"scan_err.log"`
}

func clampWorkers(n int) int {
	if n < minWorkers {
		return minWorkers
	}
	if n > maxWorkers {
		return maxWorkers
	}
	return n
}

type DBConfig struct {
	Driver string `envconfig:"METAPHOTOR_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"METAPHOTOR_DB_DSN" default:"metaphotor.db"`

	MaxOpenConns    int           `envconfig:"METAPHOTOR_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"METAPHOTOR_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"METAPHOTOR_DB_CONN_MAX_LIFETIME" default:"1h"`
}

func (db *DBConfig) validate() error {
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	switch db.Driver {
	case DBDriverSQLite, DBDriverPostgres:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvDBDriver, DBDriverSQLite, DBDriverPostgres, db.Driver)
	}
	if strings.TrimSpace(db.DSN) == "" {
		return fmt.Errorf("%s is required", EnvDBDSN)
	}
	return nil
}

// GeocoderConfig configures the Nominatim client.
type GeocoderConfig struct {
	BaseURL   string        `envconfig:"METAPHOTOR_GEOCODER_BASE_URL" default:"https://nominatim.openstreetmap.org"`
	UserAgent string        `envconfig:"METAPHOTOR_GEOCODER_USER_AGENT" default:"metaphotor"`
	Timeout   time.Duration `envconfig:"METAPHOTOR_GEOCODER_TIMEOUT" default:"10s"`
	// Rate is the number of requests per second sent upstream.
	Rate     float64       `envconfig:"METAPHOTOR_GEOCODER_RATE" default:"1"`
	CacheTTL time.Duration `envconfig:"METAPHOTOR_GEOCODER_CACHE_TTL" default:"24h"`
}
