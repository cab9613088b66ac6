package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Vision     VisionConfig     `yaml:"vision"`
	Matching   MatchingConfig   `yaml:"matching"`
	Liveness   LivenessConfig   `yaml:"liveness"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	// RateLimit is requests per second per client IP on the punch endpoints.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type StorageConfig struct {
	Backend string `yaml:"backend"` // file | postgres
	DataDir string `yaml:"data_dir"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// NATSConfig is optional; an empty URL disables event publishing.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// MinIOConfig is optional; an empty endpoint disables image archiving.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

const (
	ExtractorHistogram = "histogram"
	ExtractorArcFace   = "arcface"
)

type VisionConfig struct {
	Extractor string `yaml:"extractor"` // histogram | arcface
	ModelsDir string `yaml:"models_dir"`
}

type MatchingConfig struct {
	// Threshold is the largest accepted Euclidean distance. Its useful range
	// depends on the extractor.
	Threshold float64 `yaml:"threshold"`
}

type LivenessConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MinClosed time.Duration `yaml:"min_closed"`
}

type AttendanceConfig struct {
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
	Timezone        string        `yaml:"timezone"`
}

// Location resolves Timezone, falling back to the process local zone.
func (a AttendanceConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || a.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 30
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 60
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendFile
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 4
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "punchclock"
	}
	if cfg.Vision.Extractor == "" {
		cfg.Vision.Extractor = ExtractorHistogram
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = 8.0
	}
	if cfg.Liveness.Timeout == 0 {
		cfg.Liveness.Timeout = 1500 * time.Millisecond
	}
	if cfg.Liveness.MinClosed == 0 {
		cfg.Liveness.MinClosed = 150 * time.Millisecond
	}
	if cfg.Attendance.DuplicateWindow == 0 {
		cfg.Attendance.DuplicateWindow = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case BackendFile, BackendPostgres:
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	switch cfg.Vision.Extractor {
	case ExtractorHistogram, ExtractorArcFace:
	default:
		return fmt.Errorf("unknown extractor %q", cfg.Vision.Extractor)
	}
	if cfg.Matching.Threshold < 0 {
		return fmt.Errorf("matching threshold must be positive, got %v", cfg.Matching.Threshold)
	}
	if _, err := cfg.Attendance.Location(); err != nil {
		return err
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PC_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PC_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("PC_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("PC_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PC_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PC_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PC_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PC_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PC_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PC_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("PC_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("PC_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("PC_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("PC_EXTRACTOR"); v != "" {
		cfg.Vision.Extractor = v
	}
	if v := os.Getenv("PC_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("PC_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.Threshold = f
		}
	}
	if v := os.Getenv("PC_TIMEZONE"); v != "" {
		cfg.Attendance.Timezone = v
	}
	if v := os.Getenv("PC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
