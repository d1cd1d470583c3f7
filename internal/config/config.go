package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		CORSOrigins     []string      `yaml:"corsOrigins"`
		StagingDir      string        `yaml:"stagingDir" validate:"required"`
		MaxSessions     int           `yaml:"maxSessions" validate:"min=1"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	Storage struct {
		Provider   string `yaml:"provider" validate:"oneof=cloudinary minio"`
		Cloudinary struct {
			CloudName    string `yaml:"cloudName"`
			UploadPreset string `yaml:"uploadPreset"`
			Folder       string `yaml:"folder"`
			BaseURL      string `yaml:"baseURL" validate:"omitempty,url"`
		} `yaml:"cloudinary"`
		Minio struct {
			Endpoint   string        `yaml:"endpoint"`
			AccessKey  string        `yaml:"accessKey"`
			SecretKey  string        `yaml:"secretKey"`
			BucketName string        `yaml:"bucketName"`
			Region     string        `yaml:"region"`
			UseSSL     bool          `yaml:"useSSL"`
			LinkExpiry time.Duration `yaml:"linkExpiry"`
		} `yaml:"minio"`
	} `yaml:"storage"`

	Analysis struct {
		Provider string        `yaml:"provider" validate:"oneof=http openai"`
		Endpoint string        `yaml:"endpoint" validate:"omitempty,url"`
		Timeout  time.Duration `yaml:"timeout"`
		OpenAI   struct {
			APIKey  string `yaml:"apiKey"`
			BaseURL string `yaml:"baseURL" validate:"omitempty,url"`
			Model   string `yaml:"model"`
		} `yaml:"openai"`
	} `yaml:"analysis"`

	Database struct {
		Driver   string `yaml:"driver" validate:"oneof=mysql postgres sqlite none"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		Path     string `yaml:"path"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Export struct {
		Dir     string `yaml:"dir" validate:"required"`
		Share   string `yaml:"share" validate:"oneof=none minio opener"`
		Product string `yaml:"product"`
	} `yaml:"export"`

	Selector struct {
		MaxVideoDuration time.Duration `yaml:"maxVideoDuration"`
		MaxSize          int64         `yaml:"maxSize" validate:"min=0"`
		StartDir         string        `yaml:"startDir"`
	} `yaml:"selector"`

	Auth struct {
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		Requests int           `yaml:"requests" validate:"min=0"`
		Window   time.Duration `yaml:"window"`
	} `yaml:"ratelimit"`
}

// Load reads .env, then the YAML file at path (optional), applies env
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only configuration
	default:
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Path returns CONFIG_PATH or config.yaml.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "config.yaml"
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"MEDISCAN_LOG_LEVEL":         &c.Logging.Level,
		"MEDISCAN_STORAGE_PROVIDER":  &c.Storage.Provider,
		"MEDISCAN_CLOUDINARY_CLOUD":  &c.Storage.Cloudinary.CloudName,
		"MEDISCAN_CLOUDINARY_PRESET": &c.Storage.Cloudinary.UploadPreset,
		"MEDISCAN_MINIO_ENDPOINT":    &c.Storage.Minio.Endpoint,
		"MEDISCAN_MINIO_ACCESS_KEY":  &c.Storage.Minio.AccessKey,
		"MEDISCAN_MINIO_SECRET_KEY":  &c.Storage.Minio.SecretKey,
		"MEDISCAN_MINIO_BUCKET":      &c.Storage.Minio.BucketName,
		"MEDISCAN_ANALYSIS_PROVIDER": &c.Analysis.Provider,
		"MEDISCAN_ANALYSIS_ENDPOINT": &c.Analysis.Endpoint,
		"MEDISCAN_OPENAI_API_KEY":    &c.Analysis.OpenAI.APIKey,
		"MEDISCAN_OPENAI_BASE_URL":   &c.Analysis.OpenAI.BaseURL,
		"MEDISCAN_OPENAI_MODEL":      &c.Analysis.OpenAI.Model,
		"MEDISCAN_DB_DRIVER":         &c.Database.Driver,
		"MEDISCAN_DB_HOST":           &c.Database.Host,
		"MEDISCAN_DB_USER":           &c.Database.User,
		"MEDISCAN_DB_PASSWORD":       &c.Database.Password,
		"MEDISCAN_DB_NAME":           &c.Database.Name,
		"MEDISCAN_DB_PATH":           &c.Database.Path,
		"MEDISCAN_EXPORT_DIR":        &c.Export.Dir,
		"MEDISCAN_EXPORT_SHARE":      &c.Export.Share,
		"MEDISCAN_STAGING_DIR":       &c.Server.StagingDir,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("MEDISCAN_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEDISCAN_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := os.LookupEnv("MEDISCAN_ANALYSIS_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MEDISCAN_ANALYSIS_TIMEOUT: %w", err)
		}
		c.Analysis.Timeout = d
	}
	// MEDISCAN_API_KEYS=name:key,name2:key2
	if v, ok := os.LookupEnv("MEDISCAN_API_KEYS"); ok && v != "" {
		keys := make(map[string]string)
		for _, pair := range strings.Split(v, ",") {
			name, key, found := strings.Cut(strings.TrimSpace(pair), ":")
			if !found || name == "" || key == "" {
				return fmt.Errorf("MEDISCAN_API_KEYS: malformed entry %q", pair)
			}
			keys[name] = key
		}
		c.Auth.APIKeys = keys
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// analysis may take the whole analysis timeout plus upload
		c.Server.WriteTimeout = 10 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Server.StagingDir == "" {
		c.Server.StagingDir = "data/staging"
	}
	if c.Server.MaxSessions == 0 {
		c.Server.MaxSessions = 256
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = "cloudinary"
	}
	if c.Storage.Cloudinary.UploadPreset == "" {
		c.Storage.Cloudinary.UploadPreset = "teleconnect"
	}
	if c.Storage.Minio.LinkExpiry == 0 {
		c.Storage.Minio.LinkExpiry = 24 * time.Hour
	}
	if c.Analysis.Provider == "" {
		c.Analysis.Provider = "http"
	}
	if c.Analysis.Timeout == 0 {
		c.Analysis.Timeout = 60 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "none"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "data/mediscan.db"
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "reports"
	}
	if c.Export.Share == "" {
		c.Export.Share = "none"
	}
	if c.Export.Product == "" {
		c.Export.Product = "mediscan"
	}
	if c.Selector.MaxVideoDuration == 0 {
		c.Selector.MaxVideoDuration = 300 * time.Second
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
}

// Validate checks struct tags plus cross-field rules the tags cannot say.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Analysis.Provider == "http" && c.Analysis.Endpoint == "" {
		return errors.New("invalid config: analysis.endpoint is required for the http provider")
	}
	if c.Analysis.Provider == "openai" && c.Analysis.OpenAI.APIKey == "" {
		return errors.New("invalid config: analysis.openai.apiKey is required for the openai provider")
	}
	if c.Storage.Provider == "cloudinary" && c.Storage.Cloudinary.CloudName == "" {
		return errors.New("invalid config: storage.cloudinary.cloudName is required")
	}
	needsMinio := c.Storage.Provider == "minio" || c.Export.Share == "minio"
	if needsMinio && (c.Storage.Minio.Endpoint == "" || c.Storage.Minio.BucketName == "") {
		return errors.New("invalid config: storage.minio endpoint and bucketName are required")
	}
	if c.Analysis.Timeout < 0 {
		return errors.New("invalid config: analysis.timeout must be positive")
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq URL.
func (c *Config) PostgresDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}
