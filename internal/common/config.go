package common

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joseph-ayodele/collateral-classifier/constants"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Model      ModelConfig
	Classifier ClassifierConfig
	OCR        OCRConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr    string
	GRPCAddr    string
	MaxUploadMB int
}

// ModelConfig locates the serialized classification pipeline.
type ModelConfig struct {
	Path string
}

// ClassifierConfig holds page classification policy.
type ClassifierConfig struct {
	ConfidenceThreshold float64
	Workers             int
	MaxPages            int
	RequestTimeout      time.Duration // whole-document bound, 0 = none
}

// OCRConfig holds rasterization and OCR configuration
type OCRConfig struct {
	Engine            string // "tesseract" | "gosseract"
	DPI               int
	MinTextLength     int
	PageTimeout       time.Duration
	Language          string
	TessdataDir       string
	PSM               int
	OEM               int
	MaxImageDimension int
	Pdftoppm          string
	Pdftotext         string
	Tesseract         string
	PDFPassword       string
}

// DatabaseConfig holds the optional audit store configuration.
// DSN wins over SQLitePath; both empty disables persistence.
type DatabaseConfig struct {
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

type setting struct {
	key string
	env []string
	def any
}

var settings = []setting{
	{"server.http_addr", []string{"HTTP_ADDR"}, ":5000"},
	{"server.port", []string{"PORT"}, ""},
	{"server.grpc_addr", []string{"GRPC_ADDR"}, ":8080"},
	{"server.max_upload_mb", []string{"MAX_UPLOAD_MB"}, 50},

	{"model.path", []string{"MODEL_PATH"}, "./models/document_classifier.json"},

	{"classifier.confidence_threshold", []string{"CONFIDENCE_THRESHOLD"}, constants.DefaultConfidenceThreshold},
	{"classifier.workers", []string{"CLASSIFIER_WORKERS"}, 4},
	{"classifier.max_pages", []string{"MAX_PAGES"}, 0},
	{"classifier.request_timeout", []string{"CLASSIFY_TIMEOUT"}, time.Duration(0)},

	{"ocr.engine", []string{"OCR_ENGINE"}, "tesseract"},
	{"ocr.dpi", []string{"OCR_DPI"}, constants.DefaultDPI},
	{"ocr.min_text_length", []string{"OCR_MIN_TEXT_LENGTH"}, constants.DefaultMinTextLength},
	{"ocr.page_timeout", []string{"OCR_PAGE_TIMEOUT"}, 60 * time.Second},
	{"ocr.language", []string{"TESSERACT_LANG"}, "eng"},
	{"ocr.tessdata_dir", []string{"TESSDATA_PREFIX"}, ""},
	{"ocr.psm", []string{"OCR_PSM"}, 0},
	{"ocr.oem", []string{"OCR_OEM"}, 0},
	{"ocr.max_image_dimension", []string{"OCR_MAX_IMAGE_DIMENSION"}, 0},
	{"ocr.pdftoppm", []string{"PDFTOPPM_BIN"}, "pdftoppm"},
	{"ocr.pdftotext", []string{"PDFTOTEXT_BIN"}, "pdftotext"},
	{"ocr.tesseract", []string{"TESSERACT_BIN"}, "tesseract"},
	{"ocr.pdf_password", []string{"PDF_PASSWORD"}, ""},

	{"database.url", []string{"DB_URL"}, ""},
	{"database.sqlite_path", []string{"SQLITE_PATH"}, ""},
	{"database.max_conns", []string{"DB_MAX_CONNS"}, 20},
	{"database.min_conns", []string{"DB_MIN_CONNS"}, 2},
	{"database.max_conn_lifetime", []string{"DB_MAX_CONN_LIFETIME"}, 30 * time.Minute},
	{"database.max_conn_idle_time", []string{"DB_MAX_CONN_IDLE_TIME"}, 5 * time.Minute},
	{"database.dial_timeout", []string{"DB_DIAL_TIMEOUT"}, 3 * time.Second},
	{"database.statement_timeout", []string{"DB_STATEMENT_TIMEOUT"}, time.Duration(0)},

	{"logging.level", []string{"LOG_LEVEL"}, "info"},
	{"logging.format", []string{"LOG_FORMAT"}, "console"},
}

// NewViper returns a viper instance with defaults and env bindings registered.
// An optional YAML file is read when cfgFile is non-empty.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		if err := v.BindEnv(append([]string{s.key}, s.env...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", s.key, err)
		}
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, NewAppError("CONFIG_ERROR", "failed to read config file", err)
			}
		}
	}
	return v, nil
}

// LoadConfig loads configuration from viper (defaults, env, optional config file)
func LoadConfig(v *viper.Viper) *Config {
	httpAddr := v.GetString("server.http_addr")
	if port := v.GetString("server.port"); port != "" && os.Getenv("HTTP_ADDR") == "" {
		httpAddr = ":" + strings.TrimPrefix(port, ":")
	}
	return &Config{
		Server: ServerConfig{
			HTTPAddr:    httpAddr,
			GRPCAddr:    v.GetString("server.grpc_addr"),
			MaxUploadMB: v.GetInt("server.max_upload_mb"),
		},
		Model: ModelConfig{
			Path: v.GetString("model.path"),
		},
		Classifier: ClassifierConfig{
			ConfidenceThreshold: v.GetFloat64("classifier.confidence_threshold"),
			Workers:             v.GetInt("classifier.workers"),
			MaxPages:            v.GetInt("classifier.max_pages"),
			RequestTimeout:      v.GetDuration("classifier.request_timeout"),
		},
		OCR: OCRConfig{
			Engine:            strings.ToLower(v.GetString("ocr.engine")),
			DPI:               v.GetInt("ocr.dpi"),
			MinTextLength:     v.GetInt("ocr.min_text_length"),
			PageTimeout:       v.GetDuration("ocr.page_timeout"),
			Language:          v.GetString("ocr.language"),
			TessdataDir:       v.GetString("ocr.tessdata_dir"),
			PSM:               v.GetInt("ocr.psm"),
			OEM:               v.GetInt("ocr.oem"),
			MaxImageDimension: v.GetInt("ocr.max_image_dimension"),
			Pdftoppm:          v.GetString("ocr.pdftoppm"),
			Pdftotext:         v.GetString("ocr.pdftotext"),
			Tesseract:         v.GetString("ocr.tesseract"),
			PDFPassword:       v.GetString("ocr.pdf_password"),
		},
		Database: DatabaseConfig{
			DSN:              v.GetString("database.url"),
			SQLitePath:       v.GetString("database.sqlite_path"),
			MaxConns:         v.GetInt32("database.max_conns"),
			MinConns:         v.GetInt32("database.min_conns"),
			MaxConnLifetime:  v.GetDuration("database.max_conn_lifetime"),
			MaxConnIdleTime:  v.GetDuration("database.max_conn_idle_time"),
			DialTimeout:      v.GetDuration("database.dial_timeout"),
			StatementTimeout: v.GetDuration("database.statement_timeout"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	validator := NewValidator()
	validator.
		Field("MODEL_PATH", c.Model.Path, Required).
		Field("CONFIDENCE_THRESHOLD", c.Classifier.ConfidenceThreshold, InRange(0, 1)).
		Field("CLASSIFIER_WORKERS", c.Classifier.Workers, Positive).
		Field("OCR_DPI", c.OCR.DPI, Positive).
		Field("OCR_MIN_TEXT_LENGTH", c.OCR.MinTextLength, NonNegative).
		Field("OCR_ENGINE", c.OCR.Engine, OneOf("tesseract", "gosseract")).
		Field("MAX_UPLOAD_MB", c.Server.MaxUploadMB, Positive)
	if err := validator.Error(); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid configuration", fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	return nil
}
