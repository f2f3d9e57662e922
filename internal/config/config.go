package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"finscan/internal/checks"
	"finscan/internal/logger"
	"finscan/internal/ocr"
	"finscan/internal/pagemode"
	"finscan/internal/pipeline"
	"finscan/internal/quality"
	"finscan/internal/toc"
	"finscan/pkg/models"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// OpenAI Configuration (advisory section hints)
	OpenAIAPIKey string
	OpenAIModel  string

	// Google Cloud Configuration
	GoogleCloudProject      string
	GoogleCloudLocation     string
	DocumentAIProcessorID   string
	GoogleServiceAccountKey string

	// Google Sheets Configuration
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// OCR Configuration
	OCREngine       string
	OCRLanguages    []string
	VisionRateLimit time.Duration

	// Pipeline Configuration
	PageWorkers      int
	CPUWorkers       int
	AcceleratorSlots int
	DocumentTimeout  time.Duration
	BatchWorkers     int

	// Storage and serving
	SnapshotDB string
	ListenAddr string

	// TuningFile is an optional YAML file with thresholds and the pass ladder.
	TuningFile string
	Tuning     Tuning

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Tuning holds the thresholds that are easier to keep in a file than in env
type Tuning struct {
	Passes   []models.PassConfig `yaml:"passes"`
	Quality  quality.Thresholds  `yaml:"quality"`
	PageMode pagemode.Thresholds `yaml:"page_mode"`
	Offset   toc.OffsetConfig    `yaml:"offset"`
	Checks   checks.Config       `yaml:"checks"`
	TOCTrust float64             `yaml:"toc_trust"`
	FailGate float64             `yaml:"fail_gate"`
}

func Load() (*Config, error) {
	config := &Config{
		OpenAIAPIKey:            getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:             getEnv("OPENAI_MODEL", ""),
		GoogleCloudProject:      getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:     getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:   getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		GoogleServiceAccountKey: getEnv("GOOGLE_SERVICE_ACCOUNT_KEY", ""),
		GoogleSheetURL:          getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:    getEnv("GOOGLE_SHEET_WORKSHEET", "Findings"),
		OCREngine:               getEnv("OCR_ENGINE", "tesseract"),
		OCRLanguages:            splitList(getEnv("OCR_LANGUAGES", "fin,eng")),
		VisionRateLimit:         envDur("VISION_RATE_LIMIT", 100*time.Millisecond),
		PageWorkers:             envInt("PAGE_WORKERS", 4),
		CPUWorkers:              envInt("CPU_WORKERS", 0),
		AcceleratorSlots:        envInt("ACCELERATOR_SLOTS", 1),
		DocumentTimeout:         envDur("DOCUMENT_TIMEOUT", 30*time.Minute),
		BatchWorkers:            envInt("BATCH_WORKERS", 2),
		SnapshotDB:              getEnv("FINSCAN_SNAPSHOT_DB", "data/finscan.db"),
		ListenAddr:              getEnv("FINSCAN_LISTEN_ADDR", ":8080"),
		TuningFile:              getEnv("FINSCAN_TUNING_FILE", ""),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:           getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:               getEnv("LOG_OUTPUT", "stdout"),
	}

	if config.TuningFile != "" {
		tuning, err := LoadTuning(config.TuningFile)
		if err != nil {
			return nil, fmt.Errorf("config tuning file: %w", err)
		}
		config.Tuning = *tuning
	}
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadTuning reads a YAML tuning file. Missing keys keep their defaults.
func LoadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &t, nil
}

func (c *Config) applyDefaults() {
	if len(c.Tuning.Passes) == 0 {
		c.Tuning.Passes = ocr.DefaultPasses()
	}
	c.Tuning.Quality = c.Tuning.Quality.WithDefaults()
	c.Tuning.PageMode = c.Tuning.PageMode.WithDefaults()
	c.Tuning.Offset = c.Tuning.Offset.WithDefaults()
	c.Tuning.Checks = c.Tuning.Checks.WithDefaults()
	if c.BatchWorkers <= 0 {
		c.BatchWorkers = 1
	}
}

func (c *Config) validate() error {
	engines, err := ParseEngines(c.OCREngine)
	if err != nil {
		return err
	}
	for _, e := range engines {
		if e == "vision" && c.GoogleCloudProject == "" {
			return errors.New("GOOGLE_CLOUD_PROJECT is required for OCR_ENGINE=vision")
		}
	}
	if err := ocr.ValidatePasses(c.Tuning.Passes); err != nil {
		return fmt.Errorf("tuning passes: %w", err)
	}
	if a := c.Tuning.Offset.MinAgreement; a <= 0 || a > 1 {
		return fmt.Errorf("offset min_agreement must be in (0, 1], got %v", a)
	}
	if t := c.Tuning.TOCTrust; t < 0 || t > 1 {
		return fmt.Errorf("toc_trust must be in [0, 1], got %v", t)
	}
	if c.PageWorkers < 1 {
		return fmt.Errorf("PAGE_WORKERS must be at least 1, got %d", c.PageWorkers)
	}
	return nil
}

// ParseEngines splits an engine list such as "tesseract,vision". The first
// engine is the default one; "none" alone disables OCR.
func ParseEngines(s string) ([]string, error) {
	names := splitList(s)
	if len(names) == 0 {
		return nil, errors.New("OCR_ENGINE is empty")
	}
	if len(names) == 1 && names[0] == "none" {
		return nil, nil
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		switch n {
		case "tesseract", "vision":
		default:
			return nil, fmt.Errorf("OCR_ENGINE entries must be tesseract or vision (or none alone), got %q", n)
		}
		if seen[n] {
			return nil, fmt.Errorf("OCR_ENGINE lists %q twice", n)
		}
		seen[n] = true
	}
	return names, nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// Pipeline returns the pipeline configuration
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		PageWorkers:      c.PageWorkers,
		CPUWorkers:       c.CPUWorkers,
		AcceleratorSlots: c.AcceleratorSlots,
		DocumentTimeout:  c.DocumentTimeout,
		FailGate:         c.Tuning.FailGate,
		Languages:        c.OCRLanguages,
		Passes:           c.Tuning.Passes,
		Quality:          c.Tuning.Quality,
		PageMode:         c.Tuning.PageMode,
		Offset:           c.Tuning.Offset,
		Checks:           c.Tuning.Checks,
		TOCTrust:         c.Tuning.TOCTrust,
	}.WithDefaults()
}

// Checks returns the checker configuration
func (c *Config) Checks() checks.Config {
	return c.Tuning.Checks
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func envDur(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' || r == ' ' })
}
