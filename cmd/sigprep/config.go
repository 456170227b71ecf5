package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inkmill/sigprep/convert"
	"github.com/inkmill/sigprep/pipeline"
	"github.com/inkmill/sigprep/provider"
	"github.com/inkmill/sigprep/submit"
)

// config is the service configuration: an optional YAML file (CONFIG_FILE)
// with environment variables taking precedence over it.
type config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	OutputDir string `yaml:"output_dir"`
	LogLevel  string `yaml:"log_level"`

	// AuthUser/AuthPassword protect the API with HTTP Basic Auth. The
	// password is bcrypt-hashed at startup and only the hash is kept.
	AuthUser     string `yaml:"auth_user"`
	AuthPassword string `yaml:"auth_password"`

	ConvertToPDF bool `yaml:"convert_to_pdf"`

	Provider provider.Config `yaml:"provider"`
	Submit   submit.Config   `yaml:"submit"`
	Convert  convert.Config  `yaml:"convert"`
	Pipeline pipeline.Config `yaml:"pipeline"`
}

func loadConfig() (config, error) {
	cfg := config{
		Port:      "8086",
		DBPath:    "db/sigprep.db",
		OutputDir: "data/prepared",
		LogLevel:  "info",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.Port = env("PORT", cfg.Port)
	cfg.DBPath = env("DB_PATH", cfg.DBPath)
	cfg.OutputDir = env("OUTPUT_DIR", cfg.OutputDir)
	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)
	cfg.AuthUser = env("AUTH_USER", cfg.AuthUser)
	cfg.AuthPassword = env("AUTH_PASSWORD", cfg.AuthPassword)
	cfg.Provider.BaseURL = env("PROVIDER_BASE_URL", cfg.Provider.BaseURL)
	cfg.Provider.APIKey = env("PROVIDER_API_KEY", cfg.Provider.APIKey)
	cfg.Convert.Binary = env("SOFFICE_BIN", cfg.Convert.Binary)
	if v := os.Getenv("CONVERT_TO_PDF"); v != "" {
		cfg.ConvertToPDF, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("SUBMIT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("SUBMIT_TIMEOUT: %w", err)
		}
		cfg.Submit.Timeout = d
	}

	if cfg.AuthUser == "" || cfg.AuthPassword == "" {
		return cfg, fmt.Errorf("AUTH_USER and AUTH_PASSWORD are required")
	}
	if cfg.Provider.BaseURL == "" {
		return cfg, fmt.Errorf("PROVIDER_BASE_URL is required")
	}

	cfg.Pipeline.OutputDir = cfg.OutputDir
	cfg.Pipeline.ConvertToPDF = cfg.ConvertToPDF
	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
