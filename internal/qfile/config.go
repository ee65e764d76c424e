package qfile

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the harness configuration shared by every test in a run:
// connection credentials, the directory layout, and the shared init and
// cleanup scripts. Directory values double as mask targets during
// normalization, so they are carried verbatim.
type Config struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	URL      string `yaml:"url"`
	Driver   string `yaml:"driver"`

	RootDir      string `yaml:"root_dir"`
	QFileDir     string `yaml:"qfile_dir"`
	OutputDir    string `yaml:"output_dir"`
	ExpectedDir  string `yaml:"expected_dir"`
	ScratchDir   string `yaml:"scratch_dir"`
	WarehouseDir string `yaml:"warehouse_dir"`

	TestDataDir   string `yaml:"test_data_dir"`
	TestScriptDir string `yaml:"test_script_dir"`
	InitScript    string `yaml:"init_script"`
	CleanupScript string `yaml:"cleanup_script"`
}

// LoadConfig reads and parses a harness config YAML file.
// Unknown fields are rejected to catch typos.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"qfile_dir", c.QFileDir},
		{"output_dir", c.OutputDir},
		{"expected_dir", c.ExpectedDir},
		{"test_script_dir", c.TestScriptDir},
		{"init_script", c.InitScript},
		{"cleanup_script", c.CleanupScript},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("missing required field: %s", f.name)
		}
	}
	return nil
}
