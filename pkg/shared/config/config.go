package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

type Config struct {
	Logger Logger `yaml:"logger"`
	Policy Policy `yaml:"policy"`
	Output Output `yaml:"output"`
	Backup Backup `yaml:"backup"`
}

type Logger struct {
	Level string `yaml:"level"`
}

// Policy holds the default policy applied to every plan. Command-line flags
// override these values.
type Policy struct {
	Allow         []string `yaml:"allow"`
	Deny          []string `yaml:"deny"`
	AllowGuarded  bool     `yaml:"allow_guarded"`
	AllowUnsafe   bool     `yaml:"allow_unsafe"`
	AllowDirty    bool     `yaml:"allow_dirty"`
	MaxOps        *uint64  `yaml:"max_ops"`
	MaxFiles      *uint64  `yaml:"max_files"`
	MaxPatchBytes *uint64  `yaml:"max_patch_bytes"`

	GitHeadPrecondition bool `yaml:"git_head_precondition"`
}

type Output struct {
	ArtifactsDir string `yaml:"artifacts_dir"`
	OutDir       string `yaml:"out_dir"`
}

type Backup struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Suffix  string `yaml:"suffix"`
}

func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(data); err != nil {
		return err
	}

	return nil
}

// NewConfig loads a YAML config file. A missing file yields the default config
// so buildfix works without any configuration on disk.
func NewConfig(configPath string) (*Config, error) {
	config := defaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	if err := LoadYAML(configPath, config); err != nil {
		return nil, err
	}
	applyDefaults(config)

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Output: Output{
			ArtifactsDir: "artifacts",
			OutDir:       "artifacts/buildfix",
		},
		Backup: Backup{
			Enabled: true,
			Suffix:  ".buildfix-bak",
		},
	}
}

func applyDefaults(c *Config) {
	if c.Output.ArtifactsDir == "" {
		c.Output.ArtifactsDir = "artifacts"
	}
	if c.Output.OutDir == "" {
		c.Output.OutDir = "artifacts/buildfix"
	}
	if c.Backup.Suffix == "" {
		c.Backup.Suffix = ".buildfix-bak"
	}
}
