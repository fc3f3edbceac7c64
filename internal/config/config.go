package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const configDir = ".policyqa"
const configFile = "config.toml"
const logFile = "policyqa.log"

// Environment overrides, also read from a .env file in the working directory.
const (
	EnvServer   = "POLICYQA_SERVER"
	EnvToken    = "POLICYQA_TOKEN"
	EnvLogLevel = "POLICYQA_LOG_LEVEL"
)

type Config struct {
	Server         string `toml:"server" validate:"required,url"`
	Username       string `toml:"username,omitempty"`
	Token          string `toml:"token,omitempty" validate:"required"`
	ConversationID string `toml:"conversation_id,omitempty"`
	LogLevel       string `toml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error off"`
	LogFile        string `toml:"log_file,omitempty"`
	Profile        string `toml:"-"`
}

var validate = validator.New()

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot find home directory: %w", err)
	}
	return filepath.Join(home, configDir), nil
}

func configPath(profile string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	filename := configFile
	if profile != "" {
		filename = fmt.Sprintf("config-%s.toml", profile)
	}
	return filepath.Join(dir, filename), nil
}

// Load reads the profile's config file. A missing file yields an empty config.
func Load(profile string) (*Config, error) {
	path, err := configPath(profile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Profile: profile}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Profile = profile
	return &cfg, nil
}

// Resolve is Load followed by the .env file and environment overrides. The
// result is meant for running commands; persist changes with Load + Save so
// overrides never end up on disk.
func Resolve(profile string) (*Config, error) {
	cfg, err := Load(profile)
	if err != nil {
		return nil, err
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvServer); v != "" {
		c.Server = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Token = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) Save() error {
	path, err := configPath(c.Profile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// SaveConversation records the active conversation in the profile's file
// without writing environment overrides back to disk.
func SaveConversation(profile, conversationID string) error {
	cfg, err := Load(profile)
	if err != nil {
		return err
	}
	if cfg.ConversationID == conversationID {
		return nil
	}
	cfg.ConversationID = conversationID
	return cfg.Save()
}

// LogPath returns the configured log file or the default under ~/.policyqa.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	dir, err := Dir()
	if err != nil {
		return filepath.Join(os.TempDir(), logFile)
	}
	return filepath.Join(dir, logFile)
}

func (c *Config) profileFlag() string {
	if c.Profile == "" {
		return ""
	}
	return " --profile " + c.Profile
}

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	pf := c.profileFlag()
	// Report the first problem in the order a user has to fix them.
	for _, field := range []string{"Server", "Token", "LogLevel"} {
		for _, fe := range verrs {
			if fe.Field() != field {
				continue
			}
			switch field {
			case "Server":
				if fe.Tag() == "url" {
					return fmt.Errorf("invalid server URL %q. Run: policyqa%s set server <url>", c.Server, pf)
				}
				return fmt.Errorf("server not set. Run: policyqa%s set server <url>", pf)
			case "Token":
				return fmt.Errorf("not authenticated. Run: policyqa%s set token <token>", pf)
			case "LogLevel":
				return fmt.Errorf("invalid log level %q (want debug, info, warn, error or off)", c.LogLevel)
			}
		}
	}
	return fmt.Errorf("invalid config: %w", err)
}

func ListProfiles() ([]string, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config directory: %w", err)
	}
	var profiles []string
	for _, e := range entries {
		name := e.Name()
		if name == configFile {
			profiles = append(profiles, "default")
			continue
		}
		if strings.HasPrefix(name, "config-") && strings.HasSuffix(name, ".toml") {
			profiles = append(profiles, strings.TrimSuffix(strings.TrimPrefix(name, "config-"), ".toml"))
		}
	}
	return profiles, nil
}

func ProfileName(profile string) string {
	if profile == "" {
		return "default"
	}
	return profile
}
