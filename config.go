package kms

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/LampardNguyen234/evm-kms-signer/awskms"
	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/LampardNguyen234/evm-kms-signer/gcpkms"
	"github.com/ilyakaznacheev/cleanenv"
	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	gcpType = "gcp"
	awsType = "aws"
)

var log = logging.Logger("kms")

// Config is the holder for the KMS service.
type Config struct {
	// Type indicates which service we are using ('gcp', 'aws').
	Type string `json:"type" env:"KMS_TYPE" env-default:"gcp"`

	// LogLevel is the go-log level applied by Config.SetupLogging and NewKMSSigner ('debug', 'info', 'warn', 'error').
	// Leave it empty to keep the current logging setup.
	LogLevel string `json:"logLevel,omitempty" env:"KMS_LOG_LEVEL" env-default:"info"`

	// GcpConfig is the detail of the GCP KMS Config.
	GcpConfig gcpkms.Config `json:"gcp"`

	// AwsConfig is the detail of the AWS KMS Config.
	AwsConfig awskms.Config `json:"aws"`
}

func (cfg Config) serviceType() string {
	return strings.ToLower(strings.TrimSpace(cfg.Type))
}

// IsValid checks if the current Config is valid.
func (cfg Config) IsValid() (bool, error) {
	switch cfg.serviceType() {
	case awsType:
		return cfg.AwsConfig.IsValid()
	case gcpType:
		return cfg.GcpConfig.IsValid()
	}

	return false, errors.Wrapf(kmscommon.ErrInvalidConfiguration, "KMS Config type `%v` not supported", cfg.Type)
}

// LoadConfigFromJSONFile creates a Config from the given the json config file.
func LoadConfigFromJSONFile(filePath string) (*Config, error) {
	bytesValue, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var res map[string]interface{}
	err = json.Unmarshal(bytesValue, &res)
	if err != nil {
		return nil, errors.Wrapf(kmscommon.ErrInvalidConfiguration, "cannot parse %v: %v", filePath, err)
	}

	return LoadConfig(res)
}

// LoadConfig creates a Config from the given raw config data.
func LoadConfig(rawConfig map[string]interface{}) (*Config, error) {
	jsb, err := json.Marshal(rawConfig)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = json.Unmarshal(jsb, &cfg)
	if err != nil {
		return nil, errors.Wrap(kmscommon.ErrInvalidConfiguration, err.Error())
	}

	if _, err = cfg.IsValid(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadConfigFromEnv creates a Config from environment variables, after loading the given .env files.
// Missing .env files are skipped.
func LoadConfigFromEnv(envFiles ...string) (*Config, error) {
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err != nil {
			log.Warnw(".env file not loaded", "path", envFile, "error", err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(kmscommon.ErrInvalidConfiguration, err.Error())
	}

	if _, err := cfg.IsValid(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetupLogging configures the go-log loggers of this module to write to stderr at the given level.
// An empty or unknown level falls back to info.
func SetupLogging(level string) {
	lvl, err := logging.Parse(level)
	if err != nil {
		lvl = logging.LevelInfo
	}

	logging.SetupLogging(logging.Config{
		Level:  lvl,
		Stderr: true,
	})
}

// SetupLogging applies cfg.LogLevel to the go-log loggers. It does nothing if LogLevel is empty.
func (cfg Config) SetupLogging() {
	if cfg.LogLevel == "" {
		return
	}

	SetupLogging(cfg.LogLevel)
}
