package awskms

import (
	"encoding/json"
	"os"

	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/pkg/errors"
)

// Config represents required information to create an AWS KMS client.
type Config struct {
	// KeyID is the ID (or ARN, or alias) of the working AWS KMS key.
	KeyID string `json:"KeyID" env:"AWS_KMS_KEY_ID"`

	// Region is the AWS region of the key. Leave empty to use the region of the default AWS configuration.
	Region string `json:"Region,omitempty" env:"AWS_REGION"`

	// ChainID is the ID of the target EVM chain.
	//
	// See https://chainlist.org.
	ChainID uint64 `json:"ChainID" env:"KMS_CHAIN_ID" env-default:"1"`
}

// IsValid checks if a Config is valid.
func (cfg Config) IsValid() (bool, error) {
	if cfg.KeyID == "" {
		return false, errors.Wrap(kmscommon.ErrInvalidConfiguration, "empty KeyID")
	}

	return true, nil
}

// StaticCredentialsConfig is a Config with explicit AWS credentials.
type StaticCredentialsConfig struct {
	Config

	AccessKeyID     string `json:"AccessKeyID"`
	SecretAccessKey string `json:"SecretAccessKey"`
	SessionToken    string `json:"SessionToken,omitempty"`
}

// IsValid checks if a StaticCredentialsConfig is valid.
func (cfg StaticCredentialsConfig) IsValid() (bool, error) {
	if _, err := cfg.Config.IsValid(); err != nil {
		return false, err
	}
	if cfg.Region == "" {
		return false, errors.Wrap(kmscommon.ErrInvalidConfiguration, "empty Region")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return false, errors.Wrap(kmscommon.ErrInvalidConfiguration, "empty credentials")
	}

	return true, nil
}

// LoadConfigFromFile loads the config from the given config file.
func LoadConfigFromFile(filePath string) (*Config, error) {
	f, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = json.Unmarshal(f, &cfg)
	if err != nil {
		return nil, err
	}

	if _, err = cfg.IsValid(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
