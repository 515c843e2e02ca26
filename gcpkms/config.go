package gcpkms

import (
	"encoding/json"
	"os"

	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/pkg/errors"
)

// Key consists of required information to retrieve the GCP KMS Key path.
type Key struct {
	// Keyring is the name of your KMS keyring.
	Keyring string `json:"Keyring" env:"GOOGLE_KEYRING"`

	// Name is the name of the key in the Keyring.
	Name string `json:"Name" env:"GOOGLE_KEY_NAME"`

	// Version is the version of the current key, starting from 1.
	Version uint64 `json:"Version" env:"GOOGLE_KEY_VERSION" env-default:"1"`
}

func (k Key) isValid() bool {
	return k.Keyring != "" && k.Name != "" && k.Version >= 1
}

// Config represents required information to create a Google Cloud KMS client.
type Config struct {
	// ProjectID is the ID of the working GCP project.
	ProjectID string `json:"ProjectID" env:"GOOGLE_PROJECT_ID"`

	// LocationID is the region ID of the project.
	//
	// Example: us-west1.
	LocationID string `json:"LocationID" env:"GOOGLE_LOCATION"`

	// CredentialLocation is the absolute path of the credential file downloaded from the GCP.
	//
	// Example: "/Users/SomeUser/.cred/gcp-credential.json".
	// Leave this field empty to use the environment variable `GOOGLE_APPLICATION_CREDENTIALS`, or the credentials
	// of the platform the process runs on.
	CredentialLocation string `json:"CredentialLocation,omitempty" env:"GOOGLE_APPLICATION_CREDENTIALS"`

	// Key is the detail of the GCP KMS key.
	Key Key `json:"Key"`

	// ChainID is the ID of the target EVM chain.
	//
	// See https://chainlist.org.
	ChainID uint64 `json:"ChainID" env:"KMS_CHAIN_ID" env-default:"1"`
}

// IsValid checks if a Config is valid.
func (cfg Config) IsValid() (bool, error) {
	if cfg.ProjectID == "" {
		return false, errors.Wrap(kmscommon.ErrInvalidConfiguration, "empty ProjectID")
	}

	if cfg.LocationID == "" {
		return false, errors.Wrap(kmscommon.ErrInvalidConfiguration, "empty LocationID")
	}

	if !cfg.Key.isValid() {
		return false, errors.Wrap(kmscommon.ErrInvalidConfiguration, "invalid Key")
	}

	return true, nil
}

// KeyVersionPath returns the path of the configured key version.
func (cfg Config) KeyVersionPath() (KeyVersionPath, error) {
	keyRing, err := NewKeyRing(cfg.ProjectID, cfg.LocationID, cfg.Key.Keyring)
	if err != nil {
		return KeyVersionPath{}, err
	}

	return keyRing.KeyVersion(cfg.Key.Name, cfg.Key.Version)
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

	if cfg.CredentialLocation == "" {
		cfg.CredentialLocation = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}

	if _, err = cfg.IsValid(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
