package kms

import (
	"context"
	"os"
	"testing"

	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadConfigFromJsonFile(t *testing.T) {
	cfg, err := LoadConfigFromJSONFile("./testdata/config-example.json")
	require.NoError(t, err)

	assert.Equal(t, gcpType, cfg.Type)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "evm-kms", cfg.GcpConfig.ProjectID)
	assert.Equal(t, uint64(2), cfg.GcpConfig.Key.Version)
	assert.Equal(t, uint64(5), cfg.GcpConfig.ChainID)
	assert.Equal(t, "alias/evm-ecdsa", cfg.AwsConfig.KeyID)

	path, err := cfg.GcpConfig.KeyVersionPath()
	require.NoError(t, err)
	assert.Equal(t,
		"projects/evm-kms/locations/us-west1/keyRings/my-keyring/cryptoKeys/evm-ecdsa/cryptoKeyVersions/2",
		path.String())

	_, err = LoadConfigFromJSONFile("./testdata/missing.json")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(map[string]interface{}{
		"type": "AWS",
		"aws": map[string]interface{}{
			"KeyID":   "alias/evm-ecdsa",
			"ChainID": 1,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "alias/evm-ecdsa", cfg.AwsConfig.KeyID)

	_, err = LoadConfig(map[string]interface{}{"type": "azure"})
	assert.True(t, errors.Is(err, kmscommon.ErrInvalidConfiguration), "got %v", err)

	_, err = LoadConfig(map[string]interface{}{"type": "gcp"})
	assert.True(t, errors.Is(err, kmscommon.ErrInvalidConfiguration), "got %v", err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Run("reads variables", func(t *testing.T) {
		t.Setenv("KMS_TYPE", "gcp")
		t.Setenv("GOOGLE_PROJECT_ID", "evm-kms")
		t.Setenv("GOOGLE_LOCATION", "us-west1")
		t.Setenv("GOOGLE_KEYRING", "my-keyring")
		t.Setenv("GOOGLE_KEY_NAME", "evm-ecdsa")
		t.Setenv("KMS_CHAIN_ID", "5")

		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, uint64(1), cfg.GcpConfig.Key.Version)
		assert.Equal(t, uint64(5), cfg.GcpConfig.ChainID)
		assert.Equal(t, "my-keyring", cfg.GcpConfig.Key.Keyring)
	})

	t.Run("reads .env files", func(t *testing.T) {
		for _, key := range []string{"KMS_TYPE", "KMS_CHAIN_ID", "AWS_KMS_KEY_ID", "AWS_REGION"} {
			if value, ok := os.LookupEnv(key); ok {
				t.Setenv(key, value)
				require.NoError(t, os.Unsetenv(key))
			}
			key := key
			t.Cleanup(func() { _ = os.Unsetenv(key) })
		}

		cfg, err := LoadConfigFromEnv("./testdata/aws.env", "./testdata/missing.env")
		require.NoError(t, err)
		assert.Equal(t, awsType, cfg.Type)
		assert.Equal(t, "alias/evm-ecdsa", cfg.AwsConfig.KeyID)
		assert.Equal(t, "eu-central-1", cfg.AwsConfig.Region)
		assert.Equal(t, uint64(137), cfg.AwsConfig.ChainID)
	})
}

func TestNewKMSSigner(t *testing.T) {
	_, err := NewKMSSigner(context.Background(), Config{Type: "azure"})
	assert.True(t, errors.Is(err, kmscommon.ErrInvalidConfiguration), "got %v", err)

	s, err := NewKMSSigner(context.Background(), Config{Type: gcpType})
	assert.True(t, errors.Is(err, kmscommon.ErrInvalidConfiguration), "got %v", err)
	assert.Nil(t, s)
}

func TestSetupLogging(t *testing.T) {
	defer SetupLogging("info")

	SetupLogging("debug")
	assert.True(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))

	SetupLogging("not-a-level")
	assert.False(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))
}

func TestConfig_SetupLogging(t *testing.T) {
	defer SetupLogging("info")

	cfg, err := LoadConfigFromJSONFile("./testdata/config-example.json")
	require.NoError(t, err)
	cfg.SetupLogging()
	assert.True(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))

	// an empty level keeps the current setup
	Config{}.SetupLogging()
	assert.True(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))

	cfg.LogLevel = "error"
	cfg.GcpConfig.CredentialLocation = "./testdata/missing-credential.json"
	_, err = NewKMSSigner(context.Background(), *cfg)
	assert.True(t, errors.Is(err, kmscommon.ErrAuthentication), "got %v", err)
	assert.False(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Desugar().Core().Enabled(zapcore.ErrorLevel))
}
