package gcpkms

import (
	"fmt"

	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/pkg/errors"
)

// KeyRing locates a key ring inside the GCP KMS resource hierarchy.
type KeyRing struct {
	projectID  string
	locationID string
	keyRingID  string
}

// NewKeyRing creates a KeyRing. All arguments must be non-empty.
func NewKeyRing(projectID, locationID, keyRingID string) (KeyRing, error) {
	if projectID == "" {
		return KeyRing{}, errors.Wrap(kmscommon.ErrInvalidConfiguration, "empty ProjectID")
	}
	if locationID == "" {
		return KeyRing{}, errors.Wrap(kmscommon.ErrInvalidConfiguration, "empty LocationID")
	}
	if keyRingID == "" {
		return KeyRing{}, errors.Wrap(kmscommon.ErrInvalidConfiguration, "empty Keyring")
	}

	return KeyRing{projectID: projectID, locationID: locationID, keyRingID: keyRingID}, nil
}

// ProjectID returns the ID of the GCP project.
func (k KeyRing) ProjectID() string { return k.projectID }

// LocationID returns the region of the key ring.
func (k KeyRing) LocationID() string { return k.locationID }

// KeyRingID returns the name of the key ring.
func (k KeyRing) KeyRingID() string { return k.keyRingID }

// String returns the resource name projects/{p}/locations/{l}/keyRings/{k}.
func (k KeyRing) String() string {
	return fmt.Sprintf("projects/%s/locations/%s/keyRings/%s", k.projectID, k.locationID, k.keyRingID)
}

// KeyVersion addresses version `version` of the key `keyName` in this key ring.
func (k KeyRing) KeyVersion(keyName string, version uint64) (KeyVersionPath, error) {
	if keyName == "" {
		return KeyVersionPath{}, errors.Wrap(kmscommon.ErrInvalidConfiguration, "empty key Name")
	}
	if version < 1 {
		return KeyVersionPath{}, errors.Wrapf(kmscommon.ErrInvalidConfiguration, "invalid key Version %d", version)
	}

	return KeyVersionPath{keyRing: k, keyName: keyName, version: version}, nil
}

func (k KeyRing) cryptoKeyName(keyName string) string {
	return fmt.Sprintf("%s/cryptoKeys/%s", k, keyName)
}

// KeyVersionPath fully determines one version of one asymmetric key.
type KeyVersionPath struct {
	keyRing KeyRing
	keyName string
	version uint64
}

// KeyRing returns the key ring holding the key.
func (p KeyVersionPath) KeyRing() KeyRing { return p.keyRing }

// KeyName returns the name of the key.
func (p KeyVersionPath) KeyName() string { return p.keyName }

// Version returns the key version number.
func (p KeyVersionPath) Version() uint64 { return p.version }

// String returns the resource name .../cryptoKeys/{name}/cryptoKeyVersions/{version}.
func (p KeyVersionPath) String() string {
	return fmt.Sprintf("%s/cryptoKeyVersions/%d", p.keyRing.cryptoKeyName(p.keyName), p.version)
}
