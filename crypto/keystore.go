package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

var (
	errNilKey       = errors.New("crypto: nil private key")
	errEmptyKeyPath = errors.New("crypto: empty keystore path")
)

// SaveToKeystore encrypts an operator key into an Ethereum v3 keystore file.
// Parent directories are created with 0700 permissions and the resulting file
// is readable by the owner only.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) (Address, error) {
	if key == nil {
		return Address{}, errNilKey
	}
	if path == "" {
		return Address{}, errEmptyKeyPath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Address{}, fmt.Errorf("crypto: create keystore dir: %w", err)
	}

	// The go-ethereum keystore only writes into a directory with a generated
	// file name, so stage the file and move it into place.
	staging, err := os.MkdirTemp(dir, ".keystore-")
	if err != nil {
		return Address{}, err
	}
	defer os.RemoveAll(staging)

	ks := keystore.NewKeyStore(staging, keystore.LightScryptN, keystore.LightScryptP)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return Address{}, fmt.Errorf("crypto: import key: %w", err)
	}
	entries, err := os.ReadDir(staging)
	if err != nil {
		return Address{}, err
	}
	if len(entries) != 1 {
		return Address{}, fmt.Errorf("crypto: expected one staged keystore file, found %d", len(entries))
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Address{}, err
	}
	if err := os.Rename(filepath.Join(staging, entries[0].Name()), path); err != nil {
		return Address{}, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return Address{}, err
	}
	return key.PubKey().Address(), nil
}

// LoadFromKeystore decrypts a keystore file written by SaveToKeystore.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errEmptyKeyPath
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt keystore: %w", err)
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
