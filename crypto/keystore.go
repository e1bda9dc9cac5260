package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrEmptyKeystorePath = errors.New("crypto: empty keystore path")
	// ErrKeystoreAddress is returned when the address recorded in a keystore
	// file does not belong to the key it encrypts.
	ErrKeystoreAddress = errors.New("crypto: keystore address does not match key")
	// ErrOwnerMismatch is returned when a game owner is not the operator key.
	ErrOwnerMismatch = errors.New("crypto: owner is not the operator key")
)

// OperatorKey is a decrypted account key with the player address it controls.
type OperatorKey struct {
	Key     *PrivateKey
	Address Address
}

// KeystoreOption tunes keystore encryption.
type KeystoreOption func(*keystoreParams)

type keystoreParams struct {
	scryptN int
	scryptP int
}

// WithLightScrypt trades key-derivation cost for speed. Meant for tests and
// throwaway dev keys.
func WithLightScrypt() KeystoreOption {
	return func(p *keystoreParams) {
		p.scryptN = keystore.LightScryptN
		p.scryptP = keystore.LightScryptP
	}
}

// SaveOperatorKey encrypts key into a v3 keystore file at path and returns the
// sav address it controls. The file is written beside its final name and
// renamed into place, so a crash never leaves a truncated keystore.
func SaveOperatorKey(path string, key *PrivateKey, passphrase string, opts ...KeystoreOption) (Address, error) {
	if key == nil {
		return Address{}, errors.New("crypto: nil private key")
	}
	if path == "" {
		return Address{}, ErrEmptyKeystorePath
	}
	params := keystoreParams{scryptN: keystore.StandardScryptN, scryptP: keystore.StandardScryptP}
	for _, opt := range opts {
		opt(&params)
	}

	addr := key.PubKey().Address()
	encoded, err := keystore.EncryptKey(&keystore.Key{
		Id:         uuid.New(),
		Address:    common.BytesToAddress(addr.Bytes()),
		PrivateKey: key.PrivateKey,
	}, passphrase, params.scryptN, params.scryptP)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: encrypt operator key: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Address{}, err
	}
	tmp, err := os.CreateTemp(dir, ".operator-*.keystore")
	if err != nil {
		return Address{}, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return Address{}, err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return Address{}, err
	}
	if err := tmp.Close(); err != nil {
		return Address{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// LoadOperatorKey decrypts the keystore at path.
func LoadOperatorKey(path, passphrase string) (*OperatorKey, error) {
	if path == "" {
		return nil, ErrEmptyKeystorePath
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt %s: %w", filepath.Base(path), err)
	}
	key := &PrivateKey{PrivateKey: decrypted.PrivateKey}
	addr := key.PubKey().Address()
	if !bytes.Equal(decrypted.Address.Bytes(), addr.Bytes()) {
		return nil, ErrKeystoreAddress
	}
	return &OperatorKey{Key: key, Address: addr}, nil
}

// Owns reports whether owner, a bech32 string, is this key's sav address.
// Module addresses never qualify.
func (k *OperatorKey) Owns(owner string) error {
	decoded, err := DecodeAddress(owner)
	if err != nil {
		return err
	}
	if decoded.Prefix() != PlayerPrefix {
		return fmt.Errorf("%w: %s is not a %s address", ErrOwnerMismatch, owner, PlayerPrefix)
	}
	if !decoded.Equal(k.Address) {
		return fmt.Errorf("%w: owner %s, key %s", ErrOwnerMismatch, owner, k.Address)
	}
	return nil
}
