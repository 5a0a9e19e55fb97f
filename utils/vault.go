package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultAlgorithm  = "aes-256-gcm"
	vaultIterations = 100_000
	vaultKeyLen     = 32
)

// Envelope is the self-describing encrypted blob stored in place of a
// credential. The GCM tag is carried inside Ciphertext.
type Envelope struct {
	Algorithm   string `json:"alg"`
	KeyVersion  int    `json:"v"`
	Nonce       string `json:"nonce"`
	Ciphertext  string `json:"ct"`
	EncryptedAt int64  `json:"ts"`
}

// CredentialVault encrypts per-tenant third-party credentials under keys
// derived from a master secret, scoped to tenant + key version so a ciphertext
// cannot be opened under the wrong tenant or version. It performs no storage
// or network I/O; persistence is the caller's job.
type CredentialVault struct {
	master []byte
	salt   []byte
}

func NewCredentialVault(masterSecret, deploymentSalt string) *CredentialVault {
	return &CredentialVault{
		master: []byte(masterSecret),
		salt:   []byte(deploymentSalt),
	}
}

func (v *CredentialVault) scope(tenantID uint, keyVersion int) []byte {
	return []byte(fmt.Sprintf("tenant:%d:v%d", tenantID, keyVersion))
}

func (v *CredentialVault) deriveKey(tenantID uint, keyVersion int) []byte {
	salt := append(append([]byte{}, v.salt...), v.scope(tenantID, keyVersion)...)
	return pbkdf2.Key(v.master, salt, vaultIterations, vaultKeyLen, sha256.New)
}

// Encrypt seals plaintext under the tenant+version scoped key. The scope is
// bound as GCM associated data, so Decrypt fails for any other tenant or
// version. Returns a base64-encoded JSON envelope suitable for opaque storage.
func (v *CredentialVault) Encrypt(plaintext string, tenantID uint, keyVersion int) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(v.deriveKey(tenantID, keyVersion))
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), v.scope(tenantID, keyVersion))

	envelope := Envelope{
		Algorithm:   vaultAlgorithm,
		KeyVersion:  keyVersion,
		Nonce:       base64.StdEncoding.EncodeToString(nonce),
		Ciphertext:  base64.StdEncoding.EncodeToString(sealed),
		EncryptedAt: time.Now().Unix(),
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// Decrypt opens an envelope for the given tenant. Fails with a decryption
// error when the tag does not verify, the algorithm is unrecognized, or the
// tenant does not match the associated data bound at encryption time.
func (v *CredentialVault) Decrypt(encoded string, tenantID uint) (string, error) {
	if encoded == "" {
		return "", nil
	}

	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryption(err)
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", ErrDecryption(err)
	}
	if envelope.Algorithm != vaultAlgorithm {
		return "", ErrDecryption(fmt.Errorf("unrecognized algorithm %q", envelope.Algorithm))
	}

	nonce, err := base64.StdEncoding.DecodeString(envelope.Nonce)
	if err != nil {
		return "", ErrDecryption(err)
	}
	sealed, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return "", ErrDecryption(err)
	}

	block, err := aes.NewCipher(v.deriveKey(tenantID, envelope.KeyVersion))
	if err != nil {
		return "", ErrDecryption(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecryption(err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", ErrDecryption(errors.New("invalid nonce length"))
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, v.scope(tenantID, envelope.KeyVersion))
	if err != nil {
		return "", ErrDecryption(err)
	}
	return string(plaintext), nil
}

// RotateKey re-encrypts an envelope from oldVersion to newVersion without the
// plaintext ever touching storage.
func (v *CredentialVault) RotateKey(tenantID uint, oldVersion, newVersion int, encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryption(err)
	}
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", ErrDecryption(err)
	}
	if envelope.KeyVersion != oldVersion {
		return "", ErrDecryption(fmt.Errorf("envelope is at version %d, expected %d", envelope.KeyVersion, oldVersion))
	}

	plaintext, err := v.Decrypt(encoded, tenantID)
	if err != nil {
		return "", err
	}
	return v.Encrypt(plaintext, tenantID, newVersion)
}
