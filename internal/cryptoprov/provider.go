package cryptoprov

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Supported algorithm names
const (
	AlgorithmHybrid  = "hybrid-xchacha20"
	AlgorithmXChaCha = "xchacha20-poly1305"
)

// ConfigurationError indicates a request named an unknown algorithm.
// It is raised synchronously, before any work begins.
type ConfigurationError struct {
	Field string
	Value string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// EncryptResult carries the ciphertext and the material needed to
// decrypt it
type EncryptResult struct {
	Ciphertext []byte         `json:"-"`
	Key        []byte         `json:"-"`
	Algorithm  string         `json:"algorithm"`
	Metadata   map[string]int `json:"metadata"`
}

// Provider is the opaque cryptographic capability the orchestrator
// calls through. The core only passes bytes; real deployments plug in a
// vetted post-quantum implementation behind this interface.
type Provider interface {
	Encrypt(plaintext []byte, algorithm string) (*EncryptResult, error)
	Decrypt(ciphertext, key []byte, algorithm string) ([]byte, error)
	Algorithms() []string
}

// AEADProvider is the default Provider, built on XChaCha20-Poly1305
// with HKDF key derivation. In hybrid mode the data key is itself
// wrapped under a second derived key.
type AEADProvider struct {
	defaultAlgorithm string
	hybrid           bool
}

// NewAEADProvider creates the default provider. An unknown default
// algorithm is rejected immediately.
func NewAEADProvider(defaultAlgorithm string, hybrid bool) (*AEADProvider, error) {
	if defaultAlgorithm == "" {
		defaultAlgorithm = AlgorithmHybrid
	}
	if !known(defaultAlgorithm) {
		return nil, &ConfigurationError{Field: "algorithm", Value: defaultAlgorithm}
	}
	return &AEADProvider{defaultAlgorithm: defaultAlgorithm, hybrid: hybrid}, nil
}

// Algorithms lists the supported algorithm names
func (p *AEADProvider) Algorithms() []string {
	return []string{AlgorithmHybrid, AlgorithmXChaCha}
}

// Encrypt seals the plaintext under a fresh random key. The returned
// key is the caller's to safeguard; the provider retains nothing.
func (p *AEADProvider) Encrypt(plaintext []byte, algorithm string) (*EncryptResult, error) {
	algo, err := p.resolve(algorithm)
	if err != nil {
		return nil, err
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}

	ciphertext, err := seal(plaintext, key, []byte("data"))
	if err != nil {
		return nil, err
	}

	if algo == AlgorithmHybrid {
		// Wrap the sealed payload a second time under an
		// independently derived key, so breaking one layer is not
		// enough to recover the plaintext.
		ciphertext, err = seal(ciphertext, key, []byte("wrap"))
		if err != nil {
			return nil, err
		}
	}

	return &EncryptResult{
		Ciphertext: ciphertext,
		Key:        key,
		Algorithm:  algo,
		Metadata: map[string]int{
			"key_size":  len(key),
			"data_size": len(ciphertext),
		},
	}, nil
}

// Decrypt reverses Encrypt given the same key and algorithm
func (p *AEADProvider) Decrypt(ciphertext, key []byte, algorithm string) ([]byte, error) {
	algo, err := p.resolve(algorithm)
	if err != nil {
		return nil, err
	}

	if algo == AlgorithmHybrid {
		ciphertext, err = open(ciphertext, key, []byte("wrap"))
		if err != nil {
			return nil, err
		}
	}
	return open(ciphertext, key, []byte("data"))
}

func (p *AEADProvider) resolve(algorithm string) (string, error) {
	if algorithm == "" {
		return p.defaultAlgorithm, nil
	}
	if !known(algorithm) {
		return "", &ConfigurationError{Field: "algorithm", Value: algorithm}
	}
	return algorithm, nil
}

func known(algorithm string) bool {
	return algorithm == AlgorithmHybrid || algorithm == AlgorithmXChaCha
}

func derive(key, label []byte) ([]byte, error) {
	derived := make([]byte, chacha20poly1305.KeySize)
	reader := hkdf.New(sha256.New, key, nil, label)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, errors.Wrap(err, "hkdf expand failed")
	}
	return derived, nil
}

func seal(plaintext, key, label []byte) ([]byte, error) {
	derived, err := derive(key, label)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct aead")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func open(ciphertext, key, label []byte) ([]byte, error) {
	derived, err := derive(key, label)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct aead")
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decryption failed")
	}
	return plaintext, nil
}
