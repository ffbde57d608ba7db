package util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

const (
	InstancePrivateKeyFile = "instance_private.pem"
	InstancePublicKeyFile  = "instance_public.pem"

	rsaKeyBits = 2048
)

// RsaKeyPair holds a PEM-encoded RSA key pair. The private key is PKCS#8,
// the public key SubjectPublicKeyInfo, both unencrypted.
type RsaKeyPair struct {
	Private string
	Public  string
}

// GenerateKeyPair generates a fresh 2048-bit RSA key pair for HTTP signatures.
func GenerateKeyPair() (*RsaKeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	return &RsaKeyPair{Private: string(privPEM), Public: string(pubPEM)}, nil
}

// DerivePublicKey re-derives the PEM public key from a PEM private key.
func DerivePublicKey(privatePEM string) (string, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return "", fmt.Errorf("failed to parse PEM block")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("not an RSA private key")
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})), nil
}

// EnsureInstanceKeys makes sure the instance key pair exists under keysDir,
// generating it on first start. Existing keys are never regenerated. The
// private key file is readable by the owner only.
func EnsureInstanceKeys(keysDir string) error {
	if err := os.MkdirAll(keysDir, 0755); err != nil {
		return fmt.Errorf("failed to create keys directory: %w", err)
	}

	privPath := filepath.Join(keysDir, InstancePrivateKeyFile)
	pubPath := filepath.Join(keysDir, InstancePublicKeyFile)

	_, privErr := os.Stat(privPath)
	_, pubErr := os.Stat(pubPath)
	if privErr == nil && pubErr == nil {
		return nil
	}

	log.Infof("Generating instance ActivityPub keys in %s", keysDir)

	pair, err := GenerateKeyPair()
	if err != nil {
		return err
	}

	if err := os.WriteFile(privPath, []byte(pair.Private), 0600); err != nil {
		return fmt.Errorf("failed to write instance private key: %w", err)
	}

	if err := os.WriteFile(pubPath, []byte(pair.Public), 0644); err != nil {
		return fmt.Errorf("failed to write instance public key: %w", err)
	}

	return nil
}

// LoadInstanceKeys reads the instance key pair from keysDir.
func LoadInstanceKeys(keysDir string) (*RsaKeyPair, error) {
	priv, err := os.ReadFile(filepath.Join(keysDir, InstancePrivateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read instance private key: %w", err)
	}

	pub, err := os.ReadFile(filepath.Join(keysDir, InstancePublicKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read instance public key: %w", err)
	}

	return &RsaKeyPair{Private: string(priv), Public: string(pub)}, nil
}
