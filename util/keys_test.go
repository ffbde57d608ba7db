package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestGenerateKeyPairProducesDerivablePublicKey(t *testing.T) {
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	derived, err := DerivePublicKey(pair.Private)
	if err != nil {
		t.Fatalf("DerivePublicKey failed: %v", err)
	}

	if derived != pair.Public {
		t.Error("Derived public key does not match generated public key")
	}
}

func TestDerivePublicKeyRejectsGarbage(t *testing.T) {
	if _, err := DerivePublicKey("not a key"); err == nil {
		t.Error("Expected error for invalid PEM input")
	}
}

func TestEnsureInstanceKeysIsIdempotent(t *testing.T) {
	keysDir := t.TempDir()

	if err := EnsureInstanceKeys(keysDir); err != nil {
		t.Fatalf("First EnsureInstanceKeys failed: %v", err)
	}

	privPath := filepath.Join(keysDir, InstancePrivateKeyFile)
	pubPath := filepath.Join(keysDir, InstancePublicKeyFile)

	priv1, err := os.ReadFile(privPath)
	if err != nil {
		t.Fatalf("Private key not written: %v", err)
	}

	if err := EnsureInstanceKeys(keysDir); err != nil {
		t.Fatalf("Second EnsureInstanceKeys failed: %v", err)
	}

	priv2, _ := os.ReadFile(privPath)
	if string(priv1) != string(priv2) {
		t.Error("Existing private key was regenerated")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(privPath)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("Private key permissions: got %o, want 0600", info.Mode().Perm())
		}
		info, _ = os.Stat(pubPath)
		if info.Mode().Perm() != 0644 {
			t.Errorf("Public key permissions: got %o, want 0644", info.Mode().Perm())
		}
	}
}

func TestLoadInstanceKeysRoundTrip(t *testing.T) {
	keysDir := t.TempDir()
	if err := EnsureInstanceKeys(keysDir); err != nil {
		t.Fatalf("EnsureInstanceKeys failed: %v", err)
	}

	pair, err := LoadInstanceKeys(keysDir)
	if err != nil {
		t.Fatalf("LoadInstanceKeys failed: %v", err)
	}

	derived, err := DerivePublicKey(pair.Private)
	if err != nil {
		t.Fatalf("Loaded private key is not parseable: %v", err)
	}
	if derived != pair.Public {
		t.Error("Loaded key pair is inconsistent")
	}
}

func TestLoadInstanceKeysMissingDir(t *testing.T) {
	if _, err := LoadInstanceKeys(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("Expected error for missing keys")
	}
}
