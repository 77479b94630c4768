// Package identity manages the Ed25519 keypair a worldline's WorldlineId
// is derived from, persisting it to disk with the same write-temp-then-
// rename durability pattern the refs store uses.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/worldline-vcs/wll/internal/crypto"
)

// Identity pairs a signing keypair with the WorldlineId it derives.
type Identity struct {
	KeyPair     crypto.KeyPair
	WorldlineId crypto.ObjectId
}

func keyPath(dir string) string {
	return filepath.Join(dir, "identity.key")
}

// Load reads the persisted keypair from <dir>/identity.key, or, if absent,
// generates a fresh one and persists it atomically before returning it —
// every worldline needs exactly one identity, minted on first use.
func Load(dir string) (Identity, error) {
	path := keyPath(dir)
	data, err := os.ReadFile(path)
	if err == nil {
		return decode(data)
	}
	if !os.IsNotExist(err) {
		return Identity{}, fmt.Errorf("identity: read %s: %w", path, err)
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return Identity{}, fmt.Errorf("identity: generate keypair: %w", err)
	}
	id := Identity{KeyPair: kp, WorldlineId: crypto.WorldlineIDFromPublicKey(kp.PublicKey)}
	if err := save(dir, id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func decode(data []byte) (Identity, error) {
	if len(data) != ed25519.PrivateKeySize {
		return Identity{}, fmt.Errorf("identity: malformed key file: expected %d bytes, got %d", ed25519.PrivateKeySize, len(data))
	}
	priv := ed25519.PrivateKey(append([]byte(nil), data...))
	pub := priv.Public().(ed25519.PublicKey)
	kp := crypto.KeyPair{PublicKey: pub, PrivateKey: priv}
	return Identity{KeyPair: kp, WorldlineId: crypto.WorldlineIDFromPublicKey(pub)}, nil
}

// save writes the private key to dir via a temp-file-then-rename, so a
// crash mid-write never leaves a half-written key file behind.
func save(dir string, id Identity) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("identity: create %s: %w", dir, err)
	}
	path := keyPath(dir)
	tmp := path + ".tmp-" + hex.EncodeToString(id.WorldlineId[:4])
	if err := os.WriteFile(tmp, id.KeyPair.PrivateKey, 0o600); err != nil {
		return fmt.Errorf("identity: write temp key file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("identity: rename key file into place: %w", err)
	}
	return nil
}
