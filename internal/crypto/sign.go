package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// KeyPair holds an Ed25519 signing keypair. WorldlineId derivation consumes
// PublicKey; Sign/Verify consume the pair for author and tag attestation.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 keypair using a CSPRNG.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Sign signs message with the private key. Receipt signatures are advisory
// (author attestation only) — a verification failure on a receipt signature
// is never fatal to chain validity, per §4.1.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Verify checks an Ed25519 signature. Callers that need "fatal on mismatch"
// semantics (tag signature verification, when a policy rule demands it) must
// treat a false return as an error themselves; Verify itself never panics.
func Verify(pub ed25519.PublicKey, message, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, signature)
}

// WorldlineIDFromPublicKey derives a WorldlineId-shaped ObjectId from Ed25519
// key material: BLAKE3(public_key_bytes) under the COMMIT domain tag, per
// §3's "derived from Ed25519 key material ... via BLAKE3(public_key_bytes)".
func WorldlineIDFromPublicKey(pub ed25519.PublicKey) ObjectId {
	return HashWithDomain(DomainCommit, pub)
}

// WorldlineIDFromSeed derives a WorldlineId from a caller-supplied 32-byte
// genesis seed, for repositories created without an Ed25519 keypair.
func WorldlineIDFromSeed(seed [32]byte) ObjectId {
	return HashWithDomain(DomainCommit, seed[:])
}
