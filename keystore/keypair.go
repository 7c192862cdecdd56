package keystore

import "fmt"

const (
	// SecretKeySize is the fixed secret key length for the supported scheme.
	SecretKeySize = 128

	// PublicKeySize is the public key length. The public key is always the
	// trailing half of the secret key, never independently supplied.
	PublicKeySize = 64

	// publicKeyOffset is where the public key begins inside the secret key.
	publicKeyOffset = SecretKeySize - PublicKeySize
)

// KeyPair holds raw key material for the supported post-quantum scheme.
//
// Values are produced only by a trusted key-generation service or an
// imported key file. Callers must not retain an unlocked KeyPair beyond the
// immediate signing operation; call Zero when done.
type KeyPair struct {
	SecretKey []byte
	PublicKey []byte
}

// NewKeyPair validates a raw secret key and derives the public half.
func NewKeyPair(secretKey []byte) (KeyPair, error) {
	if len(secretKey) != SecretKeySize {
		return KeyPair{}, fmt.Errorf("%w: secret key must be %d bytes, got %d",
			ErrInvalidFormat, SecretKeySize, len(secretKey))
	}
	sk := append([]byte(nil), secretKey...)
	return KeyPair{
		SecretKey: sk,
		PublicKey: sk[publicKeyOffset:],
	}, nil
}

// KeyPairFromSeed always fails.
//
// The supported signature scheme has structured secret keys that cannot be
// synthesized from arbitrary entropy, a seed phrase, or a password. Refusing
// here is a contract, not a missing feature: silently degrading to an
// insecure derivation would produce structurally invalid keys.
func KeyPairFromSeed(seed []byte) (KeyPair, error) {
	_ = seed
	return KeyPair{}, ErrUnsupportedDerivation
}

// Zero wipes the secret key material in place.
func (kp *KeyPair) Zero() {
	for i := range kp.SecretKey {
		kp.SecretKey[i] = 0
	}
	kp.SecretKey = nil
	kp.PublicKey = nil
}
