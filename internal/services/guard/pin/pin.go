// Package pin turns a 4-digit PIN into a one-way verifier and checks PIN
// entries against it.
//
// The verifier is an argon2id digest keyed by a per-installation salt, so the
// same PIN always yields the same verifier until the installation is reset.
package pin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/omnisign/sessionguard/internal/platform/errors"
	"golang.org/x/crypto/argon2"
)

// Length is the number of digits in a PIN.
const Length = 4

// SaltSize is the installation salt length in bytes.
const SaltSize = 16

const (
	argonTime    uint32 = 2
	argonMemory  uint32 = 19 * 1024
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

// VerifierLength is the encoded length of every verifier.
const VerifierLength = int(argonKeyLen) * 2

// Verifier is the hex-encoded digest stored in place of the PIN.
type Verifier string

// ValidFormat reports whether pin is exactly four ASCII digits.
func ValidFormat(pin string) bool {
	if len(pin) != Length {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

// NewSalt returns a fresh installation salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate pin salt: %w", err)
	}
	return salt, nil
}

// Deriver derives verifiers for one installation.
type Deriver struct {
	salt []byte
}

// NewDeriver binds a deriver to an installation salt.
func NewDeriver(salt []byte) (Deriver, error) {
	if len(salt) != SaltSize {
		return Deriver{}, fmt.Errorf("pin salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	cloned := make([]byte, len(salt))
	copy(cloned, salt)
	return Deriver{salt: cloned}, nil
}

// Derive returns the verifier for pin. Malformed PINs are rejected with a
// validation error and are never hashed.
func (d Deriver) Derive(pin string) (Verifier, error) {
	if !ValidFormat(pin) {
		return "", errors.New(errors.CodePinInvalidFormat, "pin must be exactly 4 digits")
	}
	if len(d.salt) != SaltSize {
		return "", fmt.Errorf("pin deriver is not initialized")
	}
	key := argon2.IDKey([]byte(pin), d.salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return Verifier(hex.EncodeToString(key)), nil
}

// Verify reports whether pin derives to stored. It never fails loudly:
// malformed input on either side is simply a mismatch.
func (d Deriver) Verify(pin string, stored Verifier) bool {
	if len(stored) != VerifierLength {
		return false
	}
	candidate, err := d.Derive(pin)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1
}
