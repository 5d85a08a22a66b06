package auth

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryMultiplier scales the validity handed to GenerateJWT: a token issued
// with a validity of N expires N*ExpiryMultiplier seconds after issue.
// Existing callers depend on this factor, so it stays even though it most
// likely started life as a seconds/minutes mix-up.
const ExpiryMultiplier = 30

// TokenConfig holds info needed to generate a key-pair JWT.
type TokenConfig struct {
	Account    string // e.g., CXEEZLW-JQB53549
	User       string // e.g., VJAIN27
	PrivateKey []byte // PEM-encoded private key (PKCS8, PKCS1 or OpenSSH)
	Passphrase []byte // optional, for encrypted private keys
	PublicKey  string // PEM-encoded public key or a precomputed fingerprint
	Validity   int    // seconds, scaled by ExpiryMultiplier

	// Now is used as the issue time when set.
	Now func() time.Time
}

// FieldError reports a TokenConfig field that is missing (Err is nil) or
// holds an unusable key.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Err == nil {
		return e.Field + " not set"
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }

// GenerateJWT returns a signed RS256 token in compact form.
func GenerateJWT(cfg TokenConfig) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}

	privKey, err := ParsePrivateKey(cfg.PrivateKey, cfg.Passphrase)
	if err != nil {
		return "", &FieldError{Field: "private key", Err: err}
	}

	keyRef, err := PublicKeyReference(cfg.PublicKey)
	if err != nil {
		return "", &FieldError{Field: "public key", Err: fmt.Errorf("fingerprint generation failed: %w", err)}
	}

	account := strings.ToUpper(cfg.Account)
	user := strings.ToUpper(cfg.User)

	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	issuedAt := now().UTC().Truncate(time.Second)
	lifetime := time.Duration(cfg.Validity*ExpiryMultiplier) * time.Second

	claims := jwt.RegisteredClaims{
		Issuer:    fmt.Sprintf("%s.%s.%s", account, user, keyRef),
		Subject:   fmt.Sprintf("%s.%s", account, user),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(lifetime)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(privKey)
	if err != nil {
		return "", fmt.Errorf("JWT signing failed: %w", err)
	}
	return signed, nil
}

func (cfg TokenConfig) validate() error {
	switch {
	case cfg.Account == "":
		return &FieldError{Field: "account"}
	case cfg.User == "":
		return &FieldError{Field: "user"}
	case cfg.PublicKey == "":
		return &FieldError{Field: "public key"}
	case len(cfg.PrivateKey) == 0:
		return &FieldError{Field: "private key"}
	}
	return nil
}

// PublicKeyReference returns the value placed after ACCOUNT.USER in the
// issuer claim. A PEM-encoded public key is reduced to its SHA256
// fingerprint; anything else is taken to be a fingerprint already.
func PublicKeyReference(ref string) (string, error) {
	block, _ := pem.Decode([]byte(ref))
	if block == nil {
		if strings.HasPrefix(strings.TrimSpace(ref), "-----BEGIN") {
			return "", fmt.Errorf("invalid PEM for public key")
		}
		return strings.TrimSpace(ref), nil
	}
	if _, err := x509.ParsePKIXPublicKey(block.Bytes); err != nil {
		return "", fmt.Errorf("not a PKIX public key: %w", err)
	}
	return fingerprint(block.Bytes), nil
}

// fingerprint computes the SHA256 fingerprint of a DER-encoded public key.
func fingerprint(der []byte) string {
	hash := sha256.Sum256(der)
	return "SHA256:" + base64.StdEncoding.EncodeToString(hash[:])
}
