package snowapi

import (
	"errors"

	"github.com/vjain20/gosnowsql/internal/auth"
)

// ExpiryMultiplier is the factor applied to the validity passed to
// IssueToken. A token issued with validity N expires after N*30 seconds.
// The factor looks like a seconds/minutes mix-up but existing integrations
// depend on it; pass validity accordingly.
const ExpiryMultiplier = auth.ExpiryMultiplier

// Identity is the account, user and key pair a Client authenticates as,
// together with the most recently issued token.
type Identity struct {
	Account    string
	User       string
	PublicKey  string // PEM public key or its "SHA256:..." fingerprint
	PrivateKey []byte // PEM private key
	Passphrase []byte // optional, for encrypted private keys

	token string
}

// IssueToken signs a fresh JWT and caches it on the identity, replacing any
// previous token. Tokens are not renewed automatically; call IssueToken again
// before the previous one expires.
func (id *Identity) IssueToken(validity int) (string, error) {
	token, err := auth.GenerateJWT(auth.TokenConfig{
		Account:    id.Account,
		User:       id.User,
		PrivateKey: id.PrivateKey,
		Passphrase: id.Passphrase,
		PublicKey:  id.PublicKey,
		Validity:   validity,
	})
	if err != nil {
		var fe *auth.FieldError
		if errors.As(err, &fe) {
			return "", &ConfigurationError{Field: fe.Field, Err: fe.Err}
		}
		return "", err
	}
	id.token = token
	return token, nil
}

// Token returns the cached token.
func (id *Identity) Token() (string, error) {
	if id.token == "" {
		return "", &ConfigurationError{Field: "token"}
	}
	return id.token, nil
}

// SetToken installs a token issued elsewhere.
func (id *Identity) SetToken(token string) {
	id.token = token
}
