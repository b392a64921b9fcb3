package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/borhen68/framatale-sub001/internal/domain/auth"
)

var errUnauthorized = errors.New("unauthorized")

// Authenticator validates API keys on rule mutation requests using
// HMAC-SHA256 hashed keys from the key repository.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given API key
// repository and HMAC pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate checks the request's API key. The key is taken from the
// Authorization header ("Bearer <key>") or, as a fallback, the api_key
// header. The HMAC-SHA256 of the key is looked up and compared in constant
// time to prevent timing side-channels.
func (a *Authenticator) Authenticate(r *http.Request) error {
	key := keyFromRequest(r)
	if key == "" {
		return errUnauthorized
	}

	mac := hmac.New(sha256.New, a.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := a.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
	if err != nil {
		return errUnauthorized
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return errUnauthorized
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return errUnauthorized
	}
	return nil
}

func keyFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if key, ok := strings.CutPrefix(h, "Bearer "); ok {
			return key
		}
	}
	return r.Header.Get("api_key")
}
