// Package auth loads the API key set and guards handlers with it.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
)

// HeaderName carries the client's API key.
const HeaderName = "X-API-Key"

// KeySet is an immutable set of accepted API keys.
type KeySet struct {
	keys [][]byte
}

func NewKeySet(keys ...string) *KeySet {
	ks := &KeySet{}
	for _, k := range keys {
		if k != "" {
			ks.keys = append(ks.keys, []byte(k))
		}
	}
	return ks
}

// LoadKeySet reads keys from a JSON file holding either an object of
// name → key or a list of keys. A missing file yields an empty set, which
// rejects every request.
func LoadKeySet(path string) (*KeySet, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewKeySet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read api keys: %w", err)
	}

	var named map[string]string
	if err := json.Unmarshal(b, &named); err == nil {
		keys := make([]string, 0, len(named))
		for _, k := range named {
			keys = append(keys, k)
		}
		return NewKeySet(keys...), nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("parse api keys %s: expected an object or a list of strings", path)
	}
	return NewKeySet(list...), nil
}

func (ks *KeySet) Len() int { return len(ks.keys) }

// Valid reports whether key is in the set.
func (ks *KeySet) Valid(key string) bool {
	if key == "" {
		return false
	}
	ok := 0
	for _, k := range ks.keys {
		ok |= subtle.ConstantTimeCompare(k, []byte(key))
	}
	return ok == 1
}

// Require rejects requests whose X-API-Key header is not in ks with 401.
func (ks *KeySet) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ks.Valid(r.Header.Get(HeaderName)) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
