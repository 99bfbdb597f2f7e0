package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
)

// Identity names the caller a key was issued to.
type Identity struct {
	Name string
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses a comma-separated list of name:key entries.
func NewStaticAPIKeyValidator(list string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	list = strings.TrimSpace(list)
	if list == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(list, ",") {
		name, key, ok := strings.Cut(strings.TrimSpace(entry), ":")
		name = strings.TrimSpace(name)
		key = strings.TrimSpace(key)
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("invalid static key entry %q: expected name:key", entry)
		}
		if _, dup := validator.keys[key]; dup {
			return nil, fmt.Errorf("duplicate static key for %q", name)
		}
		validator.keys[key] = Identity{Name: name}
	}
	return validator, nil
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	for key, identity := range v.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return identity, true
		}
	}
	return Identity{}, false
}
