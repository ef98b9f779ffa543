package domain

import "strings"

// CosignatoryAllowList is the static set of public keys allowed to
// originate transactions this service co-signs.
type CosignatoryAllowList struct {
	keys map[string]struct{}
}

// NewCosignatoryAllowList builds an allow-list. Keys are compared case-insensitively.
func NewCosignatoryAllowList(publicKeys []string) CosignatoryAllowList {
	keys := make(map[string]struct{}, len(publicKeys))
	for _, k := range publicKeys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	return CosignatoryAllowList{keys: keys}
}

// Contains reports whether publicKey is allowed.
func (l CosignatoryAllowList) Contains(publicKey string) bool {
	_, ok := l.keys[strings.ToLower(publicKey)]
	return ok
}

// Len returns the number of distinct keys.
func (l CosignatoryAllowList) Len() int {
	return len(l.keys)
}
