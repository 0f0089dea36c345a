// Package source resolves image source identifiers to bytes.
//
// A source is either a remote URL (fetched with a single HTTP GET) or an
// object-store key (served from the original-bytes cache when possible,
// otherwise read from the object store).
package source

import "strings"

// Kind is the variant of a Source.
type Kind int

const (
	// KindStoreKey is any identifier that is not an http(s) URL.
	KindStoreKey Kind = iota

	// KindRemoteURL is an identifier with an http or https scheme.
	KindRemoteURL
)

// String returns the metric label for k.
func (k Kind) String() string {
	switch k {
	case KindRemoteURL:
		return "remote_url"
	case KindStoreKey:
		return "store_key"
	default:
		return "unknown"
	}
}

// Source is an immutable, classified image identifier.
type Source struct {
	kind  Kind
	value string
}

// Classify sniffs the scheme of raw. Nothing beyond the scheme is validated;
// malformed URLs surface later as fetch failures.
func Classify(raw string) Source {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return Source{kind: KindRemoteURL, value: raw}
	}
	return Source{kind: KindStoreKey, value: raw}
}

// Kind returns the variant.
func (s Source) Kind() Kind { return s.kind }

// String returns the identifier exactly as given to Classify.
func (s Source) String() string { return s.value }
