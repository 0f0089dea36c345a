package cache

import (
	"fmt"
	"strings"
)

// Namespace partitions entries sharing the same backend.
type Namespace string

const (
	// NamespaceOriginal holds raw source bytes keyed by source only.
	NamespaceOriginal Namespace = "original"

	// NamespaceDerivative holds transformed bytes keyed by source, width and quality.
	NamespaceDerivative Namespace = "derivative"
)

// keyPrefix is prepended to every rendered key.
const keyPrefix = "img"

// Key identifies a cache entry.
type Key struct {
	// Namespace selects the logical partition
	Namespace Namespace

	// Source is the raw source identifier (URL or store key), case-sensitive
	Source string

	// Width is the requested width (0 = no resize). Derivative keys only.
	Width int

	// Quality is the requested quality. Derivative keys only.
	Quality int
}

// OriginalKey returns the key for the raw bytes of source.
func OriginalKey(source string) Key {
	return Key{Namespace: NamespaceOriginal, Source: source}
}

// DerivativeKey returns the key for the transformed output of source.
func DerivativeKey(source string, width, quality int) Key {
	return Key{
		Namespace: NamespaceDerivative,
		Source:    source,
		Width:     width,
		Quality:   quality,
	}
}

// String generates a deterministic cache key string.
// Format:
//
//	img:original:<source>
//	img:derivative:<source>:w=<width>:q=<quality>
//
// The source is used verbatim; keys are exact-match.
func (k Key) String() string {
	parts := []string{keyPrefix, string(k.Namespace), k.Source}

	if k.Namespace == NamespaceDerivative {
		parts = append(parts,
			fmt.Sprintf("w=%d", k.Width),
			fmt.Sprintf("q=%d", k.Quality),
		)
	}

	return strings.Join(parts, ":")
}
