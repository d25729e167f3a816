package cache

import (
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "katscan"

// CacheKey identifies a cached upstream response.
type CacheKey struct {
	// Endpoint is the upstream path (e.g. "/nfts/entries")
	Endpoint string

	// QueryParams are the request query parameters (e.g. tick, offset)
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: katscan:endpoint:param1=val1:param2=val2
//
// Example:
//
//	katscan:nfts/entries:offset=1000:tick=KASPUNKS
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, key+"="+strings.Join(values, ","))
		}
	}

	return strings.Join(parts, ":")
}
