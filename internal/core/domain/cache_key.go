package domain

import (
	"strconv"
	"strings"
	"time"
)

// CacheKeyVersion prefixes every cache key. Bump it when the key layout changes.
const CacheKeyVersion = "grid-v1"

// FreshnessLayout is the day-granularity layout of the freshness component.
const FreshnessLayout = "2006-01-02"

const cacheKeySeparator = "|"

var cacheKeyEscaper = strings.NewReplacer("%", "%25", cacheKeySeparator, "%7C")

// CacheKey identifies a stored environment snapshot.
type CacheKey string

// String implements fmt.Stringer.
func (k CacheKey) String() string {
	return string(k)
}

// CacheKeyInput holds everything a cache key is derived from.
type CacheKeyInput struct {
	PlatformLabel   string
	RuntimeVersion  string
	SpecFingerprint string
	FreshnessDate   time.Time
	Generation      int
}

// FreshnessDay returns the UTC day of the freshness date.
func (in CacheKeyInput) FreshnessDay() string {
	return in.FreshnessDate.UTC().Format(FreshnessLayout)
}

// ResolveCacheKey derives the cache key for the given inputs.
//
// The key joins the inputs in a fixed order behind CacheKeyVersion. The freshness day is
// part of the key, so keys roll over once per UTC day even when nothing else changed.
func ResolveCacheKey(in CacheKeyInput) CacheKey {
	parts := []string{
		CacheKeyVersion,
		cacheKeyEscaper.Replace(in.PlatformLabel),
		cacheKeyEscaper.Replace(in.RuntimeVersion),
		cacheKeyEscaper.Replace(in.SpecFingerprint),
		in.FreshnessDay(),
		"g" + strconv.Itoa(in.Generation),
	}
	return CacheKey(strings.Join(parts, cacheKeySeparator))
}
