package domain_test

import (
	"strings"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/grid/internal/core/domain"
)

func baseKeyInput() domain.CacheKeyInput {
	return domain.CacheKeyInput{
		PlatformLabel:   "linux-64",
		RuntimeVersion:  "3.12",
		SpecFingerprint: "9f86d081884c7d65",
		FreshnessDate:   time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		Generation:      2,
	}
}

func TestResolveCacheKey_Format(t *testing.T) {
	key := domain.ResolveCacheKey(baseKeyInput())
	assert.Equal(t, domain.CacheKey("grid-v1|linux-64|3.12|9f86d081884c7d65|2026-03-14|g2"), key)
}

func TestResolveCacheKey_Deterministic(t *testing.T) {
	f := func(label, runtime, fingerprint string, unix int64, gen uint16) bool {
		in := domain.CacheKeyInput{
			PlatformLabel:   label,
			RuntimeVersion:  runtime,
			SpecFingerprint: fingerprint,
			FreshnessDate:   time.Unix(unix%4102444800, 0),
			Generation:      int(gen),
		}
		return domain.ResolveCacheKey(in) == domain.ResolveCacheKey(in)
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestResolveCacheKey_Invalidation(t *testing.T) {
	base := domain.ResolveCacheKey(baseKeyInput())

	t.Run("fingerprint change", func(t *testing.T) {
		f := func(fingerprint string) bool {
			in := baseKeyInput()
			if fingerprint == in.SpecFingerprint {
				return true
			}
			in.SpecFingerprint = fingerprint
			return domain.ResolveCacheKey(in) != base
		}
		require.NoError(t, quick.Check(f, nil))
	})

	t.Run("generation bump", func(t *testing.T) {
		f := func(bump uint8) bool {
			in := baseKeyInput()
			in.Generation += int(bump) + 1
			return domain.ResolveCacheKey(in) != base
		}
		require.NoError(t, quick.Check(f, nil))
	})
}

func TestResolveCacheKey_RollsOverDaily(t *testing.T) {
	in := baseKeyInput()
	sameDay := in
	sameDay.FreshnessDate = time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC)
	nextDay := in
	nextDay.FreshnessDate = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, domain.ResolveCacheKey(in), domain.ResolveCacheKey(sameDay))
	assert.NotEqual(t, domain.ResolveCacheKey(in), domain.ResolveCacheKey(nextDay))
}

func TestResolveCacheKey_UsesUTCDay(t *testing.T) {
	in := baseKeyInput()
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2026-03-15 07:00 in Tokyo is still 2026-03-14 in UTC.
	in.FreshnessDate = time.Date(2026, 3, 15, 7, 0, 0, 0, tokyo)

	assert.Equal(t, domain.ResolveCacheKey(baseKeyInput()), domain.ResolveCacheKey(in))
}

func TestResolveCacheKey_SeparatorCannotCollide(t *testing.T) {
	a := baseKeyInput()
	a.PlatformLabel = "linux|3.12"
	a.RuntimeVersion = ""

	b := baseKeyInput()
	b.PlatformLabel = "linux"
	b.RuntimeVersion = "3.12|"

	keyA := domain.ResolveCacheKey(a)
	keyB := domain.ResolveCacheKey(b)
	assert.NotEqual(t, keyA, keyB)
	assert.Len(t, strings.Split(string(keyA), "|"), 6)
	assert.Len(t, strings.Split(string(keyB), "|"), 6)
}

func TestResolveCacheKey_EscapesPercent(t *testing.T) {
	a := baseKeyInput()
	a.PlatformLabel = "%7C"
	b := baseKeyInput()
	b.PlatformLabel = "|"

	assert.NotEqual(t, domain.ResolveCacheKey(a), domain.ResolveCacheKey(b))
}
