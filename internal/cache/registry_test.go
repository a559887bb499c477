package cache_test

import (
	"testing"

	"heartsync/internal/cache"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := cache.NewRegistry()
	r.Register("discover-profiles", "discover-profiles:aaaa1111")
	r.Register("discover-profiles", "discover-profiles:bbbb2222")
	r.Register("discover-profiles-fallback", "discover-profiles-fallback:cccc3333")
	r.Register("matches", "matches:dddd4444")

	assert.ElementsMatch(t,
		[]string{"discover-profiles:aaaa1111", "discover-profiles:bbbb2222"},
		r.KeysForResource("discover-profiles"))
	assert.Empty(t, r.KeysForResource("unknown"))
}

func TestRegistry_PrefixCoversVariants(t *testing.T) {
	r := cache.NewRegistry()
	r.Register("discover-profiles", "discover-profiles:aaaa1111")
	r.Register("discover-profiles-fallback", "discover-profiles-fallback:cccc3333")
	r.Register("matches", "matches:dddd4444")

	keys := r.KeysForPrefix("discover-profiles")
	assert.ElementsMatch(t,
		[]string{"discover-profiles:aaaa1111", "discover-profiles-fallback:cccc3333"},
		keys)
}

func TestRegistry_Unregister(t *testing.T) {
	r := cache.NewRegistry()
	r.Register("matches", "matches:dddd4444")
	r.Unregister("matches:dddd4444")
	assert.Empty(t, r.KeysForResource("matches"))

	// Unknown keys are ignored.
	r.Unregister("matches:nope")
}

func TestRegistry_IgnoresEmptyInput(t *testing.T) {
	r := cache.NewRegistry()
	r.Register("", "key")
	r.Register("res", "")
	assert.Empty(t, r.KeysForResource(""))
	assert.Empty(t, r.KeysForResource("res"))
}
