package policy

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDisabledAllowsEverything(t *testing.T) {
	t.Parallel()

	e := New(nil, false)
	e.Add("blocked.com")

	for _, h := range []string{"blocked.com", "www.blocked.com", "http://blocked.com/x", "other.org"} {
		require.False(t, e.IsBlocked(h), h)
	}

	e.SetEnabled(true)
	require.True(t, e.IsBlocked("blocked.com"))

	e.SetEnabled(false)
	require.False(t, e.IsBlocked("blocked.com"))
	require.False(t, e.Enabled())
}

func TestNormalizationRoundTrip(t *testing.T) {
	t.Parallel()

	e := New(nil, true)
	e.Add("blocked.com")

	for _, e2 := range []string{"blocked.com", "allowed.org"} {
		want := e2 == "blocked.com"
		for _, form := range []string{
			"http://" + e2 + "/path",
			"https://" + e2 + ":443/",
			"www." + e2,
			e2 + ":8080",
			e2,
		} {
			require.Equal(t, want, e.IsBlocked(form), form)
		}
	}
}

func TestEntriesAreNormalizedOnInsert(t *testing.T) {
	t.Parallel()

	e := New(nil, true)
	require.True(t, e.Add("https://www.Example.com:443/index.html"))
	require.Equal(t, []string{"example.com"}, e.Entries())
	require.True(t, e.IsBlocked("example.com"))
	require.True(t, e.IsBlocked("EXAMPLE.COM"))
}

func TestExactMatchOnly(t *testing.T) {
	t.Parallel()

	e := New(nil, true)
	e.Add("example.com")

	require.False(t, e.IsBlocked("sub.example.com"))
	require.False(t, e.IsBlocked("example.com.evil.org"))
	require.False(t, e.IsBlocked("notexample.com"))
}

func TestAddRemoveIdempotent(t *testing.T) {
	t.Parallel()

	e := New(nil, true)
	require.True(t, e.Add("example.com"))
	require.False(t, e.Add("example.com"))
	require.False(t, e.Add("www.example.com"))
	require.Equal(t, []string{"example.com"}, e.Entries())

	require.False(t, e.Remove("nonexistent.com"))
	require.True(t, e.Remove("http://example.com/"))
	require.False(t, e.Remove("example.com"))
	require.Empty(t, e.Entries())
	require.False(t, e.Contains("example.com"))

	require.False(t, e.Add(""))
	require.False(t, e.Add("http://"))
	require.Empty(t, e.Entries())
}

func TestEntriesSorted(t *testing.T) {
	t.Parallel()

	e := New(nil, true)
	for _, d := range []string{"c.com", "a.com", "b.com"} {
		e.Add(d)
	}
	require.Equal(t, []string{"a.com", "b.com", "c.com"}, e.Entries())
}

func TestDecisionsAreLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	e := New(zap.New(core), true)

	e.Add("blocked.com")
	require.True(t, e.IsBlocked("www.blocked.com"))
	require.False(t, e.IsBlocked("fine.com"))
	e.Remove("blocked.com")
	e.SetEnabled(false)

	require.Equal(t, 1, logs.FilterMessage("added blacklist entry").Len())
	require.Equal(t, 1, logs.FilterMessage("removed blacklist entry").Len())
	require.Equal(t, 2, logs.FilterMessage("checking domain").Len())
	require.Equal(t, 1, logs.FilterMessage("blacklist mode disabled").Len())

	blocked := logs.FilterMessage("domain blocked").All()
	require.Len(t, blocked, 1)
	require.Equal(t, "blocked.com", blocked[0].ContextMap()["domain"])
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	e := New(nil, true)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for j := range 200 {
				d := fmt.Sprintf("host%d-%d.com", i, j%10)
				e.Add(d)
				_ = e.IsBlocked(d)
				_ = e.Entries()
				e.Remove(d)
			}
		})
		wg.Go(func() {
			for j := range 200 {
				e.SetEnabled(j%2 == 0)
			}
		})
	}
	wg.Wait()

	require.Empty(t, e.Entries())
}
