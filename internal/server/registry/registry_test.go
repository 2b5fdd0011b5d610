package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/server/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id string
}

func (f *fakeChannel) ID() string       { return f.id }
func (f *fakeChannel) Push(Event) error { return nil }
func (f *fakeChannel) Close()           {}

func ids(chans []Channel) []string {
	out := make([]string, 0, len(chans))
	for _, c := range chans {
		out = append(out, c.ID())
	}
	sort.Strings(out)
	return out
}

func TestBindUnbind(t *testing.T) {
	r := New(nil)

	r.Bind("u1", &fakeChannel{id: "h1"})
	r.Bind("u1", &fakeChannel{id: "h2"})
	r.Bind("u2", &fakeChannel{id: "h3"})

	assert.Equal(t, []string{"h1", "h2"}, ids(r.ChannelsFor("u1")))
	assert.Equal(t, []string{"h3"}, ids(r.ChannelsFor("u2")))
	assert.Equal(t, 3, r.Count())

	r.Unbind("h1")
	assert.Equal(t, []string{"h2"}, ids(r.ChannelsFor("u1")))

	r.Unbind("h2")
	assert.Empty(t, r.ChannelsFor("u1"))
	assert.NotNil(t, r.ChannelsFor("u1"))
	assert.Equal(t, 1, r.Count())
}

func TestUnbind_UnknownIsNoop(t *testing.T) {
	r := New(nil)
	r.Bind("u1", &fakeChannel{id: "h1"})

	r.Unbind("nope")
	r.Unbind("nope")

	assert.Equal(t, 1, r.Count())
}

func TestBind_MovesHandle(t *testing.T) {
	r := New(nil)
	ch := &fakeChannel{id: "h1"}

	r.Bind("u1", ch)
	r.Bind("u2", ch)

	assert.Empty(t, r.ChannelsFor("u1"))
	assert.Equal(t, []string{"h1"}, ids(r.ChannelsFor("u2")))
	assert.Equal(t, 1, r.Count())
}

func TestChannelsFor_ReturnsSnapshot(t *testing.T) {
	r := New(nil)
	r.Bind("u1", &fakeChannel{id: "h1"})

	snap := r.ChannelsFor("u1")
	r.Unbind("h1")

	require.Len(t, snap, 1)
	assert.Equal(t, "h1", snap[0].ID())
}

func TestUnbindIdentity(t *testing.T) {
	r := New(nil)
	r.Bind("u1", &fakeChannel{id: "h1"})
	r.Bind("u1", &fakeChannel{id: "h2"})
	r.Bind("u2", &fakeChannel{id: "h3"})

	removed := r.UnbindIdentity("u1")
	assert.Equal(t, []string{"h1", "h2"}, ids(removed))
	assert.Empty(t, r.ChannelsFor("u1"))
	assert.Equal(t, 1, r.Count())

	assert.Empty(t, r.UnbindIdentity("u1"))
}

func TestUnbindAll(t *testing.T) {
	r := New(nil)
	r.Bind("u1", &fakeChannel{id: "h1"})
	r.Bind("u2", &fakeChannel{id: "h2"})

	assert.Equal(t, []string{"h1", "h2"}, ids(r.UnbindAll()))
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.ChannelsFor("u1"))

	r.Bind("u1", &fakeChannel{id: "h3"})
	assert.Equal(t, 1, r.Count())
}

func TestBindings_Gauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(metrics.New(reg))

	gauge := func(n int) string {
		return fmt.Sprintf(`
# HELP gophchat_live_bindings Current number of bound live channels.
# TYPE gophchat_live_bindings gauge
gophchat_live_bindings %d
`, n)
	}

	r.Bind("u1", &fakeChannel{id: "h1"})
	r.Bind("u1", &fakeChannel{id: "h2"})
	r.Unbind("h1")
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(gauge(1)), "gophchat_live_bindings"))

	r.UnbindIdentity("u1")
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(gauge(0)), "gophchat_live_bindings"))
}

func TestConcurrentBindUnbind(t *testing.T) {
	r := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("h%d", i)
			identity := fmt.Sprintf("u%d", i%5)
			r.Bind(identity, &fakeChannel{id: id})
			_ = r.ChannelsFor(identity)
			if i%2 == 0 {
				r.Unbind(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Count())
	total := 0
	for i := 0; i < 5; i++ {
		total += len(r.ChannelsFor(fmt.Sprintf("u%d", i)))
	}
	assert.Equal(t, 50, total)
}
