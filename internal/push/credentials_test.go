package push

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnv is a LookupFunc whose values can change between calls.
type fakeEnv struct {
	mu     sync.Mutex
	values map[string]string
	reads  int
}

func (e *fakeEnv) lookup(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reads++
	v, ok := e.values[key]
	return v, ok
}

func (e *fakeEnv) set(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[key] = value
}

func (e *fakeEnv) readCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reads
}

func TestEnsureReady_MissingConfigurationStaysFalse(t *testing.T) {
	env := &fakeEnv{values: map[string]string{"VAPID_PUBLIC_KEY": "pub"}}
	m := NewCredentialManager(env.lookup)

	for range 3 {
		assert.False(t, m.EnsureReady())
	}
	_, ok := m.Identity()
	assert.False(t, ok, "no identity may be installed without both keys")
}

func TestEnsureReady_InstallsOnceConfigurationAppears(t *testing.T) {
	env := &fakeEnv{values: map[string]string{}}
	m := NewCredentialManager(env.lookup)

	require.False(t, m.EnsureReady())

	env.set("VAPID_PUBLIC_KEY", "pub")
	env.set("VAPID_PRIVATE_KEY", "priv")
	require.True(t, m.EnsureReady())

	reads := env.readCount()
	env.set("VAPID_PUBLIC_KEY", "rotated")
	for range 5 {
		assert.True(t, m.EnsureReady())
	}
	assert.Equal(t, reads, env.readCount(), "configuration must not be re-read once ready")

	id, ok := m.Identity()
	require.True(t, ok)
	assert.Equal(t, Identity{PublicKey: "pub", PrivateKey: "priv", Subject: defaultSubject}, id)
}

func TestEnsureReady_CustomSubject(t *testing.T) {
	env := &fakeEnv{values: map[string]string{
		"VAPID_PUBLIC_KEY":  "pub",
		"VAPID_PRIVATE_KEY": "priv",
		"VAPID_SUBJECT":     "mailto:ops@squads.app",
	}}
	m := NewCredentialManager(env.lookup)

	require.True(t, m.EnsureReady())
	id, _ := m.Identity()
	assert.Equal(t, "mailto:ops@squads.app", id.Subject)
}

func TestEnsureReady_ConcurrentFirstCallers(t *testing.T) {
	env := &fakeEnv{values: map[string]string{"VAPID_PUBLIC_KEY": "pub", "VAPID_PRIVATE_KEY": "priv"}}
	m := NewCredentialManager(env.lookup)

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, m.EnsureReady())
		}()
	}
	wg.Wait()

	id, ok := m.Identity()
	require.True(t, ok)
	assert.Equal(t, "pub", id.PublicKey)
}
