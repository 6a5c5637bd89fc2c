package push

import (
	"os"
	"sync/atomic"
)

const defaultSubject = "mailto:admin@example.com"

// Identity is the VAPID keypair and contact used to sign every outbound push.
type Identity struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// LookupFunc reads one configuration value. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// CredentialManager lazily installs the signing identity. Once installed it is
// never re-read or rotated for the lifetime of the process.
type CredentialManager struct {
	lookup   LookupFunc
	identity atomic.Pointer[Identity]
}

func NewCredentialManager(lookup LookupFunc) *CredentialManager {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &CredentialManager{lookup: lookup}
}

// EnsureReady reports whether a signing identity is installed, installing it
// from VAPID_PUBLIC_KEY / VAPID_PRIVATE_KEY on the first call where both are set.
func (m *CredentialManager) EnsureReady() bool {
	if m.identity.Load() != nil {
		return true
	}

	public, _ := m.lookup("VAPID_PUBLIC_KEY")
	private, _ := m.lookup("VAPID_PRIVATE_KEY")
	if public == "" || private == "" {
		return false
	}

	subject, _ := m.lookup("VAPID_SUBJECT")
	if subject == "" {
		subject = defaultSubject
	}

	// Concurrent first callers install identical values; the first one wins.
	m.identity.CompareAndSwap(nil, &Identity{
		PublicKey:  public,
		PrivateKey: private,
		Subject:    subject,
	})
	return true
}

// Identity returns the installed identity, if any. It does not attempt installation.
func (m *CredentialManager) Identity() (Identity, bool) {
	id := m.identity.Load()
	if id == nil {
		return Identity{}, false
	}
	return *id, true
}
