package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestProfileManager_AddDefault(t *testing.T) {
	m := NewProfileManager()

	m.Add(Profile{Name: "w", Host: "bitbucket.org", CredentialKind: KindOAuth, IsDefault: true})

	p, ok := m.DefaultProfile()
	require.True(t, ok)
	assert.Equal(t, "w", p.Name)
	assert.Equal(t, "w", m.DefaultName())
}

func TestProfileManager_RemoveDefaultClearsPointer(t *testing.T) {
	m := NewProfileManager(
		Profile{Name: "w", Host: "bitbucket.org", IsDefault: true},
		Profile{Name: "other", Host: "git.example.com"},
	)

	removed, ok := m.Remove("w")
	require.True(t, ok)
	assert.Equal(t, "w", removed.Name)

	_, ok = m.DefaultProfile()
	assert.False(t, ok, "no automatic fallback to another profile")
	assert.Empty(t, m.DefaultName())
	assert.Len(t, m.List(), 1)
}

func TestProfileManager_RemoveUnknown(t *testing.T) {
	m := NewProfileManager(Profile{Name: "w", IsDefault: true})

	_, ok := m.Remove("missing")
	assert.False(t, ok)

	_, ok = m.DefaultProfile()
	assert.True(t, ok)
}

func TestProfileManager_SetDefault(t *testing.T) {
	m := NewProfileManager(
		Profile{Name: "work", Host: "git.example.com", IsDefault: true},
		Profile{Name: "personal", Host: "bitbucket.org"},
	)

	assert.False(t, m.SetDefault("missing"))
	p, _ := m.DefaultProfile()
	assert.Equal(t, "work", p.Name, "unknown name leaves the default unchanged")

	assert.True(t, m.SetDefault("personal"))
	p, _ = m.DefaultProfile()
	assert.Equal(t, "personal", p.Name)
}

func TestProfileManager_AddNewDefaultKeepsOldFlag(t *testing.T) {
	m := NewProfileManager(Profile{Name: "a", IsDefault: true})

	m.Add(Profile{Name: "b", IsDefault: true})

	p, _ := m.DefaultProfile()
	assert.Equal(t, "b", p.Name)

	old, ok := m.Get("a")
	require.True(t, ok)
	assert.True(t, old.IsDefault, "only the pointer moves")
}

func TestProfileManager_Upsert(t *testing.T) {
	m := NewProfileManager(Profile{Name: "w", Host: "old.example.com", Username: "u"})

	m.Add(Profile{Name: "w", Host: "new.example.com"})

	p, ok := m.Get("w")
	require.True(t, ok)
	assert.Equal(t, "new.example.com", p.Host)
	assert.Empty(t, p.Username)
	assert.Len(t, m.List(), 1)
}

func TestProfileManager_ForHost(t *testing.T) {
	m := NewProfileManager(
		Profile{Name: "b-second", Host: "bitbucket.org"},
		Profile{Name: "a-first", Host: "bitbucket.org"},
		Profile{Name: "server", Host: "git.example.com"},
	)

	p, ok := m.ForHost("bitbucket.org")
	require.True(t, ok)
	assert.Equal(t, "a-first", p.Name)

	_, ok = m.ForHost("Bitbucket.org")
	assert.False(t, ok, "host comparison is case-sensitive")

	_, ok = m.ForHost("unknown.example.com")
	assert.False(t, ok)
}

func TestProfileManager_List(t *testing.T) {
	m := NewProfileManager()
	assert.Empty(t, m.List())

	m.Add(Profile{Name: "zeta"})
	m.Add(Profile{Name: "alpha"})

	names := []string{}
	for _, p := range m.List() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestProfile_YAML(t *testing.T) {
	in := Profile{Name: "work", Host: "git.example.com", Username: "jsmith", CredentialKind: KindPAT, IsDefault: true}

	data, err := yaml.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "auth_type: pat")
	assert.Contains(t, string(data), "default: true")

	var out Profile
	require.NoError(t, yaml.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
