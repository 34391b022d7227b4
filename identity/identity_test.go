package identity_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	require.Equal(t, identity.RoleAdmin, identity.ParseRole("admin"))
	require.Equal(t, identity.RoleCoordinator, identity.ParseRole(" Coordinator "))
	require.Equal(t, identity.RoleStaff, identity.ParseRole("staff"))
	require.Equal(t, identity.RoleStaff, identity.ParseRole("superuser"))
	require.Equal(t, identity.RoleStaff, identity.ParseRole(""))
}

func TestHome(t *testing.T) {
	require.Equal(t, "/admin", identity.Home(identity.RoleAdmin))
	require.Equal(t, "/coordinator", identity.Home(identity.RoleCoordinator))
	require.Equal(t, "/staff", identity.Home(identity.RoleStaff))
	require.Equal(t, "/staff", identity.Home(identity.Role("volunteer")))
}

func TestIdentity_UnmarshalProfile(t *testing.T) {
	t.Run("numeric id", func(t *testing.T) {
		var id identity.Identity
		err := json.Unmarshal([]byte(`{"id":42,"username":"amina","role":"coordinator","email":"amina@example.org","full_name":"Amina Yusuf","is_active":false}`), &id)
		require.NoError(t, err)
		require.Equal(t, "42", id.ID)
		require.Equal(t, identity.RoleCoordinator, id.Role)
		require.Equal(t, "Amina Yusuf", id.Name())
		require.False(t, id.IsActive)
	})

	t.Run("string id and unknown role", func(t *testing.T) {
		var id identity.Identity
		err := json.Unmarshal([]byte(`{"id":"u-7","username":"joe","role":"manager"}`), &id)
		require.NoError(t, err)
		require.Equal(t, "u-7", id.ID)
		require.Equal(t, identity.RoleStaff, id.Role)
		require.Equal(t, "joe", id.Name())
		require.True(t, id.IsActive)
	})

	t.Run("cached form round trips", func(t *testing.T) {
		in := identity.Identity{ID: "1", Username: "root", Role: identity.RoleAdmin, IsActive: true}
		b, err := json.Marshal(in)
		require.NoError(t, err)

		var out identity.Identity
		require.NoError(t, json.Unmarshal(b, &out))
		require.Equal(t, in, out)
	})
}
