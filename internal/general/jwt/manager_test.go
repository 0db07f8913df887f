package jwt

import (
	"net/http/httptest"
	"testing"
	"time"

	"fleettrack/internal/domain/user"
	"fleettrack/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)

	token, issued, err := mgr.IssueUserToken("user-1", "co-1", user.RoleOperator)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "co-1", issued.CompanyID)

	_, claims, err := mgr.ParseAndValidate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, user.RoleOperator, claims.Role)
	assert.Equal(t, "co-1", claims.CompanyID)
}

func TestIssueRequiresCompanyForNonAdmin(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)

	_, _, err := mgr.IssueUserToken("user-1", "", user.RoleOperator)
	require.ErrorIs(t, err, ErrMissingCompany)

	_, _, err = mgr.IssueUserToken("user-1", " ", user.RoleManager)
	require.ErrorIs(t, err, ErrMissingCompany)

	// the super-admin is the only role without a tenant
	token, _, err := mgr.IssueUserToken("root", "", user.RoleAdmin)
	require.NoError(t, err)
	_, claims, err := mgr.ParseAndValidate(token)
	require.NoError(t, err)
	assert.Empty(t, claims.CompanyID)
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)

	_, _, err := mgr.IssueUserToken("user-1", "co-1", user.Role("DRIVER"))
	require.Error(t, err)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _, err := NewManager("secret-a", time.Hour).IssueUserToken("user-1", "co-1", user.RoleOperator)
	require.NoError(t, err)

	_, _, err = NewManager("secret-b", time.Hour).ParseAndValidate(token)
	require.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	mgr := NewManager("test-secret", -time.Minute)
	token, _, err := mgr.IssueUserToken("user-1", "co-1", user.RoleOperator)
	require.NoError(t, err)

	_, _, err = mgr.ParseAndValidate(token)
	require.Error(t, err)
}

func TestClaimsScope(t *testing.T) {
	claims := NewUserClaims("user-1", "co-1", user.RoleManager, time.Hour)
	assert.Equal(t, ports.Scope{CompanyID: "co-1", Role: "MANAGER"}, claims.Scope())
	assert.False(t, claims.Scope().Admin())

	admin := NewUserClaims("root", "", user.RoleAdmin, time.Hour)
	assert.True(t, admin.Scope().Admin())
}

func TestRoleAllowed(t *testing.T) {
	claims := &Claims{Role: user.RoleOperator}
	require.NoError(t, RoleAllowed(claims, user.RoleOperator, user.RoleManager))
	require.ErrorIs(t, RoleAllowed(claims, user.RoleManager, user.RoleAdmin), ErrRoleForbidden)
}

func TestFromAuthorization(t *testing.T) {
	r := httptest.NewRequest("GET", "/devices", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	token, err := FromAuthorization(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	// websocket clients may pass the token as a query parameter
	r = httptest.NewRequest("GET", "/ws/live?token=abc.def.ghi", nil)
	token, err = FromAuthorization(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	r = httptest.NewRequest("GET", "/devices", nil)
	_, err = FromAuthorization(r)
	require.Error(t, err)
}
