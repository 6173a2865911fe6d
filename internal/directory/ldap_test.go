package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	binds    []string
	bindErr  error
	entries  map[string][]*ldap.Entry // keyed by base DN
	searches []*ldap.SearchRequest
	block    chan struct{}
	closed   bool
}

func (f *fakeConn) Bind(username, _ string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binds = append(f.binds, username)
	return f.bindErr
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, req)
	return &ldap.SearchResult{Entries: f.entries[req.BaseDN]}, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestClient(cfg Config, fc *fakeConn) *LDAPClient {
	c := NewLDAPClient(cfg, nil)
	c.dial = func(context.Context) (conn, error) { return fc, nil }
	return c
}

const managerDN = "CN=asmith,OU=Staff,DC=corp,DC=local"

func TestLDAPClient_Authenticate(t *testing.T) {
	fc := &fakeConn{}
	c := newTestClient(Config{Domain: "corp.local"}, fc)

	ok, err := c.Authenticate(context.Background(), "jdoe", "secret")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"jdoe@corp.local"}, fc.binds)
	assert.True(t, fc.closed)
}

func TestLDAPClient_AuthenticateEmptyPassword(t *testing.T) {
	fc := &fakeConn{}
	c := newTestClient(Config{}, fc)

	ok, err := c.Authenticate(context.Background(), "jdoe", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, fc.binds, "empty password must never reach the directory")
}

func TestLDAPClient_AuthenticateBindFailure(t *testing.T) {
	fc := &fakeConn{bindErr: bindErr("AcceptSecurityContext error, data 775, v4563")}
	c := newTestClient(Config{}, fc)

	ok, err := c.Authenticate(context.Background(), "jdoe", "secret")
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, "Account is locked out", ClassifyBindError(err).Message)
}

func TestLDAPClient_Timeout(t *testing.T) {
	fc := &fakeConn{block: make(chan struct{})}
	defer close(fc.block)
	c := newTestClient(Config{Timeout: 20 * time.Millisecond}, fc)

	_, err := c.Authenticate(context.Background(), "jdoe", "secret")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "Unable to connect to authentication server", ClassifyBindError(err).Message)
}

func TestLDAPClient_GetUserByUsername(t *testing.T) {
	fc := &fakeConn{entries: map[string][]*ldap.Entry{
		"DC=corp,DC=local": {ldap.NewEntry("CN=jdoe,OU=Staff,DC=corp,DC=local", map[string][]string{
			"sAMAccountName":             {"jdoe"},
			"displayName":                {"John Doe"},
			"mail":                       {"jdoe@corp.local"},
			"title":                      {"Engineer"},
			"telephoneNumber":            {"+1 555 0100"},
			"department":                 {"IT"},
			"manager":                    {managerDN},
			"physicalDeliveryOfficeName": {"HQ"},
		})},
		managerDN: {ldap.NewEntry(managerDN, map[string][]string{"displayName": {"Alice Smith"}})},
	}}
	c := newTestClient(Config{BaseDN: "DC=corp,DC=local", Domain: "corp.local", BindUsername: "svc-helpdesk", BindPassword: "pw"}, fc)

	u, err := c.GetUserByUsername(context.Background(), "jdoe")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, DomainUser{
		Username:          "jdoe",
		Email:             "jdoe@corp.local",
		FullName:          "John Doe",
		PhoneNumber:       "+1 555 0100",
		Title:             "Engineer",
		Office:            "HQ",
		Department:        "IT",
		ManagerUsername:   "asmith",
		DirectManagerName: "Alice Smith",
	}, *u)
	assert.Equal(t, []string{"svc-helpdesk@corp.local"}, fc.binds)
	require.NotEmpty(t, fc.searches)
	assert.True(t, strings.Contains(fc.searches[0].Filter, "sAMAccountName=jdoe"))
}

func TestLDAPClient_GetUserByUsername_EscapesFilter(t *testing.T) {
	fc := &fakeConn{}
	c := newTestClient(Config{BaseDN: "DC=corp,DC=local"}, fc)

	u, err := c.GetUserByUsername(context.Background(), "j*)(uid=*")
	require.NoError(t, err)
	assert.Nil(t, u)
	require.Len(t, fc.searches, 1)
	assert.NotContains(t, fc.searches[0].Filter, "j*)(")
}

func TestLDAPClient_GetUserByUsername_ServiceBindFails(t *testing.T) {
	fc := &fakeConn{bindErr: errors.New("server busy")}
	c := newTestClient(Config{BaseDN: "DC=corp,DC=local", BindUsername: "svc"}, fc)

	_, err := c.GetUserByUsername(context.Background(), "jdoe")
	require.Error(t, err)
	assert.Empty(t, fc.searches)
}

func TestEntryToDomainUser_PrefersMobile(t *testing.T) {
	e := ldap.NewEntry("CN=x", map[string][]string{
		"mobile":          {"+1 555 0199"},
		"telephoneNumber": {"+1 555 0100"},
	})
	u := entryToDomainUser(e, "fallback")
	assert.Equal(t, "+1 555 0199", u.PhoneNumber)
	assert.Equal(t, "fallback", u.Username)
	assert.Empty(t, u.ManagerUsername)
}

func TestManagerCN(t *testing.T) {
	assert.Equal(t, "asmith", managerCN(managerDN))
	assert.Equal(t, "", managerCN(""))
	assert.Equal(t, "", managerCN("not a dn"))
	assert.Equal(t, "", managerCN("OU=Staff,DC=corp"))
}
