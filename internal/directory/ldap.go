package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// Config describes the AD server and the service account used for searches.
type Config struct {
	URL                string
	BaseDN             string
	Domain             string
	BindUsername       string
	BindPassword       string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

var userAttributes = []string{
	"sAMAccountName",
	"displayName",
	"mail",
	"title",
	"telephoneNumber",
	"mobile",
	"department",
	"manager",
	"physicalDeliveryOfficeName",
}

// conn is the subset of *ldap.Conn used here.
type conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// LDAPClient implements Directory over LDAP. Every call dials a fresh connection bounded by Config.Timeout.
type LDAPClient struct {
	cfg  Config
	log  *zap.Logger
	dial func(ctx context.Context) (conn, error)
}

var _ Directory = (*LDAPClient)(nil)

// NewLDAPClient returns a client for cfg. log may be nil.
func NewLDAPClient(cfg Config, log *zap.Logger) *LDAPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &LDAPClient{cfg: cfg, log: log}
	c.dial = c.dialLDAP
	return c
}

func (c *LDAPClient) dialLDAP(ctx context.Context) (conn, error) {
	d := &net.Dialer{Timeout: c.cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		d.Deadline = deadline
	}
	opts := []ldap.DialOpt{ldap.DialWithDialer(d)}
	if strings.HasPrefix(strings.ToLower(c.cfg.URL), "ldaps://") {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify})) //nolint:gosec // lab directories only
	}
	l, err := ldap.DialURL(c.cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	l.SetTimeout(c.cfg.Timeout)
	return l, nil
}

// run executes fn on a fresh connection and gives up when ctx or the configured timeout expires first.
func (c *LDAPClient) run(ctx context.Context, fn func(conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	l, err := c.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn(l) }()
	select {
	case err := <-done:
		_ = l.Close()
		return err
	case <-ctx.Done():
		_ = l.Close()
		return ctx.Err()
	}
}

func (c *LDAPClient) principal(username string) string {
	if c.cfg.Domain == "" || strings.Contains(username, "@") || strings.Contains(username, `\`) {
		return username
	}
	return username + "@" + c.cfg.Domain
}

// Authenticate binds as username. An empty password is refused locally since AD treats it as an anonymous bind.
func (c *LDAPClient) Authenticate(ctx context.Context, username, password string) (bool, error) {
	if password == "" {
		return false, nil
	}
	err := c.run(ctx, func(l conn) error {
		return l.Bind(c.principal(username), password)
	})
	if err != nil {
		c.log.Debug("directory bind failed", zap.String("username", username), zap.Error(err))
		return false, err
	}
	return true, nil
}

// GetUserByUsername searches by sAMAccountName with the service account. The manager's display name is
// looked up best-effort.
func (c *LDAPClient) GetUserByUsername(ctx context.Context, username string) (*DomainUser, error) {
	var out *DomainUser
	err := c.run(ctx, func(l conn) error {
		if c.cfg.BindUsername != "" {
			if err := l.Bind(c.principal(c.cfg.BindUsername), c.cfg.BindPassword); err != nil {
				return fmt.Errorf("service bind: %w", err)
			}
		}
		res, err := l.Search(ldap.NewSearchRequest(
			c.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
			fmt.Sprintf("(&(objectClass=user)(sAMAccountName=%s))", ldap.EscapeFilter(username)),
			userAttributes, nil,
		))
		if err != nil {
			if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
				return nil
			}
			return fmt.Errorf("search user: %w", err)
		}
		if len(res.Entries) == 0 {
			return nil
		}
		out = entryToDomainUser(res.Entries[0], username)
		if managerDN := res.Entries[0].GetAttributeValue("manager"); managerDN != "" {
			out.DirectManagerName = c.managerDisplayName(l, managerDN)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		c.log.Info("user not found in directory", zap.String("username", username))
	}
	return out, nil
}

func (c *LDAPClient) managerDisplayName(l conn, dn string) string {
	res, err := l.Search(ldap.NewSearchRequest(
		dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=user)", []string{"displayName"}, nil,
	))
	if err != nil || len(res.Entries) == 0 {
		c.log.Debug("manager display name lookup failed", zap.String("dn", dn), zap.Error(err))
		return ""
	}
	return res.Entries[0].GetAttributeValue("displayName")
}

func entryToDomainUser(e *ldap.Entry, fallbackUsername string) *DomainUser {
	u := &DomainUser{
		Username:    e.GetAttributeValue("sAMAccountName"),
		Email:       e.GetAttributeValue("mail"),
		FullName:    e.GetAttributeValue("displayName"),
		PhoneNumber: e.GetAttributeValue("mobile"),
		Title:       e.GetAttributeValue("title"),
		Office:      e.GetAttributeValue("physicalDeliveryOfficeName"),
		Department:  e.GetAttributeValue("department"),
	}
	if u.Username == "" {
		u.Username = fallbackUsername
	}
	if u.PhoneNumber == "" {
		u.PhoneNumber = e.GetAttributeValue("telephoneNumber")
	}
	u.ManagerUsername = managerCN(e.GetAttributeValue("manager"))
	return u
}

// managerCN returns the first CN of dn, which is what the local store keys managers by.
func managerCN(dn string) string {
	if dn == "" {
		return ""
	}
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return ""
	}
	for _, rdn := range parsed.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.EqualFold(attr.Type, "CN") {
				return attr.Value
			}
		}
	}
	return ""
}
