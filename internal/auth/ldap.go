package auth

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"dnsmanager/internal/config"
)

const (
	ldapTimeout        = 10 * time.Second
	defaultGroupFilter = "(|(member=%s)(uniqueMember=%s))"
	RoleAdmin          = "admin"
	RoleEditor         = "editor"
)

var ErrLDAPUserNotFound = errors.New("ldap user not found")

type LDAPResult struct {
	Username string
	Email    string
	Groups   []string
}

// Directory authenticates operators against an external account store.
type Directory interface {
	Authenticate(username, password string) (*LDAPResult, error)
	ResolveRole(groups []string) (string, bool)
}

type LDAPClient struct {
	cfg config.LDAPConfig
}

func NewLDAPClient(cfg config.LDAPConfig) *LDAPClient {
	return &LDAPClient{cfg: cfg}
}

// Authenticate binds with the service account to find the user entry, then
// binds as the user to check the password.
func (lc *LDAPClient) Authenticate(username, password string) (*LDAPResult, error) {
	if password == "" {
		// An empty password would be an unauthenticated bind and succeed.
		return nil, fmt.Errorf("ldap user bind: empty password")
	}
	conn, err := lc.connect()
	if err != nil {
		return nil, fmt.Errorf("ldap connect: %w", err)
	}
	defer conn.Close()

	if err := conn.Bind(lc.cfg.BindDN, lc.cfg.BindPassword); err != nil {
		return nil, fmt.Errorf("ldap service bind: %w", err)
	}

	filter := fmt.Sprintf(lc.cfg.UserFilter, ldap.EscapeFilter(username))
	searchReq := ldap.NewSearchRequest(
		lc.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases, 0, 30, false,
		filter,
		[]string{"dn", lc.cfg.UsernameAttr, lc.cfg.EmailAttr, "memberOf"},
		nil,
	)

	result, err := conn.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("ldap search: %w", err)
	}
	if len(result.Entries) != 1 {
		return nil, fmt.Errorf("%w: %d results for %s", ErrLDAPUserNotFound, len(result.Entries), username)
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("ldap user bind: %w", err)
	}

	groups := entry.GetAttributeValues("memberOf")
	if len(groups) == 0 {
		groupSearch := ldap.NewSearchRequest(
			lc.cfg.BaseDN,
			ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
			GroupFilter(lc.cfg.GroupFilter, entry.DN, entry.GetAttributeValue(lc.cfg.UsernameAttr)),
			[]string{"dn"},
			nil,
		)
		if groupResult, err := conn.Search(groupSearch); err == nil {
			for _, ge := range groupResult.Entries {
				groups = append(groups, ge.DN)
			}
		}
	}

	return &LDAPResult{
		Username: entry.GetAttributeValue(lc.cfg.UsernameAttr),
		Email:    entry.GetAttributeValue(lc.cfg.EmailAttr),
		Groups:   groups,
	}, nil
}

// GroupFilter expands a group search template: %s is the user DN and %u
// the login name, both escaped.
func GroupFilter(tmpl, userDN, login string) string {
	if tmpl == "" {
		tmpl = defaultGroupFilter
	}
	f := strings.ReplaceAll(tmpl, "%s", ldap.EscapeFilter(userDN))
	return strings.ReplaceAll(f, "%u", ldap.EscapeFilter(login))
}

// ResolveRole maps directory groups to a role through group_mapping. Admin
// wins over editor; no mapped group means no access.
func (lc *LDAPClient) ResolveRole(groups []string) (string, bool) {
	for _, role := range []string{RoleAdmin, RoleEditor} {
		want, ok := lc.cfg.GroupMapping[role]
		if !ok {
			continue
		}
		for _, g := range groups {
			if strings.EqualFold(g, want) {
				return role, true
			}
		}
	}
	return "", false
}

func (lc *LDAPClient) connect() (*ldap.Conn, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: lc.cfg.SkipVerify}
	dialer := ldap.DialWithDialer(&net.Dialer{Timeout: ldapTimeout})

	if strings.HasPrefix(lc.cfg.URL, "ldaps://") {
		conn, err := ldap.DialURL(lc.cfg.URL, dialer, ldap.DialWithTLSConfig(tlsCfg))
		if err != nil {
			return nil, err
		}
		conn.SetTimeout(ldapTimeout)
		return conn, nil
	}

	conn, err := ldap.DialURL(lc.cfg.URL, dialer)
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(ldapTimeout)

	if lc.cfg.StartTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}

	return conn, nil
}
