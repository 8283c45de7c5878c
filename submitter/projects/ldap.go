// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package projects

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// LDAPConfig configures the directory-backed provider.
type LDAPConfig struct {
	URL      string
	BindDN   string
	Password string
	BaseDN   string
}

// LDAPProvider resolves project numbers from the CSC directory.
type LDAPProvider struct {
	log    *zap.Logger
	config LDAPConfig
	dial   func() (ldapConn, error)
}

// ldapConn is the subset of *ldap.Conn the provider uses.
type ldapConn interface {
	Bind(username, password string) error
	Search(request *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// NewLDAPProvider creates a provider that dials the directory per lookup.
func NewLDAPProvider(log *zap.Logger, config LDAPConfig) *LDAPProvider {
	return &LDAPProvider{
		log:    log,
		config: config,
		dial: func() (ldapConn, error) {
			return ldap.DialURL(config.URL)
		},
	}
}

// TestSetDialer overrides the directory connection; only for tests.
func (provider *LDAPProvider) TestSetDialer(dial func() (ldapConn, error)) {
	provider.dial = dial
}

// ProjectsFor implements Provider by searching for ready application
// processes owned by the user and collecting their project numbers.
func (provider *LDAPProvider) ProjectsFor(ctx context.Context, userID string) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	conn, err := provider.dial()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = conn.Close() }()

	if provider.config.BindDN != "" {
		if err := conn.Bind(provider.config.BindDN, provider.config.Password); err != nil {
			return nil, Error.Wrap(err)
		}
	}

	filter := fmt.Sprintf(
		"(&(objectClass=applicationProcess)(CSCSPCommonStatus=ready)(CSCUserName=%s))",
		ldap.EscapeFilter(userID))

	result, err := conn.Search(ldap.NewSearchRequest(
		provider.config.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{"CSCPrjNum"},
		nil,
	))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var ids []string
	for _, entry := range result.Entries {
		for _, value := range entry.GetAttributeValues("CSCPrjNum") {
			if value != "" {
				ids = append(ids, value)
			}
		}
	}
	return ids, nil
}
