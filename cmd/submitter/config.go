// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"time"

	"github.com/spf13/viper"
	"github.com/zeebo/errs"

	"submitter.io/submitter/submitter"
	"submitter.io/submitter/submitter/auth"
	"submitter.io/submitter/submitter/submitterdb"
)

// settings is the environment-driven configuration of the process.
type settings struct {
	Peer     submitter.Config
	Database submitterdb.Config
	LogLevel string
}

// loadSettings reads the configuration from the environment. Every setting
// has a stable env name; defaults suit local development.
func loadSettings() (settings, error) {
	v := viper.New()
	v.AutomaticEnv()

	defaults := map[string]any{
		"PG_DATABASE_URL":    "postgres://submitter@localhost/submitter?sslmode=disable",
		"LOG_LEVEL":          "info",
		"SERVER_ADDRESS":     ":8080",
		"BASE_URL":           "http://localhost:8080",
		"DEPLOYMENT":         "NBIS",
		"POLLING_INTERVAL":   60,
		"TOKEN_LIFETIME":     "1h",
		"OIDC_SECURE_COOKIE": true,
		"DPOP_ENABLED":       false,
		"DPOP_REPLAY_CACHE":  10000,
		"MAX_BODY_SIZE":      32 << 20,
		"DOI_PROVIDER":       "datacite",
		"PUBLISHER":          "CSC - IT Center for Science",
		"ALLOW_UNSAFE":       false,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	tokenLifetime, err := time.ParseDuration(v.GetString("TOKEN_LIFETIME"))
	if err != nil {
		return settings{}, errs.New("invalid TOKEN_LIFETIME: %v", err)
	}

	config := submitter.Config{
		Deployment:  v.GetString("DEPLOYMENT"),
		DOIProvider: v.GetString("DOI_PROVIDER"),
	}

	config.Web.Address = v.GetString("SERVER_ADDRESS")
	config.Web.ExternalURL = v.GetString("BASE_URL")
	config.Web.MaxBodySize = v.GetInt64("MAX_BODY_SIZE")
	config.Web.AdminToken = v.GetString("ADMIN_API_TOKEN")
	config.Web.ShutdownTimeout = 10 * time.Second

	config.Auth = auth.Config{
		JWTSecret:     v.GetString("JWT_SECRET"),
		Issuer:        v.GetString("BASE_URL"),
		TokenLifetime: tokenLifetime,
		SecureCookie:  v.GetBool("OIDC_SECURE_COOKIE"),
	}
	config.Auth.OIDC.Issuer = v.GetString("OIDC_ISSUER")
	config.Auth.OIDC.ClientID = v.GetString("OIDC_CLIENT_ID")
	config.Auth.OIDC.ClientSecret = v.GetString("OIDC_CLIENT_SECRET")
	config.Auth.OIDC.AuthURL = v.GetString("OIDC_AUTH_URL")
	config.Auth.OIDC.TokenURL = v.GetString("OIDC_TOKEN_URL")
	config.Auth.OIDC.UserInfoURL = v.GetString("OIDC_USERINFO_URL")
	config.Auth.OIDC.RedirectURL = v.GetString("OIDC_REDIRECT_URL")
	config.Auth.DPoP.Enabled = v.GetBool("DPOP_ENABLED")
	config.Auth.DPoP.ReplayCacheSize = v.GetInt("DPOP_REPLAY_CACHE")
	config.Auth.DPoP.ProofLifetime = time.Minute

	config.Submission.BPCenterID = v.GetString("BP_CENTER_ID")
	config.Submission.AllowUnsafe = v.GetBool("ALLOW_UNSAFE")

	config.Publish.DiscoveryBaseURL = v.GetString("DISCOVERY_URL")
	if config.Publish.DiscoveryBaseURL == "" {
		config.Publish.DiscoveryBaseURL = config.Web.ExternalURL
	}
	config.Publish.Publisher = v.GetString("PUBLISHER")
	config.Publish.CatalogID = v.GetString("METAX_CATALOG_ID")

	config.Ingestion.Interval = time.Duration(v.GetInt("POLLING_INTERVAL")) * time.Second

	config.LDAP.URL = v.GetString("CSC_LDAP_URL")
	config.LDAP.BindDN = v.GetString("CSC_LDAP_BIND_DN")
	config.LDAP.Password = v.GetString("CSC_LDAP_PASSWORD")
	config.LDAP.BaseDN = v.GetString("CSC_LDAP_BASE_DN")

	config.DataCite.Endpoint = v.GetString("DATACITE_URL")
	config.DataCite.Prefix = v.GetString("DATACITE_PREFIX")
	config.DataCite.Username = v.GetString("DATACITE_USERNAME")
	config.DataCite.Password = v.GetString("DATACITE_PASSWORD")

	config.PID.Endpoint = v.GetString("PID_URL")
	config.PID.APIKey = v.GetString("PID_APIKEY")

	config.Metax.Endpoint = v.GetString("METAX_URL")
	config.Metax.Token = v.GetString("METAX_TOKEN")
	config.Metax.CatalogID = v.GetString("METAX_CATALOG_ID")

	config.REMS.Endpoint = v.GetString("REMS_URL")
	config.REMS.UserID = v.GetString("REMS_USER_ID")
	config.REMS.APIKey = v.GetString("REMS_API_KEY")

	config.Admin.Endpoint = v.GetString("ADMIN_URL")
	config.Admin.Token = v.GetString("ADMIN_API_TOKEN")

	config.S3.Endpoint = v.GetString("S3_ENDPOINT")
	config.S3.AccessKey = v.GetString("S3_ACCESS_KEY")
	config.S3.SecretKey = v.GetString("S3_SECRET_KEY")
	config.S3.Region = v.GetString("S3_REGION")
	config.S3.UseSSL = v.GetBool("S3_USE_SSL")

	config.Keystone.Endpoint = v.GetString("KEYSTONE_ENDPOINT")
	config.Keystone.Token = v.GetString("KEYSTONE_TOKEN")

	database := submitterdb.Config{
		URL:             v.GetString("PG_DATABASE_URL"),
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
	}

	return settings{
		Peer:     config,
		Database: database,
		LogLevel: v.GetString("LOG_LEVEL"),
	}, nil
}
