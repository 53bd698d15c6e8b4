package telemetry_pipeline

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DSN is a parsed connection descriptor: where to send events and how to
// authenticate.
type DSN struct {
	Scheme    string
	PublicKey string
	SecretKey string
	Host      string
	Port      int
	Path      string
	ProjectID string

	// Computed URLs
	StoreURL    string
	EnvelopeURL string
}

// ParseDSN parses a DSN string of the form
//
//	{scheme}://{public_key}[:{secret_key}]@{host}[:{port}]/{path}{project_id}
func ParseDSN(dsnStr string) (*DSN, error) {
	if dsnStr == "" {
		return nil, fmt.Errorf("DSN is empty")
	}

	parsedURL, err := url.Parse(dsnStr)
	if err != nil {
		return nil, fmt.Errorf("the %q DSN is invalid: %w", dsnStr, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("the scheme of the %q DSN must be either \"http\" or \"https\"", dsnStr)
	}
	if parsedURL.Host == "" || parsedURL.Path == "" || parsedURL.User == nil {
		return nil, fmt.Errorf("the %q DSN must contain a scheme, a host, a user and a path component", dsnStr)
	}

	publicKey := parsedURL.User.Username()
	if publicKey == "" {
		return nil, fmt.Errorf("the %q DSN is missing a public key", dsnStr)
	}
	secretKey, _ := parsedURL.User.Password()

	port := 80
	if parsedURL.Scheme == "https" {
		port = 443
	}
	if parsedURL.Port() != "" {
		if portNum, err := strconv.Atoi(parsedURL.Port()); err == nil {
			port = portNum
		}
	}

	// The last path segment is the project ID, everything before it is an
	// optional path prefix
	pathSegments := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
	projectID := pathSegments[len(pathSegments)-1]
	if projectID == "" {
		return nil, fmt.Errorf("the %q DSN path must contain a project ID", dsnStr)
	}

	path := ""
	if len(pathSegments) > 1 {
		path = "/" + strings.Join(pathSegments[:len(pathSegments)-1], "/")
	}

	dsn := &DSN{
		Scheme:    parsedURL.Scheme,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Host:      parsedURL.Hostname(),
		Port:      port,
		Path:      path,
		ProjectID: projectID,
	}
	dsn.StoreURL = dsn.endpointURL("store")
	dsn.EnvelopeURL = dsn.endpointURL("envelope")

	return dsn, nil
}

// baseEndpointURL returns the base API URL for this project
func (d *DSN) baseEndpointURL() string {
	u := fmt.Sprintf("%s://%s", d.Scheme, d.Host)

	// Add port if non-standard
	if (d.Scheme == "http" && d.Port != 80) || (d.Scheme == "https" && d.Port != 443) {
		u += fmt.Sprintf(":%d", d.Port)
	}

	if d.Path != "" {
		u += d.Path
	}

	return u + fmt.Sprintf("/api/%s", d.ProjectID)
}

// endpointURL returns the URL of a named ingestion endpoint
func (d *DSN) endpointURL(name string) string {
	return d.baseEndpointURL() + "/" + name + "/"
}

// AuthHeader builds the X-Sentry-Auth header value for a request issued now
func (d *DSN) AuthHeader(now time.Time) string {
	auth := fmt.Sprintf("Sentry sentry_version=7,sentry_client=%s/%s,sentry_timestamp=%d,sentry_key=%s",
		sdkName, sdkVersion, now.Unix(), d.PublicKey)

	if d.SecretKey != "" {
		auth += fmt.Sprintf(",sentry_secret=%s", d.SecretKey)
	}

	return auth
}

// String reassembles the descriptor without the secret key
func (d *DSN) String() string {
	u := fmt.Sprintf("%s://%s@%s", d.Scheme, d.PublicKey, d.Host)
	if (d.Scheme == "http" && d.Port != 80) || (d.Scheme == "https" && d.Port != 443) {
		u += fmt.Sprintf(":%d", d.Port)
	}
	if d.Path != "" {
		u += d.Path
	}
	return u + "/" + d.ProjectID
}
