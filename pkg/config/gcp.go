package config

import (
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions returns the credential option for Google API clients. Inline
// JSON wins over a key file; with neither set the clients fall back to
// Application Default Credentials.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	if js := strings.TrimSpace(g.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(g.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}
