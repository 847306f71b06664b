package domain

import "strings"

// Credentials are the secrets an ingestion run needs for the mail and
// extraction collaborators. On-demand callers may supply their own.
type Credentials struct {
	MailUser     string `json:"email"`
	MailPassword string `json:"app_password"`
	APIKey       string `json:"api_key"`
	Model        string `json:"model,omitempty"`
}

// IsZero reports whether no credential field is set
func (c Credentials) IsZero() bool {
	return c.MailUser == "" && c.MailPassword == "" && c.APIKey == "" && c.Model == ""
}

// Validate reports which required credentials are missing
func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.MailUser) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(c.MailPassword) == "" {
		missing = append(missing, "app_password")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if len(missing) > 0 {
		return ConfigError("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}
