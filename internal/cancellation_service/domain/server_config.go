package domain

import "strings"

// ServerConfig is a provider definition owned by the catalog admin.
type ServerConfig struct {
	ID              string
	Name            string
	CancelURL       string
	AuthHeaderName  string
	AuthHeaderValue string
	// Source is the table the row was found in.
	Source string
}

var activationPlaceholders = []string{"{activation_id}", "{activationId}", "{id}"}

// BuildCancelURL substitutes the activation id into the cancel URL template.
func (c ServerConfig) BuildCancelURL(activationID string) string {
	url := c.CancelURL
	for _, p := range activationPlaceholders {
		url = strings.ReplaceAll(url, p, activationID)
	}
	return url
}

func (c ServerConfig) HasAuthHeader() bool {
	return c.AuthHeaderName != "" && c.AuthHeaderValue != ""
}
