package core

import (
	"net/url"
	"strings"
)

// Listing builds store listing deep links.
type Listing struct {
	// BaseURI is prefixed to a store id, e.g. "appworld://content/".
	BaseURI string `json:"base_uri"`
	// HomeURI is opened when no store id is configured.
	HomeURI string `json:"home_uri"`
}

// DefaultListing returns the App World links.
func DefaultListing() Listing {
	return Listing{BaseURI: "appworld://content/", HomeURI: "appworld://myworld"}
}

// URI returns the deep link for id. An empty or zero id opens HomeURI.
func (l Listing) URI(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || id == "0" {
		return l.HomeURI
	}
	return l.BaseURI + url.PathEscape(id)
}
