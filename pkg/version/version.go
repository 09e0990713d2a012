package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Version is the release tag of this build, e.g. v0.3.0
var Version = strings.TrimSpace(raw)

// Get returns the release tag
func Get() string {
	return Version
}

// ClientID tags a component's outbound connections with the release tag
func ClientID(component string) string {
	return component + "/" + Version
}
