package cli

import (
	"net"
	"regexp"
	"strings"
)

var (
	hostnameLabelPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)
	hostnameTLDPattern   = regexp.MustCompile(`^[A-Za-z]{2,}$`)
	dbNamePattern        = regexp.MustCompile(`^[A-Za-z0-9_-]{1,255}$`)
)

// ValidHostname accepts fully qualified hostnames: dot-separated labels
// of letters, digits and inner hyphens, ending in an alphabetic TLD of at
// least two characters. Bare single-label names are rejected.
func ValidHostname(hostname string) bool {
	labels := strings.Split(hostname, ".")
	if len(labels) < 2 {
		return false
	}
	if !hostnameTLDPattern.MatchString(labels[len(labels)-1]) {
		return false
	}
	for _, label := range labels[:len(labels)-1] {
		if len(label) > 63 || !hostnameLabelPattern.MatchString(label) {
			return false
		}
	}
	return true
}

// ValidIP accepts IPv4 and IPv6 literals.
func ValidIP(address string) bool {
	return net.ParseIP(address) != nil
}

// ValidDBName accepts Postgres database names as we create them.
func ValidDBName(name string) bool {
	return dbNamePattern.MatchString(name)
}
