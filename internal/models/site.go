package models

import "fmt"

// MaxSiteIDLen is the longest site identifier accepted, the DNS label limit.
const MaxSiteIDLen = 63

// ValidateSiteID checks that id can serve as a subdomain label:
// lowercase letters, digits and inner hyphens.
func ValidateSiteID(id string) error {
	if id == "" {
		return fmt.Errorf("site id is required")
	}
	if len(id) > MaxSiteIDLen {
		return fmt.Errorf("site id %q is longer than %d characters", id, MaxSiteIDLen)
	}
	for i, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' && i > 0 && i < len(id)-1:
		default:
			return fmt.Errorf("site id %q: invalid character %q at %d", id, r, i)
		}
	}
	return nil
}
