package models

import (
	"net/url"
	"strings"
)

// Portal locates the LMS endpoints the engine talks to.
type Portal struct {
	BaseURL           string
	LoginPath         string
	MemberPath        string
	ForceDownloadPath string

	// CookiePrefix names the synthesized remember-me cookies used when no
	// session artifacts have been persisted yet.
	CookiePrefix string
}

func (p Portal) join(path string) string {
	return strings.TrimRight(p.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (p Portal) LoginURL() string  { return p.join(p.LoginPath) }
func (p Portal) MemberURL() string { return p.join(p.MemberPath) }

// ForceDownloadURL is the direct endpoint behind the portal's
// force_download('<file>') client action.
func (p Portal) ForceDownloadURL(file string) string {
	return strings.TrimRight(p.join(p.ForceDownloadPath), "/") + "/" + file
}

// Host returns the portal host name, or "" if BaseURL does not parse.
func (p Portal) Host() string {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IsLoginURL reports whether u is a login surface.
func (p Portal) IsLoginURL(u string) bool {
	return strings.Contains(u, "login")
}

// IsMemberURL reports whether u is inside the authenticated member area.
func (p Portal) IsMemberURL(u string) bool {
	marker := strings.Trim(p.MemberPath, "/")
	if marker == "" {
		marker = "member"
	}
	return strings.Contains(u, marker) && !p.IsLoginURL(u)
}
