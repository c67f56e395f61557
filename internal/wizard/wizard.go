// Package wizard collects the account settings for a new .attend.yaml.
package wizard

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/attendbot/attend/internal/projectconfig"
	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// Answers holds the fields collected by the init wizard.
type Answers struct {
	Username string
	Password string
	BaseURL  string
	Timezone string
}

// RunInitWizard runs an interactive huh form. Fields of defaults pre-populate the
// form.
func RunInitWizard(in io.Reader, out io.Writer, defaults Answers) (*Answers, error) {
	a := defaults

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Description("Your LMS login (usually the student number)").
				Value(&a.Username).
				Validate(ValidateUsername),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&a.Password).
				Validate(ValidatePassword),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Portal URL").
				Placeholder(projectconfig.DefaultBaseURL).
				Value(&a.BaseURL).
				Validate(ValidateBaseURL),
			huh.NewInput().
				Title("Time zone").
				Description("IANA name of the zone the timetable is written in").
				Placeholder(projectconfig.DefaultTimezone).
				Value(&a.Timezone).
				Validate(ValidateTimezone),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	a.Username = strings.TrimSpace(a.Username)
	a.BaseURL = strings.TrimSpace(a.BaseURL)
	a.Timezone = strings.TrimSpace(a.Timezone)
	return &a, nil
}

// Apply copies the answers into cfg. Empty optional answers keep cfg's
// values.
func (a *Answers) Apply(cfg *projectconfig.Config) {
	cfg.Credentials.Username = a.Username
	cfg.Credentials.Password = a.Password
	if a.BaseURL != "" {
		cfg.Portal.BaseURL = strings.TrimRight(a.BaseURL, "/")
	}
	if a.Timezone != "" {
		cfg.Timezone = a.Timezone
	}
}

func ValidateUsername(s string) error {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return errors.New("username is required")
	case s == projectconfig.PlaceholderUsername:
		return errors.New("replace the placeholder with your own username")
	}
	return nil
}

func ValidatePassword(s string) error {
	switch {
	case s == "":
		return errors.New("password is required")
	case s == projectconfig.PlaceholderPassword:
		return errors.New("replace the placeholder with your own password")
	}
	return nil
}

// ValidateBaseURL accepts an empty value (the default portal) or an
// absolute http(s) URL.
func ValidateBaseURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%q is not an http(s) URL", s)
	}
	return nil
}

func ValidateTimezone(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.LoadLocation(s); err != nil {
		return fmt.Errorf("unknown time zone %q", s)
	}
	return nil
}
