package wizard

import (
	"testing"

	"github.com/attendbot/attend/internal/projectconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("2021001"))
	assert.EqualError(t, ValidateUsername("  "), "username is required")
	assert.ErrorContains(t, ValidateUsername("your_username"), "placeholder")
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("s3cret"))
	assert.EqualError(t, ValidatePassword(""), "password is required")
	assert.ErrorContains(t, ValidatePassword("your_password"), "placeholder")
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"https://elearning.kampus.ac.id", false},
		{"http://localhost:8080", false},
		{"elearning.kampus.ac.id", true},
		{"ftp://elearning.kampus.ac.id", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := ValidateBaseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTimezone(t *testing.T) {
	assert.NoError(t, ValidateTimezone(""))
	assert.NoError(t, ValidateTimezone("Asia/Jakarta"))
	assert.ErrorContains(t, ValidateTimezone("Asia/Atlantis"), "unknown time zone")
}

func TestAnswersApply(t *testing.T) {
	cfg := projectconfig.New()
	a := &Answers{Username: "2021001", Password: "s3cret", BaseURL: "https://elearning.kampus.ac.id/"}
	a.Apply(cfg)

	assert.Equal(t, "2021001", cfg.Credentials.Username)
	assert.Equal(t, "s3cret", cfg.Credentials.Password)
	assert.Equal(t, "https://elearning.kampus.ac.id", cfg.Portal.BaseURL)
	assert.Equal(t, projectconfig.DefaultTimezone, cfg.Timezone, "empty answer keeps the default")
	require.NoError(t, cfg.Validate())
}
