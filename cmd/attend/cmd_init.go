package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/attendbot/attend/internal/projectconfig"
	"github.com/attendbot/attend/internal/wizard"
	"github.com/spf13/cobra"
)

func newInitCommand(opts *rootOptions) *cobra.Command {
	var (
		answers wizard.Answers
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a .attend.yaml for your account",
		Long: `Create a configuration file with your LMS credentials.

When both --username and --password are given the file is written without
prompting. Otherwise an interactive form asks for the missing values.
The file is written to --config, or .attend.yaml in the working directory,
with owner-only permissions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = projectconfig.FileName
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			a := &answers
			if answers.Username == "" || answers.Password == "" {
				var err error
				a, err = wizard.RunInitWizard(cmd.InOrStdin(), cmd.OutOrStdout(), answers)
				if err != nil {
					return err
				}
			}
			for _, check := range []error{
				wizard.ValidateUsername(a.Username),
				wizard.ValidatePassword(a.Password),
				wizard.ValidateBaseURL(a.BaseURL),
				wizard.ValidateTimezone(a.Timezone),
			} {
				if check != nil {
					return &projectconfig.ConfigurationError{Source: path, Problems: []string{check.Error()}}
				}
			}

			cfg := projectconfig.New()
			a.Apply(cfg)
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("creating %s: %w", dir, err)
				}
			}
			if err := cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)                         //nolint:errcheck
			fmt.Fprintln(cmd.OutOrStdout(), "Run \"attend run\" to check attendance now.") //nolint:errcheck
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&answers.Username, "username", "", "LMS username")
	f.StringVar(&answers.Password, "password", "", "LMS password")
	f.StringVar(&answers.BaseURL, "base-url", "", "Portal URL (default "+projectconfig.DefaultBaseURL+")")
	f.StringVar(&answers.Timezone, "timezone", "", "Time zone of the timetable (default "+projectconfig.DefaultTimezone+")")
	f.BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
