package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/config"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserAddCommand())
	return cmd
}

func newUserAddCommand() *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Driver != config.DriverSQLite {
				return fmt.Errorf("user add requires the %s driver, configured driver is %s", config.DriverSQLite, cfg.Driver)
			}

			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			repos, closeStore, err := openRepositories(ctx, cfg, time.Now, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			svc := buildServices(repos, cfg, nil, time.Now, logger)
			result, err := svc.identity.Register(ctx, application.RegisterParams{
				Email:       email,
				Password:    password,
				DisplayName: name,
			})
			if err != nil {
				var vErr *application.ValidationError
				if errors.As(err, &vErr) {
					return fmt.Errorf("invalid account: %s", strings.Join(fieldMessages(vErr), "; "))
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s <%s>\n", result.Identity.UID, result.Identity.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword prompts without echo on a terminal and otherwise reads the
// first line of in.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(data), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("read password: no password given")
	}
	return line, nil
}

func fieldMessages(vErr *application.ValidationError) []string {
	fields := vErr.Fields()
	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, field+": "+vErr.FieldErrors[field])
	}
	return messages
}
