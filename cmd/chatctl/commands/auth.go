package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go-gemini-chat/internal/chatview"

	"github.com/spf13/cobra"
)

type credentials struct {
	email    string
	password string
	name     string
}

func (c *credentials) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "account email")
	cmd.Flags().StringVar(&c.password, "password", "", "account password (or CHATCTL_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
}

func (c *credentials) resolvePassword() error {
	if c.password == "" {
		c.password = os.Getenv("CHATCTL_PASSWORD")
	}
	if c.password == "" {
		return errors.New("password required: pass --password or set CHATCTL_PASSWORD")
	}
	return nil
}

// NewSignupCmd creates the signup command.
func NewSignupCmd(opts *Options) *cobra.Command {
	creds := &credentials{}
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(ctx context.Context, e *env, _ []string) error {
			if err := creds.resolvePassword(); err != nil {
				return err
			}
			u, err := e.api.SignUp(ctx, creds.email, creds.password, creds.name)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "created account %s (#%d), now run `chatctl login`\n", u.Email, u.ID)
			return nil
		}),
	}
	creds.bind(cmd)
	cmd.Flags().StringVar(&creds.name, "name", "", "display name")
	return cmd
}

// NewLoginCmd creates the login command. The session token is kept in the
// local cache so later commands are authenticated.
func NewLoginCmd(opts *Options) *cobra.Command {
	creds := &credentials{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(ctx context.Context, e *env, _ []string) error {
			if err := creds.resolvePassword(); err != nil {
				return err
			}
			u, err := e.api.Login(ctx, creds.email, creds.password)
			if err != nil {
				return err
			}
			// Another account's cache must not leak into this session.
			e.store.ClearAll()
			e.store.SaveSession(e.api.Token())
			fmt.Fprintf(e.out, "signed in as %s\n", u.Email)
			return nil
		}),
	}
	creds.bind(cmd)
	return cmd
}

// NewLogoutCmd creates the logout command.
func NewLogoutCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget cached conversations",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(ctx context.Context, e *env, _ []string) error {
			err := e.drawer(opts).SignOut(ctx)
			if errors.Is(err, chatview.ErrCancelled) {
				return nil
			}
			return err
		}),
	}
}

// NewWhoamiCmd creates the whoami command.
func NewWhoamiCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "whoami",
		Aliases: []string{"session"},
		Short:   "Show the signed-in account",
		Args:    cobra.NoArgs,
		RunE: withEnv(opts, func(ctx context.Context, e *env, _ []string) error {
			u, err := e.api.Session(ctx)
			if err != nil {
				return err
			}
			name := u.Name
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(e.out, "%s (%s, #%d)\n", u.Email, name, u.ID)
			return nil
		}),
	}
}

func (e *env) drawer(opts *Options) *chatview.Drawer {
	return chatview.NewDrawer(e.api, e.store, e.confirmer(opts), e.bus, e.logger)
}

// confirmer asks on the command's stdin unless --yes was given.
func (e *env) confirmer(opts *Options) chatview.Confirmer {
	if opts.Yes {
		return chatview.ConfirmFunc(func(context.Context, string, string) bool { return true })
	}
	return stdinConfirmer(e.in, e.errOut)
}

func stdinConfirmer(in io.Reader, out io.Writer) chatview.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(_ context.Context, title, message string) bool {
		fmt.Fprintf(out, "%s: %s [y/N] ", title, message)
		line, _ := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
