package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"OMSChat/internal/app"
	"OMSChat/internal/login"
	"OMSChat/internal/message"

	"github.com/spf13/cobra"
)

var (
	loginTenant   string
	loginUsername string
)

// loginCmd stores a new identity
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long: `Log in with a tenant code, username and password.

Missing values are prompted for; the password is read without echo
when stdin is a terminal.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// logoutCmd clears the stored identity
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and clear the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

// whoamiCmd verifies and prints the stored identity
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Verify the stored session and show who is logged in",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

// sendCmd sends one message and prints the reply
var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a single message and print the reply",
	Example: `  omschat send "where is order 1042?"
  omschat send show me the invoice for order 1042`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer rt.Close()

	repl, err := app.New(app.Options{
		Session:      rt.session,
		Chat:         rt.chat,
		Login:        rt.login,
		Renderer:     rt.renderer,
		Logger:       rt.logger,
		In:           os.Stdin,
		Out:          cmd.OutOrStdout(),
		ReadPassword: terminalPassword(os.Stdin),
	})
	if err != nil {
		return fmt.Errorf("failed to start chat: %w", err)
	}
	return repl.Run(ctx)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	rt, err := newRuntime(ctx, cmd, out)
	if err != nil {
		return err
	}
	defer rt.Close()

	in := bufio.NewReader(os.Stdin)
	creds := login.Credentials{TenantCode: loginTenant, Username: loginUsername}

	if creds.TenantCode == "" {
		current := rt.session.Identity().TenantCode
		if current == "" {
			current = rt.cfg.DefaultTenant
		}
		if creds.TenantCode, err = prompt(out, in, fmt.Sprintf("Tenant code [%s]: ", current)); err != nil {
			return err
		}
		if creds.TenantCode == "" {
			creds.TenantCode = current
		}
	}
	if creds.Username == "" {
		if creds.Username, err = prompt(out, in, "Username: "); err != nil {
			return err
		}
	}

	if read := terminalPassword(os.Stdin); read != nil {
		fmt.Fprint(out, "Password: ")
		creds.Password, err = read()
		fmt.Fprintln(out)
	} else {
		creds.Password, err = prompt(out, in, "Password: ")
	}
	if err != nil {
		return err
	}

	if err := rt.login.Submit(ctx, creds); err != nil {
		return errors.New("login failed")
	}

	id := rt.session.Identity()
	fmt.Fprintf(out, "Logged in as %s (%s)\n", id.UserID, id.TenantCode)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.session.Logout(ctx); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	rt, err := newRuntime(ctx, cmd, out)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.session.Initialize(ctx); err != nil {
		rt.logger.Info("session verification failed", "error", err)
	}

	id := rt.session.Identity()
	if !id.Authenticated() {
		fmt.Fprintf(out, "Not logged in (tenant %s)\n", id.TenantCode)
		return nil
	}
	fmt.Fprintf(out, "User:    %s\n", id.UserID)
	fmt.Fprintf(out, "Tenant:  %s\n", id.TenantCode)
	fmt.Fprintf(out, "Session: %s\n", id.SessionID)
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	rt, err := newRuntime(ctx, cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	return sendOnce(ctx, rt, strings.Join(args, " "), out)
}

// sendOnce verifies the session, bootstraps the chat and sends one message.
// A failed bootstrap has already been reported and does not stop the send.
func sendOnce(ctx context.Context, rt *runtime, text string, out io.Writer) error {
	if err := rt.session.Initialize(ctx); err != nil {
		rt.logger.Info("session verification failed", "error", err)
	}
	if !rt.session.IsAuthenticated() {
		return errors.New("not logged in, run 'omschat login' first")
	}

	if err := rt.chat.Sync(ctx); err != nil {
		rt.logger.Warn("chat bootstrap failed, sending anyway", "error", err)
	}
	greeting := len(rt.chat.Messages())

	if err := rt.chat.Send(ctx, text); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	for _, m := range rt.chat.Messages()[greeting:] {
		if m.Sender != message.SenderBot {
			continue
		}
		body, err := rt.renderer.Body(m)
		if err != nil {
			return fmt.Errorf("failed to render reply: %w", err)
		}
		fmt.Fprintln(out, body)
	}
	return nil
}

func prompt(out io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
