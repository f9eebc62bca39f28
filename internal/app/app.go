package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"OMSChat/internal/chat"
	"OMSChat/internal/format"
	"OMSChat/internal/login"
	"OMSChat/internal/message"
	"OMSChat/internal/session"
)

// PasswordFunc reads a password without echoing it
type PasswordFunc func() (string, error)

// Options wires the REPL to its collaborators
type Options struct {
	Session  *session.Manager
	Chat     *chat.Controller
	Login    *login.Flow
	Renderer *format.Renderer
	Logger   *slog.Logger

	In  io.Reader
	Out io.Writer
	// ReadPassword defaults to reading a visible line from In
	ReadPassword PasswordFunc
}

// App is the interactive chat loop
type App struct {
	session  *session.Manager
	chat     *chat.Controller
	login    *login.Flow
	renderer *format.Renderer
	logger   *slog.Logger

	scanner      *bufio.Scanner
	out          io.Writer
	readPassword PasswordFunc

	// number of controller messages already printed
	printed int
}

// New creates the REPL
func New(opts Options) (*App, error) {
	if opts.Session == nil || opts.Chat == nil || opts.Login == nil || opts.Renderer == nil {
		return nil, fmt.Errorf("session, chat, login and renderer are required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if opts.In == nil || opts.Out == nil {
		return nil, fmt.Errorf("input and output are required")
	}

	a := &App{
		session:      opts.Session,
		chat:         opts.Chat,
		login:        opts.Login,
		renderer:     opts.Renderer,
		logger:       opts.Logger,
		scanner:      bufio.NewScanner(opts.In),
		out:          opts.Out,
		readPassword: opts.ReadPassword,
	}
	if a.readPassword == nil {
		a.readPassword = func() (string, error) {
			line, ok := a.readLine()
			if !ok {
				return "", io.EOF
			}
			return line, nil
		}
	}
	return a, nil
}

// Run verifies the stored session, asks for a login when needed and then
// reads messages until /quit or end of input.
func (a *App) Run(ctx context.Context) error {
	fmt.Fprintln(a.out, "=== OMS Chat ===")

	if err := a.session.Initialize(ctx); err != nil {
		a.logger.Info("no valid stored session", "error", err)
	}

	if !a.session.IsAuthenticated() {
		if err := a.promptLogin(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(a.out, "Goodbye!")
				return nil
			}
			fmt.Fprintln(a.out, a.renderer.Styles.Muted.Render("Use /login to try again."))
		}
	}
	a.sync(ctx)

	fmt.Fprintln(a.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(a.out)

	for {
		fmt.Fprint(a.out, a.renderer.Styles.User.Render("You")+": ")
		input, ok := a.readLine()
		if !ok {
			break
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := a.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(a.out, "Error: %v\n", err)
				a.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		a.send(ctx, input)
	}

	if err := a.scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Fprintln(a.out, "Goodbye!")
	return nil
}

// handleCommand handles slash commands
func (a *App) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/login":
		if err := a.promptLogin(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			return false, nil
		}
		a.sync(ctx)
		return false, nil

	case "/logout":
		if err := a.session.Logout(ctx); err != nil {
			return false, fmt.Errorf("failed to log out: %w", err)
		}
		a.resetConversation()
		fmt.Fprintln(a.out, "Logged out.")
		return false, nil

	case "/whoami":
		a.printIdentity()
		return false, nil

	case "/tenant":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /tenant <code>")
		}
		before := a.session.Identity()
		if err := a.session.SwitchTenant(ctx, parts[1]); err != nil {
			a.logger.Info("tenant switch left no valid session", "tenant", parts[1], "error", err)
		}
		if a.session.Identity() != before {
			a.resetConversation()
		}
		fmt.Fprintf(a.out, "Tenant set to %s\n", a.session.Identity().TenantCode)
		if !a.session.IsAuthenticated() {
			fmt.Fprintln(a.out, a.renderer.Styles.Muted.Render("Not logged in for this tenant. Use /login."))
		}
		a.sync(ctx)
		return false, nil

	case "/history":
		msgs := a.chat.Messages()
		if len(msgs) == 0 {
			fmt.Fprintln(a.out, "No messages yet.")
		}
		for _, m := range msgs {
			a.printMessage(m)
		}
		a.printed = len(msgs)
		return false, nil

	case "/help":
		fmt.Fprintln(a.out, "Available commands:")
		fmt.Fprintln(a.out, "  /quit, /exit     - Exit the chat")
		fmt.Fprintln(a.out, "  /login           - Log in with tenant code, username and password")
		fmt.Fprintln(a.out, "  /logout          - Log out and clear the stored session")
		fmt.Fprintln(a.out, "  /whoami          - Show the current identity")
		fmt.Fprintln(a.out, "  /tenant <code>   - Switch tenant and re-verify the session")
		fmt.Fprintln(a.out, "  /history         - Show the whole conversation")
		fmt.Fprintln(a.out, "  /help            - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s", parts[0])
	}
}

// promptLogin collects credentials and runs the login flow. A successful
// login starts a new conversation.
func (a *App) promptLogin(ctx context.Context) error {
	tenant := a.session.Identity().TenantCode
	label := "Tenant code"
	if tenant != "" {
		label = fmt.Sprintf("Tenant code [%s]", tenant)
	}

	fmt.Fprint(a.out, label+": ")
	input, ok := a.readLine()
	if !ok {
		return io.EOF
	}
	if input != "" {
		tenant = input
	}

	fmt.Fprint(a.out, "Username: ")
	username, ok := a.readLine()
	if !ok {
		return io.EOF
	}

	fmt.Fprint(a.out, "Password: ")
	password, err := a.readPassword()
	fmt.Fprintln(a.out)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, a.renderer.Styles.Muted.Render("Logging in..."))
	if err := a.login.Submit(ctx, login.Credentials{TenantCode: tenant, Username: username, Password: password}); err != nil {
		return err
	}

	a.resetConversation()
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", a.session.Identity().UserID, tenant)
	return nil
}

// sync bootstraps the conversation when the identity allows it
func (a *App) sync(ctx context.Context) {
	if !a.chat.NeedsSync() {
		return
	}
	a.thinking()
	if err := a.chat.Sync(ctx); err != nil {
		a.logger.Debug("sync failed", "error", err)
	}
	a.flush()
}

func (a *App) send(ctx context.Context, text string) {
	if a.session.IsAuthenticated() {
		a.thinking()
	}
	if err := a.chat.Send(ctx, text); err != nil {
		a.logger.Debug("send failed", "error", err)
	}
	a.flush()
}

func (a *App) thinking() {
	fmt.Fprintln(a.out, a.renderer.Styles.Muted.Render("Thinking..."))
}

// flush prints bot messages the controller has added since the last call.
// User messages were already typed at the prompt.
func (a *App) flush() {
	msgs := a.chat.Messages()
	if a.printed > len(msgs) {
		a.printed = len(msgs)
	}
	for _, m := range msgs[a.printed:] {
		if m.Sender == message.SenderBot {
			a.printMessage(m)
		}
	}
	a.printed = len(msgs)
}

func (a *App) printMessage(m message.Message) {
	out, err := a.renderer.Render(m)
	if err != nil {
		a.logger.Error("failed to render message", "message_id", m.ID, "error", err)
		fmt.Fprintln(a.out, a.renderer.Styles.Error.Render("Could not display message: "+err.Error()))
		return
	}
	fmt.Fprintln(a.out, out)
	fmt.Fprintln(a.out)
}

func (a *App) resetConversation() {
	a.chat.Reset()
	a.printed = 0
}

func (a *App) printIdentity() {
	id := a.session.Identity()
	if !id.Authenticated() {
		fmt.Fprintf(a.out, "Not logged in (tenant %s)\n", id.TenantCode)
		return
	}
	fmt.Fprintf(a.out, "User:    %s\n", id.UserID)
	fmt.Fprintf(a.out, "Tenant:  %s\n", id.TenantCode)
	fmt.Fprintf(a.out, "Session: %s\n", id.SessionID)
}

func (a *App) readLine() (string, bool) {
	if !a.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(a.scanner.Text()), true
}
