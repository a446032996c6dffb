// Package command defines the webpub-cli commands.
package command

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"webpub/internal/client/api"
	"webpub/internal/client/authstore"
	"webpub/internal/client/session"
	"webpub/internal/lib/logger"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

// readPassword is swapped in tests to keep the terminal out of the way.
var readPassword = term.ReadPassword

const envKey = "env"

// Env is everything a command needs, built once per run in App.Before.
type Env struct {
	Log     *slog.Logger
	Client  *api.Client
	Session *session.Session
	Auth    *authstore.Store
	WSURL   string
	Out     io.Writer
}

// App builds the CLI writing to out. Errors are returned from Run, never turned into os.Exit.
func App(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "webpub-cli",
		Usage:     "Manage your webpub account, channels, posts and notifications",
		Writer:    out,
		ErrWriter: out,
		Flags:     globalFlags(),

		ExitErrHandler: func(*cli.Context, error) {},

		Commands: []*cli.Command{
			SignupCommand(),
			LoginCommand(),
			MeCommand(),
			ProfileCommand(),
			LogoutCommand(),
			ForgotPasswordCommand(),
			ResetPasswordCommand(),
			ChannelsCommand(),
			PostsCommand(),
			NotificationsCommand(),
		},
		Before: func(c *cli.Context) error {
			logOut := io.Discard
			if c.Bool("verbose") {
				logOut = os.Stderr
			}
			log := logger.Setup(logger.EnvLocal, logOut)

			sess := session.New(session.FileKeeper{Path: c.String("token-file")})
			client := api.New(c.String("api-url"), api.WithTimeout(c.Duration("timeout")))

			c.App.Metadata = map[string]any{
				envKey: &Env{
					Log:     log,
					Client:  client,
					Session: sess,
					Auth:    authstore.New(log, client, sess),
					WSURL:   wsURL(c.String("ws-url"), client.BaseURL()),
					Out:     out,
				},
			}

			return nil
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api-url",
			Usage:   "Base URL of the webpub API",
			EnvVars: []string{"WEBPUB_API_URL"},
			Value:   "http://localhost:8080",
		},
		&cli.StringFlag{
			Name:    "ws-url",
			Usage:   "WebSocket URL of the notification feed (derived from --api-url when empty)",
			EnvVars: []string{"WEBPUB_WS_URL"},
		},
		&cli.StringFlag{
			Name:    "token-file",
			Usage:   "Where a remembered access token is kept",
			EnvVars: []string{"WEBPUB_TOKEN_FILE"},
			Value:   defaultTokenFile(),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-request timeout",
			Value: api.DefaultTimeout,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log to stderr",
		},
	}
}

func GetEnv(c *cli.Context) *Env {
	env, _ := c.App.Metadata[envKey].(*Env)
	return env
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".webpub-token.json"
	}

	return filepath.Join(dir, "webpub", "token.json")
}

func wsURL(explicit, baseURL string) string {
	if explicit != "" {
		return explicit
	}

	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/notifications/ws"
	default:
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/notifications/ws"
	}
}

// password returns the flag value or prompts for it without echo.
func password(c *cli.Context, flag, prompt string) (string, error) {
	if v := c.String(flag); v != "" {
		return v, nil
	}

	env := GetEnv(c)
	fmt.Fprint(env.Out, prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(env.Out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	return string(pw), nil
}

func printMode(env *Env) {
	if env.Session.IsLocal() {
		fmt.Fprintln(env.Out, "(service unavailable: working in local mode)")
	}
}
