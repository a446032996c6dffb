package command

import (
	"errors"
	"fmt"

	"webpub/internal/client/authstore"

	"github.com/urfave/cli/v2"
)

func SignupCommand() *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "Create an account and log in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Full name", Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Prompted for when empty"},
		},
		Action: func(c *cli.Context) error {
			env := GetEnv(c)

			pw, err := password(c, "password", "Choose a password: ")
			if err != nil {
				return err
			}

			if err := env.Auth.Register(c.Context, c.String("email"), pw, c.String("name")); err != nil {
				return cli.Exit("signup failed: "+env.Auth.State().Error, 1)
			}

			printMode(env)
			fmt.Fprintf(env.Out, "Welcome, %s\n", env.Auth.State().User.FullName)

			return nil
		},
	}
}

func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Prompted for when empty"},
			&cli.BoolFlag{Name: "remember", Aliases: []string{"r"}, Usage: "Keep the token for later runs"},
		},
		Action: func(c *cli.Context) error {
			env := GetEnv(c)

			pw, err := password(c, "password", "Password: ")
			if err != nil {
				return err
			}

			if err := env.Auth.Login(c.Context, c.String("email"), pw, c.Bool("remember")); err != nil {
				return cli.Exit("login failed: "+env.Auth.State().Error, 1)
			}

			printMode(env)
			user := env.Auth.State().User
			fmt.Fprintf(env.Out, "Logged in as %s (%s)\n", user.FullName, user.Email)

			return nil
		},
	}
}

func MeCommand() *cli.Command {
	return &cli.Command{
		Name:  "me",
		Usage: "Show the current user",
		Action: func(c *cli.Context) error {
			env := GetEnv(c)

			if err := env.Auth.FetchUserProfile(c.Context); err != nil {
				return cli.Exit("not logged in", 1)
			}

			printMode(env)
			user := env.Auth.State().User
			fmt.Fprintf(env.Out, "id:        %s\nemail:     %s\nfull name: %s\nactive:    %t\n",
				user.ID, user.Email, user.FullName, user.IsActive)

			return nil
		},
	}
}

func ProfileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Change the name or email of the current user",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}},
		},
		Action: func(c *cli.Context) error {
			env := GetEnv(c)

			var email, name *string
			if c.IsSet("email") {
				v := c.String("email")
				email = &v
			}
			if c.IsSet("name") {
				v := c.String("name")
				name = &v
			}
			if email == nil && name == nil {
				return cli.Exit("nothing to change: pass --name or --email", 1)
			}

			if err := env.Auth.UpdateProfile(c.Context, email, name); err != nil {
				if errors.Is(err, authstore.ErrNotAuthenticated) {
					return cli.Exit("not logged in", 1)
				}
				return cli.Exit("update failed: "+env.Auth.State().Error, 1)
			}

			printMode(env)
			user := env.Auth.State().User
			fmt.Fprintf(env.Out, "Profile updated: %s (%s)\n", user.FullName, user.Email)

			return nil
		},
	}
}

func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the remembered token",
		Action: func(c *cli.Context) error {
			env := GetEnv(c)

			env.Auth.Logout(c.Context)
			fmt.Fprintln(env.Out, "Logged out")

			return nil
		},
	}
}

func ForgotPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "forgot-password",
		Usage: "Request a password reset link",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
		},
		Action: func(c *cli.Context) error {
			env := GetEnv(c)

			msg, err := env.Client.ForgotPassword(c.Context, c.String("email"))
			if err != nil {
				return cli.Exit("request failed: "+err.Error(), 1)
			}

			fmt.Fprintln(env.Out, msg)

			return nil
		},
	}
}

func ResetPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset-password",
		Usage: "Set a new password with a reset token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token", Aliases: []string{"t"}, Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Prompted for when empty"},
		},
		Action: func(c *cli.Context) error {
			env := GetEnv(c)

			pw, err := password(c, "password", "New password: ")
			if err != nil {
				return err
			}

			if err := env.Client.ResetPassword(c.Context, c.String("token"), pw); err != nil {
				return cli.Exit("reset failed: "+err.Error(), 1)
			}

			fmt.Fprintln(env.Out, "Password has been reset")

			return nil
		},
	}
}
