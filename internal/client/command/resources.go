package command

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"
	"time"

	"webpub/internal/client/api"
	"webpub/internal/client/notifications"
	"webpub/internal/client/resources"
	"webpub/internal/models"

	"github.com/urfave/cli/v2"
)

func ChannelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "channels",
		Usage: "Manage publishing channels",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List your channels",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "active", Usage: "Filter by is_active (true|false)"},
				},
				Action: func(c *cli.Context) error {
					store, err := channelStore(c)
					if err != nil {
						return err
					}

					filter := url.Values{}
					if v := c.String("active"); v != "" {
						filter.Set("is_active", v)
					}

					items, err := store.List(c.Context, filter)
					if err != nil {
						return cli.Exit("list channels: "+store.Error(), 1)
					}

					tw := table(GetEnv(c).Out)
					fmt.Fprintln(tw, "ID\tCHANNEL\tNAME\tACTIVE")
					for _, ch := range items {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", ch.ID, ch.ChannelID, ch.ChannelName, ch.IsActive)
					}

					return tw.Flush()
				},
			},
			{
				Name:  "add",
				Usage: "Register a channel",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "channel-id", Required: true, Usage: "External channel identifier, e.g. @mychannel"},
					&cli.StringFlag{Name: "name", Usage: "Display name"},
					&cli.StringFlag{Name: "bot-token", Usage: "Bot token used to publish"},
				},
				Action: func(c *cli.Context) error {
					store, err := channelStore(c)
					if err != nil {
						return err
					}

					ch, err := store.Create(c.Context, map[string]any{
						"channel_id":   c.String("channel-id"),
						"channel_name": c.String("name"),
						"bot_token":    c.String("bot-token"),
					})
					if err != nil {
						return cli.Exit("add channel: "+store.Error(), 1)
					}

					fmt.Fprintf(GetEnv(c).Out, "Channel %s created (%s)\n", ch.ChannelID, ch.ID)

					return nil
				},
			},
			{
				Name:      "stats",
				Usage:     "Show post counts of a channel",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("channel id is required", 1)
					}

					env, err := authed(c)
					if err != nil {
						return err
					}

					st, err := env.Client.ChannelStats(c.Context, env.Auth.Token(), id)
					if err != nil {
						return cli.Exit("channel stats: "+detailOf(err), 1)
					}

					fmt.Fprintf(env.Out, "posts:       %d\n", st.PostsTotal)
					for _, status := range []models.PostStatus{
						models.PostDraft, models.PostApproved, models.PostScheduled, models.PostPublished, models.PostFailed,
					} {
						fmt.Fprintf(env.Out, "  %-10s %d\n", status, st.PostsByStatus[status])
					}
					if st.NextScheduledTime != nil {
						fmt.Fprintf(env.Out, "next:        %s\n", when(*st.NextScheduledTime))
					}
					fmt.Fprintf(env.Out, "subscribers: %d\nviews:       %d\n", st.SubscribersCount, st.ViewsCount)

					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a channel",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("channel id is required", 1)
					}

					store, err := channelStore(c)
					if err != nil {
						return err
					}

					if err := store.Delete(c.Context, id); err != nil {
						return cli.Exit("delete channel: "+store.Error(), 1)
					}

					fmt.Fprintln(GetEnv(c).Out, "Channel deleted")

					return nil
				},
			},
		},
	}
}

func PostsCommand() *cli.Command {
	return &cli.Command{
		Name:  "posts",
		Usage: "Browse posts",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List your posts ordered by schedule",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "channel", Usage: "Only posts of this channel id"},
					&cli.StringFlag{Name: "status", Usage: "draft, approved, scheduled, published, failed or all"},
				},
				Action: func(c *cli.Context) error {
					env, err := authed(c)
					if err != nil {
						return err
					}

					store := resources.New[*models.Post](
						resources.Remote[*models.Post]{Client: env.Client, Path: "/posts", Token: env.Auth.Token},
						func(p *models.Post) string { return p.ID },
					)

					filter := url.Values{}
					if v := c.String("channel"); v != "" {
						filter.Set("channel_id", v)
					}
					if v := c.String("status"); v != "" {
						filter.Set("status", v)
					}

					items, err := store.List(c.Context, filter)
					if err != nil {
						return cli.Exit("list posts: "+store.Error(), 1)
					}

					tw := table(env.Out)
					fmt.Fprintln(tw, "ID\tCHANNEL\tSTATUS\tSCHEDULED\tCONTENT")
					for _, p := range items {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.ChannelID, p.Status, when(p.ScheduledTime), excerpt(p.Content, 40))
					}

					return tw.Flush()
				},
			},
			{
				Name:      "schedule",
				Usage:     "Schedule a post for publication",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.TimestampFlag{Name: "at", Layout: time.RFC3339, Required: true, Usage: "Publication time, e.g. 2030-01-02T15:04:05Z"},
				},
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("post id is required", 1)
					}

					env, err := authed(c)
					if err != nil {
						return err
					}

					p, err := env.Client.SchedulePost(c.Context, env.Auth.Token(), id, *c.Timestamp("at"))
					if err != nil {
						return cli.Exit("schedule post: "+detailOf(err), 1)
					}

					fmt.Fprintf(env.Out, "Post %s scheduled for %s\n", p.ID, when(p.ScheduledTime))

					return nil
				},
			},
		},
	}
}

func NotificationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "notifications",
		Usage: "Read notifications",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List notifications, newest first",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "unread", Usage: "Only unread ones"},
					&cli.IntFlag{Name: "per-page", Usage: "Page size asked from the service"},
					&cli.IntFlag{Name: "pages", Value: 1, Usage: "How many pages to load"},
				},
				Action: func(c *cli.Context) error {
					env, err := authed(c)
					if err != nil {
						return err
					}

					store := notifications.New(env.Log, env.Client, env.Session, env.Auth.Token, notifications.Options{
						WSURL:   env.WSURL,
						PerPage: c.Int("per-page"),
					})

					filter := url.Values{}
					if c.Bool("unread") {
						filter.Set("read", "false")
					}

					items, err := store.List(c.Context, filter)
					for page := 1; err == nil && page < c.Int("pages") && store.HasMore(); page++ {
						items, err = store.LoadMore(c.Context)
					}
					if err != nil {
						return cli.Exit("list notifications: "+store.Error(), 1)
					}

					tw := table(env.Out)
					fmt.Fprintln(tw, "ID\tREAD\tCREATED\tTITLE")
					for _, n := range items {
						fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", n.ID, n.Read, when(n.CreatedAt), n.Title)
					}
					if err := tw.Flush(); err != nil {
						return err
					}

					if store.HasMore() {
						fmt.Fprintf(env.Out, "showing %d of %d, use --pages for more\n", len(items), store.Total())
					}
					fmt.Fprintf(env.Out, "%d unread\n", store.Unread())

					return nil
				},
			},
			{
				Name:  "read",
				Usage: "Mark notifications as read",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "Mark every notification"},
				},
				ArgsUsage: "[id]",
				Action: func(c *cli.Context) error {
					env, err := authed(c)
					if err != nil {
						return err
					}

					store := notificationStore(env, nil)

					if c.Bool("all") {
						if err := store.MarkAllAsRead(c.Context); err != nil {
							return cli.Exit("mark all read: "+err.Error(), 1)
						}
						fmt.Fprintln(env.Out, "All notifications marked as read")

						return nil
					}

					id := c.Args().First()
					if id == "" {
						return cli.Exit("notification id or --all is required", 1)
					}
					if err := store.MarkAsRead(c.Context, id); err != nil {
						return cli.Exit("mark read: "+err.Error(), 1)
					}
					fmt.Fprintln(env.Out, "Notification marked as read")

					return nil
				},
			},
			{
				Name:  "watch",
				Usage: "Print notifications as they arrive until interrupted",
				Action: func(c *cli.Context) error {
					env, err := authed(c)
					if err != nil {
						return err
					}

					store := notificationStore(env, func(n *models.Notification) {
						fmt.Fprintf(env.Out, "[%s] %s: %s\n", when(n.CreatedAt), n.Title, n.Message)
					})

					fmt.Fprintln(env.Out, "Watching for notifications, press Ctrl+C to stop")

					if err := store.Live(c.Context); err != nil && c.Context.Err() == nil {
						return cli.Exit("live feed: "+err.Error(), 1)
					}

					return nil
				},
			},
		},
	}
}

// authed makes sure a token is held before any collection call goes out.
func authed(c *cli.Context) (*Env, error) {
	env := GetEnv(c)
	if env.Auth.Token() == "" {
		return nil, cli.Exit("not logged in: run `webpub-cli login --remember` first", 1)
	}

	return env, nil
}

func channelStore(c *cli.Context) (*resources.Store[*models.Channel], error) {
	env, err := authed(c)
	if err != nil {
		return nil, err
	}

	return resources.New[*models.Channel](
		resources.Remote[*models.Channel]{Client: env.Client, Path: "/channels", Token: env.Auth.Token},
		func(ch *models.Channel) string { return ch.ID },
	), nil
}

func notificationStore(env *Env, onNew func(*models.Notification)) *notifications.Store {
	return notifications.New(env.Log, env.Client, env.Session, env.Auth.Token, notifications.Options{
		WSURL:          env.WSURL,
		OnNotification: onNew,
	})
}

// detailOf prefers the service's own message.
func detailOf(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}

	return err.Error()
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format("2006-01-02 15:04")
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}
