package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/izy/internal"
	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/models"
	"github.com/starford/izy/internal/orchestrator"
	"github.com/starford/izy/internal/workspace"
)

var out io.Writer = os.Stdout

// explain prefixes failures of the remote path with the message an end
// user should see.
func explain(err error) error {
	var rr *apperr.RemoteRejectedError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &rr),
		errors.Is(err, apperr.ErrNotConfigured),
		errors.Is(err, apperr.ErrTimeout),
		errors.Is(err, apperr.ErrNetworkUnreachable),
		errors.Is(err, apperr.ErrTransportFailure):
		return fmt.Errorf("%s (%w)", apperr.Describe(err).Message, err)
	}
	return err
}

func printItems(items []workspace.Item) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No documents found.")
		return
	}
	for _, it := range items {
		star := " "
		if it.Favorite {
			star = "★"
		}
		fmt.Fprintf(out, "%s %s %s  [%s]\n", star, it.Icon, it.Title, it.ID)
		if it.Summary != "" {
			fmt.Fprintf(out, "    %s\n", it.Summary)
		}
		fmt.Fprintf(out, "    %s\n", it.URL)
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the workspace; without a query list recently edited documents",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "offline", Usage: "Search only documents remembered from earlier searches"},
		},
		Action: session(func(ctx context.Context, cmd *cli.Command, s internal.Session) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			search := s.Service.Search
			if cmd.Bool("offline") {
				search = s.Service.SearchCached
			}
			items, err := search(ctx, query)
			if err != nil {
				return explain(err)
			}
			printItems(items)
			return nil
		}),
	}
}

func liveCommand() *cli.Command {
	return &cli.Command{
		Name:  "live",
		Usage: "Search as you type: every stdin line replaces the query, only the latest result is shown",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "debounce", Value: orchestrator.DefaultDebounce, Usage: "Quiet period before a query is sent"},
		},
		Action: session(func(ctx context.Context, cmd *cli.Command, s internal.Session) error {
			settings := func() models.Settings {
				st, err := s.Service.Settings(ctx)
				if err != nil {
					return models.Settings{}
				}
				return st
			}
			results := make(chan orchestrator.Result, 16)
			ls := s.Orchestrator.NewLiveSearch(settings, cmd.Duration("debounce"), func(r orchestrator.Result) {
				select {
				case results <- r:
				default:
				}
			})
			defer ls.Stop()

			lines := make(chan string)
			go func() {
				defer close(lines)
				sc := bufio.NewScanner(os.Stdin)
				for sc.Scan() {
					lines <- strings.TrimSpace(sc.Text())
				}
			}()

			var last uint64
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case q, ok := <-lines:
					if !ok {
						lines = nil
						if last == 0 {
							return nil
						}
						continue
					}
					last = ls.Submit(q)
				case r := <-results:
					fmt.Fprintf(out, "── %q\n", r.Query)
					if r.Err != nil {
						fmt.Fprintln(out, apperr.Describe(r.Err).Message)
					} else {
						items := make([]workspace.Item, len(r.Documents))
						for i, d := range r.Documents {
							items[i] = workspace.Item{Document: d}
						}
						printItems(items)
					}
					if lines == nil && r.Generation == last {
						return nil
					}
				}
			}
		}),
	}
}

func appendCommand() *cli.Command {
	return &cli.Command{
		Name:      "append",
		Usage:     "Append a paragraph to a page or block",
		ArgsUsage: "<blockId> <text...>",
		Action: session(func(ctx context.Context, cmd *cli.Command, s internal.Session) error {
			args := cmd.Args().Slice()
			if len(args) < 2 {
				return errors.New("usage: izy append <blockId> <text...>")
			}
			if err := s.Service.AppendNote(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
				return explain(err)
			}
			fmt.Fprintln(out, "Note added.")
			return nil
		}),
	}
}

func favoritesCommand() *cli.Command {
	return &cli.Command{
		Name:  "favorites",
		Usage: "List favorite documents",
		Action: session(func(ctx context.Context, _ *cli.Command, s internal.Session) error {
			items, err := s.Service.Favorites(ctx)
			if err != nil {
				return err
			}
			printItems(items)
			return nil
		}),
		Commands: []*cli.Command{
			{
				Name:      "toggle",
				Usage:     "Add or remove a favorite",
				ArgsUsage: "<id>",
				Action: session(func(ctx context.Context, cmd *cli.Command, s internal.Session) error {
					on, err := s.Service.ToggleFavorite(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					if on {
						fmt.Fprintln(out, "Added to favorites.")
					} else {
						fmt.Fprintln(out, "Removed from favorites.")
					}
					return nil
				}),
			},
		},
	}
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "…" + secret[len(secret)-4:]
}

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show settings",
		Action: session(func(ctx context.Context, _ *cli.Command, s internal.Session) error {
			st, err := s.Service.Settings(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "notion token: %s\n", mask(st.NotionToken))
			fmt.Fprintf(out, "ai key:       %s\n", mask(st.AIKey))
			fmt.Fprintf(out, "relay url:    %s\n", st.RelayURL)
			fmt.Fprintf(out, "display name: %s\n", st.DisplayName)
			return nil
		}),
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Update settings; only the given flags change",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "notion-token", Sources: cli.EnvVars("NOTION_TOKEN")},
					&cli.StringFlag{Name: "ai-key", Sources: cli.EnvVars("IZY_AI_KEY")},
					&cli.StringFlag{Name: "relay-url"},
					&cli.StringFlag{Name: "display-name"},
				},
				Action: session(func(ctx context.Context, cmd *cli.Command, s internal.Session) error {
					st, err := s.Service.Settings(ctx)
					if err != nil {
						return err
					}
					if cmd.IsSet("notion-token") {
						st.NotionToken = cmd.String("notion-token")
					}
					if cmd.IsSet("ai-key") {
						st.AIKey = cmd.String("ai-key")
					}
					if cmd.IsSet("relay-url") {
						st.RelayURL = cmd.String("relay-url")
					}
					if cmd.IsSet("display-name") {
						st.DisplayName = cmd.String("display-name")
					}
					if _, err := s.Service.SaveSettings(ctx, st); err != nil {
						return err
					}
					fmt.Fprintln(out, "Settings saved.")
					return nil
				}),
			},
		},
	}
}

func draftCommand() *cli.Command {
	return &cli.Command{
		Name:  "draft",
		Usage: "Show the local draft",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Draft name", Value: models.DefaultDraftName},
		},
		Action: session(func(ctx context.Context, cmd *cli.Command, s internal.Session) error {
			d, err := s.Service.Draft(ctx, cmd.String("name"))
			if err != nil {
				return err
			}
			fmt.Fprint(out, d.Content)
			return nil
		}),
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List stored drafts",
				Action: session(func(ctx context.Context, _ *cli.Command, s internal.Session) error {
					drafts, err := s.Service.Drafts(ctx)
					if err != nil {
						return err
					}
					if len(drafts) == 0 {
						fmt.Fprintln(out, "No drafts.")
						return nil
					}
					for _, d := range drafts {
						fmt.Fprintf(out, "%s\t%s\n", d.Name, d.UpdatedAt.Local().Format(time.DateTime))
					}
					return nil
				}),
			},
			{
				Name:  "write",
				Usage: "Replace the draft with stdin",
				Action: session(func(ctx context.Context, cmd *cli.Command, s internal.Session) error {
					data, err := io.ReadAll(os.Stdin)
					if err != nil {
						return err
					}
					d, err := s.Service.SaveDraft(ctx, cmd.String("name"), string(data), "")
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Saved %s (%s).\n", d.Name, d.UpdatedAt.Local().Format(time.Kitchen))
					return nil
				}),
			},
			{
				Name:      "append",
				Usage:     "Send the draft to a page or block and clear it",
				ArgsUsage: "<blockId>",
				Action: session(func(ctx context.Context, cmd *cli.Command, s internal.Session) error {
					if err := s.Service.AppendDraft(ctx, cmd.String("name"), cmd.Args().First()); err != nil {
						return explain(err)
					}
					fmt.Fprintln(out, "Draft sent.")
					return nil
				}),
			},
		},
	}
}

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask the assistant about your documents",
		ArgsUsage: "<question...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "search", Usage: "Use the documents matching this query as context"},
		},
		Action: session(func(ctx context.Context, cmd *cli.Command, s internal.Session) error {
			answer, err := s.Service.Ask(ctx, strings.Join(cmd.Args().Slice(), " "), cmd.String("search"))
			if err != nil {
				return explain(err)
			}
			fmt.Fprintln(out, answer)
			return nil
		}),
	}
}
