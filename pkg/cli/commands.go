package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/tasklink/pkg/google"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/notify"
	"github.com/harrisonrobin/tasklink/pkg/server"
	"github.com/harrisonrobin/tasklink/pkg/trigger"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, *configPath, func(a *app) error {
				if a.cfg.NotifyEnabled() {
					notifier, err := a.notifier()
					if err != nil {
						return err
					}
					dispatcher := notify.NewDispatcher(a.log, notifier, 0)
					defer dispatcher.Close()
					a.store.OnTaskWrite(dispatcher.Hook)
				} else {
					a.log.Info("assignment notifications disabled")
				}

				orch := a.orchestrator()
				authenticator := google.NewTokenInfoAuthenticator(a.log, a.store, a.clientID)
				srv := server.NewServer(a.log, authenticator, a.service(orch), a.store)
				sched := a.scheduler(orch)

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					return srv.Run(gctx, a.cfg.Address)
				})
				g.Go(func() error {
					if err := sched.Run(gctx, a.cfg.SyncInterval); !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
				if err := g.Wait(); err != nil {
					return err
				}
				a.log.Info("shut down")
				return nil
			})
		},
	}
}

func tickCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Pull every sync-enabled project once and sweep membership jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), *configPath, func(a *app) error {
				tally, err := a.scheduler(a.orchestrator()).Tick(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), tally)
			})
		},
	}
}

func syncCmd(configPath *string) *cobra.Command {
	var userID, token string

	cmd := &cobra.Command{
		Use:   "sync <project-id>",
		Short: "Pull one project on behalf of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(a *app) error {
				res, err := a.service(a.orchestrator()).Sync(cmd.Context(), userID, args[0], token)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "id of the calling user")
	cmd.Flags().StringVar(&token, "token", os.Getenv("TASKLINK_ACCESS_TOKEN"), "Google access token of the calling user")
	cmd.MarkFlagRequired("user")
	return cmd
}

func linkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "link <user-id>",
		Short: "Link a user's Google account for background sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(a *app) error {
				user, err := a.store.GetUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				err = a.provider.LinkAccount(cmd.Context(), user.ID, func(authURL string) {
					fmt.Fprintf(out, "Open the following link to authorize %s:\n\n%s\n\n", user.Email, authURL)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Linked %s\n", user.Email)
				return nil
			})
		},
	}
}

func notifyHookCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-hook",
		Short: "Send an assignment notification for a task change read from stdin",
		Long: "Reads one or two JSON task documents (before and after) from stdin and\n" +
			"notifies the new assignee when the assignment changed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			change, err := trigger.ParseEvent(cmd.InOrStdin())
			if err != nil {
				if errors.Is(err, trigger.ErrEmptyEvent) {
					return nil
				}
				return err
			}
			return withApp(cmd.Context(), *configPath, func(a *app) error {
				notifier, err := a.notifier()
				if err != nil {
					return err
				}
				notifier.Handle(cmd.Context(), change)
				return nil
			})
		},
	}
}

func userCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local accounts",
	}

	var name string
	add := &cobra.Command{
		Use:   "add <email>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(a *app) error {
				u, err := a.store.CreateUser(cmd.Context(), model.User{Email: args[0], Name: name})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), u)
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	cmd.AddCommand(add)
	return cmd
}

func projectCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	var owner string
	var members []string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(a *app) error {
				p, err := a.store.CreateProject(cmd.Context(), model.Project{Name: args[0], OwnerID: owner, Members: members})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	add.Flags().StringVar(&owner, "owner", "", "id of the owning user")
	add.Flags().StringSliceVar(&members, "member", nil, "id of a member (repeatable)")
	add.MarkFlagRequired("owner")

	show := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Print a project and its sync state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(a *app) error {
				p, err := a.store.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), p)
			})
		},
	}

	cmd.AddCommand(add, show)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
