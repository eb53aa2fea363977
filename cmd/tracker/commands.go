package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"media_tracker/internal/archive"
	"media_tracker/internal/config"
	"media_tracker/internal/domain"
	"media_tracker/internal/prefs"
	"media_tracker/internal/remote"
	"media_tracker/internal/reorder"
	"media_tracker/internal/schema"
	"media_tracker/internal/session"
)

type App struct {
	ConfigPath string
	UserID     string
	Email      string
	MediaType  string

	cfg    *config.Config
	logger *slog.Logger
	prefs  prefs.Prefs
}

func newRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "tracker",
		Short:        "Offline-first tracker for games, movies and books",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app.ConfigPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			app.cfg = cfg
			app.logger = setupLogger(cfg.LogLevel)

			p, err := prefs.Load(cfg.PrefsPath)
			if err != nil {
				return err
			}
			app.prefs = p
			if app.MediaType == "" {
				app.MediaType = string(p.ActiveMediaType)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&app.ConfigPath, "config", "config.yaml", "path to config file")
	flags.StringVar(&app.UserID, "user", os.Getenv("MEDIA_TRACKER_USER"), "account id")
	flags.StringVar(&app.Email, "email", os.Getenv("MEDIA_TRACKER_EMAIL"), "account email, recorded in exports")
	flags.StringVarP(&app.MediaType, "media-type", "m", "", "games, movies or books (defaults to the saved preference)")

	cmd.AddCommand(
		newWatchCmd(app),
		newListCmd(app),
		newAddCmd(app),
		newEditCmd(app),
		newDeleteCmd(app),
		newFavoriteCmd(app),
		newMoveCmd(app),
		newCategoryCmd(app),
		newExportCmd(app),
		newImportCmd(app),
		newMigrateExportCmd(app),
		newMigrateSchemaCmd(app),
		newPrefsCmd(app),
	)
	return cmd
}

func (a *App) mediaType() (domain.MediaType, error) {
	mt := domain.MediaType(strings.ToLower(strings.TrimSpace(a.MediaType)))
	if !mt.Valid() {
		return "", fmt.Errorf("unknown media type %q", a.MediaType)
	}
	return mt, nil
}

// withStore opens the configured store for the duration of fn.
func (a *App) withStore(ctx context.Context, fn func(store remote.Store) error) error {
	store, closeStore, err := openStore(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}

// withSession signs in, runs fn and flushes whatever fn queued before
// signing out.
func (a *App) withSession(ctx context.Context, fn func(sess *session.Session) error) error {
	if a.UserID == "" {
		return errors.New("no account given, use --user or MEDIA_TRACKER_USER")
	}
	mt, err := a.mediaType()
	if err != nil {
		return err
	}

	return a.withStore(ctx, func(store remote.Store) error {
		sess, err := session.Login(ctx, session.Deps{
			Store:  store,
			Config: *a.cfg,
			Logger: a.logger,
		}, session.User{ID: a.UserID, Email: a.Email}, mt)
		if err != nil {
			return err
		}
		defer sess.Logout()

		if err := fn(sess); err != nil {
			return err
		}

		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Sync.FlushTimeout)
		defer cancel()
		if _, err := sess.FlushNow(flushCtx); err != nil {
			return fmt.Errorf("save changes: %w", err)
		}
		return nil
	})
}

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay signed in, follow remote changes and report sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(sess *session.Session) error {
				states := make(chan domain.SyncState, 16)
				unobserve := sess.OnStatus(func(st domain.SyncState) {
					select {
					case states <- st:
					default:
					}
				})
				defer unobserve()

				g, ctx := errgroup.WithContext(cmd.Context())
				g.Go(func() error {
					for {
						select {
						case <-ctx.Done():
							return nil
						case st := <-states:
							fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", st.Status, st.Message)
						}
					}
				})
				g.Go(func() error {
					ticker := time.NewTicker(time.Minute)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return nil
						case <-ticker.C:
							if _, err := sess.Renormalize(); err != nil {
								return err
							}
						}
					}
				})

				app.logger.Info("watching collection", "media_type", sess.MediaType(), "schema", sess.Schema())
				if err := g.Wait(); err != nil {
					return err
				}
				return printLists(cmd.OutOrStdout(), sess, app.prefs.SortFavoritesFirst)
			})
		},
	}
}

func newListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every status list of the active media type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(sess *session.Session) error {
				return printLists(cmd.OutOrStdout(), sess, app.prefs.SortFavoritesFirst)
			})
		},
	}
}

func printLists(w io.Writer, sess *session.Session, favoritesFirst bool) error {
	lists, err := sess.View(session.ViewOptions{FavoritesFirst: favoritesFirst})
	if err != nil {
		return err
	}
	for _, l := range lists {
		fmt.Fprintf(w, "%s (%d)\n", l.Status, len(l.Items))
		for _, it := range l.Items {
			star := " "
			if it.Favorite {
				star = "*"
			}
			fmt.Fprintf(w, "  %s %-36s  %s  [%s]\n", star, it.ID, it.Title, it.Category.Name)
		}
	}
	return nil
}

func newAddCmd(app *App) *cobra.Command {
	var (
		category string
		color    string
		status   string
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add an item to the end of a status list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(sess *session.Session) error {
				it, err := sess.AddItem(domain.Item{
					Title:    args[0],
					Category: lookupCategory(sess.Categories(), category, color),
					Status:   domain.Status(status),
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), it.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category name")
	cmd.Flags().StringVar(&color, "color", "", "category color, if the category is not defined")
	cmd.Flags().StringVar(&status, "status", string(domain.StatusUpcoming), "status list")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func lookupCategory(defined []domain.Category, name, color string) domain.Category {
	for _, c := range defined {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return domain.Category{Name: name, Color: color}
}

func newEditCmd(app *App) *cobra.Command {
	var (
		title          string
		category       string
		completionDate string
	)
	cmd := &cobra.Command{
		Use:   "edit <item-id>",
		Short: "Change the title, category or completion date of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(sess *session.Session) error {
				var patch session.ItemPatch
				if cmd.Flags().Changed("title") {
					patch.Title = &title
				}
				if cmd.Flags().Changed("category") {
					c := lookupCategory(sess.Categories(), category, "")
					patch.Category = &c
				}
				if cmd.Flags().Changed("completed-on") {
					patch.CompletionDate = &completionDate
				}
				_, err := sess.UpdateItem(args[0], patch)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&category, "category", "", "new category name")
	cmd.Flags().StringVar(&completionDate, "completed-on", "", "completion date as DD/MM/YYYY, empty to clear")
	return cmd
}

func newDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <item-id>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(sess *session.Session) error {
				return sess.DeleteItem(args[0])
			})
		},
	}
}

func newFavoriteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "favorite <item-id>",
		Short: "Toggle the favorite flag of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(sess *session.Session) error {
				it, err := sess.ToggleFavorite(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s favorite=%t\n", it.ID, it.Favorite)
				return nil
			})
		},
	}
}

func newMoveCmd(app *App) *cobra.Command {
	var (
		status string
		before string
		after  string
	)
	cmd := &cobra.Command{
		Use:   "move <item-id>",
		Short: "Reorder an item or move it to another status list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if before != "" && after != "" {
				return errors.New("provide at most one of --before or --after")
			}
			anchor := reorder.Anchor{BeforeID: before, AfterID: after}

			return app.withSession(cmd.Context(), func(sess *session.Session) error {
				var (
					plan reorder.Plan
					err  error
				)
				if status != "" {
					plan, err = sess.MoveToStatus(args[0], domain.Status(status), anchor)
				} else {
					plan, err = sess.MoveWithinStatus(args[0], anchor)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d items updated (renormalized: %t)\n", len(plan.Updates), plan.Renormalized)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "target status list")
	cmd.Flags().StringVar(&before, "before", "", "place before this item")
	cmd.Flags().StringVar(&after, "after", "", "place after this item")
	return cmd
}

func newCategoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage the categories of the active media type",
	}

	var color string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Define a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(sess *session.Session) error {
				c, err := sess.DefineCategory(cmd.Context(), domain.Category{Name: args[0], Color: color})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&color, "color", "", "display color")
	_ = add.MarkFlagRequired("color")

	list := &cobra.Command{
		Use:   "list",
		Short: "List defined categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(sess *session.Session) error {
				for _, c := range sess.Categories() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c.ID, c.Name, c.Color)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newExportCmd(app *App) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every list of the account to a JSON export file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(sess *session.Session) error {
				f, err := sess.Export(cmd.Context(), app.prefs.Settings())
				if err != nil {
					return err
				}
				return writeFile(cmd.OutOrStdout(), out, f)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newImportCmd(app *App) *cobra.Command {
	var applySettings bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a version " + archive.VersionCurrent + " export file into the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			f, err := archive.Decode(in)
			if errors.Is(err, domain.ErrUnsupportedVersion) {
				return fmt.Errorf("%w (run migrate-export first)", err)
			}
			if err != nil {
				return err
			}

			err = app.withSession(cmd.Context(), func(sess *session.Session) error {
				result, err := sess.Import(cmd.Context(), f)
				if err != nil {
					return err
				}
				for mt, n := range result.Items {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d items\n", mt, n)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "categories added: %d\n", result.Categories)
				return nil
			})
			if err != nil || !applySettings {
				return err
			}
			return prefs.Save(app.cfg.PrefsPath, prefs.FromSettings(f.Settings))
		},
	}
	cmd.Flags().BoolVar(&applySettings, "settings", false, "also apply the settings stored in the file")
	return cmd
}

func newMigrateExportCmd(app *App) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "migrate-export <file>",
		Short: "Convert an older export file to version " + archive.VersionCurrent,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			f, err := archive.Migrate(raw)
			if err != nil {
				return err
			}
			app.logger.Info("export migrated", "items", f.Counts().Items)
			return writeFile(cmd.OutOrStdout(), out, f)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newMigrateSchemaCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-schema",
		Short: "Move the account from one document per item to grouped lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.UserID == "" {
				return errors.New("no account given, use --user or MEDIA_TRACKER_USER")
			}
			return app.withStore(cmd.Context(), func(store remote.Store) error {
				result, err := schema.Migrate(cmd.Context(), store, app.UserID, app.logger)
				if err != nil {
					return err
				}
				if result.AlreadyCurrent {
					fmt.Fprintln(cmd.OutOrStdout(), "already migrated")
					return nil
				}
				for mt, n := range result.Items {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d items\n", mt, n)
				}
				return nil
			})
		},
	}
}

func newPrefsCmd(app *App) *cobra.Command {
	var (
		theme          string
		favoritesFirst bool
	)
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change local preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := app.prefs
			changed := false
			if cmd.Flags().Changed("theme") {
				p.Theme, changed = theme, true
			}
			if cmd.Flags().Changed("favorites-first") {
				p.SortFavoritesFirst, changed = favoritesFirst, true
			}
			if cmd.Flags().Changed("media-type") {
				mt, err := app.mediaType()
				if err != nil {
					return err
				}
				p.ActiveMediaType, changed = mt, true
			}
			if changed {
				if err := prefs.Save(app.cfg.PrefsPath, p); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "theme=%s media_type=%s favorites_first=%t\n", p.Theme, p.ActiveMediaType, p.SortFavoritesFirst)
			return nil
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "", "color theme")
	cmd.Flags().BoolVar(&favoritesFirst, "favorites-first", false, "list favorites before other items")
	return cmd
}

func writeFile(stdout io.Writer, path string, f *archive.File) error {
	if path == "" {
		return archive.Encode(stdout, f)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := archive.Encode(out, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
