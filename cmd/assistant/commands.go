package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/green3g/vscode-arcgis-assistant/internal/config"
	"github.com/green3g/vscode-arcgis-assistant/internal/logging"
	"github.com/green3g/vscode-arcgis-assistant/internal/metrics"
	"github.com/green3g/vscode-arcgis-assistant/internal/oauth"
	"github.com/green3g/vscode-arcgis-assistant/internal/portal"
	"github.com/green3g/vscode-arcgis-assistant/internal/schema"
	"github.com/green3g/vscode-arcgis-assistant/internal/state"
	"github.com/green3g/vscode-arcgis-assistant/internal/sync"
	"github.com/green3g/vscode-arcgis-assistant/internal/tree"
	"github.com/green3g/vscode-arcgis-assistant/internal/watch"
)

func openStore(cfg *config.Config) (*state.Store, error) {
	return state.Open(cfg.StatePath)
}

func sessionFor(cfg *config.Config, saved state.Portal) *portal.Session {
	appID := saved.AppID
	if appID == "" {
		appID = cfg.AppID
	}
	return portal.NewSession(portal.Options{
		Portal:      saved.URL,
		AppID:       appID,
		PageSize:    cfg.PageSize,
		HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		AuthTimeout: cfg.AuthTimeout,
		Tokens:      oauth.New(cfg.CallbackPort, cfg.AuthTimeout),
	})
}

// buildTree loads the saved portals into a fresh tree.
func buildTree(ctx context.Context, cfg *config.Config, store *state.Store) (*tree.Tree, error) {
	saved, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	t := tree.New()
	for _, p := range saved {
		if _, err := t.AddPortal(sessionFor(cfg, p)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// findPortal resolves a saved portal by URL or display name.
func findPortal(ctx context.Context, cfg *config.Config, store *state.Store, name string) (*portal.Session, error) {
	saved, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	normalized := portal.NormalizePortalURL(name)
	for _, p := range saved {
		sess := sessionFor(cfg, p)
		if sess.Portal() == normalized || sess.PortalName() == name {
			return sess, nil
		}
	}
	return nil, fmt.Errorf("portal %q is not in the saved list; add it first", name)
}

func newSyncer(cfg *config.Config, fs sync.FileSystem, shell sync.Shell, t *tree.Tree) *sync.Sync {
	var opts []sync.Option
	if cfg.SchemaDir != "" {
		opts = append(opts, sync.WithValidator(schema.NewValidator(cfg.SchemaDir)))
	}
	return sync.New(fs, shell, t, opts...)
}

func newPortalCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portal",
		Short: "Manage the saved portal list",
	}

	var appID string
	add := &cobra.Command{
		Use:   "add <url>",
		Short: "Save a portal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			url := portal.NormalizePortalURL(args[0])
			if err := store.Add(cmd.Context(), state.Portal{URL: url, AppID: appID}); err != nil {
				return err
			}
			fmt.Printf("added %s\n", url)
			return nil
		},
	}
	add.Flags().StringVar(&appID, "app-id", "", "OAuth application id for this portal")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved portals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			saved, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range saved {
				fmt.Println(p.URL)
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <url>",
		Short: "Remove a saved portal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Remove(cmd.Context(), portal.NormalizePortalURL(args[0]))
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

func newTreeCmd(cfg *config.Config) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "tree [portal]",
		Short: "Print the content tree of one or all saved portals",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			t, err := buildTree(cmd.Context(), cfg, store)
			if err != nil {
				return err
			}

			roots := t.Portals()
			if len(args) == 1 {
				node := t.FindPortal(args[0])
				if node == nil {
					return fmt.Errorf("portal %q is not in the saved list", args[0])
				}
				roots = []*tree.Node{node}
			}
			for _, root := range roots {
				if err := printTree(cmd.Context(), t, root, 0, depth); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 2, "expansion depth")
	return cmd
}

func printTree(ctx context.Context, t *tree.Tree, node *tree.Node, level, depth int) error {
	fmt.Printf("%s%s\n", strings.Repeat("  ", level), node.Title)
	if level >= depth {
		return nil
	}
	children, err := t.ChildrenOf(ctx, node)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := printTree(ctx, t, child, level+1, depth); err != nil {
			return err
		}
	}
	return nil
}

func newOpenCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "open <portal> <item-id>",
		Short: "Mirror an item into the local directory for editing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			sess, err := findPortal(cmd.Context(), cfg, store, args[0])
			if err != nil {
				return err
			}

			// Resolve the folder so the mirrored path matches the
			// portal layout.
			content, err := sess.Item(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			node := &tree.Node{
				Title: content.Item.Title,
				Kind:  tree.KindItem,
				ID:    content.Item.ID,
				Conn:  sess,
			}
			if content.Item.OwnerFolder != "" {
				node.Folder = &tree.Node{
					Kind: tree.KindFolder,
					ID:   content.Item.OwnerFolder,
					Conn: sess,
				}
			}

			t := tree.New()
			if _, err := t.AddPortal(sess); err != nil {
				return err
			}
			syncer := newSyncer(cfg, &watch.DirFS{Root: cfg.MirrorDir}, newTerminalShell(), t)
			return syncer.Open(cmd.Context(), node)
		},
	}
}

func newWatchCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the mirror directory and push edited items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			t, err := buildTree(cmd.Context(), cfg, store)
			if err != nil {
				return err
			}
			if len(t.Portals()) == 0 {
				return fmt.Errorf("no saved portals; run `assistant portal add` first")
			}

			if cfg.MetricsAddr != "" {
				go func() {
					if err := metrics.Serve(cfg.MetricsAddr); err != nil {
						logging.Error("metrics listener failed",
							zap.String("addr", cfg.MetricsAddr), zap.Error(err))
					}
				}()
			}

			syncer := newSyncer(cfg, &watch.DirFS{Root: cfg.MirrorDir}, newTerminalShell(), t)
			watcher, err := watch.New(cfg.MirrorDir, syncer.HandleFileEvents)
			if err != nil {
				return err
			}
			fmt.Printf("watching %s\n", cfg.MirrorDir)
			return watcher.Run(cmd.Context())
		},
	}
}

func newDeleteCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <portal> <item-id>",
		Short: "Permanently delete an item from its portal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			sess, err := findPortal(cmd.Context(), cfg, store, args[0])
			if err != nil {
				return err
			}

			shell := newTerminalShell()
			if !shell.Confirm(cmd.Context(), fmt.Sprintf("Permanently delete item %s?", args[1])) {
				return nil
			}
			if err := sess.DeleteItem(cmd.Context(), args[1], ""); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[1])
			return nil
		},
	}
}

func newItemCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Create portal items",
	}

	var title, itemType, folderID, file string
	create := &cobra.Command{
		Use:   "new <portal>",
		Short: "Create an item from a local JSON file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			sess, err := findPortal(cmd.Context(), cfg, store, args[0])
			if err != nil {
				return err
			}

			content, err := readContent(file)
			if err != nil {
				return err
			}
			result, err := sess.CreateItem(cmd.Context(), &portal.Item{
				Title: title,
				Type:  itemType,
			}, content, folderID, "")
			if err != nil {
				return err
			}
			fmt.Printf("created %s\n", result.ID)
			return nil
		},
	}
	create.Flags().StringVar(&title, "title", "", "item title")
	create.Flags().StringVar(&itemType, "type", "", "item type, e.g. \"Web Map\"")
	create.Flags().StringVar(&folderID, "folder", "", "destination folder id")
	create.Flags().StringVar(&file, "file", "", "content file; - or empty reads stdin")
	_ = create.MarkFlagRequired("title")
	_ = create.MarkFlagRequired("type")

	cmd.AddCommand(create)
	return cmd
}

func readContent(file string) (string, error) {
	if file == "" || file == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(file)
	return string(data), err
}
