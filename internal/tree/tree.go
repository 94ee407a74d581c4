// Package tree models the lazily-expanded content hierarchy of the
// configured portals: portal roots, their synthetic Content/Groups/
// Users folders, and the folders, groups, and items below them.
// Children are resolved on demand through portal queries and never
// cached; a refresh re-queries.
package tree

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/green3g/vscode-arcgis-assistant/internal/logging"
	"github.com/green3g/vscode-arcgis-assistant/internal/metrics"
	"github.com/green3g/vscode-arcgis-assistant/internal/portal"
)

// Kind tags a node with its variant.
type Kind int

const (
	KindPortal Kind = iota
	KindContentFolder
	KindGroupFolder
	KindUserFolder
	KindFolder
	KindGroup
	KindItem
)

func (k Kind) String() string {
	switch k {
	case KindPortal:
		return "portal"
	case KindContentFolder:
		return "content-folder"
	case KindGroupFolder:
		return "group-folder"
	case KindUserFolder:
		return "user-folder"
	case KindFolder:
		return "folder"
	case KindGroup:
		return "group"
	case KindItem:
		return "item"
	}
	return "unknown"
}

// Sentinel ids for the synthetic folders under a portal root. The
// content root stands for "the authenticated user's own content".
const (
	ContentRootID = "CONTENT"
	GroupRootID   = "GROUPS"
	UserRootID    = "USERS"
)

// Connection is the portal channel a node hangs off. *portal.Session
// implements it; tests substitute fakes.
type Connection interface {
	Portal() string
	PortalName() string
	Username() string
	Folders(ctx context.Context, owner string) ([]portal.FolderSummary, error)
	Groups(ctx context.Context) ([]portal.GroupSummary, error)
	Users(ctx context.Context) ([]portal.UserSummary, error)
	SearchItems(ctx context.Context, query string) ([]portal.ItemSummary, error)
	ItemsForOwner(ctx context.Context, owner string) ([]portal.ItemSummary, error)
	Item(ctx context.Context, id string) (*portal.ItemContent, error)
	UpdateItem(ctx context.Context, item *portal.Item, content string) error
	CreateItem(ctx context.Context, item *portal.Item, content, folderID, owner string) (*portal.CreateResult, error)
	DeleteItem(ctx context.Context, id, owner string) error
}

// Node is one entry of the content tree. Folder and Owner are plain
// back-references used for path and permission reconstruction, never
// for lifetime management. Identity for diffing is (kind, id,
// connection); titles are not unique and must not be lookup keys.
type Node struct {
	Title  string
	Kind   Kind
	ID     string
	Conn   Connection
	Folder *Node
	Owner  *Node
}

// ItemTitle renders an item's display title, disambiguating items
// that share a name but differ in type.
func ItemTitle(it portal.ItemSummary) string {
	return fmt.Sprintf("%s (%s)", it.Title, it.Type)
}

// Tree holds the configured portal roots in insertion order.
type Tree struct {
	mu      sync.Mutex
	portals []*Node
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// AddPortal appends a portal root. Adding the same base URL twice is
// an error.
func (t *Tree) AddPortal(conn Connection) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range t.portals {
		if p.ID == conn.Portal() {
			return nil, fmt.Errorf("portal %s is already in the list", conn.PortalName())
		}
	}
	node := &Node{
		Title: conn.PortalName(),
		Kind:  KindPortal,
		ID:    conn.Portal(),
		Conn:  conn,
	}
	t.portals = append(t.portals, node)
	return node, nil
}

// RemovePortal drops a portal root from the tree.
func (t *Tree) RemovePortal(node *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.portals {
		if p == node || (p.ID == node.ID && p.Kind == KindPortal) {
			t.portals = append(t.portals[:i], t.portals[i+1:]...)
			return
		}
	}
}

// Portals returns the portal roots in insertion order.
func (t *Tree) Portals() []*Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Node, len(t.portals))
	copy(out, t.portals)
	return out
}

// FindPortal resolves a portal root by its display name.
func (t *Tree) FindPortal(portalName string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.portals {
		if p.Conn.PortalName() == portalName {
			return p
		}
	}
	return nil
}

// ChildrenOf resolves the children of node; nil means the tree root.
// Results are built fresh on every call.
func (t *Tree) ChildrenOf(ctx context.Context, node *Node) ([]*Node, error) {
	if node == nil {
		return t.Portals(), nil
	}
	metrics.RecordTreeResolution(node.Kind.String())
	logging.Debug("resolving children",
		zap.Stringer("kind", node.Kind), zap.String("id", node.ID))

	switch node.Kind {
	case KindPortal:
		return portalFolders(node), nil
	case KindContentFolder:
		return t.contentChildren(ctx, node)
	case KindGroupFolder:
		groups, err := node.Conn.Groups(ctx)
		if err != nil {
			return nil, err
		}
		return mapGroups(groups, node), nil
	case KindGroup:
		q := portal.NewQuery().Match(node.ID).In("group").String()
		return t.searchChildren(ctx, node, q)
	case KindFolder:
		q := portal.NewQuery().Match(node.ID).In("ownerfolder").String()
		return t.searchChildren(ctx, node, q)
	case KindUserFolder:
		users, err := node.Conn.Users(ctx)
		if err != nil {
			return nil, err
		}
		return mapUsers(users, node), nil
	case KindItem:
		return nil, nil
	}
	return nil, nil
}

// contentChildren lists a user's folders and root items concurrently;
// the two queries are independent and read-only. Folders come first.
func (t *Tree) contentChildren(ctx context.Context, node *Node) ([]*Node, error) {
	owner := node.ID
	if owner == ContentRootID {
		owner = ""
	}

	var folders []portal.FolderSummary
	var items []portal.ItemSummary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		folders, err = node.Conn.Folders(gctx, owner)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = node.Conn.ItemsForOwner(gctx, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	children := mapFolders(folders, node)
	return append(children, mapItems(items, node)...), nil
}

func (t *Tree) searchChildren(ctx context.Context, node *Node, query string) ([]*Node, error) {
	items, err := node.Conn.SearchItems(ctx, query)
	if err != nil {
		return nil, err
	}
	return mapItems(items, node), nil
}

// portalFolders returns the three synthetic folders of a portal root,
// always in Content, Groups, Users order.
func portalFolders(node *Node) []*Node {
	return []*Node{
		{ID: ContentRootID, Title: "Content", Kind: KindContentFolder, Conn: node.Conn},
		{ID: GroupRootID, Title: "Groups", Kind: KindGroupFolder, Conn: node.Conn},
		{ID: UserRootID, Title: "Users", Kind: KindUserFolder, Conn: node.Conn},
	}
}

func mapFolders(folders []portal.FolderSummary, parent *Node) []*Node {
	out := make([]*Node, 0, len(folders))
	for _, f := range folders {
		out = append(out, &Node{
			ID:    f.ID,
			Title: f.Title,
			Kind:  KindFolder,
			Conn:  parent.Conn,
			Owner: parent,
		})
	}
	return out
}

func mapGroups(groups []portal.GroupSummary, parent *Node) []*Node {
	out := make([]*Node, 0, len(groups))
	for _, g := range groups {
		out = append(out, &Node{
			ID:    g.ID,
			Title: g.Title,
			Kind:  KindGroup,
			Conn:  parent.Conn,
		})
	}
	return out
}

func mapUsers(users []portal.UserSummary, parent *Node) []*Node {
	out := make([]*Node, 0, len(users))
	for _, u := range users {
		out = append(out, &Node{
			ID:    u.Username,
			Title: u.Username,
			Kind:  KindContentFolder,
			Conn:  parent.Conn,
		})
	}
	return out
}

func mapItems(items []portal.ItemSummary, parent *Node) []*Node {
	// Items directly under a content root are owned by that root's
	// user; items inside a folder inherit the folder's owner.
	owner := parent.Owner
	if parent.Kind == KindContentFolder {
		owner = parent
	}
	out := make([]*Node, 0, len(items))
	for _, it := range items {
		out = append(out, &Node{
			ID:     it.ID,
			Title:  ItemTitle(it),
			Kind:   KindItem,
			Conn:   parent.Conn,
			Folder: parent,
			Owner:  owner,
		})
	}
	return out
}

// OwnerUsername resolves the username deletes and creates should run
// as: the authenticated user for the content root, otherwise the
// owning user folder's id.
func OwnerUsername(node *Node) string {
	if node == nil || node.Owner == nil {
		return ""
	}
	if node.Owner.ID == ContentRootID {
		return node.Conn.Username()
	}
	return node.Owner.ID
}

// DeleteItem removes an item from the portal. Folders cannot be
// deleted; portal roots are detached locally without a remote call.
func (t *Tree) DeleteItem(ctx context.Context, node *Node) error {
	if node == nil {
		return nil
	}
	switch node.Kind {
	case KindFolder:
		return &portal.UnsupportedError{Op: "deleting folders"}
	case KindPortal:
		t.RemovePortal(node)
		return nil
	case KindItem:
		logging.Info("deleting item", zap.String("id", node.ID))
		return node.Conn.DeleteItem(ctx, node.ID, OwnerUsername(node))
	default:
		return &portal.UnsupportedError{Op: fmt.Sprintf("deleting %s nodes", node.Kind)}
	}
}
