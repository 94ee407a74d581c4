package tree

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/green3g/vscode-arcgis-assistant/internal/portal"
)

// fakeConn is a scriptable Connection.
type fakeConn struct {
	mu sync.Mutex

	portalURL  string
	portalName string
	username   string

	folders []portal.FolderSummary
	groups  []portal.GroupSummary
	users   []portal.UserSummary
	items   map[string][]portal.ItemSummary // query -> results
	owned   []portal.ItemSummary

	searchQueries []string
	deleted       []string
	deleteOwners  []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		portalURL:  "https://org.maps.arcgis.com",
		portalName: "org.maps.arcgis.com",
		username:   "alice",
		items:      map[string][]portal.ItemSummary{},
	}
}

func (f *fakeConn) Portal() string     { return f.portalURL }
func (f *fakeConn) PortalName() string { return f.portalName }
func (f *fakeConn) Username() string   { return f.username }

func (f *fakeConn) Folders(ctx context.Context, owner string) ([]portal.FolderSummary, error) {
	return f.folders, nil
}

func (f *fakeConn) Groups(ctx context.Context) ([]portal.GroupSummary, error) {
	return f.groups, nil
}

func (f *fakeConn) Users(ctx context.Context) ([]portal.UserSummary, error) {
	return f.users, nil
}

func (f *fakeConn) SearchItems(ctx context.Context, query string) ([]portal.ItemSummary, error) {
	f.mu.Lock()
	f.searchQueries = append(f.searchQueries, query)
	f.mu.Unlock()
	return f.items[query], nil
}

func (f *fakeConn) ItemsForOwner(ctx context.Context, owner string) ([]portal.ItemSummary, error) {
	return f.owned, nil
}

func (f *fakeConn) Item(ctx context.Context, id string) (*portal.ItemContent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConn) UpdateItem(ctx context.Context, item *portal.Item, content string) error {
	return errors.New("not implemented")
}

func (f *fakeConn) CreateItem(ctx context.Context, item *portal.Item, content, folderID, owner string) (*portal.CreateResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConn) DeleteItem(ctx context.Context, id, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	f.deleteOwners = append(f.deleteOwners, owner)
	return nil
}

func TestAddPortalRejectsDuplicates(t *testing.T) {
	tr := New()
	conn := newFakeConn()
	if _, err := tr.AddPortal(conn); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.AddPortal(newFakeConn()); err == nil {
		t.Fatal("duplicate portal accepted")
	}
	if got := len(tr.Portals()); got != 1 {
		t.Errorf("portals = %d, want 1", got)
	}
}

func TestRootChildrenArePortalsInInsertionOrder(t *testing.T) {
	tr := New()
	first := newFakeConn()
	second := newFakeConn()
	second.portalURL = "https://other.maps.arcgis.com"
	second.portalName = "other.maps.arcgis.com"
	if _, err := tr.AddPortal(first); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.AddPortal(second); err != nil {
		t.Fatal(err)
	}

	children, err := tr.ChildrenOf(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 2 ||
		children[0].Title != "org.maps.arcgis.com" ||
		children[1].Title != "other.maps.arcgis.com" {
		t.Errorf("got %+v", children)
	}
}

func TestPortalChildrenFixedOrder(t *testing.T) {
	tr := New()
	node, err := tr.AddPortal(newFakeConn())
	if err != nil {
		t.Fatal(err)
	}

	children, err := tr.ChildrenOf(context.Background(), node)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		title string
		kind  Kind
	}{
		{"Content", KindContentFolder},
		{"Groups", KindGroupFolder},
		{"Users", KindUserFolder},
	}
	if len(children) != len(want) {
		t.Fatalf("children = %d, want %d", len(children), len(want))
	}
	for i, w := range want {
		if children[i].Title != w.title || children[i].Kind != w.kind {
			t.Errorf("children[%d] = %q/%v, want %q/%v",
				i, children[i].Title, children[i].Kind, w.title, w.kind)
		}
	}
}

func TestContentChildrenFoldersThenItems(t *testing.T) {
	conn := newFakeConn()
	conn.folders = []portal.FolderSummary{{ID: "f1", Title: "Maps"}}
	conn.owned = []portal.ItemSummary{{ID: "i1", Title: "Basemap", Type: "Web Map"}}

	tr := New()
	root := &Node{ID: ContentRootID, Kind: KindContentFolder, Conn: conn}
	children, err := tr.ChildrenOf(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}
	if children[0].Kind != KindFolder || children[0].Title != "Maps" {
		t.Errorf("first child = %+v, want the folder", children[0])
	}
	if children[1].Kind != KindItem || children[1].Title != "Basemap (Web Map)" {
		t.Errorf("second child = %+v, want the item with typed title", children[1])
	}
	if children[1].Folder != root {
		t.Error("item did not keep its parent folder reference")
	}
}

func TestFolderChildrenUseOwnerFolderQuery(t *testing.T) {
	conn := newFakeConn()
	conn.items[`ownerfolder:"f1"`] = []portal.ItemSummary{{ID: "i9", Title: "Layers", Type: "Feature Service"}}

	tr := New()
	folder := &Node{ID: "f1", Kind: KindFolder, Conn: conn}
	children, err := tr.ChildrenOf(context.Background(), folder)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0].Title != "Layers (Feature Service)" {
		t.Errorf("got %+v", children)
	}
	if len(conn.searchQueries) != 1 || conn.searchQueries[0] != `ownerfolder:"f1"` {
		t.Errorf("queries = %v", conn.searchQueries)
	}
}

func TestGroupChildrenUseGroupQuery(t *testing.T) {
	conn := newFakeConn()
	conn.items[`group:"g1"`] = []portal.ItemSummary{{ID: "i2", Title: "Shared", Type: "Web Map"}}

	tr := New()
	group := &Node{ID: "g1", Kind: KindGroup, Conn: conn}
	children, err := tr.ChildrenOf(context.Background(), group)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0].ID != "i2" {
		t.Errorf("got %+v", children)
	}
}

func TestUserFolderChildrenAreContentFolders(t *testing.T) {
	conn := newFakeConn()
	conn.users = []portal.UserSummary{{Username: "bob"}, {Username: "carol"}}

	tr := New()
	children, err := tr.ChildrenOf(context.Background(), &Node{ID: UserRootID, Kind: KindUserFolder, Conn: conn})
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}
	for _, c := range children {
		if c.Kind != KindContentFolder {
			t.Errorf("child %q kind = %v, want content folder", c.Title, c.Kind)
		}
	}
}

func TestItemHasNoChildren(t *testing.T) {
	tr := New()
	children, err := tr.ChildrenOf(context.Background(), &Node{ID: "i1", Kind: KindItem, Conn: newFakeConn()})
	if err != nil {
		t.Fatal(err)
	}
	if children != nil {
		t.Errorf("got %+v, want nil", children)
	}
}

func TestDeleteFolderIsUnsupported(t *testing.T) {
	conn := newFakeConn()
	tr := New()
	err := tr.DeleteItem(context.Background(), &Node{ID: "f1", Kind: KindFolder, Conn: conn})
	if _, ok := portal.AsUnsupported(err); !ok {
		t.Fatalf("err = %v, want UnsupportedError", err)
	}
	if len(conn.deleted) != 0 {
		t.Error("folder delete reached the portal")
	}
}

func TestDeletePortalDetachesLocally(t *testing.T) {
	conn := newFakeConn()
	tr := New()
	node, err := tr.AddPortal(conn)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.DeleteItem(context.Background(), node); err != nil {
		t.Fatal(err)
	}
	if len(tr.Portals()) != 0 {
		t.Error("portal still in the tree")
	}
	if len(conn.deleted) != 0 {
		t.Error("portal removal issued a remote call")
	}
}

func TestDeleteItemResolvesOwner(t *testing.T) {
	conn := newFakeConn()
	conn.owned = []portal.ItemSummary{{ID: "i1", Title: "Mine", Type: "Web Map"}}
	tr := New()
	ctx := context.Background()

	// Own content root, resolved through the tree.
	root := &Node{ID: ContentRootID, Kind: KindContentFolder, Conn: conn}
	children, err := tr.ChildrenOf(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0].Kind != KindItem {
		t.Fatalf("children = %+v", children)
	}
	if err := tr.DeleteItem(ctx, children[0]); err != nil {
		t.Fatal(err)
	}

	if len(conn.deleteOwners) != 1 || conn.deleteOwners[0] != "alice" {
		t.Errorf("owners = %v, want [alice]", conn.deleteOwners)
	}
}

func TestDeleteOtherUsersRootItemTargetsThatUser(t *testing.T) {
	conn := newFakeConn()
	conn.users = []portal.UserSummary{{Username: "bob"}}
	conn.owned = []portal.ItemSummary{{ID: "i2", Title: "Bobs Map", Type: "Web Map"}}
	tr := New()
	ctx := context.Background()

	// Users -> bob's content root -> root-level item, all via ChildrenOf.
	userRoots, err := tr.ChildrenOf(ctx, &Node{ID: UserRootID, Kind: KindUserFolder, Conn: conn})
	if err != nil {
		t.Fatal(err)
	}
	if len(userRoots) != 1 || userRoots[0].ID != "bob" {
		t.Fatalf("user roots = %+v", userRoots)
	}
	items, err := tr.ChildrenOf(ctx, userRoots[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Kind != KindItem {
		t.Fatalf("items = %+v", items)
	}

	if err := tr.DeleteItem(ctx, items[0]); err != nil {
		t.Fatal(err)
	}
	if len(conn.deleteOwners) != 1 || conn.deleteOwners[0] != "bob" {
		t.Errorf("owners = %v, want [bob]", conn.deleteOwners)
	}
}

func TestDeleteFolderedItemInheritsFolderOwner(t *testing.T) {
	conn := newFakeConn()
	conn.users = []portal.UserSummary{{Username: "bob"}}
	conn.folders = []portal.FolderSummary{{ID: "f1", Title: "Maps"}}
	conn.items[`ownerfolder:"f1"`] = []portal.ItemSummary{{ID: "i3", Title: "Deep", Type: "Web Map"}}
	tr := New()
	ctx := context.Background()

	userRoots, err := tr.ChildrenOf(ctx, &Node{ID: UserRootID, Kind: KindUserFolder, Conn: conn})
	if err != nil {
		t.Fatal(err)
	}
	bobChildren, err := tr.ChildrenOf(ctx, userRoots[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(bobChildren) == 0 || bobChildren[0].Kind != KindFolder {
		t.Fatalf("bob children = %+v", bobChildren)
	}
	items, err := tr.ChildrenOf(ctx, bobChildren[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}

	if err := tr.DeleteItem(ctx, items[0]); err != nil {
		t.Fatal(err)
	}
	if len(conn.deleteOwners) != 1 || conn.deleteOwners[0] != "bob" {
		t.Errorf("owners = %v, want [bob]", conn.deleteOwners)
	}
}

func TestFindPortal(t *testing.T) {
	tr := New()
	conn := newFakeConn()
	if _, err := tr.AddPortal(conn); err != nil {
		t.Fatal(err)
	}
	if node := tr.FindPortal("org.maps.arcgis.com"); node == nil {
		t.Error("known portal not found")
	}
	if node := tr.FindPortal("missing.maps.arcgis.com"); node != nil {
		t.Error("unknown portal resolved")
	}
}

func TestPresentationTotal(t *testing.T) {
	kinds := []Kind{KindPortal, KindContentFolder, KindGroupFolder, KindUserFolder, KindFolder, KindGroup, KindItem}
	for _, k := range kinds {
		p := PresentationFor(k)
		if p.Icon == "" {
			t.Errorf("kind %v has no icon", k)
		}
		if k == KindItem {
			if p.Expandable {
				t.Error("items must not expand")
			}
			if p.Command != "arcgisAssistant.open" {
				t.Errorf("item command = %q", p.Command)
			}
		} else if !p.Expandable {
			t.Errorf("kind %v must expand", k)
		}
	}
}
