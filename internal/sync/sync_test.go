package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/green3g/vscode-arcgis-assistant/internal/portal"
	"github.com/green3g/vscode-arcgis-assistant/internal/tree"
	"github.com/green3g/vscode-arcgis-assistant/internal/vfs"
)

// fakeConn serves one item and records writes.
type fakeConn struct {
	portalURL  string
	portalName string

	item      *portal.Item
	data      string
	itemErr   error
	updateErr error

	itemCalls   int
	updates     []string
	deleted     []string
	lastUpdated *portal.Item
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		portalURL:  "https://org.maps.arcgis.com",
		portalName: "org.maps.arcgis.com",
		item:       &portal.Item{ID: "abc123", Owner: "alice", Title: "My Map", Type: "Web Map"},
		data:       `{"a": 1}`,
	}
}

func (f *fakeConn) Portal() string     { return f.portalURL }
func (f *fakeConn) PortalName() string { return f.portalName }
func (f *fakeConn) Username() string   { return "alice" }

func (f *fakeConn) Folders(ctx context.Context, owner string) ([]portal.FolderSummary, error) {
	return nil, nil
}
func (f *fakeConn) Groups(ctx context.Context) ([]portal.GroupSummary, error) { return nil, nil }
func (f *fakeConn) Users(ctx context.Context) ([]portal.UserSummary, error)   { return nil, nil }
func (f *fakeConn) SearchItems(ctx context.Context, query string) ([]portal.ItemSummary, error) {
	return nil, nil
}
func (f *fakeConn) ItemsForOwner(ctx context.Context, owner string) ([]portal.ItemSummary, error) {
	return nil, nil
}

func (f *fakeConn) Item(ctx context.Context, id string) (*portal.ItemContent, error) {
	f.itemCalls++
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	return &portal.ItemContent{Item: f.item, Data: f.data}, nil
}

func (f *fakeConn) UpdateItem(ctx context.Context, item *portal.Item, content string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.lastUpdated = item
	f.updates = append(f.updates, content)
	f.data = content
	return nil
}

func (f *fakeConn) CreateItem(ctx context.Context, item *portal.Item, content, folderID, owner string) (*portal.CreateResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConn) DeleteItem(ctx context.Context, id, owner string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeShell records interactions and scripts the confirm answer.
type fakeShell struct {
	confirm   bool
	shown     []string
	infos     []string
	warnings  []string
	errors    []string
	questions []string
}

func (f *fakeShell) ShowDocument(path string) { f.shown = append(f.shown, path) }
func (f *fakeShell) Confirm(ctx context.Context, message string) bool {
	f.questions = append(f.questions, message)
	return f.confirm
}
func (f *fakeShell) Info(message string)  { f.infos = append(f.infos, message) }
func (f *fakeShell) Warn(message string)  { f.warnings = append(f.warnings, message) }
func (f *fakeShell) Error(message string) { f.errors = append(f.errors, message) }

func newTestSync(t *testing.T, conn *fakeConn) (*Sync, *vfs.FS, *fakeShell, *tree.Tree) {
	t.Helper()
	fs := vfs.New()
	shell := &fakeShell{confirm: true}
	tr := tree.New()
	if _, err := tr.AddPortal(conn); err != nil {
		t.Fatal(err)
	}
	return New(fs, shell, tr), fs, shell, tr
}

func itemNode(conn *fakeConn, folderID string) *tree.Node {
	node := &tree.Node{Title: "My Map (Web Map)", Kind: tree.KindItem, ID: "abc123", Conn: conn}
	if folderID != "" {
		node.Folder = &tree.Node{Kind: tree.KindFolder, ID: folderID, Conn: conn}
	}
	return node
}

func TestOpenMaterializesAtDeterministicPath(t *testing.T) {
	conn := newFakeConn()
	s, fs, shell, _ := newTestSync(t, conn)

	if err := s.Open(context.Background(), itemNode(conn, "")); err != nil {
		t.Fatal(err)
	}
	const want = "org.maps.arcgis.com/abc123.json"
	data, err := fs.ReadFile(want)
	if err != nil {
		t.Fatalf("file missing at %s: %v", want, err)
	}
	if string(data) != `{"a": 1}` {
		t.Errorf("content = %q", data)
	}
	if len(shell.shown) != 1 || shell.shown[0] != want {
		t.Errorf("shown = %v", shell.shown)
	}
}

func TestOpenUsesFolderSegment(t *testing.T) {
	conn := newFakeConn()
	s, fs, _, _ := newTestSync(t, conn)

	if err := s.Open(context.Background(), itemNode(conn, "f1")); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.ReadFile("org.maps.arcgis.com/f1/abc123.json"); err != nil {
		t.Fatalf("file missing in folder path: %v", err)
	}
}

func TestOpenTwiceReusesPath(t *testing.T) {
	conn := newFakeConn()
	s, fs, _, _ := newTestSync(t, conn)

	ctx := context.Background()
	if err := s.Open(ctx, itemNode(conn, "")); err != nil {
		t.Fatal(err)
	}
	conn.data = `{"a": 2}`
	if err := s.Open(ctx, itemNode(conn, "")); err != nil {
		t.Fatal(err)
	}
	entries, err := fs.ReadDirectory("org.maps.arcgis.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %v, want the one re-used file", entries)
	}
	data, _ := fs.ReadFile("org.maps.arcgis.com/abc123.json")
	if string(data) != `{"a": 2}` {
		t.Errorf("content = %q, want refreshed data", data)
	}
}

func TestOpenSurfacesFetchError(t *testing.T) {
	conn := newFakeConn()
	conn.itemErr = errors.New("portal down")
	s, _, shell, _ := newTestSync(t, conn)

	if err := s.Open(context.Background(), itemNode(conn, "")); err == nil {
		t.Fatal("want error")
	}
	if len(shell.errors) != 1 {
		t.Errorf("errors = %v", shell.errors)
	}
}

func TestOpenIgnoresNonItems(t *testing.T) {
	conn := newFakeConn()
	s, _, _, _ := newTestSync(t, conn)
	if err := s.Open(context.Background(), &tree.Node{Kind: tree.KindFolder, ID: "f1", Conn: conn}); err != nil {
		t.Fatal(err)
	}
	if conn.itemCalls != 0 {
		t.Error("folder open hit the portal")
	}
}

func changed(path string) []vfs.Event {
	return []vfs.Event{{Path: path, Kind: vfs.Changed}}
}

func TestInvalidJSONNeverPushed(t *testing.T) {
	conn := newFakeConn()
	s, fs, shell, _ := newTestSync(t, conn)
	ctx := context.Background()
	if err := s.Open(ctx, itemNode(conn, "")); err != nil {
		t.Fatal(err)
	}

	path := "org.maps.arcgis.com/abc123.json"
	if err := fs.WriteFile(path, []byte(`{"a": `), vfs.WriteOptions{Overwrite: true}); err != nil {
		t.Fatal(err)
	}
	fetchesBefore := conn.itemCalls
	s.HandleFileEvents(ctx, changed(path))

	if len(conn.updates) != 0 {
		t.Error("invalid JSON was pushed")
	}
	if conn.itemCalls != fetchesBefore {
		t.Error("invalid JSON triggered a remote fetch")
	}
	if len(shell.warnings) != 1 {
		t.Errorf("warnings = %v", shell.warnings)
	}
}

func TestNoopSaveSkipsConfirmAndPush(t *testing.T) {
	conn := newFakeConn()
	s, fs, shell, _ := newTestSync(t, conn)
	ctx := context.Background()
	if err := s.Open(ctx, itemNode(conn, "")); err != nil {
		t.Fatal(err)
	}

	// Reformatting without a semantic change must not push.
	path := "org.maps.arcgis.com/abc123.json"
	if err := fs.WriteFile(path, []byte("{\n    \"a\": 1\n}\n"), vfs.WriteOptions{Overwrite: true}); err != nil {
		t.Fatal(err)
	}
	s.HandleFileEvents(ctx, changed(path))

	if len(conn.updates) != 0 {
		t.Error("no-op save was pushed")
	}
	if len(shell.questions) != 0 {
		t.Error("no-op save asked for confirmation")
	}
}

func TestNoopAgainstRemoteWithoutBinding(t *testing.T) {
	conn := newFakeConn()
	s, fs, shell, _ := newTestSync(t, conn)
	ctx := context.Background()

	// No prior Open: the pipeline must fall back to a remote compare.
	if err := fs.CreateDirectory("org.maps.arcgis.com"); err != nil {
		t.Fatal(err)
	}
	path := "org.maps.arcgis.com/abc123.json"
	if err := fs.WriteFile(path, []byte(`{"a":1}`), vfs.WriteOptions{Create: true}); err != nil {
		t.Fatal(err)
	}
	s.HandleFileEvents(ctx, changed(path))

	if conn.itemCalls != 1 {
		t.Errorf("remote fetches = %d, want 1", conn.itemCalls)
	}
	if len(conn.updates) != 0 || len(shell.questions) != 0 {
		t.Error("matching content was pushed or confirmed")
	}
}

func TestDeclinedSaveLeavesRemoteUntouched(t *testing.T) {
	conn := newFakeConn()
	s, fs, shell, _ := newTestSync(t, conn)
	shell.confirm = false
	ctx := context.Background()
	if err := s.Open(ctx, itemNode(conn, "")); err != nil {
		t.Fatal(err)
	}

	path := "org.maps.arcgis.com/abc123.json"
	if err := fs.WriteFile(path, []byte(`{"a": 2}`), vfs.WriteOptions{Overwrite: true}); err != nil {
		t.Fatal(err)
	}
	s.HandleFileEvents(ctx, changed(path))

	if len(shell.questions) != 1 {
		t.Fatalf("questions = %v", shell.questions)
	}
	if len(conn.updates) != 0 {
		t.Error("declined save was pushed")
	}
}

func TestConfirmedSavePushesMinified(t *testing.T) {
	conn := newFakeConn()
	s, fs, shell, _ := newTestSync(t, conn)
	ctx := context.Background()
	if err := s.Open(ctx, itemNode(conn, "")); err != nil {
		t.Fatal(err)
	}

	path := "org.maps.arcgis.com/abc123.json"
	if err := fs.WriteFile(path, []byte("{\n  \"b\": 2,\n  \"a\": 1\n}"), vfs.WriteOptions{Overwrite: true}); err != nil {
		t.Fatal(err)
	}
	s.HandleFileEvents(ctx, changed(path))

	if len(conn.updates) != 1 || conn.updates[0] != `{"a":1,"b":2}` {
		t.Errorf("updates = %v", conn.updates)
	}
	if conn.lastUpdated == nil || conn.lastUpdated.Owner != "alice" {
		t.Errorf("updated item = %+v, want owner carried through", conn.lastUpdated)
	}
	if len(shell.infos) == 0 {
		t.Error("no success feedback")
	}

	// A second identical event is now a no-op via the refreshed binding.
	fetches := conn.itemCalls
	s.HandleFileEvents(ctx, changed(path))
	if len(conn.updates) != 1 || conn.itemCalls != fetches {
		t.Error("binding snapshot not refreshed after push")
	}
}

func TestFailedPushKeepsBindingDirty(t *testing.T) {
	conn := newFakeConn()
	s, fs, shell, _ := newTestSync(t, conn)
	ctx := context.Background()
	if err := s.Open(ctx, itemNode(conn, "")); err != nil {
		t.Fatal(err)
	}

	conn.updateErr = errors.New("portal down")
	path := "org.maps.arcgis.com/abc123.json"
	if err := fs.WriteFile(path, []byte(`{"a": 2}`), vfs.WriteOptions{Overwrite: true}); err != nil {
		t.Fatal(err)
	}
	s.HandleFileEvents(ctx, changed(path))
	if len(shell.errors) != 1 {
		t.Fatalf("errors = %v", shell.errors)
	}

	// Once the portal recovers, the same edit still pushes.
	conn.updateErr = nil
	s.HandleFileEvents(ctx, changed(path))
	if len(conn.updates) != 1 {
		t.Errorf("updates = %v, want the retried push", conn.updates)
	}
}

func TestEventsForUnknownPortalIgnored(t *testing.T) {
	conn := newFakeConn()
	s, fs, _, _ := newTestSync(t, conn)
	ctx := context.Background()

	if err := fs.CreateDirectory("stranger.maps.arcgis.com"); err != nil {
		t.Fatal(err)
	}
	path := "stranger.maps.arcgis.com/abc123.json"
	if err := fs.WriteFile(path, []byte(`{"a":1}`), vfs.WriteOptions{Create: true}); err != nil {
		t.Fatal(err)
	}
	s.HandleFileEvents(ctx, changed(path))
	if conn.itemCalls != 0 {
		t.Error("unknown portal event reached the connection")
	}
}

func TestDeleteAndNonJSONEventsFiltered(t *testing.T) {
	conn := newFakeConn()
	s, _, _, _ := newTestSync(t, conn)
	s.HandleFileEvents(context.Background(), []vfs.Event{
		{Path: "org.maps.arcgis.com/abc123.json", Kind: vfs.Deleted},
		{Path: "org.maps.arcgis.com/readme.txt", Kind: vfs.Changed},
	})
	if conn.itemCalls != 0 {
		t.Error("filtered events reached the connection")
	}
}

// rejectAll fails every validation.
type rejectAll struct{}

func (rejectAll) Validate(itemType, content string) error {
	return errors.New("schema violation")
}

func TestValidatorBlocksPush(t *testing.T) {
	conn := newFakeConn()
	fs := vfs.New()
	shell := &fakeShell{confirm: true}
	tr := tree.New()
	if _, err := tr.AddPortal(conn); err != nil {
		t.Fatal(err)
	}
	s := New(fs, shell, tr, WithValidator(rejectAll{}))
	ctx := context.Background()
	if err := s.Open(ctx, itemNode(conn, "")); err != nil {
		t.Fatal(err)
	}

	path := "org.maps.arcgis.com/abc123.json"
	if err := fs.WriteFile(path, []byte(`{"a": 2}`), vfs.WriteOptions{Overwrite: true}); err != nil {
		t.Fatal(err)
	}
	s.HandleFileEvents(ctx, changed(path))

	if len(conn.updates) != 0 {
		t.Error("invalid content was pushed")
	}
	if len(shell.questions) != 0 {
		t.Error("confirmation asked for content that failed validation")
	}
	if len(shell.warnings) != 1 {
		t.Errorf("warnings = %v", shell.warnings)
	}
}
