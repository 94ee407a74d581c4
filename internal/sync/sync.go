// Package sync bridges portal items and virtual files: opening an
// item materializes its JSON into the filesystem, and file-change
// events flow back to the portal after a diff and a user
// confirmation. Conflict handling is last-local-edit-wins; this is
// not a three-way merge engine.
package sync

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/green3g/vscode-arcgis-assistant/internal/logging"
	"github.com/green3g/vscode-arcgis-assistant/internal/metrics"
	"github.com/green3g/vscode-arcgis-assistant/internal/portal"
	"github.com/green3g/vscode-arcgis-assistant/internal/tree"
	"github.com/green3g/vscode-arcgis-assistant/internal/vfs"
)

// FileSystem is the slice of the virtual filesystem the sync layer
// consumes.
type FileSystem interface {
	WriteFile(path string, data []byte, opts vfs.WriteOptions) error
	CreateDirectory(path string) error
	ReadDirectory(path string) ([]vfs.DirEntry, error)
	ReadFile(path string) ([]byte, error)
}

// Shell is the UI surface the sync layer reports through: display a
// file, ask for a decision, surface outcome text.
type Shell interface {
	ShowDocument(path string)
	Confirm(ctx context.Context, message string) bool
	Info(message string)
	Warn(message string)
	Error(message string)
}

// Validator checks item content before upload. A nil error means the
// content may be pushed.
type Validator interface {
	Validate(itemType, content string) error
}

// Binding ties one virtual file to one portal item. lastRemote holds
// the minified content last read from or written to the portal and is
// the basis for no-op save detection.
type Binding struct {
	Path       string
	ItemID     string
	Conn       tree.Connection
	lastRemote string
}

// Sync is the workspace synchronizer.
type Sync struct {
	fs        FileSystem
	shell     Shell
	tree      *tree.Tree
	validator Validator
	bindings  map[string]*Binding
}

// Option configures optional collaborators.
type Option func(*Sync)

// WithValidator installs a pre-upload content validator.
func WithValidator(v Validator) Option {
	return func(s *Sync) { s.validator = v }
}

// New creates a Sync over the given filesystem, shell, and tree.
func New(fs FileSystem, shell Shell, t *tree.Tree, opts ...Option) *Sync {
	s := &Sync{
		fs:       fs,
		shell:    shell,
		tree:     t,
		bindings: map[string]*Binding{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open materializes an item into its virtual file and asks the shell
// to display it. Opening the same item twice reuses the same path.
func (s *Sync) Open(ctx context.Context, item *tree.Node) error {
	if item == nil || item.Kind != tree.KindItem || item.ID == "" {
		return nil
	}

	logging.Debug("fetching item data", zap.String("id", item.ID))
	s.shell.Info("Fetching item...please wait.")
	content, err := item.Conn.Item(ctx, item.ID)
	if err != nil {
		logging.Error("item fetch failed", zap.String("id", item.ID), zap.Error(err))
		s.shell.Error(fmt.Sprintf("Item %s could not be fetched: %v", item.ID, err))
		return err
	}

	folderID := ""
	if item.Folder != nil && item.Folder.Kind == tree.KindFolder {
		folderID = item.Folder.ID
	}
	path := BindingPath(item.Conn.PortalName(), folderID, item.ID)

	if err := s.ensureDirectories(path); err != nil {
		return err
	}

	if content.Data == "" {
		logging.Info("item has no data yet", zap.String("id", item.ID))
	}
	pretty := portal.PrettyJSON(content.Data)
	err = s.fs.WriteFile(path, []byte(pretty), vfs.WriteOptions{Create: true, Overwrite: true})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	s.bindings[path] = &Binding{
		Path:       path,
		ItemID:     item.ID,
		Conn:       item.Conn,
		lastRemote: normalize(content.Data),
	}

	s.shell.ShowDocument(path)
	return nil
}

// ensureDirectories creates every missing intermediate directory of
// path, reusing existing ones.
func (s *Sync) ensureDirectories(path string) error {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		dir := strings.Join(parts[:i], "/")
		if _, err := s.fs.ReadDirectory(dir); err != nil {
			if err := s.fs.CreateDirectory(dir); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}
	}
	return nil
}

// HandleFileEvents processes a batch of filesystem change events,
// pushing changed item files back to their portals.
func (s *Sync) HandleFileEvents(ctx context.Context, events []vfs.Event) {
	for _, ev := range events {
		if ev.Kind == vfs.Deleted || !strings.HasSuffix(ev.Path, jsonExt) {
			continue
		}
		s.handleChange(ctx, ev.Path)
	}
}

// handleChange runs the save pipeline for one changed path: parse the
// path, validate the JSON, compare against the remote, confirm, push.
func (s *Sync) handleChange(ctx context.Context, path string) {
	portalName, _, itemID, ok := ParseBindingPath(path)
	if !ok {
		return
	}
	portalNode := s.tree.FindPortal(portalName)
	if portalNode == nil {
		logging.Debug("change for unknown portal ignored", zap.String("path", path))
		return
	}

	data, err := s.fs.ReadFile(path)
	if err != nil {
		logging.Error("read changed file failed", zap.String("path", path), zap.Error(err))
		return
	}

	minLocal, err := portal.MinifyJSON(string(data))
	if err != nil {
		metrics.RecordSave("invalid")
		logging.Warn("rejecting invalid JSON", zap.String("item", itemID), zap.Error(err))
		s.shell.Warn(fmt.Sprintf(
			"An error occurred while parsing your file. Fix any JSON syntax issues to save item %s.", itemID))
		return
	}

	// The snapshot catches save storms from our own writes without a
	// network round trip.
	binding := s.bindings[path]
	if binding != nil && binding.lastRemote == minLocal {
		metrics.RecordSave("noop")
		logging.Debug("content unchanged since last sync", zap.String("item", itemID))
		return
	}

	logging.Info("attempting save", zap.String("item", itemID))
	content, err := portalNode.Conn.Item(ctx, itemID)
	if err != nil {
		metrics.RecordSave("error")
		logging.Error("remote fetch before save failed", zap.String("item", itemID), zap.Error(err))
		s.shell.Error(fmt.Sprintf("Item %s could not be saved: %v", itemID, err))
		return
	}

	if normalize(content.Data) == minLocal {
		metrics.RecordSave("noop")
		logging.Debug("content matches remote", zap.String("item", itemID))
		s.rebind(path, itemID, portalNode.Conn, minLocal)
		return
	}

	if s.validator != nil {
		if err := s.validator.Validate(content.Item.Type, minLocal); err != nil {
			metrics.RecordSave("invalid")
			s.shell.Warn(fmt.Sprintf("Item %s failed validation: %v", itemID, err))
			return
		}
	}

	msg := fmt.Sprintf("You've made some changes. Do you want to upload %s to your portal?", itemID)
	if !s.shell.Confirm(ctx, msg) {
		metrics.RecordSave("declined")
		logging.Info("save declined", zap.String("item", itemID))
		return
	}

	if err := portalNode.Conn.UpdateItem(ctx, content.Item, minLocal); err != nil {
		metrics.RecordSave("error")
		logging.Error("save failed", zap.String("item", itemID), zap.Error(err))
		s.shell.Error(fmt.Sprintf("Error while saving %s: %v", itemID, err))
		return
	}

	metrics.RecordSave("pushed")
	s.rebind(path, itemID, portalNode.Conn, minLocal)
	s.shell.Info("Item saved successfully!")
}

// rebind refreshes the binding's remote snapshot after a successful
// round trip.
func (s *Sync) rebind(path, itemID string, conn tree.Connection, minified string) {
	if b := s.bindings[path]; b != nil {
		b.lastRemote = minified
		return
	}
	s.bindings[path] = &Binding{Path: path, ItemID: itemID, Conn: conn, lastRemote: minified}
}

// normalize minifies JSON content, falling back to the raw text for
// opaque payloads.
func normalize(content string) string {
	min, err := portal.MinifyJSON(content)
	if err != nil {
		return content
	}
	return min
}
