// Package schema validates item content against JSON Schemas before it
// is pushed to a portal. Schemas are looked up per item type from a
// directory; types with no schema on disk pass validation.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/green3g/vscode-arcgis-assistant/internal/logging"
)

// Validator compiles and caches schemas from a directory. It is safe
// for concurrent use.
type Validator struct {
	dir string

	mu       gosync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator returns a validator reading schemas from dir. Files are
// named after the item type: "Web Map" resolves to web-map.schema.json.
func NewValidator(dir string) *Validator {
	return &Validator{dir: dir, compiled: map[string]*jsonschema.Schema{}}
}

// SchemaFile maps an item type to its schema file name.
func SchemaFile(itemType string) string {
	slug := strings.ToLower(strings.ReplaceAll(itemType, " ", "-"))
	return slug + ".schema.json"
}

// Validate checks content against the schema for itemType. A missing
// schema is not an error; malformed content and schema violations are.
func (v *Validator) Validate(itemType, content string) error {
	schema, err := v.schemaFor(itemType)
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}

	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("parse content: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("schema validation for %q: %w", itemType, err)
	}
	return nil
}

func (v *Validator) schemaFor(itemType string) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if schema, ok := v.compiled[itemType]; ok {
		return schema, nil
	}

	path := filepath.Join(v.dir, SchemaFile(itemType))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logging.Debug("no schema for item type", zap.String("type", itemType))
			v.compiled[itemType] = nil
			return nil, nil
		}
		return nil, fmt.Errorf("stat schema %s: %w", path, err)
	}

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", path, err)
	}
	v.compiled[itemType] = schema
	return schema, nil
}
