package sync

import (
	"strings"
)

const jsonExt = ".json"

// BindingPath builds the deterministic virtual path for an item:
// portal-name/[folder-id/]item-id.json. Re-opening the same item
// always lands on the same path.
func BindingPath(portalName, folderID, itemID string) string {
	parts := []string{portalName}
	if folderID != "" {
		parts = append(parts, folderID)
	}
	parts = append(parts, itemID+jsonExt)
	return strings.Join(parts, "/")
}

// ParseBindingPath recovers (portal, folder, item) from a virtual
// path. ok is false when the path does not have the expected .json
// leaf shape.
func ParseBindingPath(path string) (portalName, folderID, itemID string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 {
		return "", "", "", false
	}
	leaf := parts[len(parts)-1]
	if !strings.HasSuffix(leaf, jsonExt) || leaf == jsonExt {
		return "", "", "", false
	}
	portalName = parts[0]
	if portalName == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		folderID = parts[1]
		if folderID == "" {
			return "", "", "", false
		}
	}
	itemID = strings.TrimSuffix(leaf, jsonExt)
	return portalName, folderID, itemID, true
}
