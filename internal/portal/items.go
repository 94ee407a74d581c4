package portal

import (
	"context"
	"net/url"
	"strings"
)

// Item is the metadata record of a portal item.
type Item struct {
	ID          string   `json:"id"`
	Owner       string   `json:"owner"`
	OwnerFolder string   `json:"ownerFolder"`
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	URL         string   `json:"url"`
}

// ItemContent is the result of reading an item: its metadata plus the
// data payload as text. JSON payloads are normalized through
// parse+stringify; anything else is passed through opaque.
type ItemContent struct {
	Item *Item
	Data string
}

// CreateResult reports a successful item creation.
type CreateResult struct {
	ID      string `json:"id"`
	Folder  string `json:"folder"`
	Success bool   `json:"success"`
}

// Item fetches an item's metadata and data payload.
func (s *Session) Item(ctx context.Context, id string) (*ItemContent, error) {
	var item Item
	if err := s.get(ctx, "item", "/content/items/"+url.PathEscape(id), nil, &item); err != nil {
		return nil, err
	}

	data, err := s.itemData(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ItemContent{Item: &item, Data: data}, nil
}

// itemData reads the raw data endpoint. Items without data yield "".
func (s *Session) itemData(ctx context.Context, id string) (string, error) {
	var raw rawBody
	err := s.get(ctx, "item-data", "/content/items/"+url.PathEscape(id)+"/data", nil, &raw)
	if err != nil {
		// A data-less item is not an error for open.
		if _, ok := AsNotFound(err); ok {
			return "", nil
		}
		return "", err
	}
	return string(raw), nil
}

// CreateItem creates an item under the given folder and owner (both
// optional; empty owner means the authenticated user). Content is
// coerced to canonical serialized form.
func (s *Session) CreateItem(ctx context.Context, item *Item, content, folderID, owner string) (*CreateResult, error) {
	if owner == "" {
		cred, err := s.Authenticate(ctx)
		if err != nil {
			return nil, err
		}
		owner = cred.Username
	}

	path := "/content/users/" + url.PathEscape(owner)
	if folderID != "" {
		path += "/" + url.PathEscape(folderID)
	}
	path += "/addItem"

	form := itemForm(item)
	form.Set("text", CoerceContent(content))

	var result CreateResult
	if err := s.post(ctx, "create-item", path, form, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateItem replaces an item's data payload. The owner is always
// included so cross-folder updates resolve against the right user.
func (s *Session) UpdateItem(ctx context.Context, item *Item, content string) error {
	owner := item.Owner
	if owner == "" {
		cred, err := s.Authenticate(ctx)
		if err != nil {
			return err
		}
		owner = cred.Username
	}

	path := "/content/users/" + url.PathEscape(owner) + "/items/" + url.PathEscape(item.ID) + "/update"
	form := url.Values{}
	form.Set("owner", owner)
	form.Set("text", CoerceContent(content))

	var result struct {
		Success bool `json:"success"`
	}
	return s.post(ctx, "update-item", path, form, &result)
}

// DeleteItem permanently removes an item. Folders cannot be deleted
// through this interface.
func (s *Session) DeleteItem(ctx context.Context, id, owner string) error {
	if owner == "" {
		cred, err := s.Authenticate(ctx)
		if err != nil {
			return err
		}
		owner = cred.Username
	}

	path := "/content/users/" + url.PathEscape(owner) + "/items/" + url.PathEscape(id) + "/delete"
	var result struct {
		Success bool `json:"success"`
	}
	return s.post(ctx, "delete-item", path, url.Values{}, &result)
}

func itemForm(item *Item) url.Values {
	form := url.Values{}
	form.Set("title", item.Title)
	form.Set("type", item.Type)
	if item.Description != "" {
		form.Set("description", item.Description)
	}
	if item.URL != "" {
		form.Set("url", item.URL)
	}
	if len(item.Tags) > 0 {
		form.Set("tags", strings.Join(item.Tags, ","))
	}
	return form
}
