package media

import (
	"encoding/json"
	"fmt"
	"maps"
)

const (
	localMediaPathKey = "localMediaPath"
	errorKey          = "error"
)

type (
	// Item is the resolved form of an identifier. The metadata is the
	// opaque payload returned by the resolver and is persisted as-is; the
	// LocalMediaPath is populated once the media has been downloaded.
	//
	// Error is an in-memory marker for an item whose resolution failed. Items
	// carrying an error must never be written to the canonical store.
	Item struct {
		Metadata       map[string]any
		LocalMediaPath string
		Error          string
	}
)

func NewItem(metadata map[string]any) *Item {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Item{Metadata: metadata}
}

func NewErroredItem(reason string) *Item {
	return &Item{Metadata: make(map[string]any), Error: reason}
}

func (item *Item) HasError() bool { return item.Error != "" }

// Clone returns a shallow copy of the item; the metadata map is
// copied but the values within it are shared.
func (item *Item) Clone() *Item {
	return &Item{
		Metadata:       maps.Clone(item.Metadata),
		LocalMediaPath: item.LocalMediaPath,
		Error:          item.Error,
	}
}

// MarshalJSON flattens the item so that the persisted representation
// is the resolver payload, with the local media path (and error marker)
// stored as additional top-level keys.
func (item *Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(item.Metadata)+2)
	maps.Copy(out, item.Metadata)
	delete(out, localMediaPathKey)
	delete(out, errorKey)

	if item.LocalMediaPath != "" {
		out[localMediaPathKey] = item.LocalMediaPath
	}
	if item.Error != "" {
		out[errorKey] = item.Error
	}

	return json.Marshal(out)
}

func (item *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("item is not a JSON object: %w", err)
	}
	if raw == nil {
		raw = make(map[string]any)
	}

	*item = Item{}
	if path, ok := raw[localMediaPathKey].(string); ok {
		item.LocalMediaPath = path
	}
	if reason, ok := raw[errorKey]; ok && reason != nil {
		item.Error = fmt.Sprint(reason)
	}

	delete(raw, localMediaPathKey)
	delete(raw, errorKey)
	item.Metadata = raw
	return nil
}

func (item *Item) String() string {
	return fmt.Sprintf("Item{local=%q error=%q}", item.LocalMediaPath, item.Error)
}
