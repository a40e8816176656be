package media

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// MediaReferencesKey is the key, within the resolver payload, of
// the list of media references for an item.
const MediaReferencesKey = "media_details"

var ErrNoMediaReference = errors.New("no media reference found")

// MediaReference describes a single piece of remote media belonging to
// an item, as reported by the resolver.
type MediaReference struct {
	URL      string `mapstructure:"url"`
	Kind     string `mapstructure:"type"`
	MimeType string `mapstructure:"mime_type"`
}

// References decodes the media references from the items metadata. Entries
// which cannot be decoded are ignored; the payload is opaque and a
// malformed reference should not prevent a valid sibling from being used.
func (item *Item) References() []MediaReference {
	var rawList []any
	if err := mapstructure.Decode(item.Metadata[MediaReferencesKey], &rawList); err != nil {
		return nil
	}

	refs := make([]MediaReference, 0, len(rawList))
	for _, raw := range rawList {
		var ref MediaReference
		if err := mapstructure.WeakDecode(raw, &ref); err != nil {
			continue
		}

		refs = append(refs, ref)
	}

	return refs
}

// PrimaryReference returns the first media reference of the
// kind provided which carries a non-empty transport URL. ErrNoMediaReference
// is returned if no such reference exists.
func (item *Item) PrimaryReference(kind string) (*MediaReference, error) {
	for _, ref := range item.References() {
		if strings.EqualFold(ref.Kind, kind) && strings.TrimSpace(ref.URL) != "" {
			ref.URL = strings.TrimSpace(ref.URL)
			return &ref, nil
		}
	}

	return nil, ErrNoMediaReference
}
