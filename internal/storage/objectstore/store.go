package objectstore

import (
	"context"

	"github.com/animus-labs/freezer/internal/domain"
)

// Tagger replaces the tag set of a stored object.
type Tagger interface {
	SetObjectTags(ctx context.Context, key string, tags domain.TagSet) error
}

// TagReader reads back the tag set of a stored object.
type TagReader interface {
	GetObjectTags(ctx context.Context, key string) (domain.TagSet, error)
}
