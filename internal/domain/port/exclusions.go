package port

import "context"

// ExclusionStore persists the user-curated set of words that are always
// filtered out of results. Load never fails the pipeline: implementations
// fall back to a built-in default list when the stored value is missing or
// malformed.
type ExclusionStore interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, words []string) error
}
