package fetch

import (
	"context"

	"github.com/operia/operia/internal/models"
)

// Fetcher pulls content from one provider and normalizes it into raw items
// for the extraction engine. Adapters are thin API clients; the pipeline
// consumes only their normalized output.
type Fetcher interface {
	Provider() models.Provider
	// Fetch lists the provider content reachable with the given token.
	Fetch(ctx context.Context, token string) ([]models.RawItem, error)
}
