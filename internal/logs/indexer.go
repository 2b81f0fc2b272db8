package logs

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

const (
	indexSessionsPerSecond = 500
	indexBurst             = 5
)

// Indexer feeds full session content into the search index in the
// background, largest files first so content-rich sessions become
// searchable soonest.
type Indexer struct {
	store   *Store
	index   *SearchIndex
	logger  *slog.Logger
	limiter *rate.Limiter
}

func NewIndexer(store *Store, index *SearchIndex, logger *slog.Logger) *Indexer {
	return &Indexer{
		store:   store,
		index:   index,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(indexSessionsPerSecond), indexBurst),
	}
}

// Run indexes every known session not yet in the index. The limiter keeps
// the pass from starving the server during startup; cancelling the context
// stops the pass between sessions.
func (ix *Indexer) Run(ctx context.Context) {
	count := 0
	for _, sf := range ix.store.sessionFilesBySizeDesc() {
		if ix.index.IsSessionIndexed(sf.sessionID) {
			continue
		}
		if err := ix.limiter.Wait(ctx); err != nil {
			ix.logger.Info("background indexing cancelled", "indexed", count)
			return
		}

		messages := ParseSession(sf.path, ix.logger)
		projectName := ShortName(DecodeProjectPath(sf.projectID))
		ix.index.AddSessionMessages(sf.sessionID, sf.projectID, projectName, messages)
		count++
	}
	ix.logger.Info("background indexing complete", "indexed", count, "entries", ix.index.EntryCount())
}
