package contextindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/abhisek/vidtutor/internal/logger"
	"github.com/abhisek/vidtutor/internal/media"
)

// Builder produces indexes. *Pipeline is the production implementation.
type Builder interface {
	ConfigHash() string
	Inspect(ctx context.Context, fileRef string) (media.VideoAsset, error)
	Process(ctx context.Context, itemID string, asset media.VideoAsset) (*ContextIndex, error)
}

// Locker provides exclusion across processes sharing one store.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func
	// releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Coordinator owns the build lifecycle: at most one build per learning item
// at a time, reuse when nothing changed, wholesale replacement otherwise.
type Coordinator struct {
	builder Builder
	repo    Repository
	locker  Locker
	config  Config
	logger  *slog.Logger
	group   singleflight.Group
}

// NewCoordinator creates a Coordinator. A nil locker only deduplicates
// builds within this process.
func NewCoordinator(builder Builder, repo Repository, locker Locker, cfg Config, log *slog.Logger) *Coordinator {
	return &Coordinator{
		builder: builder,
		repo:    repo,
		locker:  locker,
		config:  cfg,
		logger:  logger.OrDefault(log),
	}
}

// Ensure returns an up-to-date index for itemID built from fileRef.
//
// Concurrent callers for the same item share one build. The build runs
// detached from ctx: a caller that gives up gets ctx.Err() while the build
// continues for the others.
func (c *Coordinator) Ensure(ctx context.Context, itemID, fileRef string) (*ContextIndex, error) {
	if itemID == "" {
		return nil, fmt.Errorf("ensure context index: empty learning item id")
	}
	ch := c.group.DoChan(itemID, func() (any, error) {
		bctx := context.WithoutCancel(ctx)
		if c.config.BuildTimeout > 0 {
			var cancel context.CancelFunc
			bctx, cancel = context.WithTimeout(bctx, c.config.BuildTimeout)
			defer cancel()
		}
		return c.ensure(bctx, itemID, fileRef)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ContextIndex), nil
	}
}

func (c *Coordinator) ensure(ctx context.Context, itemID, fileRef string) (*ContextIndex, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{LearningItemID: itemID, Component: "contextindex"})

	if c.locker != nil {
		unlock, err := c.locker.Lock(ctx, "vidtutor:index:"+itemID)
		if err != nil {
			return nil, fmt.Errorf("acquire build lease for %s: %w", itemID, err)
		}
		defer unlock()
	}

	asset, err := c.builder.Inspect(ctx, fileRef)
	if err != nil {
		return nil, err
	}

	existing, err := c.repo.Load(ctx, itemID)
	if err != nil {
		if !errors.Is(err, ErrUnreadableArtifact) {
			return nil, fmt.Errorf("load context index %s: %w", itemID, err)
		}
		c.logger.WarnContext(ctx, "discarding stored context index", "error", err)
		existing = nil
	}
	if existing != nil &&
		existing.Video.ContentHash == asset.ContentHash &&
		existing.ConfigHash == c.builder.ConfigHash() {
		c.logger.DebugContext(ctx, "context index up to date", "content_hash", asset.ContentHash)
		return existing, nil
	}

	idx, err := c.builder.Process(ctx, itemID, asset)
	if errors.Is(err, ErrIndexIncomplete) {
		c.logger.WarnContext(ctx, "rebuilding incomplete context index", "error", err)
		idx, err = c.builder.Process(ctx, itemID, asset)
	}
	if err != nil {
		return nil, err
	}
	if err := c.repo.Save(ctx, idx); err != nil {
		return nil, fmt.Errorf("save context index %s: %w", itemID, err)
	}
	return idx, nil
}

// Get returns the stored index without building. It returns
// ErrIndexNotFound when the item has never been indexed.
func (c *Coordinator) Get(ctx context.Context, itemID string) (*ContextIndex, error) {
	idx, err := c.repo.Load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, itemID)
	}
	return idx, nil
}

// Item names one learning item and its video.
type Item struct {
	LearningItemID string
	FileRef        string
}

// Result is the outcome of building one Item.
type Result struct {
	Item  Item
	Index *ContextIndex
	Err   error
}

// EnsureAll builds many items on a bounded pool. A failure for one item
// never affects the others; results are returned in input order.
func (c *Coordinator) EnsureAll(ctx context.Context, items []Item) []Result {
	results := make([]Result, len(items))
	var g errgroup.Group
	g.SetLimit(max(c.config.Workers, 1))
	for i, item := range items {
		g.Go(func() error {
			idx, err := c.Ensure(ctx, item.LearningItemID, item.FileRef)
			results[i] = Result{Item: item, Index: idx, Err: err}
			if err != nil {
				c.logger.ErrorContext(ctx, "context index build failed",
					"learning_item_id", item.LearningItemID,
					"error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
