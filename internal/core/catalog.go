package core

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cloudamp/internal/cache"
	"cloudamp/internal/i18n"
)

const (
	// TopNewSongsID is the pinned new-songs chart playlist, visible to
	// everyone including anonymous sessions.
	TopNewSongsID int64 = 3779629
	// DailyRecommendID identifies the synthetic daily-recommendations
	// playlist assembled client-side from the recommend-songs feed.
	DailyRecommendID int64 = -1
)

// CatalogLoader builds the full list of playlists available to the current
// session and reconciles the caches against catalog changes between
// reloads.
type CatalogLoader struct {
	client    CatalogClient
	details   *cache.Details[*PlaylistDetail]
	songs     *cache.Songs[*Song]
	localizer *i18n.Localizer
	metrics   Metrics
	logger    *zap.Logger
}

func NewCatalogLoader(
	client CatalogClient,
	details *cache.Details[*PlaylistDetail],
	songs *cache.Songs[*Song],
	localizer *i18n.Localizer,
	metrics Metrics,
	logger *zap.Logger,
) *CatalogLoader {
	return &CatalogLoader{
		client:    client,
		details:   details,
		songs:     songs,
		localizer: localizer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Load assembles the catalog: the fixed chart first, then for logged-in
// sessions the daily feed, the user's playlists (first one is the liked
// songs list) and the recommended playlists, fetched in parallel.
func (l *CatalogLoader) Load(ctx context.Context, userID int64) ([]PlaylistRef, error) {
	catalog := []PlaylistRef{{
		ID:   TopNewSongsID,
		Name: l.localizer.T(i18n.MsgTopNewSongs),
		Type: PlaylistTop,
	}}

	if userID == 0 {
		l.metrics.CatalogSize(len(catalog))
		return catalog, nil
	}

	catalog = append(catalog, PlaylistRef{
		ID:   DailyRecommendID,
		Name: l.localizer.T(i18n.MsgDailyRecommend),
		Type: PlaylistRecommend,
	})

	var userLists, recommended []PlaylistRef
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		refs, err := l.client.UserPlaylists(gctx, userID)
		if err != nil {
			return err
		}
		userLists = refs
		return nil
	})
	g.Go(func() error {
		refs, err := l.client.RecommendResource(gctx)
		if err != nil {
			return err
		}
		recommended = refs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The remote returns the liked-songs list first among the user's own.
	for i := range userLists {
		if i == 0 {
			userLists[i].Type = PlaylistFavorite
		} else if userLists[i].Type != PlaylistFavorite {
			userLists[i].Type = PlaylistUserCreated
		}
	}

	catalog = append(catalog, userLists...)
	catalog = append(catalog, recommended...)

	l.metrics.CatalogSize(len(catalog))
	l.logger.Info("catalog loaded",
		zap.Int64("user", userID),
		zap.Int("playlists", len(catalog)))
	return catalog, nil
}

// Reconcile evicts cached details and songs for playlists that are gone
// from the freshly reloaded catalog, identified by the id-set difference.
func (l *CatalogLoader) Reconcile(old, fresh []PlaylistRef) {
	oldIDs := lo.Map(old, func(ref PlaylistRef, _ int) int64 { return ref.ID })
	freshIDs := lo.Map(fresh, func(ref PlaylistRef, _ int) int64 { return ref.ID })

	removed, _ := lo.Difference(oldIDs, freshIDs)
	for _, id := range removed {
		l.details.Remove(id)
		l.songs.EvictPlaylist(id)
	}
	if len(removed) > 0 {
		l.logger.Info("evicted stale playlists", zap.Int64s("ids", removed))
	}
}
