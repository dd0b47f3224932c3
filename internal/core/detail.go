package core

import (
	"context"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"cloudamp/internal/cache"
	"cloudamp/pkg/shuffle"
)

// imageClipParam asks the image CDN for a thumbnail-sized crop.
const imageClipParam = "?param=150y150"

// DetailResolver loads and caches the ordered track-id list and shuffle
// permutation for playlists. A cache hit returns the cached detail
// unchanged with zero network access; that is the point of the cache,
// repeated navigation within a playlist must not re-fetch.
type DetailResolver struct {
	client  CatalogClient
	details *cache.Details[*PlaylistDetail]
	songs   *cache.Songs[*Song]
	cfg     CacheConfig
	metrics Metrics
	logger  *zap.Logger

	group singleflight.Group
}

func NewDetailResolver(
	client CatalogClient,
	details *cache.Details[*PlaylistDetail],
	songs *cache.Songs[*Song],
	cfg CacheConfig,
	metrics Metrics,
	logger *zap.Logger,
) *DetailResolver {
	return &DetailResolver{
		client:  client,
		details: details,
		songs:   songs,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve returns the playlist's detail, loading it on first access.
// Concurrent misses for the same playlist are coalesced into a single
// network call. Remote failures surface as *CatalogLoadError; there is no
// automatic retry.
func (r *DetailResolver) Resolve(ctx context.Context, ref PlaylistRef) (*PlaylistDetail, error) {
	if detail, ok := r.details.Get(ref.ID); ok {
		r.metrics.CacheHit("detail")
		return detail, nil
	}
	r.metrics.CacheMiss("detail")

	v, err, _ := r.group.Do(strconv.FormatInt(ref.ID, 10), func() (interface{}, error) {
		// A coalesced waiter may arrive after the winner populated the cache.
		if detail, ok := r.details.Get(ref.ID); ok {
			return detail, nil
		}
		return r.load(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return v.(*PlaylistDetail), nil
}

// Rebuild bypasses and replaces the cached detail, dropping the playlist's
// cached songs with it. Used after like/unlike, where the remote ordering
// changed underneath us.
func (r *DetailResolver) Rebuild(ctx context.Context, ref PlaylistRef) (*PlaylistDetail, error) {
	v, err, _ := r.group.Do("rebuild:"+strconv.FormatInt(ref.ID, 10), func() (interface{}, error) {
		r.songs.EvictPlaylist(ref.ID)
		r.details.Remove(ref.ID)
		return r.load(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return v.(*PlaylistDetail), nil
}

func (r *DetailResolver) load(ctx context.Context, ref PlaylistRef) (*PlaylistDetail, error) {
	payload, err := r.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	detail := r.build(ref, payload)
	r.details.Put(ref.ID, detail)
	r.logger.Debug("playlist detail loaded",
		zap.Int64("playlist", ref.ID),
		zap.Int("tracks", len(detail.NormalOrder)))
	return detail, nil
}

// fetch dispatches to the source-specific loader for the playlist type.
func (r *DetailResolver) fetch(ctx context.Context, ref PlaylistRef) (*PlaylistPayload, error) {
	if ref.Type == PlaylistRecommend {
		tracks, err := r.client.RecommendSongs(ctx)
		if err != nil {
			return nil, err
		}
		// The daily feed has no playlist of its own; assemble one.
		payload := &PlaylistPayload{ID: ref.ID, Name: ref.Name}
		for _, t := range tracks {
			payload.TrackIDs = append(payload.TrackIDs, t.ID)
			payload.Tracks = append(payload.Tracks, t)
		}
		return payload, nil
	}
	return r.client.PlaylistDetail(ctx, ref.ID)
}

func (r *DetailResolver) build(ref PlaylistRef, payload *PlaylistPayload) *PlaylistDetail {
	order := payload.TrackIDs
	if len(order) == 0 && len(payload.Tracks) > 0 {
		order = lo.Map(payload.Tracks, func(t TrackMeta, _ int) int64 { return t.ID })
	}
	order = lo.Uniq(order)

	detail := &PlaylistDetail{
		ID:           ref.ID,
		Name:         ref.Name,
		Type:         ref.Type,
		NormalOrder:  order,
		ShuffleOrder: shuffle.Permute(order),
		Invalid:      cache.NewInvalidSet(len(order), r.cfg.FalsePositiveRate),
	}

	// Opportunistic caching: details that come with full track metadata
	// spare the resolver a batch fetch later. Sources that return bare id
	// lists leave the song cache entry empty.
	for _, t := range payload.Tracks {
		r.songs.Put(ref.ID, t.ID, songFromMeta(t))
	}

	return detail
}

func songFromMeta(t TrackMeta) *Song {
	return &Song{
		ID:                   t.ID,
		Name:                 t.Name,
		Artists:              t.Artists,
		DurationMs:           t.DurationMs,
		Valid:                true,
		MissingFromCatalog:   t.MissingFromCatalog,
		RequiresSubscription: t.RequiresSubscription,
		CoverURL:             ClipImage(t.CoverURL),
	}
}

// ClipImage appends the CDN crop parameter once.
func ClipImage(url string) string {
	if url == "" || strings.Contains(url, "?param=") {
		return url
	}
	return url + imageClipParam
}
