package core

import (
	"context"
	"errors"
	"strconv"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"cloudamp/internal/cache"
)

// songDetailChunk is the protocol-imposed ceiling on ids per metadata call.
const songDetailChunk = 250

// SongResolver turns a bare track id into a playable Song, trying the
// primary source and then the alternate source, and transparently skipping
// to the next candidate when a playlist has scattered region-locked or
// delisted tracks.
type SongResolver struct {
	client   CatalogClient
	alt      AlternateSource
	songs    *cache.Songs[*Song]
	notifier Notifier
	metrics  Metrics
	logger   *zap.Logger

	group singleflight.Group
}

func NewSongResolver(
	client CatalogClient,
	alt AlternateSource,
	songs *cache.Songs[*Song],
	notifier Notifier,
	metrics Metrics,
	logger *zap.Logger,
) *SongResolver {
	return &SongResolver{
		client:   client,
		alt:      alt,
		songs:    songs,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// Resolve resolves songID within detail. With allowRetry, a failed id is
// marked invalid and the chain continues to the navigator's next candidate
// in the same direction, bounded by the tried set and the playlist's
// shrinking pool of un-tried ids; an id that already failed this session
// is skipped the same way without refetching. Without allowRetry, a
// directly requested id that already failed fails fast with
// ErrUnplayableSong.
func (r *SongResolver) Resolve(
	ctx context.Context,
	detail *PlaylistDetail,
	songID int64,
	mode PlayMode,
	dir Direction,
	isSubscriber bool,
	allowRetry bool,
) (*Song, error) {
	if song, ok := r.songs.Get(detail.ID, songID); ok && !song.Valid && !allowRetry {
		return nil, ErrUnplayableSong
	}

	tried := make(map[int64]struct{})
	id := songID

	for {
		if _, seen := tried[id]; seen {
			// Wrapped all the way around without finding a playable id.
			return nil, ErrNoPlayableSource
		}
		tried[id] = struct{}{}

		song, err := r.lookup(ctx, detail, id)
		if err != nil {
			return nil, err
		}

		if song.Valid {
			resolved, err := r.resolveURL(ctx, detail, song, isSubscriber)
			if err != nil {
				return nil, err
			}
			if resolved {
				r.metrics.SkipChain(len(tried) - 1)
				return song, nil
			}

			song.Valid = false
			detail.Invalid.Add(id)
			r.metrics.Resolution("invalid")
			r.notifier.SongMarked(id, SongOpInvalid)
			r.logger.Info("song marked invalid",
				zap.Int64("playlist", detail.ID),
				zap.Int64("song", id))
		}

		if !allowRetry || detail.Exhausted() {
			return nil, ErrNoPlayableSource
		}
		id = NextID(detail, id, mode, dir)
	}
}

// resolveURL tries the permitted sources for one song. It returns false
// when every permitted source came up empty; hard failures (session
// expiry) propagate as errors.
func (r *SongResolver) resolveURL(ctx context.Context, detail *PlaylistDetail, song *Song, isSubscriber bool) (bool, error) {
	if song.MissingFromCatalog || (song.RequiresSubscription && !isSubscriber) {
		if r.alt == nil {
			return false, nil
		}
		url, err := r.alt.LookupURL(ctx, song.Name, song.Artists, song.DurationMs)
		if err != nil {
			if errors.Is(err, ErrSessionExpired) {
				return false, err
			}
			r.logger.Warn("alternate source lookup failed",
				zap.Int64("song", song.ID), zap.Error(err))
			return false, nil
		}
		if url == "" {
			return false, nil
		}
		song.PlayURL = url
		r.metrics.Resolution("alternate")
		return true, nil
	}

	urls, err := r.client.SongURLs(ctx, []int64{song.ID})
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return false, err
		}
		r.logger.Warn("primary source lookup failed",
			zap.Int64("song", song.ID), zap.Error(err))
		return false, nil
	}
	if len(urls) == 0 || urls[0].URL == "" {
		return false, nil
	}
	song.PlayURL = urls[0].URL
	r.metrics.Resolution("primary")
	return true, nil
}

// lookup returns the cached song for id, batch-fetching the playlist's
// uncached metadata first. Concurrent misses for the same playlist are
// coalesced; the fetch is chunked at the protocol ceiling.
func (r *SongResolver) lookup(ctx context.Context, detail *PlaylistDetail, id int64) (*Song, error) {
	if song, ok := r.songs.Get(detail.ID, id); ok {
		return song, nil
	}
	r.metrics.CacheMiss("song")

	_, err, _ := r.group.Do(strconv.FormatInt(detail.ID, 10), func() (interface{}, error) {
		missing := r.songs.Missing(detail.ID, detail.NormalOrder)
		for _, chunk := range lo.Chunk(missing, songDetailChunk) {
			metas, err := r.client.SongDetail(ctx, chunk)
			if err != nil {
				return nil, err
			}
			for _, m := range metas {
				r.songs.Put(detail.ID, m.ID, songFromMeta(m))
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if song, ok := r.songs.Get(detail.ID, id); ok {
		return song, nil
	}

	// The catalog returned nothing for this id; only the alternate source
	// can still save it.
	song := &Song{ID: id, Valid: true, MissingFromCatalog: true}
	r.songs.Put(detail.ID, id, song)
	return song, nil
}
