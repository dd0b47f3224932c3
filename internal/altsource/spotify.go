// Package altsource resolves playable URLs from a secondary provider for
// tracks the primary catalog cannot stream.
package altsource

import (
	"context"
	"fmt"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"cloudamp/internal/core"
	"cloudamp/pkg/fuzzy"
)

const maxCandidates = 10

// Client implements core.AlternateSource on top of the Spotify search API.
// Lookups are cached: a miss is as cacheable as a hit, since the provider's
// catalog changes far slower than a listening session.
type Client struct {
	cfg        core.AltSourceConfig
	api        *spotify.Client
	normalizer *fuzzy.Normalizer
	cache      *ccache.Cache[string]
	logger     *zap.Logger
}

func New(ctx context.Context, cfg core.AltSourceConfig, logger *zap.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("alternate source credentials are not configured")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	token, err := creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticating alternate source: %w", err)
	}

	httpClient := spotifyauth.New().Client(ctx, token)
	return &Client{
		cfg:        cfg,
		api:        spotify.New(httpClient),
		normalizer: fuzzy.NewNormalizer(),
		cache:      ccache.New(ccache.Configure[string]()),
		logger:     logger,
	}, nil
}

// LookupURL searches the provider for the named recording and returns a
// playable URL for the best match, or "" when nothing scores above the
// configured confidence floor.
func (c *Client) LookupURL(ctx context.Context, name, artists string, durationMs int64) (string, error) {
	key := fmt.Sprintf("%s|%s|%d", name, artists, durationMs)
	if item := c.cache.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	url, err := c.search(ctx, name, artists, durationMs)
	if err != nil {
		return "", err
	}

	c.cache.Set(key, url, c.cfg.LookupTTL)
	return url, nil
}

func (c *Client) search(ctx context.Context, name, artists string, durationMs int64) (string, error) {
	keyword := c.normalizer.SearchKeyword(name, artists)

	results, err := c.api.Search(ctx, keyword, spotify.SearchTypeTrack, spotify.Limit(maxCandidates))
	if err != nil {
		return "", fmt.Errorf("alternate source search: %w", err)
	}
	if results.Tracks == nil || len(results.Tracks.Tracks) == 0 {
		return "", nil
	}

	wantTitle := c.normalizer.NormalizeTitle(name)
	wantArtist := c.normalizer.NormalizeArtist(artists)
	wantDuration := time.Duration(durationMs) * time.Millisecond

	var bestURL string
	var bestScore float64
	for i := range results.Tracks.Tracks {
		candidate := &results.Tracks.Tracks[i]
		if candidate.PreviewURL == "" {
			continue
		}
		score := c.score(candidate, wantTitle, wantArtist, wantDuration)
		if score > bestScore {
			bestScore = score
			bestURL = candidate.PreviewURL
		}
	}

	if bestScore < c.cfg.MinScore {
		c.logger.Debug("no confident alternate match",
			zap.String("keyword", keyword),
			zap.Float64("best", bestScore))
		return "", nil
	}
	return bestURL, nil
}

// score weighs title similarity heaviest, then artist, then how close the
// candidate's duration is to the original recording's.
func (c *Client) score(candidate *spotify.FullTrack, wantTitle, wantArtist string, wantDuration time.Duration) float64 {
	gotTitle := c.normalizer.NormalizeTitle(candidate.Name)
	gotArtist := ""
	if len(candidate.Artists) > 0 {
		gotArtist = c.normalizer.NormalizeArtist(candidate.Artists[0].Name)
	}
	gotDuration := time.Duration(candidate.Duration) * time.Millisecond

	titleSim := c.normalizer.Similarity(wantTitle, gotTitle)
	artistSim := c.normalizer.Similarity(wantArtist, gotArtist)
	durationSim := c.normalizer.DurationTolerance(wantDuration, gotDuration)

	return 0.55*titleSim + 0.3*artistSim + 0.15*durationSim
}
