package netease

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"cloudamp/internal/core"
)

// Client talks to the cloud music HTTP gateway and implements
// core.CatalogClient. The session cookie lives in the client's jar; a 301
// result code from any endpoint surfaces as core.ErrSessionExpired.
type Client struct {
	cfg    core.APIConfig
	http   *http.Client
	logger *zap.Logger
}

func New(cfg core.APIConfig, logger *zap.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		logger: logger,
	}, nil
}

func (c *Client) RecommendResource(ctx context.Context) ([]core.PlaylistRef, error) {
	var resp personalizedResponse
	if err := c.get(ctx, "/personalized", nil, &resp); err != nil {
		return nil, err
	}
	if err := c.check("recommend resource", resp.envelope); err != nil {
		return nil, err
	}

	refs := make([]core.PlaylistRef, 0, len(resp.Result))
	for _, item := range resp.Result {
		refs = append(refs, core.PlaylistRef{
			ID:     item.ID,
			Name:   item.Name,
			PicURL: core.ClipImage(item.PicURL),
			Type:   core.PlaylistRecommendResource,
		})
	}
	return refs, nil
}

func (c *Client) UserPlaylists(ctx context.Context, userID int64) ([]core.PlaylistRef, error) {
	var resp userPlaylistResponse
	query := url.Values{"uid": {strconv.FormatInt(userID, 10)}}
	if err := c.get(ctx, "/user/playlist", query, &resp); err != nil {
		return nil, err
	}
	if err := c.check("user playlists", resp.envelope); err != nil {
		return nil, err
	}

	refs := make([]core.PlaylistRef, 0, len(resp.Playlist))
	for _, item := range resp.Playlist {
		refs = append(refs, core.PlaylistRef{
			ID:     item.ID,
			Name:   item.Name,
			PicURL: core.ClipImage(item.CoverImgURL),
			Type:   core.PlaylistUserCreated,
		})
	}
	return refs, nil
}

func (c *Client) PlaylistDetail(ctx context.Context, playlistID int64) (*core.PlaylistPayload, error) {
	var resp playlistDetailResponse
	query := url.Values{"id": {strconv.FormatInt(playlistID, 10)}}
	if err := c.get(ctx, "/playlist/detail", query, &resp); err != nil {
		return nil, err
	}
	if err := c.check("playlist detail", resp.envelope); err != nil {
		return nil, err
	}

	payload := &core.PlaylistPayload{
		ID:       resp.Playlist.ID,
		Name:     resp.Playlist.Name,
		CoverURL: core.ClipImage(resp.Playlist.CoverImgURL),
		TrackIDs: lo.Map(resp.Playlist.TrackIDs, func(t trackID, _ int) int64 { return t.ID }),
		Tracks:   convertTracks(resp.Playlist.Tracks, resp.Privileges),
	}
	return payload, nil
}

func (c *Client) RecommendSongs(ctx context.Context) ([]core.TrackMeta, error) {
	var resp recommendSongsResponse
	if err := c.get(ctx, "/recommend/songs", nil, &resp); err != nil {
		return nil, err
	}
	if err := c.check("recommend songs", resp.envelope); err != nil {
		return nil, err
	}
	return convertTracks(resp.Data.DailySongs, resp.Data.Privileges), nil
}

func (c *Client) SongDetail(ctx context.Context, ids []int64) ([]core.TrackMeta, error) {
	var resp songDetailResponse
	query := url.Values{"ids": {joinIDs(ids)}}
	if err := c.get(ctx, "/song/detail", query, &resp); err != nil {
		return nil, err
	}
	if err := c.check("song detail", resp.envelope); err != nil {
		return nil, err
	}
	return convertTracks(resp.Songs, resp.Privileges), nil
}

func (c *Client) SongURLs(ctx context.Context, ids []int64) ([]core.SongURL, error) {
	var resp songURLResponse
	query := url.Values{"id": {joinIDs(ids)}}
	if err := c.get(ctx, "/song/url", query, &resp); err != nil {
		return nil, err
	}
	if err := c.check("song url", resp.envelope); err != nil {
		return nil, err
	}

	urls := make([]core.SongURL, 0, len(resp.Data))
	for _, item := range resp.Data {
		urls = append(urls, core.SongURL{ID: item.ID, URL: item.URL})
	}
	return urls, nil
}

func (c *Client) LikeSong(ctx context.Context, playlistID, songID int64, like bool) error {
	var resp envelope
	query := url.Values{
		"id":   {strconv.FormatInt(songID, 10)},
		"like": {strconv.FormatBool(like)},
	}
	if err := c.get(ctx, "/like", query, &resp); err != nil {
		return err
	}
	return c.check("like song", resp)
}

func (c *Client) CellphoneLogin(ctx context.Context, phone, password string) (*core.UserProfile, error) {
	var resp loginResponse
	query := url.Values{"phone": {phone}}
	// Numeric secrets are captcha codes, anything else a password.
	if isDigits(password) {
		query.Set("captcha", password)
	} else {
		query.Set("password", password)
	}
	if err := c.get(ctx, "/login/cellphone", query, &resp); err != nil {
		return nil, err
	}
	if resp.Code != http.StatusOK {
		return nil, &core.AuthError{Message: resp.text()}
	}
	if resp.Profile == nil {
		return nil, &core.AuthError{Message: "login succeeded without a profile"}
	}
	return convertProfile(resp.Profile), nil
}

func (c *Client) SentCaptcha(ctx context.Context, phone string) error {
	var resp envelope
	query := url.Values{"phone": {phone}}
	if err := c.get(ctx, "/captcha/sent", query, &resp); err != nil {
		return err
	}
	if resp.Code != http.StatusOK {
		return &core.AuthError{Message: resp.text()}
	}
	return nil
}

func (c *Client) LoginRefresh(ctx context.Context) error {
	var resp envelope
	if err := c.get(ctx, "/login/refresh", nil, &resp); err != nil {
		return err
	}
	return c.check("login refresh", resp)
}

func (c *Client) User(ctx context.Context) (*core.UserProfile, error) {
	var resp loginStatusResponse
	if err := c.get(ctx, "/login/status", nil, &resp); err != nil {
		return nil, err
	}
	if err := c.check("login status", resp.envelope); err != nil {
		return nil, err
	}
	if resp.Data.Profile == nil {
		return nil, core.ErrSessionExpired
	}
	return convertProfile(resp.Data.Profile), nil
}

func (c *Client) Logout(ctx context.Context) error {
	var resp envelope
	if err := c.get(ctx, "/logout", nil, &resp); err != nil {
		return err
	}
	return c.check("logout", resp)
}

// get performs one GET with transient transport retries. The result
// envelope is decoded but not judged here; domain codes are never retried.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Debug("transport error, retrying", zap.String("path", path), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("gateway returned %s", resp.Status)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding %s response: %w", path, err))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxTransportRetries)),
		ctx,
	)
	return backoff.Retry(operation, policy)
}

// check maps the result envelope onto the error taxonomy.
func (c *Client) check(op string, e envelope) error {
	switch e.Code {
	case http.StatusOK, 0:
		return nil
	case http.StatusMovedPermanently:
		return core.ErrSessionExpired
	default:
		return &core.CatalogLoadError{Op: op, Reason: fmt.Sprintf("code %d: %s", e.Code, e.text())}
	}
}

func convertTracks(tracks []track, privileges []privilege) []core.TrackMeta {
	flags := lo.SliceToMap(privileges, func(p privilege) (int64, privilege) { return p.ID, p })

	metas := make([]core.TrackMeta, 0, len(tracks))
	for _, t := range tracks {
		names := lo.Map(t.Artists, func(a artist, _ int) string { return a.Name })
		meta := core.TrackMeta{
			ID:         t.ID,
			Name:       t.Name,
			Artists:    strings.Join(names, "/"),
			DurationMs: t.DurationMs,
			CoverURL:   core.ClipImage(t.Album.PicURL),
		}
		if p, ok := flags[t.ID]; ok {
			meta.MissingFromCatalog = p.St < 0
			meta.RequiresSubscription = p.Fee == 1
		}
		metas = append(metas, meta)
	}
	return metas
}

func convertProfile(p *profile) *core.UserProfile {
	return &core.UserProfile{
		UserID:       p.UserID,
		Nickname:     p.Nickname,
		IsSubscriber: p.VipType > 0,
	}
}

func joinIDs(ids []int64) string {
	parts := lo.Map(ids, func(id int64, _ int) string { return strconv.FormatInt(id, 10) })
	return strings.Join(parts, ",")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
