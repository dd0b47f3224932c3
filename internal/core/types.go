package core

import (
	"context"

	"cloudamp/internal/audio"
	"cloudamp/internal/cache"
)

// PlaylistType tells the detail resolver which source feed a playlist is
// built from.
type PlaylistType int

const (
	// PlaylistTop is the pinned top-chart playlist shown to everyone.
	PlaylistTop PlaylistType = iota
	// PlaylistNewSongs is the editorial new-songs feed.
	PlaylistNewSongs
	// PlaylistRecommend is the daily recommended-songs feed, assembled
	// client-side into a synthetic playlist.
	PlaylistRecommend
	// PlaylistRecommendResource is a recommended playlist from the catalog.
	PlaylistRecommendResource
	// PlaylistFavorite is the user's liked-songs playlist.
	PlaylistFavorite
	// PlaylistUserCreated is any other playlist owned or subscribed by the user.
	PlaylistUserCreated
)

// PlayMode selects how the navigator orders tracks.
type PlayMode int

const (
	PlayModeNormal PlayMode = iota
	PlayModeShuffle
	PlayModeRepeatOne
)

func (m PlayMode) String() string {
	switch m {
	case PlayModeShuffle:
		return "shuffle"
	case PlayModeRepeatOne:
		return "repeat-one"
	default:
		return "normal"
	}
}

// Cycle returns the next mode in the fixed Normal→Shuffle→RepeatOne loop.
func (m PlayMode) Cycle() PlayMode {
	switch m {
	case PlayModeNormal:
		return PlayModeShuffle
	case PlayModeShuffle:
		return PlayModeRepeatOne
	default:
		return PlayModeNormal
	}
}

// ParsePlayMode restores a mode from its persisted string form.
func ParsePlayMode(s string) PlayMode {
	switch s {
	case "shuffle":
		return PlayModeShuffle
	case "repeat-one":
		return PlayModeRepeatOne
	default:
		return PlayModeNormal
	}
}

// Direction is a navigation direction through the active ordering.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// PlaylistRef identifies one playlist in the catalog. Immutable once
// loaded; identity is ID.
type PlaylistRef struct {
	ID     int64
	Name   string
	PicURL string
	Type   PlaylistType
}

// PlaylistDetail is the resolved, cached track ordering for one playlist.
// ShuffleOrder is a permutation of NormalOrder computed once at build time
// and replaced, never patched, when the detail is rebuilt.
type PlaylistDetail struct {
	ID           int64
	Name         string
	Type         PlaylistType
	NormalOrder  []int64
	ShuffleOrder []int64
	Invalid      *cache.InvalidSet
}

// Order returns the active ordering for the given play mode.
func (d *PlaylistDetail) Order(mode PlayMode) []int64 {
	if mode == PlayModeShuffle {
		return d.ShuffleOrder
	}
	return d.NormalOrder
}

// Remaining counts ids that have not yet failed resolution.
func (d *PlaylistDetail) Remaining() int {
	return len(d.NormalOrder) - d.Invalid.Size()
}

// Exhausted reports whether the playlist has no playable candidates left.
// The boundary is a raw count comparison: a 1-track playlist whose track
// is invalid is exhausted.
func (d *PlaylistDetail) Exhausted() bool {
	return d.Remaining() < 1
}

// Song is one resolved track. Valid=false means resolution was attempted
// and failed; that is terminal for the session until the playlist detail
// is rebuilt.
type Song struct {
	ID                   int64
	Name                 string
	Artists              string
	DurationMs           int64
	Valid                bool
	MissingFromCatalog   bool
	RequiresSubscription bool
	PlayURL              string
	CoverURL             string
}

// SessionState is the single mutable session snapshot, owned by the
// Orchestrator. Other components read it and propose changes through the
// Orchestrator's apply-and-persist path.
type SessionState struct {
	UserID       int64
	IsSubscriber bool
	IsPlaying    bool
	Volume       float64
	PlayMode     PlayMode
	Direction    Direction
	Playlists    []PlaylistRef
	Selected     *PlaylistDetail
	Song         *Song
}

// Snapshot is the persisted subset of SessionState. Playback progress,
// audio/error state and the playing flag are deliberately excluded.
type Snapshot struct {
	Volume     float64
	PlayMode   PlayMode
	PlaylistID int64
	SongID     int64
}

// AudioPlaybackState mirrors the output device into observable form. It is
// rebuilt on every device event, broadcast, and never persisted.
type AudioPlaybackState struct {
	LoadPercentage float64
	DurationSec    float64
	CurrentTimeSec float64
	Phase          Phase
}

// Phase is the playback state machine phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhasePlaying
	PhasePaused
	PhaseEnded
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseEnded:
		return "ended"
	case PhaseError:
		return "error"
	default:
		return "idle"
	}
}

// TrackMeta is track metadata as returned by the remote catalog.
type TrackMeta struct {
	ID                   int64
	Name                 string
	Artists              string
	DurationMs           int64
	CoverURL             string
	MissingFromCatalog   bool
	RequiresSubscription bool
}

// SongURL pairs a track id with its playable URL; an empty URL means the
// primary source has nothing for this id.
type SongURL struct {
	ID  int64
	URL string
}

// PlaylistPayload is the raw detail of one playlist from the catalog.
// Tracks may be empty when the source only returns the id list.
type PlaylistPayload struct {
	ID       int64
	Name     string
	CoverURL string
	TrackIDs []int64
	Tracks   []TrackMeta
}

// UserProfile describes the logged-in account.
type UserProfile struct {
	UserID       int64
	Nickname     string
	IsSubscriber bool
}

// CatalogClient is the remote catalog/streaming collaborator. Every call
// decodes the remote result envelope: implementations return
// ErrSessionExpired for code 301 and a *CatalogLoadError or *AuthError
// carrying the remote message otherwise.
type CatalogClient interface {
	RecommendResource(ctx context.Context) ([]PlaylistRef, error)
	UserPlaylists(ctx context.Context, userID int64) ([]PlaylistRef, error)
	PlaylistDetail(ctx context.Context, playlistID int64) (*PlaylistPayload, error)
	RecommendSongs(ctx context.Context) ([]TrackMeta, error)
	SongDetail(ctx context.Context, ids []int64) ([]TrackMeta, error)
	SongURLs(ctx context.Context, ids []int64) ([]SongURL, error)
	LikeSong(ctx context.Context, playlistID, songID int64, like bool) error
	CellphoneLogin(ctx context.Context, phone, password string) (*UserProfile, error)
	SentCaptcha(ctx context.Context, phone string) error
	LoginRefresh(ctx context.Context) error
	User(ctx context.Context) (*UserProfile, error)
	Logout(ctx context.Context) error
}

// AlternateSource is the secondary provider consulted when a track is
// region-restricted, subscription-gated or delisted. An empty URL with a
// nil error means the source has no match.
type AlternateSource interface {
	LookupURL(ctx context.Context, name, artists string, durationMs int64) (string, error)
}

// SnapshotStore is the persistent storage collaborator used for session
// resumption.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, bool, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// SongOp is the operation attached to a changeSongsMap notification.
type SongOp string

const (
	SongOpRemove  SongOp = "remove"
	SongOpInvalid SongOp = "invalid"
)

// SyncPayload is pushed to the UI after an automatic advance so the
// display catches up with state it did not initiate.
type SyncPayload struct {
	PlaylistID int64
	Song       *Song
	IsPlaying  bool
}

// Notifier is the push channel toward the user-interface process.
type Notifier interface {
	AudioState(state AudioPlaybackState)
	Sync(payload SyncPayload)
	SongMarked(songID int64, op SongOp)
	Notice(message string)
	Error(message string)
}

// Device is the audio output collaborator as seen by the orchestrator.
// internal/audio provides the production implementation.
type Device = audio.Device
