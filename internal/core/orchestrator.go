package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"cloudamp/internal/audio"
	"cloudamp/internal/cache"
	"cloudamp/internal/flood"
	"cloudamp/internal/i18n"
)

// errSuperseded marks a selection that lost to a newer navigation intent.
// It never leaves the orchestrator.
var errSuperseded = errors.New("selection superseded")

// Orchestrator owns the single SessionState instance and coordinates
// bootstrap, login/logout, navigation, playback control and session
// persistence. All session mutation funnels through here.
type Orchestrator struct {
	cfg       *Config
	client    CatalogClient
	store     SnapshotStore
	notifier  Notifier
	device    audio.Device
	machine   *Machine
	details   *DetailResolver
	resolver  *SongResolver
	catalog   *CatalogLoader
	localizer *i18n.Localizer
	throttle  *flood.Throttle
	logger    *zap.Logger

	mutex sync.Mutex
	state *SessionState
	// epoch guards navigation intents: a resolution result is applied only
	// while its epoch is still current, so a forced selection silently
	// discards whatever a superseded skip chain eventually produces.
	epoch uint64
	// forced records whether the current selection was user-initiated;
	// device errors on forced selections are reported, not skipped over.
	forced    bool
	resetting bool
}

func NewOrchestrator(
	cfg *Config,
	client CatalogClient,
	alt AlternateSource,
	store SnapshotStore,
	notifier Notifier,
	device audio.Device,
	localizer *i18n.Localizer,
	metrics Metrics,
	logger *zap.Logger,
) *Orchestrator {
	detailCache := cache.NewDetails[*PlaylistDetail](cfg.Cache.PlaylistCapacity)
	songCache := cache.NewSongs[*Song]()

	return &Orchestrator{
		cfg:       cfg,
		client:    client,
		store:     store,
		notifier:  notifier,
		device:    device,
		machine:   NewMachine(),
		details:   NewDetailResolver(client, detailCache, songCache, cfg.Cache, metrics, logger.Named("detail")),
		resolver:  NewSongResolver(client, alt, songCache, notifier, metrics, logger.Named("resolver")),
		catalog:   NewCatalogLoader(client, detailCache, songCache, localizer, metrics, logger.Named("catalog")),
		localizer: localizer,
		throttle:  flood.New(cfg.Player.AudioStatePerSecond),
		logger:    logger,
		state: &SessionState{
			Volume:    cfg.Player.Volume,
			PlayMode:  PlayModeNormal,
			Direction: Forward,
		},
	}
}

// State returns a copy of the current session snapshot.
func (o *Orchestrator) State() SessionState {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return *o.state
}

// Bootstrap runs the fixed startup sequence: refresh authentication, load
// the persisted session snapshot, reload the catalog.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	if err := o.client.LoginRefresh(ctx); err != nil {
		if errors.Is(err, ErrSessionExpired) {
			o.mutex.Lock()
			o.state.UserID = 0
			o.state.IsSubscriber = false
			o.mutex.Unlock()
		} else {
			o.logger.Warn("login refresh failed", zap.Error(err))
		}
	} else if profile, err := o.client.User(ctx); err == nil && profile != nil {
		o.mutex.Lock()
		o.state.UserID = profile.UserID
		o.state.IsSubscriber = profile.IsSubscriber
		o.mutex.Unlock()
	}

	snap, ok, err := o.store.Load(ctx)
	if err != nil {
		o.logger.Warn("failed to load session snapshot", zap.Error(err))
	}
	if ok {
		o.mutex.Lock()
		o.state.Volume = clampVolume(snap.Volume)
		o.state.PlayMode = snap.PlayMode
		o.mutex.Unlock()
		o.device.SetVolume(clampVolume(snap.Volume))
	} else {
		snap = nil
	}

	return o.reload(ctx, snap)
}

// reload recomputes the catalog, evicts caches for playlists that
// disappeared, and re-pins the selection: the persisted playlist and song
// when still valid, the first available otherwise.
func (o *Orchestrator) reload(ctx context.Context, snap *Snapshot) error {
	o.mutex.Lock()
	userID := o.state.UserID
	old := o.state.Playlists
	o.mutex.Unlock()

	fresh, err := o.catalog.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return o.resetSession(ctx)
		}
		return err
	}
	o.catalog.Reconcile(old, fresh)

	o.mutex.Lock()
	o.state.Playlists = fresh
	mode := o.state.PlayMode
	o.mutex.Unlock()

	ref := fresh[0]
	if snap != nil {
		for _, cand := range fresh {
			if cand.ID == snap.PlaylistID {
				ref = cand
				break
			}
		}
	}

	detail, err := o.details.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return o.resetSession(ctx)
		}
		return err
	}

	order := detail.Order(mode)
	if len(order) == 0 {
		o.mutex.Lock()
		o.state.Selected = detail
		o.state.Song = nil
		o.persistLocked(ctx)
		o.mutex.Unlock()
		return nil
	}

	songID := order[0]
	if snap != nil && lo.Contains(detail.NormalOrder, snap.SongID) {
		songID = snap.SongID
	}

	epoch := o.beginIntent(false)
	_, err = o.selectAndBind(ctx, epoch, detail, songID, Forward, true)
	if errors.Is(err, errSuperseded) {
		return nil
	}
	return err
}

// PlayNext advances one track forward under the current play mode.
func (o *Orchestrator) PlayNext(ctx context.Context) error {
	return o.step(ctx, Forward)
}

// PlayPrev advances one track backward under the current play mode.
func (o *Orchestrator) PlayPrev(ctx context.Context) error {
	return o.step(ctx, Backward)
}

func (o *Orchestrator) step(ctx context.Context, dir Direction) error {
	o.mutex.Lock()
	detail := o.state.Selected
	var current int64
	if o.state.Song != nil {
		current = o.state.Song.ID
	}
	mode := o.state.PlayMode
	o.state.Direction = dir
	o.mutex.Unlock()

	if detail == nil {
		return o.errNoSong()
	}

	// An explicit next/prev steps through the plain ordering even in
	// repeat-one; only automatic advances replay the current track.
	if mode == PlayModeRepeatOne {
		mode = PlayModeNormal
	}

	candidate := NextID(detail, current, mode, dir)
	epoch := o.beginIntent(true)
	_, err := o.selectAndBind(ctx, epoch, detail, candidate, dir, true)
	if errors.Is(err, errSuperseded) {
		return nil
	}
	return err
}

// PlaySong is a forced selection of one specific track in the selected
// playlist. It takes priority over any in-flight automatic skip chain and
// surfaces resolution failures to the caller instead of skipping on.
func (o *Orchestrator) PlaySong(ctx context.Context, songID int64) error {
	o.mutex.Lock()
	detail := o.state.Selected
	o.mutex.Unlock()
	if detail == nil {
		return o.errNoSong()
	}

	epoch := o.beginIntent(true)
	_, err := o.selectAndBind(ctx, epoch, detail, songID, Forward, false)
	if errors.Is(err, errSuperseded) {
		return nil
	}
	return err
}

// ChangePlaylist selects a playlist from the catalog and starts at the
// first track of the active ordering.
func (o *Orchestrator) ChangePlaylist(ctx context.Context, playlistID int64) error {
	o.mutex.Lock()
	var ref *PlaylistRef
	for i := range o.state.Playlists {
		if o.state.Playlists[i].ID == playlistID {
			ref = &o.state.Playlists[i]
			break
		}
	}
	mode := o.state.PlayMode
	o.mutex.Unlock()

	if ref == nil {
		return fmt.Errorf("playlist %d is not in the catalog", playlistID)
	}

	detail, err := o.details.Resolve(ctx, *ref)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return o.resetSession(ctx)
		}
		return err
	}

	order := detail.Order(mode)
	if len(order) == 0 {
		o.mutex.Lock()
		o.state.Selected = detail
		o.state.Song = nil
		o.persistLocked(ctx)
		o.mutex.Unlock()
		return nil
	}

	epoch := o.beginIntent(true)
	_, err = o.selectAndBind(ctx, epoch, detail, order[0], Forward, true)
	if errors.Is(err, errSuperseded) {
		return nil
	}
	return err
}

// TogglePlaying flips play/pause on the bound source.
func (o *Orchestrator) TogglePlaying() error {
	o.mutex.Lock()
	if o.state.Song == nil {
		o.mutex.Unlock()
		return o.errNoSong()
	}
	o.state.IsPlaying = !o.state.IsPlaying
	playing := o.state.IsPlaying
	st := o.machine.SetPlaying(playing)
	o.mutex.Unlock()

	if playing {
		o.device.Play()
	} else {
		o.device.Pause()
	}
	o.notifier.AudioState(st)
	return nil
}

// SetVolume clamps and applies the volume, persisting it.
func (o *Orchestrator) SetVolume(ctx context.Context, v float64) {
	v = clampVolume(v)
	o.mutex.Lock()
	o.state.Volume = v
	o.persistLocked(ctx)
	o.mutex.Unlock()
	o.device.SetVolume(v)
}

// Seek writes the position to the device. Seeking while paused resumes
// playback; seeking while idle is an implicit play command.
func (o *Orchestrator) Seek(ctx context.Context, sec float64) error {
	o.mutex.Lock()
	if o.state.Song == nil {
		o.mutex.Unlock()
		return o.errNoSong()
	}
	st := o.machine.NoteSeek(sec)
	paused := !o.state.IsPlaying
	o.mutex.Unlock()

	o.device.SeekTo(sec)
	o.notifier.AudioState(st)

	if paused {
		return o.TogglePlaying()
	}
	return nil
}

// CyclePlayMode advances Normal→Shuffle→RepeatOne→Normal and persists the
// result.
func (o *Orchestrator) CyclePlayMode(ctx context.Context) PlayMode {
	o.mutex.Lock()
	o.state.PlayMode = o.state.PlayMode.Cycle()
	mode := o.state.PlayMode
	o.persistLocked(ctx)
	o.mutex.Unlock()
	return mode
}

// LikeSong adds the current song to the liked-songs playlist and rebuilds
// that playlist's detail, bypassing the cache.
func (o *Orchestrator) LikeSong(ctx context.Context) error {
	return o.likeSong(ctx, true)
}

// UnlikeSong removes the current song from the liked-songs playlist.
func (o *Orchestrator) UnlikeSong(ctx context.Context) error {
	return o.likeSong(ctx, false)
}

func (o *Orchestrator) likeSong(ctx context.Context, like bool) error {
	o.mutex.Lock()
	song := o.state.Song
	var fav *PlaylistRef
	for i := range o.state.Playlists {
		if o.state.Playlists[i].Type == PlaylistFavorite {
			fav = &o.state.Playlists[i]
			break
		}
	}
	selected := o.state.Selected
	o.mutex.Unlock()

	if song == nil {
		return o.errNoSong()
	}
	if fav == nil {
		return errors.New(o.localizer.T(i18n.MsgLikeFailed))
	}

	if err := o.client.LikeSong(ctx, fav.ID, song.ID, like); err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return o.resetSession(ctx)
		}
		return err
	}

	detail, err := o.details.Rebuild(ctx, *fav)
	if err != nil {
		return err
	}
	if selected != nil && selected.ID == fav.ID {
		o.mutex.Lock()
		o.state.Selected = detail
		o.mutex.Unlock()
	}
	if like {
		o.notifier.Notice(o.localizer.T(i18n.MsgLikeSuccess))
	} else {
		o.notifier.SongMarked(song.ID, SongOpRemove)
		o.notifier.Notice(o.localizer.T(i18n.MsgUnlikeSuccess))
	}
	return nil
}

// Login authenticates by cellphone and reloads the catalog for the new
// account. Remote auth failures surface verbatim.
func (o *Orchestrator) Login(ctx context.Context, phone, password string) error {
	profile, err := o.client.CellphoneLogin(ctx, phone, password)
	if err != nil {
		return err
	}

	o.mutex.Lock()
	o.state.UserID = profile.UserID
	o.state.IsSubscriber = profile.IsSubscriber
	o.mutex.Unlock()

	return o.reload(ctx, nil)
}

// SendCaptcha requests a login captcha for the phone number.
func (o *Orchestrator) SendCaptcha(ctx context.Context, phone string) error {
	return o.client.SentCaptcha(ctx, phone)
}

// Logout pauses the device, ends the remote session and resets to an
// anonymous catalog.
func (o *Orchestrator) Logout(ctx context.Context) error {
	o.device.Pause()
	if err := o.client.Logout(ctx); err != nil && !errors.Is(err, ErrSessionExpired) {
		o.logger.Warn("remote logout failed", zap.Error(err))
	}
	return o.resetSession(ctx)
}

// resetSession drops the authenticated session and every cache tied to its
// catalog, then reloads anonymously. Session expiry during the anonymous
// reload is not re-handled; the guard stops a reset loop.
func (o *Orchestrator) resetSession(ctx context.Context) error {
	o.mutex.Lock()
	if o.resetting {
		o.mutex.Unlock()
		return ErrSessionExpired
	}
	o.resetting = true
	o.state.UserID = 0
	o.state.IsSubscriber = false
	o.state.IsPlaying = false
	old := o.state.Playlists
	o.state.Playlists = nil
	o.state.Selected = nil
	o.state.Song = nil
	o.machine.Reset()
	o.mutex.Unlock()

	defer func() {
		o.mutex.Lock()
		o.resetting = false
		o.mutex.Unlock()
	}()

	o.catalog.Reconcile(old, nil)
	return o.reload(ctx, nil)
}

// Run consumes device events until the context ends or the device closes.
func (o *Orchestrator) Run(ctx context.Context) error {
	events := o.device.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.handleDeviceEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) handleDeviceEvent(ctx context.Context, ev audio.Event) {
	o.mutex.Lock()
	st, action := o.machine.Apply(ev)
	forced := o.forced
	o.mutex.Unlock()

	// Per-tick progress events are throttled; everything else goes out.
	observational := ev.Kind == audio.EventProgress || ev.Kind == audio.EventTimeUpdate
	if !observational || o.throttle.Allow() {
		o.notifier.AudioState(st)
	}

	switch action {
	case ActionAdvance:
		go o.autoAdvance(ctx)
	case ActionRecover:
		if forced {
			o.notifier.Error(o.localizer.T(i18n.MsgCannotPlayTrack))
			return
		}
		o.logger.Warn("device error, advancing", zap.Error(ev.Err))
		go o.autoAdvance(ctx)
	case ActionNone:
	}
}

// autoAdvance plays the next track after a natural end or a recoverable
// device error. Its result is discarded when a user navigation supersedes
// it mid-flight.
func (o *Orchestrator) autoAdvance(ctx context.Context) {
	o.mutex.Lock()
	detail := o.state.Selected
	song := o.state.Song
	mode := o.state.PlayMode
	dir := o.state.Direction
	o.mutex.Unlock()

	if detail == nil || song == nil {
		return
	}

	if mode == PlayModeRepeatOne {
		epoch := o.beginIntent(false)
		if err := o.apply(ctx, epoch, detail, song); err != nil && !errors.Is(err, errSuperseded) {
			o.logger.Warn("failed to replay current track", zap.Error(err))
		}
		return
	}

	candidate := NextID(detail, song.ID, mode, dir)
	epoch := o.beginIntent(false)
	next, err := o.selectAndBind(ctx, epoch, detail, candidate, dir, true)
	if err != nil {
		if errors.Is(err, errSuperseded) {
			return
		}
		if errors.Is(err, ErrSessionExpired) {
			_ = o.resetSession(ctx)
			return
		}
		if o.stillCurrent(epoch) {
			o.notifier.Error(o.localizer.T(i18n.MsgPlaylistExhausted))
		}
		return
	}

	o.mutex.Lock()
	playing := o.state.IsPlaying
	o.mutex.Unlock()
	o.notifier.Sync(SyncPayload{PlaylistID: detail.ID, Song: next, IsPlaying: playing})
}

// selectAndBind resolves a candidate and, if the intent is still current,
// makes it the selected song and rebinds the device.
func (o *Orchestrator) selectAndBind(
	ctx context.Context,
	epoch uint64,
	detail *PlaylistDetail,
	songID int64,
	dir Direction,
	allowRetry bool,
) (*Song, error) {
	o.mutex.Lock()
	mode := o.state.PlayMode
	isSubscriber := o.state.IsSubscriber
	o.mutex.Unlock()

	song, err := o.resolver.Resolve(ctx, detail, songID, mode, dir, isSubscriber, allowRetry)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil, o.resetSession(ctx)
		}
		return nil, err
	}
	if err := o.apply(ctx, epoch, detail, song); err != nil {
		return nil, err
	}
	return song, nil
}

// apply commits a resolved selection, still guarded by the epoch: a stale
// chain's result is dropped here without side effects.
func (o *Orchestrator) apply(ctx context.Context, epoch uint64, detail *PlaylistDetail, song *Song) error {
	o.mutex.Lock()
	if epoch != o.epoch {
		o.mutex.Unlock()
		return errSuperseded
	}
	o.state.Selected = detail
	o.state.Song = song
	autoplay := o.state.IsPlaying
	st := o.machine.StartLoading(autoplay)
	o.persistLocked(ctx)
	o.mutex.Unlock()

	if err := o.device.Load(song.PlayURL, autoplay); err != nil {
		o.logger.Warn("device rebind failed", zap.Int64("song", song.ID), zap.Error(err))
	}
	o.notifier.AudioState(st)
	return nil
}

func (o *Orchestrator) beginIntent(forced bool) uint64 {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.epoch++
	o.forced = forced
	return o.epoch
}

func (o *Orchestrator) stillCurrent(epoch uint64) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return epoch == o.epoch
}

// persistLocked saves the durable subset of the session. Progress, audio
// state and the playing flag are deliberately not part of the snapshot.
// Callers hold o.mutex.
func (o *Orchestrator) persistLocked(ctx context.Context) {
	snap := &Snapshot{
		Volume:   o.state.Volume,
		PlayMode: o.state.PlayMode,
	}
	if o.state.Selected != nil {
		snap.PlaylistID = o.state.Selected.ID
	}
	if o.state.Song != nil {
		snap.SongID = o.state.Song.ID
	}
	if err := o.store.Save(ctx, snap); err != nil {
		o.logger.Warn("failed to persist session snapshot", zap.Error(err))
	}
}

func (o *Orchestrator) errNoSong() error {
	return fmt.Errorf("%s: %w", o.localizer.T(i18n.MsgNoSongSelected), ErrNoSongSelected)
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
