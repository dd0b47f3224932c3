package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"cloudamp/internal/audio"
	"cloudamp/internal/i18n"
)

type world struct {
	client   *fakeClient
	store    *memStore
	device   *fakeDevice
	notifier *fakeNotifier
	orch     *Orchestrator
}

func testPayload(id int64, trackIDs ...int64) *PlaylistPayload {
	return &PlaylistPayload{ID: id, TrackIDs: trackIDs}
}

// newWorld builds a logged-in account with the chart playlist (1,2,3), a
// liked-songs playlist (4,5) and one user playlist (6,7,8), every track
// streamable.
func newWorld(t *testing.T) *world {
	t.Helper()
	client := newFakeClient()
	client.profile = &UserProfile{UserID: 7, Nickname: "amp"}
	client.userLists = []PlaylistRef{{ID: 100, Name: "liked"}, {ID: 101, Name: "mix"}}
	client.payloads[TopNewSongsID] = testPayload(TopNewSongsID, 1, 2, 3)
	client.payloads[100] = testPayload(100, 4, 5)
	client.payloads[101] = testPayload(101, 6, 7, 8)
	for id := int64(1); id <= 8; id++ {
		client.metas[id] = TrackMeta{ID: id, Name: fmt.Sprintf("track %d", id), Artists: "artist"}
		client.urls[id] = fmt.Sprintf("http://stream/%d", id)
	}

	w := &world{
		client:   client,
		store:    &memStore{},
		device:   newFakeDevice(),
		notifier: newFakeNotifier(),
	}
	w.orch = NewOrchestrator(
		DefaultConfig(),
		client,
		nil,
		w.store,
		w.notifier,
		w.device,
		i18n.NewLocalizer("en"),
		NopMetrics{},
		zap.NewNop(),
	)
	return w
}

func TestBootstrapAnonymousSelectsChart(t *testing.T) {
	w := newWorld(t)
	w.client.profile = nil

	if err := w.orch.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	state := w.orch.State()
	if state.UserID != 0 {
		t.Errorf("UserID = %d, want anonymous", state.UserID)
	}
	if len(state.Playlists) != 1 || state.Playlists[0].ID != TopNewSongsID {
		t.Fatalf("playlists = %+v, want just the chart", state.Playlists)
	}
	if state.Song == nil || state.Song.ID != 1 {
		t.Fatalf("song = %+v, want the first chart track", state.Song)
	}
	if w.device.lastLoad() != "http://stream/1" {
		t.Errorf("device bound to %q", w.device.lastLoad())
	}
}

func TestBootstrapRestoresPersistedSession(t *testing.T) {
	w := newWorld(t)
	w.store.snap = &Snapshot{Volume: 0.5, PlayMode: PlayModeNormal, PlaylistID: 101, SongID: 7}

	if err := w.orch.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	state := w.orch.State()
	if state.Selected == nil || state.Selected.ID != 101 {
		t.Fatalf("selected = %+v, want playlist 101", state.Selected)
	}
	if state.Song == nil || state.Song.ID != 7 {
		t.Fatalf("song = %+v, want the persisted song", state.Song)
	}
	if state.Volume != 0.5 {
		t.Errorf("volume = %v, want restored 0.5", state.Volume)
	}
	if state.IsPlaying {
		t.Error("restored session must not start playing on its own")
	}
	w.device.mu.Lock()
	volume := w.device.volume
	w.device.mu.Unlock()
	if volume != 0.5 {
		t.Errorf("device volume = %v", volume)
	}
}

func TestBootstrapFallsBackWhenPersistedSongGone(t *testing.T) {
	w := newWorld(t)
	w.store.snap = &Snapshot{Volume: 1, PlayMode: PlayModeNormal, PlaylistID: 101, SongID: 999}

	if err := w.orch.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	state := w.orch.State()
	if state.Selected.ID != 101 {
		t.Fatalf("selected = %d, the playlist itself is still valid", state.Selected.ID)
	}
	if state.Song.ID != 6 {
		t.Errorf("song = %d, want the first track of the ordering", state.Song.ID)
	}
}

func TestBootstrapFallsBackWhenPersistedPlaylistGone(t *testing.T) {
	w := newWorld(t)
	w.store.snap = &Snapshot{Volume: 1, PlayMode: PlayModeNormal, PlaylistID: 4242, SongID: 1}

	if err := w.orch.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if got := w.orch.State().Selected.ID; got != TopNewSongsID {
		t.Errorf("selected = %d, want the first catalog playlist", got)
	}
}

func TestPlayNextPersistsSelection(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if err := w.orch.PlayNext(ctx); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}

	state := w.orch.State()
	if state.Song.ID != 2 {
		t.Fatalf("song = %d, want 2", state.Song.ID)
	}
	saved := w.store.saved()
	if saved.SongID != 2 || saved.PlaylistID != TopNewSongsID {
		t.Errorf("persisted %+v", saved)
	}
}

func TestPlayNextSkipsDeadTrackOnEveryLap(t *testing.T) {
	w := newWorld(t)
	w.client.urls[2] = ""
	ctx := context.Background()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	// First lap marks 2 invalid and lands on 3; subsequent laps keep
	// skipping it from the cached verdict instead of stalling.
	want := []int64{3, 1, 3, 1}
	for i, id := range want {
		if err := w.orch.PlayNext(ctx); err != nil {
			t.Fatalf("PlayNext #%d: %v", i+1, err)
		}
		if got := w.orch.State().Song.ID; got != id {
			t.Fatalf("step %d landed on %d, want %d", i+1, got, id)
		}
	}
	if marked := w.notifier.markedIDs(); len(marked) != 1 || marked[0] != 2 {
		t.Errorf("marked invalid = %v, want [2] exactly once", marked)
	}
}

func TestPlayPrevWrapsAround(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if err := w.orch.PlayPrev(ctx); err != nil {
		t.Fatalf("PlayPrev: %v", err)
	}
	if got := w.orch.State().Song.ID; got != 3 {
		t.Errorf("song = %d, want wraparound to the last track", got)
	}
}

func TestPlaySongUnplayableSurfacesError(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	w.client.mu.Lock()
	w.client.urls[2] = ""
	w.client.mu.Unlock()

	err := w.orch.PlaySong(ctx, 2)
	if !errors.Is(err, ErrNoPlayableSource) {
		t.Fatalf("err = %v, want ErrNoPlayableSource", err)
	}

	// The failed pick must not displace the current selection.
	if got := w.orch.State().Song.ID; got != 1 {
		t.Errorf("song = %d, selection should be unchanged", got)
	}
	marked := w.notifier.markedIDs()
	if len(marked) != 1 || marked[0] != 2 {
		t.Errorf("marked = %v, want [2]", marked)
	}
}

func TestChangePlaylistStartsAtFirstTrack(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if err := w.orch.ChangePlaylist(ctx, 101); err != nil {
		t.Fatalf("ChangePlaylist: %v", err)
	}

	state := w.orch.State()
	if state.Selected.ID != 101 || state.Song.ID != 6 {
		t.Errorf("selected %d song %d, want 101/6", state.Selected.ID, state.Song.ID)
	}

	if err := w.orch.ChangePlaylist(ctx, 4242); err == nil {
		t.Error("unknown playlist id should error")
	}
}

func TestTogglePlayingControlsDevice(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if err := w.orch.TogglePlaying(); err != nil {
		t.Fatalf("TogglePlaying: %v", err)
	}
	if !w.orch.State().IsPlaying {
		t.Error("not playing after toggle")
	}
	w.device.mu.Lock()
	playing := w.device.playing
	w.device.mu.Unlock()
	if !playing {
		t.Error("device not playing")
	}

	if err := w.orch.TogglePlaying(); err != nil {
		t.Fatalf("TogglePlaying: %v", err)
	}
	if w.orch.State().IsPlaying {
		t.Error("still playing after second toggle")
	}
}

func TestTogglePlayingWithoutSelection(t *testing.T) {
	w := newWorld(t)

	err := w.orch.TogglePlaying()
	if !errors.Is(err, ErrNoSongSelected) {
		t.Fatalf("err = %v, want ErrNoSongSelected", err)
	}
	if !strings.Contains(err.Error(), "No song selected") {
		t.Errorf("err = %q, want the localized message", err)
	}
}

func TestSeekWhilePausedResumes(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if err := w.orch.Seek(ctx, 42); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if !w.orch.State().IsPlaying {
		t.Error("seeking while paused should resume playback")
	}
}

func TestCyclePlayModePersists(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if mode := w.orch.CyclePlayMode(ctx); mode != PlayModeShuffle {
		t.Errorf("mode = %v, want shuffle", mode)
	}
	if mode := w.orch.CyclePlayMode(ctx); mode != PlayModeRepeatOne {
		t.Errorf("mode = %v, want repeat-one", mode)
	}
	if mode := w.orch.CyclePlayMode(ctx); mode != PlayModeNormal {
		t.Errorf("mode = %v, want normal again", mode)
	}

	w.orch.CyclePlayMode(ctx)
	if saved := w.store.saved(); saved.PlayMode != PlayModeShuffle {
		t.Errorf("persisted mode = %v, want shuffle", saved.PlayMode)
	}
}

func TestSetVolumeClampsAndPersists(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	w.orch.SetVolume(ctx, 1.7)
	if got := w.orch.State().Volume; got != 1 {
		t.Errorf("volume = %v, want clamped to 1", got)
	}
	w.orch.SetVolume(ctx, 0.3)
	if saved := w.store.saved(); saved.Volume != 0.3 {
		t.Errorf("persisted volume = %v", saved.Volume)
	}
}

func TestLikeSongRebuildsFavorites(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.store.snap = &Snapshot{Volume: 1, PlayMode: PlayModeNormal, PlaylistID: 100, SongID: 4}
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	w.client.mu.Lock()
	before := w.client.detailCalls
	w.client.mu.Unlock()

	if err := w.orch.LikeSong(ctx); err != nil {
		t.Fatalf("LikeSong: %v", err)
	}

	w.client.mu.Lock()
	likes := append([]likeCall(nil), w.client.likes...)
	after := w.client.detailCalls
	w.client.mu.Unlock()

	if len(likes) != 1 || likes[0].playlistID != 100 || likes[0].songID != 4 || !likes[0].like {
		t.Errorf("likes = %+v", likes)
	}
	if after != before+1 {
		t.Error("liking must rebuild the favorites playlist from the remote")
	}

	w.notifier.mu.Lock()
	notices := append([]string(nil), w.notifier.notices...)
	w.notifier.mu.Unlock()
	if len(notices) != 1 || notices[0] != "Added to liked songs" {
		t.Errorf("notices = %v, want the like confirmation", notices)
	}
}

func TestUnlikeSongNotifiesRemoval(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if err := w.orch.UnlikeSong(ctx); err != nil {
		t.Fatalf("UnlikeSong: %v", err)
	}

	w.notifier.mu.Lock()
	defer w.notifier.mu.Unlock()
	found := false
	for _, m := range w.notifier.marked {
		if m.songID == 1 && m.op == SongOpRemove {
			found = true
		}
	}
	if !found {
		t.Error("no remove notification for the unliked song")
	}
	if len(w.notifier.notices) != 1 || w.notifier.notices[0] != "Removed from liked songs" {
		t.Errorf("notices = %v, want the unlike confirmation", w.notifier.notices)
	}
}

func TestLogoutResetsToAnonymous(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	w.orch.TogglePlaying() //nolint:errcheck

	if err := w.orch.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	state := w.orch.State()
	if state.UserID != 0 {
		t.Errorf("UserID = %d after logout", state.UserID)
	}
	if state.IsPlaying {
		t.Error("logout must stop playback")
	}
	if len(state.Playlists) != 1 || state.Playlists[0].ID != TopNewSongsID {
		t.Errorf("playlists = %+v, want the anonymous catalog", state.Playlists)
	}
	w.device.mu.Lock()
	playing := w.device.playing
	w.device.mu.Unlock()
	if playing {
		t.Error("device still playing after logout")
	}
}

func TestAutoAdvanceOnEnded(t *testing.T) {
	w := newWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	go w.orch.Run(ctx) //nolint:errcheck

	w.device.events <- audio.Event{Kind: audio.EventEnded}

	select {
	case payload := <-w.notifier.syncCh:
		if payload.Song == nil || payload.Song.ID != 2 {
			t.Errorf("sync carried %+v, want song 2", payload.Song)
		}
		if payload.PlaylistID != TopNewSongsID {
			t.Errorf("sync playlist = %d", payload.PlaylistID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no sync after the track ended")
	}

	if got := w.orch.State().Song.ID; got != 2 {
		t.Errorf("song = %d, want auto-advanced to 2", got)
	}
}

func TestRepeatOneReplaysSameSong(t *testing.T) {
	w := newWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	w.orch.CyclePlayMode(ctx)
	w.orch.CyclePlayMode(ctx) // repeat-one

	go w.orch.Run(ctx) //nolint:errcheck

	w.device.events <- audio.Event{Kind: audio.EventEnded}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w.device.mu.Lock()
		loads := len(w.device.loads)
		w.device.mu.Unlock()
		if loads >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := w.orch.State().Song.ID; got != 1 {
		t.Errorf("song = %d, repeat-one must replay the same track", got)
	}
	if w.device.lastLoad() != "http://stream/1" {
		t.Errorf("device rebound to %q", w.device.lastLoad())
	}
}

func TestForcedSelectionSupersedesStaleChain(t *testing.T) {
	w := newWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.orch.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	w.client.mu.Lock()
	w.client.urlHook = func(ids []int64) ([]SongURL, error) {
		if len(ids) == 1 && ids[0] == 2 {
			close(entered)
			<-release
			return []SongURL{{ID: 2, URL: "http://stream/2"}}, nil
		}
		urls := make([]SongURL, 0, len(ids))
		for _, id := range ids {
			urls = append(urls, SongURL{ID: id, URL: fmt.Sprintf("http://stream/%d", id)})
		}
		return urls, nil
	}
	w.client.mu.Unlock()

	go w.orch.Run(ctx) //nolint:errcheck

	// The ended event starts an automatic advance toward song 2, which
	// blocks inside the URL fetch.
	w.device.events <- audio.Event{Kind: audio.EventEnded}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("auto-advance never reached the URL fetch")
	}

	// A forced selection lands while the chain is stuck.
	if err := w.orch.PlaySong(ctx, 3); err != nil {
		t.Fatalf("PlaySong: %v", err)
	}
	close(release)

	// Give the stale chain a moment to finish and (wrongly) apply.
	time.Sleep(50 * time.Millisecond)

	if got := w.orch.State().Song.ID; got != 3 {
		t.Errorf("song = %d, the forced selection must win", got)
	}
	w.notifier.mu.Lock()
	defer w.notifier.mu.Unlock()
	for _, s := range w.notifier.syncs {
		if s.Song != nil && s.Song.ID == 2 {
			t.Error("stale chain's result surfaced as a sync")
		}
	}
}
