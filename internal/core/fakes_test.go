package core

import (
	"context"
	"sync"

	"cloudamp/internal/audio"
)

// fakeClient is an in-memory CatalogClient with per-endpoint call counters.
type fakeClient struct {
	mu sync.Mutex

	userLists      []PlaylistRef
	recommended    []PlaylistRef
	recommendSongs []TrackMeta
	payloads       map[int64]*PlaylistPayload
	metas          map[int64]TrackMeta
	urls           map[int64]string
	profile        *UserProfile

	refreshErr error
	urlHook    func(ids []int64) ([]SongURL, error)

	detailCalls     int
	songDetailCalls int
	detailBatches   []int
	songURLCalls    int
	likes           []likeCall
}

type likeCall struct {
	playlistID int64
	songID     int64
	like       bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		payloads: make(map[int64]*PlaylistPayload),
		metas:    make(map[int64]TrackMeta),
		urls:     make(map[int64]string),
	}
}

func (c *fakeClient) RecommendResource(context.Context) ([]PlaylistRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recommended, nil
}

func (c *fakeClient) UserPlaylists(context.Context, int64) ([]PlaylistRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PlaylistRef, len(c.userLists))
	copy(out, c.userLists)
	return out, nil
}

func (c *fakeClient) PlaylistDetail(_ context.Context, playlistID int64) (*PlaylistPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detailCalls++
	payload, ok := c.payloads[playlistID]
	if !ok {
		return nil, &CatalogLoadError{Op: "playlist detail", Reason: "not found"}
	}
	return payload, nil
}

func (c *fakeClient) RecommendSongs(context.Context) ([]TrackMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recommendSongs, nil
}

func (c *fakeClient) SongDetail(_ context.Context, ids []int64) ([]TrackMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.songDetailCalls++
	c.detailBatches = append(c.detailBatches, len(ids))
	var metas []TrackMeta
	for _, id := range ids {
		if m, ok := c.metas[id]; ok {
			metas = append(metas, m)
		}
	}
	return metas, nil
}

func (c *fakeClient) SongURLs(_ context.Context, ids []int64) ([]SongURL, error) {
	c.mu.Lock()
	hook := c.urlHook
	c.songURLCalls++
	c.mu.Unlock()

	if hook != nil {
		return hook(ids)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	urls := make([]SongURL, 0, len(ids))
	for _, id := range ids {
		urls = append(urls, SongURL{ID: id, URL: c.urls[id]})
	}
	return urls, nil
}

func (c *fakeClient) LikeSong(_ context.Context, playlistID, songID int64, like bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.likes = append(c.likes, likeCall{playlistID, songID, like})
	return nil
}

func (c *fakeClient) CellphoneLogin(context.Context, string, string) (*UserProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profile == nil {
		return nil, &AuthError{Message: "bad credentials"}
	}
	return c.profile, nil
}

func (c *fakeClient) SentCaptcha(context.Context, string) error { return nil }

func (c *fakeClient) LoginRefresh(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshErr
}

func (c *fakeClient) User(context.Context) (*UserProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profile == nil {
		return nil, ErrSessionExpired
	}
	return c.profile, nil
}

func (c *fakeClient) Logout(context.Context) error { return nil }

// fakeAlt returns a fixed URL for every lookup.
type fakeAlt struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
}

func (a *fakeAlt) LookupURL(context.Context, string, string, int64) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.url, a.err
}

// fakeNotifier records pushes; Sync additionally signals a channel so
// tests can wait for asynchronous advances.
type fakeNotifier struct {
	mu          sync.Mutex
	audioStates []AudioPlaybackState
	marked      []struct {
		songID int64
		op     SongOp
	}
	notices []string
	errors  []string
	syncs   []SyncPayload
	syncCh  chan SyncPayload
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{syncCh: make(chan SyncPayload, 8)}
}

func (n *fakeNotifier) AudioState(state AudioPlaybackState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.audioStates = append(n.audioStates, state)
}

func (n *fakeNotifier) Sync(payload SyncPayload) {
	n.mu.Lock()
	n.syncs = append(n.syncs, payload)
	n.mu.Unlock()
	select {
	case n.syncCh <- payload:
	default:
	}
}

func (n *fakeNotifier) SongMarked(songID int64, op SongOp) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.marked = append(n.marked, struct {
		songID int64
		op     SongOp
	}{songID, op})
}

func (n *fakeNotifier) Notice(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, message)
}

func (n *fakeNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *fakeNotifier) markedIDs() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]int64, 0, len(n.marked))
	for _, m := range n.marked {
		ids = append(ids, m.songID)
	}
	return ids
}

// fakeDevice records control calls and lets tests feed events into the
// orchestrator loop.
type fakeDevice struct {
	mu      sync.Mutex
	loads   []string
	playing bool
	volume  float64
	events  chan audio.Event
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{events: make(chan audio.Event, 16)}
}

func (d *fakeDevice) Load(url string, autoplay bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loads = append(d.loads, url)
	d.playing = autoplay
	return nil
}

func (d *fakeDevice) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = true
}

func (d *fakeDevice) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
}

func (d *fakeDevice) SeekTo(float64) {}

func (d *fakeDevice) SetVolume(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volume = v
}

func (d *fakeDevice) Events() <-chan audio.Event { return d.events }

func (d *fakeDevice) Close() error { return nil }

func (d *fakeDevice) lastLoad() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.loads) == 0 {
		return ""
	}
	return d.loads[len(d.loads)-1]
}

// memStore keeps the snapshot in memory.
type memStore struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
}

func (s *memStore) Load(context.Context) (*Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, false, nil
	}
	snap := *s.snap
	return &snap, true, nil
}

func (s *memStore) Save(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *snap
	s.snap = &copied
	s.saves++
	return nil
}

func (s *memStore) saved() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return Snapshot{}
	}
	return *s.snap
}
