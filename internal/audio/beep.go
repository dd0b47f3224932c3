package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"go.uber.org/zap"
)

const (
	// speakerSampleRate is the fixed mixer rate; sources are resampled to it.
	speakerSampleRate = beep.SampleRate(44100)
	// speakerBufferLen is the mixer buffer length.
	speakerBufferLen = 4096
	// positionTickInterval drives timeupdate events.
	positionTickInterval = 500 * time.Millisecond
	// downloadChunkSize is the read granularity while buffering a source.
	downloadChunkSize = 64 * 1024
	// eventBufferLen bounds the event channel; stale observational events
	// are dropped rather than blocking the device.
	eventBufferLen = 64
)

// BeepDevice plays mp3 streams through the host speaker using beep. One
// source is bound at a time; Load supersedes any previous binding.
type BeepDevice struct {
	logger *zap.Logger
	client *http.Client

	events chan Event

	mutex      sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	ctrl       *beep.Ctrl
	volume     *effects.Volume
	streamer   beep.StreamSeekCloser
	format     beep.Format
	volumeLvl  float64
	closed     bool
}

// NewBeepDevice initializes the speaker and returns a ready device.
func NewBeepDevice(logger *zap.Logger) (*BeepDevice, error) {
	if err := speaker.Init(speakerSampleRate, speakerBufferLen); err != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}
	return &BeepDevice{
		logger:    logger,
		client:    &http.Client{},
		events:    make(chan Event, eventBufferLen),
		volumeLvl: 1.0,
	}, nil
}

func (d *BeepDevice) Events() <-chan Event {
	return d.events
}

// Load tears down the current source and starts fetching and decoding url.
// Completion is observed through the event channel, not the return value;
// Load only fails on a device already closed.
func (d *BeepDevice) Load(url string, autoplay bool) error {
	d.mutex.Lock()
	if d.closed {
		d.mutex.Unlock()
		return fmt.Errorf("device is closed")
	}
	d.teardownLocked()
	d.generation++
	gen := d.generation
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mutex.Unlock()

	go d.fetchAndBind(ctx, gen, url, autoplay)
	return nil
}

func (d *BeepDevice) fetchAndBind(ctx context.Context, gen uint64, url string, autoplay bool) {
	body, err := d.download(ctx, gen, url)
	if err != nil {
		if ctx.Err() == nil {
			d.emit(gen, Event{Kind: EventError, Err: err})
		}
		return
	}

	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(body)))
	if err != nil {
		d.emit(gen, Event{Kind: EventError, Err: fmt.Errorf("failed to decode source: %w", err)})
		return
	}

	duration := format.SampleRate.D(streamer.Len()).Seconds()

	d.mutex.Lock()
	if gen != d.generation || d.closed {
		d.mutex.Unlock()
		_ = streamer.Close()
		return
	}
	d.streamer = streamer
	d.format = format
	d.volume = &effects.Volume{
		Streamer: beep.Resample(4, format.SampleRate, speakerSampleRate, streamer),
		Base:     2,
		Volume:   volumeGain(d.volumeLvl),
		Silent:   d.volumeLvl == 0,
	}
	d.ctrl = &beep.Ctrl{Streamer: d.volume, Paused: !autoplay}
	ctrl := d.ctrl
	d.mutex.Unlock()

	d.emit(gen, Event{Kind: EventProgress, BufferedSec: duration, DurationSec: duration})
	d.emit(gen, Event{Kind: EventCanPlay, BufferedSec: duration, DurationSec: duration})

	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		d.emit(gen, Event{Kind: EventEnded, DurationSec: duration})
	})))

	go d.trackPosition(ctx, gen, duration)
}

// download buffers the whole source, emitting byte-fraction progress as it
// goes. Duration is unknown until decode, so progress events carry zeroes
// for the time fields and only prime the pump for the UI.
func (d *BeepDevice) download(ctx context.Context, gen uint64, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build source request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source fetch returned status %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	chunk := make([]byte, downloadChunkSize)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			d.emit(gen, Event{Kind: EventProgress})
		}
		if readErr == io.EOF {
			return buf.Bytes(), nil
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read source body: %w", readErr)
		}
	}
}

func (d *BeepDevice) trackPosition(ctx context.Context, gen uint64, duration float64) {
	ticker := time.NewTicker(positionTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mutex.Lock()
			stale := gen != d.generation || d.streamer == nil
			var position float64
			if !stale {
				speaker.Lock()
				position = float64(d.streamer.Position()) / float64(d.format.SampleRate)
				speaker.Unlock()
			}
			d.mutex.Unlock()
			if stale {
				return
			}
			d.emit(gen, Event{Kind: EventTimeUpdate, PositionSec: position, DurationSec: duration})
		}
	}
}

func (d *BeepDevice) Play() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.ctrl == nil {
		return
	}
	speaker.Lock()
	d.ctrl.Paused = false
	speaker.Unlock()
}

func (d *BeepDevice) Pause() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.ctrl == nil {
		return
	}
	speaker.Lock()
	d.ctrl.Paused = true
	speaker.Unlock()
}

func (d *BeepDevice) SeekTo(sec float64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.streamer == nil {
		return
	}
	speaker.Lock()
	pos := d.format.SampleRate.N(time.Duration(sec * float64(time.Second)))
	if pos < 0 {
		pos = 0
	}
	if pos >= d.streamer.Len() {
		pos = d.streamer.Len() - 1
	}
	if err := d.streamer.Seek(pos); err != nil {
		d.logger.Warn("seek failed", zap.Float64("sec", sec), zap.Error(err))
	}
	speaker.Unlock()
}

func (d *BeepDevice) SetVolume(v float64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.volumeLvl = v
	if d.volume == nil {
		return
	}
	speaker.Lock()
	d.volume.Volume = volumeGain(v)
	d.volume.Silent = v == 0
	speaker.Unlock()
}

func (d *BeepDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.teardownLocked()
	speaker.Clear()
	close(d.events)
	return nil
}

// teardownLocked unbinds the current source. Callers hold d.mutex.
func (d *BeepDevice) teardownLocked() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.streamer != nil {
		speaker.Clear()
		_ = d.streamer.Close()
		d.streamer = nil
		d.ctrl = nil
		d.volume = nil
	}
}

// emit delivers an event unless the source it belongs to was superseded.
// The channel is bounded; a full channel drops observational events.
func (d *BeepDevice) emit(gen uint64, ev Event) {
	d.mutex.Lock()
	stale := gen != d.generation || d.closed
	d.mutex.Unlock()
	if stale {
		return
	}
	select {
	case d.events <- ev:
	default:
		d.logger.Debug("dropping device event on full channel", zap.String("kind", ev.Kind.String()))
	}
}

// volumeGain maps the session's linear [0,1] volume onto beep's
// exponential scale. 1 is unity gain; each 0.25 below halves loudness.
func volumeGain(v float64) float64 {
	if v <= 0 {
		return -8
	}
	return (v - 1) * 4
}
