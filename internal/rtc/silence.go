package rtc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"voicechat/backend/internal/client"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const frameDuration = 20 * time.Millisecond

// opusSilence is one 20 ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceDevices is a capture device for headless clients: every stream it
// returns sends Opus silence until stopped.
type SilenceDevices struct{}

func (SilenceDevices) GetUserAudio(ctx context.Context, c client.AudioConstraints) (client.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rate := uint32(c.SampleRate)
	if rate == 0 {
		rate = 48000
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: rate, Channels: 2},
		"audio", "voicechat",
	)
	if err != nil {
		return nil, err
	}

	a := &LocalAudio{track: track, stop: make(chan struct{})}
	a.enabled.Store(true)
	go a.run()
	return a, nil
}

// LocalAudio is a single-track local stream.
type LocalAudio struct {
	track    *webrtc.TrackLocalStaticSample
	enabled  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

func (a *LocalAudio) AudioTracks() []client.AudioTrack { return []client.AudioTrack{a} }
func (a *LocalAudio) LocalTracks() []webrtc.TrackLocal { return []webrtc.TrackLocal{a.track} }
func (a *LocalAudio) SetEnabled(enabled bool)          { a.enabled.Store(enabled) }
func (a *LocalAudio) Enabled() bool                    { return a.enabled.Load() }

func (a *LocalAudio) Stopped() bool {
	select {
	case <-a.stop:
		return true
	default:
		return false
	}
}

func (a *LocalAudio) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

func (a *LocalAudio) run() {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			if !a.enabled.Load() {
				continue
			}
			// Unbound tracks drop samples; that is fine before negotiation.
			_ = a.track.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration})
		}
	}
}
