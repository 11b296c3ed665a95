package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/voxlink/internal/observe"
	"github.com/MrWong99/voxlink/pkg/activation"
	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/proto"
)

// encoded is one output format's payload for the current frame.
type encoded struct {
	attempted bool

	// payload is nil when encoding or encryption failed.
	payload []byte
}

// encodeCache holds the mono and stereo payloads of one frame. Encoding is
// attempted at most once per format per frame.
type encodeCache struct {
	mono, stereo encoded
}

func (c *encodeCache) slot(stereo bool) *encoded {
	if stereo {
		return &c.stereo
	}
	return &c.mono
}

func formatName(stereo bool) string {
	if stereo {
		return "stereo"
	}
	return "mono"
}

// processActivation encodes and transmits the frame for one activation.
func (p *Pipeline) processActivation(ctx context.Context, it *iteration, a *activation.Activation, r activation.Result) {
	stereo := p.settings.StereoCapture() && a.StereoSupported()

	if r.Transmits() {
		p.encode(ctx, it, stereo)
	}
	payload := it.cache.slot(stereo).payload

	switch r {
	case activation.Activated:
		p.sendVoice(ctx, it.parent, a, stereo, payload)
	case activation.End:
		p.sendVoice(ctx, it.parent, a, stereo, payload)
		p.sendVoiceEnd(ctx, it.parent, a)
	}
}

// encode fills the cache slot for one format. Failures are logged and leave
// a nil payload.
func (p *Pipeline) encode(ctx context.Context, it *iteration, stereo bool) {
	slot := it.cache.slot(stereo)
	if slot.attempted {
		return
	}
	slot.attempted = true
	start := time.Now()

	var samples []int16
	if stereo {
		samples = it.dev.ProcessFilters(it.samples, audio.IsDownmix)
	} else {
		samples = it.dev.ProcessFilters(it.samples, nil)
	}
	samples = fitChannels(samples, it.frameSize, stereo)

	var data []byte
	enc := p.MonoEncoder()
	if stereo {
		enc = p.StereoEncoder()
	}
	if enc != nil {
		var err error
		if data, err = enc.Encode(samples); err != nil {
			p.metrics.RecordEncodeError(ctx, observe.StageCodec)
			slog.Error("capture: failed to encode audio", "format", formatName(stereo), "err", err)
			return
		}
	} else {
		data = audio.Int16sToBytes(samples)
	}

	if e := p.Encryption(); e != nil {
		var err error
		if data, err = e.Encrypt(data); err != nil {
			p.metrics.RecordEncodeError(ctx, observe.StageEncryption)
			slog.Error("capture: failed to encrypt audio", "algorithm", e.Name(), "err", err)
			return
		}
	}

	p.metrics.RecordEncode(ctx, formatName(stereo), time.Since(start))
	slot.payload = data
}

// sendVoice transmits one voice frame. The parent activation and frames
// without payload are never sent.
func (p *Pipeline) sendVoice(ctx context.Context, parent, a *activation.Activation, stereo bool, payload []byte) {
	if a == parent || payload == nil {
		return
	}
	ch, ok := p.conn.VoiceChannel()
	if !ok {
		return
	}
	err := ch.SendVoice(&proto.VoiceFrame{
		Sequence:     p.nextSequence(),
		ActivationID: a.ID(),
		Distance:     a.Distance(),
		Stereo:       stereo,
		Payload:      payload,
	})
	p.metrics.RecordPacket(ctx, observe.PacketVoice, err)
	if err != nil {
		slog.Debug("capture: send voice frame", "activation", a.Name(), "err", err)
	}
}

// sendVoiceEnd resets both encoders and transmits a voice-end for a.
func (p *Pipeline) sendVoiceEnd(ctx context.Context, parent, a *activation.Activation) {
	if a == parent {
		return
	}
	if enc := p.MonoEncoder(); enc != nil {
		enc.Reset()
	}
	if enc := p.StereoEncoder(); enc != nil {
		enc.Reset()
	}

	ch, ok := p.conn.ControlChannel()
	if !ok {
		return
	}
	err := ch.SendVoiceEnd(&proto.VoiceEnd{
		Sequence: p.nextSequence(),
		Distance: a.Distance(),
	})
	p.metrics.RecordPacket(ctx, observe.PacketVoiceEnd, err)
	if err != nil {
		slog.Warn("capture: send voice end", "activation", a.Name(), "err", err)
	}
}

func (p *Pipeline) nextSequence() uint64 {
	return p.seq.Add(1) - 1
}

// fitChannels converts samples to the channel count of the output path when
// the device format differs from it. frameSize is samples per channel.
func fitChannels(samples []int16, frameSize int, stereo bool) []int16 {
	switch {
	case frameSize <= 0:
		return samples
	case stereo && len(samples) == frameSize:
		return audio.MonoToStereo(samples)
	case !stereo && len(samples) == 2*frameSize:
		return audio.StereoToMono(samples)
	}
	return samples
}

// withDownmix returns chain with a leading downmix filter for a device with
// the given channel count, unless chain already has one.
func withDownmix(chain audio.Chain, channels int) audio.Chain {
	for _, f := range chain {
		if audio.IsDownmix(f) {
			return chain
		}
	}
	out := make(audio.Chain, 0, len(chain)+1)
	out = append(out, &audio.StereoToMonoFilter{Channels: channels})
	return append(out, chain...)
}
