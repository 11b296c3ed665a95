// Package opusfile implements a [device.InputDevice] that replays an Ogg Opus
// file as if it were a microphone.
//
// Packets are decoded with libopus at the requested format and handed out in
// frames of the configured size, paced in real time: Read returns (nil, nil)
// until the next frame is due. When the file runs out the device either
// starts over (Loop) or keeps delivering silence.
package opusfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jonas747/ogg"
	"layeh.com/gopus"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/device"
)

// Driver is the registry name of this driver.
const Driver = "opusfile"

// maxPacketSamples is the per-channel sample count of the longest Opus
// packet (120 ms at 48 kHz).
const maxPacketSamples = 5760

// maxLag is how many frames the device may fall behind the clock before it
// resynchronises instead of bursting.
const maxLag = 5

// Options configures the file source.
type Options struct {
	// Path of the .ogg/.opus file.
	Path string

	// Loop restarts playback at end of file instead of emitting silence.
	Loop bool
}

// Device replays an Ogg Opus file.
type Device struct {
	device.FilterChain

	opts      Options
	format    audio.Format
	frameLen  int
	frameTime time.Duration
	now       func() time.Time

	mu        sync.Mutex
	src       io.ReadSeekCloser
	packets   *ogg.PacketDecoder
	dec       *gopus.Decoder
	pending   []int16
	started   bool
	closed    bool
	exhausted bool
	played    bool // a packet was decoded since the last rewind
	next      time.Time
}

var _ device.InputDevice = (*Device)(nil)

// NewOpener returns a [device.Opener] that opens opts.Path for every request.
func NewOpener(opts Options) device.Opener {
	return device.OpenerFunc(func(cfg device.Config) (device.InputDevice, error) {
		return Open(opts, cfg)
	})
}

// Open opens the file described by opts and prepares it to deliver frames in
// the format of cfg.
func Open(opts Options, cfg device.Config) (*Device, error) {
	f, err := os.Open(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("opusfile: open %s: %w", opts.Path, err)
	}
	d, err := newDevice(opts, cfg, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func newDevice(opts Options, cfg device.Config, src io.ReadSeekCloser) (*Device, error) {
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("opusfile: invalid frame size %d", cfg.FrameSize)
	}
	if cfg.Format.Channels != 1 && cfg.Format.Channels != 2 {
		return nil, fmt.Errorf("opusfile: unsupported channel count %d", cfg.Format.Channels)
	}
	dec, err := gopus.NewDecoder(cfg.Format.SampleRate, cfg.Format.Channels)
	if err != nil {
		return nil, fmt.Errorf("opusfile: create decoder: %w", err)
	}
	d := &Device{
		opts:      opts,
		format:    cfg.Format,
		frameLen:  cfg.FrameLen(),
		frameTime: cfg.Format.FrameDuration(cfg.FrameLen()),
		now:       time.Now,
		src:       src,
		packets:   ogg.NewPacketDecoder(ogg.NewDecoder(src)),
		dec:       dec,
	}
	d.SetFilters(cfg.Filters)
	return d, nil
}

// Name implements [device.InputDevice].
func (d *Device) Name() string { return Driver + ":" + d.opts.Path }

// Format implements [device.InputDevice].
func (d *Device) Format() audio.Format { return d.format }

// Start implements [device.InputDevice].
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return device.ErrClosed
	}
	if !d.started {
		d.started = true
		d.next = d.now()
	}
	return nil
}

// Read implements [device.InputDevice].
func (d *Device) Read(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, device.ErrClosed
	}
	if !d.started {
		return nil, nil
	}
	now := d.now()
	if now.Before(d.next) {
		return nil, nil
	}
	if now.Sub(d.next) > maxLag*d.frameTime {
		d.next = now
	}

	if err := d.fill(); err != nil {
		return nil, err
	}
	frame := make([]int16, d.frameLen)
	copy(frame, d.pending)
	d.pending = d.pending[d.frameLen:]
	d.next = d.next.Add(d.frameTime)
	return frame, nil
}

// fill decodes packets until at least one frame is pending. Must be called
// with d.mu held.
func (d *Device) fill() error {
	for len(d.pending) < d.frameLen {
		if d.exhausted {
			d.pending = append(d.pending, make([]int16, d.frameLen-len(d.pending))...)
			return nil
		}
		pkt, _, err := d.packets.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("opusfile: read %s: %w", d.opts.Path, err)
			}
			// A file with no audio packets is treated as exhausted even
			// when looping.
			if !d.opts.Loop || !d.played {
				d.exhausted = true
				continue
			}
			if err := d.rewind(); err != nil {
				return err
			}
			continue
		}
		if isHeader(pkt) {
			continue
		}
		pcm, err := d.dec.Decode(pkt, maxPacketSamples, false)
		if err != nil {
			return fmt.Errorf("opusfile: decode: %w", err)
		}
		d.played = true
		d.pending = append(d.pending, pcm...)
	}
	return nil
}

func (d *Device) rewind() error {
	if _, err := d.src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("opusfile: rewind %s: %w", d.opts.Path, err)
	}
	d.packets = ogg.NewPacketDecoder(ogg.NewDecoder(d.src))
	d.played = false
	return nil
}

// IsOpen implements [device.InputDevice].
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Close implements [device.InputDevice].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.pending = nil
	return d.src.Close()
}

func isHeader(pkt []byte) bool {
	return bytes.HasPrefix(pkt, []byte("OpusHead")) || bytes.HasPrefix(pkt, []byte("OpusTags"))
}
