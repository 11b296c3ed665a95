// Package discord forwards captured voice into a Discord voice channel.
//
// A [Session] joins the configured channel with a bot account and acts as the
// voice server connection for the capture pipeline: voice frames are written
// to the call's Opus send queue, and a voice-end clears the speaking flag.
// Discord encrypts the call itself, so payloads are sent as encoded.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxlink/pkg/proto"
	"github.com/MrWong99/voxlink/pkg/transport"
)

// Discord voice runs 48 kHz Opus with 20 ms frames.
const (
	sampleRate = 48000
	frameSize  = 960
	maxPacket  = 1275
)

// Config identifies the bot and the voice channel to join.
type Config struct {
	Token     string
	GuildID   string
	ChannelID string

	// Bitrate is passed to the Opus encoder. Default: 64000.
	Bitrate int
}

// Session is one Discord voice call.
type Session struct {
	cfg  Config
	info *proto.ServerInfo

	mu        sync.Mutex
	session   *discordgo.Session
	vc        *discordgo.VoiceConnection
	send      func([]byte) bool
	speak     func(bool) error
	speaking  bool
	done      chan struct{}
	closeOnce *sync.Once
	dropped   int
}

var (
	_ transport.Connector   = (*Session)(nil)
	_ transport.VoiceSender = (*Session)(nil)
	_ transport.EndSender   = (*Session)(nil)
)

// New returns an unconnected Session.
func New(cfg Config) *Session {
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = 64000
	}
	return &Session{
		cfg: cfg,
		info: &proto.ServerInfo{
			VoiceAddr: "discord:" + cfg.GuildID + "/" + cfg.ChannelID,
			Capture: proto.CaptureInfo{
				SampleRate: sampleRate,
				BufferSize: frameSize,
				MTU:        maxPacket,
				Codec: &proto.CodecInfo{
					Name: "opus",
					Params: map[string]string{
						"application": "audio",
						"bitrate":     fmt.Sprint(cfg.Bitrate),
					},
				},
			},
		},
	}
}

// Connect opens the gateway session and joins the voice channel.
func (s *Session) Connect(_ context.Context) error {
	if err := s.Disconnect(); err != nil {
		slog.Debug("discord: closing previous session", "err", err)
	}

	dg, err := discordgo.New("Bot " + s.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	if err := dg.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}

	// mute=false (we send audio), deaf=true (we never receive).
	vc, err := dg.ChannelVoiceJoin(s.cfg.GuildID, s.cfg.ChannelID, false, true)
	if err != nil {
		dg.Close()
		return fmt.Errorf("discord: join voice channel %q: %w", s.cfg.ChannelID, err)
	}

	s.attach(func(p []byte) bool {
		select {
		case vc.OpusSend <- p:
			return true
		default:
			return false
		}
	}, vc.Speaking)

	s.mu.Lock()
	s.session = dg
	s.vc = vc
	s.mu.Unlock()

	slog.Info("discord: joined voice channel", "guild_id", s.cfg.GuildID, "channel_id", s.cfg.ChannelID)
	return nil
}

// attach installs the send and speaking hooks of a new call.
func (s *Session) attach(send func([]byte) bool, speak func(bool) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send = send
	s.speak = speak
	s.speaking = false
	s.done = make(chan struct{})
	s.closeOnce = &sync.Once{}
}

// ServerInfo returns the fixed Discord voice format.
func (s *Session) ServerInfo() (*proto.ServerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, s.send != nil
}

// VoiceChannel returns s while a call is active.
func (s *Session) VoiceChannel() (transport.VoiceSender, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s, s.send != nil
}

// ControlChannel returns s while a call is active.
func (s *Session) ControlChannel() (transport.EndSender, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s, s.send != nil
}

// SendVoice queues the frame payload for the call. Frames are dropped when
// the send queue is full.
func (s *Session) SendVoice(f *proto.VoiceFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send == nil {
		return transport.ErrNotConnected
	}
	if !s.speaking {
		if err := s.speak(true); err != nil {
			slog.Warn("discord: speaking notification error", "speaking", true, "err", err)
		}
		s.speaking = true
	}
	if !s.send(f.Payload) {
		s.dropped++
		return errors.New("discord: send queue full")
	}
	return nil
}

// SendVoiceEnd clears the speaking flag.
func (s *Session) SendVoiceEnd(*proto.VoiceEnd) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send == nil {
		return transport.ErrNotConnected
	}
	if !s.speaking {
		return nil
	}
	s.speaking = false
	if err := s.speak(false); err != nil {
		return fmt.Errorf("discord: speaking: %w", err)
	}
	return nil
}

// Dropped returns how many frames were dropped on a full send queue.
func (s *Session) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Done implements [transport.Connector].
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Disconnect leaves the call and closes the gateway session.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	vc, dg := s.vc, s.session
	done, once := s.done, s.closeOnce
	s.vc, s.session = nil, nil
	s.send, s.speak = nil, nil
	s.mu.Unlock()

	var errs []error
	if vc != nil {
		if err := vc.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("discord: leave voice channel: %w", err))
		}
	}
	if dg != nil {
		if err := dg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("discord: close session: %w", err))
		}
	}
	if once != nil {
		once.Do(func() { close(done) })
	}
	return errors.Join(errs...)
}
