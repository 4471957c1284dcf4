// Package chathub is the live-session broadcast engine. Sessions are
// authorized on connect and tracked per room; every accepted frame is
// persisted through the chat service and fanned out to the room as is.
package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"roomchat/backend/internal/chat"
	"roomchat/backend/internal/models"

	"github.com/go-playground/validator/v10"
)

// IdentityVerifier resolves a client credential to a member identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// ChatService is the part of the chat service the hub drives.
type ChatService interface {
	SaveMessage(ctx context.Context, roomID uint, senderIdentity, text string) (*models.Message, error)
	IsRoomParticipant(ctx context.Context, roomID uint, identity string) (bool, error)
}

// Options tune the per-connection behaviour of the hub.
type Options struct {
	// SendBufferSize is the number of outbound frames queued per session.
	SendBufferSize int
	// MaxFrameBytes limits the size of one inbound WebSocket frame.
	MaxFrameBytes int64
	// MaxMessageLength limits the chat text of one frame, in runes.
	MaxMessageLength int
	// FrameTimeout bounds the persistence work done for one inbound frame.
	FrameTimeout time.Duration
}

// DefaultOptions returns the options used when a zero value is supplied.
func DefaultOptions() Options {
	return Options{
		SendBufferSize:   256,
		MaxFrameBytes:    4096,
		MaxMessageLength: 1000,
		FrameTimeout:     10 * time.Second,
	}
}

// Hub drives the lifecycle of live sessions.
type Hub struct {
	Registry *Registry

	chat     ChatService
	verifier IdentityVerifier
	fanout   Fanout
	validate *validator.Validate
	log      *slog.Logger
	opts     Options
}

// NewHub wires a hub. Broadcasts go straight to the registry until another
// Fanout is installed with SetFanout.
func NewHub(registry *Registry, svc ChatService, verifier IdentityVerifier, log *slog.Logger, opts Options) *Hub {
	if log == nil {
		log = slog.Default()
	}
	defaults := DefaultOptions()
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = defaults.SendBufferSize
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = defaults.MaxFrameBytes
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = defaults.MaxMessageLength
	}
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = defaults.FrameTimeout
	}
	return &Hub{
		Registry: registry,
		chat:     svc,
		verifier: verifier,
		fanout:   NewLocalFanout(registry),
		validate: validator.New(),
		log:      log.With("component", "chathub"),
		opts:     opts,
	}
}

// SetFanout replaces the broadcast path, e.g. with a Redis relay.
func (h *Hub) SetFanout(f Fanout) {
	h.fanout = f
}

// Options returns the effective options.
func (h *Hub) Options() Options {
	return h.opts
}

// Authorize validates the initiation parameters of a connection and returns
// the room id and identity to open the session with. Nothing is registered
// when it fails.
func (h *Hub) Authorize(ctx context.Context, roomParam, token string) (uint, string, error) {
	roomParam = strings.TrimSpace(roomParam)
	if roomParam == "" || strings.TrimSpace(token) == "" {
		return 0, "", fmt.Errorf("%w: roomId and token are required", chat.ErrUnauthenticated)
	}
	parsed, err := strconv.ParseUint(roomParam, 10, 64)
	if err != nil || parsed == 0 {
		return 0, "", fmt.Errorf("%w: invalid roomId %q", chat.ErrUnauthenticated, roomParam)
	}
	roomID := uint(parsed)

	identity, err := h.verifier.Verify(ctx, token)
	if err != nil {
		h.log.Warn("connection rejected: credential verification failed", "room_id", roomID, "error", err)
		return 0, "", fmt.Errorf("%w: %v", chat.ErrUnauthenticated, err)
	}

	ok, err := h.chat.IsRoomParticipant(ctx, roomID, identity)
	if err != nil {
		return 0, "", err
	}
	if !ok {
		return 0, "", fmt.Errorf("%w: %s is not a participant of room %d", chat.ErrForbidden, identity, roomID)
	}
	return roomID, identity, nil
}

// Attach registers an opened session under its room.
func (h *Hub) Attach(s Session) {
	h.Registry.Register(s.RoomID(), s)
	h.log.Info("session connected", "session_id", s.ID(), "room_id", s.RoomID(), "identity", s.Identity())
}

// Detach unregisters a session after its connection went away.
func (h *Hub) Detach(s Session) {
	h.Registry.Unregister(s.RoomID(), s)
	h.log.Info("session disconnected", "session_id", s.ID(), "room_id", s.RoomID())
}

// HandleFrame decodes one inbound frame, persists it and broadcasts the
// original bytes to every session of the room, the sender's included.
// Frames that cannot be decoded or do not belong to the session fail with
// chat.ErrInvalidFrame and are neither saved nor broadcast.
func (h *Hub) HandleFrame(ctx context.Context, s Session, raw []byte) error {
	frame, err := h.decode(raw)
	if err != nil {
		return err
	}
	if frame.RoomID != s.RoomID() {
		return fmt.Errorf("%w: frame for room %d on a room %d session", chat.ErrInvalidFrame, frame.RoomID, s.RoomID())
	}
	if frame.SenderEmail != s.Identity() {
		return fmt.Errorf("%w: sender %q does not match the session identity", chat.ErrInvalidFrame, frame.SenderEmail)
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.FrameTimeout)
	defer cancel()

	if _, err := h.chat.SaveMessage(ctx, frame.RoomID, s.Identity(), frame.Message); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	if err := h.fanout.Publish(ctx, frame.RoomID, raw); err != nil {
		return fmt.Errorf("broadcast to room %d: %w", frame.RoomID, err)
	}
	return nil
}

// Shutdown closes every live session.
func (h *Hub) Shutdown() {
	h.Registry.CloseAll()
}

func (h *Hub) decode(raw []byte) (models.ChatFrame, error) {
	var frame models.ChatFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return frame, fmt.Errorf("%w: %v", chat.ErrInvalidFrame, err)
	}
	if err := h.validate.Struct(frame); err != nil {
		return frame, fmt.Errorf("%w: %v", chat.ErrInvalidFrame, err)
	}
	if err := h.validate.Var(frame.Message, "max="+strconv.Itoa(h.opts.MaxMessageLength)); err != nil {
		return frame, fmt.Errorf("%w: message longer than %d characters", chat.ErrInvalidFrame, h.opts.MaxMessageLength)
	}
	return frame, nil
}

// logFrameError reports a failed frame at a level matching its cause.
func (h *Hub) logFrameError(s Session, err error) {
	if errors.Is(err, chat.ErrInvalidFrame) {
		h.log.Warn("frame dropped", "session_id", s.ID(), "room_id", s.RoomID(), "error", err)
		return
	}
	h.log.Error("frame handling failed", "session_id", s.ID(), "room_id", s.RoomID(), "error", err)
}
