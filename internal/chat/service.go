// Package chat implements the room, participant, message and read-state
// operations of the chat core. Every operation receives the authenticated
// identity (the member e-mail) explicitly and runs in one transaction.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"roomchat/backend/internal/models"
	"roomchat/backend/internal/storage"

	"github.com/samber/lo"
)

// Service handles the business logic for rooms and messages.
type Service struct {
	Storage storage.Storage
	log     *slog.Logger
}

// NewService creates a new chat service.
func NewService(s storage.Storage, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Storage: s, log: log.With("component", "chat")}
}

// CreateGroupRoom creates a group room and joins the creator to it.
// Room names are not unique.
func (s *Service) CreateGroupRoom(ctx context.Context, name, identity string) (RoomSummary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoomSummary{}, fmt.Errorf("%w: room name is empty", ErrInvalidOperation)
	}

	var room models.Room
	err := s.Storage.WithTx(ctx, func(tx storage.Storage) error {
		creator, err := memberByEmail(ctx, tx, identity)
		if err != nil {
			return err
		}
		room = models.Room{Name: name, IsGroup: true}
		if err := tx.CreateRoom(ctx, &room); err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		if _, err := tx.AddParticipant(ctx, room.ID, creator.ID); err != nil {
			return fmt.Errorf("add creator to room %d: %w", room.ID, err)
		}
		return nil
	})
	if err != nil {
		return RoomSummary{}, err
	}

	s.log.Info("group room created", "room_id", room.ID, "identity", identity)
	return RoomSummary{RoomID: room.ID, RoomName: room.Name}, nil
}

// ListGroupRooms returns every group room.
func (s *Service) ListGroupRooms(ctx context.Context) ([]RoomSummary, error) {
	rooms, err := s.Storage.ListGroupRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list group rooms: %w", err)
	}
	return lo.Map(rooms, func(r models.Room, _ int) RoomSummary {
		return RoomSummary{RoomID: r.ID, RoomName: r.Name}
	}), nil
}

// JoinGroupRoom adds the identity to a group room. Joining twice is a no-op.
func (s *Service) JoinGroupRoom(ctx context.Context, roomID uint, identity string) error {
	return s.Storage.WithTx(ctx, func(tx storage.Storage) error {
		room, err := roomByID(ctx, tx, roomID)
		if err != nil {
			return err
		}
		member, err := memberByEmail(ctx, tx, identity)
		if err != nil {
			return err
		}
		if !room.IsGroup {
			return fmt.Errorf("%w: room %d is not a group room", ErrInvalidOperation, roomID)
		}

		created, err := tx.AddParticipant(ctx, room.ID, member.ID)
		if err != nil {
			return fmt.Errorf("join room %d: %w", roomID, err)
		}
		if created {
			s.log.Info("member joined room", "room_id", roomID, "identity", identity)
		}
		return nil
	})
}

// LeaveGroupRoom removes the identity from a group room. The room is deleted,
// together with its messages and read-status rows, once nobody is left.
func (s *Service) LeaveGroupRoom(ctx context.Context, roomID uint, identity string) error {
	var deleted bool
	err := s.Storage.WithTx(ctx, func(tx storage.Storage) error {
		room, err := roomByID(ctx, tx, roomID)
		if err != nil {
			return err
		}
		member, err := memberByEmail(ctx, tx, identity)
		if err != nil {
			return err
		}
		if !room.IsGroup {
			return fmt.Errorf("%w: room %d is not a group room", ErrInvalidOperation, roomID)
		}

		participant, err := tx.FindParticipant(ctx, room.ID, member.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s is not a participant of room %d", ErrNotFound, identity, roomID)
		}
		if err != nil {
			return err
		}
		if err := tx.RemoveParticipant(ctx, participant.ID); err != nil {
			return fmt.Errorf("leave room %d: %w", roomID, err)
		}

		remaining, err := tx.CountParticipants(ctx, room.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := tx.DeleteRoom(ctx, room.ID); err != nil {
				return fmt.Errorf("delete empty room %d: %w", roomID, err)
			}
			deleted = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("member left room", "room_id", roomID, "identity", identity, "room_deleted", deleted)
	return nil
}

// GetOrCreatePrivateRoom returns the private room shared by the identity and
// the other member, creating it on first use. The lookup is symmetric, so
// both members always end up in the same room.
func (s *Service) GetOrCreatePrivateRoom(ctx context.Context, identity string, otherMemberID uint) (uint, error) {
	me, err := memberByEmail(ctx, s.Storage, identity)
	if err != nil {
		return 0, err
	}
	other, err := s.Storage.GetMemberByID(ctx, otherMemberID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("%w: member %d", ErrNotFound, otherMemberID)
	}
	if err != nil {
		return 0, err
	}
	if me.ID == other.ID {
		return 0, fmt.Errorf("%w: private room with yourself", ErrInvalidOperation)
	}

	existing, err := s.Storage.FindPrivateRoom(ctx, me.ID, other.ID)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("find private room: %w", err)
	}

	var roomID uint
	err = s.Storage.WithTx(ctx, func(tx storage.Storage) error {
		key := models.PrivatePairKey(me.ID, other.ID)
		room := models.Room{Name: me.Name + "-" + other.Name, IsGroup: false, PairKey: &key}
		if err := tx.CreateRoom(ctx, &room); err != nil {
			return err
		}
		for _, memberID := range []uint{me.ID, other.ID} {
			if _, err := tx.AddParticipant(ctx, room.ID, memberID); err != nil {
				return err
			}
		}
		roomID = room.ID
		return nil
	})
	if err != nil {
		// A concurrent request for the same pair may have won the pair_key insert.
		if existing, lookupErr := s.Storage.FindPrivateRoom(ctx, me.ID, other.ID); lookupErr == nil {
			return existing.ID, nil
		}
		return 0, fmt.Errorf("create private room: %w", err)
	}

	s.log.Info("private room created", "room_id", roomID, "identity", identity, "other_member_id", otherMemberID)
	return roomID, nil
}

// SaveMessage persists a message and one read-status row per current
// participant (the sender's row is already read) in a single transaction.
func (s *Service) SaveMessage(ctx context.Context, roomID uint, senderIdentity, text string) (*models.Message, error) {
	var msg models.Message
	err := s.Storage.WithTx(ctx, func(tx storage.Storage) error {
		room, err := roomByID(ctx, tx, roomID)
		if err != nil {
			return err
		}
		sender, err := memberByEmail(ctx, tx, senderIdentity)
		if err != nil {
			return err
		}

		msg = models.Message{RoomID: room.ID, SenderID: sender.ID, Content: text}
		if err := tx.CreateMessage(ctx, &msg); err != nil {
			return fmt.Errorf("save message: %w", err)
		}

		participants, err := tx.ListParticipants(ctx, room.ID)
		if err != nil {
			return err
		}
		statuses := lo.Map(participants, func(p models.Participant, _ int) models.ReadStatus {
			return models.ReadStatus{
				RoomID:    room.ID,
				MemberID:  p.MemberID,
				MessageID: msg.ID,
				IsRead:    p.MemberID == sender.ID,
			}
		})
		if err := tx.CreateReadStatuses(ctx, statuses); err != nil {
			return fmt.Errorf("save read statuses: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRoomRead marks every message of the room as read for the identity.
func (s *Service) MarkRoomRead(ctx context.Context, roomID uint, identity string) error {
	return s.Storage.WithTx(ctx, func(tx storage.Storage) error {
		room, err := roomByID(ctx, tx, roomID)
		if err != nil {
			return err
		}
		member, err := memberByEmail(ctx, tx, identity)
		if err != nil {
			return err
		}
		if _, err := tx.MarkRoomRead(ctx, room.ID, member.ID); err != nil {
			return fmt.Errorf("mark room %d read: %w", roomID, err)
		}
		return nil
	})
}

// GetHistory returns the room messages, oldest first. Only participants may
// read a room's history.
func (s *Service) GetHistory(ctx context.Context, roomID uint, identity string) ([]HistoryEntry, error) {
	var messages []models.Message
	err := s.Storage.WithTx(ctx, func(tx storage.Storage) error {
		room, err := roomByID(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if err := requireParticipant(ctx, tx, room.ID, identity); err != nil {
			return err
		}
		messages, err = tx.ListMessages(ctx, room.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return lo.Map(messages, func(m models.Message, _ int) HistoryEntry {
		return HistoryEntry{RoomID: m.RoomID, Message: m.Content, SenderEmail: m.Sender.Email}
	}), nil
}

// ListMyRooms returns the rooms the identity participates in with the number
// of messages the identity has not read yet.
func (s *Service) ListMyRooms(ctx context.Context, identity string) ([]MyRoom, error) {
	var (
		participations []models.Participant
		unread         map[uint]int64
	)
	err := s.Storage.WithTx(ctx, func(tx storage.Storage) error {
		member, err := memberByEmail(ctx, tx, identity)
		if err != nil {
			return err
		}
		if participations, err = tx.ListMemberParticipations(ctx, member.ID); err != nil {
			return err
		}
		unread, err = tx.UnreadCountsByRoom(ctx, member.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return lo.Map(participations, func(p models.Participant, _ int) MyRoom {
		return MyRoom{
			RoomID:      p.Room.ID,
			RoomName:    p.Room.Name,
			IsGroupChat: p.Room.IsGroup,
			UnreadCount: unread[p.RoomID],
		}
	}), nil
}

// IsRoomParticipant reports whether the identity currently participates in the room.
func (s *Service) IsRoomParticipant(ctx context.Context, roomID uint, identity string) (bool, error) {
	room, err := roomByID(ctx, s.Storage, roomID)
	if err != nil {
		return false, err
	}
	err = requireParticipant(ctx, s.Storage, room.ID, identity)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrForbidden):
		return false, nil
	default:
		return false, err
	}
}

func roomByID(ctx context.Context, st storage.Storage, roomID uint) (*models.Room, error) {
	room, err := st.GetRoomByID(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: room %d", ErrNotFound, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("get room %d: %w", roomID, err)
	}
	return room, nil
}

func memberByEmail(ctx context.Context, st storage.Storage, email string) (*models.Member, error) {
	member, err := st.GetMemberByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: member %q", ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("get member %q: %w", email, err)
	}
	return member, nil
}

// requireParticipant returns ErrForbidden when the identity is not in the room.
func requireParticipant(ctx context.Context, st storage.Storage, roomID uint, identity string) error {
	member, err := memberByEmail(ctx, st, identity)
	if err != nil {
		return err
	}
	_, err = st.FindParticipant(ctx, roomID, member.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s is not a participant of room %d", ErrForbidden, identity, roomID)
	}
	return err
}
