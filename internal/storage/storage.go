package storage

import (
	"context"
	"errors"
	"fmt"

	"roomchat/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Storage is the persistence contract of the chat core.
// Every method runs against the transaction it was obtained from when it is
// called through WithTx.
type Storage interface {
	WithTx(ctx context.Context, fn func(tx Storage) error) error
	Ping(ctx context.Context) error

	SaveMember(ctx context.Context, member *models.Member) error
	GetMemberByID(ctx context.Context, id uint) (*models.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (*models.Member, error)

	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoomByID(ctx context.Context, id uint) (*models.Room, error)
	ListGroupRooms(ctx context.Context) ([]models.Room, error)
	FindPrivateRoom(ctx context.Context, memberA, memberB uint) (*models.Room, error)
	DeleteRoom(ctx context.Context, id uint) error

	AddParticipant(ctx context.Context, roomID, memberID uint) (bool, error)
	FindParticipant(ctx context.Context, roomID, memberID uint) (*models.Participant, error)
	RemoveParticipant(ctx context.Context, participantID uint) error
	ListParticipants(ctx context.Context, roomID uint) ([]models.Participant, error)
	CountParticipants(ctx context.Context, roomID uint) (int64, error)
	ListMemberParticipations(ctx context.Context, memberID uint) ([]models.Participant, error)

	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, roomID uint) ([]models.Message, error)

	CreateReadStatuses(ctx context.Context, statuses []models.ReadStatus) error
	MarkRoomRead(ctx context.Context, roomID, memberID uint) (int64, error)
	UnreadCountsByRoom(ctx context.Context, memberID uint) (map[uint]int64, error)
}

// Service implements Storage on top of gorm.
type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Migrate creates or updates the tables of every chat model.
func (s *Service) Migrate(ctx context.Context) error {
	return s.DB.WithContext(ctx).AutoMigrate(models.All()...)
}

// WithTx runs fn inside a database transaction. The transaction is committed
// when fn returns nil and rolled back otherwise.
func (s *Service) WithTx(ctx context.Context, fn func(tx Storage) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Service{DB: tx})
	})
}

func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Service) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Service) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

// translate maps gorm sentinel errors onto the storage ones.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// --- Members ---

// SaveMember inserts or updates a member.
func (s *Service) SaveMember(ctx context.Context, member *models.Member) error {
	return translate(s.db(ctx).Save(member).Error)
}

func (s *Service) GetMemberByID(ctx context.Context, id uint) (*models.Member, error) {
	var member models.Member
	if err := s.db(ctx).First(&member, id).Error; err != nil {
		return nil, translate(err)
	}
	return &member, nil
}

func (s *Service) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	var member models.Member
	if err := s.db(ctx).Where("email = ?", email).First(&member).Error; err != nil {
		return nil, translate(err)
	}
	return &member, nil
}

// --- Rooms ---

// CreateRoom inserts a new room and fills room.ID.
// ErrDuplicate means a private room for the same pair already exists.
func (s *Service) CreateRoom(ctx context.Context, room *models.Room) error {
	return translate(s.db(ctx).Create(room).Error)
}

func (s *Service) GetRoomByID(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	if err := s.db(ctx).First(&room, id).Error; err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

// ListGroupRooms returns all group rooms, oldest first.
func (s *Service) ListGroupRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := s.db(ctx).Where("is_group = ?", true).Order("id asc").Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

// FindPrivateRoom looks up the non-group room shared by both members.
// The lookup is symmetric: only rooms in which both members are participants
// (two distinct member ids among the pair) qualify.
func (s *Service) FindPrivateRoom(ctx context.Context, memberA, memberB uint) (*models.Room, error) {
	db := s.db(ctx)
	shared := db.Model(&models.Participant{}).
		Select("room_id").
		Where("member_id IN ?", []uint{memberA, memberB}).
		Group("room_id").
		Having("COUNT(DISTINCT member_id) = ?", 2)

	var room models.Room
	err := db.Where("is_group = ?", false).
		Where("id IN (?)", shared).
		Order("id asc").
		First(&room).Error
	if err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

// DeleteRoom removes a room together with its participants, messages and
// read-status rows.
func (s *Service) DeleteRoom(ctx context.Context, id uint) error {
	db := s.db(ctx)
	if err := db.Where("room_id = ?", id).Delete(&models.ReadStatus{}).Error; err != nil {
		return err
	}
	if err := db.Where("room_id = ?", id).Delete(&models.Message{}).Error; err != nil {
		return err
	}
	if err := db.Where("room_id = ?", id).Delete(&models.Participant{}).Error; err != nil {
		return err
	}
	result := db.Delete(&models.Room{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Participants ---

// AddParticipant joins a member to a room. It reports false when the member
// was already a participant; the existing row is left untouched.
func (s *Service) AddParticipant(ctx context.Context, roomID, memberID uint) (bool, error) {
	p := models.Participant{RoomID: roomID, MemberID: memberID}
	result := s.db(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).
		Create(&p)
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) FindParticipant(ctx context.Context, roomID, memberID uint) (*models.Participant, error) {
	var p models.Participant
	err := s.db(ctx).Where("room_id = ? AND member_id = ?", roomID, memberID).First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Service) RemoveParticipant(ctx context.Context, participantID uint) error {
	result := s.db(ctx).Delete(&models.Participant{}, participantID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListParticipants returns the current participants of a room.
func (s *Service) ListParticipants(ctx context.Context, roomID uint) ([]models.Participant, error) {
	var participants []models.Participant
	if err := s.db(ctx).Where("room_id = ?", roomID).Order("id asc").Find(&participants).Error; err != nil {
		return nil, err
	}
	return participants, nil
}

func (s *Service) CountParticipants(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := s.db(ctx).Model(&models.Participant{}).Where("room_id = ?", roomID).Count(&count).Error
	return count, err
}

// ListMemberParticipations returns the member's participant rows with the
// joined room preloaded.
func (s *Service) ListMemberParticipations(ctx context.Context, memberID uint) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.db(ctx).Preload("Room").
		Where("member_id = ?", memberID).
		Order("room_id asc").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

// --- Messages ---

// CreateMessage saves a message and fills msg.ID and msg.CreatedAt.
func (s *Service) CreateMessage(ctx context.Context, msg *models.Message) error {
	return translate(s.db(ctx).Omit(clause.Associations).Create(msg).Error)
}

// ListMessages returns the room history, oldest first, with senders preloaded.
func (s *Service) ListMessages(ctx context.Context, roomID uint) ([]models.Message, error) {
	var messages []models.Message
	err := s.db(ctx).Preload("Sender").
		Where("room_id = ?", roomID).
		Order("created_at asc").
		Order("id asc").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// --- Read status ---

// CreateReadStatuses inserts the fan-out rows of one message in a single batch.
func (s *Service) CreateReadStatuses(ctx context.Context, statuses []models.ReadStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	return s.db(ctx).Create(&statuses).Error
}

// MarkRoomRead flips every unread row of the member in the room to read and
// returns the number of rows changed.
func (s *Service) MarkRoomRead(ctx context.Context, roomID, memberID uint) (int64, error) {
	result := s.db(ctx).Model(&models.ReadStatus{}).
		Where("room_id = ? AND member_id = ? AND is_read = ?", roomID, memberID, false).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

// UnreadCountsByRoom returns, per room, how many of the member's rows are unread.
// Rooms without unread rows are absent from the map.
func (s *Service) UnreadCountsByRoom(ctx context.Context, memberID uint) (map[uint]int64, error) {
	var rows []struct {
		RoomID uint
		Unread int64
	}
	err := s.db(ctx).Model(&models.ReadStatus{}).
		Select("room_id, COUNT(*) AS unread").
		Where("member_id = ? AND is_read = ?", memberID, false).
		Group("room_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.RoomID] = r.Unread
	}
	return counts, nil
}
