package chathub_test

import (
	"context"
	"sync"

	"roomchat/backend/internal/chathub"
	"roomchat/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockSession struct {
	id       string
	identity string
	roomID   uint
	fail     bool

	mu       sync.Mutex
	received [][]byte
	closed   bool
}

func newMockSession(id, identity string, roomID uint) *MockSession {
	return &MockSession{id: id, identity: identity, roomID: roomID}
}

func (s *MockSession) ID() string       { return s.id }
func (s *MockSession) Identity() string { return s.identity }
func (s *MockSession) RoomID() uint     { return s.roomID }

func (s *MockSession) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail || s.closed {
		return chathub.ErrSessionClosed
	}
	s.received = append(s.received, payload)
	return nil
}

func (s *MockSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *MockSession) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.received...)
}

func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockChatService implements chathub.ChatService.
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) SaveMessage(ctx context.Context, roomID uint, senderIdentity, text string) (*models.Message, error) {
	args := m.Called(roomID, senderIdentity, text)
	if msg := args.Get(0); msg != nil {
		return msg.(*models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatService) IsRoomParticipant(ctx context.Context, roomID uint, identity string) (bool, error) {
	args := m.Called(roomID, identity)
	return args.Bool(0), args.Error(1)
}

// MockVerifier implements chathub.IdentityVerifier.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}
