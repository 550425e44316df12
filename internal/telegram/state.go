package telegram

import (
	"context"
	"sync"

	"github.com/suspectuso/proxipay/internal/composer"
)

// Screen is the view a chat is currently looking at.
type Screen string

const (
	ScreenMenu      Screen = "menu"
	ScreenBroadcast Screen = "broadcast"
	ScreenNearby    Screen = "nearby"
	ScreenKeypad    Screen = "keypad"
	ScreenCart      Screen = "cart"
	ScreenProfile   Screen = "profile"
)

// UsesRadio reports whether the screen holds the radio while open.
func (s Screen) UsesRadio() bool {
	return s == ScreenBroadcast || s == ScreenNearby
}

// Session is one chat's console state.
type Session struct {
	ChatID    int64
	MessageID int
	Screen    Screen
	Composer  *composer.Composer

	// screenGen changes every time the chat switches screen so delayed
	// work can tell whether its screen is still open.
	screenGen uint64
}

// SessionManager tracks console sessions and which one owns the radio.
type SessionManager struct {
	mu          sync.Mutex
	sessions    map[int64]*Session
	newComposer func() *composer.Composer

	radioOwner  int64
	radioCancel context.CancelFunc
}

func NewSessionManager(newComposer func() *composer.Composer) *SessionManager {
	return &SessionManager{
		sessions:    make(map[int64]*Session),
		newComposer: newComposer,
	}
}

// Get returns the chat's session, creating it on first use.
func (sm *SessionManager) Get(chatID int64) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.getLocked(chatID)
}

func (sm *SessionManager) getLocked(chatID int64) *Session {
	s, ok := sm.sessions[chatID]
	if !ok {
		s = &Session{ChatID: chatID, Screen: ScreenMenu}
		if sm.newComposer != nil {
			s.Composer = sm.newComposer()
		}
		sm.sessions[chatID] = s
	}
	return s
}

// Show records that chatID now shows screen in messageID and returns the
// screen generation. Leaving a radio screen releases the radio.
func (sm *SessionManager) Show(chatID int64, screen Screen, messageID int) uint64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s := sm.getLocked(chatID)
	s.Screen = screen
	if messageID != 0 {
		s.MessageID = messageID
	}
	s.screenGen++

	if !screen.UsesRadio() && sm.radioOwner == chatID && sm.radioCancel != nil {
		sm.radioCancel()
		sm.radioCancel = nil
		sm.radioOwner = 0
	}
	return s.screenGen
}

// Current returns the screen, message and generation for chatID.
func (sm *SessionManager) Current(chatID int64) (Screen, int, uint64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := sm.getLocked(chatID)
	return s.Screen, s.MessageID, s.screenGen
}

// ClaimRadio cancels whatever screen held the radio and returns a context
// that lives until chatID leaves its radio screen.
func (sm *SessionManager) ClaimRadio(parent context.Context, chatID int64) context.Context {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.radioCancel != nil {
		sm.radioCancel()
	}
	ctx, cancel := context.WithCancel(parent)
	sm.radioOwner = chatID
	sm.radioCancel = cancel
	return ctx
}

// ReleaseRadio cancels the radio context if chatID holds it.
func (sm *SessionManager) ReleaseRadio(chatID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.radioOwner == chatID && sm.radioCancel != nil {
		sm.radioCancel()
		sm.radioCancel = nil
		sm.radioOwner = 0
	}
}

// RadioOwner returns the chat holding the radio, or 0.
func (sm *SessionManager) RadioOwner() int64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.radioOwner
}

// Clear drops the chat's session and releases the radio it holds.
func (sm *SessionManager) Clear(chatID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.radioOwner == chatID && sm.radioCancel != nil {
		sm.radioCancel()
		sm.radioCancel = nil
		sm.radioOwner = 0
	}
	delete(sm.sessions, chatID)
}
