package refine

import (
	"sync"

	"chatppt_studio/generator"
)

// Session 持有一次修订的临时上下文。
// Messages[0] 是原始请求；写作后跟最新稿件，评审后再跟对该稿件的意见。
// Round 从 1 开始，每次评审加一。
type Session struct {
	ID       string
	Messages []generator.Message
	Round    int
}

func newSession(id, input string) *Session {
	return &Session{
		ID:       id,
		Messages: []generator.Message{generator.UserMessage(input)},
		Round:    1,
	}
}

// Draft 返回最新稿件；首稿之前返回原始请求。
func (s *Session) Draft() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == generator.RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return s.Messages[0].Content
}

// Relabel keeps the first message as is and re-roles every later message as
// user-authored, so the critic reads earlier output as material under review.
// Content is never changed and msgs is not modified.
func Relabel(msgs []generator.Message) []generator.Message {
	out := make([]generator.Message, len(msgs))
	for i, m := range msgs {
		if i > 0 {
			m.Role = generator.RoleUser
		}
		out[i] = m
	}
	return out
}

// sessionLocks hands out one mutex per session id and forgets it once no
// caller holds or waits for it.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sessionLock)
	}
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
