// Package refine drives the write/critique loop that improves a draft before
// it is returned to the caller.
package refine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chatppt_studio/generator"
	"chatppt_studio/history"
)

// DefaultMaxRounds is the number of critique steps performed when Options
// leaves MaxRounds unset.
const DefaultMaxRounds = 3

// State is a node of the refinement state machine.
type State int

const (
	StateWrite State = iota
	StateCritique
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWrite:
		return "write"
	case StateCritique:
		return "critique"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Next is the transition function. Writing past maxRounds ends the loop; a
// critique always leads back to writing.
func Next(s State, round, maxRounds int) State {
	switch s {
	case StateWrite:
		if round > maxRounds {
			return StateDone
		}
		return StateCritique
	case StateCritique:
		return StateWrite
	default:
		return StateDone
	}
}

// Options configures an Engine.
type Options struct {
	WriterPrompt   string
	CritiquePrompt string
	MaxRounds      int
	Logger         *slog.Logger
}

// Result is the outcome of one Refine call.
type Result struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	// Round is the final round counter, 1 + Critiques.
	Round     int `json:"round"`
	Critiques int `json:"critiques"`
}

// Engine runs refinements against a writer and a critic model and keeps the
// session store truncated to the latest artifact.
type Engine struct {
	writer generator.LLMClient
	critic generator.LLMClient
	store  history.Store

	writerPrompt   string
	critiquePrompt string
	maxRounds      int
	logger         *slog.Logger

	locks sessionLocks
}

func NewEngine(writer, critic generator.LLMClient, store history.Store, opts Options) (*Engine, error) {
	if writer == nil {
		return nil, errors.New("writer llm client is required")
	}
	if critic == nil {
		return nil, errors.New("critic llm client is required")
	}
	if store == nil {
		return nil, errors.New("history store is required")
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		writer:         writer,
		critic:         critic,
		store:          store,
		writerPrompt:   opts.WriterPrompt,
		critiquePrompt: opts.CritiquePrompt,
		maxRounds:      opts.MaxRounds,
		logger:         opts.Logger,
	}, nil
}

// Refine improves input through MaxRounds critique steps and one final write.
// Any generation failure aborts the call; nothing partial is returned.
// Calls for the same session id are serialized.
func (e *Engine) Refine(ctx context.Context, sessionID, input string) (Result, error) {
	unlock := e.locks.lock(sessionID)
	defer unlock()

	log := e.logger.With("session", sessionID)
	log.Debug("refinement started", "input", generator.Snippet(input, 100))

	sess := newSession(sessionID, input)
	critiques := 0
	for state := StateWrite; state != StateDone; state = Next(state, sess.Round, e.maxRounds) {
		var err error
		switch state {
		case StateWrite:
			err = e.write(ctx, sess)
		case StateCritique:
			err = e.critique(ctx, sess)
			critiques++
		}
		if err != nil {
			return Result{}, err
		}
		if err := e.store.ClearKeepingLast(ctx, sessionID); err != nil {
			return Result{}, fmt.Errorf("refine: truncate history: %w", err)
		}
	}

	log.Debug("round limit reached, running final write", "round", sess.Round)
	if err := e.write(ctx, sess); err != nil {
		return Result{}, err
	}
	content, err := generator.CleanMarkdown(sess.Draft())
	if err != nil {
		return Result{}, fmt.Errorf("refine: final write: %w", err)
	}

	if err := e.store.Append(ctx, sessionID, generator.UserMessage(content)); err != nil {
		return Result{}, fmt.Errorf("refine: persist result: %w", err)
	}
	log.Info("refinement finished", "round", sess.Round, "critiques", critiques)

	return Result{
		SessionID: sessionID,
		Content:   content,
		Round:     sess.Round,
		Critiques: critiques,
	}, nil
}

// write sends the request, the current draft and any critique to the writer
// and replaces everything after the request with its single output.
func (e *Engine) write(ctx context.Context, sess *Session) error {
	out, err := e.writer.Complete(ctx, generator.Prompt{
		System:  e.writerPrompt,
		History: sess.Messages,
	})
	if err != nil {
		return fmt.Errorf("refine: write round %d: %w", sess.Round, err)
	}
	e.logger.Debug("draft written", "session", sess.ID, "round", sess.Round, "content", generator.Snippet(out, 100))
	sess.Messages = []generator.Message{sess.Messages[0], generator.AssistantMessage(out)}
	return nil
}

// critique asks the critic for feedback on the relabeled working messages and
// appends that feedback after the draft as the next user turn.
func (e *Engine) critique(ctx context.Context, sess *Session) error {
	out, err := e.critic.Complete(ctx, generator.Prompt{
		System:  e.critiquePrompt,
		History: Relabel(sess.Messages),
	})
	if err != nil {
		return fmt.Errorf("refine: critique round %d: %w", sess.Round, err)
	}
	e.logger.Debug("critique received", "session", sess.ID, "round", sess.Round, "content", generator.Snippet(out, 100))
	sess.Messages = append(sess.Messages, generator.UserMessage(out))
	sess.Round++
	return nil
}

// Chat answers one turn using the full stored history of the session and
// records both the question and the answer.
func (e *Engine) Chat(ctx context.Context, sessionID, input string) (string, error) {
	unlock := e.locks.lock(sessionID)
	defer unlock()

	past, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("chat: load history: %w", err)
	}
	msgs := append(past, generator.UserMessage(input))
	out, err := e.writer.Complete(ctx, generator.Prompt{
		System:  e.writerPrompt,
		History: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	if err := e.store.Append(ctx, sessionID, generator.UserMessage(input), generator.AssistantMessage(out)); err != nil {
		return "", fmt.Errorf("chat: persist: %w", err)
	}
	e.logger.Debug("chat turn", "session", sessionID, "history", len(past), "reply", generator.Snippet(out, 100))
	return out, nil
}

// History exposes the persisted messages of a session.
func (e *Engine) History(ctx context.Context, sessionID string) ([]generator.Message, error) {
	return e.store.Get(ctx, sessionID)
}

// MaxRounds reports the configured critique budget.
func (e *Engine) MaxRounds() int {
	return e.maxRounds
}
