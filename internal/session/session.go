package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/ragstack/ragserve/internal/vectorstore"
	"github.com/ragstack/ragserve/provider"
)

var (
	// ErrNotReady is returned when chat is requested before ingestion has
	// completed.
	ErrNotReady = errors.New("preprocessing must be completed before chatting")
	// ErrIngestionInFlight is returned when a second ingestion is requested
	// while one is already running.
	ErrIngestionInFlight = errors.New("an ingestion request is already in flight")
	// ErrBackendUnavailable is returned in the degraded state reached when
	// the durable backend identifier could not be reconnected on startup.
	ErrBackendUnavailable = errors.New("vector backend unavailable, select a backend and re-ingest")
)

type phase int

const (
	phaseEmpty phase = iota
	phasePreprocessing
	phaseReady
)

// DurableState is the pure-data projection of a session. It is the only
// thing ever serialized: live handles and in-memory indices stay in
// Handles by construction.
type DurableState struct {
	ID                string             `json:"id"`
	SelectedBackend   string             `json:"selected_vectordb"`
	SelectedChatModel string             `json:"selected_chat_model"`
	EmbeddingModel    string             `json:"embedding_model"`
	PreprocessingDone bool               `json:"preprocessing_done"`
	DurableIndexID    string             `json:"durable_index_id"`
	Messages          []provider.Message `json:"messages"`
}

// Handles holds the volatile subset: everything that must be
// reconstructed after a restart and must never be persisted.
type Handles struct {
	Vector vectorstore.Handle
}

// DurableStore persists the durable projection. Load returns nil when no
// record exists.
type DurableStore interface {
	Load(ctx context.Context) (*DurableState, error)
	Save(ctx context.Context, state *DurableState) error
	Delete(ctx context.Context) error
}

const (
	DefaultBackend   = string(vectorstore.FAISS)
	DefaultChatModel = "meta-llama/Llama-3.3-70B-Instruct-Turbo"
)

// Session is the single shared operator session. All mutations are
// serialized through one mutex; every durable mutation rewrites the
// durable store with the durable projection only.
type Session struct {
	mu        sync.Mutex
	phase     phase
	prevPhase phase
	state     DurableState
	handles   Handles
	store     DurableStore
	logger    *log.Logger
}

func New(store DurableStore, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		store:  store,
		logger: logger,
		state: DurableState{
			ID:                uuid.NewString(),
			SelectedBackend:   DefaultBackend,
			SelectedChatModel: DefaultChatModel,
		},
	}
}

// Restore reloads durable state on process start and reconnects the
// backend handle. A failed reconnect degrades the session instead of
// failing: the process starts, and chat reports the backend as gone.
func (s *Session) Restore(ctx context.Context, registry *vectorstore.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session state: %w", err)
	}
	if loaded == nil {
		return nil
	}
	if loaded.SelectedBackend == "" {
		loaded.SelectedBackend = DefaultBackend
	}
	if loaded.SelectedChatModel == "" {
		loaded.SelectedChatModel = DefaultChatModel
	}
	s.state = *loaded
	if !s.state.PreprocessingDone {
		s.phase = phaseEmpty
		return nil
	}

	s.phase = phaseReady
	backend, err := vectorstore.ParseBackend(s.state.SelectedBackend)
	if err != nil {
		s.logger.Printf("restore: %v, session degraded", err)
		return nil
	}
	adapter, err := registry.Adapter(backend)
	if err != nil {
		s.logger.Printf("restore: %v, session degraded", err)
		return nil
	}
	if s.state.DurableIndexID == "" {
		s.logger.Printf("restore: no durable index id for %s, session degraded", backend)
		return nil
	}
	handle, err := adapter.Reconnect(ctx, s.state.DurableIndexID)
	if err != nil {
		s.logger.Printf("restore: reconnect %s %q failed: %v, session degraded", backend, s.state.DurableIndexID, err)
		return nil
	}
	s.handles.Vector = handle
	s.logger.Printf("restore: reconnected %s index %q", backend, s.state.DurableIndexID)
	return nil
}

// BeginIngestion moves the session into PreprocessingInFlight. A second
// overlapping ingestion is rejected rather than interleaved.
func (s *Session) BeginIngestion() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == phasePreprocessing {
		return ErrIngestionInFlight
	}
	s.prevPhase = s.phase
	s.phase = phasePreprocessing
	return nil
}

// CompleteIngestion attaches the freshly built handle, marks the session
// Ready, clears the message history and persists the durable projection.
func (s *Session) CompleteIngestion(ctx context.Context, handle vectorstore.Handle, durableID, embeddingModel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state.PreprocessingDone = true
	s.state.SelectedBackend = string(handle.Backend())
	s.state.DurableIndexID = durableID
	s.state.EmbeddingModel = embeddingModel
	s.state.Messages = nil
	if err := s.store.Save(ctx, s.snapshotLocked()); err != nil {
		s.state = prev
		s.phase = s.prevPhase
		return fmt.Errorf("persist session state: %w", err)
	}
	s.handles.Vector = handle
	s.phase = phaseReady
	return nil
}

// FailIngestion rolls the session back to its pre-request state; a
// failed pipeline run leaves no partial index attached and an earlier
// Ready session (with its previous handle) stays usable.
func (s *Session) FailIngestion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == phasePreprocessing {
		s.phase = s.prevPhase
	}
}

// SelectBackend records the chosen backend and persists it.
func (s *Session) SelectBackend(ctx context.Context, name string) error {
	backend, err := vectorstore.ParseBackend(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state.SelectedBackend
	s.state.SelectedBackend = string(backend)
	if err := s.store.Save(ctx, s.snapshotLocked()); err != nil {
		s.state.SelectedBackend = prev
		return fmt.Errorf("persist session state: %w", err)
	}
	return nil
}

// SelectChatModel records the chosen chat model and persists it.
func (s *Session) SelectChatModel(ctx context.Context, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state.SelectedChatModel
	s.state.SelectedChatModel = model
	if err := s.store.Save(ctx, s.snapshotLocked()); err != nil {
		s.state.SelectedChatModel = prev
		return fmt.Errorf("persist session state: %w", err)
	}
	return nil
}

// ChatView is what a chat turn needs from the session: the live
// retriever, the models, and a copy of the history so far.
type ChatView struct {
	Handle         vectorstore.Handle
	ChatModel      string
	EmbeddingModel string
	History        []provider.Message
}

// BeginChat validates the session is Ready with a live handle and
// returns the data a chat turn needs. The history is a copy; it is only
// folded back in via AppendExchange after a successful model call.
func (s *Session) BeginChat() (ChatView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phaseReady || !s.state.PreprocessingDone {
		return ChatView{}, ErrNotReady
	}
	if s.handles.Vector == nil {
		return ChatView{}, ErrBackendUnavailable
	}
	history := make([]provider.Message, len(s.state.Messages))
	copy(history, s.state.Messages)
	return ChatView{
		Handle:         s.handles.Vector,
		ChatModel:      s.state.SelectedChatModel,
		EmbeddingModel: s.state.EmbeddingModel,
		History:        history,
	}, nil
}

// AppendExchange records a completed user/assistant exchange and persists
// it. It is only called after a successful model call, so a failed call
// never leaves a half-formed assistant turn in the history.
func (s *Session) AppendExchange(ctx context.Context, prompt, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := len(s.state.Messages)
	s.state.Messages = append(s.state.Messages,
		provider.Message{Role: provider.RoleUser, Content: prompt},
		provider.Message{Role: provider.RoleAssistant, Content: response},
	)
	if err := s.store.Save(ctx, s.snapshotLocked()); err != nil {
		s.state.Messages = s.state.Messages[:prev]
		return fmt.Errorf("persist session state: %w", err)
	}
	return nil
}

// Reset clears the session to Empty and deletes the durable record.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx); err != nil {
		return fmt.Errorf("delete session state: %w", err)
	}
	s.state = DurableState{
		ID:                uuid.NewString(),
		SelectedBackend:   DefaultBackend,
		SelectedChatModel: DefaultChatModel,
	}
	s.handles = Handles{}
	s.phase = phaseEmpty
	return nil
}

// State returns a copy of the durable projection.
func (s *Session) State() DurableState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.snapshotLocked()
}

// Ready reports whether the session has a completed ingestion attached.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == phaseReady && s.handles.Vector != nil
}

func (s *Session) snapshotLocked() *DurableState {
	cp := s.state
	cp.Messages = make([]provider.Message, len(s.state.Messages))
	copy(cp.Messages, s.state.Messages)
	return &cp
}
