package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"snowbotium/internal/models"
	"snowbotium/internal/service/ingest"

	"github.com/google/uuid"
)

const (
	queueLen = 1

	DefaultActionTimeout   = 30 * time.Second
	DefaultSessionIdle     = time.Hour
	DefaultJanitorInterval = 5 * time.Minute
)

var (
	ErrSessionBusy   = errors.New("session is busy with another action")
	ErrNoDocument    = errors.New("upload a document first")
	ErrSessionClosed = errors.New("session closed")
)

// Store persists documents and responses.
type Store interface {
	InsertFile(ctx context.Context, id int64, filename, data string) error
	InsertResponse(ctx context.Context, id int64, prompt, response string) error
	FetchAllResponses(ctx context.Context) ([]string, error)
}

// Generator answers an instruction about a document.
type Generator interface {
	Generate(ctx context.Context, documentText, instruction string) ([]string, error)
}

// Extractor turns an uploaded file into text.
type Extractor interface {
	Extract(ctx context.Context, filename string, r io.Reader) (*ingest.Result, error)
}

type Config struct {
	ActionTimeout time.Duration
	SessionIdle   time.Duration
}

// Manager runs the actions of each session one after another on a dedicated
// goroutine. Sessions do not share state besides the store.
type Manager struct {
	store     Store
	generator Generator
	extractor Extractor
	cfg       Config
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState
}

func NewManager(store Store, generator Generator, extractor Extractor, cfg Config) *Manager {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = DefaultSessionIdle
	}
	return &Manager{
		store:     store,
		generator: generator,
		extractor: extractor,
		cfg:       cfg,
		now:       time.Now,
		sessions:  make(map[string]*sessionState),
	}
}

// StartSession opens a fresh session whose identifiers start again at 1.
func (m *Manager) StartSession() *models.Session {
	return m.ensureSession(uuid.NewString()).snapshot()
}

// EnsureSession returns the session with the given id, opening it if needed.
func (m *Manager) EnsureSession(sessionID string) *models.Session {
	return m.ensureSession(sessionID).snapshot()
}

// Session reports the current state of a session without creating it.
func (m *Manager) Session(sessionID string) (*models.Session, bool) {
	state := m.getSession(sessionID)
	if state == nil {
		return nil, false
	}
	return state.snapshot(), true
}

// Upload extracts the document, stores it under a new identifier and makes it
// the context of later actions.
func (m *Manager) Upload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	ret, err := m.submit(req.SessionID, Job{Type: Upload, Context: ctx, Upload: &req})
	if err != nil {
		return nil, err
	}
	return ret.document, ret.err
}

// Generate runs an instruction against the session's current document.
func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	ret, err := m.submit(req.SessionID, Job{Type: Generate, Context: ctx, Generate: &req})
	if err != nil {
		return nil, err
	}
	return ret.generate, ret.err
}

// History lists every stored response.
func (m *Manager) History(ctx context.Context, sessionID string) ([]string, error) {
	ret, err := m.submit(sessionID, Job{Type: History, Context: ctx})
	if err != nil {
		return nil, err
	}
	return ret.history, ret.err
}

// Stop ends a session. Queued actions fail with ErrSessionClosed.
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if ok {
		state.stop()
	}
}

// Close stops every session.
func (m *Manager) Close() {
	m.mu.Lock()
	states := make([]*sessionState, 0, len(m.sessions))
	for id, state := range m.sessions {
		states = append(states, state)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, state := range states {
		state.stop()
	}
}

// StartJanitor purges idle sessions until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	go m.janitorLoop(ctx, interval)
}

func (m *Manager) janitorLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.purgeIdle(); n > 0 {
				log.Printf("purged %d idle sessions", n)
			}
		}
	}
}

func (m *Manager) purgeIdle() int {
	now := m.now()
	var stale []*sessionState
	m.mu.Lock()
	for id, state := range m.sessions {
		if state.busy() || state.idleSince(now) < m.cfg.SessionIdle {
			continue
		}
		stale = append(stale, state)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, state := range stale {
		state.stop()
	}
	return len(stale)
}

func (m *Manager) ensureSession(sessionID string) *sessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[sessionID]; ok {
		return state
	}
	state := newSessionState(sessionID, m.now(), queueLen)
	m.sessions[sessionID] = state
	go m.runWorker(state)
	return state
}

func (m *Manager) getSession(sessionID string) *sessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

func (m *Manager) submit(sessionID string, job Job) (workerReturn, error) {
	if sessionID == "" {
		return workerReturn{}, errors.New("session id required")
	}
	state := m.ensureSession(sessionID)
	state.touch(m.now())

	job.resultCh = make(chan workerReturn, 1)
	select {
	case <-state.stopCh:
		return workerReturn{}, ErrSessionClosed
	default:
	}
	select {
	case state.jobCh <- job:
	default:
		return workerReturn{}, ErrSessionBusy
	}

	select {
	case ret := <-job.resultCh:
		return ret, nil
	case <-state.doneCh:
		// the job may have finished right before the session stopped
		select {
		case ret := <-job.resultCh:
			return ret, nil
		default:
			return workerReturn{}, ErrSessionClosed
		}
	}
}

func (m *Manager) runWorker(state *sessionState) {
	defer func() {
		close(state.doneCh)
		debugLog("session %s worker stopped", state.id)
	}()

	for {
		select {
		case <-state.stopCh:
			m.drain(state)
			return
		case job := <-state.jobCh:
			state.inflight.Add(1)
			ret := m.handle(state, job)
			state.inflight.Add(-1)
			state.touch(m.now())
			job.resultCh <- ret
		}
	}
}

func (m *Manager) drain(state *sessionState) {
	for {
		select {
		case job := <-state.jobCh:
			job.resultCh <- workerReturn{err: ErrSessionClosed}
		default:
			return
		}
	}
}

func (m *Manager) handle(state *sessionState, job Job) workerReturn {
	parent := job.Context
	if parent == nil {
		parent = context.Background()
	}
	// actions run to completion once started; only the timeout bounds them
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.cfg.ActionTimeout)
	defer cancel()

	start := m.now()
	debugLog("session %s %s started", state.id, job.Type)
	defer func() {
		debugLog("session %s %s finished in %s", state.id, job.Type, m.now().Sub(start))
	}()

	switch job.Type {
	case Upload:
		return m.handleUpload(ctx, state, job.Upload)
	case Generate:
		return m.handleGenerate(ctx, state, job.Generate)
	case History:
		history, err := m.store.FetchAllResponses(ctx)
		return workerReturn{history: history, err: err}
	default:
		return workerReturn{err: fmt.Errorf("unknown job type %d", job.Type)}
	}
}

func (m *Manager) handleUpload(ctx context.Context, state *sessionState, req *UploadRequest) workerReturn {
	if req == nil || req.Body == nil {
		return workerReturn{err: errors.New("upload body required")}
	}
	name := filepath.Base(req.FileName)
	res, err := m.extractor.Extract(ctx, name, req.Body)
	if err != nil {
		return workerReturn{err: err}
	}

	id := state.allocator.Next()
	if err := m.store.InsertFile(ctx, id, name, res.Text); err != nil {
		log.Printf("session %s: store file %d (%s) failed: %v", state.id, id, name, err)
		return workerReturn{err: err}
	}

	doc := &models.Document{
		ID:         id,
		FileName:   name,
		Text:       res.Text,
		Pages:      res.Pages,
		Size:       req.Size,
		UploadedAt: m.now().UTC(),
	}
	state.setDocument(doc)
	return workerReturn{document: doc}
}

func (m *Manager) handleGenerate(ctx context.Context, state *sessionState, req *GenerateRequest) workerReturn {
	if req == nil {
		return workerReturn{err: errors.New("generate request required")}
	}
	doc := state.getDocument()
	if doc == nil {
		return workerReturn{err: ErrNoDocument}
	}

	responses, err := m.generator.Generate(ctx, doc.Text, req.Action.Instruction)
	if err != nil {
		return workerReturn{err: err}
	}

	result := &GenerateResult{ID: doc.ID, Action: req.Action, Responses: responses}
	for _, response := range responses {
		if err := m.store.InsertResponse(ctx, doc.ID, req.Action.Instruction, response); err != nil {
			log.Printf("session %s: store response for %d failed after %d of %d: %v",
				state.id, doc.ID, result.Persisted, len(responses), err)
			result.StorageErr = err
			break
		}
		result.Persisted++
	}
	return workerReturn{generate: result}
}
