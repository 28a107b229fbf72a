package loop

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pacledger/pacledger/internal/artifact"
	"github.com/pacledger/pacledger/internal/chain"
	"github.com/pacledger/pacledger/internal/graph"
	"github.com/pacledger/pacledger/internal/policy"
	"github.com/pacledger/pacledger/internal/store"
)

// DefaultEscalation is the decision deadline applied when a WRAP arrives
// and the session enters BER_REQUIRED.
const DefaultEscalation = 48 * time.Hour

// Authorizer answers whether an identity may perform a governance
// operation. *policy.Policy satisfies it.
type Authorizer interface {
	IsAuthorized(identity, op string) bool
}

// Machine drives PAC sessions through the governance loop.
//
// Each session is guarded by its own mutex, so transitions for one PAC are
// serialized while different PACs proceed in parallel. The audit trail and
// artifact store serialize their own mutations underneath.
type Machine struct {
	mu       sync.Mutex
	sessions map[string]*sessionSlot

	store      *store.Store
	trail      *chain.Trail
	graph      *graph.Graph
	auth       Authorizer
	tokens     TokenGenerator
	now        func() time.Time
	escalation time.Duration
}

type sessionSlot struct {
	mu sync.Mutex
	s  *Session
}

// Option customizes Machine construction.
type Option func(*Machine)

// WithClock overrides the time source. Tests use this with a stepping
// clock for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithEscalation overrides the BER decision deadline.
func WithEscalation(d time.Duration) Option {
	return func(m *Machine) { m.escalation = d }
}

// WithTokens overrides the dispatch token generator.
func WithTokens(g TokenGenerator) Option {
	return func(m *Machine) { m.tokens = g }
}

// New creates a machine over the given store. The audit trail is opened on
// the same store and shares the machine's clock.
func New(st *store.Store, auth Authorizer, opts ...Option) *Machine {
	m := &Machine{
		sessions:   make(map[string]*sessionSlot),
		store:      st,
		graph:      graph.New(),
		auth:       auth,
		tokens:     UUIDv7Generator{},
		now:        func() time.Time { return time.Now().UTC() },
		escalation: DefaultEscalation,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.trail = chain.New(st, chain.WithClock(m.now))
	return m
}

// Rehydrate restores sessions and the dependency graph from the store
// after a restart. The audit chain is verified first; a machine never
// resumes over a broken chain.
func (m *Machine) Rehydrate(ctx context.Context) error {
	ok, err := m.trail.VerifyChain(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	if !ok {
		return fmt.Errorf("rehydrate: audit chain verification failed, refusing to resume")
	}

	g, err := m.store.LoadGraph(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}

	rows, err := m.store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.graph = g
	for _, row := range rows {
		s, err := sessionFromRow(row)
		if err != nil {
			return fmt.Errorf("rehydrate: %w", err)
		}
		m.sessions[s.PacID] = &sessionSlot{s: s}
	}

	slog.Info("machine rehydrated", "sessions", len(rows), "graph_nodes", g.Len())
	return nil
}

// Trail exposes the audit trail for queries and verification.
func (m *Machine) Trail() *chain.Trail { return m.trail }

// Graph exposes the dependency graph for readiness and ordering queries.
func (m *Machine) Graph() *graph.Graph { return m.graph }

// Store exposes the backing store for artifact reads.
func (m *Machine) Store() *store.Store { return m.store }

// Session returns a snapshot of the session for pacID.
func (m *Machine) Session(pacID string) (Session, bool) {
	m.mu.Lock()
	sl, ok := m.sessions[pacID]
	m.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.s.clone(), true
}

// Sessions returns snapshots of all sessions ordered by PAC id.
func (m *Machine) Sessions() []Session {
	m.mu.Lock()
	slots := make([]*sessionSlot, 0, len(m.sessions))
	for _, sl := range m.sessions {
		slots = append(slots, sl)
	}
	m.mu.Unlock()

	out := make([]Session, 0, len(slots))
	for _, sl := range slots {
		sl.mu.Lock()
		out = append(out, sl.s.clone())
		sl.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PacID < out[j].PacID })
	return out
}

// Receive registers a new PAC and opens its session in PAC_RECEIVED.
// No audit record is written; the chain starts at dispatch.
func (m *Machine) Receive(ctx context.Context, pacID string) (Session, error) {
	if pacID == "" {
		return Session{}, fmt.Errorf("pac id must not be empty")
	}

	m.mu.Lock()
	if _, ok := m.sessions[pacID]; ok {
		m.mu.Unlock()
		return Session{}, newDuplicateSession(pacID)
	}
	s := &Session{
		PacID:     pacID,
		State:     StatePACReceived,
		CreatedAt: m.now(),
	}
	sl := &sessionSlot{s: s}
	m.sessions[pacID] = sl
	m.mu.Unlock()

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if err := m.store.SaveSession(ctx, s.row()); err != nil {
		return Session{}, err
	}

	slog.Info("pac received", "pac", pacID)
	return s.clone(), nil
}

// Dispatch sends the PAC out for execution and issues its dispatch token.
func (m *Machine) Dispatch(ctx context.Context, pacID string) (Session, error) {
	sl, ok := m.slot(pacID)
	if !ok {
		return Session{}, newUnknownSession(pacID, policy.OpDispatch)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	s := sl.s

	if s.Terminal() {
		return Session{}, newTerminalViolation(pacID, policy.OpDispatch, s.State)
	}
	if s.State != StatePACReceived {
		return Session{}, newInvalidTransition(pacID, policy.OpDispatch, s.State)
	}

	token := m.tokens.Generate()
	s.Token = token
	s.State = StateDispatched

	if _, err := m.trail.Append(ctx, chain.Event{
		PacID:  pacID,
		Kind:   chain.EventDispatched,
		Detail: "token=" + token,
	}); err != nil {
		return Session{}, m.forceInvalid(ctx, s, "audit append failed during dispatch", err)
	}
	if err := m.store.SaveSession(ctx, s.row()); err != nil {
		return Session{}, m.forceInvalid(ctx, s, "session save failed during dispatch", err)
	}

	slog.Info("pac dispatched", "pac", pacID, "token", token)
	return s.clone(), nil
}

// ReceiveWrap accepts the WRAP responding to a dispatched PAC.
//
// The transition is compound: the session passes through WRAP_RECEIVED and
// lands in BER_REQUIRED within this call, with the escalation deadline set.
// A failure after the WRAP is stored rolls the session to SESSION_INVALID
// rather than leaving the intermediate state visible.
func (m *Machine) ReceiveWrap(ctx context.Context, pacID, wrapID, issuer string, payload artifact.Object) (Session, error) {
	sl, ok := m.slot(pacID)
	if !ok {
		return Session{}, newUnknownSession(pacID, policy.OpReceiveWrap)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	s := sl.s

	if s.Terminal() {
		return Session{}, newTerminalViolation(pacID, policy.OpReceiveWrap, s.State)
	}
	if s.State != StateDispatched {
		// Covers the second-WRAP case: once a WRAP is attached the session
		// sits in BER_REQUIRED and another receive_wrap is not legal.
		return Session{}, newInvalidTransition(pacID, policy.OpReceiveWrap, s.State)
	}

	wrap, err := artifact.NewWrap(wrapID, pacID, issuer, payload, m.now())
	if err != nil {
		// Nothing has been written; the session stays in DISPATCHED.
		return Session{}, err
	}

	res, err := m.store.PutArtifact(ctx, wrap)
	if err != nil {
		if store.IsHashCollision(err) {
			return Session{}, m.hashCollision(ctx, s, wrap.ContentHash, err)
		}
		return Session{}, m.forceInvalid(ctx, s, "artifact store failed during receive_wrap", err)
	}

	s.WrapID = res.ID
	s.WrapHash = res.ContentHash
	s.State = StateBERRequired
	s.EscalateAt = m.now().Add(m.escalation)

	if _, err := m.trail.Append(ctx, chain.Event{
		PacID:        pacID,
		Kind:         chain.EventWrapReceived,
		ArtifactHash: wrap.ContentHash,
		Detail:       "issuer=" + issuer,
	}); err != nil {
		return Session{}, m.forceInvalid(ctx, s, "audit append failed during receive_wrap", err)
	}
	if err := m.store.SaveSession(ctx, s.row()); err != nil {
		return Session{}, m.forceInvalid(ctx, s, "session save failed during receive_wrap", err)
	}

	slog.Info("wrap received", "pac", pacID, "wrap", res.ID, "escalate_at", s.EscalateAt)
	return s.clone(), nil
}

// IssueBER records the authority's decision over the session's WRAP.
//
// The BER artifact is stored here but its audit record is written at emit
// time; issue and emit together form one decision, and the chain carries
// one record for it.
func (m *Machine) IssueBER(ctx context.Context, pacID, berID, identity string, decision artifact.Decision, payload artifact.Object) (Session, error) {
	sl, ok := m.slot(pacID)
	if !ok {
		return Session{}, newUnknownSession(pacID, policy.OpIssueBER)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	s := sl.s

	if s.Terminal() {
		return Session{}, newTerminalViolation(pacID, policy.OpIssueBER, s.State)
	}
	if !m.auth.IsAuthorized(identity, policy.OpIssueBER) {
		return Session{}, m.authorityViolation(ctx, s, policy.OpIssueBER, identity)
	}
	if s.State != StateBERRequired {
		return Session{}, newInvalidTransition(pacID, policy.OpIssueBER, s.State)
	}

	ber, err := artifact.NewBER(berID, pacID, s.WrapID, identity, decision, payload, m.now())
	if err != nil {
		return Session{}, err
	}

	res, err := m.store.PutArtifact(ctx, ber)
	if err != nil {
		if store.IsHashCollision(err) {
			return Session{}, m.hashCollision(ctx, s, ber.ContentHash, err)
		}
		return Session{}, m.forceInvalid(ctx, s, "artifact store failed during issue_ber", err)
	}

	s.BERID = res.ID
	s.BERHash = res.ContentHash
	s.Decision = decision
	s.State = StateBERIssued

	if err := m.store.SaveSession(ctx, s.row()); err != nil {
		return Session{}, m.forceInvalid(ctx, s, "session save failed during issue_ber", err)
	}

	slog.Info("ber issued", "pac", pacID, "ber", res.ID, "decision", decision)
	return s.clone(), nil
}

// EmitBER publishes the issued decision and writes its audit record.
func (m *Machine) EmitBER(ctx context.Context, pacID, identity string) (Session, error) {
	sl, ok := m.slot(pacID)
	if !ok {
		return Session{}, newUnknownSession(pacID, policy.OpEmitBER)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	s := sl.s

	if s.Terminal() {
		return Session{}, newTerminalViolation(pacID, policy.OpEmitBER, s.State)
	}
	if !m.auth.IsAuthorized(identity, policy.OpEmitBER) {
		return Session{}, m.authorityViolation(ctx, s, policy.OpEmitBER, identity)
	}
	if s.State != StateBERIssued {
		return Session{}, newInvalidTransition(pacID, policy.OpEmitBER, s.State)
	}

	s.State = StateBEREmitted
	s.EscalateAt = time.Time{}

	if _, err := m.trail.Append(ctx, chain.Event{
		PacID:        pacID,
		Kind:         chain.EventBERIssued,
		ArtifactHash: s.BERHash,
		Detail:       "decision=" + string(s.Decision),
	}); err != nil {
		return Session{}, m.forceInvalid(ctx, s, "audit append failed during emit_ber", err)
	}
	if err := m.store.SaveSession(ctx, s.row()); err != nil {
		return Session{}, m.forceInvalid(ctx, s, "session save failed during emit_ber", err)
	}

	slog.Info("ber emitted", "pac", pacID, "ber", s.BERID, "decision", s.Decision)
	return s.clone(), nil
}

// CreatePDO creates the final outcome record, binding the WRAP and BER
// content hashes, and completes the session.
//
// deps are dependency edges the PDO participates in; they are inserted as
// one atomic batch, so a cycle anywhere in the batch leaves the graph
// untouched. The transition is compound: the session passes through
// PDO_CREATED and lands in SESSION_COMPLETE within this call.
func (m *Machine) CreatePDO(ctx context.Context, pacID, pdoID, identity, outcome string, payload artifact.Object, deps []graph.Edge) (Session, error) {
	sl, ok := m.slot(pacID)
	if !ok {
		return Session{}, newUnknownSession(pacID, policy.OpCreatePDO)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	s := sl.s

	if s.Terminal() {
		return Session{}, newTerminalViolation(pacID, policy.OpCreatePDO, s.State)
	}
	if !m.auth.IsAuthorized(identity, policy.OpCreatePDO) {
		return Session{}, m.authorityViolation(ctx, s, policy.OpCreatePDO, identity)
	}
	if s.State != StateBEREmitted {
		return Session{}, newInvalidTransition(pacID, policy.OpCreatePDO, s.State)
	}

	pdo, err := artifact.NewPDO(pdoID, pacID, s.BERID, identity, outcome, s.WrapHash, s.BERHash, payload, m.now())
	if err != nil {
		return Session{}, err
	}

	res, err := m.store.PutArtifact(ctx, pdo)
	if err != nil {
		if store.IsHashCollision(err) {
			return Session{}, m.hashCollision(ctx, s, pdo.ContentHash, err)
		}
		return Session{}, m.forceInvalid(ctx, s, "artifact store failed during create_pdo", err)
	}

	if err := m.graph.AddNode(res.ID, map[string]string{"pac_id": pacID, "kind": string(artifact.KindPDO)}); err != nil {
		return Session{}, m.forceInvalid(ctx, s, "graph registration failed during create_pdo", err)
	}
	if len(deps) > 0 {
		if err := m.graph.AddEdges(deps); err != nil {
			return Session{}, m.forceInvalid(ctx, s, "dependency declaration failed during create_pdo", err)
		}
	}
	if err := m.persistGraph(ctx, res.ID, deps); err != nil {
		return Session{}, m.forceInvalid(ctx, s, "graph persistence failed during create_pdo", err)
	}

	if m.graph.IsReady(res.ID) {
		if err := m.graph.Finalize(res.ID); err != nil {
			return Session{}, m.forceInvalid(ctx, s, "finalization failed during create_pdo", err)
		}
		if err := m.store.SaveNode(ctx, graph.Node{ArtifactID: res.ID, Status: graph.StatusFinalized}); err != nil {
			return Session{}, m.forceInvalid(ctx, s, "graph persistence failed during create_pdo", err)
		}
	}

	s.PDOID = res.ID
	s.PDOHash = res.ContentHash
	s.Outcome = outcome
	s.State = StateSessionComplete
	s.TerminalAt = m.now()

	if _, err := m.trail.Append(ctx, chain.Event{
		PacID:        pacID,
		Kind:         chain.EventPDOCommitted,
		ArtifactHash: pdo.ContentHash,
		Detail:       "outcome=" + outcome,
	}); err != nil {
		return Session{}, m.forceInvalid(ctx, s, "audit append failed during create_pdo", err)
	}
	if err := m.store.SaveSession(ctx, s.row()); err != nil {
		return Session{}, m.forceInvalid(ctx, s, "session save failed during create_pdo", err)
	}

	slog.Info("pdo committed", "pac", pacID, "pdo", res.ID, "outcome", outcome)
	return s.clone(), nil
}

// Timeout invalidates a session whose escalation deadline lapsed while a
// decision was pending. Callers (an external scheduler, or the CLI) decide
// when to fire it; the machine only enforces which states admit it.
func (m *Machine) Timeout(ctx context.Context, pacID string) (Session, error) {
	sl, ok := m.slot(pacID)
	if !ok {
		return Session{}, newUnknownSession(pacID, policy.OpInvalidate)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	s := sl.s

	if s.Terminal() {
		return Session{}, newTerminalViolation(pacID, "timeout", s.State)
	}
	if s.State != StateBERRequired && s.State != StateBERIssued {
		return Session{}, newInvalidTransition(pacID, "timeout", s.State)
	}

	return m.invalidateLocked(ctx, s, "ESCALATION_TIMEOUT")
}

// Invalidate cancels a session. SESSION_INVALID is a sink: invalidating an
// already-invalid session is an idempotent no-op and writes no duplicate
// record. A completed session cannot be invalidated.
func (m *Machine) Invalidate(ctx context.Context, pacID, reason string) (Session, error) {
	sl, ok := m.slot(pacID)
	if !ok {
		return Session{}, newUnknownSession(pacID, policy.OpInvalidate)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	s := sl.s

	if s.State == StateSessionComplete {
		return Session{}, newTerminalViolation(pacID, policy.OpInvalidate, s.State)
	}
	if s.State == StateSessionInvalid {
		slog.Debug("invalidate on invalid session ignored", "pac", pacID, "reason", reason)
		return s.clone(), nil
	}

	return m.invalidateLocked(ctx, s, reason)
}

// invalidateLocked moves s to SESSION_INVALID with an audit record.
// Caller holds the session lock.
func (m *Machine) invalidateLocked(ctx context.Context, s *Session, reason string) (Session, error) {
	s.State = StateSessionInvalid
	s.Reason = reason
	s.TerminalAt = m.now()
	s.EscalateAt = time.Time{}

	if _, err := m.trail.Append(ctx, chain.Event{
		PacID:  s.PacID,
		Kind:   chain.EventSessionInvalidated,
		Detail: "reason=" + reason,
	}); err != nil {
		// The session stays invalid even if the record could not be
		// written; fail-closed beats fail-silent.
		slog.Error("audit append failed during invalidate", "pac", s.PacID, "error", err)
	}
	if err := m.store.SaveSession(ctx, s.row()); err != nil {
		slog.Error("session save failed during invalidate", "pac", s.PacID, "error", err)
	}

	slog.Warn("session invalidated", "pac", s.PacID, "reason", reason)
	return s.clone(), nil
}

// authorityViolation records an unauthorized attempt and fails the session
// closed. Exactly one audit record is written for the incident.
func (m *Machine) authorityViolation(ctx context.Context, s *Session, op, identity string) error {
	v := newAuthorityViolation(s.PacID, op, identity, s.State)

	s.State = StateSessionInvalid
	s.Reason = string(CodeAuthorityViolation)
	s.TerminalAt = m.now()
	s.EscalateAt = time.Time{}

	if _, err := m.trail.Append(ctx, chain.Event{
		PacID:  s.PacID,
		Kind:   chain.EventAuthorityViolation,
		Detail: fmt.Sprintf("op=%s identity=%s", op, identity),
	}); err != nil {
		slog.Error("audit append failed recording authority violation", "pac", s.PacID, "error", err)
	}
	if err := m.store.SaveSession(ctx, s.row()); err != nil {
		slog.Error("session save failed recording authority violation", "pac", s.PacID, "error", err)
	}

	slog.Warn("authority violation", "pac", s.PacID, "op", op, "identity", identity)
	return v
}

// hashCollision records a content-hash collision and fails the session
// closed. A collision is a security incident, never a silent overwrite.
func (m *Machine) hashCollision(ctx context.Context, s *Session, contentHash string, cause error) error {
	s.State = StateSessionInvalid
	s.Reason = "HASH_COLLISION"
	s.TerminalAt = m.now()
	s.EscalateAt = time.Time{}

	if _, err := m.trail.Append(ctx, chain.Event{
		PacID:        s.PacID,
		Kind:         chain.EventHashCollision,
		ArtifactHash: contentHash,
	}); err != nil {
		slog.Error("audit append failed recording hash collision", "pac", s.PacID, "error", err)
	}
	if err := m.store.SaveSession(ctx, s.row()); err != nil {
		slog.Error("session save failed recording hash collision", "pac", s.PacID, "error", err)
	}

	slog.Error("hash collision", "pac", s.PacID, "content_hash", contentHash)
	return cause
}

// forceInvalid is the fail-closed path for mid-transition failures: the
// session lands in SESSION_INVALID and the original error is returned. The
// audit record and session save are best-effort; a failing side effect
// must not resurrect the session.
func (m *Machine) forceInvalid(ctx context.Context, s *Session, msg string, cause error) error {
	s.State = StateSessionInvalid
	s.Reason = msg
	s.TerminalAt = m.now()
	s.EscalateAt = time.Time{}

	if _, err := m.trail.Append(ctx, chain.Event{
		PacID:  s.PacID,
		Kind:   chain.EventSessionInvalidated,
		Detail: "reason=" + msg,
	}); err != nil {
		slog.Error("audit append failed during fail-closed invalidation", "pac", s.PacID, "error", err)
	}
	if err := m.store.SaveSession(ctx, s.row()); err != nil {
		slog.Error("session save failed during fail-closed invalidation", "pac", s.PacID, "error", err)
	}

	slog.Error("transition failed closed", "pac", s.PacID, "reason", msg, "error", cause)
	return fmt.Errorf("%s (pac=%s): %w", msg, s.PacID, cause)
}

// persistGraph saves the PDO node and the batch's edges and implicit
// nodes. The in-memory graph is authoritative within a process; rows exist
// for rehydration.
func (m *Machine) persistGraph(ctx context.Context, pdoID string, deps []graph.Edge) error {
	node, err := m.graph.Node(pdoID)
	if err != nil {
		return err
	}
	if err := m.store.SaveNode(ctx, node); err != nil {
		return err
	}
	for _, e := range deps {
		for _, id := range []string{e.UpstreamID, e.DownstreamID} {
			if id == pdoID {
				continue
			}
			n, err := m.graph.Node(id)
			if err != nil {
				return err
			}
			if err := m.store.SaveNode(ctx, n); err != nil {
				return err
			}
		}
		if err := m.store.SaveEdge(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) slot(pacID string) (*sessionSlot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sl, ok := m.sessions[pacID]
	return sl, ok
}
