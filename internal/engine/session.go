package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/xforms/internal/bind"
	"github.com/roach88/xforms/internal/instance"
	"github.com/roach88/xforms/internal/ir"
	"github.com/roach88/xforms/internal/xpath"
)

// Session is one live form: the document, its bind registry and the
// dependency graph between them.
//
// Every mutation applies its structural change, then runs one settling
// pass before returning, so callers never observe a half-settled
// document.
//
// CRITICAL: a session is single-writer. Mutations are serialized by an
// atomic guard; a mutation that arrives while another is settling,
// including one issued from a change notification, fails with
// ErrReentrantMutation instead of blocking.
//
// INVARIANTS:
//   - Seq numbers are strictly increasing; seq 0 is the initial pass
//   - Failed mutations leave the document unchanged and consume no seq
//   - Units and watchers of removed instances are released before the
//     pass that follows the removal
type Session struct {
	id       string
	form     *ir.FormDef
	formHash string
	registry *bind.Registry
	doc      *instance.Document
	graph    *Graph
	texts    *textSource
	clock    *Clock
	watchers *watchers
	busy     atomic.Bool

	logger    *slog.Logger
	journal   Journal
	notifier  Notifier
	ids       IDGenerator
	preferred []string
	language  string
}

// SessionOption allows configuration of session parameters.
type SessionOption func(*Session)

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithJournal records the session's mutations and passes.
func WithJournal(j Journal) SessionOption {
	return func(s *Session) { s.journal = j }
}

// WithNotifier receives every change after each pass.
func WithNotifier(n Notifier) SessionOption {
	return func(s *Session) { s.notifier = n }
}

// WithIDGenerator sets the session id source. Default: UUIDv7Generator.
// Use NewFixedGenerator in tests for reproducible journals.
func WithIDGenerator(g IDGenerator) SessionOption {
	return func(s *Session) { s.ids = g }
}

// WithPreferredLanguages chooses the initial language by BCP 47 matching
// against the tags form languages carry, e.g. "fr" selects "Français (fr)".
func WithPreferredLanguages(tags ...string) SessionOption {
	return func(s *Session) { s.preferred = tags }
}

// withLanguage starts the session in the named language, bypassing
// preference matching. The name must be declared by the form.
func withLanguage(name string) SessionOption {
	return func(s *Session) { s.language = name }
}

// PassResult is the outcome of one mutation and the pass it triggered.
type PassResult struct {
	// Seq is the mutation's sequence number; 0 for the initial pass.
	Seq int64 `json:"seq"`

	// Evaluated is the number of units the pass evaluated.
	Evaluated int `json:"evaluated"`

	// EvalErrors counts expressions that failed and degraded.
	EvalErrors int `json:"eval_errors"`

	// Changes holds the snapshot of every changed or created node, in
	// document order.
	Changes []ir.NodeSnapshot `json:"changes,omitempty"`

	// Removed holds the references removed nodes had before removal.
	Removed []ir.Reference `json:"removed,omitempty"`
}

// Load builds a session for form and runs the initial pass, which
// evaluates every unit.
//
// Load fails on the first malformed expression or unknown bind target
// (*bind.RegistrationError) and on any dependency cycle (*bind.CycleError).
// A session is never partially loaded.
func Load(ctx context.Context, form *ir.FormDef, opts ...SessionOption) (*Session, error) {
	s := &Session{
		form:     form,
		clock:    NewClock(),
		watchers: newWatchers(),
		logger:   slog.Default(),
		journal:  nopJournal{},
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}

	hash, err := ir.FormHash(form)
	if err != nil {
		return nil, fmt.Errorf("load form %q: %w", form.ID, err)
	}
	reg, err := bind.Load(form)
	if err != nil {
		return nil, fmt.Errorf("load form %q: %w", form.ID, err)
	}
	doc, err := instance.New(form)
	if err != nil {
		return nil, fmt.Errorf("load form %q: %w", form.ID, err)
	}
	g, err := BuildGraph(reg, doc)
	if err != nil {
		return nil, fmt.Errorf("load form %q: %w", form.ID, err)
	}

	s.formHash = hash
	s.registry = reg
	s.doc = doc
	s.graph = g
	active := s.language
	if active == "" {
		active = initialLanguage(form, s.preferred)
	}
	s.texts = &textSource{form: form, active: active}
	g.texts = s.texts
	g.logger = s.logger
	s.id = s.ids.Generate()

	if err := s.journal.RecordSession(ctx, ir.SessionRecord{
		ID:       s.id,
		FormID:   form.ID,
		FormHash: hash,
		Language: s.texts.active,
	}); err != nil {
		s.logger.Error("journal write failed", "session", s.id, "record", "session", "error", err)
	}

	s.busy.Store(true)
	res := s.settle(ctx, 0, nil)
	s.busy.Store(false)

	s.logger.Info("session loaded",
		"session", s.id,
		"form", form.ID,
		"units", g.Units(),
		"language", s.texts.active,
		"eval_errors", res.EvalErrors,
	)
	return s, nil
}

// SetValue stores value on the leaf at ref and settles.
func (s *Session) SetValue(ctx context.Context, ref ir.Reference, value string) (PassResult, error) {
	if err := s.begin(); err != nil {
		return PassResult{}, err
	}
	defer s.end()

	n, err := s.doc.SetValue(ref, value)
	if err != nil {
		return PassResult{}, err
	}
	seq := s.clock.Next()
	s.record(ctx, ir.MutationRecord{Seq: seq, Kind: ir.MutationSetValue, Ref: n.Ref(), Value: value})
	s.graph.ValueChanged(n)
	return s.settle(ctx, seq, nil), nil
}

// AddRepeatInstances appends count instances to the range at rangeRef.
func (s *Session) AddRepeatInstances(ctx context.Context, rangeRef ir.Reference, count int) (PassResult, error) {
	return s.AddRepeatInstancesAt(ctx, rangeRef, count, 0)
}

// AddRepeatInstancesAt inserts count instances into the range at rangeRef
// so the first lands at 1-based position at; 0 appends. Instances after
// the insertion point renumber and are re-evaluated.
func (s *Session) AddRepeatInstancesAt(ctx context.Context, rangeRef ir.Reference, count, at int) (PassResult, error) {
	if err := s.begin(); err != nil {
		return PassResult{}, err
	}
	defer s.end()

	added, err := s.doc.AddInstances(rangeRef, count, at)
	if err != nil {
		return PassResult{}, err
	}
	rng := added[0].Parent()
	for _, inst := range added {
		if err := s.graph.Attach(inst); err != nil {
			s.rollbackInstances(rng, added)
			return PassResult{}, err
		}
	}

	seq := s.clock.Next()
	s.record(ctx, ir.MutationRecord{Seq: seq, Kind: ir.MutationAddRepeat, Ref: rng.Ref(), Count: count, At: at})
	s.graph.StructureChanged(rng, added[0].Position())
	return s.settle(ctx, seq, nil), nil
}

// rollbackInstances takes added back out of the graph and the document,
// last first so earlier positions hold.
func (s *Session) rollbackInstances(rng *instance.Node, added []*instance.Node) {
	for i := len(added) - 1; i >= 0; i-- {
		s.graph.Detach(added[i])
		if _, err := s.doc.RemoveInstance(rng.Ref(), added[i].Position()); err != nil {
			s.logger.Error("repeat rollback failed", "session", s.id, "ref", added[i].Ref(), "error", err)
		}
	}
}

// RemoveRepeatInstance removes the repeat instance at instanceRef, e.g.
// "/data/rep[2]", with its subtree. Later instances renumber. Units and
// watchers of the removed subtree are released.
func (s *Session) RemoveRepeatInstance(ctx context.Context, instanceRef ir.Reference) (PassResult, error) {
	if err := s.begin(); err != nil {
		return PassResult{}, err
	}
	defer s.end()

	inst, err := s.doc.InstanceAt(instanceRef)
	if err != nil {
		return PassResult{}, err
	}
	rng, index := inst.Parent(), inst.Position()
	ref := inst.Ref()

	var removed []ir.Reference
	instance.WalkFrom(inst, func(n *instance.Node) bool {
		removed = append(removed, n.Ref())
		return true
	})
	if _, err := s.doc.RemoveInstance(rng.Ref(), index); err != nil {
		return PassResult{}, err
	}
	released := s.graph.Detach(inst)
	s.watchers.release(inst)

	seq := s.clock.Next()
	s.record(ctx, ir.MutationRecord{Seq: seq, Kind: ir.MutationRemoveRepeat, Ref: ref})
	s.logger.Debug("repeat instance removed", "session", s.id, "ref", ref, "units_released", released)
	s.graph.StructureChanged(rng, index)
	return s.settle(ctx, seq, removed), nil
}

// SetActiveLanguage switches the language jr:itext resolves in and
// re-evaluates every label and hint.
func (s *Session) SetActiveLanguage(ctx context.Context, name string) (PassResult, error) {
	if err := s.begin(); err != nil {
		return PassResult{}, err
	}
	defer s.end()

	if _, ok := s.form.Language(name); !ok {
		return PassResult{}, NewUnknownLanguageError(s.id, name, s.form.LanguageNames())
	}
	s.texts.active = name

	seq := s.clock.Next()
	s.record(ctx, ir.MutationRecord{Seq: seq, Kind: ir.MutationSetLanguage, Value: name})
	s.graph.LanguageChanged()
	return s.settle(ctx, seq, nil), nil
}

// Recompute re-evaluates every unit without a mutation. On a settled
// session it changes nothing. The pass is not journaled.
func (s *Session) Recompute(ctx context.Context) (PassResult, error) {
	if err := s.begin(); err != nil {
		return PassResult{}, err
	}
	defer s.end()

	s.graph.ScheduleAll()
	pass := s.graph.Settle()
	res := s.result(s.clock.Current(), pass, nil)
	s.notify(pass, res)
	return res, nil
}

// Apply re-applies a journaled mutation.
func (s *Session) Apply(ctx context.Context, m ir.MutationRecord) (PassResult, error) {
	switch m.Kind {
	case ir.MutationSetValue:
		return s.SetValue(ctx, m.Ref, m.Value)
	case ir.MutationAddRepeat:
		return s.AddRepeatInstancesAt(ctx, m.Ref, m.Count, m.At)
	case ir.MutationRemoveRepeat:
		return s.RemoveRepeatInstance(ctx, m.Ref)
	case ir.MutationSetLanguage:
		return s.SetActiveLanguage(ctx, m.Value)
	}
	return PassResult{}, &RuntimeError{
		Code:      ErrCodeInvalidMutation,
		Message:   fmt.Sprintf("unknown mutation kind %q", m.Kind),
		SessionID: s.id,
		Ref:       m.Ref,
	}
}

// Read returns the snapshot of the node at ref.
func (s *Session) Read(ref ir.Reference) (ir.NodeSnapshot, error) {
	return s.doc.Read(ref)
}

// Snapshot returns every node's snapshot in document order.
func (s *Session) Snapshot() []ir.NodeSnapshot {
	return s.doc.Snapshots()
}

// Evaluate parses expr and evaluates it against the current document with
// the node at contextRef as context node; an empty contextRef means the
// document element. It reads nothing the session does not already hold and
// changes nothing.
func (s *Session) Evaluate(expr string, contextRef ir.Reference) (xpath.Value, error) {
	tree, err := xpath.Parse(expr)
	if err != nil {
		return nil, err
	}
	node := s.doc.Root().Children()[0]
	if contextRef != "" {
		if node, err = s.doc.Lookup(contextRef); err != nil {
			return nil, err
		}
	}
	return xpath.Evaluate(tree, xpath.Context{
		Node:      node,
		Root:      s.doc.Root(),
		Instances: s.doc,
		Texts:     s.texts,
	})
}

// Subscribe registers fn to receive the snapshot of the node at ref after
// every pass that changes it. The subscription follows the node through
// renumbering and ends when the node is removed or cancel is called.
func (s *Session) Subscribe(ref ir.Reference, fn func(ir.NodeSnapshot)) (cancel func(), err error) {
	n, err := s.doc.Lookup(ref)
	if err != nil {
		return nil, err
	}
	return s.watchers.add(n, fn), nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Form returns the form the session was loaded from.
func (s *Session) Form() *ir.FormDef { return s.form }

// FormHash returns the content hash of the form.
func (s *Session) FormHash() string { return s.formHash }

// Seq returns the sequence number of the last applied mutation.
func (s *Session) Seq() int64 { return s.clock.Current() }

// Languages lists the form's languages in declaration order.
func (s *Session) Languages() []string { return s.form.LanguageNames() }

// ActiveLanguage returns the language jr:itext currently resolves in.
func (s *Session) ActiveLanguage() string { return s.texts.active }

// Order returns bind nodesets in evaluation order.
func (s *Session) Order() []ir.Reference {
	order := s.registry.Order()
	out := make([]ir.Reference, len(order))
	for i, e := range order {
		out[i] = e.Nodeset
	}
	return out
}

// Registry returns the session's bind registry.
func (s *Session) Registry() *bind.Registry { return s.registry }

func (s *Session) begin() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrReentrantMutation
	}
	return nil
}

func (s *Session) end() { s.busy.Store(false) }

func (s *Session) record(ctx context.Context, rec ir.MutationRecord) {
	rec.SessionID = s.id
	if err := s.journal.RecordMutation(ctx, rec); err != nil {
		s.logger.Error("journal write failed", "session", s.id, "record", "mutation", "seq", rec.Seq, "error", err)
	}
}

// settle runs the pending pass, journals it and notifies observers.
func (s *Session) settle(ctx context.Context, seq int64, removed []ir.Reference) PassResult {
	pass := s.graph.Settle()
	res := s.result(seq, pass, removed)

	if err := s.journal.RecordPass(ctx, ir.PassRecord{
		SessionID:  s.id,
		Seq:        seq,
		Affected:   res.Evaluated,
		EvalErrors: res.EvalErrors,
		Changes:    res.Changes,
	}); err != nil {
		s.logger.Error("journal write failed", "session", s.id, "record", "pass", "seq", seq, "error", err)
	}

	s.logger.Debug("pass settled",
		"session", s.id,
		"seq", seq,
		"evaluated", res.Evaluated,
		"changed", len(res.Changes),
		"removed", len(res.Removed),
		"eval_errors", res.EvalErrors,
	)
	s.notify(pass, res)
	return res
}

func (s *Session) result(seq int64, pass Pass, removed []ir.Reference) PassResult {
	res := PassResult{
		Seq:        seq,
		Evaluated:  pass.Evaluated,
		EvalErrors: pass.EvalErrors,
		Removed:    removed,
	}
	for _, n := range pass.Changed {
		res.Changes = append(res.Changes, n.Snapshot())
	}
	return res
}

func (s *Session) notify(pass Pass, res PassResult) {
	for i, n := range pass.Changed {
		s.watchers.notify(n, res.Changes[i])
		if s.notifier != nil {
			s.notifier.NodeChanged(res.Changes[i])
		}
	}
	if s.notifier != nil {
		for _, ref := range res.Removed {
			s.notifier.NodeRemoved(ref)
		}
	}
}
