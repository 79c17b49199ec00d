// Package kernel assembles the governance core: registry, ledger, state
// store, constitution, gate, invariant engine, crisis orchestrator, and the
// fixed-order cycle of domain engines behind a single Ingest entry point.
//
// One kernel instance is constructed explicitly and passed to collaborators;
// there is no ambient global. The capability token is granted once at
// construction and handed only to the gate and the orchestrator.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/covenantworks/charter/pkg/audit"
	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/engines"
	"github.com/covenantworks/charter/pkg/event"
	"github.com/covenantworks/charter/pkg/gate"
	"github.com/covenantworks/charter/pkg/invariant"
	"github.com/covenantworks/charter/pkg/ledger"
	"github.com/covenantworks/charter/pkg/response"
	"github.com/covenantworks/charter/pkg/state"
)

// Persister durably stores the domain map after each completed cycle.
type Persister interface {
	Save(ctx context.Context, domains map[string]map[string]any) error
}

// invariantRunner is satisfied by invariant.Engine.
type invariantRunner interface {
	Run(led invariant.LedgerView, snap map[string]map[string]any) invariant.Report
}

// Options configures kernel construction.
type Options struct {
	// Constitution identity configuration. Zero value gets DefaultConfig.
	Constitution constitution.Config
	// LoadedState is merged over compiled-in defaults. Nil starts fresh.
	LoadedState map[string]map[string]any
	// Persist, when non-nil, receives the domain map after every cycle.
	Persist Persister
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// CycleResult reports one accepted ingestion: the canonical event, its
// ledger entry, the invariant report, and, when the battery failed, the
// containment response. A crisis does not fail the originating Ingest call;
// the cycle completes and the lifecycle is left Suspended.
type CycleResult struct {
	Event      event.Event
	Entry      ledger.Entry
	Invariants invariant.Report
	Crisis     *response.Response
}

// Snapshot is the read-only external view of the kernel.
type Snapshot struct {
	History  []ledger.Entry            `json:"history"`
	Domains  map[string]map[string]any `json:"domains"`
	Mandates state.Mandates            `json:"mandates"`
	AuditLog []audit.Record            `json:"auditLog"`
}

// Kernel is the in-process governance core.
type Kernel struct {
	mu sync.Mutex

	registry *event.Registry
	ledger   *ledger.Ledger
	store    *state.Store
	cons     *constitution.Constitution
	gate     *gate.Gate
	trail    *audit.Trail
	checks   invariantRunner
	orch     *response.Orchestrator
	pipeline []engines.Engine
	persist  Persister
	log      *slog.Logger
	tracer   trace.Tracer

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// New builds and wires a kernel. The store's single capability token is
// granted here and escapes only into the gate and the orchestrator.
func New(opts Options) (*Kernel, error) {
	cfg := opts.Constitution
	if cfg.AdminActor == "" {
		base := constitution.DefaultConfig()
		base.RecoveryToken = cfg.RecoveryToken
		cfg = base
	}
	cons, err := constitution.Default(cfg)
	if err != nil {
		return nil, fmt.Errorf("kernel: constitution: %w", err)
	}

	registry, err := event.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("kernel: registry: %w", err)
	}

	store := state.NewStore(opts.LoadedState)
	token, err := store.Grant()
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	trail := audit.NewTrail()
	g := gate.New(cons, store, token, trail)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	k := &Kernel{
		registry: registry,
		ledger:   ledger.New(),
		store:    store,
		cons:     cons,
		gate:     g,
		trail:    trail,
		checks:   invariant.NewEngine(),
		orch:     response.NewOrchestrator(store, token, trail),
		persist:  opts.Persist,
		log:      logger.With("component", "kernel"),
		tracer:   otel.Tracer("charter/kernel"),
		subs:     make(map[int]func(Snapshot)),
	}
	k.pipeline = []engines.Engine{
		engines.NewSessionEngine(g, store),
		engines.NewCovenantEngine(g, store),
		engines.NewStandingEngine(g, store),
		engines.NewLifecycleEngine(g, store),
		engines.NewAuthorityEngine(g, store),
		engines.NewMandateEngine(g, store),
	}
	return k, nil
}

// Ingest validates, governs, and appends one raw event, then runs the full
// cycle. A mutex serializes cycles: a second Ingest does not begin until the
// previous one has fully completed. Once the event is appended it is
// permanent, even if a later engine of the same cycle rejects its write.
func (k *Kernel) Ingest(ctx context.Context, kind event.Kind, payload map[string]any, actorID string) (*CycleResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	ctx, span := k.tracer.Start(ctx, "kernel.ingest", trace.WithAttributes(
		attribute.String("event.kind", string(kind)),
		attribute.String("event.actor", actorID),
	))
	defer span.End()

	created, err := k.registry.Create(kind, payload, actorID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	ev := *created

	ingestAction := constitution.Action{
		Type:    constitution.ActionIngestEvent,
		Actor:   actorID,
		Rules:   constitution.IngestionRuleSet(),
		Payload: payload,
	}
	appended, err := k.gate.Govern(ctx, ingestAction, func() (any, error) {
		return k.ledger.Append(ev)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	entry := appended.(ledger.Entry)

	result := &CycleResult{Event: ev, Entry: entry}
	cycleErr := k.runCycle(ctx, ev)

	report := k.checks.Run(k.ledger, k.store.Snapshot())
	result.Invariants = report
	if report.Status != invariant.StatusNominal {
		resp, handleErr := k.orch.HandleTrigger(report)
		if handleErr != nil {
			span.RecordError(handleErr)
			return nil, fmt.Errorf("kernel: containment failed: %w", handleErr)
		}
		result.Crisis = &resp
		k.log.Warn("constitutional crisis contained",
			"event", ev.ID, "priorStage", resp.PriorStage)
	}

	if cycleErr != nil {
		// The event stands in the ledger; the rejected derivation does not.
		span.RecordError(cycleErr)
		return result, cycleErr
	}

	if k.persist != nil {
		if err := k.persist.Save(ctx, k.store.Snapshot()); err != nil {
			span.RecordError(err)
			return result, fmt.Errorf("kernel: persist: %w", err)
		}
	}

	k.notify()
	return result, nil
}

func (k *Kernel) runCycle(ctx context.Context, ev event.Event) error {
	history := make([]event.Event, 0, k.ledger.Length())
	for _, entry := range k.ledger.History() {
		history = append(history, entry.Data)
	}
	cyc := engines.Cycle{Event: ev, History: history}

	for _, eng := range k.pipeline {
		if err := eng.Run(ctx, cyc); err != nil {
			return fmt.Errorf("engine %s: %w", eng.Name(), err)
		}
	}
	return nil
}

// Snapshot returns a fully defensive external view.
func (k *Kernel) Snapshot() Snapshot {
	domains := k.store.Snapshot()
	var mandates state.Mandates
	_ = state.Decode(domains[state.DomainMandates], &mandates)
	return Snapshot{
		History:  k.ledger.History(),
		Domains:  domains,
		Mandates: mandates,
		AuditLog: k.trail.Records(),
	}
}

// Trail exposes the audit trail for read access.
func (k *Kernel) Trail() *audit.Trail { return k.trail }

// Ledger exposes the ledger for export and verification.
func (k *Kernel) Ledger() *ledger.Ledger { return k.ledger }

// Subscribe registers a callback invoked with a fresh snapshot after every
// successfully completed cycle, in registration order. The returned function
// cancels the subscription.
func (k *Kernel) Subscribe(fn func(Snapshot)) func() {
	k.subMu.Lock()
	defer k.subMu.Unlock()
	id := k.nextSub
	k.nextSub++
	k.subs[id] = fn
	return func() {
		k.subMu.Lock()
		defer k.subMu.Unlock()
		delete(k.subs, id)
	}
}

func (k *Kernel) notify() {
	snap := k.Snapshot()
	k.subMu.Lock()
	ids := make([]int, 0, len(k.subs))
	for id := range k.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, k.subs[id])
	}
	k.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
