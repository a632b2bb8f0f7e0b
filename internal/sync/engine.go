package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/graph"
	"github.com/rpattn/homegraph/internal/repository"

	"go.uber.org/zap"
)

// State of the engine's exchange loop.
type State int

const (
	StateIdle State = iota
	StateSyncing
)

func (s State) String() string {
	if s == StateSyncing {
		return "syncing"
	}
	return "idle"
}

// Transport carries one request/response exchange to a remote replica. The
// engine prescribes only the payload shape and the idempotent-application
// contract, not HTTP versus anything else.
type Transport interface {
	Exchange(ctx context.Context, req Request) (Response, error)
}

// Engine synchronizes this replica's store with remote replicas. Every
// inbound change is committed independently and durably as it is processed,
// so a cancelled or failed exchange never corrupts store state — at worst the
// checkpoint stays stale, which the next attempt corrects. Local writes are
// not blocked during an exchange; they ride along in the next one.
//
// Checkpoints are owned entirely by the requester: the responder answers from
// the cursor carried in the request and writes nothing, so a response lost in
// transit costs a retransmission, never a change.
type Engine struct {
	deviceID      string
	userID        string
	entities      repository.EntityStore
	relationships repository.RelationshipStore
	checkpoints   repository.CheckpointStore
	conflicts     repository.ConflictStore
	index         *graph.Index
	resolver      domain.ConflictResolver
	logger        *zap.Logger

	mu    sync.Mutex
	state State
}

// NewEngine wires a sync engine for one replica.
func NewEngine(
	deviceID, userID string,
	store repository.Store,
	index *graph.Index,
	resolver domain.ConflictResolver,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		deviceID:      deviceID,
		userID:        userID,
		entities:      store,
		relationships: store,
		checkpoints:   store,
		conflicts:     store,
		index:         index,
		resolver:      resolver,
		logger:        logger,
	}
}

// DeviceID returns the replica identifier the engine announces on the wire.
func (e *Engine) DeviceID() string {
	return e.deviceID
}

// State returns the engine's current exchange state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) beginSync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSyncing {
		return fmt.Errorf("sync already in progress")
	}
	e.state = StateSyncing
	return nil
}

func (e *Engine) endSync() {
	e.mu.Lock()
	e.state = StateIdle
	e.mu.Unlock()
}

// sentChange pairs a wire change with its local feed position, kept so the
// sent cursor can advance once the remote acknowledges the change.
type sentChange struct {
	seq    int64
	change Change
}

// outboundSet is one pass over both change feeds: entities first so edge
// endpoints always precede the edges that reference them.
type outboundSet struct {
	entities      []sentChange
	relationships []sentChange
}

func (o outboundSet) wire() []Change {
	changes := make([]Change, 0, len(o.entities)+len(o.relationships))
	for _, s := range o.entities {
		changes = append(changes, s.change)
	}
	for _, s := range o.relationships {
		changes = append(changes, s.change)
	}
	return changes
}

// cursorAfter returns the given cursor advanced past every collected change.
func (o outboundSet) cursorAfter(c Cursor) Cursor {
	if n := len(o.entities); n > 0 {
		c.EntitySeq = o.entities[n-1].seq
	}
	if n := len(o.relationships); n > 0 {
		c.RelationshipSeq = o.relationships[n-1].seq
	}
	return c
}

func (e *Engine) changesAfter(ctx context.Context, cursor Cursor) (outboundSet, error) {
	entityRows, err := e.entities.EntityChangesAfter(ctx, cursor.EntitySeq)
	if err != nil {
		return outboundSet{}, fmt.Errorf("failed to collect entity changes: %w", err)
	}
	relRows, err := e.relationships.RelationshipChangesAfter(ctx, cursor.RelationshipSeq)
	if err != nil {
		return outboundSet{}, fmt.Errorf("failed to collect relationship changes: %w", err)
	}

	set := outboundSet{
		entities:      make([]sentChange, 0, len(entityRows)),
		relationships: make([]sentChange, 0, len(relRows)),
	}
	for _, row := range entityRows {
		set.entities = append(set.entities, sentChange{seq: row.Seq, change: entityChange(row.Entity)})
	}
	for _, row := range relRows {
		set.relationships = append(set.relationships, sentChange{seq: row.Seq, change: relationshipChange(row.Relationship)})
	}
	return set, nil
}

// BuildSyncRequest collects every local change the remote has not yet
// acknowledged, plus the cursor into the remote's feeds so the remote knows
// where to resume.
func (e *Engine) BuildSyncRequest(ctx context.Context, remoteID string) (Request, error) {
	req, _, err := e.buildRequest(ctx, remoteID)
	return req, err
}

func (e *Engine) buildRequest(ctx context.Context, remoteID string) (Request, outboundSet, error) {
	checkpoint, _, err := e.checkpoints.GetCheckpoint(ctx, remoteID)
	if err != nil {
		return Request{}, outboundSet{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	outbound, err := e.changesAfter(ctx, Cursor{
		EntitySeq:       checkpoint.SentEntitySeq,
		RelationshipSeq: checkpoint.SentRelationshipSeq,
	})
	if err != nil {
		return Request{}, outboundSet{}, err
	}

	return Request{
		ProtocolVersion: ProtocolVersion,
		DeviceID:        e.deviceID,
		UserID:          e.userID,
		Cursor: Cursor{
			EntitySeq:       checkpoint.ReceivedEntitySeq,
			RelationshipSeq: checkpoint.ReceivedRelationshipSeq,
		},
		Changes: outbound.wire(),
	}, outbound, nil
}

// applyChange commits one inbound change. Entity versions are stored
// unconditionally (the store dedupes by (id, version)); a conflict with the
// current latest version is resolved, recorded, and reported but never blocks
// the write — both versions stay retrievable. Returns accepted=false only
// when the change itself is unusable.
func (e *Engine) applyChange(ctx context.Context, c Change) (bool, *domain.ConflictResolution, error) {
	switch c.ChangeType {
	case ChangeTypeCreate, ChangeTypeUpdate:
		return e.applyEntityChange(ctx, c)
	case ChangeTypeRelationship:
		if c.Relationship == nil {
			return false, nil, &domain.ValidationError{Field: "relationship", Reason: "relationship change without payload"}
		}
		return e.applyRelationshipChange(ctx, *c.Relationship)
	default:
		return false, nil, &domain.ValidationError{Field: "change_type", Reason: "unknown change type " + c.ChangeType}
	}
}

func (e *Engine) applyEntityChange(ctx context.Context, c Change) (bool, *domain.ConflictResolution, error) {
	inbound, err := decodeEntity(c)
	if err != nil {
		return false, nil, err
	}

	current, found, err := e.entities.GetEntity(ctx, inbound.ID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to load current version: %w", err)
	}

	var resolution *domain.ConflictResolution
	if found && e.resolver.InConflict(current, inbound) {
		_, resolved := e.resolver.Resolve(current, inbound)
		resolution = &resolved
		if recordErr := e.conflicts.RecordConflict(ctx, resolved); recordErr != nil {
			return false, nil, fmt.Errorf("failed to record conflict: %w", recordErr)
		}
		e.logger.Info("sync conflict resolved",
			zap.String("entity_id", resolved.EntityID.String()),
			zap.String("version_a", resolved.VersionA),
			zap.String("version_b", resolved.VersionB),
			zap.String("winner", resolved.Winner),
		)
	}

	if err := e.entities.StoreEntity(ctx, inbound); err != nil {
		return false, resolution, err
	}
	e.index.ApplyEntity(inbound)
	return true, resolution, nil
}

func (e *Engine) applyRelationshipChange(ctx context.Context, c RelationshipChange) (bool, *domain.ConflictResolution, error) {
	rel, err := decodeRelationship(c)
	if err != nil {
		return false, nil, err
	}

	if err := e.relationships.StoreRelationship(ctx, rel); err != nil {
		if domain.IsReference(err) {
			// Endpoint not here yet; the edge rides along in a later
			// exchange once its entities have arrived.
			e.logger.Warn("deferred relationship with unknown endpoint",
				zap.String("relationship_id", c.ID),
				zap.Error(err),
			)
			return false, nil, nil
		}
		return false, nil, err
	}
	e.index.ApplyRelationship(rel)
	return true, nil, nil
}

// HandleSyncRequest is the responder side of one exchange: apply each inbound
// change, then return the acknowledgement set, the changes after the
// requester's cursor, the advanced cursor, and the conflicts detected during
// application. No responder state is written.
func (e *Engine) HandleSyncRequest(ctx context.Context, req Request) (Response, error) {
	if req.ProtocolVersion != ProtocolVersion {
		return Response{}, &domain.ValidationError{
			Field:  "protocol_version",
			Reason: fmt.Sprintf("unsupported protocol %q, want %q", req.ProtocolVersion, ProtocolVersion),
		}
	}

	accepted := []string{}
	conflicts := []ConflictReport{}

	for _, change := range req.Changes {
		ok, resolution, err := e.applyChange(ctx, change)
		if err != nil {
			e.logger.Warn("skipped unusable inbound change",
				zap.String("change", change.Key()),
				zap.Error(err),
			)
			continue
		}
		if ok {
			accepted = append(accepted, change.Key())
		}
		if resolution != nil {
			conflicts = append(conflicts, ConflictReport{
				EntityID: resolution.EntityID.String(),
				VersionA: resolution.VersionA,
				VersionB: resolution.VersionB,
				Winner:   resolution.Winner,
			})
		}
	}

	// The feeds are read after application, so the requester's own changes
	// now sit past its cursor. They advance the returned cursor but are
	// stripped from the wire; sending them back would be harmless
	// (application is idempotent) but wastes the exchange.
	outbound, err := e.changesAfter(ctx, req.Cursor)
	if err != nil {
		return Response{}, err
	}
	changes := excludeEchoes(outbound.wire(), req.Changes)

	e.logger.Info("handled sync request",
		zap.String("remote_id", req.DeviceID),
		zap.Int("received", len(req.Changes)),
		zap.Int("accepted", len(accepted)),
		zap.Int("returned", len(changes)),
		zap.Int("conflicts", len(conflicts)),
	)

	return Response{
		ProtocolVersion: ProtocolVersion,
		DeviceID:        e.deviceID,
		Accepted:        accepted,
		Cursor:          outbound.cursorAfter(req.Cursor),
		Changes:         changes,
		Conflicts:       conflicts,
	}, nil
}

// ApplySyncResponse is the requester side: apply the changes the remote
// returned, persist the advanced received cursor, and report how many of ours
// the remote accepted plus every conflict seen locally.
func (e *Engine) ApplySyncResponse(ctx context.Context, remoteID string, resp Response) (int, []domain.ConflictResolution, error) {
	if resp.ProtocolVersion != ProtocolVersion {
		return 0, nil, &domain.ValidationError{
			Field:  "protocol_version",
			Reason: fmt.Sprintf("unsupported protocol %q, want %q", resp.ProtocolVersion, ProtocolVersion),
		}
	}

	conflicts := []domain.ConflictResolution{}
	for _, change := range resp.Changes {
		_, resolution, err := e.applyChange(ctx, change)
		if err != nil {
			e.logger.Warn("skipped unusable inbound change",
				zap.String("change", change.Key()),
				zap.Error(err),
			)
			continue
		}
		if resolution != nil {
			conflicts = append(conflicts, *resolution)
		}
	}

	checkpoint, _, err := e.checkpoints.GetCheckpoint(ctx, remoteID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	checkpoint.RemoteID = remoteID
	if resp.Cursor.EntitySeq > checkpoint.ReceivedEntitySeq {
		checkpoint.ReceivedEntitySeq = resp.Cursor.EntitySeq
	}
	if resp.Cursor.RelationshipSeq > checkpoint.ReceivedRelationshipSeq {
		checkpoint.ReceivedRelationshipSeq = resp.Cursor.RelationshipSeq
	}
	checkpoint.UpdatedAt = time.Now().UTC()
	if err := e.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
		return 0, nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return len(resp.Accepted), conflicts, nil
}

// SyncWith runs one full exchange with a remote replica: IDLE -> SYNCING,
// build request, transport round trip, apply response, checkpoint, -> IDLE.
// On transport failure the attempt is reported failed and the state returns
// to IDLE; nothing applied so far is rolled back because nothing needs to be.
func (e *Engine) SyncWith(ctx context.Context, remoteID string, transport Transport) (Summary, error) {
	if err := e.beginSync(); err != nil {
		return Summary{}, err
	}
	defer e.endSync()

	req, outbound, err := e.buildRequest(ctx, remoteID)
	if err != nil {
		return Summary{}, err
	}

	resp, err := transport.Exchange(ctx, req)
	if err != nil {
		e.logger.Warn("sync incomplete, will retry",
			zap.String("remote_id", remoteID),
			zap.Error(err),
		)
		return Summary{}, &domain.TransportError{Op: "exchange", Err: err}
	}

	acceptedByRemote, conflicts, err := e.ApplySyncResponse(ctx, remoteID, resp)
	if err != nil {
		return Summary{}, err
	}

	if err := e.advanceSentCursor(ctx, remoteID, outbound, resp.Accepted); err != nil {
		return Summary{}, err
	}

	summary := Summary{
		RemoteID:         remoteID,
		Sent:             len(req.Changes),
		Received:         len(resp.Changes),
		AcceptedByRemote: acceptedByRemote,
		Conflicts:        conflicts,
	}
	e.logger.Info("sync complete",
		zap.String("remote_id", remoteID),
		zap.Int("sent", summary.Sent),
		zap.Int("received", summary.Received),
		zap.Int("conflicts", len(summary.Conflicts)),
	)
	return summary, nil
}

// advanceSentCursor moves each sent sequence forward over the contiguous
// prefix of acknowledged changes. Stopping at the first unacknowledged change
// keeps it eligible for the next exchange; resending anything already applied
// is a no-op on the remote.
func (e *Engine) advanceSentCursor(ctx context.Context, remoteID string, sent outboundSet, accepted []string) error {
	if len(sent.entities) == 0 && len(sent.relationships) == 0 {
		return nil
	}

	acked := make(map[string]struct{}, len(accepted))
	for _, key := range accepted {
		acked[key] = struct{}{}
	}

	checkpoint, _, err := e.checkpoints.GetCheckpoint(ctx, remoteID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	checkpoint.RemoteID = remoteID

	advanced := false
	for _, s := range sent.entities {
		if _, ok := acked[s.change.Key()]; !ok {
			break
		}
		checkpoint.SentEntitySeq = s.seq
		advanced = true
	}
	for _, s := range sent.relationships {
		if _, ok := acked[s.change.Key()]; !ok {
			break
		}
		checkpoint.SentRelationshipSeq = s.seq
		advanced = true
	}
	if !advanced {
		return nil
	}

	checkpoint.UpdatedAt = time.Now().UTC()
	if err := e.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// excludeEchoes drops outbound changes the requester itself just submitted.
func excludeEchoes(outbound, inbound []Change) []Change {
	if len(inbound) == 0 {
		return outbound
	}
	seen := make(map[string]struct{}, len(inbound))
	for _, c := range inbound {
		seen[c.Key()] = struct{}{}
	}
	kept := outbound[:0]
	for _, c := range outbound {
		if _, echo := seen[c.Key()]; !echo {
			kept = append(kept, c)
		}
	}
	return kept
}
