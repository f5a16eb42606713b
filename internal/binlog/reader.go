package binlog

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"binlog-router/internal/checkpoint"
	"binlog-router/internal/metrics"
	"binlog-router/internal/model"
)

// Reader streams binlog packets and lifecycle signals on a single ordered channel.
// The channel stays open across Stop, Start and Restart.
//
// Positions reach the checkpoint store only through Ack, after the consumer has handled
// every packet up to the matching boundary.
type Reader interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Packets() <-chan model.Packet
	Ack(pos model.Position)
}

// eventSource is the part of a started binlog sync the reader consumes.
type eventSource interface {
	GetEvent(ctx context.Context) (*replication.BinlogEvent, error)
	Close()
}

type dialFunc func(ctx context.Context, pos model.Position) (eventSource, error)

// PositionFunc resolves where to start when no checkpoint exists.
type PositionFunc func(ctx context.Context) (model.Position, error)

// SyncReader reads the binlog with a go-mysql BinlogSyncer, reconnecting with jittered
// exponential backoff and resuming from the last committed position.
type SyncReader struct {
	cfg        SourceConfig
	dial       dialFunc
	startPos   PositionFunc
	ckpt       *checkpoint.Manager
	out        chan model.Packet
	errs       *metrics.Counter
	reconnects *metrics.Counter
	prom       *metrics.Metrics
	logger     *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	pos     model.Position // last transaction boundary read
	acked   model.Position // last transaction boundary handled downstream
	curFile string
}

// ReaderOptions configures optional SyncReader collaborators.
type ReaderOptions struct {
	Checkpoints *checkpoint.Manager
	// StartPosition is used when the checkpoint store is empty. Defaults to the server's
	// current binlog position.
	StartPosition PositionFunc
	BufferSize    int
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

func NewSyncReader(cfg SourceConfig, opts ReaderOptions) *SyncReader {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Checkpoints == nil {
		opts.Checkpoints = checkpoint.NewManager(checkpoint.NewMemoryStore(), time.Second, opts.Logger)
	}
	if opts.StartPosition == nil {
		opts.StartPosition = func(ctx context.Context) (model.Position, error) {
			return CurrentPosition(ctx, cfg.DSN)
		}
	}
	r := &SyncReader{
		cfg:        cfg,
		startPos:   opts.StartPosition,
		ckpt:       opts.Checkpoints,
		out:        make(chan model.Packet, opts.BufferSize),
		errs:       metrics.NewCounter("reader_errors"),
		reconnects: metrics.NewCounter("reader_reconnects"),
		prom:       opts.Metrics,
		logger:     opts.Logger,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
	r.dial = r.dialSyncer
	return r
}

func (r *SyncReader) Packets() <-chan model.Packet {
	return r.out
}

// Counters exposes process-local reader statistics for periodic reporting.
func (r *SyncReader) Counters() []*metrics.Counter {
	return []*metrics.Counter{r.errs, r.reconnects}
}

// Position returns the last transaction boundary seen.
func (r *SyncReader) Position() model.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// Start resolves the start position and launches the replication loop.
func (r *SyncReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return fmt.Errorf("binlog reader already started")
	}
	r.mu.Unlock()

	pos := r.Position()
	if pos.IsZero() {
		loaded, err := r.ckpt.Load(ctx)
		if err != nil {
			r.logger.Warn("failed to load checkpoint, using server position", zap.Error(err))
		}
		pos = loaded
	}
	if pos.IsZero() {
		current, err := r.startPos(ctx)
		if err != nil {
			return fmt.Errorf("resolve start position: %w", err)
		}
		pos = current
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	r.mu.Lock()
	r.pos = pos
	r.curFile = pos.Name
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	r.logger.Info("starting binlog replication", zap.Stringer("pos", pos))
	go r.runReplicationLoop(loopCtx, done)
	return nil
}

// Stop ends the replication loop, flushes the checkpoint and emits disconnected.
func (r *SyncReader) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}

	r.logger.Info("stopping binlog replication")
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.mu.Lock()
	acked := r.acked
	r.mu.Unlock()
	if err := r.ckpt.Flush(ctx, acked); err != nil {
		r.logger.Warn("final checkpoint failed", zap.Error(err))
	}
	// The consumer may already be gone; never wait on a full buffer here.
	select {
	case r.out <- &model.SignalPacket{Signal: model.SignalDisconnected}:
	default:
		r.logger.Warn("packet buffer full, dropping disconnected signal")
	}
	return nil
}

// Ack marks pos as handled and checkpoints it, throttled by the checkpoint interval.
func (r *SyncReader) Ack(pos model.Position) {
	if pos.IsZero() {
		return
	}
	r.mu.Lock()
	r.acked = pos
	r.mu.Unlock()
	if err := r.ckpt.MaybeFlush(context.Background(), pos, time.Now()); err != nil {
		r.logger.Warn("checkpoint failed", zap.Stringer("pos", pos), zap.Error(err))
	}
}

func (r *SyncReader) Restart(ctx context.Context) error {
	if err := r.Stop(ctx); err != nil {
		return err
	}
	return r.Start(ctx)
}

func (r *SyncReader) runReplicationLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	backoff := r.minBackoff
	recovering := false

	for {
		if ctx.Err() != nil {
			return
		}
		pos := r.Position()
		if recovering {
			r.send(ctx, &model.SignalPacket{Signal: model.SignalRecovering})
		}

		src, err := r.dial(ctx, pos)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.reportError(ctx, err)
			if isFatalReplicationError(err) {
				r.logger.Error("binlog connection failed", zap.Stringer("pos", pos), zap.Error(err))
				return
			}
			r.logger.Warn("binlog connection failed, will retry", zap.Stringer("pos", pos), zap.Error(err))
			r.reconnecting(ctx)
			backoff = r.sleepWithBackoff(ctx, backoff)
			recovering = true
			continue
		}

		r.send(ctx, &model.SignalPacket{Signal: model.SignalConnected})
		backoff = r.minBackoff
		recovering = false

		err = r.stream(ctx, src)
		src.Close()
		if ctx.Err() != nil {
			return
		}

		r.send(ctx, &model.SignalPacket{Signal: model.SignalDisconnected})
		r.reportError(ctx, err)
		if isFatalReplicationError(err) {
			r.logger.Error("binlog stream stopped due to fatal error", zap.Error(err))
			return
		}
		r.logger.Warn("binlog stream error, reconnecting", zap.Error(err), zap.Stringer("resume_pos", r.Position()))
		r.reconnecting(ctx)
		backoff = r.sleepWithBackoff(ctx, backoff)
		recovering = true
	}
}

// stream converts binlog events into packets until the source fails or ctx ends.
func (r *SyncReader) stream(ctx context.Context, src eventSource) error {
	for {
		ev, err := src.GetEvent(ctx)
		if err != nil {
			return fmt.Errorf("get binlog event: %w", err)
		}

		switch e := ev.Event.(type) {
		case *replication.TableMapEvent:
			r.send(ctx, &model.TableMapPacket{Data: &model.TableMapData{
				TableID:    e.TableID,
				SchemaName: string(e.Schema),
				TableName:  string(e.Table),
			}})
		case *replication.RowsEvent:
			r.send(ctx, &model.RowsPacket{
				EventType: ev.Header.EventType,
				Data:      &model.RowsData{TableID: e.TableID, Rows: len(e.Rows)},
			})
		case *replication.QueryEvent:
			r.send(ctx, &model.QueryPacket{Data: &model.QueryData{
				Query:  string(e.Query),
				Schema: string(e.Schema),
			}})
			if string(e.Query) != "BEGIN" {
				r.commit(ctx, ev.Header.LogPos)
			}
		case *replication.XIDEvent:
			r.commit(ctx, ev.Header.LogPos)
		case *replication.RotateEvent:
			r.rotate(model.Position{Name: string(e.NextLogName), Pos: uint32(e.Position)})
		default:
			r.logger.Debug("skipping binlog event", zap.Stringer("type", ev.Header.EventType))
		}
	}
}

// commit records a transaction boundary; only boundaries are safe resume points since a
// rows event is meaningless without its preceding table map. The boundary is queued behind
// the transaction's packets and checkpointed once the consumer acks it.
func (r *SyncReader) commit(ctx context.Context, logPos uint32) {
	if logPos == 0 {
		return
	}
	r.mu.Lock()
	r.pos = model.Position{Name: r.curFile, Pos: logPos}
	pos := r.pos
	r.mu.Unlock()
	r.send(ctx, &model.BoundaryPacket{Position: pos})
}

func (r *SyncReader) rotate(next model.Position) {
	r.mu.Lock()
	r.curFile = next.Name
	r.pos = next
	r.mu.Unlock()
}

func (r *SyncReader) send(ctx context.Context, pkt model.Packet) {
	select {
	case <-ctx.Done():
	case r.out <- pkt:
	}
}

func (r *SyncReader) reportError(ctx context.Context, err error) {
	r.errs.Inc()
	if r.prom != nil {
		r.prom.ReaderErrors.Inc()
	}
	r.send(ctx, &model.SignalPacket{Signal: model.SignalError, Err: err})
}

func (r *SyncReader) reconnecting(ctx context.Context) {
	r.reconnects.Inc()
	if r.prom != nil {
		r.prom.ReaderReconnects.Inc()
	}
	r.send(ctx, &model.SignalPacket{Signal: model.SignalReconnecting})
}

func (r *SyncReader) dialSyncer(_ context.Context, pos model.Position) (eventSource, error) {
	syncer := replication.NewBinlogSyncer(r.cfg.syncerConfig())
	streamer, err := syncer.StartSync(gomysql.Position{Name: pos.Name, Pos: pos.Pos})
	if err != nil {
		syncer.Close()
		return nil, fmt.Errorf("start binlog sync: %w", err)
	}
	return &syncSource{syncer: syncer, streamer: streamer}, nil
}

type syncSource struct {
	syncer   *replication.BinlogSyncer
	streamer *replication.BinlogStreamer
}

func (s *syncSource) GetEvent(ctx context.Context) (*replication.BinlogEvent, error) {
	return s.streamer.GetEvent(ctx)
}

func (s *syncSource) Close() {
	s.syncer.Close()
}

func (r *SyncReader) sleepWithBackoff(ctx context.Context, backoff time.Duration) time.Duration {
	delay := withJitter(backoff)
	select {
	case <-ctx.Done():
		return backoff
	case <-time.After(delay):
	}
	return nextBackoff(backoff, r.maxBackoff)
}

func isFatalReplicationError(err error) bool {
	if err == nil {
		return false
	}
	var myErr *gomysql.MyError
	if errors.As(err, &myErr) {
		return isFatalErrorCode(myErr.Code)
	}
	var drvErr *mysql.MySQLError
	if errors.As(err, &drvErr) {
		return isFatalErrorCode(drvErr.Number)
	}
	return false
}

func isFatalErrorCode(code uint16) bool {
	switch code {
	case 1044, // database access denied
		1045, // access denied (bad credentials)
		1227, // missing REPLICATION SLAVE / SUPER privilege
		1236: // binlog position no longer available on the server
		return true
	default:
		return false
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	spread := base / 2
	extra := time.Duration(rand.Int63n(int64(spread) + 1))
	return base + extra
}
