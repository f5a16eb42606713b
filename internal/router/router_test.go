package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binlog-router/internal/fanout"
	"binlog-router/internal/metrics"
	"binlog-router/internal/model"
)

type fakeReader struct {
	packets  chan model.Packet
	calls    []string
	acked    []model.Position
	startErr error
	stopErr  error
	onAck    func(model.Position)
}

func newFakeReader() *fakeReader {
	return &fakeReader{packets: make(chan model.Packet, 64)}
}

func (f *fakeReader) Start(context.Context) error {
	f.calls = append(f.calls, "start")
	return f.startErr
}

func (f *fakeReader) Stop(context.Context) error {
	f.calls = append(f.calls, "stop")
	return f.stopErr
}

func (f *fakeReader) Restart(context.Context) error {
	f.calls = append(f.calls, "restart")
	return nil
}

func (f *fakeReader) Packets() <-chan model.Packet {
	return f.packets
}

func (f *fakeReader) Ack(pos model.Position) {
	f.acked = append(f.acked, pos)
	if f.onAck != nil {
		f.onAck(pos)
	}
}

type recorder struct {
	events []fanout.Event
}

func (r *recorder) listen(ev fanout.Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) names() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

func tableMap(id uint64, schema, table string) *model.TableMapPacket {
	return &model.TableMapPacket{Data: &model.TableMapData{TableID: id, SchemaName: schema, TableName: table}}
}

func rows(t replication.EventType, id uint64) *model.RowsPacket {
	return &model.RowsPacket{EventType: t, Data: &model.RowsData{TableID: id, Rows: 1}}
}

func query(schema, q string) *model.QueryPacket {
	return &model.QueryPacket{Data: &model.QueryData{Schema: schema, Query: q}}
}

// subscribeAll records every canonical notification in arrival order.
func subscribeAll(rt *Router) *recorder {
	rec := &recorder{}
	for _, name := range []string{
		fanout.EventConnected, fanout.EventDisconnected, fanout.EventReconnecting,
		fanout.EventRecovering, fanout.EventError, fanout.EventChange,
		fanout.EventInsert, fanout.EventUpdate, fanout.EventDelete, fanout.EventTruncate,
	} {
		rt.On(name, rec.listen)
	}
	return rec
}

func TestHandle_RowsVariants(t *testing.T) {
	cases := []struct {
		eventType replication.EventType
		op        model.Operation
	}{
		{replication.WRITE_ROWS_EVENTv0, model.OperationInsert},
		{replication.WRITE_ROWS_EVENTv1, model.OperationInsert},
		{replication.WRITE_ROWS_EVENTv2, model.OperationInsert},
		{replication.UPDATE_ROWS_EVENTv0, model.OperationUpdate},
		{replication.UPDATE_ROWS_EVENTv1, model.OperationUpdate},
		{replication.UPDATE_ROWS_EVENTv2, model.OperationUpdate},
		{replication.DELETE_ROWS_EVENTv0, model.OperationDelete},
		{replication.DELETE_ROWS_EVENTv1, model.OperationDelete},
		{replication.DELETE_ROWS_EVENTv2, model.OperationDelete},
	}
	for _, tc := range cases {
		t.Run(tc.eventType.String(), func(t *testing.T) {
			rt := New(newFakeReader(), Options{})
			rec := subscribeAll(rt)

			rt.Handle(tableMap(42, "shop", "orders"))
			rt.Handle(rows(tc.eventType, 42))

			require.Len(t, rec.events, 2)
			assert.Equal(t, fanout.Event{Name: string(tc.op), Args: []string{"shop", "orders"}}, rec.events[0])
			assert.Equal(t, fanout.Event{Name: fanout.EventChange, Args: []string{"shop", "orders", string(tc.op)}}, rec.events[1])
		})
	}
}

func TestHandle_UnknownTable(t *testing.T) {
	rt := New(newFakeReader(), Options{})
	rec := subscribeAll(rt)

	rt.Handle(rows(replication.WRITE_ROWS_EVENTv2, 99))

	require.Len(t, rec.events, 1)
	assert.Equal(t, fanout.EventError, rec.events[0].Name)
	assert.True(t, model.IsKind(rec.events[0].Err, model.UnknownTable))
	assert.Contains(t, rec.events[0].Err.Error(), "no table id")
}

func TestHandle_MalformedPackets(t *testing.T) {
	rt := New(newFakeReader(), Options{})
	var errs []error
	rt.OnError(func(err error) { errs = append(errs, err) })
	changes := 0
	rt.OnChange(func(model.Change) { changes++ })

	rt.Handle(&model.TableMapPacket{})
	rt.Handle(tableMap(0, "s", "t"))
	rt.Handle(&model.RowsPacket{EventType: replication.WRITE_ROWS_EVENTv2})
	rt.Handle(&model.QueryPacket{})
	rt.Handle(query("s", ""))

	require.Len(t, errs, 5)
	for _, err := range errs {
		assert.True(t, model.IsKind(err, model.MalformedPacket), err.Error())
	}
	assert.Zero(t, changes)
}

func TestHandle_UnrecognizedRowsType(t *testing.T) {
	rt := New(newFakeReader(), Options{})
	var errs []error
	rt.OnError(func(err error) { errs = append(errs, err) })

	rt.Handle(tableMap(1, "s", "t"))
	rt.Handle(rows(replication.QUERY_EVENT, 1))

	require.Len(t, errs, 1)
	assert.True(t, model.IsKind(errs[0], model.UnrecognizedEventType))
}

func TestHandle_Truncate(t *testing.T) {
	rt := New(newFakeReader(), Options{})
	rec := subscribeAll(rt)

	rt.Handle(query("shop", "TRUNCATE TABLE `orders`;"))
	rt.Handle(query("shop", "SELECT 1"))
	rt.Handle(query("shop", "truncate table orders"))

	require.Len(t, rec.events, 2)
	assert.Equal(t, fanout.Event{Name: fanout.EventTruncate, Args: []string{"shop", "orders"}}, rec.events[0])
	assert.Equal(t, fanout.Event{Name: fanout.EventChange, Args: []string{"shop", "orders", "truncate"}}, rec.events[1])
}

func TestHandle_TypedHooks(t *testing.T) {
	rt := New(newFakeReader(), Options{})
	var got []string
	rt.OnInsert(func(schema, table string) { got = append(got, "insert:"+schema+"."+table) })
	rt.OnUpdate(func(schema, table string) { got = append(got, "update:"+schema+"."+table) })
	rt.OnDelete(func(schema, table string) { got = append(got, "delete:"+schema+"."+table) })
	rt.OnTruncate(func(schema, table string) { got = append(got, "truncate:"+schema+"."+table) })

	rt.Handle(tableMap(3, "crm", "leads"))
	rt.Handle(rows(replication.WRITE_ROWS_EVENTv1, 3))
	rt.Handle(rows(replication.UPDATE_ROWS_EVENTv2, 3))
	rt.Handle(rows(replication.DELETE_ROWS_EVENTv0, 3))
	rt.Handle(query("crm", "TRUNCATE leads"))

	assert.Equal(t, []string{"insert:crm.leads", "update:crm.leads", "delete:crm.leads", "truncate:crm.leads"}, got)
}

func TestHandle_DynamicRouting(t *testing.T) {
	rt := New(newFakeReader(), Options{})
	rt.Handle(tableMap(7, "shop", "orders"))

	rec := &recorder{}
	rt.On("shop.orders", rec.listen)
	rt.On("orders.insert", rec.listen)
	require.True(t, rt.DynamicRouting())

	rt.Handle(rows(replication.WRITE_ROWS_EVENTv2, 7))

	require.Len(t, rec.events, 2)
	assert.Equal(t, fanout.Event{Name: "shop.orders", Args: []string{"insert"}}, rec.events[0])
	assert.Equal(t, fanout.Event{Name: "orders.insert"}, rec.events[1])
}

func TestHandle_DynamicKeyNamedLikeCanonicalEvent(t *testing.T) {
	rt := New(newFakeReader(), Options{})
	rt.On("shop.orders", func(fanout.Event) {})

	var inserts []string
	rt.OnInsert(func(schema, table string) { inserts = append(inserts, schema+"."+table) })

	// table named "insert" produces a dynamic "insert" notification with one argument
	rt.Handle(tableMap(8, "app", "insert"))
	assert.NotPanics(t, func() { rt.Handle(rows(replication.WRITE_ROWS_EVENTv2, 8)) })
	assert.Equal(t, []string{"app.insert"}, inserts)
}

func TestHandle_Signals(t *testing.T) {
	rt := New(newFakeReader(), Options{})
	rec := subscribeAll(rt)
	boom := errors.New("connection reset")

	rt.Handle(&model.SignalPacket{Signal: model.SignalConnected})
	rt.Handle(&model.SignalPacket{Signal: model.SignalDisconnected})
	rt.Handle(&model.SignalPacket{Signal: model.SignalError, Err: boom})
	rt.Handle(&model.SignalPacket{Signal: model.SignalReconnecting})
	rt.Handle(&model.SignalPacket{Signal: model.SignalRecovering})

	assert.Equal(t, []string{"connected", "disconnected", "error", "reconnecting", "recovering"}, rec.names())
	assert.Same(t, boom, rec.events[2].Err)
	for _, ev := range rec.events {
		assert.Empty(t, ev.Args)
	}
}

func TestControlPassthrough(t *testing.T) {
	reader := newFakeReader()
	rt := New(reader, Options{})
	ctx := context.Background()

	require.NoError(t, rt.Start(ctx))
	require.NoError(t, rt.Restart(ctx))
	require.NoError(t, rt.Stop(ctx))
	assert.Equal(t, []string{"start", "restart", "stop"}, reader.calls)

	reader.startErr = errors.New("already running")
	reader.stopErr = errors.New("not running")
	assert.ErrorIs(t, rt.Start(ctx), reader.startErr)
	assert.ErrorIs(t, rt.Stop(ctx), reader.stopErr)
}

func TestRegistrySurvivesRestart(t *testing.T) {
	rt := New(newFakeReader(), Options{})
	var errs []error
	rt.OnError(func(err error) { errs = append(errs, err) })
	inserts := 0
	rt.OnInsert(func(string, string) { inserts++ })

	rt.Handle(tableMap(5, "s", "t"))
	require.NoError(t, rt.Restart(context.Background()))
	rt.Handle(rows(replication.WRITE_ROWS_EVENTv2, 5))

	assert.Empty(t, errs)
	assert.Equal(t, 1, inserts)
}

func TestRun_DrainsUntilClosed(t *testing.T) {
	reader := newFakeReader()
	rt := New(reader, Options{})
	rec := subscribeAll(rt)

	reader.packets <- &model.SignalPacket{Signal: model.SignalConnected}
	reader.packets <- tableMap(1, "s", "t")
	reader.packets <- rows(replication.UPDATE_ROWS_EVENTv2, 1)
	close(reader.packets)

	require.NoError(t, rt.Run(context.Background()))
	assert.Equal(t, []string{"connected", "update", "change"}, rec.names())
}

func TestBoundaryAckedAfterTransaction(t *testing.T) {
	reader := newFakeReader()
	rt := New(reader, Options{})
	var seen []string
	rt.OnInsert(func(schema, table string) { seen = append(seen, "insert") })
	reader.onAck = func(pos model.Position) { seen = append(seen, "ack "+pos.String()) }

	reader.packets <- tableMap(1, "s", "t")
	reader.packets <- rows(replication.WRITE_ROWS_EVENTv2, 1)
	reader.packets <- &model.BoundaryPacket{Position: model.Position{Name: "bin.000002", Pos: 450}}
	reader.packets <- rows(replication.WRITE_ROWS_EVENTv2, 1)
	close(reader.packets)

	require.NoError(t, rt.Run(context.Background()))
	assert.Equal(t, []string{"insert", "ack bin.000002:450", "insert"}, seen)
	assert.Equal(t, []model.Position{{Name: "bin.000002", Pos: 450}}, reader.acked)
}

func TestRun_StopsOnContext(t *testing.T) {
	rt := New(newFakeReader(), Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rt.Run(ctx), context.DeadlineExceeded)
}

func TestMetrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	rt := New(newFakeReader(), Options{Metrics: m})

	rt.Handle(tableMap(1, "s", "t"))
	rt.Handle(tableMap(2, "s", "u"))
	rt.Handle(rows(replication.WRITE_ROWS_EVENTv2, 1))
	rt.Handle(rows(replication.WRITE_ROWS_EVENTv2, 9))
	rt.Handle(&model.SignalPacket{Signal: model.SignalConnected})
	rt.Handle(&model.BoundaryPacket{Position: model.Position{Name: "bin.000001", Pos: 10}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsTotal.WithLabelValues("boundary")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PacketsTotal.WithLabelValues("table_map")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PacketsTotal.WithLabelValues("rows")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsTotal.WithLabelValues("signal")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RegistryTables))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("unknown_table")))
	// insert + change + error + connected
	assert.Equal(t, 4.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("canonical")))
	assert.Zero(t, testutil.ToFloat64(m.DynamicRouting))

	rt.On("s.t", func(fanout.Event) {})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DynamicRouting))
	rt.Handle(rows(replication.DELETE_ROWS_EVENTv2, 1))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("dynamic")))
}
