package kafkacontrol

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/mohammed-shakir/offline-asset-cache/internal/controller"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/config"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	events []controller.Event
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ev controller.Event) controller.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return controller.Noop{}
}

func (f *fakeDispatcher) seen() []controller.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]controller.Event(nil), f.events...)
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "assetcache-control" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func msg(part int32, off int64, body string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "assetcache-control", Partition: part, Offset: off, Value: []byte(body)}
}

func run(t *testing.T, c *Consumer, part int32, msgs ...*sarama.ConsumerMessage) *sess {
	t.Helper()
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	g := &groupHandler{process: c.ProcessOne}
	if err := g.ConsumeClaim(s, &claim{part: part, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	return s
}

func TestConsumer_DispatchesInOrderAndMarks(t *testing.T) {
	d := &fakeDispatcher{}
	c := New(Config{Topic: "assetcache-control"}, quiet(), nil, d)

	s := run(t, c, 0,
		msg(0, 10, `{"type":"CACHE_MODEL","modelId":"z23"}`),
		msg(0, 11, `{"type":"CLEAR_CACHES"}`),
	)

	got := d.seen()
	if len(got) != 2 {
		t.Fatalf("dispatched %d events", len(got))
	}
	if m := got[0].(controller.Message); m.Type != controller.MsgCacheModel || m.ModelID != "z23" {
		t.Fatalf("first=%+v", m)
	}
	if m := got[1].(controller.Message); m.Type != controller.MsgClearCaches {
		t.Fatalf("second=%+v", m)
	}
	if fmt.Sprint(s.marked) != "[10 11]" {
		t.Fatalf("marked=%v", s.marked)
	}
}

func TestConsumer_SkipsPoisonMessages(t *testing.T) {
	d := &fakeDispatcher{}
	c := New(Config{}, quiet(), nil, d)

	s := run(t, c, 0,
		msg(0, 1, `not json`),
		msg(0, 2, `{"type":"REBOOT"}`),
		msg(0, 3, `{"type":"SKIP_WAITING"}`),
	)
	if len(d.seen()) != 1 {
		t.Fatalf("dispatched %d events", len(d.seen()))
	}
	// poison messages are still marked so the group moves past them
	if len(s.marked) != 3 {
		t.Fatalf("marked=%v", s.marked)
	}
}

func TestConsumer_IgnoresRedelivery(t *testing.T) {
	d := &fakeDispatcher{}
	c := New(Config{}, quiet(), nil, d)

	run(t, c, 0, msg(0, 5, `{"type":"CLEAR_CACHES"}`), msg(0, 6, `{"type":"CLEAR_CACHES"}`))
	// after a rebalance the same offsets arrive again
	run(t, c, 0, msg(0, 5, `{"type":"CLEAR_CACHES"}`), msg(0, 6, `{"type":"CLEAR_CACHES"}`), msg(0, 7, `{"type":"CLEAR_CACHES"}`))
	// other partitions are tracked separately
	run(t, c, 1, msg(1, 5, `{"type":"CLEAR_CACHES"}`))

	if n := len(d.seen()); n != 4 {
		t.Fatalf("dispatched %d events, want 4", n)
	}
}

func TestConsumer_CanceledContext(t *testing.T) {
	c := New(Config{}, quiet(), nil, &fakeDispatcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.ProcessOne(ctx, msg(0, 1, `{"type":"CLEAR_CACHES"}`)); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestFromApp(t *testing.T) {
	app := config.Config{}
	app.Kafka.Brokers = []string{"a:9092", "b:9092"}
	app.Kafka.ControlTopic = "ctl"
	app.Kafka.GroupID = "grp"

	cfg := FromApp(app)
	if cfg.Topic != "ctl" || cfg.GroupID != "grp" || len(cfg.Brokers) != 2 || cfg.InitialOffsetOldest {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestPublisher_SendsKeyedMessages(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, nil)
	prod.ExpectInputWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		k, _ := m.Key.Encode()
		v, _ := m.Value.Encode()
		if m.Topic != "notify" || string(k) != "CACHES_CLEARED" || string(v) != `{"type":"CACHES_CLEARED"}` {
			return fmt.Errorf("unexpected message topic=%s key=%s value=%s", m.Topic, k, v)
		}
		return nil
	})

	p := newPublisher(prod, "notify", 4, quiet())
	p.Publish("CACHES_CLEARED", []byte(`{"type":"CACHES_CLEARED"}`))
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
