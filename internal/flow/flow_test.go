package flow

import (
	"testing"
)

// recorder is a sink that keeps every value it sees.
type recorder[T any] struct {
	got []T
}

func (r *recorder[T]) Set(v T) { r.got = append(r.got, v) }

// doubler is a minimal stage used to exercise chaining.
type doubler struct {
	Producer[int]
}

func (d *doubler) Set(v int) { d.Emit(v * 2) }

func TestEmitReachesSubscribersInOrder(t *testing.T) {
	var p Producer[int]
	var order []string
	p.Connect(Consumer(func(int) { order = append(order, "a") }))
	p.Connect(Consumer(func(int) { order = append(order, "b") }))
	p.Connect(Consumer(func(int) { order = append(order, "c") }))

	p.Emit(1)

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("expected [a b c], got %v", order)
	}
}

func TestConnectReturnsUpstream(t *testing.T) {
	p := &Producer[int]{}
	a, b := &recorder[int]{}, &recorder[int]{}

	src := Connect[int](p, a)
	Connect[int](src, b)
	p.Emit(7)

	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected fan-out to both sinks, got a=%v b=%v", a.got, b.got)
	}
	if p.Subscribers() != 2 {
		t.Errorf("expected 2 subscribers, got %d", p.Subscribers())
	}
}

func TestPipeReturnsDownstream(t *testing.T) {
	p := &Producer[int]{}
	sink := &recorder[int]{}

	Pipe[int, int](Pipe[int, int](p, &doubler{}), &doubler{}).Connect(sink)
	p.Emit(3)

	if len(sink.got) != 1 || sink.got[0] != 12 {
		t.Errorf("expected [12], got %v", sink.got)
	}
}

func TestPanickingSubscriberIsolated(t *testing.T) {
	p := &Producer[int]{}
	p.SetName("test")
	after := &recorder[int]{}
	p.Connect(Consumer(func(int) { panic("boom") }))
	p.Connect(after)

	p.Emit(1)
	p.Emit(2)

	if len(after.got) != 2 {
		t.Errorf("expected later subscriber to see both values, got %v", after.got)
	}
	if p.Failures() != 2 {
		t.Errorf("expected 2 failures, got %d", p.Failures())
	}
}

func TestDisconnectFromOwnInvocation(t *testing.T) {
	p := &Producer[int]{}
	var order []string
	p.Connect(Consumer(func(int) { order = append(order, "a") }))
	var sub *Subscription
	sub = p.Connect(Consumer(func(int) {
		order = append(order, "self")
		sub.Disconnect()
	}))
	p.Connect(Consumer(func(int) { order = append(order, "c") }))

	p.Emit(1)
	want := []string{"a", "self", "c"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}

	order = nil
	p.Emit(2)
	if len(order) != 2 || order[0] != "a" || order[1] != "c" {
		t.Errorf("expected [a c] after disconnect, got %v", order)
	}
	if sub.Connected() {
		t.Error("expected subscription to report disconnected")
	}
}

func TestDisconnectLaterSiblingDuringEmission(t *testing.T) {
	p := &Producer[int]{}
	later := &recorder[int]{}
	var laterSub *Subscription
	p.Connect(Consumer(func(int) { laterSub.Disconnect() }))
	laterSub = p.Connect(later)

	p.Emit(1)
	if len(later.got) != 1 {
		t.Errorf("expected in-flight emission to still reach sibling, got %v", later.got)
	}

	p.Emit(2)
	if len(later.got) != 1 {
		t.Errorf("expected no delivery after disconnect, got %v", later.got)
	}
}

func TestConnectDuringEmissionStartsNextEmission(t *testing.T) {
	p := &Producer[int]{}
	added := &recorder[int]{}
	once := false
	p.Connect(Consumer(func(int) {
		if !once {
			once = true
			p.Connect(added)
		}
	}))

	p.Emit(1)
	if len(added.got) != 0 {
		t.Errorf("expected new subscriber to miss in-flight emission, got %v", added.got)
	}
	p.Emit(2)
	if len(added.got) != 1 || added.got[0] != 2 {
		t.Errorf("expected [2], got %v", added.got)
	}
}

func TestValueTracksLastEmit(t *testing.T) {
	var p Producer[string]
	if _, ok := p.Value(); ok {
		t.Error("expected no value before first emit")
	}
	p.Emit("x")
	p.Emit("y")
	v, ok := p.Value()
	if !ok || v != "y" {
		t.Errorf("expected (y, true), got (%s, %v)", v, ok)
	}
}

func TestDisconnectTwiceIsHarmless(t *testing.T) {
	p := &Producer[int]{}
	sub := p.Connect(&recorder[int]{})
	p.Connect(&recorder[int]{})

	sub.Disconnect()
	sub.Disconnect()

	if p.Subscribers() != 1 {
		t.Errorf("expected 1 subscriber, got %d", p.Subscribers())
	}
}
