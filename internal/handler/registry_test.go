package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/silkrelay/silkproto/internal/wire"
)

type fakePeer struct {
	sent []*wire.Message
}

func (f *fakePeer) Send(m *wire.Message) error {
	f.sent = append(f.sent, m)
	return nil
}
func (f *fakePeer) RemoteAddr() string { return "test-peer" }

func TestDispatchRunsHandlersInOrder(t *testing.T) {
	r := NewRegistry()
	var order []int
	r.RegisterHandler(0x10, func(ctx context.Context, p Peer, m *wire.Message) error {
		order = append(order, 1)
		return nil
	})
	r.RegisterHandler(0x10, func(ctx context.Context, p Peer, m *wire.Message) error {
		order = append(order, 2)
		return nil
	})

	m := wire.NewMessage(0x10)
	if err := r.Dispatch(context.Background(), &fakePeer{}, m); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v, want [1 2]", order)
	}
}

func TestDispatchStopsOnFirstError(t *testing.T) {
	r := NewRegistry()
	ran := false
	r.RegisterHandler(0x20, func(ctx context.Context, p Peer, m *wire.Message) error {
		return errors.New("boom")
	})
	r.RegisterHandler(0x20, func(ctx context.Context, p Peer, m *wire.Message) error {
		ran = true
		return nil
	})

	err := r.Dispatch(context.Background(), &fakePeer{}, wire.NewMessage(0x20))
	if err == nil {
		t.Fatal("expected error")
	}
	if ran {
		t.Fatal("second handler should not have run after first failed")
	}
}

func TestDispatchUnregisteredOpcodeIsNoop(t *testing.T) {
	r := NewRegistry()
	if err := r.Dispatch(context.Background(), &fakePeer{}, wire.NewMessage(0x99)); err != nil {
		t.Fatalf("Dispatch on unregistered opcode: %v", err)
	}
}

type echoService struct{ calls int }

func (s *echoService) Handlers() map[wire.Opcode]Handler {
	return map[wire.Opcode]Handler{
		0x30: func(ctx context.Context, p Peer, m *wire.Message) error {
			s.calls++
			return nil
		},
	}
}

func TestRegisterServiceIsIdempotentPerConcreteType(t *testing.T) {
	r := NewRegistry()
	svc := &echoService{}
	r.RegisterService(svc)
	r.RegisterService(svc)

	if err := r.Dispatch(context.Background(), &fakePeer{}, wire.NewMessage(0x30)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if svc.calls != 1 {
		t.Fatalf("calls = %d, want 1 (duplicate registration should be a no-op)", svc.calls)
	}
}
