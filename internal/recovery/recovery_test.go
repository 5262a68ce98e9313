package recovery

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestRecoverWithLogRecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer RecoverWithLog(logger, "session.Run")
		panic("decode exploded")
	}()
	wg.Wait()

	out := buf.String()
	if !strings.Contains(out, "panic recovered") || !strings.Contains(out, "session.Run") || !strings.Contains(out, "decode exploded") {
		t.Fatalf("missing expected fields in log output: %s", out)
	}
}

func TestRecoverWithLogNoopWithoutPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer RecoverWithLog(logger, "session.Run")
	}()
	wg.Wait()

	if buf.Len() > 0 {
		t.Fatalf("expected no output without a panic, got: %s", buf.String())
	}
}

func TestRecoverWithCallbackInvokesCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var wg sync.WaitGroup
	wg.Add(1)
	var gotReason interface{}
	go func() {
		defer wg.Done()
		defer RecoverWithCallback(logger, "session.Run", func(r interface{}) {
			gotReason = r
		})
		panic("handler panicked mid-dispatch")
	}()
	wg.Wait()

	if gotReason != "handler panicked mid-dispatch" {
		t.Fatalf("callback argument = %v, want the panic value", gotReason)
	}
}

func TestRecoverWithCallbackToleratesNilCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer RecoverWithCallback(logger, "session.Run", nil)
		panic("no callback registered")
	}()
	wg.Wait()

	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("expected the panic to still be logged: %s", buf.String())
	}
}

func TestRecoverWithCallbackSkipsCallbackWithoutPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var wg sync.WaitGroup
	wg.Add(1)
	called := false
	go func() {
		defer wg.Done()
		defer RecoverWithCallback(logger, "session.Run", func(r interface{}) { called = true })
	}()
	wg.Wait()

	if called {
		t.Fatal("callback should not run when no panic occurred")
	}
}
