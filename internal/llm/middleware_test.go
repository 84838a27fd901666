package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type flakyClient struct {
	failures int
	calls    int
}

func (f *flakyClient) Name() string { return "flaky" }
func (f *flakyClient) Close() error { return nil }
func (f *flakyClient) GenerateJSON(ctx context.Context, instruction string, input any) (json.RawMessage, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient")
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	inner := &flakyClient{failures: 2}
	cli := Wrap(inner, Retry(3, time.Millisecond))

	raw, err := cli.GenerateJSON(context.Background(), "p", nil)
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("unexpected payload %s", raw)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetryGivesUpAfterBudget(t *testing.T) {
	inner := &flakyClient{failures: 10}
	cli := Wrap(inner, Retry(2, time.Millisecond))

	if _, err := cli.GenerateJSON(context.Background(), "p", nil); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", inner.calls)
	}
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	inner := &flakyClient{failures: 10}
	cli := Wrap(inner, Retry(5, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cli.GenerateJSON(ctx, "p", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryDoesNotSleepOutBackoffAfterCancel(t *testing.T) {
	inner := &flakyClient{failures: 10}
	cli := Wrap(inner, Retry(5, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := cli.GenerateJSON(ctx, "p", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancel must interrupt the backoff wait, took %v", elapsed)
	}
}

func TestRateLimitSpacesRequests(t *testing.T) {
	inner := &flakyClient{}
	cli := Wrap(inner, RateLimit(20, 1))
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := cli.GenerateJSON(ctx, "p", nil); err != nil {
			t.Fatal(err)
		}
	}
	// 20 rps with burst 1: calls 2 and 3 wait ~50ms each.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected rate limiting to space calls, elapsed=%v", elapsed)
	}
}

func TestFakeEmbedderIsDeterministic(t *testing.T) {
	e := &FakeEmbedder{Dim: 8}
	a, err := e.Embed(context.Background(), "vitamix a3500")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(context.Background(), "vitamix a3500")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not stable at %d: %v vs %v", i, a[i], b[i])
		}
	}
}
