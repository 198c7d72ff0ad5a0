package groutine

import (
	"context"
	"sync"
	"testing"
)

func TestGoInstallsLabel(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	var got string
	Go(context.Background(), "DEMO.WORKER", func(ctx context.Context) {
		defer wg.Done()
		got = Label(ctx)
	})
	wg.Wait()

	if got != "DEMO.WORKER" {
		t.Fatalf("Label(ctx) = %q, want %q", got, "DEMO.WORKER")
	}
}

func TestLabelOnBareContext(t *testing.T) {
	if got := Label(context.Background()); got != "" {
		t.Fatalf("Label on bare context = %q, want empty", got)
	}
	if got := Label(nil); got != "" {
		t.Fatalf("Label on nil context = %q, want empty", got)
	}
}

func TestGIDNonZero(t *testing.T) {
	if GID() == 0 {
		t.Fatal("expected a nonzero goroutine id")
	}
}
