package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/liquidgraph/kgraph/internal/domain"
)

type fakeAnswerer struct {
	lastQuery string
	lastMode  domain.Mode
	result    domain.QueryResult
	err       error
}

func (f *fakeAnswerer) Query(_ context.Context, query string, mode domain.Mode) (domain.QueryResult, error) {
	f.lastQuery = query
	f.lastMode = mode
	return f.result, f.err
}

func TestAsk_EmptyQuery(t *testing.T) {
	svc := New(&fakeAnswerer{}, zap.NewNop())

	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := svc.Ask(context.Background(), q, ""); !errors.Is(err, domain.ErrEmptyQuery) {
			t.Errorf("Ask(%q) err = %v, want ErrEmptyQuery", q, err)
		}
	}
}

func TestAsk_InvalidMode(t *testing.T) {
	svc := New(&fakeAnswerer{}, zap.NewNop())

	_, err := svc.Ask(context.Background(), "a question", "naive")
	if !errors.Is(err, domain.ErrInvalidMode) {
		t.Fatalf("err = %v, want ErrInvalidMode", err)
	}
}

func TestAsk_DefaultsToHybrid(t *testing.T) {
	eng := &fakeAnswerer{result: domain.QueryResult{Answer: "ok", Mode: domain.ModeHybrid}}
	svc := New(eng, zap.NewNop())

	res, err := svc.Ask(context.Background(), "  a question  ", "")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if eng.lastMode != domain.ModeHybrid {
		t.Errorf("mode = %q, want hybrid", eng.lastMode)
	}
	if eng.lastQuery != "a question" {
		t.Errorf("query = %q, want trimmed", eng.lastQuery)
	}
	if res.Answer != "ok" {
		t.Errorf("answer = %q", res.Answer)
	}
}

func TestAsk_PassesModeThrough(t *testing.T) {
	for _, mode := range []string{"local", "global", "hybrid"} {
		eng := &fakeAnswerer{result: domain.QueryResult{Answer: "x", Duration: time.Millisecond}}
		svc := New(eng, zap.NewNop())

		if _, err := svc.Ask(context.Background(), "q", mode); err != nil {
			t.Fatalf("Ask(%s): %v", mode, err)
		}
		if string(eng.lastMode) != mode {
			t.Errorf("mode = %q, want %q", eng.lastMode, mode)
		}
	}
}

func TestAsk_EngineError(t *testing.T) {
	sentinel := errors.New("backend down")
	svc := New(&fakeAnswerer{err: sentinel}, zap.NewNop())

	_, err := svc.Ask(context.Background(), "q", "local")
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
}
