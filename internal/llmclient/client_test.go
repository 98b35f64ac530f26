package llmclient

import (
	"context"
	"testing"
)

type stubClient struct {
	resp Response
	err  error
}

func (s *stubClient) Complete(ctx context.Context, req Request) (Response, error) {
	return s.resp, s.err
}

func (s *stubClient) CompleteWithStream(ctx context.Context, req Request, onDelta DeltaFunc) (Response, error) {
	return DefaultCompleteWithStream(ctx, s, req, onDelta)
}

func TestDefaultCompleteWithStreamIgnoresDeltaCallback(t *testing.T) {
	want := Response{FinishReason: "stop"}
	stub := &stubClient{resp: want}

	called := false
	got, err := stub.CompleteWithStream(context.Background(), Request{}, func(string) { called = true })
	if err != nil {
		t.Fatalf("CompleteWithStream: %v", err)
	}
	if got.FinishReason != want.FinishReason {
		t.Fatalf("got = %+v, want %+v", got, want)
	}
	if called {
		t.Fatal("expected onDelta to never be invoked by the default implementation")
	}
}
