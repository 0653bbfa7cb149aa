package metadata

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type fakeTransportStream struct {
	header metadata.MD
}

func (s *fakeTransportStream) Method() string {
	return "/antlrworks.debugger.v1.DebuggerService/Snapshot"
}

func (s *fakeTransportStream) SetHeader(md metadata.MD) error {
	s.header = metadata.Join(s.header, md)
	return nil
}

func (s *fakeTransportStream) SendHeader(md metadata.MD) error { return s.SetHeader(md) }

func (s *fakeTransportStream) SetTrailer(metadata.MD) error { return nil }

func TestContextHelpers(t *testing.T) {
	if RequestIDFromContext(nil) != "" || InvocationIDFromContext(nil) != "" {
		t.Fatal("expected empty ids for nil context")
	}
	ctx := WithInvocationID(WithRequestID(nil, "req-1"), "inv-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("request id = %q, want req-1", got)
	}
	if got := InvocationIDFromContext(ctx); got != "inv-1" {
		t.Fatalf("invocation id = %q, want inv-1", got)
	}
}

func TestIsPrintableASCII(t *testing.T) {
	tests := map[string]bool{
		"":                      false,
		"hello":                 true,
		"line\n":                false,
		string([]byte{0x7f}):    false,
		"x-antlrworks-trace-42": true,
	}
	for value, want := range tests {
		if got := IsPrintableASCII(value); got != want {
			t.Fatalf("IsPrintableASCII(%q) = %t, want %t", value, got, want)
		}
	}
}

func TestFirstMetadataValue(t *testing.T) {
	md := metadata.MD{"X-Antlrworks-Request-Id": {"\n", "req-1"}}
	if got := FirstMetadataValue(md, RequestIDHeader); got != "req-1" {
		t.Fatalf("value = %q, want req-1", got)
	}
	if FirstMetadataValue(metadata.MD{}, RequestIDHeader) != "" {
		t.Fatal("expected empty value for empty metadata")
	}
}

func TestUnaryServerInterceptorGeneratesRequestID(t *testing.T) {
	stream := &fakeTransportStream{}
	ctx := grpc.NewContextWithServerTransportStream(context.Background(), stream)
	interceptor := UnaryServerInterceptor(func() (string, error) { return "generated", nil })

	var seen string
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if seen != "generated" {
		t.Fatalf("handler request id = %q, want generated", seen)
	}
	if got := FirstMetadataValue(stream.header, RequestIDHeader); got != "generated" {
		t.Fatalf("response header = %q, want generated", got)
	}
}

func TestUnaryServerInterceptorKeepsIncomingIDs(t *testing.T) {
	stream := &fakeTransportStream{}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		RequestIDHeader, "req-9",
		InvocationIDHeader, "inv-9",
	))
	ctx = grpc.NewContextWithServerTransportStream(ctx, stream)
	interceptor := UnaryServerInterceptor(func() (string, error) {
		t.Fatal("generator must not run when a request id is present")
		return "", nil
	})

	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		if RequestIDFromContext(ctx) != "req-9" || InvocationIDFromContext(ctx) != "inv-9" {
			t.Fatalf("ids = %q %q", RequestIDFromContext(ctx), InvocationIDFromContext(ctx))
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if got := FirstMetadataValue(stream.header, InvocationIDHeader); got != "inv-9" {
		t.Fatalf("invocation header = %q, want inv-9", got)
	}
}

func TestUnaryServerInterceptorGeneratorFailure(t *testing.T) {
	interceptor := UnaryServerInterceptor(func() (string, error) { return "", errors.New("no entropy") })
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected error when id generation fails")
	}
}
