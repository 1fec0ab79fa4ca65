package capture_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"sitegrade/internal/services"
	"sitegrade/internal/services/capture"
)

type captureServer interface {
	CaptureMetrics(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Screenshot(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

type fakeSidecar struct {
	delay time.Duration
}

func (f fakeSidecar) CaptureMetrics(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "https://down.example" {
		return nil, status.Error(codes.Unavailable, "browser crashed")
	}
	return structpb.NewStruct(map[string]any{
		"url": req.GetValue(),
		"performance": map[string]any{
			"loadTime":              512.3456,
			"cumulativeLayoutShift": 0.05,
		},
		"securityHeaders": map[string]any{"strict-transport-security": "max-age=63072000"},
	})
}

func (f fakeSidecar) Screenshot(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return wrapperspb.Bytes([]byte("png:" + req.GetValue())), nil
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: capture.ServiceName,
	HandlerType: (*captureServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CaptureMetrics",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(wrapperspb.StringValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(captureServer).CaptureMetrics(ctx, in)
			},
		},
		{
			MethodName: "Screenshot",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(wrapperspb.StringValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(captureServer).Screenshot(ctx, in)
			},
		},
	},
}

func startSidecar(t *testing.T, impl captureServer, timeout time.Duration) *capture.Client {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	server.RegisterService(&serviceDesc, impl)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return capture.NewWithConn(conn, timeout)
}

func TestCaptureMetricsDecodesStruct(t *testing.T) {
	client := startSidecar(t, fakeSidecar{}, time.Second)
	metrics, err := client.CaptureMetrics(context.Background(), "https://site.example")
	if err != nil {
		t.Fatalf("CaptureMetrics: %v", err)
	}
	load, ok := metrics.Lookup("performance.loadTime")
	if !ok {
		t.Fatalf("missing performance.loadTime in %v", metrics.Keys())
	}
	if v, _ := load.Float(); v != 512.3456 {
		t.Fatalf("unexpected load time %v", v)
	}
	if hsts, ok := metrics.Lookup("securityHeaders.strict-transport-security"); !ok || hsts.IsNull() {
		t.Fatal("expected security headers to survive decoding")
	}
}

func TestCaptureMetricsWrapsRPCFailure(t *testing.T) {
	client := startSidecar(t, fakeSidecar{}, time.Second)
	_, err := client.CaptureMetrics(context.Background(), "https://down.example")
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
}

func TestScreenshotReturnsBytes(t *testing.T) {
	client := startSidecar(t, fakeSidecar{}, time.Second)
	image, err := client.Screenshot(context.Background(), "https://site.example")
	if err != nil {
		t.Fatalf("Screenshot: %v", err)
	}
	if string(image) != "png:https://site.example" {
		t.Fatalf("unexpected image %q", image)
	}
}

func TestScreenshotHonoursTimeout(t *testing.T) {
	client := startSidecar(t, fakeSidecar{delay: time.Second}, 50*time.Millisecond)
	start := time.Now()
	_, err := client.Screenshot(context.Background(), "https://slow.example")
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("timeout not applied, call took %s", elapsed)
	}
}

func TestRejectsNonHTTPURL(t *testing.T) {
	client := capture.NewWithConn(nil, time.Second)
	if _, err := client.Screenshot(context.Background(), "file:///etc/passwd"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
