package capture

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"sitegrade/internal/services"
	"sitegrade/internal/snapshot"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName          = "sitegrade.capture.v1.CaptureService"
	MethodCaptureMetrics = "/" + ServiceName + "/CaptureMetrics"
	MethodScreenshot     = "/" + ServiceName + "/Screenshot"

	defaultTimeout = 90 * time.Second
)

// Client wraps the gRPC connection to the capture sidecar.
type Client struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	timeout time.Duration
}

// Dial connects to the sidecar at addr. The connection is established lazily.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "capture", "dial", addr, err)
	}
	client := NewWithConn(conn, timeout)
	client.closer = conn.Close
	return client, nil
}

// NewWithConn builds a Client over an existing connection.
func NewWithConn(conn grpc.ClientConnInterface, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{conn: conn, timeout: timeout}
}

// Close shuts down the gRPC connection if the client owns it.
func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

// CaptureMetrics loads pageURL in the sidecar's browser and returns the raw
// metrics snapshot.
func (c *Client) CaptureMetrics(ctx context.Context, pageURL string) (snapshot.Value, error) {
	if err := validateURL(pageURL); err != nil {
		return snapshot.Value{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, MethodCaptureMetrics, wrapperspb.String(pageURL), resp); err != nil {
		return snapshot.Value{}, services.Wrap(services.ErrCollaborator, "capture", "capture metrics", pageURL, err)
	}
	metrics, err := snapshot.FromAny(resp.AsMap())
	if err != nil {
		return snapshot.Value{}, services.Wrap(services.ErrCollaborator, "capture", "capture metrics", "decode snapshot", err)
	}
	return metrics, nil
}

// Screenshot returns a PNG of pageURL.
func (c *Client) Screenshot(ctx context.Context, pageURL string) ([]byte, error) {
	if err := validateURL(pageURL); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &wrapperspb.BytesValue{}
	if err := c.conn.Invoke(ctx, MethodScreenshot, wrapperspb.String(pageURL), resp); err != nil {
		return nil, services.Wrap(services.ErrCollaborator, "capture", "screenshot", pageURL, err)
	}
	if len(resp.GetValue()) == 0 {
		return nil, services.Wrap(services.ErrCollaborator, "capture", "screenshot", fmt.Sprintf("empty image for %s", pageURL), nil)
	}
	return resp.GetValue(), nil
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return services.Wrap(services.ErrValidation, "capture", "validate url", fmt.Sprintf("%q is not an http(s) URL", raw), err)
	}
	return nil
}
