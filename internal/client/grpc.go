package client

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// HealthClient queries the server's gRPC health service.
type HealthClient struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

// NewHealthClient connects to the given gRPC address. When token is
// non-empty it is sent as a bearer token on every call.
func NewHealthClient(addr, token string) (*HealthClient, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerToken(token)))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &HealthClient{
		conn:   conn,
		client: healthpb.NewHealthClient(conn),
	}, nil
}

func (c *HealthClient) Close() error {
	return c.conn.Close()
}

// Check returns the serving status of service ("" for the whole server).
func (c *HealthClient) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Watch calls fn with every serving status change until ctx is done or the
// server ends the stream.
func (c *HealthClient) Watch(ctx context.Context, service string, fn func(healthpb.HealthCheckResponse_ServingStatus)) error {
	stream, err := c.client.Watch(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return err
	}
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(resp.GetStatus())
	}
}

// StatusJSON renders a serving status the way protojson encodes the health
// response, e.g. {"status":"SERVING"}.
func StatusJSON(st healthpb.HealthCheckResponse_ServingStatus) (string, error) {
	data, err := protojson.Marshal(&healthpb.HealthCheckResponse{Status: st})
	if err != nil {
		return "", fmt.Errorf("encoding health status: %w", err)
	}
	return string(data), nil
}

// bearerToken implements credentials.PerRPCCredentials.
type bearerToken string

func (t bearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

func (bearerToken) RequireTransportSecurity() bool { return false }
