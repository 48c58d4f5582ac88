package grpcx

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthReadyCheck probes a gRPC health endpoint over an existing connection.
// Suitable as a /readyz dependency check against upstream services.
func HealthReadyCheck(conn *grpc.ClientConn, service string) func(context.Context) error {
	return func(ctx context.Context) error {
		if conn == nil {
			return errors.New("grpc connection not configured")
		}
		client := healthpb.NewHealthClient(conn)
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return errors.New("upstream not serving: " + resp.GetStatus().String())
		}
		return nil
	}
}
