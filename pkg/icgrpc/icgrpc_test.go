package icgrpc_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/vnftlabs/vnft-sdk-go/internal/testutil/grpcbuf"
	"github.com/vnftlabs/vnft-sdk-go/pkg/icgrpc"
	"google.golang.org/grpc/metadata"
)

func startGateway(t *testing.T, g *grpcbuf.Gateway) *icgrpc.Client {
	t.Helper()

	srv, lis, _, err := grpcbuf.StartServer(g)
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	t.Cleanup(srv.Stop)

	conn, err := grpcbuf.Dial(context.Background(), lis)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	client := icgrpc.NewClientConn(conn)
	if client == nil {
		t.Fatal("client should not be nil")
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCallWithJSON(t *testing.T) {
	g := grpcbuf.NewGateway().Handle("TransactionFee", func(ctx context.Context, body []byte) ([]byte, error) {
		var req struct {
			LedgerCanisterID string `json:"ledger_canister_id"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		if req.LedgerCanisterID != "ryjl3-tyaaa-aaaaa-aaaba-cai" {
			t.Errorf("unexpected canister id %q", req.LedgerCanisterID)
		}
		return []byte(`{"e8s": "10000"}`), nil
	})
	client := startGateway(t, g)

	resp, err := client.CallWithJSON(context.Background(), "TransactionFee",
		[]byte(`{"ledger_canister_id": "ryjl3-tyaaa-aaaaa-aaaba-cai"}`))
	if err != nil {
		t.Fatalf("CallWithJSON: %v", err)
	}

	var reply struct {
		E8s string `json:"e8s"`
	}
	if err := json.Unmarshal(resp, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.E8s != "10000" {
		t.Fatalf("e8s = %q, want 10000", reply.E8s)
	}
}

func TestCallWithMap(t *testing.T) {
	g := grpcbuf.NewGateway().Handle("CountAll", func(ctx context.Context, body []byte) ([]byte, error) {
		return []byte(`{"count": "3"}`), nil
	})
	client := startGateway(t, g)

	resp, err := client.CallWithMap(context.Background(), "CountAll",
		map[string]any{"registry_canister_id": "bd3sg-teaaa-aaaaa-qaaba-cai"})
	if err != nil {
		t.Fatalf("CallWithMap: %v", err)
	}
	if resp["count"] != "3" {
		t.Fatalf("count = %v, want 3", resp["count"])
	}
}

func TestCallUnknownMethod(t *testing.T) {
	client := startGateway(t, grpcbuf.NewGateway())

	if _, err := client.CallWithJSON(context.Background(), "NoSuchMethod", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestCallUnimplementedHandler(t *testing.T) {
	client := startGateway(t, grpcbuf.NewGateway())

	if _, err := client.CallWithJSON(context.Background(), "Transfer", []byte(`{}`)); err == nil {
		t.Fatal("expected error for method without a test handler")
	}
}

func TestMetadataReachesServer(t *testing.T) {
	g := grpcbuf.NewGateway().Handle("CountAll", func(ctx context.Context, body []byte) ([]byte, error) {
		return []byte(`{"count": "0"}`), nil
	})

	srv, lis, capture, err := grpcbuf.StartServer(g)
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	t.Cleanup(srv.Stop)

	conn, err := grpcbuf.Dial(context.Background(), lis)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	client := icgrpc.NewClientConn(conn)
	t.Cleanup(func() { _ = client.Close() })

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "req-1")
	if _, err := client.CallWithJSON(ctx, "CountAll", []byte(`{}`)); err != nil {
		t.Fatalf("CallWithJSON: %v", err)
	}

	md := capture.Last()
	if got := md.Get("x-request-id"); len(got) != 1 || got[0] != "req-1" {
		t.Fatalf("metadata not captured: %v", md)
	}
}

func TestCompileRejectsBadSource(t *testing.T) {
	if _, err := icgrpc.Compile(map[string]string{"broken.proto": "not a proto file"}); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestFindMethod(t *testing.T) {
	files, err := icgrpc.Compile(nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	fd, method, err := icgrpc.FindMethod(files, "RegisterVoiceNft")
	if err != nil {
		t.Fatalf("FindMethod: %v", err)
	}
	if string(fd.Package()) != "vnft" {
		t.Fatalf("unexpected package %q", fd.Package())
	}
	if string(method.Name()) != "RegisterVoiceNft" {
		t.Fatalf("unexpected method %q", method.Name())
	}

	if _, _, err := icgrpc.FindMethod(files, "Bogus"); err == nil {
		t.Fatal("expected error for unknown method")
	}
}
