// Package icgrpc provides a lightweight dynamic gRPC client for the canister
// gateway. It compiles the embedded gateway.proto at runtime (via
// protocompile) and uses dynamicpb to marshal/unmarshal requests and
// responses, so no generated stubs are required. Calls can be made with
// native proto messages, JSON payloads, or plain Go maps.
package icgrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bufbuild/protocompile/linker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Client is a dynamic gRPC client that holds a connected gRPC ClientConn and
// the compiled gateway descriptors used to locate methods at runtime.
type Client struct {
	// GRPC is the underlying client connection.
	GRPC *grpc.ClientConn
	// ProtoFiles are the compiled descriptors of the gateway proto sources.
	ProtoFiles linker.Files
}

// NewClient creates a dynamic gateway client for the given endpoint. The
// endpoint scheme determines transport security:
//   - "https://": TLS (system defaults)
//   - "http://":  insecure
//   - no scheme:  insecure
//
// The embedded gateway.proto is compiled at runtime; if compilation or the
// connection setup fails, nil is returned. The returned client proactively
// starts connecting (ClientConn.Connect()).
func NewClient(endpoint string) *Client {
	addr, creds := grpcCredsFromEndpoint(endpoint)
	conn, err := grpc.NewClient(addr, creds)
	if err != nil {
		zap.L().Error(err.Error())
		return nil
	}

	client := NewClientConn(conn)
	if client == nil {
		_ = conn.Close()
		return nil
	}

	conn.Connect()
	return client
}

// NewClientConn wraps an existing gRPC connection (e.g., one backed by an
// in-memory listener in tests) with the compiled gateway descriptors.
func NewClientConn(conn *grpc.ClientConn) *Client {
	descriptors, err := Compile(nil)
	if err != nil {
		return nil
	}

	return &Client{
		GRPC:       conn,
		ProtoFiles: descriptors,
	}
}

// Close shuts down the underlying gRPC connection.
// It is safe to call on a nil receiver or when GRPC is nil.
func (c *Client) Close() error {
	if c == nil || c.GRPC == nil {
		return nil
	}
	return c.GRPC.Close()
}

// invoke resolves the simple method name against the compiled descriptors,
// performs the unary call, and fills the returned dynamic output message.
// Method is the name as declared in the .proto, not the fully-qualified path.
func (c *Client) invoke(ctx context.Context, method string, in proto.Message) (*dynamicpb.Message, error) {
	fd, md, err := FindMethod(c.ProtoFiles, method)
	if err != nil {
		return nil, err
	}

	out := dynamicpb.NewMessage(md.Output())
	full := fullMethodName(fd, md)
	zap.L().Debug("gateway call", zap.String("method", full))
	if err := c.GRPC.Invoke(ctx, full, in, out); err != nil {
		return nil, fmt.Errorf("gateway call %s: %w", method, err)
	}
	return out, nil
}

// CallWithProto invokes a unary gateway RPC with a concrete proto.Message
// request and returns a dynamic proto.Message response.
func (c *Client) CallWithProto(ctx context.Context, method string, req proto.Message) (proto.Message, error) {
	return c.invoke(ctx, method, req)
}

// CallWithJSON invokes a unary gateway RPC using a JSON request body. The
// body is unmarshalled into a dynamic input message (unknown fields
// discarded, partial messages allowed) and the response is marshaled back to
// JSON with proto field names and unpopulated fields emitted, so callers see
// a stable snake_case shape. Note that protojson renders 64-bit integers as
// JSON strings.
func (c *Client) CallWithJSON(ctx context.Context, method string, body []byte) ([]byte, error) {
	_, md, err := FindMethod(c.ProtoFiles, method)
	if err != nil {
		return nil, err
	}

	in := dynamicpb.NewMessage(md.Input())
	unmarshal := protojson.UnmarshalOptions{AllowPartial: true, DiscardUnknown: true}
	if err := unmarshal.Unmarshal(body, in); err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	out, err := c.invoke(ctx, method, in)
	if err != nil {
		return nil, err
	}

	marshal := protojson.MarshalOptions{EmitUnpopulated: true, UseProtoNames: true}
	reply, err := marshal.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("decode %s reply: %w", method, err)
	}
	return reply, nil
}

// CallWithMap invokes a unary gateway RPC using a map as the request body.
// The map is JSON-encoded and routed through CallWithJSON.
func (c *Client) CallWithMap(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	reply, err := c.CallWithJSON(ctx, method, body)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(reply, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// fullMethodName builds the gRPC wire path "/package.Service/Method".
func fullMethodName(fd protoreflect.FileDescriptor, md protoreflect.MethodDescriptor) string {
	return "/" + string(fd.Package()) + "." + string(md.Parent().Name()) + "/" + string(md.Name())
}

// grpcCredsFromEndpoint derives a dial address and dial option from an endpoint URL.
// "https://" enables TLS; "http://" and bare addresses use insecure credentials.
func grpcCredsFromEndpoint(endpoint string) (string, grpc.DialOption) {
	if strings.HasPrefix(endpoint, "https://") {
		return strings.TrimPrefix(endpoint, "https://"), grpc.WithTransportCredentials(credentials.NewTLS(nil))
	}
	if strings.HasPrefix(endpoint, "http://") {
		return strings.TrimPrefix(endpoint, "http://"), grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	return endpoint, grpc.WithTransportCredentials(insecure.NewCredentials())
}
