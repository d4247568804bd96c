// Package grpcbuf hosts an in-memory fake canister gateway for tests. The
// fake serves the real gateway.proto over a bufconn listener; handlers are
// registered per method and exchange JSON bodies, which keeps test doubles
// free of generated stubs.
package grpcbuf

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/vnftlabs/vnft-sdk-go/pkg/icgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

const bufSize = 1024 * 1024

// JSONHandler handles one gateway method. The request is presented as
// protojson bytes; the returned bytes are unmarshaled into the reply message.
type JSONHandler func(ctx context.Context, body []byte) ([]byte, error)

// MetaCapture captures incoming metadata on the server side for later
// inspection in tests.
type MetaCapture struct {
	last atomic.Value // stores metadata.MD
}

// Interceptor records incoming metadata and forwards the request to the next handler.
func (m *MetaCapture) Interceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		m.last.Store(md)
	}
	return handler(ctx, req)
}

// Last returns the most recently captured metadata or nil if none.
func (m *MetaCapture) Last() metadata.MD {
	if v := m.last.Load(); v != nil {
		return v.(metadata.MD)
	}
	return nil
}

// Gateway is the fake gateway server. Register handlers with Handle before
// starting; methods without a handler answer codes.Unimplemented.
type Gateway struct {
	handlers map[string]JSONHandler
}

// NewGateway creates an empty fake gateway.
func NewGateway() *Gateway {
	return &Gateway{handlers: make(map[string]JSONHandler)}
}

// Handle registers a handler for the given simple method name (e.g. "Transfer").
func (g *Gateway) Handle(method string, h JSONHandler) *Gateway {
	g.handlers[method] = h
	return g
}

// serviceDesc builds a grpc.ServiceDesc for the compiled Gateway service with
// dynamicpb-backed unary handlers.
func (g *Gateway) serviceDesc() (*grpc.ServiceDesc, error) {
	files, err := icgrpc.Compile(nil)
	if err != nil {
		return nil, err
	}

	var svc protoreflect.ServiceDescriptor
	for _, file := range files {
		if file.Services().Len() > 0 {
			svc = file.Services().Get(0)
			break
		}
	}
	if svc == nil {
		return nil, fmt.Errorf("no service found in gateway proto")
	}

	desc := &grpc.ServiceDesc{
		ServiceName: string(svc.FullName()),
		HandlerType: (*any)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "gateway.proto",
	}

	for i := 0; i < svc.Methods().Len(); i++ {
		method := svc.Methods().Get(i)
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: string(method.Name()),
			Handler:    g.unaryHandler(svc, method),
		})
	}
	return desc, nil
}

func (g *Gateway) unaryHandler(svc protoreflect.ServiceDescriptor, method protoreflect.MethodDescriptor) func(
	srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	name := string(method.Name())

	invoke := func(ctx context.Context, req interface{}) (interface{}, error) {
		h, ok := g.handlers[name]
		if !ok {
			return nil, status.Errorf(codes.Unimplemented, "no test handler for %s", name)
		}

		body, err := protojson.MarshalOptions{
			EmitUnpopulated: true,
			UseProtoNames:   true,
		}.Marshal(req.(*dynamicpb.Message))
		if err != nil {
			return nil, err
		}

		replyJSON, err := h(ctx, body)
		if err != nil {
			return nil, err
		}

		out := dynamicpb.NewMessage(method.Output())
		if err := (protojson.UnmarshalOptions{AllowPartial: true}).Unmarshal(replyJSON, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := dynamicpb.NewMessage(method.Input())
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return invoke(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + string(svc.FullName()) + "/" + name,
		}
		return interceptor(ctx, in, info, invoke)
	}
}

// StartServer spins up a bufconn-backed gRPC server serving the fake gateway
// with metadata capture enabled. Callers must Stop the returned server.
func StartServer(g *Gateway) (*grpc.Server, *bufconn.Listener, *MetaCapture, error) {
	desc, err := g.serviceDesc()
	if err != nil {
		return nil, nil, nil, err
	}

	lis := bufconn.Listen(bufSize)
	capture := &MetaCapture{}
	srv := grpc.NewServer(grpc.UnaryInterceptor(capture.Interceptor))
	srv.RegisterService(desc, g)
	go func() { _ = srv.Serve(lis) }()
	return srv, lis, capture, nil
}

// Dial connects to the provided bufconn listener using the standard gRPC
// client stack.
func Dial(ctx context.Context, lis *bufconn.Listener, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	// Use insecure credentials because bufconn does not provide TLS.
	// Use NewClient with a passthrough target so the custom dialer is honored.
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
	}
	base = append(base, opts...)
	return grpc.NewClient("passthrough://bufnet", base...)
}
