package icgrpc

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"slices"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/linker"
	"go.uber.org/zap"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// FindMethod searches the given compiled proto files for a method with the
// provided simple method name (as declared in the .proto). It iterates over
// all services in all files and returns the file descriptor and method
// descriptor for the first match.
func FindMethod(files linker.Files, methodName string) (protoreflect.FileDescriptor, protoreflect.MethodDescriptor, error) {
	for _, file := range files {
		for i := 0; i < file.Services().Len(); i++ {
			service := file.Services().Get(i)
			method := service.Methods().ByName(protoreflect.Name(methodName))
			if method != nil {
				return file, method, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("method %s not found in gateway proto files", methodName)
}

// GatewayProtoEmbedded contains the embedded text content of gateway.proto,
// the canister gateway service definition compiled at runtime.
//
//go:embed gateway.proto
var GatewayProtoEmbedded string

// Compile builds linker.Files from the embedded gateway.proto plus any extra
// proto sources (keyed by filename) using protocompile with standard imports
// enabled. Extra sources may be nil.
func Compile(extra map[string]string) (linker.Files, error) {
	protoFiles := map[string]string{"gateway.proto": GatewayProtoEmbedded}
	maps.Copy(protoFiles, extra)

	accessor := protocompile.SourceAccessorFromMap(protoFiles)
	r := protocompile.WithStandardImports(&protocompile.SourceResolver{Accessor: accessor})
	compiler := protocompile.Compiler{
		Resolver:       r,
		SourceInfoMode: protocompile.SourceInfoStandard,
	}
	fds, err := compiler.Compile(context.Background(), slices.Collect(maps.Keys(protoFiles))...)
	if err != nil || fds == nil {
		zap.L().Error("failed to compile proto files", zap.Error(err))
		return nil, fmt.Errorf("failed to compile proto files: %v", err)
	}
	return fds, nil
}
