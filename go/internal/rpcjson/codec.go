// Package rpcjson lets connect handlers speak plain JSON structs instead of
// generated protobuf messages.
package rpcjson

import (
	"encoding/json"
	"errors"

	"connectrpc.com/connect"
)

// Codec replaces connect's protojson codec under the "json" name.
type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// HandlerOptions are the options every JSON connect handler is built with.
func HandlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{connect.WithCodec(Codec{})}
}

// ClientOptions configure a connect client for the same codec.
func ClientOptions() []connect.ClientOption {
	return []connect.ClientOption{connect.WithCodec(Codec{})}
}

// Code maps an error to a connect code by unwrapping sentinel errors.
func Code(err error, notFound ...error) connect.Code {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return connect.CodeNotFound
		}
	}
	return connect.CodeInternal
}
