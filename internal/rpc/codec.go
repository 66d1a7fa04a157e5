package rpc

import "encoding/json"

// jsonCodec carries Summary/Empty messages over gRPC as JSON instead of
// protobuf wire format, since no protoc-generated types exist here. It
// satisfies google.golang.org/grpc/encoding.Codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}
