// Package codec provides the JSON wire codec used by the market's gRPC
// services, which exchange plain Go structs instead of generated protobuf
// messages.
package codec

import (
	"encoding/json"

	"github.com/pkg/errors"
	"google.golang.org/grpc/encoding"
)

// Name is the content subtype clients must request, as in
// grpc.CallContentSubtype(codec.Name)
const Name = "json"

func init() {
	encoding.RegisterCodec(JSON{})
}

// JSON implements encoding.Codec over encoding/json
type JSON struct{}

func (JSON) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "error marshalling json message")
	}
	return b, nil
}

func (JSON) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "error unmarshalling json message")
	}
	return nil
}

func (JSON) Name() string {
	return Name
}
