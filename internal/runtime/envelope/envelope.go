// Package envelope implements the transport-safe codec for broadcast
// messages.
//
// The log store is assumed to normalize stored values to a JSON-like model,
// which cannot carry arbitrary application values without loss. The codec
// therefore uses two layers: the message is serialized to msgpack, the
// msgpack bytes are base64-encoded into a printable-safe string, and only
// that string crosses the JSON boundary. Decode reverses both layers, so
// Decode(Encode(m)) == m for every value the binary codec can represent.
package envelope

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/drblury/logcast/internal/runtime/binarycodec"
	"github.com/drblury/logcast/internal/runtime/jsoncodec"
)

// EventType is the schema tag stored alongside every broadcast event. The
// subscription listener skips log records carrying any other tag, so a log
// shared with unrelated writers stays usable.
const EventType = "logcast.broadcast.v1"

// wireEnvelope is the outer JSON shape written to the log.
type wireEnvelope struct {
	Origin     string `json:"origin"`
	TargetNode string `json:"target_node,omitempty"`
	Payload    string `json:"payload"`
}

// Broadcast is a decoded broadcast record.
type Broadcast struct {
	// Origin is the identity of the adapter instance that produced the
	// record. The producing instance suppresses its own records on read-back.
	Origin string

	// TargetNode is set only for direct broadcasts and names the single node
	// whose local subscribers should receive the message.
	TargetNode string

	// Message is the application message.
	Message any
}

// Encode wraps an application message into the envelope bytes appended to
// the log.
func Encode(origin, targetNode string, message any) ([]byte, error) {
	if origin == "" {
		return nil, errors.New("logcast: envelope origin is required")
	}

	raw, err := binarycodec.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("logcast: serialize message: %w", err)
	}

	return jsoncodec.Marshal(wireEnvelope{
		Origin:     origin,
		TargetNode: targetNode,
		Payload:    base64.StdEncoding.EncodeToString(raw),
	})
}

// Decode classifies a log record. The boolean reports whether the record
// carries this adapter's schema tag: unrecognized records return (zero,
// false, nil) and must be skipped silently, while recognized records that
// fail to parse return an error.
func Decode(eventType string, data []byte) (Broadcast, bool, error) {
	if eventType != EventType {
		return Broadcast{}, false, nil
	}

	var env wireEnvelope
	if err := jsoncodec.Unmarshal(data, &env); err != nil {
		return Broadcast{}, true, fmt.Errorf("logcast: decode envelope: %w", err)
	}
	if env.Origin == "" {
		return Broadcast{}, true, errors.New("logcast: envelope missing origin")
	}

	raw, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return Broadcast{}, true, fmt.Errorf("logcast: decode payload text: %w", err)
	}

	var message any
	if err := binarycodec.Unmarshal(raw, &message); err != nil {
		return Broadcast{}, true, fmt.Errorf("logcast: deserialize message: %w", err)
	}

	return Broadcast{
		Origin:     env.Origin,
		TargetNode: env.TargetNode,
		Message:    message,
	}, true, nil
}
