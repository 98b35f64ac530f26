package rpc

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/tau/pkg/models"
)

// HandlerFunc handles one RPC kind. It receives the decoded payload
// and returns either a response payload (marshaled into the response
// frame verbatim) or a dispatch error, which the Dispatcher turns into
// an error-kind response — handlers never need to build a RpcFrame
// themselves (spec §4.7 "Dispatch").
type HandlerFunc func(requestID string, payload json.RawMessage) (any, *Error)

// kindEntry pairs a handler with the response kind it produces, so
// the Dispatcher can stamp the response frame's Kind without each
// handler repeating it.
type kindEntry struct {
	handler      HandlerFunc
	responseKind string
}

// Dispatcher holds the live kind->handler registry (spec §4.7: "Each
// kind is handled by a registered dispatcher"). It is safe to build
// once and reuse across Validate/Dispatch/serve calls; registration
// itself is not goroutine-safe and is expected to happen once at
// startup.
type Dispatcher struct {
	kinds map[string]kindEntry
}

// NewDispatcher returns an empty Dispatcher. Callers register kinds
// with Register before serving any frame.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{kinds: make(map[string]kindEntry)}
}

// Register binds a request kind to its handler and the kind its
// response frames carry. Panics on a duplicate kind, since that is a
// wiring bug caught at startup, not a runtime condition.
func (d *Dispatcher) Register(requestKind, responseKind string, handler HandlerFunc) {
	if _, exists := d.kinds[requestKind]; exists {
		panic(fmt.Sprintf("rpc: kind %q registered twice", requestKind))
	}
	d.kinds[requestKind] = kindEntry{handler: handler, responseKind: responseKind}
}

// Kinds returns the registered request kinds, sorted, for help text
// and error messages.
func (d *Dispatcher) Kinds() []string {
	names := make([]string, 0, len(d.kinds))
	for k := range d.kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Dispatch parses raw bytes into a frame and routes it to the
// registered handler for its kind, returning a response frame in
// every case — a malformed frame, an unknown kind, and a handler
// failure all become well-formed error response frames rather than a
// Go error (spec §4.7 "Dispatch", §8 invariant on request_id/
// schema_version echo).
func (d *Dispatcher) Dispatch(raw []byte) models.RpcFrame {
	frame, rpcErr := parseFrameShape(raw)
	if rpcErr != nil {
		return ErrorResponse(frame.RequestID, frame.SchemaVersion, rpcErr)
	}
	entry, ok := d.kinds[frame.Kind]
	if !ok {
		rpcErr := newError(models.RpcErrUnknownKind,
			"unsupported rpc frame kind %q (supported: %s)", frame.Kind, strings.Join(d.Kinds(), ", "))
		return ErrorResponse(frame.RequestID, frame.SchemaVersion, rpcErr)
	}
	responsePayload, rpcErr := entry.handler(frame.RequestID, frame.Payload)
	if rpcErr != nil {
		return ErrorResponse(frame.RequestID, frame.SchemaVersion, rpcErr)
	}
	encoded, err := json.Marshal(responsePayload)
	if err != nil {
		rpcErr := newError(models.RpcErrIO, "encode response payload for kind %q: %v", frame.Kind, err)
		return ErrorResponse(frame.RequestID, frame.SchemaVersion, rpcErr)
	}
	return models.RpcFrame{
		SchemaVersion: frame.SchemaVersion,
		RequestID:     frame.RequestID,
		Kind:          entry.responseKind,
		Payload:       encoded,
	}
}

// IsError reports whether a frame returned by Dispatch is an error
// response, for callers that need to set a non-zero exit code.
func IsError(frame models.RpcFrame) bool { return frame.Kind == "error" }

// PayloadKeyCount returns the number of top-level keys in a frame's
// payload object, used by the "validate" summary line (spec §8
// scenario 2: "payload_keys=1").
func PayloadKeyCount(payload json.RawMessage) int {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return 0
	}
	return len(m)
}
