// Package rpc implements the versioned request/response envelope
// served over file/stdin/NDJSON transports (spec §4.7, §6): frame
// parsing with strict schema validation, kind dispatch, and the
// error-envelope guarantee that every malformed or unhandled request
// becomes a typed error response rather than a panic.
package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/tau/pkg/models"
)

// CompatibleSchemaVersions is the whitelist of schema_version values
// this build accepts (spec §6: "an explicit whitelist; the lowest
// current value is 1").
var CompatibleSchemaVersions = map[uint32]bool{1: true}

// Error is a dispatch-time failure that must surface as an
// error-kind response frame rather than a Go error returned up the
// stack (spec §4.7 "Dispatch").
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("rpc: %s: %s", e.Code, e.Message) }

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// parseFrameShape decodes raw bytes and validates everything the
// frame schema itself dictates (spec §4.7 "Parse rules"), except the
// kind whitelist — that set is owned by the Dispatcher, which reports
// unknown-kind errors with its own live registry listed in the
// message.
func parseFrameShape(raw []byte) (models.RpcFrame, *Error) {
	var frame models.RpcFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return frame, newError(models.RpcErrInvalidFrame, "malformed rpc frame: %v", err)
	}
	if !CompatibleSchemaVersions[frame.SchemaVersion] {
		return frame, newError(models.RpcErrSchemaUnsupported,
			"unsupported rpc frame schema_version %d (supported: %s)",
			frame.SchemaVersion, supportedVersionsList())
	}
	frame.RequestID = strings.TrimSpace(frame.RequestID)
	if frame.RequestID == "" {
		return frame, newError(models.RpcErrInvalidFrame, "rpc frame request_id must not be empty")
	}
	frame.Kind = strings.TrimSpace(frame.Kind)
	if len(frame.Payload) == 0 {
		frame.Payload = json.RawMessage("{}")
	}
	if !isJSONObject(frame.Payload) {
		return frame, newError(models.RpcErrInvalidFrame, "payload must be a JSON object")
	}
	return frame, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")
}

func supportedVersionsList() string {
	versions := make([]string, 0, len(CompatibleSchemaVersions))
	for v := range CompatibleSchemaVersions {
		versions = append(versions, fmt.Sprintf("%d", v))
	}
	return strings.Join(versions, ", ")
}

// ErrorResponse builds the error-kind response frame for a failed
// parse or dispatch (spec §4.7: `kind = "error"`, `payload =
// {code, message}`). requestID and schemaVersion are echoed from the
// request when known, since spec §8's round-trip invariant requires a
// response to carry the same request_id and schema_version even on
// failure.
func ErrorResponse(requestID string, schemaVersion uint32, rpcErr *Error) models.RpcFrame {
	if schemaVersion == 0 {
		schemaVersion = lowestCompatibleVersion()
	}
	payload, _ := json.Marshal(models.RpcErrorPayload{Code: rpcErr.Code, Message: rpcErr.Message})
	return models.RpcFrame{
		SchemaVersion: schemaVersion,
		RequestID:     requestID,
		Kind:          "error",
		Payload:       payload,
	}
}

func lowestCompatibleVersion() uint32 {
	lowest := uint32(0)
	for v := range CompatibleSchemaVersions {
		if lowest == 0 || v < lowest {
			lowest = v
		}
	}
	return lowest
}
