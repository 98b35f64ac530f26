package models

import "encoding/json"

// RpcFrame is the versioned request/response envelope served by the
// RPC Frame Protocol (spec §4.7, §6). Response frames reuse the same
// shape; error responses set Kind to "error" and Payload to
// {code, message}.
type RpcFrame struct {
	SchemaVersion uint32          `json:"schema_version"`
	RequestID     string          `json:"request_id"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
}

// RpcErrorPayload is the payload of an error-kind response frame.
type RpcErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stable RPC error codes (spec §4.7 "Error codes").
const (
	RpcErrIO                = "io_error"
	RpcErrSchemaUnsupported = "schema_unsupported"
	RpcErrInvalidFrame      = "invalid_frame"
	RpcErrUnknownKind       = "unsupported_kind"
)
