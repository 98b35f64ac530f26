package rpc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestDispatcher() *Dispatcher {
	d := NewDispatcher()
	d.Register("run.start", "run.result", func(requestID string, payload json.RawMessage) (any, *Error) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.Unmarshal(payload, &req)
		return map[string]string{"echo": req.Prompt}, nil
	})
	return d
}

func TestValidateFrame(t *testing.T) {
	d := newTestDispatcher()
	raw := []byte(`{"schema_version":1,"request_id":"req-1","kind":"run.start","payload":{"prompt":"hi"}}`)
	frame, rpcErr := parseFrameShape(raw)
	if rpcErr != nil {
		t.Fatalf("parseFrameShape: %v", rpcErr)
	}
	if !d.knownKind(frame.Kind) {
		t.Fatalf("kind %q not known", frame.Kind)
	}
	if frame.RequestID != "req-1" {
		t.Fatalf("request_id = %q, want req-1", frame.RequestID)
	}
	if got := PayloadKeyCount(frame.Payload); got != 1 {
		t.Fatalf("payload_keys = %d, want 1", got)
	}
}

func TestValidateFrameUnsupportedSchema(t *testing.T) {
	raw := []byte(`{"schema_version":9,"request_id":"req-1","kind":"run.start","payload":{}}`)
	_, rpcErr := parseFrameShape(raw)
	if rpcErr == nil || !strings.Contains(rpcErr.Message, "unsupported rpc frame schema") {
		t.Fatalf("rpcErr = %v, want message containing 'unsupported rpc frame schema'", rpcErr)
	}
}

func TestValidateFrameUnknownKind(t *testing.T) {
	d := newTestDispatcher()
	raw := []byte(`{"schema_version":1,"request_id":"req-1","kind":"run.unknown","payload":{}}`)
	frame, rpcErr := parseFrameShape(raw)
	if rpcErr != nil {
		t.Fatalf("parseFrameShape: %v", rpcErr)
	}
	if d.knownKind(frame.Kind) {
		t.Fatalf("kind %q unexpectedly known", frame.Kind)
	}
	response := d.Dispatch(raw)
	if !IsError(response) {
		t.Fatalf("Dispatch(run.unknown) did not produce an error frame")
	}
	var errPayload struct{ Message string }
	if err := json.Unmarshal(response.Payload, &errPayload); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if !strings.Contains(errPayload.Message, "unsupported rpc frame kind") {
		t.Fatalf("message = %q, want substring 'unsupported rpc frame kind'", errPayload.Message)
	}
}

func TestValidateFramePayloadMustBeObject(t *testing.T) {
	raw := []byte(`{"schema_version":1,"request_id":"req-1","kind":"run.start","payload":[]}`)
	_, rpcErr := parseFrameShape(raw)
	if rpcErr == nil || rpcErr.Message != "payload must be a JSON object" {
		t.Fatalf("rpcErr = %v, want 'payload must be a JSON object'", rpcErr)
	}
}

func TestDispatchEchoesRequestIDAndSchemaVersion(t *testing.T) {
	d := newTestDispatcher()
	raw := []byte(`{"schema_version":1,"request_id":"req-42","kind":"run.start","payload":{"prompt":"hi"}}`)
	response := d.Dispatch(raw)
	if response.RequestID != "req-42" || response.SchemaVersion != 1 {
		t.Fatalf("response = %+v, want request_id=req-42 schema_version=1", response)
	}
	if response.Kind != "run.result" {
		t.Fatalf("response.Kind = %q, want run.result", response.Kind)
	}
}

func TestDispatchMalformedFrameStillEchoesWhatItCan(t *testing.T) {
	d := newTestDispatcher()
	raw := []byte(`{"schema_version":1,"request_id":"","kind":"run.start","payload":{}}`)
	response := d.Dispatch(raw)
	if !IsError(response) {
		t.Fatalf("empty request_id should produce an error frame")
	}
	if response.SchemaVersion != 1 {
		t.Fatalf("response.SchemaVersion = %d, want 1 echoed from the request", response.SchemaVersion)
	}
}

func TestDispatchNDJSONWritesOneLinePerRequest(t *testing.T) {
	d := newTestDispatcher()
	input := strings.Join([]string{
		`{"schema_version":1,"request_id":"a","kind":"run.start","payload":{"prompt":"one"}}`,
		`{"schema_version":1,"request_id":"b","kind":"run.unknown","payload":{}}`,
	}, "\n")
	var out bytes.Buffer
	anyErr, err := d.DispatchNDJSON(strings.NewReader(input), &out)
	if err != nil {
		t.Fatalf("DispatchNDJSON: %v", err)
	}
	if !anyErr {
		t.Fatalf("anyErr = false, want true (second line is an unknown kind)")
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d response lines, want 2", len(lines))
	}
}
