package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the fixed protocol tag every envelope must carry.
const Version = "2.0"

// Error codes per the JSON-RPC 2.0 specification, plus the
// implementation-defined session code in the -32000..-32099 server range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
	CodeSessionError   = -32001
)

// Request is an incoming envelope. ID is kept raw so string and integer
// correlation tokens are echoed back byte for byte.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outgoing envelope. Result and Error are mutually exclusive.
// A nil ID marshals as JSON null, which is the sentinel for responses to
// requests whose id could not be recovered.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the error member of a response envelope.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ParseRequest decodes raw bytes into a request envelope. It fails only when
// the bytes are not a JSON object of the envelope shape; semantic checks
// (protocol tag, method registration) are the dispatcher's job.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	return &req, nil
}

// SalvageID attempts to recover the id member from bytes that failed to
// decode as a full envelope. It returns nil when nothing can be salvaged.
func SalvageID(data []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil
	}
	return probe.ID
}

// NewResult builds a success envelope echoing id.
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewError builds an error envelope echoing id.
func NewError(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message},
	}
}

// NewErrorWithData builds an error envelope carrying supplemental data.
func NewErrorWithData(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message, Data: data},
	}
}
