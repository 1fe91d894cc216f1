package weaiove

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags the outcome of one API call. Exactly one of the Result fields
// relevant to the kind is populated.
type Kind int

const (
	KindOK        Kind = iota // Data holds the envelope payload (may be empty)
	KindBusiness              // Code/Message carry the vendor's failure
	KindAuth                  // token invalid or expired
	KindTransport             // network, HTTP status or malformed body; Err holds the cause
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindBusiness:
		return "business_error"
	case KindAuth:
		return "auth_error"
	case KindTransport:
		return "transport_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Result struct {
	Kind    Kind
	Status  int // HTTP status, 0 if no response arrived
	Code    int
	Message string
	Data    json.RawMessage
	Err     error
}

// envelope is the JSON wrapper every minpro-api endpoint returns.
type envelope struct {
	Code       *int            `json:"code"`
	Msg        string          `json:"msg"`
	Successful bool            `json:"successful"`
	Data       json.RawMessage `json:"data"`
}

func (r Result) OK() bool { return r.Kind == KindOK }

// Condition classifies a business error's message; other kinds report CondNone.
func (r Result) Condition() Condition {
	if r.Kind != KindBusiness && r.Kind != KindAuth {
		return CondNone
	}
	return Classify(r.Message)
}

// Reason is a short human-readable description suitable for a report line.
func (r Result) Reason() string {
	switch r.Kind {
	case KindOK:
		return "ok"
	case KindBusiness, KindAuth:
		if r.Message != "" {
			return r.Message
		}
		if r.Kind == KindAuth {
			return "token may be invalid (401)"
		}
		return fmt.Sprintf("business code %d", r.Code)
	default:
		if r.Err != nil {
			return r.Err.Error()
		}
		return "request failed"
	}
}

// Decode unmarshals the payload into v. An empty or null payload leaves v untouched.
func (r Result) Decode(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

var errNoStatus = errors.New("response has no status field")

func transportErr(status int, err error) Result {
	return Result{Kind: KindTransport, Status: status, Err: err}
}

// malformed turns a successful call whose payload lacks a required field
// into a transport failure so callers never assume the payload is usable.
func malformed(r Result, format string, args ...any) Result {
	return Result{Kind: KindTransport, Status: r.Status, Code: r.Code, Message: r.Message, Err: fmt.Errorf(format, args...)}
}

// classifyBody maps a 2xx response body onto a Result.
func classifyBody(status int, body []byte) Result {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Result{Kind: KindOK, Status: status}
	}
	var env *envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return transportErr(status, fmt.Errorf("parse response: %w", err))
	}
	if env == nil {
		return transportErr(status, errNoStatus)
	}
	res := Result{Status: status, Message: env.Msg, Data: env.Data}
	if env.Code != nil {
		res.Code = *env.Code
	}
	switch {
	case env.Code != nil && *env.Code == 401:
		res.Kind = KindAuth
	case env.Successful:
		res.Kind = KindOK
	case env.Code == nil:
		// no status field and no success flag
		res.Kind = KindBusiness
		if res.Message == "" {
			res.Kind = KindTransport
			res.Err = errNoStatus
		}
	case *env.Code == 0 || *env.Code == 200:
		res.Kind = KindOK
	default:
		res.Kind = KindBusiness
	}
	return res
}
