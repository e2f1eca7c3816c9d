package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"baubot/internal/broadcast"
)

// Request is the wire form of a broadcast.
type Request struct {
	Sender     string     `json:"sender"`
	Recipients []string   `json:"recipients"`
	Message    string     `json:"message"`
	Responses  *Responses `json:"responses,omitempty"`
}

// MaxTimeoutMillis is the largest responses.timeout that fits a time.Duration.
const MaxTimeoutMillis = uint64(math.MaxInt64 / int64(time.Millisecond))

// Responses asks every recipient to pick one of Keyboard within Timeout milliseconds.
type Responses struct {
	Timeout  uint64     `json:"timeout"`
	Keyboard [][]string `json:"keyboard"`
}

// Broadcast converts r into an engine request. Every recipient solicits a
// reply; an empty keyboard makes that a no-op.
func (r Request) Broadcast(id string) broadcast.Request {
	out := broadcast.Request{
		ID:         id,
		Sender:     r.Sender,
		Text:       r.Message,
		Recipients: make([]broadcast.Recipient, 0, len(r.Recipients)),
	}
	for _, name := range r.Recipients {
		out.Recipients = append(out.Recipients, broadcast.Recipient{Name: name, WantsReply: true})
	}
	if r.Responses != nil {
		out.Prompt = &broadcast.Prompt{
			Timeout: time.Duration(r.Responses.Timeout) * time.Millisecond,
			Options: r.Responses.Keyboard,
		}
	}
	return out
}

type ErrorKind string

const (
	InvalidJSON  ErrorKind = "InvalidJson"
	InvalidField ErrorKind = "InvalidField"
)

// DecodeError reports a request the server refused to dispatch.
type DecodeError struct {
	Kind ErrorKind
	// Detail is the parser message for InvalidJson and the field name for InvalidField.
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Kind == InvalidField {
		return "protocol: missing or invalid field " + e.Detail
	}
	return "protocol: invalid json: " + e.Detail
}

func invalidJSON(err error) *DecodeError { return &DecodeError{Kind: InvalidJSON, Detail: err.Error()} }

// DecodeRequest parses data strictly: sender, recipients and message are
// required, responses is optional. Unknown fields are ignored. A timeout
// beyond MaxTimeoutMillis is an InvalidField.
func DecodeRequest(data []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Request{}, invalidJSON(err)
	}
	if fields == nil {
		return Request{}, invalidJSON(errors.New("request is not an object"))
	}

	var req Request
	for _, f := range []struct {
		name string
		dst  any
	}{
		{"sender", &req.Sender},
		{"recipients", &req.Recipients},
		{"message", &req.Message},
	} {
		raw, ok := fields[f.name]
		if !ok || isNull(raw) {
			return Request{}, &DecodeError{Kind: InvalidField, Detail: f.name}
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return Request{}, invalidJSON(fmt.Errorf("%s: %w", f.name, err))
		}
	}
	if raw, ok := fields["responses"]; ok && !isNull(raw) {
		var rs Responses
		if err := json.Unmarshal(raw, &rs); err != nil {
			return Request{}, invalidJSON(fmt.Errorf("responses: %w", err))
		}
		if rs.Timeout > MaxTimeoutMillis {
			return Request{}, &DecodeError{Kind: InvalidField, Detail: "responses.timeout"}
		}
		req.Responses = &rs
	}
	return req, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type ResponseType string

const (
	TypeRecipient   ResponseType = "Recipient"
	TypeInvalidData ResponseType = "InvalidData"
)

// Response is one line of the server's answer stream.
type Response struct {
	Type ResponseType
	// Recipient and Outcome are set for TypeRecipient.
	Recipient string
	Outcome   broadcast.Outcome
	// Err is set for TypeInvalidData.
	Err *DecodeError
}

func RecipientResponse(p broadcast.PendingResponse) Response {
	return Response{Type: TypeRecipient, Recipient: p.Recipient, Outcome: p.Outcome}
}

func InvalidDataResponse(err *DecodeError) Response {
	return Response{Type: TypeInvalidData, Err: err}
}

type wireResponse struct {
	Type      ResponseType `json:"type"`
	Recipient string       `json:"recipient,omitempty"`
	Response  *wireOutcome `json:"response,omitempty"`
	Error     *wireError   `json:"error,omitempty"`
}

type wireOutcome struct {
	Ok  *string     `json:"Ok,omitempty"`
	Err *wireReason `json:"Err,omitempty"`
}

type wireReason struct {
	Type broadcast.Reason `json:"type"`
}

type wireError struct {
	Type   ErrorKind `json:"type"`
	Detail string    `json:"detail"`
}

func (r Response) wire() wireResponse {
	w := wireResponse{Type: r.Type}
	switch r.Type {
	case TypeRecipient:
		w.Recipient = r.Recipient
		if r.Outcome.IsOk() {
			opt := r.Outcome.Option
			w.Response = &wireOutcome{Ok: &opt}
		} else {
			w.Response = &wireOutcome{Err: &wireReason{Type: r.Outcome.Err}}
		}
	case TypeInvalidData:
		if r.Err != nil {
			w.Error = &wireError{Type: r.Err.Kind, Detail: r.Err.Detail}
		}
	}
	return w
}

var errMalformedResponse = errors.New("protocol: malformed response")

func (w wireResponse) response() (Response, error) {
	switch w.Type {
	case TypeRecipient:
		if w.Response == nil {
			return Response{}, errMalformedResponse
		}
		r := Response{Type: TypeRecipient, Recipient: w.Recipient}
		switch {
		case w.Response.Ok != nil:
			r.Outcome = broadcast.Ok(*w.Response.Ok)
		case w.Response.Err != nil && w.Response.Err.Type != "":
			r.Outcome = broadcast.Fail(w.Response.Err.Type)
		default:
			return Response{}, errMalformedResponse
		}
		return r, nil
	case TypeInvalidData:
		r := Response{Type: TypeInvalidData}
		if w.Error != nil {
			r.Err = &DecodeError{Kind: w.Error.Type, Detail: w.Error.Detail}
		}
		return r, nil
	default:
		return Response{}, fmt.Errorf("%w: unknown type %q", errMalformedResponse, w.Type)
	}
}

// Encoder writes responses as newline-terminated JSON objects. Message
// content is not HTML-escaped.
type Encoder struct {
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{enc: enc}
}

func (e *Encoder) Encode(r Response) error { return e.enc.Encode(r.wire()) }

// Decoder reads a stream of responses.
type Decoder struct {
	dec *json.Decoder
}

func NewDecoder(r io.Reader) *Decoder { return &Decoder{dec: json.NewDecoder(r)} }

// Decode returns io.EOF once the stream ends cleanly.
func (d *Decoder) Decode() (Response, error) {
	var w wireResponse
	if err := d.dec.Decode(&w); err != nil {
		return Response{}, err
	}
	return w.response()
}

func encodeRequest(req Request) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return nil, invalidJSON(err)
	}
	return buf.Bytes(), nil
}
