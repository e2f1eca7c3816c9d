package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baubot/internal/broadcast"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Request
		errKind ErrorKind
		detail  string
	}{
		{
			name: "full",
			in: `{"sender":"sender","recipients":["recipient"],"message":"hello world",
				"responses":{"timeout":5000,"keyboard":[["hi","bye"],["go away"]]}}`,
			want: Request{
				Sender:     "sender",
				Recipients: []string{"recipient"},
				Message:    "hello world",
				Responses:  &Responses{Timeout: 5000, Keyboard: [][]string{{"hi", "bye"}, {"go away"}}},
			},
		},
		{
			name: "missing responses",
			in:   `{"sender":"sender","recipients":["recipient"],"message":"hello world"}`,
			want: Request{Sender: "sender", Recipients: []string{"recipient"}, Message: "hello world"},
		},
		{
			name: "unknown fields ignored",
			in:   `{"sender":"s","recipients":[],"message":"m","priority":"high"}`,
			want: Request{Sender: "s", Recipients: []string{}, Message: "m"},
		},
		{name: "invalid responses", in: `{"sender":"s","recipients":["r"],"message":"m","responses":"boo"}`, errKind: InvalidJSON},
		{name: "missing sender", in: `{"recipients":["r"],"message":"m"}`, errKind: InvalidField, detail: "sender"},
		{name: "null message", in: `{"sender":"s","recipients":["r"],"message":null}`, errKind: InvalidField, detail: "message"},
		{name: "invalid recipients", in: `{"sender":"s","recipients":"r","message":"m"}`, errKind: InvalidJSON},
		{name: "missing recipients", in: `{"sender":"s","message":"m"}`, errKind: InvalidField, detail: "recipients"},
		{
			name: "largest timeout",
			in:   `{"sender":"s","recipients":["r"],"message":"m","responses":{"timeout":9223372036854,"keyboard":[]}}`,
			want: Request{Sender: "s", Recipients: []string{"r"}, Message: "m", Responses: &Responses{Timeout: MaxTimeoutMillis, Keyboard: [][]string{}}},
		},
		{
			name:    "timeout overflows duration",
			in:      `{"sender":"s","recipients":["r"],"message":"m","responses":{"timeout":10000000000000,"keyboard":[["ok"]]}}`,
			errKind: InvalidField,
			detail:  "responses.timeout",
		},
		{name: "not json", in: `hello`, errKind: InvalidJSON},
		{name: "not an object", in: `[1,2]`, errKind: InvalidJSON},
		{name: "null", in: `null`, errKind: InvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.in))
			if tt.errKind == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			var derr *DecodeError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, tt.errKind, derr.Kind)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, derr.Detail)
			}
		})
	}
}

func TestRequestBroadcast(t *testing.T) {
	req := Request{
		Sender:     "ci",
		Recipients: []string{"alice", "bob"},
		Message:    "deploy?",
		Responses:  &Responses{Timeout: 1500, Keyboard: [][]string{{"yes", "no"}}},
	}
	got := req.Broadcast("req-1")

	assert.Equal(t, "req-1", got.ID)
	assert.Equal(t, "ci", got.Sender)
	assert.Equal(t, "deploy?", got.Text)
	assert.Equal(t, []broadcast.Recipient{{Name: "alice", WantsReply: true}, {Name: "bob", WantsReply: true}}, got.Recipients)
	require.NotNil(t, got.Prompt)
	assert.Equal(t, 1500*time.Millisecond, got.Prompt.Timeout)
	assert.Equal(t, [][]string{{"yes", "no"}}, got.Prompt.Options)

	assert.Nil(t, Request{Recipients: []string{"a"}}.Broadcast("x").Prompt)
}

func TestResponseGolden(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))

	cases := map[string]Response{
		"recipient_ok":            RecipientResponse(broadcast.PendingResponse{Recipient: "alice", Outcome: broadcast.Ok("approve")}),
		"recipient_ok_markup":     RecipientResponse(broadcast.PendingResponse{Recipient: "bob", Outcome: broadcast.Ok("<b>yes</b> & no")}),
		"recipient_timeout":       RecipientResponse(broadcast.PendingResponse{Recipient: "alice", Outcome: broadcast.Fail(broadcast.Timeout)}),
		"recipient_uncontactable": RecipientResponse(broadcast.PendingResponse{Recipient: "ghost", Outcome: broadcast.Fail(broadcast.Uncontactable)}),
		"invalid_field":           InvalidDataResponse(&DecodeError{Kind: InvalidField, Detail: "sender"}),
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewEncoder(&buf).Encode(r))
			g.Assert(t, name, buf.Bytes())

			got, err := NewDecoder(&buf).Decode()
			require.NoError(t, err)
			assert.Equal(t, r, got)
		})
	}
}

func TestDecoderStream(t *testing.T) {
	in := strings.Join([]string{
		`{"type":"Recipient","recipient":"a","response":{"Ok":"x"}}`,
		`{"type":"Recipient","recipient":"b","response":{"Err":{"type":"Timeout"}}}`,
		`{"type":"Mystery"}`,
	}, "\n")
	dec := NewDecoder(strings.NewReader(in))

	r, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, broadcast.Ok("x"), r.Outcome)

	r, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, broadcast.Fail(broadcast.Timeout), r.Outcome)

	_, err = dec.Decode()
	assert.ErrorIs(t, err, errMalformedResponse)

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}
