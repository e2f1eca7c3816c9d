package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"baubot/internal/broadcast"
	"baubot/internal/protocol"
	logx "baubot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest(t *testing.T) {
	opts := &sendOptions{
		Sender:  "ci",
		Message: "ship it?",
		Timeout: 90 * time.Second,
		Options: []string{"approve, deny", " , ", "later"},
	}
	req, err := buildRequest(opts, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, "ci", req.Sender)
	require.NotNil(t, req.Responses)
	assert.Equal(t, uint64(90000), req.Responses.Timeout)
	assert.Equal(t, [][]string{{"approve", "deny"}, {"later"}}, req.Responses.Keyboard)

	req, err = buildRequest(&sendOptions{Message: "fyi"}, []string{"bob"})
	require.NoError(t, err)
	assert.Nil(t, req.Responses)

	_, err = buildRequest(&sendOptions{Message: "x", Options: []string{"a"}}, []string{"bob"})
	require.Error(t, err)
}

func TestSendPrintsOneLinePerResponse(t *testing.T) {
	gotCh := make(chan broadcast.Request, 1)
	srv := protocol.NewServer(protocol.ServerConfig{}, protocol.DispatchFunc(
		func(ctx context.Context, req broadcast.Request) <-chan broadcast.PendingResponse {
			gotCh <- req
			ch := make(chan broadcast.PendingResponse, 2)
			ch <- broadcast.PendingResponse{Recipient: "alice", Outcome: broadcast.Ok("approve")}
			ch <- broadcast.PendingResponse{Recipient: "bob", Outcome: broadcast.Fail(broadcast.Uncontactable)}
			close(ch)
			return ch
		}), logx.Nop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, srv.Serve(context.Background(), ln))
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	var out bytes.Buffer
	opts := &sendOptions{
		Addr:    ln.Addr().String(),
		Sender:  "ci",
		Message: "deploy?",
		Timeout: time.Second,
		Options: []string{"approve,deny"},
	}
	require.NoError(t, send(context.Background(), opts, []string{"alice", "bob"}, &out))

	assert.Equal(t,
		`{"type":"Recipient","recipient":"alice","response":{"Ok":"approve"}}`+"\n"+
			`{"type":"Recipient","recipient":"bob","response":{"Err":{"type":"Uncontactable"}}}`+"\n",
		out.String())
	got := <-gotCh
	assert.Equal(t, "deploy?", got.Text)
	require.NotNil(t, got.Prompt)
	assert.Equal(t, time.Second, got.Prompt.Timeout)
}

func TestSendFailsWhenServerIsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = send(context.Background(), &sendOptions{Addr: addr, Retries: 1, Message: "hi"}, []string{"alice"}, &bytes.Buffer{})
	require.Error(t, err)
}
