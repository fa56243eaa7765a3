package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	id := NewID()
	assert.NotEmpty(t, id)
	assert.Len(t, id, 36) // UUID length
	assert.NotEqual(t, id, NewID())
}

func TestMessageReply(t *testing.T) {
	req := NewMessage("caller", "worker", KindRequest, "payload")
	req.CorrelationID = NewID()

	resp := req.Reply("worker", 42)
	assert.Equal(t, KindResponse, resp.Kind)
	assert.Equal(t, "worker", resp.From)
	assert.Equal(t, "caller", resp.To)
	assert.Equal(t, req.CorrelationID, resp.CorrelationID)
	assert.NotEqual(t, req.ID, resp.ID)
	assert.Equal(t, 42, resp.Payload)
}

func TestMessageReplyError(t *testing.T) {
	req := NewMessage("caller", "worker", KindRequest, nil)
	req.CorrelationID = NewID()

	resp := req.ReplyError("worker", errors.New("boom"))
	assert.Equal(t, KindError, resp.Kind)
	assert.Equal(t, "caller", resp.To)
	assert.Equal(t, req.CorrelationID, resp.CorrelationID)
	assert.Equal(t, "boom", resp.Payload)
}

func TestFutureResolvesOnce(t *testing.T) {
	f := NewFuture()
	select {
	case <-f.Done():
		t.Fatal("future resolved before Resolve")
	default:
	}

	f.Resolve(TaskResult{TaskID: "t1", Output: "ok"})
	res := f.Result()
	assert.Equal(t, "t1", res.TaskID)
	assert.Equal(t, "ok", res.Output)
	assert.NoError(t, res.Err)
}
