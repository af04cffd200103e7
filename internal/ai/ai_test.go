package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/himera/internal/config"
	st "github.com/keshon/himera/internal/storagetypes"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "deepseek-chat",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(config.LLM{
		APIKey:     "test",
		BaseURL:    srv.URL,
		Model:      "deepseek-chat",
		Timeout:    timeout,
		MaxRetries: 2,
		RatePerSec: 50,
	}, srv.Client(), zerolog.Nop())
	require.NoError(t, err)
	c.retry.InitialDelay = time.Millisecond
	c.retry.RateLimitDelay = time.Millisecond
	return c
}

func TestClientSendsModeParams(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, completion(`{"response": "hello"}`))
	}, time.Second)

	out, err := c.Complete(context.Background(), []Message{System(SystemPrompt(st.ModeExpert)), User("hi")}, st.ModeExpert, true)
	require.NoError(t, err)
	assert.Equal(t, `{"response": "hello"}`, out)

	assert.InDelta(t, 0.55, body["temperature"], 1e-9)
	assert.EqualValues(t, 3000, body["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

	msgs := body["messages"].([]any)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Contains(t, first["content"], `{"response": "text"}`)
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}, time.Second)

	_, err := c.Complete(context.Background(), []Message{User("hi")}, st.ModeAuto, false)
	assert.ErrorIs(t, err, ErrAPI)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClientRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"down"}}`)
			return
		}
		fmt.Fprint(w, completion("back"))
	}, time.Second)

	out, err := c.Complete(context.Background(), []Message{User("hi")}, st.ModeTalk, false)
	require.NoError(t, err)
	assert.Equal(t, "back", out)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	_, err := c.Complete(context.Background(), []Message{User("hi")}, st.ModeAuto, false)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClientEmptyChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}, time.Second)

	_, err := c.Complete(context.Background(), []Message{User("hi")}, st.ModeAuto, false)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(config.LLM{}, nil, zerolog.Nop())
	assert.Error(t, err)
}

type scripted struct {
	replies map[bool][]string
	errs    map[bool]error
	calls   []bool
}

func (s *scripted) Complete(_ context.Context, _ []Message, _ st.Mode, jsonMode bool) (string, error) {
	s.calls = append(s.calls, jsonMode)
	if err := s.errs[jsonMode]; err != nil {
		return "", err
	}
	q := s.replies[jsonMode]
	if len(q) == 0 {
		return "", ErrEmpty
	}
	s.replies[jsonMode] = q[1:]
	return q[0], nil
}

func TestRespondParsesJSON(t *testing.T) {
	p := &scripted{replies: map[bool][]string{true: {`{"response": "A quiet answer."}`}}}
	r := NewResponder(p, true, true, zerolog.Nop())

	rep, err := r.Respond(context.Background(), nil, st.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, "A quiet answer.", rep.Text)
	assert.False(t, rep.Violation)
	assert.Equal(t, JSONStats{Success: 1}, r.Stats())
}

func TestRespondFallsBackToPlainText(t *testing.T) {
	p := &scripted{replies: map[bool][]string{
		true:  {`not json at all`},
		false: {"**Bold** answer"},
	}}
	r := NewResponder(p, true, true, zerolog.Nop())

	rep, err := r.Respond(context.Background(), nil, st.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, "Bold answer", rep.Text)
	assert.True(t, rep.Violation)
	assert.Equal(t, []bool{true, false}, p.calls)
	assert.Equal(t, JSONStats{Failures: 1, Fallbacks: 1}, r.Stats())
}

func TestRespondApologisesWithoutFallback(t *testing.T) {
	p := &scripted{replies: map[bool][]string{true: {`{"response": ""}`}}}
	r := NewResponder(p, true, false, zerolog.Nop())

	rep, err := r.Respond(context.Background(), nil, st.ModeAuto)
	require.NoError(t, err)
	assert.True(t, rep.Apology)
	assert.Equal(t, Apology, rep.Text)
}

func TestRespondReturnsTransportErrors(t *testing.T) {
	p := &scripted{errs: map[bool]error{false: fmt.Errorf("%w: refused", ErrConnection)}}
	r := NewResponder(p, false, true, zerolog.Nop())

	_, err := r.Respond(context.Background(), nil, st.ModeAuto)
	assert.True(t, IsTransient(err))
	assert.False(t, IsTransient(errors.New("other")))
}

func TestParseJSONReply(t *testing.T) {
	got, err := ParseJSONReply("```json\n{\"response\": \" text \"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "text", got)

	_, err = ParseJSONReply(`{"answer": "x"}`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFormatViolationAndClean(t *testing.T) {
	assert.True(t, HasFormatViolation("1. first\n2. second"))
	assert.True(t, HasFormatViolation("- item"))
	assert.False(t, HasFormatViolation("Plain prose, nothing else."))

	assert.Equal(t, "Hello there", CleanReply("<think>plan</think>\"Hello   there\""))
	assert.Equal(t, "a\n\nb", CleanReply("a\n\n\n\n b"))
	assert.Equal(t, "Keys:\nrusty\nsilver", CleanReply("Keys:\n- rusty\n* silver"))
}

func TestParamsFor(t *testing.T) {
	assert.Equal(t, ParamsFor(st.ModeTalk), ParamsFor(st.ModeProactive))
	assert.Equal(t, ParamsFor(st.ModeAuto), ParamsFor(st.Mode("bogus")))
}
