package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.Error(t, (&Request{Subject: "s", Text: "t"}).Validate())
	assert.Error(t, (&Request{To: "a@b.c", Text: "t"}).Validate())
	assert.Error(t, (&Request{To: "a@b.c", Subject: "s"}).Validate())
	assert.NoError(t, (&Request{To: "a@b.c", Subject: "s", Text: "t"}).Validate())
	assert.NoError(t, (&Request{To: "a@b.c", Subject: "s", Template: TemplatePasswordReset}).Validate())
}

func TestSendViaResend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer rk_test", r.Header.Get("Authorization"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []interface{}{"a@b.c"}, body["to"])
		json.NewEncoder(w).Encode(map[string]string{"id": "msg_123"})
	}))
	defer srv.Close()

	s := New(Config{APIKey: "rk_test", BaseURL: srv.URL}, nil)
	res, err := s.Send(context.Background(), Request{To: "a@b.c", Subject: "hello", Text: "hi"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "resend", res.Provider)
	assert.Equal(t, "msg_123", res.MessageID)
}

func TestSendFallsBackToConsole(t *testing.T) {
	s := New(Config{}, nil)
	res, err := s.Send(context.Background(), Request{To: "a@b.c", Subject: "hello", Text: "hi"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "console", res.Provider)
	assert.Contains(t, res.MessageID, "dev-")
}

func TestSendResendFailureDegradesToConsole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := New(Config{APIKey: "rk_test", BaseURL: srv.URL}, nil)
	res, err := s.Send(context.Background(), Request{To: "a@b.c", Subject: "hello", Text: "hi"})
	require.NoError(t, err, "provider failure must not fail the caller")
	assert.Equal(t, "console", res.Provider)
}

func TestPasswordResetTemplate(t *testing.T) {
	var sent map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&sent)
		json.NewEncoder(w).Encode(map[string]string{"id": "msg_1"})
	}))
	defer srv.Close()

	s := New(Config{APIKey: "rk_test", BaseURL: srv.URL}, nil)
	_, err := s.Send(context.Background(), Request{
		To:       "a@b.c",
		Subject:  "Reset",
		Template: TemplatePasswordReset,
		ResetURL: "https://example.com/reset?token=x",
		UserName: "Ada",
	})
	require.NoError(t, err)

	html, _ := sent["html"].(string)
	assert.Contains(t, html, "Reset Your Password")
	assert.Contains(t, html, "https://example.com/reset?token=x")
	assert.Contains(t, html, "Hi Ada")
	text, _ := sent["text"].(string)
	assert.Contains(t, text, "expires in 60 minutes")
}
