// ABOUTME: Tests for the Twilio REST sender against an httptest server
// ABOUTME: Covers request shape, success SID, API errors, and configuration checks

package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwilioSender_Send(t *testing.T) {
	var gotPath, gotUser, gotPass string
	var gotForm map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		assert.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"To":       r.PostForm.Get("To"),
			"From":     r.PostForm.Get("From"),
			"Body":     r.PostForm.Get("Body"),
			"MediaUrl": r.PostForm.Get("MediaUrl"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	s, err := NewTwilioSender(TwilioConfig{
		AccountSID: "AC1", AuthToken: "secret", From: "+15550001111", BaseURL: srv.URL + "/",
	})
	require.NoError(t, err)
	assert.Equal(t, "twilio", s.Name())

	sid, err := s.Send(context.Background(), "+15559876543", "hello", "https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "SM123", sid)

	assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", gotPath)
	assert.Equal(t, "AC1", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, map[string]string{
		"To":       "+15559876543",
		"From":     "+15550001111",
		"Body":     "hello",
		"MediaUrl": "https://example.com/a.png",
	}, gotForm)
}

func TestTwilioSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number.","status":400}`))
	}))
	defer srv.Close()

	s, err := NewTwilioSender(TwilioConfig{AccountSID: "AC1", AuthToken: "x", From: "+15550001111", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = s.Send(context.Background(), "+15550000000", "hi", "")
	require.Error(t, err)

	var te *TwilioError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 21211, te.Code)
}

func TestTwilioSender_FailedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM9","status":"failed","error_message":"unreachable"}`))
	}))
	defer srv.Close()

	s, err := NewTwilioSender(TwilioConfig{AccountSID: "AC1", AuthToken: "x", From: "+15550001111", BaseURL: srv.URL})
	require.NoError(t, err)

	sid, err := s.Send(context.Background(), "+15550000000", "hi", "")
	require.Error(t, err)
	assert.Equal(t, "SM9", sid)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestNewTwilioSender_RequiresCredentials(t *testing.T) {
	_, err := NewTwilioSender(TwilioConfig{AccountSID: "AC1"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
