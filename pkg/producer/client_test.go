package producer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Send(t *testing.T) {
	var gotToken, gotContentType, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(TokenHeader)
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total":2,"processed":1,"errors":[{"index":1,"reason":"validation_error","detail":"missing type"}]}`))
	}))
	defer srv.Close()

	q := NewQueue()
	require.NoError(t, q.Add(NewEvent("match_start", "m1")))
	require.NoError(t, q.Add(NewEvent("", "m2")))

	client := NewClient(srv.URL, "secret-token")
	result, err := client.Send(context.Background(), q, EncodingJSON)
	require.NoError(t, err)

	assert.Equal(t, "secret-token", gotToken)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `[{"type":"match_start","match_id":"m1"},{"type":"","match_id":"m2"}]`, gotBody)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "validation_error", result.Errors[0].Reason)
}

func TestClient_Send_Legacy(t *testing.T) {
	var gotContentType, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(`{"total":1,"processed":1,"errors":[]}`))
	}))
	defer srv.Close()

	q := NewQueue()
	require.NoError(t, q.Add(NewEvent("round_end", "m1").Set("winner", "axis")))

	_, err := NewClient(srv.URL, "tok").Send(context.Background(), q, EncodingLegacy)
	require.NoError(t, err)

	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, "type=round_end&match_id=m1&winner=axis\n", gotBody)
}

func TestClient_Send_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"unknown server token"}`))
	}))
	defer srv.Close()

	q := NewQueue()
	require.NoError(t, q.Add(NewEvent("a", "m")))

	_, err := NewClient(srv.URL, "bad").Send(context.Background(), q, EncodingJSON)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_Send_ErrorDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"request body matches no supported format"}`))
	}))
	defer srv.Close()

	q := NewQueue()
	require.NoError(t, q.Add(NewEvent("a", "m")))

	_, err := NewClient(srv.URL, "tok").Send(context.Background(), q, EncodingJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported format")
}

func TestClient_Send_QueueNotReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":1,"processed":1,"errors":[]}`))
	}))
	defer srv.Close()

	q := NewQueue()
	require.NoError(t, q.Add(NewEvent("a", "m")))

	client := NewClient(srv.URL, "tok")
	_, err := client.Send(context.Background(), q, EncodingJSON)
	require.NoError(t, err)

	// Resend after a flush is the caller's call; Send leaves the queue alone.
	assert.Equal(t, 1, q.Len())
}
