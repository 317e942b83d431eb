package adapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/tolerancia/pkg/adapter"
	"github.com/m-mizutani/tolerancia/pkg/model"
)

func TestTutorClientChat(t *testing.T) {
	resetAt := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.Method, http.MethodPost)
		gt.Equal(t, r.URL.Path, "/chat")
		gt.Equal(t, r.Header.Get("Authorization"), "Bearer secret")

		var req model.ChatRequest
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gt.Equal(t, req.Message, "hola")
		gt.Equal(t, req.Day, model.TrackDay2)
		gt.A(t, req.History).Length(1)

		w.Header().Set("Content-Type", "application/json")
		gt.NoError(t, json.NewEncoder(w).Encode(model.ChatResponse{
			Response:  "bienvenida",
			RateLimit: &model.QuotaView{Remaining: 49, Limit: 50, ResetAt: resetAt},
		}))
	}))
	defer srv.Close()

	client := adapter.NewTutorClient(srv.URL+"/", "secret")
	resp, err := client.Chat(context.Background(), &model.ChatRequest{
		Message: "hola",
		History: []model.Message{{ID: "a", Role: model.RoleUser, Text: "antes", Timestamp: 1}},
		Day:     model.TrackDay2,
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response, "bienvenida")
	gt.V(t, resp.RateLimit).NotNil()
	gt.Equal(t, resp.RateLimit.Remaining, 49)
	gt.True(t, resp.RateLimit.ResetAt.Equal(resetAt))
}

func TestTutorClientQuotaExceeded(t *testing.T) {
	resetAt := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name      string
		body      string
		header    string
		wantLimit int
	}{
		{
			name:      "limit in body",
			body:      `{"error":"daily limit reached","remaining":0,"limit":5,"resetAt":"2026-10-19T00:00:00Z"}`,
			wantLimit: 5,
		},
		{
			name:      "limit from header",
			body:      `{"error":"daily limit reached","remaining":0,"resetAt":"2026-10-19T00:00:00Z"}`,
			header:    "50",
			wantLimit: 50,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.header != "" {
					w.Header().Set("X-RateLimit-Limit", tc.header)
				}
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := adapter.NewTutorClient(srv.URL, "secret")
			_, err := client.Generate(context.Background(), "no puedo")
			gt.Error(t, err)
			gt.True(t, goerr.HasTag(err, model.ErrTagQuotaExceeded))

			var qe *model.QuotaExceededError
			gt.True(t, errors.As(err, &qe))
			gt.Equal(t, qe.Message, "daily limit reached")
			gt.Equal(t, qe.Quota.Limit, tc.wantLimit)
			gt.True(t, qe.Quota.ResetAt.Equal(resetAt))
		})
	}
}

func TestTutorClientErrorStatus(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		check  func(err error) bool
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check:  func(err error) bool { return goerr.HasTag(err, model.ErrTagUnauthorized) },
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			check:  func(err error) bool { return goerr.HasTag(err, model.ErrTagValidation) },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			client := adapter.NewTutorClient(srv.URL, "secret")
			_, err := client.Chat(context.Background(), &model.ChatRequest{Message: "hola", Day: model.TrackDay1})
			gt.Error(t, err)
			gt.True(t, tc.check(err))

			var qe *model.QuotaExceededError
			gt.False(t, errors.As(err, &qe))
		})
	}

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := adapter.NewTutorClient(srv.URL, "")
		_, err := client.Chat(context.Background(), &model.ChatRequest{Message: "hola", Day: model.TrackDay1})
		gt.Error(t, err)
		gt.False(t, goerr.HasTag(err, model.ErrTagQuotaExceeded))
	})
}

func TestTutorClientQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.Method, http.MethodGet)
		gt.Equal(t, r.URL.Query().Get("feature"), "chat")
		_, _ = w.Write([]byte(`{"feature":"chat","rateLimit":{"remaining":12,"limit":50,"resetAt":"2026-10-19T00:00:00Z"}}`))
	}))
	defer srv.Close()

	client := adapter.NewTutorClient(srv.URL, "secret")
	view, err := client.Quota(context.Background(), model.FeatureChat)
	gt.NoError(t, err)
	gt.Equal(t, view.Remaining, 12)
	gt.Equal(t, view.Limit, 50)
}
