package rooms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1700000000, 0).UTC()

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *TwilioClient {
	t.Helper()
	c, _ := newTestClientURL(t, h, timeout)
	return c
}

func newTestClientURL(t *testing.T, h http.HandlerFunc, timeout time.Duration) (*TwilioClient, string) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewTwilioClient(TwilioOptions{
		BaseURL:        srv.URL,
		Username:       "SK1",
		Password:       "secret",
		RequestTimeout: timeout,
		Now:            func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return c, srv.URL
}

func TestSnapshot_InProgressWithParticipants(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "SK1" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v1/Rooms/call-42":
			fmt.Fprint(w, `{"sid":"RM1","unique_name":"call-42","status":"in-progress","date_created":"2023-11-14T22:00:00Z"}`)
		case "/v1/Rooms/RM1/Participants":
			require.Equal(t, "connected", r.URL.Query().Get("Status"))
			fmt.Fprint(w, `{"participants":[
				{"sid":"PA1","identity":"tv-1","status":"connected","start_time":"2023-11-14T22:00:05Z","end_time":null,"date_updated":"2023-11-14T22:01:00Z"},
				{"sid":"PA2","identity":"phone-2","status":"connected","start_time":"2023-11-14T22:00:09Z","end_time":null}
			],"meta":{"next_page_url":null}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, time.Second)

	snap, err := c.Snapshot(context.Background(), "call-42")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	require.Equal(t, RoomStatusInProgress, snap.Status)
	require.Equal(t, 2, snap.ConnectedCount())
	require.Equal(t, "tv-1", snap.Participants[0].Identity)
	require.NotNil(t, snap.Participants[0].JoinedAt)
	require.Equal(t, fixedNow, snap.QueriedAt)
}

func TestSnapshot_NotFoundIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":20404,"message":"The requested resource was not found","status":404}`)
	}, time.Second)

	snap, err := c.Snapshot(context.Background(), "gone")
	require.NoError(t, err)
	require.False(t, snap.Exists)
	require.Empty(t, snap.Status)
	require.Equal(t, fixedNow, snap.QueriedAt)
}

func TestSnapshot_TerminalRoomSkipsParticipants(t *testing.T) {
	participantsCalled := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/Rooms/RM9/Participants" {
			participantsCalled = true
		}
		fmt.Fprint(w, `{"sid":"RM9","unique_name":"done","status":"completed"}`)
	}, time.Second)

	snap, err := c.Snapshot(context.Background(), "done")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	require.Equal(t, RoomStatusCompleted, snap.Status)
	require.False(t, participantsCalled)
}

func TestSnapshot_FailuresAreRemoteUnavailable(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
		"unauthorized": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
		"malformed json": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"sid":`)
		},
		"unknown status": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"sid":"RM1","status":"sleeping"}`)
		},
		"participants fail": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/Rooms/RM1/Participants" {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			fmt.Fprint(w, `{"sid":"RM1","status":"in-progress"}`)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, h, time.Second)
			_, err := c.Snapshot(context.Background(), "r")
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrRemoteUnavailable), "got %v", err)
		})
	}
}

func TestSnapshot_TimeoutIsRemoteUnavailable(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)

	start := time.Now()
	_, err := c.Snapshot(context.Background(), "slow")
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestSnapshot_FollowsParticipantPages(t *testing.T) {
	var srvURL string
	c, base := newTestClientURL(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/Rooms/paged":
			fmt.Fprint(w, `{"sid":"RM2","status":"in-progress"}`)
		case r.URL.Path == "/v1/Rooms/RM2/Participants" && r.URL.Query().Get("Page") == "":
			fmt.Fprintf(w, `{"participants":[{"identity":"a","status":"connected"}],"meta":{"next_page_url":"%s/v1/Rooms/RM2/Participants?Status=connected&Page=1"}}`, srvURL)
		default:
			fmt.Fprint(w, `{"participants":[{"identity":"b","status":"connected"}],"meta":{"next_page_url":null}}`)
		}
	}, time.Second)
	srvURL = base

	snap, err := c.Snapshot(context.Background(), "paged")
	require.NoError(t, err)
	require.Equal(t, 2, snap.ConnectedCount())
}

func TestNewTwilioClient_RequiresCredentials(t *testing.T) {
	_, err := NewTwilioClient(TwilioOptions{})
	require.Error(t, err)
}

func TestNewTwilioClient_RejectsInvalidBaseURL(t *testing.T) {
	_, err := NewTwilioClient(TwilioOptions{Username: "SK1", Password: "secret", BaseURL: "video.example.com"})
	require.Error(t, err)
}

func TestSnapshot_CancelledContextIsRemoteUnavailable(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Snapshot(ctx, "r")
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.False(t, called)
}

func TestHealthCheck(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/Rooms", r.URL.Path)
		fmt.Fprint(w, `{"rooms":[],"meta":{}}`)
	}, time.Second)
	require.NoError(t, c.HealthCheck(context.Background()))
}
