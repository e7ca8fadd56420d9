package rooms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	twilio "github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	videov1 "github.com/twilio/twilio-go/rest/video/v1"
)

const defaultVideoBaseURL = "https://video.twilio.com"

// TwilioClient reads room state through the Twilio Video v1 API.
// Ref: https://www.twilio.com/docs/video/api/rooms-resource
type TwilioClient struct {
	video *videov1.ApiService
	now   func() time.Time

	// maxParticipants caps how many connected participants one snapshot reads.
	maxParticipants int
}

type TwilioOptions struct {
	// BaseURL defaults to https://video.twilio.com. Any other value redirects every
	// request to that scheme and host (regional proxies, tests).
	BaseURL string

	// Username/Password are an API key + secret, or account SID + auth token.
	Username   string
	Password   string
	AccountSID string

	// RequestTimeout bounds each HTTP request, not the whole snapshot.
	RequestTimeout time.Duration

	HTTPClient *http.Client
	Now        func() time.Time
}

func NewTwilioClient(opts TwilioOptions) (*TwilioClient, error) {
	if opts.Username == "" || opts.Password == "" {
		return nil, errors.New("rooms: twilio credentials required")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultVideoBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("rooms: invalid base url %q", base)
	}

	hc := &http.Client{}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		hc = &copied
	}
	hc.Timeout = opts.RequestTimeout
	if hc.Timeout <= 0 {
		hc.Timeout = 5 * time.Second
	}
	if base != defaultVideoBaseURL {
		next := hc.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		hc.Transport = rewriteHost{scheme: baseURL.Scheme, host: baseURL.Host, next: next}
	}

	sdk := &client.Client{
		Credentials: client.NewCredentials(opts.Username, opts.Password),
		HTTPClient:  hc,
	}
	accountSID := opts.AccountSID
	if accountSID == "" {
		accountSID = opts.Username
	}
	sdk.SetAccountSid(accountSID)

	c := &TwilioClient{
		video:           twilio.NewRestClientWithParams(twilio.ClientParams{Client: sdk}).VideoV1,
		now:             opts.Now,
		maxParticipants: 500,
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *TwilioClient) Name() string { return "twilio" }

// HealthCheck lists at most one room to verify reachability and credentials.
func (c *TwilioClient) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	params := &videov1.ListRoomParams{}
	params.SetPageSize(1)
	params.SetLimit(1)
	if _, err := c.video.ListRoom(params); err != nil {
		return unavailable("health check", err)
	}
	return nil
}

// Snapshot fetches the room by unique name and, for live rooms, its connected participants.
//
// The SDK has no context support; each request is bounded by the client timeout and ctx is
// checked between requests.
func (c *TwilioClient) Snapshot(ctx context.Context, roomName string) (Snapshot, error) {
	if strings.TrimSpace(roomName) == "" {
		return Snapshot{}, errors.New("rooms: room name required")
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	snap := Snapshot{RoomName: roomName, QueriedAt: c.now().UTC(), Participants: []Participant{}}

	room, err := c.video.FetchRoom(url.PathEscape(roomName))
	if err != nil {
		if isNotFound(err) {
			return snap, nil
		}
		return Snapshot{}, unavailable(fmt.Sprintf("room %q", roomName), err)
	}

	sid, status := deref(room.Sid), RoomStatus(deref(room.Status))
	if sid == "" || !status.Valid() {
		return Snapshot{}, fmt.Errorf("%w: malformed room %q (sid=%q status=%q)", ErrRemoteUnavailable, roomName, sid, status)
	}
	snap.Exists = true
	snap.Status = status
	if status.Terminal() {
		return snap, nil
	}

	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	participants, err := c.connectedParticipants(sid)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Participants = participants
	return snap, nil
}

func (c *TwilioClient) connectedParticipants(roomSid string) ([]Participant, error) {
	params := &videov1.ListRoomParticipantParams{}
	params.SetStatus("connected")
	params.SetPageSize(50)
	params.SetLimit(c.maxParticipants)

	found, err := c.video.ListRoomParticipant(roomSid, params)
	if err != nil {
		return nil, unavailable("participants of "+roomSid, err)
	}
	out := make([]Participant, 0, len(found))
	for _, tp := range found {
		lastSeen := tp.DateUpdated
		if tp.EndTime != nil {
			lastSeen = tp.EndTime
		}
		out = append(out, Participant{
			Identity:  deref(tp.Identity),
			Connected: deref(tp.Status) == "connected",
			JoinedAt:  tp.StartTime,
			LastSeen:  lastSeen,
		})
	}
	return out, nil
}

// isNotFound matches Twilio's 404 body ({"code":20404,"status":404,...}).
func isNotFound(err error) bool {
	var rest *client.TwilioRestError
	if !errors.As(err, &rest) {
		return false
	}
	return rest.Status == http.StatusNotFound || rest.Code == 20404
}

func unavailable(what string, err error) error {
	var rest *client.TwilioRestError
	if errors.As(err, &rest) {
		return fmt.Errorf("%w: %s: twilio status %d code %d: %s", ErrRemoteUnavailable, what, rest.Status, rest.Code, rest.Message)
	}
	return fmt.Errorf("%w: %s: %v", ErrRemoteUnavailable, what, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// rewriteHost sends SDK requests, which always target twilio.com hosts, to another base.
type rewriteHost struct {
	scheme string
	host   string
	next   http.RoundTripper
}

func (t rewriteHost) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = t.scheme
	r.URL.Host = t.host
	r.Host = t.host
	return t.next.RoundTrip(r)
}
