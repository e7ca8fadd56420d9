package rooms

import (
	"errors"
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/client"
)

// StatusCallback is the subset of a Twilio Video room status callback we act on.
// Twilio sends application/x-www-form-urlencoded.
// Ref: https://www.twilio.com/docs/video/api/status-callbacks
type StatusCallback struct {
	Event               string
	RoomSid             string
	RoomName            string
	RoomStatus          string
	ParticipantIdentity string
	Timestamp           string
}

const (
	CallbackRoomEnded               = "room-ended"
	CallbackParticipantDisconnected = "participant-disconnected"
)

// SignalsEnd reports whether the event can mean a call is over.
// The callback is only a hint; the room is still re-read before anything is ended.
func (s StatusCallback) SignalsEnd() bool {
	return s.Event == CallbackRoomEnded || s.Event == CallbackParticipantDisconnected
}

var ErrInvalidSignature = errors.New("rooms: invalid twilio signature")

func ParseStatusCallback(r *http.Request) (StatusCallback, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallback{}, err
	}
	return StatusCallback{
		Event:               r.PostFormValue("StatusCallbackEvent"),
		RoomSid:             r.PostFormValue("RoomSid"),
		RoomName:            strings.TrimSpace(r.PostFormValue("RoomName")),
		RoomStatus:          r.PostFormValue("RoomStatus"),
		ParticipantIdentity: r.PostFormValue("ParticipantIdentity"),
		Timestamp:           r.PostFormValue("Timestamp"),
	}, nil
}

// ValidateSignature checks X-Twilio-Signature against the configured public URL.
// r.PostForm must already be parsed. Twilio signs status callbacks with single-valued keys.
func ValidateSignature(r *http.Request, authToken, publicURL string) error {
	got := r.Header.Get("X-Twilio-Signature")
	if got == "" || authToken == "" || publicURL == "" {
		return ErrInvalidSignature
	}
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	validator := client.NewRequestValidator(authToken)
	if !validator.Validate(publicURL, params, got) {
		return ErrInvalidSignature
	}
	return nil
}
