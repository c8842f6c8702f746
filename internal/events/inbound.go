// Package events defines the finite set of messages exchanged with duel clients.
package events

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/rotisserie/eris"
)

// Name is a transport event name.
type Name string

// Inbound event names.
const (
	JoinRoomEvent       Name = "join-room"
	UpdateSettingsEvent Name = "update-settings"
	PlayerReadyEvent    Name = "player-ready"
	CodeChangeEvent     Name = "code-change"
	StartMatchEvent     Name = "start-match"
	SubmitCodeEvent     Name = "submit-code"
	DisconnectEvent     Name = "disconnect"
)

// InboundNames lists every event a client may send.
var InboundNames = []Name{
	JoinRoomEvent,
	UpdateSettingsEvent,
	PlayerReadyEvent,
	CodeChangeEvent,
	StartMatchEvent,
	SubmitCodeEvent,
}

var (
	ErrUnknownEvent   = eris.New("unknown event")
	ErrMissingRoom    = eris.New("roomCode is required")
	ErrMissingName    = eris.New("username is required")
	ErrMissingSubmit  = eris.New("submissionId is required")
	ErrMalformedEvent = eris.New("malformed event payload")
)

// Inbound is a decoded client message.
type Inbound interface {
	Event() Name
}

type JoinRoom struct {
	RoomCode    string `mapstructure:"roomCode"`
	Username    string `mapstructure:"username"`
	DisplayName string `mapstructure:"displayName"`
	Role        string `mapstructure:"role"`
}

// Name prefers the display name over the account name.
func (j JoinRoom) Name() string {
	if j.DisplayName != "" {
		return j.DisplayName
	}
	return j.Username
}

type UpdateSettings struct {
	RoomCode string         `mapstructure:"roomCode"`
	Settings map[string]any `mapstructure:"settings"`
}

type PlayerReady struct {
	RoomCode string `mapstructure:"roomCode"`
	Ready    bool   `mapstructure:"ready"`
}

type CodeChange struct {
	RoomCode string `mapstructure:"roomCode"`
	Code     string `mapstructure:"code"`
	Language string `mapstructure:"language"`
}

type StartMatch struct {
	RoomCode string `mapstructure:"roomCode"`
}

type SubmitCode struct {
	RoomCode     string `mapstructure:"roomCode"`
	SubmissionID string `mapstructure:"submissionId"`
}

// Disconnect is synthesized by the transport when a connection closes.
type Disconnect struct{}

func (JoinRoom) Event() Name       { return JoinRoomEvent }
func (UpdateSettings) Event() Name { return UpdateSettingsEvent }
func (PlayerReady) Event() Name    { return PlayerReadyEvent }
func (CodeChange) Event() Name     { return CodeChangeEvent }
func (StartMatch) Event() Name     { return StartMatchEvent }
func (SubmitCode) Event() Name     { return SubmitCodeEvent }
func (Disconnect) Event() Name     { return DisconnectEvent }

// Decode turns a raw event payload into its typed message. Scalar fields are coerced
// the way browsers tend to send them, so "true" and 1 both decode as a ready flag.
func Decode(name Name, data map[string]any) (Inbound, error) {
	var msg Inbound
	switch name {
	case JoinRoomEvent:
		var v JoinRoom
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		v.RoomCode = strings.TrimSpace(v.RoomCode)
		if v.Name() == "" {
			return nil, ErrMissingName
		}
		msg = v
	case UpdateSettingsEvent:
		var v UpdateSettings
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		msg = v
	case PlayerReadyEvent:
		var v PlayerReady
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		msg = v
	case CodeChangeEvent:
		var v CodeChange
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		msg = v
	case StartMatchEvent:
		var v StartMatch
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		msg = v
	case SubmitCodeEvent:
		var v SubmitCode
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		if v.SubmissionID == "" {
			return nil, ErrMissingSubmit
		}
		msg = v
	case DisconnectEvent:
		return Disconnect{}, nil
	default:
		return nil, eris.Wrapf(ErrUnknownEvent, "%q", name)
	}
	if RoomOf(msg) == "" {
		return nil, eris.Wrapf(ErrMissingRoom, "%s", name)
	}
	return msg, nil
}

// RoomOf returns the room code a message targets, or "" for connection-level messages.
func RoomOf(msg Inbound) string {
	switch m := msg.(type) {
	case JoinRoom:
		return m.RoomCode
	case UpdateSettings:
		return m.RoomCode
	case PlayerReady:
		return m.RoomCode
	case CodeChange:
		return m.RoomCode
	case StartMatch:
		return m.RoomCode
	case SubmitCode:
		return m.RoomCode
	}
	return ""
}

func decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return eris.Wrap(err, "build decoder")
	}
	if err := dec.Decode(data); err != nil {
		return eris.Wrap(ErrMalformedEvent, err.Error())
	}
	return nil
}
