package editor

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is the wire form of an action.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var actionTypes = map[string]func() Action{
	AddClip{}.Type():          func() Action { return &AddClip{} },
	AddAudioTrack{}.Type():    func() Action { return &AddAudioTrack{} },
	SetClipTrim{}.Type():      func() Action { return &SetClipTrim{} },
	SetAudioTrim{}.Type():     func() Action { return &SetAudioTrim{} },
	SplitAtPlayhead{}.Type():  func() Action { return &SplitAtPlayhead{} },
	MoveClip{}.Type():         func() Action { return &MoveClip{} },
	DeleteClip{}.Type():       func() Action { return &DeleteClip{} },
	DeleteAudioTrack{}.Type(): func() Action { return &DeleteAudioTrack{} },
	ToggleClipMute{}.Type():   func() Action { return &ToggleClipMute{} },
	SetAudioVolume{}.Type():   func() Action { return &SetAudioVolume{} },
	SetTransition{}.Type():    func() Action { return &SetTransition{} },
	MoveAudio{}.Type():        func() Action { return &MoveAudio{} },
	Seek{}.Type():             func() Action { return &Seek{} },
	Play{}.Type():             func() Action { return &Play{} },
	Stop{}.Type():             func() Action { return &Stop{} },
	SelectClip{}.Type():       func() Action { return &SelectClip{} },
	SelectAudio{}.Type():      func() Action { return &SelectAudio{} },
}

// DecodeAction parses an action envelope. Driver-only actions (advance,
// finish) are not accepted from the wire.
func DecodeAction(data []byte) (Action, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode action: %w", err)
	}
	mk, ok := actionTypes[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Type)
	}
	a := mk()
	if len(bytes.TrimSpace(env.Payload)) > 0 && !bytes.Equal(bytes.TrimSpace(env.Payload), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(env.Payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(a); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
		}
	}
	return deref(a), nil
}

// deref turns the decoded pointer back into the value action so callers
// can type-switch on plain struct types.
func deref(a Action) Action {
	switch v := a.(type) {
	case *AddClip:
		return *v
	case *AddAudioTrack:
		return *v
	case *SetClipTrim:
		return *v
	case *SetAudioTrim:
		return *v
	case *SplitAtPlayhead:
		return *v
	case *MoveClip:
		return *v
	case *DeleteClip:
		return *v
	case *DeleteAudioTrack:
		return *v
	case *ToggleClipMute:
		return *v
	case *SetAudioVolume:
		return *v
	case *SetTransition:
		return *v
	case *MoveAudio:
		return *v
	case *Seek:
		return *v
	case *Play:
		return *v
	case *Stop:
		return *v
	case *SelectClip:
		return *v
	case *SelectAudio:
		return *v
	}
	return a
}

// EncodeAction wraps a in its envelope.
func EncodeAction(a Action) ([]byte, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: a.Type(), Payload: payload})
}
