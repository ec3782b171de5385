package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CurrentVersion is the envelope schema written by Emit.
const CurrentVersion = 1

var ErrInvalidEnvelope = errors.New("invalid outbox envelope")

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role,omitempty"`
}

// PayloadEnvelope is what consumers of the lifecycle topic receive. Data is
// the event specific body, e.g. RequestTransitionEvent.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope unpacks a stored payload and rejects envelopes this build
// cannot interpret.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	switch {
	case env.Version < 1 || env.Version > CurrentVersion:
		return env, fmt.Errorf("%w: version %d", ErrInvalidEnvelope, env.Version)
	case env.EventID == "":
		return env, fmt.Errorf("%w: missing event id", ErrInvalidEnvelope)
	}
	return env, nil
}

// DecodeData unmarshals the envelope body into dest.
func (e PayloadEnvelope) DecodeData(dest any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: empty data", ErrInvalidEnvelope)
	}
	return json.Unmarshal(e.Data, dest)
}
