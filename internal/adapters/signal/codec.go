package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/termrelay/internal/domain"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event")
)

type inbound struct {
	Event    string `json:"event"`
	DeviceID string `json:"device_id"`
	Type     any    `json:"type"`
	Data     string `json:"data"`
	Cols     *int   `json:"cols"`
	Rows     *int   `json:"rows"`
}

// Decode validates one inbound frame and turns it into its event variant.
func Decode(data []byte) (domain.Event, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	switch in.Event {
	case domain.EventJoin, domain.EventLeave, domain.EventInput, domain.EventOutput, domain.EventResize:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Event)
	}

	device := domain.DeviceID(in.DeviceID)
	if err := device.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedEvent, in.Event, err)
	}

	switch in.Event {
	case domain.EventJoin:
		role := domain.RoleUnspecified
		if s, ok := in.Type.(string); ok {
			role = domain.ParseRole(s)
		}
		return domain.Join{Device: device, Role: role}, nil
	case domain.EventLeave:
		return domain.Leave{Device: device}, nil
	case domain.EventInput:
		return domain.Input{Device: device, Data: in.Data}, nil
	case domain.EventOutput:
		return domain.Output{Device: device, Data: in.Data}, nil
	default:
		if in.Cols == nil || in.Rows == nil {
			return nil, fmt.Errorf("%w: resize needs cols and rows", ErrMalformedEvent)
		}
		if *in.Cols <= 0 || *in.Rows <= 0 {
			return nil, fmt.Errorf("%w: resize %dx%d", ErrMalformedEvent, *in.Cols, *in.Rows)
		}
		return domain.Resize{Device: device, Cols: *in.Cols, Rows: *in.Rows}, nil
	}
}
