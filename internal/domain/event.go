package domain

// Event names on the wire.
const (
	EventJoin          = "join"
	EventLeave         = "leave"
	EventInput         = "input"
	EventOutput        = "output"
	EventResize        = "resize"
	EventServerMessage = "server_message"
)

// Event is an inbound event that already passed validation at the transport
// boundary. The set of implementations is closed.
type Event interface {
	Name() string
	Target() DeviceID
	event()
}

type Join struct {
	Device DeviceID
	Role   Role
}

type Leave struct {
	Device DeviceID
}

type Input struct {
	Device DeviceID
	Data   string
}

type Output struct {
	Device DeviceID
	Data   string
}

type Resize struct {
	Device DeviceID
	Cols   int
	Rows   int
}

func (Join) Name() string   { return EventJoin }
func (Leave) Name() string  { return EventLeave }
func (Input) Name() string  { return EventInput }
func (Output) Name() string { return EventOutput }
func (Resize) Name() string { return EventResize }

func (e Join) Target() DeviceID   { return e.Device }
func (e Leave) Target() DeviceID  { return e.Device }
func (e Input) Target() DeviceID  { return e.Device }
func (e Output) Target() DeviceID { return e.Device }
func (e Resize) Target() DeviceID { return e.Device }

func (Join) event()   {}
func (Leave) event()  {}
func (Input) event()  {}
func (Output) event() {}
func (Resize) event() {}

// DataMessage is an outbound input, output or server_message frame. Data is
// sent even when empty.
type DataMessage struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// ResizeMessage is a resize relayed to the device side as received.
type ResizeMessage struct {
	Event  string   `json:"event"`
	Device DeviceID `json:"device_id"`
	Cols   int      `json:"cols"`
	Rows   int      `json:"rows"`
}
