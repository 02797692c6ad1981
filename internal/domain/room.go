package domain

type RoomKind uint8

const (
	RoomLegacy RoomKind = iota
	RoomDevice
	RoomBrowser
)

var roomKindNames = [...]string{
	RoomLegacy:  "legacy",
	RoomDevice:  "device",
	RoomBrowser: "browser",
}

func (k RoomKind) String() string {
	if int(k) < len(roomKindNames) {
		return roomKindNames[k]
	}
	return "unknown"
}

// RoomKinds lists every kind a device identity can have a room for.
var RoomKinds = [...]RoomKind{RoomDevice, RoomBrowser, RoomLegacy}

// RoomKindFor picks the room a join with the given role lands in.
func RoomKindFor(r Role) RoomKind {
	switch r {
	case RoleBrowser:
		return RoomBrowser
	case RoleDevice:
		return RoomDevice
	default:
		return RoomLegacy
	}
}

// RoomKey addresses one subscriber set.
type RoomKey struct {
	Device DeviceID
	Kind   RoomKind
}

func (k RoomKey) String() string {
	return string(k.Device) + "/" + k.Kind.String()
}
