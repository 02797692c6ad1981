// Package domain contains entity without logic, just meta-data
package domain

import "errors"

var (
	ErrDeviceIDEmpty = errors.New("device id empty")
	ErrDeviceIDLong  = errors.New("device id too long")
)

const MaxDeviceIDLen = 255

// DeviceID is the identifier a device and its viewers share to be routed together.
type DeviceID string

func (d DeviceID) Validate() error {
	if len(d) == 0 {
		return ErrDeviceIDEmpty
	}
	if len(d) > MaxDeviceIDLen {
		return ErrDeviceIDLong
	}
	return nil
}

// Role is what a connection declared itself to be on join.
type Role string

const (
	RoleUnspecified Role = ""
	RoleBrowser     Role = "browser"
	RoleDevice      Role = "device"
)

// ParseRole maps a join "type" onto a Role. Anything unknown is RoleUnspecified.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleBrowser:
		return RoleBrowser
	case RoleDevice:
		return RoleDevice
	default:
		return RoleUnspecified
	}
}
