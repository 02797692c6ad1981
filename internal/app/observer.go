package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/termrelay/internal/domain"
)

// Observer is told about authority changes. Calls happen under the hub lock,
// in the order the changes were applied, so implementations must not block.
type Observer interface {
	AuthorityClaimed(device domain.DeviceID, conn, previous domain.ConnID)
	AuthorityReleased(device domain.DeviceID, conn domain.ConnID)
}

// LogObserver writes authority changes to the log.
type LogObserver struct{}

func (LogObserver) AuthorityClaimed(device domain.DeviceID, conn, previous domain.ConnID) {
	ev := log.Info().Str("module", "app.hub").Str("device", string(device)).Str("conn", string(conn))
	if previous != "" {
		ev = ev.Str("ghost", string(previous))
	}
	ev.Msg("device joined as authoritative")
}

func (LogObserver) AuthorityReleased(device domain.DeviceID, conn domain.ConnID) {
	log.Info().Str("module", "app.hub").Str("device", string(device)).Str("conn", string(conn)).Msg("authoritative device disconnected")
}
