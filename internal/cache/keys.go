package cache

import (
	"fmt"

	"shuttled/internal/domain"
)

func KeyStopSequence(routeID string, dir domain.Direction) string {
	return fmt.Sprintf("stops:%s:%s", routeID, dir)
}
