package utils

import (
	"log"
	"strings"
)

// ParseDeviceID extracts the device id from a devices/<id>/... topic.
func ParseDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) > 1 {
		return parts[1]
	}
	return ""
}

// InitLogging sets process-wide log flags.
func InitLogging() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
