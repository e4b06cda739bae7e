package mqtt

import (
	"fmt"
	"strings"
)

// DefaultNamespace is the first topic level used by the Edgeberry fleet.
const DefaultNamespace = "edgeberry"

// Topics builds topics under a namespace.
//
//	t := mqtt.Topics{Namespace: "edgeberry"}
//	t.SystemStatus() // "edgeberry/system/core/status"
//
// Device method topics belong to the bridge package.
type Topics struct {
	Namespace string
}

func (t Topics) ns() string {
	if t.Namespace == "" {
		return DefaultNamespace
	}
	return t.Namespace
}

// SystemStatus is where the core publishes its retained online/offline state.
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/core/status", t.ns())
}

// AllThings matches every device topic in the namespace.
func (t Topics) AllThings() string {
	return fmt.Sprintf("%s/things/#", t.ns())
}

// ValidatePublishTopic rejects empty topics and topics containing wildcards.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	}
	return nil
}

// TopicMatches reports whether topic matches the subscription filter,
// honouring the + and # wildcards.
func TopicMatches(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, f := range fl {
		if f == "#" {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
