package bridge

import (
	"fmt"
	"strings"
)

// DefaultNamespace is the namespace existing Edgeberry devices listen on.
const DefaultNamespace = "edgeberry"

// Topics builds the device method topics for one namespace.
type Topics struct {
	Namespace string
}

func (t Topics) ns() string {
	if t.Namespace == "" {
		return DefaultNamespace
	}
	return t.Namespace
}

// Command returns <ns>/things/<deviceID>/methods/post.
func (t Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/things/%s/methods/post", t.ns(), deviceID)
}

// Response returns <ns>/things/<deviceID>/methods/response/<correlationID>.
func (t Topics) Response(deviceID, correlationID string) string {
	return fmt.Sprintf("%s/things/%s/methods/response/%s", t.ns(), deviceID, correlationID)
}

// AllResponses matches every device's response topics.
func (t Topics) AllResponses() string {
	return fmt.Sprintf("%s/things/+/methods/response/+", t.ns())
}

// Shadow returns <ns>/things/<deviceID>/shadow, the device's retained
// reported state.
func (t Topics) Shadow(deviceID string) string {
	return fmt.Sprintf("%s/things/%s/shadow", t.ns(), deviceID)
}

// Status returns <ns>/things/<deviceID>/status. Devices publish online there
// retained on connect and set an offline Last Will.
func (t Topics) Status(deviceID string) string {
	return fmt.Sprintf("%s/things/%s/status", t.ns(), deviceID)
}

// ParseResponse extracts the device and correlation IDs from a response topic.
func (t Topics) ParseResponse(topic string) (deviceID, correlationID string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.ns()+"/things/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != "methods" || parts[2] != "response" {
		return "", "", false
	}
	if parts[0] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[0], parts[3], true
}

// validSegment reports whether s can be used as a single topic level.
func validSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#\x00")
}
