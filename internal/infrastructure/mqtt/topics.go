package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "infigrid"

// Topics builds the topic names an InfiGrid node publishes to.
//
//	topics := mqtt.NewTopics("infigrid")
//	topics.Event("trigger.fired", "ST1SENSOR")
//	// Returns: "infigrid/events/trigger.fired/ST1SENSOR"
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root every topic starts with.
func (t Topics) Prefix() string {
	return t.prefix
}

// Event returns the topic for a committed ledger event. subject is the
// device principal or group id the event concerns; when empty the topic
// stops at the event type.
//
// Example: infigrid/events/alert.created/substation-7
func (t Topics) Event(eventType, subject string) string {
	topic := t.prefix + "/events/" + topicSegment(eventType)
	if subject != "" {
		topic += "/" + topicSegment(subject)
	}
	return topic
}

// AllEvents returns the wildcard matching every event topic.
//
// Example: infigrid/events/#
func (t Topics) AllEvents() string {
	return t.prefix + "/events/#"
}

// Status returns the retained node status topic carrying online/offline and LWT.
//
// Example: infigrid/system/status
func (t Topics) Status() string {
	return t.prefix + "/system/status"
}

// topicSegment makes an identifier safe to use as one topic level.
// Level separators and wildcards cannot appear in a publish topic.
func topicSegment(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
