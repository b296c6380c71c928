// Package topiccodec parses and composes the fleet's MQTT topic grammar
// (spec.md §4.A) and implements MQTT wildcard subscription matching.
//
// Grounded on original_source/brain/src/gcn_manager/mqtt.py's
// topic_matches_subscription wrapper around paho's topic_matches_sub, and
// on brain.py's topics := topic.split("/") dispatch, translated into a
// small typed-union Parsed result instead of Python's positional slicing.
package topiccodec

import (
	"strings"

	"github.com/nipil/gcn-manager/daemon/constants"
)

// Parsed is the result of decomposing an inbound topic string. Exactly one
// of the concrete types below is produced by Parse.
type Parsed interface {
	isParsed()
}

// ManagerStatus is an <app>/manager/status/<manager_id> topic.
type ManagerStatus struct {
	ManagerID string
}

func (ManagerStatus) isParsed() {}

// ClientOut is an <app>/client/<client_id>/out/<category>/<rest...> topic.
type ClientOut struct {
	ClientID string
	Category string
	Rest     []string
}

func (ClientOut) isParsed() {}

// ClientIn is an <app>/client/<client_id>/in/<category>/<rest...> topic
// (reserved, never handled inbound per spec.md §4.A).
type ClientIn struct {
	ClientID string
	Category string
	Rest     []string
}

func (ClientIn) isParsed() {}

// Unknown is any topic that does not match the grammar.
type Unknown struct {
	Topic string
}

func (Unknown) isParsed() {}

// Parse decomposes topic under the given app namespace prefix. An empty
// topic, a missing segment, or an unrecognized first segment after the app
// prefix all yield Unknown, per spec.md §4.A.
func Parse(app, topic string) Parsed {
	if topic == "" {
		return Unknown{Topic: topic}
	}

	segs := strings.Split(topic, "/")
	if len(segs) == 0 || segs[0] != app {
		return Unknown{Topic: topic}
	}
	segs = segs[1:]
	if len(segs) == 0 {
		return Unknown{Topic: topic}
	}

	switch segs[0] {
	case constants.SegManager:
		return parseManager(topic, segs[1:])
	case constants.SegClient:
		return parseClient(topic, segs[1:])
	default:
		return Unknown{Topic: topic}
	}
}

func parseManager(topic string, rest []string) Parsed {
	// rest = [status, manager_id]
	if len(rest) < 2 || rest[0] != constants.SegManagerStatus {
		return Unknown{Topic: topic}
	}
	return ManagerStatus{ManagerID: rest[1]}
}

func parseClient(topic string, rest []string) Parsed {
	// rest = [client_id, direction, category, ...]
	if len(rest) < 2 {
		return Unknown{Topic: topic}
	}
	clientID := rest[0]
	direction := rest[1]
	tail := rest[2:]
	if len(tail) == 0 {
		return Unknown{Topic: topic}
	}
	category := tail[0]
	remainder := tail[1:]

	switch direction {
	case constants.SegClientOut:
		return ClientOut{ClientID: clientID, Category: category, Rest: remainder}
	case constants.SegClientIn:
		return ClientIn{ClientID: clientID, Category: category, Rest: remainder}
	default:
		return Unknown{Topic: topic}
	}
}

// ComposeManagerStatus builds the manager status topic for managerID under
// app, the inverse of Parse for the ManagerStatus variant (spec.md §8 round
// trip property).
func ComposeManagerStatus(app, managerID string) string {
	return strings.Join([]string{app, constants.SegManager, constants.SegManagerStatus, managerID}, "/")
}

// SubscriptionManagerStatus builds the wildcard subscription a session
// issues at connect time to observe every peer manager's status topic.
func SubscriptionManagerStatus(app string) string {
	return strings.Join([]string{app, constants.SegManager, constants.SegManagerStatus, "#"}, "/")
}

// SubscriptionClient builds the wildcard subscription a session issues at
// connect time to observe every client topic.
func SubscriptionClient(app string) string {
	return strings.Join([]string{app, constants.SegClient, "#"}, "/")
}

// Matches implements MQTT wildcard subscription matching: "+" matches
// exactly one topic level, "#" matches the rest of the topic (must be the
// final subscription level).
func Matches(subscription, topic string) bool {
	subSegs := strings.Split(subscription, "/")
	topicSegs := strings.Split(topic, "/")

	for i, sub := range subSegs {
		if sub == "#" {
			return true
		}
		if i >= len(topicSegs) {
			return false
		}
		if sub == "+" {
			continue
		}
		if sub != topicSegs[i] {
			return false
		}
	}
	return len(subSegs) == len(topicSegs)
}
