package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout for the VenueCast integration surface.
//
// Outbound (published by VenueCast):
//
//	venuecast/status/{display_id}   retained per-display status
//	venuecast/event/operation       operation and batch lifecycle events
//	venuecast/system/status         retained online/offline, LWT-backed
//
// Inbound (consumed by VenueCast):
//
//	venuecast/command/{display_id}        single-display command
//	venuecast/command/group/{group}       group command ("all" included)
//
// The literal segment "group" under venuecast/command is reserved for
// group addressing; a display may not use it as an ID.
const (
	// TopicPrefix is the root of every VenueCast topic.
	TopicPrefix = "venuecast"

	// groupSegment is the reserved command segment for group targets.
	groupSegment = "group"
)

// Topics provides builders for VenueCast MQTT topics. Using these
// helpers keeps topic naming consistent across publishers and the
// command router.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DisplayStatus("bar-left")
//	// Returns: "venuecast/status/bar-left"
type Topics struct{}

// =============================================================================
// Outbound Topics
// =============================================================================

// DisplayStatus returns the retained status topic for one display.
//
// Example: venuecast/status/bar-left
func (Topics) DisplayStatus(displayID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, displayID)
}

// OperationEvent returns the topic for operation lifecycle events.
// One topic carries all of them; consumers filter on the payload.
//
// Example: venuecast/event/operation
func (Topics) OperationEvent() string {
	return fmt.Sprintf("%s/event/operation", TopicPrefix)
}

// SystemStatus returns the retained service availability topic. The
// broker publishes the Last Will here on an unclean disconnect.
//
// Example: venuecast/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", TopicPrefix)
}

// =============================================================================
// Inbound Topics
// =============================================================================

// DisplayCommand returns the command topic for one display.
//
// Example: venuecast/command/bar-left
func (Topics) DisplayCommand(displayID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, displayID)
}

// GroupCommand returns the command topic for a group target.
// "all" addresses the whole fleet.
//
// Example: venuecast/command/group/terrace
func (Topics) GroupCommand(group string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, groupSegment, group)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDisplayStatus returns a pattern matching every display status.
//
// Pattern: venuecast/status/+
func (Topics) AllDisplayStatus() string {
	return fmt.Sprintf("%s/status/+", TopicPrefix)
}

// AllDisplayCommands returns a pattern matching single-display
// commands. It also matches the reserved "group" segment, so handlers
// must route through ParseDisplayCommand rather than trusting the
// match.
//
// Pattern: venuecast/command/+
func (Topics) AllDisplayCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllGroupCommands returns a pattern matching group commands.
//
// Pattern: venuecast/command/group/+
func (Topics) AllGroupCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, groupSegment)
}

// AllTopics returns a pattern matching every VenueCast topic.
// Use with caution, this receives all traffic.
//
// Pattern: venuecast/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// =============================================================================
// Inbound Topic Parsing
// =============================================================================

// ParseDisplayCommand extracts the display ID from a display command
// topic. It reports false for group command topics (the reserved
// "group" segment) and anything outside venuecast/command.
func ParseDisplayCommand(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[1] != "command" {
		return "", false
	}
	if parts[2] == "" || parts[2] == groupSegment {
		return "", false
	}
	return parts[2], true
}

// ParseGroupCommand extracts the group name from a group command
// topic. It reports false for anything else.
func ParseGroupCommand(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "command" || parts[2] != groupSegment {
		return "", false
	}
	if parts[3] == "" {
		return "", false
	}
	return parts[3], true
}
