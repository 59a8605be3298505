package hub

import "fmt"

// ClientMessage is a frame sent by a dashboard client (spec §4.3/§6.3).
type ClientMessage struct {
	Event string `json:"event"`
	Topic string `json:"topic"`
}

// ServerMessage is a frame sent to a dashboard client.
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func snapshotEvent(topic string) string { return fmt.Sprintf("snapshot.%s", topic) }
func liveEvent(topic string) string     { return fmt.Sprintf("event.%s", topic) }
func laggedEvent(topic string) string   { return fmt.Sprintf("lagged.%s", topic) }
