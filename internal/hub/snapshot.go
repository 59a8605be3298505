package hub

import (
	"context"
	"strings"

	"github.com/voxbridge/callengine/internal/eventbus"
	"github.com/voxbridge/callengine/internal/store"
)

// StoreSnapshotter builds the point-in-time projection a client receives on
// subscribe, straight out of the Store (spec §4.3).
type StoreSnapshotter struct {
	store store.Store
}

func NewStoreSnapshotter(s store.Store) *StoreSnapshotter {
	return &StoreSnapshotter{store: s}
}

// Snapshot dispatches on the topic shape: the two well-known aggregate
// topics, or a per-id topic (call.<id>, transcript.<id>, campaign.<id>).
func (s *StoreSnapshotter) Snapshot(ctx context.Context, topic string) (any, error) {
	switch {
	case topic == eventbus.TopicCallUpdates:
		return s.store.ListCalls(ctx, store.CallFilter{NonTerminal: true})
	case topic == eventbus.TopicCampaignUpdates:
		return s.store.ListCampaigns(ctx)
	case strings.HasPrefix(topic, "call."):
		return s.store.GetCall(ctx, strings.TrimPrefix(topic, "call."))
	case strings.HasPrefix(topic, "transcript."):
		return s.store.GetTranscript(ctx, strings.TrimPrefix(topic, "transcript."))
	case strings.HasPrefix(topic, "campaign."):
		return s.store.GetCampaign(ctx, strings.TrimPrefix(topic, "campaign."))
	default:
		return nil, nil
	}
}
