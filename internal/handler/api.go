package handler

import "github.com/neerajk1208/ivfb/pkg/api"

// API implements the generated ServerInterface by embedding the handler of
// each area
type API struct {
	*ProtocolHandler
	*TodayHandler
	*ChatHandler
	*UserHandler
	*GDPRHandler
	*JobsHandler
	*WebhookHandler
	*HealthHandler
}

var _ api.ServerInterface = (*API)(nil)
