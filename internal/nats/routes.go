package nats

import (
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/api/handlers"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/services"
	"github.com/nats-io/nats.go"
)

// Route binds one subject to a durable consumer.
type Route struct {
	Subject string
	Durable string
	Handler nats.MsgHandler
}

func Routes() []Route {
	return []Route{
		// User events
		{Subject: "users.deleted", Durable: "publish-service-user-cleanup", Handler: handlers.HandleUserDeleted},

		// Reference events
		{Subject: "references.created", Durable: "publish-service-scanner", Handler: handlers.HandleReferenceCreated},
	}
}

// SubscribeAll registers every route once during startup.
func SubscribeAll(routes []Route) error {
	for _, route := range routes {
		if _, err := services.SubscribeEvent(route.Subject, route.Durable, route.Handler); err != nil {
			return err
		}
	}
	return nil
}
