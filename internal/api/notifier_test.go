package api_test

import (
	"context"

	"sitegrade/internal/notifications"
)

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return nil
}
