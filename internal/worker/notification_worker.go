package worker

import (
	"github.com/civic-desk/issue-sync/internal/service"
)

// StartNotificationWorker registers notification handlers and returns the
// func that stops delivery.
func StartNotificationWorker(notificationService *service.NotificationService) func() {
	if notificationService == nil {
		return func() {}
	}
	return notificationService.RegisterHandlers()
}
