package cnst

const (
	AppName     = "notification-service"
	CommandName = "notification-service"
)

const (
	NotificationServiceYaml = "notification-service.yaml"
)
