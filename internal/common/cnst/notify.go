package cnst

const (
	// BusChannel is the single pub/sub channel shared by every instance
	BusChannel = "psds:notification"

	// MaxEventTypeLength bounds the event type tag stored alongside notifications
	MaxEventTypeLength = 64

	DefaultEventType     = "notification"
	DefaultSendQueueSize = 256
	DefaultConsumerGroup = "notification-service"
)

// DefaultTopics are consumed when no topic list is configured
var DefaultTopics = []string{
	"psds.session.created",
	"psds.session.ended",
	"psds.session.operator_joined",
	"psds.operator.assigned",
}

const (
	RedisClusterTypeSentinel = "sentinel"
	RedisClusterTypeCluster  = "cluster"
	RedisClusterTypeSingle   = "single"
)

const (
	StorageTypeMemory = "memory"
	StorageTypeDB     = "db"
	StorageTypeRedis  = "redis"
)
