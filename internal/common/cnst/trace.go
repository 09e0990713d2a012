package cnst

const (
	TraceIngest  = "notification-service/ingest"
	TraceRouter  = "notification-service/router"
	TraceHandler = "notification-service/handler"

	SpanIngestRecord = "ingest.record"
	SpanDeliver      = "router.deliver"
	SpanDeliverLocal = "router.deliver_local"
)
