package constants

import "time"

const (
	ServiceName = "campaign-consumer"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout  = 10 * time.Second
	DefaultStageTimeout = 5 * time.Second
)

const (
	DefaultQueueName       = "m2c_digital_messages_queue"
	DefaultMongoDBName     = "m2c_digital_db"
	DefaultCollectionName  = "messages"
	DefaultAPIKeyHeader    = "x-api-key"
	DefaultWorkers         = 8
	DefaultReconcilePeriod = time.Minute
)

// Counter key layout. Both forms share the "campaign:" prefix so one SCAN
// finds every pending campaign.
const (
	CounterKeyPrefix   = "campaign:"
	CounterKeySuffix   = ":count"
	MembersKeySuffix   = ":members"
	CounterScanPattern = "campaign:*"
)

const (
	CounterModeCount    = "count"
	CounterModeDistinct = "distinct"
)

const (
	MessageStoreMongoDB  = "mongodb"
	MessageStorePostgres = "postgres"
)

const (
	BrokerRabbitMQ = "rabbitmq"
	BrokerKafka    = "kafka"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)
