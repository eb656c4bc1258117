package queue

import (
	"fmt"
	"strings"

	"github.com/serenitylabs/serenity/internal/config"
	"github.com/serenitylabs/serenity/internal/utils"
)

// NewQueue creates a new Queue instance based on configuration.
// Default is the in-memory queue if type is not specified; type "none"
// returns a nil Queue.
func NewQueue(cfg config.QueueConfig) (Queue, error) {
	queueType := utils.QueueType(strings.ToLower(cfg.Type))
	if queueType == "" {
		queueType = utils.QueueTypeMemory
	}

	switch queueType {
	case utils.QueueTypeNATS:
		return newNATSQueue(NATSConfig{
			URL:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
			Durable:  cfg.Durable,
		})

	case utils.QueueTypeRedis:
		return newRedisQueue(RedisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			Group:    cfg.RedisGroup,
		})

	case utils.QueueTypeKafka:
		return newKafkaQueue(KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
		})

	case utils.QueueTypeMemory:
		return newMemoryQueue(), nil

	case utils.QueueTypeNone:
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: nats, redis, kafka, memory, none)", queueType)
	}
}
