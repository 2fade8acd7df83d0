package scheduler

import (
	"crypto/tls"
	"errors"

	"vetclinic_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const defaultQueue = "default"

var errRedisNotConfigured = errors.New("redis url not configured")

// connection is the asynq broker and queue every scheduler component shares.
type connection struct {
	redis asynq.RedisClientOpt
	queue string
}

func newConnection(cfg config.SchedulerConfig) (connection, error) {
	if cfg.GetRedisURL() == "" {
		return connection{}, errRedisNotConfigured
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return connection{}, err
	}

	tlsConfig := opt.TLSConfig
	if cfg.GetRedisTLSInsecure() {
		if tlsConfig != nil {
			tlsConfig = tlsConfig.Clone()
		} else {
			tlsConfig = &tls.Config{}
		}
		tlsConfig.InsecureSkipVerify = true
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = defaultQueue
	}

	return connection{
		redis: asynq.RedisClientOpt{
			Addr:      opt.Addr,
			Password:  opt.Password,
			DB:        opt.DB,
			TLSConfig: tlsConfig,
		},
		queue: queue,
	}, nil
}
