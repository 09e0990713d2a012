// Package redisclient builds go-redis universal clients for single, sentinel
// and cluster deployments.
package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/pkg/utils"
)

type Options struct {
	ClusterType string
	Addr        string // ";" or "," separated
	MasterName  string
	Username    string
	Password    string
	DB          int
}

// New creates the client and pings it.
func New(ctx context.Context, opts Options) (redis.UniversalClient, error) {
	addrs := utils.SplitAndTrim(opts.Addr, ";", ",")
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis address is empty")
	}
	redisOptions := &redis.UniversalOptions{
		Addrs:    addrs,
		Username: opts.Username,
		Password: opts.Password,
	}
	if opts.ClusterType == cnst.RedisClusterTypeSentinel {
		redisOptions.MasterName = opts.MasterName
	}
	if opts.ClusterType != cnst.RedisClusterTypeCluster {
		// can not set db in cluster mode
		redisOptions.DB = opts.DB
	}
	client := redis.NewUniversalClient(redisOptions)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
