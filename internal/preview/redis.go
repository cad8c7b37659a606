package preview

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectOptions はRedis接続のリトライ設定。
type ConnectOptions struct {
	ConnectTimeout time.Duration // 接続試行全体の制限時間
	RetryInterval  time.Duration // 初回のリトライ間隔（指数的に増加）
	MaxWait        time.Duration // リトライ間隔の上限
	PingTimeout    time.Duration // 1回のPINGの制限時間
}

// DefaultConnectOptions は既定のリトライ設定を返す。
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		ConnectTimeout: 30 * time.Second,
		RetryInterval:  time.Second,
		MaxWait:        5 * time.Second,
		PingTimeout:    2 * time.Second,
	}
}

// ConnectRedis はREDIS_URLからクライアントを生成し、PINGが通るまでリトライする。
func ConnectRedis(ctx context.Context, redisURL string, opts ConnectOptions) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if opts.ConnectTimeout <= 0 || opts.RetryInterval <= 0 || opts.MaxWait <= 0 || opts.PingTimeout <= 0 {
		return nil, fmt.Errorf("invalid redis connect options: %+v", opts)
	}

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	attempt := 0
	wait := opts.RetryInterval
	for {
		attempt++

		pingCtx, pingCancel := context.WithTimeout(ctx, opts.PingTimeout)
		err := client.Ping(pingCtx).Err()
		pingCancel()

		if err == nil {
			slog.Info("Redisに接続しました",
				slog.String("addr", redisOpts.Addr),
				slog.Int("attempts", attempt),
			)
			return client, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			client.Close()
			return nil, fmt.Errorf("redis unavailable at %s after %d attempts: %w", redisOpts.Addr, attempt, err)
		case <-timer.C:
			slog.Warn("Redisへの接続に失敗しました。リトライします",
				slog.String("addr", redisOpts.Addr),
				slog.Int("attempt", attempt),
				slog.Duration("next_retry_in", wait),
				slog.String("error", err.Error()),
			)
			wait *= 2
			if wait > opts.MaxWait {
				wait = opts.MaxWait
			}
		}
	}
}
