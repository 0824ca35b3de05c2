package service

import (
	"context"
	"time"

	"github.com/cwrk-planet/watchparty/pkg/logger"

	"github.com/cenkalti/backoff/v4"
)

// persister выполняет одну ограниченную по времени запись в хранилище и повторяет её
// retries раз. Отмена исходного запроса (например, обрыв сокета) запись не прерывает.
type persister struct {
	timeout time.Duration
	retries int
	pause   time.Duration
}

func (p persister) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx = context.WithoutCancel(ctx)

	attempt := 0
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.pause), uint64(p.retries))
	err := backoff.Retry(func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return fn(actx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		logger.FromContext(ctx).Error("persist failed", "op", op, "attempts", attempt, "err", err)
	}
	return err
}

// permanent помечает ошибку как не подлежащую повтору.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
