package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/transifex/jsonapi-client/pkg/jsonapi"
)

var sleep = func(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

/*
Run 'do'. If the error returned by 'do' is a jsonapi.RetryError, sleep the
number of seconds indicated by the error and try again, at most 'attempts'
times in total. Meanwhile, inform the user of what's going on using 'send'.
*/
func handleThrottling(
	ctx context.Context, attempts int, do func() error, send func(string),
) error {
	for attempt := 1; ; attempt++ {
		err := do()
		if err == nil {
			return nil
		}
		var e *jsonapi.RetryError
		if !errors.As(err, &e) || attempt >= attempts {
			return err
		}
		retryAfter := e.RetryAfter
		if isatty.IsTerminal(os.Stdout.Fd()) {
			for retryAfter > 0 {
				send(fmt.Sprintf(
					"Throttled, will retry after %d seconds", retryAfter,
				))
				err = sleep(ctx, time.Second)
				if err != nil {
					return err
				}
				retryAfter -= 1
			}
		} else {
			send(fmt.Sprintf(
				"Throttled, will retry after %d seconds", retryAfter,
			))
			err = sleep(ctx, time.Duration(retryAfter)*time.Second)
			if err != nil {
				return err
			}
		}
	}
}
