package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "remindbot/pkg/logx"
)

// HandlerFunc handles one routed update.
type HandlerFunc func(ctx context.Context, req *Request) error

type middleware func(next HandlerFunc) HandlerFunc

// chain applies m so that m[0] is the outermost wrapper.
func chain(h HandlerFunc, m ...middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func withTimeout(d time.Duration) middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func recoverPanics() middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Log.Error("handler panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func logRequests() middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.String("cmd", req.Command),
				logx.Duration("dur", time.Since(start)),
			}
			if err != nil {
				req.Log.Warn("update failed", append(fields, logx.Err(err))...)
			} else {
				req.Log.Debug("update handled", fields...)
			}
			return err
		}
	}
}

// answerCallbacks stops the client's loading spinner once the handler is
// done, showing req.Toast when a handler set one. It runs outside the
// handler timeout so a slow handler still gets its callback answered.
func (b *Bot) answerCallbacks() middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if cb := req.Update.Callback; cb != nil {
				toast := req.Toast
				if err != nil && toast == "" {
					toast = "failed, try again"
				}
				if aerr := b.ad.AnswerCallback(context.WithoutCancel(ctx), cb.ID, toast); aerr != nil {
					req.Log.Debug("answer callback failed", logx.Err(aerr))
				}
			}
			return err
		}
	}
}
