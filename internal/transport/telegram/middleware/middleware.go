package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"
)

// Logger assigns a request id to the update and logs its duration.
func Logger() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := time.Now()

			rqID := uuid.NewString()
			c.Set("rqID", rqID)

			attrs := []any{slog.String("rqID", rqID)}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.Int64("chatID", chat.ID))
			}
			if cb := c.Callback(); cb != nil {
				attrs = append(attrs, slog.String("callback", cb.Unique))
			} else if text := c.Text(); text != "" && text[0] == '/' {
				attrs = append(attrs, slog.String("command", text))
			}

			slog.Info("start request", attrs...)

			err := next(c)

			slog.Info(
				"request finished",
				slog.String("rqID", rqID),
				slog.Duration("duration", time.Since(start)),
				slog.Bool("failed", err != nil),
			)

			return err
		}
	}
}
