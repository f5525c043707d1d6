// Package websocket serves the live calendar feed.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/daybook/internal/model"
)

// Subscriber delivers a month snapshot now and after every change.
type Subscriber interface {
	Subscribe(ctx context.Context, mk model.MonthKey, onUpdate func(model.Month)) (func(), error)
}

// MonthMessage is the frame sent for every snapshot.
type MonthMessage struct {
	Type  string      `json:"type"`
	Month string      `json:"month"`
	Days  model.Month `json:"days"`
}

const messageTypeMonth = "calendar_month"

// HandleCalendarFeed upgrades GET /ws/calendar/{year}/{month} and streams
// the month, without requester details, until the client disconnects.
func HandleCalendarFeed(sub Subscriber, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mk, err := monthFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			// The feed is public and read-only.
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("accept", "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(conn)
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		unsubscribe, err := sub.Subscribe(ctx, mk, func(month model.Month) {
			msg, err := encodeMonth(mk, month)
			if err != nil {
				logger.Error("encode snapshot", "month", mk.String(), "error", err)
				return
			}
			client.offer(msg)
		})
		if err != nil {
			logger.Error("subscribe", "month", mk.String(), "error", err)
			conn.Close(ws.StatusInternalError, "calendar unavailable")
			return
		}
		defer unsubscribe()

		logger.Debug("feed connected", "month", mk.String())
		client.Run(ctx)
		logger.Debug("feed disconnected", "month", mk.String())
	}
}

func encodeMonth(mk model.MonthKey, month model.Month) ([]byte, error) {
	return json.Marshal(MonthMessage{Type: messageTypeMonth, Month: mk.String(), Days: month.Redacted()})
}

func monthFromRequest(r *http.Request) (model.MonthKey, error) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		return model.MonthKey{}, fmt.Errorf("invalid year")
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil {
		return model.MonthKey{}, fmt.Errorf("invalid month")
	}
	return model.NewMonthKey(year, time.Month(month))
}
