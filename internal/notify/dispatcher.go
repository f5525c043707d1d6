// Package notify tells people about booking events by mail and web push.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/push"
)

type Mailer interface {
	Configured() bool
	SendBookingReceived(toEmail string, day model.DayKey, act model.Activity) error
	SendBookingDecision(day model.DayKey, act model.Activity, approved bool) error
}

type Pusher interface {
	Configured() bool
	Send(sub *model.PushSubscription, payload push.Payload) error
}

type SubscriptionStore interface {
	ListAll() ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// Dispatcher sends notifications in the background. Failures are logged
// and never reach the operation that triggered them.
type Dispatcher struct {
	mailer     Mailer
	adminEmail string
	pusher     Pusher
	subs       SubscriptionStore
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewDispatcher wires the channels. mailer and pusher may be nil.
func NewDispatcher(mailer Mailer, adminEmail string, pusher Pusher, subs SubscriptionStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		mailer:     mailer,
		adminEmail: adminEmail,
		pusher:     pusher,
		subs:       subs,
		logger:     logger,
	}
}

func (d *Dispatcher) BookingRequested(_ context.Context, day model.DayKey, act model.Activity) {
	d.wg.Go(func() {
		if d.mailEnabled() && d.adminEmail != "" {
			if err := d.mailer.SendBookingReceived(d.adminEmail, day, act); err != nil {
				d.logger.Error("booking received mail", "day", day.String(), "activity_id", act.ID, "error", err)
			}
		}

		requester := "Someone"
		if act.BookedBy != nil && act.BookedBy.Name != "" {
			requester = act.BookedBy.Name
		}
		d.pushAll(push.Payload{
			Title: "New booking request",
			Body:  fmt.Sprintf("%s requested %s on %s, %s-%s", requester, act.Title, day, act.StartTime, act.EndTime),
			URL:   fmt.Sprintf("/admin/calendar/%04d/%02d", day.Year, int(day.Month)),
			Tag:   "booking-" + act.ID,
		})
	})
}

func (d *Dispatcher) BookingDecided(_ context.Context, day model.DayKey, act model.Activity, approved bool) {
	if act.BookedBy == nil || !d.mailEnabled() {
		return
	}
	d.wg.Go(func() {
		if err := d.mailer.SendBookingDecision(day, act, approved); err != nil {
			d.logger.Error("booking decision mail", "day", day.String(), "activity_id", act.ID, "approved", approved, "error", err)
		}
	})
}

// Wait blocks until every queued notification has been attempted.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) mailEnabled() bool {
	return d.mailer != nil && d.mailer.Configured()
}

func (d *Dispatcher) pushAll(payload push.Payload) {
	if d.pusher == nil || !d.pusher.Configured() || d.subs == nil {
		return
	}
	subs, err := d.subs.ListAll()
	if err != nil {
		d.logger.Error("list push subscriptions", "error", err)
		return
	}

	var sent, expired int
	for i := range subs {
		sub := &subs[i]
		err := d.pusher.Send(sub, payload)
		switch {
		case errors.Is(err, push.ErrExpired):
			expired++
			if err := d.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
				d.logger.Error("delete expired subscription", "id", sub.ID, "error", err)
			}
		case err != nil:
			d.logger.Error("send push", "id", sub.ID, "error", err)
		default:
			sent++
		}
	}
	d.logger.Debug("push sent", "tag", payload.Tag, "sent", sent, "expired", expired)
}
