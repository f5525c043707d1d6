package calendar

import (
	"context"
	"sync"

	"github.com/dukerupert/daybook/internal/model"
)

// Subscribe delivers the current month to onUpdate before returning, then
// calls it again after every change to the month until the returned
// function is called or ctx is done. Changes arriving while onUpdate runs
// coalesce into one call with the newest month. onUpdate runs on a single
// goroutine and must not call the returned function.
func (s *Service) Subscribe(ctx context.Context, mk model.MonthKey, onUpdate func(model.Month)) (func(), error) {
	// Listen before the first read so no write between the two is missed.
	l := s.hub.Watch(mk)

	month, err := s.GetMonth(ctx, mk)
	if err != nil {
		l.Close()
		return nil, err
	}
	onUpdate(month)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer l.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-l.C():
				if !ok {
					return
				}
			}

			month, err := s.GetMonth(ctx, mk)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				s.logger.Error("reload month", "month", mk.String(), "error", err)
				continue
			}
			onUpdate(month)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}
