package main

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dukerupert/daybook/internal/calendar"
	"github.com/dukerupert/daybook/internal/config"
	"github.com/dukerupert/daybook/internal/database"
	"github.com/dukerupert/daybook/internal/feed"
	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"
)

// App is passed to every command. The database is opened on first use.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Out    io.Writer

	db *sql.DB
}

func (a *App) Service() (*calendar.Service, error) {
	if a.db == nil {
		db, err := database.Open(a.Config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
	}
	hub := feed.NewHub(a.Logger)
	return calendar.NewService(store.NewDayStore(a.db, hub), hub, nil, a.Logger), nil
}

func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// MonthArgs are the positional year and month shared by month commands.
type MonthArgs struct {
	Year  int `arg:"" help:"Year, e.g. 2025."`
	Month int `arg:"" help:"Month number, 1-12."`
}

func (m MonthArgs) Key() (model.MonthKey, error) {
	return model.NewMonthKey(m.Year, time.Month(m.Month))
}
