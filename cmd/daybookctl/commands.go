package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dukerupert/daybook/internal/auth"
	"github.com/dukerupert/daybook/internal/config"
	"github.com/dukerupert/daybook/internal/push"
)

type InitMonthCmd struct {
	MonthArgs
}

func (c *InitMonthCmd) Run(app *App) error {
	mk, err := c.Key()
	if err != nil {
		return err
	}
	svc, err := app.Service()
	if err != nil {
		return err
	}
	month, err := svc.AdminInitializeMonth(context.Background(), mk)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Initialized %s: %d days available\n", mk, len(month))
	return nil
}

type SeedCmd struct {
	MonthArgs
}

func (c *SeedCmd) Run(app *App) error {
	mk, err := c.Key()
	if err != nil {
		return err
	}
	svc, err := app.Service()
	if err != nil {
		return err
	}
	month, err := svc.SeedDemoMonth(context.Background(), mk)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Seeded %s with %d days\n", mk, len(month))
	return nil
}

type ShowCmd struct {
	MonthArgs
	JSON bool `help:"Print the month as JSON."`
}

func (c *ShowCmd) Run(app *App) error {
	mk, err := c.Key()
	if err != nil {
		return err
	}
	svc, err := app.Service()
	if err != nil {
		return err
	}
	month, err := svc.GetMonth(context.Background(), mk)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(app.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(month)
	}

	tw := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSTATUS\tREASON\tACTIVITIES")
	for d := 1; d <= mk.DaysIn(); d++ {
		rec := month.Day(d)
		reason := ""
		if rec.Reason != nil {
			reason = *rec.Reason
		}
		var acts []string
		for _, a := range rec.SortedActivities() {
			mark := "?"
			if a.Approved {
				mark = "+"
			}
			acts = append(acts, fmt.Sprintf("%s %s %s", mark, a.StartTime, a.Title))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mk.Day(d), rec.Status, reason, strings.Join(acts, "; "))
	}
	return tw.Flush()
}

type TokenCmd struct {
	Subject string        `arg:"" help:"Subject the token identifies, usually an email."`
	TTL     time.Duration `help:"Token lifetime. Defaults to DAYBOOK_AUTH_TOKEN_TTL."`
}

func (c *TokenCmd) Run(app *App) error {
	secret := app.Config.Auth.Secret
	if secret == "" {
		return fmt.Errorf("%sAUTH_SECRET is not set", config.Prefix)
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = app.Config.Auth.TokenTTL
	}

	policy := auth.NewAllowList(app.Config.Auth.Admins...)
	if !policy.IsAdmin(c.Subject) {
		app.Logger.Warn("subject is not in the admin list", "subject", c.Subject)
	}

	token, err := auth.NewVerifier(secret, policy).Issue(c.Subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.Out, token)
	return nil
}

type VapidKeysCmd struct{}

func (c *VapidKeysCmd) Run(app *App) error {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "DAYBOOK_PUSH_VAPID_PUBLIC_KEY=%s\n", pub)
	fmt.Fprintf(app.Out, "DAYBOOK_PUSH_VAPID_PRIVATE_KEY=%s\n", priv)
	return nil
}
