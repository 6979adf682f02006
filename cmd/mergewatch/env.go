package main

import (
	"github.com/steveyegge/mergewatch/internal/config"
	"github.com/steveyegge/mergewatch/internal/functest"
	"github.com/steveyegge/mergewatch/internal/idle"
	"github.com/steveyegge/mergewatch/internal/notification"
	"github.com/steveyegge/mergewatch/internal/p4"
	"github.com/steveyegge/mergewatch/internal/rmapi"
	"github.com/steveyegge/mergewatch/internal/telemetry"
)

// newAPI returns the merge-service client, instrumented when telemetry is on.
func newAPI(s config.Settings) rmapi.API {
	return telemetry.WrapAPI(rmapi.NewClient(s.ServiceURL, rmapi.WithTimeout(s.HTTPTimeout)))
}

// newEnv wires the harness to the configured servers.
func newEnv(s config.Settings) functest.Env {
	return functest.Env{
		P4:             p4.New(&p4.ExecRunner{Binary: s.P4Binary, Env: []string{"P4CHARSET=none"}}, s.P4Port),
		API:            newAPI(s),
		Notify:         notification.NewClient(s.NotificationURL),
		Bot:            s.Bot,
		WorkspacesRoot: s.WorkspacesRoot,
		Logger:         logger,
		Wait:           waitOptions(s),
	}
}

func waitOptions(s config.Settings) idle.WaitOptions {
	return idle.WaitOptions{
		Attempts:        s.Attempts,
		InitialInterval: s.InitialInterval,
		Multiplier:      s.Multiplier,
	}
}
