// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pborman/uuid"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/platform-net/validator-core/config"
	"github.com/platform-net/validator-core/metrics"
	"github.com/platform-net/validator-core/platformclient"
	"github.com/platform-net/validator-core/policy"
	"github.com/platform-net/validator-core/wasmrt"
	"github.com/platform-net/validator-core/worker"
)

var (
	version   string
	gitCommit string
	gitTag    string
	log       = log15.New()

	instanceID = uuid.NewRandom().String()
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "validator",
		Usage:     "runs evaluation jobs for one validator hotkey against the platform",
		Copyright: "2026 Platform Foundation",
		Flags: []cli.Flag{
			configFlag,
			keyFileFlag,
			taskDirFlag,
			verbosityFlag,
			metricsAddrFlag,
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAction(ctx *cli.Context) error {
	exitCtx := handleExitSignal()
	initLogger(ctx)
	log.Info("starting validator", "instance", instanceID, "version", fullVersion())

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	if addr := ctx.String(metricsAddrFlag.Name); addr != "" {
		metrics.InitializePrometheusMetrics()
		url, closeMetrics, err := startMetricsServer(addr)
		if err != nil {
			return err
		}
		defer closeMetrics()
		log.Info("metrics server listening", "url", url)
	}

	key, err := loadSigningKey(ctx.String(keyFileFlag.Name))
	if err != nil {
		return err
	}

	client := platformclient.NewHTTPClient(
		cfg.Network.PlatformBaseURL,
		cfg.Network.ChallengeID,
		cfg.Network.ValidatorHotkey,
		platformclient.Ed25519Signer(key),
	)

	tasks, err := worker.NewDirTaskRegistry(ctx.String(taskDirFlag.Name))
	if err != nil {
		return err
	}
	log.Info("loaded task registry", "count", tasks.Count())

	rt, err := wasmrt.New(context.Background(), wasmrt.DefaultConfig())
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	built, err := newBuiltins(cfg)
	if err != nil {
		return err
	}
	defer built.Close()
	log.Info("registered host capabilities", "count", len(built.registrars), "challenges_persisted", built.metadata != nil)

	loader := NewWasmBinaryLoader(rt, built.registrars)

	sandboxes := newExecSandboxFactory(policy.ExecPolicy{
		Enabled:         true,
		AllowedCommands: []string{"/bin/sh"},
		TimeoutMs:       30000,
		MaxOutputBytes:  1 << 20,
	})

	stream := worker.NewTaskStreamCache(10*time.Minute, 64*1024)

	w := worker.NewValidatorWorker(client, cfg.Network.ValidatorHotkey, tasks, loader, sandboxes, stream)

	events := make(chan worker.Event, 16)
	wsSource := worker.NewWSEventSource(wsURLFor(cfg.Network.PlatformBaseURL))
	stop := make(chan struct{})
	go wsSource.Run(events, stop)
	defer close(stop)

	w.Run(exitCtx, events)
	log.Info("validator exited")
	return nil
}

func loadConfig(ctx *cli.Context) (config.Config, error) {
	if path := ctx.String(configFlag.Name); path != "" {
		return config.Load(path)
	}
	return config.EnsureInitialized()
}

func wsURLFor(baseURL string) string {
	return baseURL + "/api/v1/validator/events"
}
