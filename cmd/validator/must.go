// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"os/signal"
	"syscall"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"
)

func initLogger(ctx *cli.Context) {
	logLevel := ctx.Int(verbosityFlag.Name)
	log15.Root().SetHandler(log15.LvlFilterHandler(log15.Lvl(logLevel), log15.StderrHandler))
}

// handleExitSignal returns a context canceled on SIGINT/SIGTERM, mirroring
// thor's graceful-shutdown-on-signal convention.
func handleExitSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("exit signal received, shutting down...")
		cancel()
	}()
	return ctx
}

// loadSigningKey reads a hex-encoded ed25519 private key from path.
func loadSigningKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read key file %s", path)
	}
	raw, err := hex.DecodeString(trimNewline(string(data)))
	if err != nil {
		return nil, errors.Wrap(err, "decode hex key")
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("key file %s: expected %d bytes, got %d", path, ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
