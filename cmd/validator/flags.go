// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	cli "gopkg.in/urfave/cli.v1"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to validator.yaml (default: ~/.platform/validator.yaml)",
	}
	keyFileFlag = cli.StringFlag{
		Name:  "key-file",
		Usage: "path to the validator's ed25519 private key (hex-encoded)",
	}
	taskDirFlag = cli.StringFlag{
		Name:  "task-dir",
		Usage: "directory of terminal-bench task fixtures",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: 3,
		Usage: "log verbosity (0-9)",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Value: "",
		Usage: "address to serve Prometheus /metrics on; empty disables it",
	}
)
