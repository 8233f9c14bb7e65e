// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"encoding/json"

	"github.com/platform-net/validator-core/worker"
)

// marshalStepInput encodes an agent step input as the single JSON line
// the guest's evaluate_request handler expects, per spec.md §4.9.1.
func marshalStepInput(input worker.AgentStepInput) ([]byte, error) {
	return json.Marshal(input)
}
