// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/platform-net/validator-core/hostfn"
	"github.com/platform-net/validator-core/policy"
	"github.com/platform-net/validator-core/worker"
)

// execSandboxFactory builds one hostfn.ExecHost per task, per spec.md's
// explicit non-goal: "does not implement container runtimes (it only
// invokes them through a policy-checked exec host function)". There is no
// literal Docker/OCI layer here; isolation comes entirely from
// policy.ExecPolicy's allow-lists and resource limits.
type execSandboxFactory struct {
	policy policy.ExecPolicy
}

func newExecSandboxFactory(p policy.ExecPolicy) *execSandboxFactory {
	return &execSandboxFactory{policy: p}
}

func (f *execSandboxFactory) NewSandbox(ctx context.Context, task worker.Task) (worker.Sandbox, error) {
	clock := hostfn.NewClock(nil)
	state := hostfn.NewState(task.ID, clock)
	return &execSandbox{host: hostfn.NewExecHost(f.policy, state)}, nil
}

type execSandbox struct {
	host *hostfn.ExecHost
}

func (s *execSandbox) Exec(ctx context.Context, command string) (hostfn.ExecResult, error) {
	result, status := s.host.Run(hostfn.ExecRequest{
		Command: "/bin/sh",
		Args:    []string{"-c", command},
	})
	if status != hostfn.StatusSuccess {
		return result, errors.Errorf("exec refused: %v", status)
	}
	return result, nil
}

func (s *execSandbox) Close() error { return nil }
