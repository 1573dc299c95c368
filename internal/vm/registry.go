// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package vm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qgrain/syzqemuctl/internal/image"
	"github.com/qgrain/syzqemuctl/internal/supervisor"
)

// Bound for concurrent per-VM status collection. One probe per VM, so
// this is mostly a courtesy towards the host's socket limits.
const statusConcurrency = 16

// Status describes one VM as seen by the registry.
type Status struct {
	Name       string
	Path       string
	CreatedAt  time.Time
	IsTemplate bool
	// TemplateReady only applies to the template entry.
	TemplateReady bool
	State         State
	// PID and Port are only meaningful with a live process.
	PID  int
	Port int
	// StartedAt is zero for VMs without a live process.
	StartedAt time.Time
}

// Registry lists the VMs of one images-home together with their live
// state.
type Registry struct {
	store *image.Store
	sup   ProcessSupervisor

	// NewVM constructs the per-name orchestrator, replaceable for tests.
	NewVM func(name string) *VM
}

// NewRegistry returns a [Registry] over the given store and supervisor.
func NewRegistry(store *image.Store, sup ProcessSupervisor) *Registry {
	return &Registry{
		store: store,
		sup:   sup,
		NewVM: func(name string) *VM {
			return New(store, sup, name)
		},
	}
}

// Status returns the state of a single VM. With probe set the state is
// derived including an SSH probe; otherwise only process liveness is
// inspected, which keeps the call cheap for listings.
func (r *Registry) Status(
	ctx context.Context,
	name string,
	probe bool,
) (Status, error) {
	info, err := r.store.Info(name)
	if err != nil {
		return Status{}, fmt.Errorf("vm %s: %w", name, err)
	}

	status := Status{
		Name:          info.Name,
		Path:          info.Path,
		CreatedAt:     info.CreatedAt,
		IsTemplate:    info.IsTemplate,
		TemplateReady: info.TemplateReady,
	}

	if info.IsTemplate {
		return status, nil
	}

	handle, ok := r.sup.Status(ctx, name)
	if ok {
		status.PID = handle.PID
		status.Port = handle.Port
		status.StartedAt = handle.StartedAt
	}

	if probe {
		status.State = r.NewVM(name).State(ctx)

		return status, nil
	}

	switch {
	case !ok || handle.State == supervisor.StateStopped:
		status.State = StateStopped
	case handle.State == supervisor.StateCrashed:
		status.State = StateCrashed
	default:
		// Without a probe a live process cannot be told apart further.
		status.State = StateStarting
	}

	return status, nil
}

// List returns the status of every image in the store, including the
// template, sorted by name. Per-VM collection runs concurrently.
func (r *Registry) List(ctx context.Context, probe bool) ([]Status, error) {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(statusConcurrency)

	var (
		mu       sync.Mutex
		statuses []Status
	)

	for name := range r.store.List() {
		group.Go(func() error {
			status, err := r.Status(ctx, name, probe)
			if err != nil {
				return err
			}

			mu.Lock()
			statuses = append(statuses, status)
			mu.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})

	return statuses, nil
}
