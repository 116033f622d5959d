// Package lifecycle runs teardown hooks when the process is asked to exit.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Hook func()

type HookID uint64

// Notifier holds process-wide teardown hooks. Each hook runs at most once.
type Notifier struct {
	mu    sync.Mutex
	next  HookID
	hooks map[HookID]Hook
}

func NewNotifier() *Notifier {
	return &Notifier{hooks: make(map[HookID]Hook)}
}

func (n *Notifier) Register(h Hook) HookID {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	n.hooks[n.next] = h
	log.Debug().Str("module", "lifecycle").Uint64("hook", uint64(n.next)).Msg("registered")
	return n.next
}

// Deregister reports whether the hook was still registered.
func (n *Notifier) Deregister(id HookID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.hooks[id]; !ok {
		return false
	}
	delete(n.hooks, id)
	log.Debug().Str("module", "lifecycle").Uint64("hook", uint64(id)).Msg("deregistered")
	return true
}

func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.hooks)
}

// Fire runs every registered hook concurrently, removes them and waits.
func (n *Notifier) Fire() {
	n.mu.Lock()
	hooks := n.hooks
	n.hooks = make(map[HookID]Hook)
	n.mu.Unlock()

	log.Info().Str("module", "lifecycle").Int("hooks", len(hooks)).Msg("teardown")

	var wg conc.WaitGroup
	for _, h := range hooks {
		wg.Go(h)
	}
	wg.Wait()
}

// Run blocks until SIGINT/SIGTERM or ctx is done, then fires the hooks.
func (n *Notifier) Run(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	n.Fire()
}
