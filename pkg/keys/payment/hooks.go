package payment

import (
	"context"
	"sync"

	"github.com/holiman/uint256"
)

// Receipt describes value that was just credited to a payee
type Receipt struct {
	Rail   Rail
	From   string
	To     string
	Amount *uint256.Int
}

// ReceiveHook is code a payee runs when it receives value. It may call back
// into the market, and returning an error rejects the value.
type ReceiveHook func(ctx context.Context, receipt *Receipt) error

// Hooks is the set of payees that run code on receipt of value
type Hooks struct {
	mu    sync.RWMutex
	hooks map[string]ReceiveHook
}

func NewHooks() *Hooks {
	return &Hooks{
		hooks: make(map[string]ReceiveHook),
	}
}

// Register installs the hook run when address receives value, replacing any
// previous one
func (h *Hooks) Register(address string, hook ReceiveHook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.hooks[address] = hook
}

func (h *Hooks) Unregister(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.hooks, address)
}

func (h *Hooks) run(ctx context.Context, receipt *Receipt) error {
	if h == nil {
		return nil
	}

	h.mu.RLock()
	hook, ok := h.hooks[receipt.To]
	h.mu.RUnlock()

	if !ok {
		return nil
	}
	return hook(ctx, receipt)
}
