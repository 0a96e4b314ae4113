package kernel

import "log/slog"

// Option customises a Kernel.
type Option func(k *Kernel)

// WithLogger sets the kernel logger.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Kernel) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// WithHooks installs kernel event hooks.
func WithHooks(hooks Hooks) Option {
	return func(k *Kernel) {
		k.hooks = hooks
	}
}
