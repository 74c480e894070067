// Package errors provides the error handling conventions used across perfstreams.
//
// # Classification
//
// Every error that crosses a component boundary falls into one of three classes:
//
//   - Transient: delivery or connection trouble; retry is reasonable
//   - Invalid: bad input such as an unknown entry type or a missing mark; do not retry
//   - Fatal: bad configuration or a closed sink; stop the component
//
// Classification first looks for a *ClassifiedError in the chain, then for
// the package's sentinel errors, then falls back to message patterns.
// Unknown errors are treated as transient.
//
// # Wrapping
//
// Wrap adds "Component.Method: action failed: %w" context. The classified
// variants do the same and attach a class:
//
//	if _, ok := marks.Lookup(name); !ok {
//		return errors.WrapInvalid(errors.ErrMarkNotFound, "Reporter", "Measure",
//			fmt.Sprintf("resolve mark %q", name))
//	}
//
// errors.Is and errors.As keep working through the wrappers.
//
// # Retry
//
// RetryConfig.ShouldRetry retries only transient errors, optionally limited to
// an explicit list. ToRetryConfig converts it for pkg/retry.Do:
//
//	err := retry.Do(ctx, cfg.ToRetryConfig(), func() error {
//		return publish(batch)
//	})
//
// # Buffers
//
// The buffer core does not return errors. Its push status reports drops, and
// precondition violations (index out of range, Back on an empty buffer) panic.
package errors
