// stream.go - combinator sugar over Subscription (§11.1).
package effection

// Each returns an Operation that drives sub to its terminal marker, calling
// fn with every value observed along the way. It returns the channel's
// close payload.
func Each[T any, C any](sub *Subscription[T, C], fn func(T)) Operation[C] {
	return func(c *Control) (C, error) {
		var zero C
		for {
			it, err := sub.Next()(c)
			if err != nil {
				return zero, err
			}
			if it.Done {
				return it.Close, nil
			}
			fn(it.Value)
		}
	}
}

// Collect drains sub to its terminal marker, returning every value observed
// in order.
func Collect[T any, C any](sub *Subscription[T, C]) Operation[[]T] {
	return func(c *Control) ([]T, error) {
		var values []T
		_, err := Each[T, C](sub, func(v T) { values = append(values, v) })(c)
		if err != nil {
			return nil, err
		}
		return values, nil
	}
}

// Filter returns an Operation that drives sub to its terminal marker, only
// passing values matching pred to fn.
func Filter[T any, C any](sub *Subscription[T, C], pred func(T) bool, fn func(T)) Operation[C] {
	return Each[T, C](sub, func(v T) {
		if pred(v) {
			fn(v)
		}
	})
}

// Map returns an Operation that drives sub to its terminal marker, calling
// fn with each value transformed by mapFn.
func Map[T any, C any, U any](sub *Subscription[T, C], mapFn func(T) U, fn func(U)) Operation[C] {
	return Each[T, C](sub, func(v T) { fn(mapFn(v)) })
}
