package guard

import "context"

// Navigator performs a forced navigation.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, path string)

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, path string) {
	f(ctx, path)
}
