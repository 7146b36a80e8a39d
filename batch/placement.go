package batch

import "context"

// Placer receives each downloaded artifact for placement in the destination
// document.  Placement lives outside this package; a compositor plugin, an
// asset pipeline and a plain output directory all look the same from here.
type Placer interface {
	Place(ctx context.Context, target Target, imagePath string) error
}

// PlacerFunc adapts a function to the Placer interface.
type PlacerFunc func(ctx context.Context, target Target, imagePath string) error

func (f PlacerFunc) Place(ctx context.Context, target Target, imagePath string) error {
	return f(ctx, target, imagePath)
}

// NopPlacer leaves artifacts where they were downloaded.
func NopPlacer() Placer {
	return PlacerFunc(func(context.Context, Target, string) error { return nil })
}
