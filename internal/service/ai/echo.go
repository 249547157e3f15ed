package ai

import (
	"context"
	"fmt"
)

// EchoResponder answers without a model. It keeps the backend usable when no
// Ark credentials are configured.
type EchoResponder struct{}

// Reply repeats the query back.
func (EchoResponder) Reply(_ context.Context, req Request) (string, error) {
	return fmt.Sprintf("You said: %s", req.Query), nil
}
