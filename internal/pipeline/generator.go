package pipeline

import (
	"context"

	"github.com/mikelarin/draftly/internal/model"
)

// ModelGenerator adapts the concrete model client to the Generator
// interface.
type ModelGenerator struct {
	Client *model.Client
}

func (g ModelGenerator) StreamCompletion(ctx context.Context, req model.ChatRequest) (DeltaStream, error) {
	stream, err := g.Client.StreamCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
