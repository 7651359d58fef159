package gateway

import (
	"context"

	"nudge/pkg/logx"
)

// DryRun accepts every token without touching the network. Used by
// `nudge trigger --dry-run` to preview recipient counts safely.
type DryRun struct {
	log logx.Logger
}

func NewDryRun(log logx.Logger) *DryRun { return &DryRun{log: log} }

func (g *DryRun) SendMulticast(_ context.Context, tokens []string, msg Message) ([]Result, error) {
	g.log.Info("dry-run multicast",
		logx.Int("tokens", len(tokens)),
		logx.String("title", msg.Title))
	out := make([]Result, len(tokens))
	for i := range out {
		out[i] = Result{OK: true}
	}
	return out, nil
}
