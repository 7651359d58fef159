package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"nudge/pkg/logx"
)

type FCMConfig struct {
	CredentialsFile string
	ProjectID       string
}

// FCM sends multicasts through Firebase Cloud Messaging.
type FCM struct {
	client *messaging.Client
	log    logx.Logger
}

func NewFCM(ctx context.Context, cfg FCMConfig, log logx.Logger) (*FCM, error) {
	if strings.TrimSpace(cfg.CredentialsFile) == "" {
		return nil, errors.New("gateway: credentials_file is required")
	}
	var fbCfg *firebase.Config
	if strings.TrimSpace(cfg.ProjectID) != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("gateway: init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway: init messaging client: %w", err)
	}
	return &FCM{client: client, log: log}, nil
}

func (g *FCM) SendMulticast(ctx context.Context, tokens []string, msg Message) ([]Result, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if len(tokens) > MaxBatchTokens {
		return nil, fmt.Errorf("gateway: batch of %d exceeds token cap %d", len(tokens), MaxBatchTokens)
	}

	br, err := g.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: multicast call: %w", err)
	}

	out := make([]Result, len(br.Responses))
	for i, r := range br.Responses {
		if r.Success {
			out[i] = Result{OK: true}
			continue
		}
		out[i] = Result{ErrorClass: classify(r.Error)}
	}
	g.log.Debug("multicast sent",
		logx.Int("tokens", len(tokens)),
		logx.Int("ok", br.SuccessCount),
		logx.Int("failed", br.FailureCount))
	return out, nil
}

// classify maps SDK errors onto the engine's stable error-class strings.
// The two permanent classes get exact names; everything else keeps the
// SDK's message so transient failures stay debuggable in logs.
func classify(err error) string {
	switch {
	case err == nil:
		return ""
	case messaging.IsUnregistered(err):
		return ErrClassUnregistered
	case messaging.IsInvalidArgument(err):
		return ErrClassInvalidToken
	default:
		return err.Error()
	}
}
