package notify

import (
	"context"
	"errors"
	"fmt"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
)

var ErrNoValidTokens = errors.New("no valid push tokens")

// ExpoPusher delivers mobile push notifications through Expo.
type ExpoPusher struct {
	client *expo.PushClient
}

func NewExpoPusher(client *expo.PushClient) *ExpoPusher {
	if client == nil {
		client = expo.NewPushClient(nil)
	}
	return &ExpoPusher{client: client}
}

// validTokens keeps the tokens Expo would accept.
func validTokens(raw []string) []expo.ExponentPushToken {
	var out []expo.ExponentPushToken
	for _, s := range raw {
		token, err := expo.NewExponentPushToken(s)
		if err != nil {
			continue
		}
		out = append(out, token)
	}
	return out
}

func (p *ExpoPusher) Push(_ context.Context, tokens []string, title, body string, data map[string]string) error {
	valid := validTokens(tokens)
	if len(valid) == 0 {
		return ErrNoValidTokens
	}

	resp, err := p.client.Publish(&expo.PushMessage{
		To:       valid,
		Title:    title,
		Body:     body,
		Data:     data,
		Sound:    "default",
		Priority: expo.DefaultPriority,
	})
	if err != nil {
		return fmt.Errorf("publish push notification: %w", err)
	}
	if err := resp.ValidateResponse(); err != nil {
		return fmt.Errorf("push notification rejected: %w", err)
	}
	return nil
}
