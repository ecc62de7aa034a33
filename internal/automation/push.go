// internal/automation/push.go
package automation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const pushoverMessagesURL = "https://api.pushover.net/1/messages.json"

// PushMessage is a resolved sendPushNotification action, ready to send.
type PushMessage struct {
	Title      string
	Message    string
	TargetUser string // "__all__" broadcasts to the configured group key.
	Priority   *int
}

// PushClient sends push notifications through Pushover, the provider named
// in the seed scenarios. AppToken/GroupKey are process-wide (cmd/fusiond
// reads them from PUSHOVER_APP_TOKEN and PUSHOVER_GROUP_KEY) and shared by
// every organization; TargetUser overrides GroupKey unless it is "__all__"
// or empty.
type PushClient struct {
	Client   *http.Client
	AppToken string
	GroupKey string
}

func NewPushClient(client *http.Client, appToken, groupKey string) *PushClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &PushClient{Client: client, AppToken: appToken, GroupKey: groupKey}
}

func (p *PushClient) Send(ctx context.Context, msg PushMessage) error {
	if p.AppToken == "" {
		return fmt.Errorf("pushover: no app token configured")
	}
	user := p.GroupKey
	if msg.TargetUser != "" && msg.TargetUser != "__all__" {
		user = msg.TargetUser
	}
	if user == "" {
		return fmt.Errorf("pushover: no target user or group key resolved")
	}

	form := url.Values{
		"token":   {p.AppToken},
		"user":    {user},
		"title":   {msg.Title},
		"message": {msg.Message},
	}
	if msg.Priority != nil {
		form.Set("priority", strconv.Itoa(*msg.Priority))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushoverMessagesURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pushover: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("pushover: request rejected, status %d", resp.StatusCode)
	}
	return nil
}
