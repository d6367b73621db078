package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// api is the subset of the Lark open platform the channel uses. The real
// implementation wraps the SDK client; tests substitute a fake.
type api interface {
	SendText(ctx context.Context, chatID, text string) (string, error)
	SendCard(ctx context.Context, chatID, card string) (string, error)
	PatchCard(ctx context.Context, messageID, card string) error
	DeleteMessage(ctx context.Context, messageID string) error
	SendImage(ctx context.Context, chatID, imageKey string) (string, error)
	UploadImage(ctx context.Context, r io.Reader) (string, error)
	BotInfo(ctx context.Context) (openID, name string, err error)
}

const openBaseURL = "https://open.feishu.cn"

// apiClient is the real api implementation over the SDK client.
type apiClient struct {
	client    *lark.Client
	appID     string
	appSecret string
	httpCli   *http.Client
}

var _ api = (*apiClient)(nil)

func newAPIClient(appID, appSecret string) *apiClient {
	return &apiClient{
		client:    lark.NewClient(appID, appSecret),
		appID:     appID,
		appSecret: appSecret,
		httpCli:   &http.Client{Timeout: 15 * time.Second},
	}
}

// SendText sends one plain text message to a chat.
func (a *apiClient) SendText(ctx context.Context, chatID, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("lark: marshal text content: %w", err)
	}
	return a.createMessage(ctx, chatID, larkim.MsgTypeText, string(payload))
}

// SendCard sends an interactive card message to a chat.
func (a *apiClient) SendCard(ctx context.Context, chatID, card string) (string, error) {
	return a.createMessage(ctx, chatID, larkim.MsgTypeInteractive, card)
}

func (a *apiClient) createMessage(ctx context.Context, chatID, msgType, content string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Uuid(uuid.New().String()).
			Build()).
		Build()

	resp, err := a.client.Im.V1.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("lark: create message: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("lark: create message: api error code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.MessageId == nil {
		return "", fmt.Errorf("lark: create message: empty response")
	}
	return *resp.Data.MessageId, nil
}

// PatchCard updates an interactive card message in place.
func (a *apiClient) PatchCard(ctx context.Context, messageID, card string) error {
	req := larkim.NewPatchMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewPatchMessageReqBodyBuilder().
			Content(card).
			Build()).
		Build()

	resp, err := a.client.Im.V1.Message.Patch(ctx, req)
	if err != nil {
		return fmt.Errorf("lark: patch message %s: %w", messageID, err)
	}
	if !resp.Success() {
		return fmt.Errorf("lark: patch message %s: api error code=%d msg=%s", messageID, resp.Code, resp.Msg)
	}
	return nil
}

// DeleteMessage recalls a previously sent message.
func (a *apiClient) DeleteMessage(ctx context.Context, messageID string) error {
	req := larkim.NewDeleteMessageReqBuilder().
		MessageId(messageID).
		Build()

	resp, err := a.client.Im.V1.Message.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("lark: delete message %s: %w", messageID, err)
	}
	if !resp.Success() {
		return fmt.Errorf("lark: delete message %s: api error code=%d msg=%s", messageID, resp.Code, resp.Msg)
	}
	return nil
}

// SendImage sends an already-uploaded image to a chat.
func (a *apiClient) SendImage(ctx context.Context, chatID, imageKey string) (string, error) {
	payload, err := json.Marshal(map[string]string{"image_key": imageKey})
	if err != nil {
		return "", fmt.Errorf("lark: marshal image content: %w", err)
	}
	return a.createMessage(ctx, chatID, larkim.MsgTypeImage, string(payload))
}

// UploadImage uploads image bytes and returns the resulting image key.
func (a *apiClient) UploadImage(ctx context.Context, r io.Reader) (string, error) {
	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType(larkim.ImageTypeMessage).
			Image(r).
			Build()).
		Build()

	resp, err := a.client.Im.V1.Image.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("lark: upload image: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("lark: upload image: api error code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.ImageKey == nil {
		return "", fmt.Errorf("lark: upload image: empty response")
	}
	return *resp.Data.ImageKey, nil
}

// BotInfo fetches the bot's own open_id and display name. The bot info
// endpoint is not covered by the SDK, so it is called directly with a
// tenant access token.
func (a *apiClient) BotInfo(ctx context.Context) (string, string, error) {
	token, err := a.tenantAccessToken(ctx)
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openBaseURL+"/open-apis/bot/v3/info", nil)
	if err != nil {
		return "", "", fmt.Errorf("lark: bot info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpCli.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("lark: bot info: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("lark: decode bot info: %w", err)
	}
	if result.Code != 0 {
		return "", "", fmt.Errorf("lark: bot info: api error code=%d msg=%s", result.Code, result.Msg)
	}
	return result.Bot.OpenID, result.Bot.AppName, nil
}

func (a *apiClient) tenantAccessToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"app_id":     a.appID,
		"app_secret": a.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("lark: marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		openBaseURL+"/open-apis/auth/v3/tenant_access_token/internal",
		bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("lark: token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpCli.Do(req)
	if err != nil {
		return "", fmt.Errorf("lark: tenant access token: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("lark: decode token response: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("lark: tenant access token: api error code=%d msg=%s", result.Code, result.Msg)
	}
	if strings.TrimSpace(result.TenantAccessToken) == "" {
		return "", fmt.Errorf("lark: tenant access token: empty token")
	}
	return result.TenantAccessToken, nil
}
