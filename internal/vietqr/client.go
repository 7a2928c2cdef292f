// Package vietqr calls the VietQR generate API to obtain a renderable payment
// QR payload. The caller treats failures as informational: a committed sale is
// never rolled back because the QR could not be produced.
package vietqr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var ErrGenerateFailed = errors.New("vietqr: generate failed")

type Config struct {
	BaseURL     string
	ClientID    string
	APIKey      string
	AccountNo   int64
	AccountName string
	AcqID       int
	Template    string
	Timeout     time.Duration
}

type Client struct {
	cfg Config
	hc  *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.vietqr.io"
	}
	if cfg.Template == "" {
		cfg.Template = "compact2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	AccountNo   int64  `json:"accountNo"`
	AccountName string `json:"accountName"`
	AcqID       int    `json:"acqId"`
	Amount      int64  `json:"amount"`
	AddInfo     string `json:"addInfo"`
	Format      string `json:"format"`
	Template    string `json:"template"`
}

type generateResponse struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data struct {
		QRDataURL string `json:"qrDataURL"`
	} `json:"data"`
}

// GenerateQR requests a QR payload for the given amount. The amount is money
// in VND; VietQR takes whole dong, so fractional parts are truncated.
func (c *Client) GenerateQR(ctx context.Context, amount decimal.Decimal, addInfo string) (string, error) {
	const op = "vietqr.Client.GenerateQR"

	payload := generateRequest{
		AccountNo:   c.cfg.AccountNo,
		AccountName: c.cfg.AccountName,
		AcqID:       c.cfg.AcqID,
		Amount:      amount.IntPart(),
		AddInfo:     addInfo,
		Format:      "text",
		Template:    c.cfg.Template,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: json.Marshal: %w", op, err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.cfg.BaseURL+"/v2/generate",
		bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("%s: http.NewRequestWithContext: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", c.cfg.ClientID)
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: http.Client.Do: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s: status %d: %s: %w", op, resp.StatusCode, rbody, ErrGenerateFailed)
	}

	var reply generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("%s: json.Decode: %w", op, err)
	}

	if reply.Code != "00" {
		return "", fmt.Errorf("%s: code %s (%s): %w", op, reply.Code, reply.Desc, ErrGenerateFailed)
	}

	return reply.Data.QRDataURL, nil
}
