package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/eventpay/backend/internal/config"
	"github.com/eventpay/backend/internal/ledger"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// TicketService issues QR entry tickets for joined paid events. A ticket is
// only issued while an active (non-reversed) charge exists for the pair, and
// validation consumes the ticket.
type TicketService struct {
	engine *ledger.Engine
	redis  *redis.Client
	cfg    *config.WalletConfig
}

func NewTicketService(engine *ledger.Engine, redisClient *redis.Client, cfg *config.WalletConfig) *TicketService {
	return &TicketService{
		engine: engine,
		redis:  redisClient,
		cfg:    cfg,
	}
}

func (s *TicketService) GenerateTicket(ctx context.Context, userID, accountID, eventID string) (string, string, error) {
	if s.redis == nil {
		return "", "", fmt.Errorf("ticket storage unavailable")
	}

	charge, err := s.engine.EventCharge(ctx, accountID, eventID)
	if err != nil {
		return "", "", err
	}

	ticketData := map[string]any{
		"userId":        userID,
		"eventId":       eventID,
		"transactionId": charge.ID,
		"timestamp":     time.Now().Unix(),
		"nonce":         s.generateNonce(),
	}

	jsonData, err := json.Marshal(ticketData)
	if err != nil {
		return "", "", err
	}

	ticketCode := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("ticket:%s", ticketCode)
	if err := s.redis.Set(ctx, key, jsonData, s.cfg.TicketTTL).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(ticketCode, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	ticketImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	return ticketCode, ticketImage, nil
}

func (s *TicketService) ValidateTicket(ctx context.Context, ticketCode string) (map[string]any, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("ticket storage unavailable")
	}

	key := fmt.Sprintf("ticket:%s", ticketCode)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired ticket")
	}
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return result, nil
}

func (s *TicketService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
