// Package otp computes TOTP codes for entries carrying an otpauth URL and
// pushes periodic updates to the shell while an entry form is visible.
package otp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/okpass/mobilecore/internal/callback"
	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/logging"
)

// Token is one computed code with its validity window.
type Token struct {
	Code          string `json:"code"`
	Period        uint64 `json:"period"`
	RemainingSecs uint64 `json:"remaining_secs"`
}

// GenerateToken computes the current code for an otpauth:// URL.
func GenerateToken(otpURL string) (*Token, error) {
	if !strings.HasPrefix(otpURL, "otpauth://") {
		return nil, fmt.Errorf("%w: not an otpauth url", common.ErrInvalidArgument)
	}
	key, err := otp.NewKeyFromURL(otpURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse otp url: %v", common.ErrInvalidArgument, err)
	}
	if key.Secret() == "" {
		return nil, fmt.Errorf("%w: otp url has no secret", common.ErrInvalidArgument)
	}

	period := key.Period()
	if period == 0 {
		period = 30
	}
	digits := key.Digits()
	if digits == 0 {
		digits = otp.DigitsSix
	}

	now := time.Now()
	code, err := totp.GenerateCodeCustom(key.Secret(), now, totp.ValidateOpts{
		Period:    uint(period),
		Digits:    digits,
		Algorithm: key.Algorithm(),
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp: %w", err)
	}

	elapsed := uint64(now.Unix()) % period
	return &Token{
		Code:          code,
		Period:        period,
		RemainingSecs: period - elapsed,
	}, nil
}

// TokenService owns the background ticker for the currently shown entry.
// At most one entry is watched at a time; starting a new watch stops the
// previous one.
type TokenService struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	events callback.EventDispatcher
	logger logging.Logger
}

func NewTokenService(events callback.EventDispatcher, logger logging.Logger) *TokenService {
	return &TokenService{events: events, logger: logger}
}

type update struct {
	EntryUUID string `json:"entry_uuid"`
	Token     *Token `json:"token,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Start begins publishing a token update for entryUUID every second. The
// first update is sent immediately.
func (s *TokenService) Start(entryUUID, otpURL string) error {
	// reject bad urls before spinning anything up
	if _, err := GenerateToken(otpURL); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.run(ctx, entryUUID, otpURL)
	return nil
}

// Stop halts the ticker, if any.
func (s *TokenService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *TokenService) run(ctx context.Context, entryUUID, otpURL string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	s.publish(ctx, entryUUID, otpURL)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish(ctx, entryUUID, otpURL)
		}
	}
}

func (s *TokenService) publish(ctx context.Context, entryUUID, otpURL string) {
	if s.events == nil {
		return
	}
	msg := update{EntryUUID: entryUUID}
	token, err := GenerateToken(otpURL)
	if err != nil {
		msg.Error = err.Error()
	} else {
		msg.Token = token
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(ctx, "encode otp update", "error", err)
		return
	}
	s.events.SendOtpUpdate(string(payload))
}
