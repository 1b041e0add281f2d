// Package sms delivers verification codes by text message.
package sms

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DefaultMessage is the text sent with a code; %s is replaced by the code.
const DefaultMessage = "کد ورود به سامانه اتحادیه صنفی \n%s"

// Sender delivers a verification code to a phone number. Implementations must not log the code.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// LogSender is used when no SMS provider is configured. It records that a code was issued
// without delivering it; the code itself is only reachable through dev mode.
type LogSender struct {
	Logger *zap.Logger
}

// SendCode logs the phone number (masked) and returns nil.
func (s LogSender) SendCode(_ context.Context, phone, _ string) error {
	if s.Logger != nil {
		s.Logger.Info("sms provider not configured; verification code not delivered",
			zap.String("phone", MaskPhone(phone)))
	}
	return nil
}

// MaskPhone keeps the first four and last two digits, e.g. "0912*****67".
func MaskPhone(phone string) string {
	if len(phone) <= 6 {
		return "***"
	}
	masked := make([]byte, len(phone))
	for i := range phone {
		switch {
		case i < 4, i >= len(phone)-2:
			masked[i] = phone[i]
		default:
			masked[i] = '*'
		}
	}
	return string(masked)
}

func formatMessage(template, code string) string {
	if template == "" {
		template = DefaultMessage
	}
	return fmt.Sprintf(template, code)
}
