package sms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewKavenegarClient_Defaults(t *testing.T) {
	client := NewKavenegarClient("api-key", "", "")
	if client.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %q, want default", client.BaseURL)
	}
	if client.HTTPClient == nil || client.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient timeout not set to %v", defaultTimeout)
	}
	if client.Message != DefaultMessage {
		t.Errorf("Message = %q, want default", client.Message)
	}
	if got := NewKavenegarClient("k", "https://example.test/v1/", "").BaseURL; got != "https://example.test/v1" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", got)
	}
}

func TestSendCode_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.URL.Path != "/test-key/sms/send.json" {
			t.Errorf("path = %q, want /test-key/sms/send.json", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("receptor"); got != "09121234567" {
			t.Errorf("receptor = %q", got)
		}
		if got := r.PostForm.Get("sender"); got != "10004346" {
			t.Errorf("sender = %q", got)
		}
		if got := r.PostForm.Get("message"); !strings.Contains(got, "482913") {
			t.Errorf("message %q does not contain code", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"return":{"status":200,"message":"تایید شد"},"entries":[{"messageid":1}]}`))
	}))
	defer server.Close()

	client := NewKavenegarClient("test-key", server.URL, "10004346")
	if err := client.SendCode(context.Background(), "09121234567", "482913"); err != nil {
		t.Fatalf("SendCode: %v", err)
	}
}

func TestSendCode_Failures(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusUnauthorized, `{"return":{"status":401,"message":"invalid key"}}`},
		{"provider error", http.StatusOK, `{"return":{"status":418,"message":"credit"}}`},
		{"bad json", http.StatusOK, `not json`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewKavenegarClient("k", server.URL, "")
			if err := client.SendCode(context.Background(), "09121234567", "000000"); err == nil {
				t.Fatal("SendCode should return error")
			}
		})
	}
}

func TestSendCode_NoAPIKey(t *testing.T) {
	client := NewKavenegarClient("", "", "")
	if err := client.SendCode(context.Background(), "09121234567", "000000"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestSendCode_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewKavenegarClient("k", server.URL, "")
	client.HTTPClient.Timeout = 20 * time.Millisecond
	if err := client.SendCode(context.Background(), "09121234567", "000000"); err == nil {
		t.Fatal("SendCode should time out")
	}
}

func TestMaskPhone(t *testing.T) {
	testCases := map[string]string{
		"09121234567": "0912*****67",
		"12345":       "***",
		"":            "***",
	}
	for in, want := range testCases {
		if got := MaskPhone(in); got != want {
			t.Errorf("MaskPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogSender(t *testing.T) {
	if err := (LogSender{}).SendCode(context.Background(), "09121234567", "123456"); err != nil {
		t.Fatalf("LogSender.SendCode: %v", err)
	}
}
