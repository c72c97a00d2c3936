package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reveller/deuker-monitor/docket"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sampleAlert() Alert {
	return Alert{
		Defendant: "John Deuker",
		NewCharges: []docket.Charge{
			{CaseNumber: "F-25-001234", ChargeDescription: "BURGLARY", ChargeType: "FELONY"},
		},
		NewDockets: []docket.DocketEntry{
			{CaseNumber: "F-25-001234", DIN: "12", Date: "01/15/2025", DocketDescription: "ARREST AFFIDAVIT"},
		},
		Downloaded: []string{"F-25-001234-ARREST-AFFIDAVIT.pdf"},
	}
}

// WHAT: plain-text rendering with SMS-friendly caps.
// WHY: the same body goes to a 160-char-segmented medium; unbounded docket
// lists would fragment into dozens of segments.
func TestAlertText(t *testing.T) {
	a := Alert{
		Defendant: "John Deuker",
		NewDockets: []docket.DocketEntry{
			{DIN: "1", DocketDescription: strings.Repeat("X", 80)},
			{DIN: "2", DocketDescription: "SHORT"},
			{DIN: "3", DocketDescription: "THIRD"},
			{DIN: "4", DocketDescription: "FOURTH"},
			{DIN: "5", DocketDescription: "FIFTH"},
		},
	}
	text := a.Text()

	if !strings.HasPrefix(text, "Court Alert: John Deuker") {
		t.Errorf("missing header: %q", text)
	}
	if !strings.Contains(text, "5 new docket entry(ies):") {
		t.Errorf("missing count line: %q", text)
	}
	if !strings.Contains(text, strings.Repeat("X", 50)+"...") {
		t.Errorf("long description not truncated: %q", text)
	}
	if strings.Contains(text, strings.Repeat("X", 51)) {
		t.Errorf("truncation exceeded limit: %q", text)
	}
	if strings.Contains(text, "FOURTH") || strings.Contains(text, "FIFTH") {
		t.Errorf("item cap not applied: %q", text)
	}
	if !strings.Contains(text, "...and 2 more") {
		t.Errorf("missing remainder line: %q", text)
	}
}

func TestAlertEmpty(t *testing.T) {
	if !(Alert{Defendant: "X"}).Empty() {
		t.Error("alert with no news should be empty")
	}
	if (Alert{Downloaded: []string{"a.pdf"}}).Empty() {
		t.Error("downloaded-only alert should not be empty")
	}
}

type fakeChannel struct {
	name  string
	err   error
	sends int
}

func (f *fakeChannel) Name() string                      { return f.name }
func (f *fakeChannel) Send(context.Context, Alert) error { f.sends++; return f.err }

// WHAT: fan-out continues past failing channels and reports them all.
// WHY: a dead SMS gateway must not suppress the email that would have
// reached the user.
func TestDispatcher_ContinuesOnFailure(t *testing.T) {
	bad := &fakeChannel{name: "sms", err: errors.New("gateway down")}
	good := &fakeChannel{name: "email"}
	d := NewDispatcher(discard(), bad, good)

	err := d.Dispatch(context.Background(), sampleAlert())
	if err == nil || !strings.Contains(err.Error(), "sms") {
		t.Fatalf("err = %v, want sms failure reported", err)
	}
	if good.sends != 1 {
		t.Errorf("email sends = %d, want 1", good.sends)
	}
}

func TestDispatcher_DropsEmptyAlert(t *testing.T) {
	ch := &fakeChannel{name: "email"}
	d := NewDispatcher(discard(), ch)

	if err := d.Dispatch(context.Background(), Alert{Defendant: "X"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if ch.sends != 0 {
		t.Errorf("sends = %d for empty alert", ch.sends)
	}
}

func TestWebhook_SignsAndPosts(t *testing.T) {
	var gotBody []byte
	var gotSig, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Signature-256")
		gotType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	w := NewWebhook(WebhookConfig{URL: srv.URL, Secret: "hmac_key"}, discard())
	if err := w.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotType != "application/json" {
		t.Errorf("content type = %q", gotType)
	}
	mac := hmac.New(sha256.New, []byte("hmac_key"))
	mac.Write(gotBody)
	if want := "sha256=" + hex.EncodeToString(mac.Sum(nil)); gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
	var payload webhookPayload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Defendant != "John Deuker" || len(payload.NewCharges) != 1 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	w := NewWebhook(WebhookConfig{URL: srv.URL}, discard())
	if err := w.Send(context.Background(), sampleAlert()); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestSMS_PostsForm(t *testing.T) {
	var gotPath, gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"sid": "SM123"}`)
	}))
	defer srv.Close()

	s := NewSMS(SMSConfig{
		To: "+13055551234", AccountSID: "AC42", AuthToken: "tok",
		From: "+17865550000", BaseURL: srv.URL,
	}, discard())

	if err := s.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC42/Messages.json" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotBody, "To=%2B13055551234") || !strings.Contains(gotBody, "Body=Court+Alert") {
		t.Errorf("form body = %q", gotBody)
	}
	if !strings.HasPrefix(gotAuth, "Basic ") {
		t.Errorf("auth = %q", gotAuth)
	}
}

func TestSMS_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "invalid number"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewSMS(SMSConfig{AccountSID: "AC42", BaseURL: srv.URL}, discard())
	err := s.Send(context.Background(), sampleAlert())
	if err == nil || !strings.Contains(err.Error(), "invalid number") {
		t.Fatalf("err = %v, want API message surfaced", err)
	}
}

// WHAT: HTML body embeds sanitized portal text only.
// WHY: docket descriptions are scraped markup; anything tag-shaped has to
// be stripped before landing in an email client.
func TestEmailHTMLBody_Sanitizes(t *testing.T) {
	e := NewEmail(EmailConfig{To: "x@example.com"}, discard())
	a := Alert{
		Defendant: "John Deuker",
		NewDockets: []docket.DocketEntry{{
			CaseNumber:        "F-25-001234",
			DIN:               "12",
			DocketDescription: `ORDER <script>alert(1)</script> GRANTING`,
		}},
	}

	body := e.htmlBody(a)
	if strings.Contains(body, "<script>") {
		t.Fatalf("script tag survived sanitization: %s", body)
	}
	if !strings.Contains(body, "ORDER") || !strings.Contains(body, "GRANTING") {
		t.Errorf("legitimate text lost: %s", body)
	}
	if !strings.Contains(body, "Case: F-25-001234") {
		t.Errorf("case grouping missing: %s", body)
	}
}
