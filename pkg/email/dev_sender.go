package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeFilename = regexp.MustCompile(`[^a-z0-9\-_.]`)

// DevSender writes each message as an .html body plus a .json envelope.
type DevSender struct {
	dir string
	now func() time.Time
}

func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir, now: time.Now}
}

func (d *DevSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir: %v", ErrFailedToSendEmail, err)
	}

	now := d.now()
	name := msg.Tag
	if name == "" {
		name = msg.Subject
	}
	base := filepath.Join(d.dir, now.Format("2006_01_02_150405.000")+"_"+safeName(name))

	if err := os.WriteFile(base+".html", []byte(msg.BodyHTML), 0o644); err != nil {
		return fmt.Errorf("%w: write body: %v", ErrFailedToSendEmail, err)
	}
	meta, err := json.MarshalIndent(struct {
		Message
		SentAt time.Time `json:"sent_at"`
	}{msg, now}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %v", ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(base+".json", meta, 0o644); err != nil {
		return fmt.Errorf("%w: write envelope: %v", ErrFailedToSendEmail, err)
	}
	return nil
}

func safeName(s string) string {
	s = unsafeFilename.ReplaceAllString(strings.ReplaceAll(strings.ToLower(s), " ", "_"), "")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		return "email"
	}
	return s
}
