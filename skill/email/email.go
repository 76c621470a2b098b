// Package email exposes mailbox operations as capabilities. Reading uses
// IMAP over TLS, sending uses SMTP with STARTTLS. Each operation opens its
// own short-lived connection, so a dead session never wedges the provider.
package email

import (
	"context"
	"fmt"
	"io"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/hupe1980/aide/capability"
	"github.com/hupe1980/aide/config"
	"github.com/hupe1980/aide/logging"
)

const (
	providerName = "email"

	defaultListCount = 10
	maxBodyChars     = 4000
)

// Options configures the email provider.
type Options struct {
	// Mailbox is the IMAP mailbox operated on. Defaults to INBOX.
	Mailbox string

	Logger logging.Logger
}

// Provider implements capability.Provider for a single email account.
type Provider struct {
	imapAddr string
	smtpAddr string
	smtpHost string
	address  string
	password string
	mailbox  string
	logger   logging.Logger
}

// New creates an email provider from account configuration.
func New(cfg config.Config, optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{
		Mailbox: "INBOX",
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if cfg.EmailAddress == "" || cfg.EmailPassword == "" {
		return nil, fmt.Errorf("email address and password are required")
	}

	return &Provider{
		imapAddr: fmt.Sprintf("%s:%d", cfg.EmailIMAPHost, cfg.EmailIMAPPort),
		smtpAddr: fmt.Sprintf("%s:%d", cfg.EmailSMTPHost, cfg.EmailSMTPPort),
		smtpHost: cfg.EmailSMTPHost,
		address:  cfg.EmailAddress,
		password: cfg.EmailPassword,
		mailbox:  opts.Mailbox,
		logger:   opts.Logger,
	}, nil
}

// Name implements capability.Provider.
func (p *Provider) Name() string { return providerName }

// Capabilities implements capability.Provider.
func (p *Provider) Capabilities() []capability.Capability {
	return []capability.Capability{
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "list"),
				Description: "List the most recent emails in the inbox with their message numbers.",
				Params: map[string]capability.Param{
					"count": {Type: capability.TypeInteger, Description: "How many emails to list, newest first"},
				},
			},
			Func: p.list,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "read"),
				Description: "Read one email by its message number.",
				Params: map[string]capability.Param{
					"number": {Type: capability.TypeInteger, Description: "Message number from email__list", Required: true},
				},
			},
			Func: p.read,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "search"),
				Description: "Search the inbox for emails containing the given text.",
				Params: map[string]capability.Param{
					"query": {Type: capability.TypeString, Description: "Text to search for", Required: true},
				},
			},
			Func: p.search,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "send"),
				Description: "Send an email from the configured account.",
				Params: map[string]capability.Param{
					"to":      {Type: capability.TypeString, Description: "Recipient address", Required: true},
					"subject": {Type: capability.TypeString, Description: "Subject line", Required: true},
					"body":    {Type: capability.TypeString, Description: "Plain text body", Required: true},
				},
				RequiresConfirmation: true,
			},
			Func: p.send,
		},
		{
			Descriptor: capability.Descriptor{
				Name:        capability.QualifiedName(providerName, "delete"),
				Description: "Delete one email by its message number. Irreversible.",
				Params: map[string]capability.Param{
					"number": {Type: capability.TypeInteger, Description: "Message number from email__list", Required: true},
				},
				RequiresConfirmation: true,
			},
			Func: p.delete,
		},
	}
}

// connect dials the IMAP server, authenticates and selects the mailbox. The
// caller must Logout the returned client.
func (p *Provider) connect() (*client.Client, *imap.MailboxStatus, error) {
	c, err := client.DialTLS(p.imapAddr, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap server: %w", err)
	}
	if err := c.Login(p.address, p.password); err != nil {
		_ = c.Logout()
		return nil, nil, fmt.Errorf("imap login: %w", err)
	}
	mbox, err := c.Select(p.mailbox, false)
	if err != nil {
		_ = c.Logout()
		return nil, nil, fmt.Errorf("select mailbox %s: %w", p.mailbox, err)
	}
	return c, mbox, nil
}

func intArg(args map[string]any, key string) (uint32, bool) {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return uint32(v), true
		}
	case int:
		if v > 0 {
			return uint32(v), true
		}
	}
	return 0, false
}

func (p *Provider) list(_ context.Context, args map[string]any) (string, error) {
	count := uint32(defaultListCount)
	if n, ok := intArg(args, "count"); ok {
		count = n
	}

	c, mbox, err := p.connect()
	if err != nil {
		return "", err
	}
	defer c.Logout()

	if mbox.Messages == 0 {
		return "Inbox is empty.", nil
	}

	from := uint32(1)
	if mbox.Messages > count {
		from = mbox.Messages - count + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	messages := make(chan *imap.Message, count)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags}, messages)
	}()

	var lines []string
	for msg := range messages {
		lines = append(lines, summarizeEnvelope(msg))
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("fetch envelopes: %w", err)
	}

	// Newest first.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n"), nil
}

func (p *Provider) read(_ context.Context, args map[string]any) (string, error) {
	number, ok := intArg(args, "number")
	if !ok {
		return "", fmt.Errorf("number must be a positive message number")
	}

	c, mbox, err := p.connect()
	if err != nil {
		return "", err
	}
	defer c.Logout()

	if number > mbox.Messages {
		return "", fmt.Errorf("message %d does not exist, mailbox has %d messages", number, mbox.Messages)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(number)

	section := &imap.BodySectionName{BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier}, Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var out string
	for msg := range messages {
		var b strings.Builder
		b.WriteString(summarizeEnvelope(msg))
		b.WriteString("\n\n")
		if body := msg.GetBody(section); body != nil {
			text, readErr := io.ReadAll(io.LimitReader(body, maxBodyChars))
			if readErr == nil {
				b.Write(text)
			}
		}
		out = b.String()
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("fetch message: %w", err)
	}
	if out == "" {
		return "", fmt.Errorf("message %d could not be fetched", number)
	}
	return out, nil
}

func (p *Provider) search(_ context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}

	c, _, err := p.connect()
	if err != nil {
		return "", err
	}
	defer c.Logout()

	criteria := imap.NewSearchCriteria()
	criteria.Text = []string{query}

	nums, err := c.Search(criteria)
	if err != nil {
		return "", fmt.Errorf("imap search: %w", err)
	}
	if len(nums) == 0 {
		return "No emails matched the query.", nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(nums...)

	messages := make(chan *imap.Message, len(nums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	var lines []string
	for msg := range messages {
		lines = append(lines, summarizeEnvelope(msg))
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("fetch search results: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

func (p *Provider) send(_ context.Context, args map[string]any) (string, error) {
	to, _ := args["to"].(string)
	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)

	if !strings.Contains(to, "@") {
		return "", fmt.Errorf("invalid recipient address %q", to)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\n\r\n%s\r\n",
		p.address, to, subject, time.Now().Format(time.RFC1123Z), body)

	auth := smtp.PlainAuth("", p.address, p.password, p.smtpHost)
	if err := smtp.SendMail(p.smtpAddr, auth, p.address, []string{to}, []byte(msg)); err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}

	p.logger.Info("email.sent", "to", to, "subject", subject)
	return fmt.Sprintf("Email sent to %s", to), nil
}

func (p *Provider) delete(_ context.Context, args map[string]any) (string, error) {
	number, ok := intArg(args, "number")
	if !ok {
		return "", fmt.Errorf("number must be a positive message number")
	}

	c, mbox, err := p.connect()
	if err != nil {
		return "", err
	}
	defer c.Logout()

	if number > mbox.Messages {
		return "", fmt.Errorf("message %d does not exist, mailbox has %d messages", number, mbox.Messages)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(number)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.Store(seqset, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return "", fmt.Errorf("flag message deleted: %w", err)
	}
	if err := c.Expunge(nil); err != nil {
		return "", fmt.Errorf("expunge mailbox: %w", err)
	}

	p.logger.Info("email.deleted", "number", number)
	return fmt.Sprintf("Deleted message %d", number), nil
}

// summarizeEnvelope renders one message as "#seq  date  from  subject".
func summarizeEnvelope(msg *imap.Message) string {
	if msg.Envelope == nil {
		return fmt.Sprintf("#%d  (no envelope)", msg.SeqNum)
	}

	from := "(unknown sender)"
	if len(msg.Envelope.From) > 0 {
		from = msg.Envelope.From[0].Address()
	}

	subject := msg.Envelope.Subject
	if subject == "" {
		subject = "(no subject)"
	}

	return fmt.Sprintf("#%d  %s  %s  %s",
		msg.SeqNum, msg.Envelope.Date.Format("2006-01-02 15:04"), from, subject)
}
