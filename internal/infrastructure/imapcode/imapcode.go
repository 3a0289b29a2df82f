// Package imapcode reads the booking confirmation code from an IMAP inbox.
package imapcode

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/example/recreserve/internal/domain/reservation"
)

const (
	DefaultPort    = 993
	DefaultPattern = `\b(\d{6})\b`
	dialTimeout    = 30 * time.Second
	maxCandidates  = 10
)

// Client is the subset of *client.Client the retriever uses.
type Client interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Logout() error
	Terminate() error
}

type Config struct {
	Server   string
	Port     int
	Email    string
	Password string

	// Sender and Subject identify the confirmation mail. At least one is
	// required; Subject is a case-insensitive substring.
	Sender  string
	Subject string
	// Pattern finds the code; the first capture group is used when present.
	Pattern *regexp.Regexp

	// Dial opens a connection; defaults to implicit TLS.
	Dial   func(addr string) (Client, error)
	Now    func() time.Time
	Logger *slog.Logger
}

// Retriever is a reservation.CodeRetriever. Every FetchCode opens and closes
// its own session.
type Retriever struct {
	cfg Config
}

func New(cfg Config) (*Retriever, error) {
	if cfg.Server == "" {
		return nil, errors.New("imap server is required")
	}
	if cfg.Email == "" || cfg.Password == "" {
		return nil, errors.New("imap credentials are required")
	}
	if cfg.Sender == "" && cfg.Subject == "" {
		return nil, errors.New("imap: a confirmation sender or subject is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Pattern == nil {
		cfg.Pattern = regexp.MustCompile(DefaultPattern)
	}
	if cfg.Dial == nil {
		cfg.Dial = dialTLS
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Retriever{cfg: cfg}, nil
}

func dialTLS(addr string) (Client, error) {
	host, _, _ := net.SplitHostPort(addr)
	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: dialTimeout}, addr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Retriever) Name() string { return "imap" }

// Ping logs in and selects the inbox.
func (r *Retriever) Ping(ctx context.Context) error {
	return r.session(ctx, func(Client) error { return nil })
}

// FetchCode returns the code from the newest unread confirmation mail, or ""
// when there is none yet. Candidates are read with BODY.PEEK[]; only the mail
// that yields the code is flagged \Seen, so later slots never reuse it and
// unrelated mail stays unread.
func (r *Retriever) FetchCode(ctx context.Context) (string, error) {
	var code string
	err := r.session(ctx, func(c Client) error {
		uids, err := c.UidSearch(r.criteria())
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		if len(uids) == 0 {
			return nil
		}
		slices.SortFunc(uids, func(a, b uint32) int { return cmp.Compare(b, a) })
		if len(uids) > maxCandidates {
			uids = uids[:maxCandidates]
		}

		bodies, err := peekBodies(c, uids)
		if err != nil {
			return err
		}
		for _, uid := range uids {
			body, ok := bodies[uid]
			if !ok {
				continue
			}
			m, err := parseMail(body)
			if err != nil {
				r.cfg.Logger.Warn("unreadable mail skipped", "uid", uid, "err", err)
				continue
			}
			if !r.matches(m) {
				r.cfg.Logger.Debug("mail skipped", "uid", uid, "subject", m.Subject)
				continue
			}
			found := ExtractCode(r.cfg.Pattern, m.Text)
			if found == "" {
				continue
			}
			if err := markSeen(c, uid); err != nil {
				return fmt.Errorf("mark uid %d seen: %w", uid, err)
			}
			r.cfg.Logger.Debug("confirmation mail read", "uid", uid)
			code = found
			return nil
		}
		return nil
	})
	return code, err
}

func (r *Retriever) criteria() *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	now := r.cfg.Now()
	criteria.Since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if r.cfg.Sender != "" {
		criteria.Header.Add("From", r.cfg.Sender)
	}
	if r.cfg.Subject != "" {
		criteria.Header.Add("Subject", r.cfg.Subject)
	}
	return criteria
}

// matches re-checks the search filters on the parsed headers; servers treat
// header searches as loose substring matches.
func (r *Retriever) matches(m parsedMail) bool {
	if r.cfg.Sender != "" && !slices.ContainsFunc(m.From, func(addr string) bool {
		return strings.EqualFold(addr, r.cfg.Sender)
	}) {
		return false
	}
	if r.cfg.Subject != "" && !strings.Contains(strings.ToLower(m.Subject), strings.ToLower(r.cfg.Subject)) {
		return false
	}
	return true
}

func peekBodies(c Client, uids []uint32) (map[uint32]imap.Literal, error) {
	set := new(imap.SeqSet)
	set.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() { done <- c.UidFetch(set, []imap.FetchItem{imap.FetchUid, section.FetchItem()}, ch) }()

	bodies := make(map[uint32]imap.Literal, len(uids))
	for msg := range ch {
		if b := msg.GetBody(section); b != nil {
			bodies[msg.Uid] = b
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return bodies, nil
}

func markSeen(c Client, uid uint32) error {
	set := new(imap.SeqSet)
	set.AddNum(uid)
	return c.UidStore(set, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.SeenFlag}, nil)
}

func (r *Retriever) session(ctx context.Context, fn func(Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(r.cfg.Server, strconv.Itoa(r.cfg.Port))
	c, err := r.cfg.Dial(addr)
	if err != nil {
		return fmt.Errorf("imap dial %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer func() {
		if stop() {
			_ = c.Logout()
		}
	}()

	if err := c.Login(r.cfg.Email, r.cfg.Password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select("INBOX", false); err != nil {
		return fmt.Errorf("imap select: %w", err)
	}
	if err := fn(c); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// ExtractCode returns the first match of pattern in text, or its first
// capture group when the pattern has one.
func ExtractCode(pattern *regexp.Regexp, text string) string {
	m := pattern.FindStringSubmatch(text)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return m[1]
	default:
		return m[0]
	}
}

type parsedMail struct {
	From    []string
	Subject string
	Text    string
}

// parseMail reads the sender and subject and flattens the text parts of a
// message. HTML parts are reduced to their visible text.
func parseMail(r io.Reader) (parsedMail, error) {
	var m parsedMail
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return m, err
	}
	defer mr.Close()

	if addrs, err := mr.Header.AddressList("From"); err == nil {
		for _, a := range addrs {
			m.From = append(m.From, a.Address)
		}
	}
	m.Subject, _ = mr.Header.Subject()

	var sb strings.Builder
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			m.Text = sb.String()
			return m, err
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		switch ct {
		case "text/plain":
			b, err := io.ReadAll(p.Body)
			if err != nil {
				m.Text = sb.String()
				return m, err
			}
			sb.Write(b)
		case "text/html":
			doc, err := goquery.NewDocumentFromReader(p.Body)
			if err != nil {
				m.Text = sb.String()
				return m, err
			}
			doc.Find("script, style").Remove()
			sb.WriteString(doc.Text())
		}
		sb.WriteByte('\n')
	}
	m.Text = sb.String()
	return m, nil
}

var _ reservation.CodeRetriever = (*Retriever)(nil)
