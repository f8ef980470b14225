package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailterm/internal/model"
)

// flagDone is the IMAP keyword used to mark a message as done.
// Servers that do not support custom keywords simply never report it.
const flagDone = imap.Flag("$Done")

const (
	defaultPollInterval = 30 * time.Second
	snapshotWindow      = 30 // days of history in the initial snapshot
	snippetLimit        = 120
)

// IMAPSource implements Source over an IMAP mailbox. The server does
// not push structured deltas, so each subscription takes a full fetch
// on connect and then diffs successive fetches to synthesize change
// events. Overlay state never reaches the wire; only server-reported
// flags appear in the emitted entities.
type IMAPSource struct {
	host         string
	port         string
	username     string
	password     string
	mailbox      string
	tls          bool
	pollInterval time.Duration
}

// NewIMAPSource creates an IMAP-backed realtime source. The password
// comes from the credential store, never from config.
func NewIMAPSource(cfg model.IMAPConfig, password string) *IMAPSource {
	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &IMAPSource{
		host:         cfg.Host,
		port:         cfg.Port,
		username:     cfg.Username,
		password:     password,
		mailbox:      mailbox,
		tls:          cfg.TLS,
		pollInterval: defaultPollInterval,
	}
}

// Subscribe connects, authenticates, selects the mailbox, and starts a
// goroutine that emits a snapshot followed by synthesized deltas. The
// subscription ends with a DropEvent on any transport error; the
// caller is expected to resubscribe.
func (s *IMAPSource) Subscribe(
	ctx context.Context, f Filter,
) (Subscription, error) {
	client, err := s.connect()
	if err != nil {
		return nil, err
	}

	sub := &imapSubscription{
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	go sub.run(ctx, client, s, f)
	return sub, nil
}

func (s *IMAPSource) connect() (*imapclient.Client, error) {
	addr := s.host + ":" + s.port

	var client *imapclient.Client
	var err error

	if s.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(s.username, s.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf(
			"authenticating %s: %w", s.username, err,
		)
	}

	if _, err := client.Select(s.mailbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", s.mailbox, err)
	}

	return client, nil
}

type imapSubscription struct {
	events chan Event
	done   chan struct{}
	closed bool
}

func (s *imapSubscription) Events() <-chan Event { return s.events }

func (s *imapSubscription) Close() error {
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *imapSubscription) run(
	ctx context.Context,
	client *imapclient.Client,
	src *IMAPSource,
	f Filter,
) {
	defer close(s.events)
	defer func() { _ = client.Logout().Wait() }()

	known, entities, err := src.fetchEntities(client, f, nil)
	if err != nil {
		s.emit(ctx, DropEvent{Err: err})
		return
	}
	if !s.emit(ctx, SnapshotEvent{Entities: entities}) {
		return
	}

	ticker := time.NewTicker(src.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
		}

		next, fresh, err := src.fetchEntities(client, f, known)
		if err != nil {
			s.emit(ctx, DropEvent{Err: err})
			return
		}

		for _, e := range fresh {
			prev, seen := known[e.ID]
			switch {
			case !seen:
				if !s.emit(ctx, ChangeEvent{Type: ChangeAdded, Entity: e}) {
					return
				}
			case prev.IsRead != e.IsRead ||
				prev.IsDone != e.IsDone ||
				prev.IsDeleted != e.IsDeleted ||
				prev.Category != e.Category:
				if !s.emit(ctx, ChangeEvent{Type: ChangeModified, Entity: e}) {
					return
				}
			}
		}
		for id, prev := range known {
			if _, still := next[id]; !still {
				if !s.emit(ctx, ChangeEvent{
					Type:   ChangeRemoved,
					Entity: model.Entity{ID: id, Kind: prev.Kind},
				}) {
					return
				}
			}
		}
		known = next
	}
}

func (s *imapSubscription) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

// fetchEntities searches the selected mailbox for recent messages and
// returns them keyed by entity ID. Snippets are only fetched for UIDs
// absent from prev, so steady-state polls stay envelope-only.
func (s *IMAPSource) fetchEntities(
	client *imapclient.Client,
	f Filter,
	prev map[string]model.Entity,
) (map[string]model.Entity, []model.Entity, error) {
	since := time.Now().AddDate(0, 0, -snapshotWindow)
	searchData, err := client.UIDSearch(&imap.SearchCriteria{
		Since: since,
	}, nil).Wait()
	if err != nil {
		return nil, nil, fmt.Errorf("searching %s: %w", s.mailbox, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return map[string]model.Entity{}, nil, nil
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
	})
	defer fetchCmd.Close()

	byID := make(map[string]model.Entity, len(uids))
	var ordered []model.Entity
	var snippetWanted []imap.UID

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		e := s.entityFromBuffer(buf)
		if !matchesFilter(f, e) {
			continue
		}
		if old, ok := prev[e.ID]; ok {
			e.Snippet = old.Snippet
		} else {
			snippetWanted = append(snippetWanted, buf.UID)
		}
		byID[e.ID] = e
		ordered = append(ordered, e)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, nil, fmt.Errorf("fetching messages: %w", err)
	}

	if len(snippetWanted) > 0 {
		snippets := s.fetchSnippets(client, snippetWanted)
		for i := range ordered {
			if sn, ok := snippets[ordered[i].ID]; ok {
				ordered[i].Snippet = sn
				byID[ordered[i].ID] = ordered[i]
			}
		}
	}

	return byID, ordered, nil
}

// fetchSnippets pulls message bodies for the given UIDs and extracts a
// short plain-text preview from each. Failures are silently skipped;
// a missing snippet is cosmetic.
func (s *IMAPSource) fetchSnippets(
	client *imapclient.Client, uids []imap.UID,
) map[string]string {
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	snippets := make(map[string]string, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			continue
		}
		id := s.entityID(buf.UID)
		snippets[id] = textSnippet(raw)
	}
	_ = fetchCmd.Close()
	return snippets
}

func (s *IMAPSource) entityID(uid imap.UID) string {
	return fmt.Sprintf("%s/%d", s.mailbox, uid)
}

func (s *IMAPSource) entityFromBuffer(
	buf *imapclient.FetchMessageBuffer,
) model.Entity {
	e := model.Entity{
		ID:         s.entityID(buf.UID),
		Kind:       model.KindEmail,
		ReceivedAt: buf.InternalDate,
		FetchedAt:  time.Now(),
	}

	if buf.Envelope != nil {
		e.Subject = buf.Envelope.Subject
		if !buf.Envelope.Date.IsZero() {
			e.ReceivedAt = buf.Envelope.Date
		}
		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			if from.Name != "" {
				e.From = from.Name
			} else {
				e.From = from.Addr()
			}
		}
		e.ThreadID = buf.Envelope.MessageID
	}

	for _, flag := range buf.Flags {
		switch flag {
		case imap.FlagSeen:
			e.IsRead = true
		case imap.FlagDeleted:
			e.IsDeleted = true
		case flagDone:
			e.IsDone = true
		}
	}

	switch {
	case e.IsDeleted:
		e.Category = model.CategoryTrash
	case e.IsDone:
		e.Category = model.CategoryDone
	default:
		e.Category = model.CategoryInbox
	}
	e.UpdatedAt = e.ReceivedAt

	return e
}

func matchesFilter(f Filter, e model.Entity) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.UnreadOnly && e.IsRead {
		return false
	}
	return true
}

// textSnippet parses a raw RFC 2822 body and returns a short preview
// of its text/plain part. Malformed messages fall back to treating the
// raw bytes as plain text.
func textSnippet(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return truncateSnippet(string(raw))
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if !strings.HasPrefix(contentType, "text/plain") {
			continue
		}
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}
		return truncateSnippet(string(body))
	}
	return ""
}

func truncateSnippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > snippetLimit {
		return string(runes[:snippetLimit-1]) + "…"
	}
	return s
}
