// Package notify mails out letters that showed up since the previous refresh.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"schulmanager-online/internal/components/telemetry"
	"schulmanager-online/internal/coordinator"
	"schulmanager-online/internal/snapshot"
)

const (
	report_notify_send = "letters.send"
)

const sendTimeout = time.Minute

// LetterNotifier remembers which letters it has already seen and sends one
// message per refresh listing the unread letters that are new. The first
// snapshot it sees only establishes the baseline.
type LetterNotifier struct {
	store  *snapshot.Store
	sender Sender
	tel    telemetry.API

	mutex  sync.Mutex
	seen   map[string]struct{}
	primed bool
}

func NewLetterNotifier(store *snapshot.Store, sender Sender, tel telemetry.API) *LetterNotifier {
	return &LetterNotifier{
		store:  store,
		sender: sender,
		tel:    telemetry.NewScopedAPI("notify", tel),
		seen:   map[string]struct{}{},
	}
}

// OnRefresh is meant to be registered with Coordinator.OnRefresh.
func (n *LetterNotifier) OnRefresh(status coordinator.Status) {
	if !status.LastUpdateSuccess {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	err := n.Notify(ctx, n.store.Latest())
	if err != nil {
		n.tel.ReportWarning(report_notify_send, err)
	}
}

// Notify sends a message for the unread letters in snap that were not part of
// any snapshot passed before.
func (n *LetterNotifier) Notify(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return nil
	}

	n.mutex.Lock()
	var fresh []snapshot.Letter
	seen := make(map[string]struct{}, len(snap.Letters))
	for _, letter := range snap.Letters {
		seen[letter.ID] = struct{}{}
		if _, ok := n.seen[letter.ID]; ok || letter.Read {
			continue
		}
		fresh = append(fresh, letter)
	}
	n.seen = seen
	primed := n.primed
	n.primed = true
	n.mutex.Unlock()

	if !primed || len(fresh) == 0 {
		return nil
	}
	subject, body := Compose(fresh)
	return n.sender.Send(ctx, subject, body)
}

// Compose renders the subject and body for a list of new letters.
func Compose(letters []snapshot.Letter) (subject, body string) {
	if len(letters) == 1 {
		subject = "New letter: " + letters[0].Title
	} else {
		subject = fmt.Sprintf("%d new letters", len(letters))
	}

	var sb strings.Builder
	for _, letter := range letters {
		sb.WriteString("- ")
		sb.WriteString(letter.Title)
		if letter.CreatedAt != "" {
			fmt.Fprintf(&sb, " (%s)", letter.CreatedAt)
		}
		sb.WriteString("\n")
	}
	return subject, sb.String()
}
