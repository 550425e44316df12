package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/suspectuso/proxipay/internal/presence"
)

// Sender delivers a text message to a chat.
type Sender interface {
	SendNotification(ctx context.Context, chatID int64, text string) error
}

// Notifier tells operators about conditions that need a human: a radio
// role that failed, or a backend that stopped answering.
type Notifier struct {
	sender    Sender
	operators []int64
	log       *slog.Logger
}

// New creates a Notifier for the given operator chats.
func New(sender Sender, operators map[int64]bool, log *slog.Logger) *Notifier {
	ids := make([]int64, 0, len(operators))
	for id, ok := range operators {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return &Notifier{
		sender:    sender,
		operators: ids,
		log:       log,
	}
}

// Broadcast sends text to every operator.
func (n *Notifier) Broadcast(ctx context.Context, text string) {
	for _, id := range n.operators {
		if err := n.sender.SendNotification(ctx, id, text); err != nil {
			n.log.Error("send notification", "chat_id", id, "error", err)
		}
	}
}

// WatchRadio reports each new failure of a radio role once. A repeat of the
// same reason is not reported again until the role recovers.
func (n *Notifier) WatchRadio(ctx context.Context, role string, statuses <-chan presence.Status) {
	var last presence.Reason
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-statuses:
			if !ok {
				return
			}
			if st.State != presence.StateError {
				if st.State == presence.StateBroadcasting || st.State == presence.StateScanning {
					last = presence.ReasonNone
				}
				continue
			}
			if st.Reason == last {
				continue
			}
			last = st.Reason

			n.log.Info("radio failure", "role", role, "reason", st.Reason)
			n.Broadcast(ctx, formatRadioFailure(role, st))
		}
	}
}

func formatRadioFailure(role string, st presence.Status) string {
	return fmt.Sprintf("⚠️ <b>%s unavailable</b>\n\n%s", role, st.Reason.Message())
}
