package chat

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/secmon-lab/omnichat/pkg/utils/async"
	"github.com/secmon-lab/omnichat/pkg/utils/logging"
)

const streamPlaceholder = "..."

// Stream posts a placeholder message and progressively edits it as chunks
// arrive. An edit is issued only when the accumulated text differs from
// the last edit and the coalescing interval has elapsed; the final edit
// always carries the complete accumulated text. The thread lock is
// extended while streaming so it cannot expire mid-stream.
func (r *Responder) Stream(ctx context.Context, chunks <-chan string) (string, error) {
	a, err := r.require()
	if err != nil {
		return "", err
	}

	// Fire-and-forget: a typing indicator must not delay the placeholder
	async.Dispatch(ctx, func(ctx context.Context) error {
		if err := a.StartTyping(ctx, r.threadID); err != nil && !types.IsNotImplemented(err) {
			return goerr.Wrap(err, "failed to start typing indicator",
				goerr.V("thread_id", r.threadID))
		}
		return nil
	})

	messageID, err := a.PostMessage(ctx, r.threadID, streamPlaceholder)
	if err != nil {
		return "", goerr.Wrap(err, "failed to post streaming placeholder",
			goerr.V("thread_id", r.threadID))
	}

	var buf strings.Builder
	lastEdited := ""
	lastEditAt := r.chat.now()

	flush := func() error {
		text := buf.String()
		if text == lastEdited {
			return nil
		}
		if err := a.EditMessage(ctx, r.threadID, messageID, text); err != nil {
			return goerr.Wrap(err, "failed to edit streaming message",
				goerr.V("thread_id", r.threadID), goerr.V("message_id", messageID))
		}
		lastEdited = text
		lastEditAt = r.chat.now()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return messageID, goerr.Wrap(ctx.Err(), "streaming canceled",
				goerr.V("thread_id", r.threadID))

		case chunk, ok := <-chunks:
			if !ok {
				if err := flush(); err != nil {
					return messageID, err
				}
				return messageID, nil
			}
			buf.WriteString(chunk)

			if r.chat.now().Sub(lastEditAt) < r.chat.streamInterval {
				continue
			}
			if err := flush(); err != nil {
				return messageID, err
			}
			r.keepLockAlive(ctx)
		}
	}
}

// keepLockAlive extends the thread lock once less than half its TTL
// remains. Losing the lock is logged but does not abort the stream; the
// edits target the bot's own message either way.
func (r *Responder) keepLockAlive(ctx context.Context) {
	if r.lock == nil {
		return
	}
	if r.lock.ExpiresAt.Sub(r.chat.now()) > r.chat.lockTTL/2 {
		return
	}
	ok, err := r.chat.state.ExtendLock(ctx, r.lock, r.chat.lockTTL)
	if err != nil {
		logging.From(ctx).Warn("failed to extend thread lock", "thread_id", r.threadID, "error", err)
		return
	}
	if !ok {
		logging.From(ctx).Warn("thread lock lost during streaming", "thread_id", r.threadID)
	}
}
