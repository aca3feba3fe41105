package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"palmreader/internal/util"
	"palmreader/pkg/ai"
	"palmreader/pkg/domain"
	"palmreader/pkg/events"
	"palmreader/pkg/imageutil"
	"palmreader/pkg/sanitize"
	"palmreader/pkg/storage"
)

// photoRun is the state of one photo message. It lives only for the
// duration of HandlePhoto.
type photoRun struct {
	evt           domain.InboundEvent
	photo         domain.PhotoSize
	log           *slog.Logger
	placeholderID int
	uploadID      int64
	storageKey    string
	data          []byte
}

// HandlePhoto runs the photo pipeline. Any failure ends in a single apology.
func (a *App) HandlePhoto(ctx context.Context, evt domain.InboundEvent) {
	run := &photoRun{
		evt: evt,
		log: a.logger.With("run_id", util.NewID(), "user_id", evt.Sender.ID, "chat_id", evt.ChatID),
	}
	ctx, cancel := context.WithTimeout(ctx, a.pipeTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			run.log.Error("panic in photo pipeline", "panic", r, "stack", string(debug.Stack()))
			a.fail(ctx, run)
		}
	}()
	if err := a.runPhoto(ctx, run); err != nil {
		run.log.Error("photo pipeline failed", "err", err)
		a.fail(ctx, run)
	}
}

func (a *App) runPhoto(ctx context.Context, run *photoRun) error {
	evt := run.evt
	if a.limiter != nil && !a.limiter.AllowUser(ctx, evt.Sender.ID) {
		run.log.Info("photo quota exceeded")
		callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
		if _, err := a.messenger.SendText(callCtx, evt.ChatID, evt.MessageID, MsgTooMany); err != nil {
			run.log.Warn("send quota notice failed", "err", err)
		}
		return nil
	}

	photo, ok := evt.LargestPhoto()
	if !ok {
		return ErrNoPhoto
	}
	run.photo = photo
	run.log.Info("photo received", "file_unique_id", photo.FileUniqueID, "width", photo.Width, "height", photo.Height)

	a.ensureUser(ctx, run)

	id, err := a.sendText(ctx, evt.ChatID, evt.MessageID, MsgProcessing)
	if err != nil {
		return fmt.Errorf("send placeholder: %w", err)
	}
	run.placeholderID = id

	if err := sleep(ctx, a.ackDelay); err != nil {
		return fmt.Errorf("ack delay: %w", err)
	}

	a.recordUpload(ctx, run)
	a.relayToAdmin(ctx, run)

	if run.data == nil {
		data, err := a.fetch(ctx, photo.FileID)
		if err != nil {
			return fmt.Errorf("fetch image: %w", err)
		}
		run.data = data
	}
	img, err := imageutil.Decode(run.data)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	run.log.Debug("image decoded", "format", img.Format, "mime", img.MIMEType, "width", img.Width, "height", img.Height)
	a.archiveImage(ctx, run, img)

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	outcome := a.generator.Generate(callCtx, a.prompt, ai.Image{Data: img.Data, MIMEType: img.MIMEType})
	cancel()

	reading, err := a.resolve(run, outcome)
	if err != nil {
		return err
	}
	chunks := sanitize.Split(reading.Response, a.chunkLimit)
	a.recordReading(ctx, run, reading, len(chunks))

	a.retractPlaceholder(ctx, run)

	for i, chunk := range chunks {
		if i > 0 {
			if err := sleep(ctx, a.chunkDelay); err != nil {
				return fmt.Errorf("chunk delay: %w", err)
			}
		}
		text := chunk
		if len(chunks) > 1 {
			text = fmt.Sprintf(partMarker, i+1, len(chunks)) + chunk
		}
		if _, err := a.sendText(ctx, evt.ChatID, evt.MessageID, text); err != nil {
			return fmt.Errorf("deliver part %d/%d: %w", i+1, len(chunks), err)
		}
	}
	run.log.Info("reading delivered", "outcome", reading.Outcome, "parts", len(chunks))
	return nil
}

// resolve maps a generator outcome to the text the user will see.
// A failed call is an error, not a reading.
func (a *App) resolve(run *photoRun, outcome ai.Outcome) (domain.Reading, error) {
	reading := domain.Reading{
		UserID:     run.evt.Sender.ID,
		UploadID:   run.uploadID,
		Prompt:     a.prompt,
		Generation: a.generation,
		FirstName:  run.evt.Sender.FirstName,
		LastName:   run.evt.Sender.LastName,
		Username:   run.evt.Sender.Username,
	}
	switch outcome.Kind {
	case ai.OutcomeText:
		rule, text := a.sanitizer.Classify(outcome.Text)
		if rule != "" {
			run.log.Info("generator text replaced", "rule", rule)
		}
		reading.Outcome = domain.OutcomeText
		reading.Response = text
	case ai.OutcomeRefused:
		run.log.Info("generator refused", "reason", outcome.Reason)
		reading.Outcome = domain.OutcomeRefused
		reading.RefusalReason = outcome.Reason
		reading.Response = a.sanitizer.ForRefusal(outcome.Reason)
	case ai.OutcomeEmpty:
		run.log.Info("generator returned no text")
		reading.Outcome = domain.OutcomeEmpty
		reading.Response = a.sanitizer.ForEmpty()
	default:
		err := outcome.Err
		if err == nil {
			err = errors.New("generator failed")
		}
		return domain.Reading{}, fmt.Errorf("generate: %w", err)
	}
	return reading, nil
}

// ensureUser failures are logged; the pipeline carries on without the row.
func (a *App) ensureUser(ctx context.Context, run *photoRun) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	if _, err := a.ledger.EnsureUser(callCtx, domain.UserFromSender(run.evt.Sender)); err != nil {
		run.log.Warn("ensure user failed", "err", err)
	}
}

// recordUpload failures are logged; uploadID stays 0 and no reading is written.
func (a *App) recordUpload(ctx context.Context, run *photoRun) {
	if a.archive != nil {
		run.storageKey = storage.UploadKey(run.evt.Sender.ID, run.photo.FileUniqueID)
	}
	s := run.evt.Sender
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	id, err := a.ledger.RecordUpload(callCtx, domain.Upload{
		UserID:       s.ID,
		FileID:       run.photo.FileID,
		FileUniqueID: run.photo.FileUniqueID,
		StorageKey:   run.storageKey,
		FirstName:    s.FirstName,
		LastName:     s.LastName,
		Username:     s.Username,
	})
	if err != nil {
		run.log.Warn("record upload failed", "err", err)
		return
	}
	run.uploadID = id
}

// relayToAdmin forwards the photo to the admin chat. Failures are swallowed;
// fetched bytes are kept for the generator.
func (a *App) relayToAdmin(ctx context.Context, run *photoRun) {
	if a.adminChatID == 0 {
		return
	}
	data, err := a.fetch(ctx, run.photo.FileID)
	if err != nil {
		run.log.Warn("admin relay: fetch failed", "err", err)
		return
	}
	run.data = data
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	filename := run.photo.FileUniqueID + imageutil.Extension(data)
	if err := a.messenger.SendPhoto(callCtx, a.adminChatID, data, filename, adminCaption(run.evt.Sender)); err != nil {
		run.log.Warn("admin relay: send failed", "err", err)
	}
}

func adminCaption(s domain.Sender) string {
	var b strings.Builder
	b.WriteString("Новое фото\n")
	fmt.Fprintf(&b, "Имя: %s\n", s.DisplayName())
	if s.Username != "" {
		fmt.Fprintf(&b, "Username: @%s\n", s.Username)
	}
	fmt.Fprintf(&b, "ID: %d", s.ID)
	caption := []rune(b.String())
	if len(caption) > maxCaptionRunes {
		caption = caption[:maxCaptionRunes]
	}
	return string(caption)
}

func (a *App) archiveImage(ctx context.Context, run *photoRun, img imageutil.Decoded) {
	if a.archive == nil || run.storageKey == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	if err := a.archive.Put(callCtx, run.storageKey, img.Data, img.MIMEType); err != nil {
		run.log.Warn("archive image failed", "key", run.storageKey, "err", err)
	}
}

// recordReading is skipped without an upload row; failures are logged.
func (a *App) recordReading(ctx context.Context, run *photoRun, reading domain.Reading, parts int) {
	if run.uploadID == 0 {
		run.log.Warn("reading not recorded: no upload row")
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	if err := a.ledger.RecordReading(callCtx, reading); err != nil {
		run.log.Warn("record reading failed", "err", err)
		return
	}
	if a.publisher == nil {
		return
	}
	evt := events.ReadingCompleted{
		UserID:   reading.UserID,
		UploadID: reading.UploadID,
		Outcome:  string(reading.Outcome),
		Model:    a.generator.Model(),
		Chunks:   parts,
	}
	if err := a.publisher.PublishReading(callCtx, evt); err != nil {
		run.log.Warn("publish reading failed", "err", err)
	}
}

func (a *App) retractPlaceholder(ctx context.Context, run *photoRun) {
	if run.placeholderID == 0 {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	if err := a.messenger.DeleteMessage(callCtx, run.evt.ChatID, run.placeholderID); err != nil {
		run.log.Debug("delete placeholder failed", "err", err)
	}
	run.placeholderID = 0
}

// fail is the terminal state: drop the placeholder and apologise once. It
// runs on a fresh deadline so an expired pipeline can still answer.
func (a *App) fail(ctx context.Context, run *photoRun) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), apologyTimeout)
	defer cancel()
	a.retractPlaceholder(ctx, run)
	if _, err := a.messenger.SendText(ctx, run.evt.ChatID, run.evt.MessageID, MsgApology); err != nil {
		run.log.Error("send apology failed", "err", err)
	}
}

func (a *App) sendText(ctx context.Context, chatID int64, replyTo int, text string) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	return a.messenger.SendText(callCtx, chatID, replyTo, text)
}

func (a *App) fetch(ctx context.Context, fileID string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	return a.messenger.FetchFile(callCtx, fileID)
}
