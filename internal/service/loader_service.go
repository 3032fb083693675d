package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"medviewer-be/internal/dto"
	"medviewer-be/internal/pkg/logger"
	"medviewer-be/internal/repository/memory"
	"medviewer-be/pkg/dataset"
	"medviewer-be/pkg/fetch"
	"medviewer-be/pkg/viewer/session"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ILoaderService runs dataset downloads and decoding off the session loops.
// Sessions dispatch jobs to it; Consume starts the workers.
type ILoaderService interface {
	session.Dispatcher
	Consume(ctx context.Context) error
}

type loaderService struct {
	pubSub   *gochannel.GoChannel
	topic    string
	sessions *memory.SessionRepository
	decoder  dataset.Decoder
	slots    chan struct{}
	logger   logger.ILogger
}

func NewLoaderService(
	pubSub *gochannel.GoChannel,
	topic string,
	sessions *memory.SessionRepository,
	decoder dataset.Decoder,
	workers int,
	log logger.ILogger,
) ILoaderService {
	if workers <= 0 {
		workers = 4
	}
	return &loaderService{
		pubSub:   pubSub,
		topic:    topic,
		sessions: sessions,
		decoder:  decoder,
		slots:    make(chan struct{}, workers),
		logger:   log,
	}
}

// Dispatch queues job. It does not wait for the download.
func (ls *loaderService) Dispatch(ctx context.Context, job session.LoadJob) error {
	payload, err := json.Marshal(dto.LoadJobMessage{
		SessionID:  job.SessionID,
		ItemID:     job.ItemID,
		Generation: job.Generation,
		Token:      job.Token,
	})
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := ls.pubSub.Publish(ls.topic, msg); err != nil {
		return fmt.Errorf("queue load of %s: %w", job.ItemID, err)
	}
	return nil
}

func (ls *loaderService) Consume(ctx context.Context) error {
	messages, err := ls.pubSub.Subscribe(ctx, ls.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			// Results go back to the session, never to the queue, so the
			// message is acked before the work starts.
			msg.Ack()
			ls.slots <- struct{}{}
			go func(msg *message.Message) {
				defer func() { <-ls.slots }()
				ls.processMessage(ctx, msg)
			}(msg)
		}
	}()

	return nil
}

func (ls *loaderService) processMessage(ctx context.Context, msg *message.Message) {
	var job dto.LoadJobMessage
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		ls.logger.Error("Loader", "Failed to unmarshal load job", map[string]interface{}{"error": err.Error()})
		return
	}

	entry, ok := ls.sessions.Get(job.SessionID)
	if !ok {
		ls.logger.Warn("Loader", "Session gone before load started", map[string]interface{}{"session_id": job.SessionID, "item_id": job.ItemID})
		return
	}

	ls.logger.Info("Loader", "Loading dataset", map[string]interface{}{"session_id": job.SessionID, "item_id": job.ItemID})
	loaded, err := ls.load(ctx, entry.Fetcher, job.ItemID)
	if err != nil {
		ls.logger.Error("Loader", "Dataset load failed", map[string]interface{}{"session_id": job.SessionID, "item_id": job.ItemID, "error": err.Error()})
	}

	if !entry.Session.Complete(session.LoadResult{
		ItemID:     job.ItemID,
		Generation: job.Generation,
		Loaded:     loaded,
		Err:        err,
	}) {
		ls.logger.Warn("Loader", "Session closed before load completed", map[string]interface{}{"session_id": job.SessionID, "item_id": job.ItemID})
	}
}

func (ls *loaderService) load(ctx context.Context, fetcher *fetch.Fetcher, itemID string) (dataset.Loaded, error) {
	if fetcher == nil {
		return dataset.Loaded{}, errors.New("session has no data client")
	}
	path, release, err := fetcher.Fetch(ctx, itemID)
	if err != nil {
		return dataset.Loaded{}, err
	}
	defer release()

	kind := dataset.ClassifyPath(path)
	if kind == dataset.KindUnknown {
		return dataset.Loaded{}, fmt.Errorf("%w: %s", dataset.ErrUnsupportedFormat, path)
	}
	return ls.decoder.Decode(ctx, path, kind)
}
