package kafka

import (
	"context"
	"hash/fnv"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
// Return error -> offset tidak di-commit, event bakal di-redeliver.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers}
}

// workerIndex: pesan dengan key sama selalu jatuh ke worker yang sama.
func workerIndex(key []byte, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(n))
}

// Start: dispatcher baca pesan, worker pool yang proses. Tiap worker punya
// channel sendiri dan pesan di-shard by key (= order_id), jadi event satu
// order tidak pernah diproses dua worker barengan dan urutannya terjaga.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 128)
	}
	errs := make(chan error, c.workers)

	for i := 0; i < c.workers; i++ {
		go func(in <-chan kafka.Message) {
			for m := range in {
				if err := h(ctx, m); err != nil {
					errs <- err
					continue
				}
				// commit on success
				if err := c.r.CommitMessages(ctx, m); err != nil {
					errs <- err
				}
			}
		}(jobs[i])
	}
	closeAll := func() {
		for _, ch := range jobs {
			close(ch)
		}
	}

	// dispatcher loop
	for {
		// FetchMessage, bukan ReadMessage: ReadMessage ikut commit offset
		// padahal commit harus nunggu handler sukses
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			closeAll()
			// kecilkan noise saat shutdown
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs[workerIndex(m.Key, c.workers)] <- m:
		case <-ctx.Done():
			closeAll()
			return nil
		}

		// non-blocking drain error agar tidak deadlock
		select {
		case e := <-errs:
			log.Printf("worker error: %v", e)
			time.Sleep(200 * time.Millisecond) // backoff ringan
		default:
		}
	}
}
