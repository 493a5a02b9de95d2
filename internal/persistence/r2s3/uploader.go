package r2s3

import (
	"context"
	"log"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	UploadedTotal uint64
	FailedTotal   uint64
	DroppedTotal  uint64
	LastUploadAt  int64
}

// Uploader copies closed log files to <prefix>/<base name> in the bucket.
// A single worker drains the queue; Enqueue never blocks the caller.
type Uploader struct {
	client   *Client
	prefix   string
	logger   *log.Logger
	attempts int
	backoff  time.Duration

	jobs chan string
	wg   sync.WaitGroup
	once sync.Once

	uploaded atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
	lastAt   atomic.Int64
}

func NewUploader(client *Client, prefix string, queue int, logger *log.Logger) *Uploader {
	if queue <= 0 {
		queue = 256
	}
	u := &Uploader{
		client:   client,
		prefix:   cleanKey(prefix),
		logger:   logger,
		attempts: 4,
		backoff:  200 * time.Millisecond,
		jobs:     make(chan string, queue),
	}
	u.wg.Add(1)
	go u.loop()
	return u
}

func (u *Uploader) Enqueue(localPath string) {
	if u == nil {
		return
	}
	select {
	case u.jobs <- localPath:
	default:
		n := u.dropped.Add(1)
		u.printf("archive drop file=%s dropped_total=%d", localPath, n)
	}
}

// Close waits for queued uploads to finish.
func (u *Uploader) Close() {
	if u == nil {
		return
	}
	u.once.Do(func() { close(u.jobs) })
	u.wg.Wait()
}

func (u *Uploader) Stats() Stats {
	if u == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(u.jobs),
		QueueCapacity: cap(u.jobs),
		UploadedTotal: u.uploaded.Load(),
		FailedTotal:   u.failed.Load(),
		DroppedTotal:  u.dropped.Load(),
		LastUploadAt:  u.lastAt.Load(),
	}
}

func (u *Uploader) loop() {
	defer u.wg.Done()
	for p := range u.jobs {
		key := path.Join(u.prefix, filepath.Base(p))
		if err := u.upload(key, p); err != nil {
			u.failed.Add(1)
			u.printf("archive upload failed key=%s err=%v", key, err)
			continue
		}
		u.uploaded.Add(1)
		u.lastAt.Store(time.Now().Unix())
		u.printf("archive uploaded key=%s", key)
	}
}

func (u *Uploader) upload(key, localPath string) error {
	var err error
	for i := 1; i <= u.attempts; i++ {
		if err = u.put(key, localPath); err == nil {
			return nil
		}
		if i < u.attempts {
			time.Sleep(time.Duration(i*i) * u.backoff)
		}
	}
	return err
}

func (u *Uploader) put(key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return u.client.Put(ctx, key, f, "application/zstd")
}

func (u *Uploader) printf(format string, args ...any) {
	if u.logger != nil {
		u.logger.Printf(format, args...)
	}
}
