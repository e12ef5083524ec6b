package analytics

import (
	"Clixy-Backend/internal/domain"
	"Clixy-Backend/internal/geo"
	"Clixy-Backend/internal/repository"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotStarted = errors.New("processor not started")
	ErrQueueFull  = errors.New("analytics queue is full")
	ErrStopped    = errors.New("processor stopped")
)

// visitorStripes is the number of locks serializing the uniqueness check per visitor.
const visitorStripes = 64

// ClickData is a snapshot of everything a worker needs from the redirect request.
// It must not reference the request itself, which is gone by the time a worker runs.
type ClickData struct {
	LinkID     uuid.UUID
	Slug       string
	UserAgent  *string
	Referrer   *string
	Header     http.Header
	RemoteAddr string
}

// CountryResolver turns request metadata into a country code.
type CountryResolver interface {
	Resolve(ctx context.Context, header http.Header, remoteAddr string) string
}

// ProcessorConfig holds configuration for the analytics processor
type ProcessorConfig struct {
	WorkerCount     int           // Number of worker goroutines
	BufferSize      int           // Size of the job queue buffer
	RetryAttempts   int           // Insert attempts per click, 1 disables retries
	RetryDelay      time.Duration // Base delay between retries
	WriteTimeout    time.Duration // Deadline for resolving and storing one click
	ShutdownTimeout time.Duration // Time to drain the queue on Stop
	VisitorSalt     string        // Key for visitor hashes
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() ProcessorConfig {
	return ProcessorConfig{
		WorkerCount:     4,
		BufferSize:      1024,
		RetryAttempts:   1,
		RetryDelay:      500 * time.Millisecond,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Stats is a point-in-time view of the processor.
type Stats struct {
	Started       bool  `json:"started"`
	QueueLength   int   `json:"queue_length"`
	QueueCapacity int   `json:"queue_capacity"`
	WorkerCount   int   `json:"worker_count"`
	RetryAttempts int   `json:"retry_attempts"`
	Submitted     int64 `json:"submitted"`
	Dropped       int64 `json:"dropped"`
	Recorded      int64 `json:"recorded"`
	Failed        int64 `json:"failed"`
}

// Processor records clicks in the background on a bounded worker pool.
//
// Workers run under the processor's own context, so a click outlives the
// request that produced it. Submission never blocks: when the queue is full
// the click is dropped.
type Processor struct {
	config     ProcessorConfig
	storage    repository.ClickWriter
	classifier *Classifier
	resolver   CountryResolver
	log        *zap.Logger
	visitorKey []byte
	now        func() time.Time

	jobQueue chan *ClickData
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	stopped  bool
	mu       sync.RWMutex

	visitorLocks [visitorStripes]sync.Mutex

	submitted atomic.Int64
	dropped   atomic.Int64
	recorded  atomic.Int64
	failed    atomic.Int64
}

// NewProcessor creates a new analytics processor
func NewProcessor(
	storage repository.ClickWriter,
	classifier *Classifier,
	resolver CountryResolver,
	log *zap.Logger,
	config ProcessorConfig,
) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	// BLAKE2b keys are limited to 64 bytes, so the salt is condensed first.
	key := blake2b.Sum256([]byte(config.VisitorSalt))

	return &Processor{
		config:     config,
		storage:    storage,
		classifier: classifier,
		resolver:   resolver,
		log:        log,
		visitorKey: key[:],
		now:        time.Now,
		jobQueue:   make(chan *ClickData, config.BufferSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins processing analytics data
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.started {
		return fmt.Errorf("processor already started")
	}

	p.log.Info("starting analytics processor",
		zap.Int("workers", p.config.WorkerCount),
		zap.Int("buffer_size", p.config.BufferSize),
		zap.Int("retry_attempts", p.config.RetryAttempts),
	)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.started = true
	return nil
}

// Stop closes the queue and lets workers drain it for up to ShutdownTimeout.
// Whatever is still queued after that is abandoned.
func (p *Processor) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	p.started = false
	p.stopped = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.log.Info("stopping analytics processor", zap.Int("pending", len(p.jobQueue)))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	defer p.cancel()

	select {
	case <-done:
		p.log.Info("analytics processor stopped gracefully")
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.log.Warn("analytics processor shutdown timeout reached, abandoning queued clicks",
			zap.Int("abandoned", len(p.jobQueue)))
		return fmt.Errorf("shutdown timeout reached")
	}
}

// SubmitClick queues a click for asynchronous processing without blocking.
func (p *Processor) SubmitClick(clickData *ClickData) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		p.dropped.Add(1)
		return ErrNotStarted
	}

	select {
	case p.jobQueue <- clickData:
		p.submitted.Add(1)
		p.log.Debug("click data submitted for processing", zap.String("slug", clickData.Slug))
		return nil
	default:
		p.dropped.Add(1)
		p.log.Error("analytics queue is full, dropping click data",
			zap.String("slug", clickData.Slug),
			zap.Int("queue_size", len(p.jobQueue)),
		)
		return ErrQueueFull
	}
}

func (p *Processor) worker(workerID int) {
	defer p.wg.Done()

	log := p.log.With(zap.Int("worker_id", workerID))
	log.Debug("analytics worker started")

	for clickData := range p.jobQueue {
		if p.ctx.Err() != nil {
			return
		}
		p.processClick(log, clickData)
	}

	log.Debug("analytics worker stopped")
}

// processClick enriches a click and stores it. It never returns an error: the
// redirect has already been served, so failures are only counted and logged.
func (p *Processor) processClick(log *zap.Logger, data *ClickData) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.WriteTimeout)
	defer cancel()

	cls := p.classifier.Classify(data.UserAgent, data.Referrer)
	country := p.resolver.Resolve(ctx, data.Header, data.RemoteAddr)

	click := &domain.Click{
		LinkID:    data.LinkID,
		Referrer:  data.Referrer,
		UserAgent: data.UserAgent,
		Platform:  cls.Platform,
		Device:    cls.Device,
		Browser:   cls.Browser,
		OS:        cls.OS,
		Country:   country,
	}
	click.FitColumns()

	unlock := p.lockVisitor(data)
	click.VisitorHash, click.IsUnique = p.visitor(ctx, log, data)
	err := p.insertWithRetry(ctx, log, click, data.Slug)
	unlock()

	if err != nil {
		p.failed.Add(1)
		log.Error("click processing failed after all retries",
			zap.String("slug", data.Slug),
			zap.Int("attempts", p.config.RetryAttempts),
			zap.Error(err),
		)
		return
	}

	p.recorded.Add(1)
	log.Debug("click recorded successfully",
		zap.String("slug", data.Slug),
		zap.String("platform", click.Platform),
		zap.String("device", click.Device),
		zap.String("country", click.Country),
	)
}

func (p *Processor) insertWithRetry(ctx context.Context, log *zap.Logger, click *domain.Click, slug string) error {
	var lastErr error

	for attempt := 1; attempt <= p.config.RetryAttempts; attempt++ {
		err := p.storage.InsertClick(ctx, click)
		if err == nil {
			if attempt > 1 {
				log.Info("click processing succeeded after retry",
					zap.String("slug", slug),
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}

		lastErr = err
		log.Warn("click insert failed",
			zap.String("slug", slug),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.config.RetryAttempts),
			zap.Error(err),
		)

		if attempt == p.config.RetryAttempts {
			break
		}

		delay := p.config.RetryDelay * time.Duration(1<<(attempt-1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}

	return lastErr
}

// lockVisitor serializes the seen-check and insert for clicks of the same
// client on the same link inside this process. Replicas sharing a database
// can still both mark a first visit unique.
func (p *Processor) lockVisitor(data *ClickData) func() {
	ip := geo.ClientIP(data.Header, data.RemoteAddr)
	if ip == "" {
		return func() {}
	}
	h := fnv.New32a()
	h.Write(data.LinkID[:])
	h.Write([]byte(ip))
	mu := &p.visitorLocks[h.Sum32()%visitorStripes]
	mu.Lock()
	return mu.Unlock
}

// visitor returns the visitor hash for the click and whether it is the
// visitor's first click on this link in the current UTC day.
// Without a client IP there is nothing to identify, so the click is not unique.
func (p *Processor) visitor(ctx context.Context, log *zap.Logger, data *ClickData) (string, bool) {
	ip := geo.ClientIP(data.Header, data.RemoteAddr)
	if ip == "" {
		return "", false
	}

	day := p.now().UTC().Truncate(24 * time.Hour)
	hash := p.visitorHash(ip, day)

	seen, err := p.storage.VisitorSeen(ctx, data.LinkID, hash, day)
	if err != nil {
		log.Warn("failed to check visitor history", zap.String("slug", data.Slug), zap.Error(err))
		return hash, false
	}
	return hash, !seen
}

func (p *Processor) visitorHash(ip string, day time.Time) string {
	h, _ := blake2b.New256(p.visitorKey)
	h.Write([]byte(ip))
	h.Write([]byte{'|'})
	h.Write([]byte(day.Format(time.DateOnly)))
	return hex.EncodeToString(h.Sum(nil))
}

// GetStats returns processor statistics
func (p *Processor) GetStats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Stats{
		Started:       p.started,
		QueueLength:   len(p.jobQueue),
		QueueCapacity: cap(p.jobQueue),
		WorkerCount:   p.config.WorkerCount,
		RetryAttempts: p.config.RetryAttempts,
		Submitted:     p.submitted.Load(),
		Dropped:       p.dropped.Load(),
		Recorded:      p.recorded.Load(),
		Failed:        p.failed.Load(),
	}
}
