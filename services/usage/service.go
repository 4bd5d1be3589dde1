package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/model-relay/model-relay/models"
	"github.com/model-relay/model-relay/repositories"
	"github.com/model-relay/model-relay/services/providers"
	"go.uber.org/zap"
)

// Service handles asynchronous usage tracking.
// Records are appended to the log in background workers so that
// dispatch latency never includes a database write.
type Service struct {
	usageRepo     repositories.UsageRepository
	logger        *zap.Logger
	recordChan    chan *models.UsageRecord
	workerCount   int
	bufferSize    int
	retention     time.Duration
	pruneInterval time.Duration
	wg            sync.WaitGroup
	janitorStop   chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
	mu            sync.Mutex
}

// Config holds configuration for the usage Service
type Config struct {
	BufferSize    int           // Size of the record buffer channel
	WorkerCount   int           // Number of concurrent workers
	Retention     time.Duration // How long records are kept
	PruneInterval time.Duration // How often the janitor prunes old records
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:    1000,
		WorkerCount:   2,
		Retention:     365 * 24 * time.Hour,
		PruneInterval: 24 * time.Hour,
	}
}

// NewService creates a new usage Service instance
func NewService(usageRepo repositories.UsageRepository, logger *zap.Logger, config Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		usageRepo:     usageRepo,
		logger:        logger,
		recordChan:    make(chan *models.UsageRecord, config.BufferSize),
		workerCount:   config.WorkerCount,
		bufferSize:    config.BufferSize,
		retention:     config.Retention,
		pruneInterval: config.PruneInterval,
		janitorStop:   make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		started:       false,
	}
}

// Start starts the background workers and the retention janitor
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("usage service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	if s.pruneInterval > 0 {
		s.wg.Add(1)
		go s.janitor()
	}

	s.started = true
	s.logger.Info("started usage service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize),
		zap.Duration("retention", s.retention))

	return nil
}

// Stop gracefully stops the usage service.
// Waits for all pending records to be written.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("usage service not started")
	}
	s.logger.Info("stopping usage service", zap.Int("pending_records", len(s.recordChan)))

	// Flip started before closing so a late Record errors instead of
	// sending on a closed channel. Provider attempts can outlive the
	// server shutdown timeout by minutes.
	s.started = false
	close(s.janitorStop)
	close(s.recordChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("usage service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("usage service stop timeout after %v", timeout)
	}
}

// Record queues a usage record asynchronously (non-blocking).
// Returns immediately, the record is written in the background.
func (s *Service) Record(record *models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return fmt.Errorf("usage service not started")
	}

	select {
	case s.recordChan <- record:
		return nil
	default:
		s.logger.Warn("usage record channel full, dropping record",
			zap.String("model_name", record.ModelName),
			zap.String("status", string(record.Status)))
		return fmt.Errorf("usage record buffer full")
	}
}

// RecordSuccess queues a success record for one provider attempt
func (s *Service) RecordSuccess(modelName string, u providers.Usage, latency time.Duration) error {
	record := models.NewUsageRecord(modelName, models.UsageStatusSuccess).
		WithTokens(u.PromptTokens, u.CompletionTokens, u.TotalTokens).
		WithLatency(latency)

	return s.Record(record)
}

// RecordError queues an error record for one provider attempt
func (s *Service) RecordError(modelName, message string, latency time.Duration) error {
	record := models.NewUsageRecord(modelName, models.UsageStatusError).
		WithError(message).
		WithLatency(latency)

	return s.Record(record)
}

// StatusFor derives per-provider status for the given provider IDs,
// preserving their order. Providers with no log records are reported
// as unused.
func (s *Service) StatusFor(ctx context.Context, providerIDs []string) ([]*models.ProviderStatus, error) {
	recorded, err := s.usageRepo.StatusByProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to derive provider status: %w", err)
	}

	byProvider := make(map[string]*models.ProviderStatus, len(recorded))
	for _, status := range recorded {
		byProvider[status.Provider] = status
	}

	statuses := make([]*models.ProviderStatus, 0, len(providerIDs))
	for _, id := range providerIDs {
		if status, ok := byProvider[id]; ok {
			statuses = append(statuses, status)
			continue
		}
		statuses = append(statuses, &models.ProviderStatus{
			Provider: id,
			Status:   models.StatusUnused,
		})
	}

	return statuses, nil
}

// Prune deletes records older than the retention window
func (s *Service) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)
	return s.usageRepo.DeleteOlderThan(ctx, cutoff)
}

// worker writes records from the channel
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("usage worker started", zap.Int("worker_id", id))

	for record := range s.recordChan {
		if err := s.writeRecord(record); err != nil {
			s.logger.Error("failed to write usage record",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("model_name", record.ModelName),
				zap.String("status", string(record.Status)))
		}
	}

	s.logger.Debug("usage worker stopped", zap.Int("worker_id", id))
}

// writeRecord writes a single usage record
func (s *Service) writeRecord(record *models.UsageRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.usageRepo.Insert(ctx, record); err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	return nil
}

// janitor periodically prunes records past the retention window
func (s *Service) janitor() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			deleted, err := s.Prune(ctx)
			cancel()
			if err != nil {
				s.logger.Error("usage retention prune failed", zap.Error(err))
			} else if deleted > 0 {
				s.logger.Info("usage retention prune completed", zap.Int64("deleted", deleted))
			}
		case <-s.janitorStop:
			return
		}
	}
}

// GetStats returns statistics about the usage service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:     s.bufferSize,
		PendingRecords: len(s.recordChan),
		WorkerCount:    s.workerCount,
		Started:        s.started,
	}
}

// Stats represents usage service statistics
type Stats struct {
	BufferSize     int
	PendingRecords int
	WorkerCount    int
	Started        bool
}
