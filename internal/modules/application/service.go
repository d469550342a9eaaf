package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"nobconsult/internal/domain"
	"nobconsult/internal/events"
	"nobconsult/internal/lock"
	"nobconsult/internal/metrics"
	"nobconsult/internal/modules/access"
	"nobconsult/internal/repository"
)

type Config struct {
	RequireRejectionComment bool
	// SnapshotCacheSize bounds the number of applications kept for
	// degraded reads.
	SnapshotCacheSize int
	// ConflictRetries is how often a lost revision race is re-run.
	ConflictRetries uint
}

func DefaultConfig() Config {
	return Config{
		RequireRejectionComment: true,
		SnapshotCacheSize:       1024,
		ConflictRetries:         5,
	}
}

type Deps struct {
	Applications ApplicationRepository
	Catalog      CatalogReader
	Users        UserReader
	Blobs        BlobStore
	Locker       lock.Locker
	Publisher    events.Publisher
	Logger       *zap.Logger
}

// Service runs the application workflow. Every mutation of one application
// is serialized by the locker and committed with a revision check.
type Service struct {
	apps      ApplicationRepository
	catalog   CatalogReader
	users     UserReader
	blobs     BlobStore
	locker    lock.Locker
	publisher events.Publisher
	log       *zap.Logger
	cfg       Config
	snapshots *lru.Cache[int64, *domain.Application]
}

func NewService(d Deps, cfg Config) *Service {
	if cfg.SnapshotCacheSize <= 0 {
		cfg.SnapshotCacheSize = DefaultConfig().SnapshotCacheSize
	}
	if cfg.ConflictRetries == 0 {
		cfg.ConflictRetries = DefaultConfig().ConflictRetries
	}
	if d.Locker == nil {
		d.Locker = lock.NewMemoryLocker()
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	cache, _ := lru.New[int64, *domain.Application](cfg.SnapshotCacheSize)

	return &Service{
		apps:      d.Applications,
		catalog:   d.Catalog,
		users:     d.Users,
		blobs:     d.Blobs,
		locker:    d.Locker,
		publisher: d.Publisher,
		log:       d.Logger,
		cfg:       cfg,
		snapshots: cache,
	}
}

// Get returns the actor's view of one application. When the store cannot be
// reached the last committed snapshot is returned with Stale set.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id int64) (*domain.Application, error) {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		if !isUnavailable(ctx, err) {
			return nil, translateStoreError(err)
		}
		cached, ok := s.snapshots.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if err := access.Authorize(actor, access.ActionRead, access.ResourceOf(cached)); err != nil {
			return nil, err
		}
		metrics.StaleReads.Inc()
		s.log.Warn("serving stale application snapshot",
			zap.Int64("application_id", id),
			zap.Int64("revision", cached.Revision),
			zap.Error(err))
		view := cached.ViewFor(actor.Role)
		view.Stale = true
		return view, nil
	}

	if err := access.Authorize(actor, access.ActionRead, access.ResourceOf(app)); err != nil {
		return nil, err
	}
	s.remember(app)
	return app.ViewFor(actor.Role), nil
}

// List returns the applications visible to the actor, newest first.
func (s *Service) List(ctx context.Context, actor domain.Actor, f ListFilter) ([]domain.Application, error) {
	q := repository.ApplicationQuery{
		Status:          f.Status,
		IncludeArchived: f.IncludeArchived,
		Limit:           f.Limit,
		Offset:          f.Offset,
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}

	switch actor.Role {
	case domain.RoleCustomer:
		q.CustomerID = &actor.UserID
	case domain.RoleStaff:
		switch f.Scope {
		case "mine":
			q.AssignedStaffID = &actor.UserID
		case "queue":
			q.OnlyUnassigned = true
		case "":
			q.AssignedStaffID = &actor.UserID
			q.IncludeUnassigned = true
		default:
			return nil, fmt.Errorf("%w: unknown scope %q", ErrValidation, f.Scope)
		}
	case domain.RoleAdmin:
		if f.CustomerID != 0 {
			q.CustomerID = &f.CustomerID
		}
	default:
		return nil, access.ErrForbidden
	}

	apps, err := s.apps.List(ctx, q)
	if err != nil {
		return nil, translateStoreError(err)
	}
	for i := range apps {
		apps[i] = *apps[i].ViewFor(actor.Role)
	}
	return apps, nil
}

// change validates the freshly loaded application and describes the write.
// It runs under the application lock and may run again after a lost race.
type change func(app *domain.Application) (repository.Mutation, events.Type, error)

func (s *Service) mutate(ctx context.Context, actor domain.Actor, id int64, fn change) (*domain.Application, error) {
	unlock, err := s.locker.Lock(ctx, lockKey(id))
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, fmt.Errorf("%w: application is busy", ErrConflict)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer unlock()

	var (
		evt  events.Type
		from domain.ApplicationStatus
	)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond

	updated, err := backoff.Retry(ctx, func() (*domain.Application, error) {
		app, err := s.apps.GetByID(ctx, id)
		if err != nil {
			return nil, backoff.Permanent(translateStoreError(err))
		}
		m, t, err := fn(app)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		out, err := s.apps.Apply(ctx, id, app.Revision, m)
		if errors.Is(err, repository.ErrRevisionConflict) {
			metrics.RevisionConflicts.Inc()
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(translateStoreError(err))
		}
		evt, from = t, app.Status
		return out, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.cfg.ConflictRetries))
	if err != nil {
		if errors.Is(err, repository.ErrRevisionConflict) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, err
	}

	if from != updated.Status {
		metrics.StatusTransitions.WithLabelValues(string(from), string(updated.Status)).Inc()
	}
	s.committed(ctx, actor, evt, updated)
	return updated, nil
}

// committed caches the new snapshot and announces it. Publishing failures
// are logged; the write itself has already succeeded.
func (s *Service) committed(ctx context.Context, actor domain.Actor, t events.Type, app *domain.Application) {
	s.remember(app)
	if err := s.publisher.Publish(ctx, events.New(t, actor, app)); err != nil {
		s.log.Error("publish application event",
			zap.String("type", string(t)),
			zap.Int64("application_id", app.ID),
			zap.Int64("revision", app.Revision),
			zap.Error(err))
	}
}

// remember keeps the newest revision seen for each application.
func (s *Service) remember(app *domain.Application) {
	if prev, ok := s.snapshots.Peek(app.ID); ok && prev.Revision > app.Revision {
		return
	}
	s.snapshots.Add(app.ID, app.ViewFor(domain.RoleAdmin))
}

func (s *Service) loadUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateStoreError(err)
	}
	return u, nil
}

func lockKey(id int64) string {
	return "application:" + strconv.FormatInt(id, 10)
}

func isUnavailable(ctx context.Context, err error) bool {
	return repository.IsUnavailable(err) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func translateStoreError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case repository.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

// entry builds a history row; the store assigns seq and date.
func entry(actor domain.Actor, status domain.ApplicationStatus, label string) domain.HistoryEntry {
	return domain.HistoryEntry{
		Status:   status,
		Label:    label,
		By:       actor.DisplayName(),
		ByUserID: actor.UserID,
	}
}

// writable rejects writes to archived applications.
func writable(app *domain.Application) error {
	if app.ArchivedAt != nil {
		return ErrArchived
	}
	return nil
}
