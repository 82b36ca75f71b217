package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	aggregatedomain "github.com/smallbiznis/certify/internal/aggregate/domain"
	auditdomain "github.com/smallbiznis/certify/internal/audit/domain"
	"github.com/smallbiznis/certify/internal/clock"
	"github.com/smallbiznis/certify/internal/config"
	customerdomain "github.com/smallbiznis/certify/internal/customer/domain"
	historydomain "github.com/smallbiznis/certify/internal/history/domain"
	"github.com/smallbiznis/certify/internal/lifecycle/domain"
	"github.com/smallbiznis/certify/internal/observability/metrics"
	"github.com/smallbiznis/certify/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errVersionConflict aborts a transaction whose guarded write lost the race.
// The caller retries with fresh state.
var errVersionConflict = errors.New("version_conflict")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Config    config.Config
	Clock     clock.Clock
	Customers customerdomain.Repository
	History   historydomain.Repository
	Counts    aggregatedomain.Repository
	Metrics   *metrics.Metrics
	Audit     auditdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	cfg       config.Config
	clock     clock.Clock
	customers customerdomain.Repository
	history   historydomain.Repository
	counts    aggregatedomain.Repository
	metrics   *metrics.Metrics
	audit     auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("lifecycle.service"),
		genID:     p.GenID,
		cfg:       p.Config,
		clock:     p.Clock,
		customers: p.Customers,
		history:   p.History,
		counts:    p.Counts,
		metrics:   p.Metrics,
		audit:     p.Audit,
	}
}

func (s *Service) Transition(ctx context.Context, req domain.TransitionRequest) (domain.TransitionResult, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		return domain.TransitionResult{}, domain.ErrInvalidID
	}

	target, err := status.Parse(req.TargetStatus)
	if err != nil {
		return domain.TransitionResult{}, err
	}

	reason, err := s.normalizeReason(req.Reason)
	if err != nil {
		return domain.TransitionResult{}, err
	}

	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = string(auditdomain.ActorTypeSystem)
	}

	retries := s.cfg.TransitionRetries
	if retries < 0 {
		retries = 0
	}

	var result domain.TransitionResult
	for attempt := 0; ; attempt++ {
		result, err = s.transitionOnce(ctx, customerID, target, reason, actor)
		if !errors.Is(err, errVersionConflict) {
			break
		}
		if attempt >= retries {
			err = domain.ErrConcurrentModification
			break
		}
		s.log.Debug("transition write lost the race, retrying",
			zap.String("customer_id", customerID.String()),
			zap.Int("attempt", attempt+1),
		)
	}
	if err != nil {
		var ruleErr *domain.RuleViolationError
		if errors.As(err, &ruleErr) {
			s.metrics.RecordRuleViolation(ctx, string(ruleErr.From), string(ruleErr.To))
		}
		return domain.TransitionResult{}, err
	}

	if result.Applied {
		s.metrics.RecordTransition(ctx, historyFrom(result.History), string(target))
		if target == status.StatusCertified && result.Customer.CertifiedAt != nil {
			s.metrics.RecordCertification(ctx, certificateTypeLabel(result.Customer.CertificateType))
		}
		s.recordAudit(ctx, result, reason, actor)
	}

	return result, nil
}

func (s *Service) AllowedTargets(ctx context.Context, req domain.AllowedTargetsRequest) (domain.AllowedTargetsResponse, error) {
	parsed, err := status.Parse(req.Status)
	if err != nil {
		return domain.AllowedTargetsResponse{}, err
	}

	targets := status.AllowedTargets(parsed)
	if targets == nil {
		targets = []status.Status{}
	}
	return domain.AllowedTargetsResponse{Status: parsed, Targets: targets}, nil
}

// transitionOnce runs one attempt inside a transaction. The row lock keeps
// concurrent attempts on the same customer out of the critical section; the
// version check in the guarded write catches anything the lock let through.
func (s *Service) transitionOnce(ctx context.Context, customerID snowflake.ID, target status.Status, reason *string, actor string) (domain.TransitionResult, error) {
	var result domain.TransitionResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		current, err := s.customers.FindByIDForUpdate(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		if current.Status == target {
			result = domain.TransitionResult{Customer: *current, Applied: false}
			return nil
		}

		if !status.IsAllowed(current.Status, target) {
			return &domain.RuleViolationError{
				From:    current.Status,
				To:      target,
				Allowed: status.AllowedTargets(current.Status),
			}
		}

		now := s.clock.Now().UTC()
		update := customerdomain.StatusUpdate{
			ID:        customerID,
			Status:    target,
			Version:   current.Version,
			UpdatedAt: now,
		}

		certifies := target == status.StatusCertified && current.CertifiedAt == nil
		if certifies {
			update.SetCertifiedAt = true
			update.CertifiedAt = now
		}

		affected, err := s.customers.UpdateStatus(ctx, tx, update)
		if err != nil {
			return err
		}
		if affected == 0 {
			return errVersionConflict
		}

		if certifies {
			month := aggregatedomain.MonthKey(now)
			if err := s.counts.IncrementMonth(ctx, tx, month, 1, now); err != nil {
				return err
			}
			byType := certificateTypeLabel(current.CertificateType)
			if err := s.counts.IncrementMonthByType(ctx, tx, month, byType, 1, now); err != nil {
				return err
			}
		}

		fromStatus := current.Status
		record := historydomain.StatusHistoryRecord{
			ID:         s.genID.Generate(),
			CustomerID: customerID,
			FromStatus: &fromStatus,
			ToStatus:   target,
			Reason:     reason,
			Actor:      actor,
			ChangedAt:  now,
		}
		if err := s.history.Insert(ctx, tx, &record); err != nil {
			return err
		}

		updated := *current
		updated.Status = target
		updated.Version = current.Version + 1
		updated.UpdatedAt = now
		if certifies {
			updated.CertifiedAt = &now
		}

		result = domain.TransitionResult{
			Customer: updated,
			Applied:  true,
			History:  &record,
		}
		return nil
	})
	if err != nil {
		return domain.TransitionResult{}, err
	}
	return result, nil
}

func (s *Service) normalizeReason(raw string) (*string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	if s.cfg.MaxReasonLength > 0 && len(trimmed) > s.cfg.MaxReasonLength {
		return nil, domain.ErrInvalidReason
	}
	return &trimmed, nil
}

func (s *Service) recordAudit(ctx context.Context, result domain.TransitionResult, reason *string, actor string) {
	if s.audit == nil {
		return
	}

	metadata := map[string]any{
		"from_status": historyFrom(result.History),
		"to_status":   string(result.Customer.Status),
		"email":       result.Customer.Email,
	}
	if reason != nil {
		metadata["reason"] = *reason
	}

	targetID := result.Customer.ID.String()
	if err := s.audit.AuditLog(ctx, string(auditdomain.ActorTypeUser), &actor, "customer.transition", "customer", &targetID, metadata); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
}

func historyFrom(record *historydomain.StatusHistoryRecord) string {
	if record == nil || record.FromStatus == nil {
		return ""
	}
	return string(*record.FromStatus)
}

func certificateTypeLabel(certificateType *string) string {
	if certificateType == nil || strings.TrimSpace(*certificateType) == "" {
		return aggregatedomain.TypeUnspecified
	}
	return strings.TrimSpace(*certificateType)
}
