// Package reconcile rebuilds the certification aggregates from the customers
// table, the ground truth, and reports any drift it corrected.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	aggregatedomain "github.com/smallbiznis/certify/internal/aggregate/domain"
	auditdomain "github.com/smallbiznis/certify/internal/audit/domain"
	"github.com/smallbiznis/certify/internal/clock"
	"github.com/smallbiznis/certify/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrAlreadyRunning rejects a run while another one holds the guard.
var ErrAlreadyRunning = errors.New("reconciliation_already_running")

var ErrInvalidConfig = errors.New("reconcile: invalid configuration")

// Diff is one corrected aggregate row.
type Diff struct {
	Table      string `json:"table"`
	Key        string `json:"key"`
	Previous   int64  `json:"previous"`
	Recomputed int64  `json:"recomputed"`
}

// Report summarizes one reconciliation run. Diffs is empty when the stored
// aggregates already matched the ground truth.
type Report struct {
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	CustomersScanned int       `json:"customers_scanned"`
	Diffs            []Diff    `json:"diffs"`
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Counts  aggregatedomain.Repository
	Metrics *metrics.Metrics
	Audit   auditdomain.Service `optional:"true"`
	Config  Config              `optional:"true"`
}

type Job struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	counts  aggregatedomain.Repository
	metrics *metrics.Metrics
	audit   auditdomain.Service

	running atomic.Bool
}

func New(p Params) (*Job, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Counts == nil || p.Metrics == nil {
		return nil, ErrInvalidConfig
	}
	return &Job{
		db:      p.DB,
		log:     p.Log.Named("reconcile").With(zap.String("component", "reconcile")),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		counts:  p.Counts,
		metrics: p.Metrics,
		audit:   p.Audit,
	}, nil
}

// Run recomputes both aggregate tables in one transaction. Only one run may
// be in flight per process; concurrent calls fail with ErrAlreadyRunning.
func (j *Job) Run(parent context.Context) (Report, error) {
	rec := metrics.Reconcile()
	if !j.running.CompareAndSwap(false, true) {
		rec.IncRun("skipped")
		return Report{}, ErrAlreadyRunning
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(parent, j.cfg.RunTimeout)
	defer cancel()

	start := j.clock.Now().UTC()
	report, err := j.runOnce(ctx, start)
	elapsed := time.Since(start)
	if err != nil {
		rec.IncRun("error")
		rec.IncRunError(err)
		j.log.Error("reconciliation run failed", zap.Error(err))
		return Report{}, err
	}

	rec.IncRun("success")
	rec.ObserveRunDuration("full", elapsed)
	rec.AddRowsScanned("customers", report.CustomersScanned)
	if len(report.Diffs) > 0 {
		j.metrics.RecordReconcileDrift(ctx, int64(len(report.Diffs)))
		perTable := map[string]int{}
		for _, diff := range report.Diffs {
			perTable[diff.Table]++
		}
		for table, count := range perTable {
			rec.AddDriftCorrected(table, count)
		}
		j.log.Warn("reconciliation corrected drift",
			zap.Int("diffs", len(report.Diffs)),
			zap.Int("customers_scanned", report.CustomersScanned),
		)
	} else {
		j.log.Info("reconciliation clean",
			zap.Int("customers_scanned", report.CustomersScanned),
			zap.Duration("elapsed", elapsed),
		)
	}

	j.recordAudit(ctx, report)
	return report, nil
}

type certifiedRow struct {
	CertifiedAt     time.Time
	CertificateType *string
}

func (j *Job) runOnce(ctx context.Context, start time.Time) (Report, error) {
	report := Report{StartedAt: start}

	err := j.db.Transaction(func(tx *gorm.DB) error {
		var rows []certifiedRow
		err := tx.WithContext(ctx).Raw(
			`SELECT certified_at, certificate_type
			 FROM customers
			 WHERE certified_at IS NOT NULL AND deleted_at IS NULL`,
		).Scan(&rows).Error
		if err != nil {
			return err
		}
		report.CustomersScanned = len(rows)

		expected := map[string]int64{}
		expectedByType := map[string]map[string]int64{}
		for _, row := range rows {
			month := aggregatedomain.MonthKey(row.CertifiedAt)
			expected[month]++

			byType := expectedByType[month]
			if byType == nil {
				byType = map[string]int64{}
				expectedByType[month] = byType
			}
			byType[typeLabel(row.CertificateType)]++
		}

		previous, err := j.counts.GetRange(ctx, tx, "0000-01", "9999-12")
		if err != nil {
			return err
		}
		previousByType, err := j.counts.GetRangeByType(ctx, tx, "0000-01", "9999-12")
		if err != nil {
			return err
		}

		report.Diffs = append(report.Diffs, diffMonthly(previous, expected)...)
		report.Diffs = append(report.Diffs, diffByType(previousByType, expectedByType)...)

		counts, byType := buildRows(expected, expectedByType, start)
		rewriteStart := time.Now()
		if err := j.counts.ReplaceAll(ctx, tx, counts, byType); err != nil {
			return err
		}
		metrics.Reconcile().ObserveDBLockWait(time.Since(rewriteStart))
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	report.FinishedAt = j.clock.Now().UTC()
	return report, nil
}

func diffMonthly(previous []*aggregatedomain.MonthlyCount, expected map[string]int64) []Diff {
	stored := map[string]int64{}
	for _, row := range previous {
		if row == nil {
			continue
		}
		stored[row.Month] = row.Count
	}

	var diffs []Diff
	for _, month := range sortedKeys(unionKeys(stored, expected)) {
		if stored[month] == expected[month] {
			continue
		}
		diffs = append(diffs, Diff{
			Table:      aggregatedomain.MonthlyCount{}.TableName(),
			Key:        month,
			Previous:   stored[month],
			Recomputed: expected[month],
		})
	}
	return diffs
}

func diffByType(previous []*aggregatedomain.MonthlyCountByType, expected map[string]map[string]int64) []Diff {
	stored := map[string]int64{}
	for _, row := range previous {
		if row == nil {
			continue
		}
		stored[row.Month+"/"+row.CertificateType] = row.Count
	}

	want := map[string]int64{}
	for month, byType := range expected {
		for certificateType, count := range byType {
			want[month+"/"+certificateType] = count
		}
	}

	var diffs []Diff
	for _, key := range sortedKeys(unionKeys(stored, want)) {
		if stored[key] == want[key] {
			continue
		}
		diffs = append(diffs, Diff{
			Table:      aggregatedomain.MonthlyCountByType{}.TableName(),
			Key:        key,
			Previous:   stored[key],
			Recomputed: want[key],
		})
	}
	return diffs
}

func buildRows(expected map[string]int64, expectedByType map[string]map[string]int64, now time.Time) ([]*aggregatedomain.MonthlyCount, []*aggregatedomain.MonthlyCountByType) {
	counts := make([]*aggregatedomain.MonthlyCount, 0, len(expected))
	for _, month := range sortedKeys(expected) {
		counts = append(counts, &aggregatedomain.MonthlyCount{
			Month:     month,
			Count:     expected[month],
			UpdatedAt: now,
		})
	}

	var byType []*aggregatedomain.MonthlyCountByType
	for _, month := range sortedKeys(expectedByType) {
		for _, certificateType := range sortedKeys(expectedByType[month]) {
			byType = append(byType, &aggregatedomain.MonthlyCountByType{
				Month:           month,
				CertificateType: certificateType,
				Count:           expectedByType[month][certificateType],
				UpdatedAt:       now,
			})
		}
	}
	return counts, byType
}

func (j *Job) recordAudit(ctx context.Context, report Report) {
	if j.audit == nil {
		return
	}
	metadata := map[string]any{
		"customers_scanned": report.CustomersScanned,
		"diffs":             len(report.Diffs),
	}
	if err := j.audit.AuditLog(ctx, string(auditdomain.ActorTypeSystem), nil, "reconciliation.run", "aggregate", nil, metadata); err != nil {
		j.log.Warn("audit write failed", zap.Error(err))
	}
}

func typeLabel(certificateType *string) string {
	if certificateType == nil || *certificateType == "" {
		return aggregatedomain.TypeUnspecified
	}
	return *certificateType
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func unionKeys(a, b map[string]int64) map[string]int64 {
	union := make(map[string]int64, len(a)+len(b))
	for key := range a {
		union[key] = 0
	}
	for key := range b {
		union[key] = 0
	}
	return union
}
