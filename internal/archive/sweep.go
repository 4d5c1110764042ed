package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"ms-admission/internal/inventory"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/monitoring"
	ticketdb "ms-admission/internal/tickets/db"
	"time"

	"github.com/uptrace/bun"
)

// ArchivedBy tags written into the snapshot, so operators can tell a
// scheduled reclaim from a manual backfill.
const (
	SweeperIdentity  = "system:sweep"
	BackfillIdentity = "system:backfill"
)

// Publisher notifies downstream consumers that a ticket left the live table.
type Publisher interface {
	PublishTicketArchived(event models.TicketEvent) error
}

// Sweeper reclaims expired reservations: snapshot to the archive table,
// delete the live row, both in one transaction per ticket. One bad ticket
// never aborts the batch.
type Sweeper struct {
	Bun       *bun.DB
	Tickets   *ticketdb.DB
	Ledger    *inventory.DB
	Archives  *DB
	Publisher Publisher
	Logger    *logger.Logger
	BatchSize int
}

func NewSweeper(bunDB *bun.DB, publisher Publisher, log *logger.Logger, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Sweeper{
		Bun:       bunDB,
		Tickets:   &ticketdb.DB{Bun: bunDB},
		Ledger:    &inventory.DB{Bun: bunDB},
		Archives:  &DB{Bun: bunDB},
		Publisher: publisher,
		Logger:    log,
		BatchSize: batchSize,
	}
}

// Default isolation: read committed on Postgres.
func (s *Sweeper) txOptions() *sql.TxOptions {
	return &sql.TxOptions{}
}

// RunOnce sweeps tickets whose payment never completed within the
// reservation window.
func (s *Sweeper) RunOnce(ctx context.Context) (*models.SweepResult, error) {
	started := time.Now()
	result := &models.SweepResult{Now: started}

	candidates, err := s.Tickets.ListExpired(ctx, started, s.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired tickets: %w", err)
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		outcome, err := s.archiveOne(ctx, candidate.TicketID, SweeperIdentity, models.ReasonPaymentTimeout, started, s.eligibleForTimeout)
		switch {
		case err != nil:
			result.Failed++
			s.Logger.Error("SWEEP", fmt.Sprintf("failed to archive ticket %s: %v", candidate.TicketID, err))
		case outcome == outcomeSkipped:
			result.Skipped++
		default:
			result.Archived++
		}
	}

	monitoring.TrackSweep(result.Archived, result.Skipped, result.Failed, time.Since(started).Seconds())
	s.Logger.LogSweep("RUN", fmt.Sprintf("checked %d, archived %d, skipped %d, failed %d", result.Checked, result.Archived, result.Skipped, result.Failed))
	return result, nil
}

// Backfill archives tickets older than the cutoff regardless of expiry, the
// manual cleanup path for rows the scheduled sweep predates.
func (s *Sweeper) Backfill(ctx context.Context, olderThan time.Duration) (*models.SweepResult, error) {
	started := time.Now()
	cutoff := started.Add(-olderThan)
	result := &models.SweepResult{Now: started}

	candidates, err := s.Tickets.ListStale(ctx, cutoff, s.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale tickets: %w", err)
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		eligible := func(t *models.Ticket) bool {
			return t.PaymentStatus.TimeoutEligible() && !t.PurchaseDate.After(cutoff)
		}
		outcome, err := s.archiveOne(ctx, candidate.TicketID, BackfillIdentity, models.ReasonManual, started, eligible)
		switch {
		case err != nil:
			result.Failed++
			s.Logger.Error("SWEEP", fmt.Sprintf("backfill failed for ticket %s: %v", candidate.TicketID, err))
		case outcome == outcomeSkipped:
			result.Skipped++
		default:
			result.Archived++
		}
	}

	monitoring.TrackSweep(result.Archived, result.Skipped, result.Failed, time.Since(started).Seconds())
	s.Logger.LogSweep("BACKFILL", fmt.Sprintf("cutoff %s: checked %d, archived %d, skipped %d, failed %d", cutoff.Format(time.RFC3339), result.Checked, result.Archived, result.Skipped, result.Failed))
	return result, nil
}

type archiveOutcome int

const (
	outcomeArchived archiveOutcome = iota
	outcomeSkipped
)

func (s *Sweeper) eligibleForTimeout(t *models.Ticket) bool {
	return t.PaymentStatus.TimeoutEligible() && !t.ExpiresAt.After(time.Now())
}

// archiveOne moves a single ticket to the archive inside its own
// transaction. Eligibility is re-checked on the fresh row: between listing
// and this transaction a webhook may have approved the ticket, and that
// outcome wins.
func (s *Sweeper) archiveOne(ctx context.Context, ticketID, by string, reason models.ArchiveReason, at time.Time, eligible func(*models.Ticket) bool) (archiveOutcome, error) {
	outcome := outcomeArchived
	var archived *models.Ticket

	err := s.Bun.RunInTx(ctx, s.txOptions(), func(ctx context.Context, tx bun.Tx) error {
		tickets := s.Tickets.WithTx(tx)
		archives := s.Archives.WithTx(tx)
		ledger := s.Ledger.WithTx(tx)

		ticket, err := tickets.GetTicketByID(ctx, ticketID)
		if err != nil {
			if errors.Is(err, models.ErrTicketNotFound) {
				// Another sweeper got it first.
				outcome = outcomeSkipped
				return nil
			}
			return err
		}
		if !eligible(ticket) {
			outcome = outcomeSkipped
			return nil
		}

		// An approved VIP ticket should never reach the archive path; if one
		// does, give its units back so the ledger does not leak capacity.
		if ticket.PaymentStatus == models.StatusApproved && ticket.IsVIP() {
			s.Logger.LogInvariant("SWEEP", fmt.Sprintf("archiving approved VIP ticket %s (event %s, location %s); releasing %d units", ticket.TicketID, ticket.EventID, ticket.Location, ticket.Quantity))
			monitoring.TrackInvariantViolation("sweep")
			if err := ledger.AdjustSold(ctx, ticket.EventID, ticket.Location, -ticket.Quantity); err != nil {
				return err
			}
		}

		snapshot := models.NewTicketArchive(*ticket, by, reason, at)
		if err := archives.InsertArchive(ctx, &snapshot); err != nil {
			return err
		}

		rows, err := tickets.DeleteTicket(ctx, ticket.TicketID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("ticket %s vanished mid-archive", ticket.TicketID)
		}

		archived = ticket
		return nil
	})
	if err != nil {
		return outcome, err
	}

	if outcome == outcomeArchived && archived != nil && s.Publisher != nil {
		event := models.TicketEvent{
			Type:      "ticket.archived",
			TicketID:  archived.TicketID,
			EventID:   archived.EventID,
			Status:    archived.PaymentStatus,
			Timestamp: at,
		}
		if err := s.Publisher.PublishTicketArchived(event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish archive event for ticket %s: %v", archived.TicketID, err))
		}
	}
	return outcome, nil
}
