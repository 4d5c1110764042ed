package codes

import (
	"context"
	"fmt"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/utils"
	"regexp"
	"strings"
	"unicode"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

// Normalize strips whitespace, hyphens and invisible characters from a
// user-supplied code and rejects anything that is not exactly six digits.
// Runs before any storage access.
func Normalize(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return -1
		case r == '-':
			return -1
		// Zero-width and word-joiner characters that survive copy-paste
		// from chat apps.
		case r == '\u200b', r == '\u200c', r == '\u200d', r == '\u2060', r == '\ufeff':
			return -1
		}
		return r
	}, raw)

	if !codePattern.MatchString(cleaned) {
		return "", models.ErrInvalidCode
	}
	return cleaned, nil
}

// IsWellFormed reports whether a stored code already conforms.
func IsWellFormed(code string) bool {
	return codePattern.MatchString(code)
}

type TicketDB interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	AssignCode(ctx context.Context, ticketID, code string) (int64, error)
}

// Issuer hands out door-scan codes, unique across all live tickets. The
// conditional assign-if-null update is the only mutual exclusion; concurrent
// issuers for the same ticket converge on whichever code landed first.
type Issuer struct {
	DB          TicketDB
	MaxAttempts int
	Logger      *logger.Logger
}

func NewIssuer(db TicketDB, maxAttempts int, log *logger.Logger) *Issuer {
	if maxAttempts <= 0 {
		maxAttempts = 12
	}
	return &Issuer{DB: db, MaxAttempts: maxAttempts, Logger: log}
}

// EnsureCode returns the ticket's validation code, assigning one if the
// ticket does not have one yet. Idempotent: repeated calls return the same
// code. Exhausting the retry limit is a hard failure signalling the code
// space is under pressure.
func (i *Issuer) EnsureCode(ctx context.Context, ticketID string) (string, error) {
	ticket, err := i.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if IsWellFormed(ticket.ValidationCode) {
		return ticket.ValidationCode, nil
	}

	for attempt := 1; attempt <= i.MaxAttempts; attempt++ {
		candidate := utils.GenerateSixDigitCode()

		rows, err := i.DB.AssignCode(ctx, ticketID, candidate)
		if err != nil {
			if isCollision(err) {
				// Candidate belongs to another live ticket; draw again.
				if i.Logger != nil {
					i.Logger.Debug("CODES", fmt.Sprintf("code collision on attempt %d for ticket %s", attempt, ticketID))
				}
				continue
			}
			return "", err
		}
		if rows == 1 {
			return candidate, nil
		}

		// Zero rows affected: the code column was no longer null. Another
		// issuer has just assigned one; re-read and return it.
		ticket, err = i.DB.GetTicketByID(ctx, ticketID)
		if err != nil {
			return "", err
		}
		if IsWellFormed(ticket.ValidationCode) {
			return ticket.ValidationCode, nil
		}
	}

	if i.Logger != nil {
		i.Logger.Error("CODES", fmt.Sprintf("exhausted %d attempts assigning a code to ticket %s", i.MaxAttempts, ticketID))
	}
	return "", models.ErrCodeSpaceExhausted
}

// isCollision matches the unique-constraint wording of both backends without
// importing the db package (which depends on bun directly).
func isCollision(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
