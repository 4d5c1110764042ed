package codes_test

import (
	"context"
	"errors"
	"ms-admission/internal/models"
	"ms-admission/internal/tickets/codes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plain", "123456", "123456", false},
		{"leading zeros", "000042", "000042", false},
		{"surrounding spaces", "  123456  ", "123456", false},
		{"hyphenated", "123-456", "123456", false},
		{"zero width space", "123\u200b456", "123456", false},
		{"zero width joiners", "1\u200c2\u200d3456", "123456", false},
		{"word joiner", "123\u20604\u20605\u20606", "123456", false},
		{"byte order mark", "\ufeff123456", "123456", false},
		{"too short", "12345", "", true},
		{"too long", "1234567", "", true},
		{"letters", "12a456", "", true},
		{"empty", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := codes.Normalize(tc.raw)
			if tc.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidCode)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

// fakeTicketDB scripts the storage answers the issuer sees.
type fakeTicketDB struct {
	ticket      *models.Ticket
	assignErr   error
	assignRows  int64
	assignCalls int
	// codeAfterAssign is what a re-read returns once assignRows was 0.
	codeAfterAssign string
}

func (f *fakeTicketDB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	if f.ticket == nil {
		return nil, models.ErrTicketNotFound
	}
	copied := *f.ticket
	if f.assignCalls > 0 && f.codeAfterAssign != "" {
		copied.ValidationCode = f.codeAfterAssign
	}
	return &copied, nil
}

func (f *fakeTicketDB) AssignCode(ctx context.Context, ticketID, code string) (int64, error) {
	f.assignCalls++
	if f.assignErr != nil {
		return 0, f.assignErr
	}
	return f.assignRows, nil
}

func TestEnsureCodeIdempotent(t *testing.T) {
	fake := &fakeTicketDB{ticket: &models.Ticket{TicketID: "t1", ValidationCode: "123456"}}
	issuer := codes.NewIssuer(fake, 5, nil)

	code, err := issuer.EnsureCode(context.Background(), "t1")
	assert.NoError(t, err)
	assert.Equal(t, "123456", code)
	assert.Equal(t, 0, fake.assignCalls)
}

func TestEnsureCodeAssignsNewCode(t *testing.T) {
	fake := &fakeTicketDB{ticket: &models.Ticket{TicketID: "t1"}, assignRows: 1}
	issuer := codes.NewIssuer(fake, 5, nil)

	code, err := issuer.EnsureCode(context.Background(), "t1")
	assert.NoError(t, err)
	assert.True(t, codes.IsWellFormed(code))
	assert.Equal(t, 1, fake.assignCalls)
}

func TestEnsureCodeConcurrentWinner(t *testing.T) {
	// Zero rows affected with no error: another issuer assigned first; the
	// re-read returns the winner's code.
	fake := &fakeTicketDB{
		ticket:          &models.Ticket{TicketID: "t1"},
		assignRows:      0,
		codeAfterAssign: "777777",
	}
	issuer := codes.NewIssuer(fake, 5, nil)

	code, err := issuer.EnsureCode(context.Background(), "t1")
	assert.NoError(t, err)
	assert.Equal(t, "777777", code)
}

func TestEnsureCodeRetriesOnCollision(t *testing.T) {
	fake := &fakeTicketDB{
		ticket:    &models.Ticket{TicketID: "t1"},
		assignErr: errors.New("UNIQUE constraint failed: tickets.validation_code"),
	}
	issuer := codes.NewIssuer(fake, 4, nil)

	_, err := issuer.EnsureCode(context.Background(), "t1")
	assert.ErrorIs(t, err, models.ErrCodeSpaceExhausted)
	assert.Equal(t, 4, fake.assignCalls)
}

func TestEnsureCodeMissingTicket(t *testing.T) {
	issuer := codes.NewIssuer(&fakeTicketDB{}, 5, nil)

	_, err := issuer.EnsureCode(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrTicketNotFound)
}
