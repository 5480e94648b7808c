package certificates

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/pkg/clock"
	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
)

const (
	numberPrefix = "TC"
	sequenceMax  = 999999
)

var numberPattern = regexp.MustCompile(`^TC-\d{4}-\d{6}$`)

// FormatNumber renders TC-<year>-<seq> with a six digit sequence.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("%s-%04d-%06d", numberPrefix, year, seq)
}

// ValidNumber reports whether number has the TC-YYYY-NNNNNN shape.
func ValidNumber(number string) bool {
	return numberPattern.MatchString(number)
}

// ParseNumber splits a certificate number into its year and sequence.
func ParseNumber(number string) (year, seq int, ok bool) {
	if !ValidNumber(number) {
		return 0, 0, false
	}
	parts := strings.Split(number, "-")
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, false
	}
	return year, seq, true
}

func yearPrefix(year int) string {
	return fmt.Sprintf("%s-%04d-", numberPrefix, year)
}

// upsertSequenceSQL bumps the per-year counter, never letting it fall behind the seed.
const upsertSequenceSQL = `INSERT INTO certificate_sequences (year, last_value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (year) DO UPDATE SET
	last_value = CASE
		WHEN certificate_sequences.last_value + 1 > excluded.last_value THEN certificate_sequences.last_value + 1
		ELSE excluded.last_value
	END,
	updated_at = excluded.updated_at
RETURNING last_value`

// Allocator hands out certificate numbers. It must run inside the
// certificate-creation transaction so the counter row lock is held until commit.
type Allocator struct {
	now func() time.Time
}

// NewAllocator reads the certificate year from clk, in UTC. A nil clock
// falls back to the wall clock.
func NewAllocator(clk clock.Clock) *Allocator {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Allocator{now: func() time.Time { return clk.Now().UTC() }}
}

// Next allocates the next number for the current year.
func (a *Allocator) Next(ctx context.Context, tx *gorm.DB) (string, error) {
	year := a.now().Year()
	highest, err := highestSequence(ctx, tx, year)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan certificate numbers")
	}

	var value int
	row := tx.WithContext(ctx).Raw(upsertSequenceSQL, year, highest+1, a.now()).Row()
	if err := row.Scan(&value); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance certificate sequence")
	}
	if value > sequenceMax {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "certificate sequence exhausted for year").
			WithDetails(map[string]any{"year": year})
	}
	return FormatNumber(year, value), nil
}

// Reserve validates a caller-supplied number and checks it is unused.
func (a *Allocator) Reserve(ctx context.Context, tx *gorm.DB, number string) (string, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if !ValidNumber(number) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "certificate number must match TC-YYYY-NNNNNN").
			WithDetails(map[string]any{"certificate_number": number})
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("certificate_number = ?", number).
		Count(&count).Error
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup certificate number")
	}
	if count > 0 {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "certificate number already exists").
			WithDetails(map[string]any{"certificate_number": number})
	}
	return number, nil
}

// highestSequence returns the largest suffix already used for year, or zero.
func highestSequence(ctx context.Context, tx *gorm.DB, year int) (int, error) {
	var numbers []string
	err := tx.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("certificate_number LIKE ?", yearPrefix(year)+"%").
		Order("certificate_number DESC").
		Limit(1).
		Pluck("certificate_number", &numbers).Error
	if err != nil {
		return 0, err
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	_, seq, ok := ParseNumber(numbers[0])
	if !ok {
		return 0, nil
	}
	return seq, nil
}
