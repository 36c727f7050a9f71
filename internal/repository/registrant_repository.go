package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/housing-service/internal/domain"
)

// RegistrantFilter captures registrant search parameters.
type RegistrantFilter struct {
	Query           string
	Gender          *domain.Gender
	UnallocatedOnly bool
	Limit           int
	Offset          int
}

// RegistrantRepository is a read-only view of the intake records.
type RegistrantRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Registrant, error)
	Search(ctx context.Context, filter RegistrantFilter) ([]domain.Registrant, error)
}

type registrantRepository struct {
	pool *pgxpool.Pool
}

// NewRegistrantRepository instantiates the repository.
func NewRegistrantRepository(pool *pgxpool.Pool) RegistrantRepository {
	return &registrantRepository{pool: pool}
}

const registrantColumns = `id, full_name, email, phone, gender, date_of_birth, created_at`

func (r *registrantRepository) GetByID(ctx context.Context, id string) (*domain.Registrant, error) {
	query := `SELECT ` + registrantColumns + ` FROM registrants WHERE id=$1`
	reg, err := scanRegistrant(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return reg, nil
}

func (r *registrantRepository) Search(ctx context.Context, filter RegistrantFilter) ([]domain.Registrant, error) {
	base := `SELECT ` + registrantColumns + ` FROM registrants r`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Gender != nil {
		args = append(args, *filter.Gender)
		clauses = append(clauses, fmt.Sprintf("r.gender=$%d", len(args)))
	}
	if filter.UnallocatedOnly {
		clauses = append(clauses, "NOT EXISTS (SELECT 1 FROM allocations a WHERE a.registrant_id = r.id AND a.is_active)")
	}
	if term := strings.TrimSpace(filter.Query); term != "" {
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(term))+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(LOWER(r.full_name) LIKE %[1]s ESCAPE '\' OR LOWER(r.email) LIKE %[1]s ESCAPE '\' OR LOWER(r.phone) LIKE %[1]s ESCAPE '\')`,
			placeholder))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`%s WHERE %s ORDER BY r.full_name ASC, r.id ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Registrant
	for rows.Next() {
		reg, err := scanRegistrant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *reg)
	}
	return result, rows.Err()
}

// likeEscaper makes a search term match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanRegistrant(row pgx.Row) (*domain.Registrant, error) {
	var reg domain.Registrant
	if err := row.Scan(
		&reg.ID,
		&reg.FullName,
		&reg.Email,
		&reg.Phone,
		&reg.Gender,
		&reg.DateOfBirth,
		&reg.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &reg, nil
}

// DefaultPageSize and MaxPageSize bound list queries.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
