package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/housing-service/internal/domain"
)

// LedgerTx is the write scope of one allocation change. Reads made through it
// observe the state the transaction is about to modify, with the room row and
// registrant key locked until commit.
type LedgerTx interface {
	LockRoom(ctx context.Context, roomID string) (*domain.Room, error)
	ActiveByRegistrant(ctx context.Context, registrantID string) (*domain.Allocation, error)
	ActiveOccupants(ctx context.Context, roomID string) ([]domain.Occupant, error)
	// CountActive counts every active allocation in the room, including ones
	// whose registrant no longer resolves.
	CountActive(ctx context.Context, roomID string) (int, error)
	Insert(ctx context.Context, alloc *domain.Allocation) error
	Deactivate(ctx context.Context, allocationID string, d domain.Deallocation) error
}

// AllocationRepository is the allocation ledger.
type AllocationRepository interface {
	// InTx runs fn with the registrant serialized against every other InTx
	// call for the same registrant. fn's error aborts the transaction.
	InTx(ctx context.Context, registrantID string, fn func(tx LedgerTx) error) error
	ActiveByRegistrant(ctx context.Context, registrantID string) (*domain.Allocation, error)
	History(ctx context.Context, registrantID string) ([]domain.Allocation, error)
	ActiveOccupants(ctx context.Context, roomID string) ([]domain.Occupant, error)
	OccupancyCounts(ctx context.Context) (map[string]int, error)
	// DeactivateIfActive ends an allocation outside the allocator's write
	// path; it reports false when the allocation was already inactive or gone.
	DeactivateIfActive(ctx context.Context, allocationID string, d domain.Deallocation) (bool, error)
	// Snapshot is one consistent read of rooms, active allocations and the
	// registrants they reference.
	Snapshot(ctx context.Context) (*domain.LedgerSnapshot, error)
}

type allocationRepository struct {
	pool *pgxpool.Pool
}

// NewAllocationRepository instantiates the Postgres ledger.
func NewAllocationRepository(pool *pgxpool.Pool) AllocationRepository {
	return &allocationRepository{pool: pool}
}

const allocationColumns = `a.id, a.registrant_id, a.room_id, a.allocated_by, a.allocated_at, a.age_gap_tolerance,
               a.is_active, a.deallocated_by, a.deallocated_at, a.deallocation_reason`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *allocationRepository) InTx(ctx context.Context, registrantID string, fn func(tx LedgerTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "registrant:"+registrantID); err != nil {
		return err
	}
	if err := fn(&pgLedgerTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *allocationRepository) ActiveByRegistrant(ctx context.Context, registrantID string) (*domain.Allocation, error) {
	return activeByRegistrant(ctx, r.pool, registrantID)
}

func (r *allocationRepository) History(ctx context.Context, registrantID string) ([]domain.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations a
        WHERE a.registrant_id=$1 ORDER BY a.allocated_at DESC`
	rows, err := r.pool.Query(ctx, query, registrantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAllocations(rows)
}

func (r *allocationRepository) ActiveOccupants(ctx context.Context, roomID string) ([]domain.Occupant, error) {
	return activeOccupants(ctx, r.pool, roomID)
}

func (r *allocationRepository) OccupancyCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT room_id, COUNT(*) FROM allocations WHERE is_active GROUP BY room_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var roomID string
		var count int
		if err := rows.Scan(&roomID, &count); err != nil {
			return nil, err
		}
		counts[roomID] = count
	}
	return counts, rows.Err()
}

func (r *allocationRepository) DeactivateIfActive(ctx context.Context, allocationID string, d domain.Deallocation) (bool, error) {
	err := deactivate(ctx, r.pool, allocationID, d)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *allocationRepository) Snapshot(ctx context.Context) (*domain.LedgerSnapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap := &domain.LedgerSnapshot{
		Rooms:       make(map[string]domain.Room),
		Registrants: make(map[string]domain.Registrant),
	}
	if err := tx.QueryRow(ctx, `SELECT NOW()`).Scan(&snap.TakenAt); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT `+roomColumns+` FROM rooms`)
	if err != nil {
		return nil, err
	}
	rooms, err := scanRooms(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	for _, room := range rooms {
		snap.Rooms[room.ID] = room
	}

	rows, err = tx.Query(ctx, `SELECT `+allocationColumns+` FROM allocations a WHERE a.is_active ORDER BY a.allocated_at ASC, a.id ASC`)
	if err != nil {
		return nil, err
	}
	snap.Allocations, err = scanAllocations(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `SELECT `+registrantColumns+` FROM registrants
        WHERE id IN (SELECT registrant_id FROM allocations WHERE is_active)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		reg, err := scanRegistrant(rows)
		if err != nil {
			return nil, err
		}
		snap.Registrants[reg.ID] = *reg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, tx.Commit(ctx)
}

type pgLedgerTx struct {
	tx pgx.Tx
}

func (t *pgLedgerTx) LockRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id=$1 FOR UPDATE`
	room, err := scanRoom(t.tx.QueryRow(ctx, query, roomID))
	if err != nil {
		return nil, translate(err)
	}
	return room, nil
}

func (t *pgLedgerTx) ActiveByRegistrant(ctx context.Context, registrantID string) (*domain.Allocation, error) {
	return activeByRegistrant(ctx, t.tx, registrantID)
}

func (t *pgLedgerTx) ActiveOccupants(ctx context.Context, roomID string) ([]domain.Occupant, error) {
	return activeOccupants(ctx, t.tx, roomID)
}

func (t *pgLedgerTx) CountActive(ctx context.Context, roomID string) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM allocations WHERE room_id=$1 AND is_active`, roomID).Scan(&count)
	return count, err
}

func (t *pgLedgerTx) Insert(ctx context.Context, alloc *domain.Allocation) error {
	const query = `
        INSERT INTO allocations (id, registrant_id, room_id, allocated_by, allocated_at, age_gap_tolerance, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,TRUE)`
	_, err := t.tx.Exec(ctx, query,
		alloc.ID,
		alloc.RegistrantID,
		alloc.RoomID,
		alloc.AllocatedBy,
		alloc.AllocatedAt,
		alloc.AgeGapTolerance,
	)
	if err != nil {
		return translate(err)
	}
	alloc.Active = true
	return nil
}

func (t *pgLedgerTx) Deactivate(ctx context.Context, allocationID string, d domain.Deallocation) error {
	return deactivate(ctx, t.tx, allocationID, d)
}

func activeByRegistrant(ctx context.Context, q querier, registrantID string) (*domain.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations a
        WHERE a.registrant_id=$1 AND a.is_active
        ORDER BY a.allocated_at ASC LIMIT 1`
	alloc, err := scanAllocation(q.QueryRow(ctx, query, registrantID))
	if err != nil {
		return nil, translate(err)
	}
	return alloc, nil
}

func activeOccupants(ctx context.Context, q querier, roomID string) ([]domain.Occupant, error) {
	query := `SELECT ` + allocationColumns + `,
               r.id, r.full_name, r.email, r.phone, r.gender, r.date_of_birth, r.created_at
        FROM allocations a
        JOIN registrants r ON r.id = a.registrant_id
        WHERE a.room_id=$1 AND a.is_active
        ORDER BY a.allocated_at ASC`
	rows, err := q.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Occupant
	for rows.Next() {
		var occ domain.Occupant
		a, reg := &occ.Allocation, &occ.Registrant
		if err := rows.Scan(
			&a.ID, &a.RegistrantID, &a.RoomID, &a.AllocatedBy, &a.AllocatedAt, &a.AgeGapTolerance,
			&a.Active, &a.DeallocatedBy, &a.DeallocatedAt, &a.DeallocationReason,
			&reg.ID, &reg.FullName, &reg.Email, &reg.Phone, &reg.Gender, &reg.DateOfBirth, &reg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, occ)
	}
	return result, rows.Err()
}

func deactivate(ctx context.Context, q querier, allocationID string, d domain.Deallocation) error {
	at := d.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	const query = `
        UPDATE allocations
        SET is_active=FALSE, deallocated_by=$1, deallocated_at=$2, deallocation_reason=NULLIF($3, '')
        WHERE id=$4 AND is_active
        RETURNING id`
	var id string
	if err := q.QueryRow(ctx, query, d.Actor, at, d.Reason, allocationID).Scan(&id); err != nil {
		return translate(err)
	}
	return nil
}

func scanAllocation(row pgx.Row) (*domain.Allocation, error) {
	var a domain.Allocation
	if err := row.Scan(
		&a.ID,
		&a.RegistrantID,
		&a.RoomID,
		&a.AllocatedBy,
		&a.AllocatedAt,
		&a.AgeGapTolerance,
		&a.Active,
		&a.DeallocatedBy,
		&a.DeallocatedAt,
		&a.DeallocationReason,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAllocations(rows pgx.Rows) ([]domain.Allocation, error) {
	var result []domain.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}
