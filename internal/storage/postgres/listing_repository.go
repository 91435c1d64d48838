package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/domain"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/events"
)

// ListingRepository persists listings, their reservation set, and the
// outbox rows that ride the same transaction.
type ListingRepository struct {
	pool *pgxpool.Pool
}

func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{pool: pool}
}

func (r *ListingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ListingRepository) CreateListing(ctx context.Context, listing domain.Listing) error {
	const stmt = `
INSERT INTO listings (id, seller_id, title, quantity, available_quantity, total_sold, status, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.exec(ctx, stmt,
		listing.ID,
		listing.SellerID,
		listing.Title,
		listing.Quantity,
		listing.AvailableQuantity,
		listing.TotalSold,
		listing.Status,
		listing.Version,
		listing.CreatedAt,
		listing.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

func (r *ListingRepository) GetListing(ctx context.Context, listingID string) (domain.Listing, error) {
	const query = `
SELECT id, seller_id, title, quantity, available_quantity, total_sold, status, version, last_sale_at, created_at, updated_at
FROM listings
WHERE id = $1`

	var l domain.Listing
	var status string
	err := r.queryRow(ctx, query, listingID).Scan(
		&l.ID,
		&l.SellerID,
		&l.Title,
		&l.Quantity,
		&l.AvailableQuantity,
		&l.TotalSold,
		&status,
		&l.Version,
		&l.LastSaleAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Listing{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Listing{}, domain.ErrListingNotFound
		}
		return domain.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	l.Status = domain.ListingStatus(status)

	reservations, err := r.reservationsFor(ctx, listingID)
	if err != nil {
		return domain.Listing{}, err
	}
	l.Reservations = reservations
	return l, nil
}

func (r *ListingRepository) GetListings(ctx context.Context, listingIDs []string) ([]domain.Listing, error) {
	if len(listingIDs) == 0 {
		return nil, nil
	}

	const query = `
SELECT l.id, l.seller_id, l.title, l.quantity, l.available_quantity, l.total_sold, l.status, l.version, l.last_sale_at, l.created_at, l.updated_at
FROM listings l
WHERE l.id = ANY($1)
ORDER BY l.created_at ASC`

	listings, err := r.scanListings(ctx, query, listingIDs)
	if err != nil {
		return nil, err
	}
	return r.attachReservations(ctx, listings)
}

func (r *ListingRepository) ListListings(ctx context.Context, limit, offset int) ([]domain.Listing, error) {
	const query = `
SELECT id, seller_id, title, quantity, available_quantity, total_sold, status, version, last_sale_at, created_at, updated_at
FROM listings
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`

	listings, err := r.scanListings(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return r.attachReservations(ctx, listings)
}

// UpdateListingGuarded is the conditional write at the heart of the ledger:
// it only lands when no other writer bumped the version since the caller's
// read. A false return means the caller lost the race and must retry.
func (r *ListingRepository) UpdateListingGuarded(ctx context.Context, listing domain.Listing, expectedVersion int64) (bool, error) {
	const stmt = `
UPDATE listings
SET quantity = $3,
    available_quantity = $4,
    total_sold = $5,
    status = $6,
    version = $7,
    last_sale_at = $8,
    updated_at = $9
WHERE id = $1 AND version = $2`

	tag, err := r.exec(ctx, stmt,
		listing.ID,
		expectedVersion,
		listing.Quantity,
		listing.AvailableQuantity,
		listing.TotalSold,
		listing.Status,
		listing.Version,
		listing.LastSaleAt,
		listing.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("update listing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ListingRepository) InsertReservation(ctx context.Context, res domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (listing_id, transaction_id, quantity, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt,
		res.ListingID,
		res.TransactionID,
		res.Quantity,
		res.ExpiresAt,
		res.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReservationConflict
		}
		if isForeignKeyViolation(err) {
			return domain.ErrListingNotFound
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *ListingRepository) DeleteReservation(ctx context.Context, listingID, transactionID string) (bool, error) {
	const stmt = `DELETE FROM reservations WHERE listing_id = $1 AND transaction_id = $2`

	tag, err := r.exec(ctx, stmt, listingID, transactionID)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("delete reservation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ListingRepository) DeleteReservations(ctx context.Context, listingID string, transactionIDs []string) error {
	if len(transactionIDs) == 0 {
		return nil
	}
	const stmt = `DELETE FROM reservations WHERE listing_id = $1 AND transaction_id = ANY($2)`

	if _, err := r.exec(ctx, stmt, listingID, transactionIDs); err != nil {
		return fmt.Errorf("delete reservations: %w", err)
	}
	return nil
}

// ListingsWithExpiredReservations feeds the background sweep: listings that
// still carry at least one lapsed hold.
func (r *ListingRepository) ListingsWithExpiredReservations(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const query = `
SELECT DISTINCT listing_id
FROM reservations
WHERE expires_at <= $1
LIMIT $2`

	rows, err := r.query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan listing id: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate expired: %w", rows.Err())
	}
	return ids, nil
}

func (r *ListingRepository) AppendEvent(ctx context.Context, env events.Envelope) error {
	const stmt = `
INSERT INTO outbox_events (id, event_type, payload, status, occurred_at)
VALUES ($1, $2, $3, 'pending', $4)`

	if _, err := r.exec(ctx, stmt, env.ID, env.Type, env.Payload, env.OccurredAt); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *ListingRepository) reservationsFor(ctx context.Context, listingID string) ([]domain.Reservation, error) {
	const query = `
SELECT listing_id, transaction_id, quantity, expires_at, created_at
FROM reservations
WHERE listing_id = $1
ORDER BY created_at ASC`

	rows, err := r.query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("get reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ListingID, &res.TransactionID, &res.Quantity, &res.ExpiresAt, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate reservations: %w", rows.Err())
	}
	return out, nil
}

func (r *ListingRepository) scanListings(ctx context.Context, query string, args ...any) ([]domain.Listing, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		var l domain.Listing
		var status string
		if err := rows.Scan(
			&l.ID,
			&l.SellerID,
			&l.Title,
			&l.Quantity,
			&l.AvailableQuantity,
			&l.TotalSold,
			&status,
			&l.Version,
			&l.LastSaleAt,
			&l.CreatedAt,
			&l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		l.Status = domain.ListingStatus(status)
		listings = append(listings, l)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate listings: %w", rows.Err())
	}
	return listings, nil
}

func (r *ListingRepository) attachReservations(ctx context.Context, listings []domain.Listing) ([]domain.Listing, error) {
	for i := range listings {
		reservations, err := r.reservationsFor(ctx, listings[i].ID)
		if err != nil {
			return nil, err
		}
		listings[i].Reservations = reservations
	}
	return listings, nil
}

func (r *ListingRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ListingRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *ListingRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
