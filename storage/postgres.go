package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"imot-scraper/config"
	"imot-scraper/models"
	"imot-scraper/utils"
)

// ErrEmptyResult distinguishes "nothing matched" from a successful read:
// the export step must never silently produce an artifact with zero rows.
var ErrEmptyResult = errors.New("no listings match the requested filters")

// Postgres is the dedup/upsert store. The (source, source_id) uniqueness
// the merge relies on is enforced by the schema, not assumed by the
// application.
type Postgres struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

const (
	pingAttempts = 3
	pingTimeout  = 10 * time.Second
)

func NewPostgres(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pingWithRetry(ctx, pingAttempts, pingTimeout, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Postgres{pool: pool, log: log}, nil
}

// pingWithRetry scopes the timeout to each attempt, so the backoff sleeps
// between attempts do not eat into the next attempt's budget.
func pingWithRetry(ctx context.Context, attempts int, timeout time.Duration, ping func(context.Context) error) error {
	return utils.Retry(attempts, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return ping(pingCtx)
	})
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// EnsureSchema creates the listings table and its indexes if absent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS listings (
		id BIGSERIAL PRIMARY KEY,
		source TEXT NOT NULL,
		source_id TEXT NOT NULL,
		title TEXT NOT NULL,
		price NUMERIC(12,2),
		currency TEXT,
		price_sqm NUMERIC(12,2),
		area NUMERIC(10,2),
		rooms INTEGER,
		floor TEXT,
		construction_type TEXT,
		year_built INTEGER,
		description TEXT,
		location TEXT,
		district TEXT,
		city TEXT,
		url TEXT,
		agency TEXT,
		phone TEXT,
		scraped_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (source, source_id)
	);

	CREATE INDEX IF NOT EXISTS idx_listings_city_district
		ON listings (LOWER(city), LOWER(district));
	CREATE INDEX IF NOT EXISTS idx_listings_scraped_at
		ON listings (scraped_at DESC);
	`

	schemaCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := p.pool.Exec(schemaCtx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO listings (
	source, source_id, title, price, currency, price_sqm, area, rooms,
	floor, construction_type, year_built, description, location,
	district, city, url, agency, phone, scraped_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
)
ON CONFLICT (source, source_id) DO UPDATE SET
	title = EXCLUDED.title,
	price = EXCLUDED.price,
	currency = EXCLUDED.currency,
	price_sqm = EXCLUDED.price_sqm,
	area = EXCLUDED.area,
	rooms = EXCLUDED.rooms,
	floor = EXCLUDED.floor,
	construction_type = EXCLUDED.construction_type,
	year_built = EXCLUDED.year_built,
	description = EXCLUDED.description,
	location = EXCLUDED.location,
	district = EXCLUDED.district,
	city = EXCLUDED.city,
	url = EXCLUDED.url,
	agency = EXCLUDED.agency,
	phone = EXCLUDED.phone,
	scraped_at = EXCLUDED.scraped_at
`

// UpsertBatch merges records inside one transaction committed once per run.
// Each record runs in its own savepoint: a failing statement rolls back that
// record alone, is logged, and the batch continues. Errors returned here are
// connection-level and end the run.
func (p *Postgres) UpsertBatch(ctx context.Context, records []models.ListingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stored := 0
	for _, rec := range records {
		sp, err := tx.Begin(ctx) // savepoint
		if err != nil {
			return stored, fmt.Errorf("open savepoint: %w", err)
		}

		_, err = sp.Exec(ctx, upsertSQL,
			rec.Source, rec.SourceID, rec.Title, rec.Price, rec.Currency,
			rec.PriceSqm, rec.Area, rec.Rooms, rec.Floor, rec.ConstructionType,
			rec.YearBuilt, rec.Description, rec.Location, rec.District,
			rec.City, rec.URL, rec.Agency, rec.Phone, rec.ScrapedAt,
		)
		if err != nil {
			_ = sp.Rollback(ctx)
			p.log.Errorw("upsert failed, record skipped",
				"source", rec.Source, "source_id", rec.SourceID, "err", err)
			continue
		}
		if err := sp.Commit(ctx); err != nil {
			return stored, fmt.Errorf("release savepoint: %w", err)
		}
		stored++
	}

	if err := tx.Commit(ctx); err != nil {
		return stored, fmt.Errorf("commit upsert transaction: %w", err)
	}

	p.log.Infow("listings merged", "stored", stored, "skipped", len(records)-stored)
	return stored, nil
}

// Select answers the export read path: rows for (city, district) narrowed
// by the optional filters, most recent first. Zero rows is ErrEmptyResult.
func (p *Postgres) Select(ctx context.Context, city, district string, filters models.Filters) ([]models.ListingRecord, error) {
	query, args, err := BuildSelectQuery(city, district, filters)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select listings: %w", err)
	}
	defer rows.Close()

	var out []models.ListingRecord
	for rows.Next() {
		var rec models.ListingRecord
		err := rows.Scan(
			&rec.Source, &rec.SourceID, &rec.Title, &rec.Price, &rec.Currency,
			&rec.PriceSqm, &rec.Area, &rec.Rooms, &rec.Floor, &rec.ConstructionType,
			&rec.YearBuilt, &rec.Description, &rec.Location, &rec.District,
			&rec.City, &rec.URL, &rec.Agency, &rec.Phone, &rec.ScrapedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan listing row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read listing rows: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}
