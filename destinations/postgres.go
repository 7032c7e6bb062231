package destinations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/KYVENetwork/dlt-load/schema"
	"github.com/lib/pq"
)

type PostgresConfig struct {
	ConnectionUrl string
}

// NewPostgres opens the database and checks that it is reachable.
func NewPostgres(ctx context.Context, config PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", config.ConnectionUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	logger.Info().Msg("Postgres connection established")

	return NewPostgresFromDB(db, config), nil
}

func NewPostgresFromDB(db *sql.DB, config PostgresConfig) *Postgres {
	return &Postgres{
		config: config,
		db:     db,
	}
}

// Postgres only supports inline statements. It has no staging area a client
// could upload to.
type Postgres struct {
	config PostgresConfig
	db     *sql.DB
}

func (p *Postgres) Info() ConnInfo {
	info := ConnInfo{Handler: HandlerPostgres, Dialect: schema.DialectPostgres}
	if u, err := url.Parse(p.config.ConnectionUrl); err == nil {
		info.Host = u.Host
		if len(u.Path) > 1 {
			info.Database = u.Path[1:]
		}
	}
	return info
}

func (p *Postgres) ExecuteStatement(ctx context.Context, stmt string) (AffectedStats, error) {
	result, err := p.db.ExecContext(ctx, stmt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return AffectedStats{}, &QueryError{Code: string(pqErr.Code), Message: pqErr.Message, SQL: stmt}
		}
		return AffectedStats{}, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return AffectedStats{}, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return AffectedStats{WriteRows: uint64(affected)}, nil
}

func (p *Postgres) RequestStagingLocation(context.Context, StageRequest) (StagedLocation, error) {
	return StagedLocation{}, ErrStagingUnsupported
}

func (p *Postgres) Upload(context.Context, StagedLocation, io.Reader, int64) (UploadResult, error) {
	return UploadResult{}, ErrStagingUnsupported
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
