package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"snowbotium/internal/config"
	"snowbotium/internal/models"
	"snowbotium/internal/storage"
)

// Service is the record store: append-only access to the files and
// responses tables.
type Service struct {
	db     *sql.DB
	driver string
	tables config.TableNames

	cache    HistoryCache
	cacheTTL time.Duration
}

// NewService wraps an open warehouse connection.
func NewService(db *sql.DB, driver string, tables config.TableNames) (*Service, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if tables.Files == "" || tables.Responses == "" {
		return nil, errors.New("table names are required")
	}
	return &Service{db: db, driver: driver, tables: tables}, nil
}

// EnsureSchema creates both tables when they are missing.
func (s *Service) EnsureSchema(ctx context.Context) error {
	return storage.Migrate(ctx, s.db, s.driver, s.tables)
}

// InsertFile stores one uploaded document.
func (s *Service) InsertFile(ctx context.Context, id int64, filename, data string) error {
	return s.SaveFile(ctx, models.FileRecord{ID: models.FormatID(id), Filename: filename, Filedata: data})
}

// SaveFile appends rec to the files table.
func (s *Service) SaveFile(ctx context.Context, rec models.FileRecord) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, filename, filedata) VALUES (?, ?, ?)`, s.tables.Files),
		rec.ID, rec.Filename, rec.Filedata,
	)
	if err != nil {
		return fmt.Errorf("%w: insert file %s: %v", storage.ErrStorage, rec.ID, err)
	}
	return nil
}

// InsertResponse stores one prompt/response pair and drops the cached history.
func (s *Service) InsertResponse(ctx context.Context, id int64, prompt, response string) error {
	return s.SaveResponse(ctx, models.ResponseRecord{ID: models.FormatID(id), Prompt: prompt, Response: response})
}

// SaveResponse appends rec to the responses table.
func (s *Service) SaveResponse(ctx context.Context, rec models.ResponseRecord) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, prompt, response) VALUES (?, ?, ?)`, s.tables.Responses),
		rec.ID, rec.Prompt, rec.Response,
	)
	if err != nil {
		return fmt.Errorf("%w: insert response %s: %v", storage.ErrStorage, rec.ID, err)
	}
	s.invalidateHistory(ctx)
	return nil
}

// FetchAllResponses returns every stored response in scan order. An empty
// table yields an empty slice.
func (s *Service) FetchAllResponses(ctx context.Context) ([]string, error) {
	if cached, ok := s.loadHistory(ctx); ok {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT response FROM %s`, s.tables.Responses))
	if err != nil {
		return nil, fmt.Errorf("%w: list responses: %v", storage.ErrStorage, err)
	}
	defer rows.Close()

	responses := make([]string, 0)
	for rows.Next() {
		var response sql.NullString
		if err := rows.Scan(&response); err != nil {
			return nil, fmt.Errorf("%w: scan response: %v", storage.ErrStorage, err)
		}
		responses = append(responses, response.String)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list responses: %v", storage.ErrStorage, err)
	}

	s.storeHistory(ctx, responses)
	return responses, nil
}

// Ping checks the warehouse connection.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrConnection, err)
	}
	return nil
}

func (s *Service) logCacheError(op string, err error) {
	log.Printf("history cache %s failed: %v", op, err)
}
