package repository

import (
	"context"
	"errors"

	"gastoflow/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrExpenseNotFound is returned when no expense row matches the given id.
var ErrExpenseNotFound = errors.New("expense not found")

type ExpenseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewExpenseRepository(db *pgxpool.Pool, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

var expenseColumns = []string{
	"id", "event_id", "category_id", "card_id", "description", "place",
	"expense_date", "amount", "currency", "amount_usd", "exchange_rate",
	"blob_name", "blob_url", "file_content_type", "file_size_bytes",
	"openkm_doc_uuid", "created_at", "updated_at",
}

func (r *ExpenseRepository) Create(ctx context.Context, exp *models.Expense) error {
	query := squirrel.Insert("expenses").
		Columns("event_id", "category_id", "card_id", "description", "place",
			"expense_date", "amount", "currency", "created_at", "updated_at").
		Values(exp.EventID, exp.CategoryID, exp.CardID, exp.Description, exp.Place,
			exp.Date, exp.Amount, exp.Currency, exp.CreatedAt, exp.UpdatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	return r.db.QueryRow(ctx, sql, args...).Scan(&exp.ID)
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*models.Expense, error) {
	query := squirrel.Select(expenseColumns...).
		From("expenses").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var exp models.Expense
	err = r.db.QueryRow(ctx, sql, args...).Scan(scanTargets(&exp)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExpenseNotFound
	}
	if err != nil {
		return nil, err
	}

	return &exp, nil
}

func (r *ExpenseRepository) List(ctx context.Context) ([]*models.Expense, error) {
	query := squirrel.Select(expenseColumns...).
		From("expenses").
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []*models.Expense
	for rows.Next() {
		var exp models.Expense
		if err := rows.Scan(scanTargets(&exp)...); err != nil {
			return nil, err
		}
		expenses = append(expenses, &exp)
	}

	return expenses, rows.Err()
}

// UpdateAttachment persists the attachment columns only. Last writer wins;
// the record mutation relies on Postgres row atomicity, not an optimistic
// lock.
func (r *ExpenseRepository) UpdateAttachment(ctx context.Context, exp *models.Expense) error {
	query := squirrel.Update("expenses").
		Set("blob_name", exp.BlobName).
		Set("blob_url", exp.BlobURL).
		Set("file_content_type", exp.FileContentType).
		Set("file_size_bytes", exp.FileSizeBytes).
		Set("openkm_doc_uuid", exp.OpenKMDocID).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": exp.ID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func scanTargets(exp *models.Expense) []any {
	return []any{
		&exp.ID, &exp.EventID, &exp.CategoryID, &exp.CardID, &exp.Description, &exp.Place,
		&exp.Date, &exp.Amount, &exp.Currency, &exp.AmountUSD, &exp.ExchangeRate,
		&exp.BlobName, &exp.BlobURL, &exp.FileContentType, &exp.FileSizeBytes,
		&exp.OpenKMDocID, &exp.CreatedAt, &exp.UpdatedAt,
	}
}
