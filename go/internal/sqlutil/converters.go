package sqlutil

import (
	"database/sql"
)

// Helper functions for converting between Go types and sql.Null* types

// ToSqlInt32 converts a Go int pointer to sql.NullInt32
func ToSqlInt32(val *int) sql.NullInt32 {
	if val == nil {
		return sql.NullInt32{Valid: false}
	}
	return sql.NullInt32{Int32: int32(*val), Valid: true}
}

// ToSqlInt64 converts a Go int64 pointer to sql.NullInt64
func ToSqlInt64(val *int64) sql.NullInt64 {
	if val == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *val, Valid: true}
}

// ToSqlStringAs converts a pointer to any string-backed enum to sql.NullString
func ToSqlStringAs[S ~string](val *S) sql.NullString {
	if val == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: string(*val), Valid: true}
}

// ToSqlBool converts a Go bool pointer to sql.NullBool
func ToSqlBool(val *bool) sql.NullBool {
	if val == nil {
		return sql.NullBool{Valid: false}
	}
	return sql.NullBool{Bool: *val, Valid: true}
}

// FromSqlInt64 converts sql.NullInt64 to Go int64 pointer
func FromSqlInt64(val sql.NullInt64) *int64 {
	if !val.Valid {
		return nil
	}
	i := val.Int64
	return &i
}

// FromSqlStringPtr converts sql.NullString to Go string pointer
func FromSqlStringPtr(val sql.NullString) *string {
	if !val.Valid {
		return nil
	}
	s := val.String
	return &s
}
