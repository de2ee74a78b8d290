package handler

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime/types"
)

// Helper functions for type conversions between API types and internal models

// stringPtr creates a pointer to a string
func stringPtr(s string) *string {
	return &s
}

// optString returns nil for the empty string
func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// derefString returns the pointed-to string or ""
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// derefBool returns the pointed-to bool or false
func derefBool(b *bool) bool {
	return b != nil && *b
}

// timePtr creates a pointer to a time.Time
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// uuidToString converts types.UUID to string
func uuidToString(u types.UUID) string {
	return uuid.UUID(u).String()
}

// toUUID converts a stored id to types.UUID. Ids are generated by the
// database, so a parse failure yields the zero UUID.
func toUUID(s string) types.UUID {
	u, err := uuid.Parse(s)
	if err != nil {
		return types.UUID{}
	}
	return types.UUID(u)
}

// stringToUUID converts an optional stored id to a types.UUID pointer
func stringToUUID(s *string) *types.UUID {
	if s == nil {
		return nil
	}
	u, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	apiUUID := types.UUID(u)
	return &apiUUID
}

// civilToDate converts civil.Date to types.Date
func civilToDate(d civil.Date) types.Date {
	return types.Date{Time: d.In(time.UTC)}
}

// dateToCivil converts types.Date to civil.Date
func dateToCivil(d types.Date) civil.Date {
	return civil.DateOf(d.Time)
}

// sliceOrEmpty keeps JSON arrays from encoding as null
func sliceOrEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
