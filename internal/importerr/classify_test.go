package importerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", NewValidationError("Book"), KindValidation},
		{"wrapped validation", fmt.Errorf("row 2: %w", NewValidationError("Book")), KindValidation},
		{"missing required", &RelationResolutionError{Kind: MissingRequired}, KindMissingRequired},
		{"resolution unique", &RelationResolutionError{Kind: UniqueViolation}, KindUniqueViolation},
		{"resolution too long", &RelationResolutionError{Kind: DataTooLong}, KindDataTooLong},
		{
			"resolution falls back to message",
			&RelationResolutionError{Kind: ResolutionFailed, Relation: "author", Err: errors.New("record not found")},
			KindRecordNotFound,
		},
		{"duplicate key", &DuplicateKeyError{Entity: "Book"}, KindDuplicateKey},
		{"cycle", &DependencyCycleError{}, KindCycle},
		{"structure", &MappingStructureError{Problems: []string{"x"}}, KindMapping},
		{"pg unique", errors.New(`ERROR: duplicate key value violates unique constraint "books_isbn_key" (SQLSTATE 23505)`), KindUniqueViolation},
		{"pg too long", errors.New("ERROR: value too long for type character varying(50) (SQLSTATE 22001)"), KindDataTooLong},
		{"pg fk", errors.New("insert violates foreign key constraint"), KindForeignKey},
		{"pg not null", errors.New(`null value in column "title" violates not-null constraint`), KindNotNull},
		{"syntax", errors.New(`invalid input syntax for type integer: "abc"`), KindInvalidValue},
		{"connection", errors.New("dial tcp: connection refused"), KindConnection},
		{"unknown", errors.New("something odd"), KindUnhandled},
		{"nil", nil, KindUnhandled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			assert.Equal(t, tt.want, c.Kind)
			assert.NotEmpty(t, c.Label)
			assert.NotEmpty(t, c.Hint)
		})
	}
}

func TestLookupUnknownKind(t *testing.T) {
	c := Lookup(Kind("nope"))
	assert.Equal(t, KindUnhandled, c.Kind)
	assert.Equal(t, "Unhandled error", c.Label)
}
