package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
)

func TestValidateDocuments(t *testing.T) {
	tests := []struct {
		name    string
		docs    []document.Document
		wantErr string
	}{
		{"valid", []document.Document{{ID: 1, Tags: []string{"go"}}, {ID: 2}}, ""},
		{"duplicate id", []document.Document{{ID: 1}, {ID: 1}}, "id=1:duplicate id"},
		{"empty tag", []document.Document{{ID: 3, Tags: []string{"go", " "}}}, "id=3:empty tag"},
		{"reserved tag", []document.Document{{ID: 4, Tags: []string{"all"}}}, `id=4:tag "all" is reserved`},
		{"long tag", []document.Document{{ID: 5, Tags: []string{strings.Repeat("x", 65)}}}, "longer than 64"},
		{"long title", []document.Document{{ID: 6, Title: strings.Repeat("t", 1025)}}, "title must be at most"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocuments(tt.docs)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidationErrorIsBounded(t *testing.T) {
	docs := make([]document.Document, 0, 100)
	for range 100 {
		docs = append(docs, document.Document{ID: 7, Tags: []string{""}})
	}
	err := ValidateDocuments(docs)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 199, verr.Total)
	assert.Len(t, verr.Fields, 1)
	assert.Contains(t, err.Error(), "more")
}
