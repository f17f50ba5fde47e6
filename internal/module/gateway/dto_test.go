package gateway

import (
	"strings"
	"testing"

	apperrors "github.com/searchgate/server/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNormalizesEngines(t *testing.T) {
	body := SearchRequestBody{
		Query:   "  golang  ",
		Engines: []string{" Google ", "DUCKDUCKGO", ""},
	}

	req, err := body.Validate()
	require.NoError(t, err)
	assert.Equal(t, "golang", req.Query)
	assert.Equal(t, []string{"google", "duckduckgo"}, req.Engines)
}

func TestValidateRejectsUnsupportedEngines(t *testing.T) {
	body := SearchRequestBody{
		Query:   "golang",
		Engines: []string{"google", "altavista", "askjeeves"},
	}

	_, err := body.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNSUPPORTED_ENGINES", appErr.Code)
}

func TestValidateRejectsEmptyQuery(t *testing.T) {
	body := SearchRequestBody{Query: "   "}
	_, err := body.Validate()
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestValidateRejectsOverlongQuery(t *testing.T) {
	body := SearchRequestBody{Query: strings.Repeat("q", MaxQueryLength+1)}
	_, err := body.Validate()
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestValidateCountsQueryLengthInRunes(t *testing.T) {
	// 500 three-byte characters exceed the limit in bytes but not in runes.
	body := SearchRequestBody{Query: strings.Repeat("検", MaxQueryLength)}
	req, err := body.Validate()
	require.NoError(t, err)
	assert.Equal(t, body.Query, req.Query)

	body.Query = strings.Repeat("検", MaxQueryLength+1)
	_, err = body.Validate()
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestValidateRejectsBadSafeSearch(t *testing.T) {
	bad := 3
	body := SearchRequestBody{Query: "golang", SafeSearch: &bad}
	_, err := body.Validate()
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}
