// Maps storage errors to API errors.

package handlers

import (
	"errors"
	"net/http"

	"github.com/maruel/solardb/internal/jsonldb"
	"github.com/maruel/solardb/internal/server/dto"
)

// storeError converts a jsonldb error into a dto.APIError. Errors that
// already carry a status are returned unchanged.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var ews dto.ErrorWithStatus
	if errors.As(err, &ews) {
		return err
	}
	switch {
	case errors.Is(err, jsonldb.ErrTableNotFound), errors.Is(err, jsonldb.ErrInvalidTableName):
		return dto.NewAPIError(http.StatusNotFound, dto.ErrorCodeTableNotFound, err.Error())
	case errors.Is(err, jsonldb.ErrInvalidRecord):
		return dto.NewAPIError(http.StatusBadRequest, dto.ErrorCodeInvalidRecord, err.Error())
	case errors.Is(err, jsonldb.ErrInvalidKey):
		return dto.NewAPIError(http.StatusBadRequest, dto.ErrorCodeInvalidKey, err.Error())
	default:
		return dto.StorageError(err)
	}
}
