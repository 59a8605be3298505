package api

import (
	"fmt"

	"github.com/voxbridge/callengine/internal/apperrors"
)

func notFoundf(format string, args ...any) error {
	return apperrors.New(apperrors.KindNotFound, "api", fmt.Errorf(format, args...))
}
