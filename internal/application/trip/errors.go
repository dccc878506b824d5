package trip

import "github.com/odyssee/backend/internal/domain/shared"

// ErrPublicationFailed wraps transport failures of the publication target
var ErrPublicationFailed = shared.NewDomainError("PUBLICATION_FAILED", "Trip sheet could not be uploaded to the agency site")

func tripInputError(message string) error {
	return shared.NewDomainError(shared.ErrInvalidInput.Code, message)
}
