package verification

import (
	"strings"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
	"propertyhub/owner-portal/owner-portal-backend/pkg/storage"
)

// AllowedMIMETypes are the accepted identity-document formats.
var AllowedMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"application/pdf": true,
}

// DestinationFor maps a verification status to the dashboard route.
func DestinationFor(status auth.VerificationStatus) Destination {
	switch status {
	case auth.VerificationApproved, auth.VerificationNotRequired:
		return DestinationDashboard
	case auth.VerificationPendingApproval:
		return DestinationPendingApproval
	case auth.VerificationPendingDocuments, auth.VerificationRejected:
		return DestinationDocuments
	}
	return DestinationDocuments
}

// EvidenceEditable reports whether documents may be added or removed.
func EvidenceEditable(status auth.VerificationStatus) bool {
	return status == auth.VerificationPendingDocuments || status == auth.VerificationRejected
}

// ValidateFile checks the declared type and size of a document.
func ValidateFile(docType DocumentType, mimeType string, size, maxBytes int64) error {
	if !docType.Valid() {
		return apperrors.Validation("type", "type must be one of PASSPORT, NATIONAL_ID")
	}
	if !AllowedMIMETypes[strings.ToLower(mimeType)] {
		return apperrors.Validation("file", "unsupported file type %q: use JPEG, PNG or PDF", mimeType)
	}
	if size <= 0 {
		return apperrors.Validation("file", "file is empty")
	}
	if size > maxBytes {
		return apperrors.Validation("file", "file exceeds the maximum size of %s", storage.FormatBytes(maxBytes))
	}
	return nil
}

// MissingTypes returns the required slots without a usable document. A
// rejected document leaves its slot empty.
func MissingTypes(docs []OwnerDocument) []DocumentType {
	filled := make(map[DocumentType]bool, len(docs))
	for _, d := range docs {
		if d.Status != DocumentRejected {
			filled[d.Type] = true
		}
	}
	missing := []DocumentType{}
	for _, t := range RequiredDocumentTypes {
		if !filled[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

// CanSubmit reports whether docs fill every required slot.
func CanSubmit(docs []OwnerDocument) bool {
	return len(MissingTypes(docs)) == 0
}

func typeNames(types []DocumentType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
