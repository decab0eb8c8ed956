package services

import (
	"fmt"
	"hash/fnv"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/types"
)

// ETag derives a strong validator from everything that can change the
// served bytes: identity, length, upload time and output format. Same
// inputs always reproduce the same tag; cache correctness needs
// determinism and collision resistance, not cryptographic strength.
func (s *mediaService) ETag(record *types.MediaRecord) string {
	size := record.FileSize
	if record.FileData != nil {
		size = int64(len(*record.FileData))
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%d|%s", record.ID, size, record.UploadedAt.UnixNano(), record.MimeType)
	return fmt.Sprintf("%q", fmt.Sprintf("%016x", h.Sum64()))
}
