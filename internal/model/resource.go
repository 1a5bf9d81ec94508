package model

import (
	"fmt"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
)

// VariantType discriminates resource payload kinds.
type VariantType string

const (
	VariantImage VariantType = "image"
	VariantPdf   VariantType = "pdf"
	VariantVideo VariantType = "video"
)

// Variant describes how a resource is played back. Only the fields for
// the given type are meaningful.
type Variant struct {
	Type VariantType `json:"type"`

	// Duration in seconds: display time for images, play time for
	// videos. Unused for PDFs.
	Duration uint32 `json:"duration,omitempty"`

	// Pages and per-page durations, PDFs only. len(PageDurations)
	// must equal Pages.
	Pages         uint16   `json:"pages,omitempty"`
	PageDurations []uint32 `json:"pageDurations,omitempty"`
}

// Validate checks the variant's internal consistency.
func (v *Variant) Validate() error {
	switch v.Type {
	case VariantImage, VariantVideo:
		if v.Duration == 0 {
			return apperror.ValidationFailed("variant", "duration must be positive")
		}
	case VariantPdf:
		if v.Pages == 0 {
			return apperror.ValidationFailed("variant", "pdf must have at least one page")
		}
		if len(v.PageDurations) != int(v.Pages) {
			return apperror.ValidationFailed("variant", "page durations must match the page count")
		}
	default:
		return apperror.ValidationFailed("variant", fmt.Sprintf("unknown resource type %q", v.Type))
	}
	return nil
}

// Resource is the record of one uploaded file.
//
// Index dimensions:
//
//	0 -> id
//	1 -> used (claimed) flag
//
// The Used flag is authoritative in the index, not the document: it is
// flipped by a compare-and-set in the store so two posts can never
// claim the same resource.
type Resource struct {
	ID      ID      `json:"id"`
	Variant Variant `json:"variant"`
	Owner   ID      `json:"owner"`
	Used    bool    `json:"-"`
}

// NewResource allocates a provisional resource for an upload session.
// The id is replaced at commit time; see FinalizeID.
func NewResource(variant Variant, owner ID) *Resource {
	return &Resource{
		ID:      randomID(idBytes(owner)),
		Variant: variant,
		Owner:   owner,
	}
}

// FinalizeID reassigns the id from the uploaded content hash, the
// uploader and the current time. Mixing in the time keeps ids
// unpredictable even for identical content from the same uploader;
// this is deliberately not content-addressed deduplication.
func (r *Resource) FinalizeID(contentHash []byte) {
	r.ID = randomID(contentHash, idBytes(r.Owner))
}

// FileName is the permanent on-disk name of the resource payload.
func (r *Resource) FileName() string {
	return fmt.Sprintf("r_%d", r.ID)
}

// BufName is the temporary buffer name used while uploading.
func (r *Resource) BufName() string {
	return fmt.Sprintf("buf_%d", r.ID)
}
