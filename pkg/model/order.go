package model

import "fmt"

// OutputType identifies what kind of artifact an order produces.
type OutputType string

const (
	OutputManuscript  OutputType = "manuscript"
	OutputShortReview OutputType = "short_review"
)

// Mode selects the speed/quality trade-off for model resolution.
type Mode string

const (
	ModeSpeed   Mode = "speed"
	ModeQuality Mode = "quality"
)

// LengthMode controls how a short review's length is enforced.
type LengthMode string

const (
	// LengthFixed requires the output to have exactly TargetLength runes.
	LengthFixed LengthMode = "fixed"
	// LengthRange requires the output to stay strictly under MaxLength runes.
	LengthRange LengthMode = "range"
)

// Photo is one ordered photo attached to an order.
type Photo struct {
	Index int    // 1-based position, drives paragraph order
	URL   string // source location, never allowed to leak into artifacts
	Data  []byte // optional pre-fetched image bytes
	MIME  string
}

// ManuscriptOrder is the snapshot of a blog-manuscript order.
type ManuscriptOrder struct {
	PlaceName        string
	Address          string
	Photos           []Photo
	SearchKeywords   []string
	RequiredKeywords []string
	EmphasisKeywords []string
	Hashtags         []string
	IncludeLink      bool
	IncludeMap       bool
	LinkURL          string
}

// ShortReviewOrder is the snapshot of a short-review order.
type ShortReviewOrder struct {
	PlaceName        string
	MenuName         string
	RequiredKeywords []string
	LengthMode       LengthMode
	TargetLength     int // exact rune count for LengthFixed
	MaxLength        int // hard rune cap for LengthRange
	AllowEmoji       bool
	OutputCount      int
	Photo            *Photo
}

// SnapshotKind tags the OrderSnapshot union.
type SnapshotKind int

const (
	SnapshotManuscript SnapshotKind = iota
	SnapshotShortReview
)

// OrderSnapshot is a tagged union over the two order shapes.
// Exactly one branch is non-nil, matching Kind.
type OrderSnapshot struct {
	Kind        SnapshotKind
	Manuscript  *ManuscriptOrder
	ShortReview *ShortReviewOrder
}

// NewManuscriptSnapshot wraps a manuscript order.
func NewManuscriptSnapshot(m *ManuscriptOrder) OrderSnapshot {
	return OrderSnapshot{Kind: SnapshotManuscript, Manuscript: m}
}

// NewShortReviewSnapshot wraps a short-review order.
func NewShortReviewSnapshot(s *ShortReviewOrder) OrderSnapshot {
	return OrderSnapshot{Kind: SnapshotShortReview, ShortReview: s}
}

// Validate checks tag/branch consistency and required fields.
func (s OrderSnapshot) Validate() error {
	switch s.Kind {
	case SnapshotManuscript:
		if s.Manuscript == nil || s.ShortReview != nil {
			return fmt.Errorf("manuscript snapshot has inconsistent branches")
		}
		m := s.Manuscript
		if m.PlaceName == "" {
			return fmt.Errorf("manuscript order missing place name")
		}
		if len(m.Photos) == 0 {
			return fmt.Errorf("manuscript order has no photos")
		}
		if m.IncludeLink && m.LinkURL == "" {
			return fmt.Errorf("manuscript order requests link but has no link URL")
		}
	case SnapshotShortReview:
		if s.ShortReview == nil || s.Manuscript != nil {
			return fmt.Errorf("short-review snapshot has inconsistent branches")
		}
		r := s.ShortReview
		if r.PlaceName == "" {
			return fmt.Errorf("short-review order missing place name")
		}
		if r.OutputCount < 1 {
			return fmt.Errorf("short-review order has output count %d", r.OutputCount)
		}
		switch r.LengthMode {
		case LengthFixed:
			if r.TargetLength < 10 || r.TargetLength > 299 {
				return fmt.Errorf("short-review fixed target %d out of range [10,299]", r.TargetLength)
			}
		case LengthRange:
			if r.MaxLength < 10 {
				return fmt.Errorf("short-review length cap %d too small", r.MaxLength)
			}
		default:
			return fmt.Errorf("short-review order has unknown length mode %q", r.LengthMode)
		}
	default:
		return fmt.Errorf("unknown snapshot kind %d", s.Kind)
	}
	return nil
}
