package models

import "time"

// NoticeScopeKind discriminates global from section-bound notices.
type NoticeScopeKind string

const (
	NoticeScopeGlobal       NoticeScopeKind = "GLOBAL"
	NoticeScopeClassSection NoticeScopeKind = "CLASS_SECTION"
)

// NoticeScope is either Global or ClassSection(id).
type NoticeScope struct {
	Kind           NoticeScopeKind `json:"kind"`
	ClassSectionID string          `json:"class_section_id,omitempty"`
}

// GlobalScope returns the scope visible to everyone.
func GlobalScope() NoticeScope {
	return NoticeScope{Kind: NoticeScopeGlobal}
}

// SectionScope returns the scope bound to one class section.
func SectionScope(classSectionID string) NoticeScope {
	return NoticeScope{Kind: NoticeScopeClassSection, ClassSectionID: classSectionID}
}

// IsGlobal reports whether the scope is Global.
func (s NoticeScope) IsGlobal() bool {
	return s.Kind == NoticeScopeGlobal
}

// Valid checks the kind and that only section scopes carry a section id.
func (s NoticeScope) Valid() bool {
	switch s.Kind {
	case NoticeScopeGlobal:
		return s.ClassSectionID == ""
	case NoticeScopeClassSection:
		return s.ClassSectionID != ""
	default:
		return false
	}
}

// Notice is an announcement row.
type Notice struct {
	ID             string          `db:"id" json:"id"`
	Title          string          `db:"title" json:"title"`
	Content        string          `db:"content" json:"content"`
	AuthorID       string          `db:"author_id" json:"author_id"`
	ScopeKind      NoticeScopeKind `db:"scope" json:"scope"`
	ClassSectionID *string         `db:"class_section_id" json:"class_section_id,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Scope rebuilds the tagged scope from the stored columns.
func (n Notice) Scope() NoticeScope {
	if n.ScopeKind == NoticeScopeClassSection && n.ClassSectionID != nil {
		return SectionScope(*n.ClassSectionID)
	}
	return GlobalScope()
}
