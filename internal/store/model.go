package store

import (
	"plan-tagger/internal/annotation"
)

// AnnotationRecord is the table row of one annotation.
type AnnotationRecord struct {
	ID            string  `gorm:"primaryKey"`
	DocumentID    string  `gorm:"index;not null"`
	Type          string  `gorm:"not null;default:box"`
	Left          float64 `gorm:"column:pos_left"`
	Top           float64 `gorm:"column:pos_top"`
	Width         float64 `gorm:"column:pos_width"`
	Height        float64 `gorm:"column:pos_height"`
	Angle         float64 `gorm:"column:pos_angle"`
	TagPatternID  *string `gorm:"index"`
	ExtractedText *string
	Confidence    *float64
	CreatedAt     int64 `gorm:"autoCreateTime:nano"`
}

// TableName pins the table name.
func (AnnotationRecord) TableName() string { return "annotations" }

// TagPatternRecord is the table row of one tag pattern.
type TagPatternRecord struct {
	ID            string `gorm:"primaryKey"`
	DocumentID    string `gorm:"uniqueIndex:idx_pattern_doc_prefix;not null"`
	Prefix        string `gorm:"uniqueIndex:idx_pattern_doc_prefix;size:10;not null"`
	Description   string `gorm:"size:200"`
	ScheduleTable string `gorm:"not null"`
	CreatedAt     int64  `gorm:"autoCreateTime:nano"`
}

// TableName pins the table name.
func (TagPatternRecord) TableName() string { return "tag_patterns" }

func annotationToRecord(documentID string, a annotation.Annotation) AnnotationRecord {
	typ := a.Type
	if typ == "" {
		typ = annotation.TypeBox
	}
	return AnnotationRecord{
		ID:            a.ID,
		DocumentID:    documentID,
		Type:          typ,
		Left:          a.Position.Left,
		Top:           a.Position.Top,
		Width:         a.Position.Width,
		Height:        a.Position.Height,
		Angle:         a.Position.Angle,
		TagPatternID:  a.TagPatternID,
		ExtractedText: a.ExtractedText,
		Confidence:    a.Confidence,
	}
}

func (r AnnotationRecord) toAnnotation() annotation.Annotation {
	return annotation.Annotation{
		ID:   r.ID,
		Type: r.Type,
		Position: annotation.Position{
			Left:   r.Left,
			Top:    r.Top,
			Width:  r.Width,
			Height: r.Height,
			Angle:  r.Angle,
		},
		TagPatternID:  r.TagPatternID,
		ExtractedText: r.ExtractedText,
		Confidence:    r.Confidence,
	}
}

func patternToRecord(documentID string, p annotation.TagPattern) TagPatternRecord {
	return TagPatternRecord{
		ID:            p.ID,
		DocumentID:    documentID,
		Prefix:        p.Prefix,
		Description:   p.Description,
		ScheduleTable: p.ScheduleTable,
	}
}

func (r TagPatternRecord) toPattern() annotation.TagPattern {
	return annotation.TagPattern{
		ID:            r.ID,
		Prefix:        r.Prefix,
		Description:   r.Description,
		ScheduleTable: r.ScheduleTable,
	}
}
