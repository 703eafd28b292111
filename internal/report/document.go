package report

import (
	"encoding/json"
	"time"

	"github.com/kozaktomas/phenotype-matcher/internal/database"
)

// Document is the public JSON form of a stored report
type Document struct {
	ID              string                    `json:"id"`
	PrimaryEntityID string                    `json:"primary_entity_id"`
	PrimaryScore    float64                   `json:"primary_score"`
	Secondary       []database.SecondaryMatch `json:"secondary"`
	Narrative       string                    `json:"narrative"`
	NarrativeSource string                    `json:"narrative_source"`
	Mode            string                    `json:"mode"`
	SignalsUsed     []string                  `json:"signals_used"`
	Degraded        bool                      `json:"degraded"`
	VisionProvider  string                    `json:"vision_provider,omitempty"`
	VisionCost      float64                   `json:"vision_cost,omitempty"`
	UploadKey       string                    `json:"upload_key"`
	ImageSHA256     string                    `json:"image_sha256"`
	AccessCount     int                       `json:"access_count"`
	CreatedAt       time.Time                 `json:"created_at"`
	LastAccessedAt  *time.Time                `json:"last_accessed_at,omitempty"`
	Result          json.RawMessage           `json:"result"`
}

func NewDocument(rep *database.StoredReport) Document {
	doc := Document{
		ID:              rep.ID,
		PrimaryEntityID: rep.PrimaryEntityID,
		PrimaryScore:    rep.PrimaryScore,
		Secondary:       rep.Secondary,
		Narrative:       rep.Narrative,
		NarrativeSource: rep.NarrativeSource,
		Mode:            rep.Mode,
		SignalsUsed:     rep.SignalsUsed,
		Degraded:        rep.Degraded,
		VisionProvider:  rep.VisionProvider,
		VisionCost:      rep.VisionCost,
		UploadKey:       rep.UploadKey,
		ImageSHA256:     rep.ImageSHA256,
		AccessCount:     rep.AccessCount,
		CreatedAt:       rep.CreatedAt,
		LastAccessedAt:  rep.LastAccessedAt,
		Result:          rep.Result,
	}
	if doc.Secondary == nil {
		doc.Secondary = []database.SecondaryMatch{}
	}
	if doc.SignalsUsed == nil {
		doc.SignalsUsed = []string{}
	}
	if len(doc.Result) == 0 {
		doc.Result = json.RawMessage("null")
	}
	return doc
}
