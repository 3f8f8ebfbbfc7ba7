package server

import (
	"ouvidor/internal/domain"
	"ouvidor/internal/engine"
	"ouvidor/internal/sla"
)

type CreateManifestationRequest struct {
	Type             string                     `json:"type" enum:"praise,suggestion,complaint,denunciation,request"`
	Priority         string                     `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Description      string                     `json:"description"`
	Anonymous        bool                       `json:"anonymous,omitempty"`
	Confidential     bool                       `json:"confidential,omitempty"`
	Channel          string                     `json:"channel" enum:"web,phone,in_person,email"`
	ResponseDeadline *string                    `json:"response_deadline,omitempty" format:"date-time"`
	Complainant      *ComplainantRequest        `json:"complainant,omitempty"`
}

type ComplainantRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Consent bool   `json:"consent"`
}

type ForwardRequest struct {
	DestinationSectorID string  `json:"destination_sector_id"`
	DestinationUserID   *string `json:"destination_user_id,omitempty"`
	Instructions        string  `json:"instructions,omitempty"`
	Deadline            *string `json:"deadline,omitempty" format:"date-time"`
}

type RespondRequest struct {
	Response string `json:"response"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type EditManifestationRequest struct {
	Description  *string `json:"description,omitempty"`
	Priority     *string `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Confidential *bool   `json:"confidential,omitempty"`
}

type ReturnRequest struct {
	Status string `json:"status" enum:"responded,late"`
	Note   string `json:"note,omitempty"`
}

type SendEmailRequest struct {
	Recipient string `json:"recipient" format:"email"`
}

type CreatePlanRequest struct {
	Title             string  `json:"title"`
	Description       string  `json:"description,omitempty"`
	SectorID          string  `json:"sector_id"`
	ResponsibleUserID *string `json:"responsible_user_id,omitempty"`
	Deadline          *string `json:"deadline,omitempty" format:"date-time"`
	Notes             string  `json:"notes,omitempty"`
}

type AdvancePlanRequest struct {
	Status string `json:"status" enum:"in_progress,done,canceled"`
}

type PlanNotesRequest struct {
	Notes string `json:"notes"`
}

type UpsertSectorRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpsertUserRequest struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Role     string  `json:"role" enum:"admin,ouvidor,gestor,assistente,analista,consulta"`
	SectorID *string `json:"sector_id,omitempty"`
}

// ManifestationResponse is the wire shape of a manifestation, with the
// deadline classification computed at read time.
type ManifestationResponse struct {
	domain.Manifestation
	SLA sla.Classification `json:"sla"`
}

func manifestationResponse(e engine.Engine, m domain.Manifestation) ManifestationResponse {
	return ManifestationResponse{Manifestation: m, SLA: e.ClassifyDeadline(m)}
}

func mapManifestations(e engine.Engine, items []domain.Manifestation) []ManifestationResponse {
	res := make([]ManifestationResponse, 0, len(items))
	for _, m := range items {
		res = append(res, manifestationResponse(e, m))
	}
	return res
}

type paginatedManifestations struct {
	Items      []ManifestationResponse `json:"items"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

type ForwardResponse struct {
	Manifestation ManifestationResponse   `json:"manifestation"`
	Forwarding    domain.ForwardingRecord `json:"forwarding"`
}

// PublicManifestationResponse is the citizen-facing protocol lookup view.
// It never exposes internal routing or the complainant link.
type PublicManifestationResponse struct {
	Protocol    string             `json:"protocol"`
	Type        domain.Type        `json:"type"`
	Status      domain.Status      `json:"status"`
	Response    *string            `json:"response,omitempty"`
	CreatedAt   string             `json:"created_at"`
	RespondedAt *string            `json:"responded_at,omitempty"`
	SLA         sla.Classification `json:"sla"`
}

func publicManifestationResponse(e engine.Engine, m domain.Manifestation) PublicManifestationResponse {
	return PublicManifestationResponse{
		Protocol:    m.Protocol,
		Type:        m.Type,
		Status:      m.Status,
		Response:    m.Response,
		CreatedAt:   m.CreatedAt,
		RespondedAt: m.RespondedAt,
		SLA:         e.ClassifyDeadline(m),
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}
