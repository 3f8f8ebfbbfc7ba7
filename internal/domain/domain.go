package domain

// Type classifies what kind of manifestation a citizen submitted.
type Type string

const (
	TypePraise       Type = "praise"
	TypeSuggestion   Type = "suggestion"
	TypeComplaint    Type = "complaint"
	TypeDenunciation Type = "denunciation"
	TypeRequest      Type = "request"
)

func (t Type) Valid() bool {
	switch t {
	case TypePraise, TypeSuggestion, TypeComplaint, TypeDenunciation, TypeRequest:
		return true
	}
	return false
}

// Status is the lifecycle status of a manifestation.
type Status string

const (
	StatusNew            Status = "new"
	StatusAnalyzing      Status = "analyzing"
	StatusForwarded      Status = "forwarded"
	StatusInService      Status = "in_service"
	StatusAwaitingReturn Status = "awaiting_return"
	StatusResponded      Status = "responded"
	StatusClosed         Status = "closed"
	StatusCanceled       Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusAnalyzing, StatusForwarded, StatusInService,
		StatusAwaitingReturn, StatusResponded, StatusClosed, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further lifecycle action may apply.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCanceled
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Channel records how a manifestation entered the office.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelPhone    Channel = "phone"
	ChannelInPerson Channel = "in_person"
	ChannelEmail    Channel = "email"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelPhone, ChannelInPerson, ChannelEmail:
		return true
	}
	return false
}

// Role of an internal actor. The capability set derives from it.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleOuvidor    Role = "ouvidor"
	RoleGestor     Role = "gestor"
	RoleAssistente Role = "assistente"
	RoleAnalista   Role = "analista"
	RoleConsulta   Role = "consulta"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOuvidor, RoleGestor, RoleAssistente, RoleAnalista, RoleConsulta:
		return true
	}
	return false
}

// Actor is the authenticated identity performing an engine operation.
// It is derived once per request and passed by value; the engine never
// consults ambient auth state.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Manifestation is the central record tracked by the office.
// Protocol is assigned at creation and never changes. UpdatedAt doubles
// as the optimistic-concurrency token for every write.
type Manifestation struct {
	ID                string   `json:"id"`
	Protocol          string   `json:"protocol"`
	Type              Type     `json:"type" enum:"praise,suggestion,complaint,denunciation,request"`
	Status            Status   `json:"status" enum:"new,analyzing,forwarded,in_service,awaiting_return,responded,closed,canceled"`
	Priority          Priority `json:"priority" enum:"low,medium,high,urgent"`
	Description       string   `json:"description"`
	Anonymous         bool     `json:"anonymous"`
	Confidential      bool     `json:"confidential"`
	Channel           Channel  `json:"channel" enum:"web,phone,in_person,email"`
	Response          *string  `json:"response,omitempty"`
	ResponseDeadline  *string  `json:"response_deadline,omitempty" format:"date-time"`
	RespondedAt       *string  `json:"responded_at,omitempty" format:"date-time"`
	ClosedAt          *string  `json:"closed_at,omitempty" format:"date-time"`
	ResponsibleSector *string  `json:"responsible_sector_id,omitempty"`
	ResponsibleUserID *string  `json:"responsible_user_id,omitempty"`
	ComplainantID     *string  `json:"complainant_id,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

// Complainant is an independently owned identity record. Manifestations
// reference it weakly; anonymization nulls the reference, never the record.
type Complainant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Consent   bool   `json:"consent"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ForwardingStatus tracks one leg of the routing history.
type ForwardingStatus string

const (
	ForwardingPending   ForwardingStatus = "pending"
	ForwardingInReview  ForwardingStatus = "in_review"
	ForwardingResponded ForwardingStatus = "responded"
	ForwardingLate      ForwardingStatus = "late"
)

func (f ForwardingStatus) Valid() bool {
	switch f {
	case ForwardingPending, ForwardingInReview, ForwardingResponded, ForwardingLate:
		return true
	}
	return false
}

// ForwardingRecord is one routing hop. Append-only: only the destination's
// reply (status, return timestamp, note) is ever written back.
type ForwardingRecord struct {
	ID                string           `json:"id"`
	ManifestationID   string           `json:"manifestation_id"`
	OriginSectorID    *string          `json:"origin_sector_id,omitempty"`
	DestinationSector string           `json:"destination_sector_id"`
	OriginUserID      string           `json:"origin_user_id"`
	DestinationUserID *string          `json:"destination_user_id,omitempty"`
	Instructions      string           `json:"instructions,omitempty"`
	Deadline          *string          `json:"deadline,omitempty" format:"date-time"`
	Status            ForwardingStatus `json:"status" enum:"pending,in_review,responded,late"`
	ReturnNote        string           `json:"return_note,omitempty"`
	ReturnedAt        *string          `json:"returned_at,omitempty" format:"date-time"`
	CreatedAt         string           `json:"created_at" format:"date-time"`
}

type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanInProgress PlanStatus = "in_progress"
	PlanDone       PlanStatus = "done"
	PlanCanceled   PlanStatus = "canceled"
)

func (p PlanStatus) Valid() bool {
	switch p {
	case PlanPending, PlanInProgress, PlanDone, PlanCanceled:
		return true
	}
	return false
}

func (p PlanStatus) Terminal() bool {
	return p == PlanDone || p == PlanCanceled
}

// ActionPlan is a remediation task attached to a manifestation with its
// own small status machine.
type ActionPlan struct {
	ID                string     `json:"id"`
	ManifestationID   string     `json:"manifestation_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	SectorID          string     `json:"sector_id"`
	ResponsibleUserID *string    `json:"responsible_user_id,omitempty"`
	Status            PlanStatus `json:"status" enum:"pending,in_progress,done,canceled"`
	Deadline          *string    `json:"deadline,omitempty" format:"date-time"`
	StartedAt         *string    `json:"started_at,omitempty" format:"date-time"`
	CompletedAt       *string    `json:"completed_at,omitempty" format:"date-time"`
	Notes             string     `json:"notes,omitempty"`
	CreatedAt         string     `json:"created_at" format:"date-time"`
	UpdatedAt         string     `json:"updated_at" format:"date-time"`
}

// Notification is created only as a side effect of engine operations.
type Notification struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Kind      string  `json:"kind"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Link      string  `json:"link,omitempty"`
	Read      bool    `json:"read"`
	ReadAt    *string `json:"read_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// AuditEntry is an immutable record of a mutating operation.
type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Action     string `json:"action"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Before     string `json:"before_json,omitempty"`
	After      string `json:"after_json,omitempty"`
}

type CommunicationStatus string

const (
	CommunicationSent   CommunicationStatus = "sent"
	CommunicationFailed CommunicationStatus = "failed"
)

// Communication records the outcome of one outbound email request.
type Communication struct {
	ID              string              `json:"id"`
	ManifestationID string              `json:"manifestation_id"`
	Recipient       string              `json:"recipient"`
	Subject         string              `json:"subject"`
	Body            string              `json:"body,omitempty"`
	Protocol        string              `json:"protocol"`
	Status          CommunicationStatus `json:"status" enum:"sent,failed"`
	Error           string              `json:"error,omitempty"`
	CreatedAt       string              `json:"created_at" format:"date-time"`
}

// Sector is an organizational unit that can hold responsibility.
type Sector struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// User is an internal actor account.
type User struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	Role      Role    `json:"role" enum:"admin,ouvidor,gestor,assistente,analista,consulta"`
	SectorID  *string `json:"sector_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// APIKey authenticates machine callers of the HTTP API.
type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
