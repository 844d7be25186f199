package model

// Status represents quotation status
type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether the response flow treats the status as final
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ServiceType represents the kind of service a client asks for
type ServiceType string

const (
	ServicePermitAcquisition    ServiceType = "permit_acquisition"
	ServiceComplianceMonitoring ServiceType = "compliance_monitoring"
)

func (t ServiceType) Valid() bool {
	return t == ServicePermitAcquisition || t == ServiceComplianceMonitoring
}

// Label is the human readable form used in emails and documents
func (t ServiceType) Label() string {
	switch t {
	case ServicePermitAcquisition:
		return "Permit Acquisition"
	case ServiceComplianceMonitoring:
		return "Compliance Monitoring"
	}
	return string(t)
}

// Action is the decision a response token encodes
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func (a Action) Valid() bool {
	return a == ActionApprove || a == ActionReject
}

// Outcome maps an action to the terminal status it produces
func (a Action) Outcome() Status {
	if a == ActionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// Role represents staff role
type Role string

const (
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool {
	return r == RoleManager || r == RoleAdmin || r == RoleEmployee
}

// Quotation represents a client's request for services
type Quotation struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone,omitempty"`
	Company        string          `json:"company,omitempty"`
	ServiceType    ServiceType     `json:"serviceType"`
	Description    string          `json:"description"`
	Status         Status          `json:"status"`
	Amount         *float64        `json:"amount,omitempty"`
	EstimateID     *string         `json:"estimateId,omitempty"`
	TokenExpiresAt *string         `json:"tokenExpiresAt,omitempty"`
	RespondedAt    *string         `json:"respondedAt,omitempty"`
	PermitRequests []PermitRequest `json:"permitRequests"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	UpdatedAt      string          `json:"updatedAt,omitempty"`
}

// PermitRequest is one permit asked for on a quotation
type PermitRequest struct {
	ID           string      `json:"id"`
	QuotationID  string      `json:"quotationId"`
	PermitTypeID *string     `json:"permitTypeId,omitempty"`
	CustomName   *string     `json:"customName,omitempty"`
	PermitType   *PermitType `json:"permitType,omitempty"`
	CreatedAt    string      `json:"createdAt,omitempty"`
}

// DisplayName returns the catalog name or the custom name
func (p PermitRequest) DisplayName() string {
	if p.PermitType != nil {
		return p.PermitType.Name
	}
	if p.CustomName != nil {
		return *p.CustomName
	}
	return ""
}

// PermitType is a catalog entry issued by an agency
type PermitType struct {
	ID           string  `json:"id"`
	AgencyID     string  `json:"agencyId"`
	AgencyName   string  `json:"agencyName,omitempty"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	TimeEstimate string  `json:"timeEstimate,omitempty"`
	ExternalID   string  `json:"externalId,omitempty"`
	CreatedAt    string  `json:"createdAt,omitempty"`
	UpdatedAt    string  `json:"updatedAt,omitempty"`
}

// Agency is an issuing authority
type Agency struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	PermitTypes []PermitType `json:"permitTypes,omitempty"`
	CreatedAt   string       `json:"createdAt,omitempty"`
}

// Staff is an authenticated employee of the firm
type Staff struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// QuotationResponse records a consumed response token
type QuotationResponse struct {
	ID          string `json:"id"`
	QuotationID string `json:"quotationId"`
	Action      Action `json:"action"`
	Status      Status `json:"status"`
	RemoteAddr  string `json:"remoteAddr,omitempty"`
	RespondedAt string `json:"respondedAt"`
}
