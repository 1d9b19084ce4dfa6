// Package coding collects the fixed FHIR coding systems and codes the
// gateway refers to by value: the sync-scope tag systems, the BALP
// audit-event vocabularies, and the practitioner-group SNOMED code.
package coding

const (
	// LocationTagSystem tags a resource with the location it is attributed to.
	LocationTagSystem = "http://nuts.nl/fhir/NamingSystem/location-tag"
	// OrganizationTagSystem tags a resource with its owning organization.
	OrganizationTagSystem = "http://nuts.nl/fhir/NamingSystem/organization-tag"
	// CareTeamTagSystem tags a resource with the care-team it belongs to.
	CareTeamTagSystem = "http://nuts.nl/fhir/NamingSystem/careteam-tag"

	// SNOMED is the code system for the practitioner-group code below.
	SNOMED = "http://snomed.info/sct"
	// PractitionerGroupCode identifies Groups of practitioners (step 8 of
	// the Practitioner Graph Resolver algorithm).
	PractitionerGroupCode = "405623001"
)

const (
	AuditEventTypeSystem    = "http://terminology.hl7.org/CodeSystem/audit-event-type"
	AuditEventTypeCode      = "rest"
	AuditEventSubtypeSystem = "http://hl7.org/fhir/restful-interaction"
)

// RestfulInteraction is the BALP restful-interaction subtype code for a
// given REST operation type (e.g. "read", "search-type", "create").
type RestfulInteraction string

const (
	InteractionRead       RestfulInteraction = "read"
	InteractionVRead      RestfulInteraction = "vread"
	InteractionSearchType RestfulInteraction = "search-type"
	InteractionSearchSys  RestfulInteraction = "search-system"
	InteractionHistory    RestfulInteraction = "history-instance"
	InteractionCreate     RestfulInteraction = "create"
	InteractionUpdate     RestfulInteraction = "update"
	InteractionDelete     RestfulInteraction = "delete"
)

// AuditAction is a BALP AuditEvent.action code (C/R/U/D/E).
type AuditAction string

const (
	ActionCreate  AuditAction = "C"
	ActionRead    AuditAction = "R"
	ActionUpdate  AuditAction = "U"
	ActionDelete  AuditAction = "D"
	ActionExecute AuditAction = "E"
)

// BALPProfile names the BALP profile canonical URL an AuditEvent conforms to.
type BALPProfile string

const (
	balpBase = "http://ihe.net/fhir/StructureDefinition/IHE.BasicAudit."

	ProfileBasicCreate   BALPProfile = balpBase + "Create"
	ProfileBasicRead     BALPProfile = balpBase + "Read"
	ProfileBasicUpdate   BALPProfile = balpBase + "Update"
	ProfileBasicDelete   BALPProfile = balpBase + "Delete"
	ProfileBasicQuery    BALPProfile = balpBase + "Query"
	ProfilePatientCreate BALPProfile = balpBase + "PatientCreate"
	ProfilePatientRead   BALPProfile = balpBase + "PatientRead"
	ProfilePatientUpdate BALPProfile = balpBase + "PatientUpdate"
	ProfilePatientDelete BALPProfile = balpBase + "PatientDelete"
	ProfilePatientQuery  BALPProfile = balpBase + "PatientQuery"
)

const (
	// AuditEntityRoleQuery is the DICOM audit-entity-role code for a query.
	AuditEntityRoleQuery = "24"
	// AuditEntityTypeSystemObject is the audit-entity-type code for a
	// system object (a FHIR resource instance).
	AuditEntityTypeSystemObject = "2"
	// AuditEntityRoleDomainResource marks an entity as a domain resource.
	AuditEntityRoleDomainResource = "4"
	// AuditEntityRolePatient marks an entity as a patient compartment owner.
	AuditEntityRolePatient = "1"
	// AuditEntityTypeXRequestID marks the entity carrying X-Request-Id.
	AuditEntityTypeXRequestID = "XrequestId"

	DeletedIdentifierSystem = "http://nuts.nl/fhir/NamingSystem/deleted-resource"
)
