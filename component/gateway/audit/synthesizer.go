// Package audit implements the Audit Synthesizer: after a successful
// forward, it classifies the operation against BALP profiles and emits
// one or more AuditEvent resources to the upstream store.
package audit

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/nuts-foundation/fhir-access-gateway/component/gateway/reader"
	"github.com/nuts-foundation/fhir-access-gateway/lib/coding"
	"github.com/nuts-foundation/fhir-access-gateway/lib/to"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
	"go.opentelemetry.io/otel"
)

// Client is the slice of fhirclient.Client the synthesizer needs.
type Client interface {
	CreateWithContext(ctx context.Context, resource, result any, opts ...fhirclient.Option) error
}

// Config configures the Synthesizer's compartment extraction.
type Config struct {
	// ExtraCompartmentParams supplements the standard Patient-compartment
	// search parameters with operator-supplied ones, per resource type.
	ExtraCompartmentParams map[string][]string `koanf:"extracompartmentparams"`
}

// Synthesizer emits BALP AuditEvent resources to the upstream audit sink.
type Synthesizer struct {
	sink   Client
	extra  map[string][]string
}

// New creates a Synthesizer that persists audit events via sink.
func New(sink Client, config Config) *Synthesizer {
	return &Synthesizer{sink: sink, extra: config.ExtraCompartmentParams}
}

// UserReference identifies the acting user in an AuditEvent's agent list.
type UserReference struct {
	Reference string
	Display   string
}

// Emit classifies rd's operation and posts the resulting audit event(s)
// to the upstream sink. responseBody is nil for operations that carry no
// body (e.g. DELETE). Errors are returned to the caller, who is expected
// (per spec.md §7) to log and swallow them without affecting the client
// response that has already been sent.
func (s *Synthesizer) Emit(ctx context.Context, rd *reader.Reader, responseBody []byte, user UserReference) error {
	ctx, span := otel.Tracer("audit").Start(ctx, "emit")
	defer span.End()

	events := s.buildEvents(rd, responseBody, user)
	for _, event := range events {
		var result fhir.AuditEvent
		if err := s.sink.CreateWithContext(ctx, event, &result); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synthesizer) buildEvents(rd *reader.Reader, responseBody []byte, user UserReference) []fhir.AuditEvent {
	switch rd.OperationType() {
	case reader.SearchType, reader.SearchSys, reader.GetPage:
		return s.buildQueryEvents(rd, user)
	case reader.Read, reader.VRead:
		return s.buildReadEvents(rd, user)
	case reader.Create:
		return s.buildWriteEvents(rd, responseBody, user, coding.ActionCreate, coding.InteractionCreate, coding.ProfileBasicCreate, coding.ProfilePatientCreate)
	case reader.Update:
		return s.buildWriteEvents(rd, responseBody, user, coding.ActionUpdate, coding.InteractionUpdate, coding.ProfileBasicUpdate, coding.ProfilePatientUpdate)
	case reader.Delete:
		return s.buildDeleteEvents(rd, user)
	default:
		return nil
	}
}

func (s *Synthesizer) buildQueryEvents(rd *reader.Reader, user UserReference) []fhir.AuditEvent {
	owners := compartmentOwnersFromParams(rd.Parameters(), s.extra[rd.ResourceName()])
	base := s.base(rd, user, coding.ActionExecute, interactionForQuery(rd))

	queryEntity := fhir.AuditEventEntity{
		Role: &fhir.Coding{Code: to.Ptr(coding.AuditEntityRoleQuery)},
		Query: []byte(rd.URL().RequestURI()),
	}

	if len(owners) == 0 {
		event := base
		event.Entity = append([]fhir.AuditEventEntity{queryEntity}, s.transactionEntity(rd))
		setProfile(&event, coding.ProfileBasicQuery)
		return []fhir.AuditEvent{event}
	}

	var events []fhir.AuditEvent
	for _, owner := range owners {
		event := base
		event.Entity = []fhir.AuditEventEntity{queryEntity, s.transactionEntity(rd), patientEntity(owner)}
		setProfile(&event, coding.ProfilePatientQuery)
		events = append(events, event)
	}
	return events
}

func (s *Synthesizer) buildReadEvents(rd *reader.Reader, user UserReference) []fhir.AuditEvent {
	owners := compartmentOwnersFromParams(rd.Parameters(), s.extra[rd.ResourceName()])
	base := s.base(rd, user, coding.ActionRead, interactionForRead(rd))
	resourceEntity := s.resourceEntity(rd.ResourceName(), rd.ResourceID())

	if len(owners) == 0 {
		event := base
		event.Entity = []fhir.AuditEventEntity{resourceEntity, s.transactionEntity(rd)}
		setProfile(&event, coding.ProfileBasicRead)
		return []fhir.AuditEvent{event}
	}

	var events []fhir.AuditEvent
	for _, owner := range owners {
		event := base
		event.Entity = []fhir.AuditEventEntity{resourceEntity, s.transactionEntity(rd), patientEntity(owner)}
		setProfile(&event, coding.ProfilePatientRead)
		events = append(events, event)
	}
	return events
}

func (s *Synthesizer) buildWriteEvents(rd *reader.Reader, responseBody []byte, user UserReference, action coding.AuditAction, interaction coding.RestfulInteraction, basicProfile, patientProfile coding.BALPProfile) []fhir.AuditEvent {
	resourceID, owners := s.resourceOwners(rd, responseBody)
	base := s.base(rd, user, action, interaction)
	resourceEntity := s.resourceEntity(rd.ResourceName(), resourceID)

	if len(owners) == 0 {
		event := base
		event.Entity = []fhir.AuditEventEntity{resourceEntity, s.transactionEntity(rd)}
		setProfile(&event, basicProfile)
		return []fhir.AuditEvent{event}
	}

	var events []fhir.AuditEvent
	for _, owner := range owners {
		event := base
		event.Entity = []fhir.AuditEventEntity{resourceEntity, s.transactionEntity(rd), patientEntity(owner)}
		setProfile(&event, patientProfile)
		events = append(events, event)
	}
	return events
}

func (s *Synthesizer) buildDeleteEvents(rd *reader.Reader, user UserReference) []fhir.AuditEvent {
	pseudo := BuildPseudoResource(rd)
	owners := compartmentOwnersFromResource(pseudo, s.extra[rd.ResourceName()])

	base := s.base(rd, user, coding.ActionDelete, coding.InteractionDelete)
	entity := fhir.AuditEventEntity{
		Type: &fhir.Coding{Code: to.Ptr(coding.AuditEntityTypeSystemObject)},
		Role: &fhir.Coding{Code: to.Ptr(coding.AuditEntityRoleDomainResource)},
		What: &fhir.Reference{Reference: to.Ptr(rd.ResourceName() + "/" + rd.ResourceID())},
		Name: to.Ptr("DELETED " + rd.ResourceName() + "/" + rd.ResourceID()),
		Identifier: &fhir.Identifier{
			System: to.Ptr(coding.DeletedIdentifierSystem),
			Value:  to.Ptr(rd.ResourceID()),
		},
	}

	if len(owners) == 0 {
		event := base
		event.Entity = []fhir.AuditEventEntity{entity, s.transactionEntity(rd)}
		setProfile(&event, coding.ProfileBasicDelete)
		return []fhir.AuditEvent{event}
	}

	var events []fhir.AuditEvent
	for _, owner := range owners {
		event := base
		event.Entity = []fhir.AuditEventEntity{entity, s.transactionEntity(rd), patientEntity(owner)}
		setProfile(&event, coding.ProfilePatientDelete)
		events = append(events, event)
	}
	return events
}

// BuildPseudoResource synthesizes the {resourceType, id} JSON object
// spec.md §4.4 uses for DELETE audits, since no response body is read on
// delete.
func BuildPseudoResource(rd *reader.Reader) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{
		"resourceType": rd.ResourceName(),
		"id":           rd.ResourceID(),
	})
	return raw
}

func (s *Synthesizer) resourceOwners(rd *reader.Reader, responseBody []byte) (resourceID string, owners []string) {
	var envelope struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(responseBody, &envelope)
	if envelope.ID != "" {
		resourceID = envelope.ID
	} else {
		resourceID = rd.ResourceID()
	}
	owners = compartmentOwnersFromResource(responseBody, s.extra[rd.ResourceName()])
	return
}

func (s *Synthesizer) resourceEntity(resourceType, id string) fhir.AuditEventEntity {
	return fhir.AuditEventEntity{
		Type:  &fhir.Coding{Code: to.Ptr(coding.AuditEntityTypeSystemObject)},
		Role:  &fhir.Coding{Code: to.Ptr(coding.AuditEntityRoleDomainResource)},
		What:  &fhir.Reference{Reference: to.Ptr(resourceType + "/" + id)},
	}
}

func patientEntity(patientID string) fhir.AuditEventEntity {
	return fhir.AuditEventEntity{
		Role: &fhir.Coding{Code: to.Ptr(coding.AuditEntityRolePatient)},
		What: &fhir.Reference{Reference: to.Ptr("Patient/" + patientID)},
	}
}

func (s *Synthesizer) transactionEntity(rd *reader.Reader) fhir.AuditEventEntity {
	return fhir.AuditEventEntity{
		Type: &fhir.Coding{Code: to.Ptr(coding.AuditEntityTypeXRequestID)},
		Name: to.Ptr(rd.RequestID()),
	}
}

func (s *Synthesizer) base(rd *reader.Reader, user UserReference, action coding.AuditAction, interaction coding.RestfulInteraction) fhir.AuditEvent {
	now := time.Now()
	return fhir.AuditEvent{
		Type: fhir.Coding{System: to.Ptr(coding.AuditEventTypeSystem), Code: to.Ptr(coding.AuditEventTypeCode)},
		Subtype: []fhir.Coding{{System: to.Ptr(coding.AuditEventSubtypeSystem), Code: to.Ptr(string(interaction))}},
		Action:  to.Ptr(fhir.AuditEventAction(action)),
		Outcome: to.Ptr(fhir.AuditEventOutcome("0")),
		Period: &fhir.Period{
			Start: to.Ptr(rd.Start().Format(time.RFC3339)),
			End:   to.Ptr(now.Format(time.RFC3339)),
		},
		Agent: []fhir.AuditEventAgent{
			{Requestor: false, Who: &fhir.Reference{Display: to.Ptr(rd.RemoteAddr())}},
			{Requestor: false, Who: &fhir.Reference{Display: to.Ptr(rd.FHIRServerBase())}},
			{Requestor: true, Who: &fhir.Reference{Reference: to.Ptr(user.Reference), Display: to.Ptr(user.Display)}},
		},
	}
}

func interactionForQuery(rd *reader.Reader) coding.RestfulInteraction {
	switch rd.OperationType() {
	case reader.SearchSys:
		return coding.InteractionSearchSys
	case reader.GetPage:
		return coding.InteractionSearchType
	default:
		return coding.InteractionSearchType
	}
}

func interactionForRead(rd *reader.Reader) coding.RestfulInteraction {
	if rd.OperationType() == reader.VRead {
		return coding.InteractionVRead
	}
	return coding.InteractionRead
}

func setProfile(event *fhir.AuditEvent, profile coding.BALPProfile) {
	if event.Meta == nil {
		event.Meta = &fhir.Meta{}
	}
	event.Meta.Profile = append(event.Meta.Profile, string(profile))
}

// compartmentOwnersFromParams extracts Patient-compartment owner ids
// from a search's parameters (e.g. "patient", "subject").
func compartmentOwnersFromParams(params url.Values, extra []string) []string {
	candidateParams := append([]string{"patient", "subject"}, extra...)
	var owners []string
	seen := map[string]bool{}
	for _, name := range candidateParams {
		for _, value := range params[name] {
			id := value
			if idx := indexOfSlash(value); idx >= 0 {
				id = value[idx+1:]
			}
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			owners = append(owners, id)
		}
	}
	return owners
}

func indexOfSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// compartmentOwnersFromResource extracts Patient-compartment owner ids
// from a resource body: the resource's own id if it is itself a Patient,
// otherwise any reference carried under "subject", "patient", or one of
// extra's field names (Config.ExtraCompartmentParams, per resource type)
// that points at a Patient.
func compartmentOwnersFromResource(body []byte, extra []string) []string {
	var envelope struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	if envelope.ResourceType == "Patient" && envelope.ID != "" {
		return []string{envelope.ID}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil
	}

	var owners []string
	seen := map[string]bool{}
	for _, name := range append([]string{"subject", "patient"}, extra...) {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var ref struct {
			Reference string `json:"reference"`
		}
		if err := json.Unmarshal(raw, &ref); err != nil || !isPatientRef(ref.Reference) {
			continue
		}
		id := refID(ref.Reference)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		owners = append(owners, id)
	}
	return owners
}

func isPatientRef(ref string) bool {
	return len(ref) > len("Patient/") && ref[:len("Patient/")] == "Patient/"
}

func refID(ref string) string {
	if idx := indexOfSlash(ref); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}
