package server

import (
	"teamline/internal/domain"
)

type AttachmentPayload struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type CreateAssignmentRequest struct {
	Title     string              `json:"title"`
	Brief     string              `json:"brief,omitempty"`
	Steps     string              `json:"steps,omitempty"`
	StartDate string              `json:"start_date,omitempty"`
	DueDate   string              `json:"due_date"`
	Teammates []string            `json:"teammates"`
	Files     []AttachmentPayload `json:"files,omitempty"`
}

type UpdateAssignmentRequest struct {
	Title     *string             `json:"title,omitempty"`
	Brief     *string             `json:"brief,omitempty"`
	Steps     *string             `json:"steps,omitempty"`
	StartDate *string             `json:"start_date,omitempty"`
	DueDate   *string             `json:"due_date,omitempty"`
	Teammates []string            `json:"teammates,omitempty"`
	Files     []AttachmentPayload `json:"files,omitempty"`
}

type ExtendAssignmentRequest struct {
	DueDate string `json:"due_date"`
}

type CancelAssignmentRequest struct {
	Note string `json:"note,omitempty"`
}

type SupervisorActionRequest struct {
	Action     string              `json:"action" enum:"approve,decline,request_revision,approve_extension"`
	Note       string              `json:"note,omitempty"`
	NewDueDate string              `json:"new_due_date,omitempty"`
	Files      []AttachmentPayload `json:"files,omitempty"`
}

type TeammateActionRequest struct {
	Action string              `json:"action" enum:"accept,decline,request_extension,request_cancel,request_update,deliver"`
	Note   string              `json:"note,omitempty"`
	Urgent bool                `json:"urgent,omitempty"`
	Files  []AttachmentPayload `json:"files,omitempty"`
}

type MarkCompleteRequest struct {
	Note string `json:"note,omitempty"`
}

type SendMessageRequest struct {
	Text       string `json:"text"`
	TargetRole string `json:"target_role" enum:"client,supervisor,teammate,administrator"`
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name,omitempty"`
	Urgent     bool   `json:"urgent,omitempty"`
}

// DeleteActivityRequest identifies the event by synthetic id, or by the
// legacy content tuple when id is zero.
type DeleteActivityRequest struct {
	ID     int64  `json:"id,omitempty"`
	TS     string `json:"ts,omitempty"`
	Author string `json:"author,omitempty"`
	Type   string `json:"type,omitempty"`
	Note   string `json:"note,omitempty"`
}

type RosterEntryRequest struct {
	TeammateName string `json:"teammate_name"`
	SupervisorID string `json:"supervisor_id"`
	Company      string `json:"company,omitempty"`
}

type MemberRequest struct {
	ActorID     string   `json:"actor_id"`
	Role        string   `json:"role" enum:"client,supervisor,teammate,administrator"`
	DisplayName string   `json:"display_name,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

type AssignmentResponse struct {
	ID          string              `json:"id"`
	ClientID    string              `json:"client_id"`
	Title       string              `json:"title"`
	Brief       string              `json:"brief,omitempty"`
	Steps       string              `json:"steps,omitempty"`
	StartDate   string              `json:"start_date,omitempty"`
	DueDate     string              `json:"due_date"`
	Status      string              `json:"status"`
	Teammates   []string            `json:"teammates"`
	Supervisors []string            `json:"supervisors"`
	ClientFiles []AttachmentPayload `json:"client_files,omitempty"`
	SupervisorFiles []AttachmentPayload `json:"supervisor_files,omitempty"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
}

type AssignmentDetailResponse struct {
	AssignmentResponse
	Activity    []ActivityEventResponse `json:"activity"`
	Messages    []MessageResponse       `json:"messages"`
	Deliveries  []DeliveryResponse      `json:"deliveries"`
	Acceptances []AcceptanceResponse    `json:"acceptances"`
}

type ActivityEventResponse struct {
	ID     int64  `json:"id"`
	TS     string `json:"ts"`
	Author string `json:"author"`
	Type   string `json:"type"`
	Note   string `json:"note,omitempty"`
	Urgent bool   `json:"urgent,omitempty"`
}

type MessageResponse struct {
	ID         string `json:"id"`
	TS         string `json:"ts"`
	SenderRole string `json:"sender_role"`
	SenderName string `json:"sender_name"`
	TargetRole string `json:"target_role"`
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name,omitempty"`
	Text       string `json:"text"`
}

type DeliveryResponse struct {
	ID       string              `json:"id"`
	Teammate string              `json:"teammate"`
	TS       string              `json:"ts"`
	Note     string              `json:"note,omitempty"`
	Files    []AttachmentPayload `json:"files,omitempty"`
	Status   string              `json:"status"`
}

type AcceptanceResponse struct {
	Teammate string `json:"teammate"`
	State    string `json:"state"`
	Note     string `json:"note,omitempty"`
	TS       string `json:"ts"`
}

type NotificationResponse struct {
	ID           string `json:"id"`
	AssignmentID string `json:"assignment_id"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	CreatedAt    string `json:"created_at"`
	DeliveredAt  string `json:"delivered_at,omitempty"`
	ReadAt       string `json:"read_at,omitempty"`
}

type RosterEntryResponse struct {
	ID           string `json:"id"`
	TeammateName string `json:"teammate_name"`
	SupervisorID string `json:"supervisor_id"`
	Company      string `json:"company,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type MemberResponse struct {
	ActorID     string   `json:"actor_id"`
	Role        string   `json:"role"`
	DisplayName string   `json:"display_name,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

func attachmentPayloads(in []domain.Attachment) []AttachmentPayload {
	var out []AttachmentPayload
	for _, f := range in {
		out = append(out, AttachmentPayload{Name: f.Name, Location: f.Location})
	}
	return out
}

func attachmentsFromPayload(in []AttachmentPayload) []domain.Attachment {
	var out []domain.Attachment
	for _, f := range in {
		out = append(out, domain.Attachment{Name: f.Name, Location: f.Location})
	}
	return out
}

func assignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:              a.ID,
		ClientID:        a.ClientID,
		Title:           a.Title,
		Brief:           a.Brief,
		Steps:           a.Steps,
		StartDate:       a.StartDate,
		DueDate:         a.DueDate,
		Status:          a.Status,
		Teammates:       a.Teammates,
		Supervisors:     a.Supervisors,
		ClientFiles:     attachmentPayloads(a.ClientFiles),
		SupervisorFiles: attachmentPayloads(a.SupervisorFiles),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func mapAssignments(in []domain.Assignment) []AssignmentResponse {
	out := []AssignmentResponse{}
	for _, a := range in {
		out = append(out, assignmentResponse(a))
	}
	return out
}

func activityResponse(ev domain.ActivityEvent) ActivityEventResponse {
	return ActivityEventResponse{ID: ev.ID, TS: ev.TS, Author: ev.Author, Type: ev.Type, Note: ev.Note, Urgent: ev.Urgent}
}

func mapActivity(in []domain.ActivityEvent) []ActivityEventResponse {
	out := []ActivityEventResponse{}
	for _, ev := range in {
		out = append(out, activityResponse(ev))
	}
	return out
}

func mapMessages(in []domain.Message) []MessageResponse {
	out := []MessageResponse{}
	for _, m := range in {
		out = append(out, MessageResponse{
			ID: m.ID, TS: m.TS,
			SenderRole: string(m.SenderRole), SenderName: m.SenderName,
			TargetRole: string(m.TargetRole), TargetID: m.TargetID, TargetName: m.TargetName,
			Text: m.Text,
		})
	}
	return out
}

func mapDeliveries(in []domain.Delivery) []DeliveryResponse {
	out := []DeliveryResponse{}
	for _, d := range in {
		out = append(out, DeliveryResponse{
			ID: d.ID, Teammate: d.Teammate, TS: d.TS, Note: d.Note,
			Files: attachmentPayloads(d.Files), Status: d.Status,
		})
	}
	return out
}

func mapAcceptances(in []domain.Acceptance) []AcceptanceResponse {
	out := []AcceptanceResponse{}
	for _, a := range in {
		out = append(out, AcceptanceResponse{Teammate: a.Teammate, State: a.State, Note: a.Note, TS: a.TS})
	}
	return out
}

func mapNotifications(in []domain.Notification) []NotificationResponse {
	out := []NotificationResponse{}
	for _, n := range in {
		out = append(out, NotificationResponse{
			ID: n.ID, AssignmentID: n.AssignmentID, Subject: n.Subject, Body: n.Body,
			CreatedAt: n.CreatedAt, DeliveredAt: n.DeliveredAt, ReadAt: n.ReadAt,
		})
	}
	return out
}

func mapRoster(in []domain.RosterEntry) []RosterEntryResponse {
	out := []RosterEntryResponse{}
	for _, e := range in {
		out = append(out, RosterEntryResponse{
			ID: e.ID, TeammateName: e.TeammateName, SupervisorID: e.SupervisorID,
			Company: e.Company, CreatedAt: e.CreatedAt,
		})
	}
	return out
}

func mapMembers(in []domain.Member) []MemberResponse {
	out := []MemberResponse{}
	for _, m := range in {
		out = append(out, MemberResponse{
			ActorID: m.ActorID, Role: string(m.Role), DisplayName: m.DisplayName,
			Aliases: m.Aliases, CreatedAt: m.CreatedAt,
		})
	}
	return out
}
