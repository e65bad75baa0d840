package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

// ContractService assembles the service-delivery contract document from the
// visit note and billable blocks. The document is plain text; e-signature and
// delivery happen downstream.
type ContractService struct {
	agencyName string
}

func NewContractService(agencyName string) *ContractService {
	if agencyName == "" {
		agencyName = "CareTrail Home Services"
	}
	return &ContractService{agencyName: agencyName}
}

// Assemble renders the contract for a visit. Like note composition it is
// deterministic over its inputs.
func (s *ContractService) Assemble(visit *entities.Visit, note *entities.VisitNote, blocks []*entities.BillableBlock) *entities.ContractDocument {
	total := TotalMinutes(blocks)

	var b strings.Builder
	fmt.Fprintf(&b, "SERVICE DELIVERY RECORD - %s\n\n", s.agencyName)
	fmt.Fprintf(&b, "Visit date: %s\n", visit.ScheduledStart.Format("January 2, 2006"))
	fmt.Fprintf(&b, "Visit ID: %s\n", visit.ID)
	fmt.Fprintf(&b, "Caregiver: %s\n", visit.CaregiverID)
	fmt.Fprintf(&b, "Client: %s\n\n", visit.ClientID)

	b.WriteString("Services rendered:\n")
	for _, block := range blocks {
		fmt.Fprintf(&b, "  %s  %-13s  %d min  (%s)\n",
			block.Code, block.Category, block.BilledMinutes(), block.Description)
	}
	fmt.Fprintf(&b, "\nTotal documented care time: %d minutes\n\n", total)

	b.WriteString("Visit summary:\n")
	b.WriteString(note.Narrative)
	b.WriteString("\n")

	return &entities.ContractDocument{
		ID:           uuid.New().String(),
		VisitID:      visit.ID,
		Content:      b.String(),
		TotalMinutes: total,
		CreatedAt:    time.Now(),
	}
}
