package permission

import "shopfloor-service/internal/models"

// CanAct decides whether a principal may act on a ticket. Admins always may;
// staff only when they are one of the ticket's ownership anchors. This check
// is applied in addition to the capability check, never instead of it.
func CanAct(p *models.Principal, t *models.Ticket) bool {
	if p == nil || t == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	if p.EmployeeID == "" {
		return false
	}
	if p.EmployeeID == t.TakenInBy {
		return true
	}
	return t.WorkedBy != nil && p.EmployeeID == *t.WorkedBy
}
