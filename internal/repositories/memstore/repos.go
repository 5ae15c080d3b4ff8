package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/freelance-marketplace/contract-workflow/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---- Contracts ----

type contractRepo struct{ v *view }

func (r contractRepo) Create(_ context.Context, c *models.Contract) error {
	return r.v.run("contracts.Create", true, func(st *state) error {
		for _, existing := range st.contracts {
			if existing.ProposalID == c.ProposalID {
				return repositories.ErrDuplicate
			}
		}
		now := r.v.s.now()
		c.ID = uuid.New()
		c.CreatedAt, c.UpdatedAt = now, now
		st.contracts[c.ID] = *c
		return nil
	})
}

func (r contractRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	var out models.Contract
	err := r.v.run("contracts.GetByID", false, func(st *state) error {
		c, ok := st.contracts[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Transactions are already serialized, so the lock is implicit.
func (r contractRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	return r.GetByID(ctx, id)
}

func (r contractRepo) GetByProposalID(_ context.Context, proposalID string) (*models.Contract, error) {
	var out *models.Contract
	err := r.v.run("contracts.GetByProposalID", false, func(st *state) error {
		for _, c := range st.contracts {
			if c.ProposalID == proposalID {
				c := c
				out = &c
				return nil
			}
		}
		return repositories.ErrNotFound
	})
	return out, err
}

func (r contractRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to string) error {
	return r.v.run("contracts.UpdateStatus", true, func(st *state) error {
		c, ok := st.contracts[id]
		if !ok || c.Status != from {
			return repositories.ErrStaleState
		}
		c.Status = to
		c.UpdatedAt = r.v.s.now()
		st.contracts[id] = c
		return nil
	})
}

func (r contractRepo) List(_ context.Context, f repositories.ContractFilter) ([]models.Contract, error) {
	var out []models.Contract
	err := r.v.run("contracts.List", false, func(st *state) error {
		matched := []models.Contract{}
		for _, c := range st.contracts {
			if f.PartyID != nil && c.ClientID != *f.PartyID && c.FreelancerID != *f.PartyID {
				continue
			}
			if f.ClientID != nil && c.ClientID != *f.ClientID {
				continue
			}
			if f.FreelancerID != nil && c.FreelancerID != *f.FreelancerID {
				continue
			}
			if f.Status != nil && c.Status != *f.Status {
				continue
			}
			matched = append(matched, c)
		}
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return matched[i].ID.String() < matched[j].ID.String()
		})
		out = page(matched, f.Limit, f.Offset)
		return nil
	})
	return out, err
}

// ---- Milestones ----

type milestoneRepo struct{ v *view }

func (r milestoneRepo) Create(_ context.Context, m *models.Milestone) error {
	return r.v.run("milestones.Create", true, func(st *state) error {
		if _, ok := st.contracts[m.ContractID]; !ok {
			return repositories.ErrNotFound
		}
		now := r.v.s.now()
		m.ID = uuid.New()
		m.CreatedAt, m.UpdatedAt = now, now
		st.milestones[m.ID] = *m
		return nil
	})
}

func (r milestoneRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Milestone, error) {
	var out models.Milestone
	err := r.v.run("milestones.GetByID", false, func(st *state) error {
		m, ok := st.milestones[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r milestoneRepo) ListByContract(_ context.Context, contractID uuid.UUID) ([]models.Milestone, error) {
	out := []models.Milestone{}
	err := r.v.run("milestones.ListByContract", false, func(st *state) error {
		for _, m := range st.milestones {
			if m.ContractID == contractID {
				out = append(out, m)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return milestoneLess(&out[i], &out[j]) })
		return nil
	})
	return out, err
}

// milestoneLess orders by due date ascending with undated milestones last,
// then order index, then creation time.
func milestoneLess(a, b *models.Milestone) bool {
	switch {
	case a.DueDate != nil && b.DueDate == nil:
		return true
	case a.DueDate == nil && b.DueDate != nil:
		return false
	case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
		return a.DueDate.Before(*b.DueDate)
	}
	if a.OrderIndex != b.OrderIndex {
		return a.OrderIndex < b.OrderIndex
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (r milestoneRepo) UpdateDetails(_ context.Context, m *models.Milestone) error {
	return r.v.run("milestones.UpdateDetails", true, func(st *state) error {
		cur, ok := st.milestones[m.ID]
		if !ok {
			return repositories.ErrNotFound
		}
		cur.Title = m.Title
		cur.Description = m.Description
		cur.Amount = m.Amount
		cur.DueDate = m.DueDate
		cur.OrderIndex = m.OrderIndex
		cur.UpdatedAt = r.v.s.now()
		st.milestones[m.ID] = cur
		m.UpdatedAt = cur.UpdatedAt
		return nil
	})
}

func (r milestoneRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to string, completedDate *time.Time) error {
	return r.v.run("milestones.UpdateStatus", true, func(st *state) error {
		m, ok := st.milestones[id]
		if !ok || m.Status != from {
			return repositories.ErrStaleState
		}
		m.Status = to
		if completedDate != nil {
			m.CompletedDate = completedDate
		}
		m.UpdatedAt = r.v.s.now()
		st.milestones[id] = m
		return nil
	})
}

func (r milestoneRepo) Delete(_ context.Context, id uuid.UUID) error {
	return r.v.run("milestones.Delete", true, func(st *state) error {
		m, ok := st.milestones[id]
		if !ok || m.Status == models.MilestoneStatusPaid {
			return repositories.ErrNotFound
		}
		delete(st.milestones, id)
		return nil
	})
}

func (r milestoneRepo) SumAmounts(_ context.Context, contractID uuid.UUID, excludeID *uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.v.run("milestones.SumAmounts", false, func(st *state) error {
		for _, m := range st.milestones {
			if m.ContractID != contractID || (excludeID != nil && m.ID == *excludeID) {
				continue
			}
			sum = sum.Add(m.Amount)
		}
		return nil
	})
	return sum, err
}

// ---- Payment requests ----

type paymentRequestRepo struct{ v *view }

func (r paymentRequestRepo) Create(_ context.Context, pr *models.PaymentRequest) error {
	return r.v.run("payment_requests.Create", true, func(st *state) error {
		if _, ok := st.milestones[pr.MilestoneID]; !ok {
			return repositories.ErrNotFound
		}
		for _, existing := range st.requests {
			if existing.MilestoneID == pr.MilestoneID && existing.Status == models.PaymentRequestStatusPending {
				return repositories.ErrDuplicate
			}
		}
		pr.ID = uuid.New()
		pr.RequestedAt = r.v.s.now()
		st.requests[pr.ID] = *pr
		return nil
	})
}

func (r paymentRequestRepo) GetByID(_ context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	var out models.PaymentRequest
	err := r.v.run("payment_requests.GetByID", false, func(st *state) error {
		pr, ok := st.requests[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = pr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r paymentRequestRepo) List(_ context.Context, f repositories.PaymentRequestFilter) ([]models.PaymentRequest, error) {
	var out []models.PaymentRequest
	err := r.v.run("payment_requests.List", false, func(st *state) error {
		matched := []models.PaymentRequest{}
		for _, pr := range st.requests {
			if f.PartyID != nil {
				c, ok := st.contracts[pr.ContractID]
				if !ok || (c.ClientID != *f.PartyID && c.FreelancerID != *f.PartyID) {
					continue
				}
			}
			if f.ContractID != nil && pr.ContractID != *f.ContractID {
				continue
			}
			if f.MilestoneID != nil && pr.MilestoneID != *f.MilestoneID {
				continue
			}
			if f.Status != nil && pr.Status != *f.Status {
				continue
			}
			matched = append(matched, pr)
		}
		sortRequests(matched)
		out = page(matched, f.Limit, f.Offset)
		return nil
	})
	return out, err
}

func (r paymentRequestRepo) ListByContract(_ context.Context, contractID uuid.UUID) ([]models.PaymentRequest, error) {
	out := []models.PaymentRequest{}
	err := r.v.run("payment_requests.ListByContract", false, func(st *state) error {
		for _, pr := range st.requests {
			if pr.ContractID == contractID {
				out = append(out, pr)
			}
		}
		sortRequests(out)
		return nil
	})
	return out, err
}

func sortRequests(rs []models.PaymentRequest) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].RequestedAt.Equal(rs[j].RequestedAt) {
			return rs[i].RequestedAt.After(rs[j].RequestedAt)
		}
		return rs[i].ID.String() < rs[j].ID.String()
	})
}

func (r paymentRequestRepo) HasPending(_ context.Context, milestoneID uuid.UUID) (bool, error) {
	found := false
	err := r.v.run("payment_requests.HasPending", false, func(st *state) error {
		for _, pr := range st.requests {
			if pr.MilestoneID == milestoneID && pr.Status == models.PaymentRequestStatusPending {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (r paymentRequestRepo) MarkApproved(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.v.run("payment_requests.MarkApproved", true, func(st *state) error {
		pr, ok := st.requests[id]
		if !ok || pr.Status != models.PaymentRequestStatusPending {
			return repositories.ErrStaleState
		}
		pr.Status = models.PaymentRequestStatusApproved
		pr.ApprovedAt = &at
		st.requests[id] = pr
		return nil
	})
}

func (r paymentRequestRepo) MarkRejected(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.v.run("payment_requests.MarkRejected", true, func(st *state) error {
		pr, ok := st.requests[id]
		if !ok || pr.Status != models.PaymentRequestStatusPending {
			return repositories.ErrStaleState
		}
		pr.Status = models.PaymentRequestStatusRejected
		pr.RejectionReason = &reason
		pr.RejectedAt = &at
		st.requests[id] = pr
		return nil
	})
}

// ---- Payments ----

type paymentRepo struct{ v *view }

func (r paymentRepo) Create(_ context.Context, p *models.Payment) error {
	return r.v.run("payments.Create", true, func(st *state) error {
		p.ID = uuid.New()
		p.ProcessedAt = r.v.s.now()
		st.payments[p.ID] = *p
		return nil
	})
}

func (r paymentRepo) ListByRequest(_ context.Context, paymentRequestID uuid.UUID) ([]models.Payment, error) {
	out := []models.Payment{}
	err := r.v.run("payments.ListByRequest", false, func(st *state) error {
		for _, p := range st.payments {
			if p.PaymentRequestID == paymentRequestID {
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.After(out[j].ProcessedAt) })
		return nil
	})
	return out, err
}

// ---- Users ----

type userRepo struct{ v *view }

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	var out models.User
	err := r.v.run("users.GetByID", false, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r userRepo) Upsert(_ context.Context, u *models.User) error {
	return r.v.run("users.Upsert", true, func(st *state) error {
		now := r.v.s.now()
		if cur, ok := st.users[u.ID]; ok {
			u.CreatedAt = cur.CreatedAt
			if u.Email == nil {
				u.Email = cur.Email
			}
			if u.DisplayName == nil {
				u.DisplayName = cur.DisplayName
			}
		} else {
			u.CreatedAt = now
		}
		u.UpdatedAt = now
		st.users[u.ID] = *u
		return nil
	})
}

// ---- Audit ----

type auditRepo struct{ v *view }

func (r auditRepo) Log(_ context.Context, entry models.AuditLog) error {
	return r.v.run("audit.Log", true, func(st *state) error {
		entry.ID = uuid.New()
		entry.CreatedAt = r.v.s.now()
		st.audit = append(st.audit, entry)
		return nil
	})
}

// GetByContract returns entries newest first; insertion order breaks ties.
func (r auditRepo) GetByContract(_ context.Context, contractID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	var out []models.AuditLog
	err := r.v.run("audit.GetByContract", false, func(st *state) error {
		matched := []models.AuditLog{}
		for i := len(st.audit) - 1; i >= 0; i-- {
			if st.audit[i].ContractID == contractID {
				matched = append(matched, st.audit[i])
			}
		}
		out = page(matched, limit, offset)
		return nil
	})
	return out, err
}
