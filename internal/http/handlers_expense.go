package http

import (
	"net/http"

	"wydatki/internal/core"
)

type expenseList struct {
	Expenses []core.ExpenseRecord `json:"expenses"`
	Count    int                  `json:"count"`
}

// expenseInput is the body of create and update requests.
type expenseInput struct {
	category string
	icon     string
	amount   string
}

func (s *Server) parseExpenseInput(w http.ResponseWriter, r *http.Request) (expenseInput, bool) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return expenseInput{}, false
	}
	in := expenseInput{
		category: p.Get("category"),
		icon:     p.Get("icon"),
		amount:   p.Get("amount"),
	}
	// a catalog category brings its own icon
	if in.icon == "" {
		if c, ok := core.LookupCategory(in.category); ok {
			in.icon = c.Icon
		}
	}
	return in, true
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, ownerID string) {
	records, err := s.deps.Records.List(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(expenseList{Expenses: records, Count: len(records)}).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, ownerID string) {
	in, ok := s.parseExpenseInput(w, r)
	if !ok {
		return
	}

	id, err := s.deps.Ledger.CreateExpense(r.Context(), ownerID, in.category, in.icon, in.amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.expensesTotal.Add(1)

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+id).
		Body(map[string]string{"id": id}).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request, ownerID string) {
	record, err := s.deps.Ledger.Get(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(record).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, ownerID string) {
	in, ok := s.parseExpenseInput(w, r)
	if !ok {
		return
	}

	if err := s.deps.Ledger.UpdateExpense(r.Context(), ownerID, r.PathValue("id"), in.category, in.icon, in.amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, ownerID string) {
	if err := s.deps.Ledger.DeleteExpense(r.Context(), ownerID, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
