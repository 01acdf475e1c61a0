package model

import "time"

// Registrant is one row of the registrant table, keyed by CPF.
type Registrant struct {
	ID          int64      `db:"id" json:"id"`
	CPF         string     `db:"cpf" json:"cpf"`
	Name        *string    `db:"nome" json:"nome"`
	ValidatedAt *time.Time `db:"dataValidacao" json:"dataValidacao"`
	Drawn       Flag       `db:"sorteado" json:"sorteado"`
	Duplicate   Flag       `db:"duplicado" json:"duplicado"`
	Observation *string    `db:"observacao" json:"observacao"`
}

// IsValidated reports whether the registrant has a validation timestamp.
func (r Registrant) IsValidated() bool {
	return r.ValidatedAt != nil
}

// Eligible reports whether the registrant can be picked by a draw.
func (r Registrant) Eligible() bool {
	return r.IsValidated() && !bool(r.Drawn) && !bool(r.Duplicate)
}

// DisplayName returns the name or an empty string when absent.
func (r Registrant) DisplayName() string {
	if r.Name == nil {
		return ""
	}
	return *r.Name
}

// MaskedCPF hides all but the last two digits of the CPF.
func (r Registrant) MaskedCPF() string {
	n := len(r.CPF)
	if n <= 2 {
		return r.CPF
	}
	masked := make([]byte, n)
	for i := 0; i < n-2; i++ {
		masked[i] = '*'
	}
	copy(masked[n-2:], r.CPF[n-2:])
	return string(masked)
}
