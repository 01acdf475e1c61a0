// Package storetest holds the behavioural suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/jjenkins/sorteio/internal/model"
	"github.com/jjenkins/sorteio/internal/store"
)

// Factory builds an empty store holding exactly the seeded rows.
type Factory func(t *testing.T, seed ...model.Registrant) store.Store

// Run executes the contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	suite.Run(t, &ContractSuite{newStore: newStore})
}

// ContractSuite checks the validate/draw/reset rules.
type ContractSuite struct {
	suite.Suite
	newStore Factory
}

var validatedAt = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// Person builds an active, unvalidated registrant.
func Person(cpf string) model.Registrant {
	name := "Servidor " + cpf
	return model.Registrant{CPF: cpf, Name: &name}
}

// Validated builds an active registrant validated at a fixed instant.
func Validated(cpf string) model.Registrant {
	r := Person(cpf)
	at := validatedAt
	r.ValidatedAt = &at
	return r
}

// Drawn builds a validated registrant already drawn.
func Drawn(cpf string) model.Registrant {
	r := Validated(cpf)
	r.Drawn = true
	return r
}

// Duplicate marks a registrant as a duplicate row.
func Duplicate(r model.Registrant) model.Registrant {
	r.Duplicate = true
	return r
}

func cpfs(registrants []model.Registrant) []string {
	out := make([]string, 0, len(registrants))
	for _, r := range registrants {
		out = append(out, r.CPF)
	}
	return out
}

func (s *ContractSuite) TestListActive() {
	ctx := context.Background()

	s.Run("empty store lists nothing", func() {
		st := s.newStore(s.T())
		got, err := st.ListActive(ctx)
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("duplicates are hidden", func() {
		st := s.newStore(s.T(), Person("111"), Validated("222"), Duplicate(Validated("333")))
		got, err := st.ListActive(ctx)
		s.Require().NoError(err)
		s.ElementsMatch([]string{"111", "222"}, cpfs(got))
	})
}

func (s *ContractSuite) TestListValidated() {
	ctx := context.Background()
	st := s.newStore(s.T(), Person("111"), Validated("222"), Drawn("333"), Duplicate(Validated("444")))

	got, err := st.ListValidated(ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"222", "333"}, cpfs(got))
}

func (s *ContractSuite) TestGet() {
	ctx := context.Background()
	st := s.newStore(s.T(), Validated("111"), Duplicate(Person("222")))

	s.Run("active record is returned", func() {
		r, err := st.Get(ctx, "111")
		s.Require().NoError(err)
		s.Require().NotNil(r)
		s.Equal("111", r.CPF)
		s.Equal("Servidor 111", r.DisplayName())
		s.True(r.IsValidated())
	})

	s.Run("unknown cpf returns nil without error", func() {
		r, err := st.Get(ctx, "999")
		s.NoError(err)
		s.Nil(r)
	})

	s.Run("duplicate record is invisible", func() {
		r, err := st.Get(ctx, "222")
		s.NoError(err)
		s.Nil(r)
	})
}

func (s *ContractSuite) TestValidateUnknownWithoutForce() {
	ctx := context.Background()
	st := s.newStore(s.T())

	status, err := st.Validate(ctx, "111", store.ValidateOptions{})
	s.Require().NoError(err)
	s.Equal(store.StatusNotFound, status)

	all, err := st.ListActive(ctx)
	s.Require().NoError(err)
	s.Empty(all, "no record should be created")
}

func (s *ContractSuite) TestValidateUnknownWithForce() {
	ctx := context.Background()
	st := s.newStore(s.T())

	status, err := store.RegisterAndValidate(ctx, st, "111", "terceirizado")
	s.Require().NoError(err)
	s.Equal(store.StatusValidated, status)

	all, err := st.ListActive(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)

	r := all[0]
	s.Equal("111", r.CPF)
	s.True(r.IsValidated())
	s.False(bool(r.Drawn))
	s.False(bool(r.Duplicate))
	s.Require().NotNil(r.Observation)
	s.Equal("terceirizado", *r.Observation)
}

func (s *ContractSuite) TestValidateTwiceConflicts() {
	ctx := context.Background()
	st := s.newStore(s.T(), Person("111"))

	status, err := store.ValidateExisting(ctx, st, "111")
	s.Require().NoError(err)
	s.Equal(store.StatusValidated, status)

	r, err := st.Get(ctx, "111")
	s.Require().NoError(err)
	s.Require().NotNil(r)
	s.Require().True(r.IsValidated())
	first := *r.ValidatedAt

	status, err = store.ValidateExisting(ctx, st, "111")
	s.Require().NoError(err)
	s.Equal(store.StatusAlreadyValidated, status)

	r, err = st.Get(ctx, "111")
	s.Require().NoError(err)
	s.True(first.Equal(*r.ValidatedAt), "second validation must not touch the timestamp")
}

func (s *ContractSuite) TestForcedValidationOfExistingRecordDoesNotCreate() {
	ctx := context.Background()
	st := s.newStore(s.T(), Person("111"))

	status, err := store.RegisterAndValidate(ctx, st, "111", "nota")
	s.Require().NoError(err)
	s.Equal(store.StatusValidated, status)

	all, err := st.ListActive(ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
	s.Nil(all[0].Observation)
}

func (s *ContractSuite) TestDuplicateDoesNotBlockRegistration() {
	ctx := context.Background()
	st := s.newStore(s.T(), Duplicate(Validated("111")))

	status, err := store.ValidateExisting(ctx, st, "111")
	s.Require().NoError(err)
	s.Equal(store.StatusNotFound, status)

	status, err = store.RegisterAndValidate(ctx, st, "111", "")
	s.Require().NoError(err)
	s.Equal(store.StatusValidated, status)

	r, err := st.Get(ctx, "111")
	s.Require().NoError(err)
	s.Require().NotNil(r)
	s.False(bool(r.Duplicate))
	s.Nil(r.Observation)
}

func (s *ContractSuite) TestDrawExhaustsEligibleSet() {
	ctx := context.Background()
	eligible := []string{"101", "102", "103", "104", "105"}
	seed := []model.Registrant{
		Person("201"),
		Person("202"),
		Drawn("301"),
		Duplicate(Validated("401")),
	}
	for _, cpf := range eligible {
		seed = append(seed, Validated(cpf))
	}
	st := s.newStore(s.T(), seed...)

	var drawn []string
	for range eligible {
		cpf, ok, err := st.DrawRandom(ctx)
		s.Require().NoError(err)
		s.Require().True(ok)
		drawn = append(drawn, cpf)
	}
	s.ElementsMatch(eligible, drawn, "every eligible registrant is drawn exactly once")

	_, ok, err := st.DrawRandom(ctx)
	s.Require().NoError(err)
	s.False(ok, "no candidate once the eligible set is exhausted")

	list, err := st.ListDrawn(ctx)
	s.Require().NoError(err)
	s.ElementsMatch(append(eligible, "301"), cpfs(list))
}

func (s *ContractSuite) TestDrawWithoutCandidates() {
	ctx := context.Background()
	st := s.newStore(s.T(), Person("111"), Duplicate(Validated("222")))

	cpf, ok, err := st.DrawRandom(ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.Empty(cpf)
}

func (s *ContractSuite) TestValidateThenDrawScenario() {
	ctx := context.Background()
	st := s.newStore(s.T(), Person("111"))

	status, err := store.ValidateExisting(ctx, st, "111")
	s.Require().NoError(err)
	s.Equal(store.StatusValidated, status)

	cpf, ok, err := st.DrawRandom(ctx)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal("111", cpf)

	r, err := st.Get(ctx, "111")
	s.Require().NoError(err)
	s.Require().NotNil(r)
	s.True(bool(r.Drawn))

	_, ok, err = st.DrawRandom(ctx)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ContractSuite) TestResetDraws() {
	ctx := context.Background()
	st := s.newStore(s.T(), Drawn("111"), Drawn("222"), Validated("333"))

	s.Require().NoError(st.ResetDraws(ctx))

	list, err := st.ListDrawn(ctx)
	s.Require().NoError(err)
	s.Empty(list)

	// the reset makes everyone validated eligible again
	seen := map[string]bool{}
	for {
		cpf, ok, err := st.DrawRandom(ctx)
		s.Require().NoError(err)
		if !ok {
			break
		}
		s.False(seen[cpf], "cpf %s drawn twice", cpf)
		seen[cpf] = true
	}
	s.Len(seen, 3)
}

func (s *ContractSuite) TestResetValidations() {
	ctx := context.Background()
	st := s.newStore(s.T(), Validated("111"), Person("222"), Drawn("333"))

	s.Require().NoError(st.ResetValidations(ctx))

	validated, err := st.ListValidated(ctx)
	s.Require().NoError(err)
	s.Empty(validated)

	active, err := st.ListActive(ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"111", "222", "333"}, cpfs(active))

	_, ok, err := st.DrawRandom(ctx)
	s.Require().NoError(err)
	s.False(ok, "nobody is eligible without a validation")

	status, err := store.ValidateExisting(ctx, st, "111")
	s.Require().NoError(err)
	s.Equal(store.StatusValidated, status)
}

func (s *ContractSuite) TestImport() {
	ctx := context.Background()
	st := s.newStore(s.T(), Validated("111"), Duplicate(Person("222")))

	inserted, err := st.Import(ctx, []model.Registrant{Person("111"), Person("222"), Person("333")})
	s.Require().NoError(err)
	s.Equal(2, inserted)

	active, err := st.ListActive(ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"111", "222", "333"}, cpfs(active))

	r, err := st.Get(ctx, "111")
	s.Require().NoError(err)
	s.Require().NotNil(r)
	s.True(r.IsValidated(), "import must not overwrite an active record")

	r, err = st.Get(ctx, "333")
	s.Require().NoError(err)
	s.Require().NotNil(r)
	s.False(r.IsValidated())
	s.Equal("Servidor 333", r.DisplayName())
}

func (s *ContractSuite) TestConcurrentDrawsNeverRepeat() {
	ctx := context.Background()
	const eligible = 20
	const workers = 40

	var seed []model.Registrant
	for i := 0; i < eligible; i++ {
		seed = append(seed, Validated(string(rune('A'+i))+"-cpf"))
	}
	st := s.newStore(s.T(), seed...)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []string
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cpf, ok, err := st.DrawRandom(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				results = append(results, cpf)
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		s.True(errors.Is(err, store.ErrDrawContention), "unexpected error: %v", err)
	}

	seen := map[string]bool{}
	for _, cpf := range results {
		s.False(seen[cpf], "cpf %s drawn twice", cpf)
		seen[cpf] = true
	}

	// drain whatever contention left behind
	for {
		cpf, ok, err := st.DrawRandom(ctx)
		s.Require().NoError(err)
		if !ok {
			break
		}
		s.False(seen[cpf], "cpf %s drawn twice", cpf)
		seen[cpf] = true
	}
	s.Len(seen, eligible)

	drawn, err := st.ListDrawn(ctx)
	s.Require().NoError(err)
	s.Len(drawn, eligible)
}

func (s *ContractSuite) TestConcurrentValidationCreatesOneRecord() {
	ctx := context.Background()
	const workers = 20
	st := s.newStore(s.T())

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		statuses []store.ValidateStatus
		errs     []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := store.RegisterAndValidate(ctx, st, "111", "terceirizado")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			statuses = append(statuses, status)
		}()
	}
	wg.Wait()

	s.Empty(errs)
	s.Require().Len(statuses, workers)

	counts := map[store.ValidateStatus]int{}
	for _, status := range statuses {
		counts[status]++
	}
	s.Equal(1, counts[store.StatusValidated])
	s.Equal(workers-1, counts[store.StatusAlreadyValidated])
	s.Zero(counts[store.StatusNotFound])

	active, err := st.ListActive(ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("111", active[0].CPF)
	s.True(active[0].IsValidated())
}
