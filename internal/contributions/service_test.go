package contributions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/coffeefund-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/coffeefund-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestCreateNonDividedCreditsBuyer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b, c := h.member("ana", true), h.member("bia", true), h.member("caio", true)
	coffee := h.product("Catuai")

	id, err := h.svc.Create(ctx, h.input(a, coffee, "2", "120"))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	h.requireBalance(a, "2")
	h.requireBalance(b, "0")
	h.requireBalance(c, "0")

	got, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.IsDivided)
	assert.Empty(t, got.Details)

	p, err := h.products.Get(ctx, coffee)
	require.NoError(t, err)
	assert.True(t, p.AveragePricePerKg.Equal(dec("60")), "avg %s", p.AveragePricePerKg)
	assert.Empty(t, h.failures.steps)
}

func TestCreateDividedSplitsEvenly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b, c := h.member("ana", true), h.member("bia", true), h.member("caio", true)
	coffee := h.product("Catuai")

	in := h.input(a, coffee, "3", "90")
	in.IsDivided = true
	in.ParticipantIDs = []uuid.UUID{b, a, b}
	id, err := h.svc.Create(ctx, in)
	require.NoError(t, err)

	h.requireBalance(a, "1.5")
	h.requireBalance(b, "1.5")
	h.requireBalance(c, "0")

	got, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, got.IsDivided)
	require.Len(t, got.Details, 2)
	sumKg, sumValue := decimal.Zero, decimal.Zero
	for _, d := range got.Details {
		sumKg = sumKg.Add(d.QuantityKg)
		sumValue = sumValue.Add(d.Value)
		assert.NotEmpty(t, d.UserName)
	}
	assert.True(t, sumKg.Equal(dec("3")))
	assert.True(t, sumValue.Equal(dec("90")))
}

func TestCreateDividedThreeWaysKeepsExactSums(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b, c := h.member("ana", true), h.member("bia", true), h.member("caio", true)
	h.member("davi", true)
	coffee := h.product("Catuai")

	in := h.input(a, coffee, "1", "100")
	in.IsDivided = true
	in.ParticipantIDs = []uuid.UUID{b, c}
	id, err := h.svc.Create(ctx, in)
	require.NoError(t, err)

	got, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Details, 3)
	sumKg := decimal.Zero
	for _, d := range got.Details {
		sumKg = sumKg.Add(d.QuantityKg)
	}
	assert.True(t, sumKg.Equal(dec("1")), "sum %s", sumKg)
	h.requireBalance(a, "0.333334")
	h.requireBalance(b, "0.333333")
}

func TestCreateDividedWithoutParticipantsIsStoredUndivided(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.member("ana", true)
	h.member("bia", true)
	coffee := h.product("Catuai")

	in := h.input(a, coffee, "1", "50")
	in.IsDivided = true
	id, err := h.svc.Create(ctx, in)
	require.NoError(t, err)

	got, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.IsDivided)
	h.requireBalance(a, "1")
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.member("ana", true)
	coffee := h.product("Catuai")

	cases := map[string]func(in *CreateInput){
		"future purchase": func(in *CreateInput) { in.PurchaseDate = h.clock.now.Add(time.Hour) },
		"arrival before purchase": func(in *CreateInput) {
			in.ArrivalDate = ptr(in.PurchaseDate.Add(-24 * time.Hour))
		},
		"zero value":        func(in *CreateInput) { in.Value = decimal.Zero },
		"negative quantity": func(in *CreateInput) { in.QuantityKg = dec("-1") },
		"missing product":   func(in *CreateInput) { in.ProductID = uuid.Nil },
		"unknown product":   func(in *CreateInput) { in.ProductID = uuid.New() },
		"unknown buyer":     func(in *CreateInput) { in.UserID = uuid.New() },
		"unknown participant": func(in *CreateInput) {
			in.IsDivided = true
			in.ParticipantIDs = []uuid.UUID{uuid.New()}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := h.input(a, coffee, "1", "10")
			mutate(&in)
			_, err := h.svc.Create(ctx, in)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	list, err := h.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, h.reprocessor.calls)
}

func TestCreateSurvivesBestEffortFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.member("ana", true)
	h.member("bia", true)
	coffee := h.product("Catuai")
	h.reprocessor.err = errors.New("firestore who?")

	id, err := h.svc.Create(ctx, h.input(a, coffee, "1", "10"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, []string{ledger.StepReprocessBalances}, h.failures.steps)
	h.requireBalance(a, "0")

	// the next successful pass heals the drift
	h.reprocessor.err = nil
	res, err := h.reprocessor.ReprocessAllBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UsersUpdated)
	h.requireBalance(a, "1")
}

func TestUpdateQuantityRebuildsShares(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := h.member("ana", true), h.member("bia", true)
	h.member("caio", true)
	coffee := h.product("Catuai")

	in := h.input(a, coffee, "2", "100")
	in.IsDivided = true
	in.ParticipantIDs = []uuid.UUID{b}
	id, err := h.svc.Create(ctx, in)
	require.NoError(t, err)

	require.NoError(t, h.svc.Update(ctx, id, UpdateInput{QuantityKg: ptr(dec("4"))}))

	got, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Details, 2)
	for _, d := range got.Details {
		assert.True(t, d.QuantityKg.Equal(dec("2")), "share %s", d.QuantityKg)
		assert.True(t, d.Value.Equal(dec("50")))
	}
	h.requireBalance(a, "2")
	h.requireBalance(b, "2")

	p, err := h.products.Get(ctx, coffee)
	require.NoError(t, err)
	assert.True(t, p.AveragePricePerKg.Equal(dec("25")), "avg %s", p.AveragePricePerKg)
}

func TestUpdateEvidenceOnlyKeepsDetails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := h.member("ana", true), h.member("bia", true)
	h.member("caio", true)
	coffee := h.product("Catuai")

	in := h.input(a, coffee, "2", "100")
	in.IsDivided = true
	in.ParticipantIDs = []uuid.UUID{b}
	id, err := h.svc.Create(ctx, in)
	require.NoError(t, err)

	before, err := h.repo.ListDetails(ctx, id)
	require.NoError(t, err)

	require.NoError(t, h.svc.Update(ctx, id, UpdateInput{
		ArrivalEvidence: ptr("https://evidence.example.com/box.jpg"),
		ArrivalDate:     ptr(h.clock.now),
	}))

	after, err := h.repo.ListDetails(ctx, id)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	ids := map[uuid.UUID]bool{}
	for _, d := range before {
		ids[d.ID] = true
	}
	for _, d := range after {
		assert.True(t, ids[d.ID], "detail %s was recreated", d.ID)
	}

	p, err := h.products.Get(ctx, coffee)
	require.NoError(t, err)
	require.NotNil(t, p.PhotoURL)
	assert.Equal(t, "https://evidence.example.com/box.jpg", *p.PhotoURL)

	// an existing photo is never replaced
	require.NoError(t, h.svc.Update(ctx, id, UpdateInput{ArrivalEvidence: ptr("https://evidence.example.com/other.jpg")}))
	p, err = h.products.Get(ctx, coffee)
	require.NoError(t, err)
	assert.Equal(t, "https://evidence.example.com/box.jpg", *p.PhotoURL)
}

func TestUpdateBecomingUndividedDropsDetails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := h.member("ana", true), h.member("bia", true)
	h.member("caio", true)
	coffee := h.product("Catuai")

	in := h.input(a, coffee, "3", "90")
	in.IsDivided = true
	in.ParticipantIDs = []uuid.UUID{b}
	id, err := h.svc.Create(ctx, in)
	require.NoError(t, err)

	require.NoError(t, h.svc.Update(ctx, id, UpdateInput{IsDivided: ptr(false)}))

	details, err := h.repo.ListDetails(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, details)
	h.requireBalance(a, "3")
	h.requireBalance(b, "0")
}

func TestUpdateBecomingDividedAndChangingParticipants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b, c := h.member("ana", true), h.member("bia", true), h.member("caio", true)
	h.member("davi", true)
	coffee := h.product("Catuai")

	id, err := h.svc.Create(ctx, h.input(a, coffee, "2", "100"))
	require.NoError(t, err)
	h.requireBalance(a, "2")

	require.NoError(t, h.svc.Update(ctx, id, UpdateInput{
		IsDivided:      ptr(true),
		ParticipantIDs: &[]uuid.UUID{b},
	}))
	h.requireBalance(a, "1")
	h.requireBalance(b, "1")

	require.NoError(t, h.svc.Update(ctx, id, UpdateInput{ParticipantIDs: &[]uuid.UUID{c}}))
	h.requireBalance(a, "1")
	h.requireBalance(b, "0")
	h.requireBalance(c, "1")
}

func TestUpdateSkipBalanceUpdateLeavesAmountsAndBalances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.member("ana", true)
	h.member("bia", true)
	coffee, other := h.product("Catuai"), h.product("Bourbon")

	id, err := h.svc.Create(ctx, h.input(a, coffee, "2", "100"))
	require.NoError(t, err)
	calls := h.reprocessor.calls

	require.NoError(t, h.svc.Update(ctx, id, UpdateInput{
		QuantityKg:        ptr(dec("9")),
		ProductID:         &other,
		ArrivalEvidence:   ptr("https://evidence.example.com/late.jpg"),
		SkipBalanceUpdate: true,
	}))

	got, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.QuantityKg.Equal(dec("2")))
	assert.Equal(t, other, got.ProductID)
	require.NotNil(t, got.ArrivalEvidence)
	assert.Equal(t, calls, h.reprocessor.calls)
	h.requireBalance(a, "2")

	moved, err := h.products.Get(ctx, other)
	require.NoError(t, err)
	assert.True(t, moved.AveragePricePerKg.Equal(dec("50")))
	left, err := h.products.Get(ctx, coffee)
	require.NoError(t, err)
	assert.True(t, left.AveragePricePerKg.IsZero())
}

func TestUpdateSkipBalanceUpdateUndividingDropsShares(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := h.member("ana", true), h.member("bia", true)
	coffee := h.product("Catuai")

	in := h.input(a, coffee, "2", "80")
	in.IsDivided = true
	in.ParticipantIDs = []uuid.UUID{b}
	id, err := h.svc.Create(ctx, in)
	require.NoError(t, err)
	calls := h.reprocessor.calls

	require.NoError(t, h.svc.Update(ctx, id, UpdateInput{
		IsDivided:         ptr(false),
		SkipBalanceUpdate: true,
	}))

	got, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.IsDivided)
	assert.Empty(t, got.Details)
	assert.Equal(t, calls, h.reprocessor.calls)
	h.requireBalance(a, "1")
	h.requireBalance(b, "1")
}

func TestUpdateErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.member("ana", true)
	h.member("bia", true)
	coffee := h.product("Catuai")

	err := h.svc.Update(ctx, uuid.New(), UpdateInput{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	id, err := h.svc.Create(ctx, h.input(a, coffee, "1", "10"))
	require.NoError(t, err)

	err = h.svc.Update(ctx, id, UpdateInput{Value: ptr(dec("0"))})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	err = h.svc.Update(ctx, id, UpdateInput{PurchaseDate: ptr(h.clock.now.Add(48 * time.Hour))})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestDeleteRestoresPriorBalances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := h.member("ana", true), h.member("bia", true)
	h.member("caio", true)
	coffee := h.product("Catuai")

	_, err := h.svc.Create(ctx, h.input(a, coffee, "1", "40"))
	require.NoError(t, err)
	h.requireBalance(a, "1")

	in := h.input(a, coffee, "3", "90")
	in.IsDivided = true
	in.ParticipantIDs = []uuid.UUID{b}
	id, err := h.svc.Create(ctx, in)
	require.NoError(t, err)
	h.requireBalance(a, "2.5")
	h.requireBalance(b, "1.5")

	require.NoError(t, h.svc.Delete(ctx, id))
	h.requireBalance(a, "1")
	h.requireBalance(b, "0")

	details, err := h.repo.ListDetails(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, details)

	_, err = h.svc.Get(ctx, id)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	p, err := h.products.Get(ctx, coffee)
	require.NoError(t, err)
	assert.True(t, p.AveragePricePerKg.Equal(dec("40")))

	assert.True(t, pkgerrors.HasCode(h.svc.Delete(ctx, id), pkgerrors.CodeNotFound))
}

func TestReprocessIsIdempotentAfterMixedWrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b, c := h.member("ana", true), h.member("bia", true), h.member("caio", false)
	h.member("davi", true)
	coffee := h.product("Catuai")

	first, err := h.svc.Create(ctx, h.input(a, coffee, "1.25", "40"))
	require.NoError(t, err)
	in := h.input(b, coffee, "2", "70")
	in.IsDivided = true
	in.ParticipantIDs = []uuid.UUID{a, c}
	second, err := h.svc.Create(ctx, in)
	require.NoError(t, err)
	require.NoError(t, h.svc.Update(ctx, second, UpdateInput{Value: ptr(dec("75"))}))
	require.NoError(t, h.svc.Delete(ctx, first))

	res, err := h.reprocessor.ReprocessAllBalances(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.UsersUpdated)
	assert.Equal(t, "Balances updated for 0 users", res.Message)
}

func TestCompensationCheckpointScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := h.member("ana", true), h.member("bia", true)
	coffee := h.product("Catuai")
	base := h.clock.now

	in := h.input(a, coffee, "1", "40")
	in.PurchaseDate = base.Add(-3 * time.Hour)
	_, err := h.svc.Create(ctx, in)
	require.NoError(t, err)

	in = h.input(b, coffee, "3", "120")
	in.PurchaseDate = base.Add(-2 * time.Hour)
	_, err = h.svc.Create(ctx, in)
	require.NoError(t, err)

	// both members are in credit so the create above compensated them
	list, err := h.compensations.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].TotalKg.Equal(dec("1")))
	h.requireBalance(a, "0")
	h.requireBalance(b, "2")

	c := h.member("caio", true)

	h.clock.now = base.Add(2 * time.Hour)
	in = h.input(a, coffee, "2", "80")
	in.PurchaseDate = base.Add(time.Hour)
	_, err = h.svc.Create(ctx, in)
	require.NoError(t, err)

	// a starts again from the checkpoint (0), not from its earlier purchase
	h.requireBalance(a, "2")
	h.requireBalance(b, "2")
	h.requireBalance(c, "0")

	list, err = h.compensations.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListByUserMissingArrival(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := h.member("ana", true), h.member("bia", true)
	coffee := h.product("Catuai")

	pending, err := h.svc.Create(ctx, h.input(a, coffee, "1", "10"))
	require.NoError(t, err)

	arrived := h.input(a, coffee, "1", "10")
	arrived.ArrivalDate = ptr(h.clock.now)
	arrived.ArrivalEvidence = ptr("https://evidence.example.com/ok.jpg")
	_, err = h.svc.Create(ctx, arrived)
	require.NoError(t, err)

	_, err = h.svc.Create(ctx, h.input(b, coffee, "1", "10"))
	require.NoError(t, err)

	all, err := h.svc.ListByUser(ctx, a, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	missing, err := h.svc.ListByUser(ctx, a, true)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, pending, missing[0].ID)

	everything, err := h.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, everything, 3)
}

func TestWritesFailAtomicallyWhenTransactionFails(t *testing.T) {
	txErr := errors.New("connection reset")

	cases := []struct {
		name string
		run  func(h *harness, svc Service, seeded uuid.UUID) error
	}{
		{
			name: "create",
			run: func(h *harness, svc Service, _ uuid.UUID) error {
				buyer := h.member("caio", true)
				in := h.input(buyer, h.product("Bourbon"), "3", "90")
				in.IsDivided = true
				in.ParticipantIDs = []uuid.UUID{h.member("duda", true)}
				id, err := svc.Create(context.Background(), in)
				assert.Equal(t, uuid.Nil, id)
				return err
			},
		},
		{
			name: "update",
			run: func(_ *harness, svc Service, seeded uuid.UUID) error {
				return svc.Update(context.Background(), seeded, UpdateInput{
					Value:      ptr(dec("200")),
					QuantityKg: ptr(dec("5")),
				})
			},
		},
		{
			name: "delete",
			run: func(_ *harness, svc Service, seeded uuid.UUID) error {
				return svc.Delete(context.Background(), seeded)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			a, b := h.member("ana", true), h.member("bia", true)
			coffee := h.product("Catuai")

			in := h.input(a, coffee, "2", "100")
			in.IsDivided = true
			in.ParticipantIDs = []uuid.UUID{b}
			seeded, err := h.svc.Create(ctx, in)
			require.NoError(t, err)

			calls := h.reprocessor.calls
			contributions, details := h.contributionCount(), h.detailCount()

			err = tc.run(h, h.serviceWithTx(failingTx{err: txErr}), seeded)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePersistence), "got %v", err)
			assert.ErrorIs(t, err, txErr)

			assert.Equal(t, calls, h.reprocessor.calls)
			assert.Empty(t, h.failures.steps)
			assert.Equal(t, contributions, h.contributionCount())
			assert.Equal(t, details, h.detailCount())

			got, err := h.svc.Get(ctx, seeded)
			require.NoError(t, err)
			assert.True(t, got.Value.Equal(dec("100")))
			assert.True(t, got.QuantityKg.Equal(dec("2")))
			assert.Len(t, got.Details, 2)
			h.requireBalance(a, "1")
			h.requireBalance(b, "1")
		})
	}
}
