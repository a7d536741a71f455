package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/apperr"
)

func bounds(slots []Slot) [][2]int {
	out := make([][2]int, 0, len(slots))
	for _, s := range slots {
		out = append(out, [2]int{s.Start, s.End})
	}
	return out
}

func TestOverlay(t *testing.T) {
	rec := Slot{ID: uuid.New(), Start: 600, End: 660, Recurring: true}

	tests := []struct {
		name     string
		existing []Slot
		want     [][2]int
	}{
		{
			name:     "no overlap keeps existing",
			existing: []Slot{{ID: uuid.New(), Start: 480, End: 540}, {ID: uuid.New(), Start: 720, End: 780}},
			want:     [][2]int{{480, 540}, {600, 660}, {720, 780}},
		},
		{
			name:     "window inside existing splits it",
			existing: []Slot{{ID: uuid.New(), Start: 540, End: 720}},
			want:     [][2]int{{540, 600}, {600, 660}, {660, 720}},
		},
		{
			name:     "left overlap trims the end",
			existing: []Slot{{ID: uuid.New(), Start: 540, End: 630}},
			want:     [][2]int{{540, 600}, {600, 660}},
		},
		{
			name:     "right overlap trims the start",
			existing: []Slot{{ID: uuid.New(), Start: 630, End: 720}},
			want:     [][2]int{{600, 660}, {660, 720}},
		},
		{
			name:     "window covering existing drops it",
			existing: []Slot{{ID: uuid.New(), Start: 610, End: 650}},
			want:     [][2]int{{600, 660}},
		},
		{
			name:     "identical window is replaced",
			existing: []Slot{{ID: uuid.New(), Start: 600, End: 660}},
			want:     [][2]int{{600, 660}},
		},
		{
			name: "empty day gets the window",
			want: [][2]int{{600, 660}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := overlay(tt.existing, rec)
			assert.Equal(t, tt.want, bounds(got))
		})
	}
}

func TestOverlaySplitIDs(t *testing.T) {
	originID := uuid.New()
	existingID := uuid.New()
	existing := []Slot{{ID: existingID, Start: 540, End: 720, Recurring: true, RecurringOriginSlot: &originID}}
	rec := Slot{ID: uuid.New(), Start: 600, End: 660}

	got := overlay(existing, rec)
	require.Len(t, got, 3)

	assert.Equal(t, existingID, got[0].ID)
	assert.Equal(t, rec.ID, got[1].ID)
	assert.NotEqual(t, existingID, got[2].ID)
	assert.NotEqual(t, uuid.Nil, got[2].ID)
	assert.True(t, got[2].OriginatesFrom(originID))
}

func TestCreateRecurringProjectsWeekly(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	psy := uuid.New()
	originID := uuid.New()
	otherID := uuid.New()

	require.NoError(t, repo.SaveDay(ctx, &Day{
		PsychologistID: psy,
		Date:           date(t, "2024-06-03"),
		Slots:          []Slot{{ID: originID, Start: 540, End: 600}},
	}))
	require.NoError(t, repo.SaveDay(ctx, &Day{
		PsychologistID: psy,
		Date:           date(t, "2024-06-17"),
		Slots:          []Slot{{ID: otherID, Start: 480, End: 720}},
	}))

	svc := newTestService(repo, nil, fakeRoster{psy}, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	err := svc.CreateRecurring(ctx, psy, RecurringSlot{
		OriginSlotID: originID,
		Date:         date(t, "2024-06-03"),
		Start:        540,
		End:          600,
		RecurringEnd: date(t, "2024-06-24"),
	})
	require.NoError(t, err)

	for _, d := range []string{"2024-06-10", "2024-06-24"} {
		day, ok := repo.day(psy, date(t, d))
		require.True(t, ok, "expected day record on %s", d)
		require.Len(t, day.Slots, 1)
		assert.Equal(t, [2]int{540, 600}, [2]int{day.Slots[0].Start, day.Slots[0].End})
		assert.True(t, day.Slots[0].Recurring)
		assert.True(t, day.Slots[0].OriginatesFrom(originID))
		assert.Equal(t, date(t, "2024-06-24"), *day.Slots[0].RecurringEnd)
	}

	merged, ok := repo.day(psy, date(t, "2024-06-17"))
	require.True(t, ok)
	assert.Equal(t, [][2]int{{480, 540}, {540, 600}, {600, 720}}, bounds(merged.Slots))
	assert.Equal(t, otherID, merged.Slots[0].ID)
	assert.True(t, merged.Slots[1].OriginatesFrom(originID))

	_, ok = repo.day(psy, date(t, "2024-07-01"))
	assert.False(t, ok)

	origin, ok := repo.day(psy, date(t, "2024-06-03"))
	require.True(t, ok)
	require.Len(t, origin.Slots, 1)
	assert.True(t, origin.Slots[0].Recurring)
	assert.True(t, origin.Slots[0].OriginatesFrom(originID))
}

func TestCreateRecurringUnknownSlot(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	psy := uuid.New()

	require.NoError(t, repo.SaveDay(ctx, &Day{
		PsychologistID: psy,
		Date:           date(t, "2024-06-03"),
		Slots:          []Slot{{ID: uuid.New(), Start: 540, End: 600}},
	}))

	svc := newTestService(repo, nil, fakeRoster{psy}, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	err := svc.CreateRecurring(ctx, psy, RecurringSlot{
		OriginSlotID: uuid.New(),
		Date:         date(t, "2024-06-03"),
		Start:        540,
		End:          600,
		RecurringEnd: date(t, "2024-06-24"),
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, ok := repo.day(psy, date(t, "2024-06-10"))
	assert.False(t, ok)
}

func TestCreateRecurringValidation(t *testing.T) {
	svc := newTestService(newMemRepo(), nil, nil, time.Now())
	psy := uuid.New()

	err := svc.CreateRecurring(context.Background(), psy, RecurringSlot{Date: date(t, "2024-06-03")})
	assert.ErrorIs(t, err, apperr.ErrMissingFields)

	err = svc.CreateRecurring(context.Background(), psy, RecurringSlot{
		OriginSlotID: uuid.New(),
		Date:         date(t, "2024-06-03"),
		Start:        600,
		End:          540,
		RecurringEnd: date(t, "2024-06-24"),
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	err = svc.CreateRecurring(context.Background(), psy, RecurringSlot{
		OriginSlotID: uuid.New(),
		Date:         date(t, "2024-06-03"),
		Start:        540,
		End:          600,
		RecurringEnd: date(t, "2024-05-27"),
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestDeleteRecurringPullsMatchingSlots(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	psy := uuid.New()
	originID := uuid.New()

	origin := originID
	projected := func() Slot {
		return Slot{ID: uuid.New(), Start: 540, End: 600, Recurring: true, RecurringOriginSlot: &origin}
	}

	require.NoError(t, repo.SaveDay(ctx, &Day{PsychologistID: psy, Date: date(t, "2024-06-03"),
		Slots: []Slot{{ID: originID, Start: 540, End: 600, Recurring: true, RecurringOriginSlot: &origin}}}))
	require.NoError(t, repo.SaveDay(ctx, &Day{PsychologistID: psy, Date: date(t, "2024-06-10"),
		Slots: []Slot{projected()}}))
	require.NoError(t, repo.SaveDay(ctx, &Day{PsychologistID: psy, Date: date(t, "2024-06-17"),
		Slots: []Slot{{ID: uuid.New(), Start: 480, End: 540}, projected()}}))
	require.NoError(t, repo.SaveDay(ctx, &Day{PsychologistID: psy, Date: date(t, "2024-06-24"),
		Slots: []Slot{{ID: uuid.New(), Start: 420, End: 480}, projected(), {ID: uuid.New(), Start: 600, End: 720}}}))

	svc := newTestService(repo, nil, fakeRoster{psy}, time.Now())
	changed, err := svc.DeleteRecurring(ctx, psy, originID, date(t, "2024-06-03"))
	require.NoError(t, err)
	assert.Equal(t, 3, changed)

	_, ok := repo.day(psy, date(t, "2024-06-10"))
	assert.False(t, ok)

	d17, ok := repo.day(psy, date(t, "2024-06-17"))
	require.True(t, ok)
	assert.Equal(t, [][2]int{{480, 540}}, bounds(d17.Slots))

	d24, ok := repo.day(psy, date(t, "2024-06-24"))
	require.True(t, ok)
	assert.Equal(t, [][2]int{{420, 480}, {600, 720}}, bounds(d24.Slots))

	d03, ok := repo.day(psy, date(t, "2024-06-03"))
	require.True(t, ok)
	assert.Len(t, d03.Slots, 1)
}
